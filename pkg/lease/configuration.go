package lease

import (
	"time"

	"github.com/blaubaer/onair/pkg/common"
)

func NewConfiguration() Configuration {
	return Configuration{
		5 * time.Second,
		5 * time.Second,
		3 * time.Second,
	}
}

type Configuration struct {
	RenewInterval      time.Duration `yaml:"renewInterval,omitempty"`
	Grace              time.Duration `yaml:"grace,omitempty"`
	CaptureStopTimeout time.Duration `yaml:"captureStopTimeout,omitempty"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("lease.renewInterval", "How often clients have to renew their lease.").
		Envar("OA_LEASE_RENEW_INTERVAL").
		DurationVar(&this.RenewInterval)
	using.Flag("lease.grace", "How long after a missed renewal a lease is still valid.").
		Envar("OA_LEASE_GRACE").
		DurationVar(&this.Grace)
	using.Flag("lease.captureStopTimeout", "How long a forced release waits for a running capture to stop.").
		Envar("OA_LEASE_CAPTURE_STOP_TIMEOUT").
		DurationVar(&this.CaptureStopTimeout)
}

// ExpiresAfter is the time a lease survives without renewal.
func (this Configuration) ExpiresAfter() time.Duration {
	return this.RenewInterval + this.Grace
}
