package audio

import (
	"time"

	"github.com/blaubaer/onair/pkg/common"
)

func NewConfiguration() Configuration {
	return Configuration{
		2 * time.Second,
		common.Regexp{},
		common.Regexp{},
	}
}

type Configuration struct {
	CheckInterval time.Duration `yaml:"checkInterval,omitempty"`

	Included common.Regexp `yaml:"included,omitempty"`
	Excluded common.Regexp `yaml:"excluded,omitempty"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("devices.checkInterval", "How often the capture devices are enumerated.").
		Envar("OA_DEVICES_CHECK_INTERVAL").
		DurationVar(&this.CheckInterval)
	using.Flag("devices.included", "Only devices whose id or name matches become channels.").
		Envar("OA_DEVICES_INCLUDED").
		SetValue(&this.Included)
	using.Flag("devices.excluded", "Devices whose id or name matches never become channels.").
		Envar("OA_DEVICES_EXCLUDED").
		SetValue(&this.Excluded)
}
