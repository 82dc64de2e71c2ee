package client

import (
	"time"

	"github.com/blaubaer/onair/pkg/common"
)

func NewConfiguration() Configuration {
	return Configuration{
		"http://localhost:8080",
		500 * time.Millisecond,
		30 * time.Second,
		10 * time.Second,
	}
}

type Configuration struct {
	Coordinator string `yaml:"coordinator,omitempty"`

	ReconnectMin   time.Duration `yaml:"reconnectMin,omitempty"`
	ReconnectMax   time.Duration `yaml:"reconnectMax,omitempty"`
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("client.coordinator", "URL of the coordinator.").
		Envar("OA_CLIENT_COORDINATOR").
		StringVar(&this.Coordinator)
	using.Flag("client.reconnectMin", "First delay before reconnecting to the coordinator.").
		Envar("OA_CLIENT_RECONNECT_MIN").
		DurationVar(&this.ReconnectMin)
	using.Flag("client.reconnectMax", "Maximum delay between reconnects to the coordinator.").
		Envar("OA_CLIENT_RECONNECT_MAX").
		DurationVar(&this.ReconnectMax)
	using.Flag("client.requestTimeout", "Timeout of a single request to the coordinator.").
		Envar("OA_CLIENT_REQUEST_TIMEOUT").
		DurationVar(&this.RequestTimeout)
}
