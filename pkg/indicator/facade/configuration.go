package facade

import (
	"time"

	"github.com/blaubaer/onair/pkg/common"
	"github.com/blaubaer/onair/pkg/indicator"
	"github.com/blaubaer/onair/pkg/indicator/homeassistant"
	"github.com/blaubaer/onair/pkg/indicator/hue"
)

func NewConfiguration() Configuration {
	return Configuration{
		Type:            indicator.TypeDefault,
		RefreshInterval: 5 * time.Minute,
		Hue:             hue.NewConfiguration(),
		HomeAssistant:   homeassistant.NewConfiguration(),
	}
}

type Configuration struct {
	Type            indicator.Type              `yaml:"type"`
	RefreshInterval time.Duration               `yaml:"refreshInterval,omitempty"`
	Hue             hue.Configuration           `yaml:"hue,omitempty"`
	HomeAssistant   homeassistant.Configuration `yaml:"homeAssistant,omitempty"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("indicator.type", "On air indicator to use. Possible values: "+indicator.AllTypes.String()).
		Envar("OA_INDICATOR_TYPE").
		SetValue(&this.Type)
	using.Flag("indicator.refreshInterval", "How often the targets of the indicator are rediscovered.").
		Envar("OA_INDICATOR_REFRESH_INTERVAL").
		DurationVar(&this.RefreshInterval)

	this.Hue.SetupConfiguration(using)
	this.HomeAssistant.SetupConfiguration(using)
}
