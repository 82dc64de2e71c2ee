package hue

import "github.com/blaubaer/onair/pkg/common"

func NewConfiguration() Configuration {
	return Configuration{
		false,
		"",
		"",

		common.MustNewRegexp("^OnAir"),
		Kinds{},

		254,
		65535,
		254,
	}
}

type Configuration struct {
	Pair   bool   `yaml:"pair,omitempty"`
	Bridge string `yaml:"bridge,omitempty"`
	User   string `yaml:"user,omitempty"`

	Name  common.Regexp `yaml:"target"`
	Kinds Kinds         `yaml:"kinds,omitempty"`

	Brightness uint8  `yaml:"brightness"`
	Hue        uint16 `yaml:"hue"`
	Saturation uint8  `yaml:"saturation"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("indicator.hue.pair", "Pair again with the hue bridge. Implicit if not paired yet.").
		Envar("OA_INDICATOR_HUE_PAIR").
		BoolVar(&this.Pair)
	using.Flag("indicator.hue.bridge", "Address of the hue bridge. Only required while pairing if there is more than one bridge.").
		Envar("OA_INDICATOR_HUE_BRIDGE").
		StringVar(&this.Bridge)
	using.Flag("indicator.hue.user", "User of the hue bridge. Usually created while pairing. If set it is used as is and not persisted.").
		Envar("OA_INDICATOR_HUE_USER").
		StringVar(&this.User)
	using.Flag("indicator.hue.name", "Regex of the names of lights/groups which show that we are on air.").
		Envar("OA_INDICATOR_HUE_NAME").
		SetValue(&this.Name)
	using.Flag("indicator.hue.kind", "Kind(s) of what gets switched. Possible values: "+AllKinds.String()).
		Envar("OA_INDICATOR_HUE_KIND").
		SetValue(&this.Kinds)

	using.Flag("indicator.hue.brightness", "Brightness while on air, from 1 (minimum of the light) to 254 (maximum).").
		Envar("OA_INDICATOR_HUE_BRIGHTNESS").
		Uint8Var(&this.Brightness)
	using.Flag("indicator.hue.hue", "Hue while on air. Wraps between 0 and 65535; both are red, 25500 is green and 46920 is blue.").
		Envar("OA_INDICATOR_HUE_HUE").
		Uint16Var(&this.Hue)
	using.Flag("indicator.hue.saturation", "Saturation while on air, from 0 (white) to 254 (most colored).").
		Envar("OA_INDICATOR_HUE_SATURATION").
		Uint8Var(&this.Saturation)
}
