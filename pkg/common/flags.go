package common

import "github.com/alecthomas/kingpin/v2"

type FlagHolder interface {
	Flag(name, help string) *kingpin.FlagClause
}

// Configurable is a configuration section which binds its fields to flags.
type Configurable interface {
	SetupConfiguration(using FlagHolder)
}

func SetupConfigurations(using FlagHolder, sections ...Configurable) {
	for _, section := range sections {
		section.SetupConfiguration(using)
	}
}
