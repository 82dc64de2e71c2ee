package capture

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blaubaer/onair/pkg/common"
)

// Placeholders which are replaced in every argument of Configuration.Command.
const (
	PlaceholderChannel = "{channel}"
	PlaceholderDevice  = "{device}"
	PlaceholderName    = "{name}"
	PlaceholderOutput  = "{output}"
)

func NewConfiguration() Configuration {
	return Configuration{
		defaultCommand(),
		filepath.Join(os.TempDir(), "onair"),
		"wav",
		5 * time.Second,
	}
}

type Configuration struct {
	Command     []string      `yaml:"command,omitempty"`
	Directory   string        `yaml:"directory,omitempty"`
	Extension   string        `yaml:"extension,omitempty"`
	StopTimeout time.Duration `yaml:"stopTimeout,omitempty"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("capture.command", "Encoder command line, one flag per argument. Supports "+PlaceholderChannel+", "+PlaceholderDevice+", "+PlaceholderName+" and "+PlaceholderOutput+".").
		Envar("OA_CAPTURE_COMMAND").
		StringsVar(&this.Command)
	using.Flag("capture.directory", "Where captured artifacts are written to.").
		Envar("OA_CAPTURE_DIRECTORY").
		StringVar(&this.Directory)
	using.Flag("capture.extension", "File extension of captured artifacts.").
		Envar("OA_CAPTURE_EXTENSION").
		StringVar(&this.Extension)
	using.Flag("capture.stopTimeout", "How long a running encoder may take to finish before it gets killed.").
		Envar("OA_CAPTURE_STOP_TIMEOUT").
		DurationVar(&this.StopTimeout)
}

func (this Configuration) output(name string) string {
	fn := sanitize(name)
	if ext := strings.TrimPrefix(this.Extension, "."); ext != "" {
		fn += "." + ext
	}
	return filepath.Join(this.Directory, fn)
}

func (this Configuration) args(channelID, device, name, output string) []string {
	r := strings.NewReplacer(
		PlaceholderChannel, channelID,
		PlaceholderDevice, device,
		PlaceholderName, name,
		PlaceholderOutput, output,
	)
	result := make([]string, len(this.Command))
	for i, arg := range this.Command {
		result[i] = r.Replace(arg)
	}
	return result
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
