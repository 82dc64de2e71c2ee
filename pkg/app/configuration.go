package app

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/blaubaer/onair/pkg/audio"
	"github.com/blaubaer/onair/pkg/capture"
	"github.com/blaubaer/onair/pkg/client"
	"github.com/blaubaer/onair/pkg/common"
	"github.com/blaubaer/onair/pkg/indicator/facade"
	"github.com/blaubaer/onair/pkg/lease"
	"github.com/blaubaer/onair/pkg/server"
)

func NewConfiguration() Configuration {
	return Configuration{
		false,

		lease.NewConfiguration(),
		server.NewConfiguration(),
		client.NewConfiguration(),
		capture.NewConfiguration(),
		audio.NewConfiguration(),
		facade.NewConfiguration(),
	}
}

type Configuration struct {
	PreventAutoSave bool `yaml:"preventAutoSave"`

	Lease     lease.Configuration   `yaml:"lease,omitempty"`
	Server    server.Configuration  `yaml:"server,omitempty"`
	Client    client.Configuration  `yaml:"client,omitempty"`
	Capture   capture.Configuration `yaml:"capture,omitempty"`
	Devices   audio.Configuration   `yaml:"devices,omitempty"`
	Indicator facade.Configuration  `yaml:"indicator,omitempty"`
}

func (this *Configuration) SetupConfiguration(using common.FlagHolder) {
	using.Flag("preventAutoSave", "If provided configuration will NOT automatically be saved upon changes.").
		Envar("OA_PREVENT_AUTO_SAVE").
		BoolVar(&this.PreventAutoSave)

	common.SetupConfigurations(using,
		&this.Lease,
		&this.Server,
		&this.Client,
		&this.Capture,
		&this.Devices,
		&this.Indicator,
	)
}

func (this *Configuration) loadFrom(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(this); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (this *Configuration) loadFromFile(fn string, ignoreNotFound bool) error {
	f, err := os.Open(fn)
	if os.IsNotExist(err) && ignoreNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot open configuration file %q: %w", fn, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := this.loadFrom(f); err != nil {
		return fmt.Errorf("cannot load configuration file %q: %w", fn, err)
	}

	return nil
}

func (this *Configuration) saveTo(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(this)
}

func (this *Configuration) saveToFile(fn string) error {
	_ = os.MkdirAll(filepath.Dir(fn), 0700)

	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("cannot open configuration file %q: %w", fn, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := this.saveTo(f); err != nil {
		return fmt.Errorf("cannot write file %q: %w", fn, err)
	}

	return nil
}

func defaultConfigurationFile() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		fs, err := os.Stat(appData)
		if err == nil && fs.IsDir() {
			return filepath.Join(appData, "onair", "configuration.yml")
		}
	}

	u, err := user.Current()
	if err != nil {
		return "configuration.yml"
	}

	return filepath.Join(u.HomeDir, ".config", "onair", "configuration.yml")
}
