package app

import (
	"context"
	"fmt"
	"os"
	"reflect"

	"dario.cat/mergo"
	log "github.com/echocat/slf4g"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/blaubaer/onair/pkg/audio"
	"github.com/blaubaer/onair/pkg/broadcast"
	"github.com/blaubaer/onair/pkg/capture"
	"github.com/blaubaer/onair/pkg/common"
	"github.com/blaubaer/onair/pkg/indicator"
	"github.com/blaubaer/onair/pkg/indicator/facade"
	"github.com/blaubaer/onair/pkg/lease"
	"github.com/blaubaer/onair/pkg/metrics"
	"github.com/blaubaer/onair/pkg/server"
)

func NewApp() *App {
	return &App{
		config: NewConfiguration(),
	}
}

type App struct {
	AudioStack        audio.Stack
	Indicator         facade.Facade
	ConfigurationFile string

	configFromFlags Configuration
	config          Configuration
}

func (this *App) SetupConfiguration(using common.FlagHolder) {
	this.configFromFlags.SetupConfiguration(using)

	using.Flag("configuration", "Defines the file from which the configuration should be loaded and/or stored to.").
		Short('c').
		Envar("OA_CONFIGURATION").
		StringVar(&this.ConfigurationFile)
}

// Initialize resolves the configuration: defaults, then the configuration
// file, then every flag which was provided.
func (this *App) Initialize() error {
	fn := this.configurationFile()
	if err := this.config.loadFromFile(fn, this.ConfigurationFile == ""); err != nil {
		return err
	}
	if err := mergo.Merge(&this.config, this.configFromFlags, mergo.WithOverride, mergo.WithTransformers(flagTransformers{})); err != nil {
		return fmt.Errorf("cannot merge configuration with flags: %w", err)
	}
	return nil
}

func (this *App) Configuration() Configuration {
	return this.config
}

// Serve runs the coordinator with its server, the device watcher and the
// indicator until ctx is done.
func (this *App) Serve(ctx context.Context) (rErr error) {
	conf := &this.config

	if err := this.AudioStack.Initialize(); err != nil {
		return err
	}
	defer func() {
		rErr = multierr.Append(rErr, this.AudioStack.Dispose())
	}()

	if err := this.Indicator.Initialize(ctx, &conf.Indicator, this.alwaysSaveConf); err != nil {
		return err
	}
	defer func() {
		rErr = multierr.Append(rErr, this.Indicator.Dispose())
	}()

	if err := this.saveConf(false); err != nil {
		return err
	}

	collector := metrics.New()
	hub := broadcast.NewHub(conf.Server.QueueSize)

	var coordinator *lease.Coordinator
	capturer := capture.NewProcess(conf.Capture,
		capture.WithDeviceNames(func(channelID string) string {
			if v, ok := coordinator.Snapshot().Channel(channelID); ok && v.DisplayName != "" {
				return v.DisplayName
			}
			return channelID
		}),
		capture.WithExitHandler(func(channelID string) {
			if err := coordinator.CaptureStopped(context.Background(), channelID, true); err != nil {
				log.WithError(err).
					With("channel", channelID).
					Warn("Cannot record the end of the capture.")
			}
		}),
	)
	coordinator = lease.NewCoordinator(conf.Lease, capturer, hub, lease.WithObserver(collector))
	defer func() {
		rErr = multierr.Combine(rErr, capturer.Dispose(), coordinator.Close())
	}()

	srv := server.New(conf.Server, coordinator, hub, collector.Handler())
	watcher := audio.NewWatcher(conf.Devices, &this.AudioStack, coordinator)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gCtx)
	})
	g.Go(func() error {
		return watcher.Run(gCtx)
	})
	if this.Indicator.GetType() != indicator.TypeNone {
		driver := indicator.NewDriver(&this.Indicator, coordinator, hub, conf.Indicator.RefreshInterval)
		g.Go(func() error {
			return driver.Run(gCtx)
		})
	} else {
		log.Debug("No indicator configured.")
	}

	return g.Wait()
}

func (this *App) configurationFile() string {
	if v := this.ConfigurationFile; v != "" {
		return v
	}
	return defaultConfigurationFile()
}

func (this *App) alwaysSaveConf() error {
	return this.saveConf(true)
}

func (this *App) saveConf(always bool) error {
	if this.config.PreventAutoSave {
		log.Debug("Automatically save of configuration disabled.")
		return nil
	}

	fn := this.configurationFile()
	if !always {
		_, err := os.Stat(fn)
		if os.IsNotExist(err) {
			log.With("file", fn).Info("Configuration absent.")
		} else if err != nil {
			return err
		} else {
			return nil
		}
	}

	if err := this.config.saveToFile(fn); err != nil {
		return err
	}

	log.With("file", fn).Info("Configuration saved.")

	return nil
}

var regexpType = reflect.TypeOf(common.Regexp{})

// flagTransformers prevents regexps which were not provided as flags from
// overriding the configured ones.
type flagTransformers struct{}

func (flagTransformers) Transformer(t reflect.Type) func(dst, src reflect.Value) error {
	if t != regexpType {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if v, ok := src.Interface().(common.Regexp); ok && v.HasContent() && dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}
