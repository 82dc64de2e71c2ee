package audio

import (
	"context"

	"github.com/benbjohnson/clock"
	log "github.com/echocat/slf4g"
	"go.uber.org/multierr"

	"github.com/blaubaer/onair/pkg/common"
	"github.com/blaubaer/onair/pkg/ticker"
)

type Finder interface {
	FindDevices() (Devices, error)
}

// Sink receives every change of the present devices.
type Sink interface {
	DeviceConnected(ctx context.Context, channelID, displayName string) error
	DeviceDisconnected(ctx context.Context, channelID string) error
}

type Option func(*Watcher)

func WithClock(c clock.Clock) Option {
	return func(this *Watcher) {
		this.clock = c
	}
}

// Watcher polls the devices and reports every difference to its Sink.
type Watcher struct {
	conf   Configuration
	finder Finder
	sink   Sink
	clock  clock.Clock

	known map[string]Device
}

func NewWatcher(conf Configuration, finder Finder, sink Sink, opts ...Option) *Watcher {
	result := &Watcher{
		conf:   conf,
		finder: finder,
		sink:   sink,
		clock:  clock.New(),
		known:  make(map[string]Device),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

func (this *Watcher) Run(ctx context.Context) error {
	t := ticker.New(this.clock, this.conf.CheckInterval)
	defer t.Destroy()

	for {
		if err := this.Check(ctx); err != nil {
			log.WithError(err).
				Warn("Cannot check devices. Will retry with next check.")
		}
		if err := t.Next(ctx); err != nil {
			if common.IsDone(err) {
				return nil
			}
			return err
		}
	}
}

// Check enumerates the devices once. A device whose report failed is
// reported again with the next check.
func (this *Watcher) Check(ctx context.Context) (rErr error) {
	all, err := this.finder.FindDevices()
	if err != nil {
		return err
	}
	present := all.Filter(this.conf.Included, this.conf.Excluded).Sorted()
	byID := present.ByID()

	for _, device := range present {
		if known, ok := this.known[device.ID]; ok && known.Name == device.Name {
			continue
		}
		if err := this.sink.DeviceConnected(ctx, device.ID, device.Name); err != nil {
			rErr = multierr.Append(rErr, err)
			continue
		}
		log.With("device", device).
			Info("Device connected.")
		this.known[device.ID] = device
	}

	for _, id := range this.knownIDs() {
		if _, ok := byID[id]; ok {
			continue
		}
		if err := this.sink.DeviceDisconnected(ctx, id); err != nil {
			rErr = multierr.Append(rErr, err)
			continue
		}
		log.With("device", this.known[id]).
			Info("Device disconnected.")
		delete(this.known, id)
	}

	return rErr
}

func (this *Watcher) knownIDs() []string {
	result := make(Devices, 0, len(this.known))
	for _, v := range this.known {
		result = append(result, v)
	}
	ids := make([]string, len(result))
	for i, v := range result.Sorted() {
		ids[i] = v.ID
	}
	return ids
}
