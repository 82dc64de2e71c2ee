package indicator

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/echocat/slf4g"

	"github.com/blaubaer/onair/pkg/broadcast"
	"github.com/blaubaer/onair/pkg/lease"
)

type Source interface {
	Snapshot() lease.Snapshot
}

type Subscriber interface {
	Subscribe() (*broadcast.Session, error)
	Unsubscribe(id string) bool
}

type DriverOption func(*Driver)

func WithClock(c clock.Clock) DriverOption {
	return func(this *Driver) {
		this.clock = c
	}
}

// Driver keeps an Indicator in sync with the registry. It follows the events
// of the hub and additionally refreshes the indicator every refreshInterval.
type Driver struct {
	indicator       Indicator
	source          Source
	hub             Subscriber
	refreshInterval time.Duration
	clock           clock.Clock

	last *State
}

func NewDriver(indicator Indicator, source Source, hub Subscriber, refreshInterval time.Duration, opts ...DriverOption) *Driver {
	result := &Driver{
		indicator:       indicator,
		source:          source,
		hub:             hub,
		refreshInterval: refreshInterval,
		clock:           clock.New(),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

// Run returns as soon as ctx is done or the hub got closed. The indicator is
// switched off before.
func (this *Driver) Run(ctx context.Context) error {
	defer this.off()

	refresh := this.clock.Ticker(this.refreshInterval)
	defer refresh.Stop()

	for {
		session, err := this.hub.Subscribe()
		if errors.Is(err, broadcast.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		this.ensure()
		resubscribe := this.follow(ctx, session, refresh)
		this.hub.Unsubscribe(session.ID())
		if !resubscribe {
			return nil
		}
		log.Debug("Indicator lost its subscription. Subscribing again...")
	}
}

func (this *Driver) follow(ctx context.Context, session *broadcast.Session, refresh *clock.Ticker) (resubscribe bool) {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-session.Events():
			if !ok {
				return true
			}
			if ev.Kind == lease.EventClose {
				return false
			}
			this.ensure()
		case <-refresh.C:
			if err := this.indicator.Update(); err != nil {
				log.WithError(err).
					With("type", this.indicator.GetType()).
					Warn("Cannot update indicator.")
			}
			this.ensure()
		}
	}
}

func (this *Driver) ensure() {
	c := SnapshotContext(this.source.Snapshot())
	state := c.State()

	if this.last == nil || *this.last != state {
		log.With("state", state).
			With("type", this.indicator.GetType()).
			Info("Indicator state changed.")
	}
	if err := this.indicator.Ensure(c); err != nil {
		log.WithError(err).
			With("state", state).
			Error("Cannot ensure indicator state.")
		return
	}
	this.last = &state
}

func (this *Driver) off() {
	if err := this.indicator.Ensure(Off); err != nil {
		log.WithError(err).
			Warn("Cannot switch indicator off.")
	}
}
