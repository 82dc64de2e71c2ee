package ticker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrDestroyed = errors.New("ticker destroyed")

// Ticker produces one tick per interval until it gets destroyed. It is meant
// to be consumed by exactly one loop calling Next.
type Ticker struct {
	ticker *clock.Ticker
	done   chan struct{}
	once   sync.Once
}

func New(c clock.Clock, interval time.Duration) *Ticker {
	if c == nil {
		c = clock.New()
	}
	return &Ticker{
		ticker: c.Ticker(interval),
		done:   make(chan struct{}),
	}
}

// Next blocks until the next interval boundary. Boundaries the consumer was
// too slow for are coalesced into one tick.
func (this *Ticker) Next(ctx context.Context) error {
	select {
	case <-this.done:
		return ErrDestroyed
	default:
	}

	select {
	case <-this.done:
		return ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	case <-this.ticker.C:
		return nil
	}
}

// Destroy stops the underlying timer and fails every pending and future Next.
func (this *Ticker) Destroy() {
	this.once.Do(func() {
		this.ticker.Stop()
		close(this.done)
	})
}

func (this *Ticker) Destroyed() bool {
	select {
	case <-this.done:
		return true
	default:
		return false
	}
}
