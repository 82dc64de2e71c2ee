// Package serializer provides a FIFO queue of critical sections. Every caller
// acquires a Turn and runs exclusively once all previously acquired turns
// ended, strictly in acquisition order.
//
// Each acquired Turn MUST be ended exactly once, otherwise all following turns
// wait forever.
package serializer

import (
	"context"
	"sync"
)

type Serializer struct {
	tail  chan struct{}
	mutex sync.Mutex
}

func New() *Serializer {
	return &Serializer{}
}

// Acquire enqueues a new turn behind every turn acquired before.
func (this *Serializer) Acquire() *Turn {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	previous := this.tail
	if previous == nil {
		previous = make(chan struct{})
		close(previous)
	}
	next := make(chan struct{})
	this.tail = next

	return &Turn{
		started: previous,
		ended:   next,
	}
}

// Do waits for a turn, runs fn and ends the turn afterward.
func (this *Serializer) Do(ctx context.Context, fn func() error) error {
	turn := this.Acquire()
	if err := turn.Wait(ctx); err != nil {
		return err
	}
	defer turn.End()
	return fn()
}

type Turn struct {
	started <-chan struct{}
	ended   chan struct{}
	once    sync.Once
}

// Started is closed as soon as every previous turn ended.
func (this *Turn) Started() <-chan struct{} {
	return this.started
}

// Wait blocks until the turn started. If ctx is done first the turn is given
// up: it ends itself as soon as it would have started.
func (this *Turn) Wait(ctx context.Context) error {
	select {
	case <-this.started:
		return nil
	default:
	}

	select {
	case <-this.started:
		return nil
	case <-ctx.Done():
		go func() {
			<-this.started
			this.End()
		}()
		return ctx.Err()
	}
}

// End hands over to the next turn. Calling it more than once has no effect.
func (this *Turn) End() {
	this.once.Do(func() {
		close(this.ended)
	})
}
