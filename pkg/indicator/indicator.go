// Package indicator drives an "on air" indicator which is on as long as at
// least one channel records.
package indicator

import (
	"iter"

	"github.com/blaubaer/onair/pkg/common"
	"github.com/blaubaer/onair/pkg/lease"
)

type Indicator interface {
	// Ensure brings the indicator into the state of the given Context.
	Ensure(Context) error
	// Update rediscovers the targets of the indicator.
	Update() error
	Dispose() error

	GetType() Type
}

type Context interface {
	State() State
	Recordings() iter.Seq[lease.Channel]
}

// SnapshotContext derives the Context from a snapshot of the registry.
type SnapshotContext lease.Snapshot

func (this SnapshotContext) State() State {
	for range this.Recordings() {
		return StateOn
	}
	return StateOff
}

func (this SnapshotContext) Recordings() iter.Seq[lease.Channel] {
	return common.Filter(common.Iter(this.Channels...), func(v lease.Channel) bool {
		return v.Capturing
	})
}

type offContext struct{}

func (offContext) State() State {
	return StateOff
}

func (offContext) Recordings() iter.Seq[lease.Channel] {
	return common.Iter[lease.Channel]()
}

// Off is a Context which switches every indicator off.
var Off Context = offContext{}
