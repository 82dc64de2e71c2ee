package client

import (
	"context"
	"errors"
	"time"

	"github.com/blaubaer/onair/pkg/lease"
)

// ErrRejected is returned by a Remote if the coordinator answered with
// state=false. The coordinator does not tell why.
var ErrRejected = errors.New("rejected by coordinator")

type Subscription struct {
	ID            string
	RenewInterval time.Duration
}

// Stream is the push stream of one subscription.
type Stream interface {
	// Events is closed as soon as the stream ended, for whatever reason.
	Events() <-chan lease.Event
	Watch(channelID string) error
	// Close signals done to the coordinator and closes the stream.
	Close() error
}

// Remote is the coordinator as seen from a client.
type Remote interface {
	Subscribe(ctx context.Context) (Subscription, error)
	Open(ctx context.Context, subscribeID string) (Stream, error)

	Take(ctx context.Context, channelID, subscribeID string) (token string, err error)
	Renew(ctx context.Context, channelID, token string) (newToken string, err error)
	Release(ctx context.Context, channelID, token string) error
	Start(ctx context.Context, channelID, token, name string) error
	Stop(ctx context.Context, channelID, token string) error
	Reset(ctx context.Context, channelID, token string) error
}
