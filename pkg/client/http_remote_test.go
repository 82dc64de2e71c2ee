package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaubaer/onair/pkg/broadcast"
	"github.com/blaubaer/onair/pkg/lease"
	"github.com/blaubaer/onair/pkg/server"
)

func TestNewHTTPRemote_illegalURL(t *testing.T) {
	_, err := NewHTTPRemote("ftp://localhost")
	assert.Error(t, err)

	_, err = NewHTTPRemote("http://localhost:8080/")
	assert.NoError(t, err)
}

func TestHTTPRemote_twoClients(t *testing.T) {
	base := newCoordinatorServer(t, "mic1")
	ctx := context.Background()

	alice := runHTTPSynchronizer(t, base)
	bob := runHTTPSynchronizer(t, base)

	awaitState(t, alice, "mic1", StateAvailable)
	awaitState(t, bob, "mic1", StateAvailable)

	require.NoError(t, alice.Take(ctx, "mic1"))
	awaitState(t, bob, "mic1", StateTaken)
	assert.ErrorIs(t, bob.Take(ctx, "mic1"), ErrBusy)

	require.NoError(t, alice.Record(ctx, "mic1", "interview"))
	awaitState(t, alice, "mic1", StateRecording)

	assert.ErrorIs(t, alice.Give(ctx, "mic1"), lease.ErrCaptureInProgress)
	require.NoError(t, alice.Stop(ctx, "mic1"))
	awaitState(t, alice, "mic1", StateControlling)

	require.NoError(t, alice.Give(ctx, "mic1"))
	awaitState(t, bob, "mic1", StateAvailable)
	require.NoError(t, bob.Take(ctx, "mic1"))
	awaitState(t, alice, "mic1", StateTaken)
}

func newCoordinatorServer(t *testing.T, channels ...string) string {
	t.Helper()

	conf := lease.NewConfiguration()
	conf.RenewInterval = 200 * time.Millisecond
	conf.Grace = time.Second

	hub := broadcast.NewHub(0)
	coordinator := lease.NewCoordinator(conf, nopCapturer{}, hub)
	for _, ch := range channels {
		require.NoError(t, coordinator.DeviceConnected(context.Background(), ch, ""))
	}

	srv := httptest.NewServer(server.New(server.NewConfiguration(), coordinator, hub, nil).Handler())
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
		_ = coordinator.Close()
	})
	return srv.URL
}

func runHTTPSynchronizer(t *testing.T, base string) *Synchronizer {
	t.Helper()

	remote, err := NewHTTPRemote(base)
	require.NoError(t, err)
	instance := New(remote, NewConfiguration())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		assert.NoError(t, instance.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return instance
}

type nopCapturer struct{}

func (nopCapturer) StartCapture(context.Context, string, string) error {
	return nil
}

func (nopCapturer) StopCapture(context.Context, string, bool) error {
	return nil
}
