package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaubaer/onair/pkg/lease"
)

func TestSynchronizer_takeRenewGive(t *testing.T) {
	instance, remote, clk := runSynchronizer(t)
	ctx := context.Background()

	stream := remote.stream(t, 0)
	stream.push(add("mic1", true))
	awaitState(t, instance, "mic1", StateAvailable)

	require.NoError(t, instance.Select(ctx, "mic1"))
	require.NoError(t, instance.Take(ctx, ""))
	n := awaitNotice(t, instance, NoticeUpdate)
	assert.Equal(t, StateControlling, n.State)

	clk.Add(time.Second)
	assert.Eventually(t, func() bool {
		return remote.called("renew mic1 tok-1")
	}, 5*time.Second, 5*time.Millisecond)

	// renewal is processed by the loop, so after the next intent it is done
	view, err := instance.View(ctx)
	require.NoError(t, err)
	require.Len(t, view.Channels, 1)
	assert.True(t, view.Channels[0].Held)

	require.NoError(t, instance.Give(ctx, "mic1"))
	assert.True(t, remote.called("release mic1 tok-2"))

	view, err = instance.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAvailable, view.Channels[0].State)
	assert.False(t, view.Channels[0].Held)

	clk.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, remote.count("renew "), "renewal must stop after give")
}

func TestSynchronizer_Take_busy(t *testing.T) {
	instance, remote, _ := runSynchronizer(t)
	ctx := context.Background()

	remote.stream(t, 0).push(add("mic1", true))
	awaitState(t, instance, "mic1", StateAvailable)
	remote.setTakeErr(fmt.Errorf("cannot take: %w", ErrRejected))

	assert.ErrorIs(t, instance.Take(ctx, "mic1"), ErrBusy)
	n := awaitNotice(t, instance, NoticeBusy)
	assert.Equal(t, "mic1", n.ChannelID)
}

func TestSynchronizer_Take_noChannel(t *testing.T) {
	instance, _, _ := runSynchronizer(t)

	assert.ErrorIs(t, instance.Take(context.Background(), ""), ErrNoChannel)
	assert.ErrorIs(t, instance.Give(context.Background(), "mic1"), ErrNotHeld)
}

func TestSynchronizer_renewRejected(t *testing.T) {
	instance, remote, clk := runSynchronizer(t)
	ctx := context.Background()

	remote.stream(t, 0).push(add("mic1", true))
	awaitState(t, instance, "mic1", StateAvailable)
	require.NoError(t, instance.Take(ctx, "mic1"))
	remote.setRenewErr(fmt.Errorf("cannot renew: %w", ErrRejected))

	clk.Add(time.Second)

	n := awaitNotice(t, instance, NoticeInvoluntary)
	assert.Equal(t, "mic1", n.ChannelID)
	assert.Equal(t, lease.ReasonExpired, n.Reason)

	view, err := instance.View(ctx)
	require.NoError(t, err)
	assert.False(t, view.Channels[0].Held)
}

func TestSynchronizer_involuntaryReleaseEvent(t *testing.T) {
	instance, remote, _ := runSynchronizer(t)
	ctx := context.Background()

	stream := remote.stream(t, 0)
	stream.push(add("mic1", true))
	awaitState(t, instance, "mic1", StateAvailable)
	require.NoError(t, instance.Take(ctx, "mic1"))

	// older than the take, must not void the fresh lease
	stream.push(lease.Event{Kind: lease.EventRelease, Sequence: 1, ChannelID: "mic1", Channel: &lease.Channel{ID: "mic1", Connected: true}})
	view, err := instance.View(ctx)
	require.NoError(t, err)
	assert.True(t, view.Channels[0].Held)

	stream.push(lease.Event{Kind: lease.EventTake, Sequence: 2, ChannelID: "mic1", Channel: &lease.Channel{ID: "mic1", Connected: true, Taken: true, HolderID: "sub1"}})
	stream.push(lease.Event{Kind: lease.EventRelease, Sequence: 3, ChannelID: "mic1", Channel: &lease.Channel{ID: "mic1", Connected: true}, Involuntary: true, Reason: lease.ReasonDisconnected})

	n := awaitNotice(t, instance, NoticeInvoluntary)
	assert.Equal(t, lease.ReasonDisconnected, n.Reason)

	view, err = instance.View(ctx)
	require.NoError(t, err)
	assert.False(t, view.Channels[0].Held)
	assert.Equal(t, StateAvailable, view.Channels[0].State)
}

func TestSynchronizer_Select_alternativeAndSwitchAway(t *testing.T) {
	instance, remote, _ := runSynchronizer(t)
	ctx := context.Background()

	stream := remote.stream(t, 0)
	stream.push(add("mic1", false))
	stream.push(add("mic2", true))
	awaitState(t, instance, "mic1", StateUnavailable)
	awaitState(t, instance, "mic2", StateAvailable)
	require.NoError(t, instance.Select(ctx, "mic1"))

	view, err := instance.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mic1", view.Current)
	assert.Equal(t, "mic2", view.Alternative)
	assert.Equal(t, "mic2", view.Displayed)
	assert.Equal(t, "mic2", stream.lastWatched())

	require.NoError(t, instance.Take(ctx, ""))
	assert.True(t, remote.called("take mic2 sub1"))

	require.NoError(t, instance.Select(ctx, "mic2"))
	require.NoError(t, instance.Select(ctx, "mic3"))
	assert.True(t, remote.called("release mic2 tok-1"), "switching away gives the lease")
}

func TestSynchronizer_Sleep_kill(t *testing.T) {
	instance, remote, _ := runSynchronizer(t)
	ctx := context.Background()

	stream := remote.stream(t, 0)
	stream.push(add("mic1", true))
	awaitState(t, instance, "mic1", StateAvailable)
	require.NoError(t, instance.Take(ctx, "mic1"))

	require.NoError(t, instance.Sleep(ctx))
	awaitNotice(t, instance, NoticeKill)

	assert.True(t, remote.called("release mic1 tok-1"))
	assert.True(t, stream.isClosed())
	assert.ErrorIs(t, instance.Take(ctx, "mic1"), ErrSleeping)
}

func TestSynchronizer_Sleep_captureContinues(t *testing.T) {
	instance, remote, clk := runSynchronizer(t)
	ctx := context.Background()

	stream := remote.stream(t, 0)
	stream.push(add("mic1", true))
	stream.push(add("mic2", true))
	awaitState(t, instance, "mic2", StateAvailable)
	require.NoError(t, instance.Take(ctx, "mic1"))
	require.NoError(t, instance.Take(ctx, "mic2"))
	require.NoError(t, instance.Record(ctx, "mic1", "take1"))
	stream.push(lease.Event{Kind: lease.EventStatus, Sequence: 5, ChannelID: "mic1", Channel: &lease.Channel{ID: "mic1", Connected: true, Taken: true, HolderID: "sub1", Capturing: true, CaptureArtifactName: "take1"}})
	awaitState(t, instance, "mic1", StateRecording)

	require.NoError(t, instance.Sleep(ctx))
	awaitNotice(t, instance, NoticeSleep)

	assert.True(t, remote.called("start mic1 tok-1 take1"))
	assert.False(t, remote.called("release mic1 tok-1"))
	assert.True(t, remote.called("release mic2 tok-2"))
	assert.True(t, stream.isClosed())

	clk.Add(time.Second)
	assert.Eventually(t, func() bool {
		return remote.called("renew mic1 tok-1")
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, instance.Awaken(ctx))
	remote.stream(t, 1)
}

func TestSynchronizer_closeEventResubscribes(t *testing.T) {
	instance, remote, clk := runSynchronizer(t)
	ctx := context.Background()

	stream := remote.stream(t, 0)
	stream.push(add("mic1", true))
	awaitState(t, instance, "mic1", StateAvailable)
	require.NoError(t, instance.Select(ctx, "mic1"))
	stream.push(lease.Event{Kind: lease.EventClose})

	assert.Eventually(t, stream.isClosed, 5*time.Second, 5*time.Millisecond)

	view, err := instance.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateUnavailable, view.Channels[0].State)

	clk.Add(time.Second)
	second := remote.stream(t, 1)
	second.push(add("mic1", true))

	assert.Eventually(t, func() bool {
		view, err := instance.View(ctx)
		return err == nil && view.Channels[0].State == StateAvailable
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "mic1", second.lastWatched())
}

func TestSynchronizer_streamLostKeepsCapturingLease(t *testing.T) {
	instance, remote, clk := runSynchronizer(t)
	ctx := context.Background()

	stream := remote.stream(t, 0)
	stream.push(add("mic1", true))
	awaitState(t, instance, "mic1", StateAvailable)
	require.NoError(t, instance.Take(ctx, "mic1"))
	stream.push(lease.Event{Kind: lease.EventStatus, Sequence: 2, ChannelID: "mic1", Channel: &lease.Channel{ID: "mic1", Connected: true, Taken: true, HolderID: "sub1", Capturing: true}})
	awaitState(t, instance, "mic1", StateRecording)
	_ = stream.Close()
	awaitState(t, instance, "mic1", StateUnavailable)

	clk.Add(time.Second)
	second := remote.stream(t, 1)
	second.push(lease.Event{Kind: lease.EventAdd, Sequence: 3, ChannelID: "mic1", Channel: &lease.Channel{ID: "mic1", Connected: true, Taken: true, HolderID: "sub1", Capturing: true}})

	assert.Eventually(t, func() bool {
		view, err := instance.View(ctx)
		return err == nil && view.Channels[0].State == StateRecording
	}, 5*time.Second, 5*time.Millisecond)
}

func runSynchronizer(t *testing.T) (*Synchronizer, *fakeRemote, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	remote := &fakeRemote{}
	conf := NewConfiguration()
	conf.ReconnectMin = time.Second
	conf.ReconnectMax = 4 * time.Second
	instance := New(remote, conf, WithClock(clk))

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

	return instance, remote, clk
}

func awaitNotice(t *testing.T, instance *Synchronizer, kind NoticeKind) Notice {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case n := <-instance.Notices():
			if n.Kind == kind {
				return n
			}
		case <-timeout:
			t.Fatalf("notice %v not received", kind)
			return Notice{}
		}
	}
}

func awaitState(t *testing.T, instance *Synchronizer, channelID string, state LocalState) {
	t.Helper()
	require.Eventually(t, func() bool {
		view, err := instance.View(context.Background())
		if err != nil {
			return false
		}
		for _, c := range view.Channels {
			if c.Channel.ID == channelID {
				return c.State == state
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
}

func add(id string, connected bool) lease.Event {
	return lease.Event{
		Kind:      lease.EventAdd,
		ChannelID: id,
		Channel:   &lease.Channel{ID: id, DisplayName: "Microphone " + id, Connected: connected},
	}
}

type fakeRemote struct {
	mutex         sync.Mutex
	subscriptions int
	tokens        int
	streams       []*fakeStream
	recorded      []string
	takeErr       error
	renewErr      error
}

func (this *fakeRemote) Subscribe(context.Context) (Subscription, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.subscriptions++
	return Subscription{
		ID:            fmt.Sprintf("sub%d", this.subscriptions),
		RenewInterval: time.Second,
	}, nil
}

func (this *fakeRemote) Open(_ context.Context, subscribeID string) (Stream, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	result := &fakeStream{
		subscribeID: subscribeID,
		events:      make(chan lease.Event, 64),
	}
	this.streams = append(this.streams, result)
	return result, nil
}

func (this *fakeRemote) Take(_ context.Context, channelID, subscribeID string) (string, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	if this.takeErr != nil {
		return "", this.takeErr
	}
	this.recorded = append(this.recorded, "take "+channelID+" "+subscribeID)
	return this.nextToken(), nil
}

func (this *fakeRemote) Renew(_ context.Context, channelID, token string) (string, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	if this.renewErr != nil {
		return "", this.renewErr
	}
	this.recorded = append(this.recorded, "renew "+channelID+" "+token)
	return this.nextToken(), nil
}

func (this *fakeRemote) Release(_ context.Context, channelID, token string) error {
	return this.record("release " + channelID + " " + token)
}

func (this *fakeRemote) Start(_ context.Context, channelID, token, name string) error {
	return this.record("start " + channelID + " " + token + " " + name)
}

func (this *fakeRemote) Stop(_ context.Context, channelID, token string) error {
	return this.record("stop " + channelID + " " + token)
}

func (this *fakeRemote) Reset(_ context.Context, channelID, token string) error {
	return this.record("reset " + channelID + " " + token)
}

func (this *fakeRemote) nextToken() string {
	this.tokens++
	return fmt.Sprintf("tok-%d", this.tokens)
}

func (this *fakeRemote) record(v string) error {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.recorded = append(this.recorded, v)
	return nil
}

func (this *fakeRemote) setTakeErr(err error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.takeErr = err
}

func (this *fakeRemote) setRenewErr(err error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.renewErr = err
}

func (this *fakeRemote) called(v string) bool {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	for _, c := range this.recorded {
		if c == v {
			return true
		}
	}
	return false
}

func (this *fakeRemote) count(prefix string) (result int) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	for _, c := range this.recorded {
		if strings.HasPrefix(c, prefix) {
			result++
		}
	}
	return
}

func (this *fakeRemote) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	var result *fakeStream
	require.Eventually(t, func() bool {
		this.mutex.Lock()
		defer this.mutex.Unlock()
		if len(this.streams) > i {
			result = this.streams[i]
			return true
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	return result
}

type fakeStream struct {
	subscribeID string
	events      chan lease.Event

	mutex   sync.Mutex
	watched []string
	closed  bool
}

func (this *fakeStream) Events() <-chan lease.Event {
	return this.events
}

func (this *fakeStream) push(ev lease.Event) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	if !this.closed {
		this.events <- ev
	}
}

func (this *fakeStream) Watch(channelID string) error {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.watched = append(this.watched, channelID)
	return nil
}

func (this *fakeStream) lastWatched() string {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	if len(this.watched) == 0 {
		return ""
	}
	return this.watched[len(this.watched)-1]
}

func (this *fakeStream) Close() error {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	if !this.closed {
		this.closed = true
		close(this.events)
	}
	return nil
}

func (this *fakeStream) isClosed() bool {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.closed
}
