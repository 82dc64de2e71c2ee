package audio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaubaer/onair/pkg/common"
)

func TestWatcher_Check(t *testing.T) {
	finder := &fakeFinder{devices: Devices{
		{ID: "hw:1,0", Name: "USB Mic"},
		{ID: "hw:0,0", Name: "Internal"},
	}}
	sink := &recordingSink{}
	instance := NewWatcher(NewConfiguration(), finder, sink)

	require.NoError(t, instance.Check(context.Background()))
	assert.Equal(t, []string{"+hw:0,0 Internal", "+hw:1,0 USB Mic"}, sink.take())

	require.NoError(t, instance.Check(context.Background()))
	assert.Empty(t, sink.take(), "nothing changed")

	finder.set(Devices{
		{ID: "hw:0,0", Name: "Internal (renamed)"},
		{ID: "hw:2,0", Name: "Headset"},
	})
	require.NoError(t, instance.Check(context.Background()))
	assert.Equal(t, []string{"+hw:0,0 Internal (renamed)", "+hw:2,0 Headset", "-hw:1,0"}, sink.take())
}

func TestWatcher_Check_filter(t *testing.T) {
	finder := &fakeFinder{devices: Devices{
		{ID: "hw:0,0", Name: "Internal"},
		{ID: "hw:1,0", Name: "USB Mic"},
		{ID: "hw:2,0", Name: "USB Loopback"},
	}}
	sink := &recordingSink{}
	conf := NewConfiguration()
	conf.Included = common.MustNewRegexp(`^USB`)
	conf.Excluded = common.MustNewRegexp(`Loopback`)
	instance := NewWatcher(conf, finder, sink)

	require.NoError(t, instance.Check(context.Background()))
	assert.Equal(t, []string{"+hw:1,0 USB Mic"}, sink.take())
}

func TestWatcher_Check_retriesFailedReports(t *testing.T) {
	finder := &fakeFinder{devices: Devices{{ID: "hw:0,0", Name: "Internal"}}}
	sink := &recordingSink{fail: errors.New("expected")}
	instance := NewWatcher(NewConfiguration(), finder, sink)

	assert.Error(t, instance.Check(context.Background()))
	sink.take()

	sink.fail = nil
	require.NoError(t, instance.Check(context.Background()))
	assert.Equal(t, []string{"+hw:0,0 Internal"}, sink.take())
}

func TestWatcher_Check_finderFails(t *testing.T) {
	finder := &fakeFinder{err: errors.New("expected")}
	instance := NewWatcher(NewConfiguration(), finder, &recordingSink{})

	assert.EqualError(t, instance.Check(context.Background()), "expected")
}

func TestWatcher_Run(t *testing.T) {
	clk := clock.NewMock()
	finder := &fakeFinder{devices: Devices{{ID: "hw:0,0", Name: "Internal"}}}
	sink := &recordingSink{}
	instance := NewWatcher(NewConfiguration(), finder, sink, WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- instance.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(sink.peek()) == 1
	}, 5*time.Second, 5*time.Millisecond)

	finder.set(nil)
	clk.Add(2 * time.Second)
	assert.Eventually(t, func() bool {
		return len(sink.peek()) == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"+hw:0,0 Internal", "-hw:0,0"}, sink.take())

	cancel()
	assert.NoError(t, <-done)
}

func TestParsePCM(t *testing.T) {
	actual, err := parsePCM(strings.NewReader(`00-00: ALC257 Analog : ALC257 Analog : playback 1 : capture 1
00-03: HDMI 0 : HDMI 0 : playback 1
01-00: USB Audio : USB Audio : capture 1
`))
	require.NoError(t, err)
	assert.Equal(t, Devices{
		{ID: "hw:0,0", Name: "ALC257 Analog", Index: 0},
		{ID: "hw:1,0", Name: "USB Audio", Index: 1},
	}, actual)

	_, err = parsePCM(strings.NewReader("garbage"))
	assert.Error(t, err)
}

type fakeFinder struct {
	mutex   sync.Mutex
	devices Devices
	err     error
}

func (this *fakeFinder) FindDevices() (Devices, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.devices, this.err
}

func (this *fakeFinder) set(v Devices) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.devices = v
}

type recordingSink struct {
	mutex    sync.Mutex
	recorded []string
	fail     error
}

func (this *recordingSink) DeviceConnected(_ context.Context, channelID, displayName string) error {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.recorded = append(this.recorded, "+"+channelID+" "+displayName)
	return this.fail
}

func (this *recordingSink) DeviceDisconnected(_ context.Context, channelID string) error {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.recorded = append(this.recorded, "-"+channelID)
	return this.fail
}

func (this *recordingSink) peek() []string {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return append([]string(nil), this.recorded...)
}

func (this *recordingSink) take() []string {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	result := this.recorded
	this.recorded = nil
	return result
}

func TestStack_FindDevices_notInitialized(t *testing.T) {
	var instance Stack

	_, err := instance.FindDevices()
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, instance.Initialize())
	_, err = instance.FindDevices()
	assert.NoError(t, err)
	assert.NoError(t, instance.Dispose())
	assert.NoError(t, instance.Dispose())
}
