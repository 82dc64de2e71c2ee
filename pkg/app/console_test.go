package app

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaubaer/onair/pkg/client"
	"github.com/blaubaer/onair/pkg/lease"
)

func TestConsole_execute(t *testing.T) {
	cases := []struct {
		line     string
		expected string
	}{
		{"select mic1", "select mic1"},
		{"take", "take "},
		{"take mic2", "take mic2"},
		{"give", "give "},
		{"record interview", "record  interview"},
		{"record interview mic2", "record mic2 interview"},
		{"stop", "stop "},
		{"reset mic1", "reset mic1"},
		{"sleep", "sleep"},
		{"awaken", "awaken"},
		{"  take   mic3  ", "take mic3"},
	}
	for _, c := range cases {
		t.Run(c.line, func(t *testing.T) {
			instance, fake, _ := newTestConsole()

			require.NoError(t, instance.execute(context.Background(), c.line))
			assert.Equal(t, []string{c.expected}, fake.calls)
		})
	}
}

func TestConsole_execute_rejected(t *testing.T) {
	instance, fake, _ := newTestConsole()
	ctx := context.Background()

	assert.NoError(t, instance.execute(ctx, "   "))
	assert.Error(t, instance.execute(ctx, "select"))
	assert.Error(t, instance.execute(ctx, "record"))
	assert.Error(t, instance.execute(ctx, "record a b c"))
	assert.Error(t, instance.execute(ctx, "explode"))
	assert.ErrorIs(t, instance.execute(ctx, "exit"), errExit)
	assert.Empty(t, fake.calls)

	fake.err = client.ErrBusy
	assert.ErrorIs(t, instance.execute(ctx, "take"), client.ErrBusy)
}

func TestConsole_list(t *testing.T) {
	instance, fake, out := newTestConsole()
	fake.view = client.View{
		Current:   "mic1",
		Displayed: "mic2",
		Channels: []client.ChannelState{
			{Channel: lease.Channel{ID: "mic1", DisplayName: "Desk"}, State: client.StateUnavailable},
			{Channel: lease.Channel{ID: "mic2", DisplayName: "Booth", Connected: true, Taken: true, Capturing: true, CaptureArtifactName: "interview"}, State: client.StateRecording, Held: true},
		},
	}

	require.NoError(t, instance.execute(context.Background(), "list"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "CHANNEL")
	assert.True(t, strings.HasPrefix(lines[1], "-"))
	assert.Contains(t, lines[1], "unavailable")
	assert.True(t, strings.HasPrefix(lines[2], "*"))
	assert.Contains(t, lines[2], "recording")
	assert.Contains(t, lines[2], "interview")
}

func TestConsole_list_empty(t *testing.T) {
	instance, _, out := newTestConsole()

	require.NoError(t, instance.execute(context.Background(), "list"))
	assert.Equal(t, "No channels known.\n", out.String())
}

func TestConsole_log(t *testing.T) {
	instance, _, out := newTestConsole()
	instance.logs = bytes.NewBufferString("first\nsecond\n")

	require.NoError(t, instance.execute(context.Background(), "log"))
	assert.Equal(t, "first\nsecond\n", out.String())
}

func TestConsole_printNotices(t *testing.T) {
	instance, fake, out := newTestConsole()
	fake.notices <- client.Notice{Kind: client.NoticeBusy, ChannelID: "mic1"}
	close(fake.notices)

	instance.printNotices(context.Background())
	assert.Equal(t, "busy mic1\n", out.String())
}

func newTestConsole() (*console, *fakeController, *bytes.Buffer) {
	fake := &fakeController{notices: make(chan client.Notice, 8)}
	out := new(bytes.Buffer)
	return &console{synchronizer: fake, out: out}, fake, out
}

type fakeController struct {
	calls   []string
	view    client.View
	err     error
	notices chan client.Notice
}

func (this *fakeController) record(call string) error {
	if this.err != nil {
		return this.err
	}
	this.calls = append(this.calls, call)
	return nil
}

func (this *fakeController) Select(_ context.Context, channelID string) error {
	return this.record("select " + channelID)
}

func (this *fakeController) Take(_ context.Context, channelID string) error {
	return this.record("take " + channelID)
}

func (this *fakeController) Give(_ context.Context, channelID string) error {
	return this.record("give " + channelID)
}

func (this *fakeController) Record(_ context.Context, channelID, name string) error {
	return this.record("record " + channelID + " " + name)
}

func (this *fakeController) Stop(_ context.Context, channelID string) error {
	return this.record("stop " + channelID)
}

func (this *fakeController) Reset(_ context.Context, channelID string) error {
	return this.record("reset " + channelID)
}

func (this *fakeController) Sleep(context.Context) error {
	return this.record("sleep")
}

func (this *fakeController) Awaken(context.Context) error {
	return this.record("awaken")
}

func (this *fakeController) View(context.Context) (client.View, error) {
	if this.err != nil {
		return client.View{}, this.err
	}
	return this.view, nil
}

func (this *fakeController) Notices() <-chan client.Notice {
	return this.notices
}
