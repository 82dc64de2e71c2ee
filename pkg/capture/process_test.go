package capture

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaubaer/onair/pkg/lease"
)

func TestConfiguration_args(t *testing.T) {
	conf := Configuration{
		Command:   []string{"enc", "-i", "hw:" + PlaceholderChannel, "--title", PlaceholderName, "--dev=" + PlaceholderDevice, PlaceholderOutput},
		Directory: "/tmp/captures",
		Extension: ".flac",
	}

	output := conf.output("my take/1")
	assert.Equal(t, filepath.Join("/tmp/captures", "my_take_1.flac"), output)
	assert.Equal(t,
		[]string{"enc", "-i", "hw:mic1", "--title", "my take/1", "--dev=USB Mic", output},
		conf.args("mic1", "USB Mic", "my take/1", output),
	)
}

func TestProcess_StartStop(t *testing.T) {
	skipWithoutShell(t)
	conf := shellConfiguration(t, `echo data > "$0"; exec sleep 30`)
	instance := NewProcess(conf)

	require.NoError(t, instance.StartCapture(context.Background(), "mic1", "take1"))
	assert.True(t, instance.Running("mic1"))
	assert.ErrorIs(t, instance.StartCapture(context.Background(), "mic1", "take2"), ErrAlreadyRunning)

	output := filepath.Join(conf.Directory, "take1.wav")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(output)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, instance.StopCapture(context.Background(), "mic1", true))
	assert.False(t, instance.Running("mic1"))
	assert.FileExists(t, output)

	// nothing running anymore
	assert.NoError(t, instance.StopCapture(context.Background(), "mic1", true))
}

func TestProcess_StopCapture_discard(t *testing.T) {
	skipWithoutShell(t)
	conf := shellConfiguration(t, `echo data > "$0"; exec sleep 30`)
	instance := NewProcess(conf)

	require.NoError(t, instance.StartCapture(context.Background(), "mic1", "take1"))
	output := filepath.Join(conf.Directory, "take1.wav")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(output)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, instance.StopCapture(context.Background(), "mic1", false))
	assert.NoFileExists(t, output)
}

func TestProcess_StopCapture_killsStubbornEncoder(t *testing.T) {
	skipWithoutShell(t)
	conf := shellConfiguration(t, `trap "" INT; while true; do sleep 1; done`)
	conf.StopTimeout = 200 * time.Millisecond
	instance := NewProcess(conf)

	require.NoError(t, instance.StartCapture(context.Background(), "mic1", "take1"))
	// give the shell a moment to install its trap
	time.Sleep(100 * time.Millisecond)

	err := instance.StopCapture(context.Background(), "mic1", true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, lease.ErrCaptureAborted)
	assert.False(t, instance.Running("mic1"))
}

func TestProcess_unexpectedExit(t *testing.T) {
	skipWithoutShell(t)
	conf := shellConfiguration(t, `exit 3`)
	exited := make(chan string, 1)
	instance := NewProcess(conf, WithExitHandler(func(channelID string) {
		exited <- channelID
	}))

	require.NoError(t, instance.StartCapture(context.Background(), "mic1", "take1"))

	select {
	case channelID := <-exited:
		assert.Equal(t, "mic1", channelID)
	case <-time.After(5 * time.Second):
		t.Fatal("exit was not reported")
	}
	assert.False(t, instance.Running("mic1"))
}

func TestProcess_StartCapture_noCommand(t *testing.T) {
	instance := NewProcess(Configuration{Directory: t.TempDir()})

	assert.ErrorIs(t, instance.StartCapture(context.Background(), "mic1", "take1"), ErrNoCommand)
}

func TestProcess_Dispose(t *testing.T) {
	skipWithoutShell(t)
	instance := NewProcess(shellConfiguration(t, `exec sleep 30`))

	require.NoError(t, instance.StartCapture(context.Background(), "mic1", "a"))
	require.NoError(t, instance.StartCapture(context.Background(), "mic2", "b"))

	assert.NoError(t, instance.Dispose())
	assert.False(t, instance.Running("mic1"))
	assert.False(t, instance.Running("mic2"))
}

func shellConfiguration(t *testing.T, script string) Configuration {
	return Configuration{
		Command:     []string{"sh", "-c", script, PlaceholderOutput},
		Directory:   t.TempDir(),
		Extension:   "wav",
		StopTimeout: 5 * time.Second,
	}
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a posix shell")
	}
}
