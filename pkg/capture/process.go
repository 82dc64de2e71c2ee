package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	log "github.com/echocat/slf4g"
	"go.uber.org/multierr"

	"github.com/blaubaer/onair/pkg/lease"
)

var (
	ErrAlreadyRunning = errors.New("capture already running")
	ErrNoCommand      = errors.New("no capture command configured")
)

type Option func(*Process)

// WithDeviceNames resolves the value of the {device} placeholder. Without it
// the channel id is used.
func WithDeviceNames(fn func(channelID string) string) Option {
	return func(this *Process) {
		this.deviceName = fn
	}
}

// WithExitHandler is called whenever an encoder exits without being asked
// to. It is called without any lock held.
func WithExitHandler(fn func(channelID string)) Option {
	return func(this *Process) {
		this.onExit = fn
	}
}

// Process runs one external encoder process per capturing channel.
type Process struct {
	conf       Configuration
	deviceName func(string) string
	onExit     func(string)

	mutex   sync.Mutex
	running map[string]*run
}

type run struct {
	cmd      *exec.Cmd
	output   string
	exited   chan struct{}
	stopping bool
}

func NewProcess(conf Configuration, opts ...Option) *Process {
	result := &Process{
		conf:       conf,
		deviceName: func(channelID string) string { return channelID },
		onExit:     func(string) {},
		running:    make(map[string]*run),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

func (this *Process) StartCapture(_ context.Context, channelID, targetName string) error {
	if len(this.conf.Command) == 0 {
		return ErrNoCommand
	}

	this.mutex.Lock()
	defer this.mutex.Unlock()

	if _, ok := this.running[channelID]; ok {
		return fmt.Errorf("cannot start capture of %s: %w", channelID, ErrAlreadyRunning)
	}

	if err := os.MkdirAll(this.conf.Directory, 0755); err != nil {
		return fmt.Errorf("cannot create capture directory %q: %w", this.conf.Directory, err)
	}

	output := this.conf.output(targetName)
	args := this.conf.args(channelID, this.deviceName(channelID), targetName, output)
	// The encoder must outlive the request which started it.
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot start encoder %q for %s: %w", args[0], channelID, err)
	}

	r := &run{
		cmd:    cmd,
		output: output,
		exited: make(chan struct{}),
	}
	this.running[channelID] = r
	go this.wait(channelID, r)

	log.With("channel", channelID).
		With("output", output).
		With("pid", cmd.Process.Pid).
		Info("Capture started.")
	return nil
}

func (this *Process) wait(channelID string, r *run) {
	err := r.cmd.Wait()

	this.mutex.Lock()
	if this.running[channelID] == r {
		delete(this.running, channelID)
	}
	unexpected := !r.stopping
	this.mutex.Unlock()
	close(r.exited)

	if !unexpected {
		return
	}
	log.WithError(err).
		With("channel", channelID).
		With("output", r.output).
		Warn("Encoder exited unexpectedly.")
	this.onExit(channelID)
}

// StopCapture asks the encoder of the channel to finish and waits until it
// exits. If ctx is done before, the encoder gets killed. Unless keep is set
// the artifact is removed afterward.
func (this *Process) StopCapture(ctx context.Context, channelID string, keep bool) error {
	this.mutex.Lock()
	r, ok := this.running[channelID]
	if ok {
		r.stopping = true
		delete(this.running, channelID)
	}
	this.mutex.Unlock()

	if !ok {
		return nil
	}

	err := this.terminate(ctx, r)
	if !keep {
		if rErr := os.Remove(r.output); rErr != nil && !os.IsNotExist(rErr) {
			err = multierr.Append(err, fmt.Errorf("cannot remove artifact %q: %w", r.output, rErr))
		}
	}

	log.With("channel", channelID).
		With("output", r.output).
		With("kept", keep).
		Info("Capture stopped.")
	return err
}

func (this *Process) terminate(ctx context.Context, r *run) error {
	if err := r.cmd.Process.Signal(os.Interrupt); err != nil {
		// Not every platform supports interrupts.
		_ = r.cmd.Process.Kill()
	}

	if this.conf.StopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, this.conf.StopTimeout)
		defer cancel()
	}

	select {
	case <-r.exited:
		return nil
	case <-ctx.Done():
		_ = r.cmd.Process.Kill()
		<-r.exited
		return fmt.Errorf("encoder did not finish in time and was killed: %w: %w", lease.ErrCaptureAborted, ctx.Err())
	}
}

func (this *Process) Running(channelID string) bool {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	_, ok := this.running[channelID]
	return ok
}

// Dispose stops every running encoder and keeps its artifact.
func (this *Process) Dispose() (rErr error) {
	this.mutex.Lock()
	ids := make([]string, 0, len(this.running))
	for id := range this.running {
		ids = append(ids, id)
	}
	this.mutex.Unlock()

	for _, id := range ids {
		rErr = multierr.Append(rErr, this.StopCapture(context.Background(), id, true))
	}
	return rErr
}
