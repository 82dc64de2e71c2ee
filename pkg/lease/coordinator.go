package lease

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/echocat/slf4g"

	"github.com/blaubaer/onair/pkg/serializer"
)

// Capturer starts and stops the physical capture of a channel. StopCapture
// returns an error wrapping ErrCaptureAborted if the capture ended anyway.
type Capturer interface {
	StartCapture(ctx context.Context, channelID, targetName string) error
	StopCapture(ctx context.Context, channelID string, keep bool) error
}

// Publisher receives every committed event. Publish must not block and must
// not call back into the Coordinator.
type Publisher interface {
	Publish(Event)
}

type Operation string

const (
	OpTake         = Operation("take")
	OpRenew        = Operation("renew")
	OpRelease      = Operation("release")
	OpStart        = Operation("start")
	OpStop         = Operation("stop")
	OpReset        = Operation("reset")
	OpExpire       = Operation("expire")
	OpConnect      = Operation("connect")
	OpDisconnect   = Operation("disconnect")
	OpCaptureFact  = Operation("capture")
	OpReleaseOwner = Operation("releaseHolder")
)

type Observer interface {
	OperationDone(op Operation, kind ErrorKind)
	LeaseEnded(reason Reason, involuntary bool)
	RegistryChanged(channels []Channel)
}

type Option func(*Coordinator)

func WithClock(c clock.Clock) Option {
	return func(this *Coordinator) {
		this.clock = c
	}
}

func WithObserver(o Observer) Option {
	return func(this *Coordinator) {
		this.observer = o
	}
}

// Coordinator owns the channel registry and applies every lease operation
// while holding the serializer turn of the affected channel.
type Coordinator struct {
	conf      Configuration
	capturer  Capturer
	publisher Publisher
	clock     clock.Clock
	observer  Observer

	// mutex guards entries, sequence and the committed state of every entry.
	mutex    sync.Mutex
	entries  map[string]*entry
	sequence uint64
	closed   bool
}

type entry struct {
	serializer *serializer.Serializer
	channel    Channel
	generation uint64
	expiresAt  time.Time
	expiry     *clock.Timer
}

func NewCoordinator(conf Configuration, capturer Capturer, publisher Publisher, opts ...Option) *Coordinator {
	result := &Coordinator{
		conf:      conf,
		capturer:  capturer,
		publisher: publisher,
		clock:     clock.New(),
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

func (this *Coordinator) Configuration() Configuration {
	return this.conf
}

func (this *Coordinator) Take(ctx context.Context, channelID, requesterID string) (result Lease, rErr error) {
	defer func() { this.done(OpTake, channelID, rErr) }()

	rErr = this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if current.Taken {
			return ErrAlreadyTaken
		}
		if !current.Connected {
			return ErrDisconnected
		}
		token, err := newToken()
		if err != nil {
			return operationFailed(err)
		}

		next := current
		next.Taken = true
		next.HolderID = requesterID
		next.LeaseToken = token
		next.CaptureArtifactName = ""

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.arm(channelID, e)
		this.commit(e, next, &Event{Kind: EventTake})
		result = Lease{channelID, token, requesterID, e.expiresAt}
		return nil
	})
	return result, rErr
}

func (this *Coordinator) Renew(ctx context.Context, channelID, token string) (result Lease, rErr error) {
	defer func() { this.done(OpRenew, channelID, rErr) }()

	rErr = this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if err := checkToken(current, token, ErrInvalidToken); err != nil {
			return err
		}
		next, err := newToken()
		if err != nil {
			return operationFailed(err)
		}

		updated := current
		updated.LeaseToken = next

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.arm(channelID, e)
		this.commit(e, updated, nil)
		result = Lease{channelID, next, current.HolderID, e.expiresAt}
		return nil
	})
	return result, rErr
}

func (this *Coordinator) Release(ctx context.Context, channelID, token string) (rErr error) {
	defer func() { this.done(OpRelease, channelID, rErr) }()

	return this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if err := checkToken(current, token, ErrInvalidToken); err != nil {
			return err
		}
		if current.Capturing {
			return ErrCaptureInProgress
		}

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.disarm(e)
		this.commit(e, current.released(), &Event{Kind: EventRelease})
		this.leaseEnded(ReasonNone, false)
		return nil
	})
}

func (this *Coordinator) Start(ctx context.Context, channelID, token, targetName string) (rErr error) {
	defer func() { this.done(OpStart, channelID, rErr) }()

	return this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if err := checkToken(current, token, ErrNotTaken); err != nil {
			return err
		}
		if current.Capturing {
			return ErrCaptureInProgress
		}
		if targetName == "" {
			targetName = fmt.Sprintf("%s-%s", channelID, this.clock.Now().UTC().Format("20060102-150405"))
		}
		if err := this.capturer.StartCapture(ctx, channelID, targetName); err != nil {
			return operationFailed(fmt.Errorf("cannot start capture of channel %s: %w", channelID, err))
		}

		next := current
		next.Capturing = true
		next.CaptureArtifactName = targetName

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.commit(e, next, &Event{Kind: EventStatus})
		return nil
	})
}

func (this *Coordinator) Stop(ctx context.Context, channelID, token string) (rErr error) {
	defer func() { this.done(OpStop, channelID, rErr) }()

	return this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if err := checkToken(current, token, ErrNotTaken); err != nil {
			return err
		}
		if !current.Capturing {
			return nil
		}
		if err := this.stopCapture(ctx, channelID, true); err != nil {
			return operationFailed(fmt.Errorf("cannot stop capture of channel %s: %w", channelID, err))
		}

		next := current
		next.Capturing = false

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.commit(e, next, &Event{Kind: EventStatus})
		return nil
	})
}

// stopCapture treats an aborted capture as stopped.
func (this *Coordinator) stopCapture(ctx context.Context, channelID string, keep bool) error {
	err := this.capturer.StopCapture(ctx, channelID, keep)
	if errors.Is(err, ErrCaptureAborted) {
		log.WithError(err).
			With("channel", channelID).
			Warn("Capture did not finish cleanly.")
		return nil
	}
	return err
}

// Reset discards the running or last capture of the channel.
func (this *Coordinator) Reset(ctx context.Context, channelID, token string) (rErr error) {
	defer func() { this.done(OpReset, channelID, rErr) }()

	return this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if err := checkToken(current, token, ErrNotTaken); err != nil {
			return err
		}
		if current.Capturing {
			if err := this.stopCapture(ctx, channelID, false); err != nil {
				return operationFailed(fmt.Errorf("cannot reset capture of channel %s: %w", channelID, err))
			}
		}

		next := current
		next.Capturing = false
		next.CaptureArtifactName = ""

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.commit(e, next, &Event{Kind: EventReset})
		return nil
	})
}

// DeviceConnected registers a newly seen or reattached device.
func (this *Coordinator) DeviceConnected(ctx context.Context, channelID, displayName string) (rErr error) {
	defer func() { this.done(OpConnect, channelID, rErr) }()

	this.mutex.Lock()
	if this.closed {
		this.mutex.Unlock()
		return ErrClosed
	}
	if _, ok := this.entries[channelID]; !ok {
		this.entries[channelID] = &entry{
			serializer: serializer.New(),
			channel:    Channel{ID: channelID},
		}
	}
	this.mutex.Unlock()

	return this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		next := current
		next.Connected = true
		if displayName != "" {
			next.DisplayName = displayName
		}
		if next == current {
			return nil
		}

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.commit(e, next, &Event{Kind: EventAdd})
		log.With("channel", channelID).
			With("name", next.DisplayName).
			Info("Device connected.")
		return nil
	})
}

// DeviceDisconnected marks the channel as gone. A lease on it becomes void
// immediately.
func (this *Coordinator) DeviceDisconnected(ctx context.Context, channelID string) (rErr error) {
	defer func() { this.done(OpDisconnect, channelID, rErr) }()

	return this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if !current.Connected {
			return nil
		}
		if current.Taken {
			current = this.forceRelease(e, current, ReasonDisconnected)
		}

		next := current
		next.Connected = false

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.commit(e, next, &Event{Kind: EventRemove})
		log.With("channel", channelID).
			Info("Device disconnected.")
		return nil
	})
}

// CaptureStarted records a capture the capture process reports on its own.
func (this *Coordinator) CaptureStarted(ctx context.Context, channelID, targetName string) (rErr error) {
	defer func() { this.done(OpCaptureFact, channelID, rErr) }()

	return this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if !current.Taken {
			log.With("channel", channelID).
				With("name", targetName).
				Warn("Capture reported on a free channel. Ignoring...")
			return nil
		}
		if current.Capturing && current.CaptureArtifactName == targetName {
			return nil
		}

		next := current
		next.Capturing = true
		next.CaptureArtifactName = targetName

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.commit(e, next, &Event{Kind: EventStatus})
		return nil
	})
}

// CaptureStopped records a capture that ended without being asked to, for
// example because the encoder exited.
func (this *Coordinator) CaptureStopped(ctx context.Context, channelID string, kept bool) (rErr error) {
	defer func() { this.done(OpCaptureFact, channelID, rErr) }()

	return this.serialized(ctx, channelID, func(e *entry, current Channel) error {
		if !current.Capturing {
			return nil
		}

		next := current
		next.Capturing = false
		if !kept {
			next.CaptureArtifactName = ""
		}

		this.mutex.Lock()
		defer this.mutex.Unlock()
		this.commit(e, next, &Event{Kind: EventStatus})
		log.With("channel", channelID).
			With("kept", kept).
			Info("Capture stopped by the capture process.")
		return nil
	})
}

// ReleaseHolder releases every lease of holderID which is not capturing.
// Capturing leases stay until they get released or expire.
func (this *Coordinator) ReleaseHolder(ctx context.Context, holderID string) (rErr error) {
	defer func() { this.done(OpReleaseOwner, holderID, rErr) }()

	var candidates []string
	this.mutex.Lock()
	for id, e := range this.entries {
		if e.channel.Taken && e.channel.HolderID == holderID {
			candidates = append(candidates, id)
		}
	}
	this.mutex.Unlock()
	sort.Strings(candidates)

	for _, channelID := range candidates {
		if err := this.serialized(ctx, channelID, func(e *entry, current Channel) error {
			if !current.Taken || current.HolderID != holderID || current.Capturing {
				return nil
			}

			this.mutex.Lock()
			defer this.mutex.Unlock()
			this.disarm(e)
			this.commit(e, current.released(), &Event{Kind: EventRelease, Reason: ReasonSessionClosed})
			this.leaseEnded(ReasonSessionClosed, false)
			log.With("channel", channelID).
				With("holder", holderID).
				Info("Lease of closed session released.")
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a consistent copy of the registry.
func (this *Coordinator) Snapshot() Snapshot {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	return Snapshot{
		Sequence: this.sequence,
		Channels: this.views(),
	}
}

// Close stops every expiry timer. Every following operation fails.
func (this *Coordinator) Close() error {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	this.closed = true
	for _, e := range this.entries {
		if e.expiry != nil {
			e.expiry.Stop()
			e.expiry = nil
		}
	}
	return nil
}

func (this *Coordinator) expire(channelID string, generation uint64) {
	err := this.serialized(context.Background(), channelID, func(e *entry, current Channel) error {
		this.mutex.Lock()
		stale := e.generation != generation
		this.mutex.Unlock()
		if stale || !current.Taken {
			return nil
		}

		log.With("channel", channelID).
			With("holder", current.HolderID).
			Info("Lease expired.")
		this.forceRelease(e, current, ReasonExpired)
		return nil
	})
	this.done(OpExpire, channelID, err)
}

// forceRelease takes a lease away from its holder. A running capture gets
// stopped and its artifact discarded, bounded by CaptureStopTimeout. The
// outcome of the stop does not matter.
func (this *Coordinator) forceRelease(e *entry, current Channel, reason Reason) Channel {
	next := current.released()
	if current.Capturing {
		this.stopCaptureBounded(current.ID)
		next.CaptureArtifactName = ""
	}

	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.disarm(e)
	this.commit(e, next, &Event{Kind: EventRelease, Involuntary: true, Reason: reason})
	this.leaseEnded(reason, true)
	return next
}

func (this *Coordinator) stopCaptureBounded(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), this.conf.CaptureStopTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- this.capturer.StopCapture(ctx, channelID, false)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.WithError(err).
				With("channel", channelID).
				Warn("Cannot stop capture while forcing release. Ignoring...")
		}
	case <-ctx.Done():
		log.With("channel", channelID).
			With("timeout", this.conf.CaptureStopTimeout).
			Warn("Capture did not stop in time while forcing release. Ignoring...")
	}
}

// serialized runs fn inside the serializer turn of the channel, handing it
// the committed state as of the start of the turn.
func (this *Coordinator) serialized(ctx context.Context, channelID string, fn func(*entry, Channel) error) error {
	this.mutex.Lock()
	if this.closed {
		this.mutex.Unlock()
		return ErrClosed
	}
	e, ok := this.entries[channelID]
	this.mutex.Unlock()
	if !ok {
		return ErrUnknownChannel
	}

	turn := e.serializer.Acquire()
	if err := turn.Wait(ctx); err != nil {
		return operationFailed(err)
	}
	defer turn.End()

	this.mutex.Lock()
	current := e.channel
	closed := this.closed
	this.mutex.Unlock()
	if closed {
		return ErrClosed
	}

	return fn(e, current)
}

// commit stores next as the committed state of e and publishes ev. Requires
// the mutex.
func (this *Coordinator) commit(e *entry, next Channel, ev *Event) {
	e.channel = next
	if ev != nil {
		this.sequence++
		view := next.View()
		ev.Sequence = this.sequence
		ev.ChannelID = next.ID
		ev.Channel = &view
		if p := this.publisher; p != nil {
			p.Publish(*ev)
		}
	}
	if o := this.observer; o != nil {
		o.RegistryChanged(this.views())
	}
}

// arm (re)starts the expiry timer of e. Requires the mutex.
func (this *Coordinator) arm(channelID string, e *entry) {
	this.disarm(e)
	generation := e.generation
	e.expiresAt = this.clock.Now().Add(this.conf.ExpiresAfter())
	e.expiry = this.clock.AfterFunc(this.conf.ExpiresAfter(), func() {
		this.expire(channelID, generation)
	})
}

// disarm stops the expiry timer of e and invalidates a pending expiry.
// Requires the mutex.
func (this *Coordinator) disarm(e *entry) {
	e.generation++
	e.expiresAt = time.Time{}
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
}

// views requires the mutex.
func (this *Coordinator) views() []Channel {
	result := make([]Channel, 0, len(this.entries))
	for _, e := range this.entries {
		result = append(result, e.channel.View())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

func (this *Coordinator) leaseEnded(reason Reason, involuntary bool) {
	if o := this.observer; o != nil {
		o.LeaseEnded(reason, involuntary)
	}
}

func (this *Coordinator) done(op Operation, subject string, err error) {
	kind := Classify(err)
	if o := this.observer; o != nil {
		o.OperationDone(op, kind)
	}
	if err == nil {
		return
	}

	logger := log.With("operation", op).
		With("subject", subject).
		WithError(err)
	switch kind {
	case KindContention:
		logger.Debug("Operation rejected.")
	case KindAuthorization, KindConflict:
		logger.Info("Operation rejected.")
	default:
		logger.Error("Operation failed.")
	}
}

func checkToken(current Channel, token string, whenFree error) error {
	if !current.Taken {
		return whenFree
	}
	if token == "" || current.LeaseToken != token {
		return ErrInvalidToken
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cannot generate lease token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
