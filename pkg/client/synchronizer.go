package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/echocat/slf4g"

	"github.com/blaubaer/onair/pkg/lease"
	"github.com/blaubaer/onair/pkg/ticker"
)

var (
	ErrBusy         = errors.New("channel busy")
	ErrNotHeld      = errors.New("channel not held")
	ErrNoChannel    = errors.New("no channel selected")
	ErrNotConnected = errors.New("not connected to coordinator")
	ErrSleeping     = errors.New("synchronizer sleeps")
	ErrStopped      = errors.New("synchronizer stopped")

	errCoordinatorClosed = errors.New("coordinator closed the stream")
	errStreamEnded       = errors.New("stream ended")
)

type Option func(*Synchronizer)

func WithClock(c clock.Clock) Option {
	return func(this *Synchronizer) {
		this.clock = c
	}
}

// Synchronizer mirrors the registry of the coordinator for one client and
// forwards the intents of its UI. Every intent, event and timer is handled
// by one loop, one after another.
type Synchronizer struct {
	remote Remote
	conf   Configuration
	clock  clock.Clock

	inbox   chan any
	notices chan Notice
	done    chan struct{}

	// everything below is owned by the loop
	subscription Subscription
	stream       Stream
	generation   uint64
	sleeping     bool
	reconnecting bool
	backoff      time.Duration
	mirror       map[string]*mirrorEntry
	current      string
	alt          string
	watched      string
}

func New(remote Remote, conf Configuration, opts ...Option) *Synchronizer {
	result := &Synchronizer{
		remote:  remote,
		conf:    conf,
		clock:   clock.New(),
		inbox:   make(chan any, 64),
		notices: make(chan Notice, 256),
		done:    make(chan struct{}),
		mirror:  make(map[string]*mirrorEntry),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

// View is the local mirror as seen by the UI.
type View struct {
	Current     string
	Alternative string
	Displayed   string
	Channels    []ChannelState
}

func (this *Synchronizer) Notices() <-chan Notice {
	return this.notices
}

// Run connects to the coordinator and processes everything until ctx is done.
func (this *Synchronizer) Run(ctx context.Context) error {
	defer close(this.done)

	this.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			this.shutdown()
			return nil
		case msg := <-this.inbox:
			this.handle(ctx, msg)
		}
	}
}

func (this *Synchronizer) Select(ctx context.Context, channelID string) error {
	_, err := this.submit(ctx, intent{kind: intentSelect, channelID: channelID})
	return err
}

// Take acquires the lease of the channel, or of the displayed one if
// channelID is empty.
func (this *Synchronizer) Take(ctx context.Context, channelID string) error {
	_, err := this.submit(ctx, intent{kind: intentTake, channelID: channelID})
	return err
}

func (this *Synchronizer) Give(ctx context.Context, channelID string) error {
	_, err := this.submit(ctx, intent{kind: intentGive, channelID: channelID})
	return err
}

func (this *Synchronizer) Record(ctx context.Context, channelID, name string) error {
	_, err := this.submit(ctx, intent{kind: intentRecord, channelID: channelID, name: name})
	return err
}

func (this *Synchronizer) Stop(ctx context.Context, channelID string) error {
	_, err := this.submit(ctx, intent{kind: intentStop, channelID: channelID})
	return err
}

func (this *Synchronizer) Reset(ctx context.Context, channelID string) error {
	_, err := this.submit(ctx, intent{kind: intentReset, channelID: channelID})
	return err
}

// Sleep gives up every lease which is not capturing and closes the stream.
// Capturing leases are still renewed.
func (this *Synchronizer) Sleep(ctx context.Context) error {
	_, err := this.submit(ctx, intent{kind: intentSleep})
	return err
}

func (this *Synchronizer) Awaken(ctx context.Context) error {
	_, err := this.submit(ctx, intent{kind: intentAwaken})
	return err
}

func (this *Synchronizer) View(ctx context.Context) (View, error) {
	return this.submit(ctx, intent{kind: intentView})
}

type intentKind uint8

const (
	intentSelect = intentKind(iota)
	intentTake
	intentGive
	intentRecord
	intentStop
	intentReset
	intentSleep
	intentAwaken
	intentView
)

type intent struct {
	kind      intentKind
	channelID string
	name      string
	reply     chan intentResult
}

type intentResult struct {
	view View
	err  error
}

type eventMessage struct {
	generation uint64
	event      lease.Event
}

type streamEndedMessage struct {
	generation uint64
}

type renewDueMessage struct {
	channelID string
	ticker    *ticker.Ticker
}

type reconnectMessage struct{}

func (this *Synchronizer) submit(ctx context.Context, in intent) (View, error) {
	in.reply = make(chan intentResult, 1)

	select {
	case this.inbox <- in:
	case <-this.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}

	select {
	case result := <-in.reply:
		return result.view, result.err
	case <-this.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (this *Synchronizer) handle(ctx context.Context, msg any) {
	switch v := msg.(type) {
	case intent:
		view, err := this.handleIntent(ctx, v)
		v.reply <- intentResult{view, err}
	case eventMessage:
		if v.generation == this.generation && this.stream != nil {
			this.handleEvent(v.event)
		}
	case streamEndedMessage:
		if v.generation == this.generation && this.stream != nil {
			this.lost(errStreamEnded)
		}
	case renewDueMessage:
		this.renew(ctx, v.channelID, v.ticker)
	case reconnectMessage:
		this.reconnecting = false
		this.connect(ctx)
	default:
		panic(fmt.Errorf("illegal message: %T", msg))
	}
}

func (this *Synchronizer) handleIntent(ctx context.Context, in intent) (View, error) {
	switch in.kind {
	case intentSelect:
		return View{}, this.selectChannel(ctx, in.channelID)
	case intentTake:
		return View{}, this.take(ctx, in.channelID)
	case intentGive:
		return View{}, this.withHeld(in.channelID, func(e *mirrorEntry) error {
			return this.give(ctx, e)
		})
	case intentRecord:
		return View{}, this.withHeld(in.channelID, func(e *mirrorEntry) error {
			return this.call(ctx, e, "record", func(rCtx context.Context) error {
				return this.remote.Start(rCtx, e.channel.ID, e.token, in.name)
			})
		})
	case intentStop:
		return View{}, this.withHeld(in.channelID, func(e *mirrorEntry) error {
			return this.call(ctx, e, "stop", func(rCtx context.Context) error {
				return this.remote.Stop(rCtx, e.channel.ID, e.token)
			})
		})
	case intentReset:
		return View{}, this.withHeld(in.channelID, func(e *mirrorEntry) error {
			return this.call(ctx, e, "reset", func(rCtx context.Context) error {
				return this.remote.Reset(rCtx, e.channel.ID, e.token)
			})
		})
	case intentSleep:
		this.sleep(ctx)
		return View{}, nil
	case intentAwaken:
		this.sleeping = false
		this.backoff = 0
		this.connect(ctx)
		return View{}, nil
	case intentView:
		return this.view(), nil
	default:
		return View{}, fmt.Errorf("illegal intent: %d", in.kind)
	}
}

func (this *Synchronizer) handleEvent(ev lease.Event) {
	if ev.Kind == lease.EventClose {
		log.Info("Coordinator closed the stream.")
		this.lost(errCoordinatorClosed)
		return
	}
	if ev.Channel == nil || ev.ChannelID == "" {
		return
	}

	e := this.entry(ev.ChannelID)
	before := e.toState()
	e.channel = *ev.Channel

	if e.held() {
		showsLease := e.channel.Taken && e.channel.HolderID == e.holder
		if showsLease {
			e.confirmed = true
		} else if e.confirmed {
			reason := ev.Reason
			if reason == lease.ReasonNone && ev.Involuntary {
				reason = lease.ReasonExpired
			}
			log.With("channel", e.channel.ID).
				With("reason", reason).
				Info("Lease was taken away.")
			this.dropLease(e)
			this.notify(Notice{Kind: NoticeInvoluntary, ChannelID: e.channel.ID, Reason: reason, Channel: e.channel, State: e.state()})
		}
	}

	if ev.Kind == lease.EventAdd || ev.Kind == lease.EventRemove {
		this.reselect()
	}
	if after := e.toState(); after != before {
		this.notify(Notice{Kind: NoticeUpdate, ChannelID: e.channel.ID, Channel: after.Channel, State: after.State})
	}
}

func (this *Synchronizer) connect(ctx context.Context) {
	if this.sleeping || this.stream != nil || ctx.Err() != nil {
		return
	}

	rCtx, cancel := this.requestContext(ctx)
	defer cancel()

	sub, err := this.remote.Subscribe(rCtx)
	if err != nil {
		this.scheduleReconnect(err)
		return
	}
	stream, err := this.remote.Open(rCtx, sub.ID)
	if err != nil {
		this.scheduleReconnect(err)
		return
	}

	this.subscription = sub
	this.stream = stream
	this.generation++
	this.backoff = 0
	this.watched = ""
	// the snapshot which follows is newer than every response we got so far
	for _, e := range this.mirror {
		if e.held() {
			e.confirmed = true
		}
	}

	go this.forward(stream, this.generation)
	this.watch()

	log.With("subscribeId", sub.ID).
		With("renewInterval", sub.RenewInterval).
		Info("Subscribed to coordinator.")
}

func (this *Synchronizer) forward(stream Stream, generation uint64) {
	for ev := range stream.Events() {
		select {
		case this.inbox <- eventMessage{generation, ev}:
		case <-this.done:
			return
		}
	}
	select {
	case this.inbox <- streamEndedMessage{generation}:
	case <-this.done:
	}
}

// lost handles the loss of the stream: the mirror is reset and a new
// subscription is scheduled.
func (this *Synchronizer) lost(cause error) {
	this.dropStream()
	this.resetMirror()
	this.scheduleReconnect(cause)
}

func (this *Synchronizer) dropStream() {
	if this.stream == nil {
		return
	}
	_ = this.stream.Close()
	this.stream = nil
	this.generation++
	this.watched = ""
}

func (this *Synchronizer) resetMirror() {
	for _, e := range this.mirror {
		before := e.toState()
		e.channel = lease.Channel{
			ID:          e.channel.ID,
			DisplayName: e.channel.DisplayName,
		}
		if after := e.toState(); after != before {
			this.notify(Notice{Kind: NoticeUpdate, ChannelID: e.channel.ID, Channel: after.Channel, State: after.State})
		}
	}
	this.alt = ""
}

func (this *Synchronizer) scheduleReconnect(cause error) {
	if this.sleeping || this.reconnecting {
		return
	}

	switch {
	case this.backoff <= 0:
		this.backoff = this.conf.ReconnectMin
	default:
		this.backoff *= 2
	}
	if this.backoff > this.conf.ReconnectMax {
		this.backoff = this.conf.ReconnectMax
	}
	this.reconnecting = true

	log.WithError(cause).
		With("in", this.backoff).
		Warn("Not connected to coordinator. Reconnecting...")

	this.clock.AfterFunc(this.backoff, func() {
		select {
		case this.inbox <- reconnectMessage{}:
		case <-this.done:
		}
	})
}

func (this *Synchronizer) selectChannel(ctx context.Context, channelID string) error {
	if previous := this.current; previous != "" && previous != channelID {
		if e, ok := this.mirror[previous]; ok && e.held() && !e.channel.Capturing {
			if err := this.give(ctx, e); err != nil {
				log.WithError(err).
					With("channel", previous).
					Warn("Cannot give channel while switching away from it.")
			}
		}
	}
	this.current = channelID
	this.reselect()
	return nil
}

// reselect recalculates the alternative channel used while the current one
// is not connected and watches the displayed one.
func (this *Synchronizer) reselect() {
	this.alt = ""
	for _, id := range this.sortedIDs() {
		if id != this.current && this.mirror[id].channel.Connected {
			this.alt = id
			break
		}
	}
	this.watch()
}

func (this *Synchronizer) displayed() string {
	if e, ok := this.mirror[this.current]; ok && e.channel.Connected {
		return this.current
	}
	if this.alt != "" {
		return this.alt
	}
	return this.current
}

func (this *Synchronizer) watch() {
	target := this.displayed()
	if this.stream == nil || target == this.watched {
		return
	}
	if err := this.stream.Watch(target); err != nil {
		log.WithError(err).
			With("channel", target).
			Info("Cannot watch channel.")
		return
	}
	this.watched = target
}

func (this *Synchronizer) take(ctx context.Context, channelID string) error {
	if channelID == "" {
		channelID = this.displayed()
	}
	if channelID == "" {
		return ErrNoChannel
	}
	if this.sleeping {
		return ErrSleeping
	}
	if this.stream == nil {
		return ErrNotConnected
	}

	e := this.entry(channelID)
	if e.held() {
		return nil
	}

	rCtx, cancel := this.requestContext(ctx)
	defer cancel()

	token, err := this.remote.Take(rCtx, channelID, this.subscription.ID)
	if errors.Is(err, ErrRejected) {
		this.notify(Notice{Kind: NoticeBusy, ChannelID: channelID, Channel: e.channel, State: e.state()})
		return ErrBusy
	}
	if err != nil {
		this.notify(Notice{Kind: NoticeError, ChannelID: channelID, Err: err})
		return err
	}

	before := e.toState()
	e.token = token
	e.holder = this.subscription.ID
	e.confirmed = false
	e.channel.Taken = true
	e.channel.HolderID = this.subscription.ID
	e.renewal = ticker.New(this.clock, this.subscription.RenewInterval)
	go this.renewLoop(channelID, e.renewal)

	log.With("channel", channelID).
		Info("Channel taken.")
	if after := e.toState(); after != before {
		this.notify(Notice{Kind: NoticeUpdate, ChannelID: channelID, Channel: after.Channel, State: after.State})
	}
	return nil
}

func (this *Synchronizer) give(ctx context.Context, e *mirrorEntry) error {
	if e.channel.Capturing {
		return lease.ErrCaptureInProgress
	}

	rCtx, cancel := this.requestContext(ctx)
	defer cancel()

	err := this.remote.Release(rCtx, e.channel.ID, e.token)
	if err != nil && !errors.Is(err, ErrRejected) {
		this.notify(Notice{Kind: NoticeError, ChannelID: e.channel.ID, Err: err})
		return err
	}

	before := e.toState()
	this.dropLease(e)
	if err != nil {
		// our view was stale, the lease was already gone
		this.notify(Notice{Kind: NoticeInvoluntary, ChannelID: e.channel.ID, Channel: e.channel, State: e.state()})
		return err
	}

	e.channel.Taken = false
	e.channel.HolderID = ""
	log.With("channel", e.channel.ID).
		Info("Channel given.")
	if after := e.toState(); after != before {
		this.notify(Notice{Kind: NoticeUpdate, ChannelID: e.channel.ID, Channel: after.Channel, State: after.State})
	}
	return nil
}

func (this *Synchronizer) call(ctx context.Context, e *mirrorEntry, what string, fn func(context.Context) error) error {
	rCtx, cancel := this.requestContext(ctx)
	defer cancel()

	if err := fn(rCtx); err != nil {
		log.WithError(err).
			With("channel", e.channel.ID).
			Warnf("Cannot %s.", what)
		this.notify(Notice{Kind: NoticeError, ChannelID: e.channel.ID, Err: err})
		return err
	}
	return nil
}

func (this *Synchronizer) withHeld(channelID string, fn func(*mirrorEntry) error) error {
	if channelID == "" {
		channelID = this.displayed()
	}
	e, ok := this.mirror[channelID]
	if !ok || !e.held() {
		return ErrNotHeld
	}
	return fn(e)
}

func (this *Synchronizer) renewLoop(channelID string, t *ticker.Ticker) {
	for {
		if err := t.Next(context.Background()); err != nil {
			return
		}
		select {
		case this.inbox <- renewDueMessage{channelID, t}:
		case <-this.done:
			return
		}
	}
}

func (this *Synchronizer) renew(ctx context.Context, channelID string, t *ticker.Ticker) {
	e, ok := this.mirror[channelID]
	if !ok || !e.held() || e.renewal != t {
		return
	}

	rCtx, cancel := this.requestContext(ctx)
	defer cancel()

	token, err := this.remote.Renew(rCtx, channelID, e.token)
	if errors.Is(err, ErrRejected) {
		log.With("channel", channelID).
			Info("Lease could not be renewed.")
		this.dropLease(e)
		e.channel.Taken = false
		e.channel.HolderID = ""
		e.channel.Capturing = false
		this.notify(Notice{Kind: NoticeInvoluntary, ChannelID: channelID, Reason: lease.ReasonExpired, Channel: e.channel, State: e.state()})
		return
	}
	if err != nil {
		log.WithError(err).
			With("channel", channelID).
			Warn("Cannot renew lease. Retrying with next tick...")
		return
	}
	e.token = token
}

func (this *Synchronizer) sleep(ctx context.Context) {
	capturing := false
	for _, id := range this.sortedIDs() {
		e := this.mirror[id]
		if !e.held() {
			continue
		}
		if e.channel.Capturing {
			capturing = true
			continue
		}
		if err := this.give(ctx, e); err != nil {
			log.WithError(err).
				With("channel", id).
				Warn("Cannot give channel while going to sleep.")
		}
	}

	this.sleeping = true
	this.dropStream()

	if capturing {
		log.Info("Sleeping while capture continues.")
		this.notify(Notice{Kind: NoticeSleep})
	} else {
		log.Info("Nothing left to track.")
		this.notify(Notice{Kind: NoticeKill})
	}
}

func (this *Synchronizer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), this.conf.RequestTimeout)
	defer cancel()

	for _, id := range this.sortedIDs() {
		e := this.mirror[id]
		if e.held() && !e.channel.Capturing {
			if err := this.remote.Release(ctx, id, e.token); err != nil {
				log.WithError(err).
					With("channel", id).
					Info("Cannot give channel while shutting down.")
			}
		}
		if e.renewal != nil {
			e.renewal.Destroy()
		}
	}
	this.dropStream()
}

func (this *Synchronizer) dropLease(e *mirrorEntry) {
	if e.renewal != nil {
		e.renewal.Destroy()
		e.renewal = nil
	}
	e.token = ""
	e.holder = ""
	e.confirmed = false
}

func (this *Synchronizer) entry(channelID string) *mirrorEntry {
	e, ok := this.mirror[channelID]
	if !ok {
		e = &mirrorEntry{channel: lease.Channel{ID: channelID}}
		this.mirror[channelID] = e
	}
	return e
}

func (this *Synchronizer) view() View {
	result := View{
		Current:     this.current,
		Alternative: this.alt,
		Displayed:   this.displayed(),
	}
	for _, id := range this.sortedIDs() {
		result.Channels = append(result.Channels, this.mirror[id].toState())
	}
	return result
}

func (this *Synchronizer) sortedIDs() []string {
	result := make([]string, 0, len(this.mirror))
	for id := range this.mirror {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

func (this *Synchronizer) notify(n Notice) {
	select {
	case this.notices <- n:
	default:
		log.With("notice", n).
			Debug("Notice queue full. Dropping notice.")
	}
}

func (this *Synchronizer) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if this.conf.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, this.conf.RequestTimeout)
}
