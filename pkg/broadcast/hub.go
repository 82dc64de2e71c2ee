// Package broadcast fans out registry events to every subscribed session.
//
// Delivery is best-effort and at most once. Every session has a bounded queue;
// a session which cannot keep up gets dropped and has to subscribe again,
// which gives it a fresh snapshot. Per session the order of events is kept.
package broadcast

import (
	"errors"
	"sync"

	log "github.com/echocat/slf4g"
	"github.com/google/uuid"

	"github.com/blaubaer/onair/pkg/lease"
)

const DefaultQueueSize = 64

var ErrClosed = errors.New("hub closed")

type Hub struct {
	queueSize int

	mutex    sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		queueSize: queueSize,
		sessions:  make(map[string]*Session),
	}
}

func (this *Hub) Subscribe() (*Session, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.closed {
		return nil, ErrClosed
	}

	result := &Session{
		id:    uuid.New().String(),
		queue: make(chan lease.Event, this.queueSize),
	}
	this.sessions[result.id] = result

	log.With("session", result.id).
		Debug("Session subscribed.")
	return result, nil
}

func (this *Hub) Get(id string) (*Session, bool) {
	this.mutex.RLock()
	defer this.mutex.RUnlock()

	result, ok := this.sessions[id]
	return result, ok
}

// Unsubscribe removes the session and closes its queue. Returns false if
// there was no such session.
func (this *Hub) Unsubscribe(id string) bool {
	this.mutex.Lock()
	session, ok := this.sessions[id]
	delete(this.sessions, id)
	this.mutex.Unlock()

	if !ok {
		return false
	}
	session.close()
	log.With("session", id).
		Debug("Session unsubscribed.")
	return true
}

func (this *Hub) Len() int {
	this.mutex.RLock()
	defer this.mutex.RUnlock()

	return len(this.sessions)
}

// Publish enqueues ev to every session. It never blocks.
func (this *Hub) Publish(ev lease.Event) {
	var lagging []string

	this.mutex.RLock()
	for id, session := range this.sessions {
		if !session.offer(ev) {
			lagging = append(lagging, id)
			continue
		}
		if status, ok := session.statusFor(ev); ok && !session.offer(status) {
			lagging = append(lagging, id)
		}
	}
	this.mutex.RUnlock()

	for _, id := range lagging {
		log.With("session", id).
			With("event", ev).
			Warn("Session cannot keep up with events. Dropping it...")
		this.Unsubscribe(id)
	}
}

// Close sends a close event to every session and tears all of them down. A
// session with a full queue loses its oldest event in favor of the close event.
func (this *Hub) Close() error {
	this.mutex.Lock()
	sessions := this.sessions
	this.sessions = make(map[string]*Session)
	this.closed = true
	this.mutex.Unlock()

	for _, session := range sessions {
		session.offerLast(lease.Event{Kind: lease.EventClose})
		session.close()
	}
	return nil
}

type Session struct {
	id    string
	queue chan lease.Event

	mutex    sync.Mutex
	interest string
	closed   bool
}

func (this *Session) ID() string {
	return this.id
}

// Events is closed as soon as the session got unsubscribed.
func (this *Session) Events() <-chan lease.Event {
	return this.queue
}

// Watch sets the channel this session displays. After every event on it the
// session additionally receives a status event.
func (this *Session) Watch(channelID string) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.interest = channelID
}

func (this *Session) Interest() string {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.interest
}

func (this *Session) offer(ev lease.Event) bool {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.closed {
		return true
	}
	select {
	case this.queue <- ev:
		return true
	default:
		return false
	}
}

func (this *Session) offerLast(ev lease.Event) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.closed {
		return
	}
	for {
		select {
		case this.queue <- ev:
			return
		default:
		}
		// Only the consumer receives concurrently, so this makes room.
		select {
		case <-this.queue:
		default:
		}
	}
}

func (this *Session) statusFor(ev lease.Event) (lease.Event, bool) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if ev.Kind == lease.EventStatus || ev.Kind == lease.EventClose || ev.Channel == nil {
		return lease.Event{}, false
	}
	if this.interest == "" || this.interest != ev.ChannelID {
		return lease.Event{}, false
	}
	return lease.Event{
		Kind:      lease.EventStatus,
		Sequence:  ev.Sequence,
		ChannelID: ev.ChannelID,
		Channel:   ev.Channel,
	}, true
}

func (this *Session) close() {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.closed {
		return
	}
	this.closed = true
	close(this.queue)
}
