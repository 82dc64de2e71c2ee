package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/echocat/slf4g"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/blaubaer/onair/pkg/broadcast"
	"github.com/blaubaer/onair/pkg/lease"
)

type Server struct {
	conf        Configuration
	coordinator *lease.Coordinator
	hub         *broadcast.Hub
	metrics     http.Handler
	upgrader    websocket.Upgrader
	clock       clock.Clock

	mutex    sync.Mutex
	attached map[string]bool
	timers   map[string]*clock.Timer
}

type Option func(*Server)

// WithClock drives the attach timeout and the pings. Socket deadlines always
// use the wall clock.
func WithClock(c clock.Clock) Option {
	return func(this *Server) {
		this.clock = c
	}
}

// New creates the server. metrics might be nil.
func New(conf Configuration, coordinator *lease.Coordinator, hub *broadcast.Hub, metrics http.Handler, opts ...Option) *Server {
	result := &Server{
		conf:        conf,
		coordinator: coordinator,
		hub:         hub,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clock:    clock.New(),
		attached: make(map[string]bool),
		timers:   make(map[string]*clock.Timer),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

func (this *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", this.healthz).Methods("GET")
	if this.metrics != nil {
		router.Handle("/metrics", this.metrics).Methods("GET")
	}

	router.HandleFunc("/api/subscribe", this.subscribe).Methods("POST")
	router.HandleFunc("/api/subscribe/{subscribeId}/stream", this.stream).Methods("GET")
	router.HandleFunc("/api/channels", this.channels).Methods("GET")
	router.HandleFunc("/api/channels/{channel}/{operation}", this.operation).Methods("POST")

	return router
}

// Run serves until ctx is done. Before going down every stream receives a
// close event.
func (this *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    this.conf.Listen,
		Handler: this.Handler(),
	}

	failed := make(chan error, 1)
	go func() {
		log.With("listen", this.conf.Listen).
			Info("Coordinator listening.")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}

	log.Info("Coordinator going down...")
	_ = this.hub.Close()

	sCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sCtx)
}

func (this *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("healthy"))
}

func (this *Server) subscribe(w http.ResponseWriter, _ *http.Request) {
	session, err := this.hub.Subscribe()
	if err != nil {
		log.WithError(err).
			Warn("Cannot subscribe.")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	id := session.ID()
	this.mutex.Lock()
	this.timers[id] = this.clock.AfterFunc(this.conf.AttachTimeout, func() {
		this.discard(id, "stream was never attached")
	})
	this.mutex.Unlock()

	writeJSON(w, http.StatusOK, SubscribeResponse{
		SubscribeID:          id,
		RenewIntervalSeconds: this.coordinator.Configuration().RenewInterval.Seconds(),
	})
}

func (this *Server) channels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, this.coordinator.Snapshot())
}

func (this *Server) operation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	channelID, op := vars["channel"], lease.Operation(vars["operation"])

	var req OperationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.WithError(err).
				With("operation", op).
				Info("Cannot decode operation request.")
			writeJSON(w, http.StatusBadRequest, OperationResponse{})
			return
		}
	}

	ctx := r.Context()
	var rsp OperationResponse
	var err error
	switch op {
	case lease.OpTake:
		if _, ok := this.hub.Get(req.SubscribeID); !ok {
			log.With("subscribeId", req.SubscribeID).
				With("channel", channelID).
				Info("Take of unknown subscriber rejected.")
			writeJSON(w, http.StatusOK, rsp)
			return
		}
		var l lease.Lease
		if l, err = this.coordinator.Take(ctx, channelID, req.SubscribeID); err == nil {
			rsp.Token = l.Token
		}
	case lease.OpRenew:
		var l lease.Lease
		if l, err = this.coordinator.Renew(ctx, channelID, req.Token); err == nil {
			rsp.Token = l.Token
		}
	case lease.OpRelease:
		err = this.coordinator.Release(ctx, channelID, req.Token)
	case lease.OpStart:
		err = this.coordinator.Start(ctx, channelID, req.Token, req.Name)
	case lease.OpStop:
		err = this.coordinator.Stop(ctx, channelID, req.Token)
	case lease.OpReset:
		err = this.coordinator.Reset(ctx, channelID, req.Token)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	rsp.State = err == nil
	writeJSON(w, http.StatusOK, rsp)
}

func (this *Server) stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["subscribeId"]
	session, ok := this.hub.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !this.attach(id) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	defer this.discard(id, "stream closed")

	conn, err := this.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).
			With("subscribeId", id).
			Info("Cannot upgrade stream.")
		return
	}
	defer func() { _ = conn.Close() }()

	logger := log.With("subscribeId", id)
	logger.Debug("Stream attached.")

	done := make(chan struct{})
	go this.readStream(conn, session, done)

	snapshot := this.coordinator.Snapshot()
	for _, channel := range snapshot.Channels {
		if err := this.write(conn, lease.Event{
			Kind:      lease.EventAdd,
			Sequence:  snapshot.Sequence,
			ChannelID: channel.ID,
			Channel:   &channel,
		}); err != nil {
			logger.WithError(err).Debug("Cannot write snapshot.")
			return
		}
	}

	ping := this.clock.Ticker(this.conf.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			logger.Debug("Stream closed by client.")
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(this.conf.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.WithError(err).Debug("Cannot ping stream.")
				return
			}
		case ev, open := <-session.Events():
			if !open {
				_ = conn.SetWriteDeadline(time.Now().Add(this.conf.WriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if ev.Kind != lease.EventClose && ev.Sequence <= snapshot.Sequence {
				continue
			}
			if err := this.write(conn, ev); err != nil {
				logger.WithError(err).Debug("Cannot write event.")
				return
			}
		}
	}
}

func (this *Server) readStream(conn *websocket.Conn, session *broadcast.Session, done chan<- struct{}) {
	defer close(done)

	readTimeout := this.conf.PingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case MessageWatch:
			session.Watch(msg.Channel)
		case MessageDone:
			return
		default:
			log.With("subscribeId", session.ID()).
				With("type", msg.Type).
				Info("Unknown stream message. Ignoring...")
		}
	}
}

func (this *Server) write(conn *websocket.Conn, ev lease.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(this.conf.WriteTimeout))
	return conn.WriteJSON(ev)
}

func (this *Server) attach(id string) bool {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.attached[id] {
		return false
	}
	this.attached[id] = true
	if t := this.timers[id]; t != nil {
		t.Stop()
		delete(this.timers, id)
	}
	return true
}

// discard ends the session and releases every lease it holds which is not
// capturing.
func (this *Server) discard(id string, reason string) {
	this.mutex.Lock()
	delete(this.attached, id)
	if t := this.timers[id]; t != nil {
		t.Stop()
		delete(this.timers, id)
	}
	this.mutex.Unlock()

	this.hub.Unsubscribe(id)
	if err := this.coordinator.ReleaseHolder(context.Background(), id); err != nil {
		log.WithError(err).
			With("subscribeId", id).
			Warn("Cannot release leases of discarded session.")
	}
	log.With("subscribeId", id).
		With("reason", reason).
		Debug("Session discarded.")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).
			Debug("Cannot write response.")
	}
}
