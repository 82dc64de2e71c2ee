package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blaubaer/onair/pkg/lease"
	"github.com/blaubaer/onair/pkg/server"
)

// HTTPRemote talks to a coordinator served by pkg/server.
type HTTPRemote struct {
	base   *url.URL
	client http.Client
	dialer websocket.Dialer
}

func NewHTTPRemote(base string) (*HTTPRemote, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("illegal coordinator url %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("illegal coordinator url %q: scheme must be http or https", base)
	}
	return &HTTPRemote{
		base:   u,
		client: http.Client{Timeout: 30 * time.Second},
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (this *HTTPRemote) Subscribe(ctx context.Context) (Subscription, error) {
	var rsp server.SubscribeResponse
	if err := this.post(ctx, "/api/subscribe", nil, &rsp); err != nil {
		return Subscription{}, err
	}
	return Subscription{
		ID:            rsp.SubscribeID,
		RenewInterval: time.Duration(rsp.RenewIntervalSeconds * float64(time.Second)),
	}, nil
}

func (this *HTTPRemote) Open(ctx context.Context, subscribeID string) (Stream, error) {
	u := *this.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/api/subscribe/" + url.PathEscape(subscribeID) + "/stream"

	conn, rsp, err := this.dialer.DialContext(ctx, u.String(), nil)
	if rsp != nil && rsp.Body != nil {
		_ = rsp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open stream %s: %w", u.String(), err)
	}

	result := &wsStream{
		conn:   conn,
		events: make(chan lease.Event, 64),
		closed: make(chan struct{}),
	}
	go result.pump()
	return result, nil
}

func (this *HTTPRemote) Take(ctx context.Context, channelID, subscribeID string) (string, error) {
	return this.operation(ctx, channelID, lease.OpTake, server.OperationRequest{SubscribeID: subscribeID})
}

func (this *HTTPRemote) Renew(ctx context.Context, channelID, token string) (string, error) {
	return this.operation(ctx, channelID, lease.OpRenew, server.OperationRequest{Token: token})
}

func (this *HTTPRemote) Release(ctx context.Context, channelID, token string) error {
	_, err := this.operation(ctx, channelID, lease.OpRelease, server.OperationRequest{Token: token})
	return err
}

func (this *HTTPRemote) Start(ctx context.Context, channelID, token, name string) error {
	_, err := this.operation(ctx, channelID, lease.OpStart, server.OperationRequest{Token: token, Name: name})
	return err
}

func (this *HTTPRemote) Stop(ctx context.Context, channelID, token string) error {
	_, err := this.operation(ctx, channelID, lease.OpStop, server.OperationRequest{Token: token})
	return err
}

func (this *HTTPRemote) Reset(ctx context.Context, channelID, token string) error {
	_, err := this.operation(ctx, channelID, lease.OpReset, server.OperationRequest{Token: token})
	return err
}

func (this *HTTPRemote) operation(ctx context.Context, channelID string, op lease.Operation, req server.OperationRequest) (string, error) {
	var rsp server.OperationResponse
	if err := this.post(ctx, "/api/channels/"+url.PathEscape(channelID)+"/"+string(op), req, &rsp); err != nil {
		return "", err
	}
	if !rsp.State {
		return "", fmt.Errorf("cannot %s channel %s: %w", op, channelID, ErrRejected)
	}
	return rsp.Token, nil
}

func (this *HTTPRemote) post(ctx context.Context, path string, body any, target any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	u := this.base.String() + path
	req, err := http.NewRequestWithContext(ctx, "POST", u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	rsp, err := this.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to access %s: %w", u, err)
	}
	defer func() {
		_ = rsp.Body.Close()
	}()

	if rsp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code of %s: %d - %s", u, rsp.StatusCode, rsp.Status)
	}
	if err := json.NewDecoder(rsp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", u, err)
	}
	return nil
}

type wsStream struct {
	conn   *websocket.Conn
	events chan lease.Event
	closed chan struct{}

	writeMutex sync.Mutex
	closeOnce  sync.Once
}

func (this *wsStream) Events() <-chan lease.Event {
	return this.events
}

func (this *wsStream) pump() {
	defer close(this.events)
	for {
		var ev lease.Event
		if err := this.conn.ReadJSON(&ev); err != nil {
			return
		}
		select {
		case this.events <- ev:
		case <-this.closed:
			return
		}
	}
}

func (this *wsStream) Watch(channelID string) error {
	return this.write(server.StreamMessage{Type: server.MessageWatch, Channel: channelID})
}

func (this *wsStream) Close() (rErr error) {
	this.closeOnce.Do(func() {
		close(this.closed)
		_ = this.write(server.StreamMessage{Type: server.MessageDone})
		rErr = this.conn.Close()
	})
	return
}

func (this *wsStream) write(msg server.StreamMessage) error {
	this.writeMutex.Lock()
	defer this.writeMutex.Unlock()

	_ = this.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return this.conn.WriteJSON(msg)
}
