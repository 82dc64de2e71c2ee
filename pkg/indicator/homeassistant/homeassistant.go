package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/echocat/slf4g"

	"github.com/blaubaer/onair/pkg/common"
	"github.com/blaubaer/onair/pkg/credentials"
	"github.com/blaubaer/onair/pkg/indicator"
)

const DefaultServer = "http://homeassistant.local:8123/"

// HomeAssistant writes the on air state into an entity of Home Assistant.
type HomeAssistant struct {
	conf         *Configuration
	saveConfFunc func() error
	mutex        sync.RWMutex

	credentials atomic.Pointer[credentials.Credentials]
	lastState   atomic.Pointer[state]

	client http.Client
}

type state struct {
	timestamp  time.Time
	state      indicator.State
	recordings stateAttrRecordings
}

func (this *state) isEqualTo(o *state) bool {
	return this.state == o.state &&
		this.recordings.isEqualTo(o.recordings)
}

func (this *HomeAssistant) Initialize(conf *Configuration, saveConfFunc func() error) error {
	this.conf = conf
	this.saveConfFunc = saveConfFunc

	return this.Update()
}

// Update checks whether Home Assistant is reachable with the current
// credentials.
func (this *HomeAssistant) Update() error {
	this.mutex.RLock()
	defer this.mutex.RUnlock()

	rsp, err := this.do("GET", "/api/", nil)
	if err != nil {
		return err
	}
	_ = rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - %s", rsp.StatusCode, rsp.Status)
	}
	return nil
}

func (this *HomeAssistant) Ensure(ctx indicator.Context) error {
	this.mutex.RLock()
	defer this.mutex.RUnlock()

	target := state{
		state:      ctx.State(),
		timestamp:  time.Now(),
		recordings: stateAttrRecordings{},
	}
	for v := range ctx.Recordings() {
		target.recordings = append(target.recordings, stateAttrRecording{
			Channel:  v.ID,
			Name:     v.DisplayName,
			Artifact: v.CaptureArtifactName,
		})
	}

	logger := log.With("entityId", this.conf.EntityId)

	if v := this.lastState.Load(); v != nil {
		if v.timestamp.Add(this.conf.DeadZoneInterval).After(time.Now()) && v.isEqualTo(&target) {
			logger.Debug("Entity is already in requested state (within dead zone). No update needed.")
			return nil
		}
	}

	rsp, err := this.do("GET", "/api/states/"+this.conf.EntityId, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = rsp.Body.Close()
	}()

	current := state{
		timestamp: time.Now(),
	}
	attributes := make(map[string]any)
	forceUpdate := false

	switch rsp.StatusCode {
	case http.StatusOK:
		var gRsp stateGetResponse
		if err := json.NewDecoder(rsp.Body).Decode(&gRsp); err != nil {
			return fmt.Errorf("cannot decode state of %s: %w", this.conf.EntityId, err)
		}
		current.state = gRsp.State
		if current.recordings, err = gRsp.getAttrRecordings(); err != nil {
			logger.WithError(err).
				Info("Cannot read previous recordings. Ignoring...")
		}
		if v := gRsp.Attributes; v != nil {
			attributes = v
		}

	case http.StatusNotFound:
		logger.Info("Entity not found. It will be created now...")
		forceUpdate = true
		attributes["icon"] = "mdi:microphone-message"
		attributes["friendly_name"] = strings.TrimPrefix(this.conf.EntityId, "input_boolean.")

	default:
		return fmt.Errorf("unexpected status code: %d - %s", rsp.StatusCode, rsp.Status)
	}

	if !forceUpdate && target.isEqualTo(&current) {
		logger.Debug("Entity is already in requested state. No update needed.")
		this.lastState.Store(&current)
		return nil
	}

	attributes["editable"] = false
	sReq := statePostRequest{
		State:      target.state,
		Attributes: attributes,
	}
	sReq.setAttrRecordings(target.recordings)

	body, err := json.Marshal(sReq)
	if err != nil {
		return err
	}

	sRsp, err := this.do("POST", "/api/states/"+this.conf.EntityId, body)
	if err != nil {
		return err
	}
	_ = sRsp.Body.Close()
	if sRsp.StatusCode != http.StatusOK && sRsp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status code: %d - %s", sRsp.StatusCode, sRsp.Status)
	}

	logger.With("state", target.state).
		Debug("Entity updated.")
	this.lastState.Store(&target)
	return nil
}

func (this *HomeAssistant) loadCredentials() (credentials.Credentials, error) {
	var v credentials.Credentials
	if _, err := v.ReadFromStore(); err != nil {
		return credentials.Credentials{}, err
	}

	if this.conf.Server != "" {
		v.HomeAssistantServer = this.conf.Server
	}
	if this.conf.Token != "" {
		v.HomeAssistantToken = this.conf.Token
	}
	return v, nil
}

func (this *HomeAssistant) storeCredentials(cred credentials.Credentials) error {
	supported, err := credentials.Update(func(stored *credentials.Credentials) {
		stored.HomeAssistantServer, stored.HomeAssistantToken = cred.HomeAssistantServer, cred.HomeAssistantToken
	})
	if err != nil {
		return err
	}
	if supported {
		return nil
	}

	this.conf.Server = cred.HomeAssistantServer
	this.conf.Token = cred.HomeAssistantToken
	return this.saveConfFunc()
}

// resolveCredentials returns the known credentials, or asks for them on the
// terminal if there are none or the known ones were rejected.
func (this *HomeAssistant) resolveCredentials(rejected bool) (credentials.Credentials, error) {
	if !rejected {
		if v := this.credentials.Load(); v != nil {
			return *v, nil
		}
	}

	cred, err := this.loadCredentials()
	if err != nil {
		return credentials.Credentials{}, err
	}
	if !rejected && cred.HomeAssistantServer != "" && cred.HomeAssistantToken != "" {
		this.credentials.Store(&cred)
		return cred, nil
	}

	if rejected {
		log.With("server", cred.HomeAssistantServer).
			Error("Home Assistant rejected the token.")
	} else {
		log.Info("Server URL and long lived access token are required to access Home Assistant.")
	}

	for {
		cred.HomeAssistantServer = ""
		cred.HomeAssistantToken = ""
		if err := common.PromptIfEmpty(&cred.HomeAssistantServer, fmt.Sprintf("Server URL (empty = %s)", DefaultServer), true, false); err != nil {
			return credentials.Credentials{}, fmt.Errorf("cannot request server url: %w", err)
		}
		if cred.HomeAssistantServer == "" {
			cred.HomeAssistantServer = DefaultServer
		}
		if err := common.PromptIfEmpty(&cred.HomeAssistantToken, "Token", false, true); err != nil {
			return credentials.Credentials{}, fmt.Errorf("cannot request token: %w", err)
		}

		serverOk, tokenOk, err := this.check(cred)
		if err != nil {
			return credentials.Credentials{}, err
		}
		if serverOk && tokenOk {
			if err := this.storeCredentials(cred); err != nil {
				return credentials.Credentials{}, fmt.Errorf("cannot store credentials: %w", err)
			}
			this.credentials.Store(&cred)
			return cred, nil
		}

		if !serverOk {
			log.With("server", cred.HomeAssistantServer).
				Error("Provided Home Assistant server URL is invalid.")
		} else {
			log.With("server", cred.HomeAssistantServer).
				Error("Provided Home Assistant token is invalid.")
		}
	}
}

func (this *HomeAssistant) check(cred credentials.Credentials) (serverOk, tokenOk bool, err error) {
	rsp, err := this.request(cred, "GET", "/api/", nil)
	if err != nil {
		return false, false, err
	}
	_ = rsp.Body.Close()

	switch rsp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true, false, nil
	case http.StatusOK:
		return true, true, nil
	default:
		return false, false, nil
	}
}

func (this *HomeAssistant) request(cred credentials.Credentials, method, path string, body []byte) (*http.Response, error) {
	timeout := this.conf.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(cred.HomeAssistantServer, "/")+path, r)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.HomeAssistantToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rsp, err := this.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to access %v: %w", req.URL, err)
	}
	rsp.Body = &cancelOnClose{rsp.Body, cancel}
	return rsp, nil
}

func (this *HomeAssistant) do(method, path string, body []byte) (*http.Response, error) {
	cred, err := this.resolveCredentials(false)
	if err != nil {
		return nil, err
	}

	for {
		rsp, err := this.request(cred, method, path, body)
		if err != nil {
			return nil, err
		}

		switch rsp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			_ = rsp.Body.Close()
			if cred, err = this.resolveCredentials(true); err != nil {
				return nil, err
			}
		default:
			return rsp, nil
		}
	}
}

func (this *HomeAssistant) Dispose() error {
	this.lastState.Store(nil)
	return nil
}

func (this *HomeAssistant) GetType() indicator.Type {
	return indicator.TypeHomeAssistant
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (this *cancelOnClose) Close() error {
	defer this.cancel()
	return this.ReadCloser.Close()
}
