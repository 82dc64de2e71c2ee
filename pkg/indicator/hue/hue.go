package hue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amimof/huego"
	log "github.com/echocat/slf4g"

	"github.com/blaubaer/onair/pkg/common"
	"github.com/blaubaer/onair/pkg/credentials"
	"github.com/blaubaer/onair/pkg/indicator"
)

const appName = "github.com/blaubaer/onair"

// Hue switches matching hue lights and/or groups.
type Hue struct {
	conf         *Configuration
	saveConfFunc func() error

	targets     []target
	credentials credentials.Credentials
	mutex       sync.Mutex
}

type target struct {
	kind  Kind
	id    int
	name  string
	state *huego.State
}

func (this target) String() string {
	return fmt.Sprintf("%v %q#%d", this.kind, this.name, this.id)
}

func (this *Hue) Initialize(ctx context.Context, conf *Configuration, saveConfFunc func() error) error {
	this.conf = conf
	this.saveConfFunc = saveConfFunc

	v, err := this.resolveCredentials(ctx)
	if err != nil {
		return err
	}
	this.credentials = v

	return this.Update()
}

func (this *Hue) Update() error {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	bridge, err := this.bridge()
	if err != nil {
		return err
	}

	targets, err := this.discover(bridge)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		log.With("name", this.conf.Name).
			With("kinds", this.conf.Kinds).
			Warn("No hue light or group matches.")
	}
	this.targets = targets
	return nil
}

func (this *Hue) discover(bridge *huego.Bridge) (result []target, _ error) {
	if this.conf.Kinds.Has(KindLight) {
		candidates, err := bridge.GetLights()
		if err != nil {
			return nil, fmt.Errorf("cannot discover lights of bridge %s: %w", bridge.Host, err)
		}
		for _, candidate := range candidates {
			if this.conf.Name.MatchString(candidate.Name) {
				result = append(result, target{KindLight, candidate.ID, candidate.Name, orEmpty(candidate.State)})
			}
		}
	}
	if this.conf.Kinds.Has(KindGroup) {
		candidates, err := bridge.GetGroups()
		if err != nil {
			return nil, fmt.Errorf("cannot discover groups of bridge %s: %w", bridge.Host, err)
		}
		for _, candidate := range candidates {
			if this.conf.Name.MatchString(candidate.Name) {
				result = append(result, target{KindGroup, candidate.ID, candidate.Name, orEmpty(candidate.State)})
			}
		}
	}
	return
}

func (this *Hue) Ensure(ctx indicator.Context) error {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	bridge, err := this.bridge()
	if err != nil {
		return err
	}

	state := ctx.State()
	for i, t := range this.targets {
		next := desired(state, this.conf, t.state)
		if next == nil {
			continue
		}
		switch t.kind {
		case KindGroup:
			_, err = bridge.SetGroupState(t.id, *next)
		default:
			_, err = bridge.SetLightState(t.id, *next)
		}
		if err != nil {
			return fmt.Errorf("cannot switch %v to %v: %w", t, state, err)
		}
		this.targets[i].state = next
	}
	return nil
}

// desired returns the state the light has to be switched to, or nil if it is
// already there.
func desired(state indicator.State, conf *Configuration, current *huego.State) *huego.State {
	if state == indicator.StateOff {
		if current.On {
			return &huego.State{On: false}
		}
		return nil
	}
	if !current.On || current.Bri != conf.Brightness || current.Hue != conf.Hue || current.Sat != conf.Saturation {
		return &huego.State{
			On:  true,
			Bri: conf.Brightness,
			Hue: conf.Hue,
			Sat: conf.Saturation,
		}
	}
	return nil
}

func orEmpty(v *huego.State) *huego.State {
	if v == nil {
		return &huego.State{}
	}
	return v
}

func (this *Hue) bridge() (*huego.Bridge, error) {
	v := this.credentials
	if v.IsHueZero() {
		return nil, fmt.Errorf("not paired with hue bridge")
	}
	return huego.New(v.HueBridge, v.HueUser), nil
}

func (this *Hue) resolveCredentials(ctx context.Context) (credentials.Credentials, error) {
	if u := this.conf.User; u != "" {
		bridge, err := this.discoverBridge()
		if err != nil {
			return credentials.Credentials{}, err
		}
		return credentials.Credentials{
			HueBridge: bridge.Host,
			HueUser:   u,
		}, nil
	}

	if this.conf.Pair {
		return this.pair(ctx)
	}

	v, err := this.readCredentials()
	if err != nil {
		return credentials.Credentials{}, err
	}
	if !v.IsHueZero() {
		return v, nil
	}

	return this.pair(ctx)
}

func (this *Hue) discoverBridge() (*huego.Bridge, error) {
	if this.conf.Bridge != "" {
		return &huego.Bridge{
			Host: this.conf.Bridge,
		}, nil
	}
	return huego.Discover()
}

func (this *Hue) pair(ctx context.Context) (credentials.Credentials, error) {
	bridge, err := this.discoverBridge()
	if err != nil {
		return credentials.Credentials{}, err
	}

	for {
		log.Info("Wait for hue link button been pressed...")
		user, err := bridge.CreateUser(appName)
		if apiErr, ok := common.AsError[*huego.APIError](err); ok && apiErr.Type == 101 {
			select {
			case <-ctx.Done():
				return credentials.Credentials{}, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if err != nil {
			return credentials.Credentials{}, fmt.Errorf("cannot pair with %s: %w", bridge.Host, err)
		}

		v := credentials.Credentials{
			HueBridge: bridge.Host,
			HueUser:   user,
		}
		if err := this.storeCredentials(v); err != nil {
			log.WithError(err).
				Warn("Cannot store credentials. The indicator works now, but next time pairing might be required again.")
		}

		log.With("bridge", bridge.Host).
			Info("Successfully paired.")
		return v, nil
	}
}

func (this *Hue) readCredentials() (credentials.Credentials, error) {
	var v credentials.Credentials
	if _, err := v.ReadFromStore(); err != nil {
		return credentials.Credentials{}, err
	}

	if v.HueBridge == "" {
		v.HueBridge = this.conf.Bridge
	}
	if v.HueUser == "" {
		v.HueUser = this.conf.User
	}
	return v, nil
}

func (this *Hue) storeCredentials(v credentials.Credentials) error {
	supported, err := credentials.Update(func(stored *credentials.Credentials) {
		stored.HueBridge, stored.HueUser = v.HueBridge, v.HueUser
	})
	if err != nil {
		return err
	}
	if supported {
		return nil
	}

	this.conf.Bridge = v.HueBridge
	this.conf.User = v.HueUser
	return this.saveConfFunc()
}

func (this *Hue) Dispose() error {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.targets = nil
	return nil
}

func (this *Hue) GetType() indicator.Type {
	return indicator.TypeHue
}
