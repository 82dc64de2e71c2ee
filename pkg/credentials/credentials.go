package credentials

import (
	"encoding/json"
	"fmt"

	log "github.com/echocat/slf4g"
)

const appName = "github.com/blaubaer/onair"

// Credentials of the indicator backends. Where the platform offers a
// credential store they are kept there instead of in the configuration file.
type Credentials struct {
	HueBridge string `json:"hue_bridge,omitempty"`
	HueUser   string `json:"hue_user,omitempty"`

	HomeAssistantServer string `json:"homeAssistant_server,omitempty"`
	HomeAssistantToken  string `json:"homeAssistant_token,omitempty"`
}

func (this *Credentials) IsZero() bool {
	return this.IsHueZero() && this.IsHomeAssistantZero()
}

func (this *Credentials) IsHueZero() bool {
	return this.HueBridge == "" && this.HueUser == ""
}

func (this *Credentials) IsHomeAssistantZero() bool {
	return this.HomeAssistantServer == "" && this.HomeAssistantToken == ""
}

func (this *Credentials) MarshalBinary() (data []byte, err error) {
	return json.Marshal(this)
}

func (this *Credentials) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, this)
}

// store holds the marshalled credentials. It is nil on platforms without a
// credential store.
type store interface {
	load() (blob []byte, found bool, err error)
	save(blob []byte) error
}

// ReadFromStore replaces the credentials with the stored ones. If the
// platform has no credential store they stay untouched and supported is
// false.
func (this *Credentials) ReadFromStore() (supported bool, err error) {
	if platformStore == nil {
		return false, nil
	}
	blob, found, err := platformStore.load()
	if err != nil {
		return false, fmt.Errorf("cannot retrieve credentials: %w", err)
	}

	var buf Credentials
	if found {
		if err := buf.UnmarshalBinary(blob); err != nil {
			log.WithError(err).
				Warn("Cannot unmarshal stored credentials. Treating them as empty.")
			buf = Credentials{}
		}
	}
	*this = buf
	return true, nil
}

func (this *Credentials) WriteToStore() (supported bool, err error) {
	if platformStore == nil {
		return false, nil
	}
	blob, err := this.MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("cannot marshal credentials to JSON: %w", err)
	}
	if err := platformStore.save(blob); err != nil {
		return false, fmt.Errorf("cannot store credentials: %w", err)
	}
	return true, nil
}

// Update applies fn to the stored credentials and stores the result. The
// credentials of the other backends stay as they are.
func Update(fn func(*Credentials)) (supported bool, err error) {
	var v Credentials
	if supported, err = v.ReadFromStore(); err != nil || !supported {
		return supported, err
	}
	fn(&v)
	return v.WriteToStore()
}
