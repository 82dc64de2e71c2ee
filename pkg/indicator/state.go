package indicator

import (
	"fmt"
	"strconv"
	"strings"
)

// State of an indicator. It is on as long as at least one channel records.
type State bool

const (
	StateOff = State(false)
	StateOn  = State(true)
)

func StateOf(recording bool) State {
	return State(recording)
}

func (this *State) Set(plain string) error {
	switch v := strings.TrimSpace(strings.ToLower(plain)); v {
	case "on", "yes":
		*this = StateOn
	case "off", "no":
		*this = StateOff
	default:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("illegal-indicator-state: %s", plain)
		}
		*this = StateOf(b)
	}
	return nil
}

func (this State) String() string {
	if this {
		return "on"
	}
	return "off"
}

func (this State) MarshalText() (text []byte, err error) {
	return []byte(this.String()), nil
}

func (this *State) UnmarshalText(text []byte) error {
	return this.Set(string(text))
}
