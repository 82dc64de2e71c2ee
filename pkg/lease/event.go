package lease

import (
	"fmt"
	"strings"
)

type EventKind uint8

const (
	EventAdd = EventKind(iota)
	EventRemove
	EventTake
	EventRelease
	EventStatus
	EventReset
	EventClose
)

var (
	AllEventKinds = EventKinds{
		EventAdd,
		EventRemove,
		EventTake,
		EventRelease,
		EventStatus,
		EventReset,
		EventClose,
	}
)

func (this *EventKind) Set(plain string) error {
	switch strings.TrimSpace(strings.ToLower(plain)) {
	case "add":
		*this = EventAdd
	case "remove":
		*this = EventRemove
	case "take":
		*this = EventTake
	case "release":
		*this = EventRelease
	case "status":
		*this = EventStatus
	case "reset":
		*this = EventReset
	case "close":
		*this = EventClose
	default:
		return fmt.Errorf("illegal-event-kind: %s", plain)
	}
	return nil
}

func (this EventKind) String() string {
	v, err := this.MarshalText()
	if err != nil {
		return fmt.Sprintf("illegal-event-kind-%d", this)
	}
	return string(v)
}

func (this EventKind) MarshalText() (text []byte, err error) {
	switch this {
	case EventAdd:
		return []byte("add"), nil
	case EventRemove:
		return []byte("remove"), nil
	case EventTake:
		return []byte("take"), nil
	case EventRelease:
		return []byte("release"), nil
	case EventStatus:
		return []byte("status"), nil
	case EventReset:
		return []byte("reset"), nil
	case EventClose:
		return []byte("close"), nil
	default:
		return nil, fmt.Errorf("illegal event kind: %d", this)
	}
}

func (this *EventKind) UnmarshalText(text []byte) error {
	return this.Set(string(text))
}

type EventKinds []EventKind

func (this EventKinds) Strings() []string {
	result := make([]string, len(this))
	for i, v := range this {
		result[i] = v.String()
	}
	return result
}

func (this EventKinds) String() string {
	return strings.Join(this.Strings(), ",")
}

// Reason tells why a lease ended without its holder asking for it.
type Reason string

const (
	ReasonNone          = Reason("")
	ReasonExpired       = Reason("expired")
	ReasonDisconnected  = Reason("disconnected")
	ReasonSessionClosed = Reason("session-closed")
)

// Event is one change of the registry as published to every subscriber.
type Event struct {
	Kind        EventKind `json:"kind"`
	Sequence    uint64    `json:"sequence,omitempty"`
	ChannelID   string    `json:"channelId,omitempty"`
	Channel     *Channel  `json:"channel,omitempty"`
	Involuntary bool      `json:"involuntary,omitempty"`
	Reason      Reason    `json:"reason,omitempty"`
}

func (this Event) String() string {
	if this.ChannelID == "" {
		return this.Kind.String()
	}
	return fmt.Sprintf("%v(%s)#%d", this.Kind, this.ChannelID, this.Sequence)
}
