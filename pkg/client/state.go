package client

import (
	"fmt"

	"github.com/blaubaer/onair/pkg/lease"
	"github.com/blaubaer/onair/pkg/ticker"
)

// LocalState is how a channel looks like from the point of view of this
// client.
type LocalState uint8

const (
	StateUnavailable = LocalState(iota)
	StateAvailable
	StateTaken
	StateControlling
	StateRecording
)

func (this LocalState) String() string {
	switch this {
	case StateUnavailable:
		return "unavailable"
	case StateAvailable:
		return "available"
	case StateTaken:
		return "taken"
	case StateControlling:
		return "controlling"
	case StateRecording:
		return "recording"
	default:
		return fmt.Sprintf("illegal-local-state-%d", this)
	}
}

func (this LocalState) MarshalText() ([]byte, error) {
	return []byte(this.String()), nil
}

type NoticeKind uint8

const (
	NoticeUpdate = NoticeKind(iota)
	NoticeBusy
	NoticeInvoluntary
	NoticeSleep
	NoticeKill
	NoticeError
)

func (this NoticeKind) String() string {
	switch this {
	case NoticeUpdate:
		return "update"
	case NoticeBusy:
		return "busy"
	case NoticeInvoluntary:
		return "involuntary"
	case NoticeSleep:
		return "sleep"
	case NoticeKill:
		return "kill"
	case NoticeError:
		return "error"
	default:
		return fmt.Sprintf("illegal-notice-kind-%d", this)
	}
}

// Notice is what the synchronizer tells its UI.
type Notice struct {
	Kind      NoticeKind
	ChannelID string
	State     LocalState
	Channel   lease.Channel
	Reason    lease.Reason
	Err       error
}

func (this Notice) String() string {
	switch this.Kind {
	case NoticeUpdate:
		return fmt.Sprintf("%v %s: %v", this.Kind, this.ChannelID, this.State)
	case NoticeInvoluntary:
		return fmt.Sprintf("%v %s: %s", this.Kind, this.ChannelID, this.Reason)
	case NoticeError:
		return fmt.Sprintf("%v %s: %v", this.Kind, this.ChannelID, this.Err)
	default:
		return fmt.Sprintf("%v %s", this.Kind, this.ChannelID)
	}
}

// ChannelState is one entry of the local mirror.
type ChannelState struct {
	Channel lease.Channel
	State   LocalState
	Held    bool
}

type mirrorEntry struct {
	channel lease.Channel

	token  string
	holder string
	// confirmed is false between a successful take and the first event which
	// shows the lease. Older events must not void the lease meanwhile.
	confirmed bool
	renewal   *ticker.Ticker
}

func (this *mirrorEntry) held() bool {
	return this.token != ""
}

func (this *mirrorEntry) state() LocalState {
	switch {
	case !this.channel.Connected:
		return StateUnavailable
	case this.held() && this.channel.Capturing:
		return StateRecording
	case this.held():
		return StateControlling
	case this.channel.Taken:
		return StateTaken
	default:
		return StateAvailable
	}
}

func (this *mirrorEntry) toState() ChannelState {
	return ChannelState{
		Channel: this.channel,
		State:   this.state(),
		Held:    this.held(),
	}
}
