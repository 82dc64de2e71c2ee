package lease

import (
	"fmt"
	"time"
)

// Channel is the registry record of one physical input slot.
type Channel struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"displayName,omitempty"`
	Connected           bool   `json:"connected"`
	Taken               bool   `json:"taken"`
	LeaseToken          string `json:"-"`
	HolderID            string `json:"holderId,omitempty"`
	Capturing           bool   `json:"capturing"`
	CaptureArtifactName string `json:"captureArtifactName,omitempty"`
}

func (this Channel) String() string {
	if this.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", this.ID, this.DisplayName)
	}
	return this.ID
}

// View is the copy of the channel everybody is allowed to see.
func (this Channel) View() Channel {
	result := this
	result.LeaseToken = ""
	return result
}

func (this Channel) released() Channel {
	result := this
	result.Taken = false
	result.LeaseToken = ""
	result.HolderID = ""
	result.Capturing = false
	return result
}

// Valid reports whether the lease invariants of the record hold.
func (this Channel) Valid() error {
	if !this.Taken && (this.LeaseToken != "" || this.HolderID != "" || this.Capturing) {
		return fmt.Errorf("channel %v is free but carries lease state", this)
	}
	if this.Capturing && !this.Taken {
		return fmt.Errorf("channel %v captures without being taken", this)
	}
	return nil
}

// Lease is the right of one holder to mutate one channel.
type Lease struct {
	ChannelID string    `json:"channelId"`
	Token     string    `json:"token"`
	HolderID  string    `json:"holderId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Snapshot is a consistent copy of the whole registry. Every event with a
// Sequence not greater than Snapshot.Sequence is already reflected by it.
type Snapshot struct {
	Sequence uint64    `json:"sequence"`
	Channels []Channel `json:"channels"`
}

func (this Snapshot) Channel(id string) (Channel, bool) {
	for _, v := range this.Channels {
		if v.ID == id {
			return v, true
		}
	}
	return Channel{}, false
}
