package server

const (
	MessageWatch = "watch"
	MessageDone  = "done"
)

type SubscribeResponse struct {
	SubscribeID          string  `json:"subscribeId"`
	RenewIntervalSeconds float64 `json:"renewIntervalSeconds"`
}

type OperationRequest struct {
	SubscribeID string `json:"subscribeId,omitempty"`
	Token       string `json:"token,omitempty"`
	Name        string `json:"name,omitempty"`
}

// OperationResponse carries no detail on failure; the reason is only logged
// by the coordinator.
type OperationResponse struct {
	State bool   `json:"state"`
	Token string `json:"token,omitempty"`
}

// StreamMessage is sent by clients over their stream.
type StreamMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}
