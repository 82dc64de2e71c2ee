package homeassistant

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/blaubaer/onair/pkg/indicator"
)

type stateGetResponse struct {
	EntityId    string          `json:"entity_id"`
	State       indicator.State `json:"state"`
	Attributes  map[string]any  `json:"attributes"`
	LastChanged time.Time       `json:"last_changed"`
	LastUpdated time.Time       `json:"last_updated"`
}

func (this *stateGetResponse) getAttrRecordings() (stateAttrRecordings, error) {
	var result stateAttrRecordings
	if this.Attributes != nil {
		if plain, ok := this.Attributes["recordings"]; ok {
			if err := result.unmarshalFromAny(plain); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

type statePostRequest struct {
	State      indicator.State `json:"state"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

func (this *statePostRequest) setAttrRecordings(v stateAttrRecordings) {
	if this.Attributes == nil {
		this.Attributes = make(map[string]any)
	}
	this.Attributes["recordings"] = v
}

type stateAttrRecordings []stateAttrRecording

func (this *stateAttrRecordings) unmarshalFromAny(in any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, this)
}

func (this stateAttrRecordings) isEqualTo(o stateAttrRecordings) bool {
	return slices.Equal(this, o)
}

type stateAttrRecording struct {
	Channel  string `json:"channel"`
	Name     string `json:"name,omitempty"`
	Artifact string `json:"artifact,omitempty"`
}
