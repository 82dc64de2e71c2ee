package audio

import (
	"fmt"
	"sort"

	"github.com/blaubaer/onair/pkg/common"
)

// Device is one capture endpoint of the local machine.
type Device struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Index uint32 `json:"index"`
}

func (this Device) String() string {
	return fmt.Sprintf("[%d] %s (%s)", this.Index, this.Name, this.ID)
}

type Devices []Device

func (this Devices) IsZero() bool {
	return len(this) <= 0
}

func (this Devices) HasContent() bool {
	return !this.IsZero()
}

// Filter returns all devices whose id or name matches included (if set) and
// does not match excluded (if set).
func (this Devices) Filter(included, excluded common.Regexp) (result Devices) {
	for _, v := range this {
		if common.Accepts(included, excluded, v.ID, v.Name) {
			result = append(result, v)
		}
	}
	return
}

func (this Devices) ByID() map[string]Device {
	result := make(map[string]Device, len(this))
	for _, v := range this {
		result[v.ID] = v
	}
	return result
}

func (this Devices) Sorted() Devices {
	result := make(Devices, len(this))
	copy(result, this)
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
