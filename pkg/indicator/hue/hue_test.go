package hue

import (
	"testing"

	"github.com/amimof/huego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaubaer/onair/pkg/indicator"
)

func TestDesired(t *testing.T) {
	conf := NewConfiguration()

	cases := []struct {
		name     string
		state    indicator.State
		current  huego.State
		expected *huego.State
	}{{
		name:     "switchOn",
		state:    indicator.StateOn,
		current:  huego.State{},
		expected: &huego.State{On: true, Bri: 254, Hue: 65535, Sat: 254},
	}, {
		name:     "alreadyOn",
		state:    indicator.StateOn,
		current:  huego.State{On: true, Bri: 254, Hue: 65535, Sat: 254},
		expected: nil,
	}, {
		name:     "onButWrongColor",
		state:    indicator.StateOn,
		current:  huego.State{On: true, Bri: 254, Hue: 25500, Sat: 254},
		expected: &huego.State{On: true, Bri: 254, Hue: 65535, Sat: 254},
	}, {
		name:     "switchOff",
		state:    indicator.StateOff,
		current:  huego.State{On: true},
		expected: &huego.State{On: false},
	}, {
		name:     "alreadyOff",
		state:    indicator.StateOff,
		current:  huego.State{},
		expected: nil,
	}}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, desired(c.state, &conf, &c.current))
		})
	}
}

func TestKinds(t *testing.T) {
	var actual Kinds
	require.NoError(t, actual.Set("light, room"))

	assert.Equal(t, Kinds{KindLight, KindGroup}, actual)
	assert.Equal(t, "light,group", actual.String())
	assert.True(t, Kinds{}.Has(KindGroup))
	assert.False(t, Kinds{KindLight}.Has(KindGroup))
	assert.Error(t, actual.Set("lamp"))
}
