package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRegexp_Set(t *testing.T) {
	var instance Regexp

	require.NoError(t, instance.Set("^USB"))
	assert.True(t, instance.HasContent())
	assert.True(t, instance.MatchString("USB Mic"))
	assert.Equal(t, "^USB", instance.String())

	require.NoError(t, instance.Set(""))
	assert.True(t, instance.IsZero())
	assert.False(t, instance.MatchString(""))

	assert.Error(t, instance.Set("(unclosed"))
}

func TestRegexp_yaml(t *testing.T) {
	var actual struct {
		Included Regexp `yaml:"included,omitempty"`
		Excluded Regexp `yaml:"excluded,omitempty"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("included: ^hw:1,"), &actual))
	assert.True(t, actual.Included.MatchString("hw:1,0"))
	assert.True(t, actual.Excluded.IsZero())

	out, err := yaml.Marshal(actual)
	require.NoError(t, err)
	assert.Equal(t, "included: ^hw:1,\n", string(out))
}

func TestAccepts(t *testing.T) {
	usb := MustNewRegexp("^USB")
	loopback := MustNewRegexp("Loopback")

	assert.True(t, Accepts(Regexp{}, Regexp{}, "anything"))
	assert.True(t, Accepts(usb, Regexp{}, "hw:1,0", "USB Mic"))
	assert.False(t, Accepts(usb, Regexp{}, "hw:0,0", "Internal"))
	assert.False(t, Accepts(Regexp{}, loopback, "hw:2,0", "Loopback"))
	assert.False(t, Accepts(usb, loopback, "USB Loopback"))
}
