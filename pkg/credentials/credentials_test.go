package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_binary(t *testing.T) {
	given := Credentials{HueBridge: "10.0.0.2", HueUser: "abc"}

	b, err := given.MarshalBinary()
	require.NoError(t, err)

	var actual Credentials
	require.NoError(t, actual.UnmarshalBinary(b))
	assert.Equal(t, given, actual)
	assert.False(t, actual.IsHueZero())
	assert.True(t, actual.IsHomeAssistantZero())
	assert.False(t, actual.IsZero())
}

func TestCredentials_ReadFromStore_unsupported(t *testing.T) {
	useStore(t, nil)

	actual := Credentials{HueUser: "configured"}
	supported, err := actual.ReadFromStore()
	require.NoError(t, err)
	assert.False(t, supported)
	assert.Equal(t, "configured", actual.HueUser)

	supported, err = actual.WriteToStore()
	require.NoError(t, err)
	assert.False(t, supported)
}

func TestCredentials_ReadFromStore(t *testing.T) {
	s := &memoryStore{}
	useStore(t, s)

	var empty Credentials
	supported, err := empty.ReadFromStore()
	require.NoError(t, err)
	assert.True(t, supported)
	assert.True(t, empty.IsZero())

	s.blob, s.found = []byte("{not json"), true
	broken := Credentials{HueUser: "stale"}
	_, err = broken.ReadFromStore()
	require.NoError(t, err)
	assert.True(t, broken.IsZero())

	s.err = errors.New("locked")
	_, err = empty.ReadFromStore()
	assert.ErrorIs(t, err, s.err)
}

func TestUpdate(t *testing.T) {
	useStore(t, &memoryStore{})

	_, err := Update(func(v *Credentials) {
		v.HueBridge, v.HueUser = "10.0.0.2", "abc"
	})
	require.NoError(t, err)
	supported, err := Update(func(v *Credentials) {
		v.HomeAssistantServer, v.HomeAssistantToken = "http://ha:8123", "token"
	})
	require.NoError(t, err)
	assert.True(t, supported)

	var actual Credentials
	_, err = actual.ReadFromStore()
	require.NoError(t, err)
	assert.Equal(t, Credentials{
		HueBridge:           "10.0.0.2",
		HueUser:             "abc",
		HomeAssistantServer: "http://ha:8123",
		HomeAssistantToken:  "token",
	}, actual)
}

func useStore(t *testing.T, s store) {
	before := platformStore
	platformStore = s
	t.Cleanup(func() {
		platformStore = before
	})
}

type memoryStore struct {
	blob  []byte
	found bool
	err   error
}

func (this *memoryStore) load() ([]byte, bool, error) {
	return this.blob, this.found, this.err
}

func (this *memoryStore) save(blob []byte) error {
	if this.err != nil {
		return this.err
	}
	this.blob, this.found = blob, true
	return nil
}
