package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte(`{"visible":true}`)
	a := HashWithDomain(DomainEvent, data)
	b := HashWithDomain(DomainState, data)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, a)
}

func TestHashWithDomain_NullSeparator(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide.
	assert.NotEqual(t,
		HashWithDomain("ab", []byte("c")),
		HashWithDomain("a", []byte("bc")))
}

func TestEventID_Deterministic(t *testing.T) {
	payload := []byte(`{"visible":false}`)
	id1, err := EventID("run-1", 3, "visibility/setVisibility", payload)
	require.NoError(t, err)
	id2, err := EventID("run-1", 3, "visibility/setVisibility", payload)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	other, err := EventID("run-1", 4, "visibility/setVisibility", payload)
	require.NoError(t, err)
	assert.NotEqual(t, id1, other)
}

func TestEventID_EmptyPayload(t *testing.T) {
	id, err := EventID("run-1", 1, "START_WATCHING_VISIBILITY", nil)
	require.NoError(t, err)
	assert.Len(t, id, 64)
}

func TestEventID_PayloadKeyOrderIrrelevant(t *testing.T) {
	a, err := EventID("r", 1, "t", []byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	b, err := EventID("r", 1, "t", []byte(`{"b":2,"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStateHash(t *testing.T) {
	type state struct {
		Visible bool `json:"visible"`
	}
	h1, err := StateHash(state{Visible: true})
	require.NoError(t, err)
	h2, err := StateHash(map[string]any{"visible": true})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	_, err = StateHash(map[string]any{"x": 0.5})
	assert.Error(t, err)
}
