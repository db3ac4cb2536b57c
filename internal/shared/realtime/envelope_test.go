package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"NOTIFICATION_READ","data":{"id":4}}`))
	require.NoError(t, err)
	assert.Equal(t, "NOTIFICATION_READ", env.Type)

	var payload struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, env.Decode(&payload))
	assert.EqualValues(t, 4, payload.ID)

	_, err = DecodeEnvelope([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = DecodeEnvelope([]byte(`[`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	assert.ErrorIs(t, Envelope{Type: "X"}.Decode(&payload), ErrMalformedMessage)
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("NEW_ORDER", map[string]int{"id": 9})
	require.NoError(t, err)
	assert.Equal(t, "NEW_ORDER", env.Type)
	assert.JSONEq(t, `{"id":9}`, string(env.Data))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "subscribed", StateSubscribed.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestSubscription_NoDeliveryAfterUnsubscribe(t *testing.T) {
	calls := 0
	released := false
	sub := newSubscription("/topic/x", func(Envelope) { calls++ }, func(*Subscription) { released = true })

	assert.True(t, sub.deliver(Envelope{Type: "A"}))
	sub.Unsubscribe()
	assert.False(t, sub.deliver(Envelope{Type: "B"}))
	assert.Equal(t, 1, calls)
	assert.True(t, released)

	sub.setLiveState(StateReconnecting)
	assert.Equal(t, StateUnsubscribed, sub.State())
}
