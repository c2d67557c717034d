package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	a := NewEvent("booking.created")
	b := NewEvent("booking.created")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "booking.created", a.Type)
	assert.False(t, a.OccurredAt.IsZero())
	assert.Equal(t, a.ID, a.Key())

	a.Reference = "BK1"
	assert.Equal(t, "BK1", a.Key())
}

func TestCallbackMessage_KeepsBodyVerbatim(t *testing.T) {
	msg := CallbackMessage{Gateway: "click", Body: []byte("action=1&merchant_trans_id=42")}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded CallbackMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "click", decoded.Gateway)
	assert.Equal(t, msg.Body, decoded.Body)
}
