package comm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPacket(t *testing.T) {
	msg, err := NewPacket("send-card-detail", "sock-1", "gold", "g.png", "Gold", "Rare", "true")
	require.NoError(t, err)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"send-card-detail","data":["gold","g.png","Gold","Rare","true"],"socketid":"sock-1","v":1}`, string(raw))

	empty, err := NewPacket("command-suggestions", "sock-1")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty.Data))
}

func TestFields(t *testing.T) {
	var msg WSMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"get-equipped","data":["Bob"],"socketid":"s"}`), &msg))
	fields, err := msg.Fields()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, fields)
	assert.Zero(t, msg.Version)

	for _, data := range []string{`{"type":"x"}`, `{"type":"x","data":null}`} {
		var m WSMessage
		require.NoError(t, json.Unmarshal([]byte(data), &m))
		fields, err := m.Fields()
		require.NoError(t, err)
		assert.Empty(t, fields)
	}

	bad := WSMessage{Data: json.RawMessage(`{"name":"bob"}`)}
	_, err = bad.Fields()
	assert.Error(t, err)
}
