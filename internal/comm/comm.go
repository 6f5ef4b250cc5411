package comm

import (
	"encoding/json"
)

// CardProtocolVersion is stamped on every card packet the card service sends.
// Clients may declare it on requests; packets with another non-zero version
// are ignored.
const CardProtocolVersion = 1

// NATS subjects shared by the socket gateway and the card service.
const (
	SocketTopic = "socket.service" // socket gateway -> card service
	CardTopic   = "card.service"   // card service -> socket gateway
)

// Envelope types that are not card packets.
const (
	TypeInit               = "init"
	TypeLeave              = "leave"
	TypeCommand            = "command"
	TypeCommandComplete    = "command-complete"
	TypeCommandSuggestions = "command-suggestions"
	TypeMessage            = "message"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "init", "get-owned-list"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
	Version  int             `json:"v,omitempty"`
}

// UserData is published by the socket gateway when a client connects.
type UserData struct {
	UserId      string   `json:"user_id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// ChatMessage is feedback text shown to a single client.
type ChatMessage struct {
	Text string `json:"text"`
}

// Fields decodes a packet payload. Card packets carry an ordered list of
// strings; a missing or null payload yields no fields.
func (m *WSMessage) Fields() ([]string, error) {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil, nil
	}
	var fields []string
	if err := json.Unmarshal(m.Data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// NewPacket builds a versioned card packet addressed to socketId.
func NewPacket(tag, socketId string, fields ...string) (*WSMessage, error) {
	if fields == nil {
		fields = []string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return &WSMessage{
		Type:     tag,
		Data:     data,
		SocketId: socketId,
		Version:  CardProtocolVersion,
	}, nil
}
