package ws

import (
	"encoding/json"
	"sync"

	"github.com/avvvet/namecard-services/internal/comm"
	"github.com/avvvet/namecard-services/internal/socketsvc/broker"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Client is a websocket connection. gorilla allows one concurrent writer,
// so every write goes through mu.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
	User comm.UserData
}

func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// Connect registers the socket and announces the user to the card service.
func (s *Ws) Connect(socketId string, conn *websocket.Conn, user comm.UserData) *Client {
	c := &Client{conn: conn, User: user}
	s.connMap.Store(socketId, c)

	data, err := json.Marshal(user)
	if err != nil {
		log.Errorf("Failed to marshal user %s: %v", user.UserId, err)
		return c
	}
	s.publish(&comm.WSMessage{Type: comm.TypeInit, Data: data, SocketId: socketId})
	log.Infof("Published init message for user %s to topic %s", user.UserId, comm.SocketTopic)
	return c
}

// HandleDisconnect forgets the socket and tells the card service.
func (s *Ws) HandleDisconnect(socketId string) {
	if _, ok := s.connMap.LoadAndDelete(socketId); !ok {
		return
	}
	s.publish(&comm.WSMessage{Type: comm.TypeLeave, Data: json.RawMessage("{}"), SocketId: socketId})
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "":
		log.Warnf("message without type from socket %s", socketId)
	case comm.TypeInit, comm.TypeLeave:
		// session lifecycle is driven by the connection itself
		log.Warnf("client sent reserved type %s on socket %s", message.Type, socketId)
	default:
		message.SocketId = socketId
		s.publish(message)
	}
}

func (s *Ws) publish(msg *comm.WSMessage) {
	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	if err := s.Broker.Publish(comm.SocketTopic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", comm.SocketTopic, err)
	}
}

func (s *Ws) GetConnection(socketId string) (broker.Writer, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*Client), true
}
