package broker

import (
	"encoding/json"

	"github.com/avvvet/namecard-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(subject string, data []byte) error
}

type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Writer is one client socket.
type Writer interface {
	WriteJSON(v interface{}) error
}

type Broker struct {
	Conn          Publisher
	GetConnection func(string) (Writer, bool)
}

func NewBroker(conn Publisher, fncGetConnection func(string) (Writer, bool)) *Broker {
	return &Broker{
		Conn:          conn,
		GetConnection: fncGetConnection,
	}
}

// consume message from card service
func (b *Broker) Subscribe(conn Subscriber, topic string) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to card service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages receive message from card service
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(msgNats.Data, message); err != nil {
		log.Errorf("Error %s", err)
		return
	}
	if message.SocketId == "" {
		log.Warnf("dropping %s without socket id", message.Type)
		return
	}

	b.sendMessage(message)
}

// send socket message to the web client
func (b *Broker) sendMessage(m *comm.WSMessage) {
	conn, ok := b.GetConnection(m.SocketId)
	if !ok {
		log.Debugf("socket %s is gone, dropping %s", m.SocketId, m.Type)
		return
	}
	if err := conn.WriteJSON(m); err != nil {
		log.Errorf("Error writing %s to socket %s: %s", m.Type, m.SocketId, err)
	}
}
