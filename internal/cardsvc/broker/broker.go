package broker

import (
	"encoding/json"

	"github.com/avvvet/namecard-services/internal/cardsvc/command"
	"github.com/avvvet/namecard-services/internal/cardsvc/responder"
	"github.com/avvvet/namecard-services/internal/cardsvc/session"
	"github.com/avvvet/namecard-services/internal/cardsvc/worker"
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

type Broker struct {
	conn      Publisher
	loop      worker.Poster
	registry  *session.Registry
	responder *responder.Responder
	command   *command.Command
}

func NewBroker(conn Publisher, loop worker.Poster, registry *session.Registry) *Broker {
	return &Broker{
		conn:     conn,
		loop:     loop,
		registry: registry,
	}
}

// Attach sets the packet handlers. They are built after the broker because
// both send through it.
func (b *Broker) Attach(r *responder.Responder, c *command.Command) {
	b.responder = r
	b.command = c
}

// handles message coming from socket service
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(msgNat.Data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	if !b.loop.Post(func() { b.dispatch(msg) }) {
		log.Warnf("loop stopped, dropping %s from socket %s", msg.Type, msg.SocketId)
	}
}

// dispatch runs on the loop.
func (b *Broker) dispatch(msg *comm.WSMessage) {
	switch msg.Type {
	case comm.TypeInit:
		user := comm.UserData{}
		if err := json.Unmarshal(msg.Data, &user); err != nil {
			log.Errorf("Error decoding init for socket %s: %s", msg.SocketId, err)
			return
		}
		if user.Name == "" || user.UserId == "" {
			log.Warnf("init without user for socket %s", msg.SocketId)
			return
		}
		b.registry.Register(session.New(user.Name, user.UserId, msg.SocketId, user.Permissions))
		log.Infof("%s joined on socket %s", user.Name, msg.SocketId)

	case comm.TypeLeave:
		if s, ok := b.registry.Remove(msg.SocketId); ok {
			log.Infof("%s left", s.Name)
		}

	case comm.TypeCommand:
		requester, args, ok := b.request(msg)
		if !ok {
			return
		}
		b.command.Execute(command.NewPlayerSender(requester, b), args)

	case comm.TypeCommandComplete:
		requester, args, ok := b.request(msg)
		if !ok {
			return
		}
		b.command.Complete(command.NewPlayerSender(requester, b), args).Then(b.loop, func(suggestions []string) {
			b.Send(requester, comm.TypeCommandSuggestions, suggestions...)
		})

	default:
		if !b.responder.Handles(msg.Type) {
			log.Debugf("Unknown message %q from socket %s", msg.Type, msg.SocketId)
			return
		}
		requester, fields, ok := b.request(msg)
		if !ok {
			return
		}
		b.responder.Handle(requester, msg.Type, msg.Version, fields)
	}
}

// request resolves the sending session and decodes the packet fields.
func (b *Broker) request(msg *comm.WSMessage) (*session.Session, []string, bool) {
	requester, ok := b.registry.BySocket(msg.SocketId)
	if !ok {
		log.Debugf("ignoring %s from unknown socket %s", msg.Type, msg.SocketId)
		return nil, nil, false
	}
	fields, err := msg.Fields()
	if err != nil {
		log.Debugf("ignoring %s with bad payload: %s", msg.Type, err)
		return nil, nil, false
	}
	return requester, fields, true
}

// Send publishes a card packet for one client.
func (b *Broker) Send(to *session.Session, tag string, fields ...string) {
	msg, err := comm.NewPacket(tag, to.SocketID, fields...)
	if err != nil {
		log.Errorf("Error [Send] unable to build %s packet: %s", tag, err)
		return
	}
	b.publish(msg)
}

// Notify shows a chat line to one client.
func (b *Broker) Notify(to *session.Session, text string) {
	data, err := json.Marshal(comm.ChatMessage{Text: text})
	if err != nil {
		log.Errorf("Error [Notify] unable to marshal message for %s", to.Name)
		return
	}
	b.publish(&comm.WSMessage{
		Type:     comm.TypeMessage,
		Data:     data,
		SocketId: to.SocketID,
		Version:  comm.CardProtocolVersion,
	})
}

func (b *Broker) publish(msg *comm.WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}
	b.Publish(comm.CardTopic, payload)
}

// consume message from socket service
func (b *Broker) SubscribSocketService(conn Subscriber, topic string) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(topic, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// card service publish message for socket service to consume
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
