package command

import (
	"sync"

	"github.com/avvvet/namecard-services/internal/cardsvc/session"
	log "github.com/sirupsen/logrus"
)

// PlayerSender is a connected user issuing the command from their client.
type PlayerSender struct {
	session  *session.Session
	notifier Notifier
}

func NewPlayerSender(s *session.Session, n Notifier) *PlayerSender {
	return &PlayerSender{session: s, notifier: n}
}

func (p *PlayerSender) Name() string { return p.session.Name }
func (p *PlayerSender) HasPermission(perm string) bool { return p.session.HasPermission(perm) }
func (p *PlayerSender) SendMessage(text string) { p.notifier.Notify(p.session, text) }
func (p *PlayerSender) Player() (*session.Session, bool) { return p.session, true }

// ConsoleSender is the operator console. It holds every permission and
// keeps the messages it was sent.
type ConsoleSender struct {
	mu       sync.Mutex
	messages []string
}

func NewConsoleSender() *ConsoleSender {
	return &ConsoleSender{}
}

func (c *ConsoleSender) Name() string { return "CONSOLE" }
func (c *ConsoleSender) HasPermission(string) bool { return true }
func (c *ConsoleSender) Player() (*session.Session, bool) { return nil, false }

func (c *ConsoleSender) SendMessage(text string) {
	log.Info(text)

	c.mu.Lock()
	c.messages = append(c.messages, text)
	c.mu.Unlock()
}

func (c *ConsoleSender) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}
