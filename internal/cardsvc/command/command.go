// Package command implements the /namecard administrative and player command.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/avvvet/namecard-services/internal/cardsvc/catalog"
	"github.com/avvvet/namecard-services/internal/cardsvc/models"
	"github.com/avvvet/namecard-services/internal/cardsvc/session"
	"github.com/avvvet/namecard-services/internal/cardsvc/worker"
	log "github.com/sirupsen/logrus"
)

const Label = "namecard"

const (
	PermReload = "namecards.admin.reload"
	PermAdd    = "namecards.admin.add"
	PermRemove = "namecards.admin.remove"
	PermSet    = "namecards.player.set"
)

// Sender is whoever issued the command.
type Sender interface {
	Name() string
	HasPermission(perm string) bool
	SendMessage(text string)
	// Player returns the session behind the sender, false for the console.
	Player() (*session.Session, bool)
}

type Sessions interface {
	Lookup(name string) (*session.Session, bool)
	Names() []string
}

// Notifier shows a chat line to an online user.
type Notifier interface {
	Notify(to *session.Session, text string)
}

type Cards interface {
	OwnedCards(ctx context.Context, userID string) []models.Card
	GiveCard(ctx context.Context, userID, cardID string)
	RemoveCard(ctx context.Context, userID, cardID string)
	EquipIfOwned(ctx context.Context, userID, cardID string) bool
}

type subcommand struct {
	name  string
	perm  string
	usage string
	help  string
}

var subcommands = []subcommand{
	{"reload", PermReload, "reload", "reload the card catalog"},
	{"add", PermAdd, "add <player> <cardId>", "give a card to an online player"},
	{"remove", PermRemove, "remove <player> <cardId>", "take a card from an online player"},
	{"set", PermSet, "set <cardId>", "equip one of your cards"},
}

type Command struct {
	catalog  *catalog.Catalog
	cards    Cards
	sessions Sessions
	notifier Notifier
	pool     *worker.Pool
	loop     worker.Poster
}

func New(c *catalog.Catalog, cards Cards, sessions Sessions, notifier Notifier, pool *worker.Pool, loop worker.Poster) *Command {
	return &Command{
		catalog:  c,
		cards:    cards,
		sessions: sessions,
		notifier: notifier,
		pool:     pool,
		loop:     loop,
	}
}

// Execute runs the command on the loop. Storage work continues on the pool
// and reports back to the sender later. It always returns true.
func (c *Command) Execute(sender Sender, args []string) bool {
	c.Run(sender, args)
	return true
}

// Run is Execute returning a future that resolves once every message of the
// invocation has been sent.
func (c *Command) Run(sender Sender, args []string) *worker.Future[struct{}] {
	log.Infof("%s issued command: /%s %s", sender.Name(), Label, strings.Join(args, " "))

	if len(args) == 0 {
		c.help(sender)
		return done()
	}

	switch strings.ToLower(args[0]) {
	case "reload":
		return c.reload(sender)
	case "add":
		return c.add(sender, args)
	case "remove":
		return c.remove(sender, args)
	case "set":
		return c.set(sender, args)
	default:
		sender.SendMessage(red(fmt.Sprintf("Unknown subcommand. Usage: /%s <reload|add|remove|set>", Label)))
		return done()
	}
}

func (c *Command) help(sender Sender) {
	var lines []string
	for _, sc := range subcommands {
		if sender.HasPermission(sc.perm) {
			lines = append(lines, catalog.Colorize(fmt.Sprintf("&6/%s %s &7- %s", Label, sc.usage, sc.help)))
		}
	}
	if len(lines) == 0 {
		sender.SendMessage(red("You do not have permission to use this command."))
		return
	}
	sender.SendMessage(catalog.Colorize("&6NameCard commands:"))
	for _, l := range lines {
		sender.SendMessage(l)
	}
}

func (c *Command) reload(sender Sender) *worker.Future[struct{}] {
	if !c.permitted(sender, PermReload) {
		return done()
	}
	return c.pool.Go(func(ctx context.Context) {
		c.catalog.Load()
	}).Then(c.loop, func(struct{}) {
		sender.SendMessage(green(fmt.Sprintf("Name card catalog reloaded, %d cards.", c.catalog.Len())))
	})
}

func (c *Command) add(sender Sender, args []string) *worker.Future[struct{}] {
	if !c.permitted(sender, PermAdd) {
		return done()
	}
	if len(args) != 3 {
		sender.SendMessage(red(fmt.Sprintf("Usage: /%s add <player> <cardId>", Label)))
		return done()
	}

	target, ok := c.sessions.Lookup(args[1])
	if !ok {
		sender.SendMessage(red(fmt.Sprintf("Player %s is not online.", args[1])))
		return done()
	}
	card, ok := c.catalog.Get(args[2])
	if !ok {
		sender.SendMessage(red(fmt.Sprintf("Card id %s does not exist.", args[2])))
		return done()
	}

	userID := target.UserID
	return c.pool.Go(func(ctx context.Context) {
		c.cards.GiveCard(ctx, userID, card.ID)
	}).Then(c.loop, func(struct{}) {
		sender.SendMessage(green(fmt.Sprintf("Gave %s the name card %s.", target.Name, card.ID)))
		c.notifier.Notify(target, green(fmt.Sprintf("You received a new name card: %s", card.ID)))
	})
}

func (c *Command) remove(sender Sender, args []string) *worker.Future[struct{}] {
	if !c.permitted(sender, PermRemove) {
		return done()
	}
	if len(args) != 3 {
		sender.SendMessage(red(fmt.Sprintf("Usage: /%s remove <player> <cardId>", Label)))
		return done()
	}

	target, ok := c.sessions.Lookup(args[1])
	if !ok {
		sender.SendMessage(red(fmt.Sprintf("Player %s is not online.", args[1])))
		return done()
	}

	userID, cardID := target.UserID, args[2]
	return c.pool.Go(func(ctx context.Context) {
		c.cards.RemoveCard(ctx, userID, cardID)
	}).Then(c.loop, func(struct{}) {
		sender.SendMessage(green(fmt.Sprintf("Removed the name card %s from %s.", cardID, target.Name)))
		c.notifier.Notify(target, red(fmt.Sprintf("Your name card %s was removed.", cardID)))
	})
}

// set equips a card the player owns, or the default card.
func (c *Command) set(sender Sender, args []string) *worker.Future[struct{}] {
	player, ok := sender.Player()
	if !ok {
		sender.SendMessage(red("Only players can use this command."))
		return done()
	}
	if !c.permitted(sender, PermSet) {
		return done()
	}
	if len(args) != 2 {
		sender.SendMessage(red(fmt.Sprintf("Usage: /%s set <cardId>", Label)))
		return done()
	}

	card, ok := c.catalog.Get(args[1])
	if !ok {
		sender.SendMessage(red(fmt.Sprintf("Card id %s does not exist.", args[1])))
		return done()
	}

	userID := player.UserID
	return worker.Submit(c.pool, func(ctx context.Context) bool {
		return c.cards.EquipIfOwned(ctx, userID, card.ID)
	}).Then(c.loop, func(equipped bool) {
		if !equipped {
			sender.SendMessage(red("You do not own that name card."))
			return
		}
		sender.SendMessage(green(fmt.Sprintf("You equipped the name card %s.", card.ID)))
	})
}

func (c *Command) permitted(sender Sender, perm string) bool {
	if sender.HasPermission(perm) {
		return true
	}
	sender.SendMessage(red("You do not have permission to use this command."))
	return false
}

// Complete suggests values for the last argument. The future resolves on a
// worker when owned cards have to be read, so callers use Then to get back
// to the loop.
func (c *Command) Complete(sender Sender, args []string) *worker.Future[[]string] {
	switch len(args) {
	case 1:
		var out []string
		for _, sc := range subcommands {
			if sender.HasPermission(sc.perm) && hasPrefix(sc.name, args[0]) {
				out = append(out, sc.name)
			}
		}
		return worker.Resolved(out)
	case 2:
		switch strings.ToLower(args[0]) {
		case "set":
			player, ok := sender.Player()
			if !ok {
				return worker.Resolved[[]string](nil)
			}
			userID, prefix := player.UserID, args[1]
			return worker.Submit(c.pool, func(ctx context.Context) []string {
				var out []string
				for _, card := range c.cards.OwnedCards(ctx, userID) {
					if hasPrefix(card.ID, prefix) {
						out = append(out, card.ID)
					}
				}
				return out
			})
		case "add", "remove":
			var out []string
			for _, name := range c.sessions.Names() {
				if hasPrefix(name, args[1]) {
					out = append(out, name)
				}
			}
			return worker.Resolved(out)
		}
	case 3:
		switch strings.ToLower(args[0]) {
		case "add", "remove":
			var out []string
			for _, card := range c.catalog.List() {
				if hasPrefix(card.ID, args[2]) {
					out = append(out, card.ID)
				}
			}
			return worker.Resolved(out)
		}
	}
	return worker.Resolved[[]string](nil)
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func green(s string) string { return catalog.Colorize("&a" + s) }
func red(s string) string   { return catalog.Colorize("&c" + s) }

func done() *worker.Future[struct{}] { return worker.Resolved(struct{}{}) }
