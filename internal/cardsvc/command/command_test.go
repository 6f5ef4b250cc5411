package command

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/namecard-services/internal/cardsvc/catalog"
	"github.com/avvvet/namecard-services/internal/cardsvc/service"
	"github.com/avvvet/namecard-services/internal/cardsvc/session"
	"github.com/avvvet/namecard-services/internal/cardsvc/store"
	"github.com/avvvet/namecard-services/internal/cardsvc/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
namecards:
  default-card-id: bronze
  cards:
    bronze: {layer: 0, display-name: Bronze}
    gold: {layer: 1, display-name: Gold}
    goliath: {layer: 2, display-name: Goliath}
`

var inline = worker.PosterFunc(func(fn func()) bool { fn(); return true })

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (n *fakeNotifier) Notify(to *session.Session, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[to.Name] = append(n.sent[to.Name], text)
}

func (n *fakeNotifier) messages(name string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent[name]...)
}

type fixture struct {
	cmd      *Command
	catalog  *catalog.Catalog
	cards    *service.CardService
	notifier *fakeNotifier
	registry *session.Registry
	path     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	c := catalog.New(path)
	c.Load()

	b := store.NewSQLiteStore(filepath.Join(dir, "cards.db"))
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { _ = b.Disconnect() })
	cards := service.NewCardService(c, store.NewOwnershipStore(b))

	pool := worker.NewPool(2, time.Second)
	t.Cleanup(func() { pool.Close(time.Second) })

	registry := session.NewRegistry()
	registry.Register(session.New("Alice", "u-alice", "sock-a", []string{PermSet}))
	registry.Register(session.New("Bob", "u-bob", "sock-b", nil))

	n := &fakeNotifier{sent: map[string][]string{}}
	return &fixture{
		cmd:      New(c, cards, registry, n, pool, inline),
		catalog:  c,
		cards:    cards,
		notifier: n,
		registry: registry,
		path:     path,
	}
}

func (f *fixture) player(name string) *PlayerSender {
	s, ok := f.registry.Lookup(name)
	if !ok {
		panic("no session " + name)
	}
	return NewPlayerSender(s, f.notifier)
}

func run(t *testing.T, f *fixture, sender Sender, args ...string) {
	t.Helper()
	_, err := f.cmd.Run(sender, args).Await(context.Background())
	require.NoError(t, err)
}

func containsText(msgs []string, text string) bool {
	for _, m := range msgs {
		if strings.Contains(m, text) {
			return true
		}
	}
	return false
}

func TestExecuteAlwaysTrue(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.cmd.Execute(NewConsoleSender(), []string{"bogus"}))
	assert.True(t, f.cmd.Execute(f.player("bob"), nil))
}

func TestHelpFilteredByPermission(t *testing.T) {
	f := newFixture(t)

	console := NewConsoleSender()
	run(t, f, console)
	msgs := console.Messages()
	assert.Len(t, msgs, 5)
	assert.True(t, containsText(msgs, "/namecard reload"))
	assert.True(t, containsText(msgs, "/namecard set <cardId>"))

	run(t, f, f.player("alice"))
	msgs = f.notifier.messages("Alice")
	assert.Len(t, msgs, 2)
	assert.True(t, containsText(msgs, "/namecard set"))
	assert.False(t, containsText(msgs, "reload"))

	run(t, f, f.player("bob"))
	assert.True(t, containsText(f.notifier.messages("Bob"), "do not have permission"))
}

func TestUnknownSubcommand(t *testing.T) {
	f := newFixture(t)
	console := NewConsoleSender()
	run(t, f, console, "explode")
	assert.True(t, containsText(console.Messages(), "Usage: /namecard <reload|add|remove|set>"))
}

func TestAdd(t *testing.T) {
	f := newFixture(t)
	console := NewConsoleSender()

	run(t, f, console, "add", "bob", "GOLD")
	assert.True(t, containsText(console.Messages(), "Gave Bob the name card gold"))
	assert.True(t, containsText(f.notifier.messages("Bob"), "You received a new name card: gold"))
	assert.True(t, f.cards.HasCard(context.Background(), "u-bob", "gold"))
}

func TestAddRejections(t *testing.T) {
	f := newFixture(t)
	console := NewConsoleSender()

	run(t, f, console, "add", "carol", "gold")
	run(t, f, console, "add", "bob", "platinum")
	run(t, f, console, "add", "bob")
	msgs := console.Messages()
	assert.True(t, containsText(msgs, "Player carol is not online"))
	assert.True(t, containsText(msgs, "Card id platinum does not exist"))
	assert.True(t, containsText(msgs, "Usage: /namecard add <player> <cardId>"))

	run(t, f, f.player("alice"), "add", "bob", "gold")
	assert.True(t, containsText(f.notifier.messages("Alice"), "do not have permission"))
	assert.False(t, f.cards.HasCard(context.Background(), "u-bob", "gold"))
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cards.GiveCard(ctx, "u-bob", "gold")
	f.cards.SetEquippedCard(ctx, "u-bob", "gold")

	console := NewConsoleSender()
	run(t, f, console, "remove", "Bob", "gold")
	assert.True(t, containsText(console.Messages(), "Removed the name card gold from Bob"))
	assert.True(t, containsText(f.notifier.messages("Bob"), "Your name card gold was removed"))
	assert.False(t, f.cards.HasCard(ctx, "u-bob", "gold"))

	card, ok := f.cards.EquippedCard(ctx, "u-bob")
	require.True(t, ok)
	assert.Equal(t, "bronze", card.ID)
}

func TestSetRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.player("alice")

	run(t, f, alice, "set", "gold")
	assert.True(t, containsText(f.notifier.messages("Alice"), "You do not own that name card"))
	card, _ := f.cards.EquippedCard(ctx, "u-alice")
	assert.Equal(t, "bronze", card.ID)

	f.cards.GiveCard(ctx, "u-alice", "gold")
	run(t, f, alice, "set", "Gold")
	assert.True(t, containsText(f.notifier.messages("Alice"), "You equipped the name card gold"))
	card, _ = f.cards.EquippedCard(ctx, "u-alice")
	assert.Equal(t, "gold", card.ID)

	// the default card is always equippable
	run(t, f, alice, "set", "bronze")
	card, _ = f.cards.EquippedCard(ctx, "u-alice")
	assert.Equal(t, "bronze", card.ID)
}

func TestSetRejections(t *testing.T) {
	f := newFixture(t)

	console := NewConsoleSender()
	run(t, f, console, "set", "gold")
	assert.True(t, containsText(console.Messages(), "Only players can use this command"))

	run(t, f, f.player("bob"), "set", "gold")
	assert.True(t, containsText(f.notifier.messages("Bob"), "do not have permission"))

	alice := f.player("alice")
	run(t, f, alice, "set", "platinum")
	run(t, f, alice, "set")
	msgs := f.notifier.messages("Alice")
	assert.True(t, containsText(msgs, "Card id platinum does not exist"))
	assert.True(t, containsText(msgs, "Usage: /namecard set <cardId>"))
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.path, []byte(`
namecards:
  cards:
    ruby: {layer: 3}
`), 0o644))

	console := NewConsoleSender()
	run(t, f, console, "reload")
	assert.True(t, containsText(console.Messages(), "reloaded, 1 cards"))
	_, ok := f.catalog.Get("ruby")
	assert.True(t, ok)
	_, ok = f.catalog.Get("gold")
	assert.False(t, ok)
}

func complete(t *testing.T, f *fixture, sender Sender, args ...string) []string {
	t.Helper()
	out, err := f.cmd.Complete(sender, args).Await(context.Background())
	require.NoError(t, err)
	return out
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	console := NewConsoleSender()
	alice := f.player("alice")

	assert.Equal(t, []string{"reload", "remove"}, complete(t, f, console, "re"))
	assert.Equal(t, []string{"set"}, complete(t, f, alice, ""))
	assert.Equal(t, []string{"Alice"}, complete(t, f, console, "add", "al"))
	assert.Equal(t, []string{"gold", "goliath"}, complete(t, f, console, "remove", "bob", "GO"))
	assert.Empty(t, complete(t, f, console, "set", ""))

	f.cards.GiveCard(context.Background(), "u-alice", "goliath")
	assert.Equal(t, []string{"goliath"}, complete(t, f, alice, "set", "gol"))
	assert.ElementsMatch(t, []string{"bronze", "goliath"}, complete(t, f, alice, "set", ""))

	assert.Empty(t, complete(t, f, console, "add", "bob", "gold", "extra"))
}
