// Package catalog holds the administrator-authored card definitions.
//
// A Catalog is rebuilt from its YAML document on every Load and published as
// a whole; readers that need several lookups to agree take one Snapshot and
// work from it.
package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/avvvet/namecard-services/internal/cardsvc/models"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	rootKey         = "namecards"
	cardsKey        = "cards"
	defaultIDKey    = "default-card-id"
	unnamedCardName = "Unnamed card"
)

// NormalizeID is the canonical form of a card id: trimmed and lower-cased.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Snapshot is one immutable generation of the catalog.
type Snapshot struct {
	cards     map[string]models.Card
	order     []string // normalized ids in document order
	defaultID string
}

type Catalog struct {
	path string
	gen  atomic.Pointer[Snapshot]
}

// New returns an empty catalog bound to the YAML file at path. Call Load to
// populate it.
func New(path string) *Catalog {
	c := &Catalog{path: path}
	c.gen.Store(&Snapshot{cards: map[string]models.Card{}})
	return c
}

// Load re-reads the catalog file. A file that cannot be read leaves an empty
// catalog behind.
func (c *Catalog) Load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		log.Errorf("unable to read card catalog %s: %s", c.path, err)
		c.publish(&Snapshot{cards: map[string]models.Card{}})
		return
	}
	c.LoadFrom(bytes.NewReader(data))
}

// LoadFrom builds a new generation from a YAML document and swaps it in.
func (c *Catalog) LoadFrom(r io.Reader) {
	c.publish(parse(r))
}

func (c *Catalog) publish(s *Snapshot) {
	c.gen.Store(s)
	log.Infof("loaded %d name cards", len(s.cards))
}

func (c *Catalog) Snapshot() *Snapshot {
	return c.gen.Load()
}

func (c *Catalog) Get(id string) (models.Card, bool) { return c.Snapshot().Get(id) }
func (c *Catalog) List() []models.Card { return c.Snapshot().List() }
func (c *Catalog) SortedByLayer() []models.Card { return c.Snapshot().SortedByLayer() }
func (c *Catalog) DefaultID() (string, bool) { return c.Snapshot().DefaultID() }
func (c *Catalog) DefaultCard() (models.Card, bool) { return c.Snapshot().DefaultCard() }
func (c *Catalog) Len() int { return c.Snapshot().Len() }

func (s *Snapshot) Get(id string) (models.Card, bool) {
	key := NormalizeID(id)
	if key == "" {
		return models.Card{}, false
	}
	card, ok := s.cards[key]
	return card, ok
}

// List returns every card in document order.
func (s *Snapshot) List() []models.Card {
	out := make([]models.Card, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.cards[id])
	}
	return out
}

// SortedByLayer returns every card by ascending layer; equal layers keep
// document order.
func (s *Snapshot) SortedByLayer() []models.Card {
	out := s.List()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Layer < out[j].Layer })
	return out
}

func (s *Snapshot) DefaultID() (string, bool) {
	return s.defaultID, s.defaultID != ""
}

func (s *Snapshot) DefaultCard() (models.Card, bool) {
	if s.defaultID == "" {
		return models.Card{}, false
	}
	return s.Get(s.defaultID)
}

// IsDefault reports whether id names the configured default card.
func (s *Snapshot) IsDefault(id string) bool {
	return s.defaultID != "" && strings.EqualFold(strings.TrimSpace(id), s.defaultID)
}

func (s *Snapshot) Len() int {
	return len(s.cards)
}

type cardEntry struct {
	Layer       *int    `yaml:"layer"`
	Texture     *string `yaml:"texture"`
	DisplayName *string `yaml:"display-name"`
	Description *string `yaml:"description"`
}

func parse(r io.Reader) *Snapshot {
	s := &Snapshot{cards: map[string]models.Card{}}

	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		log.Errorf("unable to parse card catalog: %s", err)
		return s
	}

	root := child(documentRoot(&doc), rootKey)
	cards := child(root, cardsKey)
	if cards == nil || cards.Kind != yaml.MappingNode {
		log.Warnf("no '%s.%s' section found in the card catalog, no cards loaded", rootKey, cardsKey)
	} else {
		for i := 0; i+1 < len(cards.Content); i += 2 {
			if err := s.add(cards.Content[i], cards.Content[i+1]); err != nil {
				log.Warnf("skipping card entry at line %d: %s", cards.Content[i].Line, err)
			}
		}
	}

	var defaultID string
	if n := child(root, defaultIDKey); n != nil && n.Kind == yaml.ScalarNode {
		defaultID = strings.TrimSpace(n.Value)
	}

	switch _, ok := s.Get(defaultID); {
	case defaultID == "":
		log.Warnf("'%s.%s' is not set, the default card fallback is disabled", rootKey, defaultIDKey)
	case !ok:
		log.Error("************************************************************")
		log.Errorf("* [config error] '%s' value '%s' is not a valid card id.", defaultIDKey, defaultID)
		log.Errorf("* Check that the id exists under '%s.%s'.", rootKey, cardsKey)
		log.Error("* The default card is disabled until a valid id is configured.")
		log.Error("************************************************************")
	default:
		s.defaultID = defaultID
	}

	return s
}

func (s *Snapshot) add(keyNode, valueNode *yaml.Node) error {
	id := strings.TrimSpace(keyNode.Value)
	if keyNode.Kind != yaml.ScalarNode || id == "" {
		return fmt.Errorf("card id must be a non-empty string")
	}
	if valueNode.Kind != yaml.MappingNode {
		return fmt.Errorf("card %q is not a mapping", id)
	}

	var e cardEntry
	if err := valueNode.Decode(&e); err != nil {
		return fmt.Errorf("card %q: %w", id, err)
	}

	card := models.Card{ID: id, DisplayName: unnamedCardName}
	if e.Layer != nil {
		card.Layer = *e.Layer
	}
	if e.Texture != nil {
		card.TexturePath = *e.Texture
	}
	if e.DisplayName != nil {
		card.DisplayName = *e.DisplayName
	}
	if e.Description != nil {
		card.Description = *e.Description
	}
	card.DisplayName = Colorize(card.DisplayName)
	card.Description = Colorize(card.Description)

	key := NormalizeID(id)
	if _, dup := s.cards[key]; dup {
		log.Warnf("card id %q is defined more than once, the last definition wins", id)
	} else {
		s.order = append(s.order, key)
	}
	s.cards[key] = card
	return nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return nil
}

// child returns the value node stored under key in a mapping node.
func child(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
