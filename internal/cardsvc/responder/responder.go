// Package responder answers card packets sent by remote clients.
//
// Handle is called on the coordinating loop. Storage reads go to the worker
// pool and their results come back to the loop before anything is sent.
// Requests that cannot be answered (unknown tag, empty payload, target user
// offline, unknown version) get no reply at all.
package responder

import (
	"context"
	"sort"
	"strconv"

	"github.com/avvvet/namecard-services/internal/cardsvc/catalog"
	"github.com/avvvet/namecard-services/internal/cardsvc/models"
	"github.com/avvvet/namecard-services/internal/cardsvc/session"
	"github.com/avvvet/namecard-services/internal/cardsvc/worker"
	"github.com/avvvet/namecard-services/internal/comm"
	log "github.com/sirupsen/logrus"
)

// Request and response tags.
const (
	TagGetEquipped  = "get-equipped"
	TagGetOwnedList = "get-owned-list"
	TagGetCardByID  = "get-card-by-id"

	TagSendEquipped   = "send-equipped"
	TagSendOwnedList  = "send-owned-list"
	TagSendCardDetail = "send-card-detail"

	// NotFound is the only field of a card detail reply for an unknown id.
	NotFound = "null"
)

type Sessions interface {
	Lookup(name string) (*session.Session, bool)
}

// Sender delivers one packet to one client. It is only called on the loop.
type Sender interface {
	Send(to *session.Session, tag string, fields ...string)
}

type Cards interface {
	OwnedCardsAt(ctx context.Context, snap *catalog.Snapshot, userID string) []models.Card
	HasCard(ctx context.Context, userID, cardID string) bool
	EquippedCard(ctx context.Context, userID string) (models.Card, bool)
}

type Responder struct {
	catalog  *catalog.Catalog
	cards    Cards
	sessions Sessions
	sender   Sender
	pool     *worker.Pool
	loop     worker.Poster

	handlers map[string]func(requester *session.Session, fields []string)
}

func New(c *catalog.Catalog, cards Cards, sessions Sessions, sender Sender, pool *worker.Pool, loop worker.Poster) *Responder {
	r := &Responder{
		catalog:  c,
		cards:    cards,
		sessions: sessions,
		sender:   sender,
		pool:     pool,
		loop:     loop,
	}
	r.handlers = map[string]func(*session.Session, []string){
		TagGetEquipped:  r.handleGetEquipped,
		TagGetOwnedList: r.handleGetOwnedList,
		TagGetCardByID:  r.handleGetCardByID,
	}
	return r
}

// Handles reports whether tag is a card request.
func (r *Responder) Handles(tag string) bool {
	_, ok := r.handlers[tag]
	return ok
}

// Handle dispatches one inbound packet. version is the protocol version the
// client declared, zero when it declared none.
func (r *Responder) Handle(requester *session.Session, tag string, version int, fields []string) {
	h, ok := r.handlers[tag]
	if !ok {
		log.Debugf("ignoring unknown card request %q", tag)
		return
	}
	if version != 0 && version != comm.CardProtocolVersion {
		log.Debugf("ignoring %s with protocol version %d", tag, version)
		return
	}
	if requester == nil || len(fields) == 0 {
		log.Debugf("ignoring %s without requester or payload", tag)
		return
	}
	h(requester, fields)
}

func (r *Responder) handleGetEquipped(requester *session.Session, fields []string) {
	target, ok := r.sessions.Lookup(fields[0])
	if !ok {
		return
	}
	userID := target.UserID

	type result struct {
		card models.Card
		ok   bool
	}
	worker.Submit(r.pool, func(ctx context.Context) result {
		card, ok := r.cards.EquippedCard(ctx, userID)
		return result{card, ok}
	}).Then(r.loop, func(res result) {
		if !res.ok {
			return
		}
		r.sender.Send(requester, TagSendEquipped,
			res.card.TexturePath, res.card.DisplayName, res.card.Description)
	})
}

type listEntry struct {
	card  models.Card
	owned bool
}

// handleGetOwnedList sends the owned cards (default included) in layer order
// tagged "true", then every other catalog card in layer order tagged "false".
func (r *Responder) handleGetOwnedList(requester *session.Session, fields []string) {
	target, ok := r.sessions.Lookup(fields[0])
	if !ok {
		return
	}
	userID := target.UserID

	worker.Submit(r.pool, func(ctx context.Context) []listEntry {
		return r.ownedList(ctx, userID)
	}).Then(r.loop, func(entries []listEntry) {
		for _, e := range entries {
			r.sender.Send(requester, TagSendOwnedList,
				e.card.ID, e.card.TexturePath, e.card.DisplayName, e.card.Description,
				strconv.FormatBool(e.owned))
		}
	})
}

// ownedList reads both lists from one snapshot so a reload in between cannot
// repeat or drop a card.
func (r *Responder) ownedList(ctx context.Context, userID string) []listEntry {
	snap := r.catalog.Snapshot()
	owned := r.cards.OwnedCardsAt(ctx, snap, userID)
	sort.SliceStable(owned, func(i, j int) bool { return owned[i].Layer < owned[j].Layer })

	all := snap.SortedByLayer()
	entries := make([]listEntry, 0, len(all))
	seen := make(map[string]bool, len(owned))
	for _, c := range owned {
		seen[catalog.NormalizeID(c.ID)] = true
		entries = append(entries, listEntry{card: c, owned: true})
	}
	for _, c := range all {
		if !seen[catalog.NormalizeID(c.ID)] {
			entries = append(entries, listEntry{card: c, owned: false})
		}
	}
	return entries
}

func (r *Responder) handleGetCardByID(requester *session.Session, fields []string) {
	card, ok := r.catalog.Get(fields[0])
	if !ok {
		r.sender.Send(requester, TagSendCardDetail, NotFound)
		return
	}
	userID := requester.UserID

	worker.Submit(r.pool, func(ctx context.Context) bool {
		return r.cards.HasCard(ctx, userID, card.ID)
	}).Then(r.loop, func(owned bool) {
		r.sender.Send(requester, TagSendCardDetail,
			card.ID, card.TexturePath, card.DisplayName, card.Description, strconv.FormatBool(owned))
	})
}
