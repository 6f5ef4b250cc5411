package service

import (
	"context"
	"strings"

	"github.com/avvvet/namecard-services/internal/cardsvc/catalog"
	"github.com/avvvet/namecard-services/internal/cardsvc/models"
)

// OwnershipStore is the storage the card service needs. Methods never fail:
// a storage error reads as "no data".
type OwnershipStore interface {
	OwnedCardIDs(ctx context.Context, userID string) []string
	AddCard(ctx context.Context, userID, cardID string)
	RemoveCard(ctx context.Context, userID, cardID string)
	EquippedCardID(ctx context.Context, userID string) (string, bool)
	SetEquippedCard(ctx context.Context, userID, cardID string)
}

// CardService combines the catalog with stored ownership and equip state.
// Its methods block on storage and must run on a worker, not on the loop.
type CardService struct {
	catalog *catalog.Catalog
	store   OwnershipStore
	locks   *userLocks
}

func NewCardService(c *catalog.Catalog, store OwnershipStore) *CardService {
	return &CardService{
		catalog: c,
		store:   store,
		locks:   newUserLocks(),
	}
}

// OwnedCards returns the user's cards that still exist in the catalog, plus
// the default card when one is configured. Order is unspecified.
func (s *CardService) OwnedCards(ctx context.Context, userID string) []models.Card {
	return s.OwnedCardsAt(ctx, s.catalog.Snapshot(), userID)
}

// OwnedCardsAt is OwnedCards resolved against snap, for callers that combine
// the result with other lookups on the same catalog generation.
func (s *CardService) OwnedCardsAt(ctx context.Context, snap *catalog.Snapshot, userID string) []models.Card {
	ids := s.store.OwnedCardIDs(ctx, userID)

	cards := make([]models.Card, 0, len(ids)+1)
	hasDefault := false
	for _, id := range ids {
		card, ok := snap.Get(id)
		if !ok {
			continue // removed from the catalog
		}
		if snap.IsDefault(card.ID) {
			hasDefault = true
		}
		cards = append(cards, card)
	}

	if !hasDefault {
		if def, ok := snap.DefaultCard(); ok {
			cards = append(cards, def)
		}
	}
	return cards
}

// HasCard reports whether the user owns cardID. The default card is owned by
// everyone and never hits storage.
func (s *CardService) HasCard(ctx context.Context, userID, cardID string) bool {
	if s.catalog.Snapshot().IsDefault(cardID) {
		return true
	}
	want := catalog.NormalizeID(cardID)
	for _, id := range s.store.OwnedCardIDs(ctx, userID) {
		if id == want {
			return true
		}
	}
	return false
}

// GiveCard grants cardID. Callers check that the card exists.
func (s *CardService) GiveCard(ctx context.Context, userID, cardID string) {
	s.store.AddCard(ctx, userID, catalog.NormalizeID(cardID))
}

// RemoveCard revokes cardID. If it is the equipped card, the user is switched
// to the default card (or to nothing) before the ownership row goes away.
func (s *CardService) RemoveCard(ctx context.Context, userID, cardID string) {
	unlock := s.locks.lock(userID)
	defer unlock()

	cardID = catalog.NormalizeID(cardID)
	if equipped, ok := s.store.EquippedCardID(ctx, userID); ok && strings.EqualFold(equipped, cardID) {
		def, _ := s.catalog.DefaultID()
		s.store.SetEquippedCard(ctx, userID, def)
	}
	s.store.RemoveCard(ctx, userID, cardID)
}

// SetEquippedCard stores cardID as equipped without checking ownership;
// validating callers use HasCard first.
func (s *CardService) SetEquippedCard(ctx context.Context, userID, cardID string) {
	unlock := s.locks.lock(userID)
	defer unlock()

	s.store.SetEquippedCard(ctx, userID, catalog.NormalizeID(cardID))
}

// EquipIfOwned equips cardID when the user owns it or it is the default
// card. The check and the write hold the user's lock, so a concurrent
// RemoveCard cannot slip between them.
func (s *CardService) EquipIfOwned(ctx context.Context, userID, cardID string) bool {
	unlock := s.locks.lock(userID)
	defer unlock()

	if !s.HasCard(ctx, userID, cardID) {
		return false
	}
	s.store.SetEquippedCard(ctx, userID, catalog.NormalizeID(cardID))
	return true
}

// EquippedCard resolves the equipped card. Nothing stored means the default
// card; a stored id that left the catalog resolves to nothing.
func (s *CardService) EquippedCard(ctx context.Context, userID string) (models.Card, bool) {
	snap := s.catalog.Snapshot()
	id, ok := s.store.EquippedCardID(ctx, userID)
	if !ok {
		return snap.DefaultCard()
	}
	return snap.Get(id)
}
