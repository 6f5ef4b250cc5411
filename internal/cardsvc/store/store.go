// Package store persists card ownership and equip state.
//
// Two backends implement Backend: SQLiteStore keeps everything in a local
// file behind one connection, PostgresStore talks to a remote server through
// a pgx pool. OwnershipStore sits in front of either one and turns their
// errors into empty results.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avvvet/namecard-services/internal/cardsvc/config"
	log "github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by a backend used before Connect succeeded or
// after Disconnect.
var ErrNotConnected = errors.New("storage is not connected")

// Table names shared by both backends.
const (
	ownershipTable = "card_ownership"
	equipTable     = "user_equip"
)

// Backend is the contract both storage engines satisfy.
type Backend interface {
	// Connect opens the connection or pool and creates missing tables.
	Connect(ctx context.Context) error
	// Disconnect releases every held connection. Safe to call repeatedly,
	// and before Connect.
	Disconnect() error

	// OwnedCardIDs returns the stored ownership rows for the user.
	OwnedCardIDs(ctx context.Context, userID string) ([]string, error)
	// AddCard inserts an ownership row; an existing row is left alone.
	AddCard(ctx context.Context, userID, cardID string) error
	// RemoveCard deletes an ownership row if present.
	RemoveCard(ctx context.Context, userID, cardID string) error

	// EquippedCardID returns the stored equipped id. ok is false when the
	// user has no row or the column is NULL.
	EquippedCardID(ctx context.Context, userID string) (cardID string, ok bool, err error)
	// SetEquippedCard upserts the equip row. An empty cardID stores NULL.
	SetEquippedCard(ctx context.Context, userID, cardID string) error
}

// Open builds the backend selected by cfg.StorageType. It does not connect.
func Open(cfg config.Config) (Backend, error) {
	switch cfg.StorageType {
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath), nil
	case "postgres", "postgresql":
		return NewPostgresStore(cfg.PostgresURL, cfg.PoolMaxConns, cfg.AcquireTimeout), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// OwnershipStore applies the storage failure policy: backend errors are
// logged with the failing operation and reported to callers as "no data".
// Card ids are lower-cased on the way in and on the way out.
type OwnershipStore struct {
	backend Backend
}

func NewOwnershipStore(backend Backend) *OwnershipStore {
	return &OwnershipStore{backend: backend}
}

func (s *OwnershipStore) Connect(ctx context.Context) error {
	if err := s.backend.Connect(ctx); err != nil {
		log.Errorf("Error [store.Connect] %s", err)
		return err
	}
	return nil
}

func (s *OwnershipStore) Disconnect() {
	if err := s.backend.Disconnect(); err != nil {
		log.Errorf("Error [store.Disconnect] %s", err)
	}
}

func (s *OwnershipStore) OwnedCardIDs(ctx context.Context, userID string) []string {
	ids, err := s.backend.OwnedCardIDs(ctx, userID)
	if err != nil {
		fail("OwnedCardIDs", userID, "", err)
		return []string{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, normalize(id))
	}
	return out
}

func (s *OwnershipStore) AddCard(ctx context.Context, userID, cardID string) {
	if err := s.backend.AddCard(ctx, userID, normalize(cardID)); err != nil {
		fail("AddCard", userID, cardID, err)
	}
}

func (s *OwnershipStore) RemoveCard(ctx context.Context, userID, cardID string) {
	if err := s.backend.RemoveCard(ctx, userID, normalize(cardID)); err != nil {
		fail("RemoveCard", userID, cardID, err)
	}
}

func (s *OwnershipStore) EquippedCardID(ctx context.Context, userID string) (string, bool) {
	id, ok, err := s.backend.EquippedCardID(ctx, userID)
	if err != nil {
		fail("EquippedCardID", userID, "", err)
		return "", false
	}
	id = normalize(id)
	return id, ok && id != ""
}

func (s *OwnershipStore) SetEquippedCard(ctx context.Context, userID, cardID string) {
	if err := s.backend.SetEquippedCard(ctx, userID, normalize(cardID)); err != nil {
		fail("SetEquippedCard", userID, cardID, err)
	}
}

func fail(op, userID, cardID string, err error) {
	log.WithFields(log.Fields{
		"op":      op,
		"user_id": userID,
		"card_id": cardID,
	}).Errorf("Error [store.%s] %s", op, err)
}
