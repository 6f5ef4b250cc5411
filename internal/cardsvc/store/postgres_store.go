package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/namecard-services/internal/cardsvc/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const defaultAcquireTimeout = 5 * time.Second

// PostgresStore is the networked backend. Concurrent calls may run on
// different pooled connections; a connection that cannot be acquired within
// acquireTimeout fails only that call.
type PostgresStore struct {
	dsn            string
	maxConns       int32
	acquireTimeout time.Duration

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

func NewPostgresStore(dsn string, maxConns int32, acquireTimeout time.Duration) *PostgresStore {
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	return &PostgresStore{dsn: dsn, maxConns: maxConns, acquireTimeout: acquireTimeout}
}

func (s *PostgresStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		return nil
	}

	pool, err := db.Connect(ctx, s.dsn, s.maxConns)
	if err != nil {
		return err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS ` + equipTable + ` (
			user_id          VARCHAR(64) PRIMARY KEY,
			equipped_card_id VARCHAR(255) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + ownershipTable + ` (
			user_id VARCHAR(64)  NOT NULL,
			card_id VARCHAR(255) NOT NULL,
			CONSTRAINT card_ownership_user_card_unique UNIQUE (user_id, card_id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return fmt.Errorf("create tables: %w", err)
		}
	}

	s.pool = pool
	log.Infof("postgres storage pool ready (max conns %d)", pool.Config().MaxConns)
	return nil
}

func (s *PostgresStore) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	log.Info("postgres storage pool closed")
	return nil
}

// acquire checks a connection out of the pool, giving up after
// acquireTimeout. The caller must Release it.
func (s *PostgresStore) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	s.mu.RLock()
	pool := s.pool
	s.mu.RUnlock()

	if pool == nil {
		return nil, ErrNotConnected
	}

	actx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	conn, err := pool.Acquire(actx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

func (s *PostgresStore) OwnedCardIDs(ctx context.Context, userID string) ([]string, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT card_id FROM `+ownershipTable+` WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query owned cards: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect owned cards: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *PostgresStore) AddCard(ctx context.Context, userID, cardID string) error {
	return s.exec(ctx, "add card", `
INSERT INTO `+ownershipTable+` (user_id, card_id) VALUES ($1, $2)
ON CONFLICT (user_id, card_id) DO NOTHING`, userID, cardID)
}

func (s *PostgresStore) RemoveCard(ctx context.Context, userID, cardID string) error {
	return s.exec(ctx, "remove card",
		`DELETE FROM `+ownershipTable+` WHERE user_id = $1 AND card_id = $2`, userID, cardID)
}

func (s *PostgresStore) EquippedCardID(ctx context.Context, userID string) (string, bool, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return "", false, err
	}
	defer conn.Release()

	var id *string
	err = conn.QueryRow(ctx,
		`SELECT equipped_card_id FROM `+equipTable+` WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query equipped card: %w", err)
	}
	if id == nil {
		return "", false, nil
	}
	return *id, true, nil
}

func (s *PostgresStore) SetEquippedCard(ctx context.Context, userID, cardID string) error {
	var value *string
	if cardID != "" {
		value = &cardID
	}
	return s.exec(ctx, "set equipped card", `
INSERT INTO `+equipTable+` (user_id, equipped_card_id) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET equipped_card_id = EXCLUDED.equipped_card_id`, userID, value)
}

func (s *PostgresStore) exec(ctx context.Context, what, query string, args ...any) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
