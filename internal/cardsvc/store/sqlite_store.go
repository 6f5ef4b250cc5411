package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded backend. Every operation goes through one
// persistent connection and is serialized by mu.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	if strings.TrimSpace(s.path) == "" {
		return fmt.Errorf("sqlite path is required")
	}

	cleanPath := filepath.Clean(s.path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cleanPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite db: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS ` + equipTable + ` (
			user_id          TEXT PRIMARY KEY NOT NULL,
			equipped_card_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ` + ownershipTable + ` (
			user_id TEXT NOT NULL,
			card_id TEXT NOT NULL,
			UNIQUE (user_id, card_id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("create tables: %w", err)
		}
	}

	s.db = db
	log.Infof("sqlite storage opened at %s", cleanPath)
	return nil
}

func (s *SQLiteStore) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close sqlite db: %w", err)
	}
	log.Info("sqlite storage closed")
	return nil
}

func (s *SQLiteStore) OwnedCardIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrNotConnected
	}

	rows, err := s.db.QueryContext(ctx, `SELECT card_id FROM `+ownershipTable+` WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query owned cards: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owned card: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owned cards: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) AddCard(ctx context.Context, userID, cardID string) error {
	return s.exec(ctx, "add card",
		`INSERT OR IGNORE INTO `+ownershipTable+` (user_id, card_id) VALUES (?, ?)`, userID, cardID)
}

func (s *SQLiteStore) RemoveCard(ctx context.Context, userID, cardID string) error {
	return s.exec(ctx, "remove card",
		`DELETE FROM `+ownershipTable+` WHERE user_id = ? AND card_id = ?`, userID, cardID)
}

func (s *SQLiteStore) EquippedCardID(ctx context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return "", false, ErrNotConnected
	}

	var id sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT equipped_card_id FROM `+equipTable+` WHERE user_id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query equipped card: %w", err)
	}
	return id.String, id.Valid, nil
}

func (s *SQLiteStore) SetEquippedCard(ctx context.Context, userID, cardID string) error {
	return s.exec(ctx, "set equipped card", `
INSERT INTO `+equipTable+` (user_id, equipped_card_id) VALUES (?, ?)
ON CONFLICT(user_id) DO UPDATE SET equipped_card_id = excluded.equipped_card_id`,
		userID, nullable(cardID))
}

func (s *SQLiteStore) exec(ctx context.Context, what, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotConnected
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func nullable(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}
