package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ProfileStore persists per-model profiles in SQLite. Each model owns one
// row holding a JSON document of field values; reads are frequent, writes
// are operator-driven, so last-write-wins is acceptable.
type ProfileStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewProfileStore opens (creating if necessary) the profile database.
func NewProfileStore(dbPath string) (*ProfileStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("profile db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	const schema = `
CREATE TABLE IF NOT EXISTS model_profiles (
	model_id   TEXT PRIMARY KEY,
	updated_at TEXT NOT NULL,
	fields     TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create profile schema: %w", err)
	}

	return &ProfileStore{db: db}, nil
}

// Close closes the underlying database.
func (s *ProfileStore) Close() error {
	return s.db.Close()
}

// Get returns the persisted profile for a model. A model without a profile
// yields an empty map, not an error.
func (s *ProfileStore) Get(ctx context.Context, modelID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM model_profiles WHERE model_id = ?`, modelID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for %q: %w", modelID, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("corrupt profile document for %q: %w", modelID, err)
	}
	return fields, nil
}

// Set replaces a model's profile with the given values. Nil values are
// stripped; an empty resulting profile deletes the row.
func (s *ProfileStore) Set(ctx context.Context, modelID string, values map[string]any) (map[string]any, error) {
	clean := make(map[string]any, len(values))
	for k, v := range values {
		if v != nil {
			clean[k] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, modelID, clean); err != nil {
		return nil, err
	}
	return clean, nil
}

// Patch merges updates into a model's profile. A nil value removes the
// field from the document ("null-to-unset"); other values overwrite.
// The merged profile is returned.
func (s *ProfileStore) Patch(ctx context.Context, modelID string, updates map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	for k, v := range updates {
		if v == nil {
			delete(current, k)
		} else {
			current[k] = v
		}
	}
	if err := s.write(ctx, modelID, current); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *ProfileStore) write(ctx context.Context, modelID string, fields map[string]any) error {
	if len(fields) == 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM model_profiles WHERE model_id = ?`, modelID); err != nil {
			return fmt.Errorf("failed to delete profile for %q: %w", modelID, err)
		}
		return nil
	}

	doc, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode profile for %q: %w", modelID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO model_profiles (model_id, updated_at, fields) VALUES (?, ?, ?)
ON CONFLICT(model_id) DO UPDATE SET updated_at = excluded.updated_at, fields = excluded.fields`,
		modelID, time.Now().UTC().Format(time.RFC3339), string(doc))
	if err != nil {
		return fmt.Errorf("failed to persist profile for %q: %w", modelID, err)
	}
	return nil
}
