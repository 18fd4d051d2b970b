// Package store persists users, watchlists, portfolios and resolved scrip
// mappings in an embedded BadgerDB, queried through badgerhold.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("record already exists")
)

// Store wraps the embedded database.
type Store struct {
	db *badgerhold.Store
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil // badger's own logger is too chatty for a CLI tool

	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Scrip code mappings (resolver cache) ---

// ScripMapping is a persisted NSE symbol → BSE scrip code resolution.
type ScripMapping struct {
	Symbol     string    `badgerhold:"key"`
	Code       string    `json:"code"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// GetScripCode returns the cached scrip code for a symbol.
func (s *Store) GetScripCode(symbol string) (string, bool) {
	var m ScripMapping
	if err := s.db.Get(symbol, &m); err != nil {
		return "", false
	}
	return m.Code, m.Code != ""
}

// PutScripCode stores a resolved mapping, replacing any previous one.
func (s *Store) PutScripCode(symbol, code string) error {
	return s.db.Upsert(symbol, &ScripMapping{
		Symbol:     symbol,
		Code:       code,
		ResolvedAt: time.Now(),
	})
}

// DeleteScripCode removes a mapping. Missing records are not an error:
// eviction is idempotent.
func (s *Store) DeleteScripCode(symbol string) error {
	err := s.db.Delete(symbol, ScripMapping{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}
