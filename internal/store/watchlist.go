package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

// Watchlist returns a user's entries ordered by rank.
func (s *Store) Watchlist(userID string) ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	err := s.db.Find(&entries, badgerhold.Where("UserID").Eq(userID).Index("UserID").SortBy("Rank"))
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	return entries, nil
}

// AddToWatchlist appends a symbol at the end of a user's watchlist.
// Adding a symbol that is already tracked is a no-op returning the
// existing entry.
func (s *Store) AddToWatchlist(userID, symbol string) (*models.WatchlistEntry, error) {
	symbol = utils.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	entries, err := s.Watchlist(userID)
	if err != nil {
		return nil, err
	}
	maxRank := 0
	for i := range entries {
		if entries[i].Symbol == symbol {
			return &entries[i], nil
		}
		if entries[i].Rank > maxRank {
			maxRank = entries[i].Rank
		}
	}

	entry := &models.WatchlistEntry{
		ID:      uuid.New().String(),
		UserID:  userID,
		Symbol:  symbol,
		Rank:    maxRank + 1,
		AddedAt: time.Now(),
	}
	if err := s.db.Insert(entry.ID, entry); err != nil {
		return nil, fmt.Errorf("add watchlist entry: %w", err)
	}
	return entry, nil
}

// RemoveFromWatchlist drops a symbol from a user's watchlist.
func (s *Store) RemoveFromWatchlist(userID, symbol string) error {
	symbol = utils.NormalizeSymbol(symbol)
	return s.db.DeleteMatching(models.WatchlistEntry{},
		badgerhold.Where("UserID").Eq(userID).Index("UserID").And("Symbol").Eq(symbol))
}

// ReorderWatchlist rewrites ranks to match the given symbol order. Symbols
// missing from the list keep their entries but sink below the reordered
// ones; unknown symbols are ignored.
func (s *Store) ReorderWatchlist(userID string, symbols []string) error {
	entries, err := s.Watchlist(userID)
	if err != nil {
		return err
	}

	rank := map[string]int{}
	for i, sym := range symbols {
		rank[utils.NormalizeSymbol(sym)] = i + 1
	}

	next := len(symbols) + 1
	for i := range entries {
		e := &entries[i]
		r, ok := rank[e.Symbol]
		if !ok {
			r = next
			next++
		}
		if e.Rank == r {
			continue
		}
		e.Rank = r
		if err := s.db.Update(e.ID, e); err != nil {
			return fmt.Errorf("reorder %s: %w", e.Symbol, err)
		}
	}
	return nil
}
