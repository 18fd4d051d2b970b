package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

// Holdings returns a user's portfolio positions.
func (s *Store) Holdings(userID string) ([]models.Holding, error) {
	var holdings []models.Holding
	err := s.db.Find(&holdings, badgerhold.Where("UserID").Eq(userID).Index("UserID").SortBy("AddedAt"))
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	return holdings, nil
}

// AddHolding records a new position.
func (s *Store) AddHolding(userID, symbol string, quantity, buyPrice float64, buyDate string) (*models.Holding, error) {
	symbol = utils.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if buyPrice < 0 {
		return nil, fmt.Errorf("buy price must not be negative")
	}

	h := &models.Holding{
		ID:       uuid.New().String(),
		UserID:   userID,
		Symbol:   symbol,
		Quantity: quantity,
		BuyPrice: buyPrice,
		BuyDate:  buyDate,
		AddedAt:  time.Now(),
	}
	if err := s.db.Insert(h.ID, h); err != nil {
		return nil, fmt.Errorf("add holding: %w", err)
	}
	return h, nil
}

// UpdateHolding replaces quantity and buy price on an existing position,
// checking that it belongs to the user.
func (s *Store) UpdateHolding(userID, holdingID string, quantity, buyPrice float64) (*models.Holding, error) {
	var h models.Holding
	if err := s.db.Get(holdingID, &h); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if h.UserID != userID {
		return nil, ErrNotFound
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	h.Quantity = quantity
	h.BuyPrice = buyPrice
	if err := s.db.Update(h.ID, &h); err != nil {
		return nil, fmt.Errorf("update holding: %w", err)
	}
	return &h, nil
}

// RemoveHolding deletes a position owned by the user.
func (s *Store) RemoveHolding(userID, holdingID string) error {
	var h models.Holding
	if err := s.db.Get(holdingID, &h); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if h.UserID != userID {
		return ErrNotFound
	}
	return s.db.Delete(holdingID, models.Holding{})
}
