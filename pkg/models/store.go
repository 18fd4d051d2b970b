package models

import "time"

// User is a registered account. Passwords are stored as SHA-256 hex digests.
type User struct {
	ID           string    `json:"id" badgerhold:"key"`
	Username     string    `json:"username" badgerhold:"unique"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// WatchlistEntry is one tracked symbol for a user. Rank is an explicit
// user-controlled position, rewritable in bulk via reorder.
type WatchlistEntry struct {
	ID      string    `json:"id" badgerhold:"key"`
	UserID  string    `json:"user_id" badgerhold:"index"`
	Symbol  string    `json:"symbol"`
	Rank    int       `json:"rank"`
	AddedAt time.Time `json:"added_at"`
}

// Holding is one portfolio position.
type Holding struct {
	ID       string    `json:"id" badgerhold:"key"`
	UserID   string    `json:"user_id" badgerhold:"index"`
	Symbol   string    `json:"symbol"`
	Quantity float64   `json:"quantity"`
	BuyPrice float64   `json:"buy_price"`
	BuyDate  string    `json:"buy_date,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

// HoldingView is a Holding enriched with live price data for API responses.
type HoldingView struct {
	Holding
	CurrentPrice      float64 `json:"current_price"`
	CurrentValue      float64 `json:"current_value"`
	InvestedValue     float64 `json:"invested_value"`
	ProfitLoss        float64 `json:"profit_loss"`
	ProfitLossPercent float64 `json:"profit_loss_percent"`
}

// Enrich computes the derived valuation fields from a live price.
// A zero price leaves the valuation at cost so a feed outage does not
// show a position as wiped out.
func (h *HoldingView) Enrich(price float64) {
	h.InvestedValue = h.Quantity * h.BuyPrice
	if price <= 0 {
		h.CurrentPrice = h.BuyPrice
		h.CurrentValue = h.InvestedValue
		return
	}
	h.CurrentPrice = price
	h.CurrentValue = h.Quantity * price
	h.ProfitLoss = h.CurrentValue - h.InvestedValue
	if h.InvestedValue != 0 {
		h.ProfitLossPercent = h.ProfitLoss / h.InvestedValue * 100
	}
}
