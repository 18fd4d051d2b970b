package models

import "time"

// Quote is a point-in-time price snapshot for one symbol.
// Change and ChangePercent are derived, never taken from the provider:
// Change = Price - PreviousClose, ChangePercent = Change/PreviousClose*100
// when PreviousClose is non-zero, else 0.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Source        string    `json:"source"`
	AsOf          time.Time `json:"as_of"`
}

// Derive fills Change and ChangePercent from Price and PreviousClose,
// rounding both to two decimals.
func (q *Quote) Derive() {
	q.Change = round2(q.Price - q.PreviousClose)
	if q.PreviousClose != 0 {
		q.ChangePercent = round2((q.Price - q.PreviousClose) / q.PreviousClose * 100)
	} else {
		q.ChangePercent = 0
	}
}

// SymbolSearchResult is one match from a free-text listing search.
type SymbolSearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"` // "NSE" or "BSE"
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
