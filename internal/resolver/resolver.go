// Package resolver maps NSE trading symbols to BSE scrip codes. BSE keys
// every API by a six-digit numeric code it never prints next to the NSE
// symbol, so the mapping is recovered through a cascade of search
// endpoints and cached once found.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/scripdesk/pkg/utils"
)

// ErrNotFound is returned when no strategy produced a scrip code.
var ErrNotFound = errors.New("scrip code not found")

// defaultStrategyTimeout bounds each lookup strategy so one hung endpoint
// cannot stall the whole cascade.
const defaultStrategyTimeout = 10 * time.Second

// BSESearcher is the subset of the BSE adapter the cascade needs.
type BSESearcher interface {
	SearchCompany(ctx context.Context, symbol string) (string, error)
	SearchFreeText(ctx context.Context, symbol string) (string, error)
	QuoteSearch(ctx context.Context, symbol string) (string, error)
	ScripHeaderCode(ctx context.Context, symbol string) (string, error)
	SearchByISIN(ctx context.Context, isin string) (string, error)
}

// ISINSource resolves a symbol to its ISIN, used to cross-reference the
// BSE listing when the symbol searches all miss.
type ISINSource interface {
	GetISIN(ctx context.Context, symbol string) (string, error)
}

// CodeCache persists resolved symbol→code mappings across runs.
type CodeCache interface {
	GetScripCode(symbol string) (string, bool)
	PutScripCode(symbol, code string) error
	DeleteScripCode(symbol string) error
}

// Resolver runs the scrip-code lookup cascade.
type Resolver struct {
	bse   BSESearcher
	nse   ISINSource
	cache CodeCache
	log   logrus.FieldLogger

	strategyTimeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrategyTimeout overrides the per-strategy timeout. Non-positive
// values keep the default.
func WithStrategyTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.strategyTimeout = d
		}
	}
}

// New creates a Resolver. cache may be nil, in which case every call runs
// the full cascade.
func New(bse BSESearcher, nse ISINSource, cache CodeCache, log logrus.FieldLogger, opts ...Option) *Resolver {
	r := &Resolver{
		bse:             bse,
		nse:             nse,
		cache:           cache,
		log:             log,
		strategyTimeout: defaultStrategyTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// builtinCodes covers the symbols that show up in nearly every watchlist,
// saving the cascade for the long tail.
var builtinCodes = map[string]string{
	"RELIANCE":   "500325",
	"TCS":        "532540",
	"INFY":       "500209",
	"HDFCBANK":   "500180",
	"ICICIBANK":  "532174",
	"SBIN":       "500112",
	"WIPRO":      "507685",
	"ITC":        "500875",
	"LT":         "500510",
	"HINDUNILVR": "500696",
	"BHARTIARTL": "532454",
	"KOTAKBANK":  "500247",
	"AXISBANK":   "532215",
	"MARUTI":     "532500",
	"ASIANPAINT": "500820",
	"TITAN":      "500114",
	"BAJFINANCE": "500034",
	"SUNPHARMA":  "524715",
	"TATAMOTORS": "500570",
	"TATASTEEL":  "500470",
}

// Resolve returns the BSE scrip code for an NSE symbol. The cascade stops
// at the first strategy that yields a code; each miss is logged and
// swallowed so a flaky endpoint never fails a symbol another strategy can
// still resolve.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (string, error) {
	symbol = utils.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", ErrNotFound
	}

	if r.cache != nil {
		if code, ok := r.cache.GetScripCode(symbol); ok && code != "" {
			return code, nil
		}
	}
	if code, ok := builtinCodes[symbol]; ok {
		r.store(symbol, code)
		return code, nil
	}

	strategies := []struct {
		name string
		fn   func(context.Context, string) (string, error)
	}{
		{"company_search", r.bse.SearchCompany},
		{"free_text_search", r.bse.SearchFreeText},
		{"quote_search", r.bse.QuoteSearch},
		{"scrip_header", r.bse.ScripHeaderCode},
		{"isin_lookup", r.resolveViaISIN},
	}

	for _, s := range strategies {
		sctx, cancel := context.WithTimeout(ctx, r.strategyTimeout)
		code, err := s.fn(sctx, symbol)
		cancel()
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"symbol":   symbol,
				"strategy": s.name,
			}).WithError(err).Debug("scrip lookup strategy missed")
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if code == "" {
			continue
		}
		r.log.WithFields(logrus.Fields{
			"symbol":   symbol,
			"strategy": s.name,
			"code":     code,
		}).Info("resolved scrip code")
		r.store(symbol, code)
		return code, nil
	}
	return "", ErrNotFound
}

// resolveViaISIN cross-references the NSE listing's ISIN against the BSE
// company search. Last resort: two network calls, but it works for scrips
// whose BSE records carry no NSE symbol field.
func (r *Resolver) resolveViaISIN(ctx context.Context, symbol string) (string, error) {
	isin, err := r.nse.GetISIN(ctx, symbol)
	if err != nil {
		return "", err
	}
	return r.bse.SearchByISIN(ctx, isin)
}

// Verify checks a resolved code against the company name BSE returned for
// it. The name, uppercased and with spaces stripped, must contain either
// the full symbol or its first four characters. A mismatch means the
// cached mapping went stale (corporate action, symbol reuse) and the
// caller should Evict and re-resolve.
func (r *Resolver) Verify(companyName, symbol string) bool {
	name := strings.ToUpper(strings.ReplaceAll(companyName, " ", ""))
	sym := utils.NormalizeSymbol(symbol)
	if name == "" || sym == "" {
		return false
	}
	prefix := sym
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return strings.Contains(name, prefix) || strings.Contains(name, sym)
}

// Evict drops a cached mapping so the next Resolve re-runs the cascade.
func (r *Resolver) Evict(symbol string) {
	if r.cache == nil {
		return
	}
	symbol = utils.NormalizeSymbol(symbol)
	if err := r.cache.DeleteScripCode(symbol); err != nil {
		r.log.WithField("symbol", symbol).WithError(err).Warn("evict scrip mapping failed")
	}
}

func (r *Resolver) store(symbol, code string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.PutScripCode(symbol, code); err != nil {
		r.log.WithField("symbol", symbol).WithError(err).Warn("persist scrip mapping failed")
	}
}
