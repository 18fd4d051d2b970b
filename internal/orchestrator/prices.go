package orchestrator

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

// ErrPriceUnavailable is returned when every price strategy failed.
var ErrPriceUnavailable = errors.New("price unavailable")

// maxPriceWorkers bounds the batch price pool.
const maxPriceWorkers = 10

// ResolvePrice walks the price strategies in order: daily candles, chart
// meta, then the bulk quote endpoint.
func (o *Orchestrator) ResolvePrice(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = utils.NormalizeSymbol(symbol)

	strategies := []struct {
		name string
		fn   func(context.Context, string) (*models.Quote, error)
	}{
		{"candles", o.prices.GetCandleQuote},
		{"chart_meta", o.prices.GetMetaQuote},
		{"quote", o.prices.GetQuote},
	}
	for _, s := range strategies {
		quote, err := s.fn(ctx, symbol)
		if err != nil {
			o.log.WithFields(map[string]any{
				"symbol":   symbol,
				"strategy": s.name,
			}).WithError(err).Debug("price strategy missed")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if quote != nil && quote.Price > 0 {
			return quote, nil
		}
	}
	return nil, ErrPriceUnavailable
}

// SearchSymbols finds NSE/BSE listings matching a free-text query,
// bounded like any other provider call. This is what feeds the
// watchlist-add flow: search first, then add the bare symbol.
func (o *Orchestrator) SearchSymbols(ctx context.Context, query string) ([]models.SymbolSearchResult, error) {
	sctx, cancel := o.stepCtx(ctx)
	defer cancel()
	return o.prices.SearchSymbols(sctx, query)
}

// ResolvePrices fetches quotes for a batch of symbols through a bounded
// worker pool. Symbols that fail are simply absent from the result map;
// a partial answer beats no answer.
func (o *Orchestrator) ResolvePrices(ctx context.Context, symbols []string) map[string]*models.Quote {
	results := make(map[string]*models.Quote, len(symbols))
	if len(symbols) == 0 {
		return results
	}

	limit := len(symbols)
	if limit > maxPriceWorkers {
		limit = maxPriceWorkers
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	seen := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		symbol := utils.NormalizeSymbol(raw)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true

		g.Go(func() error {
			quote, err := o.ResolvePrice(gctx, symbol)
			if err != nil {
				o.log.WithField("symbol", symbol).WithError(err).Warn("batch price miss")
				return nil
			}
			mu.Lock()
			results[symbol] = quote
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return results
}
