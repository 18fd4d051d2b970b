// Package orchestrator composes the provider adapters into the fallback
// chains callers actually use: price resolution, category filing lookup
// with period matching, and batch announcement aggregation. Adapters fail
// soft; this package decides what "next" means when they do.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/scripdesk/internal/fiscal"
	"github.com/seenimoa/scripdesk/pkg/models"
)

// DefaultAnnouncementLimit caps a merged announcement batch.
const DefaultAnnouncementLimit = 60

// defaultStepTimeout bounds a single provider call inside a fallback
// chain so one hung endpoint cannot absorb the whole request budget.
const defaultStepTimeout = 15 * time.Second

// PriceProvider is the Yahoo adapter surface: three quote strategies in
// decreasing order of data quality, plus the listing search feed.
type PriceProvider interface {
	GetCandleQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetMetaQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	SearchSymbols(ctx context.Context, query string) ([]models.SymbolSearchResult, error)
}

// BSEProvider is the BSE adapter surface used by the fallback chains.
type BSEProvider interface {
	GetAnnouncements(ctx context.Context, scripCode string, from, to time.Time) ([]models.FilingRecord, error)
	GetCategoryFilings(ctx context.Context, scripCode, category string, from, to time.Time) ([]models.FilingRecord, error)
	QuoteSearch(ctx context.Context, symbol string) (string, error)
}

// NSEProvider is the NSE adapter surface used by the fallback chains.
type NSEProvider interface {
	GetAnnouncements(ctx context.Context, symbol string) ([]models.FilingRecord, error)
	GetAnnualReports(ctx context.Context, symbol string) ([]models.FilingRecord, error)
}

// AggregatorProvider is the screener.in adapter surface, the provider of
// last resort for document categories.
type AggregatorProvider interface {
	GetAnnualReports(ctx context.Context, symbol string) ([]models.FilingRecord, error)
	GetConcallDocs(ctx context.Context, symbol string, category models.Category) ([]models.FilingRecord, error)
	GetDocumentsAPI(ctx context.Context, symbol string) ([]models.FilingRecord, error)
}

// ScripResolver maps NSE symbols to BSE scrip codes with a
// self-correcting cache.
type ScripResolver interface {
	Resolve(ctx context.Context, symbol string) (string, error)
	Verify(companyName, symbol string) bool
	Evict(symbol string)
}

// Orchestrator runs the fallback chains.
type Orchestrator struct {
	resolver ScripResolver
	bse      BSEProvider
	nse      NSEProvider
	agg      AggregatorProvider
	prices   PriceProvider
	matcher  *fiscal.Matcher
	log      logrus.FieldLogger

	announcementLimit int
	stepTimeout       time.Duration
	now               func() time.Time

	// Last-known-good announcement batches keyed by symbol set. Served,
	// flagged stale, when a live fetch for the same set comes back empty.
	staleMu sync.RWMutex
	stale   map[string]models.AnnouncementBatch
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAnnouncementLimit overrides the merged batch cap. Non-positive
// values keep the default.
func WithAnnouncementLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.announcementLimit = n
		}
	}
}

// WithStepTimeout overrides the per-provider-call timeout inside the
// fallback chains. Non-positive values keep the default.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stepTimeout = d
		}
	}
}

// New creates an Orchestrator wiring the given adapters.
func New(resolver ScripResolver, bse BSEProvider, nse NSEProvider, agg AggregatorProvider, prices PriceProvider, log logrus.FieldLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:          resolver,
		bse:               bse,
		nse:               nse,
		agg:               agg,
		prices:            prices,
		matcher:           fiscal.NewMatcher(log),
		log:               log,
		announcementLimit: DefaultAnnouncementLimit,
		stepTimeout:       defaultStepTimeout,
		now:               time.Now,
		stale:             make(map[string]models.AnnouncementBatch),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// stepCtx derives the bounded context for one provider call.
func (o *Orchestrator) stepCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.stepTimeout)
}
