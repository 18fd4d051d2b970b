package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/seenimoa/scripdesk/internal/fiscal"
	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

// ErrNoFilings is returned when every provider came back empty for a
// category.
var ErrNoFilings = errors.New("no filings found")

// filingLookback is the BSE category query window. Two fiscal years covers
// any period a caller can reasonably ask for.
const filingLookback = 2 * 365 * 24 * time.Hour

// bseCategorySynonyms maps a category to the BSE taxonomy strings that have
// been observed labeling it. BSE's taxonomy drifts across filings, so each
// is tried in order until one returns records.
var bseCategorySynonyms = map[models.Category][]string{
	models.CategoryAnnualReport: {
		"Annual Report",
	},
	models.CategoryTranscript: {
		"Analysts/Institutional Investor Meet/Con. Call Updates",
		"Analysts/Institutional Investor Meet",
		"Analyst/Investor Meet",
		"Conference Call",
		"Earnings Call",
	},
	models.CategoryPresentation: {
		"Investor Presentation",
		"Investor Relations",
		"Investor / Analyst Presentation",
		"Corporate Presentation",
		"Presentation",
		"Investor Meet",
		"Investor / Analyst Meet",
	},
}

// titleKeywords labels untagged announcement titles with a category.
var titleKeywords = map[models.Category][]string{
	models.CategoryAnnualReport: {
		"annual report",
	},
	models.CategoryTranscript: {
		"concall", "con call", "conference call", "earnings call",
		"analyst meet", "institutional investor", "transcript",
		"investor meet", "con-call", "earnings transcript",
	},
	models.CategoryPresentation: {
		"investor presentation", "corporate presentation",
		"analyst presentation", "earnings presentation",
		"investor meet presentation", "presentation",
	},
}

// ResolveFilings returns the filing list for a category from the first
// provider that has one. Providers are never merged for the same category:
// mixing sources produces duplicate and conflicting document lists.
func (o *Orchestrator) ResolveFilings(ctx context.Context, symbol string, category models.Category) ([]models.FilingRecord, error) {
	symbol = utils.NormalizeSymbol(symbol)

	type step struct {
		name string
		fn   func(context.Context, string) []models.FilingRecord
	}
	var steps []step
	switch category {
	case models.CategoryAnnualReport:
		steps = []step{
			{"bse_category", o.bseCategoryStep(category)},
			{"nse_annual_reports", o.nseAnnualReportStep},
			{"nse_keywords", o.nseKeywordStep(category)},
			{"screener_annual_reports", o.screenerAnnualReportStep},
			{"screener_documents_api", o.screenerDocumentsStep(category)},
		}
	case models.CategoryTranscript, models.CategoryPresentation:
		steps = []step{
			{"bse_category", o.bseCategoryStep(category)},
			{"bse_keywords", o.bseKeywordStep(category)},
			{"nse_keywords", o.nseKeywordStep(category)},
			{"screener_concalls", o.screenerConcallStep(category)},
			{"screener_documents_api", o.screenerDocumentsStep(category)},
		}
	default:
		return nil, ErrNoFilings
	}

	for _, s := range steps {
		sctx, cancel := o.stepCtx(ctx)
		records := s.fn(sctx, symbol)
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(records) == 0 {
			continue
		}
		for i := range records {
			records[i].Symbol = symbol
			records[i].Category = category
		}
		o.log.WithFields(map[string]any{
			"symbol":   symbol,
			"category": category,
			"step":     s.name,
			"count":    len(records),
		}).Info("filings resolved")
		return records, nil
	}
	return nil, ErrNoFilings
}

// ResolveBestFiling resolves the category list and scores it against a
// period query. The MatchResult carries all candidates even when nothing
// clears the confidence threshold.
func (o *Orchestrator) ResolveBestFiling(ctx context.Context, symbol string, category models.Category, period fiscal.PeriodQuery) (*models.MatchResult, error) {
	records, err := o.ResolveFilings(ctx, symbol, category)
	if err != nil {
		return nil, err
	}
	result := o.matcher.Best(records, period)
	return &result, nil
}

// --- Cascade steps ---

// bseCategoryStep queries the BSE category listing endpoint through its
// synonym list, stopping at the first non-empty answer.
func (o *Orchestrator) bseCategoryStep(category models.Category) func(context.Context, string) []models.FilingRecord {
	return func(ctx context.Context, symbol string) []models.FilingRecord {
		code, ok := o.scripCode(ctx, symbol)
		if !ok {
			return nil
		}
		to := o.now()
		from := to.Add(-filingLookback)
		for _, taxonomy := range bseCategorySynonyms[category] {
			records, err := o.bse.GetCategoryFilings(ctx, code, taxonomy, from, to)
			if err != nil {
				o.logStepMiss(symbol, "bse_category:"+taxonomy, err)
				continue
			}
			if len(records) > 0 {
				return records
			}
		}
		return nil
	}
}

// bseKeywordStep scans the unfiltered BSE announcement stream for titles
// matching the category keywords.
func (o *Orchestrator) bseKeywordStep(category models.Category) func(context.Context, string) []models.FilingRecord {
	return func(ctx context.Context, symbol string) []models.FilingRecord {
		code, ok := o.scripCode(ctx, symbol)
		if !ok {
			return nil
		}
		to := o.now()
		records, err := o.bse.GetAnnouncements(ctx, code, to.Add(-filingLookback), to)
		if err != nil {
			o.logStepMiss(symbol, "bse_keywords", err)
			return nil
		}
		return filterByKeywords(records, titleKeywords[category])
	}
}

func (o *Orchestrator) nseAnnualReportStep(ctx context.Context, symbol string) []models.FilingRecord {
	records, err := o.nse.GetAnnualReports(ctx, symbol)
	if err != nil {
		o.logStepMiss(symbol, "nse_annual_reports", err)
		return nil
	}
	return records
}

// nseKeywordStep scans the NSE announcement stream for category keywords.
func (o *Orchestrator) nseKeywordStep(category models.Category) func(context.Context, string) []models.FilingRecord {
	return func(ctx context.Context, symbol string) []models.FilingRecord {
		records, err := o.nse.GetAnnouncements(ctx, symbol)
		if err != nil {
			o.logStepMiss(symbol, "nse_keywords", err)
			return nil
		}
		return filterByKeywords(records, titleKeywords[category])
	}
}

func (o *Orchestrator) screenerAnnualReportStep(ctx context.Context, symbol string) []models.FilingRecord {
	records, err := o.agg.GetAnnualReports(ctx, symbol)
	if err != nil {
		o.logStepMiss(symbol, "screener_annual_reports", err)
		return nil
	}
	return records
}

func (o *Orchestrator) screenerConcallStep(category models.Category) func(context.Context, string) []models.FilingRecord {
	return func(ctx context.Context, symbol string) []models.FilingRecord {
		records, err := o.agg.GetConcallDocs(ctx, symbol, category)
		if err != nil {
			o.logStepMiss(symbol, "screener_concalls", err)
			return nil
		}
		return records
	}
}

// screenerDocumentsStep is the last resort: the untyped documents API,
// narrowed by title keywords.
func (o *Orchestrator) screenerDocumentsStep(category models.Category) func(context.Context, string) []models.FilingRecord {
	return func(ctx context.Context, symbol string) []models.FilingRecord {
		records, err := o.agg.GetDocumentsAPI(ctx, symbol)
		if err != nil {
			o.logStepMiss(symbol, "screener_documents_api", err)
			return nil
		}
		return filterByKeywords(records, titleKeywords[category])
	}
}

// --- Helpers ---

// scripCode resolves the BSE code for a symbol, treating failure as "skip
// the BSE steps" rather than an error.
func (o *Orchestrator) scripCode(ctx context.Context, symbol string) (string, bool) {
	code, err := o.resolver.Resolve(ctx, symbol)
	if err != nil {
		o.log.WithField("symbol", symbol).WithError(err).Debug("no scrip code, skipping BSE")
		return "", false
	}
	return code, true
}

func (o *Orchestrator) logStepMiss(symbol, step string, err error) {
	o.log.WithFields(map[string]any{
		"symbol": symbol,
		"step":   step,
	}).WithError(err).Debug("filing step missed")
}

// filterByKeywords keeps records whose title or description mentions any
// of the keywords, case-insensitively.
func filterByKeywords(records []models.FilingRecord, keywords []string) []models.FilingRecord {
	if len(keywords) == 0 {
		return nil
	}
	var out []models.FilingRecord
	for _, rec := range records {
		text := strings.ToLower(rec.Title + " " + rec.Description)
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
