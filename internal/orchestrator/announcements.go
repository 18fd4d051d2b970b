package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

const (
	// announcementWindow is the primary BSE lookback.
	announcementWindow = 7 * 24 * time.Hour
	// recentWindow is the short secondary window.
	recentWindow = 48 * time.Hour
	// nseClockBuffer widens the NSE cutoff: NSE timestamps are IST wall
	// clock with no zone marker, so a naive comparison from another zone
	// can drop fresh filings without the slack.
	nseClockBuffer = 6 * time.Hour
)

// ResolveAnnouncements aggregates recent announcements for a set of
// symbols. Best-effort per symbol: a symbol every provider fails on
// contributes nothing, the rest of the batch still answers. An all-empty
// live result falls back to the last good batch for the same symbol set,
// flagged stale.
func (o *Orchestrator) ResolveAnnouncements(ctx context.Context, symbols []string) (*models.AnnouncementBatch, error) {
	normalized := make([]string, 0, len(symbols))
	seen := map[string]bool{}
	for _, raw := range symbols {
		sym := utils.NormalizeSymbol(raw)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		normalized = append(normalized, sym)
	}
	if len(normalized) == 0 {
		return &models.AnnouncementBatch{FetchedAt: o.now()}, nil
	}

	var all []models.FilingRecord
	for _, symbol := range normalized {
		recs := o.announcementsForSymbol(ctx, symbol)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for i := range recs {
			recs[i].Symbol = symbol
		}
		all = append(all, recs...)
	}

	key := staleKey(normalized)
	if len(all) == 0 {
		if cached, ok := o.staleBatch(key); ok {
			o.log.WithField("symbols", key).Warn("live announcements empty, serving stale batch")
			cached.Stale = true
			return &cached, nil
		}
		return &models.AnnouncementBatch{FetchedAt: o.now()}, nil
	}

	sortAnnouncements(all)
	all = dedupAnnouncements(all)
	if len(all) > o.announcementLimit {
		all = all[:o.announcementLimit]
	}

	batch := models.AnnouncementBatch{
		Announcements: all,
		FetchedAt:     o.now(),
	}
	o.storeStaleBatch(key, batch)
	return &batch, nil
}

// announcementsForSymbol walks the per-symbol provider chain: BSE 7-day
// window (with the company-name self-check), BSE 48-hour category window,
// BSE again under a freshly searched code, then NSE with the clock buffer.
func (o *Orchestrator) announcementsForSymbol(ctx context.Context, symbol string) []models.FilingRecord {
	to := o.now()

	if code, ok := o.scripCode(ctx, symbol); ok {
		records, err := o.boundedAnnouncements(ctx, code, to.Add(-announcementWindow), to)
		if err != nil {
			o.logStepMiss(symbol, "bse_announcements", err)
		} else if len(records) > 0 {
			if o.verifyBatch(symbol, records) {
				return records
			}
			// Wrong company behind the cached code: the batch is garbage.
			records = nil
		}

		if len(records) == 0 {
			sctx, cancel := o.stepCtx(ctx)
			records, err = o.bse.GetCategoryFilings(sctx, code, "-1", to.Add(-recentWindow), to)
			cancel()
			if err != nil {
				o.logStepMiss(symbol, "bse_recent", err)
			} else if len(records) > 0 && o.verifyBatch(symbol, records) {
				return records
			}
		}
	}

	// The cached code may have been evicted above, or never existed. One
	// fresh quote-search attempt before giving up on BSE.
	if code, err := o.requeryCode(ctx, symbol); err == nil && code != "" {
		records, err := o.boundedAnnouncements(ctx, code, to.Add(-announcementWindow), to)
		if err != nil {
			o.logStepMiss(symbol, "bse_requery", err)
		} else if len(records) > 0 && o.verifyBatch(symbol, records) {
			return records
		}
	}

	sctx, cancel := o.stepCtx(ctx)
	records, err := o.nse.GetAnnouncements(sctx, symbol)
	cancel()
	if err != nil {
		o.logStepMiss(symbol, "nse_announcements", err)
		return nil
	}
	cutoff := to.Add(-recentWindow - nseClockBuffer)
	var recent []models.FilingRecord
	for _, rec := range records {
		if rec.HasDate() && rec.Timestamp().After(cutoff) {
			recent = append(recent, rec)
		}
	}
	return recent
}

// boundedAnnouncements fetches a BSE announcement window under the step
// timeout.
func (o *Orchestrator) boundedAnnouncements(ctx context.Context, code string, from, to time.Time) ([]models.FilingRecord, error) {
	sctx, cancel := o.stepCtx(ctx)
	defer cancel()
	return o.bse.GetAnnouncements(sctx, code, from, to)
}

func (o *Orchestrator) requeryCode(ctx context.Context, symbol string) (string, error) {
	sctx, cancel := o.stepCtx(ctx)
	defer cancel()
	return o.bse.QuoteSearch(sctx, symbol)
}

// verifyBatch runs the self-correcting name check against the company name
// BSE reported with the batch. A mismatch evicts the cached code and
// discards the batch.
func (o *Orchestrator) verifyBatch(symbol string, records []models.FilingRecord) bool {
	name := ""
	for _, rec := range records {
		if n := rec.Raw["company"]; n != "" {
			name = n
			break
		}
	}
	if name == "" {
		// Nothing to check against; trust the code.
		return true
	}
	if o.resolver.Verify(name, symbol) {
		return true
	}
	o.log.WithFields(map[string]any{
		"symbol":  symbol,
		"company": name,
	}).Warn("scrip code points at a different company, evicting")
	o.resolver.Evict(symbol)
	return false
}

// --- Batch post-processing ---

// sortAnnouncements orders newest first. Records with unparseable dates
// carry a zero timestamp and sink to the bottom.
func sortAnnouncements(records []models.FilingRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp().After(records[j].Timestamp())
	})
}

// dedupAnnouncements removes repeats by (symbol, title prefix, day). URL
// alone is not a key: the same filing shows up under both storage buckets.
func dedupAnnouncements(records []models.FilingRecord) []models.FilingRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, rec := range records {
		title := strings.ToLower(rec.Title)
		if len(title) > 50 {
			title = title[:50]
		}
		day := ""
		if rec.HasDate() {
			day = rec.Timestamp().Format("2006-01-02")
		} else if len(rec.RawDate) >= 10 {
			day = rec.RawDate[:10]
		} else {
			day = rec.RawDate
		}
		key := fmt.Sprintf("%s|%s|%s", rec.Symbol, title, day)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

// --- Stale batch cache ---

func staleKey(symbols []string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func (o *Orchestrator) staleBatch(key string) (models.AnnouncementBatch, bool) {
	o.staleMu.RLock()
	defer o.staleMu.RUnlock()
	batch, ok := o.stale[key]
	return batch, ok
}

func (o *Orchestrator) storeStaleBatch(key string, batch models.AnnouncementBatch) {
	o.staleMu.Lock()
	defer o.staleMu.Unlock()
	o.stale[key] = batch
}
