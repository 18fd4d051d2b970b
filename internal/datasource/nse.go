package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/seenimoa/scripdesk/internal/fiscal"
	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

const (
	nseBaseURL     = "https://www.nseindia.com"
	nseAPIBase     = "https://www.nseindia.com/api"
	nseDefaultRate = 3 // max requests per second
)

// NSE fetches corporate announcements, annual reports, and listing metadata
// from the NSE India site API. All endpoints are gated behind homepage
// cookies managed by the shared Session.
type NSE struct {
	session *Session
	cache   *Cache
	limiter *RateLimiter

	baseURL string
	apiBase string
}

// NewNSE creates a new NSE India data source.
func NewNSE(session *Session) *NSE {
	if session == nil {
		session = NewSession(nseBaseURL, DefaultSessionTTL)
	}
	return &NSE{
		session: session,
		cache:   NewCache(2 * time.Minute),
		limiter: NewRateLimiter(nseDefaultRate, time.Second),
		baseURL: nseBaseURL,
		apiBase: nseAPIBase,
	}
}

// Name returns the data source name.
func (n *NSE) Name() string { return "NSE India" }

// Session exposes the cookie session so callers can force a refresh on
// expiry signals.
func (n *NSE) Session() *Session { return n.session }

// --- NSE JSON response types ---

type nseAnnouncement struct {
	Symbol         string `json:"symbol"`
	Description    string `json:"desc"`
	AttachmentText string `json:"attchmntText"`
	AttachmentFile string `json:"attchmntFile"`
	Date           string `json:"an_dt"`
	SortDate       string `json:"sort_date"`
}

type nseAnnualReport struct {
	CompanyName  string `json:"companyName"`
	FromYear     string `json:"fromYr"`
	ToYear       string `json:"toYr"`
	FileName     string `json:"fileName"`
	Disseminated string `json:"disseminationDateTime"`
}

type nseQuoteResponse struct {
	Info struct {
		Symbol      string `json:"symbol"`
		CompanyName string `json:"companyName"`
		ISIN        string `json:"isin"`
	} `json:"info"`
	Metadata struct {
		ISIN string `json:"isin"`
	} `json:"metadata"`
}

// --- Public methods ---

// GetAnnouncements returns recent corporate announcements for a symbol.
// Two URL variants are tried because the site serves both forms and either
// can 404 intermittently. An empty 200 body signals an expired session;
// the session is force-refreshed and the fetch retried once.
func (n *NSE) GetAnnouncements(ctx context.Context, symbol string) ([]models.FilingRecord, error) {
	symbol = utils.NormalizeSymbol(symbol)

	urls := []string{
		fmt.Sprintf("%s/corporate-announcements?index=equities&symbol=%s", n.apiBase, url.QueryEscape(symbol)),
		fmt.Sprintf("%s/corporate-announcements?symbol=%s", n.apiBase, url.QueryEscape(symbol)),
	}

	var lastErr error
	for _, u := range urls {
		data, err := n.nseGet(ctx, u)
		if err == ErrEmptyResponse {
			if _, rerr := n.session.ForceRefresh(ctx); rerr == nil {
				data, err = n.nseGet(ctx, u)
			}
		}
		if err != nil {
			lastErr = err
			continue
		}

		items := unwrapList(data)
		if len(items) == 0 {
			lastErr = ErrEmptyResponse
			continue
		}

		records := make([]models.FilingRecord, 0, len(items))
		for _, raw := range items {
			var a nseAnnouncement
			if err := json.Unmarshal(raw, &a); err != nil {
				continue
			}
			rec := n.normalizeAnnouncement(symbol, &a)
			if rec.URL == "" {
				continue
			}
			records = append(records, rec)
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	if lastErr == nil {
		lastErr = ErrEmptyResponse
	}
	return nil, fmt.Errorf("NSE announcements %s: %w", symbol, lastErr)
}

// GetAnnualReports returns the annual report documents NSE lists for a symbol.
func (n *NSE) GetAnnualReports(ctx context.Context, symbol string) ([]models.FilingRecord, error) {
	symbol = utils.NormalizeSymbol(symbol)

	u := fmt.Sprintf("%s/annual-reports?index=equities&symbol=%s", n.apiBase, url.QueryEscape(symbol))
	data, err := n.nseGet(ctx, u)
	if err == ErrEmptyResponse {
		if _, rerr := n.session.ForceRefresh(ctx); rerr == nil {
			data, err = n.nseGet(ctx, u)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("NSE annual reports %s: %w", symbol, err)
	}

	records := make([]models.FilingRecord, 0, 8)
	for _, raw := range unwrapList(data) {
		var r nseAnnualReport
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		if r.FileName == "" {
			continue
		}
		title := "Annual Report"
		if r.FromYear != "" && r.ToYear != "" {
			title = fmt.Sprintf("Annual Report %s-%s", r.FromYear, r.ToYear)
		}
		rec := models.FilingRecord{
			Symbol:         symbol,
			Title:          title,
			URL:            r.FileName,
			RawDate:        r.Disseminated,
			Category:       models.CategoryAnnualReport,
			SourceProvider: n.Name(),
			Raw: map[string]string{
				"from_yr": r.FromYear,
				"to_yr":   r.ToYear,
			},
		}
		if ts, ok := fiscal.ParseDate(r.Disseminated); ok {
			rec.PublishedDate = &ts
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetISIN returns the ISIN for a symbol from the quote-equity endpoint.
// Used by the resolver to cross-reference the BSE listing.
func (n *NSE) GetISIN(ctx context.Context, symbol string) (string, error) {
	symbol = utils.NormalizeSymbol(symbol)

	cacheKey := "nse:isin:" + symbol
	if cached, ok := n.cache.Get(cacheKey); ok {
		return cached.(string), nil
	}

	u := fmt.Sprintf("%s/quote-equity?symbol=%s", n.apiBase, url.QueryEscape(symbol))
	data, err := n.nseGet(ctx, u)
	if err != nil {
		return "", fmt.Errorf("NSE quote %s: %w", symbol, err)
	}

	var resp nseQuoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse NSE quote: %w", err)
	}

	isin := resp.Info.ISIN
	if isin == "" {
		isin = resp.Metadata.ISIN
	}
	if isin == "" {
		return "", ErrSymbolNotFound
	}

	n.cache.SetWithTTL(cacheKey, isin, 24*time.Hour)
	return isin, nil
}

// --- Internal helpers ---

func (n *NSE) normalizeAnnouncement(symbol string, a *nseAnnouncement) models.FilingRecord {
	title := a.Description
	if title == "" {
		title = a.AttachmentText
	}
	dateStr := a.Date
	if dateStr == "" {
		dateStr = a.SortDate
	}

	rec := models.FilingRecord{
		Symbol:         symbol,
		Title:          title,
		Description:    a.AttachmentText,
		URL:            a.AttachmentFile,
		RawDate:        dateStr,
		Category:       models.CategoryOther,
		SourceProvider: n.Name(),
	}
	if ts, ok := fiscal.ParseDate(dateStr); ok {
		rec.PublishedDate = &ts
	}
	return rec
}

// nseGet performs a GET request to the NSE API with proper headers through
// the shared cookie session.
func (n *NSE) nseGet(ctx context.Context, url string) ([]byte, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	client, err := n.session.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("NSE session: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", n.baseURL)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyResponse
	}
	return data, nil
}

// unwrapList extracts the record array from the inconsistent NSE/BSE
// response envelopes: a bare list, or an object keyed by Table, Data,
// data, or announcements.
func unwrapList(data []byte) []json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err == nil {
			return list
		}
		return nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil
	}
	for _, key := range []string{"Table", "Data", "data", "announcements"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list
		}
	}
	return nil
}
