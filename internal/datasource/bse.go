package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/seenimoa/scripdesk/internal/fiscal"
	"github.com/seenimoa/scripdesk/pkg/models"
)

const (
	bseAPIBase  = "https://api.bseindia.com/BseIndiaAPI/api"
	bseMsource  = "https://api.bseindia.com/Msource/1D"
	bseSiteBase = "https://www.bseindia.com"

	// Filings newer than this live in the "AttachLive" bucket on the BSE
	// CDN; older ones move to "AttachHis".
	bseLiveWindow = 30 * 24 * time.Hour

	bseDefaultRate = 3
)

// BSE fetches corporate announcements and scrip metadata from the BSE India
// API. BSE keys everything by a six-digit numeric scrip code rather than
// the NSE symbol; the resolver package maps between the two using the
// search endpoints exposed here.
type BSE struct {
	client  *http.Client
	cache   *Cache
	limiter *RateLimiter

	apiBase  string
	msource  string
	siteBase string

	// now is injectable so the live/historical bucket split is testable.
	now func() time.Time
}

// NewBSE creates a new BSE India data source.
func NewBSE() *BSE {
	return &BSE{
		client:   &http.Client{Timeout: 15 * time.Second},
		cache:    NewCache(2 * time.Minute),
		limiter:  NewRateLimiter(bseDefaultRate, time.Second),
		apiBase:  bseAPIBase,
		msource:  bseMsource,
		siteBase: bseSiteBase,
		now:      time.Now,
	}
}

// Name returns the data source name.
func (b *BSE) Name() string { return "BSE India" }

// bseHeaders are required on every API call or BSE serves an empty body.
func bseHeaders() map[string]string {
	return map[string]string{
		"Referer": "https://www.bseindia.com/",
		"Accept":  "application/json, text/plain, */*",
		"Origin":  "https://www.bseindia.com",
	}
}

// --- Announcements ---

type bseAnnouncement struct {
	Headline    string `json:"HEADLINE"`
	Subject     string `json:"NEWSSUB"`
	Date        string `json:"NEWS_DT"`
	Attachment  string `json:"ATTACHMENTNAME"`
	NewsID      string `json:"NEWSID"`
	CompanyName string `json:"SLONGNAME"`
	Category    string `json:"CATEGORYNAME"`
	SubCategory string `json:"SUBCATNAME"`
	More        string `json:"MORE"`
}

// GetAnnouncements returns announcements for a scrip code in the given date
// window, newest first as served. strSearch=P limits to company-submitted
// filings, strType=C to corporate announcements.
func (b *BSE) GetAnnouncements(ctx context.Context, scripCode string, from, to time.Time) ([]models.FilingRecord, error) {
	u := fmt.Sprintf(
		"%s/AnnGetData/w?pageno=1&strCat=-1&strPrevDate=%s&strScrip=%s&strSearch=P&strToDate=%s&strType=C",
		b.apiBase, from.Format("20060102"), url.QueryEscape(scripCode), to.Format("20060102"),
	)
	return b.fetchAnnouncements(ctx, scripCode, u)
}

// GetCategoryFilings returns announcements filtered to one BSE category
// taxonomy string (e.g. "Annual Report", "Investor Presentation"). The
// taxonomy is inconsistent across filings, so callers retry with synonym
// category names when a query comes back empty.
func (b *BSE) GetCategoryFilings(ctx context.Context, scripCode, category string, from, to time.Time) ([]models.FilingRecord, error) {
	u := fmt.Sprintf(
		"%s/AnnSubCategoryGetData/w?pageno=1&strCat=%s&strPrevDate=%s&strScrip=%s&strSearch=P&strSubCat=-1&strToDate=%s&strType=C",
		b.apiBase, url.QueryEscape(category),
		url.QueryEscape(from.Format("02/01/2006")), url.QueryEscape(scripCode),
		url.QueryEscape(to.Format("02/01/2006")),
	)
	return b.fetchAnnouncements(ctx, scripCode, u)
}

// fetchAnnouncements loads and normalizes one announcement listing. The
// response is cached briefly under the request URL: watchlist refreshes
// hit the same windows over and over.
func (b *BSE) fetchAnnouncements(ctx context.Context, scripCode, u string) ([]models.FilingRecord, error) {
	if cached, ok := b.cache.Get(u); ok {
		return cached.([]models.FilingRecord), nil
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, _, err := doGet(ctx, b.client, u, bseHeaders())
	if err != nil {
		return nil, fmt.Errorf("BSE announcements %s: %w", scripCode, err)
	}
	data, err := readAll(body)
	if err != nil {
		return nil, err
	}

	records := make([]models.FilingRecord, 0, 16)
	for _, raw := range unwrapList(data) {
		var a bseAnnouncement
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		rec := b.normalizeAnnouncement(scripCode, &a)
		if rec.URL == "" {
			// No direct link and no derivable document id: discard.
			continue
		}
		records = append(records, rec)
	}
	b.cache.Set(u, records)
	return records, nil
}

func (b *BSE) normalizeAnnouncement(scripCode string, a *bseAnnouncement) models.FilingRecord {
	title := strings.TrimSpace(a.Subject)
	if title == "" {
		title = strings.TrimSpace(a.Headline)
	}

	rec := models.FilingRecord{
		Title:          title,
		Description:    strings.TrimSpace(a.Headline),
		RawDate:        a.Date,
		Category:       models.CategoryOther,
		SourceProvider: b.Name(),
		Raw: map[string]string{
			"scrip_code":  scripCode,
			"company":     a.CompanyName,
			"category":    a.Category,
			"subcategory": a.SubCategory,
		},
	}
	if ts, ok := fiscal.ParseDate(a.Date); ok {
		rec.PublishedDate = &ts
	}

	if a.Attachment != "" {
		rec.URL = b.AttachmentURL(a.Attachment, rec.PublishedDate)
		rec.AlternateURLs = b.attachmentAlternates(a.Attachment, rec.URL)
	}
	if a.NewsID != "" {
		page := fmt.Sprintf("%s/corporates/ann.html?newsid=%s", b.siteBase, a.NewsID)
		if rec.URL == "" {
			rec.URL = page
		} else {
			rec.AlternateURLs = append(rec.AlternateURLs, page)
		}
	}
	return rec
}

// AttachmentURL routes an attachment file name to the live or historical
// storage bucket based on filing recency. Documents filed within the last
// 30 days live under AttachLive; everything else, including filings whose
// date failed to parse, is assumed historical.
func (b *BSE) AttachmentURL(attachment string, published *time.Time) string {
	bucket := "AttachHis"
	if published != nil && b.now().Sub(*published) <= bseLiveWindow {
		bucket = "AttachLive"
	}
	return fmt.Sprintf("%s/xml-data/corpfiling/%s/%s", b.siteBase, bucket, attachment)
}

// attachmentAlternates returns the other bucket's URL so a 404 on the
// primary can be retried against the mirror.
func (b *BSE) attachmentAlternates(attachment, primary string) []string {
	live := fmt.Sprintf("%s/xml-data/corpfiling/AttachLive/%s", b.siteBase, attachment)
	his := fmt.Sprintf("%s/xml-data/corpfiling/AttachHis/%s", b.siteBase, attachment)
	if primary == live {
		return []string{his}
	}
	return []string{live}
}

// --- Scrip code lookup endpoints (used by the resolver cascade) ---

// SearchCompany queries the fetchComp endpoint and returns the scrip code
// whose NSE symbol field matches the requested symbol, case-insensitively.
func (b *BSE) SearchCompany(ctx context.Context, symbol string) (string, error) {
	u := fmt.Sprintf("%s/fetchComp/w?str=%s", b.apiBase, url.QueryEscape(symbol))
	return b.searchScrip(ctx, u, symbol, true)
}

// SearchFreeText queries the free-text Search endpoint (type=D) with the
// same matching rule as SearchCompany.
func (b *BSE) SearchFreeText(ctx context.Context, symbol string) (string, error) {
	u := fmt.Sprintf("%s/Search/w?Type=D&text=%s", b.apiBase, url.QueryEscape(symbol))
	return b.searchScrip(ctx, u, symbol, true)
}

// SearchByISIN looks up the scrip code by the security's ISIN.
func (b *BSE) SearchByISIN(ctx context.Context, isin string) (string, error) {
	u := fmt.Sprintf("%s/fetchComp/w?str=%s", b.apiBase, url.QueryEscape(isin))
	return b.searchScrip(ctx, u, isin, false)
}

var bseScripCodeRe = regexp.MustCompile(`\b(\d{6})\b`)

// QuoteSearch scans the Msource quote-search response for the first
// six-digit scrip code. The endpoint returns HTML fragments, not JSON.
func (b *BSE) QuoteSearch(ctx context.Context, symbol string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/getQouteSearch.aspx?Type=EQ&text=%s&flag=site", b.msource, url.QueryEscape(symbol))
	body, _, err := doGet(ctx, b.client, u, bseHeaders())
	if err != nil {
		return "", fmt.Errorf("BSE quote search %s: %w", symbol, err)
	}
	data, err := readAll(body)
	if err != nil {
		return "", err
	}
	if m := bseScripCodeRe.FindStringSubmatch(string(data)); m != nil {
		return m[1], nil
	}
	return "", ErrSymbolNotFound
}

// ScripHeaderCode asks the scrip header endpoint for the code directly.
// BSE returns "0" for unknown symbols.
func (b *BSE) ScripHeaderCode(ctx context.Context, symbol string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/getScripHeaderData/w?Debtflag=&scripcode=%s&seriesid=", b.apiBase, url.QueryEscape(symbol))
	body, _, err := doGet(ctx, b.client, u, bseHeaders())
	if err != nil {
		return "", fmt.Errorf("BSE scrip header %s: %w", symbol, err)
	}
	data, err := readAll(body)
	if err != nil {
		return "", err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("parse BSE scrip header: %w", err)
	}
	// The code sits at the top level or nested under Header depending on
	// the symbol type.
	if code := findScripCode(envelope); code != "" && code != "0" {
		return code, nil
	}
	if raw, ok := envelope["Header"]; ok {
		var header map[string]json.RawMessage
		if err := json.Unmarshal(raw, &header); err == nil {
			if code := findScripCode(header); code != "" && code != "0" {
				return code, nil
			}
		}
	}
	return "", ErrSymbolNotFound
}

// searchScrip fetches a search endpoint and extracts the first matching
// scrip code. The search endpoints disagree on field casing, so records
// are scanned with case-insensitive key matching.
func (b *BSE) searchScrip(ctx context.Context, u, symbol string, matchSymbol bool) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	body, _, err := doGet(ctx, b.client, u, bseHeaders())
	if err != nil {
		return "", fmt.Errorf("BSE search %s: %w", symbol, err)
	}
	data, err := readAll(body)
	if err != nil {
		return "", err
	}

	items := unwrapList(data)
	if items == nil {
		// Some search responses are a bare object.
		items = []json.RawMessage{json.RawMessage(data)}
	}
	want := strings.ToUpper(strings.TrimSpace(symbol))
	for _, raw := range items {
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		if matchSymbol {
			got := strings.ToUpper(strings.TrimSpace(lookupField(record, "nsesymbol", "nse_symbol", "nsurl")))
			if got != want {
				continue
			}
		}
		if code := lookupField(record, "scrip_cd", "scripcode", "scrip_code"); code != "" && code != "0" {
			return code, nil
		}
	}
	return "", ErrSymbolNotFound
}

// findScripCode scans an envelope for a scrip-code field.
func findScripCode(envelope map[string]json.RawMessage) string {
	for key, raw := range envelope {
		switch strings.ToLower(key) {
		case "scrip_cd", "scripcode", "scrip_code":
			return rawToString(raw)
		}
	}
	return ""
}

// lookupField returns the first matching key's value as a string,
// comparing keys case-insensitively.
func lookupField(record map[string]any, keys ...string) string {
	for k, v := range record {
		kl := strings.ToLower(k)
		for _, want := range keys {
			if kl != want {
				continue
			}
			switch t := v.(type) {
			case string:
				return t
			case float64:
				return fmt.Sprintf("%.0f", t)
			}
		}
	}
	return ""
}

func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return fmt.Sprintf("%.0f", n)
	}
	return ""
}
