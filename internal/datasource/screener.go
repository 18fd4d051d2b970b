package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

const screenerBaseURL = "https://www.screener.in"

// Screener scrapes company document listings from Screener.in: the annual
// report archive and the concall section with transcript and presentation
// links. It is the aggregator of last resort when the exchanges produce
// nothing for a category.
type Screener struct {
	cache   *Cache
	limiter *RateLimiter
	client  *http.Client

	baseURL string
}

// NewScreener creates a new Screener.in data source.
func NewScreener() *Screener {
	return &Screener{
		cache:   NewCache(30 * time.Minute),
		limiter: NewRateLimiter(1, time.Second), // conservative: 1 req/s
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: screenerBaseURL,
	}
}

// Name returns the data source name.
func (s *Screener) Name() string { return "Screener.in" }

// --- Public methods ---

// GetAnnualReports returns the annual report archive links from the
// company page's annual-reports section.
func (s *Screener) GetAnnualReports(ctx context.Context, symbol string) ([]models.FilingRecord, error) {
	symbol = utils.NormalizeSymbol(symbol)

	cacheKey := "scr:ar:" + symbol
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]models.FilingRecord), nil
	}

	doc, err := s.fetchPage(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var records []models.FilingRecord
	doc.Find("#annual-reports a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		title := condenseSpace(sel.Text())
		if title == "" {
			return
		}
		records = append(records, models.FilingRecord{
			Symbol:         symbol,
			Title:          title,
			URL:            absoluteURL(s.baseURL, href),
			Category:       models.CategoryAnnualReport,
			SourceProvider: s.Name(),
		})
	})

	s.cache.SetWithTTL(cacheKey, records, 1*time.Hour)
	return records, nil
}

// GetConcallDocs returns transcript and presentation links from the
// concalls list in the documents section. Audio recordings are skipped;
// only fetchable text/slide documents survive.
func (s *Screener) GetConcallDocs(ctx context.Context, symbol string, category models.Category) ([]models.FilingRecord, error) {
	symbol = utils.NormalizeSymbol(symbol)

	cacheKey := fmt.Sprintf("scr:cc:%s:%s", symbol, category)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]models.FilingRecord), nil
	}

	doc, err := s.fetchPage(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var records []models.FilingRecord
	doc.Find("#documents .concalls li, .documents.concalls li").Each(func(_ int, item *goquery.Selection) {
		period := condenseSpace(item.Find("div").First().Text())
		item.Find("a").Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok || href == "" {
				return
			}
			label := condenseSpace(link.Text())
			if isAudioLink(href, label) {
				return
			}

			var cat models.Category
			switch {
			case strings.EqualFold(label, "Transcript") || strings.Contains(strings.ToLower(label), "transcript"):
				cat = models.CategoryTranscript
			case strings.EqualFold(label, "PPT") || strings.Contains(strings.ToLower(label), "presentation"):
				cat = models.CategoryPresentation
			default:
				return
			}
			if cat != category {
				return
			}

			title := label
			if period != "" {
				title = period + " " + label
			}
			records = append(records, models.FilingRecord{
				Symbol:  symbol,
				Title:   title,
				URL:     absoluteURL(s.baseURL, href),
				RawDate: period,
				// Concall periods read "Jan 2026"; not a full date, so the
				// period text stays in RawDate for the quarter matcher.
				Category:       cat,
				SourceProvider: s.Name(),
			})
		})
	})

	s.cache.SetWithTTL(cacheKey, records, 1*time.Hour)
	return records, nil
}

// GetDocumentsAPI queries the JSON documents API. Secondary to the page
// scrape: the payload shape has changed before, so parsing is tolerant and
// an unrecognized shape yields an empty list.
func (s *Screener) GetDocumentsAPI(ctx context.Context, symbol string) ([]models.FilingRecord, error) {
	symbol = utils.NormalizeSymbol(symbol)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/company/%s/documents/", s.baseURL, symbol)
	body, _, err := doGet(ctx, s.client, url, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("screener documents API %s: %w", symbol, err)
	}
	data, err := readAll(body)
	if err != nil {
		return nil, err
	}

	var records []models.FilingRecord
	for _, raw := range unwrapList(data) {
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		link := lookupField(record, "url", "link", "href")
		title := lookupField(record, "title", "name", "label")
		if link == "" || title == "" {
			continue
		}
		records = append(records, models.FilingRecord{
			Symbol:         symbol,
			Title:          title,
			URL:            absoluteURL(s.baseURL, link),
			RawDate:        lookupField(record, "date", "published_at"),
			Category:       models.CategoryOther,
			SourceProvider: s.Name(),
		})
	}
	return records, nil
}

// --- Internal helpers ---

// fetchPage downloads and parses the Screener.in company page, preferring
// consolidated figures and falling back to standalone.
func (s *Screener) fetchPage(ctx context.Context, symbol string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/company/%s/consolidated/", s.baseURL, symbol)
	body, _, err := doGet(ctx, s.client, url, map[string]string{
		"Accept": "text/html",
	})
	if err != nil {
		// Try standalone if consolidated not found.
		url = fmt.Sprintf("%s/company/%s/", s.baseURL, symbol)
		body, _, err = doGet(ctx, s.client, url, map[string]string{
			"Accept": "text/html",
		})
		if err != nil {
			return nil, fmt.Errorf("screener.in %s: %w", symbol, err)
		}
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse screener HTML: %w", err)
	}

	return doc, nil
}

var audioSuffixes = []string{".mp3", ".m4a", ".wav", ".aac"}

// isAudioLink filters out call recordings, which cannot be text-extracted.
func isAudioLink(href, label string) bool {
	hrefL := strings.ToLower(href)
	for _, suffix := range audioSuffixes {
		if strings.HasSuffix(hrefL, suffix) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(label), "recording")
}

// absoluteURL resolves a relative href against the site base.
func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return base + "/" + strings.TrimPrefix(href, "/")
}

// condenseSpace trims and collapses interior whitespace runs to one space.
func condenseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
