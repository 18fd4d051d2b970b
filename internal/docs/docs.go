// Package docs downloads filing documents and extracts their text. PDF
// processing cost is capped by only extracting the leading pages; filings
// front-load the content an answer needs anyway.
package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/scripdesk/internal/datasource"
	"github.com/seenimoa/scripdesk/pkg/models"
)

// DefaultMaxPages bounds text extraction.
const DefaultMaxPages = 15

// DefaultFetchTimeout bounds one document download.
const DefaultFetchTimeout = 60 * time.Second

// maxDocumentSize guards against a mislabeled video or archive link.
const maxDocumentSize = 50 << 20

// Service fetches and extracts filing documents.
type Service struct {
	client   *http.Client
	log      logrus.FieldLogger
	maxPages int
}

// New creates a document service. Non-positive maxPages or fetchTimeout
// select the defaults.
func New(log logrus.FieldLogger, maxPages int, fetchTimeout time.Duration) *Service {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Service{
		client:   &http.Client{Timeout: fetchTimeout},
		log:      log,
		maxPages: maxPages,
	}
}

// Fetch downloads a filing document, trying the primary URL first and then
// each alternate. BSE in particular 404s on one storage bucket while the
// mirror serves the file fine.
func (s *Service) Fetch(ctx context.Context, rec *models.FilingRecord) ([]byte, error) {
	urls := append([]string{rec.URL}, rec.AlternateURLs...)

	var lastErr error
	for _, u := range urls {
		if u == "" {
			continue
		}
		data, err := s.fetchURL(ctx, u)
		if err != nil {
			lastErr = err
			s.log.WithField("url", u).WithError(err).Debug("document fetch missed, trying next URL")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return data, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no URL to fetch")
	}
	return nil, fmt.Errorf("fetch document %q: %w", rec.Title, lastErr)
}

// FetchText downloads a document and returns its extracted text.
func (s *Service) FetchText(ctx context.Context, rec *models.FilingRecord) (string, error) {
	data, err := s.Fetch(ctx, rec)
	if err != nil {
		return "", err
	}
	return s.ExtractText(data)
}

// ExtractText pulls text from the first pages of a PDF, bounded by the
// service's page cap.
func (s *Service) ExtractText(pdf []byte) (string, error) {
	tempFile, err := os.CreateTemp("", "scripdesk-*.pdf")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())
	if _, err := tempFile.Write(pdf); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("write temp PDF: %w", err)
	}
	tempFile.Close()

	pdfCtx, err := api.ReadContextFile(tempFile.Name())
	if err != nil {
		return "", fmt.Errorf("read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}

	outDir, err := os.MkdirTemp("", "scripdesk-pages-*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile.Name(), outDir, pageSelection(pageCount, s.maxPages), conf); err != nil {
		return "", fmt.Errorf("extract PDF content: %w", err)
	}

	limit := pageCount
	if limit > s.maxPages {
		limit = s.maxPages
	}
	pageTexts := make(map[int]string, limit)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	var text strings.Builder
	for pageNum := 1; pageNum <= limit; pageNum++ {
		page, ok := pageTexts[pageNum]
		if !ok {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(page)
	}
	return text.String(), nil
}

// pageSelection returns the pdfcpu page selector for the leading pages,
// or nil when the whole document fits under the cap.
func pageSelection(pageCount, maxPages int) []string {
	if pageCount <= maxPages {
		return nil
	}
	return []string{fmt.Sprintf("1-%d", maxPages)}
}

func (s *Service) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", datasource.DefaultUserAgent)
	req.Header.Set("Accept", "application/pdf,application/octet-stream,*/*")
	for k, v := range siteHeaders(url) {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &datasource.ErrHTTP{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}

// siteHeaders returns the extra headers a host insists on before serving
// documents. BSE rejects requests without its own referer.
func siteHeaders(url string) map[string]string {
	if strings.Contains(url, "bseindia.com") {
		return map[string]string{
			"Referer": "https://www.bseindia.com/",
			"Origin":  "https://www.bseindia.com",
		}
	}
	if strings.Contains(url, "nseindia.com") || strings.Contains(url, "nsearchives") {
		return map[string]string{
			"Referer": "https://www.nseindia.com/",
		}
	}
	return nil
}
