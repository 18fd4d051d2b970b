package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seenimoa/scripdesk/pkg/models"
)

func testNSE(srv *httptest.Server) *NSE {
	return &NSE{
		session: NewSession(srv.URL, time.Hour),
		cache:   NewCache(time.Minute),
		limiter: NewRateLimiter(100, time.Second),
		baseURL: srv.URL,
		apiBase: srv.URL + "/api",
	}
}

func TestUnwrapList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"bare list", `[{"a":1},{"a":2}]`, 2},
		{"Table envelope", `{"Table":[{"a":1}]}`, 1},
		{"data envelope", `{"data":[{"a":1},{"a":2},{"a":3}]}`, 3},
		{"announcements envelope", `{"announcements":[{"a":1}]}`, 1},
		{"empty body", ``, 0},
		{"no known key", `{"rows":[{"a":1}]}`, 0},
		{"not json", `<html></html>`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := unwrapList([]byte(tt.input))
			if len(got) != tt.want {
				t.Errorf("got %d items, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNSEGetAnnouncements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			// Session warm-up homepage.
			fmt.Fprint(w, "<html></html>")
			return
		}
		fmt.Fprint(w, `[
			{"symbol":"TCS","desc":"Board Meeting Outcome","attchmntFile":"https://nsearchives.example/x.pdf","an_dt":"20-Aug-2026 18:05:00"},
			{"symbol":"TCS","desc":"No attachment","an_dt":"19-Aug-2026 10:00:00"}
		]`)
	}))
	defer srv.Close()

	n := testNSE(srv)
	records, err := n.GetAnnouncements(context.Background(), "TCS")
	if err != nil {
		t.Fatalf("GetAnnouncements failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record with an attachment, got %d", len(records))
	}
	r := records[0]
	if r.Title != "Board Meeting Outcome" {
		t.Errorf("unexpected title %q", r.Title)
	}
	if r.URL != "https://nsearchives.example/x.pdf" {
		t.Errorf("unexpected URL %q", r.URL)
	}
	if r.PublishedDate == nil {
		t.Error("expected parsed publish date")
	}
	if r.SourceProvider != "NSE India" {
		t.Errorf("unexpected provider %q", r.SourceProvider)
	}
}

func TestNSEGetAnnouncementsRefreshesStaleSession(t *testing.T) {
	var homeHits, apiHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			atomic.AddInt32(&homeHits, 1)
			fmt.Fprint(w, "<html></html>")
			return
		}
		// First API call simulates an expired cookie session: 200 with an
		// empty body. After the refresh the data comes through.
		if atomic.AddInt32(&apiHits, 1) == 1 {
			return
		}
		fmt.Fprint(w, `[{"symbol":"TCS","desc":"Results","attchmntFile":"https://x.example/r.pdf","an_dt":"20-Aug-2026 18:05:00"}]`)
	}))
	defer srv.Close()

	n := testNSE(srv)
	records, err := n.GetAnnouncements(context.Background(), "TCS")
	if err != nil {
		t.Fatalf("GetAnnouncements failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after retry, got %d", len(records))
	}
	if got := atomic.LoadInt32(&homeHits); got != 2 {
		t.Errorf("expected 2 homepage warm-ups (initial + forced refresh), got %d", got)
	}
}

func TestNSEGetAnnualReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			fmt.Fprint(w, "<html></html>")
			return
		}
		fmt.Fprint(w, `{"data":[
			{"companyName":"Tata Consultancy Services","fromYr":"2024","toYr":"2025","fileName":"https://nsearchives.example/AR_2025.pdf","disseminationDateTime":"29-May-2025 16:00:00"},
			{"companyName":"Tata Consultancy Services","fromYr":"2023","toYr":"2024","fileName":""}
		]}`)
	}))
	defer srv.Close()

	n := testNSE(srv)
	records, err := n.GetAnnualReports(context.Background(), "TCS")
	if err != nil {
		t.Fatalf("GetAnnualReports failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 report with a file, got %d", len(records))
	}
	if records[0].Title != "Annual Report 2024-2025" {
		t.Errorf("unexpected title %q", records[0].Title)
	}
	if records[0].Category != models.CategoryAnnualReport {
		t.Errorf("unexpected category %q", records[0].Category)
	}
}

func TestNSEGetISINCaches(t *testing.T) {
	var apiHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			fmt.Fprint(w, "<html></html>")
			return
		}
		atomic.AddInt32(&apiHits, 1)
		fmt.Fprint(w, `{"info":{"isin":"INE467B01029"}}`)
	}))
	defer srv.Close()

	n := testNSE(srv)
	for i := 0; i < 2; i++ {
		isin, err := n.GetISIN(context.Background(), "TCS")
		if err != nil {
			t.Fatalf("GetISIN #%d failed: %v", i, err)
		}
		if isin != "INE467B01029" {
			t.Errorf("got ISIN %s", isin)
		}
	}
	if got := atomic.LoadInt32(&apiHits); got != 1 {
		t.Errorf("expected 1 API call (second served from cache), got %d", got)
	}
}

func TestNSENormalizeAnnouncementFallbacks(t *testing.T) {
	n := &NSE{}
	rec := n.normalizeAnnouncement("TCS", &nseAnnouncement{
		AttachmentText: "Intimation under Reg 30",
		AttachmentFile: "https://x.example/a.pdf",
		SortDate:       "2026-08-20 18:05:00",
	})
	if rec.Title != "Intimation under Reg 30" {
		t.Errorf("expected attachment text fallback title, got %q", rec.Title)
	}
	if rec.RawDate != "2026-08-20 18:05:00" {
		t.Errorf("expected sort_date fallback, got %q", rec.RawDate)
	}
	if rec.PublishedDate == nil {
		t.Error("expected sort_date to parse")
	}
}
