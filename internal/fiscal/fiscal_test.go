package fiscal

import (
	"testing"
	"time"

	"github.com/seenimoa/scripdesk/internal/logging"
	"github.com/seenimoa/scripdesk/pkg/models"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		input   string
		want    PeriodQuery
		wantErr bool
	}{
		{"FY2025", PeriodQuery{Year: 2025}, false},
		{"fy25", PeriodQuery{Year: 2025}, false},
		{"2025", PeriodQuery{Year: 2025}, false},
		{"Q3FY26", PeriodQuery{Quarter: 3, FYSuffix: 26}, false},
		{"q3 fy26", PeriodQuery{Quarter: 3, FYSuffix: 26}, false},
		{"Q3-FY26", PeriodQuery{Quarter: 3, FYSuffix: 26}, false},
		{"Q1FY2026", PeriodQuery{Quarter: 1, FYSuffix: 26}, false},
		{"", PeriodQuery{}, true},
		{"banana", PeriodQuery{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePeriod(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePeriod(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePeriod(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFiscalYearOf(t *testing.T) {
	if got := FiscalYearOf(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)); got != 2026 {
		t.Errorf("April 2025 should be FY2026, got %d", got)
	}
	if got := FiscalYearOf(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)); got != 2025 {
		t.Errorf("March 2025 should be FY2025, got %d", got)
	}
}

func TestQuarterEndCalendarYear(t *testing.T) {
	if got := QuarterEndCalendarYear(3, 26); got != 2025 {
		t.Errorf("Q3FY26 ends in 2025, got %d", got)
	}
	if got := QuarterEndCalendarYear(4, 26); got != 2026 {
		t.Errorf("Q4FY26 ends in 2026, got %d", got)
	}
}

func TestQuarterFromTitle(t *testing.T) {
	q, ok := QuarterFromTitle("Transcript of Q3 FY26 Earnings Call")
	if !ok || q.Quarter != 3 || q.FYSuffix != 26 {
		t.Errorf("QuarterFromTitle = %+v ok=%v", q, ok)
	}
	if _, ok := QuarterFromTitle("Annual Report 2024-25"); ok {
		t.Error("expected no quarter in annual report title")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
		day   int
	}{
		{"17-Jan-2026 14:30:00", true, 17},
		{"17-Jan-2026", true, 17},
		{"17/01/2026", true, 17},
		{"2026-01-17T14:30:00", true, 17},
		{"2026-01-17", true, 17},
		{"Exchange received on 17-Jan-2026 at 2pm", true, 17},
		{"", false, 0},
		{"not a date", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got.Day() != tt.day {
				t.Errorf("ParseDate(%q) day = %d, want %d", tt.input, got.Day(), tt.day)
			}
		})
	}
}

func TestYearScore(t *testing.T) {
	tests := []struct {
		name  string
		title string
		date  string
		year  int
		want  int
	}{
		{"range hyphen short", "Annual Report 2024-25", "", 2025, 10},
		{"range full", "Annual Report 2024-2025", "", 2025, 10},
		{"short range", "AR 24-25", "", 2025, 9},
		{"fy suffix", "Annual Report FY25", "", 2025, 8},
		{"fy spaced", "Annual Report FY 25", "", 2025, 8},
		{"fy full", "Annual Report FY2025", "", 2025, 7},
		{"bare year title", "Annual Report 2025", "", 2025, 3},
		{"bare year date only", "Annual Report", "12-Jun-2025", 2025, 2},
		{"no markers", "Investor Update", "", 2025, 0},
		{"wrong year", "Annual Report 2023-24", "", 2025, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := YearScore(tt.title, tt.date, tt.year); got != tt.want {
				t.Errorf("YearScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQuarterScore(t *testing.T) {
	// Combined token (+10), bare q3 substring (+3), fy26 (+6), jan month (+3).
	got := QuarterScore("Q3FY26 Earnings Call Transcript", "17-Jan-2026", 3, 26)
	if got < 10 {
		t.Errorf("combined-pattern candidate scored %d, want >= 10", got)
	}

	// Padded quarter token plus spaced FY.
	got = QuarterScore("Transcript q3 fy26 call", "", 3, 26)
	if got < 10 {
		t.Errorf("padded token candidate scored %d, want >= 10", got)
	}

	// Calendar-year-only candidate stays below a combined hit.
	weak := QuarterScore("Earnings call October 2025", "", 3, 26)
	if weak >= got {
		t.Errorf("weak candidate %d should score below strong candidate %d", weak, got)
	}

	// No signals at all.
	if got := QuarterScore("Investor Update", "", 3, 26); got != 0 {
		t.Errorf("no-signal candidate scored %d, want 0", got)
	}
}

func TestMatcherBestYear(t *testing.T) {
	m := NewMatcher(logging.Discard())
	candidates := []models.FilingRecord{
		{Title: "Annual Report 2023-24", URL: "https://example.com/a"},
		{Title: "Annual Report 2024-25", URL: "https://example.com/b"},
	}

	result := m.Best(candidates, PeriodQuery{Year: 2025})
	if result.Document == nil {
		t.Fatal("expected a confident match")
	}
	if result.Document.Title != "Annual Report 2024-25" {
		t.Errorf("matched %q, want 2024-25 report", result.Document.Title)
	}
	if result.Confidence != 10 {
		t.Errorf("confidence = %d, want 10", result.Confidence)
	}
	if len(result.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2", len(result.Candidates))
	}
}

func TestMatcherBestQuarter(t *testing.T) {
	m := NewMatcher(logging.Discard())
	jan := time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC)
	candidates := []models.FilingRecord{
		{Title: "Q2FY26 Earnings Call Transcript", URL: "https://example.com/q2"},
		{Title: "Q3FY26 Earnings Call Transcript", URL: "https://example.com/q3", PublishedDate: &jan},
	}

	result := m.Best(candidates, PeriodQuery{Quarter: 3, FYSuffix: 26})
	if result.Document == nil {
		t.Fatal("expected a confident match")
	}
	if result.Document.URL != "https://example.com/q3" {
		t.Errorf("matched %q, want the Q3 transcript", result.Document.URL)
	}
	if result.Confidence < 10 {
		t.Errorf("confidence = %d, want >= 10", result.Confidence)
	}
}

func TestMatcherBelowThreshold(t *testing.T) {
	m := NewMatcher(logging.Discard())
	candidates := []models.FilingRecord{
		{Title: "Investor Update", URL: "https://example.com/u"},
	}

	for _, query := range []PeriodQuery{{Year: 2025}, {Quarter: 3, FYSuffix: 26}} {
		result := m.Best(candidates, query)
		if result.Document != nil {
			t.Errorf("%s: expected nil document below threshold", query)
		}
		if len(result.Candidates) != 1 {
			t.Errorf("%s: candidates = %d, want 1", query, len(result.Candidates))
		}
	}
}

func TestMatcherTieBreaksFirstSeen(t *testing.T) {
	m := NewMatcher(logging.Discard())
	candidates := []models.FilingRecord{
		{Title: "Annual Report FY25", URL: "https://example.com/first"},
		{Title: "Annual Report FY25", URL: "https://example.com/second"},
	}

	result := m.Best(candidates, PeriodQuery{Year: 2025})
	if result.Document == nil || result.Document.URL != "https://example.com/first" {
		t.Errorf("tie should go to first-seen candidate, got %+v", result.Document)
	}
}
