// Package fiscal implements the Indian fiscal calendar and the temporal
// matching rules used to pick the best document for a year or quarter query.
// The Indian fiscal year runs April 1 to March 31 and is named by the year
// in which it ends: FY2025 ends March 31, 2025.
package fiscal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PeriodQuery is either a fiscal-year request (Year set, Quarter zero) or a
// fiscal-quarter request (Quarter 1..4 plus the two-digit FY suffix).
type PeriodQuery struct {
	Year     int `json:"year,omitempty"`
	Quarter  int `json:"quarter,omitempty"`
	FYSuffix int `json:"fy_suffix,omitempty"`
}

// IsQuarter reports whether this is a quarter query.
func (p PeriodQuery) IsQuarter() bool { return p.Quarter >= 1 && p.Quarter <= 4 }

// IsZero reports whether no period was requested.
func (p PeriodQuery) IsZero() bool { return p.Year == 0 && p.Quarter == 0 }

func (p PeriodQuery) String() string {
	if p.IsQuarter() {
		return fmt.Sprintf("Q%dFY%02d", p.Quarter, p.FYSuffix)
	}
	return fmt.Sprintf("FY%d", p.Year)
}

var (
	yearQueryRe    = regexp.MustCompile(`(?i)^fy\s*(\d{2}|\d{4})$`)
	quarterQueryRe = regexp.MustCompile(`(?i)^q([1-4])\s*[- ]?\s*fy\s*(\d{2}|\d{4})$`)
)

// ParsePeriod parses a user-supplied period string: "FY2025", "fy25",
// "2025", "Q3FY26", "q3 fy26", "Q3-FY26".
func ParsePeriod(s string) (PeriodQuery, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PeriodQuery{}, fmt.Errorf("empty period")
	}

	if m := quarterQueryRe.FindStringSubmatch(s); m != nil {
		q, _ := strconv.Atoi(m[1])
		yr, _ := strconv.Atoi(m[2])
		return PeriodQuery{Quarter: q, FYSuffix: yr % 100}, nil
	}

	if m := yearQueryRe.FindStringSubmatch(s); m != nil {
		yr, _ := strconv.Atoi(m[1])
		if yr < 100 {
			yr += 2000
		}
		return PeriodQuery{Year: yr}, nil
	}

	if yr, err := strconv.Atoi(s); err == nil && yr >= 1990 && yr <= 2100 {
		return PeriodQuery{Year: yr}, nil
	}

	return PeriodQuery{}, fmt.Errorf("unrecognized period %q", s)
}

// FiscalYearOf returns the fiscal year a date belongs to. April onward
// belongs to the FY ending next calendar year.
func FiscalYearOf(t time.Time) int {
	if t.Month() >= time.April {
		return t.Year() + 1
	}
	return t.Year()
}

// CurrentFiscalYear returns the fiscal year of the current date.
func CurrentFiscalYear(now time.Time) int { return FiscalYearOf(now) }

// QuarterEndCalendarYear returns the calendar year in which the given
// fiscal quarter ends. Q1-Q3 end in the calendar year before the FY label,
// Q4 (Jan-Mar) ends in the label year itself.
func QuarterEndCalendarYear(quarter, fySuffix int) int {
	fy := 2000 + fySuffix
	if quarter <= 3 {
		return fy - 1
	}
	return fy
}

// quarterMonths maps a fiscal quarter to its calendar month names.
var quarterMonths = map[int][]string{
	1: {"apr", "may", "jun"},
	2: {"jul", "aug", "sep"},
	3: {"oct", "nov", "dec"},
	4: {"jan", "feb", "mar"},
}

var quarterTitleRe = regexp.MustCompile(`(?i)\bq([1-4])\s*[- ]?\s*fy\s*'?(\d{2}|\d{4})`)

// QuarterFromTitle extracts a quarter query from free text like
// "Q3 FY26 Earnings Call". Returns ok=false when no quarter token is found.
func QuarterFromTitle(title string) (PeriodQuery, bool) {
	m := quarterTitleRe.FindStringSubmatch(title)
	if m == nil {
		return PeriodQuery{}, false
	}
	q, _ := strconv.Atoi(m[1])
	yr, _ := strconv.Atoi(m[2])
	return PeriodQuery{Quarter: q, FYSuffix: yr % 100}, true
}

// --- Flexible date parsing ---

// dateLayouts are the upstream date formats seen across providers, tried in order.
var dateLayouts = []string{
	"02-Jan-2006 15:04:05",
	"02-Jan-2006 15:04",
	"02-Jan-2006",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var embeddedDateRe = regexp.MustCompile(`\d{1,2}-[A-Za-z]{3}-\d{4}`)

// ParseDate parses a provider date string against the known layout list,
// falling back to scanning for an embedded dd-Mon-yyyy token. Returns
// ok=false when nothing parses; callers must treat the date as absent.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if tok := embeddedDateRe.FindString(s); tok != "" {
		if t, err := time.Parse("02-Jan-2006", tok); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// --- Scoring ---

// YearScore scores one candidate's title and date text against a fiscal-year
// query. Patterns are tried in priority order and the highest single match
// wins; signals are not additive.
func YearScore(title, dateText string, year int) int {
	titleL := strings.ToLower(title)
	dateL := strings.ToLower(dateText)
	combined := titleL + " " + dateL
	y2 := year % 100

	patterns := []struct {
		token string
		score int
	}{
		{fmt.Sprintf("%d-%02d", year-1, y2), 10},       // "2024-25"
		{fmt.Sprintf("%d-%d", year-1, year), 10},       // "2024-2025"
		{fmt.Sprintf("%02d-%02d", (y2+99)%100, y2), 9}, // "24-25"
		{fmt.Sprintf("fy%02d", y2), 8},
		{fmt.Sprintf("fy %02d", y2), 8},
		{fmt.Sprintf("fy%d", year), 7},
	}
	for _, p := range patterns {
		if strings.Contains(combined, p.token) {
			return p.score
		}
	}

	// Weak fallback: a bare 4-digit year, worth more in the title than in
	// the date field.
	bare := strconv.Itoa(year)
	if strings.Contains(titleL, bare) {
		return 3
	}
	if strings.Contains(dateL, bare) {
		return 2
	}
	return 0
}

// QuarterScore scores one candidate against a fiscal-quarter query.
// Unlike the year scorer the signals here are independent and additive.
func QuarterScore(title, dateText string, quarter, fySuffix int) int {
	text := strings.ToLower(title + " " + dateText)
	score := 0

	combos := []string{
		fmt.Sprintf("q%dfy%02d", quarter, fySuffix),
		fmt.Sprintf("q%d fy%02d", quarter, fySuffix),
		fmt.Sprintf("q%dfy %02d", quarter, fySuffix),
		fmt.Sprintf("q%d-fy%02d", quarter, fySuffix),
	}
	for _, combo := range combos {
		if strings.Contains(text, combo) {
			score += 10
			break
		}
	}

	qToken := fmt.Sprintf("q%d", quarter)
	if strings.Contains(" "+text+" ", " "+qToken+" ") {
		score += 5
	} else if strings.Contains(text, qToken) {
		score += 3
	}

	fyA := fmt.Sprintf("fy%02d", fySuffix)
	fyB := fmt.Sprintf("fy %02d", fySuffix)
	fullYear := strconv.Itoa(2000 + fySuffix)
	calYear := strconv.Itoa(QuarterEndCalendarYear(quarter, fySuffix))
	switch {
	case strings.Contains(text, fyA) || strings.Contains(text, fyB):
		score += 6
	case strings.Contains(text, fullYear):
		score += 5
	case strings.Contains(text, calYear):
		score += 3
	}

	for _, month := range quarterMonths[quarter] {
		if strings.Contains(text, month) {
			score += 3
			break
		}
	}

	return score
}
