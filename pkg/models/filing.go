// Package models defines the shared data structures exchanged between the
// provider adapters, the resolution engine, the persistence layer, and the API.
package models

import "time"

// Category classifies a corporate filing document.
type Category string

const (
	CategoryAnnualReport Category = "annual_report"
	CategoryTranscript   Category = "transcript"
	CategoryPresentation Category = "presentation"
	CategoryOther        Category = "other"
)

// FilingRecord is the provider-agnostic shape of a corporate disclosure.
// Adapters normalize their native response fields into this struct; nothing
// provider-specific leaks past the adapter boundary.
type FilingRecord struct {
	Symbol        string     `json:"symbol"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	URL           string     `json:"url"`
	AlternateURLs []string   `json:"alternate_urls,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	// RawDate keeps the provider's original date string for display and for
	// period matching when the date could not be parsed.
	RawDate        string            `json:"raw_date,omitempty"`
	Category       Category          `json:"category"`
	SourceProvider string            `json:"source"`
	Raw            map[string]string `json:"-"`
}

// HasDate reports whether the record carries a parseable publish date.
func (f *FilingRecord) HasDate() bool { return f.PublishedDate != nil }

// Timestamp returns the publish time, or the zero time when the upstream
// date was unparseable. Zero-time records sort last in descending order.
func (f *FilingRecord) Timestamp() time.Time {
	if f.PublishedDate == nil {
		return time.Time{}
	}
	return *f.PublishedDate
}

// MatchResult is the outcome of scoring candidates against a period query.
// Document is nil when no candidate cleared the confidence threshold;
// Candidates always holds the scored list so a caller can present options.
type MatchResult struct {
	Document   *FilingRecord  `json:"document"`
	Confidence int            `json:"confidence"`
	Candidates []FilingRecord `json:"candidates"`
}

// AnnouncementBatch is a merged, deduplicated announcement list for a set of
// symbols. Stale is true when the result was served from the last-known-good
// cache because every live provider returned empty.
type AnnouncementBatch struct {
	Announcements []FilingRecord `json:"announcements"`
	Stale         bool           `json:"stale"`
	FetchedAt     time.Time      `json:"fetched_at"`
}
