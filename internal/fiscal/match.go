package fiscal

import (
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/scripdesk/pkg/models"
)

// Acceptance thresholds. Below these the matcher refuses to guess and
// returns a nil document with the full candidate list.
const (
	yearThreshold    = 2
	quarterThreshold = 5
)

// maxCandidates bounds the candidate list attached to a MatchResult.
const maxCandidates = 25

// Matcher scores filing candidates against period queries.
type Matcher struct {
	log logrus.FieldLogger
}

// NewMatcher creates a matcher. log may not be nil.
func NewMatcher(log logrus.FieldLogger) *Matcher {
	return &Matcher{log: log}
}

// Best returns the highest-scoring candidate for the query, or a nil
// document when no candidate clears the threshold. Ties go to the earlier
// candidate, so callers should pass candidates in provider-priority order.
func (m *Matcher) Best(candidates []models.FilingRecord, query PeriodQuery) models.MatchResult {
	threshold := yearThreshold
	if query.IsQuarter() {
		threshold = quarterThreshold
	}

	bestIdx := -1
	bestScore := 0
	for i := range candidates {
		c := &candidates[i]
		score := m.score(c, query)
		m.log.WithFields(logrus.Fields{
			"period": query.String(),
			"title":  c.Title,
			"score":  score,
		}).Debug("period match candidate")
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	result := models.MatchResult{
		Confidence: bestScore,
		Candidates: bound(candidates),
	}
	if bestIdx >= 0 && bestScore >= threshold {
		doc := candidates[bestIdx]
		result.Document = &doc
		m.log.WithFields(logrus.Fields{
			"period": query.String(),
			"title":  doc.Title,
			"score":  bestScore,
		}).Info("period match accepted")
	} else {
		m.log.WithFields(logrus.Fields{
			"period":     query.String(),
			"best_score": bestScore,
			"threshold":  threshold,
			"candidates": len(candidates),
		}).Info("no confident period match")
	}
	return result
}

func (m *Matcher) score(c *models.FilingRecord, query PeriodQuery) int {
	dateText := c.RawDate
	if dateText == "" && c.PublishedDate != nil {
		dateText = c.PublishedDate.Format("02-Jan-2006")
	}
	if query.IsQuarter() {
		return QuarterScore(c.Title, dateText, query.Quarter, query.FYSuffix)
	}
	return YearScore(c.Title, dateText, query.Year)
}

func bound(candidates []models.FilingRecord) []models.FilingRecord {
	if len(candidates) <= maxCandidates {
		return candidates
	}
	return candidates[:maxCandidates]
}
