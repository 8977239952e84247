package nvd

import (
	"strconv"
	"strings"
)

// Severity is the caller-facing severity of a record. Label keeps the casing
// sent by the remote system.
type Severity struct {
	Label    string
	Score    float64
	HasScore bool
}

// ScoreString renders the score, or "_" when the schema entry carries none.
func (s Severity) ScoreString() string {
	if !s.HasScore {
		return "_"
	}
	return strconv.FormatFloat(s.Score, 'f', -1, 64)
}

// Resolve picks the severity of a record. V3.1 wins over V2 and only the first
// entry of a collection is used. ok is false when neither schema has entries.
func Resolve(v Vulnerability) (sev Severity, ok bool) {
	m := v.Metrics
	switch m.Kind() {
	case MetricsV31, MetricsBoth:
		d := m.v31[0].CVSSData
		return newSeverity(d.BaseSeverity, d.BaseScore), true
	case MetricsV2:
		e := m.v2[0]
		var score *float64
		if e.CVSSData != nil {
			score = e.CVSSData.BaseScore
		}
		return newSeverity(e.BaseSeverity, score), true
	default:
		return Severity{}, false
	}
}

// Severity is shorthand for Resolve(v).
func (v Vulnerability) Severity() (Severity, bool) {
	return Resolve(v)
}

func newSeverity(label string, score *float64) Severity {
	if score == nil {
		return Severity{Label: label}
	}
	return Severity{Label: label, Score: *score, HasScore: true}
}

const (
	BucketLow      = "low"
	BucketMedium   = "medium"
	BucketHigh     = "high"
	BucketCritical = "critical"
)

// Buckets lists the severity buckets in ascending order.
var Buckets = []string{BucketLow, BucketMedium, BucketHigh, BucketCritical}

// Bucket folds a severity label case-insensitively. Unknown labels return "".
func Bucket(label string) string {
	switch b := strings.ToLower(strings.TrimSpace(label)); b {
	case BucketLow, BucketMedium, BucketHigh, BucketCritical:
		return b
	default:
		return ""
	}
}
