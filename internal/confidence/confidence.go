// Package confidence implements the three-level confidence model: source
// weights, recency decay for volatile attribute keys, and corroboration
// multipliers. Every write into the graph flows through these functions.
//
// The weight and volatility tables are data, not behavior: a Model carries
// its own copies so tests and per-tenant tuning can override them.
package confidence

import (
	"time"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// Attribute keys whose values drift over time. Only these receive a recency
// modifier; everything else (names, handles, education) is historical and
// never decays.
var volatileKeys = map[string]bool{
	"headline":            true,
	"role":                true,
	"current_role":        true,
	"company":             true,
	"current_company":     true,
	"location":            true,
	"current_location":    true,
	"x_bio":               true,
	"instagram_bio":       true,
	"x_followers":         true,
	"instagram_followers": true,
}

// DefaultSourceWeights returns the authoritative source-class weight table.
// Unmapped source types score 0.40.
func DefaultSourceWeights() map[string]float64 {
	return map[string]float64{
		"user_input":        0.95,
		"manual":            0.95,
		"linkedin_api":      0.90,
		"proxycurl":         0.90,
		"linkedin_pdf":      0.85,
		"linkedin":          0.85,
		"company_website":   0.80,
		"about_page":        0.80,
		"file_upload":       0.75,
		"file_import":       0.75,
		"uploaded_document": 0.75,
		"x":                 0.60,
		"instagram":         0.60,
		"social":            0.60,
		"social_media":      0.60,
		"web":               0.50,
		"url_extract":       0.50,
		"scraped_web_page":  0.50,
		"generic_url":       0.50,
		"entity_mention":    0.40,
		"mention":           0.40,
	}
}

// unknownSourceWeight applies to source types missing from the table.
const unknownSourceWeight = 0.40

// Model evaluates confidences against its weight table and clock.
type Model struct {
	weights map[string]float64
	now     func() time.Time
}

// NewModel returns a Model with the default tables and the wall clock.
func NewModel() *Model {
	return &Model{weights: DefaultSourceWeights(), now: time.Now}
}

// WithWeights replaces the source-weight table. Nil entries are not merged;
// the caller supplies the full table.
func (m *Model) WithWeights(weights map[string]float64) *Model {
	out := *m
	out.weights = weights
	return &out
}

// WithClock replaces the time source. Used by tests and deterministic replays.
func (m *Model) WithClock(now func() time.Time) *Model {
	out := *m
	out.now = now
	return &out
}

// SourceWeight returns the trust weight for a source type.
func (m *Model) SourceWeight(sourceType string) float64 {
	if w, ok := m.weights[sourceType]; ok {
		return w
	}
	return unknownSourceWeight
}

// IsVolatile reports whether an attribute key receives recency decay.
func IsVolatile(key string) bool {
	return volatileKeys[key]
}

// Recency returns the recency modifier for an attribute key captured at the
// given date. Non-volatile keys always return 1.0; volatile keys with an
// unknown capture date return 0.85.
func (m *Model) Recency(captured model.Timestamp, key string) float64 {
	if !volatileKeys[key] {
		return 1.0
	}
	if captured.IsZero() {
		return 0.85
	}
	now := m.now()
	switch {
	case captured.After(now.AddDate(0, -6, 0)):
		return 1.0
	case captured.After(now.AddDate(0, -12, 0)):
		return 0.95
	case captured.After(now.AddDate(0, -24, 0)):
		return 0.85
	case captured.After(now.AddDate(0, -60, 0)):
		return 0.7
	default:
		return 0.5
	}
}

// Corroboration returns the multiplier for the number of independent sources
// supporting an attribute: 1.0, 1.3, then 1.5 capped.
func (m *Model) Corroboration(sources int) float64 {
	switch {
	case sources >= 3:
		return 1.5
	case sources == 2:
		return 1.3
	default:
		return 1.0
	}
}

// AttributeConfidence computes min(1, base × recency × corroboration).
// This is the stage-1 compute: base is the raw source weight and the result
// is what gets stored as the attribute's confidence.
func (m *Model) AttributeConfidence(base float64, captured model.Timestamp, key string, sources int) float64 {
	c := base * m.Recency(captured, key) * m.Corroboration(sources)
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

// EntityConfidence returns the mean of the entity's attribute confidences,
// 0 when it has none.
func (m *Model) EntityConfidence(e *model.Entity) float64 {
	if len(e.Attributes) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range e.Attributes {
		sum += a.Confidence
	}
	return sum / float64(len(e.Attributes))
}

// Entity tiers by mean confidence.
const (
	TierThin       = "thin"
	TierDeveloping = "developing"
	TierStrong     = "strong"
)

// EntityTier buckets a mean confidence: thin below 0.5, developing up to
// 0.8, strong above.
func EntityTier(confidence float64) string {
	switch {
	case confidence < 0.5:
		return TierThin
	case confidence <= 0.8:
		return TierDeveloping
	default:
		return TierStrong
	}
}

// Label renders an attribute confidence as its stored confidence_label.
func Label(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "high"
	case confidence >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
