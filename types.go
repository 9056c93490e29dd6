package lodestone

import (
	"errors"

	"github.com/lodestone-ai/lodestone/internal/gap"
	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/resolver"
	"github.com/lodestone-ai/lodestone/internal/similarity"
	"github.com/lodestone-ai/lodestone/internal/store"
)

// The core record types are aliased rather than copied: they are plain data
// structs with stable JSON shapes, and the file stores persist exactly these
// forms, so a parallel public mirror would only drift.
type (
	// Entity is the canonical graph record.
	Entity = model.Entity
	// ExtractedEntity is a raw extraction proposal handed to staging.
	ExtractedEntity = model.ExtractedEntity
	// Source describes where an extraction came from.
	Source = model.Source
	// Cluster is a staged, scored candidate awaiting resolution.
	Cluster = model.Cluster
	// Outcome reports what a resolution action did.
	Outcome = resolver.Outcome
	// Conflict is a recorded disagreement over one attribute.
	Conflict = model.Conflict
	// Spoke is a perspective partition of the tenant graph.
	Spoke = model.Spoke
	// Scorecard is the product of a gap-analysis run.
	Scorecard = model.Scorecard
	// Template describes what a complete spoke should contain.
	Template = model.Template
	// NecessityTier states how critical a field is to completeness scoring.
	NecessityTier = model.NecessityTier
	// Suggestion is one deterministic remediation step on a scorecard.
	Suggestion = model.Suggestion
	// Document is one source file handed to a classifier.
	Document = gap.Document
	// ClassificationResult is what a document classifier returns.
	ClassificationResult = gap.ClassificationResult
	// Rarity classifies how common a person's name is.
	Rarity = similarity.Rarity
)

// Resolution actions accepted by ResolveCluster.
const (
	ActionHold         = resolver.ActionHold
	ActionSkip         = resolver.ActionSkip
	ActionMerge        = resolver.ActionMerge
	ActionCreateNew    = resolver.ActionCreateNew
	ActionConfirmMerge = resolver.ActionConfirmMerge

	// ActionConflictBlocked is an outcome, not a request.
	ActionConflictBlocked = resolver.ActionConflictBlocked
)

// Conflict choices accepted by ResolveConflict.
const (
	ChoiceKeepA    = resolver.ChoiceKeepA
	ChoiceKeepB    = resolver.ChoiceKeepB
	ChoiceKeepBoth = resolver.ChoiceKeepBoth
)

// Necessity tiers, re-exported for tier adjustments.
const (
	TierBlocking  = model.TierBlocking
	TierExpected  = model.TierExpected
	TierEnriching = model.TierEnriching
)

// Rarity classes accepted by WithRarityOverrides.
const (
	RarityVeryCommon = similarity.RarityVeryCommon
	RarityCommon     = similarity.RarityCommon
	RarityStandard   = similarity.RarityStandard
)

// DefaultSpokeID is the immutable spoke every tenant starts with.
const DefaultSpokeID = model.DefaultSpokeID

// Sentinel errors surfaced across the public boundary.
var (
	ErrNotFound        = store.ErrNotFound
	ErrValidation      = store.ErrValidation
	ErrConflictBlocked = resolver.ErrConflictBlocked
)

// ErrorEnvelope renders an error in the {"error": ...} form external
// surfaces emit. A conflict-blocked merge is not an error envelope: its
// Outcome already carries action "conflict_blocked" and serializes as the
// blocked envelope directly.
func ErrorEnvelope(err error) map[string]string {
	if err == nil {
		return nil
	}
	return map[string]string{"error": err.Error()}
}

// IsConflictBlocked reports whether err is a merge refused by an unconfirmed
// identity conflict.
func IsConflictBlocked(err error) bool {
	return errors.Is(err, ErrConflictBlocked)
}
