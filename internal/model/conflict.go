package model

// ConflictType classifies a detected disagreement between two values.
type ConflictType string

const (
	// ConflictFactual: two recent sources disagree about the same fact.
	ConflictFactual ConflictType = "FACTUAL"
	// ConflictTemporal: staleness explains the disagreement; newer wins.
	ConflictTemporal ConflictType = "TEMPORAL"
	// ConflictIdentity: strong evidence the two records are not the same
	// entity. Blocks merges until a user confirms.
	ConflictIdentity ConflictType = "IDENTITY"
)

// ConflictWinner identifies which side a resolution kept.
type ConflictWinner string

const (
	WinnerA    ConflictWinner = "A"
	WinnerB    ConflictWinner = "B"
	WinnerBoth ConflictWinner = "BOTH"
)

// ConflictResolution records how and why a conflict was settled.
type ConflictResolution struct {
	ResolvedAt   Timestamp      `json:"resolved_at"`
	ResolvedBy   string         `json:"resolved_by,omitempty"`
	Winner       ConflictWinner `json:"winner"`
	WinningValue string         `json:"winning_value,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

// Conflict is a recorded disagreement over one attribute. Side A is the
// existing value, side B the incoming one.
type Conflict struct {
	ConflictID   string              `json:"conflict_id"`
	EntityID     string              `json:"entity_id,omitempty"`
	Attribute    string              `json:"attribute"`
	ValueA       string              `json:"value_a"`
	SourceA      string              `json:"source_a,omitempty"`
	DateA        Timestamp           `json:"date_a,omitzero"`
	ValueB       string              `json:"value_b"`
	SourceB      string              `json:"source_b,omitempty"`
	DateB        Timestamp           `json:"date_b,omitzero"`
	ConflictType ConflictType        `json:"conflict_type"`
	AutoResolved bool                `json:"auto_resolved"`
	Resolution   *ConflictResolution `json:"resolution,omitempty"`
	DetectedAt   Timestamp           `json:"detected_at"`
}
