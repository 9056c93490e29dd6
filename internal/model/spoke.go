package model

// DefaultSpokeID is the immutable spoke every tenant starts with.
const DefaultSpokeID = "default"

// Spoke is a perspective partition of the tenant graph, centered on one
// entity. The default spoke cannot be deleted.
type Spoke struct {
	ID                 string                   `json:"id"`
	Name               string                   `json:"name"`
	Description        string                   `json:"description,omitempty"`
	CenteredEntityID   string                   `json:"centered_entity_id,omitempty"`
	CenteredEntityName string                   `json:"centered_entity_name,omitempty"`
	Source             string                   `json:"source,omitempty"`
	ExternalID         string                   `json:"external_id,omitempty"`
	CreatedAt          Timestamp                `json:"created_at"`
	UpdatedAt          Timestamp                `json:"updated_at"`
	TierAdjustments    map[string]NecessityTier `json:"tier_adjustments,omitempty"`
}

// SelfEntity is the optional bootstrap record (self-entity.json) that seeds
// the default spoke's centered entity on first open.
type SelfEntity struct {
	SelfEntityID   string `json:"self_entity_id"`
	SelfEntityName string `json:"self_entity_name,omitempty"`
}
