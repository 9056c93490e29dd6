package model

import (
	"encoding/json"
	"fmt"
)

// EntityType discriminates the three canonical entity kinds.
type EntityType string

const (
	EntityPerson      EntityType = "person"
	EntityBusiness    EntityType = "business"
	EntityInstitution EntityType = "institution"
)

// ValidEntityType reports whether t is one of the canonical kinds.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityPerson, EntityBusiness, EntityInstitution:
		return true
	}
	return false
}

// Name is the structured name block. Persons populate full/preferred,
// businesses and institutions legal/common; aliases apply to all kinds.
type Name struct {
	Full      string   `json:"full,omitempty"`
	Preferred string   `json:"preferred,omitempty"`
	Legal     string   `json:"legal,omitempty"`
	Common    string   `json:"common,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
}

// Display returns the best human-readable name, preferring the short forms.
func (n Name) Display() string {
	for _, s := range []string{n.Preferred, n.Full, n.Common, n.Legal} {
		if s != "" {
			return s
		}
	}
	if len(n.Aliases) > 0 {
		return n.Aliases[0]
	}
	return ""
}

// IsEmpty reports whether no name form is populated.
func (n Name) IsEmpty() bool {
	return n.Full == "" && n.Preferred == "" && n.Legal == "" && n.Common == "" && len(n.Aliases) == 0
}

// Summary is a short narrative about the entity with its own confidence.
type Summary struct {
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	FactsLayer int     `json:"facts_layer,omitempty"`
}

// TimeDecay tracks how an attribute value ages. CapturedDate drives the
// recency modifier for volatile keys.
type TimeDecay struct {
	Stability           string    `json:"stability,omitempty"`
	CapturedDate        Timestamp `json:"captured_date,omitzero"`
	RefreshIntervalDays int       `json:"refresh_interval_days,omitempty"`
}

// Attribute is one key/value fact on an entity. BaseConfidence is the
// pre-corroboration confidence and is only rewritten by a fresh stage-1
// compute; Confidence is the corroborated, recency-adjusted value.
type Attribute struct {
	AttributeID       string     `json:"attribute_id,omitempty"`
	Key               string     `json:"key"`
	Value             any        `json:"value"`
	Confidence        float64    `json:"confidence"`
	ConfidenceLabel   string     `json:"confidence_label,omitempty"`
	TimeDecay         *TimeDecay `json:"time_decay,omitempty"`
	SourceAttribution string     `json:"source_attribution,omitempty"`
	BaseConfidence    float64    `json:"_base_confidence,omitempty"`
	SourceClusters    []string   `json:"_source_clusters,omitempty"`
}

// ValueString renders the attribute value as a string for comparison and
// display. Non-string values (numbers, booleans) format via fmt.
func (a Attribute) ValueString() string {
	switch v := a.Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// CapturedDate returns the attribute's capture date, zero when untracked.
func (a Attribute) CapturedDate() Timestamp {
	if a.TimeDecay == nil {
		return Timestamp{}
	}
	return a.TimeDecay.CapturedDate
}

// Relationship is a typed directed edge identified by the counterpart's
// display name. EntityIDRef stays null until a later resolution pass binds
// it; that is the normal state.
type Relationship struct {
	RelationshipID   string     `json:"relationship_id,omitempty"`
	Name             string     `json:"name"`
	RelationshipType string     `json:"relationship_type"`
	EntityIDRef      *string    `json:"entity_id_ref"`
	Sentiment        string     `json:"sentiment,omitempty"`
	Confidence       float64    `json:"confidence,omitempty"`
	TimeDecay        *TimeDecay `json:"time_decay,omitempty"`
}

// Observation is an append-only piece of textual evidence.
type Observation struct {
	ObservationID string    `json:"observation_id"`
	Text          string    `json:"text"`
	ObservedAt    Timestamp `json:"observed_at,omitzero"`
	Source        string    `json:"source,omitempty"`
	TruthLevel    string    `json:"truth_level,omitempty"`
	FactsLayer    int       `json:"facts_layer,omitempty"`
}

// SourceDocument is one provenance entry: where a batch of data came from.
type SourceDocument struct {
	Source      string    `json:"source,omitempty"`
	SourceType  string    `json:"source_type,omitempty"`
	Description string    `json:"description,omitempty"`
	ClusterID   string    `json:"cluster_id,omitempty"`
	AddedAt     Timestamp `json:"added_at,omitzero"`
}

// MergeRecord is one provenance entry describing a merge into this entity.
type MergeRecord struct {
	MergedAt   Timestamp `json:"merged_at"`
	MergedBy   string    `json:"merged_by,omitempty"`
	ClusterID  string    `json:"cluster_id,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
	Changes    []string  `json:"changes,omitempty"`
}

// ProvenanceChain records the origins of an entity. Both lists are
// append-only.
type ProvenanceChain struct {
	CreatedAt       Timestamp        `json:"created_at"`
	CreatedBy       string           `json:"created_by,omitempty"`
	SourceDocuments []SourceDocument `json:"source_documents"`
	MergeHistory    []MergeRecord    `json:"merge_history"`
}

// ExperienceEntry is one position in a professional history.
type ExperienceEntry struct {
	Title     string `json:"title,omitempty"`
	Company   string `json:"company,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Current   bool   `json:"current,omitempty"`
	Location  string `json:"location,omitempty"`
}

// EducationEntry is one school in an education history.
type EducationEntry struct {
	School string `json:"school,omitempty"`
	Degree string `json:"degree,omitempty"`
	Field  string `json:"field,omitempty"`
	Years  string `json:"years,omitempty"`
}

// CareerLite is the compact professional-profile payload attached to person
// entities imported from professional networks.
type CareerLite struct {
	Headline   string            `json:"headline,omitempty"`
	Location   string            `json:"location,omitempty"`
	Experience []ExperienceEntry `json:"experience,omitempty"`
	Education  []EducationEntry  `json:"education,omitempty"`
	Skills     []string          `json:"skills,omitempty"`
}

// IsEmpty reports whether the career block carries no data.
func (c *CareerLite) IsEmpty() bool {
	return c == nil || (c.Headline == "" && c.Location == "" &&
		len(c.Experience) == 0 && len(c.Education) == 0 && len(c.Skills) == 0)
}

// Entity is the canonical graph record, one JSON file per entity.
type Entity struct {
	EntityID             string                     `json:"entity_id"`
	EntityType           EntityType                 `json:"entity_type"`
	Name                 Name                       `json:"name"`
	Summary              *Summary                   `json:"summary,omitempty"`
	Attributes           []Attribute                `json:"attributes"`
	Relationships        []Relationship             `json:"relationships"`
	Observations         []Observation              `json:"observations"`
	Provenance           ProvenanceChain            `json:"provenance_chain"`
	CareerLite           *CareerLite                `json:"career_lite,omitempty"`
	StructuredAttributes map[string]any             `json:"structured_attributes,omitempty"`
	OrgDimensions        map[string]any             `json:"org_dimensions,omitempty"`
	SpokeID              string                     `json:"spoke_id"`
	Source               string                     `json:"source,omitempty"`
	SourceRef            string                     `json:"source_ref,omitempty"`
	Conflicts            []Conflict                 `json:"conflicts,omitempty"`
	ResolvedConflicts    []Conflict                 `json:"resolved_conflicts,omitempty"`
	Extra                map[string]json.RawMessage `json:"-"`
}

var entityJSONKeys = jsonFieldNames(Entity{})

func (e Entity) MarshalJSON() ([]byte, error) {
	type alias Entity
	doc, err := json.Marshal(alias(e))
	if err != nil {
		return nil, err
	}
	return mergeExtras(doc, e.Extra)
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	type alias Entity
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtras(data, entityJSONKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*e = Entity(a)
	return nil
}

// DisplayName returns the entity's best human-readable name.
func (e *Entity) DisplayName() string {
	return e.Name.Display()
}

// Attribute returns the first attribute with the given key.
func (e *Entity) Attribute(key string) (*Attribute, bool) {
	for i := range e.Attributes {
		if e.Attributes[i].Key == key {
			return &e.Attributes[i], true
		}
	}
	return nil, false
}

// AttributeValue returns the string value of the first attribute with the
// given key, or "" when absent.
func (e *Entity) AttributeValue(key string) string {
	if a, ok := e.Attribute(key); ok {
		return a.ValueString()
	}
	return ""
}

// HasObservationText reports whether an observation with the same lowercased
// text already exists. Observations are deduplicated on this predicate.
func (e *Entity) HasObservationText(text string) bool {
	needle := lowerTrim(text)
	if needle == "" {
		return true
	}
	for _, o := range e.Observations {
		if lowerTrim(o.Text) == needle {
			return true
		}
	}
	return false
}
