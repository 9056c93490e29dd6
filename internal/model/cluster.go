package model

import "encoding/json"

// ClusterState is the lifecycle state of a signal cluster.
type ClusterState string

const (
	StateUnresolved  ClusterState = "unresolved"
	StateProvisional ClusterState = "provisional"
	StateConfirmed   ClusterState = "confirmed"
)

// MatchZone is the identity-resolution verdict for a cluster.
type MatchZone string

const (
	ZoneHighConfidence MatchZone = "HIGH_CONFIDENCE_MATCH"
	ZoneAmbiguous      MatchZone = "AMBIGUOUS_MATCH"
	ZoneNoMatch        MatchZone = "NO_MATCH"
)

// QuadrantLabel is the review-workflow bucket for a cluster.
type QuadrantLabel string

const (
	Q1Create      QuadrantLabel = "Q1_CREATE"
	Q2Enrich      QuadrantLabel = "Q2_ENRICH"
	Q3Consolidate QuadrantLabel = "Q3_CONSOLIDATE"
	Q4Confirm     QuadrantLabel = "Q4_CONFIRM"
)

// MatchType labels the strongest factor behind an association score.
type MatchType string

const (
	MatchSocialHandle     MatchType = "social_handle"
	MatchHandleAliasCross MatchType = "handle_alias_cross"
	MatchNameHigh         MatchType = "name_high"
	MatchNameOrgTitle     MatchType = "name_org_title"
	MatchNamePartial      MatchType = "name_partial"
)

// Source describes where an extraction came from and how much it is trusted.
type Source struct {
	Type        string    `json:"type"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
	ExtractedAt Timestamp `json:"extracted_at,omitzero"`
	Weight      float64   `json:"weight"`
}

// Handles holds the three social handles a cluster or entity can carry.
type Handles struct {
	X         string `json:"x,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
}

// IsEmpty reports whether no handle is set.
func (h Handles) IsEmpty() bool {
	return h.X == "" && h.Instagram == "" && h.LinkedIn == ""
}

// Signals is the flat extraction of identity-bearing values from a proposal.
type Signals struct {
	Names         []string `json:"names"`
	Handles       Handles  `json:"handles"`
	Titles        []string `json:"titles"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
	Bios          []string `json:"bios"`
	Skills        []string `json:"skills"`
	Education     []string `json:"education"`
	RawText       string   `json:"raw_text,omitempty"`
}

// ConfidentSignal is one signal value with its confidence bookkeeping.
// ProjectedConfidence is what the confidence would become after joining the
// current candidate entity.
type ConfidentSignal struct {
	Value               string   `json:"value"`
	Confidence          float64  `json:"confidence"`
	Sources             []string `json:"sources"`
	ProjectedConfidence float64  `json:"projected_confidence,omitempty"`
}

// ConfidentHandles mirrors Handles with per-handle confidence.
type ConfidentHandles struct {
	X         *ConfidentSignal `json:"x,omitempty"`
	Instagram *ConfidentSignal `json:"instagram,omitempty"`
	LinkedIn  *ConfidentSignal `json:"linkedin,omitempty"`
}

// ConfidentSignals mirrors Signals with per-value confidence bookkeeping.
type ConfidentSignals struct {
	Names         []ConfidentSignal `json:"names"`
	Handles       ConfidentHandles  `json:"handles"`
	Titles        []ConfidentSignal `json:"titles"`
	Organizations []ConfidentSignal `json:"organizations"`
	Locations     []ConfidentSignal `json:"locations"`
	Bios          []ConfidentSignal `json:"bios"`
	Skills        []ConfidentSignal `json:"skills"`
	Education     []ConfidentSignal `json:"education"`
}

// AssociationFactors is the per-factor breakdown of an association score.
type AssociationFactors struct {
	Name     float64 `json:"name"`
	Handle   float64 `json:"handle"`
	OrgTitle float64 `json:"org_title"`
	Location float64 `json:"location"`
	Bio      float64 `json:"bio"`
}

// Contradiction is one piece of negative evidence found while scoring a
// cluster against a candidate entity.
type Contradiction struct {
	Factor           string  `json:"factor"`
	Detail           string  `json:"detail"`
	Penalty          float64 `json:"penalty"`
	IdentityConflict bool    `json:"identity_conflict,omitempty"`
}

// NoveltyDetail records the new/duplicate verdict for one signal value.
type NoveltyDetail struct {
	Signal string `json:"signal"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

// Novelty statuses.
const (
	NoveltyNew       = "new"
	NoveltyDuplicate = "duplicate"
)

// DataNovelty summarizes how much of a cluster is new information relative
// to the candidate entity.
type DataNovelty struct {
	Ratio            float64         `json:"ratio"`
	NewSignals       int             `json:"new_signals"`
	DuplicateSignals int             `json:"duplicate_signals"`
	Details          []NoveltyDetail `json:"details,omitempty"`
}

// IsNewData reports whether the cluster is predominantly new information.
func (n *DataNovelty) IsNewData() bool {
	return n != nil && n.Ratio > 0.5
}

// MatchEvidence is one row of the ambiguous-match evidence panel.
type MatchEvidence struct {
	Factor string `json:"factor"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

// Evidence statuses.
const (
	EvidenceMatch    = "match"
	EvidencePartial  = "partial"
	EvidenceWeak     = "weak"
	EvidenceNoMatch  = "no_match"
	EvidenceConflict = "conflict"
)

// ExtractedEntity is the raw proposal handed to staging. It is preserved on
// the cluster as _entity_data for later promotion or merge.
type ExtractedEntity struct {
	EntityType           EntityType     `json:"entity_type"`
	Name                 Name           `json:"name"`
	Summary              *Summary       `json:"summary,omitempty"`
	Attributes           []Attribute    `json:"attributes,omitempty"`
	Relationships        []Relationship `json:"relationships,omitempty"`
	Observations         []Observation  `json:"observations,omitempty"`
	CareerLite           *CareerLite    `json:"career_lite,omitempty"`
	StructuredAttributes map[string]any `json:"structured_attributes,omitempty"`
	OrgDimensions        map[string]any `json:"org_dimensions,omitempty"`
	Interface            string         `json:"interface,omitempty"`
	SourceRef            string         `json:"source_ref,omitempty"`
}

// Cluster is a staged, scored, state-bearing candidate awaiting resolution.
// One JSON file per cluster under signal_clusters/.
type Cluster struct {
	ClusterID  string       `json:"cluster_id"`
	EntityType EntityType   `json:"entity_type"`
	CreatedAt  Timestamp    `json:"created_at"`
	UpdatedAt  Timestamp    `json:"updated_at"`
	State      ClusterState `json:"state"`
	Source     Source       `json:"source"`

	Signals          Signals          `json:"signals"`
	ConfidentSignals ConfidentSignals `json:"confident_signals"`

	SignalConfidence      float64             `json:"signal_confidence"`
	AssociationConfidence float64             `json:"association_confidence"`
	AssociationRawScore   float64             `json:"association_raw_score"`
	AssociationFactors    *AssociationFactors `json:"association_factors,omitempty"`
	Contradictions        []Contradiction     `json:"contradictions,omitempty"`
	ContradictionPenalty  float64             `json:"contradiction_penalty"`
	MatchType             MatchType           `json:"match_type,omitempty"`
	MatchZone             MatchZone           `json:"match_zone,omitempty"`
	NameRarity            string              `json:"name_rarity,omitempty"`
	RarityThreshold       float64             `json:"rarity_threshold,omitempty"`
	Quadrant              int                 `json:"quadrant,omitempty"`
	QuadrantLabel         QuadrantLabel       `json:"quadrant_label,omitempty"`
	DataNovelty           *DataNovelty        `json:"data_novelty,omitempty"`
	CandidateEntityID     string              `json:"candidate_entity_id,omitempty"`
	CandidateEntityName   string              `json:"candidate_entity_name,omitempty"`
	MatchEvidence         []MatchEvidence     `json:"match_evidence,omitempty"`

	EntityData        *ExtractedEntity           `json:"_entity_data,omitempty"`
	IdentityConfirmed bool                       `json:"_identity_confirmed,omitempty"`
	Extra             map[string]json.RawMessage `json:"-"`
}

var clusterJSONKeys = jsonFieldNames(Cluster{})

func (c Cluster) MarshalJSON() ([]byte, error) {
	type alias Cluster
	doc, err := json.Marshal(alias(c))
	if err != nil {
		return nil, err
	}
	return mergeExtras(doc, c.Extra)
}

func (c *Cluster) UnmarshalJSON(data []byte) error {
	type alias Cluster
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtras(data, clusterJSONKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*c = Cluster(a)
	return nil
}

// PrimaryName returns the cluster's leading name signal, or "" when the
// cluster carries no names.
func (c *Cluster) PrimaryName() string {
	if len(c.Signals.Names) == 0 {
		return ""
	}
	return c.Signals.Names[0]
}
