package model

import "encoding/json"

// Priority ranks a document type's importance within a template.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Sensitivity classifies how carefully a field must be handled.
type Sensitivity string

const (
	SensitivityCritical Sensitivity = "CRITICAL"
	SensitivityHigh     Sensitivity = "HIGH"
	SensitivityStandard Sensitivity = "STANDARD"
)

// NecessityTier states how critical a field is to completeness scoring.
type NecessityTier string

const (
	TierBlocking  NecessityTier = "BLOCKING"
	TierExpected  NecessityTier = "EXPECTED"
	TierEnriching NecessityTier = "ENRICHING"
)

// ValidNecessityTier reports whether t is one of the three tiers.
func ValidNecessityTier(t NecessityTier) bool {
	switch t {
	case TierBlocking, TierExpected, TierEnriching:
		return true
	}
	return false
}

// ValidationKind selects how a cross-document rule compares values.
type ValidationKind string

const (
	ValidationExact      ValidationKind = "exact"
	ValidationComparison ValidationKind = "comparison"
	ValidationFuzzy      ValidationKind = "fuzzy"
)

// FieldSpec describes one extractable field on a document type.
type FieldSpec struct {
	FieldID       string        `json:"field_id"`
	DisplayName   string        `json:"display_name,omitempty"`
	FieldType     string        `json:"field_type,omitempty"`
	Sensitivity   Sensitivity   `json:"sensitivity,omitempty"`
	NecessityTier NecessityTier `json:"necessity_tier,omitempty"`
}

// Label returns the field's display name, falling back to its id.
func (f FieldSpec) Label() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.FieldID
}

// DocumentType describes one required document in a template.
type DocumentType struct {
	TypeID                string      `json:"type_id"`
	DisplayName           string      `json:"display_name,omitempty"`
	Category              string      `json:"category,omitempty"`
	Priority              Priority    `json:"priority,omitempty"`
	ClassificationSignals []string    `json:"classification_signals,omitempty"`
	ExtractionSpec        []FieldSpec `json:"extraction_spec,omitempty"`
}

// Label returns the document type's display name, falling back to its id.
func (d DocumentType) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.TypeID
}

// EntityRole describes one entity the template expects in the spoke.
type EntityRole struct {
	RoleID         string   `json:"role_id"`
	DisplayName    string   `json:"display_name,omitempty"`
	Type           string   `json:"type"`
	Optional       bool     `json:"optional,omitempty"`
	MinCount       int      `json:"min_count,omitempty"`
	RequiredFields []string `json:"required_fields,omitempty"`
}

// Label returns the role's display name, falling back to its id.
func (r EntityRole) Label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.RoleID
}

// CrossDocRule is a consistency rule evaluated across documents and entities.
type CrossDocRule struct {
	RuleID      string         `json:"rule_id"`
	Description string         `json:"description,omitempty"`
	Severity    string         `json:"severity,omitempty"`
	Validation  ValidationKind `json:"validation"`
	Fields      []string       `json:"fields"`
}

// DocGroups maps a category to its document display names. Legacy templates
// store a flat list; it decodes into the "general" group.
type DocGroups map[string][]string

func (g *DocGroups) UnmarshalJSON(data []byte) error {
	var grouped map[string][]string
	if err := json.Unmarshal(data, &grouped); err == nil {
		*g = grouped
		return nil
	}
	var flat []string
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if len(flat) == 0 {
		*g = nil
		return nil
	}
	*g = DocGroups{"general": flat}
	return nil
}

// Flatten returns every document name across all groups.
func (g DocGroups) Flatten() []string {
	var out []string
	for _, items := range g {
		out = append(out, items...)
	}
	return out
}

// Template describes the documents, fields, entities, and consistency rules
// a complete spoke should satisfy. Both legacy and new-format templates load;
// normalization synthesizes whichever half is missing.
type Template struct {
	TemplateID    string         `json:"template_id"`
	Version       string         `json:"version,omitempty"`
	DisplayName   string         `json:"display_name,omitempty"`
	Label         string         `json:"label,omitempty"`
	DocumentTypes []DocumentType `json:"document_types,omitempty"`
	EntityRoles   []EntityRole   `json:"entity_roles,omitempty"`
	CrossDocRules []CrossDocRule `json:"cross_doc_rules,omitempty"`

	// Back-compat aliases, populated by normalization.
	RequiredDocuments DocGroups `json:"required_documents,omitempty"`
	RequiredEntities  []string  `json:"required_entities,omitempty"`

	// LegacyFormat marks a template whose document_types were synthesized
	// during normalization. Legacy templates score on the document/entity/
	// relationship formula. Not persisted.
	LegacyFormat bool `json:"-"`
}

// DisplayLabel returns the template's best human-readable name.
func (t *Template) DisplayLabel() string {
	for _, s := range []string{t.Label, t.DisplayName, t.TemplateID} {
		if s != "" {
			return s
		}
	}
	return ""
}

// IsLegacy reports whether the template predates document_types.
func (t *Template) IsLegacy() bool {
	return len(t.DocumentTypes) == 0
}
