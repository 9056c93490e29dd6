package model

// DocumentClassification is one classifier verdict for a source file.
type DocumentClassification struct {
	Filename      string   `json:"filename"`
	DetectedItems []string `json:"detected_items"`
	Confidence    float64  `json:"confidence"`
}

// TierBreakdown counts field extraction within one necessity tier.
type TierBreakdown struct {
	Total     int      `json:"total"`
	Extracted int      `json:"extracted"`
	Missing   []string `json:"missing,omitempty"`
}

// TierScores groups the three necessity tiers of a scorecard.
type TierScores struct {
	Blocking  TierBreakdown `json:"blocking"`
	Expected  TierBreakdown `json:"expected"`
	Enriching TierBreakdown `json:"enriching"`
}

// CrossDocViolation is one failed cross-document consistency rule.
type CrossDocViolation struct {
	RuleID            string   `json:"rule_id"`
	Description       string   `json:"description,omitempty"`
	Severity          string   `json:"severity,omitempty"`
	Fields            []string `json:"fields,omitempty"`
	ConflictingValues []string `json:"conflicting_values"`
}

// Suggestion kinds, in priority order.
const (
	SuggestMissingDocument     = "missing_document"
	SuggestEntityField         = "entity_field"
	SuggestDocumentField       = "document_field"
	SuggestMissingRelationship = "missing_relationship"
)

// Suggestion is one deterministic remediation step.
type Suggestion struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Scorecard is the product of a gap-analysis run over (spoke × template).
type Scorecard struct {
	SpokeID       string    `json:"spoke_id"`
	TemplateID    string    `json:"template_id"`
	TemplateLabel string    `json:"template_label,omitempty"`
	GeneratedAt   Timestamp `json:"generated_at"`

	OverallScore      float64 `json:"overall_score"`
	DocumentScore     float64 `json:"document_score"`
	FieldScore        float64 `json:"field_score"`
	EntityScore       float64 `json:"entity_score"`
	RelationshipScore float64 `json:"relationship_score"`
	FilingReadiness   float64 `json:"filing_readiness"`
	QualityScore      float64 `json:"quality_score"`
	Completeness      float64 `json:"completeness"`

	Tiers TierScores `json:"tiers"`

	FoundDocuments   []string            `json:"found_documents"`
	MissingDocuments []string            `json:"missing_documents"`
	Violations       []CrossDocViolation `json:"cross_doc_violations,omitempty"`
	Suggestions      []Suggestion        `json:"suggestions,omitempty"`

	Classifications       []DocumentClassification `json:"classifications,omitempty"`
	SignalClassifications []DocumentClassification `json:"signal_classifications,omitempty"`

	SourceDocuments        []string `json:"source_documents"`
	EntityCount            int      `json:"entity_count"`
	TierAdjustmentsApplied int      `json:"tier_adjustments_applied"`
}
