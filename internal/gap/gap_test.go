package gap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/store"
	"github.com/lodestone-ai/lodestone/internal/templates"
	"github.com/lodestone-ai/lodestone/internal/testutil"
)

func newTestAnalyzer(t *testing.T, templateDir string, classifier Classifier) (*Analyzer, *store.Tenant) {
	t.Helper()
	s, err := store.New(t.TempDir(), testutil.TestLogger())
	require.NoError(t, err)
	tenant, err := s.Tenant("acme")
	require.NoError(t, err)
	registry, err := templates.NewRegistry("", templateDir, testutil.TestLogger())
	require.NoError(t, err)
	return New(tenant, registry, classifier, testutil.TestLogger()), tenant
}

// formationCheckTemplate writes a five-document template: doc_a carries one
// BLOCKING and one EXPECTED field, doc_b one BLOCKING, doc_c one EXPECTED
// and one ENRICHING, doc_d and doc_e have no extraction fields.
func formationCheckTemplate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "formation_check.json"), []byte(`{
		"template_id": "formation_check",
		"display_name": "Formation Check",
		"document_types": [
			{"type_id": "doc_a", "display_name": "Alpha Report",
				"classification_signals": ["alpha report"],
				"extraction_spec": [
					{"field_id": "f_b1", "necessity_tier": "BLOCKING"},
					{"field_id": "f_e1", "necessity_tier": "EXPECTED"}]},
			{"type_id": "doc_b", "display_name": "Bravo Filing",
				"classification_signals": ["bravo filing"],
				"extraction_spec": [
					{"field_id": "f_b2", "necessity_tier": "BLOCKING"}]},
			{"type_id": "doc_c", "display_name": "Charlie Notice",
				"classification_signals": ["charlie notice"],
				"extraction_spec": [
					{"field_id": "f_e2", "necessity_tier": "EXPECTED"},
					{"field_id": "f_n1", "necessity_tier": "ENRICHING"}]},
			{"type_id": "doc_d", "display_name": "Delta Form",
				"classification_signals": ["delta form"]},
			{"type_id": "doc_e", "display_name": "Echo Statement",
				"classification_signals": ["echo statement"]}
		]
	}`), 0o644))
	return dir
}

// seedFormationSpoke stores the person and business entities whose sources
// cover doc_a, doc_b, and doc_c and whose attributes extract f_b1 and f_e1.
func seedFormationSpoke(t *testing.T, tenant *store.Tenant) {
	t.Helper()
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-MJ-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Mercy Johnson"},
		SourceRef:  "alpha report.pdf",
		Attributes: []model.Attribute{
			{Key: "f_b1", Value: "present", Confidence: 0.9},
		},
		Observations: []model.Observation{
			{ObservationID: "OBS-ENT-MJ-001-20260801120000-001",
				Text: "Reviewed the bravo filing for Johnson LLC", Source: "bravo filing 2024.pdf"},
		},
	}))
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "BIZ-JL-001",
		EntityType: model.EntityBusiness,
		Name:       model.Name{Legal: "Johnson LLC"},
		Attributes: []model.Attribute{
			{Key: "f_e1", Value: "present", Confidence: 0.9},
		},
		Provenance: model.ProvenanceChain{
			SourceDocuments: []model.SourceDocument{{Source: "charlie notice.pdf"}},
		},
	}))
}

func TestNewFormatScorecard(t *testing.T) {
	a, tenant := newTestAnalyzer(t, formationCheckTemplate(t), nil)
	seedFormationSpoke(t, tenant)

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "formation_check", nil)
	require.NoError(t, err)

	assert.Equal(t, 0.60, card.DocumentScore)
	assert.Equal(t, 0.50, card.FilingReadiness)
	assert.Equal(t, 0.50, card.QualityScore)
	assert.Equal(t, 0.40, card.Completeness)
	assert.Equal(t, 0.50, card.OverallScore)
	assert.NotEmpty(t, card.Suggestions)

	assert.Equal(t, 2, card.EntityCount)
	assert.Len(t, card.SourceDocuments, 3)
	assert.ElementsMatch(t, []string{"Alpha Report", "Bravo Filing", "Charlie Notice"}, card.FoundDocuments)
	assert.ElementsMatch(t, []string{"Delta Form", "Echo Statement"}, card.MissingDocuments)

	assert.Equal(t, 2, card.Tiers.Blocking.Total)
	assert.Equal(t, 1, card.Tiers.Blocking.Extracted)
	assert.Equal(t, []string{"f_b2"}, card.Tiers.Blocking.Missing)
	assert.Equal(t, 2, card.Tiers.Expected.Total)
	assert.Equal(t, 1, card.Tiers.Enriching.Total)
	assert.Equal(t, 0, card.Tiers.Enriching.Extracted)
}

func TestEINMismatchIsViolation(t *testing.T) {
	a, tenant := newTestAnalyzer(t, t.TempDir(), nil)
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "BIZ-AC-001",
		EntityType: model.EntityBusiness,
		Name:       model.Name{Legal: "Acme Corp"},
		Attributes: []model.Attribute{{Key: "ein", Value: "12-3456789", Confidence: 0.9}},
	}))
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "BIZ-AC-002",
		EntityType: model.EntityBusiness,
		Name:       model.Name{Legal: "Acme Corporation"},
		Attributes: []model.Attribute{{Key: "ein", Value: "98-7654321", Confidence: 0.9}},
	}))

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "business_formation", nil)
	require.NoError(t, err)

	require.Len(t, card.Violations, 1)
	v := card.Violations[0]
	assert.Equal(t, "ein_consistent", v.RuleID)
	assert.Equal(t, "HIGH", v.Severity)
	assert.Len(t, v.ConflictingValues, 2)
}

func TestMatchingEINsPassExactRule(t *testing.T) {
	a, tenant := newTestAnalyzer(t, t.TempDir(), nil)
	for i := 1; i <= 2; i++ {
		require.NoError(t, tenant.PutEntity(&model.Entity{
			EntityID:   fmt.Sprintf("BIZ-AC-%03d", i),
			EntityType: model.EntityBusiness,
			Name:       model.Name{Legal: "Acme Corp"},
			Attributes: []model.Attribute{{Key: "ein", Value: "12-3456789", Confidence: 0.9}},
		}))
	}

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "business_formation", nil)
	require.NoError(t, err)
	assert.Empty(t, card.Violations)
}

func TestFuzzyRuleToleratesSubstringAgreement(t *testing.T) {
	entities := []*model.Entity{
		{Attributes: []model.Attribute{{Key: "legal_name", Value: "Acme Corp"}}},
		{Attributes: []model.Attribute{{Key: "legal_name", Value: "Acme Corp LLC"}}},
	}
	rules := []model.CrossDocRule{{
		RuleID: "legal_name_consistent", Validation: model.ValidationFuzzy, Fields: []string{"legal_name"},
	}}
	assert.Empty(t, evaluateCrossDocRules(rules, entities))

	entities[1].Attributes[0].Value = "Beta Industries"
	violations := evaluateCrossDocRules(rules, entities)
	require.Len(t, violations, 1)
	assert.Len(t, violations[0].ConflictingValues, 2)
}

func TestComparisonRuleNeverFlags(t *testing.T) {
	entities := []*model.Entity{
		{Attributes: []model.Attribute{{Key: "wages", Value: "50000"}}},
		{Attributes: []model.Attribute{{Key: "wages", Value: "72000"}}},
	}
	rules := []model.CrossDocRule{{
		RuleID: "wages_cross_check", Validation: model.ValidationComparison, Fields: []string{"wages"},
	}}
	assert.Empty(t, evaluateCrossDocRules(rules, entities))
}

func TestTierAdjustmentOverride(t *testing.T) {
	a, tenant := newTestAnalyzer(t, formationCheckTemplate(t), nil)
	seedFormationSpoke(t, tenant)

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "formation_check",
		map[string]model.NecessityTier{"f_n1": model.TierBlocking})
	require.NoError(t, err)

	assert.Equal(t, 1, card.TierAdjustmentsApplied)
	assert.Equal(t, 3, card.Tiers.Blocking.Total, "f_n1 promoted into the blocking tier")
	assert.Equal(t, 0.33, card.FilingReadiness)
	assert.Equal(t, 0.40, card.Completeness, "tier moves never change the overall denominator")
}

func TestSpokeTierAdjustmentsApply(t *testing.T) {
	a, tenant := newTestAnalyzer(t, formationCheckTemplate(t), nil)
	seedFormationSpoke(t, tenant)
	_, err := tenant.UpdateSpoke(model.DefaultSpokeID, func(s *model.Spoke) error {
		s.TierAdjustments = map[string]model.NecessityTier{"f_b2": model.TierEnriching}
		return nil
	})
	require.NoError(t, err)

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "formation_check", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, card.TierAdjustmentsApplied)
	assert.Equal(t, 1, card.Tiers.Blocking.Total)
	assert.Equal(t, 1.0, card.FilingReadiness)
}

func TestLegacyTemplateScoring(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lease.json"), []byte(`{
		"template_id": "lease_intake",
		"required_documents": ["Lease Agreement"],
		"required_entities": ["Tenant Person"]
	}`), 0o644))
	a, tenant := newTestAnalyzer(t, dir, nil)
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-MJ-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Mercy Johnson"},
	}))

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "lease_intake", nil)
	require.NoError(t, err)

	// No source document mentions the lease, so only the entity and
	// relationship terms of the legacy formula contribute.
	assert.Equal(t, 0.0, card.DocumentScore)
	assert.Equal(t, 1.0, card.EntityScore)
	assert.Equal(t, 1.0, card.RelationshipScore)
	assert.Equal(t, 0.60, card.OverallScore)
}

type stubClassifier struct {
	result *ClassificationResult
	err    error
	calls  int
}

func (c *stubClassifier) ClassifyDocuments(_ context.Context, _ []Document, _ []model.DocumentType) (*ClassificationResult, error) {
	c.calls++
	return c.result, c.err
}

func TestClassifierFailureDegradesToSignals(t *testing.T) {
	stub := &stubClassifier{err: errors.New("model offline")}
	a, tenant := newTestAnalyzer(t, formationCheckTemplate(t), stub)
	seedFormationSpoke(t, tenant)

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "formation_check", nil)
	require.NoError(t, err)

	assert.Empty(t, card.Classifications)
	assert.Len(t, card.SignalClassifications, 3)
	assert.Equal(t, 0.60, card.DocumentScore, "signal-based results still count")
	assert.Equal(t, 1, stub.calls)
}

func TestLLMClassifiesWhatSignalsCannot(t *testing.T) {
	stub := &stubClassifier{result: &ClassificationResult{
		Classifications: []model.DocumentClassification{
			{Filename: "scan001.pdf", DetectedItems: []string{"doc_d"}, Confidence: 0.9},
		},
	}}
	a, tenant := newTestAnalyzer(t, formationCheckTemplate(t), stub)
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-MJ-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Mercy Johnson"},
		SourceRef:  "scan001.pdf",
	}))

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "formation_check", nil)
	require.NoError(t, err)

	assert.Contains(t, card.FoundDocuments, "Delta Form")
	assert.Empty(t, card.SignalClassifications)
}

func TestSignalTrackWinsClassificationConflicts(t *testing.T) {
	// The LLM calls the alpha report an echo statement; the deterministic
	// track already classified that file, so the LLM verdict is ignored.
	stub := &stubClassifier{result: &ClassificationResult{
		Classifications: []model.DocumentClassification{
			{Filename: "alpha report.pdf", DetectedItems: []string{"doc_e"}, Confidence: 0.99},
		},
	}}
	a, tenant := newTestAnalyzer(t, formationCheckTemplate(t), stub)
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-MJ-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Mercy Johnson"},
		SourceRef:  "alpha report.pdf",
	}))

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "formation_check", nil)
	require.NoError(t, err)

	assert.Contains(t, card.FoundDocuments, "Alpha Report")
	assert.NotContains(t, card.FoundDocuments, "Echo Statement")
}

func TestEntityRoleScoring(t *testing.T) {
	a, tenant := newTestAnalyzer(t, t.TempDir(), nil)
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "BIZ-JL-001",
		EntityType: model.EntityBusiness,
		Name:       model.Name{Legal: "Johnson LLC"},
		Attributes: []model.Attribute{
			{Key: "ein", Value: "12-3456789", Confidence: 0.9},
			{Key: "business_address", Value: "1 Main St, Omaha NE", Confidence: 0.8},
		},
	}))
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-MJ-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Mercy Johnson"},
		Relationships: []model.Relationship{
			{Name: "Johnson LLC", RelationshipType: "owner_of", EntityIDRef: nil},
		},
	}))

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "business_formation", nil)
	require.NoError(t, err)

	// Company: legal_name (name block), ein, address all satisfied.
	// Owner: full_name satisfied, address missing. 4 of 5 fields filled.
	assert.Equal(t, 0.80, card.EntityScore)
	assert.Equal(t, 1.0, card.RelationshipScore)

	var entitySuggestions []string
	for _, s := range card.Suggestions {
		if s.Kind == model.SuggestEntityField {
			entitySuggestions = append(entitySuggestions, s.Text)
		}
	}
	assert.Contains(t, entitySuggestions, "Obtain address for role Owner")
}

func TestUnfilledRoleLowersRelationshipScore(t *testing.T) {
	a, tenant := newTestAnalyzer(t, t.TempDir(), nil)
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-MJ-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Mercy Johnson"},
	}))

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "business_formation", nil)
	require.NoError(t, err)

	// The company role has no business entity and nothing mentions it.
	assert.Equal(t, 0.50, card.RelationshipScore)
	var relSuggestions []model.Suggestion
	for _, s := range card.Suggestions {
		if s.Kind == model.SuggestMissingRelationship {
			relSuggestions = append(relSuggestions, s)
		}
	}
	require.Len(t, relSuggestions, 1)
	assert.Equal(t, "Identify and add Company", relSuggestions[0].Text)
}

func TestSuggestionCaps(t *testing.T) {
	dir := t.TempDir()
	var types string
	for i := 0; i < 7; i++ {
		if i > 0 {
			types += ","
		}
		types += fmt.Sprintf(`{"type_id": "doc_%d", "classification_signals": ["signal %d"]}`, i, i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wide.json"),
		[]byte(`{"template_id": "wide", "document_types": [`+types+`]}`), 0o644))
	a, _ := newTestAnalyzer(t, dir, nil)

	card, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "wide", nil)
	require.NoError(t, err)

	require.Len(t, card.MissingDocuments, 7)
	docSuggestions := 0
	for _, s := range card.Suggestions {
		if s.Kind == model.SuggestMissingDocument {
			docSuggestions++
		}
	}
	assert.Equal(t, 5, docSuggestions)
}

func TestUnknownSpokeAndTemplate(t *testing.T) {
	a, _ := newTestAnalyzer(t, t.TempDir(), nil)

	_, err := a.AnalyzeGaps(context.Background(), model.DefaultSpokeID, "nope", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = a.AnalyzeGaps(context.Background(), "ghost", "business_formation", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResilientClassifierRetries(t *testing.T) {
	flaky := &flakyClassifier{failUntil: 2}
	rc := NewResilientClassifier(flaky)

	res, err := rc.ClassifyDocuments(context.Background(), []Document{{Filename: "x.pdf"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.pdf"}, res.Unclassified)
	assert.Equal(t, 3, flaky.calls)
}

func TestResilientClassifierHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc := NewResilientClassifier(&flakyClassifier{failUntil: 99})
	_, err := rc.ClassifyDocuments(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type flakyClassifier struct {
	failUntil int
	calls     int
}

func (c *flakyClassifier) ClassifyDocuments(_ context.Context, docs []Document, _ []model.DocumentType) (*ClassificationResult, error) {
	c.calls++
	if c.calls <= c.failUntil {
		return nil, errors.New("transient")
	}
	res := &ClassificationResult{}
	for _, d := range docs {
		res.Unclassified = append(res.Unclassified, d.Filename)
	}
	return res, nil
}
