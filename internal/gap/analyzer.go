package gap

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/store"
	"github.com/lodestone-ai/lodestone/internal/templates"
)

const (
	maxSnippetsPerDoc = 10
	maxSnippetLen     = 200
)

// Analyzer scores a spoke's knowledge graph against a provisioning template.
type Analyzer struct {
	tenant     *store.Tenant
	registry   *templates.Registry
	classifier Classifier
	logger     *slog.Logger
}

// New builds a gap analyzer. A nil classifier disables the LLM track; the
// signal-based track always runs.
func New(tenant *store.Tenant, registry *templates.Registry, classifier Classifier, logger *slog.Logger) *Analyzer {
	if classifier == nil {
		classifier = NoopClassifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{tenant: tenant, registry: registry, classifier: classifier, logger: logger}
}

// sourceDoc is one file referenced by the spoke's entities, with the
// observation snippets that mention it.
type sourceDoc struct {
	filename string
	snippets []string
}

// AnalyzeGaps produces a scorecard for the spoke against the template.
// tierAdjustments override field tiers for this run on top of the spoke's
// stored adjustments.
func (a *Analyzer) AnalyzeGaps(ctx context.Context, spokeID, templateType string, tierAdjustments map[string]model.NecessityTier) (*model.Scorecard, error) {
	tmpl, err := a.registry.Get(templateType)
	if err != nil {
		return nil, err
	}
	spoke, err := a.tenant.GetSpoke(spokeID)
	if err != nil {
		return nil, err
	}
	entities, err := a.tenant.EntitiesBySpoke(spokeID)
	if err != nil {
		return nil, err
	}

	adjustments := effectiveAdjustments(spoke, tierAdjustments)
	docs := collectSourceDocs(entities)

	card := &model.Scorecard{
		SpokeID:       spokeID,
		TemplateID:    tmpl.TemplateID,
		TemplateLabel: tmpl.DisplayLabel(),
		GeneratedAt:   model.Now(),
		EntityCount:   len(entities),
	}
	for _, d := range docs {
		card.SourceDocuments = append(card.SourceDocuments, d.filename)
	}

	card.SignalClassifications = classifyBySignals(docs, tmpl.DocumentTypes)
	card.Classifications = a.classifyByLLM(ctx, docs, tmpl.DocumentTypes)

	present := presentTypes(tmpl.DocumentTypes, card.SignalClassifications, card.Classifications)
	for _, dt := range tmpl.DocumentTypes {
		if present[dt.TypeID] {
			card.FoundDocuments = append(card.FoundDocuments, dt.Label())
		} else {
			card.MissingDocuments = append(card.MissingDocuments, dt.Label())
		}
	}
	card.DocumentScore = ratio(len(card.FoundDocuments), len(tmpl.DocumentTypes))

	missingDocFields := a.scoreFields(card, tmpl, present, entities, adjustments)

	missingEntityFields, unsatisfiedRoles := a.scoreEntities(card, tmpl, entities)

	card.Violations = evaluateCrossDocRules(tmpl.CrossDocRules, entities)

	card.FieldScore = card.Completeness
	if tmpl.LegacyFormat {
		card.OverallScore = 0.4*card.DocumentScore + 0.4*card.EntityScore + 0.2*card.RelationshipScore
	} else {
		card.OverallScore = 0.5*card.DocumentScore + 0.5*card.FieldScore
	}
	roundScores(card)

	card.Suggestions = buildSuggestions(card, missingEntityFields, missingDocFields, unsatisfiedRoles)

	a.logger.Info("gap analysis complete",
		"spoke_id", spokeID,
		"template", tmpl.TemplateID,
		"overall", card.OverallScore,
		"documents", fmt.Sprintf("%d/%d", len(card.FoundDocuments), len(tmpl.DocumentTypes)),
		"violations", len(card.Violations))
	return card, nil
}

// effectiveAdjustments merges the spoke's stored tier adjustments with the
// per-run overrides, dropping invalid tiers.
func effectiveAdjustments(spoke *model.Spoke, overrides map[string]model.NecessityTier) map[string]model.NecessityTier {
	merged := map[string]model.NecessityTier{}
	for field, tier := range spoke.TierAdjustments {
		if model.ValidNecessityTier(tier) {
			merged[field] = tier
		}
	}
	for field, tier := range overrides {
		if model.ValidNecessityTier(tier) {
			merged[field] = tier
		}
	}
	return merged
}

// collectSourceDocs builds the per-filename index from entity source refs,
// provenance entries, and observation sources, sorted for determinism.
func collectSourceDocs(entities []*model.Entity) []*sourceDoc {
	index := map[string]*sourceDoc{}
	add := func(filename string) *sourceDoc {
		filename = strings.TrimSpace(filename)
		if filename == "" {
			return nil
		}
		d, ok := index[filename]
		if !ok {
			d = &sourceDoc{filename: filename}
			index[filename] = d
		}
		return d
	}

	for _, e := range entities {
		add(e.SourceRef)
		for _, sd := range e.Provenance.SourceDocuments {
			add(sd.Source)
		}
		for _, obs := range e.Observations {
			d := add(obs.Source)
			if d == nil || len(d.snippets) >= maxSnippetsPerDoc {
				continue
			}
			text := strings.TrimSpace(obs.Text)
			if text == "" {
				continue
			}
			if len(text) > maxSnippetLen {
				text = text[:maxSnippetLen]
			}
			d.snippets = append(d.snippets, text)
		}
	}

	docs := make([]*sourceDoc, 0, len(index))
	for _, d := range index {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].filename < docs[j].filename })
	return docs
}

// classifyBySignals runs the deterministic track: each file goes to the
// document type whose classification signals cover the most of (filename +
// snippets), requiring at least one matching signal.
func classifyBySignals(docs []*sourceDoc, types []model.DocumentType) []model.DocumentClassification {
	var out []model.DocumentClassification
	for _, d := range docs {
		haystack := strings.ToLower(d.filename + " " + strings.Join(d.snippets, " "))
		bestCoverage := 0.0
		bestType := ""
		for _, dt := range types {
			if len(dt.ClassificationSignals) == 0 {
				continue
			}
			matched := 0
			for _, signal := range dt.ClassificationSignals {
				if strings.Contains(haystack, strings.ToLower(signal)) {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			coverage := float64(matched) / float64(len(dt.ClassificationSignals))
			if coverage > bestCoverage {
				bestCoverage = coverage
				bestType = dt.TypeID
			}
		}
		if bestType != "" {
			out = append(out, model.DocumentClassification{
				Filename:      d.filename,
				DetectedItems: []string{bestType},
				Confidence:    bestCoverage,
			})
		}
	}
	return out
}

// classifyByLLM runs the optional LLM track. Failures are logged and
// swallowed; the run degrades to the signal-based track.
func (a *Analyzer) classifyByLLM(ctx context.Context, docs []*sourceDoc, types []model.DocumentType) []model.DocumentClassification {
	if len(docs) == 0 {
		return nil
	}
	if _, noop := a.classifier.(NoopClassifier); noop {
		return nil
	}
	input := make([]Document, 0, len(docs))
	for _, d := range docs {
		input = append(input, Document{Filename: d.filename, Snippets: d.snippets})
	}
	res, err := a.classifier.ClassifyDocuments(ctx, input, types)
	if err != nil {
		a.logger.Warn("document classifier unavailable, using signal-based classification only", "error", err)
		return nil
	}
	return res.Classifications
}

// presentTypes merges the two classification tracks into per-type presence.
// A file assigned by the signal track keeps that assignment; LLM verdicts
// only add types for files the signal track left unclassified.
func presentTypes(types []model.DocumentType, signal, llm []model.DocumentClassification) map[string]bool {
	valid := map[string]bool{}
	for _, dt := range types {
		valid[dt.TypeID] = true
	}

	present := map[string]bool{}
	signalClassified := map[string]bool{}
	for _, c := range signal {
		signalClassified[c.Filename] = true
		for _, item := range c.DetectedItems {
			if valid[item] {
				present[item] = true
			}
		}
	}
	for _, c := range llm {
		if signalClassified[c.Filename] {
			continue
		}
		for _, item := range c.DetectedItems {
			if valid[item] {
				present[item] = true
			}
		}
	}
	return present
}

// missingField records one unextracted field on a present document type.
type missingField struct {
	field model.FieldSpec
	doc   model.DocumentType
}

// scoreFields runs three-tier extraction scoring over present document
// types, filling the scorecard's tier counts and readiness scores.
func (a *Analyzer) scoreFields(card *model.Scorecard, tmpl *model.Template, present map[string]bool, entities []*model.Entity, adjustments map[string]model.NecessityTier) []missingField {
	var missing []missingField
	applied := map[string]bool{}

	tally := func(b *model.TierBreakdown, extracted bool, label string) {
		b.Total++
		if extracted {
			b.Extracted++
		} else {
			b.Missing = append(b.Missing, label)
		}
	}

	for _, dt := range tmpl.DocumentTypes {
		if !present[dt.TypeID] {
			continue
		}
		for _, spec := range dt.ExtractionSpec {
			tier := spec.NecessityTier
			if adjusted, ok := adjustments[spec.FieldID]; ok {
				if adjusted != tier {
					applied[spec.FieldID] = true
				}
				tier = adjusted
			}
			if !model.ValidNecessityTier(tier) {
				tier = model.TierExpected
			}

			extracted := fieldExtracted(entities, spec.FieldID)
			if !extracted {
				missing = append(missing, missingField{field: spec, doc: dt})
			}
			switch tier {
			case model.TierBlocking:
				tally(&card.Tiers.Blocking, extracted, spec.Label())
			case model.TierExpected:
				tally(&card.Tiers.Expected, extracted, spec.Label())
			case model.TierEnriching:
				tally(&card.Tiers.Enriching, extracted, spec.Label())
			}
		}
	}

	b, x, n := card.Tiers.Blocking, card.Tiers.Expected, card.Tiers.Enriching
	card.FilingReadiness = ratio(b.Extracted, b.Total)
	card.QualityScore = ratio(b.Extracted+x.Extracted, b.Total+x.Total)
	card.Completeness = ratio(b.Extracted+x.Extracted+n.Extracted, b.Total+x.Total+n.Total)
	card.TierAdjustmentsApplied = len(applied)
	return missing
}

// missingEntityField records one required field absent from a role's
// candidate entities.
type missingEntityField struct {
	role  model.EntityRole
	field string
}

// scoreEntities scores template roles against spoke entities and computes
// both the entity and relationship scores.
func (a *Analyzer) scoreEntities(card *model.Scorecard, tmpl *model.Template, entities []*model.Entity) ([]missingEntityField, []model.EntityRole) {
	var missing []missingEntityField
	var unsatisfied []model.EntityRole
	filled, total := 0, 0
	satisfiedRoles, requiredRoles := 0, 0

	for _, role := range tmpl.EntityRoles {
		var candidates []*model.Entity
		for _, e := range entities {
			if roleTypeMatches(role.Type, e.EntityType) {
				candidates = append(candidates, e)
			}
		}
		// Entities that mention the role keyword are checked first.
		sort.SliceStable(candidates, func(i, j int) bool {
			return mentionsRole(candidates[i], role) && !mentionsRole(candidates[j], role)
		})

		if !role.Optional {
			requiredRoles++
			if len(candidates) > 0 || anyEntityMentionsRole(entities, role) {
				satisfiedRoles++
			} else {
				unsatisfied = append(unsatisfied, role)
			}
		}
		if role.Optional && len(candidates) == 0 {
			continue
		}

		for _, fieldID := range role.RequiredFields {
			total++
			has := false
			for _, e := range candidates {
				if entityHasField(e, fieldID) {
					has = true
					break
				}
			}
			if has {
				filled++
			} else {
				missing = append(missing, missingEntityField{role: role, field: fieldID})
			}
		}
	}

	card.EntityScore = ratio(filled, total)
	card.RelationshipScore = ratio(satisfiedRoles, requiredRoles)
	return missing, unsatisfied
}

func anyEntityMentionsRole(entities []*model.Entity, role model.EntityRole) bool {
	for _, e := range entities {
		if mentionsRole(e, role) {
			return true
		}
	}
	return false
}

// evaluateCrossDocRules checks consistency rules over the spoke's attribute
// values. Comparison rules collect data without auto-flagging.
func evaluateCrossDocRules(rules []model.CrossDocRule, entities []*model.Entity) []model.CrossDocViolation {
	var violations []model.CrossDocViolation
	for _, rule := range rules {
		values := fieldValues(entities, rule.Fields)
		if len(values) < 2 {
			continue
		}
		distinct := distinctLower(values)

		var conflict bool
		switch rule.Validation {
		case model.ValidationExact:
			conflict = len(distinct) >= 2
		case model.ValidationFuzzy:
			conflict = fuzzyMismatch(distinct)
		case model.ValidationComparison:
			conflict = false
		}
		if conflict {
			violations = append(violations, model.CrossDocViolation{
				RuleID:            rule.RuleID,
				Description:       rule.Description,
				Severity:          rule.Severity,
				Fields:            rule.Fields,
				ConflictingValues: distinct,
			})
		}
	}
	return violations
}

// distinctLower returns the distinct values under case-insensitive
// comparison, preserving first-seen casing and order.
func distinctLower(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// fuzzyMismatch reports whether any pair of values disagrees with neither
// containing the other.
func fuzzyMismatch(values []string) bool {
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			a := strings.ToLower(values[i])
			b := strings.ToLower(values[j])
			if !strings.Contains(a, b) && !strings.Contains(b, a) {
				return true
			}
		}
	}
	return false
}

// ratio divides hits by total, defaulting to 1.0 on an empty denominator.
func ratio(hits, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(hits) / float64(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundScores(card *model.Scorecard) {
	card.OverallScore = round2(card.OverallScore)
	card.DocumentScore = round2(card.DocumentScore)
	card.FieldScore = round2(card.FieldScore)
	card.EntityScore = round2(card.EntityScore)
	card.RelationshipScore = round2(card.RelationshipScore)
	card.FilingReadiness = round2(card.FilingReadiness)
	card.QualityScore = round2(card.QualityScore)
	card.Completeness = round2(card.Completeness)
}
