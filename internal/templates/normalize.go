package templates

import (
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// Normalize coerces a template to the unified shape: new-format templates
// gain the back-compat required_documents and required_entities views, and
// legacy templates gain synthesized document_types and entity_roles. The
// template is modified in place and returned.
func Normalize(t *model.Template) *model.Template {
	if t.IsLegacy() {
		t.LegacyFormat = true
		synthesizeFromLegacy(t)
	}
	synthesizeBackCompat(t)
	return t
}

// synthesizeBackCompat derives the legacy views from document_types and
// entity_roles.
func synthesizeBackCompat(t *model.Template) {
	if len(t.DocumentTypes) > 0 {
		groups := model.DocGroups{}
		for _, d := range t.DocumentTypes {
			category := d.Category
			if category == "" {
				category = "general"
			}
			groups[category] = append(groups[category], d.Label())
		}
		t.RequiredDocuments = groups
	}
	if len(t.EntityRoles) > 0 && len(t.RequiredEntities) == 0 {
		for _, role := range t.EntityRoles {
			t.RequiredEntities = append(t.RequiredEntities, role.Label())
		}
	}
}

// synthesizeFromLegacy builds document_types and entity_roles out of the
// bare name lists older templates carry. Each document becomes one type
// whose classification signal is the item name with underscores as spaces,
// carrying a single extraction field with inferred sensitivity.
func synthesizeFromLegacy(t *model.Template) {
	for _, name := range t.RequiredDocuments.Flatten() {
		id := slug(name)
		t.DocumentTypes = append(t.DocumentTypes, model.DocumentType{
			TypeID:                id,
			DisplayName:           name,
			Category:              "general",
			Priority:              model.PriorityMedium,
			ClassificationSignals: []string{strings.ReplaceAll(strings.ToLower(name), "_", " ")},
			ExtractionSpec: []model.FieldSpec{{
				FieldID:       id,
				DisplayName:   name,
				Sensitivity:   inferSensitivity(id),
				NecessityTier: model.TierExpected,
			}},
		})
	}
	for _, name := range t.RequiredEntities {
		t.EntityRoles = append(t.EntityRoles, model.EntityRole{
			RoleID:      slug(name),
			DisplayName: name,
			Type:        inferRoleType(name),
			MinCount:    1,
		})
	}
}

// inferSensitivity maps legacy field names to handling classes. Tax ids are
// critical, identity fields high, everything else standard.
func inferSensitivity(field string) model.Sensitivity {
	f := strings.ToLower(field)
	switch {
	case strings.Contains(f, "ssn"), strings.Contains(f, "ein"):
		return model.SensitivityCritical
	case strings.Contains(f, "full_name"), strings.Contains(f, "legal_name"), strings.Contains(f, "dob"):
		return model.SensitivityHigh
	default:
		return model.SensitivityStandard
	}
}

// inferRoleType guesses the entity type a legacy role name refers to.
func inferRoleType(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "person"), strings.Contains(n, "individual"),
		strings.Contains(n, "owner"), strings.Contains(n, "member"),
		strings.Contains(n, "spouse"), strings.Contains(n, "agent"):
		return "person"
	case strings.Contains(n, "institution"), strings.Contains(n, "bank"),
		strings.Contains(n, "school"), strings.Contains(n, "agency"):
		return "institution"
	default:
		return "business"
	}
}

// slug lowercases a display name and joins its words with underscores.
func slug(name string) string {
	fields := strings.Fields(strings.ToLower(strings.ReplaceAll(name, "_", " ")))
	return strings.Join(fields, "_")
}
