package gap

import (
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// fieldAliasTable maps a canonical field id to the attribute keys that
// satisfy it. Lookup falls back to the id itself for fields not listed.
var fieldAliasTable = map[string][]string{
	"full_name":          {"full_name", "name", "legal_name", "preferred_name"},
	"legal_name":         {"legal_name", "name", "business_name", "company_name", "full_name"},
	"ssn":                {"ssn", "social_security", "social_security_number", "tax_id"},
	"ein":                {"ein", "employer_identification_number", "federal_ein", "tax_id"},
	"address":            {"address", "mailing_address", "business_address", "street_address", "location", "current_location"},
	"phone":              {"phone", "phone_number", "telephone", "contact_phone", "mobile"},
	"email":              {"email", "email_address", "contact_email"},
	"dob":                {"dob", "date_of_birth", "birth_date"},
	"insurance_info":     {"insurance_info", "insurance", "insurance_provider", "policy_number"},
	"formation_date":     {"formation_date", "date_of_formation", "incorporation_date"},
	"state_of_formation": {"state_of_formation", "formation_state", "state"},
	"ownership_split":    {"ownership_split", "ownership", "equity_split", "member_interests"},
	"registered_agent":   {"registered_agent", "agent", "agent_name"},
	"filing_status":      {"filing_status", "tax_filing_status"},
	"wages":              {"wages", "salary", "income", "compensation"},
	"employer_name":      {"employer_name", "employer", "company", "current_company"},
	"payer_name":         {"payer_name", "payer"},
	"license_number":     {"license_number", "license", "permit_number"},
	"expense_total":      {"expense_total", "total_expenses", "expenses"},
}

// nameFields are satisfied by the entity's name block alone, without a
// matching attribute.
var nameFields = map[string]bool{
	"full_name":     true,
	"legal_name":    true,
	"name":          true,
	"business_name": true,
	"company_name":  true,
}

// aliasesFor returns the attribute keys that count as the given field.
func aliasesFor(fieldID string) []string {
	if aliases, ok := fieldAliasTable[fieldID]; ok {
		return aliases
	}
	return []string{fieldID}
}

// attributeMatches reports whether an attribute key satisfies the field
// through the alias table.
func attributeMatches(key, fieldID string) bool {
	k := strings.ToLower(key)
	for _, alias := range aliasesFor(fieldID) {
		if k == alias {
			return true
		}
	}
	return false
}

// entityHasField reports whether the entity carries evidence for the field:
// a matching attribute key, the name block for name-like fields, or the
// field's words appearing in observation text.
func entityHasField(e *model.Entity, fieldID string) bool {
	for _, attr := range e.Attributes {
		if attributeMatches(attr.Key, fieldID) && attr.ValueString() != "" {
			return true
		}
	}
	if nameFields[fieldID] && !e.Name.IsEmpty() {
		return true
	}
	needle := strings.ReplaceAll(strings.ToLower(fieldID), "_", " ")
	for _, obs := range e.Observations {
		if strings.Contains(strings.ToLower(obs.Text), needle) {
			return true
		}
	}
	return false
}

// fieldExtracted reports whether any entity in scope satisfies the field.
func fieldExtracted(entities []*model.Entity, fieldID string) bool {
	for _, e := range entities {
		if entityHasField(e, fieldID) {
			return true
		}
	}
	return false
}

// fieldValues collects the attribute values across entities whose key
// matches any of the given field ids, for cross-document rules.
func fieldValues(entities []*model.Entity, fieldIDs []string) []string {
	var values []string
	for _, e := range entities {
		for _, attr := range e.Attributes {
			for _, fieldID := range fieldIDs {
				if attributeMatches(attr.Key, fieldID) {
					if v := attr.ValueString(); v != "" {
						values = append(values, v)
					}
					break
				}
			}
		}
	}
	return values
}

// roleTypeMatches reports whether an entity's type satisfies a role's
// declared type. Organization, business, and institution are aliases of
// the same organizational family.
func roleTypeMatches(roleType string, entityType model.EntityType) bool {
	rt := strings.ToLower(roleType)
	et := string(entityType)
	if rt == et {
		return true
	}
	org := map[string]bool{"organization": true, "business": true, "institution": true, "company": true}
	return org[rt] && org[et]
}

// mentionsRole reports whether the entity's relationships or observations
// mention the role keyword.
func mentionsRole(e *model.Entity, role model.EntityRole) bool {
	keyword := strings.ToLower(strings.ReplaceAll(role.Label(), "_", " "))
	if keyword == "" {
		return false
	}
	for _, rel := range e.Relationships {
		if strings.Contains(strings.ToLower(rel.RelationshipType), keyword) ||
			strings.Contains(strings.ToLower(rel.Name), keyword) {
			return true
		}
	}
	for _, obs := range e.Observations {
		if strings.Contains(strings.ToLower(obs.Text), keyword) {
			return true
		}
	}
	return false
}
