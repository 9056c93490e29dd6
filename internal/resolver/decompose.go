package resolver

import (
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/staging"
)

// computedKey is the sub-structure Decompose owns inside
// structured_attributes. Everything outside it is authoritative data the
// decomposer never touches.
const computedKey = "computed"

// Decompose projects a person's derived facets (contact, work history,
// education, social graph) into the computed sub-structure on the same
// entity. It reads only the canonical entity and is idempotent: the computed
// block is rebuilt from scratch on every call, and nothing authoritative is
// modified. Non-person entities are left alone.
func Decompose(e *model.Entity) {
	if e.EntityType != model.EntityPerson {
		return
	}

	computed := map[string]any{}
	if contact := contactFacet(e); len(contact) > 0 {
		computed["contact"] = contact
	}
	if work := workHistoryFacet(e); len(work) > 0 {
		computed["work_history"] = work
	}
	if edu := educationFacet(e); len(edu) > 0 {
		computed["education"] = edu
	}
	if social := socialFacet(e); len(social) > 0 {
		computed["social"] = social
	}

	if len(computed) == 0 {
		if e.StructuredAttributes != nil {
			delete(e.StructuredAttributes, computedKey)
		}
		return
	}
	if e.StructuredAttributes == nil {
		e.StructuredAttributes = map[string]any{}
	}
	e.StructuredAttributes[computedKey] = computed
}

func contactFacet(e *model.Entity) map[string]string {
	contact := map[string]string{}
	for _, a := range e.Attributes {
		v := a.ValueString()
		if v == "" {
			continue
		}
		switch strings.ToLower(a.Key) {
		case "email", "email_address":
			contact["email"] = v
		case "phone", "phone_number":
			contact["phone"] = v
		case "website", "url":
			contact["website"] = v
		case "location", "current_location", "city":
			contact["location"] = v
		}
	}
	return contact
}

func workHistoryFacet(e *model.Entity) []map[string]any {
	var work []map[string]any
	if e.CareerLite != nil {
		for _, exp := range e.CareerLite.Experience {
			entry := map[string]any{}
			if exp.Title != "" {
				entry["title"] = exp.Title
			}
			if exp.Company != "" {
				entry["company"] = exp.Company
			}
			if exp.StartDate != "" {
				entry["start_date"] = exp.StartDate
			}
			if exp.EndDate != "" {
				entry["end_date"] = exp.EndDate
			}
			if exp.Current {
				entry["current"] = true
			}
			if len(entry) > 0 {
				work = append(work, entry)
			}
		}
	}
	if len(work) == 0 {
		entry := map[string]any{}
		if v := e.AttributeValue("current_role"); v != "" {
			entry["title"] = v
		}
		if v := e.AttributeValue("current_company"); v != "" {
			entry["company"] = v
			entry["current"] = true
		}
		if len(entry) > 0 {
			work = append(work, entry)
		}
	}
	return work
}

func educationFacet(e *model.Entity) []map[string]string {
	if e.CareerLite == nil {
		return nil
	}
	var edu []map[string]string
	for _, entry := range e.CareerLite.Education {
		m := map[string]string{}
		if entry.School != "" {
			m["school"] = entry.School
		}
		if entry.Degree != "" {
			m["degree"] = entry.Degree
		}
		if entry.Field != "" {
			m["field"] = entry.Field
		}
		if len(m) > 0 {
			edu = append(edu, m)
		}
	}
	return edu
}

func socialFacet(e *model.Entity) map[string]string {
	handles := staging.HandlesFromAttributes(e.Attributes)
	social := map[string]string{}
	if handles.X != "" {
		social["x"] = handles.X
	}
	if handles.Instagram != "" {
		social["instagram"] = handles.Instagram
	}
	if handles.LinkedIn != "" {
		social["linkedin"] = handles.LinkedIn
	}
	return social
}
