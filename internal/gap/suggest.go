package gap

import (
	"fmt"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// Suggestion caps, in priority order: missing documents, entity fields,
// document fields, relationships.
const (
	maxDocSuggestions          = 5
	maxEntityFieldSuggestions  = 5
	maxDocFieldSuggestions     = 3
	maxRelationshipSuggestions = 3
)

// buildSuggestions derives the deterministic remediation list from a scored
// card. Order and caps are fixed so repeated runs over the same graph
// produce identical suggestions.
func buildSuggestions(card *model.Scorecard, entityFields []missingEntityField, docFields []missingField, roles []model.EntityRole) []model.Suggestion {
	var out []model.Suggestion

	for i, doc := range card.MissingDocuments {
		if i >= maxDocSuggestions {
			break
		}
		out = append(out, model.Suggestion{
			Kind: model.SuggestMissingDocument,
			Text: fmt.Sprintf("Request %s from client", doc),
		})
	}

	for i, mf := range entityFields {
		if i >= maxEntityFieldSuggestions {
			break
		}
		out = append(out, model.Suggestion{
			Kind: model.SuggestEntityField,
			Text: fmt.Sprintf("Obtain %s for role %s", mf.field, mf.role.Label()),
		})
	}

	for i, mf := range docFields {
		if i >= maxDocFieldSuggestions {
			break
		}
		out = append(out, model.Suggestion{
			Kind: model.SuggestDocumentField,
			Text: fmt.Sprintf("Extract %s from %s", mf.field.Label(), mf.doc.Label()),
		})
	}

	for i, role := range roles {
		if i >= maxRelationshipSuggestions {
			break
		}
		out = append(out, model.Suggestion{
			Kind: model.SuggestMissingRelationship,
			Text: fmt.Sprintf("Identify and add %s", role.Label()),
		})
	}

	return out
}
