package similarity

import (
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// nameMatchThreshold is the Dice score above which two names are considered
// the same for likely-match and cross-cluster overlap checks.
const nameMatchThreshold = 0.85

// businessSuffixes are dropped when normalizing business names.
var businessSuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"llc":          true,
	"llp":          true,
	"corp":         true,
	"corporation":  true,
	"ltd":          true,
	"limited":      true,
	"co":           true,
}

// AllNames returns every name form on an entity: full/preferred/aliases for
// persons, common/legal/aliases for businesses and institutions. Order is
// stable and duplicates are removed.
func AllNames(e *model.Entity) []string {
	var forms []string
	if e.EntityType == model.EntityPerson {
		forms = []string{e.Name.Full, e.Name.Preferred}
	} else {
		forms = []string{e.Name.Common, e.Name.Legal}
	}
	forms = append(forms, e.Name.Aliases...)

	var out []string
	seen := make(map[string]bool)
	for _, f := range forms {
		key := normalize(f)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// NamesLikelyMatch reports whether any incoming/existing name pair is a
// likely identity match: high Dice similarity, shared initials, or one name
// being a token subset of the other (covering nicknames and abbreviations).
func NamesLikelyMatch(incoming, existing []string) bool {
	for _, in := range incoming {
		for _, ex := range existing {
			if namesLikelyMatchPair(in, ex) {
				return true
			}
		}
	}
	return false
}

func namesLikelyMatchPair(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return false
	}
	if Similarity(a, b) > nameMatchThreshold {
		return true
	}
	if ia, ib := Initials(a), Initials(b); len(ia) > 1 && ia == ib {
		return true
	}
	return tokenSubset(a, b) || tokenSubset(b, a)
}

// Initials returns the uppercased first letters of each token.
func Initials(name string) string {
	var sb strings.Builder
	for _, tok := range strings.Fields(name) {
		r := []rune(tok)
		if len(r) == 0 {
			continue
		}
		sb.WriteString(strings.ToUpper(string(r[0])))
	}
	return sb.String()
}

// tokenSubset reports whether every token of a matches a token of b. Tokens
// match exactly, by single-letter initial, or by a three-letter-plus prefix
// ("rob" matches "robert", "j" matches "james").
func tokenSubset(a, b string) bool {
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(aTokens) > len(bTokens) {
		return false
	}
	used := make([]bool, len(bTokens))
	for _, at := range aTokens {
		found := false
		for i, bt := range bTokens {
			if used[i] || !tokensCompatible(at, bt) {
				continue
			}
			used[i] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

func tokensCompatible(a, b string) bool {
	if a == b {
		return true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 1 {
		return strings.HasPrefix(long, short)
	}
	return len(short) >= 3 && strings.HasPrefix(long, short)
}

// NormalizeBusinessName lowercases, strips punctuation, drops a trailing
// ".com", and removes corporate suffix tokens (inc, llc, corp, ltd, ...).
func NormalizeBusinessName(s string) string {
	s = normalize(s)
	s = strings.TrimSuffix(s, ".com")
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '\'', '"', '&', '(', ')':
			return -1
		}
		return r
	}, s)

	var kept []string
	for _, tok := range strings.Fields(cleaned) {
		if businessSuffixes[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// EntityProperties flattens an entity's attributes into a key → value map
// for structural comparison during ambiguous matches.
func EntityProperties(e *model.Entity) map[string]string {
	props := make(map[string]string, len(e.Attributes))
	for _, a := range e.Attributes {
		if v := a.ValueString(); v != "" {
			props[a.Key] = v
		}
	}
	return props
}

// PropertyOverlapCount counts keys present in both maps whose values agree
// (Dice > 0.7).
func PropertyOverlapCount(a, b map[string]string) int {
	n := 0
	for k, av := range a {
		if bv, ok := b[k]; ok && Similarity(av, bv) > 0.7 {
			n++
		}
	}
	return n
}

// SharedRelationshipCount counts relationships the two entities have in
// common, matching by relationship type and counterpart name.
func SharedRelationshipCount(a, b *model.Entity) int {
	n := 0
	for _, ra := range a.Relationships {
		for _, rb := range b.Relationships {
			if ra.RelationshipType == rb.RelationshipType &&
				Similarity(ra.Name, rb.Name) > nameMatchThreshold {
				n++
				break
			}
		}
	}
	return n
}
