package similarity

import "strings"

// Rarity classifies how common a person's name is. Commoner names need a
// higher association score before a match is trusted.
type Rarity string

const (
	RarityVeryCommon Rarity = "very_common"
	RarityCommon     Rarity = "common"
	RarityStandard   Rarity = "standard"
)

// Zone thresholds per rarity class.
const (
	thresholdVeryCommon = 0.45
	thresholdCommon     = 0.35
	thresholdStandard   = 0.30
)

// RarityTable classifies names against common first/last name sets. The
// zero value classifies everything as standard; DefaultRarityTable returns
// the built-in tables. Overrides (full lowercased name → rarity) take
// precedence and are the per-tenant tuning hook; unknown names fall through
// to the global sets.
type RarityTable struct {
	VeryCommonFirst map[string]bool
	CommonFirst     map[string]bool
	VeryCommonLast  map[string]bool
	CommonLast      map[string]bool
	Overrides       map[string]Rarity
}

// DefaultRarityTable returns the built-in common-name tables.
func DefaultRarityTable() *RarityTable {
	return &RarityTable{
		VeryCommonFirst: toSet(
			"james", "john", "robert", "michael", "william", "david",
			"mary", "patricia", "jennifer", "linda", "elizabeth",
			"chris", "mike", "dave", "jim", "bob", "joe", "tom",
			"cj", "tj", "aj", "jj", "dj",
		),
		CommonFirst: toSet(
			"richard", "joseph", "thomas", "charles", "daniel", "matthew",
			"anthony", "mark", "steven", "paul", "andrew", "kevin", "brian",
			"barbara", "susan", "jessica", "sarah", "karen", "nancy", "lisa",
			"sam", "alex", "max", "dan", "matt", "steve", "andy", "nick",
		),
		VeryCommonLast: toSet(
			"smith", "johnson", "williams", "brown", "jones",
			"garcia", "miller", "davis",
		),
		CommonLast: toSet(
			"rodriguez", "martinez", "hernandez", "lopez", "gonzalez",
			"wilson", "anderson", "thomas", "taylor", "moore", "jackson",
			"martin", "lee", "thompson", "white", "harris", "clark", "lewis",
		),
	}
}

// Classify returns the rarity class of a full name. Initials-style aliases
// (CJ, TJ) are listed in the built-in very-common set. Overrides win over
// the global sets.
func (t *RarityTable) Classify(name string) Rarity {
	norm := normalize(name)
	if norm == "" {
		return RarityStandard
	}
	if t == nil {
		return RarityStandard
	}
	if r, ok := t.Overrides[norm]; ok {
		return r
	}

	tokens := strings.Fields(norm)
	first := tokens[0]
	last := tokens[len(tokens)-1]

	firstVery := t.VeryCommonFirst[first]
	lastVery := t.VeryCommonLast[last]

	switch {
	case firstVery && (lastVery || t.CommonLast[last]):
		return RarityVeryCommon
	case len(tokens) == 1 && firstVery:
		return RarityVeryCommon
	case firstVery || lastVery || t.CommonFirst[first] || t.CommonLast[last]:
		return RarityCommon
	default:
		return RarityStandard
	}
}

// Threshold maps a rarity class to the minimum association score required
// to enter the ambiguous match zone.
func (t *RarityTable) Threshold(r Rarity) float64 {
	switch r {
	case RarityVeryCommon:
		return thresholdVeryCommon
	case RarityCommon:
		return thresholdCommon
	default:
		return thresholdStandard
	}
}

// WithOverrides returns a copy of the table with the given per-name
// overrides layered on top of any existing ones.
func (t *RarityTable) WithOverrides(overrides map[string]Rarity) *RarityTable {
	if len(overrides) == 0 {
		return t
	}
	out := *t
	out.Overrides = make(map[string]Rarity, len(t.Overrides)+len(overrides))
	for k, v := range t.Overrides {
		out.Overrides[normalize(k)] = v
	}
	for k, v := range overrides {
		out.Overrides[normalize(k)] = v
	}
	return &out
}

func toSet(items ...string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
