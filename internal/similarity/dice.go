// Package similarity implements the stateless string-similarity kernel the
// staging and resolution pipeline is built on: bigram Sørensen–Dice scores,
// structured-name matching with nickname and initial rules, corporate-suffix
// normalization, and name-rarity classification.
package similarity

import "strings"

// Similarity returns the Sørensen–Dice coefficient of a and b in [0,1].
// Input is case-folded and whitespace-normalized, then compared over
// character bigrams with spaces removed, so "Acme Corp." and "acme corp"
// score 1.0 and near-misses degrade smoothly. Empty input scores 0.
func Similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	aGrams := bigrams(a)
	bGrams := bigrams(b)
	if len(aGrams) == 0 || len(bGrams) == 0 {
		return 0
	}

	overlap := 0
	for gram, n := range aGrams {
		if m, ok := bGrams[gram]; ok {
			overlap += min(n, m)
		}
	}
	total := 0
	for _, n := range aGrams {
		total += n
	}
	for _, n := range bGrams {
		total += n
	}
	return 2 * float64(overlap) / float64(total)
}

// TokenOverlap returns the fraction of a's tokens that appear in b,
// case-insensitive and ignoring surrounding punctuation. Used for the
// fractional location factor, where "Lisbon" should fully overlap
// "Lisbon, Portugal".
func TokenOverlap(a, b string) float64 {
	aTokens := cleanTokens(a)
	if len(aTokens) == 0 {
		return 0
	}
	bSet := make(map[string]bool)
	for _, t := range cleanTokens(b) {
		bSet[t] = true
	}
	hits := 0
	for _, t := range aTokens {
		if bSet[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(aTokens))
}

func cleanTokens(s string) []string {
	var out []string
	for _, t := range strings.Fields(normalize(s)) {
		t = strings.Trim(t, ".,;:!?()[]\"'")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// WordBagJaccard returns the Jaccard index of the two strings' word bags,
// counting only words longer than three characters. Used for the bio factor.
func WordBagJaccard(a, b string) float64 {
	aSet := wordBag(a)
	bSet := wordBag(b)
	if len(aSet) == 0 && len(bSet) == 0 {
		return 0
	}
	intersection := 0
	for w := range aSet {
		if bSet[w] {
			intersection++
		}
	}
	union := len(aSet) + len(bSet) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordBag(s string) map[string]bool {
	bag := make(map[string]bool)
	for _, w := range strings.Fields(normalize(s)) {
		w = strings.Trim(w, ".,;:!?()[]\"'")
		if len(w) > 3 {
			bag[w] = true
		}
	}
	return bag
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// bigrams builds the multiset of character bigrams with spaces removed.
func bigrams(s string) map[string]int {
	s = strings.ReplaceAll(s, " ", "")
	grams := make(map[string]int)
	runes := []rune(s)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}
