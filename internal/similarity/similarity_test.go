package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lodestone-ai/lodestone/internal/model"
)

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "Zenobia Quark", "zenobia quark", 1.0, 1.0},
		{"case and spacing", "  ACME   Corp ", "acme corp", 1.0, 1.0},
		{"near miss", "John Smith", "Jon Smith", 0.7, 0.95},
		{"unrelated", "Zenobia Quark", "Wilhelmina Štern", 0.0, 0.3},
		{"empty left", "", "anything", 0.0, 0.0},
		{"empty right", "anything", "", 0.0, 0.0},
		{"both empty", "", "", 0.0, 0.0},
		{"single char", "a", "a", 1.0, 1.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Similarity(tc.a, tc.b)
			assert.GreaterOrEqual(t, got, tc.min)
			assert.LessOrEqual(t, got, tc.max)
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"Acme Corporation", "Acme Corp"},
		{"San Francisco, CA", "San Francisco"},
		{"Chief Executive Officer", "CEO"},
	}
	for _, p := range pairs {
		assert.InDelta(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), 1e-12)
	}
}

func TestTokenOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, TokenOverlap("san francisco", "san francisco bay area"), 1e-9)
	assert.InDelta(t, 0.5, TokenOverlap("austin texas", "dallas texas"), 1e-9)
	assert.Equal(t, 0.0, TokenOverlap("", "anything"))
}

func TestWordBagJaccard(t *testing.T) {
	a := "Builds distributed storage systems for fintech companies"
	b := "Distributed storage systems engineer, fintech"
	got := WordBagJaccard(a, b)
	assert.Greater(t, got, 0.4)
	assert.LessOrEqual(t, got, 1.0)

	assert.Equal(t, 0.0, WordBagJaccard("a an it", "of to in"), "short words are ignored")
}

func TestNamesLikelyMatch(t *testing.T) {
	cases := []struct {
		name     string
		incoming []string
		existing []string
		want     bool
	}{
		{"exact", []string{"Zenobia Quark"}, []string{"Zenobia Quark"}, true},
		{"high dice", []string{"Jonathan Smithers"}, []string{"Jonathan Smither"}, true},
		{"initials", []string{"R J Smith"}, []string{"Robert James Smith"}, true},
		{"nickname prefix", []string{"Rob Smith"}, []string{"Robert Smith"}, true},
		{"token subset", []string{"Smith"}, []string{"Robert Smith"}, true},
		{"unrelated", []string{"Zenobia Quark"}, []string{"Harriet Vane"}, false},
		{"empty incoming", nil, []string{"Robert Smith"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NamesLikelyMatch(tc.incoming, tc.existing))
		})
	}
}

func TestAllNames(t *testing.T) {
	person := &model.Entity{
		EntityType: model.EntityPerson,
		Name: model.Name{
			Full:      "Zenobia Quark",
			Preferred: "Zee",
			Aliases:   []string{"Z. Quark", "zenobia quark"},
		},
	}
	names := AllNames(person)
	assert.Equal(t, []string{"Zenobia Quark", "Zee", "Z. Quark"}, names, "duplicates collapse, order stable")

	biz := &model.Entity{
		EntityType: model.EntityBusiness,
		Name:       model.Name{Legal: "Acme Incorporated", Common: "Acme"},
	}
	assert.Equal(t, []string{"Acme", "Acme Incorporated"}, AllNames(biz))
}

func TestNormalizeBusinessName(t *testing.T) {
	cases := map[string]string{
		"Acme Inc.":         "acme",
		"Acme.com":          "acme",
		"Johnson LLC":       "johnson",
		"Beta Corp":         "beta",
		"Gamma, Ltd.":       "gamma",
		"Plain Name":        "plain name",
		"Acme Corporation":  "acme",
		"Quark & Quark LLP": "quark quark",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeBusinessName(in), "input %q", in)
	}
}

func TestPropertyOverlapCount(t *testing.T) {
	a := map[string]string{"company": "Acme Corp", "location": "Denver", "role": "CTO"}
	b := map[string]string{"company": "Acme Corporation", "location": "Austin", "role": "CTO"}
	// company normalizes close enough via Dice, role exact, location differs.
	got := PropertyOverlapCount(a, b)
	assert.GreaterOrEqual(t, got, 1)
	assert.LessOrEqual(t, got, 2)
}

func TestSharedRelationshipCount(t *testing.T) {
	a := &model.Entity{Relationships: []model.Relationship{
		{Name: "Jane Doe", RelationshipType: "colleague"},
		{Name: "Acme Corp", RelationshipType: "employer"},
	}}
	b := &model.Entity{Relationships: []model.Relationship{
		{Name: "Jane Doe", RelationshipType: "colleague"},
		{Name: "Beta LLC", RelationshipType: "employer"},
	}}
	assert.Equal(t, 1, SharedRelationshipCount(a, b))
}

func TestRarityTable_Classify(t *testing.T) {
	table := DefaultRarityTable()

	cases := []struct {
		name string
		want Rarity
	}{
		{"John Smith", RarityVeryCommon},
		{"CJ Johnson", RarityVeryCommon},
		{"Sarah Quark", RarityCommon},
		{"Zenobia Wilson", RarityCommon},
		{"Zenobia Quark", RarityStandard},
		{"", RarityStandard},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, table.Classify(tc.name), "name %q", tc.name)
	}
}

func TestRarityTable_Thresholds(t *testing.T) {
	table := DefaultRarityTable()
	assert.InDelta(t, 0.45, table.Threshold(RarityVeryCommon), 1e-12)
	assert.InDelta(t, 0.35, table.Threshold(RarityCommon), 1e-12)
	assert.InDelta(t, 0.30, table.Threshold(RarityStandard), 1e-12)
}

func TestRarityTable_Overrides(t *testing.T) {
	table := DefaultRarityTable().WithOverrides(map[string]Rarity{
		"Zenobia Quark": RarityVeryCommon,
	})
	assert.Equal(t, RarityVeryCommon, table.Classify("zenobia quark"))
	// Unknown names still fall through to the global sets.
	assert.Equal(t, RarityVeryCommon, table.Classify("John Smith"))
}
