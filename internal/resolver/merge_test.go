package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/confidence"
	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/similarity"
	"github.com/lodestone-ai/lodestone/internal/testutil"
)

func bareResolver() *Resolver {
	return New(nil, confidence.NewModel(), similarity.DefaultRarityTable(), testutil.TestLogger())
}

func mergeCluster(data *model.ExtractedEntity) *model.Cluster {
	return &model.Cluster{
		ClusterID:  "SIG-merge000001",
		EntityType: data.EntityType,
		Source:     model.Source{Type: "file_upload", Weight: 0.75, ExtractedAt: model.Now()},
		EntityData: data,
	}
}

func TestMergeFillsNameFormsAndAliases(t *testing.T) {
	entity := testutil.PersonEntity("ENT-RC-001", "Robert Chen")
	data := testutil.Person("Robert Chen")
	data.Name.Preferred = "Rob Chen"
	data.Name.Aliases = []string{"Bobby C"}

	changes := bareResolver().mergeEntityData(entity, mergeCluster(data), false)

	assert.Equal(t, "Rob Chen", entity.Name.Preferred)
	assert.Contains(t, entity.Name.Aliases, "Bobby C")
	assert.NotEmpty(t, changes)
}

func TestMergeProtectsSelfEntityNameAndSummary(t *testing.T) {
	entity := testutil.PersonEntity("ENT-OW-001", "Original Owner")
	entity.Summary = &model.Summary{Value: "The centered entity.", Confidence: 0.9}
	data := testutil.Person("Different Name")
	data.Summary = &model.Summary{Value: "Someone else entirely.", Confidence: 0.95}

	bareResolver().mergeEntityData(entity, mergeCluster(data), true)

	assert.Equal(t, "Original Owner", entity.Name.Full)
	assert.Equal(t, "The centered entity.", entity.Summary.Value)
}

func TestMergePrefersMoreRecentAttribute(t *testing.T) {
	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	old := testutil.Attr("current_role", "Designer", time.Now().AddDate(-2, 0, 0))
	old.BaseConfidence = 0.8
	old.Confidence = 0.8
	entity.Attributes = []model.Attribute{old}

	data := testutil.Person("Cass Moore")
	data.Attributes = []model.Attribute{
		testutil.Attr("current_role", "Art Director", time.Now()),
	}

	changes := bareResolver().mergeEntityData(entity, mergeCluster(data), false)

	assert.Equal(t, "Art Director", entity.AttributeValue("current_role"))
	assert.Contains(t, changes, "updated current_role")
	attr, _ := entity.Attribute("current_role")
	assert.Contains(t, attr.SourceClusters, "SIG-merge000001")
}

func TestMergeKeepsEqualValueAndCorroborates(t *testing.T) {
	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	existing := testutil.Attr("current_role", "Designer", time.Now())
	existing.BaseConfidence = 0.8
	existing.Confidence = 0.8
	existing.SourceClusters = []string{"SIG-seed"}
	entity.Attributes = []model.Attribute{existing}

	data := testutil.Person("Cass Moore")
	data.Attributes = []model.Attribute{
		testutil.Attr("current_role", "designer", time.Now()),
	}

	changes := bareResolver().mergeEntityData(entity, mergeCluster(data), false)

	assert.Equal(t, "Designer", entity.AttributeValue("current_role"), "case-insensitive equal values stand")
	assert.Contains(t, changes, "corroborated current_role")
	attr, _ := entity.Attribute("current_role")
	assert.Len(t, attr.SourceClusters, 2)
	assert.InDelta(t, 1.0, attr.Confidence, 1e-9, "0.8 × 1.3 caps at 1.0")
}

func TestMergeUnionsRelationshipsByNameAndType(t *testing.T) {
	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	entity.Relationships = []model.Relationship{
		{RelationshipID: "REL-1", Name: "Nova Byrd", RelationshipType: "colleague", EntityIDRef: nil},
	}

	data := testutil.Person("Cass Moore")
	data.Relationships = []model.Relationship{
		{Name: "nova byrd", RelationshipType: "Colleague", EntityIDRef: nil},
		{Name: "Page Park", RelationshipType: "mentor", EntityIDRef: nil},
	}

	bareResolver().mergeEntityData(entity, mergeCluster(data), false)

	require.Len(t, entity.Relationships, 2)
	assert.Equal(t, "Page Park", entity.Relationships[1].Name)
	assert.NotEmpty(t, entity.Relationships[1].RelationshipID)
}

func TestMergeReplacesCareerOnlyWithExperience(t *testing.T) {
	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	entity.CareerLite = &model.CareerLite{
		Headline:   "Designer",
		Experience: []model.ExperienceEntry{{Title: "Designer", Company: "Acme Corp"}},
	}

	headlineOnly := testutil.Person("Cass Moore")
	headlineOnly.CareerLite = &model.CareerLite{Headline: "Art Director"}
	bareResolver().mergeEntityData(entity, mergeCluster(headlineOnly), false)
	assert.Equal(t, "Designer", entity.CareerLite.Headline, "headline-only career never clobbers real history")

	full := testutil.Person("Cass Moore")
	full.CareerLite = &model.CareerLite{
		Experience: []model.ExperienceEntry{{Title: "Art Director", Company: "Beta Industries", Current: true}},
	}
	bareResolver().mergeEntityData(entity, mergeCluster(full), false)
	assert.Equal(t, "Beta Industries", entity.CareerLite.Experience[0].Company)
}

func TestObservationIDsAreDenseWithinASecond(t *testing.T) {
	entity := testutil.PersonEntity("ENT-ZQ-001", "Zenobia Quark")
	at := model.At(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	first := NextObservationID(entity, at)
	assert.Equal(t, "OBS-ENT-ZQ-001-20260826120000-001", first)

	entity.Observations = append(entity.Observations, model.Observation{ObservationID: first, Text: "a"})
	second := NextObservationID(entity, at)
	assert.Equal(t, "OBS-ENT-ZQ-001-20260826120000-002", second)

	later := model.At(time.Date(2026, 8, 26, 12, 0, 1, 0, time.UTC))
	assert.Equal(t, "OBS-ENT-ZQ-001-20260826120001-001", NextObservationID(entity, later))
}
