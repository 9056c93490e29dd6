package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/testutil"
)

func conflictCluster(mutate func(*model.Cluster)) *model.Cluster {
	c := &model.Cluster{
		ClusterID:  "SIG-000000000001",
		EntityType: model.EntityPerson,
		Source:     model.Source{Type: "linkedin_pdf", Weight: 0.85, ExtractedAt: model.Now()},
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestHandleDisagreementIsIdentity(t *testing.T) {
	entity := testutil.PersonEntity("ENT-NB-001", "Nova Byrd")
	entity.Attributes = []model.Attribute{
		testutil.Attr("linkedin_handle", "nova-byrd", time.Now()),
	}
	cluster := conflictCluster(func(c *model.Cluster) {
		c.Signals.Handles.LinkedIn = "nova-byrd-2"
	})

	conflicts := DetectConflicts(entity, cluster)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictIdentity, conflicts[0].ConflictType)
	assert.Equal(t, "linkedin_handle", conflicts[0].Attribute)
	assert.Equal(t, "nova-byrd", conflicts[0].ValueA)
	assert.Equal(t, "nova-byrd-2", conflicts[0].ValueB)
	assert.False(t, conflicts[0].AutoResolved)
}

func TestBothRecentLocationsAreIdentity(t *testing.T) {
	entity := testutil.PersonEntity("ENT-PP-001", "Page Park")
	entity.Attributes = []model.Attribute{
		testutil.Attr("location", "Tokyo", time.Now().AddDate(0, -2, 0)),
	}
	cluster := conflictCluster(func(c *model.Cluster) {
		c.Signals.Locations = []string{"Lisbon"}
	})

	conflicts := DetectConflicts(entity, cluster)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictIdentity, conflicts[0].ConflictType)
}

func TestStaleLocationIsTemporal(t *testing.T) {
	entity := testutil.PersonEntity("ENT-PP-001", "Page Park")
	entity.Attributes = []model.Attribute{
		testutil.Attr("location", "Tokyo", time.Now().AddDate(-4, 0, 0)),
	}
	cluster := conflictCluster(func(c *model.Cluster) {
		c.Signals.Locations = []string{"Lisbon"}
	})

	conflicts := DetectConflicts(entity, cluster)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, model.ConflictTemporal, c.ConflictType)
	assert.True(t, c.AutoResolved)
	require.NotNil(t, c.Resolution)
	assert.Equal(t, model.WinnerB, c.Resolution.Winner)
	assert.Equal(t, "Lisbon", c.Resolution.WinningValue)
	assert.Equal(t, "system", c.Resolution.ResolvedBy)
	assert.Equal(t, temporalResolutionReason, c.Resolution.Reason)
}

func TestBothRecentTitlesAreFactual(t *testing.T) {
	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	entity.Attributes = []model.Attribute{
		testutil.Attr("current_role", "Designer", time.Now().AddDate(0, -1, 0)),
	}
	cluster := conflictCluster(func(c *model.Cluster) {
		c.Signals.Titles = []string{"Chief Executive"}
	})

	conflicts := DetectConflicts(entity, cluster)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictFactual, conflicts[0].ConflictType)
	assert.False(t, conflicts[0].AutoResolved)
}

func TestParaphrasesAreNotConflicts(t *testing.T) {
	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	entity.Attributes = []model.Attribute{
		testutil.Attr("current_company", "Acme Corp", time.Now()),
	}
	cluster := conflictCluster(func(c *model.Cluster) {
		c.Signals.Organizations = []string{"Acme Corp."}
	})

	assert.Empty(t, DetectConflicts(entity, cluster))
}

func TestUndatedIncumbentLosesToDatedIncoming(t *testing.T) {
	c := model.Conflict{
		Attribute: "current_company",
		ValueA:    "Acme Corp",
		ValueB:    "Beta Industries",
		DateB:     model.Now(),
	}
	autoResolveTemporal(&c)
	require.NotNil(t, c.Resolution)
	assert.Equal(t, model.WinnerB, c.Resolution.Winner)
}

func TestUndatedBothSidesKeepIncumbent(t *testing.T) {
	c := model.Conflict{
		Attribute: "current_company",
		ValueA:    "Acme Corp",
		ValueB:    "Beta Industries",
	}
	autoResolveTemporal(&c)
	require.NotNil(t, c.Resolution)
	assert.Equal(t, model.WinnerA, c.Resolution.Winner)
	assert.Equal(t, "Acme Corp", c.Resolution.WinningValue)
}
