package resolver

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/confidence"
	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/staging"
	"github.com/lodestone-ai/lodestone/internal/store"
	"github.com/lodestone-ai/lodestone/internal/testutil"
)

func newTestResolver(t *testing.T) (*Resolver, *staging.Stager, *store.Tenant) {
	t.Helper()
	s, err := store.New(t.TempDir(), testutil.TestLogger())
	require.NoError(t, err)
	tenant, err := s.Tenant("acme")
	require.NoError(t, err)
	conf := confidence.NewModel()
	return New(tenant, conf, nil, testutil.TestLogger()),
		staging.New(tenant, conf, testutil.TestLogger()),
		tenant
}

func stage(t *testing.T, stager *staging.Stager, extracted *model.ExtractedEntity) *model.Cluster {
	t.Helper()
	cluster, err := stager.Stage(extracted, model.Source{Type: "file_upload"})
	require.NoError(t, err)
	return cluster
}

func seedEntity(t *testing.T, tenant *store.Tenant, e *model.Entity) {
	t.Helper()
	require.NoError(t, tenant.PutEntity(e))
}

func seededAttr(key, value string, captured time.Time, base float64, sources ...string) model.Attribute {
	a := testutil.Attr(key, value, captured)
	a.AttributeID = "ATTR-" + key
	a.BaseConfidence = base
	a.Confidence = base
	a.SourceClusters = sources
	return a
}

// An unknown name against an empty graph creates a brand-new entity with the
// initials-based id and stamped attributes.
func TestPureCreateFlow(t *testing.T) {
	r, stager, tenant := newTestResolver(t)

	extracted := testutil.Person("Zenobia Quark")
	extracted.Attributes = []model.Attribute{
		testutil.Attr("current_role", "Founder", time.Now()),
		testutil.Attr("current_company", "Quark Labs", time.Now()),
	}
	extracted.Observations = []model.Observation{{Text: "Met at the Austin summit."}}
	cluster := stage(t, stager, extracted)

	scored, err := r.ScoreCluster(cluster.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, model.ZoneNoMatch, scored.MatchZone)
	assert.Equal(t, model.Q1Create, scored.QuadrantLabel)
	assert.Equal(t, model.StateUnresolved, scored.State)
	assert.Empty(t, scored.CandidateEntityID)

	out, err := r.ResolveCluster(cluster.ClusterID, ActionCreateNew, "tester")
	require.NoError(t, err)
	assert.Equal(t, "ENT-ZQ-001", out.EntityID)
	assert.True(t, out.Created)

	entity, err := tenant.GetEntity("ENT-ZQ-001")
	require.NoError(t, err)
	assert.Equal(t, "Zenobia Quark", entity.DisplayName())

	role, ok := entity.Attribute("current_role")
	require.True(t, ok)
	assert.InDelta(t, 0.75, role.Confidence, 1e-9, "file_upload weight, one source, recent capture")
	assert.Equal(t, []string{cluster.ClusterID}, role.SourceClusters)

	require.Len(t, entity.Observations, 1)
	assert.Regexp(t, regexp.MustCompile(`^OBS-ENT-ZQ-001-\d{14}-001$`), entity.Observations[0].ObservationID)

	_, err = tenant.GetCluster(cluster.ClusterID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// A cluster that only repeats what the graph already knows lands in Q4 and
// skip corroborates the matching attributes: 0.75 × 1.3 = 0.975.
func TestDuplicateSkipCorroborates(t *testing.T) {
	r, stager, tenant := newTestResolver(t)

	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	entity.Attributes = []model.Attribute{
		seededAttr("current_company", "Acme Corp", time.Now(), 0.75, "SIG-seed"),
		seededAttr("linkedin_handle", "cass-moore", time.Now(), 0.75, "SIG-seed"),
	}
	seedEntity(t, tenant, entity)

	extracted := testutil.Person("Cass Moore")
	extracted.Attributes = []model.Attribute{
		testutil.Attr("current_company", "Acme Corp", time.Now()),
		testutil.Attr("linkedin_handle", "cass-moore", time.Now()),
	}
	cluster := stage(t, stager, extracted)

	scored, err := r.ScoreCluster(cluster.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, model.ZoneHighConfidence, scored.MatchZone)
	assert.Equal(t, model.Q4Confirm, scored.QuadrantLabel)
	assert.Equal(t, model.StateProvisional, scored.State)
	require.NotNil(t, scored.DataNovelty)
	assert.False(t, scored.DataNovelty.IsNewData())

	out, err := r.ResolveCluster(cluster.ClusterID, ActionSkip, "tester")
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, out.Action)

	updated, err := tenant.GetEntity(entity.EntityID)
	require.NoError(t, err)
	company, ok := updated.Attribute("current_company")
	require.True(t, ok)
	assert.Contains(t, company.SourceClusters, cluster.ClusterID)
	assert.InDelta(t, 0.975, company.Confidence, 1e-9, "0.75 base × 1.3 corroboration")

	require.Len(t, updated.Provenance.SourceDocuments, 1)
	assert.Equal(t, cluster.ClusterID, updated.Provenance.SourceDocuments[0].ClusterID)

	_, err = tenant.GetCluster(cluster.ClusterID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// New data about a known entity merges; a stale company claim loses to the
// incoming one via an auto-resolved temporal conflict.
func TestMergeAutoResolvesTemporalConflict(t *testing.T) {
	r, stager, tenant := newTestResolver(t)

	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	entity.Attributes = []model.Attribute{
		seededAttr("current_company", "Acme Corp", time.Now().AddDate(-3, 0, 0), 0.8, "SIG-seed"),
		seededAttr("linkedin_handle", "cass-moore", time.Now(), 0.8, "SIG-seed"),
	}
	seedEntity(t, tenant, entity)

	extracted := testutil.Person("Cass Moore")
	extracted.Attributes = []model.Attribute{
		testutil.Attr("linkedin_handle", "cass-moore", time.Now()),
		testutil.Attr("current_company", "Beta Industries", time.Now()),
		testutil.Attr("current_role", "Chief Executive", time.Now()),
		testutil.Attr("location", "Austin", time.Now()),
	}
	cluster := stage(t, stager, extracted)

	scored, err := r.ScoreCluster(cluster.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, model.Q2Enrich, scored.QuadrantLabel)
	require.NotNil(t, scored.DataNovelty)
	assert.True(t, scored.DataNovelty.IsNewData())

	out, err := r.ResolveCluster(cluster.ClusterID, ActionMerge, "tester")
	require.NoError(t, err)
	assert.Equal(t, ActionMerge, out.Action)
	require.Len(t, out.AutoResolved, 1)

	updated, err := tenant.GetEntity(entity.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "Beta Industries", updated.AttributeValue("current_company"))
	assert.Empty(t, updated.Conflicts)
	require.Len(t, updated.ResolvedConflicts, 1)

	resolved := updated.ResolvedConflicts[0]
	assert.Equal(t, model.ConflictTemporal, resolved.ConflictType)
	assert.True(t, resolved.AutoResolved)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, model.WinnerB, resolved.Resolution.Winner)
	assert.Equal(t, "most recent source wins for current-state attribute", resolved.Resolution.Reason)

	require.Len(t, updated.Provenance.MergeHistory, 1)
	assert.Equal(t, cluster.ClusterID, updated.Provenance.MergeHistory[0].ClusterID)

	_, err = tenant.GetCluster(cluster.ClusterID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// A diverging handle blocks the merge without touching the entity; a
// confirm_merge overrides and archives the identity conflict as BOTH.
func TestIdentityConflictBlocksThenConfirms(t *testing.T) {
	r, stager, tenant := newTestResolver(t)

	entity := testutil.PersonEntity("ENT-NB-001", "Nova Byrd")
	entity.Attributes = []model.Attribute{
		seededAttr("linkedin_handle", "nova-byrd", time.Now(), 0.8, "SIG-seed"),
		seededAttr("current_company", "Acme Corp", time.Now(), 0.8, "SIG-seed"),
		seededAttr("current_role", "Designer", time.Now(), 0.8, "SIG-seed"),
		seededAttr("location", "Lisbon", time.Now(), 0.8, "SIG-seed"),
	}
	seedEntity(t, tenant, entity)

	extracted := testutil.Person("Nova Byrd")
	extracted.Attributes = []model.Attribute{
		testutil.Attr("linkedin_handle", "nova-byrd-2", time.Now()),
	}
	cluster := stage(t, stager, extracted)

	scored, err := r.ScoreCluster(cluster.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, model.ZoneAmbiguous, scored.MatchZone)
	assert.NotEmpty(t, scored.MatchEvidence, "ambiguous matches carry an evidence panel")
	assert.Equal(t, entity.EntityID, scored.CandidateEntityID)

	out, err := r.ResolveCluster(cluster.ClusterID, ActionMerge, "tester")
	require.ErrorIs(t, err, ErrConflictBlocked)
	require.NotNil(t, out)
	assert.Equal(t, ActionConflictBlocked, out.Action)
	require.NotEmpty(t, out.Conflicts)
	assert.Equal(t, model.ConflictIdentity, out.Conflicts[0].ConflictType)

	untouched, err := tenant.GetEntity(entity.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "nova-byrd", untouched.AttributeValue("linkedin_handle"), "blocked merge mutates nothing")
	assert.Empty(t, untouched.Provenance.MergeHistory)

	_, err = tenant.GetCluster(cluster.ClusterID)
	require.NoError(t, err, "blocked cluster survives for review")

	out, err = r.ResolveCluster(cluster.ClusterID, ActionConfirmMerge, "tester")
	require.NoError(t, err)
	assert.Equal(t, ActionConfirmMerge, out.Action)

	merged, err := tenant.GetEntity(entity.EntityID)
	require.NoError(t, err)
	var confirmed *model.Conflict
	for i := range merged.ResolvedConflicts {
		if merged.ResolvedConflicts[i].ConflictType == model.ConflictIdentity {
			confirmed = &merged.ResolvedConflicts[i]
		}
	}
	require.NotNil(t, confirmed)
	require.NotNil(t, confirmed.Resolution)
	assert.Equal(t, model.WinnerBoth, confirmed.Resolution.Winner)
	assert.Equal(t, "user confirmed same person despite identity conflict", confirmed.Resolution.Reason)

	_, err = tenant.GetCluster(cluster.ClusterID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHoldParksCluster(t *testing.T) {
	r, stager, tenant := newTestResolver(t)
	cluster := stage(t, stager, testutil.Person("Quill Vantor"))

	_, err := r.ScoreCluster(cluster.ClusterID)
	require.NoError(t, err)

	out, err := r.ResolveCluster(cluster.ClusterID, ActionHold, "tester")
	require.NoError(t, err)
	assert.Equal(t, ActionHold, out.Action)

	held, err := tenant.GetCluster(cluster.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, model.StateUnresolved, held.State)
}

func TestScoringIsIdempotent(t *testing.T) {
	r, stager, tenant := newTestResolver(t)

	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	entity.Attributes = []model.Attribute{
		seededAttr("current_company", "Acme Corp", time.Now(), 0.8, "SIG-seed"),
	}
	seedEntity(t, tenant, entity)

	extracted := testutil.Person("Cass Moore")
	extracted.Attributes = []model.Attribute{
		testutil.Attr("current_company", "Acme Corp", time.Now()),
	}
	cluster := stage(t, stager, extracted)

	first, err := r.ScoreCluster(cluster.ClusterID)
	require.NoError(t, err)
	second, err := r.ScoreCluster(cluster.ClusterID)
	require.NoError(t, err)

	assert.Equal(t, first.AssociationConfidence, second.AssociationConfidence)
	assert.Equal(t, first.MatchZone, second.MatchZone)
	assert.Equal(t, first.QuadrantLabel, second.QuadrantLabel)
	assert.Equal(t, first.CandidateEntityID, second.CandidateEntityID)
}

// Two unresolved clusters with the same unknown name consolidate instead of
// creating twins.
func TestCrossClusterConsolidation(t *testing.T) {
	r, stager, _ := newTestResolver(t)

	stage(t, stager, testutil.Person("Quill Vantor"))
	second := stage(t, stager, testutil.Person("Quill Vantor"))

	scored, err := r.ScoreCluster(second.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, model.ZoneNoMatch, scored.MatchZone)
	assert.Equal(t, model.Q3Consolidate, scored.QuadrantLabel)
	assert.Equal(t, model.StateProvisional, scored.State)
}

func TestUnknownActionRejected(t *testing.T) {
	r, stager, _ := newTestResolver(t)
	cluster := stage(t, stager, testutil.Person("Quill Vantor"))

	_, err := r.ResolveCluster(cluster.ClusterID, "promote", "tester")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestResolveConflictKeepB(t *testing.T) {
	r, _, tenant := newTestResolver(t)

	entity := testutil.PersonEntity("ENT-CM-001", "Cass Moore")
	entity.Attributes = []model.Attribute{
		seededAttr("current_role", "Designer", time.Now(), 0.8, "SIG-seed"),
	}
	entity.Conflicts = []model.Conflict{{
		ConflictID:   "CONF-test1",
		EntityID:     entity.EntityID,
		Attribute:    "current_role",
		ValueA:       "Designer",
		ValueB:       "Art Director",
		ConflictType: model.ConflictFactual,
		DetectedAt:   model.Now(),
	}}
	seedEntity(t, tenant, entity)

	resolved, err := r.ResolveConflict(entity.EntityID, "CONF-test1", ChoiceKeepB, "tester")
	require.NoError(t, err)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, model.WinnerB, resolved.Resolution.Winner)
	assert.Equal(t, "Art Director", resolved.Resolution.WinningValue)

	updated, err := tenant.GetEntity(entity.EntityID)
	require.NoError(t, err)
	assert.Empty(t, updated.Conflicts)
	require.Len(t, updated.ResolvedConflicts, 1)
	assert.Equal(t, "Art Director", updated.AttributeValue("current_role"))
}

func TestResolveConflictUnknownID(t *testing.T) {
	r, _, tenant := newTestResolver(t)
	seedEntity(t, tenant, testutil.PersonEntity("ENT-CM-001", "Cass Moore"))

	_, err := r.ResolveConflict("ENT-CM-001", "CONF-missing", ChoiceKeepA, "tester")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfirmedClusterNeverRescored(t *testing.T) {
	r, stager, tenant := newTestResolver(t)
	cluster := stage(t, stager, testutil.Person("Quill Vantor"))

	_, err := tenant.UpdateCluster(cluster.ClusterID, func(c *model.Cluster) error {
		c.State = model.StateConfirmed
		return nil
	})
	require.NoError(t, err)

	_, err = r.ScoreCluster(cluster.ClusterID)
	assert.ErrorIs(t, err, store.ErrValidation)
}
