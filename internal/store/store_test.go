package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/similarity"
	"github.com/lodestone-ai/lodestone/internal/testutil"
	"github.com/lodestone-ai/lodestone/internal/vault"
)

func newTestTenant(t *testing.T) *Tenant {
	t.Helper()
	s, err := New(t.TempDir(), testutil.TestLogger())
	require.NoError(t, err)
	tenant, err := s.Tenant("acme")
	require.NoError(t, err)
	return tenant
}

func TestEntityRoundTrip(t *testing.T) {
	tenant := newTestTenant(t)

	e := &model.Entity{
		EntityID:   "ENT-ZQ-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Zenobia Quark"},
	}
	require.NoError(t, tenant.PutEntity(e))

	got, err := tenant.GetEntity("ENT-ZQ-001")
	require.NoError(t, err)
	assert.Equal(t, "Zenobia Quark", got.Name.Full)
	assert.Equal(t, model.DefaultSpokeID, got.SpokeID, "spoke defaults on write")

	// Entity files end with a trailing newline.
	raw, err := os.ReadFile(filepath.Join(tenant.dir, "ENT-ZQ-001.json"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "\n"))

	_, err = tenant.GetEntity("ENT-XX-999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEntitiesSkipsMalformed(t *testing.T) {
	tenant := newTestTenant(t)

	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-AA-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Ada Ash"},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(tenant.dir, "ENT-BB-001.json"), []byte("{broken"), 0o600))

	entities, err := tenant.ListEntities()
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "ENT-AA-001", entities[0].EntityID)
}

func TestMintEntityID(t *testing.T) {
	tenant := newTestTenant(t)

	id, err := tenant.MintEntityID(model.EntityPerson, "Zenobia Quark")
	require.NoError(t, err)
	assert.Equal(t, "ENT-ZQ-001", id)

	id, err = tenant.MintEntityID(model.EntityPerson, "Ada Ash")
	require.NoError(t, err)
	assert.Equal(t, "ENT-AA-002", id, "sequence is per type, not per initials")

	id, err = tenant.MintEntityID(model.EntityBusiness, "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, "BIZ-AC-001", id)

	id, err = tenant.MintEntityID(model.EntityInstitution, "State University")
	require.NoError(t, err)
	assert.Equal(t, "INST-SU-001", id)

	_, err = tenant.MintEntityID(model.EntityType("robot"), "R2")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateEntitySerializes(t *testing.T) {
	tenant := newTestTenant(t)
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-CC-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Cora Cole"},
	}))

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tenant.UpdateEntity("ENT-CC-001", func(e *model.Entity) error {
				e.Observations = append(e.Observations, model.Observation{
					ObservationID: "OBS-x",
					Text:          "tick",
				})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := tenant.GetEntity("ENT-CC-001")
	require.NoError(t, err)
	assert.Len(t, got.Observations, writers, "concurrent updates must not lose writes")
}

func TestClusterLifecycle(t *testing.T) {
	tenant := newTestTenant(t)

	c := &model.Cluster{
		ClusterID:  "SIG-abc123def456",
		EntityType: model.EntityPerson,
		State:      model.StateUnresolved,
	}
	require.NoError(t, tenant.PutCluster(c))

	got, err := tenant.GetCluster("SIG-abc123def456")
	require.NoError(t, err)
	assert.Equal(t, model.StateUnresolved, got.State)

	clusters, err := tenant.ListClusters()
	require.NoError(t, err)
	assert.Len(t, clusters, 1)

	require.NoError(t, tenant.DeleteCluster("SIG-abc123def456"))
	_, err = tenant.GetCluster("SIG-abc123def456")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op; resolution retries stay idempotent.
	require.NoError(t, tenant.DeleteCluster("SIG-abc123def456"))
}

func TestSpokeLifecycle(t *testing.T) {
	tenant := newTestTenant(t)

	// Bootstrap created the default spoke.
	def, err := tenant.GetSpoke(model.DefaultSpokeID)
	require.NoError(t, err)
	assert.Equal(t, "Default", def.Name)

	require.NoError(t, tenant.PutSpoke(&model.Spoke{ID: "work", Name: "Work"}))
	require.NoError(t, tenant.PutEntity(&model.Entity{
		EntityID:   "ENT-DD-001",
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: "Dana Day"},
		SpokeID:    "work",
	}))

	sp, err := tenant.SetCenteredEntity("work", "ENT-DD-001")
	require.NoError(t, err)
	assert.Equal(t, "ENT-DD-001", sp.CenteredEntityID)
	assert.Equal(t, "Dana Day", sp.CenteredEntityName)

	centered, err := tenant.CenteredEntityIDs()
	require.NoError(t, err)
	assert.True(t, centered["ENT-DD-001"])

	err = tenant.DeleteSpoke(model.DefaultSpokeID, true)
	assert.ErrorIs(t, err, ErrValidation, "default spoke is immutable")

	err = tenant.DeleteSpoke("work", false)
	assert.ErrorIs(t, err, ErrValidation, "occupied spoke needs force")

	require.NoError(t, tenant.DeleteSpoke("work", true))
	_, err = tenant.GetSpoke("work")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelfEntityBootstrap(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "solo"), 0o750))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "solo", "self-entity.json"),
		[]byte(`{"self_entity_id":"ENT-ME-001","self_entity_name":"Mel Ember"}`+"\n"),
		0o600,
	))

	s, err := New(root, testutil.TestLogger())
	require.NoError(t, err)
	tenant, err := s.Tenant("solo")
	require.NoError(t, err)

	def, err := tenant.GetSpoke(model.DefaultSpokeID)
	require.NoError(t, err)
	assert.Equal(t, "ENT-ME-001", def.CenteredEntityID)
	assert.Equal(t, "Mel Ember", def.CenteredEntityName)
}

func TestRarityOverrides(t *testing.T) {
	tenant := newTestTenant(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(tenant.dir, "name_rarity.json"),
		[]byte(`{"cj holt":"standard","nova byrd":"very_common","bad entry":"mythic"}`),
		0o600,
	))

	overrides, err := tenant.RarityOverrides()
	require.NoError(t, err)
	assert.Equal(t, similarity.RarityStandard, overrides["cj holt"])
	assert.Equal(t, similarity.RarityVeryCommon, overrides["nova byrd"])
	_, ok := overrides["bad entry"]
	assert.False(t, ok, "unknown classes are dropped")
}

func TestSealedTokens(t *testing.T) {
	tenant := newTestTenant(t)

	key, err := vault.GenerateKey()
	require.NoError(t, err)
	v, err := vault.NewKey(key)
	require.NoError(t, err)

	require.NoError(t, tenant.SetToken(v, "linkedin", "tok_123"))
	require.NoError(t, tenant.SetToken(v, "x", "tok_456"))

	providers, err := tenant.TokenProviders(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"linkedin", "x"}, providers)

	tok, err := tenant.Token(v, "linkedin")
	require.NoError(t, err)
	assert.Equal(t, "tok_123", tok)

	_, err = tenant.Token(v, "github")
	assert.ErrorIs(t, err, ErrNotFound)

	// The file on disk is an envelope, not plaintext.
	raw, err := os.ReadFile(tenant.tokensPath())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok_123")

	// A different key cannot open the envelope.
	otherKey, err := vault.GenerateKey()
	require.NoError(t, err)
	other, err := vault.NewKey(otherKey)
	require.NoError(t, err)
	_, err = tenant.Token(other, "linkedin")
	require.Error(t, err)
}

func TestTenantNameValidation(t *testing.T) {
	s, err := New(t.TempDir(), testutil.TestLogger())
	require.NoError(t, err)

	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := s.Tenant(bad)
		assert.ErrorIs(t, err, ErrValidation, "tenant %q", bad)
	}
}
