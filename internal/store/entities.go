package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/similarity"
)

// entityPath returns the on-disk location of one entity record.
func (t *Tenant) entityPath(id string) string {
	return filepath.Join(t.dir, id+".json")
}

// GetEntity reads one entity by id.
func (t *Tenant) GetEntity(id string) (*model.Entity, error) {
	if err := validateRecordName(id); err != nil {
		return nil, fmt.Errorf("%w: entity not found: %s", ErrNotFound, id)
	}
	var e model.Entity
	if err := readJSON(t.entityPath(id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PutEntity writes one entity record atomically.
func (t *Tenant) PutEntity(e *model.Entity) error {
	if e.EntityID == "" {
		return fmt.Errorf("%w: entity has no id", ErrValidation)
	}
	if err := validateRecordName(e.EntityID); err != nil {
		return fmt.Errorf("%w: invalid entity id %q", ErrValidation, e.EntityID)
	}
	if e.SpokeID == "" {
		e.SpokeID = model.DefaultSpokeID
	}
	unlock := t.locks.lock(e.EntityID)
	defer unlock()
	return writeJSON(t.entityPath(e.EntityID), e)
}

// UpdateEntity applies fn to the entity under its record lock, then writes
// the result. fn returning an error aborts without touching disk, so a
// failure before the final write leaves no partial state.
func (t *Tenant) UpdateEntity(id string, fn func(*model.Entity) error) (*model.Entity, error) {
	if err := validateRecordName(id); err != nil {
		return nil, fmt.Errorf("%w: entity not found: %s", ErrNotFound, id)
	}
	unlock := t.locks.lock(id)
	defer unlock()

	var e model.Entity
	if err := readJSON(t.entityPath(id), &e); err != nil {
		return nil, err
	}
	if err := fn(&e); err != nil {
		return nil, err
	}
	if err := writeJSON(t.entityPath(id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntities returns every parseable entity record, sorted by id.
// Malformed files are logged and skipped.
func (t *Tenant) ListEntities() ([]*model.Entity, error) {
	dirents, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("store: list entities: %w", err)
	}

	var out []*model.Entity
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || reservedFiles[name] || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		var e model.Entity
		if err := readJSON(filepath.Join(t.dir, name), &e); err != nil {
			t.logger.Warn("skipping malformed entity file", "file", name, "error", err)
			continue
		}
		if e.EntityID == "" {
			t.logger.Warn("skipping entity file without entity_id", "file", name)
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// EntitiesBySpoke returns the entities whose spoke_id matches.
func (t *Tenant) EntitiesBySpoke(spokeID string) ([]*model.Entity, error) {
	all, err := t.ListEntities()
	if err != nil {
		return nil, err
	}
	var out []*model.Entity
	for _, e := range all {
		if e.SpokeID == spokeID {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountEntitiesBySpoke counts the entities in one spoke.
func (t *Tenant) CountEntitiesBySpoke(spokeID string) (int, error) {
	es, err := t.EntitiesBySpoke(spokeID)
	if err != nil {
		return 0, err
	}
	return len(es), nil
}

// idPrefixes maps an entity type to its ID prefix.
var idPrefixes = map[model.EntityType]string{
	model.EntityPerson:      "ENT",
	model.EntityBusiness:    "BIZ",
	model.EntityInstitution: "INST",
}

// MintEntityID allocates the next id for an entity type:
// <prefix>-<INITIALS>-<3-digit-seq>, with the sequence taken from the
// per-type monotonic counter. Initials come from the display name; entities
// without a usable name get "X".
func (t *Tenant) MintEntityID(entityType model.EntityType, name string) (string, error) {
	prefix, ok := idPrefixes[entityType]
	if !ok {
		return "", fmt.Errorf("%w: invalid entity type %q", ErrValidation, entityType)
	}

	initials := similarity.Initials(name)
	if initials == "" {
		initials = "X"
	}
	if len(initials) > 4 {
		initials = initials[:4]
	}

	seq, err := t.nextSequence(string(entityType))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%03d", prefix, initials, seq), nil
}

// nextSequence increments and returns the named monotonic counter.
// counters.json is a shared document; metaMu serializes the window.
func (t *Tenant) nextSequence(counter string) (int, error) {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()

	path := filepath.Join(t.dir, "counters.json")
	counters := make(map[string]int)
	if err := readJSON(path, &counters); err != nil && !isNotFound(err) {
		return 0, err
	}
	counters[counter]++
	if err := writeJSON(path, counters); err != nil {
		return 0, err
	}
	return counters[counter], nil
}

// SelfEntity reads the optional self-entity bootstrap record. Returns
// (nil, nil) when the tenant has none.
func (t *Tenant) SelfEntity() (*model.SelfEntity, error) {
	var se model.SelfEntity
	if err := readJSON(filepath.Join(t.dir, "self-entity.json"), &se); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if se.SelfEntityID == "" {
		return nil, nil
	}
	return &se, nil
}

// CenteredEntityIDs returns the set of entity ids that anchor a spoke.
// These are the protected "self" entities merges may not overwrite.
func (t *Tenant) CenteredEntityIDs() (map[string]bool, error) {
	spokes, err := t.Spokes()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, s := range spokes {
		if s.CenteredEntityID != "" {
			out[s.CenteredEntityID] = true
		}
	}
	return out, nil
}

// RarityOverrides reads the optional per-tenant name_rarity.json overlay:
// a map of lowercased full name to rarity class. Unknown names fall through
// to the global tables.
func (t *Tenant) RarityOverrides() (map[string]similarity.Rarity, error) {
	var raw map[string]string
	if err := readJSON(filepath.Join(t.dir, "name_rarity.json"), &raw); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make(map[string]similarity.Rarity, len(raw))
	for name, r := range raw {
		switch similarity.Rarity(r) {
		case similarity.RarityVeryCommon, similarity.RarityCommon, similarity.RarityStandard:
			out[name] = similarity.Rarity(r)
		default:
			t.logger.Warn("ignoring unknown rarity class", "name", name, "class", r)
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
