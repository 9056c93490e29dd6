package store

import (
	"fmt"
	"path/filepath"

	"github.com/lodestone-ai/lodestone/internal/model"
)

func (t *Tenant) spokesPath() string {
	return filepath.Join(t.dir, "spokes.json")
}

// Spokes returns the tenant's spoke map. Every tenant has at least the
// default spoke after bootstrap.
func (t *Tenant) Spokes() (map[string]*model.Spoke, error) {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()
	return t.readSpokes()
}

func (t *Tenant) readSpokes() (map[string]*model.Spoke, error) {
	spokes := make(map[string]*model.Spoke)
	if err := readJSON(t.spokesPath(), &spokes); err != nil && !isNotFound(err) {
		return nil, err
	}
	return spokes, nil
}

// GetSpoke returns one spoke by id.
func (t *Tenant) GetSpoke(id string) (*model.Spoke, error) {
	spokes, err := t.Spokes()
	if err != nil {
		return nil, err
	}
	s, ok := spokes[id]
	if !ok {
		return nil, fmt.Errorf("%w: spoke not found: %s", ErrNotFound, id)
	}
	return s, nil
}

// PutSpoke creates or replaces a spoke. A new spoke must carry a name.
func (t *Tenant) PutSpoke(s *model.Spoke) error {
	if s.ID == "" {
		return fmt.Errorf("%w: spoke has no id", ErrValidation)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: spoke name is required", ErrValidation)
	}

	t.metaMu.Lock()
	defer t.metaMu.Unlock()

	spokes, err := t.readSpokes()
	if err != nil {
		return err
	}
	if existing, ok := spokes[s.ID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else if s.CreatedAt.IsZero() {
		s.CreatedAt = model.Now()
	}
	s.UpdatedAt = model.Now()
	spokes[s.ID] = s
	return writeJSON(t.spokesPath(), spokes)
}

// UpdateSpoke applies fn to an existing spoke under the metadata lock.
func (t *Tenant) UpdateSpoke(id string, fn func(*model.Spoke) error) (*model.Spoke, error) {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()

	spokes, err := t.readSpokes()
	if err != nil {
		return nil, err
	}
	s, ok := spokes[id]
	if !ok {
		return nil, fmt.Errorf("%w: spoke not found: %s", ErrNotFound, id)
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = model.Now()
	if err := writeJSON(t.spokesPath(), spokes); err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSpoke removes a spoke. The default spoke is immutable; a non-default
// spoke that still contains entities is only deleted with force.
func (t *Tenant) DeleteSpoke(id string, force bool) error {
	if id == model.DefaultSpokeID {
		return fmt.Errorf("%w: the default spoke cannot be deleted", ErrValidation)
	}

	count, err := t.CountEntitiesBySpoke(id)
	if err != nil {
		return err
	}
	if count > 0 && !force {
		return fmt.Errorf("%w: spoke %s contains %d entities; pass force to delete", ErrValidation, id, count)
	}

	t.metaMu.Lock()
	defer t.metaMu.Unlock()

	spokes, err := t.readSpokes()
	if err != nil {
		return err
	}
	if _, ok := spokes[id]; !ok {
		return fmt.Errorf("%w: spoke not found: %s", ErrNotFound, id)
	}
	delete(spokes, id)
	return writeJSON(t.spokesPath(), spokes)
}

// SetCenteredEntity anchors a spoke on an entity. The entity must exist.
func (t *Tenant) SetCenteredEntity(spokeID, entityID string) (*model.Spoke, error) {
	e, err := t.GetEntity(entityID)
	if err != nil {
		return nil, err
	}
	return t.UpdateSpoke(spokeID, func(s *model.Spoke) error {
		s.CenteredEntityID = e.EntityID
		s.CenteredEntityName = e.DisplayName()
		return nil
	})
}

// bootstrapDefaultSpoke ensures the default spoke exists, seeding its
// centered entity from self-entity.json when present. Runs once per tenant
// open; an already-centered default spoke is left alone.
func (t *Tenant) bootstrapDefaultSpoke() error {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()

	spokes, err := t.readSpokes()
	if err != nil {
		return err
	}
	changed := false
	def, ok := spokes[model.DefaultSpokeID]
	if !ok {
		def = &model.Spoke{
			ID:        model.DefaultSpokeID,
			Name:      "Default",
			Source:    "bootstrap",
			CreatedAt: model.Now(),
			UpdatedAt: model.Now(),
		}
		spokes[model.DefaultSpokeID] = def
		changed = true
	}

	if def.CenteredEntityID == "" {
		se, err := t.SelfEntity()
		if err != nil {
			return err
		}
		if se != nil {
			def.CenteredEntityID = se.SelfEntityID
			def.CenteredEntityName = se.SelfEntityName
			def.UpdatedAt = model.Now()
			changed = true
		}
	}

	if changed {
		return writeJSON(t.spokesPath(), spokes)
	}
	return nil
}
