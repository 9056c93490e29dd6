// Package resolver runs signal clusters through identity resolution: scoring
// against the existing graph, quadrant classification, conflict detection,
// and the five human-in-the-loop resolution actions that promote, merge, or
// discard a cluster.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/confidence"
	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/similarity"
	"github.com/lodestone-ai/lodestone/internal/staging"
	"github.com/lodestone-ai/lodestone/internal/store"
)

// ErrConflictBlocked is returned when a merge hits an identity conflict that
// no user has confirmed. The Outcome returned alongside it carries the
// conflicts and evidence panel; the candidate entity is left untouched.
var ErrConflictBlocked = errors.New("merge blocked by identity conflict")

// Resolution actions.
const (
	ActionHold         = "hold"
	ActionSkip         = "skip"
	ActionMerge        = "merge"
	ActionCreateNew    = "create_new"
	ActionConfirmMerge = "confirm_merge"

	// ActionConflictBlocked is an outcome, not a request: a merge refused
	// because of unconfirmed identity conflicts.
	ActionConflictBlocked = "conflict_blocked"
)

// Conflict choices accepted by ResolveConflict.
const (
	ChoiceKeepA    = "keep_a"
	ChoiceKeepB    = "keep_b"
	ChoiceKeepBoth = "keep_both"
)

// Outcome reports what a resolution action did.
type Outcome struct {
	Action            string                `json:"action"`
	ClusterID         string                `json:"cluster_id"`
	EntityID          string                `json:"entity_id,omitempty"`
	EntityName        string                `json:"entity_name,omitempty"`
	Created           bool                  `json:"created,omitempty"`
	Changes           []string              `json:"changes,omitempty"`
	ObservationsAdded int                   `json:"observations_added,omitempty"`
	Conflicts         []model.Conflict      `json:"conflicts,omitempty"`
	AutoResolved      []model.Conflict      `json:"auto_resolved,omitempty"`
	Evidence          []model.MatchEvidence `json:"evidence,omitempty"`
}

// Resolver scores and resolves signal clusters for one tenant.
type Resolver struct {
	tenant *store.Tenant
	conf   *confidence.Model
	rarity *similarity.RarityTable
	logger *slog.Logger
}

// New returns a Resolver over the tenant's entity and cluster stores. A nil
// rarity table falls back to the built-in global one.
func New(tenant *store.Tenant, conf *confidence.Model, rarity *similarity.RarityTable, logger *slog.Logger) *Resolver {
	if conf == nil {
		conf = confidence.NewModel()
	}
	if rarity == nil {
		rarity = similarity.DefaultRarityTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{tenant: tenant, conf: conf, rarity: rarity, logger: logger}
}

// ResolveCluster applies a resolution action to a cluster. Every action
// except hold re-scores the cluster first so the decision runs against the
// current state of the graph, not a stale snapshot. Confirmed clusters no
// longer exist; a second resolution of the same id returns not-found.
func (r *Resolver) ResolveCluster(id, action, agent string) (*Outcome, error) {
	cluster, err := r.tenant.GetCluster(id)
	if err != nil {
		return nil, err
	}

	if action != ActionHold {
		cluster, err = r.ScoreCluster(id)
		if err != nil {
			return nil, err
		}
	}

	switch action {
	case ActionHold:
		return r.hold(cluster)
	case ActionSkip:
		return r.skip(cluster)
	case ActionMerge:
		return r.merge(cluster, agent)
	case ActionCreateNew:
		return r.createNew(cluster, agent)
	case ActionConfirmMerge:
		return r.confirmMerge(cluster, agent)
	default:
		return nil, fmt.Errorf("%w: unknown resolution action %q", store.ErrValidation, action)
	}
}

// hold parks the cluster: state back to unresolved, nothing else changes.
func (r *Resolver) hold(cluster *model.Cluster) (*Outcome, error) {
	_, err := r.tenant.UpdateCluster(cluster.ClusterID, func(c *model.Cluster) error {
		c.State = model.StateUnresolved
		c.UpdatedAt = model.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Action: ActionHold, ClusterID: cluster.ClusterID}, nil
}

// skip treats the cluster as pure corroboration of its candidate (the Q4
// path): provenance gains a source document, matching attributes gain the
// cluster as a source and have their confidence recomputed with the new
// source count, and the cluster is deleted.
func (r *Resolver) skip(cluster *model.Cluster) (*Outcome, error) {
	if cluster.CandidateEntityID == "" {
		return nil, fmt.Errorf("%w: skip requires a candidate entity on cluster %s", store.ErrValidation, cluster.ClusterID)
	}

	values := clusterSignalValues(cluster)
	var bumped []string

	entity, err := r.tenant.UpdateEntity(cluster.CandidateEntityID, func(e *model.Entity) error {
		e.Provenance.SourceDocuments = append(e.Provenance.SourceDocuments, sourceDocument(cluster))
		for i := range e.Attributes {
			a := &e.Attributes[i]
			if !valueCorroborated(a.ValueString(), values) {
				continue
			}
			if addSourceCluster(a, cluster.ClusterID) {
				r.recomputeAttribute(a)
				bumped = append(bumped, a.Key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.tenant.DeleteCluster(cluster.ClusterID); err != nil {
		return nil, err
	}

	r.logger.Info("skipped cluster as corroboration",
		"cluster_id", cluster.ClusterID,
		"entity_id", entity.EntityID,
		"attributes_corroborated", len(bumped),
	)
	return &Outcome{
		Action:     ActionSkip,
		ClusterID:  cluster.ClusterID,
		EntityID:   entity.EntityID,
		EntityName: entity.DisplayName(),
		Changes:    bumped,
	}, nil
}

// createNew promotes the cluster into a brand-new entity (the Q1/Q3 path).
func (r *Resolver) createNew(cluster *model.Cluster, agent string) (*Outcome, error) {
	data := cluster.EntityData
	if data == nil {
		return nil, fmt.Errorf("%w: cluster %s carries no entity data to promote", store.ErrValidation, cluster.ClusterID)
	}

	id, err := r.tenant.MintEntityID(cluster.EntityType, data.Name.Display())
	if err != nil {
		return nil, err
	}

	entity := r.buildEntity(id, cluster, agent)
	if entity.EntityType == model.EntityPerson {
		Decompose(entity)
	}
	if err := r.tenant.PutEntity(entity); err != nil {
		return nil, err
	}
	if err := r.tenant.DeleteCluster(cluster.ClusterID); err != nil {
		return nil, err
	}

	r.logger.Info("created entity from cluster",
		"cluster_id", cluster.ClusterID,
		"entity_id", entity.EntityID,
		"entity_type", entity.EntityType,
	)
	return &Outcome{
		Action:            ActionCreateNew,
		ClusterID:         cluster.ClusterID,
		EntityID:          entity.EntityID,
		EntityName:        entity.DisplayName(),
		Created:           true,
		ObservationsAdded: len(entity.Observations),
	}, nil
}

// buildEntity materializes a canonical entity from the cluster's preserved
// extraction. Attributes are stamped with the stage-1 confidence compute and
// the cluster as their first source.
func (r *Resolver) buildEntity(id string, cluster *model.Cluster, agent string) *model.Entity {
	data := cluster.EntityData
	now := model.Now()

	entity := &model.Entity{
		EntityID:             id,
		EntityType:           cluster.EntityType,
		Name:                 data.Name,
		Summary:              data.Summary,
		Attributes:           make([]model.Attribute, 0, len(data.Attributes)),
		Relationships:        make([]model.Relationship, 0, len(data.Relationships)),
		Observations:         []model.Observation{},
		CareerLite:           data.CareerLite,
		StructuredAttributes: data.StructuredAttributes,
		OrgDimensions:        data.OrgDimensions,
		Source:               cluster.Source.Type,
		SourceRef:            data.SourceRef,
		Provenance: model.ProvenanceChain{
			CreatedAt:       now,
			CreatedBy:       agent,
			SourceDocuments: []model.SourceDocument{sourceDocument(cluster)},
			MergeHistory:    []model.MergeRecord{},
		},
	}

	for _, a := range data.Attributes {
		entity.Attributes = append(entity.Attributes, r.stampAttribute(a, cluster))
	}
	for _, rel := range data.Relationships {
		if rel.RelationshipID == "" {
			rel.RelationshipID = newRelationshipID()
		}
		entity.Relationships = append(entity.Relationships, rel)
	}
	for _, o := range data.Observations {
		if entity.HasObservationText(o.Text) {
			continue
		}
		o.ObservationID = NextObservationID(entity, now)
		if o.ObservedAt.IsZero() {
			o.ObservedAt = cluster.Source.ExtractedAt
		}
		if o.Source == "" {
			o.Source = cluster.Source.Type
		}
		entity.Observations = append(entity.Observations, o)
	}
	return entity
}

// stampAttribute applies the stage-1 confidence compute to a raw extracted
// attribute joining from the given cluster.
func (r *Resolver) stampAttribute(a model.Attribute, cluster *model.Cluster) model.Attribute {
	if a.AttributeID == "" {
		a.AttributeID = newAttributeID()
	}
	if a.TimeDecay == nil {
		a.TimeDecay = &model.TimeDecay{CapturedDate: cluster.Source.ExtractedAt}
	} else if a.TimeDecay.CapturedDate.IsZero() {
		a.TimeDecay.CapturedDate = cluster.Source.ExtractedAt
	}
	if a.SourceAttribution == "" {
		a.SourceAttribution = cluster.Source.Type
	}
	a.BaseConfidence = cluster.Source.Weight
	a.SourceClusters = []string{cluster.ClusterID}
	a.Confidence = r.conf.AttributeConfidence(a.BaseConfidence, a.CapturedDate(), strings.ToLower(a.Key), 1)
	a.ConfidenceLabel = confidence.Label(a.Confidence)
	return a
}

// merge folds the cluster into its candidate entity (the Q2 path). Identity
// conflicts without user confirmation abort before anything is written.
func (r *Resolver) merge(cluster *model.Cluster, agent string) (*Outcome, error) {
	if cluster.CandidateEntityID == "" {
		return nil, fmt.Errorf("%w: merge requires a candidate entity on cluster %s", store.ErrValidation, cluster.ClusterID)
	}

	centered, err := r.tenant.CenteredEntityIDs()
	if err != nil {
		return nil, err
	}
	isSelf := centered[cluster.CandidateEntityID]

	var (
		identity     []model.Conflict
		autoResolved []model.Conflict
		changes      []string
		obsAdded     int
	)

	entity, err := r.tenant.UpdateEntity(cluster.CandidateEntityID, func(e *model.Entity) error {
		conflicts := DetectConflicts(e, cluster)
		identity = identity[:0]
		for _, c := range conflicts {
			if c.ConflictType == model.ConflictIdentity {
				identity = append(identity, c)
			}
		}
		if len(identity) > 0 && !cluster.IdentityConfirmed {
			return ErrConflictBlocked
		}

		autoResolved = autoResolved[:0]
		for _, c := range conflicts {
			switch c.ConflictType {
			case model.ConflictTemporal:
				applyConflictWinner(e, c)
				e.ResolvedConflicts = append(e.ResolvedConflicts, c)
				autoResolved = append(autoResolved, c)
			case model.ConflictFactual:
				e.Conflicts = append(e.Conflicts, c)
			case model.ConflictIdentity:
				// Reachable only with _identity_confirmed set.
				c.Resolution = &model.ConflictResolution{
					ResolvedAt: model.Now(),
					ResolvedBy: agent,
					Winner:     model.WinnerBoth,
					Reason:     "user confirmed same person despite identity conflict",
				}
				e.ResolvedConflicts = append(e.ResolvedConflicts, c)
			}
		}

		changes = r.mergeEntityData(e, cluster, isSelf)
		obsAdded = r.appendObservations(e, cluster)
		e.Provenance.SourceDocuments = append(e.Provenance.SourceDocuments, sourceDocument(cluster))
		e.Provenance.MergeHistory = append(e.Provenance.MergeHistory, model.MergeRecord{
			MergedAt:   model.Now(),
			MergedBy:   agent,
			ClusterID:  cluster.ClusterID,
			SourceType: cluster.Source.Type,
			Changes:    changes,
		})
		if e.EntityType == model.EntityPerson {
			Decompose(e)
		}
		return nil
	})
	if errors.Is(err, ErrConflictBlocked) {
		r.logger.Warn("merge blocked by identity conflict",
			"cluster_id", cluster.ClusterID,
			"entity_id", cluster.CandidateEntityID,
			"conflicts", len(identity),
		)
		out := &Outcome{
			Action:    ActionConflictBlocked,
			ClusterID: cluster.ClusterID,
			EntityID:  cluster.CandidateEntityID,
			Conflicts: identity,
			Evidence:  cluster.MatchEvidence,
		}
		return out, fmt.Errorf("%w: cluster %s vs entity %s", ErrConflictBlocked, cluster.ClusterID, cluster.CandidateEntityID)
	}
	if err != nil {
		return nil, err
	}
	if err := r.tenant.DeleteCluster(cluster.ClusterID); err != nil {
		return nil, err
	}

	r.logger.Info("merged cluster into entity",
		"cluster_id", cluster.ClusterID,
		"entity_id", entity.EntityID,
		"changes", len(changes),
		"observations_added", obsAdded,
	)
	return &Outcome{
		Action:            ActionMerge,
		ClusterID:         cluster.ClusterID,
		EntityID:          entity.EntityID,
		EntityName:        entity.DisplayName(),
		Changes:           changes,
		ObservationsAdded: obsAdded,
		AutoResolved:      autoResolved,
	}, nil
}

// confirmMerge records the user's decision that the identity conflicts are
// false alarms, then merges.
func (r *Resolver) confirmMerge(cluster *model.Cluster, agent string) (*Outcome, error) {
	cluster, err := r.tenant.UpdateCluster(cluster.ClusterID, func(c *model.Cluster) error {
		c.IdentityConfirmed = true
		c.UpdatedAt = model.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	out, err := r.merge(cluster, agent)
	if err != nil {
		return out, err
	}
	out.Action = ActionConfirmMerge
	return out, nil
}

// appendObservations copies the cluster's observations onto the entity,
// deduplicating on lowercased text and minting dense per-second ids.
func (r *Resolver) appendObservations(e *model.Entity, cluster *model.Cluster) int {
	if cluster.EntityData == nil {
		return 0
	}
	now := model.Now()
	added := 0
	for _, o := range cluster.EntityData.Observations {
		if e.HasObservationText(o.Text) {
			continue
		}
		o.ObservationID = NextObservationID(e, now)
		if o.ObservedAt.IsZero() {
			o.ObservedAt = cluster.Source.ExtractedAt
		}
		if o.Source == "" {
			o.Source = cluster.Source.Type
		}
		e.Observations = append(e.Observations, o)
		added++
	}
	return added
}

// ResolveConflict settles one active conflict on an entity. keep_a and
// keep_b rewrite the disputed attribute and refresh its capture date;
// keep_both leaves the attribute alone and just archives the conflict.
func (r *Resolver) ResolveConflict(entityID, conflictID, choice, agent string) (*model.Conflict, error) {
	var resolved model.Conflict

	_, err := r.tenant.UpdateEntity(entityID, func(e *model.Entity) error {
		idx := -1
		for i := range e.Conflicts {
			if e.Conflicts[i].ConflictID == conflictID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: conflict not found: %s", store.ErrNotFound, conflictID)
		}

		c := e.Conflicts[idx]
		res := model.ConflictResolution{ResolvedAt: model.Now(), ResolvedBy: agent}
		switch choice {
		case ChoiceKeepA:
			res.Winner = model.WinnerA
			res.WinningValue = c.ValueA
			r.applyResolvedValue(e, c.Attribute, c.ValueA)
		case ChoiceKeepB:
			res.Winner = model.WinnerB
			res.WinningValue = c.ValueB
			r.applyResolvedValue(e, c.Attribute, c.ValueB)
		case ChoiceKeepBoth:
			res.Winner = model.WinnerBoth
		default:
			return fmt.Errorf("%w: unknown conflict choice %q", store.ErrValidation, choice)
		}
		c.Resolution = &res

		e.Conflicts = append(e.Conflicts[:idx], e.Conflicts[idx+1:]...)
		e.ResolvedConflicts = append(e.ResolvedConflicts, c)
		resolved = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resolved, nil
}

// applyResolvedValue rewrites the disputed attribute with the winning value
// and refreshes its capture date, then recomputes its confidence.
func (r *Resolver) applyResolvedValue(e *model.Entity, key, value string) {
	a, ok := e.Attribute(key)
	if !ok {
		return
	}
	a.Value = value
	if a.TimeDecay == nil {
		a.TimeDecay = &model.TimeDecay{}
	}
	a.TimeDecay.CapturedDate = model.Now()
	r.recomputeAttribute(a)
}

// recomputeAttribute refreshes an attribute's corroborated confidence from
// its base confidence, capture date, and source count.
func (r *Resolver) recomputeAttribute(a *model.Attribute) {
	base := a.BaseConfidence
	if base == 0 {
		base = a.Confidence
	}
	sources := len(a.SourceClusters)
	if sources == 0 {
		sources = 1
	}
	a.Confidence = r.conf.AttributeConfidence(base, a.CapturedDate(), strings.ToLower(a.Key), sources)
	a.ConfidenceLabel = confidence.Label(a.Confidence)
}

// sourceDocument renders the cluster's source as a provenance entry.
func sourceDocument(cluster *model.Cluster) model.SourceDocument {
	src := cluster.Source.URL
	if src == "" {
		src = cluster.Source.Description
	}
	return model.SourceDocument{
		Source:      src,
		SourceType:  cluster.Source.Type,
		Description: cluster.Source.Description,
		ClusterID:   cluster.ClusterID,
		AddedAt:     model.Now(),
	}
}

// clusterSignalValues flattens every signal value on a cluster for
// corroboration matching.
func clusterSignalValues(cluster *model.Cluster) []string {
	s := cluster.Signals
	values := make([]string, 0, len(s.Names)+len(s.Titles)+len(s.Organizations)+len(s.Locations)+len(s.Bios)+len(s.Skills)+len(s.Education)+3)
	values = append(values, s.Names...)
	values = append(values, s.Titles...)
	values = append(values, s.Organizations...)
	values = append(values, s.Locations...)
	values = append(values, s.Bios...)
	values = append(values, s.Skills...)
	values = append(values, s.Education...)
	for _, h := range []string{s.Handles.X, s.Handles.Instagram, s.Handles.LinkedIn} {
		if h != "" {
			values = append(values, h)
		}
	}
	if cluster.EntityData != nil {
		for _, a := range cluster.EntityData.Attributes {
			if v := a.ValueString(); v != "" {
				values = append(values, v)
			}
		}
	}
	return values
}

// valueCorroborated reports whether any incoming value confirms the existing
// one: case-insensitive equality, a handle-style flat match, or Dice above
// the field threshold.
func valueCorroborated(existing string, incoming []string) bool {
	if existing == "" {
		return false
	}
	for _, v := range incoming {
		if strings.EqualFold(existing, v) {
			return true
		}
		if staging.NormalizeHandle(existing) == staging.NormalizeHandle(v) {
			return true
		}
		if similarity.Similarity(existing, v) > fieldMatchThreshold {
			return true
		}
	}
	return false
}

// addSourceCluster appends a cluster id to an attribute's source list,
// reporting whether it was new.
func addSourceCluster(a *model.Attribute, clusterID string) bool {
	for _, id := range a.SourceClusters {
		if id == clusterID {
			return false
		}
	}
	a.SourceClusters = append(a.SourceClusters, clusterID)
	return true
}
