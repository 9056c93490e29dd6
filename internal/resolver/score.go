package resolver

import (
	"fmt"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/scoring"
	"github.com/lodestone-ai/lodestone/internal/similarity"
	"github.com/lodestone-ai/lodestone/internal/staging"
	"github.com/lodestone-ai/lodestone/internal/store"
)

// Zone and quadrant thresholds.
const (
	// highConfidenceThreshold is absolute: above it a match is HIGH
	// regardless of how common the name is.
	highConfidenceThreshold = 0.60
	// fieldMatchThreshold mirrors the scorer's Dice cutoff for value
	// equality; novelty and corroboration use the same notion of "same".
	fieldMatchThreshold = 0.7
	// consolidationNameThreshold is the cross-cluster Dice above which two
	// unresolved clusters look like the same unknown entity.
	consolidationNameThreshold = 0.85
	// consolidationMentions is how many graph mentions of an unknown name
	// push a NO_MATCH cluster into the consolidate quadrant.
	consolidationMentions = 2
)

// Evidence-panel cutoffs on a factor score.
const (
	evidenceMatchThreshold   = 0.85
	evidencePartialThreshold = 0.5
)

// ScoreCluster runs the full scoring pass over one cluster: best association
// across the graph, name-rarity zoning, data novelty, quadrant assignment,
// per-signal projected confidences, and (for ambiguous matches) the evidence
// panel. The updated cluster is persisted and returned. Scoring is
// idempotent for a fixed cluster and store snapshot; confirmed clusters are
// never re-scored.
func (r *Resolver) ScoreCluster(id string) (*model.Cluster, error) {
	cluster, err := r.tenant.GetCluster(id)
	if err != nil {
		return nil, err
	}
	if cluster.State == model.StateConfirmed {
		return nil, fmt.Errorf("%w: cluster %s is confirmed and cannot be re-scored", store.ErrValidation, id)
	}

	entities, err := r.tenant.ListEntities()
	if err != nil {
		return nil, err
	}

	var best scoring.Result
	var candidate *model.Entity
	for _, e := range entities {
		res := scoring.Score(cluster, e)
		if res.Score > best.Score {
			best = res
			candidate = e
		}
	}

	table := r.rarityTable()
	rarity := table.Classify(cluster.PrimaryName())
	threshold := table.Threshold(rarity)

	cluster.NameRarity = string(rarity)
	cluster.RarityThreshold = threshold
	cluster.AssociationConfidence = best.Score
	cluster.AssociationRawScore = best.RawScore
	cluster.AssociationFactors = &best.Factors
	cluster.Contradictions = best.Contradictions
	cluster.ContradictionPenalty = best.ContradictionPenalty
	cluster.MatchType = best.MatchType

	switch {
	case candidate != nil && best.Score > highConfidenceThreshold:
		cluster.MatchZone = model.ZoneHighConfidence
	case candidate != nil && best.Score > threshold:
		cluster.MatchZone = model.ZoneAmbiguous
	default:
		cluster.MatchZone = model.ZoneNoMatch
		candidate = nil
	}

	if candidate != nil {
		cluster.CandidateEntityID = candidate.EntityID
		cluster.CandidateEntityName = candidate.DisplayName()
		cluster.DataNovelty = computeNovelty(cluster, candidate)
	} else {
		cluster.CandidateEntityID = ""
		cluster.CandidateEntityName = ""
		cluster.DataNovelty = nil
	}

	if err := r.assignQuadrant(cluster, candidate); err != nil {
		return nil, err
	}
	r.projectConfidences(cluster, candidate)

	if cluster.MatchZone == model.ZoneAmbiguous {
		cluster.MatchEvidence = evidencePanel(cluster, best)
	} else {
		cluster.MatchEvidence = nil
	}

	cluster.UpdatedAt = model.Now()
	if err := r.tenant.PutCluster(cluster); err != nil {
		return nil, err
	}

	r.logger.Info("scored cluster",
		"cluster_id", cluster.ClusterID,
		"score", cluster.AssociationConfidence,
		"zone", cluster.MatchZone,
		"quadrant", cluster.QuadrantLabel,
		"candidate", cluster.CandidateEntityID,
	)
	return cluster, nil
}

// rarityTable overlays the tenant's per-name overrides on the global table.
// Overrides are additive: unknown names fall through to the global rules.
func (r *Resolver) rarityTable() *similarity.RarityTable {
	overrides, err := r.tenant.RarityOverrides()
	if err != nil {
		r.logger.Warn("reading rarity overrides", "error", err)
		return r.rarity
	}
	if len(overrides) == 0 {
		return r.rarity
	}
	return r.rarity.WithOverrides(overrides)
}

// assignQuadrant buckets the cluster for the review workflow. Matches split
// on novelty (new data enriches, duplicates confirm); a centered-entity
// candidate always lands in enrich. Non-matches split on whether anything
// else in the system already talks about this name.
func (r *Resolver) assignQuadrant(cluster *model.Cluster, candidate *model.Entity) error {
	if candidate != nil {
		centered, err := r.tenant.CenteredEntityIDs()
		if err != nil {
			return err
		}
		if centered[candidate.EntityID] || cluster.DataNovelty.IsNewData() {
			cluster.Quadrant = 2
			cluster.QuadrantLabel = model.Q2Enrich
		} else {
			cluster.Quadrant = 4
			cluster.QuadrantLabel = model.Q4Confirm
		}
		cluster.State = model.StateProvisional
		return nil
	}

	consolidate, err := r.consolidationSignal(cluster)
	if err != nil {
		return err
	}
	if consolidate {
		cluster.Quadrant = 3
		cluster.QuadrantLabel = model.Q3Consolidate
		cluster.State = model.StateProvisional
	} else {
		cluster.Quadrant = 1
		cluster.QuadrantLabel = model.Q1Create
		cluster.State = model.StateUnresolved
	}
	return nil
}

// consolidationSignal reports whether a NO_MATCH cluster should consolidate:
// another unresolved cluster carries a near-identical name, or the graph
// already mentions this name at least twice in observations or
// relationships.
func (r *Resolver) consolidationSignal(cluster *model.Cluster) (bool, error) {
	others, err := r.tenant.ListClusters()
	if err != nil {
		return false, err
	}
	for _, other := range others {
		if other.ClusterID == cluster.ClusterID || other.EntityType != cluster.EntityType {
			continue
		}
		for _, in := range cluster.Signals.Names {
			for _, on := range other.Signals.Names {
				if similarity.Similarity(in, on) > consolidationNameThreshold {
					return true, nil
				}
			}
		}
	}

	name := cluster.PrimaryName()
	if name == "" {
		return false, nil
	}
	entities, err := r.tenant.ListEntities()
	if err != nil {
		return false, err
	}
	mentions := 0
	needle := strings.ToLower(name)
	for _, e := range entities {
		for _, o := range e.Observations {
			if strings.Contains(strings.ToLower(o.Text), needle) {
				mentions++
			}
		}
		for _, rel := range e.Relationships {
			if similarity.Similarity(rel.Name, name) > consolidationNameThreshold {
				mentions++
			}
		}
		if mentions >= consolidationMentions {
			return true, nil
		}
	}
	return false, nil
}

// computeNovelty compares the cluster's signals against the candidate's
// known values across handles, titles, organizations, locations, skills,
// and education. ratio = new / (new + duplicate).
func computeNovelty(cluster *model.Cluster, candidate *model.Entity) *model.DataNovelty {
	n := &model.DataNovelty{}
	prof := entityProfile(candidate)

	check := func(signal string, values, existing []string) {
		for _, v := range values {
			status := model.NoveltyNew
			if valueCorroborated(v, existing) {
				status = model.NoveltyDuplicate
			}
			if status == model.NoveltyNew {
				n.NewSignals++
			} else {
				n.DuplicateSignals++
			}
			n.Details = append(n.Details, model.NoveltyDetail{Signal: signal, Value: v, Status: status})
		}
	}

	checkHandle := func(network, v, existing string) {
		if v == "" {
			return
		}
		status := model.NoveltyNew
		if existing != "" && staging.NormalizeHandle(v) == staging.NormalizeHandle(existing) {
			status = model.NoveltyDuplicate
		}
		if status == model.NoveltyNew {
			n.NewSignals++
		} else {
			n.DuplicateSignals++
		}
		n.Details = append(n.Details, model.NoveltyDetail{Signal: network + "_handle", Value: v, Status: status})
	}

	s := cluster.Signals
	checkHandle("x", s.Handles.X, prof.handles.X)
	checkHandle("instagram", s.Handles.Instagram, prof.handles.Instagram)
	checkHandle("linkedin", s.Handles.LinkedIn, prof.handles.LinkedIn)
	check("title", s.Titles, prof.titles)
	check("organization", s.Organizations, prof.organizations)
	check("location", s.Locations, prof.locations)
	check("skill", s.Skills, prof.skills)
	check("education", s.Education, prof.education)

	if total := n.NewSignals + n.DuplicateSignals; total > 0 {
		n.Ratio = float64(n.NewSignals) / float64(total)
	}
	return n
}

// projectConfidences stamps each confident signal with what its confidence
// would become after joining the candidate: the stage-1 compute rerun with
// the candidate's source count plus this cluster. Without a candidate the
// projection equals the current confidence.
func (r *Resolver) projectConfidences(cluster *model.Cluster, candidate *model.Entity) {
	captured := cluster.Source.ExtractedAt
	weight := cluster.Source.Weight

	project := func(sig *model.ConfidentSignal, key string) {
		sources := 1
		if candidate != nil {
			sources = existingSourceCount(candidate, sig.Value) + 1
		}
		sig.ProjectedConfidence = r.conf.AttributeConfidence(weight, captured, key, sources)
	}

	cs := &cluster.ConfidentSignals
	for i := range cs.Names {
		project(&cs.Names[i], "name")
	}
	for _, h := range []*model.ConfidentSignal{cs.Handles.X, cs.Handles.Instagram, cs.Handles.LinkedIn} {
		if h != nil {
			project(h, "handle")
		}
	}
	for i := range cs.Titles {
		project(&cs.Titles[i], "role")
	}
	for i := range cs.Organizations {
		project(&cs.Organizations[i], "company")
	}
	for i := range cs.Locations {
		project(&cs.Locations[i], "location")
	}
	for i := range cs.Bios {
		project(&cs.Bios[i], "bio")
	}
	for i := range cs.Skills {
		project(&cs.Skills[i], "skills")
	}
	for i := range cs.Education {
		project(&cs.Education[i], "education")
	}
}

// existingSourceCount returns how many sources already back the candidate
// attribute matching the given value, 0 when no attribute matches.
func existingSourceCount(e *model.Entity, value string) int {
	for _, a := range e.Attributes {
		if !valueCorroborated(a.ValueString(), []string{value}) {
			continue
		}
		if n := len(a.SourceClusters); n > 0 {
			return n
		}
		return 1
	}
	return 0
}

// evidencePanel renders the per-factor rows a reviewer sees on an ambiguous
// match. A factor with a recorded contradiction shows as a conflict
// regardless of its positive score.
func evidencePanel(cluster *model.Cluster, best scoring.Result) []model.MatchEvidence {
	conflicted := make(map[string]bool)
	for _, c := range best.Contradictions {
		switch c.Factor {
		case "linkedin_handle", "x_handle", "instagram_handle":
			conflicted["handle"] = true
		case "company":
			conflicted["org_title"] = true
		default:
			conflicted[c.Factor] = true
		}
	}

	status := func(factor string, score float64) string {
		switch {
		case conflicted[factor]:
			return model.EvidenceConflict
		case score >= evidenceMatchThreshold:
			return model.EvidenceMatch
		case score >= evidencePartialThreshold:
			return model.EvidencePartial
		case score > 0:
			return model.EvidenceWeak
		default:
			return model.EvidenceNoMatch
		}
	}

	s := cluster.Signals
	firstHandle := s.Handles.LinkedIn
	if firstHandle == "" {
		firstHandle = s.Handles.X
	}
	if firstHandle == "" {
		firstHandle = s.Handles.Instagram
	}

	f := best.Factors
	return []model.MatchEvidence{
		{Factor: "name", Value: cluster.PrimaryName(), Status: status("name", f.Name)},
		{Factor: "handle", Value: firstHandle, Status: status("handle", f.Handle)},
		{Factor: "org_title", Value: first(s.Organizations, s.Titles), Status: status("org_title", f.OrgTitle)},
		{Factor: "location", Value: first(s.Locations, nil), Status: status("location", f.Location)},
		{Factor: "bio", Value: first(s.Bios, nil), Status: status("bio", f.Bio)},
	}
}

func first(primary, fallback []string) string {
	if len(primary) > 0 {
		return primary[0]
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}
