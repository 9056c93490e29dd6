package resolver

import (
	"fmt"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// mergeEntityData folds a cluster's preserved extraction into an existing
// entity and returns a human-readable change list. The entity id is never
// touched; on a self entity (the centered entity of some spoke) the name and
// summary are protected too. Attributes union by key preferring the higher
// confidence or more recent capture; relationships union by name plus type;
// career_lite and structured_attributes are replaced wholesale when the
// incoming side actually carries data.
func (r *Resolver) mergeEntityData(e *model.Entity, cluster *model.Cluster, isSelf bool) []string {
	var changes []string
	data := cluster.EntityData
	if data == nil {
		return changes
	}

	if !isSelf {
		changes = append(changes, mergeName(&e.Name, data.Name)...)
		if c := mergeSummary(e, data.Summary); c != "" {
			changes = append(changes, c)
		}
	}

	for _, in := range data.Attributes {
		if c := r.mergeAttribute(e, in, cluster); c != "" {
			changes = append(changes, c)
		}
	}

	for _, in := range data.Relationships {
		if hasRelationship(e, in) {
			continue
		}
		if in.RelationshipID == "" {
			in.RelationshipID = newRelationshipID()
		}
		e.Relationships = append(e.Relationships, in)
		changes = append(changes, fmt.Sprintf("added relationship %s (%s)", in.Name, in.RelationshipType))
	}

	if data.CareerLite != nil && (len(data.CareerLite.Experience) > 0 || e.CareerLite.IsEmpty()) && !data.CareerLite.IsEmpty() {
		e.CareerLite = data.CareerLite
		changes = append(changes, "replaced career_lite")
	}
	if len(data.StructuredAttributes) > 0 {
		if data.Interface == "profile" || len(e.StructuredAttributes) == 0 {
			e.StructuredAttributes = data.StructuredAttributes
			changes = append(changes, "replaced structured_attributes")
		} else {
			for k, v := range data.StructuredAttributes {
				e.StructuredAttributes[k] = v
			}
			changes = append(changes, "updated structured_attributes")
		}
	}
	if len(data.OrgDimensions) > 0 {
		if e.OrgDimensions == nil {
			e.OrgDimensions = make(map[string]any, len(data.OrgDimensions))
		}
		for k, v := range data.OrgDimensions {
			e.OrgDimensions[k] = v
		}
		changes = append(changes, "updated org_dimensions")
	}
	return changes
}

// mergeName fills empty name forms from the incoming side and files any
// genuinely different display name as an alias.
func mergeName(existing *model.Name, incoming model.Name) []string {
	var changes []string
	fill := func(dst *string, src, field string) {
		if *dst == "" && src != "" {
			*dst = src
			changes = append(changes, "filled name."+field)
		}
	}
	fill(&existing.Full, incoming.Full, "full")
	fill(&existing.Preferred, incoming.Preferred, "preferred")
	fill(&existing.Legal, incoming.Legal, "legal")
	fill(&existing.Common, incoming.Common, "common")

	known := func(name string) bool {
		for _, n := range []string{existing.Full, existing.Preferred, existing.Legal, existing.Common} {
			if strings.EqualFold(n, name) {
				return true
			}
		}
		for _, a := range existing.Aliases {
			if strings.EqualFold(a, name) {
				return true
			}
		}
		return false
	}
	candidates := append([]string{incoming.Full, incoming.Preferred, incoming.Legal, incoming.Common}, incoming.Aliases...)
	for _, n := range candidates {
		if n == "" || known(n) {
			continue
		}
		existing.Aliases = append(existing.Aliases, n)
		changes = append(changes, fmt.Sprintf("added alias %q", n))
	}
	return changes
}

// mergeSummary adopts the incoming summary when the entity has none or the
// incoming one is at least as confident.
func mergeSummary(e *model.Entity, incoming *model.Summary) string {
	if incoming == nil || incoming.Value == "" {
		return ""
	}
	if e.Summary != nil && e.Summary.Value != "" && e.Summary.Confidence > incoming.Confidence {
		return ""
	}
	e.Summary = incoming
	return "updated summary"
}

// mergeAttribute unions one incoming attribute into the entity by key. An
// existing attribute gains the cluster as a corroborating source either way;
// its value is replaced only when the incoming claim is more confident or
// more recently captured.
func (r *Resolver) mergeAttribute(e *model.Entity, in model.Attribute, cluster *model.Cluster) string {
	key := strings.ToLower(in.Key)
	incomingCaptured := in.CapturedDate()
	if incomingCaptured.IsZero() {
		incomingCaptured = cluster.Source.ExtractedAt
	}

	existing := findAttributeFold(e, key)
	if existing == nil {
		stamped := r.stampAttribute(in, cluster)
		e.Attributes = append(e.Attributes, stamped)
		return "added " + in.Key
	}

	bumped := addSourceCluster(existing, cluster.ClusterID)
	incomingConfidence := r.conf.AttributeConfidence(cluster.Source.Weight, incomingCaptured, key, 1)
	sameValue := strings.EqualFold(existing.ValueString(), in.ValueString())

	replace := !sameValue &&
		(incomingConfidence > existing.Confidence || incomingCaptured.After(existing.CapturedDate().Time))
	if replace {
		existing.Value = in.Value
		existing.BaseConfidence = cluster.Source.Weight
		if existing.TimeDecay == nil {
			existing.TimeDecay = &model.TimeDecay{}
		}
		existing.TimeDecay.CapturedDate = incomingCaptured
		existing.SourceAttribution = cluster.Source.Type
	}
	r.recomputeAttribute(existing)

	switch {
	case replace:
		return "updated " + existing.Key
	case bumped:
		return "corroborated " + existing.Key
	default:
		return ""
	}
}

func findAttributeFold(e *model.Entity, key string) *model.Attribute {
	for i := range e.Attributes {
		if strings.EqualFold(e.Attributes[i].Key, key) {
			return &e.Attributes[i]
		}
	}
	return nil
}

// hasRelationship reports whether an equivalent edge (same counterpart name
// and type, case-insensitive) already exists.
func hasRelationship(e *model.Entity, in model.Relationship) bool {
	for _, rel := range e.Relationships {
		if strings.EqualFold(rel.Name, in.Name) && strings.EqualFold(rel.RelationshipType, in.RelationshipType) {
			return true
		}
	}
	return false
}
