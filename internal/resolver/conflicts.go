package resolver

import (
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/similarity"
	"github.com/lodestone-ai/lodestone/internal/staging"
)

// Conflict classification thresholds.
const (
	// conflictDivergence is the Dice ceiling below which two values are a
	// real disagreement rather than a paraphrase.
	conflictDivergence = 0.3
	// conflictRecentYears bounds how old a capture can be and still count
	// as a current claim. Two current claims that disagree are a factual
	// (or identity) conflict; a stale side is just drift.
	conflictRecentYears = 2
)

const temporalResolutionReason = "most recent source wins for current-state attribute"

// DetectConflicts compares the cluster's primary claims against the entity's
// current attributes over title, organization, location, and the three
// social handles. Handle disagreements are identity conflicts. Location
// disagreements with both sides recent are identity conflicts; with a stale
// or undated side they are temporal. Title and organization disagreements
// are factual when both sides are recent, temporal otherwise. Temporal
// conflicts come back auto-resolved in favor of the newer side.
func DetectConflicts(entity *model.Entity, cluster *model.Cluster) []model.Conflict {
	var out []model.Conflict
	now := model.Now()
	incomingDate := cluster.Source.ExtractedAt

	existingHandles := staging.HandlesFromAttributes(entity.Attributes)
	handlePairs := []struct {
		attribute string
		in, ex    string
	}{
		{"linkedin_handle", cluster.Signals.Handles.LinkedIn, existingHandles.LinkedIn},
		{"x_handle", cluster.Signals.Handles.X, existingHandles.X},
		{"instagram_handle", cluster.Signals.Handles.Instagram, existingHandles.Instagram},
	}
	for _, p := range handlePairs {
		if p.in == "" || p.ex == "" || p.in == p.ex {
			continue
		}
		out = append(out, model.Conflict{
			ConflictID:   newConflictID(),
			EntityID:     entity.EntityID,
			Attribute:    p.attribute,
			ValueA:       p.ex,
			SourceA:      entity.Source,
			ValueB:       p.in,
			SourceB:      cluster.Source.Type,
			DateB:        incomingDate,
			ConflictType: model.ConflictIdentity,
			DetectedAt:   now,
		})
	}

	fields := []struct {
		keys     []string
		incoming []string
		identity bool // both-recent disagreement escalates to identity
	}{
		{[]string{"current_role", "role", "title", "job_title"}, cluster.Signals.Titles, false},
		{[]string{"current_company", "company", "organization", "employer"}, cluster.Signals.Organizations, false},
		{[]string{"current_location", "location", "city"}, cluster.Signals.Locations, true},
	}
	for _, f := range fields {
		attr, ok := firstAttribute(entity, f.keys)
		if !ok || len(f.incoming) == 0 {
			continue
		}
		existing := attr.ValueString()
		incoming := f.incoming[0]
		if bestSimilarity(existing, f.incoming) > conflictDivergence {
			continue
		}

		existingDate := attr.CapturedDate()
		bothRecent := recentClaim(existingDate) && recentClaim(incomingDate)

		conflictType := model.ConflictTemporal
		if bothRecent {
			conflictType = model.ConflictFactual
			if f.identity {
				conflictType = model.ConflictIdentity
			}
		}

		c := model.Conflict{
			ConflictID:   newConflictID(),
			EntityID:     entity.EntityID,
			Attribute:    attr.Key,
			ValueA:       existing,
			SourceA:      attr.SourceAttribution,
			DateA:        existingDate,
			ValueB:       incoming,
			SourceB:      cluster.Source.Type,
			DateB:        incomingDate,
			ConflictType: conflictType,
			DetectedAt:   now,
		}
		if conflictType == model.ConflictTemporal {
			autoResolveTemporal(&c)
		}
		out = append(out, c)
	}
	return out
}

// autoResolveTemporal settles a temporal conflict without a human: the side
// with the newer date wins; an undated incumbent loses to a dated incoming
// value, and with no dates at all the incumbent stands.
func autoResolveTemporal(c *model.Conflict) {
	winner := model.WinnerA
	value := c.ValueA
	if c.DateB.After(c.DateA.Time) || (c.DateA.IsZero() && !c.DateB.IsZero()) {
		winner = model.WinnerB
		value = c.ValueB
	}
	c.AutoResolved = true
	c.Resolution = &model.ConflictResolution{
		ResolvedAt:   model.Now(),
		ResolvedBy:   "system",
		Winner:       winner,
		WinningValue: value,
		Reason:       temporalResolutionReason,
	}
}

// applyConflictWinner rewrites the disputed attribute with an auto-resolved
// conflict's winning value. Winner A means the incumbent stands and nothing
// changes.
func applyConflictWinner(e *model.Entity, c model.Conflict) {
	if c.Resolution == nil || c.Resolution.Winner != model.WinnerB {
		return
	}
	a, ok := e.Attribute(c.Attribute)
	if !ok {
		return
	}
	a.Value = c.Resolution.WinningValue
	if a.TimeDecay == nil {
		a.TimeDecay = &model.TimeDecay{}
	}
	a.TimeDecay.CapturedDate = c.DateB
}

func firstAttribute(e *model.Entity, keys []string) (*model.Attribute, bool) {
	for _, key := range keys {
		if a, ok := e.Attribute(key); ok && a.ValueString() != "" {
			return a, true
		}
	}
	return nil, false
}

func bestSimilarity(existing string, incoming []string) float64 {
	best := 0.0
	for _, v := range incoming {
		if s := similarity.Similarity(existing, v); s > best {
			best = s
		}
	}
	return best
}

func recentClaim(t model.Timestamp) bool {
	if t.IsZero() {
		return false
	}
	return t.After(model.Now().AddDate(-conflictRecentYears, 0, 0))
}

// profile is the flat comparable view of an entity's known values, read the
// same way staging reads a proposal's.
type profile struct {
	titles        []string
	organizations []string
	locations     []string
	skills        []string
	education     []string
	handles       model.Handles
}

func entityProfile(e *model.Entity) profile {
	var p profile
	p.handles = staging.HandlesFromAttributes(e.Attributes)

	for _, a := range e.Attributes {
		v := a.ValueString()
		if v == "" {
			continue
		}
		switch strings.ToLower(a.Key) {
		case "title", "job_title", "headline", "role", "current_role":
			p.titles = append(p.titles, v)
		case "company", "current_company", "organization", "employer":
			p.organizations = append(p.organizations, v)
		case "location", "current_location", "city":
			p.locations = append(p.locations, v)
		case "skills", "skill":
			for _, sk := range strings.Split(v, ",") {
				if sk = strings.TrimSpace(sk); sk != "" {
					p.skills = append(p.skills, sk)
				}
			}
		case "education", "school":
			p.education = append(p.education, v)
		}
	}

	if cl := e.CareerLite; cl != nil {
		if cl.Headline != "" {
			p.titles = append(p.titles, cl.Headline)
		}
		if cl.Location != "" {
			p.locations = append(p.locations, cl.Location)
		}
		for _, exp := range cl.Experience {
			if exp.Title != "" {
				p.titles = append(p.titles, exp.Title)
			}
			if exp.Company != "" {
				p.organizations = append(p.organizations, exp.Company)
			}
			if exp.Location != "" {
				p.locations = append(p.locations, exp.Location)
			}
		}
		for _, edu := range cl.Education {
			parts := make([]string, 0, 2)
			if edu.School != "" {
				parts = append(parts, edu.School)
			}
			if edu.Degree != "" {
				parts = append(parts, edu.Degree)
			}
			if len(parts) > 0 {
				p.education = append(p.education, strings.Join(parts, " — "))
			}
		}
		p.skills = append(p.skills, cl.Skills...)
	}
	return p
}
