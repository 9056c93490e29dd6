// Package scoring implements the 5-factor association scorer: the weighted
// match of a signal cluster against one candidate entity. It produces a
// score in [0,1], a per-factor breakdown, a contradiction list with its
// penalty, and a match-type label for the review UI.
package scoring

import (
	"fmt"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/similarity"
	"github.com/lodestone-ai/lodestone/internal/staging"
)

// Factor weights. They sum to 1.
const (
	WeightName     = 0.40
	WeightHandle   = 0.30
	WeightOrgTitle = 0.15
	WeightLocation = 0.10
	WeightBio      = 0.05
)

// Factor-internal scores and thresholds.
const (
	personLikelyMatchScore = 0.82 // name factor when NamesLikelyMatch fires
	handleExactScore       = 1.0
	handleAliasCrossScore  = 0.85
	orgAndTitleScore       = 1.0
	orgOnlyScore           = 0.5
	titleOnlyScore         = 0.3
	fieldMatchThreshold    = 0.7  // Dice cutoff for org/title/location equality
	nameWeakThreshold      = 0.4  // below this a nonzero name factor is suspect
	divergenceThreshold    = 0.3  // below this companies/locations diverge
)

// Contradiction penalties.
const (
	penaltyHandleMismatch   = 0.20
	penaltyNameWeak         = 0.15
	penaltyCompanyMismatch  = 0.05
	penaltyLocationIdentity = 0.15
	penaltyLocationMoved    = 0.05
)

// recentWindowYears bounds how old a location capture can be and still count
// as the entity's current whereabouts.
const recentWindowYears = 2

// Result is the outcome of scoring one cluster against one entity.
type Result struct {
	Score                float64
	RawScore             float64
	Factors              model.AssociationFactors
	Contradictions       []model.Contradiction
	ContradictionPenalty float64
	MatchType            model.MatchType
}

// Score runs the 5-factor match of cluster against existing. Mismatched
// entity types score zero unless both sides are organization-like.
func Score(cluster *model.Cluster, existing *model.Entity) Result {
	if !typesComparable(cluster.EntityType, existing.EntityType) {
		return Result{}
	}

	existingNames := similarity.AllNames(existing)
	existingHandles := staging.HandlesFromAttributes(existing.Attributes)

	factors := model.AssociationFactors{
		Name:     nameFactor(cluster, existingNames),
		Handle:   handleFactor(cluster.Signals, existingHandles, cluster.Signals.Names, existingNames),
		OrgTitle: orgTitleFactor(cluster.Signals, existing),
		Location: locationFactor(cluster.Signals.Locations, existingLocations(existing)),
		Bio:      bioFactor(cluster.Signals.Bios, existing),
	}

	raw := factors.Name*WeightName +
		factors.Handle*WeightHandle +
		factors.OrgTitle*WeightOrgTitle +
		factors.Location*WeightLocation +
		factors.Bio*WeightBio

	contradictions := findContradictions(cluster, existing, existingHandles, factors, existingNames)
	penalty := 0.0
	for _, c := range contradictions {
		penalty += c.Penalty
	}

	score := raw - penalty
	if score < 0 {
		score = 0
	}

	return Result{
		Score:                score,
		RawScore:             raw,
		Factors:              factors,
		Contradictions:       contradictions,
		ContradictionPenalty: penalty,
		MatchType:            matchType(factors),
	}
}

// typesComparable gates scoring by entity type. Businesses and institutions
// are organization-like and comparable to each other.
func typesComparable(a, b model.EntityType) bool {
	if a == b {
		return true
	}
	orgLike := func(t model.EntityType) bool {
		return t == model.EntityBusiness || t == model.EntityInstitution
	}
	return orgLike(a) && orgLike(b)
}

// nameFactor takes the best Dice over all incoming/existing name pairs.
// Persons short-circuit to 0.82 when the nickname/initial rules fire;
// organization-like entities also try suffix-stripped normalized forms.
func nameFactor(cluster *model.Cluster, existingNames []string) float64 {
	incoming := cluster.Signals.Names
	if len(incoming) == 0 || len(existingNames) == 0 {
		return 0
	}

	best := 0.0
	for _, in := range incoming {
		for _, ex := range existingNames {
			if s := similarity.Similarity(in, ex); s > best {
				best = s
			}
			if cluster.EntityType != model.EntityPerson {
				s := similarity.Similarity(
					similarity.NormalizeBusinessName(in),
					similarity.NormalizeBusinessName(ex),
				)
				if s > best {
					best = s
				}
			}
		}
	}

	if cluster.EntityType == model.EntityPerson &&
		best < personLikelyMatchScore &&
		similarity.NamesLikelyMatch(incoming, existingNames) {
		return personLikelyMatchScore
	}
	return best
}

// handleFactor scores 1.0 on any exact handle match and 0.85 when a handle
// on one side matches a name or alias on the other (people often reuse
// their name as a handle).
func handleFactor(incoming model.Signals, existing model.Handles, incomingNames, existingNames []string) float64 {
	pairs := [][2]string{
		{incoming.Handles.X, existing.X},
		{incoming.Handles.Instagram, existing.Instagram},
		{incoming.Handles.LinkedIn, existing.LinkedIn},
	}
	for _, p := range pairs {
		if p[0] != "" && p[0] == p[1] {
			return handleExactScore
		}
	}

	for _, h := range []string{incoming.Handles.X, incoming.Handles.Instagram, incoming.Handles.LinkedIn} {
		if h != "" && handleMatchesAnyName(h, existingNames) {
			return handleAliasCrossScore
		}
	}
	for _, h := range []string{existing.X, existing.Instagram, existing.LinkedIn} {
		if h != "" && handleMatchesAnyName(h, incomingNames) {
			return handleAliasCrossScore
		}
	}
	return 0
}

func handleMatchesAnyName(handle string, names []string) bool {
	flat := flattenHandle(handle)
	if flat == "" {
		return false
	}
	for _, n := range names {
		if flattenHandle(n) == flat {
			return true
		}
	}
	return false
}

// flattenHandle lowercases and strips separators so "Nova Byrd", "nova-byrd"
// and "nova.byrd" all compare equal.
func flattenHandle(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '_', '@':
			return -1
		}
		return r
	}, strings.ToLower(s))
}

// orgTitleFactor scores 1.0 when both an organization and a title match,
// 0.5 for organization only, 0.3 for title only.
func orgTitleFactor(incoming model.Signals, existing *model.Entity) float64 {
	orgMatch := anyFieldMatch(incoming.Organizations, existingOrganizations(existing))
	titleMatch := anyFieldMatch(incoming.Titles, existingTitles(existing))
	switch {
	case orgMatch && titleMatch:
		return orgAndTitleScore
	case orgMatch:
		return orgOnlyScore
	case titleMatch:
		return titleOnlyScore
	default:
		return 0
	}
}

func anyFieldMatch(incoming, existing []string) bool {
	for _, in := range incoming {
		for _, ex := range existing {
			if similarity.Similarity(in, ex) > fieldMatchThreshold {
				return true
			}
		}
	}
	return false
}

// locationFactor scores 1.0 when any pair clears the Dice threshold,
// otherwise the best fractional token overlap ("Lisbon" vs "Lisbon,
// Portugal" scores 1.0 by overlap).
func locationFactor(incoming, existing []string) float64 {
	best := 0.0
	for _, in := range incoming {
		for _, ex := range existing {
			if similarity.Similarity(in, ex) > fieldMatchThreshold {
				return 1.0
			}
			overlap := similarity.TokenOverlap(in, ex)
			if o := similarity.TokenOverlap(ex, in); o > overlap {
				overlap = o
			}
			if overlap > best {
				best = overlap
			}
		}
	}
	return best
}

// bioFactor takes the best word-bag Jaccard between incoming bios and the
// entity's summary plus bio attributes.
func bioFactor(incomingBios []string, existing *model.Entity) float64 {
	var existingBios []string
	if existing.Summary != nil && existing.Summary.Value != "" {
		existingBios = append(existingBios, existing.Summary.Value)
	}
	for _, a := range existing.Attributes {
		switch strings.ToLower(a.Key) {
		case "bio", "about", "x_bio", "instagram_bio":
			if v := a.ValueString(); v != "" {
				existingBios = append(existingBios, v)
			}
		}
	}

	best := 0.0
	for _, in := range incomingBios {
		for _, ex := range existingBios {
			if j := similarity.WordBagJaccard(in, ex); j > best {
				best = j
			}
		}
	}
	return best
}

// findContradictions collects negative evidence: handle mismatches, weak
// name similarity, diverging current companies, and diverging locations.
func findContradictions(cluster *model.Cluster, existing *model.Entity, existingHandles model.Handles, factors model.AssociationFactors, existingNames []string) []model.Contradiction {
	var out []model.Contradiction
	incoming := cluster.Signals

	handlePairs := []struct {
		network  string
		in, ex   string
		identity bool
	}{
		{"linkedin_handle", incoming.Handles.LinkedIn, existingHandles.LinkedIn, true},
		{"x_handle", incoming.Handles.X, existingHandles.X, true},
		{"instagram_handle", incoming.Handles.Instagram, existingHandles.Instagram, true},
	}
	for _, p := range handlePairs {
		if p.in != "" && p.ex != "" && p.in != p.ex {
			out = append(out, model.Contradiction{
				Factor:           p.network,
				Detail:           fmt.Sprintf("different %s: %q vs %q", p.network, p.in, p.ex),
				Penalty:          penaltyHandleMismatch,
				IdentityConflict: p.identity,
			})
		}
	}

	if factors.Name > 0 && factors.Name < nameWeakThreshold &&
		!similarity.NamesLikelyMatch(incoming.Names, existingNames) {
		out = append(out, model.Contradiction{
			Factor:  "name",
			Detail:  "names overlap weakly and fail the likely-match rules",
			Penalty: penaltyNameWeak,
		})
	}

	if c := companyContradiction(incoming.Organizations, existing); c != nil {
		out = append(out, *c)
	}
	if c := locationContradiction(cluster, existing); c != nil {
		out = append(out, *c)
	}
	return out
}

// companyContradiction fires when both sides name a current company and the
// best similarity between them stays under 0.3.
func companyContradiction(incomingOrgs []string, existing *model.Entity) *model.Contradiction {
	current := currentCompany(existing)
	if current == "" || len(incomingOrgs) == 0 {
		return nil
	}
	best := 0.0
	for _, in := range incomingOrgs {
		if s := similarity.Similarity(in, current); s > best {
			best = s
		}
	}
	if best >= divergenceThreshold {
		return nil
	}
	return &model.Contradiction{
		Factor:  "company",
		Detail:  fmt.Sprintf("current companies diverge: %q vs %q", incomingOrgs[0], current),
		Penalty: penaltyCompanyMismatch,
	}
}

// locationContradiction fires when locations diverge (Dice ≤ 0.3). Two
// recent captures point at different people; a stale side just means the
// person may have moved.
func locationContradiction(cluster *model.Cluster, existing *model.Entity) *model.Contradiction {
	locAttr, ok := locationAttribute(existing)
	if !ok || len(cluster.Signals.Locations) == 0 {
		return nil
	}
	existingLoc := locAttr.ValueString()

	best := 0.0
	for _, in := range cluster.Signals.Locations {
		if s := similarity.Similarity(in, existingLoc); s > best {
			best = s
		}
	}
	if best > divergenceThreshold {
		return nil
	}

	incomingRecent := isRecent(cluster.Source.ExtractedAt)
	existingRecent := isRecent(locAttr.CapturedDate())
	if incomingRecent && existingRecent {
		return &model.Contradiction{
			Factor:           "location",
			Detail:           fmt.Sprintf("both recent locations diverge: %q vs %q (possible identity conflict)", cluster.Signals.Locations[0], existingLoc),
			Penalty:          penaltyLocationIdentity,
			IdentityConflict: true,
		}
	}
	return &model.Contradiction{
		Factor:  "location",
		Detail:  fmt.Sprintf("locations diverge: %q vs %q (person may have moved)", cluster.Signals.Locations[0], existingLoc),
		Penalty: penaltyLocationMoved,
	}
}

func isRecent(t model.Timestamp) bool {
	if t.IsZero() {
		return false
	}
	return t.After(model.Now().AddDate(-recentWindowYears, 0, 0))
}

// matchType labels the strongest factor behind a score, in fixed precedence.
func matchType(f model.AssociationFactors) model.MatchType {
	switch {
	case f.Handle >= handleExactScore:
		return model.MatchSocialHandle
	case f.Handle >= handleAliasCrossScore:
		return model.MatchHandleAliasCross
	case f.Name >= personLikelyMatchScore:
		return model.MatchNameHigh
	case f.Name > 0 && f.OrgTitle > 0:
		return model.MatchNameOrgTitle
	case f.Name > 0:
		return model.MatchNamePartial
	default:
		return ""
	}
}

// Helpers reading an entity's comparable fields the way staging reads a
// proposal's.

func existingTitles(e *model.Entity) []string {
	var out []string
	for _, a := range e.Attributes {
		switch strings.ToLower(a.Key) {
		case "title", "job_title", "headline", "role", "current_role":
			if v := a.ValueString(); v != "" {
				out = append(out, v)
			}
		}
	}
	if e.CareerLite != nil {
		if e.CareerLite.Headline != "" {
			out = append(out, e.CareerLite.Headline)
		}
		for _, exp := range e.CareerLite.Experience {
			if exp.Title != "" {
				out = append(out, exp.Title)
			}
		}
	}
	return out
}

func existingOrganizations(e *model.Entity) []string {
	var out []string
	for _, a := range e.Attributes {
		switch strings.ToLower(a.Key) {
		case "company", "current_company", "organization", "employer":
			if v := a.ValueString(); v != "" {
				out = append(out, v)
			}
		}
	}
	if e.CareerLite != nil {
		for _, exp := range e.CareerLite.Experience {
			if exp.Company != "" {
				out = append(out, exp.Company)
			}
		}
	}
	return out
}

func existingLocations(e *model.Entity) []string {
	var out []string
	for _, a := range e.Attributes {
		switch strings.ToLower(a.Key) {
		case "location", "current_location", "city":
			if v := a.ValueString(); v != "" {
				out = append(out, v)
			}
		}
	}
	if e.CareerLite != nil && e.CareerLite.Location != "" {
		out = append(out, e.CareerLite.Location)
	}
	return out
}

// currentCompany returns the entity's current company: the dedicated
// attribute first, then the current career entry.
func currentCompany(e *model.Entity) string {
	for _, key := range []string{"current_company", "company"} {
		if v := e.AttributeValue(key); v != "" {
			return v
		}
	}
	if e.CareerLite != nil {
		for _, exp := range e.CareerLite.Experience {
			if exp.Current && exp.Company != "" {
				return exp.Company
			}
		}
	}
	return ""
}

// locationAttribute returns the entity's location attribute, preferring the
// explicitly current one.
func locationAttribute(e *model.Entity) (*model.Attribute, bool) {
	for _, key := range []string{"current_location", "location"} {
		if a, ok := e.Attribute(key); ok && a.ValueString() != "" {
			return a, true
		}
	}
	return nil, false
}
