// Package staging turns extracted entity proposals into signal clusters:
// transient, scoreable units awaiting review. Staging pulls every
// identity-bearing value (names, handles, titles, organizations, locations,
// bios, skills, education) out of a proposal, stamps each with a projected
// base confidence, and writes the cluster in state unresolved.
package staging

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lodestone-ai/lodestone/internal/confidence"
	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/store"
)

// bioWeightFactor discounts bios relative to their source: narrative text is
// softer evidence than a structured field.
const bioWeightFactor = 0.9

// Attribute keys that carry social handles or profile URLs.
var handleKeys = map[string]string{
	"x":                "x",
	"x_handle":         "x",
	"twitter":          "x",
	"twitter_handle":   "x",
	"instagram":        "instagram",
	"instagram_handle": "instagram",
	"linkedin":         "linkedin",
	"linkedin_handle":  "linkedin",
	"linkedin_url":     "linkedin",
}

// Attribute keys feeding each signal class.
var (
	titleKeys    = set("title", "job_title", "headline", "role", "current_role")
	orgKeys      = set("company", "current_company", "organization", "employer")
	locationKeys = set("location", "current_location", "city")
	bioKeys      = set("bio", "about", "x_bio", "instagram_bio")
	skillKeys    = set("skills", "skill")
)

// Profile URL patterns. A handle embedded in any attribute value counts the
// same as a dedicated handle attribute.
var (
	xURLRe         = regexp.MustCompile(`(?i)(?:x|twitter)\.com/(@?[A-Za-z0-9_]{1,30})`)
	instagramURLRe = regexp.MustCompile(`(?i)instagram\.com/(@?[A-Za-z0-9_.]{1,40})`)
	linkedinURLRe  = regexp.MustCompile(`(?i)linkedin\.com/in/([A-Za-z0-9\-_%]{1,80})`)
)

// Stager builds and persists signal clusters for one tenant.
type Stager struct {
	tenant *store.Tenant
	conf   *confidence.Model
	logger *slog.Logger
}

// New returns a Stager over the tenant's cluster store.
func New(tenant *store.Tenant, conf *confidence.Model, logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{tenant: tenant, conf: conf, logger: logger}
}

// Stage converts one extracted proposal into a persisted cluster in state
// unresolved. Proposals without a name or with an invalid type are rejected
// before anything touches disk.
func (s *Stager) Stage(extracted *model.ExtractedEntity, source model.Source) (*model.Cluster, error) {
	if extracted == nil || extracted.Name.IsEmpty() {
		return nil, fmt.Errorf("%w: extracted entity has no name", store.ErrValidation)
	}
	if !model.ValidEntityType(extracted.EntityType) {
		return nil, fmt.Errorf("%w: invalid entity type %q", store.ErrValidation, extracted.EntityType)
	}

	source.Weight = s.conf.SourceWeight(source.Type)
	if source.ExtractedAt.IsZero() {
		source.ExtractedAt = model.Now()
	}

	cluster := &model.Cluster{
		ClusterID:  NewClusterID(),
		EntityType: extracted.EntityType,
		CreatedAt:  model.Now(),
		UpdatedAt:  model.Now(),
		State:      model.StateUnresolved,
		Source:     source,
		Signals:    ExtractSignals(extracted),
		EntityData: extracted,
	}
	cluster.ConfidentSignals = s.confidentSignals(cluster)
	cluster.SignalConfidence = meanSignalConfidence(cluster.ConfidentSignals)

	if err := s.tenant.PutCluster(cluster); err != nil {
		return nil, err
	}
	s.logger.Info("staged signal cluster",
		"cluster_id", cluster.ClusterID,
		"entity_type", cluster.EntityType,
		"source_type", source.Type,
		"names", len(cluster.Signals.Names),
	)
	return cluster, nil
}

// NewClusterID mints a SIG- id with 12 hex characters of entropy.
func NewClusterID() string {
	u := uuid.New()
	return "SIG-" + hex.EncodeToString(u[:6])
}

// ExtractSignals pulls the flat signal set out of a proposal. Arrays are
// deduplicated preserving first occurrence.
func ExtractSignals(extracted *model.ExtractedEntity) model.Signals {
	var sig model.Signals

	for _, n := range []string{
		extracted.Name.Full, extracted.Name.Preferred,
		extracted.Name.Common, extracted.Name.Legal,
	} {
		sig.Names = appendUnique(sig.Names, n)
	}
	for _, a := range extracted.Name.Aliases {
		sig.Names = appendUnique(sig.Names, a)
	}

	for _, a := range extracted.Attributes {
		key := strings.ToLower(a.Key)
		value := a.ValueString()
		if value == "" {
			continue
		}
		if network, ok := handleKeys[key]; ok {
			setHandle(&sig.Handles, network, value)
		}
		scanHandleURLs(&sig.Handles, value)
		switch {
		case titleKeys[key]:
			sig.Titles = appendUnique(sig.Titles, value)
		case orgKeys[key]:
			sig.Organizations = appendUnique(sig.Organizations, value)
		case locationKeys[key]:
			sig.Locations = appendUnique(sig.Locations, value)
		case bioKeys[key]:
			sig.Bios = appendUnique(sig.Bios, value)
		case skillKeys[key]:
			for _, sk := range strings.Split(value, ",") {
				sig.Skills = appendUnique(sig.Skills, strings.TrimSpace(sk))
			}
		}
	}

	if cl := extracted.CareerLite; cl != nil {
		sig.Titles = appendUnique(sig.Titles, cl.Headline)
		sig.Locations = appendUnique(sig.Locations, cl.Location)
		for _, exp := range cl.Experience {
			sig.Titles = appendUnique(sig.Titles, exp.Title)
			sig.Organizations = appendUnique(sig.Organizations, exp.Company)
			sig.Locations = appendUnique(sig.Locations, exp.Location)
		}
		for _, edu := range cl.Education {
			sig.Education = appendUnique(sig.Education, formatEducation(edu))
		}
		for _, sk := range cl.Skills {
			sig.Skills = appendUnique(sig.Skills, sk)
		}
	}

	if extracted.Summary != nil {
		sig.Bios = appendUnique(sig.Bios, extracted.Summary.Value)
	}

	var rawParts []string
	for _, o := range extracted.Observations {
		if t := strings.TrimSpace(o.Text); t != "" {
			rawParts = append(rawParts, t)
		}
	}
	sig.RawText = strings.Join(rawParts, "\n")

	return sig
}

// confidentSignals stamps each extracted signal with its base confidence.
// Volatile classes (titles, organizations, locations) get the full
// recency-adjusted compute; historical classes (names, handles, skills,
// education) carry the raw source weight; bios are discounted.
func (s *Stager) confidentSignals(c *model.Cluster) model.ConfidentSignals {
	weight := c.Source.Weight
	captured := c.Source.ExtractedAt
	id := c.ClusterID

	historical := func(value string) model.ConfidentSignal {
		return model.ConfidentSignal{Value: value, Confidence: weight, Sources: []string{id}}
	}
	volatile := func(value, key string) model.ConfidentSignal {
		return model.ConfidentSignal{
			Value:      value,
			Confidence: s.conf.AttributeConfidence(weight, captured, key, 1),
			Sources:    []string{id},
		}
	}

	var out model.ConfidentSignals
	for _, v := range c.Signals.Names {
		out.Names = append(out.Names, historical(v))
	}
	if h := c.Signals.Handles.X; h != "" {
		cs := historical(h)
		out.Handles.X = &cs
	}
	if h := c.Signals.Handles.Instagram; h != "" {
		cs := historical(h)
		out.Handles.Instagram = &cs
	}
	if h := c.Signals.Handles.LinkedIn; h != "" {
		cs := historical(h)
		out.Handles.LinkedIn = &cs
	}
	for _, v := range c.Signals.Titles {
		out.Titles = append(out.Titles, volatile(v, "role"))
	}
	for _, v := range c.Signals.Organizations {
		out.Organizations = append(out.Organizations, volatile(v, "company"))
	}
	for _, v := range c.Signals.Locations {
		out.Locations = append(out.Locations, volatile(v, "location"))
	}
	for _, v := range c.Signals.Bios {
		cs := model.ConfidentSignal{Value: v, Confidence: weight * bioWeightFactor, Sources: []string{id}}
		out.Bios = append(out.Bios, cs)
	}
	for _, v := range c.Signals.Skills {
		out.Skills = append(out.Skills, historical(v))
	}
	for _, v := range c.Signals.Education {
		out.Education = append(out.Education, historical(v))
	}
	return out
}

func meanSignalConfidence(cs model.ConfidentSignals) float64 {
	var sum float64
	var n int
	add := func(list []model.ConfidentSignal) {
		for _, s := range list {
			sum += s.Confidence
			n++
		}
	}
	add(cs.Names)
	add(cs.Titles)
	add(cs.Organizations)
	add(cs.Locations)
	add(cs.Bios)
	add(cs.Skills)
	add(cs.Education)
	for _, h := range []*model.ConfidentSignal{cs.Handles.X, cs.Handles.Instagram, cs.Handles.LinkedIn} {
		if h != nil {
			sum += h.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// NormalizeHandle strips the leading @ and lowercases a handle.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// HandlesFromAttributes scans an attribute list for social handles, both in
// dedicated handle keys and embedded profile URLs. The scorer and conflict
// detector use this to read an entity's handles the same way staging reads a
// proposal's.
func HandlesFromAttributes(attrs []model.Attribute) model.Handles {
	var h model.Handles
	for _, a := range attrs {
		value := a.ValueString()
		if value == "" {
			continue
		}
		if network, ok := handleKeys[strings.ToLower(a.Key)]; ok {
			setHandle(&h, network, value)
		}
		scanHandleURLs(&h, value)
	}
	return h
}

func setHandle(h *model.Handles, network, raw string) {
	// Dedicated handle attributes may themselves hold a profile URL.
	if strings.Contains(raw, "/") {
		scanHandleURLs(h, raw)
		if strings.Contains(raw, ".com/") {
			return
		}
	}
	value := NormalizeHandle(raw)
	if value == "" {
		return
	}
	switch network {
	case "x":
		if h.X == "" {
			h.X = value
		}
	case "instagram":
		if h.Instagram == "" {
			h.Instagram = value
		}
	case "linkedin":
		if h.LinkedIn == "" {
			h.LinkedIn = value
		}
	}
}

func scanHandleURLs(h *model.Handles, value string) {
	if m := xURLRe.FindStringSubmatch(value); m != nil && h.X == "" {
		h.X = NormalizeHandle(m[1])
	}
	if m := instagramURLRe.FindStringSubmatch(value); m != nil && h.Instagram == "" {
		h.Instagram = NormalizeHandle(m[1])
	}
	if m := linkedinURLRe.FindStringSubmatch(value); m != nil && h.LinkedIn == "" {
		h.LinkedIn = NormalizeHandle(m[1])
	}
}

func formatEducation(e model.EducationEntry) string {
	parts := make([]string, 0, 2)
	if e.School != "" {
		parts = append(parts, e.School)
	}
	if e.Degree != "" {
		parts = append(parts, e.Degree)
	}
	return strings.Join(parts, " — ")
}

func appendUnique(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}
