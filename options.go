package lodestone

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger       *slog.Logger
	version      string
	dataDir      string
	templateFile string
	templateDir  string
	classifier   Classifier
	hooks        []StagingHook

	sourceWeights   map[string]float64
	clock           func() time.Time
	rarityOverrides map[string]Rarity
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDataDir overrides the store root from config (LODESTONE_DATA_DIR env var).
func WithDataDir(dir string) Option {
	return func(o *resolvedOptions) { o.dataDir = dir }
}

// WithTemplateFile overrides the flat template catalog file from config
// (LODESTONE_TEMPLATE_FILE env var).
func WithTemplateFile(path string) Option {
	return func(o *resolvedOptions) { o.templateFile = path }
}

// WithTemplateDir overrides the per-template directory from config
// (LODESTONE_TEMPLATE_DIR env var). Directory entries override flat-file
// entries of the same id.
func WithTemplateDir(path string) Option {
	return func(o *resolvedOptions) { o.templateDir = path }
}

// WithClassifier replaces the auto-detected document classifier
// (Ollama/OpenAI/noop). Only the last call wins.
func WithClassifier(c Classifier) Option {
	return func(o *resolvedOptions) { o.classifier = c }
}

// WithStagingHook registers a hook to receive cluster lifecycle events.
// Multiple hooks may be registered; all registered hooks receive every event.
func WithStagingHook(h StagingHook) Option {
	return func(o *resolvedOptions) { o.hooks = append(o.hooks, h) }
}

// WithSourceWeights replaces the confidence model's source-class weight
// table. The caller supplies the full table; missing source types score at
// the unknown-source weight.
func WithSourceWeights(weights map[string]float64) Option {
	return func(o *resolvedOptions) { o.sourceWeights = weights }
}

// WithClock replaces the time source used for recency decay and freshness
// windows. Used by tests and deterministic replays.
func WithClock(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = now }
}

// WithRarityOverrides overlays per-name rarity classes on the global tables
// for every tenant. Keys are lowercased full names; unknown names fall
// through to the global rules. Per-tenant name_rarity.json files apply on
// top of these.
func WithRarityOverrides(overrides map[string]Rarity) Option {
	return func(o *resolvedOptions) { o.rarityOverrides = overrides }
}
