// Package lodestone is the public API for embedding the Lodestone knowledge
// graph provisioner.
//
// Consumers construct an App and call its operations directly:
//
//	app, err := lodestone.New(
//	    lodestone.WithDataDir("data"),
//	    lodestone.WithLogger(logger),
//	)
//	if err != nil { ... }
//	defer app.Close(context.Background())
//
//	clusters, err := app.StageAndScoreExtraction(ctx, "acme", proposals, source)
//
// The import graph enforces a strict no-cycle rule: lodestone (root) imports
// internal/*, but internal/* never imports lodestone (root).
package lodestone

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/lodestone-ai/lodestone/internal/confidence"
	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/gap"
	"github.com/lodestone-ai/lodestone/internal/resolver"
	"github.com/lodestone-ai/lodestone/internal/similarity"
	"github.com/lodestone-ai/lodestone/internal/staging"
	"github.com/lodestone-ai/lodestone/internal/store"
	"github.com/lodestone-ai/lodestone/internal/telemetry"
	"github.com/lodestone-ai/lodestone/internal/templates"
	"github.com/lodestone-ai/lodestone/internal/vault"
)

// stageConcurrency bounds how many clusters score in parallel during one
// extraction batch. Scoring different clusters is independent; each writes
// only its own record.
const stageConcurrency = 4

// App is the Lodestone core. Construct with New(), release with Close().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg        config.Config
	store      *store.Store
	registry   *templates.Registry
	conf       *confidence.Model
	rarity     *similarity.RarityTable
	classifier gap.Classifier
	vlt        *vault.Vault
	metrics    *telemetry.Metrics
	hooks      []StagingHook

	otelShutdown telemetry.Shutdown
	watchCancel  context.CancelFunc
	watchDone    chan struct{}

	logger  *slog.Logger
	version string
}

// New initialises the Lodestone core: configuration, telemetry, the record
// store, the template catalog, and the document classifier. It starts the
// template watcher goroutine only when LODESTONE_TEMPLATE_WATCH is set.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.templateFile != "" {
		cfg.TemplateFile = o.templateFile
	}
	if o.templateDir != "" {
		cfg.TemplateDir = o.templateDir
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("lodestone starting", "version", version, "data_dir", cfg.DataDir)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	st, err := store.New(cfg.DataDir, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("store: %w", err)
	}

	registry, err := templates.NewRegistry(cfg.TemplateFile, cfg.TemplateDir, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("templates: %w", err)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("telemetry metrics: %w", err)
	}

	classifier := o.classifier
	if classifier == nil {
		classifier = newClassifier(cfg, logger)
	}

	vlt, err := newVault(cfg)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("vault: %w", err)
	}

	conf := confidence.NewModel()
	if o.sourceWeights != nil {
		conf = conf.WithWeights(o.sourceWeights)
	}
	if o.clock != nil {
		conf = conf.WithClock(o.clock)
	}
	rarity := similarity.DefaultRarityTable()
	if len(o.rarityOverrides) > 0 {
		rarity = rarity.WithOverrides(o.rarityOverrides)
	}

	app := &App{
		cfg:          cfg,
		store:        st,
		registry:     registry,
		conf:         conf,
		rarity:       rarity,
		classifier:   classifier,
		vlt:          vlt,
		metrics:      metrics,
		hooks:        o.hooks,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}

	if cfg.TemplateWatch {
		watchCtx, cancel := context.WithCancel(context.Background())
		app.watchCancel = cancel
		app.watchDone = make(chan struct{})
		go func() {
			defer close(app.watchDone)
			if err := registry.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
				logger.Error("template watcher stopped", "error", err)
			}
		}()
	}

	return app, nil
}

// Close stops the template watcher and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}
	return a.otelShutdown(ctx)
}

func (a *App) tenant(name string) (*store.Tenant, error) {
	return a.store.Tenant(name)
}

// ── Staging & resolution ───────────────────────────────────────────────────────

// StageAndScoreExtraction stages each extracted proposal as a signal cluster
// and scores it against the tenant graph. Clusters come back in input order,
// each already zoned and quadrant-classified.
func (a *App) StageAndScoreExtraction(ctx context.Context, tenantName string, proposals []*ExtractedEntity, source Source) ([]*Cluster, error) {
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	stager := staging.New(t, a.conf, a.logger)
	res := resolver.New(t, a.conf, a.rarity, a.logger)

	clusters := make([]*Cluster, len(proposals))
	for i, p := range proposals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := stager.Stage(p, source)
		if err != nil {
			return nil, fmt.Errorf("staging proposal %d: %w", i, err)
		}
		clusters[i] = c
		a.metrics.ClusterStaged(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stageConcurrency)
	for i := range clusters {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored, err := res.ScoreCluster(clusters[i].ClusterID)
			if err != nil {
				return err
			}
			clusters[i] = scored
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range clusters {
		a.fireStaged(ctx, c)
	}
	return clusters, nil
}

// ResolveCluster applies a resolution action (hold, skip, merge, create_new,
// confirm_merge) to a staged cluster. A merge refused by an unconfirmed
// identity conflict returns the conflict-blocked Outcome together with
// ErrConflictBlocked; nothing is written in that case.
func (a *App) ResolveCluster(ctx context.Context, tenantName, clusterID, action, agent string) (*Outcome, error) {
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	res := resolver.New(t, a.conf, a.rarity, a.logger)
	outcome, err := res.ResolveCluster(clusterID, action, agent)
	if outcome != nil {
		a.metrics.ClusterResolved(ctx, outcome.Action)
		for _, c := range outcome.Conflicts {
			a.metrics.ConflictDetected(ctx, string(c.ConflictType))
		}
		for _, c := range outcome.AutoResolved {
			a.metrics.ConflictDetected(ctx, string(c.ConflictType))
		}
	}
	if err != nil {
		return outcome, err
	}
	a.fireResolved(ctx, outcome)
	return outcome, nil
}

// ReviewQueue returns the tenant's pending clusters, least certain first:
// ascending association confidence puts the clusters most in need of human
// judgment at the front.
func (a *App) ReviewQueue(ctx context.Context, tenantName string) ([]*Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	clusters, err := t.ListClusters()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].AssociationConfidence < clusters[j].AssociationConfidence
	})
	return clusters, nil
}

// ScoreCluster re-scores one cluster against the current graph.
func (a *App) ScoreCluster(ctx context.Context, tenantName, clusterID string) (*Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	return resolver.New(t, a.conf, a.rarity, a.logger).ScoreCluster(clusterID)
}

// GetCluster reads one staged cluster.
func (a *App) GetCluster(ctx context.Context, tenantName, clusterID string) (*Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	return t.GetCluster(clusterID)
}

// GetEntity reads one canonical entity.
func (a *App) GetEntity(ctx context.Context, tenantName, entityID string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	return t.GetEntity(entityID)
}

// ResolveConflict settles one recorded conflict on an entity with keep_a,
// keep_b, or keep_both, and returns the updated entity.
func (a *App) ResolveConflict(ctx context.Context, tenantName, entityID, conflictID, choice, agent string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	res := resolver.New(t, a.conf, a.rarity, a.logger)
	if _, err := res.ResolveConflict(entityID, conflictID, choice, agent); err != nil {
		return nil, err
	}
	return t.GetEntity(entityID)
}

// ── Spokes ─────────────────────────────────────────────────────────────────────

// CreateSpoke stores a new spoke, minting an id when none is set.
func (a *App) CreateSpoke(ctx context.Context, tenantName string, spoke *Spoke) (*Spoke, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	if spoke.ID == "" {
		u := uuid.New()
		spoke.ID = "spoke-" + hex.EncodeToString(u[:4])
	}
	if err := t.PutSpoke(spoke); err != nil {
		return nil, err
	}
	return spoke, nil
}

// GetSpoke reads one spoke.
func (a *App) GetSpoke(ctx context.Context, tenantName, spokeID string) (*Spoke, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	return t.GetSpoke(spokeID)
}

// ListSpokes returns the tenant's spokes sorted by id.
func (a *App) ListSpokes(ctx context.Context, tenantName string) ([]*Spoke, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	byID, err := t.Spokes()
	if err != nil {
		return nil, err
	}
	out := make([]*Spoke, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateSpoke applies fn to an existing spoke and persists the result.
func (a *App) UpdateSpoke(ctx context.Context, tenantName, spokeID string, fn func(*Spoke) error) (*Spoke, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	return t.UpdateSpoke(spokeID, fn)
}

// SetCenteredEntity anchors a spoke on an existing entity.
func (a *App) SetCenteredEntity(ctx context.Context, tenantName, spokeID, entityID string) (*Spoke, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	return t.SetCenteredEntity(spokeID, entityID)
}

// DeleteSpoke removes a spoke. The default spoke is undeletable; a non-default
// spoke that still contains entities requires force.
func (a *App) DeleteSpoke(ctx context.Context, tenantName, spokeID string, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return err
	}
	return t.DeleteSpoke(spokeID, force)
}

// ── Gap analysis & templates ───────────────────────────────────────────────────

// AnalyzeGaps scores a spoke against a provisioning template and returns the
// scorecard. tierAdjustments override field tiers for this run on top of the
// spoke's stored adjustments.
func (a *App) AnalyzeGaps(ctx context.Context, tenantName, spokeID, templateType string, tierAdjustments map[string]NecessityTier) (*Scorecard, error) {
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	card, err := gap.New(t, a.registry, a.classifier, a.logger).AnalyzeGaps(ctx, spokeID, templateType, tierAdjustments)
	if err != nil {
		return nil, err
	}
	a.metrics.GapRun(ctx, time.Since(start))
	return card, nil
}

// Templates returns the normalized template catalog sorted by id.
func (a *App) Templates() []*Template {
	return a.registry.List()
}

// GetTemplate reads one normalized template by id.
func (a *App) GetTemplate(id string) (*Template, error) {
	return a.registry.Get(id)
}

// ── Connector tokens ───────────────────────────────────────────────────────────

// SetToken seals a connector token into the tenant's token envelope. A vault
// key must be configured.
func (a *App) SetToken(ctx context.Context, tenantName, provider, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.vlt == nil {
		return fmt.Errorf("%w: no vault key configured", ErrValidation)
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return err
	}
	return t.SetToken(a.vlt, provider, token)
}

// TokenProviders lists the providers with a stored token. Token values are
// never returned here.
func (a *App) TokenProviders(ctx context.Context, tenantName string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.vlt == nil {
		return nil, fmt.Errorf("%w: no vault key configured", ErrValidation)
	}
	t, err := a.tenant(tenantName)
	if err != nil {
		return nil, err
	}
	return t.TokenProviders(a.vlt)
}

// ── Hooks ──────────────────────────────────────────────────────────────────────

func (a *App) fireStaged(ctx context.Context, c *Cluster) {
	for _, h := range a.hooks {
		if err := h.OnClusterStaged(ctx, *c); err != nil {
			a.logger.Warn("staging hook OnClusterStaged failed", "error", err, "cluster_id", c.ClusterID)
		}
	}
}

func (a *App) fireResolved(ctx context.Context, o *Outcome) {
	for _, h := range a.hooks {
		if err := h.OnClusterResolved(ctx, *o); err != nil {
			a.logger.Warn("staging hook OnClusterResolved failed", "error", err, "cluster_id", o.ClusterID)
		}
	}
}

// ── Provider auto-detection ────────────────────────────────────────────────────

func newClassifier(cfg config.Config, logger *slog.Logger) gap.Classifier {
	switch cfg.ClassifierProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when LODESTONE_CLASSIFIER_PROVIDER=openai")
			return gap.NoopClassifier{}
		}
		logger.Info("document classifier: openai", "model", cfg.OpenAIModel)
		return gap.NewResilientClassifier(gap.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ClassifierTimeout))
	case "ollama":
		logger.Info("document classifier: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return gap.NewResilientClassifier(gap.NewOllamaClassifier(cfg.OllamaURL, cfg.OllamaModel, cfg.ClassifierTimeout))
	case "noop":
		logger.Info("document classifier: noop (signal-based classification only)")
		return gap.NoopClassifier{}
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("document classifier: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
			return gap.NewResilientClassifier(gap.NewOllamaClassifier(cfg.OllamaURL, cfg.OllamaModel, cfg.ClassifierTimeout))
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("document classifier: openai (auto-detected)", "model", cfg.OpenAIModel)
			return gap.NewResilientClassifier(gap.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ClassifierTimeout))
		}
		logger.Info("no document classifier available, using signal-based classification only")
		return gap.NoopClassifier{}
	}
}

func ollamaReachable(baseURL string) bool {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(c, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func newVault(cfg config.Config) (*vault.Vault, error) {
	if cfg.VaultKeyPath != "" {
		data, err := os.ReadFile(cfg.VaultKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		return vault.NewKeyBase64(strings.TrimSpace(string(data)))
	}
	if cfg.VaultPassphrase != "" {
		return vault.NewPassphrase(cfg.VaultPassphrase)
	}
	return nil, nil
}
