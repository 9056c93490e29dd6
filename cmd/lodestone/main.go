package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone"
	"github.com/lodestone-ai/lodestone/internal/model"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	dataDir     string
	templateArg string
	verbose     bool

	app *lodestone.App
)

var rootCmd = &cobra.Command{
	Use:   "lodestone",
	Short: "Lodestone - staged knowledge-graph provisioning",
	Long: `Lodestone stages extracted entity proposals as signal clusters, scores
them against a tenant's knowledge graph, and walks them through human
review into canonical entities. Gap analysis scores each spoke against a
provisioning template and says what is still missing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		opts := []lodestone.Option{
			lodestone.WithLogger(logger),
			lodestone.WithVersion(version),
		}
		if dataDir != "" {
			opts = append(opts, lodestone.WithDataDir(dataDir))
		}
		if templateArg != "" {
			opts = append(opts, lodestone.WithTemplateDir(templateArg))
		}
		var err error
		app, err = lodestone.New(opts...)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		return app.Close(cmd.Context())
	},
}

var stageCmd = &cobra.Command{
	Use:   "stage <tenant> <extraction.json>",
	Short: "Stage and score an extraction batch",
	Long: `Reads a JSON array of extracted entity proposals, stages each one as a
signal cluster, and scores it against the tenant graph. Prints the scored
clusters as JSON.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		var proposals []*lodestone.ExtractedEntity
		if err := json.Unmarshal(data, &proposals); err != nil {
			return fmt.Errorf("parse extraction file: %w", err)
		}
		source := lodestone.Source{
			Type:        sourceType,
			URL:         sourceURL,
			ExtractedAt: model.Now(),
		}
		clusters, err := app.StageAndScoreExtraction(cmd.Context(), args[0], proposals, source)
		if err != nil {
			return err
		}
		return printJSON(clusters)
	},
}

var (
	sourceType string
	sourceURL  string
)

var queueCmd = &cobra.Command{
	Use:   "queue <tenant>",
	Short: "Show the review queue, least confident first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clusters, err := app.ReviewQueue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(clusters)
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <tenant> <cluster-id>",
	Short: "Re-score one cluster against the current graph",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cluster, err := app.ScoreCluster(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cluster)
	},
}

var agent string

var resolveCmd = &cobra.Command{
	Use:   "resolve <tenant> <cluster-id> <action>",
	Short: "Apply a resolution action to a cluster",
	Long: `Actions: hold, skip, merge, create_new, confirm_merge.

A merge refused by an unconfirmed identity conflict prints the
conflict-blocked outcome and exits nonzero.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := app.ResolveCluster(cmd.Context(), args[0], args[1], args[2], agent)
		if lodestone.IsConflictBlocked(err) {
			_ = printJSON(outcome)
			return err
		}
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

var conflictCmd = &cobra.Command{
	Use:   "conflict <tenant> <entity-id> <conflict-id> <choice>",
	Short: "Resolve a recorded conflict on an entity",
	Long:  `Choices: keep_a, keep_b, keep_both. Prints the updated entity.`,
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := app.ResolveConflict(cmd.Context(), args[0], args[1], args[2], args[3], agent)
		if err != nil {
			return err
		}
		return printJSON(entity)
	},
}

var entityCmd = &cobra.Command{
	Use:   "entity <tenant> <entity-id>",
	Short: "Show one canonical entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := app.GetEntity(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(entity)
	},
}

var spokeCmd = &cobra.Command{
	Use:   "spoke",
	Short: "Manage spokes",
}

var spokeName, spokeDescription string

var spokeCreateCmd = &cobra.Command{
	Use:   "create <tenant>",
	Short: "Create a spoke",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spoke, err := app.CreateSpoke(cmd.Context(), args[0], &lodestone.Spoke{
			Name:        spokeName,
			Description: spokeDescription,
		})
		if err != nil {
			return err
		}
		return printJSON(spoke)
	},
}

var spokeListCmd = &cobra.Command{
	Use:   "list <tenant>",
	Short: "List spokes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spokes, err := app.ListSpokes(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(spokes)
	},
}

var spokeSetCenterCmd = &cobra.Command{
	Use:   "set-center <tenant> <spoke-id> <entity-id>",
	Short: "Anchor a spoke on an entity",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		spoke, err := app.SetCenteredEntity(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return printJSON(spoke)
	},
}

var forceDelete bool

var spokeDeleteCmd = &cobra.Command{
	Use:   "delete <tenant> <spoke-id>",
	Short: "Delete a spoke",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.DeleteSpoke(cmd.Context(), args[0], args[1], forceDelete)
	},
}

var tierFlags []string

var gapsCmd = &cobra.Command{
	Use:   "gaps <tenant> <spoke-id> <template-type>",
	Short: "Run gap analysis for a spoke against a template",
	Long: `Scores the spoke's entities and source documents against the named
provisioning template and prints the scorecard as JSON.

Per-run tier overrides: --tier field_id=BLOCKING (repeatable).`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		adjustments, err := parseTierFlags(tierFlags)
		if err != nil {
			return err
		}
		card, err := app.AnalyzeGaps(cmd.Context(), args[0], args[1], args[2], adjustments)
		if err != nil {
			return err
		}
		return printJSON(card)
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the normalized template catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(app.Templates())
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage sealed connector tokens",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <tenant> <provider>",
	Short: "Seal a connector token (read from stdin)",
	Long: `Reads the token value from stdin so it never lands in shell history,
then seals it into the tenant's token envelope. Requires a configured
vault key (LODESTONE_VAULT_KEY or LODESTONE_VAULT_PASSPHRASE).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read token from stdin: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return errors.New("empty token")
		}
		return app.SetToken(cmd.Context(), args[0], args[1], token)
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list <tenant>",
	Short: "List providers with a stored token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		providers, err := app.TokenProviders(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(providers)
	},
}

func parseTierFlags(flags []string) (map[string]lodestone.NecessityTier, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]lodestone.NecessityTier, len(flags))
	for _, f := range flags {
		field, tier, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --tier %q, want field_id=TIER", f)
		}
		out[field] = lodestone.NecessityTier(strings.ToUpper(tier))
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "root directory for tenant record stores (default $LODESTONE_DATA_DIR or ./data)")
	rootCmd.PersistentFlags().StringVar(&templateArg, "template-dir", "", "directory of provisioning template files")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	stageCmd.Flags().StringVar(&sourceType, "source-type", "web_research", "source type for the batch")
	stageCmd.Flags().StringVar(&sourceURL, "source-url", "", "source URL for the batch")

	resolveCmd.Flags().StringVar(&agent, "agent", "cli", "agent name recorded in provenance")
	conflictCmd.Flags().StringVar(&agent, "agent", "cli", "agent name recorded in provenance")

	spokeCreateCmd.Flags().StringVar(&spokeName, "name", "", "spoke name")
	spokeCreateCmd.Flags().StringVar(&spokeDescription, "description", "", "spoke description")
	_ = spokeCreateCmd.MarkFlagRequired("name")
	spokeDeleteCmd.Flags().BoolVar(&forceDelete, "force", false, "delete even if the spoke still contains entities")
	spokeCmd.AddCommand(spokeCreateCmd, spokeListCmd, spokeSetCenterCmd, spokeDeleteCmd)

	gapsCmd.Flags().StringArrayVar(&tierFlags, "tier", nil, "per-run tier override, field_id=TIER (repeatable)")

	tokenCmd.AddCommand(tokenSetCmd, tokenListCmd)

	rootCmd.AddCommand(stageCmd, queueCmd, scoreCmd, resolveCmd, conflictCmd,
		entityCmd, spokeCmd, gapsCmd, templatesCmd, tokenCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(1)
	}
}
