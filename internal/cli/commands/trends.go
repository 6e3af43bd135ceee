package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/reco"
	"github.com/marketlens/marketlens/internal/store"
)

// NewTrendsCommand creates the trends command group.
func NewTrendsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Generate and analyze trend keyword news",
	}

	cmd.AddCommand(newTrendsGenerateCommand())
	cmd.AddCommand(newTrendsAnalyzeCommand())
	return cmd
}

func newTrendsGenerateCommand() *cobra.Command {
	var scopeFlag string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate trend keywords and collect their news",
		Long: `Ask the model for today's trend keywords per scope, verify each
proposed article against the live page and store the survivors. Without
--scope both KR and US are generated, followed by an analysis sweep.`,
		Example: `  # Both scopes
  marketlens trends generate

  # Korean market only
  marketlens trends generate --scope KR`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			client, err := newLLM(ctx, cfg, logger)
			if err != nil {
				return err
			}

			analyzer := reco.NewTrendAnalyzer(st, client, logger)
			gen := reco.NewTrendGenerator(st, client, analyzer, cfg.Crawler, logger)

			if strings.TrimSpace(scopeFlag) == "" {
				return gen.Generate(ctx)
			}
			scope := reco.ParseScope(scopeFlag)
			if scope != store.MarketKR && scope != store.MarketUS {
				return fmt.Errorf("scope must be KR or US")
			}
			return gen.GenerateScope(ctx, scope, time.Now())
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Scope to generate (KR|US, default both)")
	return cmd
}

func newTrendsAnalyzeCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze stored trend news that has no analysis yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			client, err := newLLM(ctx, cfg, logger)
			if err != nil {
				return err
			}

			done, err := reco.NewTrendAnalyzer(st, client, logger).AnalyzePending(ctx, limit)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "trend analysis finished: %d articles analyzed\n", done)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Max articles to analyze (0 for the default batch)")
	return cmd
}
