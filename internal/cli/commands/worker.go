package commands

import (
	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/news"
)

// NewWorkerCommand creates the worker command group.
func NewWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "analyze",
		Short: "Consume the Redis analysis queue",
		Long: `Consume classification jobs from the Redis queue and run the
article analysis for each. Runs until interrupted.`,
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

			queue, err := news.NewQueue(cfg.Redis)
			if err != nil {
				return err
			}
			defer func() { _ = queue.Close() }()

			analyzer := news.NewAnalyzer(st, client, logger)
			logger.Info("analysis worker started", "queue", queue.Name())
			return news.NewWorker(queue, analyzer, logger).Run(ctx)
		},
	})

	return cmd
}
