package commands

import (
	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the MarketLens HTTP API server.

Serves the market ranking, news feed, recommendation and chatbot APIs and
watches the prompt template directory for changes. Shuts down gracefully
on SIGINT or SIGTERM.`,
		Example: `  # Serve on the configured address (default 0.0.0.0:8000)
  marketlens serve

  # Serve on a different port
  marketlens serve --server-port 9000`,
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

			logger.Info("starting server", "addr", cfg.Server.Addr())
			return server.New(*cfg, st, client, client, logger).Run(ctx)
		},
	}
}
