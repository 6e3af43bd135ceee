package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/news"
)

// NewNewsCommand creates the news command group.
func NewNewsCommand() *cobra.Command {
	var days int

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete articles past the retention window",
		Long: `Delete crawled articles (and their analyses) older than the
retention window. The window defaults to the crawler retention setting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			if days <= 0 {
				days = cfg.Crawler.RetentionDays
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			deleted, err := news.Purge(cmd.Context(), st, days, logger)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "purged %d articles older than %d days\n", deleted, days)
			return nil
		},
	}
	purge.Flags().IntVar(&days, "days", 0, "Retention window in days (0 for the configured default)")

	cmd := &cobra.Command{
		Use:   "news",
		Short: "Maintain the article store",
	}
	cmd.AddCommand(purge)
	return cmd
}
