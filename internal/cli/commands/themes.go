package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/reco"
)

// NewThemesCommand creates the themes command group.
func NewThemesCommand() *cobra.Command {
	var (
		scopeFlag string
		limit     int
	)

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Regenerate today's theme picks",
		Long: `Ask the model for today's investment theme picks and replace the
day's set. Without --scope all of ALL, KR and US are refreshed.`,
		Example: `  # All scopes, default pick count
  marketlens themes refresh

  # US only, three picks
  marketlens themes refresh --scope US --limit 3`,
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

			refresher := reco.NewThemeRefresher(st, client, logger)
			if strings.TrimSpace(scopeFlag) == "" {
				if err := refresher.Refresh(ctx, limit); err != nil {
					return err
				}
			} else {
				scope := reco.ParseScope(scopeFlag)
				// Theme pick days roll over on KST like the read side.
				now := time.Now().In(time.FixedZone("KST", 9*60*60))
				date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
				if err := refresher.RefreshScope(ctx, scope, date, limit); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "theme picks refreshed")
			return nil
		},
	}

	refresh.Flags().StringVar(&scopeFlag, "scope", "", "Scope to refresh (ALL|KR|US, default every scope)")
	refresh.Flags().IntVar(&limit, "limit", 0, "Picks per scope (1-5, 0 for the default)")

	cmd := &cobra.Command{
		Use:   "themes",
		Short: "Manage daily investment theme picks",
	}
	cmd.AddCommand(refresh)
	return cmd
}
