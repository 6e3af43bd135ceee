package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/chat"
)

// NewTemplatesCommand creates the templates command group.
func NewTemplatesCommand() *cobra.Command {
	var dir string

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Seed chat prompt templates from YAML files",
		Long: `Load prompt template YAML files from the template directory and
store the ones whose keys do not exist yet. Existing keys are left
untouched; the running server picks up edits through its file watcher.`,
		Example: `  # Seed from the configured directory
  marketlens templates seed

  # Seed from a specific directory
  marketlens templates seed --dir ./prompts`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			if strings.TrimSpace(dir) == "" {
				dir = cfg.Chat.TemplatesDir
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			created, err := chat.SeedTemplates(cmd.Context(), st, dir, logger)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d templates from %s\n", created, dir)
			return nil
		},
	}
	seed.Flags().StringVar(&dir, "dir", "", "Template directory (default from config)")

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage chat prompt templates",
	}
	cmd.AddCommand(seed)
	return cmd
}
