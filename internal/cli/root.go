// Package cli provides the command-line interface for MarketLens.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/cli/commands"
	"github.com/marketlens/marketlens/internal/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marketlens",
		Short: "MarketLens - Market Data and News Analysis Backend",
		Long: `MarketLens is a stock market data and AI news analysis backend.

It syncs KOSPI, KOSDAQ and NASDAQ snapshots, crawls and analyzes financial
news with Gemini, and serves the feed, ranking, recommendation and chatbot
APIs over HTTP.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Log)

			cmd.SetContext(commands.NewContext(cmd.Context(), cfg, logger))

			if cfg.Log.Level == "debug" {
				if used := config.ConfigFileUsed(); used != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Market data and news analysis backend
`)

	// Global persistent flags. Kebab-case names map onto dotted config
	// keys, e.g. --database-host sets database.host.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./marketlens.yaml)")
	rootCmd.PersistentFlags().String("server-host", "", "HTTP listen host")
	rootCmd.PersistentFlags().Int("server-port", 0, "HTTP listen port")
	rootCmd.PersistentFlags().String("database-host", "", "Postgres host")
	rootCmd.PersistentFlags().Int("database-port", 0, "Postgres port")
	rootCmd.PersistentFlags().String("database-name", "", "Postgres database name")
	rootCmd.PersistentFlags().String("database-user", "", "Postgres user")
	rootCmd.PersistentFlags().String("database-password", "", "Postgres password")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis URL for the analysis queue")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewCreateSuperuserCommand())
	rootCmd.AddCommand(commands.NewSyncCommand())
	rootCmd.AddCommand(commands.NewCrawlCommand())
	rootCmd.AddCommand(commands.NewWorkerCommand())
	rootCmd.AddCommand(commands.NewTrendsCommand())
	rootCmd.AddCommand(commands.NewThemesCommand())
	rootCmd.AddCommand(commands.NewNewsCommand())
	rootCmd.AddCommand(commands.NewTemplatesCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for MarketLens.

To load completions:

Bash:
  $ source <(marketlens completion bash)

Zsh:
  $ marketlens completion zsh > "${fpath[1]}/_marketlens"

Fish:
  $ marketlens completion fish | source
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
