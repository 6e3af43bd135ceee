package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCreateSuperuserCommand creates the createsuperuser command.
func NewCreateSuperuserCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create or promote an administrative account",
		Long: `Create a superuser account for the given email, or promote the
existing account with that email. The account signs in through the normal
Google flow; this only sets the superuser flag.`,
		Example: `  marketlens createsuperuser --email admin@example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}

			cfg := ConfigFrom(cmd.Context())
			logger := LoggerFrom(cmd.Context())

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			u, err := st.EnsureSuperuser(cmd.Context(), email)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "superuser ready: %s (id %d)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email of the superuser account")
	return cmd
}
