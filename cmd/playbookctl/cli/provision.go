package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/spark-playbook/playbook/internal/identity"
	"github.com/spark-playbook/playbook/internal/profiles"
	"github.com/spark-playbook/playbook/internal/provision"
)

func newProvisionCommand() *cobra.Command {
	var in provision.Input
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a confirmed account with its profile and role",
		Example: `  playbookctl provision --email ceo@example.com --password 'changeme1' \
    --full-name "Avery Stone" --role principal`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			log := logger()
			provider := identity.NewProvider(
				identity.NewRepository(pool),
				// Provisioning never issues access tokens.
				identity.NewTokens(nil, 0),
				identity.LogMailer{PublicURL: cfg.PublicURL, Logger: log},
				log,
			)
			service := provision.NewService(provider, provision.ProfilesTx(profiles.NewRepository(pool)), log)
			userID, err := service.Provision(ctx, in)
			if err != nil {
				return err
			}
			cmd.Printf("provisioned %s as %s (user_id %s)\n", in.Email, in.Role, userID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Email, "email", "", "account email")
	flags.StringVar(&in.Password, "password", "", "initial password, at least 8 characters")
	flags.StringVar(&in.FullName, "full-name", "", "display name stored on the profile")
	flags.StringVar(&in.Role, "role", "", "role tag: principal, ea, gm, sales or manager")
	for _, name := range []string{"email", "password", "full-name", "role"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
