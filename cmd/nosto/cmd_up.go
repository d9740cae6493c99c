package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// upCmd represents the up command
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create every declared resource",
	Long: `Create every declared security group and host in declaration order.

Security groups converge by full rule replacement: existing ingress
rules are revoked and the declared set is authorized. Hosts follow
replace semantics: a running instance with the same name is terminated
before the new one launches. The first failure aborts the remaining
operations; completed ones are not rolled back.`,
	Example: `  nosto up                              # Converge everything in nosto.yaml
  nosto up --profile production         # Use the production profile
  nosto up --dry-run                    # Log operations without executing
  nosto up --journal-dir ./journal      # Record an audit journal`,
	RunE: runUp,
}

func init() {
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	log.Info().
		Str("manifest", manifestPath).
		Str("profile", app.profile.Name).
		Int("security_groups", len(app.config.SecurityGroups)).
		Int("hosts", len(app.config.Hosts)).
		Msg("bringing resources up")

	return app.registry.Up(ctx)
}
