package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// downCmd represents the down command
var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Destroy every declared resource",
	Long: `Destroy every declared security group and host in declaration order.

Resources that no longer exist are skipped without error. The first
failure aborts the remaining operations.`,
	Example: `  nosto down                      # Tear down everything in nosto.yaml
  nosto down --profile production # Use the production profile
  nosto down --dry-run            # Log operations without executing`,
	RunE: runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	log.Info().
		Str("manifest", manifestPath).
		Str("profile", app.profile.Name).
		Msg("tearing resources down")

	return app.registry.Down(ctx)
}
