package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// opsCmd represents the ops command
var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List every operation compiled from the manifest",
	Example: `  nosto ops
  nosto ops -f infra/nosto.yaml`,
	RunE: runOps,
}

func init() {
	rootCmd.AddCommand(opsCmd)
}

func runOps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	for _, name := range app.registry.Operations() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
