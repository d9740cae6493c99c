package main

import (
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <operation>...",
	Short: "Execute named operations",
	Long: `Execute operations from the graph, each with its prerequisites,
in the order given. The first failure stops the run.

Operation names are namespaced per resource:

  security:<name>:create    converge one security group
  security:<name>:destroy   delete one security group
  host:<name>:spinup        replace and launch one host
  host:<name>:provision     bootstrap one host with knife
  host:<name>:create        spinup, then provision
  host:<name>:destroy       terminate one host`,
	Example: `  nosto run security:web:create
  nosto run host:app:provision
  nosto run security:web:create host:app:create --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	for _, name := range args {
		if err := app.registry.Run(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
