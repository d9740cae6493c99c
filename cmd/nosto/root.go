package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/nosto/config"
)

var (
	manifestPath string
	profileName  string
	debug        bool
	dryRun       bool
	journalDir   string
	metricsAddr  string
	otelEndpoint string
	otelInsecure bool
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "nosto",
		Short: "Declarative EC2 provisioning",
		Long: `Nosto - Declarative EC2 Provisioning

Nosto compiles security group and host declarations from a YAML
manifest into an idempotent operation graph. No state files: the
cloud is read fresh on every run, security groups converge by full
rule replacement, and hosts are replaced rather than mutated.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
)

// Execute runs the root command with the signal-aware context.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Nosto {{.Version}} - Declarative EC2 Provisioning
`)

	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "f", "nosto.yaml", "Manifest file path")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", defaultProfile(), "Credential profile declared in the manifest")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Log operations without executing them")
	rootCmd.PersistentFlags().StringVar(&journalDir, "journal-dir", "", "Directory for operation journals (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "Prometheus metrics address (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP gRPC collector endpoint (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&otelInsecure, "otel-insecure", false, "Use an insecure OTLP connection")
}

// defaultProfile resolves the profile selector once at startup.
func defaultProfile() string {
	if p := os.Getenv("NOSTO_PROFILE"); p != "" {
		return p
	}
	return config.DefaultProfile
}
