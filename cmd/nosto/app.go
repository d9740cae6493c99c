package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/nosto/config"
	"github.com/yairfalse/nosto/journal"
	"github.com/yairfalse/nosto/knife"
	"github.com/yairfalse/nosto/lifecycle"
	"github.com/yairfalse/nosto/ops"
	"github.com/yairfalse/nosto/providers/aws"
	"github.com/yairfalse/nosto/reconciler"
	"github.com/yairfalse/nosto/telemetry"
)

// app holds everything a command needs after composition: the parsed
// manifest, the operation registry and the side channels to close.
type app struct {
	config   *config.Config
	profile  config.Profile
	registry *ops.Registry
	journal  *journal.Journal
	metrics  *telemetry.Provider
}

// buildApp loads the manifest, resolves the credential profile and
// wires the operation graph. Security groups register before hosts,
// each list in declaration order.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	profile, err := cfg.Profile(profileName)
	if err != nil {
		return nil, err
	}

	client, err := aws.New(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws client: %w", err)
	}

	metrics, err := telemetry.NewProvider(ctx, telemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	var j *journal.Journal
	if journalDir != "" {
		j, err = journal.Open(journalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
	}

	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	registry := ops.NewRegistry(ops.Options{
		Journal: j,
		Metrics: metrics,
		DryRun:  dryRun,
	})

	groups := reconciler.New(client)
	hosts := lifecycle.New(client, knife.ExecRunner{}, profile)

	for _, spec := range cfg.SecurityGroups {
		registry.RegisterSecurityGroup(spec, groups)
	}
	for _, spec := range cfg.Hosts {
		registry.RegisterHost(spec, hosts)
	}

	return &app{
		config:   cfg,
		profile:  profile,
		registry: registry,
		journal:  j,
		metrics:  metrics,
	}, nil
}

// Close flushes the side channels. Failures are logged, not returned:
// the run's outcome is already decided by the time we get here.
func (a *app) Close(ctx context.Context) {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Warn().Err(err).Msg("journal close failed")
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}
}

func telemetryConfig() telemetry.Config {
	return telemetry.Config{
		Endpoint:    otelEndpoint,
		Insecure:    otelInsecure,
		ServiceName: "nosto",
		Traces:      telemetry.TracesConfig{Enabled: otelEndpoint != "", SampleRate: 1.0},
		Metrics: telemetry.MetricsConfig{
			Enabled:    otelEndpoint != "",
			Prometheus: metricsAddr != "",
		},
	}
}

// serveMetrics exposes /metrics for the duration of the run.
func serveMetrics(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	log.Info().Str("addr", addr).Msg("starting metrics server")
	if err := http.ListenAndServe(addr, nil); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server error")
	}
}
