package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/skiffworks/skiff/config"
	"github.com/skiffworks/skiff/policy"
	"github.com/skiffworks/skiff/providers"
	"github.com/skiffworks/skiff/reconciler"
	"github.com/skiffworks/skiff/storage"
	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/wal"

	// Register the AWS provider
	_ "github.com/skiffworks/skiff/providers/aws"
)

// loadConfig resolves and loads configuration for one command run and
// applies the log level it carries.
func loadConfig() (*config.Config, error) {
	path, err := config.Discover(flagConfig)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	applyLogLevel(cfg.Log.Level)
	return cfg, nil
}

// initTelemetry starts OTEL export and returns a flush function for
// defer. Telemetry failures never block the actual operation.
func initTelemetry(ctx context.Context, cfg *config.Config) func() {
	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.OTEL.Environment,
		OTELEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
		SampleRate:     cfg.OTEL.SampleRate,
	})
	if err != nil {
		telemetry.NewLogger("skiff").Warn().Err(err).Msg("telemetry init failed, continuing without export")
		return func() {}
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(flushCtx)
	}
}

// openCompute builds the configured cloud provider.
func openCompute(ctx context.Context, cfg *config.Config) (providers.Compute, error) {
	compute, err := providers.Get(ctx, cfg.Provider, providers.Config{
		Region:  cfg.AWS.Region,
		Profile: cfg.AWS.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
	}
	return compute, nil
}

// openState opens the journal and observation store under the data dir,
// creating it on first use.
func openState(cfg *config.Config) (*wal.WAL, *storage.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}

	journal, err := wal.Open(cfg.DataDir, wal.DefaultConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		_ = journal.Close()
		return nil, nil, fmt.Errorf("failed to open observation store: %w", err)
	}

	return journal, store, nil
}

// buildPolicy loads the creation baseline plus any operator policy dir.
func buildPolicy(ctx context.Context, cfg *config.Config) (*policy.Engine, error) {
	engine := policy.New()
	if err := engine.LoadBaseline(ctx); err != nil {
		return nil, fmt.Errorf("failed to load baseline policy: %w", err)
	}

	if cfg.Policy.Dir != "" {
		loader := policy.NewLoader(cfg.Policy.Dir, engine)
		if err := loader.LoadAll(ctx); err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", cfg.Policy.Dir, err)
		}
	}

	return engine, nil
}

// reconcileOptions maps config onto loop options. Zero config fields
// keep the loop defaults.
func reconcileOptions(cfg *config.Config) reconciler.Options {
	opts := reconciler.DefaultOptions()
	if cfg.Reconcile.PollInterval > 0 {
		opts.PollInterval = cfg.Reconcile.PollInterval
	}
	if cfg.Reconcile.BackoffCap > 0 {
		opts.BackoffCap = cfg.Reconcile.BackoffCap
	}
	opts.MaxAttempts = cfg.Reconcile.MaxAttempts
	opts.Deadline = cfg.Reconcile.Deadline
	opts.SecurityGroup = cfg.AWS.SecurityGroup
	opts.Ingress = cfg.AWS.Ingress
	opts.Environment = cfg.OTEL.Environment
	return opts
}

// buildReconciler wires the full convergence loop. The returned cleanup
// closes the journal and store.
func buildReconciler(ctx context.Context, cfg *config.Config) (*reconciler.Reconciler, func(), error) {
	compute, err := openCompute(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	journal, store, err := openState(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = store.Close()
		_ = journal.Close()
	}

	engine, err := buildPolicy(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	rec := reconciler.New(compute, reconcileOptions(cfg)).
		WithJournal(journal).
		WithStore(store).
		WithPolicy(engine)

	return rec, cleanup, nil
}
