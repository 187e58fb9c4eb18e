package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/skiffworks/skiff/internal/daemon"
	"github.com/skiffworks/skiff/reconciler"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch <name>",
	Short: "Continuously reconcile a VM and serve metrics",
	Long: `Run the convergence loop as a daemon: re-reconcile the named VM on an
interval, sweep every managed instance into the observation store, and
serve metrics with health probes.

Endpoints:
  /metrics   Prometheus metrics
  /healthz   Liveness
  /readyz    Readiness, degraded when the journal needs attention`,
	Example: `  skiff watch web-0
  skiff watch web-0 --interval 2m --metrics :9091`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Reconcile interval (default from config)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics", "", "Metrics server address (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchInterval > 0 {
		cfg.Watch.Interval = watchInterval
	}
	if watchMetricsAddr != "" {
		cfg.Watch.MetricsAddr = watchMetricsAddr
	}

	flush := initTelemetry(ctx, cfg)
	defer flush()

	compute, err := openCompute(ctx, cfg)
	if err != nil {
		return err
	}

	journal, store, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer func() { _ = journal.Close() }()

	engine, err := buildPolicy(ctx, cfg)
	if err != nil {
		return err
	}

	rec := reconciler.New(compute, reconcileOptions(cfg)).
		WithJournal(journal).
		WithStore(store).
		WithPolicy(engine)

	d := daemon.New(daemon.Config{
		Interval: cfg.Watch.Interval,
		Spec:     cfg.InstanceSpec(name),
	}, rec, compute, store, journal)

	server := &http.Server{
		Addr:              cfg.Watch.MetricsAddr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Printf("🔄 Watching %s every %s\n", name, cfg.Watch.Interval)
	fmt.Printf("📊 Metrics: http://localhost%s/metrics\n", cfg.Watch.MetricsAddr)

	var group run.Group
	{
		loopCtx, cancel := context.WithCancel(ctx)
		group.Add(func() error {
			return d.Start(loopCtx)
		}, func(error) {
			cancel()
		})
	}
	{
		group.Add(func() error {
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}
	group.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = group.Run()
	var sig run.SignalError
	switch {
	case errors.As(err, &sig):
		fmt.Printf("\n👋 Received %s, shutting down\n", sig.Signal)
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Println("\n👋 Shutting down")
		return nil
	}
	return err
}
