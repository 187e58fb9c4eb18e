// Package daemon runs the supervision loop behind skiff watch: it
// re-reconciles one named VM on an interval, sweeps every managed
// instance into the observation store, and serves metrics and health
// endpoints for scraping.
package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/skiffworks/skiff/storage"
	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/types"
	"github.com/skiffworks/skiff/wal"
)

// Maintenance (journal cleanup, store compaction) runs every Nth cycle.
const maintainEvery = 10

// keepRevisions bounds how much observation history compaction retains.
const keepRevisions = 1000

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	Spec     types.InstanceSpec
}

// Reconciler is the one operation the daemon repeats.
type Reconciler interface {
	EnsureRunning(ctx context.Context, spec types.InstanceSpec) (string, error)
}

// Observer lists what the provider currently reports as managed.
type Observer interface {
	ListManaged(ctx context.Context) ([]types.InstanceRecord, error)
}

// Daemon manages continuous reconciliation of a single VM plus an
// observation sweep over everything this tool manages.
type Daemon struct {
	cfg        Config
	reconciler Reconciler
	compute    Observer
	store      *storage.Store
	journal    *wal.WAL
	logger     *telemetry.Logger
	startTime  time.Time
	cycles     atomic.Int64
}

// New creates a daemon. store and journal are required; the watch
// command always opens both.
func New(cfg Config, r Reconciler, o Observer, store *storage.Store, journal *wal.WAL) *Daemon {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Daemon{
		cfg:        cfg,
		reconciler: r,
		compute:    o,
		store:      store,
		journal:    journal,
		logger:     telemetry.NewLogger("daemon"),
		startTime:  time.Now(),
	}
}

// Start runs one cycle immediately, then repeats on the interval until
// the context is cancelled. A failed cycle is logged, not fatal; the
// next tick tries again.
func (d *Daemon) Start(ctx context.Context) error {
	d.runCycle(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

func (d *Daemon) runCycle(ctx context.Context) {
	cycle := d.cycles.Add(1)
	started := time.Now()

	if _, err := d.reconciler.EnsureRunning(ctx, d.cfg.Spec); err != nil {
		d.logger.WithContext(ctx).Error().
			Err(err).
			Str("vm", d.cfg.Spec.Name).
			Int64("cycle", cycle).
			Msg("reconcile cycle failed")
	}

	d.sweep(ctx)

	if cycle%maintainEvery == 0 {
		d.maintain(ctx)
	}

	d.logger.WithContext(ctx).Debug().
		Int64("cycle", cycle).
		Dur("took", time.Since(started)).
		Msg("cycle complete")
}

// sweep records every managed instance the provider reports and
// tombstones stored VMs that no longer show up.
func (d *Daemon) sweep(ctx context.Context) {
	records, err := d.compute.ListManaged(ctx)
	if err != nil {
		d.logger.WithContext(ctx).Error().Err(err).Msg("managed instance sweep failed")
		return
	}

	if len(records) > 0 {
		if _, err := d.store.RecordObservationBatch(records); err != nil {
			d.logger.WithContext(ctx).Error().Err(err).Msg("failed to record sweep observations")
		}
	}

	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.Name] = true
	}
	for _, state := range d.store.List() {
		if state.Exists && !seen[state.Name] {
			if _, err := d.store.RecordDisappearance(state.Name); err != nil {
				d.logger.WithContext(ctx).Error().Err(err).Str("vm", state.Name).Msg("failed to record disappearance")
			}
		}
	}

	telemetry.ManagedInstances.Record(ctx, int64(len(records)))
	telemetry.StorageRevision.Record(ctx, d.store.CurrentRevision())
}

// maintain prunes expired journal files and compacts old observation
// revisions.
func (d *Daemon) maintain(ctx context.Context) {
	if stats, err := d.journal.Cleanup(); err != nil {
		d.logger.WithContext(ctx).Error().Err(err).Msg("journal cleanup failed")
	} else if stats.FilesRemoved > 0 {
		d.logger.WithContext(ctx).Info().
			Int("files_removed", stats.FilesRemoved).
			Int64("bytes_freed", stats.BytesFreed).
			Msg("journal cleanup")
	}

	if err := d.store.Compact(keepRevisions); err != nil {
		d.logger.WithContext(ctx).Error().Err(err).Msg("store compaction failed")
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status  string
	Uptime  int64
	Cycles  int64
	Journal wal.Health
}

// Health returns daemon health status. The journal's condition decides
// readiness; a degraded journal still serves but needs attention.
func (d *Daemon) Health() HealthStatus {
	journal := d.journal.Health()
	status := "healthy"
	if !journal.Healthy {
		status = "degraded"
	}
	return HealthStatus{
		Status:  status,
		Uptime:  int64(time.Since(d.startTime).Seconds()),
		Cycles:  d.cycles.Load(),
		Journal: journal,
	}
}

// CycleCount returns total cycles run
func (d *Daemon) CycleCount() int64 {
	return d.cycles.Load()
}
