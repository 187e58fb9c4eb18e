// Package reconciler converges one VM at a time toward its desired
// lifecycle state: locate by name, mutate when reality disagrees, poll
// until the provider settles. Every step lands in the operation journal.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/skiffworks/skiff/providers"
	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/types"
	"github.com/skiffworks/skiff/wal"
)

// Reconciler drives one compute provider. Journal, store and policy are
// optional collaborators attached with the With methods; without them
// the loops still converge, they just leave no trail.
type Reconciler struct {
	compute providers.Compute
	opts    Options
	journal *wal.WAL
	store   ObservationRecorder
	policy  Admission
	logger  *telemetry.Logger
	clock   Clock
}

// New creates a reconciler for one provider
func New(compute providers.Compute, opts Options) *Reconciler {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaults.BackoffCap
	}

	return &Reconciler{
		compute: compute,
		opts:    opts,
		logger:  telemetry.NewLogger("reconciler"),
		clock:   realClock{},
	}
}

// WithJournal attaches the operation journal
func (r *Reconciler) WithJournal(w *wal.WAL) *Reconciler {
	r.journal = w
	return r
}

// WithStore attaches the observation store
func (r *Reconciler) WithStore(s ObservationRecorder) *Reconciler {
	r.store = s
	return r
}

// WithPolicy attaches the admission gate
func (r *Reconciler) WithPolicy(p Admission) *Reconciler {
	r.policy = p
	return r
}

// WithLogger replaces the default logger
func (r *Reconciler) WithLogger(l *telemetry.Logger) *Reconciler {
	r.logger = l
	return r
}

// WithClock replaces the wall clock, for tests
func (r *Reconciler) WithClock(c Clock) *Reconciler {
	r.clock = c
	return r
}

// observe asks the provider for the instance and fans the sighting out
// to journal, store, span and log. Any provider error here is fatal to
// the loop; a lookup that cannot be trusted is not worth retrying into.
func (r *Reconciler) observe(ctx context.Context, span trace.Span, opID, name string) (*types.InstanceRecord, error) {
	record, err := r.compute.FindByName(ctx, name)
	if err != nil {
		r.noteProviderError(ctx, "find_by_name", err)
		return nil, fmt.Errorf("failed to locate %s: %w", name, err)
	}

	state := types.StatusOf(record)
	data := observationData{
		Name:     name,
		State:    string(state),
		Provider: r.compute.Name(),
		Region:   r.compute.Region(),
	}
	if record != nil {
		data.InstanceID = record.ID
	}

	if err := r.journalStep(wal.EntryObserved, opID, name, data); err != nil {
		return nil, err
	}

	telemetry.RecordStateObservedEvent(span, name, data.InstanceID, data.State, data.Provider, data.Region)
	r.logger.LogObservation(ctx, name, data.State)
	r.recordSighting(record)

	return record, nil
}

// journalStep appends a pre-mutation entry when a journal is attached.
// Failing to journal before acting aborts the operation; nothing
// irreversible has happened yet.
func (r *Reconciler) journalStep(entryType wal.EntryType, opID, resourceID string, data interface{}) error {
	if r.journal == nil {
		return nil
	}
	if err := r.journal.Append(entryType, opID, resourceID, data); err != nil {
		return fmt.Errorf("failed to journal %s: %w", entryType, err)
	}
	return nil
}

// journalOutcome appends a post-mutation entry. The cloud action already
// happened, so journal trouble is logged and swallowed rather than
// stranding the instance mid-convergence.
func (r *Reconciler) journalOutcome(entryType wal.EntryType, opID, resourceID string, data interface{}, cause error) {
	if r.journal == nil {
		return
	}

	var err error
	if cause != nil {
		err = r.journal.AppendError(entryType, opID, resourceID, data, cause)
	} else {
		err = r.journal.Append(entryType, opID, resourceID, data)
	}
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("op_id", opID).
			Str("entry_type", string(entryType)).
			Msg("failed to journal outcome")
	}
}

// recordSighting caches the observation when a store is attached.
// Storage trouble never aborts convergence; the cloud is the truth.
func (r *Reconciler) recordSighting(record *types.InstanceRecord) {
	if r.store == nil || record == nil {
		return
	}
	if _, err := r.store.RecordObservation(*record); err != nil {
		r.logger.Error().
			Err(err).
			Str("name", record.Name).
			Msg("failed to record observation")
	}
}

// recordGone writes a disappearance tombstone when a store is attached
func (r *Reconciler) recordGone(name string) {
	if r.store == nil {
		return
	}
	if _, err := r.store.RecordDisappearance(name); err != nil {
		r.logger.Error().
			Err(err).
			Str("name", name).
			Msg("failed to record disappearance")
	}
}

// countProviderError counts a provider failure by kind
func (r *Reconciler) countProviderError(ctx context.Context, operation string, err error) {
	kind := "unknown"
	var pe *providers.Error
	if errors.As(err, &pe) {
		kind = pe.Kind.String()
	}

	telemetry.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("error.kind", kind),
	))
}

// noteProviderError counts and logs a provider failure by kind
func (r *Reconciler) noteProviderError(ctx context.Context, operation string, err error) {
	r.countProviderError(ctx, operation, err)
	r.logger.LogProviderError(ctx, operation, err)
}

// noteBackoff fans a backoff decision out to metrics, span and log
func (r *Reconciler) noteBackoff(ctx context.Context, span trace.Span, name string, failures int, delay time.Duration, cause error) {
	telemetry.BackoffSeconds.Record(ctx, delay.Seconds())
	telemetry.RecordBackoffEvent(span, name, int64(failures), delay.Seconds(), cause.Error())
	r.logger.LogBackoff(ctx, name, failures, delay.Seconds())
}

// deadlineFor computes the wall-clock cutoff for one Ensure call.
// Zero when no Deadline is configured.
func (r *Reconciler) deadlineFor() time.Time {
	if r.opts.Deadline <= 0 {
		return time.Time{}
	}
	return r.clock.Now().Add(r.opts.Deadline)
}

// checkBudget fails the loop once the context is done or the deadline
// has passed
func (r *Reconciler) checkBudget(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !deadline.IsZero() && !r.clock.Now().Before(deadline) {
		return fmt.Errorf("%w after %s", ErrDeadlineExceeded, r.opts.Deadline)
	}
	return nil
}

// finishOp closes an operation out in journal, metrics, span and log
func (r *Reconciler) finishOp(ctx context.Context, span trace.Span, opID, operation, name, instanceID, finalState string, attempts int, started time.Time, opErr error) {
	duration := r.clock.Now().Sub(started)
	telemetry.ReconcileDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))

	result := resultData{
		Operation:  operation,
		Name:       name,
		InstanceID: instanceID,
		FinalState: finalState,
		Attempts:   attempts,
		DurationMS: duration.Milliseconds(),
	}

	if opErr != nil {
		r.journalOutcome(wal.EntryFailed, opID, name, result, opErr)
		r.logger.LogSpanEnd(ctx, "reconciler."+operation, opErr)
		return
	}

	telemetry.RecordReconcileCompletedEvent(span, operation, name, instanceID, finalState, int64(attempts), duration.Seconds())
	r.journalOutcome(wal.EntryExecuted, opID, name, result, nil)
	r.logger.LogSpanEnd(ctx, "reconciler."+operation, nil)
}
