package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/skiffworks/skiff/providers"
	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/types"
	"github.com/skiffworks/skiff/wal"
)

// EnsureAbsent converges toward no instance carrying the name: locate,
// terminate when something is there, poll until the provider stops
// reporting it. A name that never existed converges immediately.
func (r *Reconciler) EnsureAbsent(ctx context.Context, name string) error {
	if err := types.ValidateName(name); err != nil {
		return err
	}

	opID := uuid.NewString()
	started := r.clock.Now()

	ctx, span := telemetry.Tracer.Start(ctx, "reconciler.ensure_absent",
		trace.WithAttributes(
			attribute.String("vm.name", name),
			attribute.String("op.id", opID),
		))
	defer span.End()

	r.logger.LogSpanStart(ctx, "reconciler.ensure_absent",
		attribute.String("vm.name", name),
		attribute.String("op.id", opID))

	attempts, err := r.convergeToAbsent(ctx, span, opID, name)

	finalState := ""
	if err == nil {
		finalState = string(types.StateAbsent)
	}
	r.finishOp(ctx, span, opID, "ensure_absent", name, "", finalState, attempts, started, err)

	return err
}

// convergeToAbsent observes until nothing is left, issuing at most one
// successful terminate along the way.
func (r *Reconciler) convergeToAbsent(ctx context.Context, span trace.Span, opID, name string) (int, error) {
	deadline := r.deadlineFor()
	failures := 0
	attempts := 0
	terminateIssued := false

	for {
		if err := r.checkBudget(ctx, deadline); err != nil {
			return attempts, err
		}

		telemetry.ReconcileAttempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", "ensure_absent"),
		))

		record, err := r.observe(ctx, span, opID, name)
		if err != nil {
			return attempts, err
		}

		state := types.StatusOf(record)
		if state == types.StateAbsent || state == types.StateTerminated {
			r.recordGone(name)
			return attempts, nil
		}

		if terminateIssued {
			// Already asked; the provider needs time to wind it down
			if err := r.clock.Sleep(ctx, r.opts.PollInterval); err != nil {
				return attempts, err
			}
			continue
		}

		decision := decisionData{
			Name:   name,
			Action: "terminate",
			Reason: "instance " + strings.ToLower(string(state)),
		}
		if err := r.journalStep(wal.EntryDecided, opID, name, decision); err != nil {
			return attempts, err
		}

		attempts++
		err = r.terminate(ctx, opID, name, record.ID, failures)
		if err == nil {
			terminateIssued = true
			continue
		}
		if !providers.IsRetryable(err) {
			return attempts, fmt.Errorf("failed to terminate %s: %w", name, err)
		}

		delay := backoffDelay(failures, r.opts.BackoffCap)
		failures++
		if r.opts.MaxAttempts > 0 && failures >= r.opts.MaxAttempts {
			return attempts, fmt.Errorf("%w: %d terminate attempts for %s, last error: %v",
				ErrRetriesExhausted, attempts, name, err)
		}

		r.noteBackoff(ctx, span, name, failures, delay, err)
		if err := r.clock.Sleep(ctx, delay); err != nil {
			return attempts, err
		}
	}
}

// terminate issues one terminate call, journaling the attempt either way
func (r *Reconciler) terminate(ctx context.Context, opID, name, instanceID string, failures int) error {
	attempt := attemptData{Name: name, Action: "terminate", Failures: failures}
	if err := r.journalStep(wal.EntryExecuting, opID, instanceID, attempt); err != nil {
		return err
	}

	if err := r.compute.Terminate(ctx, instanceID); err != nil {
		r.noteProviderError(ctx, "terminate", err)
		r.journalOutcome(wal.EntryFailed, opID, instanceID, attempt, err)
		return err
	}

	telemetry.InstancesTerminated.Add(ctx, 1)
	r.journalOutcome(wal.EntryExecuted, opID, instanceID, attempt, nil)
	r.logger.WithContext(ctx).Info().
		Str("vm", name).
		Str("instance_id", instanceID).
		Msg("terminate issued")

	return nil
}
