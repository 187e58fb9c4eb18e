package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/skiffworks/skiff/policy"
	"github.com/skiffworks/skiff/providers"
	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/types"
	"github.com/skiffworks/skiff/wal"
)

// EnsureRunning converges the spec toward a running instance and
// returns its provider id. Safe to call repeatedly; an instance that
// already runs is found, never duplicated.
func (r *Reconciler) EnsureRunning(ctx context.Context, spec types.InstanceSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if err := r.opts.Ingress.Validate(); err != nil {
		return "", err
	}

	opID := uuid.NewString()
	started := r.clock.Now()

	ctx, span := telemetry.Tracer.Start(ctx, "reconciler.ensure_running",
		trace.WithAttributes(
			attribute.String("vm.name", spec.Name),
			attribute.String("op.id", opID),
		))
	defer span.End()

	r.logger.LogSpanStart(ctx, "reconciler.ensure_running",
		attribute.String("vm.name", spec.Name),
		attribute.String("op.id", opID))

	if err := r.admitCreation(ctx, span, opID, spec); err != nil {
		return "", err
	}

	instanceID, attempts, err := r.convergeToRunning(ctx, span, opID, spec)

	finalState := ""
	if err == nil {
		finalState = string(types.StateRunning)
	}
	r.finishOp(ctx, span, opID, "ensure_running", spec.Name, instanceID, finalState, attempts, started, err)

	return instanceID, err
}

// admitCreation runs loaded policies before anything reaches the
// provider. A denial journals a skipped entry and aborts the operation.
func (r *Reconciler) admitCreation(ctx context.Context, span trace.Span, opID string, spec types.InstanceSpec) error {
	if r.policy == nil {
		return nil
	}

	verdict, err := r.policy.EvaluateCreation(ctx, policy.Input{
		Name:        spec.Name,
		Spec:        spec,
		Ingress:     r.opts.Ingress,
		Environment: r.opts.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate policy for %s: %w", spec.Name, err)
	}

	for _, warning := range verdict.Warnings {
		r.logger.WithContext(ctx).Warn().
			Str("vm", spec.Name).
			Str("warning", warning).
			Msg("policy warning")
	}

	if verdict.Allowed {
		return nil
	}

	telemetry.PolicyDenials.Add(ctx, 1)
	telemetry.RecordPolicyDenialEvent(span, spec.Name, verdict.Denials, verdict.Warnings)
	r.logger.LogPolicyDenial(ctx, spec.Name, verdict.Denials)
	r.journalOutcome(wal.EntrySkipped, opID, spec.Name, denialData{
		Name:     spec.Name,
		Denials:  verdict.Denials,
		Warnings: verdict.Warnings,
	}, nil)

	return fmt.Errorf("%w: %s", ErrPolicyDenied, strings.Join(verdict.Denials, "; "))
}

// convergeToRunning is the main loop: observe, then create, wait or
// finish depending on what the provider reports.
func (r *Reconciler) convergeToRunning(ctx context.Context, span trace.Span, opID string, spec types.InstanceSpec) (string, int, error) {
	deadline := r.deadlineFor()
	securityGroupID := ""
	failures := 0
	attempts := 0

	for {
		if err := r.checkBudget(ctx, deadline); err != nil {
			return "", attempts, err
		}

		telemetry.ReconcileAttempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", "ensure_running"),
		))

		record, err := r.observe(ctx, span, opID, spec.Name)
		if err != nil {
			return "", attempts, err
		}

		switch state := types.StatusOf(record); state {
		case types.StateRunning:
			return record.ID, attempts, nil

		case types.StateAbsent, types.StateTerminated:
			decision := decisionData{
				Name:   spec.Name,
				Action: "create",
				Reason: "instance " + strings.ToLower(string(state)),
			}
			if err := r.journalStep(wal.EntryDecided, opID, spec.Name, decision); err != nil {
				return "", attempts, err
			}

			attempts++
			err := r.launch(ctx, span, opID, spec, &securityGroupID, failures)
			if err == nil {
				// Poll immediately so the fresh instance is picked up
				continue
			}
			if !providers.IsRetryable(err) {
				return "", attempts, fmt.Errorf("failed to create %s: %w", spec.Name, err)
			}

			delay := backoffDelay(failures, r.opts.BackoffCap)
			failures++
			if r.opts.MaxAttempts > 0 && failures >= r.opts.MaxAttempts {
				return "", attempts, fmt.Errorf("%w: %d create attempts for %s, last error: %v",
					ErrRetriesExhausted, attempts, spec.Name, err)
			}

			r.noteBackoff(ctx, span, spec.Name, failures, delay, err)
			if err := r.clock.Sleep(ctx, delay); err != nil {
				return "", attempts, err
			}

		default:
			// Pending or unknown settles on its own; ask again later
			if state == types.StateUnknown {
				r.logger.LogUnknownState(ctx, spec.Name, record.RawState)
			}
			if err := r.clock.Sleep(ctx, r.opts.PollInterval); err != nil {
				return "", attempts, err
			}
		}
	}
}

// launch resolves the security group on first need and issues one
// create call, journaling the attempt either way.
func (r *Reconciler) launch(ctx context.Context, span trace.Span, opID string, spec types.InstanceSpec, securityGroupID *string, failures int) error {
	if *securityGroupID == "" && r.opts.SecurityGroup != "" {
		id, err := r.compute.EnsureSecurityGroup(ctx, r.opts.SecurityGroup, r.opts.Ingress)
		if err != nil {
			r.noteProviderError(ctx, "ensure_security_group", err)
			return fmt.Errorf("failed to ensure security group %s: %w", r.opts.SecurityGroup, err)
		}
		*securityGroupID = id
	}

	attempt := attemptData{Name: spec.Name, Action: "create", Failures: failures}
	if err := r.journalStep(wal.EntryExecuting, opID, spec.Name, attempt); err != nil {
		return err
	}
	r.logger.LogCreateAttempt(ctx, spec.Name, failures)

	record, err := r.compute.Create(ctx, spec, *securityGroupID)
	if err != nil {
		r.countProviderError(ctx, "create", err)
		r.logger.LogCreateFailure(ctx, spec.Name, spec.ImageID, spec.InstanceType, spec.KeyPair, err)
		r.journalOutcome(wal.EntryFailed, opID, spec.Name, attempt, err)
		return err
	}

	telemetry.InstancesCreated.Add(ctx, 1)
	telemetry.RecordCreateIssuedEvent(span, spec.Name, record.ID, spec.ImageID, spec.InstanceType, int64(failures))
	r.journalOutcome(wal.EntryExecuted, opID, record.ID, launchData{
		Name:         spec.Name,
		InstanceID:   record.ID,
		ImageID:      spec.ImageID,
		InstanceType: spec.InstanceType,
	}, nil)
	r.recordSighting(record)

	return nil
}
