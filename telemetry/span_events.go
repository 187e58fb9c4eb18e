package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordStateObservedEvent emits a structured span event for a VM sighting
func RecordStateObservedEvent(
	span trace.Span,
	name string,
	instanceID string,
	state string,
	provider string,
	region string,
) {
	if span == nil {
		return
	}

	span.AddEvent("vm.state.observed", trace.WithAttributes(
		attribute.String("event.type", "vm.state.observed"),
		attribute.String("vm.name", name),
		attribute.String("vm.instance_id", instanceID),
		attribute.String("vm.state", state),
		attribute.String("provider", provider),
		attribute.String("region", region),
	))
}

// RecordCreateIssuedEvent emits a structured span event for an instance launch
func RecordCreateIssuedEvent(
	span trace.Span,
	name string,
	instanceID string,
	imageID string,
	instanceType string,
	failures int64,
) {
	if span == nil {
		return
	}

	span.AddEvent("vm.create.issued", trace.WithAttributes(
		attribute.String("event.type", "vm.create.issued"),
		attribute.String("vm.name", name),
		attribute.String("vm.instance_id", instanceID),
		attribute.String("vm.image_id", imageID),
		attribute.String("vm.instance_type", instanceType),
		attribute.Int64("create.failures", failures),
	))
}

// RecordBackoffEvent emits a structured span event for a backoff sleep
func RecordBackoffEvent(
	span trace.Span,
	name string,
	failures int64,
	delaySeconds float64,
	cause string,
) {
	if span == nil {
		return
	}

	span.AddEvent("vm.create.backoff", trace.WithAttributes(
		attribute.String("event.type", "vm.create.backoff"),
		attribute.String("vm.name", name),
		attribute.Int64("create.failures", failures),
		attribute.Float64("backoff.delay_seconds", delaySeconds),
		attribute.String("cause", cause),
	))
}

// RecordPolicyDenialEvent emits a structured span event for a policy denial
func RecordPolicyDenialEvent(
	span trace.Span,
	name string,
	denials []string,
	warnings []string,
) {
	if span == nil {
		return
	}

	span.AddEvent("vm.policy.denied", trace.WithAttributes(
		attribute.String("event.type", "vm.policy.denied"),
		attribute.String("vm.name", name),
		attribute.StringSlice("policy.denials", denials),
		attribute.StringSlice("policy.warnings", warnings),
	))
}

// RecordReconcileCompletedEvent emits a structured span event when a
// reconcile operation reaches its goal state
func RecordReconcileCompletedEvent(
	span trace.Span,
	operation string,
	name string,
	instanceID string,
	finalState string,
	attempts int64,
	durationSeconds float64,
) {
	if span == nil {
		return
	}

	span.AddEvent("vm.reconcile.completed", trace.WithAttributes(
		attribute.String("event.type", "vm.reconcile.completed"),
		attribute.String("reconcile.operation", operation),
		attribute.String("vm.name", name),
		attribute.String("vm.instance_id", instanceID),
		attribute.String("vm.final_state", finalState),
		attribute.Int64("reconcile.attempts", attempts),
		attribute.Float64("duration.seconds", durationSeconds),
	))
}
