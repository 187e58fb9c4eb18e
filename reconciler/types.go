package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/skiffworks/skiff/policy"
	"github.com/skiffworks/skiff/types"
)

var (
	// ErrRetriesExhausted reports that MaxAttempts provider mutations in
	// a row failed with retryable errors.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrDeadlineExceeded reports that an Ensure call ran out of its
	// Deadline budget before the instance converged.
	ErrDeadlineExceeded = errors.New("reconcile deadline exceeded")

	// ErrPolicyDenied reports that a loaded policy blocked the creation.
	ErrPolicyDenied = errors.New("policy denied creation")
)

// Options tune the convergence loops. Zero fields pick up the defaults
// from DefaultOptions when the reconciler is constructed.
type Options struct {
	// PollInterval is how long to wait before re-describing an instance
	// that is still in a transitional state.
	PollInterval time.Duration

	// BackoffCap bounds the exponential backoff between failed provider
	// mutations.
	BackoffCap time.Duration

	// MaxAttempts caps failed create or terminate calls before the loop
	// gives up with ErrRetriesExhausted. Zero means keep trying.
	MaxAttempts int

	// Deadline is the wall-clock budget for one Ensure call. Zero means
	// no budget; the loop runs until the context says otherwise.
	Deadline time.Duration

	// SecurityGroup names the group to ensure and attach on creation.
	// Empty leaves the account default group in place.
	SecurityGroup string

	// Ingress is the rule set a created security group gets.
	Ingress types.IngressPolicy

	// Environment is forwarded to policy evaluation.
	Environment string
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		PollInterval: 10 * time.Second,
		BackoffCap:   512 * time.Second,
	}
}

// ObservationRecorder is the slice of the storage layer the reconciler
// writes sightings through.
type ObservationRecorder interface {
	RecordObservation(record types.InstanceRecord) (int64, error)
	RecordDisappearance(name string) (int64, error)
}

// Admission gates creation before anything reaches the provider.
type Admission interface {
	EvaluateCreation(ctx context.Context, input policy.Input) (policy.Verdict, error)
}

// observationData is journaled with every provider sighting
type observationData struct {
	Name       string `json:"name"`
	InstanceID string `json:"instance_id,omitempty"`
	State      string `json:"state"`
	Provider   string `json:"provider"`
	Region     string `json:"region"`
}

// decisionData records what the loop chose to do next and why
type decisionData struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// attemptData is journaled around each provider mutation
type attemptData struct {
	Name     string `json:"name"`
	Action   string `json:"action"`
	Failures int    `json:"failures"`
}

// launchData is journaled after a successful create call
type launchData struct {
	Name         string `json:"name"`
	InstanceID   string `json:"instance_id"`
	ImageID      string `json:"image_id"`
	InstanceType string `json:"instance_type"`
}

// denialData is journaled when policy blocks a creation
type denialData struct {
	Name     string   `json:"name"`
	Denials  []string `json:"denials"`
	Warnings []string `json:"warnings,omitempty"`
}

// resultData closes an operation out in the journal
type resultData struct {
	Operation  string `json:"operation"`
	Name       string `json:"name"`
	InstanceID string `json:"instance_id,omitempty"`
	FinalState string `json:"final_state,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
}
