// Package policy evaluates OPA guardrails before any instance is
// created. Policies can deny a launch outright or attach warnings;
// they never modify infrastructure themselves.
package policy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine evaluates compiled Rego policies against creation requests
type Engine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// Input is the document policies evaluate
type Input struct {
	Name        string              `json:"name"`
	Spec        types.InstanceSpec  `json:"spec"`
	Ingress     types.IngressPolicy `json:"ingress"`
	Environment string              `json:"environment,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Verdict is the aggregated outcome across all loaded policies
type Verdict struct {
	Allowed  bool     `json:"allowed"`
	Denials  []string `json:"denials,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// New creates a policy engine with no policies loaded
func New() *Engine {
	return &Engine{
		logger:  telemetry.NewLogger("policy-engine"),
		tracer:  otel.Tracer("policy-engine"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// LoadPolicy compiles a Rego policy and registers it under name
func (e *Engine) LoadPolicy(ctx context.Context, name string, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "policy_engine.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.skiff"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("policy loaded")

	return nil
}

// PolicyCount returns the number of loaded policies
func (e *Engine) PolicyCount() int {
	return len(e.queries)
}

// EvaluateCreation runs every loaded policy against a creation request.
// With no policies loaded everything is allowed.
func (e *Engine) EvaluateCreation(ctx context.Context, input Input) (Verdict, error) {
	ctx, span := e.tracer.Start(ctx, "policy_engine.evaluate",
		trace.WithAttributes(
			attribute.String("vm.name", input.Name),
			attribute.Int("policies.loaded", len(e.queries))))
	defer span.End()

	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now()
	}

	verdict := Verdict{Allowed: true}

	for name, query := range e.queries {
		results, err := query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return Verdict{}, fmt.Errorf("policy %s evaluation failed: %w", name, err)
		}

		for _, result := range results {
			for _, expr := range result.Expressions {
				collectMessages(expr.Value, &verdict)
			}
		}
	}

	// Stable output regardless of policy map order
	sort.Strings(verdict.Denials)
	sort.Strings(verdict.Warnings)
	verdict.Allowed = len(verdict.Denials) == 0

	e.logger.WithContext(ctx).Debug().
		Str("vm", input.Name).
		Bool("allowed", verdict.Allowed).
		Strs("denials", verdict.Denials).
		Strs("warnings", verdict.Warnings).
		Msg("policy evaluation complete")

	return verdict, nil
}

// collectMessages walks the evaluated document gathering deny and warn
// sets at any nesting depth, so both `package skiff` and
// `package skiff.anything` policies work.
func collectMessages(value interface{}, verdict *Verdict) {
	doc, ok := value.(map[string]interface{})
	if !ok {
		return
	}

	for key, v := range doc {
		switch key {
		case "deny":
			verdict.Denials = append(verdict.Denials, messageStrings(v)...)
		case "warn":
			verdict.Warnings = append(verdict.Warnings, messageStrings(v)...)
		default:
			collectMessages(v, verdict)
		}
	}
}

// messageStrings extracts the string members of a rego set or array
func messageStrings(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}

	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
