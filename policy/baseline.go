package policy

import "context"

// Baseline guardrails applied unless the operator opts out. They catch
// the classic footguns: world-open ports beyond the documented ssh/http
// pair, and nonsensical disk sizes.
const baselineRego = `package skiff.baseline

import rego.v1

deny contains msg if {
	some rule in input.ingress
	rule.cidr == "0.0.0.0/0"
	not rule.port in {22, 80}
	msg := sprintf("ingress opens port %d to 0.0.0.0/0", [rule.port])
}

warn contains msg if {
	some rule in input.ingress
	rule.cidr == "0.0.0.0/0"
	msg := sprintf("port %d is reachable from any address", [rule.port])
}

deny contains msg if {
	input.spec.disk_gib <= 0
	msg := "disk size must be positive"
}
`

// LoadBaseline compiles and registers the built-in guardrails
func (e *Engine) LoadBaseline(ctx context.Context) error {
	return e.LoadPolicy(ctx, "baseline", baselineRego)
}
