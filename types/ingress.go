package types

import (
	"fmt"
	"net"
)

// IngressRule opens one port to one CIDR block.
type IngressRule struct {
	Protocol string `yaml:"protocol" json:"protocol"`
	Port     int32  `yaml:"port" json:"port"`
	CIDR     string `yaml:"cidr" json:"cidr"`
}

// IngressPolicy is the full set of inbound rules a security group gets.
// The reconciler takes it from the caller instead of hardcoding one.
type IngressPolicy []IngressRule

// DefaultIngressPolicy opens SSH and HTTP to the world. This mirrors the
// historical behavior teams already depend on; pass your own policy to
// tighten it.
func DefaultIngressPolicy() IngressPolicy {
	return IngressPolicy{
		{Protocol: "tcp", Port: 22, CIDR: "0.0.0.0/0"},
		{Protocol: "tcp", Port: 80, CIDR: "0.0.0.0/0"},
	}
}

// Validate checks every rule parses before anything reaches the provider.
func (p IngressPolicy) Validate() error {
	for i, rule := range p {
		if rule.Protocol == "" {
			return fmt.Errorf("ingress rule %d: protocol is required", i)
		}
		if rule.Port < 1 || rule.Port > 65535 {
			return fmt.Errorf("ingress rule %d: port %d out of range", i, rule.Port)
		}
		if _, _, err := net.ParseCIDR(rule.CIDR); err != nil {
			return fmt.Errorf("ingress rule %d: bad cidr %q: %w", i, rule.CIDR, err)
		}
	}
	return nil
}
