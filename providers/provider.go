package providers

import (
	"context"
	"fmt"

	"github.com/skiffworks/skiff/types"
)

// Compute is the narrow surface the reconciler drives. Implementations
// talk to one cloud; the reconciler never imports an SDK.
type Compute interface {
	// FindByName locates the instance carrying the given name tag.
	// Returns nil with no error when nothing matches.
	FindByName(ctx context.Context, name string) (*types.InstanceRecord, error)

	// Create launches one instance for the spec. securityGroupID may be
	// empty, in which case the account default group applies.
	Create(ctx context.Context, spec types.InstanceSpec, securityGroupID string) (*types.InstanceRecord, error)

	// Terminate asks the provider to destroy the instance. The instance
	// keeps existing in a shutting-down state for a while afterwards.
	Terminate(ctx context.Context, instanceID string) error

	// EnsureSecurityGroup returns the id of the named group, creating it
	// with the given ingress rules when it does not exist yet.
	EnsureSecurityGroup(ctx context.Context, name string, policy types.IngressPolicy) (string, error)

	// ListManaged returns every live instance this tool provisioned.
	ListManaged(ctx context.Context) ([]types.InstanceRecord, error)

	// Provider info
	Name() string
	Region() string
}

// Config holds provider configuration
type Config struct {
	Region  string
	Profile string
}

// Factory creates a provider instance
type Factory func(ctx context.Context, config Config) (Compute, error)

// Registry of available providers
var providers = make(map[string]Factory)

// Register registers a new provider factory
func Register(name string, factory Factory) {
	providers[name] = factory
}

// Get creates a provider instance by name
func Get(ctx context.Context, name string, config Config) (Compute, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return factory(ctx, config)
}

// List returns available provider names
func List() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
