// Package bundler packages a workspace for execution on a managed VM.
// Two families exist: container images built with the Docker daemon and
// pushed to ECR, and tar.gz archives uploaded to S3. Bundle names follow
// the same naming contract as VM names.
package bundler

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Bundler packages one workspace directory and publishes it under a name.
type Bundler interface {
	// Type returns the registry key of this bundler family.
	Type() string

	// Bundle packages root and publishes it as name. It returns the
	// location of the published artifact, an image reference or an
	// s3:// URI.
	Bundle(ctx context.Context, name, root string) (string, error)
}

// Config carries the bundle section of the resolved configuration plus
// the AWS client settings the bundlers need.
type Config struct {
	Region     string
	Profile    string
	DockerRepo string
	Dockerfile string
	S3Bucket   string
	S3Prefix   string
	Excludes   []string
}

// Factory creates a bundler instance
type Factory func(ctx context.Context, config Config) (Bundler, error)

// Registry of available bundlers
var bundlers = make(map[string]Factory)

// Register registers a new bundler factory
func Register(bundlerType string, factory Factory) {
	bundlers[bundlerType] = factory
}

// Get creates a bundler instance by type
func Get(ctx context.Context, bundlerType string, config Config) (Bundler, error) {
	factory, exists := bundlers[bundlerType]
	if !exists {
		return nil, fmt.Errorf("bundler %s not found (have: %s)", bundlerType, strings.Join(List(), ", "))
	}
	return factory(ctx, config)
}

// List returns available bundler types
func List() []string {
	names := make([]string, 0, len(bundlers))
	for name := range bundlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// registryFromRepo extracts the registry host from a repo reference such
// as "123456789012.dkr.ecr.us-east-1.amazonaws.com/training". The host
// is what the push authenticates against.
func registryFromRepo(repo string) string {
	return strings.SplitN(repo, "/", 2)[0]
}
