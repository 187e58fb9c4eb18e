package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skiffworks/skiff/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Loader reads operator-supplied .rego files into an engine
type Loader struct {
	dir    string
	engine *Engine
	logger *telemetry.Logger
	tracer trace.Tracer
}

// NewLoader creates a loader for a policy directory
func NewLoader(dir string, engine *Engine) *Loader {
	return &Loader{
		dir:    dir,
		engine: engine,
		logger: telemetry.NewLogger("policy-loader"),
		tracer: otel.Tracer("policy-loader"),
	}
}

// LoadAll compiles every .rego file under the directory
func (l *Loader) LoadAll(ctx context.Context) error {
	ctx, span := l.tracer.Start(ctx, "policy_loader.load_all",
		trace.WithAttributes(attribute.String("policy.dir", l.dir)))
	defer span.End()

	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return fmt.Errorf("policy directory does not exist: %s", l.dir)
	}

	return filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !strings.HasSuffix(path, ".rego") {
			return nil
		}

		return l.loadFile(ctx, path)
	})
}

func (l *Loader) loadFile(ctx context.Context, path string) error {
	if err := l.validatePath(path); err != nil {
		return fmt.Errorf("invalid policy path %s: %w", path, err)
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".rego")

	if err := l.engine.LoadPolicy(ctx, name, string(content)); err != nil {
		return fmt.Errorf("failed to load policy %s from %s: %w", name, path, err)
	}

	l.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Str("file_path", path).
		Msg("policy file loaded")

	return nil
}

// validatePath rejects paths escaping the policy directory
func (l *Loader) validatePath(path string) error {
	cleanPath := filepath.Clean(path)

	dir := filepath.Clean(l.dir)
	relPath, err := filepath.Rel(dir, cleanPath)
	if err != nil {
		return fmt.Errorf("failed to resolve relative path: %w", err)
	}

	if strings.HasPrefix(relPath, "..") {
		return fmt.Errorf("path traversal detected")
	}

	return nil
}
