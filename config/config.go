// Package config resolves the tool configuration from one YAML file.
// The resolved struct is passed down explicitly; nothing reads settings
// from package-level state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skiffworks/skiff/types"
)

// DefaultPath is where the config file lives unless told otherwise
const DefaultPath = "skiff.yaml"

// Config is the full tool configuration
type Config struct {
	Version   string          `yaml:"version"`
	Provider  string          `yaml:"provider"`
	DataDir   string          `yaml:"data_dir,omitempty"`
	AWS       AWSConfig       `yaml:"aws"`
	Bundle    BundleConfig    `yaml:"bundle,omitempty"`
	Reconcile ReconcileConfig `yaml:"reconcile,omitempty"`
	Watch     WatchConfig     `yaml:"watch,omitempty"`
	Policy    PolicyConfig    `yaml:"policy,omitempty"`
	OTEL      OTELConfig      `yaml:"otel,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// AWSConfig describes the VM shape and where it lives
type AWSConfig struct {
	Region        string              `yaml:"region"`
	Profile       string              `yaml:"profile,omitempty"`
	ImageID       string              `yaml:"ami_id"`
	InstanceType  string              `yaml:"instance_type"`
	KeyPair       string              `yaml:"key_pair,omitempty"`
	DiskGiB       int32               `yaml:"disk_gib"`
	IAMProfile    string              `yaml:"iam_profile,omitempty"`
	SecurityGroup string              `yaml:"security_group,omitempty"`
	Ingress       types.IngressPolicy `yaml:"ingress,omitempty"`
}

// BundleConfig configures the workspace bundlers
type BundleConfig struct {
	DockerRepo string   `yaml:"docker_repo,omitempty"`
	Dockerfile string   `yaml:"dockerfile,omitempty"`
	S3Bucket   string   `yaml:"s3_bucket,omitempty"`
	S3Prefix   string   `yaml:"s3_prefix,omitempty"`
	Excludes   []string `yaml:"excludes,omitempty"`
}

// ReconcileConfig tunes the convergence loop
type ReconcileConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BackoffCap   time.Duration `yaml:"backoff_cap"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Deadline     time.Duration `yaml:"deadline"`
}

// WatchConfig tunes the supervision daemon
type WatchConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// PolicyConfig points at operator guardrails
type PolicyConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// OTELConfig configures telemetry export
type OTELConfig struct {
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name,omitempty"`
	Environment string  `yaml:"environment,omitempty"`
	SampleRate  float64 `yaml:"sample_rate,omitempty"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Load reads, defaults and validates a config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration used when no file exists.
// The AWS region stays empty so the SDK's own resolution chain applies.
func Default() *Config {
	cfg := &Config{Version: "v1", Provider: "aws"}
	applyDefaults(cfg)
	return cfg
}

// Discover resolves the config path: the explicit flag first, then
// $SKIFF_CONFIG, then ./skiff.yaml. Empty with no error means run on
// built-in defaults.
func Discover(flagPath string) (string, error) {
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err != nil {
			return "", fmt.Errorf("config file %s: %w", flagPath, err)
		}
		return flagPath, nil
	}

	if env := os.Getenv("SKIFF_CONFIG"); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("config file %s from SKIFF_CONFIG: %w", env, err)
		}
		return env, nil
	}

	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath, nil
	}

	return "", nil
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.AWS.Region == "" {
		return fmt.Errorf("aws.region is required")
	}
	if c.AWS.DiskGiB < 0 {
		return fmt.Errorf("aws.disk_gib cannot be negative")
	}
	if err := c.AWS.Ingress.Validate(); err != nil {
		return fmt.Errorf("aws.ingress: %w", err)
	}
	return nil
}

// InstanceSpec builds the launch spec for one named VM
func (c *Config) InstanceSpec(name string) types.InstanceSpec {
	return types.InstanceSpec{
		Name:         name,
		ImageID:      c.AWS.ImageID,
		InstanceType: c.AWS.InstanceType,
		KeyPair:      c.AWS.KeyPair,
		DiskGiB:      c.AWS.DiskGiB,
		IAMProfile:   c.AWS.IAMProfile,
	}
}

// applyDefaults fills the gaps a sparse config leaves. A configured
// security group with no ingress rules gets the legacy ssh/http pair;
// the baseline policy warns about them on every creation.
func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = "aws"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.AWS.DiskGiB == 0 {
		cfg.AWS.DiskGiB = 256
	}
	if cfg.AWS.SecurityGroup != "" && len(cfg.AWS.Ingress) == 0 {
		cfg.AWS.Ingress = types.DefaultIngressPolicy()
	}
	if cfg.Bundle.Dockerfile == "" {
		cfg.Bundle.Dockerfile = "Dockerfile"
	}
	if cfg.Bundle.S3Prefix == "" {
		cfg.Bundle.S3Prefix = "bundles"
	}
	if cfg.Reconcile.PollInterval <= 0 {
		cfg.Reconcile.PollInterval = 10 * time.Second
	}
	if cfg.Reconcile.BackoffCap <= 0 {
		cfg.Reconcile.BackoffCap = 512 * time.Second
	}
	if cfg.Watch.Interval <= 0 {
		cfg.Watch.Interval = 60 * time.Second
	}
	if cfg.Watch.MetricsAddr == "" {
		cfg.Watch.MetricsAddr = ":9090"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "skiff"
	}
	if cfg.OTEL.SampleRate <= 0 || cfg.OTEL.SampleRate > 1 {
		cfg.OTEL.SampleRate = 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// defaultDataDir is where the journal and observation store live when
// the config does not say otherwise.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skiff"
	}
	return filepath.Join(home, ".skiff")
}
