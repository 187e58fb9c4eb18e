package config

import (
	"fmt"
	"os"
)

// starterConfig is what `skiff config init` writes. The ingress rules
// are the legacy reachability pair; the baseline policy warns on them.
const starterConfig = `version: v1
provider: aws

# Journal and observation store location. Defaults to ~/.skiff.
# data_dir: /var/lib/skiff

aws:
  region: us-east-1
  ami_id: ami-CHANGEME
  instance_type: t3.micro
  key_pair: ""
  disk_gib: 256
  security_group: skiff-managed
  ingress:
    - protocol: tcp
      port: 22
      cidr: 0.0.0.0/0
    - protocol: tcp
      port: 80
      cidr: 0.0.0.0/0

bundle:
  docker_repo: ""
  dockerfile: Dockerfile
  s3_bucket: ""
  s3_prefix: bundles
  excludes: [".git", "__pycache__", ".pytest_cache", ".venv"]

reconcile:
  poll_interval: 10s
  backoff_cap: 512s
  max_attempts: 0
  deadline: 0s

watch:
  interval: 60s
  metrics_addr: ":9090"

policy:
  dir: ""

otel:
  endpoint: ""
  insecure: true
  service_name: skiff
  environment: dev
  sample_rate: 1.0

log:
  level: info
`

// WriteStarter writes the starter config file, refusing to overwrite
// an existing one.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
