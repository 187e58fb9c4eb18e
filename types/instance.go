package types

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrInvalidName reports a VM name that violates the naming contract.
// Callers fail fast on this before any provider call is made.
var ErrInvalidName = errors.New("invalid vm name")

// namePattern enforces lowercase DNS-label style names: a leading letter,
// then letters, digits and hyphens, never a trailing hyphen.
var namePattern = regexp.MustCompile(`^[a-z]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks name against the naming contract shared by every
// resource this tool provisions (instances, security groups, bundles).
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidName, name, namePattern.String())
	}
	return nil
}

// InstanceSpec is the desired shape of a single VM. It is a value type;
// callers hand a copy to the reconciler and the copy never mutates.
type InstanceSpec struct {
	Name         string            `yaml:"name" json:"name"`
	ImageID      string            `yaml:"image_id" json:"image_id"`
	InstanceType string            `yaml:"instance_type" json:"instance_type"`
	KeyPair      string            `yaml:"key_pair,omitempty" json:"key_pair,omitempty"`
	DiskGiB      int32             `yaml:"disk_gib" json:"disk_gib"`
	IAMProfile   string            `yaml:"iam_profile,omitempty" json:"iam_profile,omitempty"`
	Labels       map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Validate rejects specs that can never converge before the provider is
// ever contacted.
func (s InstanceSpec) Validate() error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if s.ImageID == "" {
		return fmt.Errorf("spec %s: image id is required", s.Name)
	}
	if s.InstanceType == "" {
		return fmt.Errorf("spec %s: instance type is required", s.Name)
	}
	if s.DiskGiB <= 0 {
		return fmt.Errorf("spec %s: disk size must be a positive number of GiB, got %d", s.Name, s.DiskGiB)
	}
	return nil
}

// InstanceRecord is what the provider reports back about a live VM.
// A nil record means the VM does not exist.
type InstanceRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RawState     string    `json:"raw_state"`
	ImageID      string    `json:"image_id,omitempty"`
	InstanceType string    `json:"instance_type,omitempty"`
	PublicIP     string    `json:"public_ip,omitempty"`
	PrivateIP    string    `json:"private_ip,omitempty"`
	LaunchedAt   time.Time `json:"launched_at,omitempty"`
	Tags         Tags      `json:"tags,omitempty"`
}

// IsManaged checks if this tool created the instance
func (r *InstanceRecord) IsManaged() bool {
	return r != nil && r.Tags.IsManaged()
}
