package types

import (
	"errors"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple lowercase", input: "vm", wantErr: false},
		{name: "single letter", input: "a", wantErr: false},
		{name: "hyphenated with digits", input: "my-vm-1", wantErr: false},
		{name: "digit tail", input: "node0", wantErr: false},
		{name: "uppercase rejected", input: "My-VM", wantErr: true},
		{name: "underscore rejected", input: "my_vm", wantErr: true},
		{name: "leading digit rejected", input: "1vm", wantErr: true},
		{name: "leading hyphen rejected", input: "-vm", wantErr: true},
		{name: "trailing hyphen rejected", input: "vm-", wantErr: true},
		{name: "empty rejected", input: "", wantErr: true},
		{name: "spaces rejected", input: "my vm", wantErr: true},
		{name: "dots rejected", input: "my.vm", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) error = %v, want ErrInvalidName", tt.input, err)
			}
		})
	}
}

func TestInstanceSpec_Validate(t *testing.T) {
	valid := InstanceSpec{
		Name:         "my-vm-1",
		ImageID:      "ami-0abc1234",
		InstanceType: "p4d.24xlarge",
		KeyPair:      "ops-key",
		DiskGiB:      256,
	}

	tests := []struct {
		name    string
		mutate  func(*InstanceSpec)
		wantErr bool
	}{
		{name: "valid spec", mutate: func(s *InstanceSpec) {}, wantErr: false},
		{name: "no key pair is fine", mutate: func(s *InstanceSpec) { s.KeyPair = "" }, wantErr: false},
		{name: "bad name", mutate: func(s *InstanceSpec) { s.Name = "My_VM" }, wantErr: true},
		{name: "missing image", mutate: func(s *InstanceSpec) { s.ImageID = "" }, wantErr: true},
		{name: "missing instance type", mutate: func(s *InstanceSpec) { s.InstanceType = "" }, wantErr: true},
		{name: "zero disk", mutate: func(s *InstanceSpec) { s.DiskGiB = 0 }, wantErr: true},
		{name: "negative disk", mutate: func(s *InstanceSpec) { s.DiskGiB = -8 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid
			tt.mutate(&spec)
			if err := spec.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstanceSpec_ValidateBadNameIsInvalidName(t *testing.T) {
	spec := InstanceSpec{Name: "My_VM", ImageID: "ami-1", InstanceType: "m5.large", DiskGiB: 10}
	if err := spec.Validate(); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Validate() error = %v, want ErrInvalidName", err)
	}
}

func TestInstanceRecord_IsManaged(t *testing.T) {
	tests := []struct {
		name   string
		record *InstanceRecord
		want   bool
	}{
		{
			name:   "managed instance",
			record: &InstanceRecord{ID: "i-123", Tags: Tags{SkiffManaged: true}},
			want:   true,
		},
		{
			name:   "foreign instance",
			record: &InstanceRecord{ID: "i-456", Tags: Tags{Name: "someone-elses"}},
			want:   false,
		},
		{
			name:   "nil record",
			record: nil,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.IsManaged(); got != tt.want {
				t.Errorf("IsManaged() = %v, want %v", got, tt.want)
			}
		})
	}
}
