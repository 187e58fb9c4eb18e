package bundler

import (
	"context"
	"strings"
	"testing"
)

func TestRegistryFromRepo(t *testing.T) {
	tests := []struct {
		repo string
		want string
	}{
		{"123456789012.dkr.ecr.us-east-1.amazonaws.com/training", "123456789012.dkr.ecr.us-east-1.amazonaws.com"},
		{"docker.io/library/app", "docker.io"},
		{"localhost:5000/app", "localhost:5000"},
		{"plain-repo", "plain-repo"},
	}
	for _, tt := range tests {
		if got := registryFromRepo(tt.repo); got != tt.want {
			t.Errorf("registryFromRepo(%q) = %q, want %q", tt.repo, got, tt.want)
		}
	}
}

func TestList(t *testing.T) {
	have := List()
	for _, want := range []string{"ecr", "s3"} {
		found := false
		for _, name := range have {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("List() = %v, missing %s", have, want)
		}
	}
}

func TestGet_UnknownType(t *testing.T) {
	_, err := Get(context.Background(), "ftp", Config{})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error = %v, want unknown bundler", err)
	}
	// The error names what is available.
	if !strings.Contains(err.Error(), "ecr") || !strings.Contains(err.Error(), "s3") {
		t.Errorf("error %q should list registered types", err)
	}
}

func TestGet_ECRRequiresRepo(t *testing.T) {
	_, err := Get(context.Background(), "ecr", Config{Region: "us-east-1"})
	if err == nil || !strings.Contains(err.Error(), "docker_repo") {
		t.Fatalf("error = %v, want missing docker_repo", err)
	}
}

func TestGet_S3RequiresBucket(t *testing.T) {
	_, err := Get(context.Background(), "s3", Config{Region: "us-east-1"})
	if err == nil || !strings.Contains(err.Error(), "s3_bucket") {
		t.Fatalf("error = %v, want missing s3_bucket", err)
	}
}
