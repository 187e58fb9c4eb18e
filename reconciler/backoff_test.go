package reconciler

import (
	"testing"
	"time"
)

func TestBackoffDelay_DoublesToCap(t *testing.T) {
	limit := 512 * time.Second

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		64 * time.Second,
		128 * time.Second,
		256 * time.Second,
		512 * time.Second,
		512 * time.Second,
	}

	for failures, expected := range want {
		got := backoffDelay(failures, limit)
		if got != expected {
			t.Errorf("backoffDelay(%d) = %v, want %v", failures, got, expected)
		}
	}
}

func TestBackoffDelay_CustomLimit(t *testing.T) {
	got := backoffDelay(4, 10*time.Second)
	if got != 10*time.Second {
		t.Errorf("backoffDelay(4) with 10s limit = %v, want 10s", got)
	}
}

func TestBackoffDelay_ZeroFailures(t *testing.T) {
	got := backoffDelay(0, 512*time.Second)
	if got != time.Second {
		t.Errorf("backoffDelay(0) = %v, want 1s", got)
	}
}
