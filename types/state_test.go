package types

import "testing"

func TestStateFromRaw(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want LifecycleState
	}{
		{name: "running", raw: "running", want: StateRunning},
		{name: "pending", raw: "pending", want: StatePending},
		{name: "stopping is transitional", raw: "stopping", want: StatePending},
		{name: "shutting-down is transitional", raw: "shutting-down", want: StatePending},
		{name: "terminated", raw: "terminated", want: StateTerminated},
		{name: "stopped is not modeled", raw: "stopped", want: StateUnknown},
		{name: "garbled input", raw: "charging-flux-capacitor", want: StateUnknown},
		{name: "empty string", raw: "", want: StateUnknown},
		{name: "case sensitive", raw: "Running", want: StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateFromRaw(tt.raw); got != tt.want {
				t.Errorf("StateFromRaw(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name   string
		record *InstanceRecord
		want   LifecycleState
	}{
		{name: "nil record is absent", record: nil, want: StateAbsent},
		{name: "running record", record: &InstanceRecord{ID: "i-123", RawState: "running"}, want: StateRunning},
		{name: "pending record", record: &InstanceRecord{ID: "i-123", RawState: "pending"}, want: StatePending},
		{name: "terminated record", record: &InstanceRecord{ID: "i-123", RawState: "terminated"}, want: StateTerminated},
		{name: "record with no state", record: &InstanceRecord{ID: "i-123"}, want: StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.record); got != tt.want {
				t.Errorf("StatusOf() = %v, want %v", got, tt.want)
			}
			if got := tt.record.Status(); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLifecycleState_IsTransitional(t *testing.T) {
	transitional := map[LifecycleState]bool{
		StateAbsent:     false,
		StatePending:    true,
		StateRunning:    false,
		StateTerminated: false,
		StateUnknown:    true,
	}

	for state, want := range transitional {
		if got := state.IsTransitional(); got != want {
			t.Errorf("%s.IsTransitional() = %v, want %v", state, got, want)
		}
	}
}
