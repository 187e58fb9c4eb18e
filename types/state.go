package types

// LifecycleState is the coarse VM state the reconciler plans against.
// Raw provider states collapse into these five.
type LifecycleState string

const (
	StateAbsent     LifecycleState = "ABSENT"
	StatePending    LifecycleState = "PENDING"
	StateRunning    LifecycleState = "RUNNING"
	StateTerminated LifecycleState = "TERMINATED"
	StateUnknown    LifecycleState = "UNKNOWN"
)

// StateFromRaw maps a raw provider state string to a lifecycle state.
// Total over all inputs: anything unrecognized, including a garbled or
// empty string, maps to StateUnknown rather than an error.
func StateFromRaw(raw string) LifecycleState {
	switch raw {
	case "running":
		return StateRunning
	case "pending", "stopping", "shutting-down":
		return StatePending
	case "terminated":
		return StateTerminated
	default:
		return StateUnknown
	}
}

// StatusOf reports the lifecycle state of a located record. A nil record
// means the lookup found nothing, which is StateAbsent, not an error.
func StatusOf(r *InstanceRecord) LifecycleState {
	if r == nil {
		return StateAbsent
	}
	return StateFromRaw(r.RawState)
}

// Status is StatusOf as a method, safe on a nil receiver.
func (r *InstanceRecord) Status() LifecycleState {
	return StatusOf(r)
}

// IsTransitional reports whether the state is expected to change on its
// own and is worth polling again.
func (s LifecycleState) IsTransitional() bool {
	return s == StatePending || s == StateUnknown
}
