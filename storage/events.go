package storage

import (
	"time"

	"github.com/skiffworks/skiff/types"
)

// TransitionEvent records a VM moving between lifecycle states
type TransitionEvent struct {
	Name       string               `json:"name"`
	InstanceID string               `json:"instance_id,omitempty"`
	From       types.LifecycleState `json:"from"`
	To         types.LifecycleState `json:"to"`
	Revision   int64                `json:"revision"`
	ObservedAt time.Time            `json:"observed_at"`
}

// Transitions derives state changes from a VM's observation history.
// Input is newest first, as History returns it; output is oldest first.
func Transitions(name string, history []Observation) []TransitionEvent {
	var events []TransitionEvent

	prev := types.StateAbsent
	for i := len(history) - 1; i >= 0; i-- {
		obs := history[i]

		state := types.StateAbsent
		var instanceID string
		if !obs.Tombstone && obs.Record != nil {
			state = types.StatusOf(obs.Record)
			instanceID = obs.Record.ID
		}

		if state != prev {
			events = append(events, TransitionEvent{
				Name:       name,
				InstanceID: instanceID,
				From:       prev,
				To:         state,
				Revision:   obs.Revision,
				ObservedAt: obs.ObservedAt,
			})
		}
		prev = state
	}
	return events
}
