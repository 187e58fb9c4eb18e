package storage

import "github.com/skiffworks/skiff/types"

// ObservationWriter records VM sightings
type ObservationWriter interface {
	RecordObservation(record types.InstanceRecord) (revision int64, err error)
	RecordObservationBatch(records []types.InstanceRecord) (revision int64, err error)
	RecordDisappearance(name string) (revision int64, err error)
}

// ObservationReader queries recorded sightings
type ObservationReader interface {
	Get(name string) (*VMState, error)
	List() []*VMState
	History(name string, limit int) ([]Observation, error)
}

// ObservationStore combines read and write for observations
type ObservationStore interface {
	ObservationWriter
	ObservationReader
	CurrentRevision() int64
}

// Compactor trims old revisions
type Compactor interface {
	Compact(keepRevisions int64) error
}

// Lifecycle manages store lifecycle
type Lifecycle interface {
	Close() error
}
