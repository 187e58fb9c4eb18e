// Package storage keeps a revisioned history of what the tool observed
// about each VM. Every poll writes an observation; state queries and
// audit come from the index rebuilt on open.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/skiffworks/skiff/types"
	"go.etcd.io/bbolt"
)

// Bucket names in bbolt
var (
	bucketObservations = []byte("observations")
	bucketMeta         = []byte("meta")
)

var keyCurrentRevision = []byte("current_revision")

// ErrNotFound reports a VM that was never observed
var ErrNotFound = errors.New("not found")

// Store is a multi-version observation store keyed by VM name
type Store struct {
	mu sync.RWMutex

	// In-memory index for fast lookups
	index *btree.BTreeG[*VMState]

	// On-disk storage
	db *bbolt.DB

	// Current revision number
	currentRev int64

	dir string
}

// VMState tracks the last known state of one VM in the index
type VMState struct {
	Name           string
	InstanceID     string
	State          types.LifecycleState
	FirstSeenRev   int64
	LastSeenRev    int64
	DisappearedRev int64
	Exists         bool
}

// Observation is one recorded sighting of a VM
type Observation struct {
	Revision   int64
	ObservedAt time.Time
	Record     *types.InstanceRecord
	Tombstone  bool
}

// storedObservation is the on-disk envelope
type storedObservation struct {
	Record     *types.InstanceRecord `json:"record,omitempty"`
	Tombstone  bool                  `json:"tombstone,omitempty"`
	ObservedAt time.Time             `json:"observed_at"`
}

// Open creates or opens the store in the given directory
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "skiff.db")

	// A second process gets a lock error after a second instead of
	// blocking forever behind a running watch daemon.
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketObservations, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		index: btree.NewG[*VMState](32, func(a, b *VMState) bool {
			return a.Name < b.Name
		}),
		db:  db,
		dir: dir,
	}

	s.loadRevision()

	if err := s.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	return s, nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordObservation records one sighting of a VM
func (s *Store) RecordObservation(record types.InstanceRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRev++
	rev := s.currentRev

	obs := storedObservation{Record: &record, ObservedAt: time.Now()}
	if err := s.writeObservations(rev, map[string]storedObservation{record.Name: obs}); err != nil {
		return 0, err
	}

	s.applyToIndex(record.Name, rev, &obs)
	return rev, nil
}

// RecordObservationBatch records one sweep of VMs under a single revision
func (s *Store) RecordObservationBatch(records []types.InstanceRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRev++
	rev := s.currentRev

	now := time.Now()
	batch := make(map[string]storedObservation, len(records))
	for i := range records {
		batch[records[i].Name] = storedObservation{Record: &records[i], ObservedAt: now}
	}

	if err := s.writeObservations(rev, batch); err != nil {
		return 0, err
	}

	for name := range batch {
		obs := batch[name]
		s.applyToIndex(name, rev, &obs)
	}
	return rev, nil
}

// RecordDisappearance records that a VM is gone
func (s *Store) RecordDisappearance(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRev++
	rev := s.currentRev

	obs := storedObservation{Tombstone: true, ObservedAt: time.Now()}
	if err := s.writeObservations(rev, map[string]storedObservation{name: obs}); err != nil {
		return 0, err
	}

	s.applyToIndex(name, rev, &obs)
	return rev, nil
}

// writeObservations persists a set of observations and the new revision
func (s *Store) writeObservations(rev int64, batch map[string]storedObservation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketObservations)

		for name, obs := range batch {
			value, err := json.Marshal(obs)
			if err != nil {
				return err
			}
			if err := bucket.Put(makeObservationKey(rev, name), value); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketMeta).Put(keyCurrentRevision, int64ToBytes(rev))
	})
}

// Get returns the last known state of a VM
func (s *Store) Get(name string) (*VMState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, found := s.index.Get(&VMState{Name: name})
	if !found {
		return nil, fmt.Errorf("vm %s: %w", name, ErrNotFound)
	}
	return existing, nil
}

// List returns the last known state of every VM ever observed
func (s *Store) List() []*VMState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*VMState
	s.index.Ascend(func(state *VMState) bool {
		results = append(results, state)
		return true
	})
	return results
}

// History returns past observations of a VM, newest first. A limit of
// zero means no limit.
func (s *Store) History(name string, limit int) ([]Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var history []Observation

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketObservations).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			rev, keyName, ok := parseObservationKey(k)
			if !ok || keyName != name {
				continue
			}

			var obs storedObservation
			if err := json.Unmarshal(v, &obs); err != nil {
				continue
			}

			history = append(history, Observation{
				Revision:   rev,
				ObservedAt: obs.ObservedAt,
				Record:     obs.Record,
				Tombstone:  obs.Tombstone,
			})
			if limit > 0 && len(history) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// CurrentRevision returns the current revision number
func (s *Store) CurrentRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

// Compact removes observations older than the newest keepRevisions
func (s *Store) Compact(keepRevisions int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.currentRev - keepRevisions
	if cutoff <= 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketObservations)
		c := bucket.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			rev, _, ok := parseObservationKey(k)
			if ok && rev < cutoff {
				toDelete = append(toDelete, k)
			}
		}

		for _, key := range toDelete {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyToIndex folds one observation into the in-memory index
func (s *Store) applyToIndex(name string, rev int64, obs *storedObservation) {
	existing, found := s.index.Get(&VMState{Name: name})
	if !found {
		existing = &VMState{Name: name, FirstSeenRev: rev}
	}

	if obs.Tombstone {
		existing.Exists = false
		existing.DisappearedRev = rev
	} else {
		existing.Exists = true
		existing.DisappearedRev = 0
		existing.LastSeenRev = rev
		if obs.Record != nil {
			existing.InstanceID = obs.Record.ID
			existing.State = types.StatusOf(obs.Record)
		}
	}

	s.index.ReplaceOrInsert(existing)
}

func (s *Store) loadRevision() {
	_ = s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)
		if bucket == nil {
			return nil
		}

		if data := bucket.Get(keyCurrentRevision); data != nil {
			s.currentRev = bytesToInt64(data)
		}
		return nil
	})
}

// rebuildIndex replays all observations in revision order so the index
// survives restarts
func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketObservations).Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			rev, name, ok := parseObservationKey(k)
			if !ok {
				continue
			}

			var obs storedObservation
			if err := json.Unmarshal(v, &obs); err != nil {
				continue
			}

			s.applyToIndex(name, rev, &obs)
		}
		return nil
	})
}

// Keys sort by revision, so cursor order is chronological
func makeObservationKey(rev int64, name string) []byte {
	return []byte(fmt.Sprintf("%016d:%s", rev, name))
}

func parseObservationKey(key []byte) (int64, string, bool) {
	revPart, name, found := strings.Cut(string(key), ":")
	if !found {
		return 0, "", false
	}
	rev, err := strconv.ParseInt(revPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return rev, name, true
}

func int64ToBytes(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func bytesToInt64(b []byte) int64 {
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}
