// Package snapshot implements the Snapshot Store: canonical-format,
// byte-serialized immutable copies of a document store's root, bounded
// by count and kept for restore or audit. Grounded on original_source's
// lib.rs SNAPSHOTS map and create_snapshot/restore_snapshot, but
// eviction follows spec.md's stated oldest-first-by-creation-timestamp
// policy rather than lib.rs's cleanup(), which sorts by the UUID
// embedded in the snapshot key — a shortcut that doesn't actually
// implement timestamp ordering.
package snapshot

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	corestate "github.com/cuemby/corestate"
)

// DefaultMaxSnapshots is the suggested retention ceiling from the spec.
const DefaultMaxSnapshots = 50

// Snapshot is an immutable, byte-serialized copy of a store's root at
// the moment it was created.
type Snapshot struct {
	ID        string
	StoreName string
	CreatedAt time.Time
	Data      []byte
}

// Store holds bounded, oldest-first-evicted snapshots across every
// document store in the engine. The maxSnapshots ceiling counts the
// snapshots of all document stores together; there is no separate
// per-store ceiling.
type Store struct {
	mu           sync.Mutex
	maxSnapshots int
	byID         map[string]*Snapshot
	order        []string // insertion order, oldest first
	createGroup  singleflight.Group
	backend      Backend
}

// Backend optionally persists snapshot bytes durably. The in-memory
// Store always keeps the byID index; a Backend, if set, is an
// additional write path (e.g. BoltBackend) for hosts that want restarts
// to survive process death — it is not required for correctness.
type Backend interface {
	Put(id string, data []byte) error
	Get(id string) ([]byte, error)
	Delete(id string) error
}

// New creates a snapshot store with the given retention ceiling (<=0
// uses DefaultMaxSnapshots) and an optional durable backend.
func New(maxSnapshots int, backend Backend) *Store {
	if maxSnapshots <= 0 {
		maxSnapshots = DefaultMaxSnapshots
	}
	return &Store{
		maxSnapshots: maxSnapshots,
		byID:         make(map[string]*Snapshot),
		backend:      backend,
	}
}

// Create serializes root to canonical JSON and stores it under a new
// id, evicting the oldest snapshot if the store is at capacity.
// Concurrent Create calls against the same storeName+root are
// collapsed into one serialization via singleflight, since a burst of
// identical commits (e.g. a fan-out of identical batch notifications)
// would otherwise duplicate work for no benefit.
func (s *Store) Create(storeName string, root corestate.Value) (*Snapshot, error) {
	data, err := json.Marshal(root)
	if err != nil {
		return nil, &corestate.Error{Kind: corestate.KindSerialization, Message: "snapshot create: marshal", Cause: err}
	}

	result, err, _ := s.createGroup.Do(storeName+string(data), func() (any, error) {
		snap := &Snapshot{
			ID:        "snap_" + uuid.NewString(),
			StoreName: storeName,
			CreatedAt: time.Now(),
			Data:      data,
		}

		s.mu.Lock()
		s.byID[snap.ID] = snap
		s.order = append(s.order, snap.ID)
		s.evictOverCapacityLocked()
		s.mu.Unlock()

		if s.backend != nil {
			if err := s.backend.Put(snap.ID, data); err != nil {
				return nil, &corestate.Error{Kind: corestate.KindTransient, Message: "snapshot create: backend put", Cause: err}
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Snapshot), nil
}

// evictOverCapacityLocked must be called with s.mu held. It removes the
// oldest snapshot(s) by creation order until the store is back within
// maxSnapshots.
func (s *Store) evictOverCapacityLocked() {
	for len(s.order) > s.maxSnapshots {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byID, oldest)
		if s.backend != nil {
			_ = s.backend.Delete(oldest)
		}
	}
}

// Restore deserializes the snapshot identified by id into a Value. The
// encoding is encoding/json, so restore(create(x)) == x holds for
// JSON-shaped Values (maps, slices, strings, bools, nil, float64); other
// Go number types come back as float64.
func (s *Store) Restore(id string) (corestate.Value, error) {
	s.mu.Lock()
	snap, ok := s.byID[id]
	s.mu.Unlock()

	var data []byte
	if ok {
		data = snap.Data
	} else if s.backend != nil {
		raw, err := s.backend.Get(id)
		if err != nil {
			return nil, corestate.Errorf(corestate.KindNotFound, "snapshot %q not found", id)
		}
		data = raw
	} else {
		return nil, corestate.Errorf(corestate.KindNotFound, "snapshot %q not found", id)
	}

	var out corestate.Value
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &corestate.Error{Kind: corestate.KindSerialization, Message: "snapshot restore: unmarshal", Cause: err}
	}
	return out, nil
}

// List returns every retained snapshot's metadata, oldest first.
func (s *Store) List() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of retained snapshots.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
