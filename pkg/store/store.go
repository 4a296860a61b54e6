// Package store implements the Document Store, Subscription Bus, and
// Batch Pipeline components. The document store is a lock-free RCU
// structure: readers dereference an atomic pointer to the current root
// and never block; writers build a new root by cloning the path spine
// down to the mutated node, then swap the pointer in with a
// compare-and-swap retry loop. Grounded on original_source's lib.rs
// GLOBAL_STATE (Arc<ArcSwap<Value>>), generalized from a single global
// root to a registry of named stores per spec.md's keyed-store
// canonicalization.
package store

import (
	"sync"
	"sync/atomic"

	corestate "github.com/cuemby/corestate"
	"github.com/cuemby/corestate/pkg/log"
	"github.com/cuemby/corestate/pkg/pathindex"
)

// Store is a single named, lock-free document root with its own
// subscription bus.
type Store struct {
	name  string
	root  atomic.Pointer[corestate.Value]
	index *pathindex.Index
	bus   *Bus
}

// New creates an empty store rooted at an empty object, named for
// logging and metrics correlation.
func New(name string, idx *pathindex.Index) *Store {
	s := &Store{name: name, index: idx, bus: newBus()}
	empty := corestate.Value(map[string]any{})
	s.root.Store(&empty)
	return s
}

// Name returns the store's name.
func (s *Store) Name() string { return s.name }

// Subscribe registers cb to be called with the post-commit root after
// every future Set/Merge/Update/Batch commit on this store.
func (s *Store) Subscribe(cb Callback) string {
	return s.bus.Subscribe(cb)
}

// Unsubscribe removes exactly the subscription identified by id.
func (s *Store) Unsubscribe(id string) {
	s.bus.Unsubscribe(id)
}

// SubscriberCount returns the number of active subscriptions on this
// store.
func (s *Store) SubscriberCount() int {
	return s.bus.Count()
}

// Root returns the current root value. The returned value must be
// treated as read-only by the caller; mutate it via Set/Merge/Update.
func (s *Store) Root() corestate.Value {
	return *s.root.Load()
}

// Get resolves a dotted path against the current root without
// blocking writers. A path that does not resolve — because a segment
// is missing or an intermediate node isn't an object — returns
// corestate.Undefined, never an error: NotFound is reserved for a
// missing store/container/snapshot id, not an absent path within a
// store that does exist, matching original_source's select() (which
// folds every resolution failure into JsValue::UNDEFINED).
func (s *Store) Get(path string) (corestate.Value, error) {
	root := *s.root.Load()
	if path == "" {
		return root, nil
	}
	tokens := s.index.Tokens(path)
	cur := root
	for _, tok := range tokens {
		m, ok := cur.(map[string]any)
		if !ok {
			return corestate.Undefined, nil
		}
		next, ok := m[tok]
		if !ok {
			return corestate.Undefined, nil
		}
		cur = next
	}
	return cur, nil
}

// Set replaces the value at path with v, committing a new root via a
// single RCU swap, and returns the post-commit root.
func (s *Store) Set(path string, v corestate.Value) (corestate.Value, error) {
	return s.commit(func(root corestate.Value) (corestate.Value, bool, error) {
		return applyAt(root, s.index.Tokens(path), func(corestate.Value) (corestate.Value, error) {
			return v, nil
		})
	})
}

// Merge shallow-merges v (which must be an object) into the object at
// path, committing a new root via a single RCU swap.
func (s *Store) Merge(path string, v corestate.Value) (corestate.Value, error) {
	patch, ok := v.(map[string]any)
	if !ok {
		return nil, corestate.Errorf(corestate.KindPathConflict, "merge at %q: patch is not an object", path)
	}
	return s.commit(func(root corestate.Value) (corestate.Value, bool, error) {
		return applyAt(root, s.index.Tokens(path), func(existing corestate.Value) (corestate.Value, error) {
			base, ok := existing.(map[string]any)
			if !ok {
				if existing == nil {
					base = map[string]any{}
				} else {
					return nil, corestate.Errorf(corestate.KindPathConflict, "merge at %q: existing value is not an object", path)
				}
			}
			merged := make(map[string]any, len(base)+len(patch))
			for k, val := range base {
				merged[k] = val
			}
			for k, val := range patch {
				merged[k] = val
			}
			return merged, nil
		})
	})
}

// UpdateFn transforms the value currently at a path into its replacement.
type UpdateFn func(current corestate.Value) (corestate.Value, error)

// Update applies fn to the value at path, committing the result via a
// single RCU swap. Unlike the source's UPDATE dispatch (which enqueued
// onto an async worker and returned the pre-update state), this call
// is synchronous end to end and returns the post-commit root.
func (s *Store) Update(path string, fn UpdateFn) (corestate.Value, error) {
	return s.commit(func(root corestate.Value) (corestate.Value, bool, error) {
		return applyAt(root, s.index.Tokens(path), fn)
	})
}

// commit runs op against the current root, retrying if a concurrent
// writer swapped the root out from under it (classic RCU CAS loop), then
// notifies the subscription bus with the committed root. If op reports
// no change (skip=true), no snapshot/notify happens, mirroring
// StateManager::update_container's equals() no-op guard.
func (s *Store) commit(op func(root corestate.Value) (next corestate.Value, skip bool, err error)) (corestate.Value, error) {
	for {
		oldPtr := s.root.Load()
		old := *oldPtr
		next, skip, err := op(old)
		if err != nil {
			return nil, err
		}
		if skip {
			return old, nil
		}
		newPtr := new(corestate.Value)
		*newPtr = next
		if s.root.CompareAndSwap(oldPtr, newPtr) {
			s.bus.notify(next)
			return next, nil
		}
		// another writer won the race; retry against the new root
	}
}

// applyAt clones the path spine from root down to the node addressed by
// tokens, applies fn to the value found there (nil if absent), and
// returns the new root. Nodes off the spine are shared, not copied,
// which is the structural-sharing half of copy-on-write.
func applyAt(root corestate.Value, tokens []string, fn UpdateFn) (corestate.Value, bool, error) {
	if len(tokens) == 0 {
		next, err := fn(root)
		if err != nil {
			return nil, false, err
		}
		if corestate.Equal(root, next) {
			return root, true, nil
		}
		return next, false, nil
	}

	rootMap, ok := root.(map[string]any)
	if !ok {
		if root != nil {
			return nil, false, corestate.Errorf(corestate.KindPathConflict, "path segment %q: parent is not an object", tokens[0])
		}
		rootMap = map[string]any{}
	}

	cloned := make(map[string]any, len(rootMap))
	for k, v := range rootMap {
		cloned[k] = v
	}

	child, err := applyAtChild(cloned[tokens[0]], tokens[1:], fn)
	if err != nil {
		return nil, false, err
	}
	if corestate.Equal(cloned[tokens[0]], child) {
		return root, true, nil
	}
	cloned[tokens[0]] = child
	return cloned, false, nil
}

func applyAtChild(node corestate.Value, tokens []string, fn UpdateFn) (corestate.Value, error) {
	if len(tokens) == 0 {
		return fn(node)
	}
	m, ok := node.(map[string]any)
	if !ok {
		if node != nil {
			return nil, corestate.Errorf(corestate.KindPathConflict, "path segment %q: parent is not an object", tokens[0])
		}
		m = map[string]any{}
	}
	cloned := make(map[string]any, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	child, err := applyAtChild(cloned[tokens[0]], tokens[1:], fn)
	if err != nil {
		return nil, err
	}
	cloned[tokens[0]] = child
	return cloned, nil
}

// Registry owns every named store in the engine, plus the shared path
// index they all tokenize paths through.
type Registry struct {
	index *pathindex.Index
	mu    sync.RWMutex
	byKey map[string]*Store
}

// NewRegistry creates an empty store registry backed by a path index
// with the given cache ceiling.
func NewRegistry(pathCacheCeiling int) *Registry {
	return &Registry{
		index: pathindex.New(pathCacheCeiling),
		byKey: make(map[string]*Store),
	}
}

// Init creates a new named store. Returns a Duplicate error if the name
// is already in use.
func (r *Registry) Init(name string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[name]; exists {
		return nil, corestate.Errorf(corestate.KindDuplicate, "store %q already initialized", name)
	}
	s := New(name, r.index)
	r.byKey[name] = s
	log.WithStore(name)
	return s, nil
}

// Select returns the named store, or a NotFound error.
func (r *Registry) Select(name string) (*Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKey[name]
	if !ok {
		return nil, corestate.Errorf(corestate.KindNotFound, "store %q not initialized", name)
	}
	return s, nil
}

// Names lists every initialized store name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byKey))
	for name := range r.byKey {
		out = append(out, name)
	}
	return out
}

// PathIndex exposes the shared path index, e.g. for metrics reporting.
func (r *Registry) PathIndex() *pathindex.Index { return r.index }
