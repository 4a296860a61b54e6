// Package engine ties every corestate component into one explicit
// value: the Engine owns the store registry, snapshot store, memory
// manager, security gate, metrics collector, runtime selector, and
// container manager, and exposes spec.md §6's flat external interface
// as Go methods. Grounded on warren's pkg/manager/manager.go, the
// god-object that owns Raft, FSM, storage, security, and metrics for
// the cluster — narrowed here to a single process's in-memory state,
// with no consensus layer.
package engine

import (
	"sync"

	corestate "github.com/cuemby/corestate"
	"github.com/cuemby/corestate/pkg/container"
	"github.com/cuemby/corestate/pkg/events"
	"github.com/cuemby/corestate/pkg/memory"
	"github.com/cuemby/corestate/pkg/metrics"
	"github.com/cuemby/corestate/pkg/pathindex"
	"github.com/cuemby/corestate/pkg/runtime"
	"github.com/cuemby/corestate/pkg/security"
	"github.com/cuemby/corestate/pkg/snapshot"
	"github.com/cuemby/corestate/pkg/store"
)

// Op names a dispatch operation, matching spec.md §6's
// op ∈ {SET, MERGE, UPDATE, BATCH}.
type Op string

const (
	OpSet    Op = "SET"
	OpMerge  Op = "MERGE"
	OpUpdate Op = "UPDATE"
	OpBatch  Op = "BATCH"
)

// BatchRecord is one entry of a BATCH dispatch payload, matching
// spec.md §6's "list of (op, path, value) records".
type BatchRecord struct {
	Op    Op
	Path  string
	Value corestate.Value
}

// Config bundles the tunables each owned component accepts at
// construction.
type Config struct {
	PathCacheCeiling  int
	MaxSnapshots      int
	SnapshotBackend   snapshot.Backend
	GlobalMemoryLimit int
	GCThresholdPct    float64
	GlobalPolicy      security.Policy
}

// DefaultConfig mirrors each component's own package defaults.
func DefaultConfig() Config {
	return Config{
		PathCacheCeiling:  pathindex.DefaultCeiling,
		MaxSnapshots:      snapshot.DefaultMaxSnapshots,
		GlobalMemoryLimit: memory.DefaultGlobalLimit,
		GCThresholdPct:    memory.DefaultGCThreshold,
		GlobalPolicy:      security.DefaultPolicy(),
	}
}

// Engine is the single owning value every corestate operation runs
// against, in place of the source's global singletons (spec.md §9).
type Engine struct {
	stores     *store.Registry
	snapshots  *snapshot.Store
	mem        *memory.Manager
	sec        *security.Manager
	metricsC   *metrics.Collector
	runtimes   *runtime.Registry
	containers *container.Manager
	events     *events.Broker
}

// New builds an Engine from cfg, wiring every owned component
// together and starting the background event broker.
func New(cfg Config) *Engine {
	stores := store.NewRegistry(cfg.PathCacheCeiling)
	mem := memory.NewManager(cfg.GlobalMemoryLimit, cfg.GCThresholdPct)
	sec := security.NewManager(cfg.GlobalPolicy)
	bus := events.NewBroker()
	bus.Start()

	e := &Engine{
		stores:     stores,
		snapshots:  snapshot.New(cfg.MaxSnapshots, cfg.SnapshotBackend),
		mem:        mem,
		sec:        sec,
		metricsC:   metrics.NewCollector(),
		runtimes:   runtime.NewRegistry(),
		containers: container.NewManager(stores, mem, sec, bus),
		events:     bus,
	}
	return e
}

// InitStore creates a new named document store seeded at initial,
// matching spec.md §6's init_store(name, value).
func (e *Engine) InitStore(name string, initial corestate.Value) error {
	st, err := e.stores.Init(name)
	if err != nil {
		return err
	}
	if initial != nil {
		if _, err := st.Set("", initial); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch applies op against the named store, matching spec.md §6's
// dispatch(name, op, payload). SET and MERGE apply value directly at
// path; UPDATE replaces the value at path with value (the core has no
// interpreter to run an arbitrary update function, so the host sends
// the already-computed replacement, same as a SET restricted to an
// existing path's shape by the caller's own convention); BATCH expects
// value to be a []BatchRecord applied as a single commit.
func (e *Engine) Dispatch(storeName string, op Op, path string, value corestate.Value) (corestate.Value, error) {
	st, err := e.stores.Select(storeName)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpSet:
		return st.Set(path, value)
	case OpMerge:
		return st.Merge(path, value)
	case OpUpdate:
		return st.Update(path, func(corestate.Value) (corestate.Value, error) {
			return value, nil
		})
	case OpBatch:
		records, ok := value.([]BatchRecord)
		if !ok {
			return nil, corestate.Errorf(corestate.KindSerialization, "BATCH payload must be []BatchRecord")
		}
		b := st.NewBatch()
		for _, rec := range records {
			switch rec.Op {
			case OpSet:
				b.Set(rec.Path, rec.Value)
			case OpMerge:
				b.Merge(rec.Path, rec.Value)
			case OpUpdate:
				val := rec.Value
				b.Update(rec.Path, func(corestate.Value) (corestate.Value, error) { return val, nil })
			default:
				return nil, corestate.Errorf(corestate.KindUnknownOp, "unknown batch op %q", rec.Op)
			}
		}
		return b.Execute()
	default:
		return nil, corestate.Errorf(corestate.KindUnknownOp, "unknown dispatch op %q", op)
	}
}

// Select resolves a dotted path against the named store's current
// root, matching spec.md §6's select(name, path) -> Value or
// Undefined. A missing store name still errors with NotFound; a
// missing path within an existing store returns corestate.Undefined.
func (e *Engine) Select(storeName, path string) (corestate.Value, error) {
	st, err := e.stores.Select(storeName)
	if err != nil {
		return nil, err
	}
	return st.Get(path)
}

// Subscribe registers cb against the named store, matching spec.md
// §6's subscribe(name, callback).
func (e *Engine) Subscribe(storeName string, cb store.Callback) (string, error) {
	st, err := e.stores.Select(storeName)
	if err != nil {
		return "", err
	}
	return st.Subscribe(cb), nil
}

// Unsubscribe removes subscription id from the named store. Idempotent:
// an unknown id is a no-op, matching spec.md §6's unsubscribe(id).
func (e *Engine) Unsubscribe(storeName, id string) error {
	st, err := e.stores.Select(storeName)
	if err != nil {
		return err
	}
	st.Unsubscribe(id)
	return nil
}

// NewBatch returns a batch builder against the named store, matching
// spec.md §6's batch: new.
func (e *Engine) NewBatch(storeName string) (*store.Batch, error) {
	st, err := e.stores.Select(storeName)
	if err != nil {
		return nil, err
	}
	return st.NewBatch(), nil
}

// CreateSnapshot captures the named store's current root, matching
// spec.md §6's create_snapshot(name).
func (e *Engine) CreateSnapshot(storeName string) (*snapshot.Snapshot, error) {
	st, err := e.stores.Select(storeName)
	if err != nil {
		return nil, err
	}
	return e.snapshots.Create(storeName, st.Root())
}

// RestoreSnapshot sets the named store's root to a previously captured
// snapshot, matching spec.md §6's restore_snapshot(name, id).
func (e *Engine) RestoreSnapshot(storeName, snapshotID string) (corestate.Value, error) {
	st, err := e.stores.Select(storeName)
	if err != nil {
		return nil, err
	}
	root, err := e.snapshots.Restore(snapshotID)
	if err != nil {
		return nil, err
	}
	return st.Set("", root)
}

// GetMetrics returns the container's current metrics report, matching
// spec.md §6's get_metrics(name). The "name" here is a container id,
// since metrics are recorded per container, not per store.
func (e *Engine) GetMetrics(containerID string) (metrics.Report, bool) {
	return e.metricsC.GenerateReport(containerID)
}

// Cleanup stops and removes every container, releasing each
// one's memory pool and security context along with it, matching
// spec.md §6's cleanup(). Document stores and retained snapshots
// outlive Cleanup — they are keyed by name, not by container, and
// spec.md's store/snapshot operations have no separate teardown call
// of their own.
func (e *Engine) Cleanup() {
	for _, c := range e.containers.List() {
		_ = e.containers.Remove(c.ID())
	}
}

// Containers exposes the container manager for lifecycle operations
// spec.md's component table covers but §6's flat surface doesn't name
// directly (create/pause/resume/stop/call).
func (e *Engine) Containers() *container.Manager { return e.containers }

// StoreNames lists every initialized document store, for hosts (e.g.
// the CLI's `store ls`) that need to enumerate stores without a
// dedicated spec.md operation for it.
func (e *Engine) StoreNames() []string { return e.stores.Names() }

// Snapshots exposes the snapshot store directly, for listing retained
// snapshots across every document store (spec.md §6's flat surface has
// no list_snapshots operation of its own, but the CLI needs one).
func (e *Engine) Snapshots() *snapshot.Store { return e.snapshots }

// Memory exposes the memory manager for host-controlled quota/GC
// setter operations, per spec.md §6's "host controls configuration...
// via setter operations on the Security, Memory, and Metrics
// components."
func (e *Engine) Memory() *memory.Manager { return e.mem }

// Security exposes the security gate for policy setter operations.
func (e *Engine) Security() *security.Manager { return e.sec }

// MetricsCollector exposes the metrics engine for threshold setter
// operations and direct report generation.
func (e *Engine) MetricsCollector() *metrics.Collector { return e.metricsC }

// Runtimes exposes the runtime selector for capability registration
// and auto-selection.
func (e *Engine) Runtimes() *runtime.Registry { return e.runtimes }

// Events exposes the lifecycle event broker for external watchers
// (e.g. a CLI `watch` subcommand).
func (e *Engine) Events() *events.Broker { return e.events }

// StoreCount implements pkg/metrics.Source.
func (e *Engine) StoreCount() int { return len(e.stores.Names()) }

// PathCacheSize implements pkg/metrics.Source.
func (e *Engine) PathCacheSize() int { return e.stores.PathIndex().Len() }

// SnapshotCount implements pkg/metrics.Source.
func (e *Engine) SnapshotCount() int { return e.snapshots.Count() }

// SubscriberCounts implements pkg/metrics.Source.
func (e *Engine) SubscriberCounts() map[string]int {
	out := make(map[string]int)
	for _, name := range e.stores.Names() {
		if st, err := e.stores.Select(name); err == nil {
			out[name] = st.SubscriberCount()
		}
	}
	return out
}

// ContainerCountsByStatus implements pkg/metrics.Source.
func (e *Engine) ContainerCountsByStatus() map[string]int {
	return e.containers.CountsByStatus()
}

// MemoryUtilizationByContainer implements pkg/metrics.Source.
func (e *Engine) MemoryUtilizationByContainer() map[string]float64 {
	out := make(map[string]float64)
	for _, c := range e.containers.List() {
		if st, err := e.mem.Stats(c.ID()); err == nil && st.Allocated > 0 {
			out[c.ID()] = float64(st.Used) / float64(st.Allocated)
		}
	}
	return out
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns a lazily constructed, process-wide Engine built from
// DefaultConfig, for callers that want the source's old singleton
// ergonomics without threading an *Engine through every call site.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = New(DefaultConfig())
	})
	return defaultEngine
}
