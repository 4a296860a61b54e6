package memory

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	corestate "github.com/cuemby/corestate"
)

// DefaultGlobalLimit and DefaultGCThreshold mirror the constants in
// memory.rs's MemoryManager::new.
const (
	DefaultGlobalLimit = 512 * 1024 * 1024 // 512MB
	DefaultGCThreshold = 80.0              // percent
	gcIdleCutoff       = 30 * time.Minute
)

// Stats tracks one container's allocation history, independent of the
// pool's current block layout, so leak heuristics can reason about
// trends rather than just current state.
type Stats struct {
	Used          int
	Allocated     int
	Peak          int
	Allocations   int
	Deallocations int
	GCRuns        int
	LastGC        time.Time
}

// LeakSeverity classifies how concerning a detected leak signal is.
type LeakSeverity string

const (
	SeverityLow    LeakSeverity = "low"
	SeverityMedium LeakSeverity = "medium"
	SeverityHigh   LeakSeverity = "high"
)

// LeakSignal is one heuristic finding from DetectLeaks.
type LeakSignal struct {
	ContainerID string
	Kind        string
	Severity    LeakSeverity
	Detail      string
}

// Manager owns one Pool and one Stats record per container, enforces a
// global allocation ceiling across all of them, and runs GC/leak
// detection sweeps. Grounded on memory.rs's MemoryManager.
type Manager struct {
	mu             sync.Mutex
	globalLimit    int
	gcThreshold    float64
	autoGCEnabled  bool
	totalAllocated int
	pools          map[string]*Pool
	stats          map[string]*Stats
}

// NewManager creates a manager with the given global limit and GC
// trigger threshold (<=0 uses the package defaults).
func NewManager(globalLimit int, gcThreshold float64) *Manager {
	if globalLimit <= 0 {
		globalLimit = DefaultGlobalLimit
	}
	if gcThreshold <= 0 {
		gcThreshold = DefaultGCThreshold
	}
	return &Manager{
		globalLimit:   globalLimit,
		gcThreshold:   gcThreshold,
		autoGCEnabled: true,
		pools:         make(map[string]*Pool),
		stats:         make(map[string]*Stats),
	}
}

// AllocateContainer creates a pool of poolSize for containerID, failing
// with QuotaExceeded if it would push total allocation over the global
// limit.
func (m *Manager) AllocateContainer(containerID string, poolSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pools[containerID]; exists {
		return corestate.Errorf(corestate.KindDuplicate, "container %q already has a memory pool", containerID)
	}
	if m.totalAllocated+poolSize > m.globalLimit {
		return corestate.Errorf(corestate.KindQuotaExceeded, "allocating %d bytes would exceed global limit %d", poolSize, m.globalLimit)
	}

	m.pools[containerID] = NewPool(containerID, poolSize)
	m.stats[containerID] = &Stats{Allocated: poolSize}
	m.totalAllocated += poolSize

	m.checkGCTriggerLocked()
	return nil
}

// DeallocateContainer releases containerID's pool entirely.
func (m *Manager) DeallocateContainer(containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[containerID]
	if !ok {
		return corestate.Errorf(corestate.KindNotFound, "container %q has no memory pool", containerID)
	}
	m.totalAllocated -= pool.TotalSize
	delete(m.pools, containerID)
	delete(m.stats, containerID)
	return nil
}

// AllocateBlock allocates size bytes within containerID's pool.
func (m *Manager) AllocateBlock(containerID string, size int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[containerID]
	if !ok {
		return 0, corestate.Errorf(corestate.KindNotFound, "container %q has no memory pool", containerID)
	}
	offset, err := pool.Allocate(size)
	if err != nil {
		return 0, err
	}
	st := m.stats[containerID]
	st.Used += size
	st.Allocations++
	if st.Used > st.Peak {
		st.Peak = st.Used
	}
	m.checkGCTriggerLocked()
	return offset, nil
}

// DeallocateBlock releases the block at offset within containerID's pool.
func (m *Manager) DeallocateBlock(containerID string, offset int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[containerID]
	if !ok {
		return corestate.Errorf(corestate.KindNotFound, "container %q has no memory pool", containerID)
	}
	size := 0
	for _, b := range pool.Blocks {
		if b.Offset == offset && !b.Free {
			size = b.Size
			break
		}
	}
	if err := pool.Deallocate(offset); err != nil {
		return err
	}
	st := m.stats[containerID]
	st.Used -= size
	st.Deallocations++
	return nil
}

// GCContainer runs garbage collection on a single container's pool.
func (m *Manager) GCContainer(containerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[containerID]
	if !ok {
		return 0, corestate.Errorf(corestate.KindNotFound, "container %q has no memory pool", containerID)
	}
	collected := pool.GarbageCollect(time.Now().Add(-gcIdleCutoff))
	st := m.stats[containerID]
	st.GCRuns++
	st.LastGC = time.Now()
	return collected, nil
}

// GarbageCollect runs GC across every pool.
func (m *Manager) GarbageCollect() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	cutoff := time.Now().Add(-gcIdleCutoff)
	for id, pool := range m.pools {
		total += pool.GarbageCollect(cutoff)
		m.stats[id].GCRuns++
		m.stats[id].LastGC = time.Now()
	}
	return total
}

// checkGCTriggerLocked runs a full GC if global usage ratio exceeds the
// configured threshold. Must be called with m.mu held.
func (m *Manager) checkGCTriggerLocked() {
	if !m.autoGCEnabled || m.globalLimit == 0 {
		return
	}
	ratio := float64(m.totalAllocated) / float64(m.globalLimit) * 100
	if ratio <= m.gcThreshold {
		return
	}
	cutoff := time.Now().Add(-gcIdleCutoff)
	for id, pool := range m.pools {
		pool.GarbageCollect(cutoff)
		m.stats[id].GCRuns++
		m.stats[id].LastGC = time.Now()
	}
}

// SetAutoGC enables or disables the global-usage GC trigger.
func (m *Manager) SetAutoGC(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoGCEnabled = enabled
}

// Stats returns a copy of containerID's current stats.
func (m *Manager) Stats(containerID string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[containerID]
	if !ok {
		return Stats{}, corestate.Errorf(corestate.KindNotFound, "container %q has no memory pool", containerID)
	}
	return *st, nil
}

// leak-detection thresholds, grounded on memory.rs's detect_leaks.
const (
	allocationImbalanceMedium = 2.0
	allocationImbalanceHigh   = 10.0
	highUtilizationThreshold  = 90.0
	noRecentGCWindow          = time.Hour
	fragmentationRatioMin     = 0.5
	fragmentationFreeBlockMin = 3
)

// DetectLeaks runs the per-container heuristics from memory.rs's
// detect_leaks across every managed container:
//
//   - AllocationImbalance: allocations/deallocations > 2.0 (Medium) or
//     > 10.0 (High). This is the spec's documented ambiguous formula,
//     resolved here to the literal ratio from original_source, not the
//     alternate (allocations-deallocations)/allocations reading.
//   - HighUtilization: used > allocated/2 and pool utilization > 90%.
//   - FragmentationHigh: largest-free/total-free < 0.5 and the pool has
//     more than fragmentationFreeBlockMin free blocks. The block-count
//     clause guards against flagging a pool that simply has two
//     differently-sized free blocks after one allocate/deallocate,
//     which is ordinary and not a leak signal on its own.
//   - NoRecentGC: more than an hour since the last GC while used > 0.
func (m *Manager) DetectLeaks() []LeakSignal {
	m.mu.Lock()
	defer m.mu.Unlock()

	var signals []LeakSignal
	now := time.Now()
	ids := maps.Keys(m.stats)
	slices.Sort(ids)
	for _, id := range ids {
		st := m.stats[id]
		if st.Allocations > 0 && st.Deallocations > 0 {
			ratio := float64(st.Allocations) / float64(st.Deallocations)
			switch {
			case ratio > allocationImbalanceHigh:
				signals = append(signals, LeakSignal{ContainerID: id, Kind: "AllocationImbalance", Severity: SeverityHigh, Detail: ratioDetail(ratio)})
			case ratio > allocationImbalanceMedium:
				signals = append(signals, LeakSignal{ContainerID: id, Kind: "AllocationImbalance", Severity: SeverityMedium, Detail: ratioDetail(ratio)})
			}
		}

		if pool, ok := m.pools[id]; ok {
			if st.Used > st.Allocated/2 && pool.Utilization() > highUtilizationThreshold {
				signals = append(signals, LeakSignal{ContainerID: id, Kind: "HighUtilization", Severity: SeverityMedium, Detail: "pool utilization above 90%"})
			}
			if pool.FragmentationRatio() > fragmentationRatioMin && pool.FreeBlockCount() > fragmentationFreeBlockMin {
				signals = append(signals, LeakSignal{ContainerID: id, Kind: "FragmentationHigh", Severity: SeverityLow, Detail: "free space is fragmented across many small blocks"})
			}
		}

		if !st.LastGC.IsZero() && now.Sub(st.LastGC) > noRecentGCWindow && st.Used > 0 {
			signals = append(signals, LeakSignal{ContainerID: id, Kind: "NoRecentGC", Severity: SeverityLow, Detail: "no GC run in over an hour"})
		}
	}
	return signals
}

func ratioDetail(ratio float64) string {
	return fmt.Sprintf("allocation/deallocation ratio %.2f", ratio)
}
