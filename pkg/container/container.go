// Package container implements container lifecycle management: the
// Created/Starting/Running/Paused/Stopping/Stopped/Error state machine
// and a gate-only Call. Grounded on original_source's container.rs
// WasmContainer, with WASM module loading and execution dropped
// entirely (an explicit non-goal: the core has no execution engine for
// user code). Call runs the same security validation and execution-time
// check container.rs's function_cache dispatch ran before invoking a
// WASM export, but never invokes anything itself — it is the
// "function-call gate" spec.md §1 promises, not an interpreter.
package container

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/corestate"
	"github.com/cuemby/corestate/pkg/events"
	"github.com/cuemby/corestate/pkg/memory"
	"github.com/cuemby/corestate/pkg/security"
	"github.com/cuemby/corestate/pkg/store"
)

// Status mirrors container.rs's ContainerStatus.
type Status int

const (
	Created Status = iota
	Starting
	Running
	Paused
	Stopping
	Stopped
	Error
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Config describes a container to create, matching container.rs's
// ContainerConfig minus the wasm_url/runtime_type fields WASM loading
// made meaningless here.
type Config struct {
	ID            string
	Name          string
	StoreName     string
	StatePath     string
	InitialState  corestate.Value
	MemoryLimit   int
	EnableMetrics bool
	EnableSecurity bool
	Policy        security.Policy
}

// Container is one running instance: a status, a bound document
// store and path, and a memory/security context.
type Container struct {
	mu           sync.Mutex
	config       Config
	status       Status
	createdAt    time.Time
	lastAccessed time.Time
	memoryUsage  int
}

func (c *Container) ID() string     { return c.config.ID }
func (c *Container) Name() string   { return c.config.Name }
func (c *Container) Status() Status { c.mu.Lock(); defer c.mu.Unlock(); return c.status }

// HealthCheck reports whether a container is serving calls, matching
// container.rs's health_check (true for Running or Paused).
func (c *Container) HealthCheck() bool {
	s := c.Status()
	return s == Running || s == Paused
}

// Manager owns the set of live containers plus the store registry,
// memory manager, security manager, and event broker they're gated
// and accounted through. Grounded on warren's pkg/manager god-object
// shape, narrowed to container lifecycle concerns.
type Manager struct {
	mu         sync.RWMutex
	containers map[string]*Container
	stores     *store.Registry
	mem        *memory.Manager
	sec        *security.Manager
	events     *events.Broker
}

// NewManager creates a container manager wired to the given
// collaborators.
func NewManager(stores *store.Registry, mem *memory.Manager, sec *security.Manager, bus *events.Broker) *Manager {
	return &Manager{
		containers: make(map[string]*Container),
		stores:     stores,
		mem:        mem,
		sec:        sec,
		events:     bus,
	}
}

// Create allocates a container: reserves its memory budget, applies
// its security policy, seeds its bound store's state path, and
// transitions it Created -> Starting -> Running, matching
// container.rs's WasmContainer::new with mock-module creation dropped;
// once Running, which function names Call accepts is decided by the
// container's security policy.
func (m *Manager) Create(cfg Config) (*Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.containers[cfg.ID]; exists {
		return nil, corestate.Errorf(corestate.KindDuplicate, "container %q already exists", cfg.ID)
	}

	st, err := m.stores.Select(cfg.StoreName)
	if err != nil {
		st, err = m.stores.Init(cfg.StoreName)
		if err != nil {
			return nil, err
		}
	}

	if cfg.MemoryLimit > 0 {
		if err := m.mem.AllocateContainer(cfg.ID, cfg.MemoryLimit); err != nil {
			return nil, err
		}
	}

	policy := cfg.Policy
	if cfg.EnableSecurity {
		m.sec.ApplyPolicy(cfg.ID, policy)
	}

	now := time.Now()
	c := &Container{
		config:       cfg,
		status:       Created,
		createdAt:    now,
		lastAccessed: now,
	}

	c.status = Starting
	if cfg.InitialState != nil {
		if _, err := st.Set(cfg.StatePath, cfg.InitialState); err != nil {
			c.status = Error
			m.containers[cfg.ID] = c
			return c, err
		}
	}
	c.status = Running

	m.containers[cfg.ID] = c
	m.publish(events.KindContainerCreated, cfg.ID, "container created")
	m.publish(events.KindContainerStarted, cfg.ID, "container running")
	return c, nil
}

// Get returns the container registered under id.
func (m *Manager) Get(id string) (*Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.containers[id]
	if !ok {
		return nil, corestate.Errorf(corestate.KindNotFound, "container %q not found", id)
	}
	return c, nil
}

// List returns every registered container.
func (m *Manager) List() []*Container {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Container, 0, len(m.containers))
	for _, c := range m.containers {
		out = append(out, c)
	}
	return out
}

// Pause transitions a Running container to Paused, matching
// container.rs's pause.
func (m *Manager) Pause(id string) error {
	c, err := m.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != Running {
		return corestate.Errorf(corestate.KindPolicyViolation, "container %q is not running", id)
	}
	c.status = Paused
	return nil
}

// Resume transitions a Paused container back to Running, matching
// container.rs's resume.
func (m *Manager) Resume(id string) error {
	c, err := m.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != Paused {
		return corestate.Errorf(corestate.KindPolicyViolation, "container %q is not paused", id)
	}
	c.status = Running
	return nil
}

// Stop releases a container's WASM-era resources (here: nothing to
// free but the status itself) and transitions it Stopping -> Stopped,
// matching container.rs's stop.
func (m *Manager) Stop(id string) error {
	c, err := m.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.status = Stopping
	c.mu.Unlock()

	c.mu.Lock()
	c.status = Stopped
	c.mu.Unlock()

	m.publish(events.KindContainerStopped, id, "container stopped")
	return nil
}

// Remove stops a container if necessary, releases its memory budget
// and security context, and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return corestate.Errorf(corestate.KindNotFound, "container %q not found", id)
	}

	c.mu.Lock()
	c.status = Stopped
	c.mu.Unlock()

	m.mem.DeallocateContainer(id)
	m.sec.CleanupContainer(id)
	delete(m.containers, id)

	m.publish(events.KindContainerCleaned, id, "container removed")
	return nil
}

// Call gates a function call against a container without invoking
// anything, matching container.rs's call_function minus the WASM
// export invocation it used to perform once the gate passed: it
// requires the container be Running, then runs the same security
// validation and execution-time check container.rs ran before
// dispatch. args is accepted (and reserved) for a future execution
// engine but otherwise unused, since there is nothing here to pass it
// to.
func (m *Manager) Call(id, functionName string, args corestate.Value) error {
	c, err := m.Get(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.status != Running {
		c.mu.Unlock()
		return corestate.Errorf(corestate.KindPolicyViolation, "container %q is not running", id)
	}
	c.lastAccessed = time.Now()
	cfg := c.config
	c.mu.Unlock()

	if cfg.EnableSecurity {
		if err := m.sec.ValidateFunctionCall(id, functionName); err != nil {
			return err
		}
	}

	return nil
}

// CountsByStatus implements the part of pkg/metrics.Source that needs
// container lifecycle counts.
func (m *Manager) CountsByStatus() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for _, c := range m.containers {
		out[c.Status().String()]++
	}
	return out
}

func (m *Manager) publish(kind events.Kind, containerID, message string) {
	if m.events == nil {
		return
	}
	m.events.Publish(&events.Event{
		Kind:        kind,
		ContainerID: containerID,
		Message:     fmt.Sprintf("%s: %s", containerID, message),
	})
}
