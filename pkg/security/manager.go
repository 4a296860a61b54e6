package security

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	corestate "github.com/cuemby/corestate"
)

// ViolationSeverity classifies a SecurityEvent.
type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "low"
	SeverityMedium   ViolationSeverity = "medium"
	SeverityHigh     ViolationSeverity = "high"
	SeverityCritical ViolationSeverity = "critical"
)

// EventKind names the category of a SecurityEvent.
type EventKind string

const (
	EventExecutionTimeExceeded EventKind = "execution_time_exceeded"
	EventUnauthorizedFunction  EventKind = "unauthorized_function_call"
	EventInvalidSignature      EventKind = "invalid_signature"
	EventMemoryLimitExceeded   EventKind = "memory_limit_exceeded"
	EventSuspiciousActivity    EventKind = "suspicious_activity"
)

// SecurityEvent records one detected violation or suspicious signal.
type SecurityEvent struct {
	ContainerID string
	Kind        EventKind
	Severity    ViolationSeverity
	Detail      string
	Timestamp   time.Time
}

// AuditAction names the category of an AuditEntry.
type AuditAction string

const (
	AuditPolicyApplied     AuditAction = "policy_applied"
	AuditFunctionCalled    AuditAction = "function_called"
	AuditSecurityViolation AuditAction = "security_violation"
	AuditContainerCleaned  AuditAction = "container_cleaned"
	AuditMemoryAllocated   AuditAction = "memory_allocated"
	AuditMemoryDeallocated AuditAction = "memory_deallocated"
)

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	ContainerID string
	Action      AuditAction
	Detail      string
	Timestamp   time.Time
}

// Grounded on security.rs's inline per-call threshold (1000) and
// spec.md's separately documented periodic detect_threats threshold
// (10000). Both are implemented as distinct, clearly named signals so
// they cannot be mistaken for the same mechanism.
const (
	perCallSuspiciousThreshold      = 1000
	periodicSuspiciousCallThreshold = 10000
	periodicMemoryPressureRatio     = 0.8
)

// Manager owns every container's Context, the global policy fallback,
// the security event log, and the audit log. Grounded on security.rs's
// SecurityManager.
type Manager struct {
	mu              sync.Mutex
	contexts        map[string]*Context
	globalPolicy    Policy
	events          []SecurityEvent
	audit           []AuditEntry
	threatDetection bool
}

// NewManager creates a manager with the given global fallback policy.
func NewManager(globalPolicy Policy) *Manager {
	return &Manager{
		contexts:        make(map[string]*Context),
		globalPolicy:    globalPolicy,
		threatDetection: true,
	}
}

// ApplyPolicy creates (or replaces) containerID's security context.
func (m *Manager) ApplyPolicy(containerID string, policy Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[containerID] = NewContext(containerID, policy)
	m.audit = append(m.audit, AuditEntry{ContainerID: containerID, Action: AuditPolicyApplied, Timestamp: time.Now()})
}

// ValidateFunctionCall checks access and execution-time limits, records
// the call, and appends an audit entry. It is the "function-call gate"
// the core exposes in place of an interpreter: it never invokes
// anything, it only decides whether the caller may proceed.
func (m *Manager) ValidateFunctionCall(containerID, functionName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, ok := m.contexts[containerID]
	if !ok {
		return corestate.Errorf(corestate.KindNotFound, "container %q has no security context", containerID)
	}

	if ctx.Blocked {
		return corestate.Errorf(corestate.KindPolicyViolation, "container %q is blocked", containerID)
	}

	if !ctx.Policy.IsFunctionAllowed(functionName) {
		m.recordViolationLocked(ctx, EventUnauthorizedFunction, SeverityMedium, "function "+functionName+" not permitted by policy")
		return corestate.Errorf(corestate.KindPolicyViolation, "function %q not permitted for container %q", functionName, containerID)
	}

	if ctx.ExecutionStart != nil {
		elapsed := time.Since(*ctx.ExecutionStart).Milliseconds()
		if elapsed > ctx.Policy.MaxExecutionTimeMs {
			m.recordViolationLocked(ctx, EventExecutionTimeExceeded, SeverityHigh, "execution exceeded policy limit")
			return corestate.Errorf(corestate.KindPolicyViolation, "container %q exceeded max execution time", containerID)
		}
	}

	ctx.FunctionCalls++
	m.audit = append(m.audit, AuditEntry{ContainerID: containerID, Action: AuditFunctionCalled, Detail: functionName, Timestamp: time.Now()})

	if ctx.FunctionCalls > perCallSuspiciousThreshold {
		m.events = append(m.events, SecurityEvent{ContainerID: containerID, Kind: EventSuspiciousActivity, Severity: SeverityLow, Detail: "function call rate unusually high", Timestamp: time.Now()})
	}

	return nil
}

// StartExecution marks the beginning of an execution window, used by
// ValidateFunctionCall's execution-time check.
func (m *Manager) StartExecution(containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[containerID]
	if !ok {
		return corestate.Errorf(corestate.KindNotFound, "container %q has no security context", containerID)
	}
	now := time.Now()
	ctx.ExecutionStart = &now
	return nil
}

// ValidateMemoryAllocation checks containerID's policy memory ceiling
// and, if it fits, records the allocation and emits a MemoryAllocated
// audit entry — filling the gap left in original_source, where this
// AuditAction is declared but never actually emitted.
func (m *Manager) ValidateMemoryAllocation(containerID string, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[containerID]
	if !ok {
		return corestate.Errorf(corestate.KindNotFound, "container %q has no security context", containerID)
	}
	if ctx.MemoryAllocated+size > ctx.Policy.MaxMemory {
		m.recordViolationLocked(ctx, EventMemoryLimitExceeded, SeverityHigh, "allocation would exceed policy memory limit")
		return corestate.Errorf(corestate.KindQuotaExceeded, "container %q: allocation exceeds policy memory limit", containerID)
	}
	ctx.MemoryAllocated += size
	m.audit = append(m.audit, AuditEntry{ContainerID: containerID, Action: AuditMemoryAllocated, Timestamp: time.Now()})
	return nil
}

// DeallocateMemory releases size bytes from containerID's tracked
// allocation (saturating at zero) and emits a MemoryDeallocated audit
// entry.
func (m *Manager) DeallocateMemory(containerID string, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[containerID]
	if !ok {
		return corestate.Errorf(corestate.KindNotFound, "container %q has no security context", containerID)
	}
	ctx.MemoryAllocated -= size
	if ctx.MemoryAllocated < 0 {
		ctx.MemoryAllocated = 0
	}
	m.audit = append(m.audit, AuditEntry{ContainerID: containerID, Action: AuditMemoryDeallocated, Timestamp: time.Now()})
	return nil
}

// VerifySignature compares the SHA-256 hex digest of data against
// signature. A policy that does not require a signature always
// succeeds, matching security.rs's verify_signature no-op path.
func (m *Manager) VerifySignature(containerID string, data []byte, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[containerID]
	if !ok {
		return corestate.Errorf(corestate.KindNotFound, "container %q has no security context", containerID)
	}
	if !ctx.Policy.RequireSignature {
		ctx.SignatureVerified = true
		return nil
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if digest != signature {
		ctx.SignatureVerified = false
		m.recordViolationLocked(ctx, EventInvalidSignature, SeverityCritical, "signature mismatch")
		return corestate.Errorf(corestate.KindPolicyViolation, "container %q: invalid signature", containerID)
	}
	ctx.SignatureVerified = true
	return nil
}

// recordViolationLocked appends the event to both the global log and the
// container's own context is implicit (contexts don't keep a private
// event slice in this port — the shared log is always queried by
// container id instead), appends the audit entry, and blocks the
// container on Critical severity. Must be called with m.mu held.
func (m *Manager) recordViolationLocked(ctx *Context, kind EventKind, severity ViolationSeverity, detail string) {
	evt := SecurityEvent{ContainerID: ctx.ContainerID, Kind: kind, Severity: severity, Detail: detail, Timestamp: time.Now()}
	m.events = append(m.events, evt)
	m.audit = append(m.audit, AuditEntry{ContainerID: ctx.ContainerID, Action: AuditSecurityViolation, Detail: string(kind), Timestamp: time.Now()})

	if severity == SeverityCritical {
		m.blockContainerLocked(ctx)
	}
}

// blockContainerLocked replaces ctx's policy with StrictPolicy and sets
// Blocked. security.rs's block_container relies on an empty
// allowed_functions set to mean "nothing callable", but
// is_function_allowed treats an empty allowed set as permissive mode
// (allow everything) — the same rule strict()/permissive() both lean
// on for their own opposite intents. block_container's explicit
// allowed_functions.clear() is therefore a no-op against an
// already-empty set, so a blocked container in the original still
// passes is_function_allowed. Blocked is a deliberate deviation
// carrying the actual "zero functions callable" intent independent of
// that policy quirk.
func (m *Manager) blockContainerLocked(ctx *Context) {
	ctx.Policy = StrictPolicy()
	ctx.Blocked = true
}

// DetectThreats runs the periodic heuristics from security.rs's
// detect_threats across every managed container: memory pressure above
// 80% of the policy ceiling, or more than 10,000 function calls,
// each flags Suspicious and nothing more — detection never auto-blocks.
func (m *Manager) DetectThreats() []SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found []SecurityEvent
	if !m.threatDetection {
		return found
	}
	now := time.Now()
	ids := maps.Keys(m.contexts)
	slices.Sort(ids)
	for _, id := range ids {
		ctx := m.contexts[id]
		if ctx.Policy.MaxMemory > 0 && float64(ctx.MemoryAllocated) > periodicMemoryPressureRatio*float64(ctx.Policy.MaxMemory) {
			evt := SecurityEvent{ContainerID: id, Kind: EventSuspiciousActivity, Severity: SeverityMedium, Detail: "memory pressure above 80% of policy limit", Timestamp: now}
			m.events = append(m.events, evt)
			found = append(found, evt)
		}
		if ctx.FunctionCalls > periodicSuspiciousCallThreshold {
			evt := SecurityEvent{ContainerID: id, Kind: EventSuspiciousActivity, Severity: SeverityMedium, Detail: "function call count above periodic threshold", Timestamp: now}
			m.events = append(m.events, evt)
			found = append(found, evt)
		}
	}
	return found
}

// CleanupContainer removes containerID's security context and appends a
// ContainerCleaned audit entry.
func (m *Manager) CleanupContainer(containerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, containerID)
	m.audit = append(m.audit, AuditEntry{ContainerID: containerID, Action: AuditContainerCleaned, Timestamp: time.Now()})
}

// SecurityEvents returns every recorded event, optionally filtered to
// one container (empty string returns all).
func (m *Manager) SecurityEvents(containerID string) []SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if containerID == "" {
		out := make([]SecurityEvent, len(m.events))
		copy(out, m.events)
		return out
	}
	var out []SecurityEvent
	for _, e := range m.events {
		if e.ContainerID == containerID {
			out = append(out, e)
		}
	}
	return out
}

// AuditLog returns the full audit trail.
func (m *Manager) AuditLog() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// EnableThreatDetection toggles the periodic heuristics on or off.
func (m *Manager) EnableThreatDetection(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threatDetection = enabled
}

// Context returns containerID's live security context, for callers that
// need to inspect policy or trust state directly (e.g. the CLI).
func (m *Manager) Context(containerID string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[containerID]
	if !ok {
		return nil, corestate.Errorf(corestate.KindNotFound, "container %q has no security context", containerID)
	}
	cp := *ctx
	return &cp, nil
}
