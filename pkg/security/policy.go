// Package security implements the Security Gate: per-container
// policies, SHA-256 signature verification, a function-call access
// gate, an audit log, and periodic threat heuristics. Grounded on
// original_source's security.rs almost completely.
package security

import (
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// IsolationLevel names how strictly a container's policy constrains it.
type IsolationLevel string

const (
	IsolationLow    IsolationLevel = "low"
	IsolationMedium IsolationLevel = "medium"
	IsolationHigh   IsolationLevel = "high"
)

// Policy governs what a single container may do.
type Policy struct {
	AllowNetwork       bool
	AllowFilesystem    bool
	AllowEnv           bool
	AllowedFunctions   map[string]bool
	BlockedFunctions   map[string]bool
	MaxMemory          int
	MaxExecutionTimeMs int64
	RequireSignature   bool
	TrustedOrigins     []string
	Isolation          IsolationLevel
}

// DefaultPolicy mirrors security.rs's SecurityPolicy::default(): a
// conservative baseline that allows a handful of named functions.
func DefaultPolicy() Policy {
	return Policy{
		AllowedFunctions:   setOf("increment", "decrement", "reset", "get_state"),
		BlockedFunctions:   map[string]bool{},
		MaxMemory:          64 * 1024 * 1024,
		MaxExecutionTimeMs: 5000,
		Isolation:          IsolationMedium,
	}
}

// StrictPolicy mirrors security.rs's SecurityPolicy::strict(): the
// policy a blocked container is switched to. Its AllowedFunctions set is
// empty, which IsFunctionAllowed treats as allow-all; a blocked
// container is kept from calling anything by Context.Blocked (see
// Manager.blockContainerLocked).
func StrictPolicy() Policy {
	return Policy{
		AllowedFunctions:   map[string]bool{},
		BlockedFunctions:   map[string]bool{},
		MaxMemory:          16 * 1024 * 1024,
		MaxExecutionTimeMs: 1000,
		RequireSignature:   true,
		Isolation:          IsolationHigh,
	}
}

// PermissivePolicy mirrors security.rs's SecurityPolicy::permissive():
// an empty AllowedFunctions set under permissive semantics means allow
// all, per IsFunctionAllowed's deny-then-allow-all-if-empty rule.
func PermissivePolicy() Policy {
	return Policy{
		AllowNetwork:       true,
		AllowFilesystem:    true,
		AllowEnv:           true,
		AllowedFunctions:   map[string]bool{},
		BlockedFunctions:   map[string]bool{},
		MaxMemory:          256 * 1024 * 1024,
		MaxExecutionTimeMs: 30000,
		Isolation:          IsolationLow,
	}
}

// IsFunctionAllowed applies the deny-then-allow-all-if-empty rule: a
// function on BlockedFunctions is always denied; otherwise, an empty
// AllowedFunctions set allows everything, and a non-empty set requires
// membership.
func (p Policy) IsFunctionAllowed(name string) bool {
	if p.BlockedFunctions[name] {
		return false
	}
	if len(p.AllowedFunctions) == 0 {
		return true
	}
	return p.AllowedFunctions[name]
}

// ListAllowedFunctions returns the policy's allowed-function names in
// sorted order, for display (CLI `security apply-policy` output, audit
// inspection) where map iteration order would otherwise be unstable.
func (p Policy) ListAllowedFunctions() []string {
	names := maps.Keys(p.AllowedFunctions)
	slices.Sort(names)
	return names
}

// ListBlockedFunctions returns the policy's blocked-function names in
// sorted order, same rationale as ListAllowedFunctions.
func (p Policy) ListBlockedFunctions() []string {
	names := maps.Keys(p.BlockedFunctions)
	slices.Sort(names)
	return names
}

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Context tracks one container's live security state against its
// policy: execution timing, memory already allocated under the policy's
// ceiling, function-call count, and signature verification status.
type Context struct {
	ContainerID       string
	Policy            Policy
	ExecutionStart    *time.Time
	MemoryAllocated   int
	FunctionCalls     int
	SignatureVerified bool
	Blocked           bool
}

// NewContext creates a context for containerID under policy. A policy
// that does not require a signature starts "verified" by definition,
// matching security.rs's `!require_signature` initialization.
func NewContext(containerID string, policy Policy) *Context {
	return &Context{
		ContainerID:       containerID,
		Policy:            policy,
		SignatureVerified: !policy.RequireSignature,
	}
}

// IsTrusted reports whether the context's signature requirement has been
// satisfied.
func (c *Context) IsTrusted() bool {
	return c.SignatureVerified
}
