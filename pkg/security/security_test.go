package security

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corestate "github.com/cuemby/corestate"
)

func TestDefaultPolicyAllowsNamedFunctions(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.IsFunctionAllowed("increment"))
	assert.False(t, p.IsFunctionAllowed("unknown_fn"))
}

func TestPermissivePolicyAllowsEverythingWhenEmpty(t *testing.T) {
	p := PermissivePolicy()
	assert.True(t, p.IsFunctionAllowed("anything"))
}

func TestBlockedFunctionAlwaysDenied(t *testing.T) {
	p := PermissivePolicy()
	p.BlockedFunctions["dangerous"] = true
	assert.False(t, p.IsFunctionAllowed("dangerous"))
}

func TestValidateFunctionCallDeniesUnauthorized(t *testing.T) {
	m := NewManager(DefaultPolicy())
	m.ApplyPolicy("c1", DefaultPolicy())

	err := m.ValidateFunctionCall("c1", "not_allowed")
	require.Error(t, err)
	assert.Equal(t, corestate.KindPolicyViolation, corestate.KindOf(err))
}

func TestValidateFunctionCallAllowsPermitted(t *testing.T) {
	m := NewManager(DefaultPolicy())
	m.ApplyPolicy("c1", DefaultPolicy())
	require.NoError(t, m.ValidateFunctionCall("c1", "increment"))
}

func TestVerifySignatureSuccess(t *testing.T) {
	m := NewManager(DefaultPolicy())
	policy := StrictPolicy()
	m.ApplyPolicy("c1", policy)

	data := []byte("payload")
	sum := sha256.Sum256(data)
	sig := hex.EncodeToString(sum[:])

	require.NoError(t, m.VerifySignature("c1", data, sig))
}

func TestVerifySignatureMismatchTriggersCriticalAndBlocks(t *testing.T) {
	m := NewManager(DefaultPolicy())
	m.ApplyPolicy("c1", StrictPolicy())

	err := m.VerifySignature("c1", []byte("payload"), "not-a-real-signature")
	require.Error(t, err)

	events := m.SecurityEvents("c1")
	require.NotEmpty(t, events)
	assert.Equal(t, SeverityCritical, events[len(events)-1].Severity)

	ctx, err := m.Context("c1")
	require.NoError(t, err)
	assert.True(t, ctx.Blocked)

	callErr := m.ValidateFunctionCall("c1", "get_state")
	require.Error(t, callErr)
}

func TestValidateMemoryAllocationRespectsPolicyCeiling(t *testing.T) {
	m := NewManager(DefaultPolicy())
	policy := DefaultPolicy()
	policy.MaxMemory = 100
	m.ApplyPolicy("c1", policy)

	require.NoError(t, m.ValidateMemoryAllocation("c1", 60))
	err := m.ValidateMemoryAllocation("c1", 60)
	require.Error(t, err)
	assert.Equal(t, corestate.KindQuotaExceeded, corestate.KindOf(err))
}

func TestDetectThreatsFlagsMemoryPressure(t *testing.T) {
	m := NewManager(DefaultPolicy())
	policy := DefaultPolicy()
	policy.MaxMemory = 100
	m.ApplyPolicy("c1", policy)
	require.NoError(t, m.ValidateMemoryAllocation("c1", 90))

	events := m.DetectThreats()
	require.NotEmpty(t, events)
	assert.Equal(t, EventSuspiciousActivity, events[0].Kind)
}

func TestCleanupContainerRemovesContext(t *testing.T) {
	m := NewManager(DefaultPolicy())
	m.ApplyPolicy("c1", DefaultPolicy())
	m.CleanupContainer("c1")

	_, err := m.Context("c1")
	require.Error(t, err)
}
