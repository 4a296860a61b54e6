package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wasmCapabilities() Capabilities {
	return Capabilities{
		Name:     "wasm",
		Features: map[string]bool{"sandboxed": true, "streaming": true},
		Performance: Performance{
			StartupTime:      Fast,
			ExecutionSpeed:   Medium,
			MemoryEfficiency: Fast,
			CompilationSpeed: Medium,
		},
		MaxMemory:         64 * 1024 * 1024,
		MaxModules:        16,
		SupportsStreaming: true,
		OptimizationLevel: OptAggressive,
	}
}

func nativeCapabilities() Capabilities {
	return Capabilities{
		Name:     "native",
		Features: map[string]bool{"sandboxed": false},
		Performance: Performance{
			StartupTime:      VeryFast,
			ExecutionSpeed:   VeryFast,
			MemoryEfficiency: Medium,
			CompilationSpeed: VeryFast,
		},
		MaxMemory:         256 * 1024 * 1024,
		MaxModules:        4,
		SupportsStreaming: false,
		OptimizationLevel: OptMaxPerformance,
	}
}

func TestRegisterFirstRuntimeBecomesFallback(t *testing.T) {
	r := NewRegistry()
	r.Register(wasmCapabilities())
	r.Register(nativeCapabilities())

	sel := r.AutoSelect(Requirements{RequiredFeatures: []string{"nonexistent-feature"}})
	assert.Equal(t, "wasm", sel.Fallback)
	assert.Equal(t, "wasm", sel.Runtime)
	assert.Equal(t, 0.0, sel.Score)
}

func TestAutoSelectExcludesMissingRequiredFeature(t *testing.T) {
	r := NewRegistry()
	r.Register(wasmCapabilities())
	r.Register(nativeCapabilities())

	sel := r.AutoSelect(Requirements{RequiredFeatures: []string{"sandboxed"}})
	assert.Equal(t, "wasm", sel.Runtime)
	assert.Greater(t, sel.Score, 0.0)
}

func TestAutoSelectPrefersHigherScore(t *testing.T) {
	r := NewRegistry()
	r.Register(wasmCapabilities())
	r.Register(nativeCapabilities())

	sel := r.AutoSelect(Requirements{
		MemoryRequirement:      128 * 1024 * 1024,
		PerformanceWeights:     DefaultWeights(),
		OptimizationPreference: OptMaxPerformance,
	})
	assert.Equal(t, "native", sel.Runtime)
}

func TestAutoSelectTiesBreakByInsertionOrder(t *testing.T) {
	a := Capabilities{Name: "a", Features: map[string]bool{}}
	b := Capabilities{Name: "b", Features: map[string]bool{}}

	r := NewRegistry()
	r.Register(a)
	r.Register(b)

	sel := r.AutoSelect(Requirements{})
	assert.Equal(t, "a", sel.Runtime)
}

func TestRecordExecutionAffectsReliabilityScore(t *testing.T) {
	r := NewRegistry()
	r.Register(wasmCapabilities())

	before := r.AutoSelect(Requirements{})

	for i := 0; i < 5; i++ {
		r.RecordExecution("wasm", false)
	}
	after := r.AutoSelect(Requirements{})

	assert.Less(t, after.Score, before.Score)
}

func TestSetFallbackOverridesDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(wasmCapabilities())
	r.Register(nativeCapabilities())
	r.SetFallback("native")

	sel := r.AutoSelect(Requirements{RequiredFeatures: []string{"nonexistent-feature"}})
	assert.Equal(t, "native", sel.Fallback)
}

func TestNamesReturnsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(wasmCapabilities())
	r.Register(nativeCapabilities())
	assert.Equal(t, []string{"wasm", "native"}, r.Names())
}

func TestCapabilitiesLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(wasmCapabilities())

	cap, ok := r.Capabilities("wasm")
	require.True(t, ok)
	assert.Equal(t, "wasm", cap.Name)

	_, ok = r.Capabilities("missing")
	assert.False(t, ok)
}

func TestSelectionCountIncrementsOnWinner(t *testing.T) {
	r := NewRegistry()
	r.Register(wasmCapabilities())
	r.Register(nativeCapabilities())

	r.AutoSelect(Requirements{})
	r.AutoSelect(Requirements{})

	st := r.stats["wasm"]
	nt := r.stats["native"]
	assert.Equal(t, 2, st.SelectionCount+nt.SelectionCount)
}
