package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/corestate/pkg/events"
	"github.com/cuemby/corestate/pkg/memory"
	"github.com/cuemby/corestate/pkg/pathindex"
	"github.com/cuemby/corestate/pkg/security"
	"github.com/cuemby/corestate/pkg/store"
)

func newTestManager() *Manager {
	stores := store.NewRegistry(pathindex.DefaultCeiling)
	mem := memory.NewManager(memory.DefaultGlobalLimit, memory.DefaultGCThreshold)
	sec := security.NewManager(security.DefaultPolicy())
	bus := events.NewBroker()
	bus.Start()
	return NewManager(stores, mem, sec, bus)
}

func testConfig(id string) Config {
	return Config{
		ID:             id,
		Name:           "counter-" + id,
		StoreName:      "counters",
		StatePath:      "containers." + id,
		InitialState:   map[string]any{"count": 0},
		MemoryLimit:    4096,
		EnableSecurity: true,
		Policy:         security.DefaultPolicy(),
	}
}

func TestCreateTransitionsToRunning(t *testing.T) {
	m := newTestManager()
	c, err := m.Create(testConfig("c1"))
	require.NoError(t, err)
	assert.Equal(t, Running, c.Status())
}

func TestCreateDuplicateIsRejected(t *testing.T) {
	m := newTestManager()
	_, err := m.Create(testConfig("c1"))
	require.NoError(t, err)
	_, err = m.Create(testConfig("c1"))
	assert.Error(t, err)
}

func TestPauseResumeCycle(t *testing.T) {
	m := newTestManager()
	_, err := m.Create(testConfig("c1"))
	require.NoError(t, err)

	require.NoError(t, m.Pause("c1"))
	c, err := m.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, Paused, c.Status())

	require.NoError(t, m.Resume("c1"))
	assert.Equal(t, Running, c.Status())
}

func TestPauseWhenNotRunningFails(t *testing.T) {
	m := newTestManager()
	_, err := m.Create(testConfig("c1"))
	require.NoError(t, err)
	require.NoError(t, m.Stop("c1"))

	assert.Error(t, m.Pause("c1"))
}

func TestCallPassesGateForAllowedFunction(t *testing.T) {
	m := newTestManager()
	_, err := m.Create(testConfig("c1"))
	require.NoError(t, err)

	require.NoError(t, m.Call("c1", "increment", nil))
	require.NoError(t, m.Call("c1", "get_state", nil))
}

func TestCallOnStoppedContainerFails(t *testing.T) {
	m := newTestManager()
	_, err := m.Create(testConfig("c1"))
	require.NoError(t, err)
	require.NoError(t, m.Stop("c1"))

	assert.Error(t, m.Call("c1", "increment", nil))
}

func TestCallUnknownFunctionFails(t *testing.T) {
	m := newTestManager()
	_, err := m.Create(testConfig("c1"))
	require.NoError(t, err)

	assert.Error(t, m.Call("c1", "nonexistent", nil))
}

func TestCallDeniedByPolicy(t *testing.T) {
	m := newTestManager()
	cfg := testConfig("c1")
	cfg.Policy = security.Policy{
		AllowedFunctions: map[string]bool{"get_state": true},
	}
	_, err := m.Create(cfg)
	require.NoError(t, err)

	assert.Error(t, m.Call("c1", "increment", nil))
}

func TestRemoveReleasesResources(t *testing.T) {
	m := newTestManager()
	_, err := m.Create(testConfig("c1"))
	require.NoError(t, err)

	require.NoError(t, m.Remove("c1"))
	_, err = m.Get("c1")
	assert.Error(t, err)
}

func TestCountsByStatus(t *testing.T) {
	m := newTestManager()
	_, err := m.Create(testConfig("c1"))
	require.NoError(t, err)
	_, err = m.Create(testConfig("c2"))
	require.NoError(t, err)
	require.NoError(t, m.Stop("c2"))

	counts := m.CountsByStatus()
	assert.Equal(t, 1, counts["running"])
	assert.Equal(t, 1, counts["stopped"])
}
