package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corestate "github.com/cuemby/corestate"
)

func TestInitStoreAndDispatchSet(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.InitStore("docs", map[string]any{}))

	_, err := e.Dispatch("docs", OpSet, "user.name", "ada")
	require.NoError(t, err)

	v, err := e.Select("docs", "user.name")
	require.NoError(t, err)
	assert.Equal(t, "ada", v)
}

func TestSelectMissingPathIsUndefined(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.InitStore("docs", nil))
	v, err := e.Select("docs", "nope")
	require.NoError(t, err)
	assert.True(t, corestate.IsUndefined(v))
}

func TestInitStoreDuplicateFails(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.InitStore("docs", nil))
	err := e.InitStore("docs", nil)
	assert.Equal(t, corestate.KindDuplicate, corestate.KindOf(err))
}

func TestDispatchUnknownStoreFails(t *testing.T) {
	e := New(DefaultConfig())
	_, err := e.Dispatch("missing", OpSet, "a", 1)
	assert.Equal(t, corestate.KindNotFound, corestate.KindOf(err))
}

func TestDispatchBatchAppliesAllOrNothing(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.InitStore("docs", nil))

	records := []BatchRecord{
		{Op: OpSet, Path: "a", Value: 1},
		{Op: OpSet, Path: "b", Value: 2},
	}
	_, err := e.Dispatch("docs", OpBatch, "", records)
	require.NoError(t, err)

	a, _ := e.Select("docs", "a")
	b, _ := e.Select("docs", "b")
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.InitStore("docs", nil))

	notified := make(chan corestate.Value, 1)
	id, err := e.Subscribe("docs", func(root corestate.Value) { notified <- root })
	require.NoError(t, err)

	_, err = e.Dispatch("docs", OpSet, "x", 42)
	require.NoError(t, err)

	select {
	case got := <-notified:
		assert.NotNil(t, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber was not notified")
	}

	require.NoError(t, e.Unsubscribe("docs", id))
	require.NoError(t, e.Unsubscribe("docs", "unknown-id"))
}

func TestSnapshotCreateAndRestore(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.InitStore("docs", nil))
	_, err := e.Dispatch("docs", OpSet, "x", 7)
	require.NoError(t, err)

	snap, err := e.CreateSnapshot("docs")
	require.NoError(t, err)

	_, err = e.Dispatch("docs", OpSet, "x", 9)
	require.NoError(t, err)

	root, err := e.RestoreSnapshot("docs", snap.ID)
	require.NoError(t, err)
	m := root.(map[string]any)
	assert.Equal(t, float64(7), m["x"])
}

func TestMetricsSourceReflectsState(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.InitStore("docs", nil))

	assert.Equal(t, 1, e.StoreCount())
	assert.Equal(t, 0, e.SnapshotCount())
}

func TestDefaultReturnsSameEngine(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}
