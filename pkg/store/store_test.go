package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corestate "github.com/cuemby/corestate"
	"github.com/cuemby/corestate/pkg/pathindex"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New("test", pathindex.New(0))
}

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t)
	root, err := s.Set("user.name", "ada")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": map[string]any{"name": "ada"}}, root)

	v, err := s.Get("user.name")
	require.NoError(t, err)
	assert.Equal(t, "ada", v)
}

func TestGetMissingPathIsUndefined(t *testing.T) {
	s := newTestStore(t)
	v, err := s.Get("missing.path")
	require.NoError(t, err)
	assert.True(t, corestate.IsUndefined(v))
}

func TestMergeShallowMerges(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Set("user", map[string]any{"name": "ada", "age": 30})
	require.NoError(t, err)
	root, err := s.Merge("user", map[string]any{"age": 31, "city": "london"})
	require.NoError(t, err)

	user := root.(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "ada", user["name"])
	assert.Equal(t, float64(31), user["age"])
	assert.Equal(t, "london", user["city"])
}

func TestUpdateAppliesFunction(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Set("counter", float64(1))
	require.NoError(t, err)
	_, err = s.Update("counter", func(cur corestate.Value) (corestate.Value, error) {
		return cur.(float64) + 1, nil
	})
	require.NoError(t, err)
	v, err := s.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, float64(2), v)
}

func TestNoopUpdateSkipsNotify(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Set("x", float64(1))
	require.NoError(t, err)

	calls := 0
	s.Subscribe(func(corestate.Value) { calls++ })

	_, err = s.Set("x", float64(1))
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestUnsubscribeRemovesOnlyItself(t *testing.T) {
	s := newTestStore(t)
	var aCalls, bCalls int
	idA := s.Subscribe(func(corestate.Value) { aCalls++ })
	s.Subscribe(func(corestate.Value) { bCalls++ })

	s.Unsubscribe(idA)
	_, err := s.Set("k", "v")
	require.NoError(t, err)

	assert.Equal(t, 0, aCalls)
	assert.Equal(t, 1, bCalls)
	assert.Equal(t, 1, s.SubscriberCount())
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	s := newTestStore(t)
	var otherCalls int
	s.Subscribe(func(corestate.Value) { panic("boom") })
	s.Subscribe(func(corestate.Value) { otherCalls++ })

	_, err := s.Set("k", "v")
	require.NoError(t, err)
	assert.Equal(t, 1, otherCalls)
}

func TestConcurrentSetsAllCommit(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Set("n.v", float64(i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err := s.Get("n.v")
	require.NoError(t, err)
}

func TestBatchExecuteIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.NewBatch().
		Set("a", float64(1)).
		Set("b", float64(2)).
		Execute()
	require.NoError(t, err)

	a, _ := s.Get("a")
	b, _ := s.Get("b")
	assert.Equal(t, float64(1), a)
	assert.Equal(t, float64(2), b)
}

func TestBatchExecuteFailureReportsIndex(t *testing.T) {
	s := newTestStore(t)
	_, err := s.NewBatch().
		Set("a", float64(1)).
		Merge("a", "not-an-object").
		Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch op 1")
}

func TestBatchExecuteNotifiesOnce(t *testing.T) {
	s := newTestStore(t)
	notifications := 0
	s.Subscribe(func(corestate.Value) { notifications++ })

	_, err := s.NewBatch().
		Set("a", float64(1)).
		Set("b", float64(2)).
		Set("c", float64(3)).
		Execute()
	require.NoError(t, err)
	assert.Equal(t, 1, notifications)
}

func TestRegistryInitDuplicate(t *testing.T) {
	r := NewRegistry(0)
	_, err := r.Init("s1")
	require.NoError(t, err)
	_, err = r.Init("s1")
	require.Error(t, err)
	assert.Equal(t, corestate.KindDuplicate, corestate.KindOf(err))
}

func TestRegistrySelectMissing(t *testing.T) {
	r := NewRegistry(0)
	_, err := r.Select("nope")
	require.Error(t, err)
	assert.Equal(t, corestate.KindNotFound, corestate.KindOf(err))
}
