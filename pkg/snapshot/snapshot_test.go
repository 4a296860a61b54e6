package snapshot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndRestoreRoundTrip(t *testing.T) {
	s := New(0, nil)
	root := map[string]any{"a": float64(1), "b": "x"}

	snap, err := s.Create("main", root)
	require.NoError(t, err)

	restored, err := s.Restore(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, root, restored)
}

func TestRestoreUnknownIDIsNotFound(t *testing.T) {
	s := New(0, nil)
	_, err := s.Restore("snap_nope")
	require.Error(t, err)
}

func TestEvictsOldestOverCapacity(t *testing.T) {
	s := New(2, nil)
	var ids []string
	for i := 0; i < 5; i++ {
		snap, err := s.Create("main", map[string]any{"i": float64(i)})
		require.NoError(t, err)
		ids = append(ids, snap.ID)
	}
	assert.Equal(t, 2, s.Count())

	_, err := s.Restore(ids[0])
	require.Error(t, err, "oldest snapshot should have been evicted")

	_, err = s.Restore(ids[len(ids)-1])
	require.NoError(t, err, "newest snapshot should survive")
}

func TestListIsOldestFirst(t *testing.T) {
	s := New(0, nil)
	for i := 0; i < 3; i++ {
		_, err := s.Create("main", map[string]any{"i": float64(i)})
		require.NoError(t, err)
	}
	list := s.List()
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}
}

func TestCreateDifferentRootsProduceDifferentSnapshots(t *testing.T) {
	s := New(0, nil)
	for i := 0; i < 3; i++ {
		_, err := s.Create("main", fmt.Sprintf("root-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Count())
}
