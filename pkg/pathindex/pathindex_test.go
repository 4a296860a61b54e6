package pathindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensSplitsDottedPath(t *testing.T) {
	idx := New(0)
	require.Equal(t, []string{"a", "b", "c"}, idx.Tokens("a.b.c"))
}

func TestTokensEmptyPathIsRoot(t *testing.T) {
	idx := New(0)
	assert.Nil(t, idx.Tokens(""))
}

func TestTokensAreCached(t *testing.T) {
	idx := New(0)
	idx.Tokens("x.y")
	require.Equal(t, 1, idx.Len())
	idx.Tokens("x.y")
	require.Equal(t, 1, idx.Len())
}

func TestCacheRespectsCeiling(t *testing.T) {
	idx := New(4)
	for i := 0; i < 10; i++ {
		idx.Tokens(fmt.Sprintf("path.%d", i))
	}
	assert.LessOrEqual(t, idx.Len(), 4)
}

func TestTokensReturnsIndependentSlice(t *testing.T) {
	idx := New(0)
	a := idx.Tokens("a.b")
	a[0] = "mutated"
	b := idx.Tokens("a.b")
	require.Equal(t, "a", b[0])
}
