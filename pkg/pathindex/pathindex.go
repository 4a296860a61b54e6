// Package pathindex parses dotted document paths ("a.b.c") into token
// sequences and memoizes the result behind a bounded cache, so repeated
// dispatches against the same path don't re-tokenize the string every
// time. Grounded on original_source's lib.rs PATH_CACHE/
// parse_path_optimized (a DashMap<String, Arc<SmallVec<[String;8]>>>
// with an eviction sweep once the cache grows past its ceiling).
package pathindex

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultCeiling is the suggested hard cache size from the spec.
const DefaultCeiling = 10000

// Index tokenizes and caches dotted paths behind a size-bounded cache
// that evicts the least recently used path.
type Index struct {
	mu      sync.Mutex
	cache   *lru.Cache
	ceiling int
}

// New builds a path index with the given cache ceiling. A ceiling <= 0
// uses DefaultCeiling.
func New(ceiling int) *Index {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	c, _ := lru.New(ceiling)
	return &Index{cache: c, ceiling: ceiling}
}

// Tokens splits a dotted path into its component tokens, using the
// cached tokenization when available. An empty path yields an empty
// token slice (root).
func (idx *Index) Tokens(path string) []string {
	if path == "" {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if v, ok := idx.cache.Get(path); ok {
		cached := v.([]string)
		out := make([]string, len(cached))
		copy(out, cached)
		return out
	}

	tokens := strings.Split(path, ".")
	idx.cache.Add(path, tokens)

	out := make([]string, len(tokens))
	copy(out, tokens)
	return out
}

// Len returns the current number of cached paths.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.cache.Len()
}

// Ceiling returns the configured cache ceiling.
func (idx *Index) Ceiling() int {
	return idx.ceiling
}
