// Package memory implements the Memory Manager: a per-container
// arena-style pool with first-fit allocation, block splitting, and
// adjacent-block coalescing, plus a manager that owns one pool per
// container, enforces a global usage ceiling, and runs garbage
// collection and leak-detection heuristics across every pool. Grounded
// on original_source's memory.rs MemoryPool/MemoryManager almost line
// for line.
package memory

import (
	"sort"
	"time"

	corestate "github.com/cuemby/corestate"
)

// Block describes one region of a pool, free or allocated.
type Block struct {
	Offset      int
	Size        int
	Free        bool
	AllocatedAt time.Time
}

// Pool is a single container's arena: a flat address space divided into
// Blocks, with a free list for fast first-fit lookup.
type Pool struct {
	ID         string
	TotalSize  int
	UsedSize   int
	Blocks     []Block
	freeBlocks []int // indices into Blocks that are free, in Blocks order
}

// NewPool creates an empty pool of the given total size, starting as one
// large free block.
func NewPool(id string, totalSize int) *Pool {
	return &Pool{
		ID:         id,
		TotalSize:  totalSize,
		Blocks:     []Block{{Offset: 0, Size: totalSize, Free: true}},
		freeBlocks: []int{0},
	}
}

// Allocate reserves size bytes using first-fit over the free list,
// splitting the chosen block if it is larger than needed. Returns the
// offset of the new allocation.
func (p *Pool) Allocate(size int) (int, error) {
	if size <= 0 {
		return 0, corestate.Errorf(corestate.KindPolicyViolation, "allocate: size must be positive")
	}

	for fi, bi := range p.freeBlocks {
		b := p.Blocks[bi]
		if !b.Free || b.Size < size {
			continue
		}

		p.Blocks[bi].Free = false
		p.Blocks[bi].Size = size
		p.Blocks[bi].AllocatedAt = time.Now()

		if remainder := b.Size - size; remainder > 0 {
			p.Blocks = append(p.Blocks, Block{
				Offset: b.Offset + size,
				Size:   remainder,
				Free:   true,
			})
			p.freeBlocks = append(p.freeBlocks, len(p.Blocks)-1)
		}

		p.freeBlocks = append(p.freeBlocks[:fi], p.freeBlocks[fi+1:]...)
		p.UsedSize += size
		return b.Offset, nil
	}

	return 0, corestate.Errorf(corestate.KindQuotaExceeded, "pool %q: no free block fits %d bytes", p.ID, size)
}

// Deallocate marks the block at offset free and coalesces it with any
// adjacent free neighbors.
func (p *Pool) Deallocate(offset int) error {
	for i := range p.Blocks {
		if p.Blocks[i].Offset == offset && !p.Blocks[i].Free {
			p.UsedSize -= p.Blocks[i].Size
			p.Blocks[i].Free = true
			p.freeBlocks = append(p.freeBlocks, i)
			p.coalesce()
			return nil
		}
	}
	return corestate.Errorf(corestate.KindNotFound, "pool %q: no allocated block at offset %d", p.ID, offset)
}

// coalesce merges adjacent free blocks into single larger free blocks,
// rebuilding Blocks and freeBlocks from scratch. O(n log n) in the
// number of blocks, matching memory.rs's adjacency merge.
func (p *Pool) coalesce() {
	sort.Slice(p.Blocks, func(i, j int) bool { return p.Blocks[i].Offset < p.Blocks[j].Offset })

	merged := make([]Block, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Free && b.Free && last.Offset+last.Size == b.Offset {
				last.Size += b.Size
				continue
			}
		}
		merged = append(merged, b)
	}

	p.Blocks = merged
	p.freeBlocks = p.freeBlocks[:0]
	for i, b := range p.Blocks {
		if b.Free {
			p.freeBlocks = append(p.freeBlocks, i)
		}
	}
}

// GarbageCollect drops free blocks whose most recent allocation was
// older than cutoff, i.e. blocks that have been sitting idle; blocks
// that are still allocated are always retained. Returns the number of
// blocks collected. A coalesced free block keeps the AllocatedAt of its
// lowest-offset part, which is zero if that part was never allocated;
// free blocks with a zero AllocatedAt are never collected.
func (p *Pool) GarbageCollect(cutoff time.Time) int {
	kept := make([]Block, 0, len(p.Blocks))
	collected := 0
	for _, b := range p.Blocks {
		if !b.Free {
			kept = append(kept, b)
			continue
		}
		if !b.AllocatedAt.IsZero() && b.AllocatedAt.Before(cutoff) {
			collected++
			continue
		}
		kept = append(kept, b)
	}
	p.Blocks = kept
	p.freeBlocks = p.freeBlocks[:0]
	for i, b := range p.Blocks {
		if b.Free {
			p.freeBlocks = append(p.freeBlocks, i)
		}
	}
	p.coalesce()
	return collected
}

// Utilization returns used/total as a percentage in [0, 100].
func (p *Pool) Utilization() float64 {
	if p.TotalSize == 0 {
		return 0
	}
	return float64(p.UsedSize) / float64(p.TotalSize) * 100
}

// FreeBlockCount returns the number of free blocks currently in the
// pool's free list.
func (p *Pool) FreeBlockCount() int {
	return len(p.freeBlocks)
}

// FragmentationRatio is 1 - (largest free block / total free space),
// 0 when there is no free space or it is a single contiguous block.
func (p *Pool) FragmentationRatio() float64 {
	totalFree := 0
	largestFree := 0
	for _, bi := range p.freeBlocks {
		b := p.Blocks[bi]
		totalFree += b.Size
		if b.Size > largestFree {
			largestFree = b.Size
		}
	}
	if totalFree == 0 {
		return 0
	}
	return 1 - float64(largestFree)/float64(totalFree)
}
