package slotpool

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Pool is a fixed-capacity allocator of integer slot IDs in [0, capacity).
// It is safe for concurrent use.
//
// Allocation policy is lowest-free-first: after Release(k), the next Reserve
// returns k unless a lower slot is also free. This keeps slot assignment
// deterministic under test and easy to follow in logs.
//
// All state lives behind a single mutex; Reserve and Release never interleave.
// The free set is never exposed.
type Pool struct {
	mu       sync.Mutex
	reserved *bitset.BitSet // bit set = slot reserved
	capacity uint
	usage    uint
}

// New returns a pool of the given capacity. Non-positive capacities yield a
// pool that rejects every Reserve.
func New(capacity int) *Pool {
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{
		reserved: bitset.New(uint(capacity)),
		capacity: uint(capacity),
	}
}

// Reserve claims the lowest free slot.
// ok is false when every slot is reserved (capacity exceeded).
func (p *Pool) Reserve() (id int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.usage >= p.capacity {
		return -1, false
	}

	idx, found := p.reserved.NextClear(0)
	if !found || idx >= p.capacity {
		// usage says there is room but the bitmap disagrees
		panic("slotpool: usage count out of sync with reserved set")
	}

	p.reserved.Set(idx)
	p.usage++
	return int(idx), true
}

// Release returns id to the free set.
// Out-of-range or already-free ids are ignored; they never affect other slots.
func (p *Pool) Release(id int) {
	if id < 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := uint(id)
	if idx >= p.capacity || !p.reserved.Test(idx) {
		return
	}

	p.reserved.Clear(idx)
	p.usage--
}

// Capacity returns the configured pool size.
func (p *Pool) Capacity() int {
	return int(p.capacity)
}

// InUse returns the number of reserved slots.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.usage)
}

// Reserved returns a snapshot of all reserved slots, ascending.
func (p *Pool) Reserved() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]int, 0, p.usage)
	for i, ok := p.reserved.NextSet(0); ok && i < p.capacity; i, ok = p.reserved.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}
