package tb

import "sync"

// Cache is the mutex-guarded map[address]*Block from spec.md §2/§4.7/§5:
// a mutex plus a backing collection with snapshot-returning getters.
// Guarding it with a
// mutex matters even though the decode/lift/execute pipeline itself is
// single-threaded per spec.md §5: it lets a host embed a Stepper in a
// concurrent service — e.g. answering a debugger's "is this address
// cached?" query from another goroutine while a step is in flight —
// without a second cache implementation.
//
// Blocks are conceptually reference-counted so that ongoing execution
// retains a lifted LIR even after a Flush; in Go this
// falls out of the language for free; a goroutine mid-Step already holds
// the *Block pointer InstructionBlock returned, and removing it from the
// map doesn't reclaim it while that reference is live.
type Cache struct {
	mu      sync.Mutex
	byBase  map[uint64]*Block
	byInstr map[uint64]uint64 // instruction address -> owning block's base
}

// NewCache creates an empty translation-block cache.
func NewCache() *Cache {
	return &Cache{byBase: make(map[uint64]*Block), byInstr: make(map[uint64]uint64)}
}

// Block returns the block whose base address is addr, if cached.
func (c *Cache) Block(addr uint64) (*Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.byBase[addr]
	return b, ok
}

// InstructionBlock returns the block that owns addr as one of its
// decoded instruction addresses — not merely its base — per spec.md
// §4.7 stepper step 2: "pc.address not in the TB cache as an
// *instruction* (not block)".
func (c *Cache) InstructionBlock(addr uint64) (*Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base, ok := c.byInstr[addr]
	if !ok {
		return nil, false
	}
	return c.byBase[base], true
}

// Put registers a freshly built block, indexing every instruction address
// it covers for InstructionBlock lookups.
func (c *Cache) Put(b *Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byBase[b.BaseAddress] = b
	for _, addr := range b.Addresses {
		c.byInstr[addr] = b.BaseAddress
	}
}

// Invalidate removes every cached block whose byte range overlaps
// [addr, addr+size), per spec.md §5/§8 write-invalidation.
func (c *Cache) Invalidate(addr, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for base, b := range c.byBase {
		if !b.Overlaps(addr, size) {
			continue
		}
		delete(c.byBase, base)
		for _, ia := range b.Addresses {
			if c.byInstr[ia] == base {
				delete(c.byInstr, ia)
			}
		}
	}
}

// Flush drops every cached block. No LRU runs by default, per spec.md §5
// — flush is always explicit or invalidation-driven.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byBase = make(map[uint64]*Block)
	c.byInstr = make(map[uint64]uint64)
}

// Len reports how many blocks are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byBase)
}
