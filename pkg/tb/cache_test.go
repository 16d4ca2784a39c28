package tb

import "testing"

func TestCachePutAndInstructionLookup(t *testing.T) {
	c := NewCache()
	b := newBlock(0x1000)
	b.Addresses = []uint64{0x1000, 0x1002}
	b.byteEnd = 0x1004
	c.Put(b)

	if _, ok := c.Block(0x1000); !ok {
		t.Fatal("expected block lookup by base to succeed")
	}
	if got, ok := c.InstructionBlock(0x1002); !ok || got != b {
		t.Fatal("expected instruction lookup at 0x1002 to find the same block")
	}
	if _, ok := c.InstructionBlock(0x1001); ok {
		t.Error("0x1001 was never a decoded instruction address")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 cached block, got %d", c.Len())
	}
}

func TestCacheInvalidateOverlap(t *testing.T) {
	c := NewCache()
	a := newBlock(0x1000)
	a.Addresses = []uint64{0x1000}
	a.byteEnd = 0x1002
	c.Put(a)

	b := newBlock(0x2000)
	b.Addresses = []uint64{0x2000}
	b.byteEnd = 0x2002
	c.Put(b)

	c.Invalidate(0x1000, 1)

	if _, ok := c.Block(0x1000); ok {
		t.Error("expected the overlapping block to be invalidated")
	}
	if _, ok := c.InstructionBlock(0x1000); ok {
		t.Error("expected the instruction index to be cleared too")
	}
	if _, ok := c.Block(0x2000); !ok {
		t.Error("expected the non-overlapping block to survive")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 surviving block, got %d", c.Len())
	}
}

func TestCacheFlush(t *testing.T) {
	c := NewCache()
	b := newBlock(0x1000)
	b.Addresses = []uint64{0x1000}
	b.byteEnd = 0x1001
	c.Put(b)
	c.Flush()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Flush, got %d blocks", c.Len())
	}
	if _, ok := c.InstructionBlock(0x1000); ok {
		t.Error("expected instruction index cleared after Flush")
	}
}
