// Package arena implements the per-translation-block bump allocator the
// parser and LIR builder share while decoding one instruction at a time,
// per spec.md §4.3/§9 "Per-decode arena": a reusable monotonic region that
// gets bulk-freed by truncation rather than by tracking individual frees.
// Go's GC makes manual lifetime tracking unnecessary; what the arena still
// buys is avoiding a fresh heap allocation (and its GC pressure) for every
// instruction's LIR ops and parser scratch nodes.
package arena

import "github.com/oisee/liftvm/pkg/pcode"

// FixedHandle is a resolved (space, offset, size) triple for one operand
// or constructor, produced by the parser's "resolve-handles" phase, per
// spec.md §4.2 Phase 2.
type FixedHandle struct {
	SpaceID int
	Offset  uint64
	Size    uint
}

// ConstructState is one node in the parser's scratch tree, built fresh for
// every operand resolved during a decode and reused (by index, not by
// pointer identity) across decodes via the arena's node pool.
type ConstructState struct {
	SymbolID      int // the operand's defining symbol, or the root subtable symbol
	ConstructorID int // index into the matched Subtable.Constructors, when SymbolID names a subtable
	OperandIndex  int // which operand of Parent this node resolves, or -1 for the root
	Offset        uint64
	Length        int
	Parent        int // index into the arena's node slice, or -1 for the root
	Children      []int
	Handle        FixedHandle
}

// Arena is a per-translation-block scratch region. It is reset (truncated,
// not reallocated) between translation blocks, not between instructions
// within a block — spec.md §9 states the arena's lifetime is the owning
// translation block's, shared across every instruction decoded into it.
type Arena struct {
	ops   []pcode.Op
	nodes []ConstructState
}

// New preallocates an arena sized for opCap ops and nodeCap scratch nodes.
// Both are growth hints, not hard limits — append still grows past them.
func New(opCap, nodeCap int) *Arena {
	return &Arena{
		ops:   make([]pcode.Op, 0, opCap),
		nodes: make([]ConstructState, 0, nodeCap),
	}
}

// Reset bulk-frees the arena by truncating its backing slices to zero
// length, keeping their capacity for the next translation block.
func (a *Arena) Reset() {
	a.ops = a.ops[:0]
	a.nodes = a.nodes[:0]
}

// AppendOp appends op to the arena's LIR op vector and returns its index.
func (a *Arena) AppendOp(op pcode.Op) int {
	a.ops = append(a.ops, op)
	return len(a.ops) - 1
}

// Ops returns the full LIR op vector accumulated so far. The returned
// slice aliases the arena's backing array and is only valid until the next
// Reset.
func (a *Arena) Ops() []pcode.Op { return a.ops }

// OpAt returns a pointer to the op at index i, letting the builder patch a
// previously emitted op in place (used for relative-label resolution).
func (a *Arena) OpAt(i int) *pcode.Op { return &a.ops[i] }

// NewNode appends a fresh ConstructState under parent and returns its
// index, matching spec.md §4.2's bounded node pool (observed maxima: 128
// constructor nodes, 64 operands per node) without hard-capping it —
// malformed specifications that nest deeper simply grow the slice.
func (a *Arena) NewNode(parent int) int {
	a.nodes = append(a.nodes, ConstructState{Parent: parent, Length: -1})
	idx := len(a.nodes) - 1
	if parent >= 0 {
		a.nodes[parent].Children = append(a.nodes[parent].Children, idx)
	}
	return idx
}

// Node returns a pointer to the scratch node at index i.
func (a *Arena) Node(i int) *ConstructState { return &a.nodes[i] }

// NodeCount reports how many scratch nodes are currently live in the
// arena.
func (a *Arena) NodeCount() int { return len(a.nodes) }
