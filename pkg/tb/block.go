// Package tb implements the translation-block cache and fetch-decode-
// execute stepper loop, per spec.md §4.7 / §2 "Translation-block cache &
// stepper": pre-decode straight-line instruction runs up to the first
// non-fallthrough terminator, cache them keyed by base address, and drive
// the evaluator through them one LIR op at a time.
package tb

import "github.com/oisee/liftvm/pkg/pcode"

// InstructionEntry is one slot in a Block: either the lifted PCode for
// the instruction at that address, or the error its decode/lift hit,
// per spec.md §3 "Translation block" ("instructions: address →
// LIR-or-error").
type InstructionEntry struct {
	PCode pcode.PCode
	Err   error
}

// Block is a pre-decoded straight-line run of instructions, per spec.md
// §3/§4.7. It terminates at the first instruction whose last LIR op is a
// control-flow terminator, or at the first decode/read error — in which
// case that error is stored as the block's last entry and nothing past
// it is pre-decoded.
type Block struct {
	BaseAddress uint64
	Addresses   []uint64
	Instrs      map[uint64]InstructionEntry

	// byteEnd is the address one past the last byte this block's
	// successfully decoded instructions span; a block that failed to
	// decode even its first instruction still claims at least one byte
	// at BaseAddress so a write there still invalidates it.
	byteEnd uint64
}

func newBlock(base uint64) *Block {
	return &Block{BaseAddress: base, Instrs: make(map[uint64]InstructionEntry)}
}

// Entry returns the instruction entry at addr, if this block covers it.
func (b *Block) Entry(addr uint64) (InstructionEntry, bool) {
	e, ok := b.Instrs[addr]
	return e, ok
}

// Failed reports whether the block's pre-decode stopped on an error
// rather than a control-flow terminator.
func (b *Block) Failed() bool {
	if len(b.Addresses) == 0 {
		return true
	}
	last := b.Addresses[len(b.Addresses)-1]
	return b.Instrs[last].Err != nil
}

// Overlaps reports whether [addr, addr+size) intersects this block's
// byte range, per spec.md §5 "self-modifying-code coherence" /
// §8 "Write-invalidates-cache".
func (b *Block) Overlaps(addr, size uint64) bool {
	if size == 0 {
		size = 1
	}
	end := b.byteEnd
	if end <= b.BaseAddress {
		end = b.BaseAddress + 1
	}
	return addr < end && b.BaseAddress < addr+size
}
