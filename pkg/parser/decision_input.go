package parser

import "github.com/oisee/liftvm/pkg/contextdb"

// bigEndianWindow reads exactly numBytes bytes from b starting at
// byteOffset as one big-endian integer (byte 0 most significant),
// treating out-of-range bytes as zero. Sizing the window to exactly what
// the caller needs — rather than a fixed 8 bytes — keeps bit 0 anchored
// to the window's own last byte regardless of how short the remaining
// instruction stream is, matching spec.md §4.2's "bytes read big-endian"
// wording for token/pattern fields.
func bigEndianWindow(b []byte, byteOffset, numBytes int) uint64 {
	var v uint64
	for i := 0; i < numBytes; i++ {
		v <<= 8
		if idx := byteOffset + i; idx >= 0 && idx < len(b) {
			v |= uint64(b[idx])
		}
	}
	return v
}

func extractBits(raw uint64, start, end uint) uint64 {
	n := end - start
	if n >= 64 {
		return raw >> start
	}
	return (raw >> start) & (1<<n - 1)
}

func bitLen64(v uint64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}

// decisionInput implements sym.DecisionInput over one operand's byte
// window and the parse's local (in-progress) context snapshot.
type decisionInput struct {
	bytes      []byte
	byteOffset int
	ctx        *contextdb.Words
}

func (d *decisionInput) InstrField(startBit, size int) uint64 {
	nbytes := (startBit + size + 7) / 8
	raw := bigEndianWindow(d.bytes, d.byteOffset, nbytes)
	return extractBits(raw, uint(startBit), uint(startBit+size))
}

func (d *decisionInput) InstrPatternBits(mask uint64) uint64 {
	nbytes := (bitLen64(mask) + 7) / 8
	if nbytes == 0 {
		nbytes = 1
	}
	raw := bigEndianWindow(d.bytes, d.byteOffset, nbytes)
	return raw & mask
}

// ContextField and ContextPatternBits both operate over context word 0:
// DecisionPair carries a single uint32 context mask/value pair, so a
// decision node's context test is always scoped to one word. A
// specification needing more than 32 bits of context-driven decisioning
// spans multiple DecisionNodes instead of one field read.
func (d *decisionInput) ContextField(startBit, size int) uint64 {
	return extractBits(uint64(d.ctx.Vals[0]), uint(startBit), uint(startBit+size))
}

func (d *decisionInput) ContextPatternBits(mask uint32) uint32 {
	return d.ctx.Vals[0] & mask
}
