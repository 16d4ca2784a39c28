package state

import (
	"fmt"

	"github.com/oisee/liftvm/pkg/bv"
	"github.com/oisee/liftvm/pkg/contextdb"
	"github.com/oisee/liftvm/pkg/space"
)

// Machine bundles everything the evaluator needs exclusive access to for
// the duration of a step, per spec.md §5: memory, registers, unique
// temporaries, and (shared, for context reads) the context database.
type Machine struct {
	Spaces  *space.Registry
	Mem     *MemoryMap
	Regs    *RegisterState
	Unique  *UniqueState
	Context *contextdb.DB
}

// ReadMem reads size bytes at addr in the Default space, applying its
// endianness, per spec.md §4.5 "Endianness" and §6 "Byte-order contracts".
func (m *Machine) ReadMem(addr uint64, size int) (bv.BitVector, error) {
	raw, err := m.Mem.ReadBytes(addr, size)
	if err != nil {
		return bv.BitVector{}, err
	}
	if m.Mem.Space().Endian == space.BigEndian {
		return bv.FromBigEndianBytes(raw)
	}
	return bv.FromLittleEndianBytes(raw)
}

// WriteMem writes value (truncated/extended to size bytes) at addr in the
// Default space, applying its endianness.
func (m *Machine) WriteMem(addr uint64, size int, value bv.BitVector) error {
	cast, err := value.Cast(uint(size) * 8)
	if err != nil {
		return err
	}
	buf := make([]byte, size)
	if m.Mem.Space().Endian == space.BigEndian {
		if err := cast.ToBEBytes(buf); err != nil {
			return err
		}
	} else if err := cast.ToLEBytes(buf); err != nil {
		return err
	}
	return m.Mem.WriteBytes(addr, buf)
}

// ReadVarnode dispatches a varnode read by its space kind: an immediate in
// the constant space, a register, a unique-space temporary, or Default
// memory. This is the single place the evaluator goes through to resolve
// an input varnode's value.
func (m *Machine) ReadVarnode(v space.Varnode) (bv.BitVector, error) {
	if v.Space == nil {
		return bv.BitVector{}, fmt.Errorf("state: nil varnode space")
	}
	switch v.Space.Kind {
	case space.Constant:
		return bv.FromUint64(v.Offset, v.Size*8)
	case space.Register:
		return m.Regs.ReadVnd(v)
	case space.Unique:
		return m.Unique.ReadVnd(v)
	default:
		return m.ReadMem(v.Offset, int(v.Size))
	}
}

// WriteVarnode dispatches a varnode write the same way ReadVarnode
// dispatches reads. Writing to the constant space is a bug in the LIR.
func (m *Machine) WriteVarnode(v space.Varnode, value bv.BitVector) error {
	if v.Space == nil {
		return fmt.Errorf("state: nil varnode space")
	}
	switch v.Space.Kind {
	case space.Constant:
		return fmt.Errorf("state: cannot write to the constant space")
	case space.Register:
		return m.Regs.WriteVnd(v, value)
	case space.Unique:
		return m.Unique.WriteVnd(v, value)
	default:
		return m.WriteMem(v.Offset, int(v.Size), value)
	}
}
