package pcode

import (
	"github.com/oisee/liftvm/pkg/bv"
	"github.com/oisee/liftvm/pkg/space"
	"github.com/oisee/liftvm/pkg/state"
)

// Eval executes one LIR operation against a concrete state and returns the
// control-flow target, per spec.md §4.4. It is a pure function of
// (location, op, &mut state): Eval never mutates loc itself — the stepper
// advances the micro-position between calls.
func Eval(loc Location, op Op, m *state.Machine) (Target, error) {
	switch op.Opcode {
	case Copy:
		return Fall(), evalUnaryCopy(m, op)
	case Load:
		return Fall(), evalLoad(m, op)
	case Store:
		return Fall(), evalStore(m, op)
	case Branch:
		return BranchTo(AbsoluteFrom(loc.Address, op.Inputs[0], loc.Micro)), nil
	case Call:
		return CallTo(AbsoluteFrom(loc.Address, op.Inputs[0], loc.Micro)), nil
	case CBranch:
		cond, err := m.ReadVarnode(op.Inputs[1])
		if err != nil {
			return Target{}, err
		}
		if !cond.IsZero() {
			return BranchTo(AbsoluteFrom(loc.Address, op.Inputs[0], loc.Micro)), nil
		}
		return Fall(), nil
	case IBranch:
		addr, err := evalRuntimeAddress(m, op.Inputs[0])
		if err != nil {
			return Target{}, err
		}
		return BranchTo(Location{Address: addr}), nil
	case ICall:
		addr, err := evalRuntimeAddress(m, op.Inputs[0])
		if err != nil {
			return Target{}, err
		}
		return CallTo(Location{Address: addr}), nil
	case Return:
		addr, err := evalRuntimeAddress(m, op.Inputs[0])
		if err != nil {
			return Target{}, err
		}
		return ReturnTo(Location{Address: addr}), nil
	case IntAdd, IntSub, IntMul, IntDiv, IntSDiv, IntRem, IntSRem,
		IntAnd, IntOr, IntXor, IntLShift, IntRShift, IntSRShift:
		return Fall(), evalIntBinary(m, op)
	case IntEq, IntNotEq, IntLess, IntSLess, IntLessEq, IntSLessEq:
		return Fall(), evalIntCompare(m, op)
	case IntCarry, IntSCarry, IntSBorrow:
		return Fall(), evalCarryBorrow(m, op)
	case IntNeg, IntNot:
		return Fall(), evalUnaryArith(m, op)
	case IntZExt, IntSExt:
		return Fall(), evalExtend(m, op)
	case BoolNot:
		return Fall(), evalBoolNot(m, op)
	case BoolAnd, BoolOr, BoolXor:
		return Fall(), evalBoolBinary(m, op)
	case PopCount, LZCount:
		return Fall(), evalCount(m, op)
	case Subpiece:
		return Fall(), evalSubpiece(m, op)
	case CallOther:
		// User-op dispatch has no fixed semantics here, and the evaluator
		// has no way to register user-op handlers: CallOther is always a
		// no-op fall-through.
		return Fall(), nil
	default:
		return Target{}, &UnsupportedOpError{Op: op.Opcode}
	}
}

func evalRuntimeAddress(m *state.Machine, v space.Varnode) (uint64, error) {
	val, err := m.ReadVarnode(v)
	if err != nil {
		return 0, err
	}
	if val.Width() > 64 {
		return 0, &InvalidAddressError{Width: val.Width()}
	}
	return val.Uint64(), nil
}

func evalUnaryCopy(m *state.Machine, op Op) error {
	in0, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	return writeOut(m, op, in0)
}

func evalLoad(m *state.Machine, op Op) error {
	ptr, err := m.ReadVarnode(op.Inputs[1])
	if err != nil {
		return err
	}
	if ptr.Width() > 64 {
		return &InvalidAddressError{Width: ptr.Width()}
	}
	val, err := m.ReadMem(ptr.Uint64(), int(op.Output.Size))
	if err != nil {
		return err
	}
	return writeOut(m, op, val)
}

func evalStore(m *state.Machine, op Op) error {
	ptr, err := m.ReadVarnode(op.Inputs[1])
	if err != nil {
		return err
	}
	if ptr.Width() > 64 {
		return &InvalidAddressError{Width: ptr.Width()}
	}
	val, err := m.ReadVarnode(op.Inputs[2])
	if err != nil {
		return err
	}
	return m.WriteMem(ptr.Uint64(), int(op.Inputs[2].Size), val)
}

func writeOut(m *state.Machine, op Op, result bv.BitVector) error {
	if op.Output == nil {
		return nil
	}
	cast, err := result.Cast(op.Output.Size * 8)
	if err != nil {
		return err
	}
	return m.WriteVarnode(*op.Output, cast)
}

// lift_int2 reads both inputs, casts to the wider of the two widths
// (matching the permissive behavior spec.md §9 requires preserving, NOT
// the strict SLEIGH "inputs must already match" contract), performs the
// operator, and casts the result to the output width.
func lift_int2(m *state.Machine, op Op, signed bool, f func(a, b bv.BitVector) (bv.BitVector, error)) error {
	a, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	b, err := m.ReadVarnode(op.Inputs[1])
	if err != nil {
		return err
	}
	siz := a.Width()
	if b.Width() > siz {
		siz = b.Width()
	}
	a, err = a.Cast(siz)
	if err != nil {
		return err
	}
	b, err = b.Cast(siz)
	if err != nil {
		return err
	}
	if signed {
		a, b = a.Signed(), b.Signed()
	} else {
		a, b = a.Unsigned(), b.Unsigned()
	}
	result, err := f(a, b)
	if err != nil {
		return err
	}
	return writeOut(m, op, result)
}

func evalIntBinary(m *state.Machine, op Op) error {
	switch op.Opcode {
	case IntAdd:
		return lift_int2(m, op, false, bv.BitVector.Add)
	case IntSub:
		return lift_int2(m, op, false, bv.BitVector.Sub)
	case IntMul:
		return lift_int2(m, op, false, bv.BitVector.Mul)
	case IntDiv:
		return lift_int2(m, op, false, divWrap)
	case IntSDiv:
		return lift_int2(m, op, true, divWrap)
	case IntRem:
		return lift_int2(m, op, false, remWrap)
	case IntSRem:
		return lift_int2(m, op, true, remWrap)
	case IntAnd:
		return lift_int2(m, op, false, bv.BitVector.And)
	case IntOr:
		return lift_int2(m, op, false, bv.BitVector.Or)
	case IntXor:
		return lift_int2(m, op, false, bv.BitVector.Xor)
	case IntLShift:
		return lift_int2(m, op, false, bv.BitVector.Lsh)
	case IntRShift:
		return lift_int2(m, op, false, bv.BitVector.Rsh)
	case IntSRShift:
		return lift_int2(m, op, true, bv.BitVector.Rsh)
	}
	return &UnsupportedOpError{Op: op.Opcode}
}

func divWrap(a, b bv.BitVector) (bv.BitVector, error) {
	v, err := a.Div(b)
	if err == bv.ErrDivideByZero {
		return bv.BitVector{}, &DivideByZeroError{}
	}
	return v, err
}

func remWrap(a, b bv.BitVector) (bv.BitVector, error) {
	v, err := a.Rem(b)
	if err == bv.ErrDivideByZero {
		return bv.BitVector{}, &DivideByZeroError{}
	}
	return v, err
}

func evalIntCompare(m *state.Machine, op Op) error {
	a, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	b, err := m.ReadVarnode(op.Inputs[1])
	if err != nil {
		return err
	}
	signed := op.Opcode == IntSLess || op.Opcode == IntSLessEq
	if signed {
		a, b = a.Signed(), b.Signed()
	} else {
		a, b = a.Unsigned(), b.Unsigned()
	}
	cmp, err := a.Cmp(b)
	if err != nil {
		return err
	}
	var result bool
	switch op.Opcode {
	case IntEq:
		result = cmp == 0
	case IntNotEq:
		result = cmp != 0
	case IntLess, IntSLess:
		result = cmp < 0
	case IntLessEq, IntSLessEq:
		result = cmp <= 0
	}
	return writeOut(m, op, bv.BoolToBV(result))
}

func evalCarryBorrow(m *state.Machine, op Op) error {
	a, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	b, err := m.ReadVarnode(op.Inputs[1])
	if err != nil {
		return err
	}
	var result bool
	switch op.Opcode {
	case IntCarry:
		result, err = a.Unsigned().Carry(b.Unsigned())
	case IntSCarry:
		result, err = a.Signed().SignedCarry(b.Signed())
	case IntSBorrow:
		result, err = a.Signed().Borrow(b.Signed())
	}
	if err != nil {
		return err
	}
	return writeOut(m, op, bv.BoolToBV(result))
}

func evalUnaryArith(m *state.Machine, op Op) error {
	a, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	var result bv.BitVector
	if op.Opcode == IntNeg {
		result = a.Signed().Neg()
	} else {
		result = a.Unsigned().Not()
	}
	return writeOut(m, op, result)
}

func evalExtend(m *state.Machine, op Op) error {
	a, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	if op.Opcode == IntSExt {
		a = a.Signed()
	} else {
		a = a.Unsigned()
	}
	result, err := a.Cast(op.Output.Size * 8)
	if err != nil {
		return err
	}
	return writeOut(m, op, result)
}

func evalBoolNot(m *state.Machine, op Op) error {
	a, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	return writeOut(m, op, bv.BoolToBV(a.IsZero()))
}

func evalBoolBinary(m *state.Machine, op Op) error {
	a, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	b, err := m.ReadVarnode(op.Inputs[1])
	if err != nil {
		return err
	}
	av, bvv := !a.IsZero(), !b.IsZero()
	var result bool
	switch op.Opcode {
	case BoolAnd:
		result = av && bvv
	case BoolOr:
		result = av || bvv
	case BoolXor:
		result = av != bvv
	}
	return writeOut(m, op, bv.BoolToBV(result))
}

func evalCount(m *state.Machine, op Op) error {
	a, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	var n uint
	if op.Opcode == PopCount {
		n = a.CountOnes()
	} else {
		n = a.LeadingZeros()
	}
	result, err := bv.FromUint64(uint64(n), op.Output.Size*8)
	if err != nil {
		return err
	}
	return writeOut(m, op, result)
}

// evalSubpiece implements spec.md §4.1/§9's Subpiece contract verbatim,
// including the load-bearing double cast noted as an open question: the
// intermediate zero-extension via Unsigned() before the final cast to
// dst_size matters when the source operand was signed.
func evalSubpiece(m *state.Machine, op Op) error {
	src, err := m.ReadVarnode(op.Inputs[0])
	if err != nil {
		return err
	}
	offsetBits := op.Inputs[1].Offset * 8
	srcSize := uint64(src.Width())
	var trunSize uint64
	if srcSize > offsetBits {
		trunSize = srcSize - offsetBits
	}
	shifted, err := src.Unsigned().Rsh(mustBV(offsetBits, src.Width()))
	if err != nil {
		return err
	}
	if trunSize == 0 {
		return writeOut(m, op, bv.Zero(op.Output.Size*8))
	}
	truncated, err := shifted.Cast(uint(trunSize))
	if err != nil {
		return err
	}
	widened, err := truncated.Unsigned().Cast(op.Output.Size * 8)
	if err != nil {
		return err
	}
	return writeOut(m, op, widened)
}

func mustBV(v uint64, width uint) bv.BitVector {
	b, _ := bv.FromUint64(v, width)
	return b
}
