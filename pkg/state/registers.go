package state

import (
	"fmt"

	"github.com/oisee/liftvm/pkg/bv"
	"github.com/oisee/liftvm/pkg/space"
)

// RegRange is where a named register lives in the flat register backing
// store: (offset, size) within the Register space.
type RegRange struct {
	Offset uint64
	Size   uint
}

// RegisterState is a flat byte buffer sized to the register space, plus a
// name-indexed table giving (offset, size) for every architectural
// register, per spec.md §3 "Register state".
type RegisterState struct {
	space   *space.Space
	backing []byte
	byName  map[string]RegRange

	// Convention-named handles, per spec.md §3.
	pcName, spName, lrName, returnName string
}

// NewRegisterState allocates a register backing store of size bytes over
// sp.
func NewRegisterState(sp *space.Space, size uint64) *RegisterState {
	return &RegisterState{space: sp, backing: make([]byte, size), byName: make(map[string]RegRange)}
}

// Declare registers a named register's location. Conventional roles (pc,
// sp, lr, return) are set via SetConventionNames.
func (r *RegisterState) Declare(name string, offset uint64, size uint) {
	r.byName[name] = RegRange{Offset: offset, Size: size}
}

// SetConventionNames records which declared register names serve the
// pc/sp/lr/return roles the stepper and ABI-aware callers need.
func (r *RegisterState) SetConventionNames(pc, sp, lr, ret string) {
	r.pcName, r.spName, r.lrName, r.returnName = pc, sp, lr, ret
}

func (r *RegisterState) lookup(name string) (RegRange, error) {
	rr, ok := r.byName[name]
	if !ok {
		return RegRange{}, &InvalidRegisterError{Name: name}
	}
	return rr, nil
}

// ReadReg reads a named register as an unsigned BitVector.
func (r *RegisterState) ReadReg(name string) (bv.BitVector, error) {
	rr, err := r.lookup(name)
	if err != nil {
		return bv.BitVector{}, err
	}
	return bv.FromLittleEndianBytes(r.backing[rr.Offset : rr.Offset+uint64(rr.Size)])
}

// WriteReg writes value into a named register, truncating/extending to
// the register's declared size via the bit vector's own byte I/O.
func (r *RegisterState) WriteReg(name string, value bv.BitVector) error {
	rr, err := r.lookup(name)
	if err != nil {
		return err
	}
	cast, err := value.Cast(rr.Size * 8)
	if err != nil {
		return err
	}
	return cast.ToLEBytes(r.backing[rr.Offset : rr.Offset+uint64(rr.Size)])
}

// ReadVnd reads a register-space varnode directly, bounds-checking that
// v.Space is the register space.
func (r *RegisterState) ReadVnd(v space.Varnode) (bv.BitVector, error) {
	if v.Space != r.space {
		return bv.BitVector{}, fmt.Errorf("state: varnode %s is not in the register space", v)
	}
	if v.Offset+uint64(v.Size) > uint64(len(r.backing)) {
		return bv.BitVector{}, ErrOutOfBounds
	}
	return bv.FromLittleEndianBytes(r.backing[v.Offset : v.Offset+uint64(v.Size)])
}

// WriteVnd writes a register-space varnode directly.
func (r *RegisterState) WriteVnd(v space.Varnode, value bv.BitVector) error {
	if v.Space != r.space {
		return fmt.Errorf("state: varnode %s is not in the register space", v)
	}
	if v.Offset+uint64(v.Size) > uint64(len(r.backing)) {
		return ErrOutOfBounds
	}
	cast, err := value.Cast(v.Size * 8)
	if err != nil {
		return err
	}
	return cast.ToLEBytes(r.backing[v.Offset : v.Offset+uint64(v.Size)])
}

// PC, SP, LR, Return read the conventionally-named registers.
func (r *RegisterState) PC() (bv.BitVector, error)     { return r.ReadReg(r.pcName) }
func (r *RegisterState) SetPC(v bv.BitVector) error     { return r.WriteReg(r.pcName, v) }
func (r *RegisterState) SP() (bv.BitVector, error)      { return r.ReadReg(r.spName) }
func (r *RegisterState) LR() (bv.BitVector, error)      { return r.ReadReg(r.lrName) }
func (r *RegisterState) Return() (bv.BitVector, error)  { return r.ReadReg(r.returnName) }

// UniqueState is the per-instruction scratch byte buffer over the Unique
// address space, per spec.md §3 "Unique (temporary) state". Lifetime is
// per-instruction by convention; nothing in this package resets it
// between instructions (reset is not required, only read-before-write
// safety, which the LIR builder guarantees by always writing a temporary
// before reading it).
type UniqueState struct {
	space   *space.Space
	backing []byte
}

// NewUniqueState allocates a unique-space backing store of size bytes.
func NewUniqueState(sp *space.Space, size uint64) *UniqueState {
	return &UniqueState{space: sp, backing: make([]byte, size)}
}

func (u *UniqueState) bounds(v space.Varnode) error {
	if v.Space != u.space {
		return fmt.Errorf("state: varnode %s is not in the unique space", v)
	}
	if v.Offset+uint64(v.Size) > uint64(len(u.backing)) {
		return ErrOutOfBounds
	}
	return nil
}

// ReadVnd reads a unique-space varnode.
func (u *UniqueState) ReadVnd(v space.Varnode) (bv.BitVector, error) {
	if err := u.bounds(v); err != nil {
		return bv.BitVector{}, err
	}
	return bv.FromLittleEndianBytes(u.backing[v.Offset : v.Offset+uint64(v.Size)])
}

// WriteVnd writes a unique-space varnode.
func (u *UniqueState) WriteVnd(v space.Varnode, value bv.BitVector) error {
	if err := u.bounds(v); err != nil {
		return err
	}
	cast, err := value.Cast(v.Size * 8)
	if err != nil {
		return err
	}
	return cast.ToLEBytes(u.backing[v.Offset : v.Offset+uint64(v.Size)])
}
