// Package bv implements arbitrary-width, two's-complement bit vectors: the
// scalar value type the LIR evaluator computes with. A BitVector is a
// (magnitude, width, signed-flag) triple; the signed flag is an
// interpretation tag toggled at will, never part of storage.
package bv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// ErrWidthMismatch is returned by any binary operator whose operands have
// different widths. Operations never silently coerce.
var ErrWidthMismatch = errors.New("bv: width mismatch")

// ErrDivideByZero is returned by Div/Rem family operators; callers in the
// evaluator turn this into EvaluatorError::DivideByZero, never a native trap.
var ErrDivideByZero = errors.New("bv: divide by zero")

// ErrInvalidWidth is returned when a width is not a positive multiple of 8.
var ErrInvalidWidth = errors.New("bv: width must be a positive multiple of 8")

// BitVector is an immutable-by-convention value type; every operation
// returns a new BitVector rather than mutating the receiver.
type BitVector struct {
	mag    *big.Int // always in [0, 2^width)
	width  uint
	signed bool
}

func modulus(width uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), width)
}

func reduce(mag *big.Int, width uint) *big.Int {
	m := modulus(width)
	r := new(big.Int).Mod(mag, m)
	if r.Sign() < 0 {
		r.Add(r, m)
	}
	return r
}

func checkWidth(width uint) error {
	if width == 0 || width%8 != 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWidth, width)
	}
	return nil
}

// New constructs a BitVector from an arbitrary-sign big.Int, reducing it
// modulo 2^width. The signed flag only affects interpretation.
func New(mag *big.Int, width uint, signed bool) (BitVector, error) {
	if err := checkWidth(width); err != nil {
		return BitVector{}, err
	}
	return BitVector{mag: reduce(mag, width), width: width, signed: signed}, nil
}

// Zero returns the zero value at the given width.
func Zero(width uint) BitVector {
	b, _ := New(big.NewInt(0), width, false)
	return b
}

// One returns the value one at the given width.
func One(width uint) BitVector {
	b, _ := New(big.NewInt(1), width, false)
	return b
}

// FromUint64 builds an unsigned BitVector of the given width from a uint64.
func FromUint64(v uint64, width uint) (BitVector, error) {
	return New(new(big.Int).SetUint64(v), width, false)
}

// FromInt64 builds a signed BitVector of the given width from an int64.
func FromInt64(v int64, width uint) (BitVector, error) {
	return New(big.NewInt(v), width, true)
}

// FromBigEndianBytes reads a BitVector (unsigned interpretation) from
// big-endian bytes; width is 8*len(b).
func FromBigEndianBytes(b []byte) (BitVector, error) {
	mag := new(big.Int).SetBytes(b)
	return New(mag, uint(len(b))*8, false)
}

// FromLittleEndianBytes reads a BitVector (unsigned interpretation) from
// little-endian bytes; width is 8*len(b).
func FromLittleEndianBytes(b []byte) (BitVector, error) {
	rev := make([]byte, len(b))
	for i, c := range b {
		rev[len(b)-1-i] = c
	}
	return FromBigEndianBytes(rev)
}

// Width returns the bit width.
func (b BitVector) Width() uint { return b.width }

// IsSigned reports the interpretation flag.
func (b BitVector) IsSigned() bool { return b.signed }

// Unsigned returns a copy with the signed flag cleared.
func (b BitVector) Unsigned() BitVector { b.signed = false; return b }

// Signed returns a copy with the signed flag set.
func (b BitVector) Signed() BitVector { b.signed = true; return b }

// Uint64 returns the unsigned representative truncated to uint64; callers
// must ensure width <= 64.
func (b BitVector) Uint64() uint64 { return b.mag.Uint64() }

// Big returns the unsigned magnitude as a big.Int (never negative).
func (b BitVector) Big() *big.Int { return new(big.Int).Set(b.mag) }

// IsZero reports whether the magnitude is zero.
func (b BitVector) IsZero() bool { return b.mag.Sign() == 0 }

// Msb returns the most significant bit.
func (b BitVector) Msb() bool { return b.mag.Bit(int(b.width) - 1) == 1 }

// Lsb returns the least significant bit.
func (b BitVector) Lsb() bool { return b.mag.Bit(0) == 1 }

// IsNegative reports whether, under the current signed flag, the value is
// negative. Unsigned BitVectors are never negative.
func (b BitVector) IsNegative() bool { return b.signed && b.Msb() }

// CountOnes returns the Hamming weight of the magnitude.
func (b BitVector) CountOnes() uint {
	var n uint
	for i := 0; i < int(b.width); i++ {
		if b.mag.Bit(i) == 1 {
			n++
		}
	}
	return n
}

// LeadingZeros counts zero bits above the highest set bit, within width.
func (b BitVector) LeadingZeros() uint {
	for i := int(b.width) - 1; i >= 0; i-- {
		if b.mag.Bit(i) == 1 {
			return b.width - uint(i) - 1
		}
	}
	return b.width
}

// signedBig returns the two's-complement-interpreted value as a (possibly
// negative) big.Int; for unsigned BitVectors this equals Big().
func (b BitVector) signedBig() *big.Int {
	if !b.signed || !b.Msb() {
		return new(big.Int).Set(b.mag)
	}
	return new(big.Int).Sub(b.mag, modulus(b.width))
}

func (b BitVector) String() string {
	tag := "u"
	if b.signed {
		tag = "s"
	}
	return fmt.Sprintf("0x%x:%d%s", b.mag, b.width, tag)
}

// ToBEBytes writes the value into buf (len(buf) == width/8) big-endian.
func (b BitVector) ToBEBytes(buf []byte) error {
	if uint(len(buf)) != b.width/8 {
		return fmt.Errorf("bv: buffer size %d does not match width/8 %d", len(buf), b.width/8)
	}
	raw := b.mag.Bytes()
	for i := range buf {
		buf[i] = 0
	}
	copy(buf[len(buf)-len(raw):], raw)
	return nil
}

// ToLEBytes writes the value into buf (len(buf) == width/8) little-endian.
func (b BitVector) ToLEBytes(buf []byte) error {
	if err := b.ToBEBytes(buf); err != nil {
		return err
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return nil
}

func requireSameWidth(a, b BitVector) error {
	if a.width != b.width {
		return fmt.Errorf("%w: %d vs %d", ErrWidthMismatch, a.width, b.width)
	}
	return nil
}

// resultSigned follows the convention used throughout the evaluator: a
// binary op's result carries the signed flag iff either operand does.
func resultSigned(a, b BitVector) bool { return a.signed || b.signed }

// Add returns a+b mod 2^width.
func (a BitVector) Add(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	return New(new(big.Int).Add(a.mag, b.mag), a.width, resultSigned(a, b))
}

// Sub returns a-b mod 2^width.
func (a BitVector) Sub(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	return New(new(big.Int).Sub(a.mag, b.mag), a.width, resultSigned(a, b))
}

// Mul returns a*b mod 2^width.
func (a BitVector) Mul(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	return New(new(big.Int).Mul(a.mag, b.mag), a.width, resultSigned(a, b))
}

// Div implements / per §4.1: if either operand is signed, truncating
// two's-complement division; else plain unsigned division.
func (a BitVector) Div(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	if b.IsZero() {
		return BitVector{}, ErrDivideByZero
	}
	signed := resultSigned(a, b)
	if !signed {
		return New(new(big.Int).Div(a.mag, b.mag), a.width, false)
	}
	as, bs := a.signedBig(), b.signedBig()
	q := new(big.Int).Quo(as, bs) // Quo truncates toward zero
	return New(q, a.width, true)
}

// Rem implements % per §4.1: sign follows the dividend for signed operands
// (Rem, not RemEuclid); plain unsigned remainder otherwise.
func (a BitVector) Rem(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	if b.IsZero() {
		return BitVector{}, ErrDivideByZero
	}
	signed := resultSigned(a, b)
	if !signed {
		return New(new(big.Int).Mod(a.mag, b.mag), a.width, false)
	}
	as, bs := a.signedBig(), b.signedBig()
	r := new(big.Int).Rem(as, bs) // Rem takes the sign of the dividend
	return New(r, a.width, true)
}

// RemEuclid returns a non-negative remainder regardless of operand signs.
func (a BitVector) RemEuclid(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	if b.IsZero() {
		return BitVector{}, ErrDivideByZero
	}
	as, bs := a.signedBig(), b.signedBig()
	bs.Abs(bs)
	r := new(big.Int).Mod(as, bs)
	return New(r, a.width, resultSigned(a, b))
}

func shiftAmount(b BitVector) uint {
	if !b.mag.IsUint64() {
		return ^uint(0) // saturates any width check below
	}
	return uint(b.mag.Uint64())
}

// Lsh implements << per §4.1: shift by the unsigned value of b; if the
// shift is >= width, the result is zero.
func (a BitVector) Lsh(b BitVector) (BitVector, error) {
	n := shiftAmount(b)
	if n >= a.width {
		return Zero(a.width).copySign(a), nil
	}
	return New(new(big.Int).Lsh(a.mag, n), a.width, a.signed)
}

// Rsh implements >> per §4.1: arithmetic iff the LEFT operand is signed;
// shift-saturation yields -1 (signed & negative) or 0 otherwise.
func (a BitVector) Rsh(b BitVector) (BitVector, error) {
	n := shiftAmount(b)
	if a.signed {
		as := a.signedBig()
		if n >= a.width {
			if as.Sign() < 0 {
				return New(big.NewInt(-1), a.width, true)
			}
			return Zero(a.width).Signed(), nil
		}
		return New(new(big.Int).Rsh(as, n), a.width, true)
	}
	if n >= a.width {
		return Zero(a.width), nil
	}
	return New(new(big.Int).Rsh(a.mag, n), a.width, false)
}

func (a BitVector) copySign(other BitVector) BitVector { a.signed = other.signed; return a }

// And, Or, Xor are bit-for-bit over the masked representative.
func (a BitVector) And(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	return New(new(big.Int).And(a.mag, b.mag), a.width, resultSigned(a, b))
}

func (a BitVector) Or(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	return New(new(big.Int).Or(a.mag, b.mag), a.width, resultSigned(a, b))
}

func (a BitVector) Xor(b BitVector) (BitVector, error) {
	if err := requireSameWidth(a, b); err != nil {
		return BitVector{}, err
	}
	return New(new(big.Int).Xor(a.mag, b.mag), a.width, resultSigned(a, b))
}

// Not is bitwise complement over the masked representative.
func (a BitVector) Not() BitVector {
	v, _ := New(new(big.Int).Xor(a.mag, new(big.Int).Sub(modulus(a.width), big.NewInt(1))), a.width, a.signed)
	return v
}

// Neg is two's-complement negation: (~x + 1) mod 2^width.
func (a BitVector) Neg() BitVector {
	v, _ := New(new(big.Int).Sub(modulus(a.width), a.mag), a.width, a.signed)
	return v
}

// Cmp compares a and b: if either operand is signed, compares by
// two's-complement interpretation; else unsigned. Requires equal width.
func (a BitVector) Cmp(b BitVector) (int, error) {
	if err := requireSameWidth(a, b); err != nil {
		return 0, err
	}
	if resultSigned(a, b) {
		return a.signedBig().Cmp(b.signedBig()), nil
	}
	return a.mag.Cmp(b.mag), nil
}

// Carry reports whether unsigned a+b >= 2^width.
func (a BitVector) Carry(b BitVector) (bool, error) {
	if err := requireSameWidth(a, b); err != nil {
		return false, err
	}
	sum := new(big.Int).Add(a.mag, b.mag)
	return sum.Cmp(modulus(a.width)) >= 0, nil
}

// SignedCarry reports whether the signed sum overflows the signed range
// [-2^(w-1), 2^(w-1)-1].
func (a BitVector) SignedCarry(b BitVector) (bool, error) {
	if err := requireSameWidth(a, b); err != nil {
		return false, err
	}
	as, bs := a.signedBig(), b.signedBig()
	sum := new(big.Int).Add(as, bs)
	half := new(big.Int).Lsh(big.NewInt(1), a.width-1)
	negHalf := new(big.Int).Neg(half)
	maxVal := new(big.Int).Sub(half, big.NewInt(1))
	return sum.Cmp(negHalf) < 0 || sum.Cmp(maxVal) > 0, nil
}

// Borrow implements the "negation-of-carry" semantics documented in
// spec.md §9: true iff a-b is less than the representable minimum for the
// current sign interpretation (0 if unsigned, -2^(w-1) if signed). This is
// deliberately NOT textbook two's-complement borrow.
func (a BitVector) Borrow(b BitVector) (bool, error) {
	if err := requireSameWidth(a, b); err != nil {
		return false, err
	}
	signed := resultSigned(a, b)
	if signed {
		as, bs := a.signedBig(), b.signedBig()
		diff := new(big.Int).Sub(as, bs)
		minVal := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), a.width-1))
		return diff.Cmp(minVal) < 0, nil
	}
	diff := new(big.Int).Sub(a.mag, b.mag)
	return diff.Sign() < 0, nil
}

// Cast zero-extends (unsigned, or new width <= width), sign-extends
// (signed and msb set), or truncates, preserving the sign flag.
func (a BitVector) Cast(newWidth uint) (BitVector, error) {
	if err := checkWidth(newWidth); err != nil {
		return BitVector{}, err
	}
	if newWidth <= a.width {
		return New(new(big.Int).Set(a.mag), newWidth, a.signed)
	}
	if a.signed && a.Msb() {
		ext := new(big.Int).Sub(modulus(newWidth), new(big.Int).Sub(modulus(a.width), a.mag))
		return New(ext, newWidth, true)
	}
	return New(new(big.Int).Set(a.mag), newWidth, a.signed)
}

// BoolToBV converts a Go bool into the canonical 1-byte BitVector used for
// boolean results (0 or 1), matching the evaluator's bool2bv convention.
func BoolToBV(v bool) BitVector {
	if v {
		return One(8)
	}
	return Zero(8)
}

// ReadUintLE reads an unsigned little-endian integer of byteLen bytes from a
// byte slice.
func ReadUintLE(b []byte, byteLen int) uint64 {
	switch byteLen {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		var v uint64
		for i := byteLen - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
}
