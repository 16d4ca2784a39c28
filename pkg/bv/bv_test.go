package bv

import (
	"math/big"
	"testing"
)

func TestModularity(t *testing.T) {
	a, _ := FromUint64(0xff, 8)
	b, _ := FromUint64(0x01, 8)
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !sum.IsZero() {
		t.Errorf("0xff+1 at width 8 should wrap to 0, got %s", sum)
	}
}

func TestWrappingAddWidth16(t *testing.T) {
	// spec.md scenario 1: 0xff00 + 0x0100 at width 16 == 0x0000
	a, _ := FromUint64(0xff00, 16)
	b, _ := FromUint64(0x0100, 16)
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.Uint64() != 0 {
		t.Errorf("expected 0, got 0x%x", sum.Uint64())
	}
}

func TestWidthMismatchIsError(t *testing.T) {
	a, _ := FromUint64(1, 8)
	b, _ := FromUint64(1, 16)
	if _, err := a.Add(b); err == nil {
		t.Fatal("expected width mismatch error")
	}
	if _, err := a.Cmp(b); err == nil {
		t.Fatal("expected width mismatch error on Cmp")
	}
}

func TestRoundTripBytes(t *testing.T) {
	for _, width := range []uint{8, 16, 32, 64} {
		orig, _ := FromUint64(0x1234_5678_9abc_def0, width)
		be := make([]byte, width/8)
		if err := orig.ToBEBytes(be); err != nil {
			t.Fatalf("ToBEBytes: %v", err)
		}
		got, err := FromBigEndianBytes(be)
		if err != nil {
			t.Fatalf("FromBigEndianBytes: %v", err)
		}
		if got.Uint64() != orig.Uint64() {
			t.Errorf("width %d: round trip BE mismatch: %x vs %x", width, got.Uint64(), orig.Uint64())
		}

		le := make([]byte, width/8)
		if err := orig.ToLEBytes(le); err != nil {
			t.Fatalf("ToLEBytes: %v", err)
		}
		got2, err := FromLittleEndianBytes(le)
		if err != nil {
			t.Fatalf("FromLittleEndianBytes: %v", err)
		}
		if got2.Uint64() != orig.Uint64() {
			t.Errorf("width %d: round trip LE mismatch: %x vs %x", width, got2.Uint64(), orig.Uint64())
		}
	}
}

func TestSignedRightShift(t *testing.T) {
	// spec.md scenario 2: 0x8000 signed width 16 >> 4 == 0xf800 arithmetic;
	// unsigned >> 4 == 0x0800.
	neg, _ := New(big.NewInt(0x8000), 16, true)
	four, _ := FromUint64(4, 16)
	got, err := neg.Rsh(four)
	if err != nil {
		t.Fatalf("Rsh: %v", err)
	}
	if got.Uint64() != 0xf800 {
		t.Errorf("signed rsh: expected 0xf800, got 0x%x", got.Uint64())
	}

	pos, _ := New(big.NewInt(0x8000), 16, false)
	got2, err := pos.Rsh(four)
	if err != nil {
		t.Fatalf("Rsh: %v", err)
	}
	if got2.Uint64() != 0x0800 {
		t.Errorf("unsigned rsh: expected 0x0800, got 0x%x", got2.Uint64())
	}
}

func TestShiftSaturation(t *testing.T) {
	negOne, _ := New(big.NewInt(-1), 16, true)
	if negOne.Uint64() != 0xffff {
		t.Fatalf("setup: expected 0xffff, got 0x%x", negOne.Uint64())
	}
	big32, _ := FromUint64(32, 16)

	lshSat, err := negOne.Lsh(big32)
	if err != nil {
		t.Fatalf("Lsh: %v", err)
	}
	if !lshSat.IsZero() {
		t.Errorf("lsh saturation: expected 0, got 0x%x", lshSat.Uint64())
	}

	rshSat, err := negOne.Rsh(big32)
	if err != nil {
		t.Fatalf("Rsh: %v", err)
	}
	if rshSat.Uint64() != 0xffff {
		t.Errorf("signed negative rsh saturation: expected -1 (0xffff), got 0x%x", rshSat.Uint64())
	}

	zero := Zero(16)
	rshZero, err := zero.Signed().Rsh(big32)
	if err != nil {
		t.Fatalf("Rsh: %v", err)
	}
	if !rshZero.IsZero() {
		t.Errorf("signed non-negative rsh saturation: expected 0, got 0x%x", rshZero.Uint64())
	}
}

func TestDivideByZero(t *testing.T) {
	a, _ := FromUint64(10, 8)
	z := Zero(8)
	if _, err := a.Div(z); err != ErrDivideByZero {
		t.Errorf("expected ErrDivideByZero, got %v", err)
	}
	if _, err := a.Rem(z); err != ErrDivideByZero {
		t.Errorf("expected ErrDivideByZero, got %v", err)
	}
}

func TestSignedDivRem(t *testing.T) {
	// -7 / 2 == -3 (truncate toward zero), -7 % 2 == -1 (sign of dividend)
	negSeven, _ := New(big.NewInt(-7), 8, true)
	two, _ := New(big.NewInt(2), 8, true)
	q, err := negSeven.Div(two)
	if err != nil {
		t.Fatalf("Div: %v", err)
	}
	if q.signedBig().Int64() != -3 {
		t.Errorf("expected -3, got %d", q.signedBig().Int64())
	}
	r, err := negSeven.Rem(two)
	if err != nil {
		t.Fatalf("Rem: %v", err)
	}
	if r.signedBig().Int64() != -1 {
		t.Errorf("expected -1, got %d", r.signedBig().Int64())
	}
	er, err := negSeven.RemEuclid(two)
	if err != nil {
		t.Fatalf("RemEuclid: %v", err)
	}
	if er.signedBig().Sign() < 0 {
		t.Errorf("RemEuclid must be non-negative, got %d", er.signedBig().Int64())
	}
}

func TestSignedIdentity(t *testing.T) {
	a, _ := FromUint64(42, 16)
	s := a.Signed().Unsigned().Signed()
	if s.IsSigned() != a.Signed().IsSigned() {
		t.Error("signed identity broken")
	}
}

func TestCastPreservesSign(t *testing.T) {
	neg, _ := New(big.NewInt(-1), 8, true)
	wide, err := neg.Cast(16)
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if !wide.IsSigned() {
		t.Error("cast must preserve sign flag")
	}
	if wide.Uint64() != 0xffff {
		t.Errorf("sign-extend -1 (8-bit) to 16-bit should be 0xffff, got 0x%x", wide.Uint64())
	}
}

func TestCountOnesAndLeadingZeros(t *testing.T) {
	v, _ := FromUint64(0x0f, 8)
	if v.CountOnes() != 4 {
		t.Errorf("expected 4 set bits, got %d", v.CountOnes())
	}
	if v.LeadingZeros() != 4 {
		t.Errorf("expected 4 leading zeros, got %d", v.LeadingZeros())
	}
}

func TestInvalidWidth(t *testing.T) {
	if _, err := FromUint64(1, 3); err == nil {
		t.Fatal("width 3 is not a multiple of 8, expected error")
	}
}
