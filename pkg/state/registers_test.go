package state

import (
	"testing"

	"github.com/oisee/liftvm/pkg/bv"
	"github.com/oisee/liftvm/pkg/space"
)

func newTestRegSpace() *space.Space {
	r := space.NewRegistry()
	return r.Add("register", space.Register, 1, 4, space.LittleEndian, 0)
}

func TestRegisterReadWriteByName(t *testing.T) {
	sp := newTestRegSpace()
	rs := NewRegisterState(sp, 64)
	rs.Declare("r0", 0, 4)
	rs.Declare("pc", 4, 4)
	rs.SetConventionNames("pc", "", "", "")

	v, _ := bv.FromUint64(0x1234, 32)
	if err := rs.WriteReg("r0", v); err != nil {
		t.Fatal(err)
	}
	got, err := rs.ReadReg("r0")
	if err != nil {
		t.Fatal(err)
	}
	if got.Uint64() != 0x1234 {
		t.Errorf("expected 0x1234, got 0x%x", got.Uint64())
	}

	pcVal, _ := bv.FromUint64(0x8000, 32)
	if err := rs.SetPC(pcVal); err != nil {
		t.Fatal(err)
	}
	pc, err := rs.PC()
	if err != nil {
		t.Fatal(err)
	}
	if pc.Uint64() != 0x8000 {
		t.Errorf("expected PC 0x8000, got 0x%x", pc.Uint64())
	}
}

func TestInvalidRegisterName(t *testing.T) {
	sp := newTestRegSpace()
	rs := NewRegisterState(sp, 64)
	if _, err := rs.ReadReg("bogus"); err == nil {
		t.Fatal("expected InvalidRegisterError")
	}
}

func TestReadVndRejectsWrongSpace(t *testing.T) {
	sp := newTestRegSpace()
	rs := NewRegisterState(sp, 64)
	other := space.NewRegistry().Add("ram", space.Default, 1, 4, space.LittleEndian, 0)
	v := space.Varnode{Space: other, Offset: 0, Size: 4}
	if _, err := rs.ReadVnd(v); err == nil {
		t.Fatal("expected error for wrong-space varnode")
	}
}

func TestUniqueStateRoundTrip(t *testing.T) {
	r := space.NewRegistry()
	uniqueSp := r.Add("unique", space.Unique, 1, 4, space.LittleEndian, 0)
	us := NewUniqueState(uniqueSp, 256)

	v := space.Varnode{Space: uniqueSp, Offset: 0x10, Size: 4}
	val, _ := bv.FromUint64(0xcafebabe, 32)
	if err := us.WriteVnd(v, val); err != nil {
		t.Fatal(err)
	}
	got, err := us.ReadVnd(v)
	if err != nil {
		t.Fatal(err)
	}
	if got.Uint64() != 0xcafebabe {
		t.Errorf("expected 0xcafebabe, got 0x%x", got.Uint64())
	}
}
