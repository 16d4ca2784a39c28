package space

import "testing"

func TestRegistryRegistration(t *testing.T) {
	r := NewRegistry()
	constSp := r.Add("const", Constant, 1, 8, LittleEndian, 0)
	ramSp := r.Add("ram", Default, 1, 4, LittleEndian, 0xffffffff)
	r.Add("register", Register, 1, 4, LittleEndian, 0)
	r.Add("unique", Unique, 1, 4, LittleEndian, 0)

	if r.Constant() != constSp {
		t.Error("Constant() should return the first Constant-kind space")
	}
	if r.Default() != ramSp {
		t.Error("Default() should return the first Default-kind space")
	}
	if r.ByName("ram") != ramSp {
		t.Error("ByName lookup failed")
	}
	if r.ByID(1) != ramSp {
		t.Error("ByID lookup failed")
	}
	if r.ByID(99) != nil {
		t.Error("out-of-range ByID should return nil")
	}
}

func TestVarnodeIsConstant(t *testing.T) {
	r := NewRegistry()
	constSp := r.Add("const", Constant, 1, 8, LittleEndian, 0)
	ramSp := r.Add("ram", Default, 1, 4, LittleEndian, 0)

	v := Varnode{Space: constSp, Offset: 42, Size: 4}
	if !v.IsConstant() {
		t.Error("varnode in constant space should report IsConstant")
	}

	v2 := Varnode{Space: ramSp, Offset: 0x1000, Size: 4}
	if v2.IsConstant() {
		t.Error("varnode in ram space should not report IsConstant")
	}
}
