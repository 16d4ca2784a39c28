package contextdb

import "testing"

func TestRegisterBeforeFirstWrite(t *testing.T) {
	db := New(0x10000)
	if err := db.RegisterVariable("phase", 0, 0, 2); err != nil {
		t.Fatalf("RegisterVariable: %v", err)
	}
	db.SetRegion(0x100, 0, 0x3, 1)
	if err := db.RegisterVariable("late", 0, 2, 4); err == nil {
		t.Fatal("expected ErrFrozen after first write")
	}
}

func TestGetSetVariable(t *testing.T) {
	db := New(0x10000)
	if err := db.RegisterVariable("mode", 1, 4, 8); err != nil {
		t.Fatal(err)
	}
	v, _ := db.Variable("mode")
	mask := uint32(0xf0)

	db.SetRegion(0x200, 1, mask, 0x50) // mode = 5
	got, err := db.GetVariable(0x200, "mode")
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
	_ = v

	// Outside the region, the default (zero) should hold.
	got2, err := db.GetVariable(0x201, "mode")
	if err != nil {
		t.Fatal(err)
	}
	if got2 != 0 {
		t.Errorf("expected 0 outside region, got %d", got2)
	}
}

func TestChangePointAppliesFromAddrOnward(t *testing.T) {
	db := New(0x10000)
	db.SetChangePoint(0x0, 0x100, 0, 0xff, 0x42)

	before := db.GetContext(0x50)
	if before.Vals[0] != 0 {
		t.Errorf("expected unset before change point, got 0x%x", before.Vals[0])
	}
	after := db.GetContext(0x200)
	if after.Vals[0]&0xff != 0x42 {
		t.Errorf("expected 0x42 after change point, got 0x%x", after.Vals[0])
	}
}

func TestRegionAppliesOnlyBetweenAddresses(t *testing.T) {
	db := New(0x10000)
	db.SetRegion(0x100, 0, 0xff, 0x7)

	inside := db.GetContext(0x100)
	if inside.Vals[0] != 0x7 {
		t.Errorf("expected 0x7 inside region, got 0x%x", inside.Vals[0])
	}
	outside := db.GetContext(0x101)
	if outside.Vals[0] != 0 {
		t.Errorf("expected 0 just after region, got 0x%x", outside.Vals[0])
	}
}

func TestTrackedSet(t *testing.T) {
	db := New(0x10000)
	db.AddTracked(0, 0x10000, "r0", 1)
	entries := db.GetTracked(0x10)
	if len(entries) != 1 || entries[0].VarnodeKey != "r0" || entries[0].Value != 1 {
		t.Errorf("unexpected tracked entries: %+v", entries)
	}
}
