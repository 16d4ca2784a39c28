package state

import (
	"testing"

	"github.com/oisee/liftvm/pkg/space"
)

func newTestSpace() *space.Space {
	r := space.NewRegistry()
	return r.Add("ram", space.Default, 1, 4, space.LittleEndian, 0xffffffff)
}

func TestMapRAMNonOverlap(t *testing.T) {
	sp := newTestSpace()
	m := NewMemoryMap(sp, DefaultPageSize)

	if _, err := m.MapRAM(0x0, 0x1000); err != nil {
		t.Fatalf("first map: %v", err)
	}
	if _, err := m.MapRAM(0x1000, 0x1000); err != nil {
		t.Fatalf("adjacent map should succeed: %v", err)
	}
	if _, err := m.MapRAM(0x800, 0x1000); err == nil {
		t.Fatal("expected conflict for overlapping map")
	}
}

func TestMapRAMAlignment(t *testing.T) {
	sp := newTestSpace()
	m := NewMemoryMap(sp, DefaultPageSize)
	if _, err := m.MapRAM(0x100, 0x1000); err != ErrUnalignedAddress {
		t.Errorf("expected ErrUnalignedAddress, got %v", err)
	}
	if _, err := m.MapRAM(0x1000, 0x123); err != ErrUnalignedSize {
		t.Errorf("expected ErrUnalignedSize, got %v", err)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	sp := newTestSpace()
	m := NewMemoryMap(sp, DefaultPageSize)
	if _, err := m.MapRAM(0x1000, DefaultPageSize); err != nil {
		t.Fatal(err)
	}
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := m.WriteBytes(0x1010, data); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadBytes(0x1010, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("round trip mismatch at %d: %x vs %x", i, got, data)
		}
	}
}

func TestUnmappedAccessErrors(t *testing.T) {
	sp := newTestSpace()
	m := NewMemoryMap(sp, DefaultPageSize)
	if _, err := m.ReadBytes(0x5000, 4); err == nil {
		t.Fatal("expected unmapped error")
	}
}

func TestStraddlingAccessErrors(t *testing.T) {
	sp := newTestSpace()
	m := NewMemoryMap(sp, DefaultPageSize)
	if _, err := m.MapRAM(0x0, DefaultPageSize); err != nil {
		t.Fatal(err)
	}
	if _, err := m.MapRAM(DefaultPageSize, DefaultPageSize); err != nil {
		t.Fatal(err)
	}
	// A 4-byte read starting 2 bytes before the segment boundary straddles
	// both entries.
	if _, err := m.ReadBytes(DefaultPageSize-2, 4); err == nil {
		t.Fatal("expected straddling access error")
	}
}

func TestOverlapsForCacheInvalidation(t *testing.T) {
	sp := newTestSpace()
	m := NewMemoryMap(sp, DefaultPageSize)
	if _, err := m.MapRAM(0x0, DefaultPageSize); err != nil {
		t.Fatal(err)
	}
	if !m.Overlaps(0x10, 4) {
		t.Error("expected overlap within mapped segment")
	}
	if m.Overlaps(0x5000, 4) {
		t.Error("expected no overlap outside any mapping")
	}
}
