package state

import (
	"sort"

	"github.com/oisee/liftvm/pkg/space"
)

// DefaultPageSize is the page-alignment unit for RAM segments, per
// spec.md §6 ("Page size defaults to 4096").
const DefaultPageSize = 4096

// Peripheral is the MappedPeripheralState trait from spec.md §4.5: an
// opaque device with byte-granular read/write and a fixed size. It must
// be cloneable to support fork/restore.
type Peripheral interface {
	Base() uint64
	Size() uint64
	ReadBytes(offset uint64, buf []byte) error
	WriteBytes(offset uint64, buf []byte) error
	Clone() Peripheral
}

// RAMSegment owns a flat, zero-initialized byte buffer.
type RAMSegment struct {
	BaseAddr uint64
	Bytes    []byte
}

func (r *RAMSegment) clone() *RAMSegment {
	cp := make([]byte, len(r.Bytes))
	copy(cp, r.Bytes)
	return &RAMSegment{BaseAddr: r.BaseAddr, Bytes: cp}
}

type entryKind int

const (
	entryRAM entryKind = iota
	entryMMIO
)

type entry struct {
	base, size uint64
	kind       entryKind
	ram        *RAMSegment
	mmio       Peripheral
}

func (e *entry) end() uint64 { return e.base + e.size }

// MemoryMap is the non-overlapping interval map of RAM segments and MMIO
// peripherals over the Default address space, per spec.md §4.5, backed by
// a page-aligned fast hash table for O(1) dispatch.
type MemoryMap struct {
	space    *space.Space
	pageSize uint64
	entries  []*entry // sorted by base
	pageIdx  map[uint64]*entry
}

// NewMemoryMap creates an empty map over sp with the given page size
// (defaulting to DefaultPageSize when 0). All RAM mappings in one
// MemoryMap share this page size, per spec.md §6.
func NewMemoryMap(sp *space.Space, pageSize uint64) *MemoryMap {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	return &MemoryMap{space: sp, pageSize: pageSize, pageIdx: make(map[uint64]*entry)}
}

func (m *MemoryMap) findOverlap(base, size uint64) *entry {
	end := base + size
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].end() > base })
	if i < len(m.entries) && m.entries[i].base < end {
		return m.entries[i]
	}
	return nil
}

func (m *MemoryMap) insert(e *entry) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].base >= e.base })
	m.entries = append(m.entries, nil)
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = e
}

// MapRAM registers a zero-filled RAM segment of size bytes at base. Both
// must be page-aligned; overlap with an existing mapping is an error.
func (m *MemoryMap) MapRAM(base, size uint64) (*RAMSegment, error) {
	if base%m.pageSize != 0 {
		return nil, ErrUnalignedAddress
	}
	if size%m.pageSize != 0 {
		return nil, ErrUnalignedSize
	}
	if conflict := m.findOverlap(base, size); conflict != nil {
		return nil, &MapConflictError{Base: base, ExistingBase: conflict.base, ExistingEnd: conflict.end()}
	}
	seg := &RAMSegment{BaseAddr: base, Bytes: make([]byte, size)}
	e := &entry{base: base, size: size, kind: entryRAM, ram: seg}
	m.insert(e)
	for p := base; p < base+size; p += m.pageSize {
		m.pageIdx[p] = e
	}
	return seg, nil
}

// MapMMIO registers a peripheral at base; size comes from the peripheral
// itself and need not be page-aligned, but overlap is still an error.
func (m *MemoryMap) MapMMIO(base uint64, periph Peripheral) error {
	size := periph.Size()
	if conflict := m.findOverlap(base, size); conflict != nil {
		return &MapConflictError{Base: base, ExistingBase: conflict.base, ExistingEnd: conflict.end()}
	}
	e := &entry{base: base, size: size, kind: entryMMIO, mmio: periph}
	m.insert(e)
	for p := (base / m.pageSize) * m.pageSize; p < base+size; p += m.pageSize {
		m.pageIdx[p] = e
	}
	return nil
}

// lookup finds the entry servicing [addr, addr+size), erroring if it
// straddles two entries or falls in an unmapped gap.
func (m *MemoryMap) lookup(addr uint64, size int) (*entry, error) {
	page := (addr / m.pageSize) * m.pageSize
	if e, ok := m.pageIdx[page]; ok {
		if addr >= e.base && addr+uint64(size) <= e.end() {
			return e, nil
		}
		return nil, &OverlappedAccessError{Addr: addr, Size: size}
	}
	e := m.findOverlap(addr, uint64(size))
	if e == nil {
		return nil, &UnmappedError{Addr: addr}
	}
	if addr < e.base || addr+uint64(size) > e.end() {
		return nil, &OverlappedAccessError{Addr: addr, Size: size}
	}
	return e, nil
}

// ReadBytes reads size raw bytes at addr, serviced by a single entry.
func (m *MemoryMap) ReadBytes(addr uint64, size int) ([]byte, error) {
	e, err := m.lookup(addr, size)
	if err != nil {
		return nil, err
	}
	if e.kind == entryRAM {
		off := addr - e.base
		return append([]byte(nil), e.ram.Bytes[off:off+uint64(size)]...), nil
	}
	buf := make([]byte, size)
	if err := e.mmio.ReadBytes(addr-e.base, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBytes writes raw bytes at addr, serviced by a single entry.
func (m *MemoryMap) WriteBytes(addr uint64, data []byte) error {
	e, err := m.lookup(addr, len(data))
	if err != nil {
		return err
	}
	if e.kind == entryRAM {
		off := addr - e.base
		copy(e.ram.Bytes[off:off+uint64(len(data))], data)
		return nil
	}
	return e.mmio.WriteBytes(addr-e.base, data)
}

// Space returns the Default address space this map covers.
func (m *MemoryMap) Space() *space.Space { return m.space }

// PageSize returns the page-alignment unit shared by all RAM mappings.
func (m *MemoryMap) PageSize() uint64 { return m.pageSize }

// Overlaps reports whether [addr, addr+size) intersects any mapped entry's
// byte range.
func (m *MemoryMap) Overlaps(addr uint64, size uint64) bool {
	return m.findOverlap(addr, size) != nil
}
