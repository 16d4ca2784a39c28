// Package state implements the concrete machine state the evaluator runs
// against: the segmented memory map (RAM + MMIO peripherals), register
// state keyed by name and by varnode, and unique-space temporaries. See
// spec.md §3 "Memory map" / "Register state" / "Unique (temporary) state"
// and §4.5 / §4.6.
package state

import (
	"errors"
	"fmt"
)

// Memory error taxonomy, per spec.md §7 "Memory".
var (
	ErrUnalignedAddress = errors.New("state: unaligned address")
	ErrUnalignedSize    = errors.New("state: unaligned size")
	ErrOutOfBounds      = errors.New("state: out of bounds")
	ErrAccessViolation  = errors.New("state: access violation")
)

// UnmappedError reports a read/write to an address with no mapped entry.
type UnmappedError struct{ Addr uint64 }

func (e *UnmappedError) Error() string { return fmt.Sprintf("state: unmapped address %#x", e.Addr) }

// MapConflictError reports an overlapping map_ram/map_mmio registration.
type MapConflictError struct {
	Base, ExistingBase, ExistingEnd uint64
}

func (e *MapConflictError) Error() string {
	return fmt.Sprintf("state: map conflict at %#x (overlaps existing [%#x,%#x))", e.Base, e.ExistingBase, e.ExistingEnd)
}

// OverlappedAccessError reports a read/write that straddles two mapped
// entries — the paged-state analogue of "HeapOverflow" in chunk-state.
type OverlappedAccessError struct {
	Addr uint64
	Size int
}

func (e *OverlappedAccessError) Error() string {
	return fmt.Sprintf("state: access [%#x,%#x) straddles mapped entries", e.Addr, e.Addr+uint64(e.Size))
}

// State error taxonomy, per spec.md §7 "State".
type InvalidRegisterError struct{ Name string }

func (e *InvalidRegisterError) Error() string { return fmt.Sprintf("state: invalid register %q", e.Name) }
