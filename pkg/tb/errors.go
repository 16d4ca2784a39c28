package tb

import "fmt"

// ErrNoInstructionAt reports that the stepper's location points at an
// address the just-built (or cached) block doesn't actually cover — a
// bug in block construction, since every block always indexes at least
// its own base address.
type ErrNoInstructionAt struct{ Address uint64 }

func (e *ErrNoInstructionAt) Error() string {
	return fmt.Sprintf("tb: no instruction entry at %#x", e.Address)
}
