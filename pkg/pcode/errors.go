package pcode

import (
	"errors"
	"fmt"
)

// Evaluate error taxonomy, per spec.md §7 "Evaluate".
var ErrUnsupported = errors.New("pcode: unsupported opcode")

// DivideByZeroError is EvaluatorError::DivideByZero in spec.md terms:
// division/remainder by zero surfaces here, never as a native trap.
type DivideByZeroError struct {
	Address uint64
}

func (e *DivideByZeroError) Error() string {
	return fmt.Sprintf("pcode: divide by zero at %#x", e.Address)
}

// InvalidAddressError is returned when a runtime address isn't
// representable as a u64 (e.g. a too-wide bit vector).
type InvalidAddressError struct {
	Width uint
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("pcode: invalid address (width %d exceeds 64 bits)", e.Width)
}

// UnsupportedOpError names the specific opcode that had no evaluator
// case, distinguishing it from the generic ErrUnsupported sentinel.
type UnsupportedOpError struct {
	Op Opcode
}

func (e *UnsupportedOpError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnsupported, Mnemonic(e.Op))
}

func (e *UnsupportedOpError) Unwrap() error { return ErrUnsupported }
