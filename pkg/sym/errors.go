package sym

import "errors"

// Decode error taxonomy, per spec.md §7 "Decode": InstructionResolution (no
// decision path matches), InvalidHandle, InvalidConstructor, InvalidSymbol,
// and Invariant for a malformed specification (a programmer/spec-author
// bug, not a decode-time condition).
var (
	ErrInstructionResolution = errors.New("sym: instruction resolution failed")
	ErrInvalidHandle         = errors.New("sym: invalid handle")
	ErrInvalidConstructor    = errors.New("sym: invalid constructor")
	ErrInvalidSymbol         = errors.New("sym: invalid symbol")
)

// InvariantError wraps a message describing a malformed specification —
// unreachable in a correct spec, per spec.md §4.2.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "sym: invariant violated: " + e.Msg }

// Invariant constructs an InvariantError.
func Invariant(msg string) error { return &InvariantError{Msg: msg} }
