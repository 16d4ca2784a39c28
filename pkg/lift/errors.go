package lift

import "errors"

// Build error taxonomy, per spec.md §7 "Lift".
var (
	ErrUnsupportedDirective = errors.New("lift: unsupported template directive")
	ErrInvalidTemplate      = errors.New("lift: invalid construct template")
	ErrNestedDelaySlot      = errors.New("lift: delay-slot instruction itself declares a delay slot")
)
