package sym

import "github.com/oisee/liftvm/pkg/pcode"

// HandleRef names where a VarnodeTpl's space/offset/size comes from when a
// construct template is walked: either a literal, or a reference into the
// ConstructState tree (this constructor's own handle, or one of its
// operands'), per spec.md §4.3.
type HandleRef int

const (
	RefReal     HandleRef = iota // literal value, used as-is
	RefHandle                    // this constructor's own fixed handle
	RefOperand                   // the operand at Index's fixed handle
	RefRelative                  // label-relative offset, for Branch/CBranch/Call input-0
)

// SpaceTpl names the address space an operand lives in, resolved either to
// a fixed space id or through a handle.
type SpaceTpl struct {
	Ref     HandleRef
	SpaceID int // valid when Ref == RefReal
	Index   int // operand index, when Ref == RefOperand
}

// OffsetTpl names a VarnodeTpl's offset. OffsetSpace set (Ref != RefReal on
// the embedded handle) marks the operand dynamic per spec.md §4.3: "An
// input VarnodeTpl whose offset is a handle reference whose offset_space
// is set is dynamic."
type OffsetTpl struct {
	Ref         HandleRef
	Real        uint64
	Index       int // operand index, when Ref == RefOperand
	OffsetSpace *SpaceTpl
}

// IsDynamic reports whether this offset resolves through another varnode
// (a pointer) rather than being a fixed, statically-known location.
func (o OffsetTpl) IsDynamic() bool { return o.OffsetSpace != nil }

// SizeTpl names a VarnodeTpl's size in bytes, either fixed or taken from an
// operand's resolved handle at build time.
type SizeTpl struct {
	Ref   HandleRef
	Real  uint
	Index int
}

// VarnodeTpl is the unresolved (space, offset, size) triple a construct
// template's op carries; pkg/parser.ResolveVarnodeTpl resolves it against
// the live ConstructState tree into a FixedHandle, which pkg/lift turns
// into a concrete space.Varnode.
type VarnodeTpl struct {
	Space  SpaceTpl
	Offset OffsetTpl
	Size   SizeTpl
}

// OpTpl is one unresolved LIR operation inside a construct template: an
// opcode plus unresolved input/output VarnodeTpls, per spec.md §3's
// description of templates as the thing LIR ops are generated from.
type OpTpl struct {
	Opcode  pcode.Opcode
	Inputs  []VarnodeTpl
	Output  *VarnodeTpl
	Operand int // for Build: the operand index to descend into
	LabelID int // for Label: the label slot id this marks
}

// ConstructTemplate is one constructor's emitted-code template: the main
// sequence plus any named (export) sections a multi-section constructor
// declares, per spec.md §4.3 "Template directives".
type ConstructTemplate struct {
	Operations []OpTpl
	Labels     int // number of internal label slots this template uses
	Result     *VarnodeTpl // non-nil when this constructor exports a handle
	// DelaySlotBytes is the architecture-declared byte count of the
	// instructions that belong to this constructor's delay slot, per
	// spec.md §3 "Construct template" ("delay-slot-count") and §4.3
	// "Delay slots". Zero on every constructor of a non-delay-slot
	// architecture (ARM Cortex-M, the teacher's Z80 target); nonzero only
	// where the Operations contain a pcode.DelaySlot directive.
	DelaySlotBytes int
}
