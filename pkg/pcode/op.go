package pcode

import (
	"fmt"

	"github.com/oisee/liftvm/pkg/space"
)

// Op is one resolved LIR operation: an opcode plus concrete input and
// (optional) output Varnodes, per spec.md §3 "LIR op".
type Op struct {
	Opcode Opcode
	Inputs []space.Varnode
	Output *space.Varnode
}

func (o Op) String() string {
	s := Mnemonic(o.Opcode)
	if o.Output != nil {
		s += " " + o.Output.String() + " <-"
	}
	for _, in := range o.Inputs {
		s += " " + in.String()
	}
	return s
}

// PCode is the LIR sequence for one instruction, per spec.md §3.
type PCode struct {
	Address               uint64
	Ops                    []Op
	DelaySlotByteCount     int
	InstructionByteLength  int
}

// LastOp returns the final op in the sequence, or false if empty.
func (p *PCode) LastOp() (Op, bool) {
	if len(p.Ops) == 0 {
		return Op{}, false
	}
	return p.Ops[len(p.Ops)-1], true
}

// IsTerminatedBlock reports whether this instruction's last op is a
// control-flow terminator, per spec.md §3 "Translation block".
func (p *PCode) IsTerminatedBlock() bool {
	last, ok := p.LastOp()
	return ok && last.Opcode.IsTerminator()
}

// Location is (address, micro-position): the evaluator's program counter
// at sub-instruction granularity, per spec.md §3.
type Location struct {
	Address uint64
	Micro   int
}

func (l Location) String() string { return fmt.Sprintf("%#x.%d", l.Address, l.Micro) }

// Target is the evaluator's verdict for one op: fall through, or jump to
// a resolved Location with call/branch/return semantics.
type TargetKind int

const (
	TargetFall TargetKind = iota
	TargetBranch
	TargetCall
	TargetReturn
)

// Target is what Eval returns for one op, per spec.md §4.4.
type Target struct {
	Kind TargetKind
	Loc  Location
}

func Fall() Target                    { return Target{Kind: TargetFall} }
func BranchTo(loc Location) Target    { return Target{Kind: TargetBranch, Loc: loc} }
func CallTo(loc Location) Target      { return Target{Kind: TargetCall, Loc: loc} }
func ReturnTo(loc Location) Target    { return Target{Kind: TargetReturn, Loc: loc} }

// AbsoluteFrom implements Location::absolute_from per spec.md §4.4: if
// in0 is a constant-space varnode, it's a micro-position-relative jump
// within the current instruction; otherwise it's an absolute address.
func AbsoluteFrom(baseAddress uint64, in0 space.Varnode, currentMicro int) Location {
	if in0.IsConstant() {
		delta := int64(int32(in0.Offset)) // sign-extend the constant-space offset
		return Location{Address: baseAddress, Micro: currentMicro + int(delta)}
	}
	return Location{Address: in0.Offset, Micro: 0}
}
