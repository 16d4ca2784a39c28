package board

import (
	"github.com/oisee/liftvm/pkg/pcode"
	"github.com/oisee/liftvm/pkg/space"
	"github.com/oisee/liftvm/pkg/sym"
)

// SquareProgram is the ARM-flavored three-opcode demo ISA used by both the
// cortex-m-square board preset and the CLI's "run" command: a real SLEIGH
// XML front end is out of scope (spec.md §1 Non-goals), so this is the
// hand-built sym.Table that stands in for one, matching the fixture built
// in pkg/tb's stepper tests. Byte 0x01 squares r0 in place; 0x02
// decrements the loop counter r1 and branches back to the loop head while
// r1 != 0; 0x03 returns to the address held in r2.
func SquareProgram(spaces *space.Registry) *sym.Table {
	regSp := spaces.Register()
	ramSp := spaces.Default()
	constSp := spaces.Constant()
	uniqSp := spaces.Unique()

	real := func(spaceID int, offset uint64, size uint) sym.VarnodeTpl {
		return sym.VarnodeTpl{
			Space:  sym.SpaceTpl{Ref: sym.RefReal, SpaceID: spaceID},
			Offset: sym.OffsetTpl{Ref: sym.RefReal, Real: offset},
			Size:   sym.SizeTpl{Ref: sym.RefReal, Real: size},
		}
	}
	ptr := func(v sym.VarnodeTpl) *sym.VarnodeTpl { return &v }

	r0 := real(regSp.ID, 0, 4)
	r1 := real(regSp.ID, 4, 4)
	r2 := real(regSp.ID, 8, 4)
	uniq0 := real(uniqSp.ID, 0, 4)

	squareCtor := &sym.Constructor{ID: 0, MinLength: 1, FlowThroughIndex: -1,
		MainTemplate: &sym.ConstructTemplate{Operations: []sym.OpTpl{
			{Opcode: pcode.IntMul, Inputs: []sym.VarnodeTpl{r0, r0}, Output: ptr(r0)},
		}}}
	decBranchCtor := &sym.Constructor{ID: 1, MinLength: 1, FlowThroughIndex: -1,
		MainTemplate: &sym.ConstructTemplate{Operations: []sym.OpTpl{
			{Opcode: pcode.IntSub, Inputs: []sym.VarnodeTpl{r1, real(constSp.ID, 1, 4)}, Output: ptr(r1)},
			{Opcode: pcode.IntNotEq, Inputs: []sym.VarnodeTpl{r1, real(constSp.ID, 0, 4)}, Output: ptr(uniq0)},
			{Opcode: pcode.CBranch, Inputs: []sym.VarnodeTpl{real(ramSp.ID, LoopHeadAddress, 4), uniq0}},
		}}}
	haltCtor := &sym.Constructor{ID: 2, MinLength: 1, FlowThroughIndex: -1,
		MainTemplate: &sym.ConstructTemplate{Operations: []sym.OpTpl{
			{Opcode: pcode.Return, Inputs: []sym.VarnodeTpl{r2}},
		}}}

	tbl := sym.NewTable()
	root := tbl.Add(&sym.Symbol{
		Kind: sym.KindSubtable,
		Name: "instruction",
		Subtable: &sym.Subtable{
			Constructors: []*sym.Constructor{squareCtor, decBranchCtor, haltCtor},
			Decision: &sym.DecisionNode{Pairs: []sym.DecisionPair{
				{InstrMask: 0xff, InstrValue: 0x01, ConstructorIndex: 0},
				{InstrMask: 0xff, InstrValue: 0x02, ConstructorIndex: 1},
				{InstrMask: 0xff, InstrValue: 0x03, ConstructorIndex: 2},
			}},
		},
	})
	tbl.SetRoot(root)
	return tbl
}

// LoopHeadAddress is where SquareProgram's byte 0x01 (square) constructor
// must be mapped for the 0x02 constructor's branch-back to land correctly.
const LoopHeadAddress = 0x1000

// SquareProgramBytes is the raw byte encoding matching SquareProgram,
// mapped starting at LoopHeadAddress: square, decrement-and-branch, halt.
var SquareProgramBytes = []byte{0x01, 0x02, 0x03}
