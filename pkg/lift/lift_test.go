package lift

import (
	"testing"

	"github.com/oisee/liftvm/pkg/arena"
	"github.com/oisee/liftvm/pkg/contextdb"
	"github.com/oisee/liftvm/pkg/parser"
	"github.com/oisee/liftvm/pkg/pcode"
	"github.com/oisee/liftvm/pkg/space"
	"github.com/oisee/liftvm/pkg/sym"
)

func newTestSpaces() *space.Registry {
	r := space.NewRegistry()
	r.Add("const", space.Constant, 1, 4, space.LittleEndian, 0)
	r.Add("ram", space.Default, 1, 4, space.LittleEndian, 0xffffffff)
	r.Add("register", space.Register, 1, 4, space.LittleEndian, 0xff)
	r.Add("unique", space.Unique, 1, 4, space.LittleEndian, 0xffffffff)
	return r
}

func vtplReal(spaceID int, offset uint64, size uint) sym.VarnodeTpl {
	return sym.VarnodeTpl{
		Space:  sym.SpaceTpl{Ref: sym.RefReal, SpaceID: spaceID},
		Offset: sym.OffsetTpl{Ref: sym.RefReal, Real: offset},
		Size:   sym.SizeTpl{Ref: sym.RefReal, Real: size},
	}
}

func vtplOperand(index int) sym.VarnodeTpl {
	return sym.VarnodeTpl{
		Space:  sym.SpaceTpl{Ref: sym.RefOperand, Index: index},
		Offset: sym.OffsetTpl{Ref: sym.RefOperand, Index: index},
		Size:   sym.SizeTpl{Ref: sym.RefOperand, Index: index},
	}
}

// decodeSingleOperand builds a one-constructor root subtable with a single
// operand and hands back a ready arena root plus the symbol table it
// resolved against, so tests can focus on template emission.
func decodeSingleOperand(t *testing.T, spaces *space.Registry, ctor *sym.Constructor, operandDefSym *sym.Symbol, bytes []byte) (*arena.Arena, int, int, *sym.Table) {
	t.Helper()
	tbl := sym.NewTable()
	defID := tbl.Add(operandDefSym)
	operandID := tbl.Add(&sym.Symbol{
		Kind: sym.KindOperand,
		Name: "op0",
		Operand: sym.OperandDef{
			BaseOperand:    -1,
			DefiningSymbol: defID,
		},
	})
	ctor.Operands = []int{operandID}
	ctor.FlowThroughIndex = -1
	rootID := tbl.Add(&sym.Symbol{
		Kind: sym.KindSubtable,
		Name: "instruction",
		Subtable: &sym.Subtable{
			Constructors: []*sym.Constructor{ctor},
			Decision:     &sym.DecisionNode{Pairs: []sym.DecisionPair{{ConstructorIndex: 0}}},
		},
	})
	tbl.SetRoot(rootID)

	dec := &parser.Decoder{Table: tbl, Spaces: spaces, Ctx: contextdb.New(0xffffffff)}
	ar := arena.New(16, 16)
	root, length, err := dec.Decode(ar, 0x1000, bytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ar, root, length, tbl
}

func TestEmitCopyFromOperandToLiteralRegister(t *testing.T) {
	spaces := newTestSpaces()
	regID := spaces.Register().ID

	imm8 := &sym.Symbol{Kind: sym.KindValue, Name: "imm8", Range: sym.BitRange{ByteStart: 1, ByteEnd: 1, Start: 0, Size: 8}}
	ctor := &sym.Constructor{
		ID:        0,
		MinLength: 2,
		MainTemplate: &sym.ConstructTemplate{
			Operations: []sym.OpTpl{
				{Opcode: pcode.Copy, Inputs: []sym.VarnodeTpl{vtplOperand(0)}, Output: ptrTpl(vtplReal(regID, 0, 1))},
			},
		},
	}

	ar, root, length, tbl := decodeSingleOperand(t, spaces, ctor, imm8, []byte{0x00, 0x7f})
	if length != 2 {
		t.Fatalf("expected length 2, got %d", length)
	}

	b := &Builder{Table: tbl, Spaces: spaces}
	pc, err := b.Emit(ar, root, 0x1000, length, 0, nil)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(pc.Ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(pc.Ops))
	}
	op := pc.Ops[0]
	if op.Opcode != pcode.Copy {
		t.Fatalf("expected Copy, got %v", op.Opcode)
	}
	if op.Inputs[0].Offset != 0x7f || op.Inputs[0].Size != 1 {
		t.Errorf("expected input offset 0x7f size 1, got %#x/%d", op.Inputs[0].Offset, op.Inputs[0].Size)
	}
	if op.Output.Space.ID != regID || op.Output.Offset != 0 {
		t.Errorf("expected register-space output at offset 0, got space %d offset %#x", op.Output.Space.ID, op.Output.Offset)
	}
}

func TestEmitLabelBranchResolvesRelativeOffset(t *testing.T) {
	spaces := newTestSpaces()
	regID := spaces.Register().ID
	uniqueID := spaces.Unique().ID
	constID := spaces.Constant().ID

	imm8 := &sym.Symbol{Kind: sym.KindValue, Name: "imm8", Range: sym.BitRange{ByteStart: 1, ByteEnd: 1, Start: 0, Size: 8}}
	branchInput := sym.VarnodeTpl{
		Space:  sym.SpaceTpl{Ref: sym.RefReal, SpaceID: constID},
		Offset: sym.OffsetTpl{Ref: sym.RefRelative, Index: 0},
		Size:   sym.SizeTpl{Ref: sym.RefReal, Real: 4},
	}
	ctor := &sym.Constructor{
		ID:        0,
		MinLength: 2,
		MainTemplate: &sym.ConstructTemplate{
			Labels: 1,
			Operations: []sym.OpTpl{
				{Opcode: pcode.Branch, Inputs: []sym.VarnodeTpl{branchInput}},
				{Opcode: pcode.Copy, Inputs: []sym.VarnodeTpl{vtplReal(regID, 4, 1)}, Output: ptrTpl(vtplReal(uniqueID, 0, 1))},
				{Opcode: pcode.Label, LabelID: 0},
			},
		},
	}

	ar, root, length, tbl := decodeSingleOperand(t, spaces, ctor, imm8, []byte{0x00, 0x7f})
	b := &Builder{Table: tbl, Spaces: spaces, UniqueMask: 0xff}

	pc, err := b.Emit(ar, root, 0x2007, length, 0, nil)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(pc.Ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(pc.Ops))
	}
	branch := pc.Ops[0]
	if branch.Inputs[0].Offset != 2 {
		t.Errorf("expected resolved relative offset 2, got %d", branch.Inputs[0].Offset)
	}
	tagged := pc.Ops[1].Output
	wantTag := (uint64(0x2007) & 0xff) << 4
	if tagged.Offset != wantTag {
		t.Errorf("expected tagged unique offset %#x, got %#x", wantTag, tagged.Offset)
	}
}

func TestEmitDynamicOperandDesugarsLoad(t *testing.T) {
	spaces := newTestSpaces()
	regID := spaces.Register().ID
	ramID := spaces.Default().ID
	constID := spaces.Constant().ID

	// op0 names a fixed register directly — this is the pointer register.
	ptrReg := &sym.Symbol{Kind: sym.KindVarnode, Name: "r1", Varnode: sym.VarnodeDef{SpaceID: regID, Offset: 4, Size: 4}}
	dynamicInput := sym.VarnodeTpl{
		Space:  sym.SpaceTpl{Ref: sym.RefOperand, Index: 0},
		Offset: sym.OffsetTpl{Ref: sym.RefOperand, Index: 0, OffsetSpace: &sym.SpaceTpl{Ref: sym.RefReal, SpaceID: ramID}},
		Size:   sym.SizeTpl{Ref: sym.RefReal, Real: 4},
	}
	ctor := &sym.Constructor{
		ID:        0,
		MinLength: 1,
		MainTemplate: &sym.ConstructTemplate{
			Operations: []sym.OpTpl{
				{Opcode: pcode.Copy, Inputs: []sym.VarnodeTpl{dynamicInput}, Output: ptrTpl(vtplReal(regID, 0, 4))},
			},
		},
	}

	ar, root, length, tbl := decodeSingleOperand(t, spaces, ctor, ptrReg, []byte{0x00})
	b := &Builder{Table: tbl, Spaces: spaces}

	pc, err := b.Emit(ar, root, 0x3000, length, 0, nil)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(pc.Ops) != 2 {
		t.Fatalf("expected 2 ops (Load then Copy), got %d", len(pc.Ops))
	}
	load := pc.Ops[0]
	if load.Opcode != pcode.Load {
		t.Fatalf("expected Load first, got %v", load.Opcode)
	}
	if load.Inputs[0].Space.ID != constID || load.Inputs[0].Offset != uint64(ramID) {
		t.Errorf("expected const-space space-id input %d, got space %d offset %#x", ramID, load.Inputs[0].Space.ID, load.Inputs[0].Offset)
	}
	if load.Inputs[1].Space.ID != regID || load.Inputs[1].Offset != 4 {
		t.Errorf("expected pointer varnode register r1, got space %d offset %#x", load.Inputs[1].Space.ID, load.Inputs[1].Offset)
	}
	tmp := *load.Output
	cp := pc.Ops[1]
	if cp.Opcode != pcode.Copy || cp.Inputs[0] != tmp {
		t.Errorf("expected Copy to consume the Load's temporary")
	}
}

func TestEmitCrossBuildUnsupported(t *testing.T) {
	spaces := newTestSpaces()
	imm8 := &sym.Symbol{Kind: sym.KindValue, Name: "imm8", Range: sym.BitRange{ByteStart: 1, ByteEnd: 1, Start: 0, Size: 8}}
	ctor := &sym.Constructor{
		ID:        0,
		MinLength: 2,
		MainTemplate: &sym.ConstructTemplate{
			Operations: []sym.OpTpl{{Opcode: pcode.CrossBuild}},
		},
	}
	ar, root, length, tbl := decodeSingleOperand(t, spaces, ctor, imm8, []byte{0x00, 0x7f})
	b := &Builder{Table: tbl, Spaces: spaces}
	if _, err := b.Emit(ar, root, 0x1000, length, 0, nil); err == nil {
		t.Fatal("expected CrossBuild to error")
	}
}

func ptrTpl(v sym.VarnodeTpl) *sym.VarnodeTpl { return &v }
