// Package parser implements the SLEIGH decoder: the two-phase resolve /
// resolve-handles walk over a symbol table that turns instruction bytes
// plus a context snapshot into a matched constructor tree with every
// operand's fixed handle filled in. See spec.md §4.2.
package parser

import (
	"fmt"

	"github.com/oisee/liftvm/pkg/arena"
	"github.com/oisee/liftvm/pkg/contextdb"
	"github.com/oisee/liftvm/pkg/space"
	"github.com/oisee/liftvm/pkg/sym"
)

// Decoder resolves instructions against one symbol table. It carries no
// per-decode state — all scratch state lives in the caller's arena.Arena —
// so a single Decoder is shared and reused across every instruction in a
// translation block.
type Decoder struct {
	Table  *sym.Table
	Spaces *space.Registry
	Ctx    *contextdb.DB
}

type pendingCommit struct {
	currentAddr  uint64
	commitSymbol int
	word         int
	mask         uint32
	value        uint32
	flow         bool
}

// Decode runs both resolve phases for the instruction at addr over bytes
// and applies any deferred context commits. It returns the root
// ConstructState's arena index and the resolved instruction length.
func (d *Decoder) Decode(ar *arena.Arena, addr uint64, bytes []byte) (int, int, error) {
	ctx := d.Ctx.GetContext(addr)
	symbolToNode := make(map[int]int)

	root := ar.NewNode(-1)
	ar.Node(root).OperandIndex = -1

	var commits []pendingCommit
	if err := d.resolveTree(ar, root, addr, bytes, &ctx, &commits, symbolToNode); err != nil {
		return 0, 0, err
	}
	length := ar.Node(root).Length

	if err := d.resolveHandles(ar, root, addr, bytes, &ctx, length); err != nil {
		return 0, 0, err
	}

	if err := d.applyCommits(ar, addr, commits, symbolToNode); err != nil {
		return 0, 0, err
	}
	return root, length, nil
}

// resolveTree implements spec.md §4.2 Phase 1 with an explicit breadcrumb
// stack instead of recursion, so the delay-slot emitter in pkg/lift can
// reuse the walker after swapping the context snapshot out.
func (d *Decoder) resolveTree(ar *arena.Arena, root int, addr uint64, bytes []byte, ctx *contextdb.Words, commits *[]pendingCommit, symbolToNode map[int]int) error {
	rootSym := d.Table.Root()
	if rootSym < 0 {
		return sym.Invariant("symbol table has no root subtable")
	}
	ar.Node(root).SymbolID = rootSym
	symbolToNode[rootSym] = root
	if err := d.enterSubtable(ar, root, addr, bytes, ctx, commits); err != nil {
		return err
	}

	type frame struct{ node, next int }
	stack := []frame{{root, 0}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		node := ar.Node(top.node)
		s, err := d.Table.Symbol(node.SymbolID)
		if err != nil {
			return err
		}
		if s.Kind != sym.KindSubtable {
			stack = stack[:len(stack)-1]
			continue
		}
		ctor := s.Subtable.Constructors[node.ConstructorID]
		if top.next >= len(ctor.Operands) {
			length := ctor.MinLength
			for _, childIdx := range node.Children {
				c := ar.Node(childIdx)
				end := int(c.Offset-node.Offset) + c.Length
				if end > length {
					length = end
				}
			}
			node.Length = length
			stack = stack[:len(stack)-1]
			continue
		}

		opIdx := top.next
		top.next++
		operandSymID := ctor.Operands[opIdx]
		opSym, err := d.Table.Symbol(operandSymID)
		if err != nil {
			return err
		}

		var childOffset uint64
		if opSym.Operand.BaseOperand >= 0 {
			if opSym.Operand.BaseOperand >= len(node.Children) {
				return sym.Invariant("operand references a base operand not yet resolved")
			}
			base := ar.Node(node.Children[opSym.Operand.BaseOperand])
			childOffset = base.Offset + uint64(base.Length)
		} else {
			childOffset = uint64(int64(node.Offset) + opSym.Operand.RelativeOffset)
		}

		childIdx := ar.NewNode(top.node)
		child := ar.Node(childIdx)
		child.Offset = childOffset
		child.OperandIndex = opIdx
		child.SymbolID = opSym.Operand.DefiningSymbol

		if opSym.Operand.DefiningSymbol < 0 {
			child.Length = 0
			continue
		}
		symbolToNode[opSym.Operand.DefiningSymbol] = childIdx
		defSym, err := d.Table.Symbol(opSym.Operand.DefiningSymbol)
		if err != nil {
			return err
		}
		if defSym.Kind == sym.KindSubtable {
			if err := d.enterSubtable(ar, childIdx, addr, bytes, ctx, commits); err != nil {
				return err
			}
			stack = append(stack, frame{childIdx, 0})
		} else {
			child.Length = 0
		}
	}
	return nil
}

// enterSubtable resolves node's constructor via the decision tree and
// applies its context ops, per spec.md §4.2 steps 1c/1d.
func (d *Decoder) enterSubtable(ar *arena.Arena, nodeIdx int, addr uint64, bytes []byte, ctx *contextdb.Words, commits *[]pendingCommit) error {
	node := ar.Node(nodeIdx)
	s, err := d.Table.Symbol(node.SymbolID)
	if err != nil {
		return err
	}
	if s.Kind != sym.KindSubtable {
		return fmt.Errorf("%w: symbol %q is not a subtable", sym.ErrInvalidSymbol, s.Name)
	}
	in := &decisionInput{bytes: bytes, byteOffset: int(node.Offset), ctx: ctx}
	ctorIdx, err := s.Subtable.Decision.Resolve(in)
	if err != nil {
		return err
	}
	node.ConstructorID = ctorIdx
	ctor := s.Subtable.Constructors[ctorIdx]

	ectx := &nodeExprCtx{bytes: bytes, byteOffset: int(node.Offset), ctx: ctx, start: addr, table: d.Table, ar: ar, operandSyms: ctor.Operands}
	for _, cop := range ctor.ContextOps {
		if !cop.IsCommit {
			val, err := cop.PatternValue.Eval(ectx)
			if err != nil {
				return err
			}
			shifted := (uint32(val) << cop.Shift) & cop.Mask
			ctx.Vals[cop.Word] = (ctx.Vals[cop.Word] &^ cop.Mask) | shifted
			ctx.Mask[cop.Word] |= cop.Mask
			continue
		}
		*commits = append(*commits, pendingCommit{
			currentAddr:  addr,
			commitSymbol: cop.CommitSymbol,
			word:         cop.CommitWord,
			mask:         cop.CommitMask,
			flow:         cop.Flow,
			value:        ctx.Vals[cop.CommitWord] & cop.CommitMask,
		})
	}
	return nil
}

// resolveHandles implements spec.md §4.2 Phase 2: a second walk fixing
// every operand's handle, then (bottom-up) each constructor's own result
// handle when its template exports one.
func (d *Decoder) resolveHandles(ar *arena.Arena, nodeIdx int, addr uint64, bytes []byte, ctx *contextdb.Words, rootLength int) error {
	node := ar.Node(nodeIdx)
	s, err := d.Table.Symbol(node.SymbolID)
	if err != nil {
		return err
	}
	if s.Kind == sym.KindSubtable {
		ctor := s.Subtable.Constructors[node.ConstructorID]
		for _, childIdx := range node.Children {
			if err := d.resolveHandles(ar, childIdx, addr, bytes, ctx, rootLength); err != nil {
				return err
			}
		}
		if ctor.MainTemplate != nil && ctor.MainTemplate.Result != nil {
			h, err := ResolveVarnodeTpl(ar, nodeIdx, *ctor.MainTemplate.Result)
			if err != nil {
				return err
			}
			node.Handle = h
		}
		return nil
	}

	parent := ar.Node(node.Parent)
	parentSym, err := d.Table.Symbol(parent.SymbolID)
	if err != nil {
		return err
	}
	ctor := parentSym.Subtable.Constructors[parent.ConstructorID]
	opSymID := ctor.Operands[node.OperandIndex]
	opSym, err := d.Table.Symbol(opSymID)
	if err != nil {
		return err
	}
	ectx := &nodeExprCtx{bytes: bytes, byteOffset: int(node.Offset), ctx: ctx, start: addr, rootLength: &rootLength, table: d.Table, ar: ar, operandSyms: ctor.Operands}

	if opSym.Operand.DefiningSymbol < 0 {
		if opSym.Operand.DefExpr == nil {
			return sym.Invariant(fmt.Sprintf("operand %q has neither a defining symbol nor a def-expr", opSym.Name))
		}
		val, err := opSym.Operand.DefExpr.Eval(ectx)
		if err != nil {
			return err
		}
		node.Handle = arena.FixedHandle{SpaceID: d.constSpaceID(), Offset: uint64(val), Size: 0}
		return nil
	}

	defSym, err := d.Table.Symbol(opSym.Operand.DefiningSymbol)
	if err != nil {
		return err
	}
	h, err := d.symbolFixedHandle(defSym, ectx)
	if err != nil {
		return err
	}
	node.Handle = h
	return nil
}

// symbolFixedHandle computes the fixed handle a non-subtable symbol names,
// per spec.md §4.2 "set the operand's fixed handle from the symbol's
// fixed_handle".
func (d *Decoder) symbolFixedHandle(s *sym.Symbol, ectx *nodeExprCtx) (arena.FixedHandle, error) {
	constID := d.constSpaceID()
	switch s.Kind {
	case sym.KindVarnode:
		return arena.FixedHandle{SpaceID: s.Varnode.SpaceID, Offset: s.Varnode.Offset, Size: s.Varnode.Size}, nil
	case sym.KindValue:
		v, err := readInstrRange(ectx, s.Range)
		if err != nil {
			return arena.FixedHandle{}, err
		}
		return arena.FixedHandle{SpaceID: constID, Offset: uint64(v), Size: byteSize(s.Range.Size)}, nil
	case sym.KindContext:
		v := readContextRange(ectx, s.Context.Range)
		return arena.FixedHandle{SpaceID: constID, Offset: v, Size: byteSize(s.Context.Range.Size)}, nil
	case sym.KindValueMap, sym.KindVarnodeList, sym.KindName:
		idx, err := readInstrRange(ectx, s.Range)
		if err != nil {
			return arena.FixedHandle{}, err
		}
		if idx < 0 || int(idx) >= len(s.Table) || !s.Filled[idx] {
			return arena.FixedHandle{}, fmt.Errorf("%w: unset table entry %d for symbol %q", sym.ErrInvalidHandle, idx, s.Name)
		}
		return arena.FixedHandle{SpaceID: constID, Offset: uint64(s.Table[idx]), Size: byteSize(s.Range.Size)}, nil
	case sym.KindStart:
		return arena.FixedHandle{SpaceID: d.defaultSpaceID(), Offset: ectx.StartAddress(), Size: d.addressSize()}, nil
	case sym.KindEnd:
		return arena.FixedHandle{SpaceID: d.defaultSpaceID(), Offset: ectx.EndAddress(), Size: d.addressSize()}, nil
	case sym.KindEpsilon:
		return arena.FixedHandle{SpaceID: constID, Offset: 0, Size: 0}, nil
	case sym.KindFlowDest, sym.KindFlowRef:
		return arena.FixedHandle{SpaceID: d.defaultSpaceID(), Offset: ectx.StartAddress(), Size: d.addressSize()}, nil
	default:
		return arena.FixedHandle{}, fmt.Errorf("%w: symbol %q (kind %v) has no fixed handle", sym.ErrInvalidHandle, s.Name, s.Kind)
	}
}

// applyCommits resolves each deferred context commit's address through
// the symbol-to-node map built during Phase 1 and writes it into the
// context database, per spec.md §4.2 "After full parsing, apply commits".
func (d *Decoder) applyCommits(ar *arena.Arena, addr uint64, commits []pendingCommit, symbolToNode map[int]int) error {
	for _, c := range commits {
		nodeIdx, ok := symbolToNode[c.commitSymbol]
		if !ok {
			return fmt.Errorf("%w: commit symbol %d never resolved a node", sym.ErrInvalidHandle, c.commitSymbol)
		}
		h := ar.Node(nodeIdx).Handle
		commitAddr := h.Offset
		if h.SpaceID == d.constSpaceID() {
			if def := d.Spaces.Default(); def != nil && def.WordSize > 1 {
				commitAddr *= uint64(def.WordSize)
			}
		}
		if c.flow {
			d.Ctx.SetChangePoint(c.currentAddr, commitAddr, c.word, c.mask, c.value)
		} else {
			d.Ctx.SetRegion(commitAddr, c.word, c.mask, c.value)
		}
	}
	return nil
}

func (d *Decoder) constSpaceID() int {
	if s := d.Spaces.Constant(); s != nil {
		return s.ID
	}
	return 0
}

func (d *Decoder) defaultSpaceID() int {
	if s := d.Spaces.Default(); s != nil {
		return s.ID
	}
	return 0
}

func (d *Decoder) addressSize() uint {
	if s := d.Spaces.Default(); s != nil {
		return s.AddressSize
	}
	return 4
}

func byteSize(bits uint) uint { return (bits + 7) / 8 }

func readInstrRange(ectx *nodeExprCtx, rng sym.BitRange) (int64, error) {
	raw, err := ectx.InstrBytes(rng.ByteStart, rng.ByteEnd)
	if err != nil {
		return 0, err
	}
	bits := extractBits(raw, rng.Start, rng.Start+rng.Size)
	if rng.Signed {
		return signExtend(bits, rng.Size), nil
	}
	return int64(bits), nil
}

func readContextRange(ectx *nodeExprCtx, rng sym.BitRange) uint64 {
	word := int(rng.Start) / 32
	bit := rng.Start % 32
	raw := uint64(ectx.ContextWord(word))
	return extractBits(raw, bit, bit+rng.Size)
}

func signExtend(v uint64, bits uint) int64 {
	if bits == 0 || bits >= 64 {
		return int64(v)
	}
	signBit := uint64(1) << (bits - 1)
	if v&signBit != 0 {
		return int64(v | (^uint64(0) << bits))
	}
	return int64(v)
}
