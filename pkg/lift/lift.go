// Package lift walks a matched constructor tree (from pkg/parser) plus its
// construct templates into a concrete LIR op sequence, per spec.md §4.3
// "LIR builder". It resolves every VarnodeTpl against the tree using
// pkg/parser's exported Resolve* helpers, desugars dynamic operands into
// Load/Store around a fresh temporary, tags generated Unique-space
// varnodes so nested (delay-slot) instructions can't collide, emits delay
// slots inline by re-entering the decoder, and patches label-relative
// branch inputs once the whole sequence is known.
package lift

import (
	"fmt"

	"github.com/oisee/liftvm/pkg/arena"
	"github.com/oisee/liftvm/pkg/parser"
	"github.com/oisee/liftvm/pkg/pcode"
	"github.com/oisee/liftvm/pkg/space"
	"github.com/oisee/liftvm/pkg/sym"
)

// Builder emits LIR for one matched instruction tree. It carries no
// per-instruction state — a single Builder is shared and reused across a
// translation block, mirroring pkg/parser.Decoder.
type Builder struct {
	Table  *sym.Table
	Spaces *space.Registry
	// Dec is used to re-enter the decoder for delay-slot instructions. May
	// be nil if the processor never declares a delay slot.
	Dec *parser.Decoder
	// UniqueMask is ANDed with the current instruction address and shifted
	// left 4 bits into every generated Unique-space offset, per spec.md
	// §4.3 "Unique-space offsets". Processor-specific; the teacher's z80
	// target never nests instructions so this is 0 there, but delay-slot
	// architectures (MIPS, SPARC) need enough bits to keep the outer and
	// nested instructions' temporaries apart.
	UniqueMask uint64
}

type labelRef struct {
	opIndex, inputIndex int
	labelBase, localID  int
}

// emitState is the per-Emit-call scratch the Builder doesn't keep between
// calls: label tables, deferred label patches, the running Unique-space
// counter for generated temporaries, and the address currently in scope
// for Unique-space tagging (the outer instruction's, or a delay-slot
// instruction's while inside one).
type emitState struct {
	b   *Builder
	ar  *arena.Arena
	ops []pcode.Op

	curAddr uint64

	rootAddr   uint64
	rootLen    int
	delayCount int
	delayTail  []byte

	labels        []int
	labelRefs     []labelRef
	uniqueCounter uint64
}

// Emit builds the LIR sequence for the instruction whose matched tree root
// is at the given arena index. addr/instrLen are the instruction's own
// address and byte length; delaySlotByteCount and delayTail describe the
// following bytes for delay-slot re-parsing (both are zero/nil when the
// root template declares no delay slot).
func (b *Builder) Emit(ar *arena.Arena, root int, addr uint64, instrLen int, delaySlotByteCount int, delayTail []byte) (pcode.PCode, error) {
	s := &emitState{
		b:          b,
		ar:         ar,
		curAddr:    addr,
		rootAddr:   addr,
		rootLen:    instrLen,
		delayCount: delaySlotByteCount,
		delayTail:  delayTail,
	}
	start := len(ar.Ops())

	effRoot, tpl, err := s.effectiveTemplate(root)
	if err != nil {
		return pcode.PCode{}, err
	}
	if err := s.emitConstructor(effRoot, tpl, true); err != nil {
		return pcode.PCode{}, err
	}
	if err := s.resolveLabelRefs(); err != nil {
		return pcode.PCode{}, err
	}

	return pcode.PCode{
		Address:               addr,
		Ops:                   ar.Ops()[start:],
		DelaySlotByteCount:    delaySlotByteCount,
		InstructionByteLength: instrLen,
	}, nil
}

// effectiveTemplate follows a chain of flow-through constructors (ones
// that delegate entirely to one operand, per spec.md §4.2) down to the
// node that actually owns a template to emit, or reports nodeIdx itself
// unchanged when it names a non-subtable symbol (an ordinary operand with
// no template of its own — Build only ever targets such a node through an
// intermediate subtable).
func (s *emitState) effectiveTemplate(nodeIdx int) (int, *sym.ConstructTemplate, error) {
	return resolveEffectiveTemplate(s.b.Table, s.ar, nodeIdx)
}

func resolveEffectiveTemplate(tbl *sym.Table, ar *arena.Arena, nodeIdx int) (int, *sym.ConstructTemplate, error) {
	for {
		node := ar.Node(nodeIdx)
		sm, err := tbl.Symbol(node.SymbolID)
		if err != nil {
			return 0, nil, err
		}
		if sm.Kind != sym.KindSubtable {
			return nodeIdx, nil, nil
		}
		if node.ConstructorID < 0 || node.ConstructorID >= len(sm.Subtable.Constructors) {
			return 0, nil, fmt.Errorf("%w: node has no resolved constructor", ErrInvalidTemplate)
		}
		ctor := sm.Subtable.Constructors[node.ConstructorID]
		if !ctor.HasFlowThrough() {
			return nodeIdx, ctor.MainTemplate, nil
		}
		if ctor.FlowThroughIndex >= len(node.Children) {
			return 0, nil, fmt.Errorf("%w: flow-through operand index out of range", ErrInvalidTemplate)
		}
		nodeIdx = node.Children[ctor.FlowThroughIndex]
	}
}

// RootTemplate resolves the effective ConstructTemplate for a decoded
// instruction's root node, following flow-through constructors the same
// way Emit does. Callers that need to know an instruction's delay-slot
// byte count before deciding how many trailing bytes to hand to Emit (the
// translation-block builder, per spec.md §4.7) use this instead of
// duplicating the flow-through walk.
func (b *Builder) RootTemplate(ar *arena.Arena, root int) (*sym.ConstructTemplate, error) {
	_, tpl, err := resolveEffectiveTemplate(b.Table, ar, root)
	return tpl, err
}

// emitConstructor walks one ConstructTemplate's operations, per spec.md
// §4.3 "Template directives". isRoot gates the DelaySlot directive: only
// the outermost instruction's template may declare one.
func (s *emitState) emitConstructor(nodeIdx int, tpl *sym.ConstructTemplate, isRoot bool) error {
	if tpl == nil {
		return nil
	}
	labelBase := len(s.labels)
	for i := 0; i < tpl.Labels; i++ {
		s.labels = append(s.labels, -1)
	}

	for _, optpl := range tpl.Operations {
		switch optpl.Opcode {
		case pcode.Build:
			node := s.ar.Node(nodeIdx)
			if optpl.Operand < 0 || optpl.Operand >= len(node.Children) {
				return fmt.Errorf("%w: Build operand index %d out of range", ErrInvalidTemplate, optpl.Operand)
			}
			childIdx := node.Children[optpl.Operand]
			effChild, childTpl, err := s.effectiveTemplate(childIdx)
			if err != nil {
				return err
			}
			if err := s.emitConstructor(effChild, childTpl, false); err != nil {
				return err
			}
		case pcode.DelaySlot:
			if !isRoot {
				return ErrNestedDelaySlot
			}
			if err := s.emitDelaySlots(); err != nil {
				return err
			}
		case pcode.Label:
			idx := labelBase + optpl.LabelID
			if idx < 0 || idx >= len(s.labels) {
				return fmt.Errorf("%w: label id %d out of range", ErrInvalidTemplate, optpl.LabelID)
			}
			s.labels[idx] = len(s.ar.Ops())
		case pcode.CrossBuild:
			return fmt.Errorf("%w: CrossBuild", ErrUnsupportedDirective)
		default:
			if err := s.emitOp(nodeIdx, optpl, labelBase); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitDelaySlots re-parses and emits LIR for the instructions following the
// root, inline, until their accumulated byte length reaches the declared
// delay-slot byte count, per spec.md §4.3 "Delay slots".
func (s *emitState) emitDelaySlots() error {
	if s.delayCount <= 0 {
		return nil
	}
	if s.b.Dec == nil {
		return fmt.Errorf("%w: delay slot declared but no decoder configured for re-parsing", ErrInvalidTemplate)
	}
	addr := s.rootAddr + uint64(s.rootLen)
	remaining := s.delayTail
	consumed := 0
	savedAddr := s.curAddr
	savedCounter := s.uniqueCounter
	defer func() {
		s.curAddr = savedAddr
		s.uniqueCounter = savedCounter
	}()

	for consumed < s.delayCount {
		if len(remaining) == 0 {
			return fmt.Errorf("%w: delay-slot bytes exhausted before declared length", ErrInvalidTemplate)
		}
		childRoot, length, err := s.b.Dec.Decode(s.ar, addr, remaining)
		if err != nil {
			return err
		}
		s.curAddr = addr
		effChild, childTpl, err := s.effectiveTemplate(childRoot)
		if err != nil {
			return err
		}
		if err := s.emitConstructor(effChild, childTpl, false); err != nil {
			return err
		}
		addr += uint64(length)
		consumed += length
		remaining = remaining[length:]
	}
	return nil
}

// emitOp resolves one template op's inputs/output against the live tree
// and appends the resulting pcode.Op (plus, for a dynamic output, a
// trailing Store) to the arena.
func (s *emitState) emitOp(nodeIdx int, optpl sym.OpTpl, labelBase int) error {
	inputs := make([]space.Varnode, len(optpl.Inputs))
	for i, vtpl := range optpl.Inputs {
		v, err := s.resolveValue(nodeIdx, vtpl)
		if err != nil {
			return err
		}
		inputs[i] = v
	}

	var output *space.Varnode
	var trailing *pcode.Op
	if optpl.Output != nil {
		out, tr, err := s.resolveOutput(nodeIdx, *optpl.Output)
		if err != nil {
			return err
		}
		output = &out
		trailing = tr
	}

	opIdx := s.ar.AppendOp(pcode.Op{Opcode: optpl.Opcode, Inputs: inputs, Output: output})
	if len(optpl.Inputs) > 0 && optpl.Inputs[0].Offset.Ref == sym.RefRelative {
		s.labelRefs = append(s.labelRefs, labelRef{
			opIndex: opIdx, inputIndex: 0,
			labelBase: labelBase, localID: optpl.Inputs[0].Offset.Index,
		})
	}
	if trailing != nil {
		s.ar.AppendOp(*trailing)
	}
	return nil
}

// resolveValue resolves one input VarnodeTpl: a label-relative placeholder
// (patched later), a plain static handle, or a dynamic Load desugar.
func (s *emitState) resolveValue(nodeIdx int, vtpl sym.VarnodeTpl) (space.Varnode, error) {
	if vtpl.Offset.Ref == sym.RefRelative {
		size, err := parser.ResolveSizeTpl(s.ar, nodeIdx, vtpl.Size)
		if err != nil {
			return space.Varnode{}, err
		}
		return space.Varnode{Space: s.constSpace(), Offset: 0, Size: size}, nil
	}
	if !vtpl.Offset.IsDynamic() {
		h, err := parser.ResolveVarnodeTpl(s.ar, nodeIdx, vtpl)
		if err != nil {
			return space.Varnode{}, err
		}
		return s.handleToVarnode(h, vtpl.Offset.Ref == sym.RefReal), nil
	}
	return s.loadDynamic(nodeIdx, vtpl)
}

// resolveOutput resolves an op's output VarnodeTpl. A dynamic output
// writes to a fresh temporary and returns a trailing Store that writes the
// temporary back through the pointer, per spec.md §4.3 "Outputs that are
// dynamic emit a trailing Store".
func (s *emitState) resolveOutput(nodeIdx int, vtpl sym.VarnodeTpl) (space.Varnode, *pcode.Op, error) {
	if !vtpl.Offset.IsDynamic() {
		v, err := s.resolveValue(nodeIdx, vtpl)
		return v, nil, err
	}
	ptr, err := s.resolvePointer(nodeIdx, vtpl.Offset)
	if err != nil {
		return space.Varnode{}, nil, err
	}
	valSpaceID, err := parser.ResolveSpaceTpl(s.ar, nodeIdx, *vtpl.Offset.OffsetSpace)
	if err != nil {
		return space.Varnode{}, nil, err
	}
	size, err := parser.ResolveSizeTpl(s.ar, nodeIdx, vtpl.Size)
	if err != nil {
		return space.Varnode{}, nil, err
	}
	tmp := s.newUnique(size)
	constIn := space.Varnode{Space: s.constSpace(), Offset: uint64(valSpaceID), Size: s.addressSize()}
	store := pcode.Op{Opcode: pcode.Store, Inputs: []space.Varnode{constIn, ptr, tmp}}
	return tmp, &store, nil
}

// loadDynamic desugars a dynamic input into a Load from the pointer into a
// fresh temporary, per spec.md §4.3 "Dynamic operands".
func (s *emitState) loadDynamic(nodeIdx int, vtpl sym.VarnodeTpl) (space.Varnode, error) {
	ptr, err := s.resolvePointer(nodeIdx, vtpl.Offset)
	if err != nil {
		return space.Varnode{}, err
	}
	valSpaceID, err := parser.ResolveSpaceTpl(s.ar, nodeIdx, *vtpl.Offset.OffsetSpace)
	if err != nil {
		return space.Varnode{}, err
	}
	size, err := parser.ResolveSizeTpl(s.ar, nodeIdx, vtpl.Size)
	if err != nil {
		return space.Varnode{}, err
	}
	tmp := s.newUnique(size)
	constIn := space.Varnode{Space: s.constSpace(), Offset: uint64(valSpaceID), Size: s.addressSize()}
	s.ar.AppendOp(pcode.Op{Opcode: pcode.Load, Inputs: []space.Varnode{constIn, ptr}, Output: &tmp})
	return tmp, nil
}

// resolvePointer resolves a dynamic operand's pointer varnode: the
// register (or other non-constant-space location) holding the runtime
// address, found by resolving the offset template's Ref/Index as a handle
// lookup across all three of space/offset/size at once — exactly what a
// resolved operand's own FixedHandle already is.
func (s *emitState) resolvePointer(nodeIdx int, off sym.OffsetTpl) (space.Varnode, error) {
	if off.Ref == sym.RefReal {
		return space.Varnode{}, fmt.Errorf("%w: dynamic operand's pointer cannot be a literal offset", ErrInvalidTemplate)
	}
	ptrTpl := sym.VarnodeTpl{
		Space:  sym.SpaceTpl{Ref: off.Ref, Index: off.Index},
		Offset: sym.OffsetTpl{Ref: off.Ref, Real: off.Real, Index: off.Index},
		Size:   sym.SizeTpl{Ref: off.Ref, Index: off.Index},
	}
	h, err := parser.ResolveVarnodeTpl(s.ar, nodeIdx, ptrTpl)
	if err != nil {
		return space.Varnode{}, err
	}
	return space.Varnode{Space: s.b.Spaces.ByID(h.SpaceID), Offset: h.Offset, Size: h.Size}, nil
}

// handleToVarnode converts a resolved FixedHandle to a concrete Varnode,
// tagging it per spec.md §4.3 "Unique-space offsets" when it names a
// literal (constructor-declared) Unique-space temporary rather than an
// already-resolved operand's handle — an operand's handle was tagged, if
// at all, when it was first generated deeper in the tree.
func (s *emitState) handleToVarnode(h arena.FixedHandle, literal bool) space.Varnode {
	sp := s.b.Spaces.ByID(h.SpaceID)
	offset := h.Offset
	if literal && sp != nil && sp.Kind == space.Unique {
		offset = s.tagUnique(offset)
	}
	return space.Varnode{Space: sp, Offset: offset, Size: h.Size}
}

// newUnique allocates a fresh Unique-space temporary of the given size for
// a dynamic-operand Load/Store desugar. Raw offsets are handed out 16
// apart so the address tag ORed in at bit 4 never collides with them.
func (s *emitState) newUnique(size uint) space.Varnode {
	raw := s.uniqueCounter
	s.uniqueCounter += 0x10
	return space.Varnode{Space: s.b.Spaces.Unique(), Offset: s.tagUnique(raw), Size: size}
}

func (s *emitState) tagUnique(raw uint64) uint64 {
	return raw | ((s.curAddr & s.b.UniqueMask) << 4)
}

func (s *emitState) constSpace() *space.Space { return s.b.Spaces.Constant() }

func (s *emitState) addressSize() uint {
	if d := s.b.Spaces.Default(); d != nil {
		return d.AddressSize
	}
	return 4
}

// resolveLabelRefs implements spec.md §4.3 "Relative resolution": walk
// every recorded label reference, look up its target, and overwrite the
// placeholder offset with the op-index-relative, width-masked delta.
func (s *emitState) resolveLabelRefs() error {
	for _, r := range s.labelRefs {
		idx := r.labelBase + r.localID
		if idx < 0 || idx >= len(s.labels) {
			return fmt.Errorf("%w: label id %d out of range", ErrInvalidTemplate, r.localID)
		}
		target := s.labels[idx]
		if target < 0 {
			return fmt.Errorf("%w: label %d referenced but never marked", ErrInvalidTemplate, r.localID)
		}
		op := s.ar.OpAt(r.opIndex)
		in := &op.Inputs[r.inputIndex]
		fixed := int64(target - r.opIndex)
		in.Offset = uint64(fixed) & maskBits(in.Size*8)
	}
	return nil
}

func maskBits(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}
