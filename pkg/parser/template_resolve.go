package parser

import (
	"fmt"

	"github.com/oisee/liftvm/pkg/arena"
	"github.com/oisee/liftvm/pkg/sym"
)

// ResolveVarnodeTpl resolves an unresolved sym.VarnodeTpl against the live
// ConstructState tree at nodeIdx, producing a concrete FixedHandle.
// pkg/lift calls this once per op-template operand while walking a
// constructor's template into LIR; pkg/parser itself only needs it for a
// constructor's exported "Result" handle.
func ResolveVarnodeTpl(ar *arena.Arena, nodeIdx int, tpl sym.VarnodeTpl) (arena.FixedHandle, error) {
	spaceID, err := ResolveSpaceTpl(ar, nodeIdx, tpl.Space)
	if err != nil {
		return arena.FixedHandle{}, err
	}
	offset, err := ResolveOffsetTpl(ar, nodeIdx, tpl.Offset)
	if err != nil {
		return arena.FixedHandle{}, err
	}
	size, err := ResolveSizeTpl(ar, nodeIdx, tpl.Size)
	if err != nil {
		return arena.FixedHandle{}, err
	}
	return arena.FixedHandle{SpaceID: spaceID, Offset: offset, Size: size}, nil
}

// ResolveSpaceTpl resolves a SpaceTpl against the node at nodeIdx: a
// literal space id, this node's own (already-computed) handle space, or
// the space of one of its resolved operands.
func ResolveSpaceTpl(ar *arena.Arena, nodeIdx int, tpl sym.SpaceTpl) (int, error) {
	switch tpl.Ref {
	case sym.RefReal:
		return tpl.SpaceID, nil
	case sym.RefHandle:
		return ar.Node(nodeIdx).Handle.SpaceID, nil
	case sym.RefOperand:
		child, err := operandNode(ar, nodeIdx, tpl.Index)
		if err != nil {
			return 0, err
		}
		return child.Handle.SpaceID, nil
	default:
		return 0, fmt.Errorf("%w: unhandled space template ref %d", sym.ErrInvalidHandle, tpl.Ref)
	}
}

// ResolveOffsetTpl resolves an OffsetTpl the same way ResolveSpaceTpl
// resolves a SpaceTpl. Per spec.md §4.3, a dynamic operand (OffsetSpace
// set) is handled by the LIR builder, not here: this function returns the
// offset tmpl's resolved pointer value unchanged, leaving the builder to
// recognize OffsetTpl.IsDynamic() and desugar into Load/Store.
func ResolveOffsetTpl(ar *arena.Arena, nodeIdx int, tpl sym.OffsetTpl) (uint64, error) {
	switch tpl.Ref {
	case sym.RefReal:
		return tpl.Real, nil
	case sym.RefHandle:
		return ar.Node(nodeIdx).Handle.Offset, nil
	case sym.RefOperand:
		child, err := operandNode(ar, nodeIdx, tpl.Index)
		if err != nil {
			return 0, err
		}
		return child.Handle.Offset, nil
	default:
		return 0, fmt.Errorf("%w: unhandled offset template ref %d", sym.ErrInvalidHandle, tpl.Ref)
	}
}

// ResolveSizeTpl resolves a SizeTpl the same way.
func ResolveSizeTpl(ar *arena.Arena, nodeIdx int, tpl sym.SizeTpl) (uint, error) {
	switch tpl.Ref {
	case sym.RefReal:
		return tpl.Real, nil
	case sym.RefHandle:
		return ar.Node(nodeIdx).Handle.Size, nil
	case sym.RefOperand:
		child, err := operandNode(ar, nodeIdx, tpl.Index)
		if err != nil {
			return 0, err
		}
		return child.Handle.Size, nil
	default:
		return 0, fmt.Errorf("%w: unhandled size template ref %d", sym.ErrInvalidHandle, tpl.Ref)
	}
}

func operandNode(ar *arena.Arena, nodeIdx, operandIndex int) (*arena.ConstructState, error) {
	node := ar.Node(nodeIdx)
	if operandIndex < 0 || operandIndex >= len(node.Children) {
		return nil, fmt.Errorf("%w: operand index %d out of range", sym.ErrInvalidHandle, operandIndex)
	}
	return ar.Node(node.Children[operandIndex]), nil
}
