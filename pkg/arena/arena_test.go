package arena

import (
	"testing"

	"github.com/oisee/liftvm/pkg/pcode"
)

func TestAppendOpAndReset(t *testing.T) {
	a := New(4, 4)
	a.AppendOp(pcode.Op{Opcode: pcode.Copy})
	a.AppendOp(pcode.Op{Opcode: pcode.IntAdd})
	if len(a.Ops()) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(a.Ops()))
	}
	a.Reset()
	if len(a.Ops()) != 0 {
		t.Fatalf("expected 0 ops after reset, got %d", len(a.Ops()))
	}
	a.AppendOp(pcode.Op{Opcode: pcode.Branch})
	if len(a.Ops()) != 1 {
		t.Fatalf("expected capacity reuse after reset, got %d ops", len(a.Ops()))
	}
}

func TestNewNodeTracksParentage(t *testing.T) {
	a := New(4, 4)
	root := a.NewNode(-1)
	child := a.NewNode(root)
	if a.NodeCount() != 2 {
		t.Fatalf("expected 2 nodes, got %d", a.NodeCount())
	}
	if len(a.Node(root).Children) != 1 || a.Node(root).Children[0] != child {
		t.Fatalf("expected root to track child %d, got %v", child, a.Node(root).Children)
	}
	if a.Node(child).Parent != root {
		t.Fatalf("expected child's parent to be %d, got %d", root, a.Node(child).Parent)
	}
}

func TestOpAtAllowsInPlacePatch(t *testing.T) {
	a := New(2, 0)
	idx := a.AppendOp(pcode.Op{Opcode: pcode.Branch})
	a.OpAt(idx).Opcode = pcode.Call
	if a.Ops()[idx].Opcode != pcode.Call {
		t.Fatalf("expected patched opcode Call, got %v", a.Ops()[idx].Opcode)
	}
}
