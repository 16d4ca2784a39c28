package parser

import (
	"fmt"

	"github.com/oisee/liftvm/pkg/arena"
	"github.com/oisee/liftvm/pkg/contextdb"
	"github.com/oisee/liftvm/pkg/sym"
)

// nodeExprCtx implements sym.ExprContext over one constructor node: its
// byte window, the parse's shared local context, and its operands' own
// expressions (for Operand{ctor,index} references), per spec.md §4.2
// "Pattern expression evaluation".
type nodeExprCtx struct {
	bytes       []byte
	byteOffset  int
	ctx         *contextdb.Words
	start       uint64
	rootLength  *int // nil, or points at the root node's Length once computed
	table       *sym.Table
	ar          *arena.Arena
	operandSyms []int // ctor.Operands for the constructor owning this node
}

func (e *nodeExprCtx) InstrBytes(byteStart, byteEnd int) (uint64, error) {
	return bigEndianWindow(e.bytes, e.byteOffset+byteStart, byteEnd-byteStart+1), nil
}

func (e *nodeExprCtx) ContextWord(index int) uint32 {
	if index < 0 || index >= contextdb.WordCount {
		return 0
	}
	return e.ctx.Vals[index]
}

func (e *nodeExprCtx) StartAddress() uint64 { return e.start }

func (e *nodeExprCtx) EndAddress() uint64 {
	if e.rootLength == nil {
		return e.start
	}
	return e.start + uint64(*e.rootLength)
}

// OperandValue evaluates the local or synthetic def expression of the
// operand at constructor-local index, per spec.md §4.2: "Operand{ctor,
// index} which must recursively evaluate the referenced operand's
// local/def expression."
func (e *nodeExprCtx) OperandValue(index int) (int64, error) {
	if index < 0 || index >= len(e.operandSyms) {
		return 0, fmt.Errorf("sym: operand index %d out of range", index)
	}
	opSym, err := e.table.Symbol(e.operandSyms[index])
	if err != nil {
		return 0, err
	}
	expr := opSym.Operand.LocalExpr
	if expr == nil {
		expr = opSym.Operand.DefExpr
	}
	if expr == nil {
		return 0, fmt.Errorf("%w: operand %q has no evaluable expression", sym.ErrInvalidSymbol, opSym.Name)
	}
	return expr.Eval(e)
}
