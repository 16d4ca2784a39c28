package pcode

// Info holds static metadata for an LIR opcode, mirroring a per-opcode
// static Info table.
type Info struct {
	Mnemonic string
	Inputs   int // -1 means variable arity
}

// Catalog maps each Opcode to its Info.
var Catalog [OpcodeCount]Info

func reg(op Opcode, mnemonic string, inputs int) { Catalog[op] = Info{Mnemonic: mnemonic, Inputs: inputs} }

func init() {
	reg(Copy, "COPY", 1)
	reg(Load, "LOAD", 2)
	reg(Store, "STORE", 3)
	reg(Branch, "BRANCH", 1)
	reg(CBranch, "CBRANCH", 2)
	reg(IBranch, "BRANCHIND", 1)
	reg(Call, "CALL", 1)
	reg(ICall, "CALLIND", 1)
	reg(Return, "RETURN", 1)
	reg(IntEq, "INT_EQUAL", 2)
	reg(IntNotEq, "INT_NOTEQUAL", 2)
	reg(IntLess, "INT_LESS", 2)
	reg(IntSLess, "INT_SLESS", 2)
	reg(IntLessEq, "INT_LESSEQUAL", 2)
	reg(IntSLessEq, "INT_SLESSEQUAL", 2)
	reg(IntZExt, "INT_ZEXT", 1)
	reg(IntSExt, "INT_SEXT", 1)
	reg(IntAdd, "INT_ADD", 2)
	reg(IntSub, "INT_SUB", 2)
	reg(IntCarry, "INT_CARRY", 2)
	reg(IntSCarry, "INT_SCARRY", 2)
	reg(IntSBorrow, "INT_SBORROW", 2)
	reg(IntNeg, "INT_2COMP", 1)
	reg(IntNot, "INT_NEGATE", 1)
	reg(IntXor, "INT_XOR", 2)
	reg(IntAnd, "INT_AND", 2)
	reg(IntOr, "INT_OR", 2)
	reg(IntLShift, "INT_LEFT", 2)
	reg(IntRShift, "INT_RIGHT", 2)
	reg(IntSRShift, "INT_SRIGHT", 2)
	reg(IntMul, "INT_MULT", 2)
	reg(IntDiv, "INT_DIV", 2)
	reg(IntSDiv, "INT_SDIV", 2)
	reg(IntRem, "INT_REM", 2)
	reg(IntSRem, "INT_SREM", 2)
	reg(BoolNot, "BOOL_NEGATE", 1)
	reg(BoolAnd, "BOOL_AND", 2)
	reg(BoolOr, "BOOL_OR", 2)
	reg(BoolXor, "BOOL_XOR", 2)
	reg(FloatEq, "FLOAT_EQUAL", 2)
	reg(FloatNotEq, "FLOAT_NOTEQUAL", 2)
	reg(FloatLess, "FLOAT_LESS", 2)
	reg(FloatLessEq, "FLOAT_LESSEQUAL", 2)
	reg(FloatAdd, "FLOAT_ADD", 2)
	reg(FloatSub, "FLOAT_SUB", 2)
	reg(FloatMul, "FLOAT_MULT", 2)
	reg(FloatDiv, "FLOAT_DIV", 2)
	reg(FloatNeg, "FLOAT_NEG", 1)
	reg(FloatAbs, "FLOAT_ABS", 1)
	reg(FloatSqrt, "FLOAT_SQRT", 1)
	reg(FloatCeiling, "FLOAT_CEIL", 1)
	reg(FloatFloor, "FLOAT_FLOOR", 1)
	reg(FloatRound, "FLOAT_ROUND", 1)
	reg(FloatIsNaN, "FLOAT_NAN", 1)
	reg(FloatInt2Float, "INT2FLOAT", 1)
	reg(FloatFloat2Float, "FLOAT2FLOAT", 1)
	reg(FloatTrunc, "TRUNC", 1)
	reg(Subpiece, "SUBPIECE", 2)
	reg(PopCount, "POPCOUNT", 1)
	reg(LZCount, "LZCOUNT", 1)
	reg(CallOther, "CALLOTHER", -1)
	reg(Build, "<build>", -1)
	reg(DelaySlot, "<delayslot>", -1)
	reg(Label, "<label>", -1)
	reg(CrossBuild, "<crossbuild>", -1)
}

// Mnemonic returns the human-readable name for op, used by the formatter
// contract (disassembly pretty-printing is otherwise out of scope).
func Mnemonic(op Opcode) string {
	if op < 0 || op >= OpcodeCount {
		return "<invalid>"
	}
	return Catalog[op].Mnemonic
}
