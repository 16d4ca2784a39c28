package tb

import (
	"github.com/oisee/liftvm/pkg/arena"
	"github.com/oisee/liftvm/pkg/bv"
	"github.com/oisee/liftvm/pkg/lift"
	"github.com/oisee/liftvm/pkg/parser"
	"github.com/oisee/liftvm/pkg/pcode"
	"github.com/oisee/liftvm/pkg/state"
)

// maxInstrWindow bounds how many bytes a block build reads to decode one
// instruction, per spec.md §4.7 ("read 4 bytes (or fewer near a page
// boundary)"). 4 covers the teacher's fixed-width targets; this repo sets
// it generously enough for variable-length ISAs (x86) decoded against a
// hand-built sym.Table, since decode is length-discovery regardless of
// window size.
const maxInstrWindow = 16

// InstructionObserver is notified once per instruction fetch, before its
// ops are evaluated, per spec.md §4.7 "Observers". It must not mutate
// control flow.
type InstructionObserver interface {
	AfterFetch(addr uint64, entry InstructionEntry)
}

// OpObserver is notified after every evaluated LIR op with the concrete
// values read back from state, per spec.md §4.7.
type OpObserver interface {
	AfterOp(loc pcode.Location, op pcode.Op, inputs []bv.BitVector, output *bv.BitVector)
}

// BreakpointObserver is notified when the stepper's location lands on an
// instruction boundary address it's watching, per spec.md §4.7
// "breakpoints keyed on absolute address".
type BreakpointObserver interface {
	OnBreakpoint(addr uint64)
}

// Observers bundles the three observer interfaces the stepper calls.
// Each is optional.
type Observers struct {
	Instruction InstructionObserver
	Op          OpObserver
	Breakpoint  BreakpointObserver
}

// Stepper drives the fetch-decode-execute loop from spec.md §4.7: it
// lifts straight-line instruction runs into cached Blocks and advances
// the evaluator through them one LIR op at a time, updating both its own
// sub-instruction Location and the hardware PC register.
type Stepper struct {
	Dec     *parser.Decoder
	Builder *lift.Builder
	Machine *state.Machine
	Cache   *Cache
	PCName  string

	Observers Observers

	// Breakpoints names the addresses Observers.Breakpoint fires on.
	// A nil or empty set disables breakpoint checks entirely.
	Breakpoints map[uint64]bool

	loc  pcode.Location
	init bool
}

// NewStepper wires a Stepper from its collaborators, reading the initial
// location from the PC register on the first Step call.
func NewStepper(dec *parser.Decoder, b *lift.Builder, m *state.Machine, pcName string) *Stepper {
	return &Stepper{Dec: dec, Builder: b, Machine: m, Cache: NewCache(), PCName: pcName}
}

// Location returns the stepper's current (address, micro-position).
func (s *Stepper) Location() pcode.Location { return s.loc }

// SetLocation overrides the stepper's location directly — used to seed
// execution at an arbitrary entry point instead of whatever the PC
// register currently holds.
func (s *Stepper) SetLocation(loc pcode.Location) {
	s.loc = loc
	s.init = true
}

// WriteMem writes through to the underlying Machine and invalidates any
// cached block the write overlaps, per spec.md §5/§8 "self-modifying-code
// coherence" / "Write-invalidates-cache". Callers that want cache
// coherence on writes must go through this rather than Machine.WriteMem
// directly.
func (s *Stepper) WriteMem(addr uint64, size int, value bv.BitVector) error {
	if err := s.Machine.WriteMem(addr, size, value); err != nil {
		return err
	}
	s.Cache.Invalidate(addr, uint64(size))
	return nil
}

func (s *Stepper) ensureLocation() error {
	if s.init {
		return nil
	}
	pcv, err := s.Machine.Regs.ReadReg(s.PCName)
	if err != nil {
		return err
	}
	s.loc = pcode.Location{Address: pcv.Uint64()}
	s.init = true
	return nil
}

// Step executes one instruction: it evaluates that instruction's LIR ops
// in order until control leaves the instruction's address or its ops run
// out (or, if the instruction errored in decode/lift, surfaces that error
// immediately per spec.md §7's propagation policy), then advances the
// stepper's location and, once an instruction completes, writes the
// hardware PC register back.
func (s *Stepper) Step() error {
	if err := s.ensureLocation(); err != nil {
		return err
	}
	pc := s.loc

	if pc.Micro == 0 {
		if _, ok := s.Cache.InstructionBlock(pc.Address); !ok {
			blk := s.buildBlock(pc.Address)
			s.Cache.Put(blk)
		}
		if s.Breakpoints[pc.Address] && s.Observers.Breakpoint != nil {
			s.Observers.Breakpoint.OnBreakpoint(pc.Address)
		}
	}

	blk, ok := s.Cache.InstructionBlock(pc.Address)
	if !ok {
		return &ErrNoInstructionAt{Address: pc.Address}
	}
	entry, ok := blk.Entry(pc.Address)
	if !ok {
		return &ErrNoInstructionAt{Address: pc.Address}
	}
	if pc.Micro == 0 && s.Observers.Instruction != nil {
		s.Observers.Instruction.AfterFetch(pc.Address, entry)
	}
	if entry.Err != nil {
		return entry.Err
	}

	lc := entry.PCode
	instrAddr := pc.Address
	for pc.Address == instrAddr && pc.Micro < len(lc.Ops) {
		op := lc.Ops[pc.Micro]
		inputs := make([]bv.BitVector, len(op.Inputs))
		for i, v := range op.Inputs {
			val, err := s.Machine.ReadVarnode(v)
			if err == nil {
				inputs[i] = val
			}
		}

		target, err := pcode.Eval(pc, op, s.Machine)
		if err != nil {
			return err
		}

		if s.Observers.Op != nil {
			var output *bv.BitVector
			if op.Output != nil {
				if v, err := s.Machine.ReadVarnode(*op.Output); err == nil {
					output = &v
				}
			}
			s.Observers.Op.AfterOp(pc, op, inputs, output)
		}

		if target.Kind == pcode.TargetFall {
			pc.Micro++
		} else {
			pc = target.Loc
		}
		s.loc = pc
	}

	if pc.Address == instrAddr && pc.Micro >= len(lc.Ops) {
		pc = pcode.Location{Address: instrAddr + uint64(lc.InstructionByteLength)}
		s.loc = pc
	}

	if pc.Micro == 0 {
		if err := s.writeBackPC(pc.Address); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stepper) writeBackPC(addr uint64) error {
	cur, err := s.Machine.Regs.ReadReg(s.PCName)
	if err != nil {
		return err
	}
	val, err := bv.FromUint64(addr, cur.Width())
	if err != nil {
		return err
	}
	return s.Machine.Regs.WriteReg(s.PCName, val)
}

// buildBlock pre-decodes the straight-line run of instructions starting
// at base, per spec.md §4.7 "Block build". It never returns a Go error:
// a decode/lift/read failure on any instruction is captured as that
// instruction's InstructionEntry.Err and ends pre-decoding, per spec.md
// §7's "decode and lift errors are captured ... never during pre-decode"
// propagation policy.
func (s *Stepper) buildBlock(base uint64) *Block {
	blk := newBlock(base)
	ar := arena.New(64, 256)
	cur := base

	for {
		window, err := s.fetchWindow(cur, maxInstrWindow)
		if err != nil {
			blk.Addresses = append(blk.Addresses, cur)
			blk.Instrs[cur] = InstructionEntry{Err: err}
			break
		}

		root, length, err := s.Dec.Decode(ar, cur, window)
		if err != nil {
			blk.Addresses = append(blk.Addresses, cur)
			blk.Instrs[cur] = InstructionEntry{Err: err}
			break
		}

		tpl, err := s.Builder.RootTemplate(ar, root)
		if err != nil {
			blk.Addresses = append(blk.Addresses, cur)
			blk.Instrs[cur] = InstructionEntry{Err: err}
			break
		}
		delayBytes := 0
		if tpl != nil {
			delayBytes = tpl.DelaySlotBytes
		}
		var delayTail []byte
		if delayBytes > 0 {
			delayTail, err = s.fetchExact(cur+uint64(length), delayBytes)
			if err != nil {
				blk.Addresses = append(blk.Addresses, cur)
				blk.Instrs[cur] = InstructionEntry{Err: err}
				break
			}
		}

		pc, err := s.Builder.Emit(ar, root, cur, length, delayBytes, delayTail)
		if err != nil {
			blk.Addresses = append(blk.Addresses, cur)
			blk.Instrs[cur] = InstructionEntry{Err: err}
			break
		}

		blk.Addresses = append(blk.Addresses, cur)
		blk.Instrs[cur] = InstructionEntry{PCode: pc}
		next := cur + uint64(length) + uint64(delayBytes)
		blk.byteEnd = next
		if pc.IsTerminatedBlock() {
			break
		}
		cur = next
	}

	if blk.byteEnd <= blk.BaseAddress {
		blk.byteEnd = blk.BaseAddress + 1
	}
	return blk
}

// fetchWindow reads up to want bytes at addr, clipping to however many
// are actually available (e.g. near the end of a mapped segment) rather
// than failing outright, per spec.md §4.7: "read 4 bytes (or fewer near
// a page boundary)". It only errors if not even one byte at addr is
// readable.
func (s *Stepper) fetchWindow(addr uint64, want int) ([]byte, error) {
	for n := want; n > 0; n-- {
		if b, err := s.Machine.Mem.ReadBytes(addr, n); err == nil {
			return b, nil
		}
	}
	_, err := s.Machine.Mem.ReadBytes(addr, 1)
	return nil, err
}

// fetchExact reads exactly n bytes at addr, failing if they aren't all
// available — used for delay-slot tails, which must be fully present.
func (s *Stepper) fetchExact(addr uint64, n int) ([]byte, error) {
	return s.Machine.Mem.ReadBytes(addr, n)
}
