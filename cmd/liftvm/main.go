package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oisee/liftvm/pkg/arena"
	"github.com/oisee/liftvm/pkg/board"
	"github.com/oisee/liftvm/pkg/bv"
	"github.com/oisee/liftvm/pkg/contextdb"
	"github.com/oisee/liftvm/pkg/lift"
	"github.com/oisee/liftvm/pkg/parser"
	"github.com/oisee/liftvm/pkg/state"
	"github.com/oisee/liftvm/pkg/tb"
)

var log = logrus.New()

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "liftvm",
		Short: "Decode and emulate a target instruction set against a board preset",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose diagnostic tracing")

	// run command
	var boardPath string
	var r0, r1 uint64
	var maxSteps int

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the square(x) demo program against a board preset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSquareDemo(boardPath, r0, r1, maxSteps)
		},
	}
	runCmd.Flags().StringVar(&boardPath, "board", "pkg/board/testdata/cortex-m-square.toml", "Board preset TOML path")
	runCmd.Flags().Uint64Var(&r0, "r0", 3, "Initial value of r0 (the value to repeatedly square)")
	runCmd.Flags().Uint64Var(&r1, "r1", 3, "Initial value of r1 (loop counter — number of squarings)")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 200, "Abort after this many steps without reaching halt")

	// disasm command
	disasmCmd := &cobra.Command{
		Use:   "disasm",
		Short: "Decode and lift the square(x) demo program's three instructions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return disasmSquareDemo(boardPath)
		},
	}
	disasmCmd.Flags().StringVar(&boardPath, "board", "pkg/board/testdata/cortex-m-square.toml", "Board preset TOML path")

	rootCmd.AddCommand(runCmd, disasmCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadMachine(boardPath string) (*state.Machine, *parser.Decoder, *board.Preset, error) {
	preset, err := board.Load(boardPath)
	if err != nil {
		return nil, nil, nil, err
	}
	m, spaces, err := preset.Build()
	if err != nil {
		return nil, nil, nil, err
	}
	tbl := board.SquareProgram(spaces)
	if err := m.Mem.WriteBytes(board.LoopHeadAddress, board.SquareProgramBytes); err != nil {
		return nil, nil, nil, fmt.Errorf("liftvm: writing demo program: %w", err)
	}
	dec := &parser.Decoder{Table: tbl, Spaces: spaces, Ctx: contextdb.New(0xffffffff)}
	return m, dec, preset, nil
}

func runSquareDemo(boardPath string, r0init, r1init uint64, maxSteps int) error {
	m, dec, preset, err := loadMachine(boardPath)
	if err != nil {
		return err
	}
	log.WithField("board", preset.Name).Debug("board preset loaded")

	builder := &lift.Builder{Table: dec.Table, Spaces: m.Spaces, Dec: dec}
	if err := m.Regs.WriteReg("r0", mustBV(r0init, 32)); err != nil {
		return err
	}
	if err := m.Regs.WriteReg("r1", mustBV(r1init, 32)); err != nil {
		return err
	}
	if err := m.Regs.WriteReg("r2", mustBV(0xdead, 32)); err != nil {
		return err
	}
	if err := m.Regs.WriteReg(preset.PCRegister, mustBV(board.LoopHeadAddress, 32)); err != nil {
		return err
	}

	s := tb.NewStepper(dec, builder, m, preset.PCRegister)

	fmt.Printf("liftvm: running square(x) from x=%d, %d iterations\n", r0init, r1init)
	steps := 0
	for s.Location().Address != 0xdead {
		if steps >= maxSteps {
			return fmt.Errorf("liftvm: did not halt within %d steps", maxSteps)
		}
		if err := s.Step(); err != nil {
			return fmt.Errorf("liftvm: step %d: %w", steps, err)
		}
		log.WithField("step", steps).WithField("loc", s.Location()).Debug("stepped")
		steps++
	}

	r0, err := m.Regs.ReadReg("r0")
	if err != nil {
		return err
	}
	fmt.Printf("halted after %d steps: r0 = %d\n", steps, r0.Uint64())
	return nil
}

func disasmSquareDemo(boardPath string) error {
	m, dec, _, err := loadMachine(boardPath)
	if err != nil {
		return err
	}
	builder := &lift.Builder{Table: dec.Table, Spaces: m.Spaces, Dec: dec}

	addr := uint64(board.LoopHeadAddress)
	for i := 0; i < len(board.SquareProgramBytes); i++ {
		window, rerr := m.Mem.ReadBytes(addr, 4)
		if rerr != nil {
			window, rerr = m.Mem.ReadBytes(addr, 1)
			if rerr != nil {
				return rerr
			}
		}
		ar := arena.New(32, 64)
		root, length, derr := dec.Decode(ar, addr, window)
		if derr != nil {
			return fmt.Errorf("liftvm: decode at %#x: %w", addr, derr)
		}
		code, lerr := builder.Emit(ar, root, addr, length, 0, nil)
		if lerr != nil {
			return fmt.Errorf("liftvm: lift at %#x: %w", addr, lerr)
		}
		fmt.Printf("%#04x: %d byte(s), %d op(s)\n", addr, length, len(code.Ops))
		for _, op := range code.Ops {
			fmt.Printf("    %s\n", op.String())
		}
		addr += uint64(length)
	}
	return nil
}

func mustBV(v uint64, width uint) bv.BitVector {
	b, err := bv.FromUint64(v, width)
	if err != nil {
		panic(err)
	}
	return b
}
