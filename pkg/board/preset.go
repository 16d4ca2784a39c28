// Package board loads named processor/board presets from TOML, per
// SPEC_FULL.md §3's "Board preset" addition: a way to wire up a
// state.Machine for a target without hand-writing its register table and
// RAM layout in Go source for every fixture.
package board

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/oisee/liftvm/pkg/space"
	"github.com/oisee/liftvm/pkg/state"
)

// RAMRegion is one mapped RAM segment in a Preset.
type RAMRegion struct {
	Base uint64 `toml:"base"`
	Size uint64 `toml:"size"`
}

// RegisterDef declares one named register in a Preset's register file.
type RegisterDef struct {
	Name   string `toml:"name"`
	Offset uint64 `toml:"offset"`
	Size   uint   `toml:"size"`
}

// Preset is the TOML-decoded shape of one board/processor configuration,
// per SPEC_FULL.md §3.
type Preset struct {
	Name       string        `toml:"name"`
	PageSize   uint64        `toml:"page_size"`
	RAM        []RAMRegion   `toml:"ram"`
	Registers  []RegisterDef `toml:"registers"`
	PCRegister string        `toml:"pc_register"`
	SPRegister string        `toml:"sp_register"`
	LRRegister string        `toml:"lr_register"`
}

// Load decodes a Preset from a TOML file at path.
func Load(path string) (*Preset, error) {
	var p Preset
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("board: decode %s: %w", path, err)
	}
	if p.PageSize == 0 {
		p.PageSize = state.DefaultPageSize
	}
	if p.PCRegister == "" {
		return nil, fmt.Errorf("board: preset %q declares no pc_register", p.Name)
	}
	return &p, nil
}

// Build constructs a state.Machine from the preset: a default (RAM) space,
// a register space sized to cover every declared register, and a unique
// space for decoder-local temporaries, per spec.md §4.5/§4.6. The caller
// still owns loading program bytes into the returned machine's memory map.
func (p *Preset) Build() (*state.Machine, *space.Registry, error) {
	spaces := space.NewRegistry()
	spaces.Add("const", space.Constant, 1, 4, space.LittleEndian, 0)
	ramSp := spaces.Add("ram", space.Default, 1, 4, space.LittleEndian, 0xffffffff)
	regSp := spaces.Add("register", space.Register, 1, 4, space.LittleEndian, regSpaceSize(p.Registers))
	spaces.Add("unique", space.Unique, 1, 4, space.LittleEndian, 0xffffffff)

	mem := state.NewMemoryMap(ramSp, p.PageSize)
	for _, r := range p.RAM {
		if _, err := mem.MapRAM(r.Base, r.Size); err != nil {
			return nil, nil, fmt.Errorf("board: preset %q: map RAM %#x/%d: %w", p.Name, r.Base, r.Size, err)
		}
	}

	regs := state.NewRegisterState(regSp, regSpaceSize(p.Registers)+1)
	for _, r := range p.Registers {
		regs.Declare(r.Name, r.Offset, r.Size)
	}
	regs.SetConventionNames(p.PCRegister, p.SPRegister, p.LRRegister, p.LRRegister)

	uniq := state.NewUniqueState(spaces.Unique(), 4096)

	m := &state.Machine{Spaces: spaces, Mem: mem, Regs: regs, Unique: uniq}
	return m, spaces, nil
}

func regSpaceSize(regs []RegisterDef) uint64 {
	var max uint64
	for _, r := range regs {
		end := r.Offset + uint64(r.Size)
		if end > max {
			max = end
		}
	}
	return max
}
