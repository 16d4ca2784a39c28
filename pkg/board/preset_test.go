package board

import (
	"os"
	"testing"
)

func TestLoadCortexMSquarePreset(t *testing.T) {
	p, err := Load("testdata/cortex-m-square.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "cortex-m-square" {
		t.Errorf("Name = %q, want cortex-m-square", p.Name)
	}
	if p.PCRegister != "pc" {
		t.Errorf("PCRegister = %q, want pc", p.PCRegister)
	}
	if len(p.Registers) != 4 {
		t.Fatalf("len(Registers) = %d, want 4", len(p.Registers))
	}
	if len(p.RAM) != 1 || p.RAM[0].Base != 0x1000 {
		t.Errorf("RAM = %+v, want one region based at 0x1000", p.RAM)
	}
}

func TestPresetBuildWiresMachine(t *testing.T) {
	p, err := Load("testdata/cortex-m-square.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, spaces, err := p.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if spaces.Default() == nil {
		t.Fatal("expected a default RAM space")
	}
	if err := m.Mem.WriteBytes(0x1000, []byte{0x01}); err != nil {
		t.Errorf("expected RAM region to be writable: %v", err)
	}
	if _, err := m.Regs.ReadReg("r0"); err != nil {
		t.Errorf("expected r0 to be declared: %v", err)
	}
	if _, err := m.Regs.PC(); err != nil {
		t.Errorf("expected pc to be the configured convention register: %v", err)
	}
}

func TestLoadRejectsMissingPCRegister(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.toml"
	if err := os.WriteFile(path, []byte("name = \"bad\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a preset with no pc_register")
	}
}
