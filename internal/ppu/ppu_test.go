package ppu

import (
	"gones/internal/memory"
	"testing"
)

type stubCartridge struct {
	chr [0x2000]uint8
}

func (c *stubCartridge) ReadPRG(address uint16) uint8         { return 0 }
func (c *stubCartridge) WritePRG(address uint16, value uint8) {}
func (c *stubCartridge) ReadCHR(address uint16) uint8         { return c.chr[address] }
func (c *stubCartridge) WriteCHR(address uint16, value uint8) { c.chr[address] = value }

func newTestPPU() *PPU {
	p := New()
	p.SetMemory(memory.NewPPUMemory(&stubCartridge{}, memory.MirrorHorizontal))
	return p
}

func TestStatusReadClearsVBlankSpriteZeroAndLatch(t *testing.T) {
	p := newTestPPU()
	p.ppuStatus = 0xE0 // VBlank + sprite 0 hit + overflow all set
	p.w = true

	status := p.ReadRegister(0x2002)

	if status != 0xE0 {
		t.Fatalf("ReadRegister($2002) = %#02x, want 0xE0 (pre-clear value)", status)
	}
	if p.ppuStatus&0x80 != 0 {
		t.Fatal("VBlank flag should be cleared by reading $2002")
	}
	if p.ppuStatus&0x40 != 0 {
		t.Fatal("sprite 0 hit flag should be cleared by reading $2002")
	}
	if p.w {
		t.Fatal("write latch should be cleared by reading $2002")
	}
}

func TestOAMReadWriteThroughRegisters(t *testing.T) {
	p := newTestPPU()

	p.WriteRegister(0x2003, 0x10) // OAMADDR
	p.WriteRegister(0x2004, 0x99) // OAMDATA

	p.WriteRegister(0x2003, 0x10)
	if got := p.ReadRegister(0x2004); got != 0x99 {
		t.Fatalf("OAM read = %#02x, want 0x99", got)
	}
}

func TestPPUDataBufferedReadForNonPaletteAddress(t *testing.T) {
	p := newTestPPU()
	p.memory.Write(0x2000, 0xAB)

	p.WriteRegister(0x2006, 0x20)
	p.WriteRegister(0x2006, 0x00) // v = $2000

	first := p.ReadRegister(0x2007)
	if first != 0 {
		t.Fatalf("first buffered read = %#02x, want 0x00 (buffer primed, not the target byte)", first)
	}

	second := p.ReadRegister(0x2007)
	if second != 0xAB {
		t.Fatalf("second read = %#02x, want 0xAB", second)
	}
}

func TestPPUDataPaletteReadIsImmediate(t *testing.T) {
	p := newTestPPU()
	p.memory.Write(0x3F00, 0x30)

	p.WriteRegister(0x2006, 0x3F)
	p.WriteRegister(0x2006, 0x00) // v = $3F00

	if got := p.ReadRegister(0x2007); got != 0x30 {
		t.Fatalf("palette read = %#02x, want 0x30 (immediate, unbuffered)", got)
	}
}

func TestVBlankSetsStatusAndFiresNMI(t *testing.T) {
	p := newTestPPU()
	p.WriteRegister(0x2000, 0x80) // enable NMI on VBlank

	var fired bool
	p.SetNMICallback(func() { fired = true })

	p.scanline = 241
	p.cycle = 0
	p.Step()

	if p.ppuStatus&0x80 == 0 {
		t.Fatal("VBlank flag should be set at scanline 241, cycle 1")
	}
	if !fired {
		t.Fatal("NMI callback should fire when NMI-on-VBlank is enabled")
	}
}

func TestVBlankClearedAtPreRenderLine(t *testing.T) {
	p := newTestPPU()
	p.ppuStatus |= 0x80

	p.scanline = -1
	p.cycle = 0
	p.Step()

	if p.ppuStatus&0x80 != 0 {
		t.Fatal("VBlank flag should clear at the pre-render line, cycle 1")
	}
}

func TestScanlineCallbackFiresOnlyWhileRendering(t *testing.T) {
	p := newTestPPU()
	var calls int
	p.SetScanlineCallback(func() { calls++ })

	p.scanline = 10
	p.cycle = 259
	p.renderingEnabled = false
	p.Step()
	if calls != 0 {
		t.Fatal("scanline callback should not fire while rendering is disabled")
	}

	p.scanline = 10
	p.cycle = 259
	p.renderingEnabled = true
	p.Step()
	if calls != 1 {
		t.Fatalf("scanline callback calls = %d, want 1", calls)
	}
}

func TestWriteOAMFromDMA(t *testing.T) {
	p := newTestPPU()
	p.WriteOAM(0x05, 0x42)

	p.WriteRegister(0x2003, 0x05)
	if got := p.ReadRegister(0x2004); got != 0x42 {
		t.Fatalf("ReadRegister($2004) = %#02x, want 0x42", got)
	}
}

func TestResetRestoresPowerUpStatus(t *testing.T) {
	p := newTestPPU()
	p.ppuStatus = 0x00
	p.Reset()

	if p.ppuStatus != 0xA0 {
		t.Fatalf("ppuStatus after Reset = %#02x, want 0xA0", p.ppuStatus)
	}
}
