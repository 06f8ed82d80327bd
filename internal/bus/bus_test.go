package bus

import (
	"testing"

	"gones/internal/cartridge"
	"gones/internal/input"
)

// irqCart is a minimal mappedCartridge stub addressed directly by CPU
// address (no bank switching) so reset/IRQ vectors can be placed exactly.
type irqCart struct {
	prg [0x10000]uint8
	irq bool
}

func (c *irqCart) ReadPRG(address uint16) uint8          { return c.prg[address] }
func (c *irqCart) WritePRG(address uint16, value uint8)  { c.prg[address] = value }
func (c *irqCart) ReadCHR(address uint16) uint8          { return 0 }
func (c *irqCart) WriteCHR(address uint16, value uint8)  {}
func (c *irqCart) Mirror() cartridge.MirrorMode          { return cartridge.MirrorHorizontal }
func (c *irqCart) Scanline()                             {}
func (c *irqCart) IRQ() bool                             { return c.irq }

func newIRQCart() *irqCart {
	c := &irqCart{}
	c.prg[0xFFFC] = 0x00
	c.prg[0xFFFD] = 0x80 // reset vector -> $8000
	c.prg[0xFFFE] = 0x00
	c.prg[0xFFFF] = 0x90 // IRQ/BRK vector -> $9000
	c.prg[0x8000] = 0x58 // CLI
	c.prg[0x8001] = 0xEA // NOP
	return c
}

// plainCart implements only the base PRG/CHR interface, not Mirror/Scanline/IRQ.
type plainCart struct{ prg [0x10000]uint8 }

func (c *plainCart) ReadPRG(address uint16) uint8         { return c.prg[address] }
func (c *plainCart) WritePRG(address uint16, value uint8) { c.prg[address] = value }
func (c *plainCart) ReadCHR(address uint16) uint8         { return 0 }
func (c *plainCart) WriteCHR(address uint16, value uint8) {}

func TestStepInterleavesPPUAndAPUWithCPUCycles(t *testing.T) {
	b := New()
	b.LoadCartridge(newIRQCart())

	ppuBefore := b.PPU.GetCycleCount()
	cycles := b.Step()
	ppuAfter := b.PPU.GetCycleCount()

	if ppuAfter-ppuBefore != cycles*3 {
		t.Fatalf("PPU advanced %d cycles, want %d (3x the %d CPU cycles)", ppuAfter-ppuBefore, cycles*3, cycles)
	}
}

func TestOAMDMAStallChargesOddEvenCycleCounts(t *testing.T) {
	b := New()

	b.cpuCycles = 0 // even
	b.TriggerOAMDMA(0x02)
	if b.dmaSuspendCycles != 513 {
		t.Fatalf("dmaSuspendCycles = %d, want 513 on an even cycle count", b.dmaSuspendCycles)
	}

	b.dmaInProgress = false
	b.cpuCycles = 1 // odd
	b.TriggerOAMDMA(0x02)
	if b.dmaSuspendCycles != 514 {
		t.Fatalf("dmaSuspendCycles = %d, want 514 on an odd cycle count", b.dmaSuspendCycles)
	}
}

func TestOAMDMACopiesSourcePageIntoOAM(t *testing.T) {
	b := New()
	for i := 0; i < 256; i++ {
		b.Memory.Write(0x0200+uint16(i), uint8(i))
	}

	b.TriggerOAMDMA(0x02)

	b.PPU.WriteRegister(0x2003, 0x10)
	if got := b.PPU.ReadRegister(0x2004); got != 0x10 {
		t.Fatalf("OAM[0x10] = %#02x, want 0x10", got)
	}
}

func TestStepChargesOneCycleWhileDMAStallInProgress(t *testing.T) {
	b := New()
	b.LoadCartridge(newIRQCart())

	b.TriggerOAMDMA(0x00)
	pcBefore := b.CPU.PC

	cycles := b.Step()

	if cycles != 1 {
		t.Fatalf("Step() during a DMA stall = %d cycles, want 1", cycles)
	}
	if b.CPU.PC != pcBefore {
		t.Fatal("the CPU should not advance its program counter while stalled for DMA")
	}
}

func TestLoadCartridgeFallsBackToHorizontalMirrorWithoutMapperInterface(t *testing.T) {
	b := New()
	b.LoadCartridge(&plainCart{})

	if b.cartridge != nil {
		t.Fatal("a cartridge without Mirror/Scanline/IRQ should not be treated as a mappedCartridge")
	}

	// handleScanline and syncIRQ must tolerate a nil mapped cartridge.
	b.handleScanline()
	b.syncIRQ()
}

func TestSetControllerButtonRoutesToCorrectPort(t *testing.T) {
	b := New()

	b.SetControllerButton(1, input.ButtonA, true)
	b.SetControllerButton(2, input.ButtonB, true)
	b.SetControllerButton(3, input.ButtonStart, true) // invalid port, ignored

	if !b.Input.Controller1.IsPressed(input.ButtonA) {
		t.Fatal("controller 1 should have A pressed")
	}
	if !b.Input.Controller2.IsPressed(input.ButtonB) {
		t.Fatal("controller 2 should have B pressed")
	}
}

func TestSyncIRQMergesCartridgeIRQOntoCPU(t *testing.T) {
	b := New()
	cart := newIRQCart()
	b.LoadCartridge(cart)

	if !b.CPU.I {
		t.Fatal("reset should leave the interrupt-disable flag set")
	}

	b.Step() // executes CLI, clears I; bus.syncIRQ() at the end observes no IRQ yet
	if b.CPU.I {
		t.Fatal("CLI should have cleared the I flag")
	}

	cart.irq = true
	b.syncIRQ() // cartridge now asserts IRQ

	b.Step() // executes NOP, then services the now-unmasked IRQ
	if b.CPU.PC != 0x9000 {
		t.Fatalf("PC = %#04x, want 0x9000 (cartridge IRQ vector)", b.CPU.PC)
	}
}
