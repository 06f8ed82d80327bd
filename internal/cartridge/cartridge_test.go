package cartridge

import (
	"bytes"
	"testing"
)

// buildINES assembles a minimal iNES image: header, optional trainer,
// prgROM, chrROM (omit for CHR-RAM boards by passing nil).
func buildINES(prgBanks, chrBanks uint8, flags6, flags7 uint8, trainer bool, prg, chr []uint8) []byte {
	var buf bytes.Buffer
	buf.WriteString("NES\x1A")
	buf.WriteByte(prgBanks)
	buf.WriteByte(chrBanks)
	buf.WriteByte(flags6)
	buf.WriteByte(flags7)
	buf.Write(make([]uint8, 8)) // PRGRAMSize, TVSystem1/2, padding

	if trainer {
		buf.Write(make([]uint8, 512))
	}
	buf.Write(prg)
	buf.Write(chr)
	return buf.Bytes()
}

func TestLoadRejectsBadMagic(t *testing.T) {
	data := buildINES(1, 1, 0, 0, false, make([]uint8, 16384), make([]uint8, 8192))
	data[0] = 'X'

	if _, err := LoadFromReader(bytes.NewReader(data)); err == nil {
		t.Fatal("expected an error for a non-iNES image")
	}
}

func TestLoadRejectsZeroPRGSize(t *testing.T) {
	data := buildINES(0, 1, 0, 0, false, nil, make([]uint8, 8192))

	if _, err := LoadFromReader(bytes.NewReader(data)); err == nil {
		t.Fatal("expected an error for zero-sized PRG-ROM")
	}
}

func TestLoadDerivesMapperIDFromFlags(t *testing.T) {
	// mapper 4 (MMC3): low nibble in Flags6 bits 4-7, high nibble in Flags7 bits 4-7.
	flags6 := uint8(4 << 4)
	data := buildINES(2, 1, flags6, 0, false, make([]uint8, 2*16384), make([]uint8, 8192))

	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cart.mapperID != 4 {
		t.Fatalf("mapperID = %d, want 4", cart.mapperID)
	}
}

func TestLoadMirroringDerivation(t *testing.T) {
	cases := []struct {
		name   string
		flags6 uint8
		want   MirrorMode
	}{
		{"horizontal", 0x00, MirrorHorizontal},
		{"vertical", 0x01, MirrorVertical},
		{"four-screen overrides vertical bit", 0x09, MirrorFourScreen},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := buildINES(1, 1, tc.flags6, 0, false, make([]uint8, 16384), make([]uint8, 8192))
			cart, err := LoadFromReader(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			if cart.mirror != tc.want {
				t.Fatalf("mirror = %d, want %d", cart.mirror, tc.want)
			}
		})
	}
}

func TestLoadSkipsTrainer(t *testing.T) {
	prg := make([]uint8, 16384)
	prg[0] = 0xAA
	data := buildINES(1, 1, 0x04, 0, true, prg, make([]uint8, 8192))

	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cart.prgROM[0] != 0xAA {
		t.Fatalf("prgROM[0] = %#02x, want 0xAA (trainer bytes should be skipped, not part of PRG-ROM)", cart.prgROM[0])
	}
}

func TestLoadFallsBackToCHRRAMWhenCHRSizeIsZero(t *testing.T) {
	data := buildINES(1, 0, 0, 0, false, make([]uint8, 16384), nil)

	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if !cart.chrRAM {
		t.Fatal("expected chrRAM = true when CHRROMSize is 0")
	}
	if len(cart.chrROM) != 8192 {
		t.Fatalf("CHR-RAM size = %d, want 8192", len(cart.chrROM))
	}
}

func TestLoadRejectsUnsupportedMapper(t *testing.T) {
	flags6 := uint8(5 << 4) // mapper 5, unimplemented
	data := buildINES(1, 1, flags6, 0, false, make([]uint8, 16384), make([]uint8, 8192))

	if _, err := LoadFromReader(bytes.NewReader(data)); err == nil {
		t.Fatal("expected an error for an unsupported mapper id")
	}
}

func TestSaveRAMRoundTripRequiresBattery(t *testing.T) {
	data := buildINES(1, 1, 0x02, 0, false, make([]uint8, 16384), make([]uint8, 8192)) // battery bit set
	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	cart.prgRAM[0x100] = 0x7E
	saved := cart.SaveRAM()
	if saved == nil {
		t.Fatal("SaveRAM() returned nil for a battery-backed cartridge")
	}

	restored := &Cartridge{hasBattery: true}
	restored.LoadRAM(saved)
	if restored.prgRAM[0x100] != 0x7E {
		t.Fatalf("restored prgRAM[0x100] = %#02x, want 0x7E", restored.prgRAM[0x100])
	}
}

func TestSaveRAMNoOpWithoutBattery(t *testing.T) {
	data := buildINES(1, 1, 0, 0, false, make([]uint8, 16384), make([]uint8, 8192)) // no battery bit
	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if got := cart.SaveRAM(); got != nil {
		t.Fatalf("SaveRAM() = %v, want nil for a non-battery cartridge", got)
	}

	cart.LoadRAM([]byte{0xFF})
	if cart.prgRAM[0] != 0 {
		t.Fatal("LoadRAM should be a no-op without a battery")
	}
}

func TestMapper0NROMReadWriteAndSingleBankMirroring(t *testing.T) {
	prg := make([]uint8, 16384)
	prg[0] = 0x11
	data := buildINES(1, 1, 0, 0, false, prg, make([]uint8, 8192))
	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if got := cart.ReadPRG(0x8000); got != 0x11 {
		t.Fatalf("ReadPRG($8000) = %#02x, want 0x11", got)
	}
	if got := cart.ReadPRG(0xC000); got != 0x11 {
		t.Fatalf("ReadPRG($C000) = %#02x, want 0x11 (single 16 KiB bank mirrors into $C000-$FFFF)", got)
	}

	cart.WritePRG(0x6000, 0x55)
	if got := cart.ReadPRG(0x6000); got != 0x55 {
		t.Fatalf("ReadPRG($6000) = %#02x, want 0x55 (PRG-RAM round trip)", got)
	}
}

func TestMapper2UxROMBankSwitching(t *testing.T) {
	prg := make([]uint8, 3*16384)
	prg[0] = 0xA0                  // bank 0, offset 0 ($8000 selects bank 0 by default)
	prg[1*16384] = 0xA1            // bank 1
	prg[2*16384] = 0xA2            // bank 2, fixed at $C000 (last bank)
	data := buildINES(3, 0, 2<<4, 0, false, prg, nil)

	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if got := cart.ReadPRG(0xC000); got != 0xA2 {
		t.Fatalf("ReadPRG($C000) = %#02x, want 0xA2 (last bank always fixed)", got)
	}
	if got := cart.ReadPRG(0x8000); got != 0xA0 {
		t.Fatalf("ReadPRG($8000) = %#02x, want 0xA0 (bank register defaults to 0)", got)
	}

	cart.WritePRG(0x8000, 1)
	if got := cart.ReadPRG(0x8000); got != 0xA1 {
		t.Fatalf("ReadPRG($8000) after switching to bank 1 = %#02x, want 0xA1", got)
	}
}

func TestMapper3CNROMCHRBankSwitching(t *testing.T) {
	prg := make([]uint8, 16384)
	chr := make([]uint8, 4*8192)
	chr[2*8192] = 0x33
	data := buildINES(1, 4, 3<<4, 0, false, prg, chr)

	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	cart.WritePRG(0x8000, 2)
	if got := cart.ReadCHR(0x0000); got != 0x33 {
		t.Fatalf("ReadCHR($0000) after selecting CHR bank 2 = %#02x, want 0x33", got)
	}
}

func TestMapper1ResetForcesPRGMode3(t *testing.T) {
	prg := make([]uint8, 4*16384)
	prg[3*16384] = 0x7C // last bank, selected by PRG mode 3's fixed $C000 mapping
	flags6 := uint8(1 << 4)
	data := buildINES(4, 0, flags6, 0, false, prg, nil)

	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if got := cart.ReadPRG(0xC000); got != 0x7C {
		t.Fatalf("ReadPRG($C000) = %#02x, want 0x7C (power-on PRG mode 3 fixes the last bank at $C000)", got)
	}

	// Drive a reset write (bit 7 set) through the serial port mid-shift.
	cart.WritePRG(0x8000, 1)
	cart.WritePRG(0x8000, 0x80)
	if got := cart.ReadPRG(0xC000); got != 0x7C {
		t.Fatalf("ReadPRG($C000) after reset = %#02x, want 0x7C (reset re-forces PRG mode 3)", got)
	}
}

func TestMapper1SerialShiftLoadsControlRegister(t *testing.T) {
	prg := make([]uint8, 2*16384)
	data := buildINES(2, 0, 1<<4, 0, false, prg, nil)
	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	m := cart.mapper.(*mapper1)
	// Five serial writes to $8000 shift a 5-bit value into the control
	// register; this sequence lands control=0x02 (mirror=vertical).
	bits := []uint8{0, 1, 0, 0, 0}
	for _, b := range bits {
		cart.WritePRG(0x8000, b)
	}
	if m.control != 0x02 {
		t.Fatalf("control = %#02x, want 0x02", m.control)
	}
	if cart.Mirror() != MirrorVertical {
		t.Fatalf("Mirror() = %d, want MirrorVertical", cart.Mirror())
	}
}

func TestMapper4IRQCounterReloadsAndFires(t *testing.T) {
	prg := make([]uint8, 4*8192) // 2 header units of 16 KiB = four 8 KiB PRG banks
	data := buildINES(2, 1, 4<<4, 0, false, prg, make([]uint8, 8192))
	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	cart.WritePRG(0xC000, 2) // IRQ latch = 2
	cart.WritePRG(0xC001, 0) // reload on next Scanline
	cart.WritePRG(0xE001, 0) // enable IRQ

	cart.Scanline() // reload to 2
	if cart.IRQ() {
		t.Fatal("IRQ should not fire on the reload tick")
	}
	cart.Scanline() // 2 -> 1
	if cart.IRQ() {
		t.Fatal("IRQ should not fire while counter is nonzero")
	}
	cart.Scanline() // 1 -> 0, fires
	if !cart.IRQ() {
		t.Fatal("IRQ should fire when the counter reaches 0 while enabled")
	}

	cart.WritePRG(0xE000, 0) // acknowledge/disable
	if cart.IRQ() {
		t.Fatal("IRQ should clear after a write to $E000")
	}
}
