package memory

import "testing"

type stubPPU struct {
	lastWriteAddr  uint16
	lastWriteValue uint8
	readValue      uint8
}

func (p *stubPPU) ReadRegister(address uint16) uint8 { return p.readValue }
func (p *stubPPU) WriteRegister(address uint16, value uint8) {
	p.lastWriteAddr = address
	p.lastWriteValue = value
}

type stubAPU struct {
	status       uint8
	lastWriteReg uint16
}

func (a *stubAPU) WriteRegister(address uint16, value uint8) { a.lastWriteReg = address }
func (a *stubAPU) ReadStatus() uint8                         { return a.status }

type stubInput struct {
	lastWriteAddr uint16
	lastWriteVal  uint8
	readValue     uint8
}

func (i *stubInput) Read(address uint16) uint8 { return i.readValue }
func (i *stubInput) Write(address uint16, value uint8) {
	i.lastWriteAddr = address
	i.lastWriteVal = value
}

type stubCartridge struct {
	prg [0x10000]uint8
	chr [0x2000]uint8
}

func (c *stubCartridge) ReadPRG(address uint16) uint8          { return c.prg[address] }
func (c *stubCartridge) WritePRG(address uint16, value uint8)  { c.prg[address] = value }
func (c *stubCartridge) ReadCHR(address uint16) uint8          { return c.chr[address] }
func (c *stubCartridge) WriteCHR(address uint16, value uint8)  { c.chr[address] = value }

func TestRAMMirroring(t *testing.T) {
	mem := New(&stubPPU{}, &stubAPU{}, nil)

	mem.Write(0x0000, 0x42)

	for _, mirror := range []uint16{0x0000, 0x0800, 0x1000, 0x1800} {
		if got := mem.Read(mirror); got != 0x42 {
			t.Errorf("Read(%#04x) = %#02x, want 0x42 (RAM mirror)", mirror, got)
		}
	}
}

func TestPPURegisterMirroring(t *testing.T) {
	ppu := &stubPPU{}
	mem := New(ppu, &stubAPU{}, nil)

	mem.Write(0x2008, 0x77) // mirrors $2000
	if ppu.lastWriteAddr != 0x2000 {
		t.Fatalf("PPU write address = %#04x, want 0x2000", ppu.lastWriteAddr)
	}

	mem.Write(0x3FFF, 0x11) // also mirrors down to $2007
	if ppu.lastWriteAddr != 0x2007 {
		t.Fatalf("PPU write address = %#04x, want 0x2007", ppu.lastWriteAddr)
	}
}

func TestAPUStatusRead(t *testing.T) {
	apu := &stubAPU{status: 0x1F}
	mem := New(&stubPPU{}, apu, nil)

	if got := mem.Read(0x4015); got != 0x1F {
		t.Fatalf("Read($4015) = %#02x, want 0x1F", got)
	}
}

func TestControllerStrobeRoutedToInput(t *testing.T) {
	in := &stubInput{readValue: 0x01}
	mem := New(&stubPPU{}, &stubAPU{}, nil)
	mem.SetInputSystem(in)

	mem.Write(0x4016, 0x01)
	if in.lastWriteAddr != 0x4016 || in.lastWriteVal != 0x01 {
		t.Fatalf("controller strobe not forwarded: addr=%#04x val=%#02x", in.lastWriteAddr, in.lastWriteVal)
	}

	if got := mem.Read(0x4016); got != 0x01 {
		t.Fatalf("Read($4016) = %#02x, want 0x01", got)
	}
}

func TestCartridgePRGRAMAndROM(t *testing.T) {
	cart := &stubCartridge{}
	mem := New(&stubPPU{}, &stubAPU{}, cart)

	mem.Write(0x6000, 0xAB)
	if got := mem.Read(0x6000); got != 0xAB {
		t.Fatalf("Read($6000) = %#02x, want 0xAB", got)
	}

	cart.prg[0x8000] = 0xCD
	if got := mem.Read(0x8000); got != 0xCD {
		t.Fatalf("Read($8000) = %#02x, want 0xCD", got)
	}
}

func TestOAMDMACallback(t *testing.T) {
	mem := New(&stubPPU{}, &stubAPU{}, nil)
	var triggeredWith uint8
	mem.SetDMACallback(func(page uint8) { triggeredWith = page })

	mem.Write(0x4014, 0x02)
	if triggeredWith != 0x02 {
		t.Fatalf("DMA callback page = %#02x, want 0x02", triggeredWith)
	}
}

func TestOpenBusValueLingers(t *testing.T) {
	mem := New(&stubPPU{readValue: 0x99}, &stubAPU{}, nil)

	mem.Read(0x2000) // the PPU register read puts 0x99 on the data bus...
	// so an unmapped read now returns that last bus value.
	got := mem.Read(0x4020) // cartridge expansion area, unmapped
	if got != 0x99 {
		t.Fatalf("open-bus read = %#02x, want 0x99 (last bus value)", got)
	}
}

func TestPPUMemoryNametableHorizontalMirroring(t *testing.T) {
	cart := &stubCartridge{}
	pm := NewPPUMemory(cart, MirrorHorizontal)

	pm.Write(0x2000, 0x55)
	if got := pm.Read(0x2400); got != 0x55 {
		t.Fatalf("Read($2400) = %#02x, want 0x55 (horizontal mirror of $2000)", got)
	}
	if got := pm.Read(0x2800); got == 0x55 {
		t.Fatal("$2800 should be a distinct nametable under horizontal mirroring")
	}
}

func TestPPUMemoryNametableVerticalMirroring(t *testing.T) {
	cart := &stubCartridge{}
	pm := NewPPUMemory(cart, MirrorVertical)

	pm.Write(0x2000, 0x66)
	if got := pm.Read(0x2800); got != 0x66 {
		t.Fatalf("Read($2800) = %#02x, want 0x66 (vertical mirror of $2000)", got)
	}
}

func TestPaletteBackgroundColorMirroring(t *testing.T) {
	cart := &stubCartridge{}
	pm := NewPPUMemory(cart, MirrorHorizontal)

	pm.Write(0x3F00, 0x20)
	if got := pm.Read(0x3F10); got != 0x20 {
		t.Fatalf("Read($3F10) = %#02x, want 0x20 ($3F10 mirrors $3F00)", got)
	}
}

func TestPatternTableRoutesToCartridgeCHR(t *testing.T) {
	cart := &stubCartridge{}
	pm := NewPPUMemory(cart, MirrorHorizontal)

	pm.Write(0x0010, 0x77)
	if cart.chr[0x0010] != 0x77 {
		t.Fatal("CHR write should route to the cartridge")
	}
	if got := pm.Read(0x0010); got != 0x77 {
		t.Fatalf("Read($0010) = %#02x, want 0x77", got)
	}
}
