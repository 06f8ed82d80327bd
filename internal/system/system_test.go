package system

import (
	"bytes"
	"testing"

	"gones/internal/cartridge"
	"gones/internal/input"
)

// buildNROM assembles a minimal mapper-0 iNES image whose reset vector
// points at an infinite NOP stream, enough to drive Step without the CPU
// ever halting.
func buildNROM() *cartridge.Cartridge {
	var buf bytes.Buffer
	buf.WriteString("NES\x1A")
	buf.WriteByte(1) // 1x 16 KiB PRG-ROM
	buf.WriteByte(1) // 1x 8 KiB CHR-ROM
	buf.WriteByte(0x02) // battery bit set, mapper 0
	buf.WriteByte(0)
	buf.Write(make([]byte, 8))

	prg := make([]byte, 16384)
	for i := range prg {
		prg[i] = 0xEA // NOP
	}
	prg[0x3FFC] = 0x00 // reset vector low -> $8000
	prg[0x3FFD] = 0x80
	buf.Write(prg)
	buf.Write(make([]byte, 8192))

	cart, err := cartridge.LoadFromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		panic(err)
	}
	return cart
}

func TestNewResetsCPUToCartridgeResetVector(t *testing.T) {
	cart := buildNROM()
	sys := New(cart, nil)

	if pc := sys.bus.CPU.PC; pc != 0x8000 {
		t.Fatalf("PC after New = %#04x, want 0x8000 (cartridge reset vector)", pc)
	}

	sys.Step()
	// Stepping a freshly-constructed system must not panic, and the frame
	// buffer keeps its 256x240 size.
	fb := sys.GetFrameBuffer()
	if len(fb) != 256*240 {
		t.Fatalf("len(GetFrameBuffer()) = %d, want %d", len(fb), 256*240)
	}
}

func TestFrameCallbackFiresOncePerCompletedFrame(t *testing.T) {
	cart := buildNROM()

	var frames int
	sys := New(cart, func(snapshot FrameSnapshot) {
		frames++
	})

	// A full NTSC frame is ~29780 CPU cycles; run enough instructions to
	// guarantee at least one frame completes exactly once.
	var executed uint64
	for executed < 29781 {
		executed += sys.Step()
	}

	if frames != 1 {
		t.Fatalf("frame callback fired %d times, want exactly 1", frames)
	}
}

func TestSetButtonRoutesThroughToInputState(t *testing.T) {
	var snapshot FrameSnapshot
	sys := New(buildNROM(), func(s FrameSnapshot) { snapshot = s })
	sys.SetButton(1, input.ButtonA, true)

	var executed uint64
	for executed < 29781 {
		executed += sys.Step()
	}

	if snapshot.Controller1&0x80 == 0 {
		t.Fatalf("Controller1 byte = %#02x, want bit 7 (A, first in polling order) set", snapshot.Controller1)
	}
}

func TestSaveRAMLoadRAMDelegateToCartridge(t *testing.T) {
	cart := buildNROM()
	sys := New(cart, nil)

	saved := sys.SaveRAM()
	if saved == nil {
		t.Fatal("SaveRAM() returned nil for a battery-backed cartridge")
	}

	saved[0] = 0x42
	sys.LoadRAM(saved)

	roundTripped := sys.SaveRAM()
	if roundTripped[0] != 0x42 {
		t.Fatalf("roundTripped[0] = %#02x, want 0x42", roundTripped[0])
	}
}
