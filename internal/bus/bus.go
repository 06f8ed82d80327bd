// Package bus wires the CPU, PPU, APU, memory decoder, input, and cartridge
// together into a single NES system and drives their relative timing.
package bus

import (
	"gones/internal/apu"
	"gones/internal/cartridge"
	"gones/internal/cpu"
	"gones/internal/input"
	"gones/internal/logger"
	"gones/internal/memory"
	"gones/internal/ppu"
)

// mappedCartridge is the subset of *cartridge.Cartridge the bus needs beyond
// the plain PRG/CHR access memory.CartridgeInterface already exposes: live
// mirroring and the MMC3-style scanline IRQ line.
type mappedCartridge interface {
	memory.CartridgeInterface
	Mirror() cartridge.MirrorMode
	Scanline()
	IRQ() bool
}

// Bus connects all NES components together and owns the master cycle clock.
type Bus struct {
	CPU       *cpu.CPU
	PPU       *ppu.PPU
	APU       *apu.APU
	Memory    *memory.Memory
	PPUMemory *memory.PPUMemory
	Input     *input.InputState

	cartridge mappedCartridge

	cpuCycles  uint64
	frameCount uint64

	dmaSuspendCycles uint64
	dmaInProgress    bool
	nmiPending       bool
}

// New creates a bus with no cartridge loaded; LoadCartridge must be called
// before Step will do anything meaningful.
func New() *Bus {
	b := &Bus{
		PPU:   ppu.New(),
		APU:   apu.New(),
		Input: input.NewInputState(),
	}

	b.Memory = memory.New(b.PPU, b.APU, nil)
	b.Memory.SetInputSystem(b.Input)
	b.CPU = cpu.New(b.Memory)
	b.APU.SetMemoryReadFunc(b.Memory.Read)

	b.PPU.SetNMICallback(b.triggerNMI)
	b.PPU.SetFrameCompleteCallback(b.handleFrameComplete)
	b.PPU.SetScanlineCallback(b.handleScanline)
	b.Memory.SetDMACallback(b.TriggerOAMDMA)

	b.Reset()
	return b
}

// Reset resets every component to its power-up/reset state.
func (b *Bus) Reset() {
	b.CPU.Reset()
	b.PPU.Reset()
	b.APU.Reset()
	b.Input.Reset()

	b.cpuCycles = 0
	b.frameCount = 0
	b.dmaSuspendCycles = 0
	b.dmaInProgress = false
	b.nmiPending = false

	b.PPU.SetFrameCount(0)
}

func (b *Bus) triggerNMI() {
	b.nmiPending = true
}

func (b *Bus) handleFrameComplete() {
	b.frameCount = b.PPU.GetFrameCount()
}

// handleScanline forwards the PPU's per-scanline clock to the cartridge so
// mappers with an IRQ counter (MMC3) can count it, then samples the
// cartridge's IRQ line onto the CPU.
func (b *Bus) handleScanline() {
	if b.cartridge == nil {
		return
	}
	b.cartridge.Scanline()
	b.syncIRQ()
}

func (b *Bus) syncIRQ() {
	irq := b.APU.IRQ()
	if b.cartridge != nil {
		irq = irq || b.cartridge.IRQ()
	}
	b.CPU.SetIRQ(irq)
}

// LoadCartridge installs a cartridge, rebuilding the memory decoder and CPU
// around it, and resets the system to begin execution at the reset vector.
func (b *Bus) LoadCartridge(cart memory.CartridgeInterface) {
	b.Memory = memory.New(b.PPU, b.APU, cart)
	b.Memory.SetInputSystem(b.Input)
	b.CPU = cpu.New(b.Memory)
	b.APU.SetMemoryReadFunc(b.Memory.Read)

	var mirror memory.MirrorMode
	if mc, ok := cart.(mappedCartridge); ok {
		b.cartridge = mc
		mirror = memory.MirrorMode(mc.Mirror())
	} else {
		b.cartridge = nil
		mirror = memory.MirrorHorizontal
	}

	b.PPUMemory = memory.NewPPUMemory(cart, mirror)
	b.PPU.SetMemory(b.PPUMemory)

	b.PPU.SetNMICallback(b.triggerNMI)
	b.PPU.SetFrameCompleteCallback(b.handleFrameComplete)
	b.PPU.SetScanlineCallback(b.handleScanline)
	b.Memory.SetDMACallback(b.TriggerOAMDMA)

	b.CPU.Reset()
	logger.Infof("bus: cartridge loaded, mirror=%d", mirror)
}

// Step executes one CPU instruction (or one DMA stall cycle) and advances
// the PPU and APU by the matching number of cycles.
func (b *Bus) Step() uint64 {
	var cpuCycles uint64

	if b.dmaSuspendCycles > 0 {
		cpuCycles = 1
		b.dmaSuspendCycles--
		if b.dmaSuspendCycles == 0 {
			b.dmaInProgress = false
		}
	} else {
		if b.nmiPending {
			b.CPU.TriggerNMI()
			b.nmiPending = false
		}
		cpuCycles = b.CPU.Step()
		// Mapper register writes (MMC1, MMC3) can switch mirroring mid-frame.
		if b.cartridge != nil {
			b.PPUMemory.SetMirroring(memory.MirrorMode(b.cartridge.Mirror()))
		}
	}

	for i := uint64(0); i < cpuCycles*3; i++ {
		b.PPU.Step()
	}
	for i := uint64(0); i < cpuCycles; i++ {
		b.APU.Step()
	}

	// Re-sample mapper/APU IRQ lines every instruction so an MMC3 IRQ or a
	// frame/DMC IRQ raised mid-frame is visible before the next CPU step.
	b.syncIRQ()

	b.cpuCycles += cpuCycles
	return cpuCycles
}

// TriggerOAMDMA performs an OAM DMA transfer from the given CPU page and
// charges the CPU the appropriate 513/514-cycle stall.
func (b *Bus) TriggerOAMDMA(sourcePage uint8) {
	if b.dmaInProgress {
		return
	}

	dmaCycles := uint64(513)
	if b.cpuCycles%2 == 1 {
		dmaCycles = 514
	}
	b.dmaInProgress = true
	b.dmaSuspendCycles = dmaCycles

	sourceAddress := uint16(sourcePage) << 8
	for i := 0; i < 256; i++ {
		value := b.Memory.Read(sourceAddress + uint16(i))
		b.PPU.WriteOAM(uint8(i), value)
	}
}

// Run executes the system for the given number of whole frames.
func (b *Bus) Run(frames int) {
	target := b.frameCount + uint64(frames)
	for b.frameCount < target {
		b.Step()
	}
}

// RunCycles executes the system for the given number of CPU cycles.
func (b *Bus) RunCycles(cycles uint64) {
	target := b.cpuCycles + cycles
	for b.cpuCycles < target {
		b.Step()
	}
}

// GetFrameBuffer returns the current PPU frame buffer as a flat RGB slice.
func (b *Bus) GetFrameBuffer() []uint32 {
	fb := b.PPU.GetFrameBuffer()
	return fb[:]
}

// GetAudioSamples returns and clears the APU's pending audio samples.
func (b *Bus) GetAudioSamples() []float32 {
	return b.APU.GetSamples()
}

// SetAudioSampleRate sets the APU's target output sample rate.
func (b *Bus) SetAudioSampleRate(rate int) {
	b.APU.SetSampleRate(rate)
}

// GetCycleCount returns the total number of CPU cycles executed.
func (b *Bus) GetCycleCount() uint64 { return b.cpuCycles }

// GetFrameCount returns the number of frames rendered so far.
func (b *Bus) GetFrameCount() uint64 { return b.frameCount }

// IsDMAInProgress reports whether an OAM DMA transfer is stalling the CPU.
func (b *Bus) IsDMAInProgress() bool { return b.dmaInProgress }

// SetControllerButton sets a single button on the given controller (1 or 2).
func (b *Bus) SetControllerButton(controller int, button input.Button, pressed bool) {
	switch controller {
	case 1:
		b.Input.Controller1.SetButton(button, pressed)
	case 2:
		b.Input.Controller2.SetButton(button, pressed)
	}
}

// SetControllerButtons sets all eight button states on the given controller.
func (b *Bus) SetControllerButtons(controller int, buttons [8]bool) {
	switch controller {
	case 1:
		b.Input.SetButtons1(buttons)
	case 2:
		b.Input.SetButtons2(buttons)
	}
}

// GetInputState returns the underlying input state for direct access.
func (b *Bus) GetInputState() *input.InputState { return b.Input }
