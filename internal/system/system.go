// Package system provides the host-facing entry point for running a
// cartridge: construction, reset, single-step execution, and controller
// input, wrapping internal/bus's cycle-interleaved CPU/PPU/APU/cartridge.
package system

import (
	"gones/internal/bus"
	"gones/internal/cartridge"
	"gones/internal/input"
	"gones/internal/logger"
)

// FrameSnapshot is the data handed to a FrameCallback once per completed
// frame: the completed frame's pixels and controller 1's live button
// state, matching what a host typically needs to render a frame and poll
// input for the next one.
type FrameSnapshot struct {
	Pixels      [256 * 240]uint32
	Controller1 uint8
}

// FrameCallback is invoked once per frame, after the Step in which the PPU
// finishes the frame's last scanline and wraps to the pre-render line. It
// fires whether or not NMI on VBlank is enabled and is not tied to the
// VBlank NMI edge. It must not call back into System.Step.
type FrameCallback func(snapshot FrameSnapshot)

// System owns a cartridge and the bus wired around it, and is the type
// embedding code should hold for the lifetime of one loaded ROM.
type System struct {
	bus      *bus.Bus
	cart     *cartridge.Cartridge
	callback FrameCallback

	lastFrame uint64
}

// New constructs a System around an already-loaded cartridge. frameCallback
// may be nil if the host doesn't need per-frame notification (e.g. a
// headless test harness driving Step in a loop and reading the frame buffer
// directly).
func New(cart *cartridge.Cartridge, frameCallback FrameCallback) *System {
	s := &System{
		bus:      bus.New(),
		cart:     cart,
		callback: frameCallback,
	}
	s.bus.LoadCartridge(cart)
	return s
}

// Reset restores the system to its post-reset-vector state without
// reloading the cartridge.
func (s *System) Reset() {
	s.bus.Reset()
	s.lastFrame = 0
	logger.Infof("system: reset")
}

// Step executes one CPU instruction, or a single OAM DMA stall cycle while a
// DMA transfer is in progress, and the matching PPU/APU cycles, returning the
// number of CPU cycles elapsed. If this step completed a frame, the frame callback fires
// before Step returns.
func (s *System) Step() uint64 {
	cycles := s.bus.Step()

	if frame := s.bus.GetFrameCount(); frame != s.lastFrame {
		s.lastFrame = frame
		if s.callback != nil {
			var pixels [256 * 240]uint32
			copy(pixels[:], s.bus.GetFrameBuffer())
			s.callback(FrameSnapshot{
				Pixels:      pixels,
				Controller1: s.controller1Byte(),
			})
		}
	}

	return cycles
}

func (s *System) controller1Byte() uint8 {
	c := s.bus.GetInputState().Controller1
	var b uint8
	for _, button := range []input.Button{
		input.ButtonA, input.ButtonB, input.ButtonSelect, input.ButtonStart,
		input.ButtonUp, input.ButtonDown, input.ButtonLeft, input.ButtonRight,
	} {
		b <<= 1
		if c.IsPressed(button) {
			b |= 1
		}
	}
	return b
}

// SetButton sets a single button's pressed state on the given port (1 or 2).
func (s *System) SetButton(port int, button input.Button, pressed bool) {
	s.bus.SetControllerButton(port, button, pressed)
}

// GetFrameBuffer returns the PPU's current frame buffer, useful for a host
// that doesn't use the frame callback.
func (s *System) GetFrameBuffer() []uint32 {
	return s.bus.GetFrameBuffer()
}

// GetAudioSamples returns and clears the APU's pending audio samples.
func (s *System) GetAudioSamples() []float32 {
	return s.bus.GetAudioSamples()
}

// SaveRAM returns the cartridge's battery-backed work RAM, or nil if the
// board has no battery.
func (s *System) SaveRAM() []byte {
	return s.cart.SaveRAM()
}

// LoadRAM restores previously-saved battery-backed work RAM.
func (s *System) LoadRAM(data []byte) {
	s.cart.LoadRAM(data)
}
