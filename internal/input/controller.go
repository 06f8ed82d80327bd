// Package input implements standard NES controller handling.
package input

// Button represents one of the eight standard NES controller buttons.
type Button uint8

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// Controller models a single standard NES controller's shift register.
type Controller struct {
	buttons uint8

	shiftRegister uint8
	strobe        bool
}

// New creates a new Controller instance with no buttons pressed.
func New() *Controller {
	return &Controller{}
}

// SetButton sets or clears a single button.
func (c *Controller) SetButton(button Button, pressed bool) {
	if pressed {
		c.buttons |= uint8(button)
	} else {
		c.buttons &^= uint8(button)
	}
}

// SetButtons sets all eight button states at once, in NES polling order:
// A, B, Select, Start, Up, Down, Left, Right.
func (c *Controller) SetButtons(buttons [8]bool) {
	c.buttons = 0
	order := [8]Button{ButtonA, ButtonB, ButtonSelect, ButtonStart, ButtonUp, ButtonDown, ButtonLeft, ButtonRight}
	for i, pressed := range buttons {
		if pressed {
			c.buttons |= uint8(order[i])
		}
	}
}

// IsPressed reports whether the given button is currently held.
func (c *Controller) IsPressed(button Button) bool {
	return c.buttons&uint8(button) != 0
}

// Write handles a write to the shared strobe register ($4016). A write with
// bit 0 set loads the shift register from the current button state, and
// while strobe stays high reads return the live A button. A write with bit 0
// clear keeps the last loaded value for serial reading.
func (c *Controller) Write(value uint8) {
	c.strobe = value&1 != 0
	if c.strobe {
		c.shiftRegister = c.buttons
	}
}

// Read shifts out the next button bit. Once all eight bits have been read,
// hardware returns 1 for every subsequent read until the next strobe.
func (c *Controller) Read() uint8 {
	if c.strobe {
		return c.buttons & 1
	}
	bit := c.shiftRegister & 1
	c.shiftRegister = (c.shiftRegister >> 1) | 0x80
	return bit
}

// Reset clears all controller state.
func (c *Controller) Reset() {
	c.buttons = 0
	c.shiftRegister = 0
	c.strobe = false
}

// InputState owns both standard controller ports.
type InputState struct {
	Controller1 *Controller
	Controller2 *Controller
}

// NewInputState creates a new input state with two controllers attached.
func NewInputState() *InputState {
	return &InputState{
		Controller1: New(),
		Controller2: New(),
	}
}

// Reset resets both controllers.
func (is *InputState) Reset() {
	is.Controller1.Reset()
	is.Controller2.Reset()
}

// SetButtons1 sets all button states for controller 1.
func (is *InputState) SetButtons1(buttons [8]bool) {
	is.Controller1.SetButtons(buttons)
}

// SetButtons2 sets all button states for controller 2.
func (is *InputState) SetButtons2(buttons [8]bool) {
	is.Controller2.SetButtons(buttons)
}

// Read reads from a controller port ($4016/$4017). Bit 6 of the result is
// always set, matching open-bus behavior on real hardware.
func (is *InputState) Read(address uint16) uint8 {
	switch address {
	case 0x4016:
		return is.Controller1.Read() | 0x40
	case 0x4017:
		return is.Controller2.Read() | 0x40
	default:
		return 0
	}
}

// Write writes to the strobe register ($4016), which both controllers
// observe simultaneously.
func (is *InputState) Write(address uint16, value uint8) {
	if address == 0x4016 {
		is.Controller1.Write(value)
		is.Controller2.Write(value)
	}
}
