package input

import "testing"

func TestStrobeHighContinuouslyReloadsFromLiveButtons(t *testing.T) {
	c := New()
	c.Write(1) // strobe high

	c.SetButton(ButtonA, true)
	if got := c.Read(); got != 1 {
		t.Fatalf("Read() = %d, want 1 (A pressed, strobe high reflects live state)", got)
	}

	c.SetButton(ButtonA, false)
	if got := c.Read(); got != 0 {
		t.Fatalf("Read() = %d, want 0 after releasing A while strobe is still high", got)
	}
}

func TestFallingEdgeLatchesShiftRegister(t *testing.T) {
	c := New()
	c.SetButton(ButtonA, true)
	c.SetButton(ButtonRight, true) // bit 7

	c.Write(1) // strobe high, loads shift register
	c.Write(0) // falling edge latches the loaded value

	c.SetButton(ButtonA, false) // should have no effect now; register already latched

	if got := c.Read(); got != 1 {
		t.Fatalf("first Read() = %d, want 1 (A, latched before release)", got)
	}
}

func TestEightBitShiftOutSequence(t *testing.T) {
	c := New()
	c.SetButton(ButtonA, true)     // bit 0
	c.SetButton(ButtonSelect, true) // bit 2
	c.Write(1)
	c.Write(0)

	want := []uint8{1, 0, 1, 0, 0, 0, 0, 0}
	for i, w := range want {
		if got := c.Read(); got != w {
			t.Fatalf("bit %d = %d, want %d", i, got, w)
		}
	}
}

func TestReadsPastEighthBitReturnOne(t *testing.T) {
	c := New()
	c.Write(1)
	c.Write(0)

	for i := 0; i < 8; i++ {
		c.Read()
	}
	for i := 0; i < 5; i++ {
		if got := c.Read(); got != 1 {
			t.Fatalf("Read() past bit 7 = %d, want 1", got)
		}
	}
}

func TestInputStateReadSetsOpenBusBit(t *testing.T) {
	is := NewInputState()

	got1 := is.Read(0x4016)
	if got1&0x40 == 0 {
		t.Fatalf("Read($4016) = %#02x, want bit 6 (0x40) set", got1)
	}

	got2 := is.Read(0x4017)
	if got2&0x40 == 0 {
		t.Fatalf("Read($4017) = %#02x, want bit 6 (0x40) set", got2)
	}
}

func TestInputStateWriteStrobesBothControllers(t *testing.T) {
	is := NewInputState()
	is.Controller1.SetButton(ButtonA, true)
	is.Controller2.SetButton(ButtonB, true) // bit 1

	is.Write(0x4016, 1)
	is.Write(0x4016, 0)

	if got := is.Controller1.Read(); got != 1 {
		t.Fatalf("controller1 first bit = %d, want 1 (A)", got)
	}

	is.Controller2.Read() // bit 0: A, not pressed
	if got := is.Controller2.Read(); got != 1 {
		t.Fatalf("controller2 second bit = %d, want 1 (B)", got)
	}
}

func TestResetClearsControllerState(t *testing.T) {
	c := New()
	c.SetButton(ButtonA, true)
	c.Write(1)
	c.Write(0)

	c.Reset()

	if c.IsPressed(ButtonA) {
		t.Fatal("Reset() should clear held buttons")
	}
	if got := c.Read(); got != 0 {
		t.Fatalf("Read() after Reset() = %d, want 0", got)
	}
}
