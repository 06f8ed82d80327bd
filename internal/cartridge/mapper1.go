package cartridge

import "gones/internal/logger"

// mapper1 implements iNES mapper 1 (MMC1): a 5-bit serial shift register
// feeds four target registers (control, CHR bank 0, CHR bank 1, PRG bank)
// per spec.md §4.3.
type mapper1 struct {
	cart *Cartridge

	prgBanks uint8 // 16 KiB banks
	chrBanks uint8 // 4 KiB banks

	shift    uint8
	shiftLen uint8

	control uint8 // mirroring(2) | prgMode(2) | chrMode(1)
	chrBank0 uint8
	chrBank1 uint8
	prgBank  uint8

	prgRAMEnabled bool
}

func newMapper1(cart *Cartridge) *mapper1 {
	return &mapper1{
		cart:          cart,
		prgBanks:      uint8(len(cart.prgROM) / 0x4000),
		chrBanks:      uint8(len(cart.chrROM) / 0x1000),
		shift:         0x10,
		control:       0x0C, // power-on: PRG mode 3 (fix last bank at $C000)
		prgRAMEnabled: true,
	}
}

func (m *mapper1) mirrorBits() uint8 { return m.control & 0x03 }
func (m *mapper1) prgMode() uint8    { return (m.control >> 2) & 0x03 }
func (m *mapper1) chrMode() uint8    { return (m.control >> 4) & 0x01 }

func (m *mapper1) ReadPRG(address uint16) uint8 {
	switch {
	case address >= 0x6000 && address < 0x8000:
		if m.prgRAMEnabled {
			return m.cart.prgRAM[address-0x6000]
		}
		return 0

	case address >= 0x8000 && address < 0xC000:
		var bank uint8
		switch m.prgMode() {
		case 0, 1:
			bank = m.prgBank &^ 1
		case 2:
			bank = 0
		default: // 3
			bank = m.prgBank
		}
		return m.readPRGBank(bank, address-0x8000)

	default: // $C000-$FFFF
		var bank uint8
		switch m.prgMode() {
		case 0, 1:
			bank = (m.prgBank &^ 1) | 1
		case 2:
			bank = m.prgBank
		default: // 3
			bank = m.prgBanks - 1
		}
		return m.readPRGBank(bank, address-0xC000)
	}
}

func (m *mapper1) readPRGBank(bank uint8, offset uint16) uint8 {
	idx := uint32(bank)*0x4000 + uint32(offset)
	if int(idx) < len(m.cart.prgROM) {
		return m.cart.prgROM[idx]
	}
	return 0
}

func (m *mapper1) WritePRG(address uint16, value uint8) {
	if address >= 0x6000 && address < 0x8000 {
		if m.prgRAMEnabled {
			m.cart.prgRAM[address-0x6000] = value
		}
		return
	}
	if address < 0x8000 {
		return
	}

	if value&0x80 != 0 {
		// Reset: force PRG mode 3, clear the shift register.
		m.shift = 0x10
		m.shiftLen = 0
		m.control |= 0x0C
		return
	}

	m.shift = (m.shift >> 1) | ((value & 1) << 4)
	m.shiftLen++
	if m.shiftLen < 5 {
		return
	}

	v := m.shift
	m.shift = 0x10
	m.shiftLen = 0

	switch {
	case address < 0xA000:
		m.control = v & 0x1F
		logger.Debugf("mapper1: control write mirror=%d prgMode=%d chrMode=%d", m.mirrorBits(), m.prgMode(), m.chrMode())
	case address < 0xC000:
		m.chrBank0 = v & 0x1F
	case address < 0xE000:
		m.chrBank1 = v & 0x1F
	default:
		m.prgBank = v & 0x0F
		m.prgRAMEnabled = v&0x10 == 0
	}
}

func (m *mapper1) ReadCHR(address uint16) uint8 {
	bank, offset := m.chrBankFor(address)
	idx := uint32(bank)*0x1000 + uint32(offset)
	if int(idx) < len(m.cart.chrROM) {
		return m.cart.chrROM[idx]
	}
	return 0
}

func (m *mapper1) WriteCHR(address uint16, value uint8) {
	if !m.cart.chrRAM {
		return
	}
	bank, offset := m.chrBankFor(address)
	idx := uint32(bank)*0x1000 + uint32(offset)
	if int(idx) < len(m.cart.chrROM) {
		m.cart.chrROM[idx] = value
	}
}

func (m *mapper1) chrBankFor(address uint16) (bank uint8, offset uint16) {
	if m.chrMode() == 0 {
		bank = m.chrBank0 &^ 1
		if address >= 0x1000 {
			bank |= 1
		}
		return bank, address & 0x0FFF
	}
	if address < 0x1000 {
		return m.chrBank0, address
	}
	return m.chrBank1, address - 0x1000
}

func (m *mapper1) Mirror() MirrorMode {
	switch m.mirrorBits() {
	case 0:
		return MirrorSingleScreen0
	case 1:
		return MirrorSingleScreen1
	case 2:
		return MirrorVertical
	default:
		return MirrorHorizontal
	}
}

func (m *mapper1) Scanline() {}
func (m *mapper1) IRQ() bool { return false }
