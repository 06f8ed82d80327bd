// Package cartridge implements ROM loading and cartridge mapper emulation
// for the NES.
package cartridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"gones/internal/logger"
)

// MirrorMode represents nametable mirroring mode
type MirrorMode uint8

const (
	MirrorHorizontal MirrorMode = iota
	MirrorVertical
	MirrorSingleScreen0
	MirrorSingleScreen1
	MirrorFourScreen
)

// Mapper is the interface every supported board implements. The cartridge
// forwards CPU reads/writes in $6000-$FFFF and PPU reads/writes in
// $0000-$1FFF to whichever mapper was selected by the iNES header.
type Mapper interface {
	ReadPRG(address uint16) uint8
	WritePRG(address uint16, value uint8)
	ReadCHR(address uint16) uint8
	WriteCHR(address uint16, value uint8)
	Mirror() MirrorMode
	// Scanline is driven by the PPU once per rendered scanline (the
	// pre-render line and the 240 visible lines, only while rendering is
	// enabled) so that mappers with an IRQ counter (MMC3) can count PPU A12
	// edges.
	Scanline()
	// IRQ reports whether the mapper currently asserts its IRQ line.
	IRQ() bool
}

// iNESHeader is the 16-byte header of an iNES ROM image.
type iNESHeader struct {
	Magic      [4]uint8
	PRGROMSize uint8 // 16 KiB units
	CHRROMSize uint8 // 8 KiB units
	Flags6     uint8
	Flags7     uint8
	PRGRAMSize uint8
	TVSystem1  uint8
	TVSystem2  uint8
	Padding    [5]uint8
}

// Cartridge owns PRG/CHR storage and the mapper that virtualizes bank
// switching for it.
type Cartridge struct {
	prgROM []uint8
	chrROM []uint8
	chrRAM bool

	mapperID   uint8
	mapper     Mapper
	mirror     MirrorMode
	hasBattery bool
	prgRAM     [0x2000]uint8
}

// Load reads and validates an iNES image from disk.
func Load(path string) (*Cartridge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses an iNES image per spec.md §6. Format errors are
// surfaced to the host; the cartridge is never constructed in an invalid
// state.
func LoadFromReader(r io.Reader) (*Cartridge, error) {
	var header iNESHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("cartridge: reading header: %w", err)
	}

	if string(header.Magic[:]) != "NES\x1A" {
		return nil, errors.New("cartridge: bad magic, not an iNES image")
	}
	if header.PRGROMSize == 0 {
		return nil, errors.New("cartridge: PRG-ROM size cannot be zero")
	}

	cart := &Cartridge{
		mapperID:   (header.Flags6 >> 4) | (header.Flags7 & 0xF0),
		hasBattery: header.Flags6&0x02 != 0,
	}

	switch {
	case header.Flags6&0x08 != 0:
		cart.mirror = MirrorFourScreen
	case header.Flags6&0x01 != 0:
		cart.mirror = MirrorVertical
	default:
		cart.mirror = MirrorHorizontal
	}

	if header.Flags6&0x04 != 0 {
		trainer := make([]uint8, 512)
		if _, err := io.ReadFull(r, trainer); err != nil {
			return nil, fmt.Errorf("cartridge: reading trainer: %w", err)
		}
	}

	prgSize := int(header.PRGROMSize) * 16384
	cart.prgROM = make([]uint8, prgSize)
	if _, err := io.ReadFull(r, cart.prgROM); err != nil {
		return nil, fmt.Errorf("cartridge: reading PRG-ROM: %w", err)
	}

	chrSize := int(header.CHRROMSize) * 8192
	if chrSize > 0 {
		cart.chrROM = make([]uint8, chrSize)
		if _, err := io.ReadFull(r, cart.chrROM); err != nil {
			return nil, fmt.Errorf("cartridge: reading CHR-ROM: %w", err)
		}
	} else {
		cart.chrROM = make([]uint8, 8192)
		cart.chrRAM = true
	}

	mapper, err := newMapper(cart.mapperID, cart)
	if err != nil {
		return nil, err
	}
	cart.mapper = mapper

	logger.Debugf("cartridge: mapper=%d prg=%dKiB chr=%dKiB(%s) battery=%t mirror=%d",
		cart.mapperID, len(cart.prgROM)/1024, len(cart.chrROM)/1024,
		chrKind(cart.chrRAM), cart.hasBattery, cart.mirror)

	return cart, nil
}

func chrKind(isRAM bool) string {
	if isRAM {
		return "RAM"
	}
	return "ROM"
}

func newMapper(id uint8, cart *Cartridge) (Mapper, error) {
	switch id {
	case 0:
		return newMapper0(cart), nil
	case 1:
		return newMapper1(cart), nil
	case 2:
		return newMapper2(cart), nil
	case 3:
		return newMapper3(cart), nil
	case 4:
		return newMapper4(cart), nil
	default:
		return nil, fmt.Errorf("cartridge: unsupported mapper id %d", id)
	}
}

// ReadPRG reads CPU-visible cartridge space ($6000-$FFFF).
func (c *Cartridge) ReadPRG(address uint16) uint8 { return c.mapper.ReadPRG(address) }

// WritePRG writes CPU-visible cartridge space ($6000-$FFFF).
func (c *Cartridge) WritePRG(address uint16, value uint8) { c.mapper.WritePRG(address, value) }

// ReadCHR reads PPU-visible pattern table space ($0000-$1FFF).
func (c *Cartridge) ReadCHR(address uint16) uint8 { return c.mapper.ReadCHR(address) }

// WriteCHR writes PPU-visible pattern table space ($0000-$1FFF).
func (c *Cartridge) WriteCHR(address uint16, value uint8) { c.mapper.WriteCHR(address, value) }

// Mirror returns the mapper's current nametable mirroring mode. Mappers
// that can change mirroring at runtime (MMC1, MMC3) report the live value.
func (c *Cartridge) Mirror() MirrorMode { return c.mapper.Mirror() }

// Scanline notifies the mapper of a PPU scanline boundary, for IRQ counters.
func (c *Cartridge) Scanline() { c.mapper.Scanline() }

// IRQ reports whether the mapper is asserting its IRQ line.
func (c *Cartridge) IRQ() bool { return c.mapper.IRQ() }

// HasBattery reports whether the cartridge's work RAM should be persisted.
func (c *Cartridge) HasBattery() bool { return c.hasBattery }

// SaveRAM returns a copy of the 8 KiB battery-backed work RAM for the host
// to persist. Returns nil if the board has no battery.
func (c *Cartridge) SaveRAM() []byte {
	if !c.hasBattery {
		return nil
	}
	out := make([]byte, len(c.prgRAM))
	copy(out, c.prgRAM[:])
	return out
}

// LoadRAM restores previously-saved battery-backed work RAM.
func (c *Cartridge) LoadRAM(data []byte) {
	if !c.hasBattery {
		return
	}
	copy(c.prgRAM[:], data)
}
