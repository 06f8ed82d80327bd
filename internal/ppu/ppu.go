// Package ppu implements the Picture Processing Unit for the NES (2C02).
package ppu

import (
	"gones/internal/logger"
	"gones/internal/memory"
)

// PPU represents the NES Picture Processing Unit.
type PPU struct {
	// CPU-visible registers ($2000-$2007)
	ppuCtrl   uint8
	ppuMask   uint8
	ppuStatus uint8
	oamAddr   uint8

	// Internal scroll/address state
	v uint16 // current VRAM address (15 bits)
	t uint16 // temporary VRAM address / address latch
	x uint8  // fine X scroll (3 bits)
	w bool   // write toggle, shared by PPUSCROLL/PPUADDR

	memory *memory.PPUMemory

	scanline   int // -1 (pre-render) through 260
	cycle      int // 0-340
	frameCount uint64
	oddFrame   bool
	readBuffer uint8 // buffered PPUDATA read

	oam              [256]uint8
	secondaryOAM     [32]uint8
	spriteIndexes    [8]uint8
	spriteCount      uint8
	sprite0Hit       bool
	spriteOverflow   bool
	sprite0OnLine    bool
	lastEvalScanline int

	frameBuffer [256 * 240]uint32

	nmiCallback           func()
	frameCompleteCallback func()
	scanlineCallback      func()

	backgroundEnabled bool
	spritesEnabled    bool
	renderingEnabled  bool

	cycleCount uint64
}

// New creates a new PPU instance.
func New() *PPU {
	return &PPU{
		scanline: -1,
	}
}

// Reset resets the PPU to its post-power-up state.
func (p *PPU) Reset() {
	p.ppuCtrl = 0
	p.ppuMask = 0
	p.ppuStatus = 0xA0
	p.oamAddr = 0

	p.v = 0
	p.t = 0
	p.x = 0
	p.w = false

	p.scanline = -1
	p.cycle = 0
	p.frameCount = 0
	p.oddFrame = false
	p.readBuffer = 0

	p.spriteCount = 0
	p.sprite0Hit = false
	p.spriteOverflow = false
	p.lastEvalScanline = -999

	p.backgroundEnabled = false
	p.spritesEnabled = false
	p.renderingEnabled = false
	p.cycleCount = 0

	for i := range p.oam {
		p.oam[i] = 0
	}
	for i := range p.frameBuffer {
		p.frameBuffer[i] = 0
	}

	logger.Infof("ppu: reset")
}

// SetMemory sets the PPU's memory interface (nametables, palette, CHR).
func (p *PPU) SetMemory(mem *memory.PPUMemory) { p.memory = mem }

// SetNMICallback sets the function invoked when VBlank NMI fires.
func (p *PPU) SetNMICallback(callback func()) { p.nmiCallback = callback }

// SetFrameCompleteCallback sets the function invoked when a frame finishes.
func (p *PPU) SetFrameCompleteCallback(callback func()) { p.frameCompleteCallback = callback }

// SetScanlineCallback sets the function invoked once per rendered scanline,
// which the bus uses to drive mapper IRQ counters (MMC3).
func (p *PPU) SetScanlineCallback(callback func()) { p.scanlineCallback = callback }

// ReadRegister reads from a CPU-visible PPU register ($2000-$2007).
func (p *PPU) ReadRegister(address uint16) uint8 {
	switch address {
	case 0x2002:
		status := p.ppuStatus
		p.ppuStatus &= 0x3F // clear VBlank (bit 7) and sprite 0 hit (bit 6)
		p.sprite0Hit = false
		p.w = false
		return status
	case 0x2004:
		return p.oam[p.oamAddr]
	case 0x2007:
		return p.readPPUData()
	default:
		// $2000/$2001/$2003/$2005/$2006 are write-only; real hardware
		// returns whatever was last on the bus, approximated here as the
		// low 5 bits of PPUSTATUS.
		return p.ppuStatus & 0x1F
	}
}

// WriteRegister writes to a CPU-visible PPU register ($2000-$2007).
func (p *PPU) WriteRegister(address uint16, value uint8) {
	switch address {
	case 0x2000:
		p.ppuCtrl = value
		p.t = (p.t & 0xF3FF) | ((uint16(value) & 0x03) << 10)
		p.updateRenderingFlags()
		p.checkNMI()
	case 0x2001:
		p.ppuMask = value
		p.updateRenderingFlags()
	case 0x2003:
		p.oamAddr = value
	case 0x2004:
		p.oam[p.oamAddr] = value
		p.oamAddr++
	case 0x2005:
		p.writePPUScroll(value)
	case 0x2006:
		p.writePPUAddr(value)
	case 0x2007:
		p.writePPUData(value)
	}
}

// WriteOAM writes directly to OAM, used by the bus's OAM DMA path.
func (p *PPU) WriteOAM(address uint8, value uint8) { p.oam[address] = value }

// Step advances the PPU by one PPU cycle (dot).
func (p *PPU) Step() {
	p.cycleCount++

	p.cycle++
	if p.cycle > 340 {
		p.cycle = 0
		p.scanline++
		if p.scanline > 260 {
			p.scanline = -1
			p.frameCount++
			p.oddFrame = !p.oddFrame
			if p.frameCompleteCallback != nil {
				p.frameCompleteCallback()
			}
		}
	}

	if p.scanline == 241 && p.cycle == 1 {
		p.ppuStatus |= 0x80
		p.ppuStatus &= 0x9F // clear sprite 0 hit and sprite overflow at VBlank start
		p.sprite0Hit = false
		p.spriteOverflow = false
		if p.ppuCtrl&0x80 != 0 && p.nmiCallback != nil {
			p.nmiCallback()
		}
	}

	if p.scanline == -1 && p.cycle == 1 {
		p.ppuStatus &= 0x7F
	}

	if p.scanline == 0 && p.cycle == 0 && p.renderingEnabled {
		p.v = p.t
	}

	// Approximate the MMC3 PPU-A12 IRQ clock: real hardware clocks once per
	// pattern-table fetch that crosses from low to high CHR addresses,
	// which in practice happens around this point in each rendered scanline.
	if p.cycle == 260 && p.renderingEnabled && p.scanline >= -1 && p.scanline < 240 {
		if p.scanlineCallback != nil {
			p.scanlineCallback()
		}
	}

	if p.scanline >= -1 && p.scanline < 240 {
		p.renderCycle()
	}
}

func (p *PPU) renderCycle() {
	if p.scanline < -1 || p.scanline >= 240 {
		return
	}

	if p.spritesEnabled && p.scanline >= 0 && p.scanline < 240 && p.cycle == 1 {
		if p.lastEvalScanline != p.scanline {
			p.evaluateSprites()
		}
	}

	// Sprite 0 hit detection starts one cycle into the visible range.
	if p.scanline < 0 || p.scanline >= 240 || p.cycle < 2 || p.cycle > 257 {
		return
	}
	if p.memory == nil || (!p.backgroundEnabled && !p.spritesEnabled) {
		return
	}

	pixelX := p.cycle - 2
	pixelY := p.scanline

	background := SpritePixel{transparent: true}
	sprite := SpritePixel{transparent: true}

	if p.backgroundEnabled {
		background = p.renderBackgroundPixel(pixelX, pixelY)
	}
	if p.spritesEnabled {
		sprite = p.renderSpritePixel(pixelX, pixelY)
	}

	p.frameBuffer[pixelY*256+pixelX] = p.compositeFinalPixel(background, sprite)
}

// SpritePixel represents one rendered pixel from either the background or
// sprite layer, prior to compositing.
type SpritePixel struct {
	colorIndex   uint8
	paletteIndex uint8
	rgbColor     uint32
	priority     bool // true = behind background
	transparent  bool
}

func (p *PPU) evaluateSprites() {
	p.lastEvalScanline = p.scanline
	p.spriteCount = 0
	p.sprite0OnLine = false

	for i := range p.secondaryOAM {
		p.secondaryOAM[i] = 0xFF
	}
	for i := range p.spriteIndexes {
		p.spriteIndexes[i] = 0xFF
	}

	spriteHeight := 8
	if p.ppuCtrl&0x20 != 0 {
		spriteHeight = 16
	}

	found := 0
	for i := 0; i < 64; i++ {
		base := i * 4
		y := int(p.oam[base])
		tile := p.oam[base+1]
		attr := p.oam[base+2]
		x := p.oam[base+3]

		if p.scanline < y+1 || p.scanline >= y+1+spriteHeight {
			continue
		}
		if found >= 8 {
			p.spriteOverflow = true
			p.ppuStatus |= 0x20
			break
		}

		dst := found * 4
		p.secondaryOAM[dst] = uint8(y)
		p.secondaryOAM[dst+1] = tile
		p.secondaryOAM[dst+2] = attr
		p.secondaryOAM[dst+3] = x
		p.spriteIndexes[found] = uint8(i)
		if i == 0 {
			p.sprite0OnLine = true
		}
		found++
	}

	p.spriteCount = uint8(found)
}

func (p *PPU) renderBackgroundPixel(pixelX, pixelY int) SpritePixel {
	var scrollX, scrollY, nametable int
	if p.t != 0 || p.x != 0 {
		scrollX = int(p.t&0x001F)<<3 + int(p.x)
		scrollY = int((p.t>>5)&0x001F)<<3 + int((p.t>>12)&0x0007)
		nametable = int((p.t >> 10) & 0x0003)
	}

	worldX := pixelX + scrollX
	worldY := pixelY + scrollY

	if worldX < 0 {
		nametable ^= 1
		worldX += 256
	} else if worldX >= 256 {
		nametable ^= 1
		worldX -= 256
	}
	if worldY < 0 {
		nametable ^= 2
		worldY += 240
	} else if worldY >= 240 {
		nametable ^= 2
		worldY -= 240
	}

	tileX := worldX >> 3
	tileY := worldY >> 3
	if tileX < 0 || tileX >= 32 || tileY < 0 || tileY >= 30 {
		return SpritePixel{transparent: true}
	}
	pixelInTileX := worldX & 7
	pixelInTileY := worldY & 7

	nametableAddr := 0x2000 | (uint16(nametable&3) << 10) | uint16(tileY*32+tileX)
	tileID := p.memory.Read(nametableAddr)

	attributeAddr := 0x23C0 | (uint16(nametable&3) << 10) | uint16((tileY>>2)*8+(tileX>>2))
	attributeByte := p.memory.Read(attributeAddr)
	blockID := ((tileX & 3) >> 1) + ((tileY & 3) >> 1)*2
	paletteIndex := (attributeByte >> (blockID << 1)) & 0x03

	patternTableBase := uint16(0x0000)
	if p.ppuCtrl&0x10 != 0 {
		patternTableBase = 0x1000
	}
	patternAddr := patternTableBase + uint16(tileID)*16 + uint16(pixelInTileY)
	patternLow := p.memory.Read(patternAddr)
	patternHigh := p.memory.Read(patternAddr + 8)

	bitShift := 7 - pixelInTileX
	colorIndex := (((patternHigh >> bitShift) & 1) << 1) | ((patternLow >> bitShift) & 1)

	var paletteAddr uint16
	if colorIndex == 0 {
		paletteAddr = 0x3F00
	} else {
		paletteAddr = 0x3F00 + uint16(paletteIndex)*4 + uint16(colorIndex)
	}
	rgbColor := NESColorToRGB(p.memory.Read(paletteAddr))

	return SpritePixel{
		colorIndex:   colorIndex,
		paletteIndex: paletteIndex,
		rgbColor:     rgbColor,
		transparent:  colorIndex == 0,
	}
}

func (p *PPU) renderSpritePixel(pixelX, pixelY int) SpritePixel {
	spriteHeight := 8
	if p.ppuCtrl&0x20 != 0 {
		spriteHeight = 16
	}

	for i := 0; i < int(p.spriteCount); i++ {
		base := i * 4
		sY := int(p.secondaryOAM[base])
		tile := p.secondaryOAM[base+1]
		attr := p.secondaryOAM[base+2]
		sX := int(p.secondaryOAM[base+3])

		if pixelX < sX || pixelX >= sX+8 {
			continue
		}
		if pixelY < sY+1 || pixelY >= sY+1+spriteHeight {
			continue
		}

		spritePixelX := pixelX - sX
		spritePixelY := pixelY - (sY + 1)
		if attr&0x40 != 0 {
			spritePixelX = 7 - spritePixelX
		}
		if attr&0x80 != 0 {
			spritePixelY = spriteHeight - 1 - spritePixelY
		}

		colorIndex := p.getSpritePixelColor(tile, spritePixelX, spritePixelY)
		if colorIndex == 0 {
			continue
		}

		if p.isOriginalSprite0(i) && !p.sprite0Hit {
			p.checkSprite0Hit(pixelX, pixelY, colorIndex)
		}

		paletteIndex := attr & 0x03
		paletteAddr := 0x3F10 + uint16(paletteIndex)*4 + uint16(colorIndex)
		rgbColor := NESColorToRGB(p.memory.Read(paletteAddr))

		return SpritePixel{
			colorIndex:   colorIndex,
			paletteIndex: paletteIndex,
			rgbColor:     rgbColor,
			priority:     attr&0x20 != 0,
			transparent:  false,
		}
	}

	return SpritePixel{transparent: true}
}

func (p *PPU) getSpritePixelColor(tileIndex uint8, pixelX, pixelY int) uint8 {
	var patternTableBase uint16
	if p.ppuCtrl&0x20 == 0 {
		if p.ppuCtrl&0x08 != 0 {
			patternTableBase = 0x1000
		}
	} else {
		if tileIndex&0x01 != 0 {
			patternTableBase = 0x1000
		}
		tileIndex &= 0xFE
		if pixelY >= 8 {
			tileIndex++
			pixelY -= 8
		}
	}

	patternAddr := patternTableBase + uint16(tileIndex)*16 + uint16(pixelY)
	patternLow := p.memory.Read(patternAddr)
	patternHigh := p.memory.Read(patternAddr + 8)

	bitShift := 7 - pixelX
	return (((patternHigh >> bitShift) & 1) << 1) | ((patternLow >> bitShift) & 1)
}

func (p *PPU) isOriginalSprite0(secondaryIndex int) bool {
	if secondaryIndex >= int(p.spriteCount) {
		return false
	}
	return p.spriteIndexes[secondaryIndex] == 0
}

// checkSprite0Hit implements the sprite-0-hit edge case list from the NES
// hardware reference: excludes x==255, and honors the PPUMASK left-edge
// clipping bits.
func (p *PPU) checkSprite0Hit(pixelX, pixelY int, spriteColorIndex uint8) {
	if p.sprite0Hit || !p.backgroundEnabled || !p.spritesEnabled {
		return
	}
	if pixelX >= 255 {
		return
	}
	if pixelX < 8 && (p.ppuMask&0x02 == 0 || p.ppuMask&0x04 == 0) {
		return
	}

	background := p.renderBackgroundPixel(pixelX, pixelY)
	if !background.transparent && background.colorIndex != 0 && spriteColorIndex != 0 {
		p.sprite0Hit = true
		p.ppuStatus |= 0x40
	}
}

func (p *PPU) compositeFinalPixel(background, sprite SpritePixel) uint32 {
	if sprite.transparent {
		if background.transparent {
			return NESColorToRGB(p.memory.Read(0x3F00))
		}
		return background.rgbColor
	}
	if background.transparent {
		return sprite.rgbColor
	}
	if sprite.priority && p.backgroundEnabled {
		return background.rgbColor
	}
	return sprite.rgbColor
}

func (p *PPU) updateRenderingFlags() {
	p.backgroundEnabled = p.ppuMask&0x08 != 0
	p.spritesEnabled = p.ppuMask&0x10 != 0
	p.renderingEnabled = p.backgroundEnabled || p.spritesEnabled
}

func (p *PPU) checkNMI() {
	if p.ppuCtrl&0x80 != 0 && p.ppuStatus&0x80 != 0 && p.nmiCallback != nil {
		p.nmiCallback()
	}
}

// writePPUScroll handles the two-write PPUSCROLL ($2005) sequence.
func (p *PPU) writePPUScroll(value uint8) {
	if !p.w {
		p.t = (p.t & 0xFFE0) | (uint16(value) >> 3)
		p.x = value & 0x07
		p.w = true
	} else {
		p.t = (p.t & 0x8FFF) | ((uint16(value) & 0x07) << 12)
		p.t = (p.t & 0xFC1F) | ((uint16(value) & 0xF8) << 2)
		p.w = false
	}
}

// writePPUAddr handles the two-write PPUADDR ($2006) sequence.
func (p *PPU) writePPUAddr(value uint8) {
	if !p.w {
		p.t = (p.t & 0x80FF) | ((uint16(value) & 0x3F) << 8)
		p.w = true
	} else {
		p.t = (p.t & 0xFF00) | uint16(value)
		p.v = p.t
		p.w = false
	}
}

// readPPUData implements PPUDATA's buffered-read quirk: non-palette reads
// return the previous byte, palette reads return data immediately.
func (p *PPU) readPPUData() uint8 {
	var data uint8
	if p.memory == nil {
		data = 0
	} else if p.v >= 0x3F00 {
		data = p.memory.Read(p.v)
		p.readBuffer = p.memory.Read(p.v & 0x2FFF)
	} else {
		data = p.readBuffer
		p.readBuffer = p.memory.Read(p.v)
	}
	p.advanceVRAMAddress()
	return data
}

func (p *PPU) writePPUData(value uint8) {
	if p.memory != nil {
		p.memory.Write(p.v, value)
	}
	p.advanceVRAMAddress()
}

func (p *PPU) advanceVRAMAddress() {
	if p.ppuCtrl&0x04 != 0 {
		p.v += 32
	} else {
		p.v += 1
	}
	p.v &= 0x3FFF
}

// GetFrameBuffer returns the current RGB frame buffer, 256x240.
func (p *PPU) GetFrameBuffer() [256 * 240]uint32 { return p.frameBuffer }

// GetFrameCount returns the number of frames rendered so far.
func (p *PPU) GetFrameCount() uint64 { return p.frameCount }

// SetFrameCount overrides the frame counter, used when resynchronizing with
// the bus after a cartridge swap.
func (p *PPU) SetFrameCount(count uint64) { p.frameCount = count }

// GetScanline returns the current scanline (-1 to 260).
func (p *PPU) GetScanline() int { return p.scanline }

// GetCycle returns the current dot within the scanline (0-340).
func (p *PPU) GetCycle() int { return p.cycle }

// IsRenderingEnabled reports whether background or sprite rendering is on.
func (p *PPU) IsRenderingEnabled() bool { return p.renderingEnabled }

// IsVBlank reports whether the VBlank flag is currently set.
func (p *PPU) IsVBlank() bool { return p.ppuStatus&0x80 != 0 }

// GetCycleCount returns the total number of PPU cycles executed.
func (p *PPU) GetCycleCount() uint64 { return p.cycleCount }

// nesColorPalette is the 2C02 NTSC palette, ARGB with a forced opaque alpha.
var nesColorPalette = [64]uint32{
	0xFF666666, 0xFF002A88, 0xFF1412A7, 0xFF3B00A4, 0xFF5C007E, 0xFF6E0040, 0xFF6C0600, 0xFF561D00,
	0xFF333500, 0xFF0B4800, 0xFF005200, 0xFF004F08, 0xFF00404D, 0xFF000000, 0xFF000000, 0xFF000000,
	0xFFADADAD, 0xFF155FD9, 0xFF4240FF, 0xFF7527FE, 0xFFA01ACC, 0xFFB71E7B, 0xFFB53120, 0xFF994E00,
	0xFF6B6D00, 0xFF388700, 0xFF0C9300, 0xFF008F32, 0xFF007C8D, 0xFF000000, 0xFF000000, 0xFF000000,
	0xFFFFFEFF, 0xFF64B0FF, 0xFF9290FF, 0xFFC676FF, 0xFFF36AFF, 0xFFFE6ECC, 0xFFFE8170, 0xFFEA9E22,
	0xFFBCBE00, 0xFF88D800, 0xFF5CE430, 0xFF45E082, 0xFF48CDDE, 0xFF4F4F4F, 0xFF000000, 0xFF000000,
	0xFFFFFEFF, 0xFFC0DFFF, 0xFFD3D2FF, 0xFFE8C8FF, 0xFFFBC2FF, 0xFFFEC4EA, 0xFFFECCC5, 0xFFF7D8A5,
	0xFFE4E594, 0xFFCFF29B, 0xFFBEFBB3, 0xFFB8F8D8, 0xFFB8F8F8, 0xFF000000, 0xFF000000, 0xFF000000,
}

// NESColorToRGB converts a 2C02 color index (0-63) to a 24-bit RGB value.
func NESColorToRGB(colorIndex uint8) uint32 {
	if colorIndex >= 64 {
		return 0
	}
	return nesColorPalette[colorIndex] & 0x00FFFFFF
}
