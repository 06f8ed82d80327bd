// Package cpu implements the 6502 CPU emulation for the NES.
package cpu

import "gones/internal/logger"

// Addressing modes
type AddressingMode int

const (
	Implied AddressingMode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Relative
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect
	IndexedIndirect // (zp,X)
	IndirectIndexed // (zp),Y
)

// CPU constants for performance optimization
const (
	// Stack base address
	stackBase = 0x0100
	// Status register bit masks
	nFlagMask  = 0x80
	vFlagMask  = 0x40
	unusedMask = 0x20
	bFlagMask  = 0x10
	dFlagMask  = 0x08
	iFlagMask  = 0x04
	zFlagMask  = 0x02
	cFlagMask  = 0x01
	// Zero page mask
	zeroPageMask = 0xFF
	// Page boundary mask
	pageMask = 0xFF00
	// Interrupt vectors
	nmiVector   = 0xFFFA
	irqVector   = 0xFFFE
	resetVector = 0xFFFC
)

// Instruction represents a 6502 instruction
type Instruction struct {
	Name   string
	Opcode uint8
	Bytes  uint8
	Cycles uint8
	Mode   AddressingMode
}

// CPU represents the 6502 processor used in the NES
type CPU struct {
	// Registers
	A  uint8  // Accumulator
	X  uint8  // X register
	Y  uint8  // Y register
	SP uint8  // Stack pointer
	PC uint16 // Program counter

	// Status register flags
	C bool // Carry
	Z bool // Zero
	I bool // Interrupt disable
	D bool // Decimal mode (not used in NES)
	B bool // Break
	V bool // Overflow
	N bool // Negative

	memory MemoryInterface

	cycles uint64

	instructions [256]*Instruction

	nmiPending bool
	irqPending bool

	// NMI edge detection - track previous NMI state for edge detection
	nmiPrevious bool

	// halted is set by JAM/STP opcodes; the 6502 parks indefinitely at the
	// offending instruction until an external reset.
	halted bool
}

// MemoryInterface defines the interface for CPU memory access
type MemoryInterface interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
}

// New creates a new CPU instance
func New(memory MemoryInterface) *CPU {
	cpu := &CPU{
		memory: memory,
		SP:     0xFD, // Stack pointer initial value
		PC:     0,    // Will be set from reset vector
	}
	cpu.initInstructions()
	return cpu
}

// Halted reports whether the CPU is parked by a JAM/STP opcode.
func (cpu *CPU) Halted() bool { return cpu.halted }

// Reset performs a CPU reset following the precise 6502 reset sequence.
func (cpu *CPU) Reset() {
	// 6502 reset takes 7 cycles: 5 dummy bus operations followed by the
	// two-byte reset vector fetch.
	cpu.A = 0x00
	cpu.X = 0x00
	cpu.Y = 0x00
	cpu.SP = 0xFD

	cpu.C = false
	cpu.Z = false
	cpu.I = true
	cpu.D = false
	cpu.B = true
	cpu.V = false
	cpu.N = false
	cpu.halted = false

	for i := 0; i < 5; i++ {
		cpu.memory.Read(cpu.PC)
		cpu.cycles++
	}

	low := uint16(cpu.memory.Read(resetVector))
	high := uint16(cpu.memory.Read(resetVector + 1))
	cpu.PC = (high << 8) | low
	cpu.cycles += 2

	logger.Infof("cpu: reset, PC=$%04X", cpu.PC)
}

// Step executes a single CPU instruction and returns cycles taken.
func (cpu *CPU) Step() uint64 {
	if cpu.halted {
		cpu.cycles += 2
		return 2
	}

	currentPC := cpu.PC
	opcode := cpu.memory.Read(cpu.PC)
	instruction := cpu.instructions[opcode]

	if instruction == nil {
		logger.Errorf("cpu: no instruction mapped for opcode 0x%02X at $%04X", opcode, currentPC)
		cpu.PC++
		cpu.cycles += 2
		return 2
	}

	logger.Tracef("cpu: $%04X %s (0x%02X) A=$%02X X=$%02X Y=$%02X SP=$%02X", currentPC, instruction.Name, opcode, cpu.A, cpu.X, cpu.Y, cpu.SP)

	address, pageCrossed := cpu.getOperandAddress(instruction.Mode)

	extraCycles := cpu.executeInstruction(opcode, address, pageCrossed)

	if pageCrossed {
		if opcode == 0x9D || opcode == 0x99 || opcode == 0x91 {
			extraCycles++
		} else {
			switch opcode {
			// Official read instructions that take a penalty on page cross
			case 0xBD, 0xB9, 0xB1, 0xBE, 0xBC, 0x7D, 0x79, 0x71, 0x3D, 0x39, 0x31, 0x1D, 0x19, 0x11, 0x5D, 0x59, 0x51, 0xDD, 0xD9, 0xD1:
				extraCycles++
			// Unofficial NOPs (Absolute,X)
			case 0x1C, 0x3C, 0x5C, 0x7C, 0xDC, 0xFC:
				extraCycles++
			// Unofficial read-type opcodes
			case 0xBF, 0xB3, 0xBB:
				extraCycles++
			}
		}
	}

	totalCycles := uint64(instruction.Cycles + extraCycles)
	cpu.cycles += totalCycles

	cpu.ProcessPendingInterrupts()

	return totalCycles
}

// getOperandAddress returns the effective address for the given addressing mode.
// Returns the address and whether a page boundary was crossed (affects cycle timing).
func (cpu *CPU) getOperandAddress(mode AddressingMode) (uint16, bool) {
	pageCrossed := false

	switch mode {
	case Implied, Accumulator:
		cpu.PC += 1
		return 0, false

	case Immediate:
		address := cpu.PC + 1
		cpu.PC += 2
		return address, false

	case ZeroPage:
		address := uint16(cpu.memory.Read(cpu.PC + 1))
		cpu.PC += 2
		return address, false

	case ZeroPageX:
		base := cpu.memory.Read(cpu.PC + 1)
		address := uint16((base + cpu.X) & zeroPageMask)
		cpu.PC += 2
		return address, false

	case ZeroPageY:
		base := cpu.memory.Read(cpu.PC + 1)
		address := uint16((base + cpu.Y) & zeroPageMask)
		cpu.PC += 2
		return address, false

	case Relative:
		offset := int8(cpu.memory.Read(cpu.PC + 1))
		oldPC := cpu.PC + 2
		newPC := uint16(int32(oldPC) + int32(offset))
		cpu.PC = oldPC // Overwritten by the branch op if taken
		pageCrossed = (oldPC & pageMask) != (newPC & pageMask)
		return newPC, pageCrossed

	case Absolute:
		low := uint16(cpu.memory.Read(cpu.PC + 1))
		high := uint16(cpu.memory.Read(cpu.PC + 2))
		address := (high << 8) | low
		cpu.PC += 3
		return address, false

	case AbsoluteX:
		low := uint16(cpu.memory.Read(cpu.PC + 1))
		high := uint16(cpu.memory.Read(cpu.PC + 2))
		base := (high << 8) | low
		address := base + uint16(cpu.X)
		cpu.PC += 3
		pageCrossed = (base & pageMask) != (address & pageMask)
		return address, pageCrossed

	case AbsoluteY:
		low := uint16(cpu.memory.Read(cpu.PC + 1))
		high := uint16(cpu.memory.Read(cpu.PC + 2))
		base := (high << 8) | low
		address := base + uint16(cpu.Y)
		cpu.PC += 3
		pageCrossed = (base & pageMask) != (address & pageMask)
		return address, pageCrossed

	case Indirect: // Only used by JMP
		lowPtr := uint16(cpu.memory.Read(cpu.PC + 1))
		highPtr := uint16(cpu.memory.Read(cpu.PC + 2))
		ptr := (highPtr << 8) | lowPtr

		var address uint16
		if (ptr & zeroPageMask) == zeroPageMask {
			// Page-wrap bug: the high byte is fetched from the start of
			// the same page rather than the next page.
			low := uint16(cpu.memory.Read(ptr))
			high := uint16(cpu.memory.Read(ptr & pageMask))
			address = (high << 8) | low
		} else {
			low := uint16(cpu.memory.Read(ptr))
			high := uint16(cpu.memory.Read(ptr + 1))
			address = (high << 8) | low
		}
		cpu.PC += 3
		return address, false

	case IndexedIndirect: // (zp,X)
		base := cpu.memory.Read(cpu.PC + 1)
		ptr := (base + cpu.X) & zeroPageMask
		low := uint16(cpu.memory.Read(uint16(ptr)))
		high := uint16(cpu.memory.Read(uint16((ptr + 1) & zeroPageMask)))
		address := (high << 8) | low
		cpu.PC += 2
		return address, false

	case IndirectIndexed: // (zp),Y
		ptr := uint16(cpu.memory.Read(cpu.PC + 1))
		low := uint16(cpu.memory.Read(ptr))
		high := uint16(cpu.memory.Read((ptr + 1) & zeroPageMask))
		base := (high << 8) | low
		address := base + uint16(cpu.Y)
		cpu.PC += 2
		pageCrossed = (base & pageMask) != (address & pageMask)
		return address, pageCrossed

	default:
		return 0, false
	}
}

// Stack operations
func (cpu *CPU) push(value uint8) {
	cpu.memory.Write(stackBase+uint16(cpu.SP), value)
	cpu.SP--
}

func (cpu *CPU) pop() uint8 {
	cpu.SP++
	return cpu.memory.Read(stackBase + uint16(cpu.SP))
}

func (cpu *CPU) pushWord(value uint16) {
	cpu.push(uint8(value >> 8))
	cpu.push(uint8(value & 0xFF))
}

func (cpu *CPU) popWord() uint16 {
	low := uint16(cpu.pop())
	high := uint16(cpu.pop())
	return (high << 8) | low
}

// setZN sets Zero and Negative flags based on value.
func (cpu *CPU) setZN(value uint8) {
	cpu.Z = value == 0
	cpu.N = (value & nFlagMask) != 0
}

func (cpu *CPU) handleNMI() {
	cpu.pushWord(cpu.PC)
	status := cpu.GetStatusByte() & (^uint8(bFlagMask))
	status |= unusedMask
	cpu.push(status)
	cpu.I = true
	low := uint16(cpu.memory.Read(nmiVector))
	high := uint16(cpu.memory.Read(nmiVector + 1))
	cpu.PC = (high << 8) | low
	cpu.cycles += 7
	logger.Infof("cpu: NMI -> $%04X", cpu.PC)
}

func (cpu *CPU) handleIRQ() {
	cpu.pushWord(cpu.PC)
	status := cpu.GetStatusByte() & (^uint8(bFlagMask))
	status |= unusedMask
	cpu.push(status)
	cpu.I = true
	low := uint16(cpu.memory.Read(irqVector))
	high := uint16(cpu.memory.Read(irqVector + 1))
	cpu.PC = (high << 8) | low
	cpu.cycles += 7
	logger.Infof("cpu: IRQ -> $%04X", cpu.PC)
}

// SetNMI sets the NMI line state for edge detection. NMI triggers on the
// falling edge (true -> false transition).
func (cpu *CPU) SetNMI(state bool) {
	if cpu.nmiPrevious && !state {
		cpu.nmiPending = true
	}
	cpu.nmiPrevious = state
}

// SetIRQ sets the level-triggered IRQ line state.
func (cpu *CPU) SetIRQ(state bool) {
	cpu.irqPending = state
}

// ProcessPendingInterrupts checks and services any pending interrupts. It is
// called after each instruction boundary, never mid-instruction.
func (cpu *CPU) ProcessPendingInterrupts() {
	if cpu.nmiPending {
		cpu.nmiPending = false
		cpu.handleNMI()
		return
	}
	if cpu.irqPending && !cpu.I {
		cpu.handleIRQ()
		return
	}
}

// TriggerNMI forces an NMI request, bypassing edge detection.
func (cpu *CPU) TriggerNMI() {
	cpu.nmiPending = true
}

// TriggerIRQ forces an IRQ request.
func (cpu *CPU) TriggerIRQ() {
	cpu.irqPending = true
}

// GetStatusByte returns the status register as a byte.
func (cpu *CPU) GetStatusByte() uint8 {
	var status uint8
	if cpu.N {
		status |= nFlagMask
	}
	if cpu.V {
		status |= vFlagMask
	}
	status |= unusedMask
	if cpu.B {
		status |= bFlagMask
	}
	if cpu.D {
		status |= dFlagMask
	}
	if cpu.I {
		status |= iFlagMask
	}
	if cpu.Z {
		status |= zFlagMask
	}
	if cpu.C {
		status |= cFlagMask
	}
	return status
}

// SetStatusByte sets the status register from a byte.
func (cpu *CPU) SetStatusByte(status uint8) {
	cpu.N = (status & nFlagMask) != 0
	cpu.V = (status & vFlagMask) != 0
	cpu.B = (status & bFlagMask) != 0
	cpu.D = (status & dFlagMask) != 0
	cpu.I = (status & iFlagMask) != 0
	cpu.Z = (status & zFlagMask) != 0
	cpu.C = (status & cFlagMask) != 0
}

// --- Documented instructions ---

func (cpu *CPU) lda(address uint16) uint8 {
	cpu.A = cpu.memory.Read(address)
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) ldx(address uint16) uint8 {
	cpu.X = cpu.memory.Read(address)
	cpu.setZN(cpu.X)
	return 0
}

func (cpu *CPU) ldy(address uint16) uint8 {
	cpu.Y = cpu.memory.Read(address)
	cpu.setZN(cpu.Y)
	return 0
}

func (cpu *CPU) sta(address uint16) uint8 {
	cpu.memory.Write(address, cpu.A)
	return 0
}

func (cpu *CPU) stx(address uint16) uint8 {
	cpu.memory.Write(address, cpu.X)
	return 0
}

func (cpu *CPU) sty(address uint16) uint8 {
	cpu.memory.Write(address, cpu.Y)
	return 0
}

func (cpu *CPU) adc(address uint16) uint8 {
	value := cpu.memory.Read(address)
	carry := uint8(0)
	if cpu.C {
		carry = 1
	}

	result := uint16(cpu.A) + uint16(value) + uint16(carry)

	cpu.V = ((cpu.A^uint8(result))&0x80) != 0 && ((cpu.A^value)&0x80) == 0

	cpu.C = result > 0xFF
	cpu.A = uint8(result)
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) sbc(address uint16) uint8 {
	value := cpu.memory.Read(address) ^ 0xFF
	carry := uint8(0)
	if cpu.C {
		carry = 1
	}

	result := uint16(cpu.A) + uint16(value) + uint16(carry)

	cpu.V = ((cpu.A^uint8(result))&0x80) != 0 && ((cpu.A^value)&0x80) == 0

	cpu.C = result > 0xFF
	cpu.A = uint8(result)
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) and(address uint16) uint8 {
	cpu.A &= cpu.memory.Read(address)
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) ora(address uint16) uint8 {
	cpu.A |= cpu.memory.Read(address)
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) eor(address uint16) uint8 {
	cpu.A ^= cpu.memory.Read(address)
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) asl(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.C = (value & 0x80) != 0
	value <<= 1
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) lsr(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.C = (value & 0x01) != 0
	value >>= 1
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) rol(address uint16) uint8 {
	value := cpu.memory.Read(address)
	oldCarry := cpu.C
	cpu.C = (value & 0x80) != 0
	value <<= 1
	if oldCarry {
		value |= 0x01
	}
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) ror(address uint16) uint8 {
	value := cpu.memory.Read(address)
	oldCarry := cpu.C
	cpu.C = (value & 0x01) != 0
	value >>= 1
	if oldCarry {
		value |= 0x80
	}
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) cmp(address uint16) uint8 {
	value := cpu.memory.Read(address)
	result := cpu.A - value
	cpu.C = cpu.A >= value
	cpu.setZN(result)
	return 0
}

func (cpu *CPU) cpx(address uint16) uint8 {
	value := cpu.memory.Read(address)
	result := cpu.X - value
	cpu.C = cpu.X >= value
	cpu.setZN(result)
	return 0
}

func (cpu *CPU) cpy(address uint16) uint8 {
	value := cpu.memory.Read(address)
	result := cpu.Y - value
	cpu.C = cpu.Y >= value
	cpu.setZN(result)
	return 0
}

func (cpu *CPU) inc(address uint16) uint8 {
	value := cpu.memory.Read(address) + 1
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) dec(address uint16) uint8 {
	value := cpu.memory.Read(address) - 1
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) inx(uint16) uint8 {
	cpu.X++
	cpu.setZN(cpu.X)
	return 0
}

func (cpu *CPU) dex(uint16) uint8 {
	cpu.X--
	cpu.setZN(cpu.X)
	return 0
}

func (cpu *CPU) iny(uint16) uint8 {
	cpu.Y++
	cpu.setZN(cpu.Y)
	return 0
}

func (cpu *CPU) dey(uint16) uint8 {
	cpu.Y--
	cpu.setZN(cpu.Y)
	return 0
}

func (cpu *CPU) tax(uint16) uint8 {
	cpu.X = cpu.A
	cpu.setZN(cpu.X)
	return 0
}

func (cpu *CPU) txa(uint16) uint8 {
	cpu.A = cpu.X
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) tay(uint16) uint8 {
	cpu.Y = cpu.A
	cpu.setZN(cpu.Y)
	return 0
}

func (cpu *CPU) tya(uint16) uint8 {
	cpu.A = cpu.Y
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) tsx(uint16) uint8 {
	cpu.X = cpu.SP
	cpu.setZN(cpu.X)
	return 0
}

func (cpu *CPU) txs(uint16) uint8 {
	cpu.SP = cpu.X
	return 0
}

func (cpu *CPU) pha(uint16) uint8 {
	cpu.push(cpu.A)
	return 0
}

func (cpu *CPU) pla(uint16) uint8 {
	cpu.A = cpu.pop()
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) php(uint16) uint8 {
	cpu.push(cpu.GetStatusByte() | bFlagMask)
	return 0
}

func (cpu *CPU) plp(uint16) uint8 {
	cpu.SetStatusByte(cpu.pop())
	return 0
}

func (cpu *CPU) clc(uint16) uint8 { cpu.C = false; return 0 }
func (cpu *CPU) sec(uint16) uint8 { cpu.C = true; return 0 }
func (cpu *CPU) cli(uint16) uint8 { cpu.I = false; return 0 }
func (cpu *CPU) sei(uint16) uint8 { cpu.I = true; return 0 }
func (cpu *CPU) clv(uint16) uint8 { cpu.V = false; return 0 }
func (cpu *CPU) cld(uint16) uint8 { cpu.D = false; return 0 }
func (cpu *CPU) sed(uint16) uint8 { cpu.D = true; return 0 }

func (cpu *CPU) jmp(address uint16) uint8 {
	cpu.PC = address
	return 0
}

func (cpu *CPU) jsr(address uint16) uint8 {
	cpu.pushWord(cpu.PC - 1)
	cpu.PC = address
	return 0
}

func (cpu *CPU) rts(uint16) uint8 {
	cpu.PC = cpu.popWord() + 1
	return 0
}

func (cpu *CPU) rti(uint16) uint8 {
	cpu.SetStatusByte(cpu.pop())
	cpu.PC = cpu.popWord()
	return 0
}

func (cpu *CPU) bcc(address uint16, pageCrossed bool) uint8 { return cpu.branch(!cpu.C, address, pageCrossed) }
func (cpu *CPU) bcs(address uint16, pageCrossed bool) uint8 { return cpu.branch(cpu.C, address, pageCrossed) }
func (cpu *CPU) bne(address uint16, pageCrossed bool) uint8 { return cpu.branch(!cpu.Z, address, pageCrossed) }
func (cpu *CPU) beq(address uint16, pageCrossed bool) uint8 { return cpu.branch(cpu.Z, address, pageCrossed) }
func (cpu *CPU) bpl(address uint16, pageCrossed bool) uint8 { return cpu.branch(!cpu.N, address, pageCrossed) }
func (cpu *CPU) bmi(address uint16, pageCrossed bool) uint8 { return cpu.branch(cpu.N, address, pageCrossed) }
func (cpu *CPU) bvc(address uint16, pageCrossed bool) uint8 { return cpu.branch(!cpu.V, address, pageCrossed) }
func (cpu *CPU) bvs(address uint16, pageCrossed bool) uint8 { return cpu.branch(cpu.V, address, pageCrossed) }

func (cpu *CPU) branch(taken bool, address uint16, pageCrossed bool) uint8 {
	if !taken {
		return 0
	}
	cpu.PC = address
	if pageCrossed {
		return 2
	}
	return 1
}

func (cpu *CPU) bit(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.N = (value & nFlagMask) != 0
	cpu.V = (value & vFlagMask) != 0
	cpu.Z = (cpu.A & value) == 0
	return 0
}

func (cpu *CPU) nop(uint16) uint8 { return 0 }

func (cpu *CPU) brk(uint16) uint8 {
	// BRK is nominally one byte, but it pushes PC+2: Implied-mode operand
	// evaluation already advanced PC by 1 for the opcode itself.
	cpu.PC++
	cpu.pushWord(cpu.PC)

	cpu.push(cpu.GetStatusByte() | bFlagMask)
	cpu.I = true

	low := uint16(cpu.memory.Read(irqVector))
	high := uint16(cpu.memory.Read(irqVector + 1))
	cpu.PC = (high << 8) | low
	return 0
}

// jam parks the CPU. PC is left pointing at the JAM opcode; only Reset
// clears it.
func (cpu *CPU) jam(uint16) uint8 {
	cpu.PC--
	cpu.halted = true
	logger.Warnf("cpu: JAM at $%04X, CPU halted", cpu.PC)
	return 0
}

// --- Unofficial/undocumented instructions ---

func (cpu *CPU) lax(address uint16) uint8 {
	cpu.A = cpu.memory.Read(address)
	cpu.X = cpu.A
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) sax(address uint16) uint8 {
	cpu.memory.Write(address, cpu.A&cpu.X)
	return 0
}

func (cpu *CPU) dcp(address uint16) uint8 {
	value := cpu.memory.Read(address) - 1
	cpu.memory.Write(address, value)
	result := cpu.A - value
	cpu.C = cpu.A >= value
	cpu.setZN(result)
	return 0
}

func (cpu *CPU) isb(address uint16) uint8 {
	value := cpu.memory.Read(address) + 1
	cpu.memory.Write(address, value)
	cpu.sbc(address)
	return 0
}

func (cpu *CPU) slo(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.C = (value & 0x80) != 0
	value <<= 1
	cpu.memory.Write(address, value)
	cpu.A |= value
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) rla(address uint16) uint8 {
	value := cpu.memory.Read(address)
	oldCarry := cpu.C
	cpu.C = (value & 0x80) != 0
	value <<= 1
	if oldCarry {
		value |= 0x01
	}
	cpu.memory.Write(address, value)
	cpu.A &= value
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) sre(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.C = (value & 0x01) != 0
	value >>= 1
	cpu.memory.Write(address, value)
	cpu.A ^= value
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) rra(address uint16) uint8 {
	value := cpu.memory.Read(address)
	oldCarry := cpu.C
	cpu.C = (value & 0x01) != 0
	value >>= 1
	if oldCarry {
		value |= 0x80
	}
	cpu.memory.Write(address, value)
	cpu.adc(address)
	return 0
}

// anc: AND immediate, then copies the resulting sign bit into carry (used
// by some copy-protection checks to fake a comparison against $FF/$80).
func (cpu *CPU) anc(address uint16) uint8 {
	cpu.A &= cpu.memory.Read(address)
	cpu.setZN(cpu.A)
	cpu.C = cpu.N
	return 0
}

// alr: AND immediate then LSR A.
func (cpu *CPU) alr(address uint16) uint8 {
	cpu.A &= cpu.memory.Read(address)
	cpu.C = (cpu.A & 0x01) != 0
	cpu.A >>= 1
	cpu.setZN(cpu.A)
	return 0
}

// arr: AND immediate then ROR A, with carry/overflow derived from the
// rotated result's top two bits rather than the usual ROR carry-out.
func (cpu *CPU) arr(address uint16) uint8 {
	cpu.A &= cpu.memory.Read(address)
	oldCarry := cpu.C
	cpu.A >>= 1
	if oldCarry {
		cpu.A |= 0x80
	}
	cpu.setZN(cpu.A)
	cpu.C = (cpu.A & 0x40) != 0
	cpu.V = ((cpu.A>>6)^(cpu.A>>5))&0x01 != 0
	return 0
}

// lxa: unstable opcode that ORs A with a magic constant, then ANDs the
// result with the immediate operand and loads it into both A and X. Real hardware's magic constant
// varies by chip; 0xFF (i.e. no effect from the prior A value) is the
// commonly assumed value and is what most software relies on.
func (cpu *CPU) lxa(address uint16) uint8 {
	const magic = 0xFF
	cpu.A = (cpu.A | magic) & cpu.memory.Read(address)
	cpu.X = cpu.A
	cpu.setZN(cpu.A)
	return 0
}

// sbx: X = (A & X) - immediate, without borrow-in. Sets N, Z, C from the
// subtraction; V is NOT affected (matching documented reference behavior,
// not the naive "borrow sets V" implementation some sources use).
func (cpu *CPU) sbx(address uint16) uint8 {
	value := cpu.memory.Read(address)
	and := cpu.A & cpu.X
	result := and - value
	cpu.C = and >= value
	cpu.X = result
	cpu.setZN(cpu.X)
	return 0
}

// lae (LAS): ANDs the fetched byte with SP, then loads A, X, and SP from
// the result.
func (cpu *CPU) lae(address uint16) uint8 {
	value := cpu.memory.Read(address) & cpu.SP
	cpu.A = value
	cpu.X = value
	cpu.SP = value
	cpu.setZN(value)
	return 0
}

// ane (XAA): unstable opcode, A = (A | magic) & X & immediate.
func (cpu *CPU) ane(address uint16) uint8 {
	const magic = 0xFF
	cpu.A = (cpu.A | magic) & cpu.X & cpu.memory.Read(address)
	cpu.setZN(cpu.A)
	return 0
}

// highPlusOne approximates the unstable SHA/SHX/SHY/TAS "AND high byte + 1"
// behavior using the already-indexed effective address.
func highPlusOne(address uint16) uint8 {
	return uint8(address>>8) + 1
}

func (cpu *CPU) sha(address uint16) uint8 {
	cpu.memory.Write(address, cpu.A&cpu.X&highPlusOne(address))
	return 0
}

func (cpu *CPU) shx(address uint16) uint8 {
	cpu.memory.Write(address, cpu.X&highPlusOne(address))
	return 0
}

func (cpu *CPU) shy(address uint16) uint8 {
	cpu.memory.Write(address, cpu.Y&highPlusOne(address))
	return 0
}

func (cpu *CPU) tas(address uint16) uint8 {
	cpu.SP = cpu.A & cpu.X
	cpu.memory.Write(address, cpu.SP&highPlusOne(address))
	return 0
}

// executeInstruction executes the given opcode with the provided address.
// Returns extra cycles taken beyond the base instruction cycle count.
func (cpu *CPU) executeInstruction(opcode uint8, address uint16, pageCrossed bool) uint8 {
	switch opcode {
	case 0xA9, 0xA5, 0xB5, 0xAD, 0xBD, 0xB9, 0xA1, 0xB1:
		return cpu.lda(address)
	case 0xA2, 0xA6, 0xB6, 0xAE, 0xBE:
		return cpu.ldx(address)
	case 0xA0, 0xA4, 0xB4, 0xAC, 0xBC:
		return cpu.ldy(address)
	case 0x85, 0x95, 0x8D, 0x9D, 0x99, 0x81, 0x91:
		return cpu.sta(address)
	case 0x86, 0x96, 0x8E:
		return cpu.stx(address)
	case 0x84, 0x94, 0x8C:
		return cpu.sty(address)

	case 0x69, 0x65, 0x75, 0x6D, 0x7D, 0x79, 0x61, 0x71:
		return cpu.adc(address)
	case 0xE9, 0xEB, 0xE5, 0xF5, 0xED, 0xFD, 0xF9, 0xE1, 0xF1:
		return cpu.sbc(address)

	case 0x29, 0x25, 0x35, 0x2D, 0x3D, 0x39, 0x21, 0x31:
		return cpu.and(address)
	case 0x09, 0x05, 0x15, 0x0D, 0x1D, 0x19, 0x01, 0x11:
		return cpu.ora(address)
	case 0x49, 0x45, 0x55, 0x4D, 0x5D, 0x59, 0x41, 0x51:
		return cpu.eor(address)

	case 0x0A:
		cpu.C = (cpu.A & 0x80) != 0
		cpu.A <<= 1
		cpu.setZN(cpu.A)
		return 0
	case 0x06, 0x16, 0x0E, 0x1E:
		return cpu.asl(address)
	case 0x4A:
		cpu.C = (cpu.A & 0x01) != 0
		cpu.A >>= 1
		cpu.setZN(cpu.A)
		return 0
	case 0x46, 0x56, 0x4E, 0x5E:
		return cpu.lsr(address)
	case 0x2A:
		oldCarry := cpu.C
		cpu.C = (cpu.A & 0x80) != 0
		cpu.A <<= 1
		if oldCarry {
			cpu.A |= 0x01
		}
		cpu.setZN(cpu.A)
		return 0
	case 0x26, 0x36, 0x2E, 0x3E:
		return cpu.rol(address)
	case 0x6A:
		oldCarry := cpu.C
		cpu.C = (cpu.A & 0x01) != 0
		cpu.A >>= 1
		if oldCarry {
			cpu.A |= 0x80
		}
		cpu.setZN(cpu.A)
		return 0
	case 0x66, 0x76, 0x6E, 0x7E:
		return cpu.ror(address)

	case 0xC9, 0xC5, 0xD5, 0xCD, 0xDD, 0xD9, 0xC1, 0xD1:
		return cpu.cmp(address)
	case 0xE0, 0xE4, 0xEC:
		return cpu.cpx(address)
	case 0xC0, 0xC4, 0xCC:
		return cpu.cpy(address)

	case 0xE6, 0xF6, 0xEE, 0xFE:
		return cpu.inc(address)
	case 0xC6, 0xD6, 0xCE, 0xDE:
		return cpu.dec(address)
	case 0xE8:
		return cpu.inx(address)
	case 0xCA:
		return cpu.dex(address)
	case 0xC8:
		return cpu.iny(address)
	case 0x88:
		return cpu.dey(address)

	case 0xAA:
		return cpu.tax(address)
	case 0x8A:
		return cpu.txa(address)
	case 0xA8:
		return cpu.tay(address)
	case 0x98:
		return cpu.tya(address)
	case 0xBA:
		return cpu.tsx(address)
	case 0x9A:
		return cpu.txs(address)

	case 0x48:
		return cpu.pha(address)
	case 0x68:
		return cpu.pla(address)
	case 0x08:
		return cpu.php(address)
	case 0x28:
		return cpu.plp(address)

	case 0x18:
		return cpu.clc(address)
	case 0x38:
		return cpu.sec(address)
	case 0x58:
		return cpu.cli(address)
	case 0x78:
		return cpu.sei(address)
	case 0xB8:
		return cpu.clv(address)
	case 0xD8:
		return cpu.cld(address)
	case 0xF8:
		return cpu.sed(address)

	case 0x4C, 0x6C:
		return cpu.jmp(address)
	case 0x20:
		return cpu.jsr(address)
	case 0x60:
		return cpu.rts(address)
	case 0x40:
		return cpu.rti(address)

	case 0x90:
		return cpu.bcc(address, pageCrossed)
	case 0xB0:
		return cpu.bcs(address, pageCrossed)
	case 0xD0:
		return cpu.bne(address, pageCrossed)
	case 0xF0:
		return cpu.beq(address, pageCrossed)
	case 0x10:
		return cpu.bpl(address, pageCrossed)
	case 0x30:
		return cpu.bmi(address, pageCrossed)
	case 0x50:
		return cpu.bvc(address, pageCrossed)
	case 0x70:
		return cpu.bvs(address, pageCrossed)

	case 0x24, 0x2C:
		return cpu.bit(address)
	case 0x00:
		return cpu.brk(address)

	// Unofficial NOPs
	case 0xEA, 0x1A, 0x3A, 0x5A, 0x7A, 0xDA, 0xFA, 0x80, 0x82, 0x89, 0xC2, 0xE2, 0x04, 0x44, 0x64, 0x14, 0x34, 0x54, 0x74, 0xD4, 0xF4, 0x0C, 0x1C, 0x3C, 0x5C, 0x7C, 0xDC, 0xFC:
		return cpu.nop(address)

	case 0xA3, 0xA7, 0xAF, 0xB3, 0xB7, 0xBF:
		return cpu.lax(address)
	case 0x83, 0x87, 0x8F, 0x97:
		return cpu.sax(address)
	case 0xC3, 0xC7, 0xCF, 0xD3, 0xD7, 0xDF, 0xDB:
		return cpu.dcp(address)
	case 0xE3, 0xE7, 0xEF, 0xF3, 0xF7, 0xFF, 0xFB:
		return cpu.isb(address)
	case 0x03, 0x07, 0x0F, 0x13, 0x17, 0x1F, 0x1B:
		return cpu.slo(address)
	case 0x23, 0x27, 0x2F, 0x33, 0x37, 0x3F, 0x3B:
		return cpu.rla(address)
	case 0x43, 0x47, 0x4F, 0x53, 0x57, 0x5F, 0x5B:
		return cpu.sre(address)
	case 0x63, 0x67, 0x6F, 0x73, 0x77, 0x7F, 0x7B:
		return cpu.rra(address)

	case 0x0B, 0x2B:
		return cpu.anc(address)
	case 0x4B:
		return cpu.alr(address)
	case 0x6B:
		return cpu.arr(address)
	case 0xAB:
		return cpu.lxa(address)
	case 0xCB:
		return cpu.sbx(address)
	case 0xBB:
		return cpu.lae(address)
	case 0x8B:
		return cpu.ane(address)
	case 0x93, 0x9F:
		return cpu.sha(address)
	case 0x9E:
		return cpu.shx(address)
	case 0x9C:
		return cpu.shy(address)
	case 0x9B:
		return cpu.tas(address)

	case 0x02, 0x12, 0x22, 0x32, 0x42, 0x52, 0x62, 0x72, 0x92, 0xB2, 0xD2, 0xF2:
		return cpu.jam(address)

	default:
		logger.Errorf("cpu: unreachable opcode dispatch for 0x%02X", opcode)
		panic("cpu: unreachable opcode dispatch")
	}
}

// initInstructions populates the instruction lookup table with all
// documented and undocumented 6502 opcodes reachable from commercial NES
// software.
func (cpu *CPU) initInstructions() {
	for i := range cpu.instructions {
		cpu.instructions[i] = nil
	}

	add := func(opcode uint8, name string, bytes, cycles uint8, mode AddressingMode) {
		cpu.instructions[opcode] = &Instruction{name, opcode, bytes, cycles, mode}
	}

	// Load/Store
	add(0xA9, "LDA", 2, 2, Immediate)
	add(0xA5, "LDA", 2, 3, ZeroPage)
	add(0xB5, "LDA", 2, 4, ZeroPageX)
	add(0xAD, "LDA", 3, 4, Absolute)
	add(0xBD, "LDA", 3, 4, AbsoluteX)
	add(0xB9, "LDA", 3, 4, AbsoluteY)
	add(0xA1, "LDA", 2, 6, IndexedIndirect)
	add(0xB1, "LDA", 2, 5, IndirectIndexed)

	add(0xA2, "LDX", 2, 2, Immediate)
	add(0xA6, "LDX", 2, 3, ZeroPage)
	add(0xB6, "LDX", 2, 4, ZeroPageY)
	add(0xAE, "LDX", 3, 4, Absolute)
	add(0xBE, "LDX", 3, 4, AbsoluteY)

	add(0xA0, "LDY", 2, 2, Immediate)
	add(0xA4, "LDY", 2, 3, ZeroPage)
	add(0xB4, "LDY", 2, 4, ZeroPageX)
	add(0xAC, "LDY", 3, 4, Absolute)
	add(0xBC, "LDY", 3, 4, AbsoluteX)

	add(0x85, "STA", 2, 3, ZeroPage)
	add(0x95, "STA", 2, 4, ZeroPageX)
	add(0x8D, "STA", 3, 4, Absolute)
	add(0x9D, "STA", 3, 5, AbsoluteX)
	add(0x99, "STA", 3, 5, AbsoluteY)
	add(0x81, "STA", 2, 6, IndexedIndirect)
	add(0x91, "STA", 2, 6, IndirectIndexed)

	add(0x86, "STX", 2, 3, ZeroPage)
	add(0x96, "STX", 2, 4, ZeroPageY)
	add(0x8E, "STX", 3, 4, Absolute)

	add(0x84, "STY", 2, 3, ZeroPage)
	add(0x94, "STY", 2, 4, ZeroPageX)
	add(0x8C, "STY", 3, 4, Absolute)

	// Arithmetic
	add(0x69, "ADC", 2, 2, Immediate)
	add(0x65, "ADC", 2, 3, ZeroPage)
	add(0x75, "ADC", 2, 4, ZeroPageX)
	add(0x6D, "ADC", 3, 4, Absolute)
	add(0x7D, "ADC", 3, 4, AbsoluteX)
	add(0x79, "ADC", 3, 4, AbsoluteY)
	add(0x61, "ADC", 2, 6, IndexedIndirect)
	add(0x71, "ADC", 2, 5, IndirectIndexed)

	add(0xE9, "SBC", 2, 2, Immediate)
	add(0xE5, "SBC", 2, 3, ZeroPage)
	add(0xF5, "SBC", 2, 4, ZeroPageX)
	add(0xED, "SBC", 3, 4, Absolute)
	add(0xFD, "SBC", 3, 4, AbsoluteX)
	add(0xF9, "SBC", 3, 4, AbsoluteY)
	add(0xE1, "SBC", 2, 6, IndexedIndirect)
	add(0xF1, "SBC", 2, 5, IndirectIndexed)

	// Logical
	add(0x29, "AND", 2, 2, Immediate)
	add(0x25, "AND", 2, 3, ZeroPage)
	add(0x35, "AND", 2, 4, ZeroPageX)
	add(0x2D, "AND", 3, 4, Absolute)
	add(0x3D, "AND", 3, 4, AbsoluteX)
	add(0x39, "AND", 3, 4, AbsoluteY)
	add(0x21, "AND", 2, 6, IndexedIndirect)
	add(0x31, "AND", 2, 5, IndirectIndexed)

	add(0x09, "ORA", 2, 2, Immediate)
	add(0x05, "ORA", 2, 3, ZeroPage)
	add(0x15, "ORA", 2, 4, ZeroPageX)
	add(0x0D, "ORA", 3, 4, Absolute)
	add(0x1D, "ORA", 3, 4, AbsoluteX)
	add(0x19, "ORA", 3, 4, AbsoluteY)
	add(0x01, "ORA", 2, 6, IndexedIndirect)
	add(0x11, "ORA", 2, 5, IndirectIndexed)

	add(0x49, "EOR", 2, 2, Immediate)
	add(0x45, "EOR", 2, 3, ZeroPage)
	add(0x55, "EOR", 2, 4, ZeroPageX)
	add(0x4D, "EOR", 3, 4, Absolute)
	add(0x5D, "EOR", 3, 4, AbsoluteX)
	add(0x59, "EOR", 3, 4, AbsoluteY)
	add(0x41, "EOR", 2, 6, IndexedIndirect)
	add(0x51, "EOR", 2, 5, IndirectIndexed)

	// Shift/Rotate
	add(0x0A, "ASL", 1, 2, Accumulator)
	add(0x06, "ASL", 2, 5, ZeroPage)
	add(0x16, "ASL", 2, 6, ZeroPageX)
	add(0x0E, "ASL", 3, 6, Absolute)
	add(0x1E, "ASL", 3, 7, AbsoluteX)

	add(0x4A, "LSR", 1, 2, Accumulator)
	add(0x46, "LSR", 2, 5, ZeroPage)
	add(0x56, "LSR", 2, 6, ZeroPageX)
	add(0x4E, "LSR", 3, 6, Absolute)
	add(0x5E, "LSR", 3, 7, AbsoluteX)

	add(0x2A, "ROL", 1, 2, Accumulator)
	add(0x26, "ROL", 2, 5, ZeroPage)
	add(0x36, "ROL", 2, 6, ZeroPageX)
	add(0x2E, "ROL", 3, 6, Absolute)
	add(0x3E, "ROL", 3, 7, AbsoluteX)

	add(0x6A, "ROR", 1, 2, Accumulator)
	add(0x66, "ROR", 2, 5, ZeroPage)
	add(0x76, "ROR", 2, 6, ZeroPageX)
	add(0x6E, "ROR", 3, 6, Absolute)
	add(0x7E, "ROR", 3, 7, AbsoluteX)

	// Comparison
	add(0xC9, "CMP", 2, 2, Immediate)
	add(0xC5, "CMP", 2, 3, ZeroPage)
	add(0xD5, "CMP", 2, 4, ZeroPageX)
	add(0xCD, "CMP", 3, 4, Absolute)
	add(0xDD, "CMP", 3, 4, AbsoluteX)
	add(0xD9, "CMP", 3, 4, AbsoluteY)
	add(0xC1, "CMP", 2, 6, IndexedIndirect)
	add(0xD1, "CMP", 2, 5, IndirectIndexed)

	add(0xE0, "CPX", 2, 2, Immediate)
	add(0xE4, "CPX", 2, 3, ZeroPage)
	add(0xEC, "CPX", 3, 4, Absolute)

	add(0xC0, "CPY", 2, 2, Immediate)
	add(0xC4, "CPY", 2, 3, ZeroPage)
	add(0xCC, "CPY", 3, 4, Absolute)

	// Increment/Decrement
	add(0xE6, "INC", 2, 5, ZeroPage)
	add(0xF6, "INC", 2, 6, ZeroPageX)
	add(0xEE, "INC", 3, 6, Absolute)
	add(0xFE, "INC", 3, 7, AbsoluteX)

	add(0xC6, "DEC", 2, 5, ZeroPage)
	add(0xD6, "DEC", 2, 6, ZeroPageX)
	add(0xCE, "DEC", 3, 6, Absolute)
	add(0xDE, "DEC", 3, 7, AbsoluteX)

	add(0xE8, "INX", 1, 2, Implied)
	add(0xCA, "DEX", 1, 2, Implied)
	add(0xC8, "INY", 1, 2, Implied)
	add(0x88, "DEY", 1, 2, Implied)

	// Transfer
	add(0xAA, "TAX", 1, 2, Implied)
	add(0x8A, "TXA", 1, 2, Implied)
	add(0xA8, "TAY", 1, 2, Implied)
	add(0x98, "TYA", 1, 2, Implied)
	add(0xBA, "TSX", 1, 2, Implied)
	add(0x9A, "TXS", 1, 2, Implied)

	// Stack
	add(0x48, "PHA", 1, 3, Implied)
	add(0x68, "PLA", 1, 4, Implied)
	add(0x08, "PHP", 1, 3, Implied)
	add(0x28, "PLP", 1, 4, Implied)

	// Flags
	add(0x18, "CLC", 1, 2, Implied)
	add(0x38, "SEC", 1, 2, Implied)
	add(0x58, "CLI", 1, 2, Implied)
	add(0x78, "SEI", 1, 2, Implied)
	add(0xB8, "CLV", 1, 2, Implied)
	add(0xD8, "CLD", 1, 2, Implied)
	add(0xF8, "SED", 1, 2, Implied)

	// Control flow
	add(0x4C, "JMP", 3, 3, Absolute)
	add(0x6C, "JMP", 3, 5, Indirect)
	add(0x20, "JSR", 3, 6, Absolute)
	add(0x60, "RTS", 1, 6, Implied)
	add(0x40, "RTI", 1, 6, Implied)

	// Branches
	add(0x90, "BCC", 2, 2, Relative)
	add(0xB0, "BCS", 2, 2, Relative)
	add(0xD0, "BNE", 2, 2, Relative)
	add(0xF0, "BEQ", 2, 2, Relative)
	add(0x10, "BPL", 2, 2, Relative)
	add(0x30, "BMI", 2, 2, Relative)
	add(0x50, "BVC", 2, 2, Relative)
	add(0x70, "BVS", 2, 2, Relative)

	// Misc
	add(0x24, "BIT", 2, 3, ZeroPage)
	add(0x2C, "BIT", 3, 4, Absolute)
	add(0xEA, "NOP", 1, 2, Implied)
	add(0x00, "BRK", 1, 7, Implied)

	// Unofficial NOPs
	for _, op := range []uint8{0x1A, 0x3A, 0x5A, 0x7A, 0xDA, 0xFA} {
		add(op, "NOP", 1, 2, Implied)
	}
	for _, op := range []uint8{0x80, 0x82, 0x89, 0xC2, 0xE2} {
		add(op, "NOP", 2, 2, Immediate)
	}
	for _, op := range []uint8{0x04, 0x44, 0x64} {
		add(op, "NOP", 2, 3, ZeroPage)
	}
	for _, op := range []uint8{0x14, 0x34, 0x54, 0x74, 0xD4, 0xF4} {
		add(op, "NOP", 2, 4, ZeroPageX)
	}
	add(0x0C, "NOP", 3, 4, Absolute)
	for _, op := range []uint8{0x1C, 0x3C, 0x5C, 0x7C, 0xDC, 0xFC} {
		add(op, "NOP", 3, 4, AbsoluteX)
	}

	// Unofficial opcodes
	add(0xA7, "LAX", 2, 3, ZeroPage)
	add(0xB7, "LAX", 2, 4, ZeroPageY)
	add(0xAF, "LAX", 3, 4, Absolute)
	add(0xBF, "LAX", 3, 4, AbsoluteY)
	add(0xA3, "LAX", 2, 6, IndexedIndirect)
	add(0xB3, "LAX", 2, 5, IndirectIndexed)

	add(0x87, "SAX", 2, 3, ZeroPage)
	add(0x97, "SAX", 2, 4, ZeroPageY)
	add(0x8F, "SAX", 3, 4, Absolute)
	add(0x83, "SAX", 2, 6, IndexedIndirect)

	add(0xEB, "SBC", 2, 2, Immediate)

	add(0xC7, "DCP", 2, 5, ZeroPage)
	add(0xD7, "DCP", 2, 6, ZeroPageX)
	add(0xCF, "DCP", 3, 6, Absolute)
	add(0xDF, "DCP", 3, 7, AbsoluteX)
	add(0xDB, "DCP", 3, 7, AbsoluteY)
	add(0xC3, "DCP", 2, 8, IndexedIndirect)
	add(0xD3, "DCP", 2, 8, IndirectIndexed)

	add(0xE7, "ISB", 2, 5, ZeroPage)
	add(0xF7, "ISB", 2, 6, ZeroPageX)
	add(0xEF, "ISB", 3, 6, Absolute)
	add(0xFF, "ISB", 3, 7, AbsoluteX)
	add(0xFB, "ISB", 3, 7, AbsoluteY)
	add(0xE3, "ISB", 2, 8, IndexedIndirect)
	add(0xF3, "ISB", 2, 8, IndirectIndexed)

	add(0x07, "SLO", 2, 5, ZeroPage)
	add(0x17, "SLO", 2, 6, ZeroPageX)
	add(0x0F, "SLO", 3, 6, Absolute)
	add(0x1F, "SLO", 3, 7, AbsoluteX)
	add(0x1B, "SLO", 3, 7, AbsoluteY)
	add(0x03, "SLO", 2, 8, IndexedIndirect)
	add(0x13, "SLO", 2, 8, IndirectIndexed)

	add(0x27, "RLA", 2, 5, ZeroPage)
	add(0x37, "RLA", 2, 6, ZeroPageX)
	add(0x2F, "RLA", 3, 6, Absolute)
	add(0x3F, "RLA", 3, 7, AbsoluteX)
	add(0x3B, "RLA", 3, 7, AbsoluteY)
	add(0x23, "RLA", 2, 8, IndexedIndirect)
	add(0x33, "RLA", 2, 8, IndirectIndexed)

	add(0x47, "SRE", 2, 5, ZeroPage)
	add(0x57, "SRE", 2, 6, ZeroPageX)
	add(0x4F, "SRE", 3, 6, Absolute)
	add(0x5F, "SRE", 3, 7, AbsoluteX)
	add(0x5B, "SRE", 3, 7, AbsoluteY)
	add(0x43, "SRE", 2, 8, IndexedIndirect)
	add(0x53, "SRE", 2, 8, IndirectIndexed)

	add(0x67, "RRA", 2, 5, ZeroPage)
	add(0x77, "RRA", 2, 6, ZeroPageX)
	add(0x6F, "RRA", 3, 6, Absolute)
	add(0x7F, "RRA", 3, 7, AbsoluteX)
	add(0x7B, "RRA", 3, 7, AbsoluteY)
	add(0x63, "RRA", 2, 8, IndexedIndirect)
	add(0x73, "RRA", 2, 8, IndirectIndexed)

	// Unstable/rare undocumented opcodes
	add(0x0B, "ANC", 2, 2, Immediate)
	add(0x2B, "ANC", 2, 2, Immediate)
	add(0x4B, "ALR", 2, 2, Immediate)
	add(0x6B, "ARR", 2, 2, Immediate)
	add(0xAB, "LXA", 2, 2, Immediate)
	add(0xCB, "SBX", 2, 2, Immediate)
	add(0xBB, "LAE", 3, 4, AbsoluteY)
	add(0x8B, "ANE", 2, 2, Immediate)
	add(0x93, "SHA", 2, 6, IndirectIndexed)
	add(0x9F, "SHA", 3, 5, AbsoluteY)
	add(0x9E, "SHX", 3, 5, AbsoluteY)
	add(0x9C, "SHY", 3, 5, AbsoluteX)
	add(0x9B, "TAS", 3, 5, AbsoluteY)

	// Halts
	for _, op := range []uint8{0x02, 0x12, 0x22, 0x32, 0x42, 0x52, 0x62, 0x72, 0x92, 0xB2, 0xD2, 0xF2} {
		add(op, "JAM", 1, 2, Implied)
	}
}
