package rvsim

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	// DataBase is where the data image is loaded.
	DataBase uint32 = 0x00010000
	// TextBase is the address of the first instruction. Text is not
	// backed by memory; code addresses only exist in ra and jump targets.
	TextBase uint32 = 0x80000000
	// DefaultMemSize covers data, heap-free program space and the stack.
	DefaultMemSize = 16 << 20

	haltAddr uint32 = 0
)

// Fault is a runtime error raised by the simulated program.
type Fault struct {
	Line int // assembly line of the faulting instruction
	PC   uint32
	Msg  string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at pc 0x%08x (line %d): %s", f.PC, f.Line, f.Msg)
}

// Machine executes an assembled program.
type Machine struct {
	prog *Program
	regs [32]int32
	mem  []byte
	pc   int

	in  *bufio.Reader
	out *bufio.Writer

	// MaxSteps bounds execution; zero means unlimited.
	MaxSteps int64
	Steps    int64
	// Timers holds one entry per starttime/stoptime pair.
	Timers     []time.Duration
	timerStart time.Time
	// Stderr receives timer lines; nil discards them.
	Stderr io.Writer
}

func NewMachine(prog *Program, in io.Reader, out io.Writer) *Machine {
	m := &Machine{
		prog: prog,
		mem:  make([]byte, DefaultMemSize),
		in:   bufio.NewReader(in),
		out:  bufio.NewWriter(out),
	}
	copy(m.mem[DataBase:], prog.Data)
	return m
}

func codeAddr(idx int) uint32 { return TextBase + uint32(idx)*4 }

func (m *Machine) fault(format string, args ...interface{}) *Fault {
	f := &Fault{PC: codeAddr(m.pc), Msg: fmt.Sprintf(format, args...)}
	if m.pc >= 0 && m.pc < len(m.prog.Text) {
		f.Line = m.prog.Text[m.pc].Line
	}
	return f
}

func (m *Machine) set(rd int, v int32) {
	if rd != 0 {
		m.regs[rd] = v
	}
}

// Reg returns the value of register x<n>.
func (m *Machine) Reg(n int) int32 { return m.regs[n] }

func (m *Machine) checkAddr(addr uint32) error {
	if addr < DataBase || uint64(addr)+4 > uint64(len(m.mem)) {
		return m.fault("access to unmapped address 0x%08x", addr)
	}
	if addr%4 != 0 {
		return m.fault("misaligned word access at 0x%08x", addr)
	}
	return nil
}

func (m *Machine) LoadWord(addr uint32) (int32, error) {
	if err := m.checkAddr(addr); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(m.mem[addr:])), nil
}

func (m *Machine) StoreWord(addr uint32, v int32) error {
	if err := m.checkAddr(addr); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.mem[addr:], uint32(v))
	return nil
}

// jumpTo converts a code address back to an instruction index.
func (m *Machine) jumpTo(addr uint32) error {
	if addr < TextBase || (addr-TextBase)%4 != 0 || int((addr-TextBase)/4) >= len(m.prog.Text) {
		return m.fault("jump to invalid code address 0x%08x", addr)
	}
	m.pc = int((addr - TextBase) / 4)
	return nil
}

// Run calls main and returns its result once it returns. The context is
// polled periodically so long-running programs can be cancelled.
func (m *Machine) Run(ctx context.Context) (int32, error) {
	defer m.out.Flush()

	entry, ok := m.prog.Labels["main"]
	if !ok {
		return 0, &Fault{Msg: "no 'main' label in program"}
	}
	m.pc = entry
	m.regs[1] = int32(haltAddr)
	m.regs[2] = int32(uint32(len(m.mem)) &^ 15)

	for {
		if m.MaxSteps > 0 && m.Steps >= m.MaxSteps {
			return 0, m.fault("step limit of %d exceeded", m.MaxSteps)
		}
		if m.Steps&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if m.pc < 0 || m.pc >= len(m.prog.Text) {
			return 0, m.fault("execution ran off the end of the text section")
		}
		m.Steps++
		halted, err := m.step(&m.prog.Text[m.pc])
		if err != nil {
			return 0, err
		}
		if halted {
			return m.regs[10], nil
		}
	}
}

func (m *Machine) step(in *Inst) (halted bool, err error) {
	rs1, rs2 := m.regs[in.Rs1], m.regs[in.Rs2]
	next := m.pc + 1

	switch in.Op {
	case opAdd:
		m.set(in.Rd, rs1+rs2)
	case opSub:
		m.set(in.Rd, rs1-rs2)
	case opMul:
		m.set(in.Rd, rs1*rs2)
	case opDiv:
		m.set(in.Rd, div(rs1, rs2))
	case opDivu:
		if rs2 == 0 {
			m.set(in.Rd, -1)
		} else {
			m.set(in.Rd, int32(uint32(rs1)/uint32(rs2)))
		}
	case opRem:
		m.set(in.Rd, rem(rs1, rs2))
	case opRemu:
		if rs2 == 0 {
			m.set(in.Rd, rs1)
		} else {
			m.set(in.Rd, int32(uint32(rs1)%uint32(rs2)))
		}
	case opAnd:
		m.set(in.Rd, rs1&rs2)
	case opOr:
		m.set(in.Rd, rs1|rs2)
	case opXor:
		m.set(in.Rd, rs1^rs2)
	case opSll:
		m.set(in.Rd, rs1<<(uint32(rs2)&31))
	case opSrl:
		m.set(in.Rd, int32(uint32(rs1)>>(uint32(rs2)&31)))
	case opSra:
		m.set(in.Rd, rs1>>(uint32(rs2)&31))
	case opSlt:
		m.set(in.Rd, b2i(rs1 < rs2))
	case opSltu:
		m.set(in.Rd, b2i(uint32(rs1) < uint32(rs2)))
	case opSgt:
		m.set(in.Rd, b2i(rs1 > rs2))
	case opAddi:
		m.set(in.Rd, rs1+in.Imm)
	case opAndi:
		m.set(in.Rd, rs1&in.Imm)
	case opOri:
		m.set(in.Rd, rs1|in.Imm)
	case opXori:
		m.set(in.Rd, rs1^in.Imm)
	case opSlli:
		m.set(in.Rd, rs1<<(uint32(in.Imm)&31))
	case opSrli:
		m.set(in.Rd, int32(uint32(rs1)>>(uint32(in.Imm)&31)))
	case opSrai:
		m.set(in.Rd, rs1>>(uint32(in.Imm)&31))
	case opSlti:
		m.set(in.Rd, b2i(rs1 < in.Imm))
	case opSltiu:
		m.set(in.Rd, b2i(uint32(rs1) < uint32(in.Imm)))
	case opLi:
		m.set(in.Rd, in.Imm)
	case opLui:
		m.set(in.Rd, in.Imm<<12)
	case opLa:
		if addr, ok := m.prog.Symbols[in.Symbol]; ok {
			m.set(in.Rd, int32(addr))
		} else {
			m.set(in.Rd, int32(codeAddr(m.prog.Labels[in.Symbol])))
		}
	case opMv:
		m.set(in.Rd, rs1)
	case opNeg:
		m.set(in.Rd, -rs1)
	case opNot:
		m.set(in.Rd, ^rs1)
	case opSeqz:
		m.set(in.Rd, b2i(rs1 == 0))
	case opSnez:
		m.set(in.Rd, b2i(rs1 != 0))
	case opLw:
		v, err := m.LoadWord(uint32(rs1 + in.Imm))
		if err != nil {
			return false, err
		}
		m.set(in.Rd, v)
	case opSw:
		if err := m.StoreWord(uint32(rs1+in.Imm), m.regs[in.Rd]); err != nil {
			return false, err
		}
	case opBeq, opBne, opBlt, opBge, opBltu, opBgeu, opBgt, opBle, opBeqz, opBnez:
		if branchTaken(in.Op, rs1, rs2) {
			next = in.Target
		}
	case opJ:
		next = in.Target
	case opJal, opCall:
		if in.Runtime != "" {
			if err := m.callRuntime(in.Runtime); err != nil {
				return false, err
			}
			break
		}
		m.set(1, int32(codeAddr(next)))
		next = in.Target
	case opJr, opJalr, opRet:
		target := uint32(rs1)
		if in.Op == opRet {
			target = uint32(m.regs[1])
		}
		if in.Op == opJalr {
			m.set(1, int32(codeAddr(next)))
		}
		if target == haltAddr {
			return true, nil
		}
		if err := m.jumpTo(target); err != nil {
			return false, err
		}
		return false, nil
	case opNop:
	default:
		return false, m.fault("unimplemented opcode %d", in.Op)
	}
	m.pc = next
	return false, nil
}

func branchTaken(op opcode, a, b int32) bool {
	switch op {
	case opBeq:
		return a == b
	case opBne:
		return a != b
	case opBlt:
		return a < b
	case opBge:
		return a >= b
	case opBltu:
		return uint32(a) < uint32(b)
	case opBgeu:
		return uint32(a) >= uint32(b)
	case opBgt:
		return a > b
	case opBle:
		return a <= b
	case opBeqz:
		return a == 0
	case opBnez:
		return a != 0
	}
	return false
}

// div and rem follow the M extension: no traps, fixed results for a zero
// divisor and for the single overflowing quotient.
func div(a, b int32) int32 {
	switch {
	case b == 0:
		return -1
	case a == math.MinInt32 && b == -1:
		return a
	}
	return a / b
}

func rem(a, b int32) int32 {
	switch {
	case b == 0:
		return a
	case a == math.MinInt32 && b == -1:
		return 0
	}
	return a % b
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
