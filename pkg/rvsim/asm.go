// Package rvsim assembles and runs the RV32IM subset of assembly the
// compiler emits, with the SysY runtime library provided by the host.
package rvsim

import (
	"fmt"
	"strconv"
	"strings"
)

type opcode uint8

const (
	opAdd opcode = iota
	opSub
	opMul
	opDiv
	opDivu
	opRem
	opRemu
	opAnd
	opOr
	opXor
	opSll
	opSrl
	opSra
	opSlt
	opSltu
	opSgt
	opAddi
	opAndi
	opOri
	opXori
	opSlli
	opSrli
	opSrai
	opSlti
	opSltiu
	opLi
	opLui
	opLa
	opMv
	opNeg
	opNot
	opSeqz
	opSnez
	opLw
	opSw
	opBeq
	opBne
	opBlt
	opBge
	opBltu
	opBgeu
	opBgt
	opBle
	opBeqz
	opBnez
	opJ
	opJal
	opCall
	opJr
	opJalr
	opRet
	opNop
)

type format uint8

const (
	fmtNone format = iota
	fmtR           // rd, rs1, rs2
	fmtI           // rd, rs1, imm
	fmtRR          // rd, rs
	fmtLI          // rd, imm
	fmtLA          // rd, symbol
	fmtMem         // reg, off(base)
	fmtBr2         // rs1, rs2, label
	fmtBr1         // rs, label
	fmtJ           // label
	fmtJR          // rs
)

var mnemonics = map[string]struct {
	op  opcode
	fmt format
}{
	"add": {opAdd, fmtR}, "sub": {opSub, fmtR}, "mul": {opMul, fmtR},
	"div": {opDiv, fmtR}, "divu": {opDivu, fmtR}, "rem": {opRem, fmtR}, "remu": {opRemu, fmtR},
	"and": {opAnd, fmtR}, "or": {opOr, fmtR}, "xor": {opXor, fmtR},
	"sll": {opSll, fmtR}, "srl": {opSrl, fmtR}, "sra": {opSra, fmtR},
	"slt": {opSlt, fmtR}, "sltu": {opSltu, fmtR}, "sgt": {opSgt, fmtR},
	"addi": {opAddi, fmtI}, "andi": {opAndi, fmtI}, "ori": {opOri, fmtI}, "xori": {opXori, fmtI},
	"slli": {opSlli, fmtI}, "srli": {opSrli, fmtI}, "srai": {opSrai, fmtI},
	"slti": {opSlti, fmtI}, "sltiu": {opSltiu, fmtI},
	"li": {opLi, fmtLI}, "lui": {opLui, fmtLI}, "la": {opLa, fmtLA},
	"mv": {opMv, fmtRR}, "neg": {opNeg, fmtRR}, "not": {opNot, fmtRR},
	"seqz": {opSeqz, fmtRR}, "snez": {opSnez, fmtRR},
	"lw": {opLw, fmtMem}, "sw": {opSw, fmtMem},
	"beq": {opBeq, fmtBr2}, "bne": {opBne, fmtBr2}, "blt": {opBlt, fmtBr2}, "bge": {opBge, fmtBr2},
	"bltu": {opBltu, fmtBr2}, "bgeu": {opBgeu, fmtBr2}, "bgt": {opBgt, fmtBr2}, "ble": {opBle, fmtBr2},
	"beqz": {opBeqz, fmtBr1}, "bnez": {opBnez, fmtBr1},
	"j": {opJ, fmtJ}, "jal": {opJal, fmtJ}, "call": {opCall, fmtJ},
	"jr": {opJr, fmtJR}, "jalr": {opJalr, fmtJR},
	"ret": {opRet, fmtNone}, "nop": {opNop, fmtNone},
}

var registers = map[string]int{
	"zero": 0, "ra": 1, "sp": 2, "gp": 3, "tp": 4, "t0": 5, "t1": 6, "t2": 7,
	"s0": 8, "fp": 8, "s1": 9, "t3": 28, "t4": 29, "t5": 30, "t6": 31,
}

func init() {
	for i := 0; i < 32; i++ {
		registers[fmt.Sprintf("x%d", i)] = i
	}
	for i := 0; i < 8; i++ {
		registers[fmt.Sprintf("a%d", i)] = 10 + i
	}
	for i := 2; i < 12; i++ {
		registers[fmt.Sprintf("s%d", i)] = 16 + i
	}
}

// Inst is one decoded instruction.
type Inst struct {
	Op       opcode
	Rd       int
	Rs1, Rs2 int
	Imm      int32
	Symbol   string
	Target   int    // resolved text index for branches and jumps
	Runtime  string // set when a call targets a host-provided library function
	Line     int
}

// Program is an assembled unit: decoded text plus an initialized data image.
type Program struct {
	Text    []Inst
	Labels  map[string]int    // text label -> instruction index
	Symbols map[string]uint32 // data label -> address
	Data    []byte
}

// SyntaxError reports malformed assembly.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Msg) }

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

// Assemble decodes src in two passes: the first places labels, the second
// decodes operands and resolves branch targets.
func Assemble(src string) (*Program, error) {
	lines := strings.Split(src, "\n")
	parsed := make([]parsedLine, 0, len(lines))
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}

	prog := &Program{Labels: make(map[string]int), Symbols: make(map[string]uint32)}
	if err := prog.pass1(parsed); err != nil {
		return nil, err
	}
	if err := prog.pass2(parsed); err != nil {
		return nil, err
	}
	return prog, nil
}

func (prog *Program) pass1(lines []parsedLine) error {
	inData := false
	for _, p := range lines {
		for _, lbl := range p.labels {
			if _, dup := prog.Labels[lbl]; dup {
				return &SyntaxError{p.lineNo, fmt.Sprintf("duplicate label '%s'", lbl)}
			}
			if _, dup := prog.Symbols[lbl]; dup {
				return &SyntaxError{p.lineNo, fmt.Sprintf("duplicate label '%s'", lbl)}
			}
			if inData {
				prog.Symbols[lbl] = DataBase + uint32(len(prog.Data))
			} else {
				prog.Labels[lbl] = len(prog.Text)
			}
		}
		if p.mnemonic == "" {
			continue
		}
		if strings.HasPrefix(p.mnemonic, ".") {
			var err error
			if inData, err = prog.directive(p, inData); err != nil {
				return err
			}
			continue
		}
		if inData {
			return &SyntaxError{p.lineNo, fmt.Sprintf("instruction '%s' in data section", p.mnemonic)}
		}
		prog.Text = append(prog.Text, Inst{Line: p.lineNo})
	}
	return nil
}

func (prog *Program) directive(p parsedLine, inData bool) (bool, error) {
	switch p.mnemonic {
	case ".data", ".bss", ".rodata":
		return true, nil
	case ".text":
		return false, nil
	case ".section":
		if len(p.operands) == 0 {
			return inData, &SyntaxError{p.lineNo, ".section expects a name"}
		}
		return !strings.HasPrefix(p.operands[0], ".text"), nil
	case ".globl", ".global", ".type", ".size", ".file", ".option", ".ident":
		return inData, nil
	case ".align", ".p2align", ".balign":
		if !inData || len(p.operands) == 0 {
			return inData, nil
		}
		n, err := strconv.Atoi(p.operands[0])
		if err != nil {
			return inData, &SyntaxError{p.lineNo, fmt.Sprintf("bad alignment '%s'", p.operands[0])}
		}
		if p.mnemonic != ".balign" {
			n = 1 << n
		}
		for n > 0 && len(prog.Data)%n != 0 {
			prog.Data = append(prog.Data, 0)
		}
		return inData, nil
	case ".word":
		if !inData {
			return inData, &SyntaxError{p.lineNo, ".word outside data section"}
		}
		for _, op := range p.operands {
			v, err := parseImm(op)
			if err != nil {
				return inData, &SyntaxError{p.lineNo, err.Error()}
			}
			u := uint32(v)
			prog.Data = append(prog.Data, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
		}
		return inData, nil
	case ".zero", ".space":
		if !inData || len(p.operands) != 1 {
			return inData, &SyntaxError{p.lineNo, p.mnemonic + " expects one size in a data section"}
		}
		n, err := strconv.Atoi(p.operands[0])
		if err != nil || n < 0 {
			return inData, &SyntaxError{p.lineNo, fmt.Sprintf("bad size '%s'", p.operands[0])}
		}
		prog.Data = append(prog.Data, make([]byte, n)...)
		return inData, nil
	}
	return inData, &SyntaxError{p.lineNo, fmt.Sprintf("unknown directive '%s'", p.mnemonic)}
}

func (prog *Program) pass2(lines []parsedLine) error {
	idx := 0
	inData := false
	for _, p := range lines {
		if p.mnemonic == "" {
			continue
		}
		if strings.HasPrefix(p.mnemonic, ".") {
			switch p.mnemonic {
			case ".data", ".bss", ".rodata":
				inData = true
			case ".text":
				inData = false
			case ".section":
				inData = !strings.HasPrefix(p.operands[0], ".text")
			}
			continue
		}
		if inData {
			continue
		}
		inst, err := prog.decode(p)
		if err != nil {
			return err
		}
		prog.Text[idx] = inst
		idx++
	}
	return nil
}

func (prog *Program) decode(p parsedLine) (Inst, error) {
	inst := Inst{Line: p.lineNo}
	m, ok := mnemonics[p.mnemonic]
	if !ok {
		return inst, &SyntaxError{p.lineNo, fmt.Sprintf("unknown instruction '%s'", p.mnemonic)}
	}
	inst.Op = m.op

	want := map[format]int{
		fmtNone: 0, fmtR: 3, fmtI: 3, fmtRR: 2, fmtLI: 2, fmtLA: 2,
		fmtMem: 2, fmtBr2: 3, fmtBr1: 2, fmtJ: 1, fmtJR: 1,
	}[m.fmt]
	ops := p.operands
	if m.fmt == fmtJ && len(ops) == 2 {
		// jal rd, label
		ops = ops[1:]
	}
	if len(ops) != want {
		return inst, &SyntaxError{p.lineNo, fmt.Sprintf("'%s' expects %d operand(s), got %d", p.mnemonic, want, len(ops))}
	}

	var err error
	reg := func(s string) int {
		if err != nil {
			return 0
		}
		r, ok := registers[s]
		if !ok {
			err = &SyntaxError{p.lineNo, fmt.Sprintf("invalid register '%s'", s)}
		}
		return r
	}
	imm := func(s string) int32 {
		if err != nil {
			return 0
		}
		v, perr := parseImm(s)
		if perr != nil {
			err = &SyntaxError{p.lineNo, perr.Error()}
		}
		return v
	}
	target := func(s string) int {
		if err != nil {
			return 0
		}
		t, ok := prog.Labels[s]
		if !ok {
			err = &SyntaxError{p.lineNo, fmt.Sprintf("undefined label '%s'", s)}
		}
		return t
	}

	switch m.fmt {
	case fmtR:
		inst.Rd, inst.Rs1, inst.Rs2 = reg(ops[0]), reg(ops[1]), reg(ops[2])
	case fmtI:
		inst.Rd, inst.Rs1, inst.Imm = reg(ops[0]), reg(ops[1]), imm(ops[2])
	case fmtRR:
		inst.Rd, inst.Rs1 = reg(ops[0]), reg(ops[1])
	case fmtLI:
		inst.Rd, inst.Imm = reg(ops[0]), imm(ops[1])
	case fmtLA:
		inst.Rd, inst.Symbol = reg(ops[0]), ops[1]
		_, isData := prog.Symbols[ops[1]]
		_, isText := prog.Labels[ops[1]]
		if !isData && !isText {
			err = &SyntaxError{p.lineNo, fmt.Sprintf("undefined symbol '%s'", ops[1])}
		}
	case fmtMem:
		lp, rp := strings.IndexByte(ops[1], '('), strings.LastIndexByte(ops[1], ')')
		if lp < 0 || rp < lp {
			return inst, &SyntaxError{p.lineNo, fmt.Sprintf("malformed memory operand '%s'", ops[1])}
		}
		inst.Rd = reg(ops[0])
		inst.Rs1 = reg(ops[1][lp+1 : rp])
		if off := ops[1][:lp]; off != "" {
			inst.Imm = imm(off)
		}
	case fmtBr2:
		inst.Rs1, inst.Rs2, inst.Target = reg(ops[0]), reg(ops[1]), target(ops[2])
	case fmtBr1:
		inst.Rs1, inst.Target = reg(ops[0]), target(ops[1])
	case fmtJ:
		inst.Symbol = ops[0]
		if t, ok := prog.Labels[ops[0]]; ok {
			inst.Target = t
		} else if _, ok := runtimeLibrary[ops[0]]; ok && inst.Op != opJ {
			inst.Runtime = ops[0]
		} else {
			err = &SyntaxError{p.lineNo, fmt.Sprintf("undefined label '%s'", ops[0])}
		}
	case fmtJR:
		inst.Rs1 = reg(ops[0])
	}
	return inst, err
}

func parseImm(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil || v < -1<<31 || v > 1<<32-1 {
		return 0, fmt.Errorf("invalid immediate '%s'", s)
	}
	return int32(v), nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}
	line := raw
	if hash := strings.IndexByte(line, '#'); hash >= 0 {
		line = line[:hash]
	}
	line = strings.TrimSpace(line)

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}
		label := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(label, " \t(") {
			break
		}
		if !isIdentifier(label) {
			return p, &SyntaxError{lineNo, fmt.Sprintf("invalid label '%s'", label)}
		}
		p.labels = append(p.labels, label)
		line = strings.TrimSpace(line[colon+1:])
	}
	if line == "" {
		return p, nil
	}

	mnemonic, rest, _ := strings.Cut(line, " ")
	if tab := strings.IndexByte(mnemonic, '\t'); tab >= 0 {
		mnemonic, rest = mnemonic[:tab], mnemonic[tab+1:]+" "+rest
	}
	p.mnemonic = strings.ToLower(mnemonic)
	rest = strings.TrimSpace(rest)
	if rest != "" {
		for _, op := range strings.Split(rest, ",") {
			p.operands = append(p.operands, strings.TrimSpace(op))
		}
	}
	return p, nil
}

func isIdentifier(s string) bool {
	for i, r := range s {
		letter := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_' || r == '.' || r == '$'
		if !letter && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return s != ""
}
