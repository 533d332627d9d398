package backend

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/koopa"
)

// riscvBackend emits RV32IM assembly. Every instruction result lives in a
// stack slot; t0 and t1 carry operands, t2 holds element sizes and t3
// materializes offsets that do not fit a 12-bit immediate.
type riscvBackend struct {
	out   *bytes.Buffer
	cfg   *config.Config
	fn    *koopa.Function
	frame *Frame

	frameSizes  map[*koopa.Function]int
	trampolines map[string]int
}

func NewRiscVBackend() Backend { return &riscvBackend{} }

func (b *riscvBackend) Generate(prog *koopa.Program, cfg *config.Config) (*bytes.Buffer, error) {
	b.out = &bytes.Buffer{}
	b.cfg = cfg
	b.frameSizes = make(map[*koopa.Function]int)
	b.trampolines = make(map[string]int)

	if len(prog.Values) > 0 {
		b.out.WriteString("  .data\n")
		for _, g := range prog.Values {
			if err := b.genGlobal(g); err != nil {
				return nil, err
			}
		}
	}
	b.out.WriteString("\n  .text\n")
	for _, fn := range prog.Funcs {
		if fn.IsDecl() {
			continue
		}
		if err := b.genFunc(fn); err != nil {
			return nil, fmt.Errorf("riscv: function %s: %w", fn.Name, err)
		}
	}
	return b.out, nil
}

func (b *riscvBackend) emit(format string, args ...interface{}) {
	fmt.Fprintf(b.out, "  "+format+"\n", args...)
}

func fitsImm12(v int) bool { return v >= -2048 && v < 2048 }

// memOp emits `op reg, off(sp)`, going through t3 when off is out of range.
func (b *riscvBackend) memOp(op, reg string, off int) {
	if fitsImm12(off) {
		b.emit("%s %s, %d(sp)", op, reg, off)
		return
	}
	b.emit("li t3, %d", off)
	b.emit("add t3, sp, t3")
	b.emit("%s %s, 0(t3)", op, reg)
}

// addSP emits reg = sp + off.
func (b *riscvBackend) addSP(reg string, off int) {
	if fitsImm12(off) {
		b.emit("addi %s, sp, %d", reg, off)
		return
	}
	b.emit("li t3, %d", off)
	b.emit("add %s, sp, t3", reg)
}

func (b *riscvBackend) adjustSP(delta int) {
	if delta == 0 {
		return
	}
	if fitsImm12(delta) {
		b.emit("addi sp, sp, %d", delta)
		return
	}
	b.emit("li t0, %d", delta)
	b.emit("add sp, sp, t0")
}

func (b *riscvBackend) slot(v *koopa.Value) (int, error) {
	off, ok := b.frame.Offset(v)
	if !ok {
		return 0, fmt.Errorf("value %s (%s) has no stack slot", v.Name, v.Kind)
	}
	return off, nil
}

func (b *riscvBackend) storeResult(v *koopa.Value, reg string) error {
	off, err := b.slot(v)
	if err != nil {
		return err
	}
	b.memOp("sw", reg, off)
	return nil
}

// loadValue puts the value of v into reg. For allocations and globals that
// value is their address.
func (b *riscvBackend) loadValue(v *koopa.Value, reg string) error {
	switch v.Kind {
	case koopa.Integer:
		b.emit("li %s, %d", reg, v.Int)
	case koopa.Undef, koopa.ZeroInit:
		b.emit("li %s, 0", reg)
	case koopa.FuncArgRef:
		if v.Index < 8 {
			b.emit("mv %s, a%d", reg, v.Index)
		} else {
			b.memOp("lw", reg, (v.Index-8)*4)
		}
	case koopa.GlobalAlloc:
		b.emit("la %s, %s", reg, symbolName(v))
	case koopa.Alloc:
		off, err := b.slot(v)
		if err != nil {
			return err
		}
		b.addSP(reg, off)
	default:
		off, err := b.slot(v)
		if err != nil {
			return err
		}
		b.memOp("lw", reg, off)
	}
	return nil
}

func (b *riscvBackend) label(block *koopa.BasicBlock) string {
	name := block.Name[1:]
	if b.cfg.IsFeatureEnabled(config.FeatQualifyLabels) {
		return b.fn.Name + "_" + name
	}
	return name
}

func (b *riscvBackend) frameSizeOf(fn *koopa.Function) int {
	if size, ok := b.frameSizes[fn]; ok {
		return size
	}
	size, _ := FrameSize(fn, b.cfg)
	b.frameSizes[fn] = size
	return size
}

func (b *riscvBackend) genGlobal(g *koopa.Value) error {
	name := symbolName(g)
	fmt.Fprintf(b.out, "\n  .globl %s\n%s:\n", name, name)
	return b.genInit(g.Init)
}

func (b *riscvBackend) genInit(init *koopa.Value) error {
	switch init.Kind {
	case koopa.Integer:
		b.emit(".word %d", init.Int)
	case koopa.ZeroInit, koopa.Undef:
		b.emit(".zero %d", init.Ty.Size())
	case koopa.Aggregate:
		for _, e := range init.Elems {
			if err := b.genInit(e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("riscv: unsupported global initializer %s", init.Kind)
	}
	return nil
}

func (b *riscvBackend) genFunc(fn *koopa.Function) error {
	b.fn = fn
	b.frame = NewFrame(fn, b.cfg)
	b.frameSizes[fn] = b.frame.Size

	fmt.Fprintf(b.out, "\n  .globl %s\n%s:\n", fn.Name, fn.Name)
	b.adjustSP(-b.frame.Size)
	if b.frame.HasCall {
		b.memOp("sw", "ra", b.frame.Size-4)
	}

	for i, block := range fn.Blocks {
		if i > 0 {
			fmt.Fprintf(b.out, "%s:\n", b.label(block))
		}
		for _, inst := range block.Insts {
			if err := b.genInst(inst); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *riscvBackend) genInst(v *koopa.Value) error {
	switch v.Kind {
	case koopa.Alloc:
		_, err := b.slot(v)
		return err
	case koopa.Load:
		return b.genLoad(v)
	case koopa.Store:
		return b.genStore(v)
	case koopa.GetPtr, koopa.GetElemPtr:
		return b.genPtrArith(v)
	case koopa.Binary:
		return b.genBinary(v)
	case koopa.Branch:
		return b.genBranch(v)
	case koopa.Jump:
		b.emit("j %s", b.label(v.Target))
		return nil
	case koopa.Call:
		return b.genCall(v)
	case koopa.Return:
		return b.genReturn(v)
	}
	return fmt.Errorf("unexpected %s in instruction stream", v.Kind)
}

func (b *riscvBackend) genLoad(v *koopa.Value) error {
	switch v.Src.Kind {
	case koopa.GlobalAlloc:
		b.emit("la t0, %s", symbolName(v.Src))
		b.emit("lw t0, 0(t0)")
	case koopa.Alloc:
		off, err := b.slot(v.Src)
		if err != nil {
			return err
		}
		b.memOp("lw", "t0", off)
	default:
		if err := b.loadValue(v.Src, "t0"); err != nil {
			return err
		}
		b.emit("lw t0, 0(t0)")
	}
	return b.storeResult(v, "t0")
}

func (b *riscvBackend) genStore(v *koopa.Value) error {
	reg := "t0"
	if v.Src.Kind == koopa.FuncArgRef && v.Src.Index < 8 {
		reg = fmt.Sprintf("a%d", v.Src.Index)
	} else if err := b.loadValue(v.Src, "t0"); err != nil {
		return err
	}

	switch v.Dest.Kind {
	case koopa.GlobalAlloc:
		b.emit("la t1, %s", symbolName(v.Dest))
		b.emit("sw %s, 0(t1)", reg)
	case koopa.Alloc:
		off, err := b.slot(v.Dest)
		if err != nil {
			return err
		}
		b.memOp("sw", reg, off)
	default:
		if err := b.loadValue(v.Dest, "t1"); err != nil {
			return err
		}
		b.emit("sw %s, 0(t1)", reg)
	}
	return nil
}

// genPtrArith handles getelemptr and getptr: base + index * element size.
func (b *riscvBackend) genPtrArith(v *koopa.Value) error {
	if err := b.loadValue(v.Src, "t0"); err != nil {
		return err
	}
	if err := b.loadValue(v.Idx, "t1"); err != nil {
		return err
	}
	elem := v.Src.Ty.Elem
	if v.Kind == koopa.GetElemPtr {
		elem = elem.Elem
	}
	b.emit("li t2, %d", elem.Size())
	b.emit("mul t1, t1, t2")
	b.emit("add t0, t0, t1")
	return b.storeResult(v, "t0")
}

var binaryInsts = map[koopa.BinaryOp][]string{
	koopa.OpAdd:   {"add t0, t0, t1"},
	koopa.OpSub:   {"sub t0, t0, t1"},
	koopa.OpMul:   {"mul t0, t0, t1"},
	koopa.OpDiv:   {"div t0, t0, t1"},
	koopa.OpMod:   {"rem t0, t0, t1"},
	koopa.OpAnd:   {"and t0, t0, t1"},
	koopa.OpOr:    {"or t0, t0, t1"},
	koopa.OpXor:   {"xor t0, t0, t1"},
	koopa.OpShl:   {"sll t0, t0, t1"},
	koopa.OpShr:   {"srl t0, t0, t1"},
	koopa.OpSar:   {"sra t0, t0, t1"},
	koopa.OpEq:    {"xor t0, t0, t1", "seqz t0, t0"},
	koopa.OpNotEq: {"xor t0, t0, t1", "snez t0, t0"},
	koopa.OpGt:    {"sgt t0, t0, t1"},
	koopa.OpLt:    {"slt t0, t0, t1"},
	koopa.OpGe:    {"slt t0, t0, t1", "seqz t0, t0"},
	koopa.OpLe:    {"sgt t0, t0, t1", "seqz t0, t0"},
}

func (b *riscvBackend) genBinary(v *koopa.Value) error {
	if err := b.loadValue(v.LHS, "t0"); err != nil {
		return err
	}
	if err := b.loadValue(v.RHS, "t1"); err != nil {
		return err
	}
	insts, ok := binaryInsts[v.Op]
	if !ok {
		return fmt.Errorf("unsupported binary operator %s", v.Op)
	}
	for _, inst := range insts {
		b.emit("%s", inst)
	}
	return b.storeResult(v, "t0")
}

// genBranch emits a conditional branch. With trampolines the short-range
// bnez only reaches a nearby label holding an unconditional jump.
func (b *riscvBackend) genBranch(v *koopa.Value) error {
	if err := b.loadValue(v.Cond, "t0"); err != nil {
		return err
	}
	t, f := b.label(v.True), b.label(v.False)
	if !b.cfg.IsFeatureEnabled(config.FeatTrampoline) {
		b.emit("bnez t0, %s", t)
		b.emit("j %s", f)
		return nil
	}
	tramp := t + "_tmp"
	if n := b.trampolines[tramp]; n > 0 {
		tramp = fmt.Sprintf("%s_%d", tramp, n)
	}
	b.trampolines[t+"_tmp"]++
	b.emit("bnez t0, %s", tramp)
	b.emit("j %s", f)
	fmt.Fprintf(b.out, "%s:\n", tramp)
	b.emit("j %s", t)
	return nil
}

func (b *riscvBackend) genCall(v *koopa.Value) error {
	for i, arg := range v.Args {
		if i >= 8 {
			break
		}
		if err := b.loadValue(arg, fmt.Sprintf("a%d", i)); err != nil {
			return err
		}
	}
	if len(v.Args) > 8 {
		calleeSize := b.frameSizeOf(v.Callee)
		for i := 8; i < len(v.Args); i++ {
			if err := b.loadValue(v.Args[i], "t0"); err != nil {
				return err
			}
			b.memOp("sw", "t0", (i-8)*4-calleeSize)
		}
	}
	b.emit("call %s", v.Callee.Name)
	if v.Ty.Tag != koopa.Unit {
		return b.storeResult(v, "a0")
	}
	return nil
}

func (b *riscvBackend) genReturn(v *koopa.Value) error {
	if v.Ret != nil {
		if err := b.loadValue(v.Ret, "a0"); err != nil {
			return err
		}
	}
	if b.frame.HasCall {
		b.memOp("lw", "ra", b.frame.Size-4)
	}
	b.adjustSP(b.frame.Size)
	b.emit("ret")
	return nil
}

// Assembly renders prog through the RISC-V backend as a string.
func Assembly(prog *koopa.Program, cfg *config.Config) (string, error) {
	buf, err := NewRiscVBackend().Generate(prog, cfg)
	if err != nil {
		return "", err
	}
	return strings.TrimLeft(buf.String(), "\n"), nil
}
