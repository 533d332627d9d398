package backend

import (
	"fmt"
	"strings"

	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/koopa"
)

// qbeBackend lowers the Koopa graph to QBE IL. Every QBE target is 64-bit,
// so pointers are `l` values and occupy 8 bytes.
type qbeBackend struct {
	out  *strings.Builder
	prog *koopa.Program
	fn   *koopa.Function
}

func NewQBEBackend() Backend { return &qbeBackend{} }

// GenerateIL renders prog as QBE IL text without assembling it.
func GenerateIL(prog *koopa.Program, cfg *config.Config) (string, error) {
	b := &qbeBackend{}
	return b.GenerateIL(prog, cfg)
}

// compileError reports a failure of the QBE compiler itself together with
// the IL it was given.
func compileError(il string, err error) error {
	return fmt.Errorf("qbe: compiling IL: %w\n--- generated IL ---\n%s", err, il)
}

func (b *qbeBackend) GenerateIL(prog *koopa.Program, cfg *config.Config) (string, error) {
	var il strings.Builder
	b.out = &il
	b.prog = prog

	for _, g := range prog.Values {
		b.genGlobal(g)
	}
	for _, fn := range prog.Funcs {
		if fn.IsDecl() {
			continue
		}
		if err := b.genFunc(fn); err != nil {
			return "", fmt.Errorf("qbe: function %s: %w", fn.Name, err)
		}
	}
	return il.String(), nil
}

func qbeSize(t *koopa.Type) int {
	switch t.Tag {
	case koopa.Int32:
		return 4
	case koopa.Pointer:
		return 8
	case koopa.Array:
		return t.Len * qbeSize(t.Elem)
	}
	return 0
}

func qbeType(t *koopa.Type) string {
	if t.Tag == koopa.Pointer {
		return "l"
	}
	return "w"
}

func (b *qbeBackend) genGlobal(g *koopa.Value) {
	var items []string
	var collect func(v *koopa.Value)
	collect = func(v *koopa.Value) {
		switch v.Kind {
		case koopa.Integer:
			items = append(items, fmt.Sprintf("w %d", v.Int))
		case koopa.Aggregate:
			for _, e := range v.Elems {
				collect(e)
			}
		default:
			items = append(items, fmt.Sprintf("z %d", qbeSize(v.Ty)))
		}
	}
	collect(g.Init)
	fmt.Fprintf(b.out, "data $%s = { %s }\n", symbolName(g), strings.Join(items, ", "))
}

func (b *qbeBackend) genFunc(fn *koopa.Function) error {
	b.fn = fn
	ret := ""
	if fn.RetType().Tag != koopa.Unit {
		ret = " w"
	}
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = qbeType(p.Ty) + " " + b.value(p)
	}
	fmt.Fprintf(b.out, "\nexport function%s $%s(%s) {\n", ret, fn.Name, strings.Join(params, ", "))
	for _, block := range fn.Blocks {
		fmt.Fprintf(b.out, "@%s\n", block.Name[1:])
		for _, inst := range block.Insts {
			if err := b.genInst(inst); err != nil {
				return err
			}
		}
	}
	b.out.WriteString("}\n")
	return nil
}

// value formats an operand. Instruction results get a `.` prefix so they can
// never collide with parameter or variable names.
func (b *qbeBackend) value(v *koopa.Value) string {
	switch v.Kind {
	case koopa.Integer:
		return fmt.Sprintf("%d", v.Int)
	case koopa.Undef, koopa.ZeroInit:
		return "0"
	case koopa.GlobalAlloc:
		return "$" + symbolName(v)
	case koopa.FuncArgRef, koopa.Alloc:
		return "%" + symbolName(v)
	}
	return "%." + symbolName(v)
}

func (b *qbeBackend) emit(format string, args ...interface{}) {
	fmt.Fprintf(b.out, "\t"+format+"\n", args...)
}

var qbeOps = map[koopa.BinaryOp]string{
	koopa.OpAdd: "add", koopa.OpSub: "sub", koopa.OpMul: "mul", koopa.OpDiv: "div", koopa.OpMod: "rem",
	koopa.OpAnd: "and", koopa.OpOr: "or", koopa.OpXor: "xor",
	koopa.OpShl: "shl", koopa.OpShr: "shr", koopa.OpSar: "sar",
	koopa.OpEq: "ceqw", koopa.OpNotEq: "cnew", koopa.OpGt: "csgtw", koopa.OpLt: "csltw",
	koopa.OpGe: "csgew", koopa.OpLe: "cslew",
}

func (b *qbeBackend) genInst(v *koopa.Value) error {
	switch v.Kind {
	case koopa.Alloc:
		size := qbeSize(v.Ty.Elem)
		align := 4
		if v.Ty.Elem.Tag == koopa.Pointer {
			align = 8
		}
		b.emit("%s =l alloc%d %d", b.value(v), align, size)
	case koopa.Load:
		t := qbeType(v.Ty)
		b.emit("%s =%s load%s %s", b.value(v), t, t, b.value(v.Src))
	case koopa.Store:
		b.emit("store%s %s, %s", qbeType(v.Src.Ty), b.value(v.Src), b.value(v.Dest))
	case koopa.GetPtr, koopa.GetElemPtr:
		elem := v.Src.Ty.Elem
		if v.Kind == koopa.GetElemPtr {
			elem = elem.Elem
		}
		size := qbeSize(elem)
		if v.Idx.Kind == koopa.Integer {
			b.emit("%s =l add %s, %d", b.value(v), b.value(v.Src), int64(v.Idx.Int)*int64(size))
			return nil
		}
		name := b.value(v)
		b.emit("%s.idx =l extsw %s", name, b.value(v.Idx))
		b.emit("%s.off =l mul %s.idx, %d", name, name, size)
		b.emit("%s =l add %s, %s.off", name, b.value(v.Src), name)
	case koopa.Binary:
		op, ok := qbeOps[v.Op]
		if !ok {
			return fmt.Errorf("unsupported binary operator %s", v.Op)
		}
		b.emit("%s =w %s %s, %s", b.value(v), op, b.value(v.LHS), b.value(v.RHS))
	case koopa.Branch:
		b.emit("jnz %s, @%s, @%s", b.value(v.Cond), v.True.Name[1:], v.False.Name[1:])
	case koopa.Jump:
		b.emit("jmp @%s", v.Target.Name[1:])
	case koopa.Call:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = qbeType(v.Callee.Ty.Params[i]) + " " + b.value(a)
		}
		call := fmt.Sprintf("call $%s(%s)", v.Callee.Name, strings.Join(args, ", "))
		if v.Ty.Tag == koopa.Unit {
			b.emit("%s", call)
		} else {
			b.emit("%s =w %s", b.value(v), call)
		}
	case koopa.Return:
		if v.Ret == nil {
			b.emit("ret")
		} else {
			b.emit("ret %s", b.value(v.Ret))
		}
	default:
		return fmt.Errorf("unexpected %s in instruction stream", v.Kind)
	}
	return nil
}
