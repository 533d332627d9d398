package ir

import (
	"fmt"
	"strings"
)

type Op int

const (
	OpAlloc Op = iota
	OpLoad
	OpStore
	OpGetElemPtr
	OpGetPtr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpBr
	OpJump
	OpRet
	OpCall
)

var opNames = map[Op]string{
	OpAlloc: "alloc", OpLoad: "load", OpStore: "store", OpGetElemPtr: "getelemptr", OpGetPtr: "getptr",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod", OpAnd: "and", OpOr: "or",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpGt: "gt", OpLe: "le", OpGe: "ge",
	OpBr: "br", OpJump: "jump", OpRet: "ret", OpCall: "call",
}

func (o Op) String() string { return opNames[o] }

func (o Op) IsBinary() bool { return o >= OpAdd && o <= OpGe }

func (o Op) IsTerminator() bool { return o == OpBr || o == OpJump || o == OpRet }

type TypeKind int

const (
	KindI32 TypeKind = iota
	KindUnit
	KindPtr
	KindArray
)

// Type is a Koopa type: i32, unit, *T or [T, N].
type Type struct {
	Kind TypeKind
	Elem *Type
	Len  int
}

var (
	I32  = &Type{Kind: KindI32}
	Unit = &Type{Kind: KindUnit}
)

func PtrTo(t *Type) *Type { return &Type{Kind: KindPtr, Elem: t} }

func ArrayOf(t *Type, n int) *Type { return &Type{Kind: KindArray, Elem: t, Len: n} }

// ArrayType builds the nested array type for dims, outermost first.
func ArrayType(dims []int) *Type {
	t := I32
	for i := len(dims) - 1; i >= 0; i-- {
		t = ArrayOf(t, dims[i])
	}
	return t
}

func (t *Type) String() string {
	switch t.Kind {
	case KindI32:
		return "i32"
	case KindUnit:
		return "unit"
	case KindPtr:
		return "*" + t.Elem.String()
	case KindArray:
		return fmt.Sprintf("[%s, %d]", t.Elem, t.Len)
	}
	return "?"
}

// Value is an operand in the textual IR.
type Value interface {
	isValue()
	String() string
}

type Const struct{ Value int32 }
type Temp struct{ ID int }
type Symbol struct{ Name string }
type Label struct{ Name string }
type ZeroInit struct{}
type Aggregate struct{ Elems []Value }

func (c *Const) isValue()     {}
func (t *Temp) isValue()      {}
func (s *Symbol) isValue()    {}
func (l *Label) isValue()     {}
func (z *ZeroInit) isValue()  {}
func (a *Aggregate) isValue() {}

func (c *Const) String() string    { return fmt.Sprintf("%d", c.Value) }
func (t *Temp) String() string     { return fmt.Sprintf("%%%d", t.ID) }
func (s *Symbol) String() string   { return "@" + s.Name }
func (l *Label) String() string    { return "%" + l.Name }
func (z *ZeroInit) String() string { return "zeroinit" }
func (a *Aggregate) String() string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

type Instruction struct {
	Op     Op
	Result Value
	Typ    *Type // allocated type for OpAlloc
	Args   []Value
	Callee string
}

type BasicBlock struct {
	Label        *Label
	Instructions []*Instruction
}

func (b *BasicBlock) Last() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

// Terminated reports whether the block already ends in br, jump or ret.
func (b *BasicBlock) Terminated() bool {
	last := b.Last()
	return last != nil && last.Op.IsTerminator()
}

// Append adds instr unless the block is already terminated, in which case
// the instruction is dropped and false is returned.
func (b *BasicBlock) Append(instr *Instruction) bool {
	if b.Terminated() {
		return false
	}
	b.Instructions = append(b.Instructions, instr)
	return true
}

type Param struct {
	Name string
	Typ  *Type
}

// Func is a function definition, or a declaration when Blocks is empty.
// Allocs are hoisted to the head of the entry block when printed.
type Func struct {
	Name   string
	Params []*Param
	Ret    *Type // nil for void
	Allocs []*Instruction
	Blocks []*BasicBlock
}

func (f *Func) IsDecl() bool { return len(f.Blocks) == 0 }

type Data struct {
	Name string
	Typ  *Type
	Init Value
}

type Program struct {
	Decls   []*Func
	Globals []*Data
	Funcs   []*Func
}

func (p *Program) FindFunc(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	for _, f := range p.Decls {
		if f.Name == name {
			return f
		}
	}
	return nil
}
