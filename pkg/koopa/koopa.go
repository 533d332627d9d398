// Package koopa parses Koopa IR text into a typed in-memory graph of
// functions, basic blocks and values. The backends consume this graph.
package koopa

import (
	"fmt"
	"strings"
)

type TypeTag int

const (
	Int32 TypeTag = iota
	Unit
	Array
	Pointer
	FuncType
)

type Type struct {
	Tag    TypeTag
	Elem   *Type // Array element or Pointer target
	Len    int
	Params []*Type
	Ret    *Type
}

var (
	I32Type  = &Type{Tag: Int32}
	UnitType = &Type{Tag: Unit}
)

func PointerTo(t *Type) *Type { return &Type{Tag: Pointer, Elem: t} }

// Size is the byte size of a value of this type on RV32.
func (t *Type) Size() int {
	switch t.Tag {
	case Int32, Pointer, FuncType:
		return 4
	case Array:
		return t.Len * t.Elem.Size()
	}
	return 0
}

func (t *Type) String() string {
	switch t.Tag {
	case Int32:
		return "i32"
	case Unit:
		return "unit"
	case Pointer:
		return "*" + t.Elem.String()
	case Array:
		return fmt.Sprintf("[%s, %d]", t.Elem, t.Len)
	case FuncType:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		s := "(" + strings.Join(parts, ", ") + ")"
		if t.Ret != nil && t.Ret.Tag != Unit {
			s += ": " + t.Ret.String()
		}
		return s
	}
	return "?"
}

func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Tag != o.Tag || t.Len != o.Len {
		return false
	}
	switch t.Tag {
	case Array, Pointer:
		return t.Elem.Equal(o.Elem)
	case FuncType:
		if len(t.Params) != len(o.Params) || !t.Ret.Equal(o.Ret) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
	}
	return true
}

type ValueKind int

const (
	Integer ValueKind = iota
	ZeroInit
	Undef
	Aggregate
	FuncArgRef
	GlobalAlloc
	Alloc
	Load
	Store
	GetPtr
	GetElemPtr
	Binary
	Branch
	Jump
	Call
	Return
)

var kindNames = [...]string{
	"integer", "zeroinit", "undef", "aggregate", "func_arg_ref", "global_alloc", "alloc",
	"load", "store", "getptr", "getelemptr", "binary", "branch", "jump", "call", "return",
}

func (k ValueKind) String() string { return kindNames[k] }

type BinaryOp int

const (
	OpNotEq BinaryOp = iota
	OpEq
	OpGt
	OpLt
	OpGe
	OpLe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpSar
)

var binaryOpNames = map[string]BinaryOp{
	"ne": OpNotEq, "eq": OpEq, "gt": OpGt, "lt": OpLt, "ge": OpGe, "le": OpLe,
	"add": OpAdd, "sub": OpSub, "mul": OpMul, "div": OpDiv, "mod": OpMod,
	"and": OpAnd, "or": OpOr, "xor": OpXor, "shl": OpShl, "shr": OpShr, "sar": OpSar,
}

func (op BinaryOp) String() string {
	for name, o := range binaryOpNames {
		if o == op {
			return name
		}
	}
	return "?"
}

// Value is one node of the graph: a constant, a global, a function argument
// or an instruction. Which fields are meaningful depends on Kind.
type Value struct {
	Name string // "@x" or "%3"; empty for anonymous values
	Ty   *Type
	Kind ValueKind

	Int   int32    // Integer
	Elems []*Value // Aggregate
	Index int      // FuncArgRef
	Init  *Value   // GlobalAlloc

	Src  *Value // Load source, GetPtr/GetElemPtr base, Store value
	Dest *Value // Store destination
	Idx  *Value // GetPtr/GetElemPtr index

	Op       BinaryOp
	LHS, RHS *Value

	Cond        *Value
	True, False *BasicBlock
	Target      *BasicBlock

	Callee *Function
	Args   []*Value

	Ret *Value // Return value, nil for a bare ret
}

// IsInst reports whether v is an instruction that lives in a basic block.
func (v *Value) IsInst() bool { return v.Kind >= Alloc }

// IsTerminator reports whether v ends a basic block.
func (v *Value) IsTerminator() bool {
	return v.Kind == Branch || v.Kind == Jump || v.Kind == Return
}

type BasicBlock struct {
	Name  string
	Insts []*Value
}

type Function struct {
	Name   string // without the leading @
	Ty     *Type
	Params []*Value
	Blocks []*BasicBlock
}

// IsDecl reports whether f is only declared, as the runtime intrinsics are.
func (f *Function) IsDecl() bool { return len(f.Blocks) == 0 }

func (f *Function) RetType() *Type {
	if f.Ty.Ret == nil {
		return UnitType
	}
	return f.Ty.Ret
}

type Program struct {
	Values []*Value // global allocations in definition order
	Funcs  []*Function
}

func (p *Program) Func(name string) *Function {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}
