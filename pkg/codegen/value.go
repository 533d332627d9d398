package codegen

import (
	"github.com/xplshn/sysyc/pkg/ir"
	"github.com/xplshn/sysyc/pkg/token"
	"github.com/xplshn/sysyc/pkg/util"
)

// ValueRef describes what an expression evaluated to. The set of
// implementations is closed; consumers switch over all of them.
type ValueRef interface{ valueRef() }

// Immediate is a compile-time integer.
type Immediate struct{ Value int32 }

// Temporary is an i32 held in a numbered temporary.
type Temporary struct{ Val *ir.Temp }

// NamedSlot is the memory slot of a scalar variable.
type NamedSlot struct{ Sym *ir.Symbol }

// Pointer is a pointer value that can be passed on as is, such as a decayed
// sub-array or a loaded array parameter.
type Pointer struct{ Val ir.Value }

// ArrayBase is the address of a whole array object. It decays to a pointer
// to its first element when used as a value.
type ArrayBase struct{ Addr ir.Value }

// ElementAddress is the address of a single i32 array element.
type ElementAddress struct{ Addr ir.Value }

// Void is the result of calling a void function.
type Void struct{}

func (Immediate) valueRef()      {}
func (Temporary) valueRef()      {}
func (NamedSlot) valueRef()      {}
func (Pointer) valueRef()        {}
func (ArrayBase) valueRef()      {}
func (ElementAddress) valueRef() {}
func (Void) valueRef()           {}

// isPointer reports whether ref yields an address rather than an i32.
func isPointer(ref ValueRef) bool {
	switch ref.(type) {
	case Pointer, ArrayBase:
		return true
	}
	return false
}

// rvalue materializes ref as an IR operand, loading from memory when needed.
func (ctx *Context) rvalue(tok token.Token, ref ValueRef) ir.Value {
	switch r := ref.(type) {
	case Immediate:
		return &ir.Const{Value: r.Value}
	case Temporary:
		return r.Val
	case NamedSlot:
		return ctx.genLoad(r.Sym)
	case ElementAddress:
		return ctx.genLoad(r.Addr)
	case Pointer:
		return r.Val
	case ArrayBase:
		return ctx.genElemPtr(ir.OpGetElemPtr, r.Addr, &ir.Const{Value: 0})
	case Void:
		util.Error(tok, "void value not ignored as it ought to be")
	}
	return &ir.Const{Value: 0}
}

// scalar is rvalue restricted to i32 results.
func (ctx *Context) scalar(tok token.Token, ref ValueRef) ir.Value {
	if isPointer(ref) {
		util.Error(tok, "array used where an integer is expected")
	}
	return ctx.rvalue(tok, ref)
}

// address returns the store target for ref.
func (ctx *Context) address(tok token.Token, ref ValueRef) ir.Value {
	switch r := ref.(type) {
	case NamedSlot:
		return r.Sym
	case ElementAddress:
		return r.Addr
	case Immediate, Temporary, Pointer, ArrayBase, Void:
		util.Error(tok, "expression is not assignable")
	}
	return nil
}
