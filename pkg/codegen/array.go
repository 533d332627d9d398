package codegen

import (
	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/ir"
	"github.com/xplshn/sysyc/pkg/symtab"
	"github.com/xplshn/sysyc/pkg/util"
)

func product(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

// flatten lays a brace initializer out over dims, returning one entry per
// element in row-major order. Entries left nil are zero-filled.
//
// A leaf takes the next slot. A nested list aligns to the largest suffix
// product of dims that divides the number of slots already consumed and
// fills exactly that many slots.
func flatten(init *ast.Node, dims []int) ([]*ast.Node, *EvalError) {
	out := make([]*ast.Node, product(dims))
	if err := flattenInto(init, dims, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(list *ast.Node, dims []int, out []*ast.Node) *EvalError {
	pos := 0
	for _, item := range list.Data.(ast.InitListNode).Items {
		if pos >= len(out) {
			return evalErrorf(item.Tok, "excess elements in array initializer")
		}
		if item.Type != ast.InitList {
			out[pos] = item
			pos++
			continue
		}

		sub := 0
		for k := 1; k < len(dims); k++ {
			if pos%product(dims[k:]) == 0 {
				sub = k
				break
			}
		}
		if sub == 0 {
			if len(dims) == 1 {
				return evalErrorf(item.Tok, "braces around scalar initializer")
			}
			return evalErrorf(item.Tok, "initializer list is not aligned to a dimension boundary")
		}
		size := product(dims[sub:])
		if err := flattenInto(item, dims[sub:], out[pos:pos+size]); err != nil {
			return err
		}
		pos += size
	}
	return nil
}

// aggregate nests a flat element list into a Koopa aggregate literal.
func aggregate(elems []int32, dims []int) *ir.Aggregate {
	agg := &ir.Aggregate{}
	if len(dims) == 1 {
		for _, e := range elems {
			agg.Elems = append(agg.Elems, &ir.Const{Value: e})
		}
		return agg
	}
	stride := product(dims[1:])
	for i := 0; i < dims[0]; i++ {
		agg.Elems = append(agg.Elems, aggregate(elems[i*stride:(i+1)*stride], dims[1:]))
	}
	return agg
}

// storeArray initializes every element of a stack array with a getelemptr
// chain and a store. Nil values store zero.
func (ctx *Context) storeArray(base ir.Value, dims []int, vals []ir.Value) {
	for i, v := range vals {
		if v == nil {
			v = &ir.Const{Value: 0}
		}
		addr := base
		rem := i
		for k := range dims {
			stride := product(dims[k+1:])
			addr = ctx.genElemPtr(ir.OpGetElemPtr, addr, &ir.Const{Value: int32(rem / stride)})
			rem %= stride
		}
		ctx.genStore(v, addr)
	}
}

func (ctx *Context) lowerDecl(node *ast.Node) {
	for _, def := range node.Data.(ast.DeclNode).Defs {
		ctx.lowerVarDef(def)
	}
}

func (ctx *Context) lowerVarDef(node *ast.Node) {
	v := node.Data.(ast.VarDefNode)
	dims := ctx.evalDims(v.Dims)
	global := ctx.syms.IsGlobal()

	if len(dims) == 0 {
		ctx.lowerScalarDef(node, v, global)
		return
	}

	if v.Init != nil && v.Init.Type != ast.InitList {
		util.Error(v.Init.Tok, "array '%s' must be initialized with a brace-enclosed list", v.Name)
		return
	}
	var slots []*ast.Node
	if v.Init != nil {
		var err *EvalError
		if slots, err = flatten(v.Init, dims); err != nil {
			util.Error(err.Tok, "%s", err.Msg)
			return
		}
	}
	typ := ir.ArrayType(dims)

	if !v.IsConst && !global {
		var vals []ir.Value
		if slots != nil {
			vals = make([]ir.Value, len(slots))
			for i, s := range slots {
				if s != nil {
					vals[i] = ctx.scalar(s.Tok, ctx.lowerExpr(s))
				}
			}
		}
		name := ctx.declare(node.Tok, v.Name, &symtab.Symbol{Kind: symtab.VarArray, Dims: dims})
		slot := ctx.addAlloc(name, typ)
		if vals != nil {
			ctx.storeArray(slot, dims, vals)
		}
		return
	}

	// A global without an initializer is emitted as zeroinit and never needs
	// its elements spelled out.
	var elems []int32
	if v.Init != nil || v.IsConst {
		elems = make([]int32, product(dims))
		for i, s := range slots {
			if s != nil {
				elems[i] = ctx.evaluate(s)
			}
		}
	}
	sym := &symtab.Symbol{Kind: symtab.VarArray, Dims: dims}
	if v.IsConst {
		sym.Kind, sym.Elems = symtab.ConstArray, elems
	}
	name := ctx.declare(node.Tok, v.Name, sym)

	if global {
		var init ir.Value = &ir.ZeroInit{}
		if v.Init != nil {
			init = aggregate(elems, dims)
		}
		ctx.prog.Globals = append(ctx.prog.Globals, &ir.Data{Name: name, Typ: typ, Init: init})
		return
	}
	vals := make([]ir.Value, len(elems))
	for i, e := range elems {
		vals[i] = &ir.Const{Value: e}
	}
	ctx.storeArray(ctx.addAlloc(name, typ), dims, vals)
}

func (ctx *Context) lowerScalarDef(node *ast.Node, v ast.VarDefNode, global bool) {
	if v.Init != nil && v.Init.Type == ast.InitList {
		util.Error(v.Init.Tok, "scalar '%s' initialized with a brace-enclosed list", v.Name)
		return
	}
	if v.IsConst {
		val := ctx.evaluate(v.Init)
		ctx.declare(node.Tok, v.Name, &symtab.Symbol{Kind: symtab.Const, Value: val})
		return
	}
	if global {
		var init ir.Value = &ir.ZeroInit{}
		if v.Init != nil {
			init = &ir.Const{Value: ctx.evaluate(v.Init)}
		}
		name := ctx.declare(node.Tok, v.Name, &symtab.Symbol{Kind: symtab.Var})
		ctx.prog.Globals = append(ctx.prog.Globals, &ir.Data{Name: name, Typ: ir.I32, Init: init})
		return
	}

	var val ir.Value
	if v.Init != nil {
		val = ctx.scalar(v.Init.Tok, ctx.lowerExpr(v.Init))
	}
	name := ctx.declare(node.Tok, v.Name, &symtab.Symbol{Kind: symtab.Var})
	slot := ctx.addAlloc(name, ir.I32)
	if val != nil {
		ctx.genStore(val, slot)
	}
}
