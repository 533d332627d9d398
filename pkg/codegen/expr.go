package codegen

import (
	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/ir"
	"github.com/xplshn/sysyc/pkg/symtab"
	"github.com/xplshn/sysyc/pkg/token"
	"github.com/xplshn/sysyc/pkg/util"
)

var binaryOps = map[token.Type]ir.Op{
	token.Plus: ir.OpAdd, token.Minus: ir.OpSub, token.Star: ir.OpMul, token.Slash: ir.OpDiv, token.Rem: ir.OpMod,
	token.EqEq: ir.OpEq, token.Neq: ir.OpNe, token.Lt: ir.OpLt, token.Gt: ir.OpGt, token.Lte: ir.OpLe, token.Gte: ir.OpGe,
}

func (ctx *Context) lowerExpr(node *ast.Node) ValueRef {
	switch node.Type {
	case ast.Number:
		return Immediate{Value: int32(node.Data.(ast.NumberNode).Value)}
	case ast.LVal:
		return ctx.lowerLVal(node)
	case ast.UnaryOp:
		return ctx.lowerUnary(node)
	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		if d.Op == token.AndAnd || d.Op == token.OrOr {
			return ctx.lowerShortCircuit(node)
		}
		op, ok := binaryOps[d.Op]
		if !ok {
			util.Error(node.Tok, "unsupported binary operator '%s'", d.Op)
			return Immediate{}
		}
		lhs := ctx.scalar(d.Left.Tok, ctx.lowerExpr(d.Left))
		rhs := ctx.scalar(d.Right.Tok, ctx.lowerExpr(d.Right))
		return Temporary{Val: ctx.genBinary(op, lhs, rhs)}
	case ast.FuncCall:
		return ctx.lowerCall(node)
	case ast.InitList:
		util.Error(node.Tok, "initializer list used as an expression")
	default:
		util.Error(node.Tok, "expected an expression, found %s", node.Type)
	}
	return Immediate{}
}

func (ctx *Context) lowerUnary(node *ast.Node) ValueRef {
	d := node.Data.(ast.UnaryOpNode)
	operand := ctx.lowerExpr(d.Expr)
	switch d.Op {
	case token.Plus:
		if isPointer(operand) {
			util.Error(node.Tok, "invalid operand to unary '+'")
		}
		return operand
	case token.Minus:
		v := ctx.scalar(d.Expr.Tok, operand)
		return Temporary{Val: ctx.genBinary(ir.OpSub, &ir.Const{Value: 0}, v)}
	case token.Not:
		v := ctx.scalar(d.Expr.Tok, operand)
		return Temporary{Val: ctx.genBinary(ir.OpEq, v, &ir.Const{Value: 0})}
	}
	util.Error(node.Tok, "unsupported unary operator '%s'", d.Op)
	return Immediate{}
}

// hiddenSlot allocates a compiler-owned i32 slot. It is declared in a fresh
// scope of its own so its name cannot clash with or shadow user symbols.
func (ctx *Context) hiddenSlot(prefix string) *ir.Symbol {
	var name string
	ctx.syms.Scoped(func() {
		name = ctx.declare(token.Token{}, prefix, &symtab.Symbol{Kind: symtab.Var})
	})
	return ctx.addAlloc(name, ir.I32)
}

// lowerShortCircuit lowers && and ||. The result slot starts out holding the
// value that the left operand alone can decide; the right operand is only
// evaluated on the other path.
func (ctx *Context) lowerShortCircuit(node *ast.Node) ValueRef {
	d := node.Data.(ast.BinaryOpNode)
	n := ctx.newLabelIndex()
	rhsL, endL := label("sc_rhs", n), label("sc_end", n)

	var preset int32
	if d.Op == token.OrOr {
		preset = 1
	}
	slot := ctx.hiddenSlot("sc")
	ctx.genStore(&ir.Const{Value: preset}, slot)

	lhs := ctx.scalar(d.Left.Tok, ctx.lowerExpr(d.Left))
	if d.Op == token.AndAnd {
		ctx.genBranch(lhs, rhsL, endL)
	} else {
		ctx.genBranch(lhs, endL, rhsL)
	}

	ctx.startBlock(rhsL)
	rhs := ctx.scalar(d.Right.Tok, ctx.lowerExpr(d.Right))
	ctx.genStore(ctx.genBinary(ir.OpNe, rhs, &ir.Const{Value: 0}), slot)
	ctx.genJump(endL)

	ctx.startBlock(endL)
	return Temporary{Val: ctx.genLoad(slot)}
}

func (ctx *Context) lowerCall(node *ast.Node) ValueRef {
	d := node.Data.(ast.FuncCallNode)
	sym := ctx.lookup(node.Tok, d.Name)
	if sym == nil {
		return Immediate{}
	}
	if sym.Kind != symtab.Func {
		util.Error(node.Tok, "called object '%s' is not a function", d.Name)
		return Immediate{}
	}
	if len(d.Args) != sym.Arity {
		util.Error(node.Tok, "function '%s' expects %d argument(s), got %d", d.Name, sym.Arity, len(d.Args))
		return Immediate{}
	}

	callee := ctx.prog.FindFunc(d.Name)
	args := make([]ir.Value, len(d.Args))
	for i, a := range d.Args {
		ref := ctx.lowerExpr(a)
		if callee != nil {
			wantPtr := callee.Params[i].Typ.Kind == ir.KindPtr
			if _, void := ref.(Void); !void && wantPtr != isPointer(ref) {
				if wantPtr {
					util.Error(a.Tok, "argument %d of '%s' must be an array", i+1, d.Name)
				} else {
					util.Error(a.Tok, "argument %d of '%s' must be an integer", i+1, d.Name)
				}
			}
		}
		args[i] = ctx.rvalue(a.Tok, ref)
	}

	instr := &ir.Instruction{Op: ir.OpCall, Callee: d.Name, Args: args}
	if sym.ReturnsVoid {
		ctx.addInstr(instr)
		return Void{}
	}
	res := ctx.newTemp()
	instr.Result = res
	ctx.addInstr(instr)
	return Temporary{Val: res}
}

// lowerLVal resolves a possibly indexed identifier. Full indexing gives an
// element address, partial indexing a decayed sub-array pointer.
func (ctx *Context) lowerLVal(node *ast.Node) ValueRef {
	d := node.Data.(ast.LValNode)
	sym := ctx.lookup(node.Tok, d.Name)
	if sym == nil {
		return Immediate{}
	}

	switch sym.Kind {
	case symtab.Const:
		if len(d.Indices) > 0 {
			util.Error(node.Tok, "subscripted value '%s' is not an array", d.Name)
		}
		return Immediate{Value: sym.Value}
	case symtab.Var:
		if len(d.Indices) > 0 {
			util.Error(node.Tok, "subscripted value '%s' is not an array", d.Name)
		}
		return NamedSlot{Sym: &ir.Symbol{Name: sym.UniqueName()}}
	case symtab.Func:
		util.Error(node.Tok, "function '%s' used as a value", d.Name)
		return Immediate{}
	}

	if len(d.Indices) > sym.Rank() {
		util.Error(node.Tok, "too many indices for '%s' (rank %d)", d.Name, sym.Rank())
		return Immediate{}
	}
	if sym.Kind == symtab.ConstArray && len(d.Indices) == sym.Rank() {
		if v, err := ctx.fold(node); err == nil {
			return Immediate{Value: v}
		}
	}

	var addr ir.Value = &ir.Symbol{Name: sym.UniqueName()}
	indices := d.Indices
	if sym.Kind == symtab.Pointer {
		addr = ctx.genLoad(addr)
		if len(indices) == 0 {
			return Pointer{Val: addr}
		}
		idx := ctx.scalar(indices[0].Tok, ctx.lowerExpr(indices[0]))
		addr = ctx.genElemPtr(ir.OpGetPtr, addr, idx)
		indices = indices[1:]
	} else if len(indices) == 0 {
		return ArrayBase{Addr: addr}
	}

	for _, in := range indices {
		idx := ctx.scalar(in.Tok, ctx.lowerExpr(in))
		addr = ctx.genElemPtr(ir.OpGetElemPtr, addr, idx)
	}
	if len(d.Indices) == sym.Rank() {
		return ElementAddress{Addr: addr}
	}
	return Pointer{Val: ctx.genElemPtr(ir.OpGetElemPtr, addr, &ir.Const{Value: 0})}
}
