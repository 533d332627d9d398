package codegen

import (
	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/ir"
	"github.com/xplshn/sysyc/pkg/symtab"
	"github.com/xplshn/sysyc/pkg/util"
)

func (ctx *Context) lowerStmt(node *ast.Node) {
	switch node.Type {
	case ast.Decl:
		ctx.lowerDecl(node)
	case ast.Block:
		ctx.syms.Scoped(func() {
			ctx.lowerBlockItems(node.Data.(ast.BlockNode).Items)
		})
	case ast.Assign:
		ctx.lowerAssign(node)
	case ast.ExprStmt:
		d := node.Data.(ast.ExprStmtNode)
		if d.Expr == nil {
			return
		}
		if d.Expr.Type != ast.FuncCall {
			util.Warn(ctx.cfg, config.WarnExtra, d.Expr.Tok, "expression result unused")
		}
		ctx.lowerExpr(d.Expr)
	case ast.If:
		ctx.lowerIf(node)
	case ast.While:
		ctx.lowerWhile(node)
	case ast.Break:
		if len(ctx.loops) == 0 {
			util.Error(node.Tok, "'break' statement not in loop")
			return
		}
		ctx.genJump(ctx.loops[len(ctx.loops)-1].exit)
	case ast.Continue:
		if len(ctx.loops) == 0 {
			util.Error(node.Tok, "'continue' statement not in loop")
			return
		}
		ctx.genJump(ctx.loops[len(ctx.loops)-1].entry)
	case ast.Return:
		ctx.lowerReturn(node)
	default:
		util.Error(node.Tok, "unexpected %s in statement position", node.Type)
	}
}

// lowerBlockItems lowers items in order. Items that follow a terminated
// block are still resolved and checked, but their code is discarded.
func (ctx *Context) lowerBlockItems(items []*ast.Node) {
	for i, item := range items {
		if ctx.terminated() {
			if !ctx.dead {
				util.Warn(ctx.cfg, config.WarnUnreachableCode, item.Tok, "unreachable code")
			}
			ctx.lowerDetached(items[i:])
			return
		}
		ctx.lowerStmt(item)
	}
}

// lowerDetached lowers items into a scratch function that is thrown away.
func (ctx *Context) lowerDetached(items []*ast.Node) {
	fn, block, dead := ctx.currentFunc, ctx.currentBlock, ctx.dead
	ctx.currentFunc, ctx.currentBlock, ctx.dead = &ir.Func{Name: fn.Name, Ret: fn.Ret}, nil, true
	ctx.startBlock(&ir.Label{Name: "unreachable"})
	ctx.lowerBlockItems(items)
	ctx.currentFunc, ctx.currentBlock, ctx.dead = fn, block, dead
}

func (ctx *Context) lowerAssign(node *ast.Node) {
	d := node.Data.(ast.AssignNode)
	target := d.LVal.Data.(ast.LValNode)
	if sym := ctx.lookup(d.LVal.Tok, target.Name); sym != nil {
		switch sym.Kind {
		case symtab.Const, symtab.ConstArray:
			util.Error(d.LVal.Tok, "cannot assign to constant '%s'", target.Name)
		case symtab.Func:
			util.Error(d.LVal.Tok, "cannot assign to function '%s'", target.Name)
		}
	}
	rhs := ctx.scalar(d.Rhs.Tok, ctx.lowerExpr(d.Rhs))
	addr := ctx.address(d.LVal.Tok, ctx.lowerLVal(d.LVal))
	ctx.genStore(rhs, addr)
}

func (ctx *Context) lowerIf(node *ast.Node) {
	d := node.Data.(ast.IfNode)
	n := ctx.newLabelIndex()
	thenL, endL := label("then", n), label("end", n)
	falseL := endL
	var elseL *ir.Label
	if d.Else != nil {
		elseL = label("else", n)
		falseL = elseL
	}

	cond := ctx.scalar(d.Cond.Tok, ctx.lowerExpr(d.Cond))
	ctx.genBranch(cond, thenL, falseL)

	ctx.startBlock(thenL)
	ctx.lowerStmt(d.Then)
	ctx.genJump(endL)

	if elseL != nil {
		ctx.startBlock(elseL)
		ctx.lowerStmt(d.Else)
		ctx.genJump(endL)
	}
	ctx.startBlock(endL)
}

func (ctx *Context) lowerWhile(node *ast.Node) {
	d := node.Data.(ast.WhileNode)
	n := ctx.newLabelIndex()
	entryL, bodyL, endL := label("while_entry", n), label("while_body", n), label("while_end", n)

	ctx.startBlock(entryL)
	cond := ctx.scalar(d.Cond.Tok, ctx.lowerExpr(d.Cond))
	ctx.genBranch(cond, bodyL, endL)

	ctx.loops = append(ctx.loops, loopContext{entry: entryL, exit: endL})
	ctx.startBlock(bodyL)
	ctx.lowerStmt(d.Body)
	ctx.genJump(entryL)
	ctx.loops = ctx.loops[:len(ctx.loops)-1]

	ctx.startBlock(endL)
}

func (ctx *Context) lowerReturn(node *ast.Node) {
	d := node.Data.(ast.ReturnNode)
	if d.Expr == nil {
		ctx.genRet(nil)
		return
	}
	if ctx.currentDef.ReturnsVoid {
		util.Error(d.Expr.Tok, "void function '%s' should not return a value", ctx.currentFunc.Name)
		return
	}
	ctx.genRet(ctx.scalar(d.Expr.Tok, ctx.lowerExpr(d.Expr)))
}
