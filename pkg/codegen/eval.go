package codegen

import (
	"fmt"

	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/symtab"
	"github.com/xplshn/sysyc/pkg/token"
	"github.com/xplshn/sysyc/pkg/util"
)

// EvalError reports why an expression could not be folded.
type EvalError struct {
	Tok token.Token
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

func evalErrorf(tok token.Token, format string, args ...interface{}) *EvalError {
	return &EvalError{Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// evaluate folds a constant expression, aborting compilation if it is not one.
func (ctx *Context) evaluate(node *ast.Node) int32 {
	v, err := ctx.fold(node)
	if err != nil {
		util.Error(err.Tok, "%s", err.Msg)
	}
	return v
}

// fold computes the value of a constant expression with 32-bit wraparound.
// It never emits instructions.
func (ctx *Context) fold(node *ast.Node) (int32, *EvalError) {
	switch node.Type {
	case ast.Number:
		return int32(node.Data.(ast.NumberNode).Value), nil

	case ast.LVal:
		d := node.Data.(ast.LValNode)
		sym := ctx.syms.Find(d.Name)
		if sym == nil {
			return 0, evalErrorf(node.Tok, "use of undeclared identifier '%s'", d.Name)
		}
		switch {
		case sym.Kind == symtab.Const && len(d.Indices) == 0:
			return sym.Value, nil
		case sym.Kind == symtab.ConstArray && len(d.Indices) == len(sym.Dims):
			offset := 0
			for i, in := range d.Indices {
				idx, err := ctx.fold(in)
				if err != nil {
					return 0, err
				}
				if idx < 0 || int(idx) >= sym.Dims[i] {
					return 0, evalErrorf(in.Tok, "index %d is out of bounds for dimension %d of '%s'", idx, sym.Dims[i], d.Name)
				}
				offset = offset*sym.Dims[i] + int(idx)
			}
			return sym.Elems[offset], nil
		}
		return 0, evalErrorf(node.Tok, "'%s' is not a constant expression", d.Name)

	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		v, err := ctx.fold(d.Expr)
		if err != nil {
			return 0, err
		}
		switch d.Op {
		case token.Plus:
			return v, nil
		case token.Minus:
			return -v, nil
		case token.Not:
			return boolInt(v == 0), nil
		}

	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		l, err := ctx.fold(d.Left)
		if err != nil {
			return 0, err
		}
		if d.Op == token.AndAnd && l == 0 {
			return 0, nil
		}
		if d.Op == token.OrOr && l != 0 {
			return 1, nil
		}
		r, err := ctx.fold(d.Right)
		if err != nil {
			return 0, err
		}
		switch d.Op {
		case token.Plus:
			return l + r, nil
		case token.Minus:
			return l - r, nil
		case token.Star:
			return l * r, nil
		case token.Slash, token.Rem:
			if r == 0 {
				return 0, evalErrorf(d.Right.Tok, "division by zero in constant expression")
			}
			if d.Op == token.Slash {
				return l / r, nil
			}
			return l % r, nil
		case token.Lt:
			return boolInt(l < r), nil
		case token.Gt:
			return boolInt(l > r), nil
		case token.Lte:
			return boolInt(l <= r), nil
		case token.Gte:
			return boolInt(l >= r), nil
		case token.EqEq:
			return boolInt(l == r), nil
		case token.Neq:
			return boolInt(l != r), nil
		case token.AndAnd, token.OrOr:
			return boolInt(r != 0), nil
		}

	case ast.FuncCall:
		return 0, evalErrorf(node.Tok, "function call in a constant expression")
	}
	return 0, evalErrorf(node.Tok, "expression is not constant")
}

// evalDims folds array dimensions, which must be positive.
func (ctx *Context) evalDims(nodes []*ast.Node) []int {
	dims := make([]int, len(nodes))
	for i, n := range nodes {
		v := ctx.evaluate(n)
		if v <= 0 {
			util.Error(n.Tok, "array dimension must be positive, got %d", v)
		}
		dims[i] = int(v)
	}
	return dims
}
