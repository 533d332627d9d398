package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/lexer"
	"github.com/xplshn/sysyc/pkg/token"
)

var opNames = map[token.Type]string{
	token.Plus: "+", token.Minus: "-", token.Not: "!", token.Star: "*",
	token.Slash: "/", token.Rem: "%", token.Lt: "<", token.EqEq: "==",
	token.AndAnd: "&&", token.OrOr: "||",
}

// sexpr renders an expression tree in prefix form.
func sexpr(n *ast.Node) string {
	switch d := n.Data.(type) {
	case ast.NumberNode:
		return fmt.Sprint(d.Value)
	case ast.LValNode:
		return d.Name
	case ast.UnaryOpNode:
		return fmt.Sprintf("(%s %s)", opNames[d.Op], sexpr(d.Expr))
	case ast.BinaryOpNode:
		return fmt.Sprintf("(%s %s %s)", opNames[d.Op], sexpr(d.Left), sexpr(d.Right))
	case ast.FuncCallNode:
		args := make([]string, len(d.Args))
		for i, a := range d.Args {
			args[i] = sexpr(a)
		}
		return fmt.Sprintf("%s(%s)", d.Name, strings.Join(args, " "))
	}
	return "?" + n.Type.String()
}

func returnExpr(t *testing.T, src string) string {
	t.Helper()
	toks := lexer.NewLexer([]rune(src), 0, config.NewConfig()).Tokenize()
	root := NewParser(toks).Parse()
	fn := root.Data.(ast.CompUnitNode).Items[0].Data.(ast.FuncDefNode)
	items := fn.Body.Data.(ast.BlockNode).Items
	ret := items[len(items)-1].Data.(ast.ReturnNode)
	return sexpr(ret.Expr)
}

func TestUnaryOperators(t *testing.T) {
	cases := map[string]string{
		"-x":            "(- x)",
		"!x":            "(! x)",
		"+x":            "(+ x)",
		"- -1":          "(- (- 1))",
		"!-+x":          "(! (- (+ x)))",
		"-x + !y - +3":  "(- (+ (- x) (! y)) (+ 3))",
		"-f(x) * 2":     "(* (- f(x)) 2)",
		"!a || -b && c": "(|| (! a) (&& (- b) c))",
		"1 - -2 % x":    "(- 1 (% (- 2) x))",
		"-x < 0 == !y":  "(== (< (- x) 0) (! y))",
	}
	for expr, want := range cases {
		got := returnExpr(t, "int main() { return "+expr+"; }")
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", expr, diff)
		}
	}
}
