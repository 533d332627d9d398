// Package compiler strings the stages together: source to syntax tree, tree
// to Koopa text, Koopa text to a program graph, graph to assembly, and
// optionally assembly to a simulated run.
package compiler

import (
	"context"
	"fmt"
	"io"

	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/backend"
	"github.com/xplshn/sysyc/pkg/codegen"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/ir"
	"github.com/xplshn/sysyc/pkg/koopa"
	"github.com/xplshn/sysyc/pkg/lexer"
	"github.com/xplshn/sysyc/pkg/parser"
	"github.com/xplshn/sysyc/pkg/rvsim"
	"github.com/xplshn/sysyc/pkg/util"
)

// Unit is one compiled source file at every stage reached so far.
type Unit struct {
	Name  string
	Tree  *ast.Node
	IR    *ir.Program
	Koopa string
	Graph *koopa.Program
}

// Parse lexes and parses src. Syntax errors are fatal diagnostics.
func Parse(name string, src []rune, cfg *config.Config) *Unit {
	util.SetSourceFiles([]util.SourceFileRecord{{Name: name, Content: src}})
	util.Info(cfg, "tokenizing %s", name)
	toks := lexer.NewLexer(src, 0, cfg).Tokenize()
	util.Info(cfg, "parsing %d token(s)", len(toks))
	return &Unit{Name: name, Tree: parser.NewParser(toks).Parse()}
}

// Lower produces the Koopa text for u and parses it back into a graph.
func (u *Unit) Lower(cfg *config.Config) error {
	util.Info(cfg, "lowering %s to Koopa IR", u.Name)
	u.IR = codegen.NewContext(cfg).GenerateIR(u.Tree)
	u.Koopa = u.IR.String()

	graph, err := koopa.Parse(u.Koopa)
	if err != nil {
		return fmt.Errorf("lowered IR does not parse: %w", err)
	}
	u.Graph = graph
	return nil
}

// Assemble runs the backend picked by cfg.Mode over the lowered graph.
func (u *Unit) Assemble(cfg *config.Config) (string, error) {
	if u.Graph == nil {
		if err := u.Lower(cfg); err != nil {
			return "", err
		}
	}
	util.Info(cfg, "generating assembly")
	buf, err := backend.ForMode(cfg.Mode).Generate(u.Graph, cfg)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Run assembles asm for the simulator and calls main with the given
// standard streams, returning main's result.
func Run(ctx context.Context, asm string, stdin io.Reader, stdout, stderr io.Writer, cfg *config.Config) (int32, error) {
	prog, err := rvsim.Assemble(asm)
	if err != nil {
		return 0, fmt.Errorf("assembling for simulation: %w", err)
	}
	m := rvsim.NewMachine(prog, stdin, stdout)
	m.MaxSteps = cfg.MaxSteps
	m.Stderr = stderr
	util.Info(cfg, "running %d instruction(s)", len(prog.Text))
	ret, err := m.Run(ctx)
	util.Info(cfg, "executed %d step(s)", m.Steps)
	return ret, err
}

// Execute compiles src to RISC-V and runs it.
func Execute(ctx context.Context, name string, src []rune, stdin io.Reader, stdout, stderr io.Writer, cfg *config.Config) (int32, error) {
	saved := cfg.Mode
	cfg.Mode = config.ModeRiscV
	defer func() { cfg.Mode = saved }()

	asm, err := Parse(name, src, cfg).Assemble(cfg)
	if err != nil {
		return 0, err
	}
	return Run(ctx, asm, stdin, stdout, stderr, cfg)
}
