package ir

import (
	"fmt"
	"io"
	"strings"
)

type printer struct {
	out io.Writer
}

// Print writes the program in Koopa text form.
func Print(w io.Writer, p *Program) {
	pr := &printer{out: w}
	pr.gen(p)
}

func (p *Program) String() string {
	var sb strings.Builder
	Print(&sb, p)
	return sb.String()
}

func (pr *printer) gen(p *Program) {
	for _, d := range p.Decls {
		pr.genDecl(d)
	}
	if len(p.Decls) > 0 {
		fmt.Fprintln(pr.out)
	}
	for _, g := range p.Globals {
		fmt.Fprintf(pr.out, "global @%s = alloc %s, %s\n", g.Name, g.Typ, g.Init)
	}
	if len(p.Globals) > 0 {
		fmt.Fprintln(pr.out)
	}
	for i, f := range p.Funcs {
		if i > 0 {
			fmt.Fprintln(pr.out)
		}
		pr.genFunc(f)
	}
}

func (pr *printer) genDecl(f *Func) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Typ.String()
	}
	fmt.Fprintf(pr.out, "decl @%s(%s)", f.Name, strings.Join(params, ", "))
	if f.Ret != nil {
		fmt.Fprintf(pr.out, ": %s", f.Ret)
	}
	fmt.Fprintln(pr.out)
}

func (pr *printer) genFunc(f *Func) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("@%s: %s", p.Name, p.Typ)
	}
	fmt.Fprintf(pr.out, "fun @%s(%s)", f.Name, strings.Join(params, ", "))
	if f.Ret != nil {
		fmt.Fprintf(pr.out, ": %s", f.Ret)
	}
	fmt.Fprintln(pr.out, " {")

	for i, block := range f.Blocks {
		fmt.Fprintf(pr.out, "%s:\n", block.Label)
		if i == 0 {
			for _, a := range f.Allocs {
				pr.genInstr(a)
			}
		}
		for _, instr := range block.Instructions {
			pr.genInstr(instr)
		}
	}
	fmt.Fprintln(pr.out, "}")
}

func (pr *printer) genInstr(instr *Instruction) {
	fmt.Fprint(pr.out, "  ")
	if instr.Result != nil {
		fmt.Fprintf(pr.out, "%s = ", instr.Result)
	}

	switch instr.Op {
	case OpAlloc:
		fmt.Fprintf(pr.out, "alloc %s", instr.Typ)
	case OpCall:
		fmt.Fprintf(pr.out, "call @%s(%s)", instr.Callee, joinValues(instr.Args))
	case OpRet:
		fmt.Fprint(pr.out, "ret")
		if len(instr.Args) > 0 && instr.Args[0] != nil {
			fmt.Fprintf(pr.out, " %s", instr.Args[0])
		}
	default:
		fmt.Fprintf(pr.out, "%s %s", instr.Op, joinValues(instr.Args))
	}
	fmt.Fprintln(pr.out)
}

func joinValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
