package koopa

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sample = `
decl @getint(): i32
decl @putint(i32)

global @g_0 = alloc [[i32, 2], 2], {{1, 2}, {3, 4}}
global @n_0 = alloc i32, zeroinit

fun @f(@a: *[i32, 2], @n: i32): i32 {
%entry:
  @a_1 = alloc *[i32, 2]
  store @a, @a_1
  %0 = load @a_1
  %1 = getptr %0, @n
  %2 = getelemptr %1, 1
  %3 = load %2
  br %3, %then_0, %end_0
%then_0:
  call @putint(%3)
  jump %end_0
%end_0:
  ret %3
}
`

func TestParseBuildsTypedGraph(t *testing.T) {
	prog, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var names []string
	for _, f := range prog.Funcs {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"getint", "putint", "f"}, names); diff != "" {
		t.Errorf("functions (-want +got):\n%s", diff)
	}
	if !prog.Func("getint").IsDecl() || prog.Func("f").IsDecl() {
		t.Error("declaration/definition mix-up")
	}
	if ft := prog.Func("f").Ty; ft.Tag != FuncType || ft.String() != "(*[i32, 2], i32): i32" {
		t.Errorf("f has type %s", ft)
	}

	g := prog.Values[0]
	if g.Ty.String() != "*[[i32, 2], 2]" || g.Init.Kind != Aggregate || g.Init.Elems[1].Elems[0].Int != 3 {
		t.Errorf("global g parsed as %s with init %+v", g.Ty, g.Init)
	}
	if g.Ty.Elem.Size() != 16 {
		t.Errorf("[[i32, 2], 2] has size %d, want 16", g.Ty.Elem.Size())
	}

	f := prog.Func("f")
	if len(f.Blocks) != 3 {
		t.Fatalf("f has %d blocks, want 3", len(f.Blocks))
	}
	entry := f.Blocks[0].Insts
	wantTypes := []string{"**[i32, 2]", "unit", "*[i32, 2]", "*[i32, 2]", "*i32", "i32", "unit"}
	var gotTypes []string
	for _, inst := range entry {
		gotTypes = append(gotTypes, inst.Ty.String())
	}
	if diff := cmp.Diff(wantTypes, gotTypes); diff != "" {
		t.Errorf("entry instruction types (-want +got):\n%s", diff)
	}
	if entry[3].Idx != f.Params[1] {
		t.Error("getptr index does not reference parameter @n")
	}
	br := entry[len(entry)-1]
	if br.Kind != Branch || br.True != f.Blocks[1] || br.False != f.Blocks[2] {
		t.Error("branch targets are not linked to the parsed blocks")
	}
	call := f.Blocks[1].Insts[0]
	if call.Kind != Call || call.Callee != prog.Func("putint") || call.Ty.Tag != Unit {
		t.Errorf("call parsed as %+v", call)
	}
	if ret := f.Blocks[2].Insts[0]; ret.Kind != Return || ret.Ret != entry[5] {
		t.Error("ret does not return %3")
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"fun @f(): i32 {\n%entry:\n  ret %9\n}":                     "undefined value %9",
		"fun @f() {\n%entry:\n  jump %nowhere\n}":                   "undefined basic block %nowhere",
		"fun @f() {\n%entry:\n  %0 = add 1, 2\n}":                   "does not end with a terminator",
		"fun @f() {\n%entry:\n  ret\n  ret\n}":                      "after its terminator",
		"global @x = alloc i32, {1}":                                "aggregate initializer",
		"fun @f() {\n%entry:\n  call @g()\n  ret\n}":                "undeclared function @g",
		"decl @p(i32)\nfun @f() {\n%entry:\n  call @p()\n  ret\n}": "takes 1 argument(s)",
	}
	for src, want := range cases {
		_, err := Parse(src)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("Parse(%q) = %v, want a *ParseError", src, err)
			continue
		}
		if !strings.Contains(perr.Msg, want) {
			t.Errorf("Parse(%q) error %q does not mention %q", src, perr.Msg, want)
		}
	}
}

func TestForwardBlockReference(t *testing.T) {
	src := `fun @main(): i32 {
%entry:
  jump %later
%later:
  ret 0
}`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f := prog.Func("main")
	if f.Blocks[0].Insts[0].Target != f.Blocks[1] {
		t.Error("forward jump target not resolved to the later block")
	}
}
