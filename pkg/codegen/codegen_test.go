package codegen

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/ir"
	"github.com/xplshn/sysyc/pkg/lexer"
	"github.com/xplshn/sysyc/pkg/parser"
	"github.com/xplshn/sysyc/pkg/token"
	"github.com/xplshn/sysyc/pkg/util"
)

type fatalError string

func TestMain(m *testing.M) {
	util.Output = io.Discard
	util.Fatal = func(msg string) { panic(fatalError(msg)) }
	os.Exit(m.Run())
}

func lower(t *testing.T, src string) *ir.Program {
	t.Helper()
	cfg := config.NewConfig()
	toks := lexer.NewLexer([]rune(src), 0, cfg).Tokenize()
	root := parser.NewParser(toks).Parse()
	return NewContext(cfg).GenerateIR(root)
}

func expectFatal(t *testing.T, src, want string) {
	t.Helper()
	defer func() {
		r := recover()
		msg, ok := r.(fatalError)
		if !ok {
			t.Fatalf("expected a fatal diagnostic containing %q, got %v", want, r)
		}
		if !strings.Contains(string(msg), want) {
			t.Errorf("fatal diagnostic %q does not contain %q", msg, want)
		}
	}()
	lower(t, src)
}

func num(v int64) *ast.Node { return ast.NewNumber(token.Token{}, v) }

func list(items ...*ast.Node) *ast.Node { return ast.NewInitList(token.Token{}, items) }

func flatValues(t *testing.T, slots []*ast.Node) []int64 {
	t.Helper()
	out := make([]int64, len(slots))
	for i, s := range slots {
		if s != nil {
			out[i] = s.Data.(ast.NumberNode).Value
		}
	}
	return out
}

func TestFlatten(t *testing.T) {
	cases := []struct {
		name string
		dims []int
		init *ast.Node
		want []int64
	}{
		{"nested rows", []int{2, 3}, list(list(num(1), num(2)), list(num(3))), []int64{1, 2, 0, 3, 0, 0}},
		{"flat leaves", []int{2, 3}, list(num(1), num(2), num(3), num(4)), []int64{1, 2, 3, 4, 0, 0}},
		{"realign to inner dim", []int{2, 2, 2}, list(num(1), num(2), list(num(3), num(4)), num(5)), []int64{1, 2, 3, 4, 5, 0, 0, 0}},
		{"empty", []int{3}, list(), []int64{0, 0, 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			slots, err := flatten(c.init, c.dims)
			if err != nil {
				t.Fatalf("flatten failed: %s", err.Msg)
			}
			if diff := cmp.Diff(c.want, flatValues(t, slots)); diff != "" {
				t.Errorf("flattened mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlattenRejectsMisalignedList(t *testing.T) {
	if _, err := flatten(list(num(1), list(num(2))), []int{2, 3}); err == nil {
		t.Error("list starting at offset 1 of a [2][3] array was accepted")
	}
	if _, err := flatten(list(num(1), num(2), num(3)), []int{2}); err == nil {
		t.Error("excess initializer elements were accepted")
	}
}

func TestShadowedNamesGetDistinctSlots(t *testing.T) {
	out := lower(t, `int main() { int x = 1; { int x = 2; x = 3; } return x; }`).String()
	for _, want := range []string{"@x_1 = alloc i32", "@x_2 = alloc i32", "store 3, @x_2", "load @x_1"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestEveryBlockHasOneTerminator(t *testing.T) {
	prog := lower(t, `
int f(int a) {
	if (a) return 1; else return 2;
}
int main() {
	int i = 0;
	while (i < 10) {
		if (i == 5) break;
		i = i + 1;
		continue;
		i = 100;
	}
	return f(i);
	putint(i);
}`)
	for _, fn := range prog.Funcs {
		for _, b := range fn.Blocks {
			terms := 0
			for _, instr := range b.Instructions {
				if instr.Op.IsTerminator() {
					terms++
				}
			}
			if terms != 1 || !b.Terminated() {
				t.Errorf("%s %s: %d terminators, terminated=%v", fn.Name, b.Label, terms, b.Terminated())
			}
		}
	}
}

func TestEarlyReturnDropsTail(t *testing.T) {
	out := lower(t, `int main() { { return 1; } putint(2); return 3; }`).String()
	if n := strings.Count(out, "ret "); n != 1 {
		t.Errorf("got %d ret instructions, want 1:\n%s", n, out)
	}
	if strings.Contains(out, "call @putint") {
		t.Errorf("unreachable call was lowered:\n%s", out)
	}
}

func TestUnreachableCodeIsDiscarded(t *testing.T) {
	out := lower(t, `
int main() {
	return 1;
	if (getint()) { putint(2); }
	while (1) { putch(3); }
	int x = 4;
	return x;
}`).String()
	for _, dropped := range []string{"call @", "%unreachable", "%then_", "%while_", "@x_"} {
		if strings.Contains(out, dropped) {
			t.Errorf("unreachable code leaked %q into:\n%s", dropped, out)
		}
	}
	if n := strings.Count(out, "ret "); n != 1 {
		t.Errorf("got %d ret instructions, want 1:\n%s", n, out)
	}
}

func TestLoweredNamesNeverCollide(t *testing.T) {
	cases := []struct {
		src  string
		want []string
	}{
		{
			`int x; int x_0() { return 1; } int main() { return x_0() + x; }`,
			[]string{"global @x_0_1 = alloc i32, zeroinit", "fun @x_0(): i32 {", "load @x_0_1"},
		},
		{
			`int f(int a_1) { int a = a_1; return a; } int main() { return f(2); }`,
			[]string{"fun @f(@a_1: i32): i32 {", "@a_1_1 = alloc i32", "store @a_1, @a_1_1", "@a_1_2 = alloc i32"},
		},
		{
			`int g(int y_0) { return y_0; } int y = 3; int main() { return g(y); }`,
			[]string{"fun @g(@y_0: i32): i32 {", "@y_0_1 = alloc i32", "global @y_0_2 = alloc i32, 3"},
		},
	}
	for i, c := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			out := lower(t, c.src).String()
			for _, want := range c.want {
				if !strings.Contains(out, want) {
					t.Errorf("missing %q in:\n%s", want, out)
				}
			}
		})
	}
}

func TestUninitializedGlobalArrayIsNotExpanded(t *testing.T) {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	out := lower(t, `int big[100000000]; int main() { return big[99999999]; }`).String()
	runtime.ReadMemStats(&after)

	if !strings.Contains(out, "global @big_0 = alloc [i32, 100000000], zeroinit") {
		t.Errorf("unexpected global in:\n%s", out)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 64<<20 {
		t.Errorf("lowering allocated %d bytes for a zero-initialized global", grew)
	}
}

func TestImplicitReturn(t *testing.T) {
	prog := lower(t, `int f() { } void g() { }`)
	want := map[string]string{"f": "ret 0", "g": "ret"}
	for _, fn := range prog.Funcs {
		var sb strings.Builder
		ir.Print(&sb, &ir.Program{Funcs: []*ir.Func{fn}})
		lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
		last := strings.TrimSpace(lines[len(lines)-2])
		if last != want[fn.Name] {
			t.Errorf("%s ends with %q, want %q", fn.Name, last, want[fn.Name])
		}
	}
}

func TestShortCircuitLowering(t *testing.T) {
	out := lower(t, `
int f() { return 0; }
int g() { return 1; }
int main() { return f() && g(); }`).String()

	main := out[strings.Index(out, "fun @main"):]
	rhs := strings.Index(main, "%sc_rhs_0:")
	if rhs < 0 {
		t.Fatalf("no right-hand block in:\n%s", main)
	}
	if !regexp.MustCompile(`store 0, @sc_\d+`).MatchString(main) {
		t.Errorf("&& result slot is not preset to 0:\n%s", main)
	}
	if call := strings.Index(main, "call @g"); call < rhs {
		t.Errorf("call to g is not confined to the right-hand block:\n%s", main)
	}
	if !regexp.MustCompile(`br %\d+, %sc_rhs_0, %sc_end_0`).MatchString(main) {
		t.Errorf("left operand does not branch around the right-hand side:\n%s", main)
	}

	or := lower(t, `int main() { int a = 1; return a || a; }`).String()
	if !regexp.MustCompile(`store 1, @sc_\d+`).MatchString(or) || !strings.Contains(or, ", %sc_end_0, %sc_rhs_0") {
		t.Errorf("|| lowering is wrong:\n%s", or)
	}
}

func TestGlobalInitializers(t *testing.T) {
	out := lower(t, `
const int N = 2;
int g = N * 3;
int z;
int a[N][2] = {{1}, {2, 3}};
int b[3];
const int c[2] = {4, 5};
int main() { return c[1]; }`).String()
	for _, want := range []string{
		"global @g_0 = alloc i32, 6",
		"global @z_0 = alloc i32, zeroinit",
		"global @a_0 = alloc [[i32, 2], 2], {{1, 0}, {2, 3}}",
		"global @b_0 = alloc [i32, 3], zeroinit",
		"global @c_0 = alloc [i32, 2], {4, 5}",
		"ret 5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "@N_0") {
		t.Errorf("scalar constant was materialized:\n%s", out)
	}
}

func TestArrayParameters(t *testing.T) {
	out := lower(t, `
int sum(int a[][3], int n) { return a[n][1]; }
int main() {
	int m[2][3];
	putarray(3, m[1]);
	return sum(m, 1);
}`).String()
	for _, want := range []string{
		"fun @sum(@a: *[i32, 3], @n: i32): i32",
		"store @a, @a_1",
		"getptr %",
		"call @putarray(3, %",
		"call @sum(%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestLocalArrayInitStoresEverySlot(t *testing.T) {
	out := lower(t, `int main() { int a[2][2] = {{1, 2}, {3}}; return a[1][0]; }`).String()
	if n := strings.Count(out, "store "); n != 4 {
		t.Errorf("got %d stores, want 4:\n%s", n, out)
	}
	if !strings.Contains(out, "@a_1 = alloc [[i32, 2], 2]") {
		t.Errorf("array slot missing:\n%s", out)
	}
}

func TestTemporariesAreUniqueAcrossFunctions(t *testing.T) {
	out := lower(t, `
int x;
int f() { return x + 1; }
int main() { return x + f(); }`).String()
	seen := map[string]bool{}
	for _, m := range regexp.MustCompile(`(?m)^\s+(%\d+) =`).FindAllStringSubmatch(out, -1) {
		if seen[m[1]] {
			t.Errorf("temporary %s defined twice:\n%s", m[1], out)
		}
		seen[m[1]] = true
	}
}

func TestFatalDiagnostics(t *testing.T) {
	cases := []struct{ src, want string }{
		{`int main() { break; }`, "'break' statement not in loop"},
		{`int main() { continue; }`, "'continue' statement not in loop"},
		{`int main() { int a; int a; return 0; }`, "redefinition of 'a'"},
		{`int main() { return y; }`, "undeclared identifier 'y'"},
		{`void f() { return 1; } int main() { return 0; }`, "should not return a value"},
		{`int f() { return; } int main() { return 0; }`, "returns without a value"},
		{`const int x = 1 / 0;`, "division by zero"},
		{`int main() { int v = 2; const int c = v; return c; }`, "not a constant expression"},
		{`int main() { const int c = 1; c = 2; return 0; }`, "cannot assign to constant"},
		{`int main() { return getint(1); }`, "expects 0 argument(s)"},
		{`int main() { int a[2]; putint(a); return 0; }`, "must be an integer"},
		{`int main() { int a[2] = {1, {2}}; return 0; }`, "braces around scalar"},
		{`int main() { int x; return x[0]; }`, "not an array"},
		{`int main() { return 0; undeclared = 1; }`, "undeclared identifier 'undeclared'"},
		{`int main() { while (1) { break; int a; int a; } return 0; }`, "redefinition of 'a'"},
	}
	for i, c := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) { expectFatal(t, c.src, c.want) })
	}
}
