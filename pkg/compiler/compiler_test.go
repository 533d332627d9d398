package compiler

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/sysyc/pkg/backend"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/util"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	util.Output = io.Discard
	util.Fatal = func(msg string) { panic(msg) }
	os.Exit(m.Run())
}

// runCode compiles src, runs it in the simulator and returns main's result
// and everything written to stdout.
func runCode(t *testing.T, src, input string) (int32, string) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.MaxSteps = 5_000_000
	var out bytes.Buffer
	ret, err := Execute(context.Background(), t.Name()+".sy", []rune(src), strings.NewReader(input), &out, io.Discard, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return ret, out.String()
}

func TestEndToEnd(t *testing.T) {
	cases := []struct {
		name  string
		src   string
		input string
		ret   int32
		out   string
	}{
		{
			name: "nested array initializer",
			src:  `int main(){ int a[2][2] = {{1,2},{3,4}}; return a[1][0]; }`,
			ret:  3,
		},
		{
			name: "short circuit skips calls",
			src: `
int n = 0;
int f(int v) { n = n + 1; return v; }
int main() {
	if (f(0) && f(1)) putint(9);
	if (f(1) || f(0)) putint(7);
	putint(n);
	return 0;
}`,
			out: "72",
		},
		{
			name: "stack passed arguments",
			src: `
int sum10(int a, int b, int c, int d, int e, int f, int g, int h, int i, int j) {
	return a + b * 2 + c + d + e + f + g + h + i * 10 + j * 100;
}
int main() { return sum10(1, 1, 1, 1, 1, 1, 1, 1, 2, 1); }`,
			ret: 129,
		},
		{
			name:  "getarray and putarray",
			src:   `int main() { int a[5]; int n = getarray(a); putarray(n, a); return n; }`,
			input: "3\n7 8 9\n",
			ret:   3,
			out:   "3: 7 8 9\n",
		},
		{
			name: "loops with break and continue",
			src: `
int g[3] = {1, 2};
int main() {
	int i = 0, s = 0;
	while (1) {
		i = i + 1;
		if (i > 10) break;
		if (i % 2) continue;
		s = s + i;
	}
	putint(s);
	putch(10);
	return g[1] + g[2];
}`,
			ret: 2,
			out: "30\n",
		},
		{
			name: "recursion",
			src: `
int fib(int n) {
	if (n < 2) return n;
	return fib(n - 1) + fib(n - 2);
}
int main() { return fib(10); }`,
			ret: 55,
		},
		{
			name: "array parameters",
			src: `
const int N = 3;
int g[N][2] = {1, 2, {3}, 4, 5};
int sum(int a[][2], int n) {
	int i = 0, s = 0;
	while (i < n) { s = s + a[i][0] + a[i][1]; i = i + 1; }
	return s;
}
void fill(int a[], int v) { a[1] = v; }
int main() {
	fill(g[1], 10);
	return sum(g, N);
}`,
			ret: 25,
		},
		{
			name: "constant folding",
			src: `
const int N = 2 + 3, M[2] = {N * 2, N - 1};
int a[M[0]];
int main() { a[M[1] + 5] = N; return a[9] + M[1]; }`,
			ret: 9,
		},
		{
			name: "frame beyond immediate range",
			src:  `int main() { int a[1000]; a[999] = 5; int b = 2; return a[999] * b; }`,
			ret:  10,
		},
		{
			name: "unary operators",
			src:  `int main() { int x = 5; return -x + 10 + !x + !0 + +x - -1; }`,
			ret:  12,
		},
		{
			name: "names shaped like lowered ones",
			src:  `int x = 4; int x_0() { return 1; } int main() { return x_0() + x; }`,
			ret:  5,
		},
		{
			name: "signed division",
			src:  `int main() { putint(-7 / 2); putch(32); putint(-7 % 2); return 0; }`,
			out:  "-3 -1",
		},
		{
			name: "getint and getch",
			src: `
int main() {
	int a = getint(), b = getint();
	int c = getch();
	c = getch();
	putch(c);
	return a * b;
}`,
			input: "6 7\nz",
			ret:   42,
			out:   "z",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ret, out := runCode(t, tc.src, tc.input)
			if ret != tc.ret {
				t.Errorf("main returned %d, want %d", ret, tc.ret)
			}
			if diff := cmp.Diff(tc.out, out); diff != "" {
				t.Errorf("stdout (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeatureVariantsAgree(t *testing.T) {
	src := `
int main() {
	int i = 0, s = 0;
	while (i < 20) {
		if (i % 3 == 0 || i % 5 == 0) s = s + i;
		i = i + 1;
	}
	return s;
}`
	for _, flags := range [][]string{
		nil,
		{"-Fdouble-frame"},
		{"-Fno-trampoline", "-Fno-qualify-labels"},
	} {
		cfg := config.NewConfig()
		if err := cfg.ProcessFlags(flags); err != nil {
			t.Fatal(err)
		}
		ret, err := Execute(context.Background(), "variants.sy", []rune(src), strings.NewReader(""), io.Discard, io.Discard, cfg)
		if err != nil {
			t.Fatalf("%v: Execute: %v", flags, err)
		}
		if ret != 78 {
			t.Errorf("%v: main returned %d, want 78", flags, ret)
		}
	}
}

func TestQBEOutput(t *testing.T) {
	cfg := config.NewConfig()
	u := Parse("qbe.sy", []rune(`int g[2] = {1}; int main() { return g[0]; }`), cfg)
	if err := u.Lower(cfg); err != nil {
		t.Fatal(err)
	}
	il, err := backend.GenerateIL(u.Graph, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"data $g_0 = { w 1, w 0 }", "export function w $main() {"} {
		if !strings.Contains(il, want) {
			t.Errorf("IL lacks %q:\n%s", want, il)
		}
	}
}

type manifestCase struct {
	Name   string   `yaml:"name"`
	File   string   `yaml:"file"`
	Args   []string `yaml:"args"`
	Input  string   `yaml:"input"`
	Stdout string   `yaml:"stdout"`
	Exit   int32    `yaml:"exit"`
	Error  string   `yaml:"error"`
}

// TestManifestCases runs the gtest suite in-process.
func TestManifestCases(t *testing.T) {
	data, err := os.ReadFile("../../tests/manifest.yaml")
	if err != nil {
		t.Fatal(err)
	}
	var manifest struct {
		Cases []manifestCase `yaml:"cases"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		t.Fatal(err)
	}

	for _, c := range manifest.Cases {
		if len(c.Args) > 0 {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.File
		}
		t.Run(name, func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join("../../tests", c.File))
			if err != nil {
				t.Fatal(err)
			}
			if c.Error != "" {
				defer func() {
					msg, _ := recover().(string)
					if !strings.Contains(msg, c.Error) {
						t.Errorf("diagnostic %q does not contain %q", msg, c.Error)
					}
				}()
			}
			ret, out := runCode(t, string(src), c.Input)
			if c.Error != "" {
				t.Fatalf("compiled without the expected error %q", c.Error)
			}
			if ret&0xff != c.Exit {
				t.Errorf("exit %d, want %d", ret&0xff, c.Exit)
			}
			if diff := cmp.Diff(c.Stdout, out); diff != "" {
				t.Errorf("stdout (-want +got):\n%s", diff)
			}
		})
	}
}
