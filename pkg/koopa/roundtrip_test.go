package koopa_test

import (
	"testing"

	"github.com/xplshn/sysyc/pkg/codegen"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/koopa"
	"github.com/xplshn/sysyc/pkg/lexer"
	"github.com/xplshn/sysyc/pkg/parser"
)

var programs = map[string]string{
	"arith": `int main() { int a = 3; return -a * 2 + !a % 5; }`,
	"loops": `
int main() {
	int i = 0, s = 0;
	while (i < 10) {
		if (i % 2 == 0 && i != 4 || i == 7) s = s + i;
		else { i = i + 1; continue; }
		i = i + 1;
	}
	return s;
}`,
	"arrays": `
const int N = 3;
int g[N][2] = {1, 2, {3}};
int sum(int a[][2], int n) {
	int i = 0, s = 0;
	while (i < n) { s = s + a[i][0] + a[i][1]; i = i + 1; }
	return s;
}
void fill(int a[], int v) { a[0] = v; }
int main() {
	int l[2][2] = {{getint()}, {5, 6}};
	fill(l[0], 9);
	putarray(2, l[1]);
	return sum(g, N) + sum(l, 2);
}`,
	"dead code": `int main() { { return 1; } return 2; }`,
	"dead control flow": `int main() { return 1; if (getint()) { putint(2); } while (1) { break; } }`,
	"names shaped like lowered ones": `
int x;
int x_0() { return 1; }
int f(int a_1, int x_0_1) { int a = a_1; { int a = x_0_1; return a; } }
int y_0_2 = 5;
int main() { int sc = 0; return x_0() + x + f(1, 2) + (sc || y_0_2); }`,
}

func TestLoweredProgramsParse(t *testing.T) {
	for name, src := range programs {
		t.Run(name, func(t *testing.T) {
			cfg := config.NewConfig()
			toks := lexer.NewLexer([]rune(src), 0, cfg).Tokenize()
			root := parser.NewParser(toks).Parse()
			text := codegen.NewContext(cfg).GenerateIR(root).String()
			if _, err := koopa.Parse(text); err != nil {
				t.Fatalf("%v\n%s", err, text)
			}
		})
	}
}
