package backend

import (
	"errors"
	"strings"
	"testing"

	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/koopa"
)

func parse(t *testing.T, src string) *koopa.Program {
	t.Helper()
	prog, err := koopa.Parse(src)
	if err != nil {
		t.Fatalf("koopa.Parse: %v", err)
	}
	return prog
}

func assemble(t *testing.T, src string, cfg *config.Config) string {
	t.Helper()
	asm, err := Assembly(parse(t, src), cfg)
	if err != nil {
		t.Fatalf("Assembly: %v", err)
	}
	return asm
}

func expectLines(t *testing.T, asm string, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if !strings.Contains(asm, line+"\n") {
			t.Errorf("assembly lacks %q:\n%s", line, asm)
		}
	}
}

func TestFrameSize(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want int
		call bool
	}{
		{"leaf", "fun @f(): i32 {\n%entry:\n  %0 = add 1, 2\n  ret %0\n}", 16, false},
		{"array", "fun @f() {\n%entry:\n  @a_0 = alloc [i32, 5]\n  ret\n}", 32, false},
		{"caller", "decl @putint(i32)\nfun @f() {\n%entry:\n  call @putint(1)\n  ret\n}", 16, true},
		{"overflow args", "decl @g(" + strings.TrimSuffix(strings.Repeat("i32, ", 12), ", ") + ")\nfun @f() {\n%entry:\n  call @g(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)\n  ret\n}", 32, true},
		{"overflow params", "fun @f(@a: i32, @b: i32, @c: i32, @d: i32, @e: i32, @f: i32, @g: i32, @h: i32, @i: i32, @j: i32, @k: i32, @l: i32, @m: i32) {\n%entry:\n  ret\n}", 32, false},
	}
	cfg := config.NewConfig()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog := parse(t, tc.src)
			size, call := FrameSize(prog.Func("f"), cfg)
			if size != tc.want || call != tc.call {
				t.Errorf("FrameSize = (%d, %v), want (%d, %v)", size, call, tc.want, tc.call)
			}
		})
	}

	cfg.SetFeature(config.FeatDoubleFrame, true)
	size, _ := FrameSize(parse(t, cases[0].src).Func("f"), cfg)
	if size != 32 {
		t.Errorf("double-frame size = %d, want 32", size)
	}
}

func TestLargeOffsetsGoThroughT3(t *testing.T) {
	asm := assemble(t, `fun @main(): i32 {
%entry:
  @a_0 = alloc [i32, 600]
  @x_0 = alloc i32
  store 7, @x_0
  %0 = load @x_0
  ret %0
}`, config.NewConfig())

	expectLines(t, asm,
		"  li t0, -2416",
		"  add sp, sp, t0",
		"  li t3, 2400",
		"  add t3, sp, t3",
		"  sw t0, 0(t3)",
		"  li t0, 2416",
	)
	if strings.Contains(asm, "2400(sp)") {
		t.Errorf("out-of-range offset used as an immediate:\n%s", asm)
	}
}

func TestGlobalData(t *testing.T) {
	asm := assemble(t, `global @g_0 = alloc [[i32, 2], 2], {{1, 2}, zeroinit}
global @n_0 = alloc i32, 5

fun @main(): i32 {
%entry:
  %0 = load @n_0
  ret %0
}`, config.NewConfig())

	if !strings.HasPrefix(asm, "  .data\n") {
		t.Errorf("assembly does not open with .data:\n%s", asm)
	}
	expectLines(t, asm,
		"  .globl g_0",
		"g_0:",
		"  .word 1",
		"  .word 2",
		"  .zero 8",
		"  .word 5",
		"  .text",
		"  .globl main",
		"  la t0, n_0",
		"  lw t0, 0(t0)",
	)
}

func TestBranchTrampolines(t *testing.T) {
	src := `fun @main(): i32 {
%entry:
  br 1, %then_0, %end_0
%end_0:
  br 0, %then_0, %end_1
%then_0:
  ret 1
%end_1:
  ret 0
}`
	asm := assemble(t, src, config.NewConfig())
	expectLines(t, asm,
		"  bnez t0, main_then_0_tmp",
		"  j main_end_0",
		"main_then_0_tmp:",
		"  bnez t0, main_then_0_tmp_1",
		"main_then_0_tmp_1:",
		"  j main_then_0",
	)
	if strings.Contains(asm, "main_entry:") {
		t.Errorf("entry label printed:\n%s", asm)
	}

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatTrampoline, false)
	cfg.SetFeature(config.FeatQualifyLabels, false)
	asm = assemble(t, src, cfg)
	expectLines(t, asm, "  bnez t0, then_0", "then_0:")
	if strings.Contains(asm, "_tmp") {
		t.Errorf("trampoline emitted with the feature disabled:\n%s", asm)
	}
}

func TestStackPassedArguments(t *testing.T) {
	asm := assemble(t, `fun @f(@a0: i32, @a1: i32, @a2: i32, @a3: i32, @a4: i32, @a5: i32, @a6: i32, @a7: i32, @a8: i32, @a9: i32): i32 {
%entry:
  ret @a9
}

fun @main(): i32 {
%entry:
  %0 = call @f(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
  ret %0
}`, config.NewConfig())

	expectLines(t, asm,
		"  lw a0, 4(sp)",
		"  li a7, 7",
		"  sw t0, -16(sp)",
		"  sw t0, -12(sp)",
		"  call f",
		"  sw ra, 12(sp)",
		"  lw ra, 12(sp)",
	)
}

func TestComparisonsAndPointers(t *testing.T) {
	asm := assemble(t, `fun @f(@p: *i32, @n: i32): i32 {
%entry:
  @p_0 = alloc *i32
  store @p, @p_0
  %0 = load @p_0
  %1 = getptr %0, @n
  store 3, %1
  %2 = load %1
  %3 = ge %2, @n
  ret %3
}`, config.NewConfig())

	expectLines(t, asm,
		"  sw a0, 0(sp)",
		"  li t2, 4",
		"  mul t1, t1, t2",
		"  slt t0, t0, t1",
		"  seqz t0, t0",
	)
}

func TestQBEIL(t *testing.T) {
	prog := parse(t, `decl @putint(i32)

global @g_0 = alloc [[i32, 2], 2], {{1, 2}, zeroinit}

fun @sum(@a: *[i32, 2], @i: i32): i32 {
%entry:
  @a_1 = alloc *[i32, 2]
  store @a, @a_1
  %0 = load @a_1
  %1 = getptr %0, @i
  %2 = getelemptr %1, 1
  %3 = load %2
  %4 = ne %3, 0
  br %4, %then_0, %end_0
%then_0:
  call @putint(%3)
  jump %end_0
%end_0:
  ret %3
}

fun @main(): i32 {
%entry:
  %5 = getelemptr @g_0, 0
  %6 = call @sum(%5, 1)
  ret %6
}`)
	il, err := GenerateIL(prog, config.NewConfig())
	if err != nil {
		t.Fatalf("GenerateIL: %v", err)
	}
	for _, want := range []string{
		"data $g_0 = { w 1, w 2, z 8 }",
		"export function w $sum(l %a, w %i) {",
		"@entry",
		"\t%a_1 =l alloc8 8",
		"\tstorel %a, %a_1",
		"\t%.0 =l loadl %a_1",
		"\t%.1.idx =l extsw %i",
		"\t%.1.off =l mul %.1.idx, 8",
		"\t%.2 =l add %.1, 4",
		"\t%.4 =w cnew %.3, 0",
		"\tjnz %.4, @then_0, @end_0",
		"\tcall $putint(w %.3)",
		"\t%.6 =w call $sum(l %.5, w 1)",
		"\tret %.6",
	} {
		if !strings.Contains(il, want+"\n") {
			t.Errorf("IL lacks %q:\n%s", want, il)
		}
	}
}

func TestCompileErrorKeepsCauseAndIL(t *testing.T) {
	cause := errors.New("invalid instruction")
	err := compileError("function w $main() {\n@start\n}\n", cause)
	if !errors.Is(err, cause) {
		t.Errorf("%v does not wrap its cause", err)
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "qbe: compiling IL: invalid instruction") || !strings.Contains(msg, "function w $main()") {
		t.Errorf("unexpected message:\n%s", msg)
	}
}
