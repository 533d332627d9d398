package rvsim

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func run(t *testing.T, src, input string) (int32, string, error) {
	t.Helper()
	prog, err := Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	var out bytes.Buffer
	m := NewMachine(prog, strings.NewReader(input), &out)
	m.MaxSteps = 100000
	ret, err := m.Run(context.Background())
	return ret, out.String(), err
}

func TestArithmeticAndCalls(t *testing.T) {
	src := `
  .data
  .globl g
g:
  .word 40, -2
  .zero 4

  .text
  .globl add2
add2:
  add a0, a0, a1
  ret

  .globl main
main:
  addi sp, sp, -16
  sw ra, 12(sp)
  la t0, g
  lw a0, 0(t0)
  lw a1, 4(t0)
  neg a1, a1
  call add2
  lw ra, 12(sp)
  addi sp, sp, 16
  ret
`
	ret, _, err := run(t, src, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ret != 42 {
		t.Errorf("main returned %d, want 42", ret)
	}
}

func TestBranches(t *testing.T) {
	// sum of 1..10
	src := `
main:
  li t0, 0
  li t1, 1
  li t2, 11
loop:
  slt t3, t1, t2
  bnez t3, body
  j done
body:
  add t0, t0, t1
  addi t1, t1, 1
  j loop
done:
  mv a0, t0
  ret
`
	ret, _, err := run(t, src, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ret != 55 {
		t.Errorf("main returned %d, want 55", ret)
	}
}

func TestDivisionEdgeCases(t *testing.T) {
	cases := []struct{ a, b, q, r int32 }{
		{7, 2, 3, 1},
		{-7, 2, -3, -1},
		{5, 0, -1, 5},
		{math.MinInt32, -1, math.MinInt32, 0},
	}
	for _, c := range cases {
		if q, r := div(c.a, c.b), rem(c.a, c.b); q != c.q || r != c.r {
			t.Errorf("%d / %d = (%d, %d), want (%d, %d)", c.a, c.b, q, r, c.q, c.r)
		}
	}
}

func TestRuntimeLibrary(t *testing.T) {
	src := `
  .data
buf:
  .zero 16
  .text
main:
  addi sp, sp, -16
  sw ra, 12(sp)
  call getint
  call putint
  li a0, 10
  call putch
  la a0, buf
  call getarray
  sw a0, 8(sp)
  la a1, buf
  call putarray
  call getch
  call getch
  call putch
  lw a0, 8(sp)
  lw ra, 12(sp)
  addi sp, sp, 16
  ret
`
	ret, out, err := run(t, src, "-17\n3 4 5 6\nx")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff("-17\n3: 4 5 6\nx", out); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
	if ret != 3 {
		t.Errorf("main returned %d, want 3", ret)
	}
}

func TestFaults(t *testing.T) {
	cases := map[string]string{
		"unmapped":   "main:\n  li t0, 16\n  lw a0, 0(t0)\n  ret",
		"misaligned": "  .data\nx:\n  .word 1\n  .text\nmain:\n  la t0, x\n  lw a0, 1(t0)\n  ret",
		"step limit": "main:\n  j main",
		"bad jump":   "main:\n  li ra, 12\n  ret",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := run(t, src, "")
			var f *Fault
			if !errors.As(err, &f) {
				t.Fatalf("Run error = %v, want a *Fault", err)
			}
			if f.Line == 0 {
				t.Errorf("fault %q has no source line", f)
			}
		})
	}
}

func TestAssembleErrors(t *testing.T) {
	cases := map[string]string{
		"main:\n  frob a0":          "unknown instruction",
		"main:\n  add a0, a1":       "expects 3 operand(s)",
		"main:\n  j nowhere":        "undefined label",
		"main:\n  li q9, 1":         "invalid register",
		"main:\nmain:\n  ret":       "duplicate label",
		"main:\n  lw a0, sp":        "malformed memory operand",
		"  .data\n  add a0, a0, a0": "in data section",
	}
	for src, want := range cases {
		_, err := Assemble(src)
		var serr *SyntaxError
		if !errors.As(err, &serr) || !strings.Contains(serr.Msg, want) {
			t.Errorf("Assemble(%q) = %v, want a SyntaxError mentioning %q", src, err, want)
		}
	}
}

func TestCancellation(t *testing.T) {
	prog, err := Assemble("main:\n  j main")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMachine(prog, strings.NewReader(""), &bytes.Buffer{}).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run on a cancelled context = %v, want context.Canceled", err)
	}
}
