package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBlockAcceptsOneTerminator(t *testing.T) {
	b := &BasicBlock{Label: &Label{Name: "entry"}}
	if !b.Append(&Instruction{Op: OpStore, Args: []Value{&Const{Value: 1}, &Symbol{Name: "x_1"}}}) {
		t.Fatal("store rejected by an open block")
	}
	if !b.Append(&Instruction{Op: OpRet, Args: []Value{&Const{Value: 0}}}) {
		t.Fatal("first terminator rejected")
	}
	if b.Append(&Instruction{Op: OpJump, Args: []Value{&Label{Name: "end_0"}}}) {
		t.Error("second terminator accepted")
	}
	if b.Append(&Instruction{Op: OpAdd, Result: &Temp{ID: 3}, Args: []Value{&Const{Value: 1}, &Const{Value: 2}}}) {
		t.Error("instruction after terminator accepted")
	}
	if len(b.Instructions) != 2 || !b.Terminated() {
		t.Errorf("block has %d instructions, terminated=%v", len(b.Instructions), b.Terminated())
	}
}

func TestTypeStrings(t *testing.T) {
	cases := map[string]*Type{
		"i32":                I32,
		"*i32":               PtrTo(I32),
		"[i32, 3]":           ArrayType([]int{3}),
		"[[i32, 3], 2]":      ArrayType([]int{2, 3}),
		"*[i32, 4]":          PtrTo(ArrayType([]int{4})),
		"[[[i32, 4], 3], 2]": ArrayType([]int{2, 3, 4}),
	}
	for want, typ := range cases {
		if got := typ.String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestPrintProgram(t *testing.T) {
	prog := &Program{
		Decls: []*Func{{Name: "putint", Params: []*Param{{Typ: I32}}}},
		Globals: []*Data{
			{Name: "g_0", Typ: I32, Init: &Const{Value: 5}},
			{Name: "a_0", Typ: ArrayType([]int{2}), Init: &ZeroInit{}},
		},
	}
	fn := &Func{Name: "main", Ret: I32}
	fn.Allocs = []*Instruction{{Op: OpAlloc, Result: &Symbol{Name: "x_1"}, Typ: I32}}
	entry := &BasicBlock{Label: &Label{Name: "entry"}}
	entry.Append(&Instruction{Op: OpLoad, Result: &Temp{ID: 0}, Args: []Value{&Symbol{Name: "g_0"}}})
	entry.Append(&Instruction{Op: OpCall, Callee: "putint", Args: []Value{&Temp{ID: 0}}})
	entry.Append(&Instruction{Op: OpRet, Args: []Value{&Const{Value: 0}}})
	fn.Blocks = []*BasicBlock{entry}
	prog.Funcs = []*Func{fn}

	want := `decl @putint(i32)

global @g_0 = alloc i32, 5
global @a_0 = alloc [i32, 2], zeroinit

fun @main(): i32 {
%entry:
  @x_1 = alloc i32
  %0 = load @g_0
  call @putint(%0)
  ret 0
}
`
	if diff := cmp.Diff(want, prog.String()); diff != "" {
		t.Errorf("printed program mismatch (-want +got):\n%s", diff)
	}
}
