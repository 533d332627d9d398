package symtab

import "testing"

func TestShadowingResolvesInnermost(t *testing.T) {
	tab := New()
	if !tab.Insert("x", &Symbol{Kind: Var}) {
		t.Fatalf("insert into global scope failed")
	}
	outer, _ := tab.UniqueName("x")

	tab.Push()
	if !tab.Insert("x", &Symbol{Kind: Const, Value: 7}) {
		t.Fatalf("shadowing an outer declaration must succeed")
	}
	inner, ok := tab.UniqueName("x")
	if !ok {
		t.Fatalf("x not found in nested scope")
	}
	if inner == outer {
		t.Errorf("inner and outer x share the low-level name %q", inner)
	}
	if sym := tab.Find("x"); sym.Kind != Const || sym.Value != 7 {
		t.Errorf("Find returned %+v, want the inner constant", sym)
	}

	tab.Pop()
	if got, _ := tab.UniqueName("x"); got != outer {
		t.Errorf("after Pop, x resolves to %q, want %q", got, outer)
	}
}

func TestInsertFailsOnlyInSameScope(t *testing.T) {
	tab := New()
	tab.Push()
	if !tab.Insert("a", &Symbol{Kind: Var}) {
		t.Fatal("first insert failed")
	}
	if tab.Insert("a", &Symbol{Kind: Var}) {
		t.Error("duplicate insert in the same scope succeeded")
	}
	tab.Push()
	if !tab.Insert("a", &Symbol{Kind: Var}) {
		t.Error("insert in a nested scope failed")
	}
}

func TestScopeIndicesAreNeverReused(t *testing.T) {
	tab := New()
	if !tab.IsGlobal() || tab.Current().Index != 0 {
		t.Fatalf("fresh table should sit in global scope 0")
	}

	var names []string
	for i := 0; i < 2; i++ {
		tab.Scoped(func() {
			tab.Insert("v", &Symbol{Kind: Var})
			name, _ := tab.UniqueName("v")
			names = append(names, name)
		})
	}
	if names[0] != "v_1" || names[1] != "v_2" {
		t.Errorf("sibling scopes produced %v, want [v_1 v_2]", names)
	}
	if !tab.IsGlobal() {
		t.Errorf("Scoped did not restore the global scope, depth %d", tab.Depth())
	}
}

func TestGlobalScopeIsNeverPopped(t *testing.T) {
	tab := New()
	tab.Insert("g", &Symbol{Kind: Var})
	tab.Pop()
	tab.Pop()
	if tab.Find("g") == nil {
		t.Error("global symbol lost after popping at depth 1")
	}
}

func TestFunctionsKeepSurfaceName(t *testing.T) {
	tab := New()
	tab.Insert("main", &Symbol{Kind: Func})
	tab.Push()
	if got, _ := tab.UniqueName("main"); got != "main" {
		t.Errorf("function name rendered as %q", got)
	}
	if _, ok := tab.UniqueName("missing"); ok {
		t.Error("undeclared name resolved")
	}
}

func TestRank(t *testing.T) {
	cases := []struct {
		sym  Symbol
		want int
	}{
		{Symbol{Kind: Var}, 0},
		{Symbol{Kind: VarArray, Dims: []int{2, 3}}, 2},
		{Symbol{Kind: ConstArray, Dims: []int{4}}, 1},
		{Symbol{Kind: Pointer, Dims: []int{3}}, 2},
		{Symbol{Kind: Pointer}, 1},
	}
	for _, c := range cases {
		if got := c.sym.Rank(); got != c.want {
			t.Errorf("Rank(%v %v) = %d, want %d", c.sym.Kind, c.sym.Dims, got, c.want)
		}
	}
}
