// Package symtab implements the nested scope table used during lowering.
//
// Every scope gets a creation index that is never reused, so rendering a
// symbol as name_<index> yields names that cannot collide in the flat IR
// namespace even when the same identifier is declared in sibling blocks.
package symtab

import (
	"fmt"
	"strings"
)

type Kind int

const (
	Const Kind = iota
	Var
	Func
	ConstArray
	VarArray
	Pointer
)

func (k Kind) String() string {
	switch k {
	case Const:
		return "const"
	case Var:
		return "var"
	case Func:
		return "func"
	case ConstArray:
		return "const array"
	case VarArray:
		return "array"
	case Pointer:
		return "pointer"
	}
	return "unknown"
}

// Symbol is what an identifier resolves to.
//   - Const: Value holds the folded value.
//   - ConstArray: Dims and the flattened Elems.
//   - VarArray: Dims.
//   - Pointer: an open-array parameter; Dims lists the dimensions after the open one.
//   - Func: ReturnsVoid and Arity.
type Symbol struct {
	Name        string
	Kind        Kind
	Value       int32
	Dims        []int
	Elems       []int32
	ReturnsVoid bool
	Arity       int
	// Scope is the creation index of the owning scope, set by Insert.
	Scope int
	// IRName overrides the rendered name when ident_<scope> is already taken
	// by another symbol of the flat namespace.
	IRName string
}

// IsArray reports whether the symbol is indexable.
func (s *Symbol) IsArray() bool {
	return s.Kind == ConstArray || s.Kind == VarArray || s.Kind == Pointer
}

// Rank is the number of indices a full element access takes.
func (s *Symbol) Rank() int {
	switch s.Kind {
	case ConstArray, VarArray:
		return len(s.Dims)
	case Pointer:
		return len(s.Dims) + 1
	}
	return 0
}

// UniqueName renders the symbol's collision-free low-level name. Functions
// keep their surface name since they live in their own namespace.
func (s *Symbol) UniqueName() string {
	if s.Kind == Func {
		return s.Name
	}
	if s.IRName != "" {
		return s.IRName
	}
	return fmt.Sprintf("%s_%d", s.Name, s.Scope)
}

type Scope struct {
	Index   int
	symbols map[string]*Symbol
}

func (s *Scope) Lookup(name string) (*Symbol, bool) {
	sym, ok := s.symbols[name]
	return sym, ok
}

func (s *Scope) Len() int { return len(s.symbols) }

// Table is a stack of scopes; the bottom is the global scope with index 0.
type Table struct {
	scopes    []*Scope
	nextIndex int
}

func New() *Table {
	t := &Table{}
	t.Push()
	return t
}

func (t *Table) Push() {
	t.scopes = append(t.scopes, &Scope{Index: t.nextIndex, symbols: make(map[string]*Symbol)})
	t.nextIndex++
}

// Pop discards the innermost scope. The global scope is never popped.
func (t *Table) Pop() {
	if len(t.scopes) > 1 {
		t.scopes = t.scopes[:len(t.scopes)-1]
	}
}

// Scoped runs fn inside a fresh scope.
func (t *Table) Scoped(fn func()) {
	t.Push()
	defer t.Pop()
	fn()
}

func (t *Table) Current() *Scope { return t.scopes[len(t.scopes)-1] }

func (t *Table) Depth() int { return len(t.scopes) }

func (t *Table) IsGlobal() bool { return len(t.scopes) == 1 }

// Insert adds sym to the innermost scope. It fails only when the name
// already exists in that same scope; shadowing outer scopes is allowed.
func (t *Table) Insert(name string, sym *Symbol) bool {
	cur := t.Current()
	if _, exists := cur.symbols[name]; exists {
		return false
	}
	sym.Name = name
	sym.Scope = cur.Index
	cur.symbols[name] = sym
	return true
}

// Find walks from the innermost scope outwards and returns the first match.
func (t *Table) Find(name string) *Symbol {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if sym, ok := t.scopes[i].symbols[name]; ok {
			return sym
		}
	}
	return nil
}

func (t *Table) UniqueName(name string) (string, bool) {
	sym := t.Find(name)
	if sym == nil {
		return "", false
	}
	return sym.UniqueName(), true
}

func (t *Table) String() string {
	var sb strings.Builder
	for i, s := range t.scopes {
		fmt.Fprintf(&sb, "%s#%d:", strings.Repeat("  ", i), s.Index)
		for name, sym := range s.symbols {
			fmt.Fprintf(&sb, " %s(%s)", name, sym.Kind)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
