// Package codegen lowers a SysY syntax tree into Koopa IR.
//
// The lowering is a single recursive walk. Expressions produce a ValueRef
// describing where their result lives; statements append instructions to the
// current basic block. A block that already ends in a terminator silently
// drops anything appended after it, so control-flow lowering never has to
// check whether an arm returned early.
package codegen

import (
	"fmt"

	"github.com/xplshn/sysyc/pkg/ast"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/ir"
	"github.com/xplshn/sysyc/pkg/symtab"
	"github.com/xplshn/sysyc/pkg/token"
	"github.com/xplshn/sysyc/pkg/util"
)

type loopContext struct {
	entry *ir.Label
	exit  *ir.Label
}

// Context is one compilation session. Temporary and label counters live here
// and are never reset between functions.
type Context struct {
	prog         *ir.Program
	syms         *symtab.Table
	cfg          *config.Config
	tempCount    int
	labelCount   int
	currentFunc  *ir.Func
	currentDef   *symtab.Symbol
	currentBlock *ir.BasicBlock
	loops        []loopContext
	dead         bool // lowering code no path reaches

	// Low-level names handed out so far. Globals and functions share one
	// namespace with the locals of every function.
	globalNames map[string]bool
	localNames  map[string]bool
	usedLocals  map[string]bool
}

type intrinsic struct {
	name   string
	params []*ir.Type
	ret    *ir.Type
}

var intrinsics = []intrinsic{
	{"getint", nil, ir.I32},
	{"getch", nil, ir.I32},
	{"getarray", []*ir.Type{ir.PtrTo(ir.I32)}, ir.I32},
	{"putint", []*ir.Type{ir.I32}, nil},
	{"putch", []*ir.Type{ir.I32}, nil},
	{"putarray", []*ir.Type{ir.I32, ir.PtrTo(ir.I32)}, nil},
	{"starttime", nil, nil},
	{"stoptime", nil, nil},
}

// IsIntrinsic reports whether name is one of the runtime-provided functions.
func IsIntrinsic(name string) bool {
	for _, in := range intrinsics {
		if in.name == name {
			return true
		}
	}
	return false
}

func NewContext(cfg *config.Config) *Context {
	ctx := &Context{
		prog:        &ir.Program{},
		syms:        symtab.New(),
		cfg:         cfg,
		globalNames: make(map[string]bool),
		usedLocals:  make(map[string]bool),
	}
	for _, in := range intrinsics {
		decl := &ir.Func{Name: in.name, Ret: in.ret}
		for _, p := range in.params {
			decl.Params = append(decl.Params, &ir.Param{Typ: p})
		}
		ctx.prog.Decls = append(ctx.prog.Decls, decl)
		ctx.syms.Insert(in.name, &symtab.Symbol{Kind: symtab.Func, ReturnsVoid: in.ret == nil, Arity: len(in.params)})
		ctx.globalNames[in.name] = true
	}
	return ctx
}

// GenerateIR lowers a whole compilation unit.
func (ctx *Context) GenerateIR(root *ast.Node) *ir.Program {
	if root == nil || root.Type != ast.CompUnit {
		util.Error(token.Token{}, "expected a compilation unit")
		return ctx.prog
	}
	items := root.Data.(ast.CompUnitNode).Items
	// Function names are kept verbatim, so they are claimed before any
	// variable can take one of them.
	for _, item := range items {
		if item.Type == ast.FuncDef {
			ctx.globalNames[item.Data.(ast.FuncDefNode).Name] = true
		}
	}
	for _, item := range items {
		switch item.Type {
		case ast.Decl:
			ctx.lowerDecl(item)
		case ast.FuncDef:
			ctx.lowerFuncDef(item)
		default:
			util.Error(item.Tok, "unexpected %s at top level", item.Type)
		}
	}
	return ctx.prog
}

// Symbols exposes the scope table, mainly for tests.
func (ctx *Context) Symbols() *symtab.Table { return ctx.syms }

func (ctx *Context) newTemp() *ir.Temp {
	t := &ir.Temp{ID: ctx.tempCount}
	ctx.tempCount++
	return t
}

// newLabelIndex reserves one index shared by all labels of a construct,
// giving then_N/else_N/end_N.
func (ctx *Context) newLabelIndex() int {
	n := ctx.labelCount
	ctx.labelCount++
	return n
}

func label(prefix string, n int) *ir.Label {
	return &ir.Label{Name: fmt.Sprintf("%s_%d", prefix, n)}
}

// startBlock opens a new block. An open block falls through into it.
func (ctx *Context) startBlock(l *ir.Label) {
	if ctx.currentBlock != nil && !ctx.currentBlock.Terminated() {
		ctx.currentBlock.Append(&ir.Instruction{Op: ir.OpJump, Args: []ir.Value{l}})
	}
	block := &ir.BasicBlock{Label: l}
	ctx.currentFunc.Blocks = append(ctx.currentFunc.Blocks, block)
	ctx.currentBlock = block
}

func (ctx *Context) addInstr(instr *ir.Instruction) {
	ctx.currentBlock.Append(instr)
}

func (ctx *Context) terminated() bool {
	return ctx.currentBlock == nil || ctx.currentBlock.Terminated()
}

func (ctx *Context) addAlloc(name string, typ *ir.Type) *ir.Symbol {
	sym := &ir.Symbol{Name: name}
	ctx.currentFunc.Allocs = append(ctx.currentFunc.Allocs, &ir.Instruction{Op: ir.OpAlloc, Result: sym, Typ: typ})
	return sym
}

func (ctx *Context) genBinary(op ir.Op, lhs, rhs ir.Value) *ir.Temp {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: op, Result: res, Args: []ir.Value{lhs, rhs}})
	return res
}

func (ctx *Context) genLoad(addr ir.Value) *ir.Temp {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: ir.OpLoad, Result: res, Args: []ir.Value{addr}})
	return res
}

func (ctx *Context) genStore(val, addr ir.Value) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpStore, Args: []ir.Value{val, addr}})
}

func (ctx *Context) genElemPtr(op ir.Op, base, index ir.Value) *ir.Temp {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: op, Result: res, Args: []ir.Value{base, index}})
	return res
}

func (ctx *Context) genJump(l *ir.Label) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpJump, Args: []ir.Value{l}})
}

func (ctx *Context) genBranch(cond ir.Value, t, f *ir.Label) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpBr, Args: []ir.Value{cond, t, f}})
}

func (ctx *Context) genRet(val ir.Value) {
	instr := &ir.Instruction{Op: ir.OpRet}
	if val != nil {
		instr.Args = []ir.Value{val}
	}
	ctx.addInstr(instr)
}

// declare inserts sym into the innermost scope and returns its low-level name.
func (ctx *Context) declare(tok token.Token, name string, sym *symtab.Symbol) string {
	if !ctx.syms.Insert(name, sym) {
		util.Error(tok, "redefinition of '%s'", name)
	}
	if sym.Kind != symtab.Func {
		sym.IRName = ctx.reserve(sym.UniqueName())
	}
	return sym.UniqueName()
}

// reserve returns base, or base_1, base_2 and so on when base already names
// a function, a global or a value of the current function. Names of globals
// also avoid every local used so far.
func (ctx *Context) reserve(base string) string {
	name := base
	for i := 1; ctx.nameTaken(name); i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	if ctx.currentFunc == nil {
		ctx.globalNames[name] = true
	} else {
		ctx.localNames[name] = true
		ctx.usedLocals[name] = true
	}
	return name
}

func (ctx *Context) nameTaken(name string) bool {
	if ctx.globalNames[name] {
		return true
	}
	if ctx.currentFunc == nil {
		return ctx.usedLocals[name]
	}
	return ctx.localNames[name]
}

func (ctx *Context) lookup(tok token.Token, name string) *symtab.Symbol {
	sym := ctx.syms.Find(name)
	if sym == nil {
		util.Error(tok, "use of undeclared identifier '%s'", name)
	}
	return sym
}

func (ctx *Context) lowerFuncDef(node *ast.Node) {
	d := node.Data.(ast.FuncDefNode)
	fn := &ir.Func{Name: d.Name}
	if !d.ReturnsVoid {
		fn.Ret = ir.I32
	}
	def := &symtab.Symbol{Kind: symtab.Func, ReturnsVoid: d.ReturnsVoid, Arity: len(d.Params)}
	ctx.declare(node.Tok, d.Name, def)
	ctx.prog.Funcs = append(ctx.prog.Funcs, fn)

	ctx.currentFunc, ctx.currentDef, ctx.currentBlock = fn, def, nil
	ctx.localNames = make(map[string]bool)
	ctx.syms.Scoped(func() {
		type paramSlot struct {
			arg  *ir.Symbol
			slot string
			typ  *ir.Type
		}
		var slots []paramSlot
		for _, pn := range d.Params {
			p := pn.Data.(ast.ParamNode)
			sym := &symtab.Symbol{Kind: symtab.Var}
			typ := ir.I32
			if p.IsArray {
				sym.Kind = symtab.Pointer
				sym.Dims = ctx.evalDims(p.Dims)
				typ = ir.PtrTo(ir.ArrayType(sym.Dims))
			}
			raw := ctx.reserve(p.Name)
			slot := ctx.declare(pn.Tok, p.Name, sym)
			fn.Params = append(fn.Params, &ir.Param{Name: raw, Typ: typ})
			slots = append(slots, paramSlot{arg: &ir.Symbol{Name: raw}, slot: slot, typ: typ})
		}

		ctx.startBlock(&ir.Label{Name: "entry"})
		for _, s := range slots {
			ctx.genStore(s.arg, ctx.addAlloc(s.slot, s.typ))
		}
		ctx.lowerBlockItems(d.Body.Data.(ast.BlockNode).Items)
	})

	if !ctx.terminated() {
		if d.ReturnsVoid {
			ctx.genRet(nil)
		} else {
			util.Warn(ctx.cfg, config.WarnImplicitReturn, d.Body.Tok, "control reaches end of non-void function '%s'", d.Name)
			ctx.genRet(&ir.Const{Value: 0})
		}
	}
	ctx.checkReturns(node.Tok, fn)
	ctx.currentFunc, ctx.currentDef, ctx.currentBlock = nil, nil, nil
}

// checkReturns rejects a valueless ret inside an int-returning function.
func (ctx *Context) checkReturns(tok token.Token, fn *ir.Func) {
	if fn.Ret == nil {
		return
	}
	for _, b := range fn.Blocks {
		if last := b.Last(); last != nil && last.Op == ir.OpRet && len(last.Args) == 0 {
			util.Error(tok, "non-void function '%s' returns without a value", fn.Name)
			return
		}
	}
}
