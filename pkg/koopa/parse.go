package koopa

import (
	"fmt"
	"strconv"
	"unicode"
)

// ParseError locates a problem in Koopa text.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string { return fmt.Sprintf("koopa: line %d: %s", e.Line, e.Msg) }

type tokKind int

const (
	tEOF tokKind = iota
	tSymbol
	tInt
	tWord
	tPunct
)

type tok struct {
	kind tokKind
	text string
	line int
}

func tokenize(src string) ([]tok, error) {
	var toks []tok
	rs := []rune(src)
	line := 1
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r == '\n':
			line++
			i++
		case unicode.IsSpace(r):
			i++
		case r == '/' && i+1 < len(rs) && rs[i+1] == '/':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			i += 2
			for i+1 < len(rs) && !(rs[i] == '*' && rs[i+1] == '/') {
				if rs[i] == '\n' {
					line++
				}
				i++
			}
			if i+1 >= len(rs) {
				return nil, &ParseError{Line: line, Msg: "unterminated block comment"}
			}
			i += 2
		case r == '@' || r == '%':
			start := i
			i++
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			if i == start+1 {
				return nil, &ParseError{Line: line, Msg: fmt.Sprintf("empty symbol name after %q", r)}
			}
			toks = append(toks, tok{tSymbol, string(rs[start:i]), line})
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			i++
			for i < len(rs) && unicode.IsDigit(rs[i]) {
				i++
			}
			toks = append(toks, tok{tInt, string(rs[start:i]), line})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			toks = append(toks, tok{tWord, string(rs[start:i]), line})
		default:
			switch r {
			case '(', ')', '{', '}', '[', ']', ',', ':', '=', '*':
				toks = append(toks, tok{tPunct, string(r), line})
				i++
			default:
				return nil, &ParseError{Line: line, Msg: fmt.Sprintf("unexpected character %q", r)}
			}
		}
	}
	return append(toks, tok{kind: tEOF, line: line}), nil
}

type parser struct {
	toks []tok
	pos  int
	prog *Program

	globals map[string]*Value
	funcs   map[string]*Function

	// per function
	locals  map[string]*Value
	blocks  map[string]*BasicBlock
	defined map[string]bool
	pending map[string]int // label name -> first line referencing it
}

// Parse builds the program graph from Koopa text.
func Parse(src string) (*Program, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks:    toks,
		prog:    &Program{},
		globals: make(map[string]*Value),
		funcs:   make(map[string]*Function),
	}
	if err := p.parseProgram(); err != nil {
		return nil, err
	}
	return p.prog, nil
}

func (p *parser) peek() tok { return p.toks[p.pos] }

func (p *parser) next() tok {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: p.peek().line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) is(text string) bool {
	t := p.peek()
	return (t.kind == tPunct || t.kind == tWord) && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return p.errorf("expected %q, found %q", text, p.peek().text)
	}
	return nil
}

func (p *parser) expectSymbol() (string, error) {
	t := p.peek()
	if t.kind != tSymbol {
		return "", p.errorf("expected a symbol, found %q", t.text)
	}
	p.pos++
	return t.text, nil
}

func (p *parser) expectInt() (int64, error) {
	t := p.peek()
	if t.kind != tInt {
		return 0, p.errorf("expected an integer, found %q", t.text)
	}
	p.pos++
	v, err := strconv.ParseInt(t.text, 10, 64)
	if err != nil || v < -(1<<31) || v > (1<<32)-1 {
		return 0, &ParseError{Line: t.line, Msg: fmt.Sprintf("integer %s out of range", t.text)}
	}
	return v, nil
}

func (p *parser) parseProgram() error {
	for p.peek().kind != tEOF {
		var err error
		switch {
		case p.accept("decl"):
			err = p.parseDecl()
		case p.accept("global"):
			err = p.parseGlobal()
		case p.accept("fun"):
			err = p.parseFunc()
		default:
			err = p.errorf("expected 'decl', 'global' or 'fun', found %q", p.peek().text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseType() (*Type, error) {
	switch {
	case p.accept("i32"):
		return I32Type, nil
	case p.accept("unit"):
		return UnitType, nil
	case p.accept("*"):
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return PointerTo(elem), nil
	case p.accept("["):
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, p.errorf("array length must be positive")
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		return &Type{Tag: Array, Elem: elem, Len: int(n)}, nil
	case p.accept("("):
		ft := &Type{Tag: FuncType, Ret: UnitType}
		for !p.is(")") {
			pt, err := p.parseType()
			if err != nil {
				return nil, err
			}
			ft.Params = append(ft.Params, pt)
			if !p.accept(",") {
				break
			}
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		if p.accept(":") {
			rt, err := p.parseType()
			if err != nil {
				return nil, err
			}
			ft.Ret = rt
		}
		return ft, nil
	}
	return nil, p.errorf("expected a type, found %q", p.peek().text)
}

func (p *parser) declareFunc(name string, f *Function) error {
	if _, exists := p.funcs[name]; exists {
		return p.errorf("function %s redefined", name)
	}
	if _, exists := p.globals[name]; exists {
		return p.errorf("%s is already a global", name)
	}
	p.funcs[name] = f
	p.prog.Funcs = append(p.prog.Funcs, f)
	return nil
}

func (p *parser) parseDecl() error {
	name, err := p.expectSymbol()
	if err != nil {
		return err
	}
	if err := p.expect("("); err != nil {
		return err
	}
	p.pos--
	ft, err := p.parseType()
	if err != nil {
		return err
	}
	return p.declareFunc(name, &Function{Name: name[1:], Ty: ft})
}

func (p *parser) parseGlobal() error {
	name, err := p.expectSymbol()
	if err != nil {
		return err
	}
	if err := p.expect("="); err != nil {
		return err
	}
	if err := p.expect("alloc"); err != nil {
		return err
	}
	typ, err := p.parseType()
	if err != nil {
		return err
	}
	if err := p.expect(","); err != nil {
		return err
	}
	init, err := p.parseInit(typ)
	if err != nil {
		return err
	}
	if _, exists := p.globals[name]; exists {
		return p.errorf("global %s redefined", name)
	}
	g := &Value{Name: name, Ty: PointerTo(typ), Kind: GlobalAlloc, Init: init}
	p.globals[name] = g
	p.prog.Values = append(p.prog.Values, g)
	return nil
}

// parseInit reads an initializer and checks its shape against typ.
func (p *parser) parseInit(typ *Type) (*Value, error) {
	switch {
	case p.accept("zeroinit"):
		return &Value{Ty: typ, Kind: ZeroInit}, nil
	case p.accept("undef"):
		return &Value{Ty: typ, Kind: Undef}, nil
	case p.accept("{"):
		if typ.Tag != Array {
			return nil, p.errorf("aggregate initializer for non-array type %s", typ)
		}
		agg := &Value{Ty: typ, Kind: Aggregate}
		for {
			elem, err := p.parseInit(typ.Elem)
			if err != nil {
				return nil, err
			}
			agg.Elems = append(agg.Elems, elem)
			if !p.accept(",") {
				break
			}
		}
		if err := p.expect("}"); err != nil {
			return nil, err
		}
		if len(agg.Elems) != typ.Len {
			return nil, p.errorf("aggregate has %d elements, type %s needs %d", len(agg.Elems), typ, typ.Len)
		}
		return agg, nil
	}
	n, err := p.expectInt()
	if err != nil {
		return nil, err
	}
	if typ.Tag != Int32 {
		return nil, p.errorf("integer initializer for type %s", typ)
	}
	return &Value{Ty: I32Type, Kind: Integer, Int: int32(n)}, nil
}

func (p *parser) parseFunc() error {
	name, err := p.expectSymbol()
	if err != nil {
		return err
	}
	f := &Function{Name: name[1:], Ty: &Type{Tag: FuncType, Ret: UnitType}}
	p.locals = make(map[string]*Value)
	p.blocks = make(map[string]*BasicBlock)
	p.defined = make(map[string]bool)
	p.pending = make(map[string]int)

	if err := p.expect("("); err != nil {
		return err
	}
	for !p.is(")") {
		pname, err := p.expectSymbol()
		if err != nil {
			return err
		}
		if err := p.expect(":"); err != nil {
			return err
		}
		pt, err := p.parseType()
		if err != nil {
			return err
		}
		arg := &Value{Name: pname, Ty: pt, Kind: FuncArgRef, Index: len(f.Params)}
		if err := p.define(arg); err != nil {
			return err
		}
		f.Params = append(f.Params, arg)
		f.Ty.Params = append(f.Ty.Params, pt)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return err
	}
	if p.accept(":") {
		if f.Ty.Ret, err = p.parseType(); err != nil {
			return err
		}
	}
	if err := p.declareFunc(name, f); err != nil {
		return err
	}
	if err := p.expect("{"); err != nil {
		return err
	}
	for !p.accept("}") {
		if p.peek().kind == tEOF {
			return p.errorf("unexpected end of input in function %s", name)
		}
		b, err := p.parseBlock(f)
		if err != nil {
			return err
		}
		f.Blocks = append(f.Blocks, b)
	}
	if len(f.Blocks) == 0 {
		return p.errorf("function %s has no basic blocks", name)
	}
	for label, line := range p.pending {
		if !p.defined[label] {
			return &ParseError{Line: line, Msg: fmt.Sprintf("undefined basic block %s", label)}
		}
	}
	return nil
}

func (p *parser) define(v *Value) error {
	if _, exists := p.locals[v.Name]; exists {
		return p.errorf("value %s redefined", v.Name)
	}
	if _, exists := p.globals[v.Name]; exists {
		return p.errorf("value %s shadows a global", v.Name)
	}
	p.locals[v.Name] = v
	return nil
}

func (p *parser) block(name string) *BasicBlock {
	b, ok := p.blocks[name]
	if !ok {
		b = &BasicBlock{Name: name}
		p.blocks[name] = b
		p.pending[name] = p.peek().line
	}
	return b
}

func (p *parser) parseBlock(f *Function) (*BasicBlock, error) {
	name, err := p.expectSymbol()
	if err != nil {
		return nil, err
	}
	if name[0] != '%' {
		return nil, p.errorf("basic block name %s must start with '%%'", name)
	}
	if p.defined[name] {
		return nil, p.errorf("basic block %s redefined", name)
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	b := p.block(name)
	p.defined[name] = true

	for {
		t := p.peek()
		if t.kind == tEOF || (t.kind == tPunct && t.text == "}") {
			break
		}
		if t.kind == tSymbol && p.toks[p.pos+1].kind == tPunct && p.toks[p.pos+1].text == ":" {
			break
		}
		inst, err := p.parseInst()
		if err != nil {
			return nil, err
		}
		b.Insts = append(b.Insts, inst)
	}
	if len(b.Insts) == 0 || !b.Insts[len(b.Insts)-1].IsTerminator() {
		return nil, p.errorf("basic block %s in %s does not end with a terminator", name, f.Name)
	}
	for _, inst := range b.Insts[:len(b.Insts)-1] {
		if inst.IsTerminator() {
			return nil, p.errorf("basic block %s has an instruction after its terminator", name)
		}
	}
	return b, nil
}

// operand resolves a value reference: a symbol or an integer literal.
func (p *parser) operand() (*Value, error) {
	t := p.peek()
	switch t.kind {
	case tInt:
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		return &Value{Ty: I32Type, Kind: Integer, Int: int32(n)}, nil
	case tSymbol:
		p.pos++
		if v, ok := p.locals[t.text]; ok {
			return v, nil
		}
		if v, ok := p.globals[t.text]; ok {
			return v, nil
		}
		return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("undefined value %s", t.text)}
	case tWord:
		if t.text == "undef" {
			p.pos++
			return &Value{Ty: I32Type, Kind: Undef}, nil
		}
	}
	return nil, p.errorf("expected a value, found %q", t.text)
}

func (p *parser) labelRef() (*BasicBlock, error) {
	name, err := p.expectSymbol()
	if err != nil {
		return nil, err
	}
	if name[0] != '%' {
		return nil, p.errorf("%s is not a basic block", name)
	}
	return p.block(name), nil
}

func (p *parser) parseInst() (*Value, error) {
	t := p.peek()
	if t.kind == tSymbol {
		name := p.next().text
		if err := p.expect("="); err != nil {
			return nil, err
		}
		v, err := p.parseValueInst()
		if err != nil {
			return nil, err
		}
		if v.Kind == Call && v.Ty.Tag == Unit {
			return nil, p.errorf("result of a unit call assigned to %s", name)
		}
		v.Name = name
		if err := p.define(v); err != nil {
			return nil, err
		}
		return v, nil
	}

	switch {
	case p.accept("store"):
		var val *Value
		var err error
		if p.is("{") || p.is("zeroinit") {
			return nil, p.errorf("aggregate stores are not supported")
		}
		if val, err = p.operand(); err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		dest, err := p.operand()
		if err != nil {
			return nil, err
		}
		if dest.Ty.Tag != Pointer {
			return nil, p.errorf("store destination %s is not a pointer", dest.Name)
		}
		return &Value{Ty: UnitType, Kind: Store, Src: val, Dest: dest}, nil
	case p.accept("br"):
		cond, err := p.operand()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		tb, err := p.labelRef()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		fb, err := p.labelRef()
		if err != nil {
			return nil, err
		}
		return &Value{Ty: UnitType, Kind: Branch, Cond: cond, True: tb, False: fb}, nil
	case p.accept("jump"):
		target, err := p.labelRef()
		if err != nil {
			return nil, err
		}
		return &Value{Ty: UnitType, Kind: Jump, Target: target}, nil
	case p.accept("ret"):
		v := &Value{Ty: UnitType, Kind: Return}
		if n := p.peek(); n.kind == tInt || (n.kind == tSymbol && !p.startsBlock()) || (n.kind == tWord && n.text == "undef") {
			ret, err := p.operand()
			if err != nil {
				return nil, err
			}
			v.Ret = ret
		}
		return v, nil
	case p.is("call"):
		v, err := p.parseValueInst()
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, p.errorf("unknown instruction %q", t.text)
}

// startsBlock reports whether the next tokens are a block label.
func (p *parser) startsBlock() bool {
	n := p.toks[p.pos+1]
	return p.peek().kind == tSymbol && n.kind == tPunct && n.text == ":"
}

func (p *parser) parseValueInst() (*Value, error) {
	t := p.next()
	if t.kind != tWord {
		return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected an instruction, found %q", t.text)}
	}
	switch t.text {
	case "alloc":
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &Value{Ty: PointerTo(typ), Kind: Alloc}, nil
	case "load":
		src, err := p.operand()
		if err != nil {
			return nil, err
		}
		if src.Ty.Tag != Pointer {
			return nil, p.errorf("load from non-pointer %s", src.Name)
		}
		return &Value{Ty: src.Ty.Elem, Kind: Load, Src: src}, nil
	case "getptr", "getelemptr":
		src, err := p.operand()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		idx, err := p.operand()
		if err != nil {
			return nil, err
		}
		if src.Ty.Tag != Pointer {
			return nil, p.errorf("%s on non-pointer %s", t.text, src.Name)
		}
		if t.text == "getptr" {
			return &Value{Ty: src.Ty, Kind: GetPtr, Src: src, Idx: idx}, nil
		}
		if src.Ty.Elem.Tag != Array {
			return nil, p.errorf("getelemptr on %s, which does not point to an array", src.Ty)
		}
		return &Value{Ty: PointerTo(src.Ty.Elem.Elem), Kind: GetElemPtr, Src: src, Idx: idx}, nil
	case "call":
		name, err := p.expectSymbol()
		if err != nil {
			return nil, err
		}
		callee, ok := p.funcs[name]
		if !ok {
			return nil, p.errorf("call to undeclared function %s", name)
		}
		if err := p.expect("("); err != nil {
			return nil, err
		}
		v := &Value{Ty: callee.RetType(), Kind: Call, Callee: callee}
		for !p.is(")") {
			arg, err := p.operand()
			if err != nil {
				return nil, err
			}
			v.Args = append(v.Args, arg)
			if !p.accept(",") {
				break
			}
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		if len(v.Args) != len(callee.Ty.Params) {
			return nil, p.errorf("%s takes %d argument(s), got %d", name, len(callee.Ty.Params), len(v.Args))
		}
		return v, nil
	}

	op, ok := binaryOpNames[t.text]
	if !ok {
		return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("unknown instruction %q", t.text)}
	}
	lhs, err := p.operand()
	if err != nil {
		return nil, err
	}
	if err := p.expect(","); err != nil {
		return nil, err
	}
	rhs, err := p.operand()
	if err != nil {
		return nil, err
	}
	return &Value{Ty: I32Type, Kind: Binary, Op: op, LHS: lhs, RHS: rhs}, nil
}
