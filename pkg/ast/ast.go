// Package ast defines the types used to represent the SysY Abstract Syntax Tree (AST)
package ast

import (
	"github.com/xplshn/sysyc/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

const (
	// Expressions
	Number NodeType = iota
	LVal
	BinaryOp
	UnaryOp
	FuncCall
	InitList

	// Declarations and statements
	CompUnit
	FuncDef
	Param
	Decl
	VarDef
	Block
	Assign
	ExprStmt
	If
	While
	Break
	Continue
	Return
)

var nodeTypeNames = [...]string{
	"Number", "LVal", "BinaryOp", "UnaryOp", "FuncCall", "InitList",
	"CompUnit", "FuncDef", "Param", "Decl", "VarDef", "Block", "Assign",
	"ExprStmt", "If", "While", "Break", "Continue", "Return",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "Unknown"
}

// Node represents a node in the Abstract Syntax Tree. Data holds the
// kind-specific payload, one of the *Node structs below matching Type.
type Node struct {
	Type NodeType
	Tok  token.Token
	Data interface{}
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type LValNode struct {
	Name    string
	Indices []*Node
}
type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}
type UnaryOpNode struct {
	Op   token.Type
	Expr *Node
}
type FuncCallNode struct {
	Name string
	Args []*Node
}

// InitListNode is a brace-enclosed initializer; items are expressions or nested InitLists.
type InitListNode struct{ Items []*Node }

type CompUnitNode struct{ Items []*Node }
type FuncDefNode struct {
	Name        string
	ReturnsVoid bool
	Params      []*Node
	Body        *Node
}

// ParamNode describes a formal parameter. IsArray marks `int a[]...`, whose
// first dimension is open; Dims holds the remaining constant dimensions.
type ParamNode struct {
	Name    string
	IsArray bool
	Dims    []*Node
}
type DeclNode struct {
	IsConst bool
	Defs    []*Node
}
type VarDefNode struct {
	Name    string
	IsConst bool
	Dims    []*Node
	Init    *Node
}
type BlockNode struct{ Items []*Node }
type AssignNode struct{ LVal, Rhs *Node }
type ExprStmtNode struct{ Expr *Node }
type IfNode struct{ Cond, Then, Else *Node }
type WhileNode struct{ Cond, Body *Node }
type ReturnNode struct{ Expr *Node }
type BreakNode struct{}
type ContinueNode struct{}

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}) *Node {
	return &Node{Type: nodeType, Tok: tok, Data: data}
}

func NewNumber(tok token.Token, value int64) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewLVal(tok token.Token, name string, indices []*Node) *Node {
	return newNode(tok, LVal, LValNode{Name: name, Indices: indices})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right})
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr})
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args})
}
func NewInitList(tok token.Token, items []*Node) *Node {
	return newNode(tok, InitList, InitListNode{Items: items})
}
func NewCompUnit(tok token.Token, items []*Node) *Node {
	return newNode(tok, CompUnit, CompUnitNode{Items: items})
}
func NewFuncDef(tok token.Token, name string, returnsVoid bool, params []*Node, body *Node) *Node {
	return newNode(tok, FuncDef, FuncDefNode{Name: name, ReturnsVoid: returnsVoid, Params: params, Body: body})
}
func NewParam(tok token.Token, name string, isArray bool, dims []*Node) *Node {
	return newNode(tok, Param, ParamNode{Name: name, IsArray: isArray, Dims: dims})
}
func NewDecl(tok token.Token, isConst bool, defs []*Node) *Node {
	return newNode(tok, Decl, DeclNode{IsConst: isConst, Defs: defs})
}
func NewVarDef(tok token.Token, name string, isConst bool, dims []*Node, init *Node) *Node {
	return newNode(tok, VarDef, VarDefNode{Name: name, IsConst: isConst, Dims: dims, Init: init})
}
func NewBlock(tok token.Token, items []*Node) *Node {
	return newNode(tok, Block, BlockNode{Items: items})
}
func NewAssign(tok token.Token, lval, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{LVal: lval, Rhs: rhs})
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr})
}
func NewIf(tok token.Token, cond, then, els *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, Then: then, Else: els})
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body})
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr})
}
func NewBreak(tok token.Token) *Node {
	return newNode(tok, Break, BreakNode{})
}
func NewContinue(tok token.Token) *Node {
	return newNode(tok, Continue, ContinueNode{})
}

// IsTerminator reports whether a statement unconditionally leaves its block.
func IsTerminator(n *Node) bool {
	if n == nil {
		return false
	}
	switch n.Type {
	case Return, Break, Continue:
		return true
	}
	return false
}
