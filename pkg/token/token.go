package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	Const
	Int
	Void
	If
	Else
	While
	Break
	Continue
	Return
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Eq
	Plus
	Minus
	Star
	Slash
	Rem
	Not
	EqEq
	Neq
	Lt
	Gt
	Lte
	Gte
	AndAnd
	OrOr
)

var KeywordMap = map[string]Type{
	"const":    Const,
	"int":      Int,
	"void":     Void,
	"if":       If,
	"else":     Else,
	"while":    While,
	"break":    Break,
	"continue": Continue,
	"return":   Return,
}

var symbolStrings = map[Type]string{
	EOF: "end of file", Ident: "identifier", Number: "number",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Eq: "=", Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%",
	Not: "!", EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Lte: "<=", Gte: ">=", AndAnd: "&&", OrOr: "||",
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range symbolStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "unknown"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
