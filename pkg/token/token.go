// Package token defines the lexical tokens produced by pkg/lexer and
// consumed by pkg/parser.
package token

import "fmt"

// Kind tags the lexeme a Token carries.
type Kind int

const (
	EOF Kind = iota
	Newline
	Illegal

	Identifier
	Int
	Decimal
	String

	// Keywords
	KwSchema
	KwDataset
	KwContract
	KwContext
	KwDistribution
	KwLet
	KwImport
	KwFrom
	KwWith
	KwOf
	KwPer
	KwIn
	KwAs
	KwIf
	KwElse
	KwAnd
	KwOr
	KwNot
	KwMatch
	KwAny
	KwUnique
	KwPrivate
	KwOptional
	KwAssume
	KwInvariant
	KwImplements
	KwRefine
	KwThen
	KwViolating
	KwTrue
	KwFalse
	KwNull
	KwReturn

	// Punctuation / operators
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Comma
	Colon
	Dot
	DotDot
	Pipe
	Question
	Assign
	Eq
	NotEq
	LtEq
	GtEq
	Lt
	Gt
	Plus
	Minus
	Star
	Slash
	Percent
	Caret
	Arrow // =>
	At
	Semicolon
)

var kindNames = map[Kind]string{
	EOF:            "EOF",
	Newline:        "NEWLINE",
	Illegal:        "ILLEGAL",
	Identifier:     "IDENT",
	Int:            "INT",
	Decimal:        "DECIMAL",
	String:         "STRING",
	KwSchema:       "schema",
	KwDataset:      "dataset",
	KwContract:     "contract",
	KwContext:      "context",
	KwDistribution: "distribution",
	KwLet:          "let",
	KwImport:       "import",
	KwFrom:         "from",
	KwWith:         "with",
	KwOf:           "of",
	KwPer:          "per",
	KwIn:           "in",
	KwAs:           "as",
	KwIf:           "if",
	KwElse:         "else",
	KwAnd:          "and",
	KwOr:           "or",
	KwNot:          "not",
	KwMatch:        "match",
	KwAny:          "any",
	KwUnique:       "unique",
	KwPrivate:      "private",
	KwOptional:     "optional",
	KwAssume:       "assume",
	KwInvariant:    "invariant",
	KwImplements:   "implements",
	KwRefine:       "refine",
	KwThen:         "then",
	KwViolating:    "violating",
	KwTrue:         "true",
	KwFalse:        "false",
	KwNull:         "null",
	KwReturn:       "return",
	LParen:         "(",
	RParen:         ")",
	LBrace:         "{",
	RBrace:         "}",
	LBracket:       "[",
	RBracket:       "]",
	Comma:          ",",
	Colon:          ":",
	Dot:            ".",
	DotDot:         "..",
	Pipe:           "|",
	Question:       "?",
	Assign:         "=",
	Eq:             "==",
	NotEq:          "!=",
	LtEq:           "<=",
	GtEq:           ">=",
	Lt:             "<",
	Gt:             ">",
	Plus:           "+",
	Minus:          "-",
	Star:           "*",
	Slash:          "/",
	Percent:        "%",
	Caret:          "^",
	Arrow:          "=>",
	At:             "@",
	Semicolon:      ";",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords maps the closed keyword set to their token kind. Additional
// entries may be merged in by a plugin-provided keyword table (§4.C);
// the lexer never mutates this map.
var Keywords = map[string]Kind{
	"schema":       KwSchema,
	"dataset":      KwDataset,
	"contract":     KwContract,
	"context":      KwContext,
	"distribution": KwDistribution,
	"let":          KwLet,
	"import":       KwImport,
	"from":         KwFrom,
	"with":         KwWith,
	"of":           KwOf,
	"per":          KwPer,
	"in":           KwIn,
	"as":           KwAs,
	"if":           KwIf,
	"else":         KwElse,
	"and":          KwAnd,
	"or":           KwOr,
	"not":          KwNot,
	"match":        KwMatch,
	"any":          KwAny,
	"unique":       KwUnique,
	"private":      KwPrivate,
	"optional":     KwOptional,
	"assume":       KwAssume,
	"invariant":    KwInvariant,
	"implements":   KwImplements,
	"refine":       KwRefine,
	"then":         KwThen,
	"violating":    KwViolating,
	"true":         KwTrue,
	"false":        KwFalse,
	"null":         KwNull,
	"return":       KwReturn,
}

// Position is a source location: 1-based line and column.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexeme with its source position.
type Token struct {
	Kind    Kind
	Lexeme  string
	Pos     Position
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%s", t.Kind, t.Lexeme, t.Pos)
}
