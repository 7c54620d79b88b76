package parser

import "fabrik/pkg/token"

// StatementParseFunc parses one custom top-level statement starting at
// the parser's current token (which matched the registering Kind) and
// returns the AST payload to wrap in an ast.CustomStatement.
type StatementParseFunc func(p *Parser) (kind string, payload any, err error)

// Hooks is compilation-scoped parser configuration, mirroring
// lexer.Hooks: a plugin registry may dispatch a statement parser by
// leading token kind (§4.C/§4.F). Never mutated after a Parser is
// constructed; distinct compilations get distinct Hooks values.
type Hooks struct {
	Statements map[token.Kind]StatementParseFunc
}
