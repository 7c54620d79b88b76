// Package parser implements the precedence-climbing expression parser
// and recursive-descent statement parser for the DSL (§4.F).
package parser

import (
	"strconv"

	"fabrik/pkg/ast"
	"fabrik/pkg/lexer"
	"fabrik/pkg/token"
	"fabrik/pkg/value"
)

// Parser consumes a pre-lexed token stream (newlines filtered, but kept
// for diagnostics per §4.D) and produces an ast.Program.
type Parser struct {
	all    []token.Token // unfiltered, for error snippets
	toks   []token.Token // newline-filtered
	pos    int
	hooks  Hooks
	source string
}

// Parse lexes src and parses it into a Program in one call.
func Parse(src string, lexHooks lexer.Hooks, parseHooks Hooks) (*ast.Program, error) {
	lx := lexer.New(src, lexHooks)
	toks, err := lx.Tokenize()
	if err != nil {
		return nil, err
	}
	p := New(toks, parseHooks, src)
	return p.ParseProgram()
}

// New builds a Parser from an already-lexed token stream.
func New(toks []token.Token, hooks Hooks, source string) *Parser {
	filtered := make([]token.Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind != token.Newline {
			filtered = append(filtered, t)
		}
	}
	return &Parser{all: toks, toks: filtered, hooks: hooks, source: source}
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.pos]
}

func (p *Parser) peekAt(n int) token.Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) check(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) match(k token.Kind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) errUnexpected(context string) error {
	return &Error{Kind: ErrUnexpectedToken, Token: p.cur(), Context: context, Source: p.source}
}

func (p *Parser) expect(k token.Kind, context string) (token.Token, error) {
	if !p.check(k) {
		return token.Token{}, &Error{Kind: ErrExpectedToken, Token: p.cur(), Expected: k.String(), Context: context, Source: p.source}
	}
	return p.advance(), nil
}

// skipSeparators consumes the statement separators (commas, semicolons)
// the grammar allows between top-level statements and block entries.
func (p *Parser) skipSeparators() {
	for p.check(token.Comma) || p.check(token.Semicolon) {
		p.advance()
	}
}

// ParseProgram parses the full token stream into a Program.
func (p *Parser) ParseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	p.skipSeparators()
	for !p.check(token.EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
		p.skipSeparators()
	}
	return prog, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	if fn, ok := p.hooks.Statements[p.cur().Kind]; ok {
		kind, payload, err := fn(p)
		if err != nil {
			return nil, err
		}
		return ast.CustomStatement{Kind: kind, Payload: payload}, nil
	}

	switch p.cur().Kind {
	case token.KwLet:
		return p.parseLet()
	case token.KwImport:
		return p.parseImport()
	case token.KwSchema:
		return p.parseSchema()
	case token.KwContract:
		return p.parseContract()
	case token.KwContext:
		return p.parseContext()
	case token.KwDistribution:
		return p.parseDistribution()
	case token.KwDataset:
		return p.parseDataset()
	default:
		return nil, p.errUnexpected("top-level statement")
	}
}

func (p *Parser) parseLet() (ast.Statement, error) {
	start := p.advance() // 'let'
	name, err := p.expect(token.Identifier, "let binding name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Assign, "let binding"); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.LetStatement{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Name: name.Lexeme, Value: value}, nil
}

func (p *Parser) parseImport() (ast.Statement, error) {
	start := p.advance() // 'import'
	name, err := p.expect(token.Identifier, "import name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KwFrom, "import"); err != nil {
		return nil, err
	}
	path, err := p.expect(token.String, "import path")
	if err != nil {
		return nil, err
	}
	return ast.ImportStatement{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Name: name.Lexeme, Path: path.Lexeme}, nil
}

func (p *Parser) parseContextApplications() ([]ast.ContextApplication, error) {
	var apps []ast.ContextApplication
	if !p.match(token.KwWith) {
		return apps, nil
	}
	for {
		name, err := p.expect(token.Identifier, "context application")
		if err != nil {
			return nil, err
		}
		app := ast.ContextApplication{Name: name.Lexeme}
		if p.match(token.LParen) {
			for !p.check(token.RParen) {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				app.Args = append(app.Args, e)
				if !p.match(token.Comma) {
					break
				}
			}
			if _, err := p.expect(token.RParen, "context application args"); err != nil {
				return nil, err
			}
		}
		apps = append(apps, app)
		if !p.match(token.Comma) {
			break
		}
	}
	return apps, nil
}

func (p *Parser) parseSchema() (ast.Statement, error) {
	start := p.advance() // 'schema'
	name, err := p.expect(token.Identifier, "schema name")
	if err != nil {
		return nil, err
	}
	schema := ast.SchemaDefinition{Name: name.Lexeme}

	if p.match(token.KwFrom) {
		base, err := p.expect(token.Identifier, "schema base")
		if err != nil {
			return nil, err
		}
		schema.Base = base.Lexeme
	}
	if p.match(token.KwImplements) {
		for {
			c, err := p.expect(token.Identifier, "implements clause")
			if err != nil {
				return nil, err
			}
			schema.Contracts = append(schema.Contracts, c.Lexeme)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	apps, err := p.parseContextApplications()
	if err != nil {
		return nil, err
	}
	schema.Contexts = apps

	if _, err := p.expect(token.LBrace, "schema body"); err != nil {
		return nil, err
	}
	p.skipSeparators()
	for !p.check(token.RBrace) {
		switch p.cur().Kind {
		case token.KwAssume:
			p.advance()
			clause, err := p.parseAssumeClause()
			if err != nil {
				return nil, err
			}
			schema.Assumes = append(schema.Assumes, clause)
		case token.KwInvariant:
			p.advance()
			inv, err := p.parseInvariantClause()
			if err != nil {
				return nil, err
			}
			schema.Invariants = append(schema.Invariants, inv)
		case token.KwRefine:
			p.advance()
			rule, err := p.parseRefineRule()
			if err != nil {
				return nil, err
			}
			schema.Refine = append(schema.Refine, rule)
		case token.KwThen:
			p.advance()
			muts, err := p.parseThenBlock()
			if err != nil {
				return nil, err
			}
			schema.Then = append(schema.Then, muts...)
		default:
			field, err := p.parseFieldDefinition()
			if err != nil {
				return nil, err
			}
			schema.Fields = append(schema.Fields, field)
		}
		p.skipSeparators()
	}
	end := p.advance() // '}'
	schema.Sp = ast.Span{Start: start.Pos, End: end.Pos}
	return schema, nil
}

func (p *Parser) parseConditionGuard() (ast.Expr, error) {
	if !p.match(token.KwIf) {
		return nil, nil
	}
	return p.parseExpr()
}

func (p *Parser) parseConstraintList() ([]ast.Expr, error) {
	if p.match(token.LBrace) {
		var exprs []ast.Expr
		p.skipSeparators()
		for !p.check(token.RBrace) {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
			p.skipSeparators()
		}
		if _, err := p.expect(token.RBrace, "constraint block"); err != nil {
			return nil, err
		}
		return exprs, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return []ast.Expr{e}, nil
}

func (p *Parser) parseAssumeClause() (ast.AssumeClause, error) {
	cond, err := p.parseConditionGuard()
	if err != nil {
		return ast.AssumeClause{}, err
	}
	constraints, err := p.parseConstraintList()
	if err != nil {
		return ast.AssumeClause{}, err
	}
	return ast.AssumeClause{Condition: cond, Constraints: constraints}, nil
}

func (p *Parser) parseInvariantClause() (ast.InvariantClause, error) {
	cond, err := p.parseConditionGuard()
	if err != nil {
		return ast.InvariantClause{}, err
	}
	constraints, err := p.parseConstraintList()
	if err != nil {
		return ast.InvariantClause{}, err
	}
	msg := ""
	if p.check(token.String) {
		msg = p.advance().Lexeme
	}
	return ast.InvariantClause{Condition: cond, Constraints: constraints, Message: msg}, nil
}

func (p *Parser) parseRefineRule() (ast.RefineRule, error) {
	cond, err := p.parseConditionGuard()
	if err != nil {
		return ast.RefineRule{}, err
	}
	if _, err := p.expect(token.LBrace, "refine block"); err != nil {
		return ast.RefineRule{}, err
	}
	var fields []string
	p.skipSeparators()
	for !p.check(token.RBrace) {
		f, err := p.expect(token.Identifier, "refine field")
		if err != nil {
			return ast.RefineRule{}, err
		}
		fields = append(fields, f.Lexeme)
		p.skipSeparators()
	}
	if _, err := p.expect(token.RBrace, "refine block"); err != nil {
		return ast.RefineRule{}, err
	}
	return ast.RefineRule{Condition: cond, Fields: fields}, nil
}

func (p *Parser) parseThenBlock() ([]ast.Mutation, error) {
	if _, err := p.expect(token.LBrace, "then block"); err != nil {
		return nil, err
	}
	var muts []ast.Mutation
	p.skipSeparators()
	for !p.check(token.RBrace) {
		target, err := p.parseDottedPath()
		if err != nil {
			return nil, err
		}
		op := ast.MutationSet
		switch {
		case p.check(token.Assign):
			p.advance()
		case p.matchPlusAssign():
			op = ast.MutationAdd
		default:
			return nil, p.errUnexpected("then mutation operator")
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		muts = append(muts, ast.Mutation{Target: target, Op: op, Value: value})
		p.skipSeparators()
	}
	if _, err := p.expect(token.RBrace, "then block"); err != nil {
		return nil, err
	}
	return muts, nil
}

// matchPlusAssign recognizes `+=` as two adjacent tokens (`+` then `=`)
// since the lexer has no dedicated compound-assignment token.
func (p *Parser) matchPlusAssign() bool {
	if p.check(token.Plus) && p.peekAt(1).Kind == token.Assign {
		p.advance()
		p.advance()
		return true
	}
	return false
}

func (p *Parser) parseDottedPath() ([]string, error) {
	first, err := p.expect(token.Identifier, "path")
	if err != nil {
		return nil, err
	}
	parts := []string{first.Lexeme}
	for p.match(token.Dot) {
		id, err := p.expect(token.Identifier, "path segment")
		if err != nil {
			return nil, err
		}
		parts = append(parts, id.Lexeme)
	}
	return parts, nil
}

func (p *Parser) parseFieldDefinition() (ast.FieldDefinition, error) {
	start := p.cur()
	field := ast.FieldDefinition{}
	for {
		switch p.cur().Kind {
		case token.KwUnique:
			p.advance()
			field.Unique = true
			continue
		case token.KwPrivate:
			p.advance()
			field.Private = true
			continue
		case token.KwOptional:
			p.advance()
			field.Optional = true
			continue
		}
		break
	}
	name, err := p.expect(token.Identifier, "field name")
	if err != nil {
		return ast.FieldDefinition{}, err
	}
	field.Name = name.Lexeme

	if p.match(token.KwIf) {
		cond, err := p.parseExpr()
		if err != nil {
			return ast.FieldDefinition{}, err
		}
		field.Condition = cond
	}

	if _, err := p.expect(token.Colon, "field type"); err != nil {
		return ast.FieldDefinition{}, err
	}

	if p.match(token.Assign) {
		field.Computed = true
		expr, err := p.parseExpr()
		if err != nil {
			return ast.FieldDefinition{}, err
		}
		field.Distribution = expr
	} else {
		ft, err := p.parseFieldType()
		if err != nil {
			return ast.FieldDefinition{}, err
		}
		field.Type = ft
	}

	if p.match(token.Question) {
		field.Optional = true
	}

	field.Sp = ast.Span{Start: start.Pos, End: p.cur().Pos}
	return field, nil
}

// parseFieldType implements §4.F's field-type disambiguation.
func (p *Parser) parseFieldType() (ast.FieldType, error) {
	start := p.cur()

	// Ordered sequence: `[ e1, e2, ... ]`
	if p.check(token.LBracket) {
		p.advance()
		var elems []ast.Expr
		p.skipSeparators()
		for !p.check(token.RBracket) {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if !p.match(token.Comma) {
				break
			}
			p.skipSeparators()
		}
		if _, err := p.expect(token.RBracket, "ordered sequence"); err != nil {
			return nil, err
		}
		return p.maybeNullable(ast.OrderedSequenceType{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Elements: elems})
	}

	// Superposition: `w:v | w:v | ...`
	if p.isSuperpositionStart() {
		opts, err := p.parseSuperpositionOptions()
		if err != nil {
			return nil, err
		}
		return p.maybeNullable(ast.SuperpositionType{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Options: opts})
	}

	// Cardinality-led collection: `N * Element`, `N..M * Element`,
	// `(expr) * Element`, `N..M per parent * Element`, or `... of Element`.
	if card, ok, err := p.tryParseCardinality(); err != nil {
		return nil, err
	} else if ok {
		if !p.match(token.Star) && !p.match(token.KwOf) {
			return nil, p.errUnexpected("collection field type ('*' or 'of')")
		}
		elem, err := p.parseFieldType()
		if err != nil {
			return nil, err
		}
		return ast.CollectionType{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Cardinality: card, Element: elem}, nil
	}

	// Primitive or range-over-primitive, or generator call, or bare
	// schema/binding reference.
	if p.check(token.Identifier) {
		name := p.cur().Lexeme
		if kind, isPrim := primitiveKind(name); isPrim {
			p.advance()
			if p.match(token.KwIn) {
				min, err := p.parseRangeBoundExpr()
				if err != nil {
					return nil, err
				}
				return p.maybeNullable(ast.RangeType{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Base: kind, Min: min.Min, Max: min.Max})
			}
			return p.maybeNullable(ast.Primitive{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Kind: kind})
		}
		// generator call: identifier '('
		if p.peekAt(1).Kind == token.LParen {
			p.advance()
			p.advance() // '('
			var args []ast.Expr
			for !p.check(token.RParen) {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, e)
				if !p.match(token.Comma) {
					break
				}
			}
			if _, err := p.expect(token.RParen, "generator call"); err != nil {
				return nil, err
			}
			return p.maybeNullable(ast.GeneratorType{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Name: name, Args: args})
		}
		// bare qualified reference
		path, err := p.parseDottedPath()
		if err != nil {
			return nil, err
		}
		return p.maybeNullable(ast.ReferenceType{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Path: path})
	}

	return nil, p.errUnexpected("field type")
}

func (p *Parser) maybeNullable(ft ast.FieldType) (ast.FieldType, error) {
	if p.match(token.Question) {
		return ast.NullableType{Inner: ft}, nil
	}
	return ft, nil
}

func primitiveKind(name string) (ast.PrimitiveKind, bool) {
	switch ast.PrimitiveKind(name) {
	case ast.PrimInt, ast.PrimDecimal, ast.PrimString, ast.PrimDate, ast.PrimBoolean:
		return ast.PrimitiveKind(name), true
	default:
		return "", false
	}
}

// parseRangeBoundExpr parses the `min..max` clause after `in`, returning
// the bounds as an ast.Range-shaped pair.
func (p *Parser) parseRangeBoundExpr() (ast.Range, error) {
	min, err := p.parseAdditive()
	if err != nil {
		return ast.Range{}, err
	}
	// parseRangeOrPostfix already folds `a..b` into a Range.
	if r, ok := min.(ast.Range); ok {
		return r, nil
	}
	if _, err := p.expect(token.DotDot, "range"); err != nil {
		return ast.Range{}, err
	}
	max, err := p.parseAdditive()
	if err != nil {
		return ast.Range{}, err
	}
	return ast.Range{Min: min, Max: max}, nil
}

// isSuperpositionStart looks ahead for `[NUMBER ':'] expr '|'`, since a
// single unweighted, unpiped expression is not a superposition at all.
func (p *Parser) isSuperpositionStart() bool {
	save := p.pos
	defer func() { p.pos = save }()

	// skip an optional weight prefix
	if (p.check(token.Int) || p.check(token.Decimal)) && p.peekAt(1).Kind == token.Colon {
		p.advance()
		p.advance()
	}
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		switch p.toks[i].Kind {
		case token.LParen, token.LBracket, token.LBrace:
			depth++
		case token.RParen, token.RBracket, token.RBrace:
			if depth == 0 {
				return false
			}
			depth--
		case token.Pipe:
			if depth == 0 {
				return true
			}
		case token.Comma, token.EOF, token.Star, token.KwOf, token.Colon:
			if depth == 0 {
				return false
			}
		}
	}
	return false
}

func (p *Parser) parseSuperpositionOptions() ([]ast.SuperpositionOption, error) {
	var opts []ast.SuperpositionOption
	for {
		opt, err := p.parseSuperpositionOption()
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
		if !p.match(token.Pipe) {
			break
		}
	}
	return opts, nil
}

func (p *Parser) parseSuperpositionOption() (ast.SuperpositionOption, error) {
	var weight ast.Expr
	if (p.check(token.Int) || p.check(token.Decimal)) && p.peekAt(1).Kind == token.Colon {
		w, err := p.parseLiteralNumber()
		if err != nil {
			return ast.SuperpositionOption{}, err
		}
		weight = w
		p.advance() // ':'
	}
	value, err := p.parseRangeOrPostfix()
	if err != nil {
		return ast.SuperpositionOption{}, err
	}
	return ast.SuperpositionOption{Weight: weight, Value: value}, nil
}

func (p *Parser) parseLiteralNumber() (ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Int:
		p.advance()
		n, _ := strconv.ParseInt(t.Lexeme, 10, 64)
		return ast.Literal{Meta: ast.NewMeta(t.Pos, t.Pos), Value: n, Kind: token.Int}, nil
	case token.Decimal:
		p.advance()
		f, _ := strconv.ParseFloat(t.Lexeme, 64)
		return ast.Literal{Meta: ast.NewMeta(t.Pos, t.Pos), Value: f, Kind: token.Decimal}, nil
	default:
		return nil, p.errUnexpected("numeric literal")
	}
}

// tryParseCardinality attempts to parse a leading cardinality
// (`N`, `N..M`, `(expr)`, optionally followed by `per parent`) without
// committing if what follows isn't `*`/`of`.
func (p *Parser) tryParseCardinality() (ast.Cardinality, bool, error) {
	save := p.pos
	fail := func() (ast.Cardinality, bool, error) { p.pos = save; return ast.Cardinality{}, false, nil }

	switch {
	case p.check(token.Int):
		minTok := p.advance()
		minN, _ := strconv.Atoi(minTok.Lexeme)
		card := ast.Cardinality{Static: true, Min: minN, Max: minN}
		if p.match(token.DotDot) {
			if !p.check(token.Int) {
				return fail()
			}
			maxTok := p.advance()
			card.Max, _ = strconv.Atoi(maxTok.Lexeme)
		}
		if p.match(token.KwPer) {
			parentTok := p.cur()
			if !p.match(token.Identifier) { // "parent" by convention, or named
				return fail()
			}
			card.PerParent = true
			card.ParentName = parentTok.Lexeme
		}
		if !p.check(token.Star) && !p.check(token.KwOf) {
			return fail()
		}
		return card, true, nil
	case p.check(token.LParen):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return fail()
		}
		if !p.match(token.RParen) {
			return fail()
		}
		card := ast.Cardinality{Expr: e}
		if p.match(token.KwPer) {
			parentTok := p.cur()
			if !p.match(token.Identifier) {
				return fail()
			}
			card.PerParent = true
			card.ParentName = parentTok.Lexeme
		}
		if !p.check(token.Star) && !p.check(token.KwOf) {
			return fail()
		}
		return card, true, nil
	default:
		return fail()
	}
}

func (p *Parser) parseContract() (ast.Statement, error) {
	start := p.advance()
	name, err := p.expect(token.Identifier, "contract name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace, "contract body"); err != nil {
		return nil, err
	}
	def := ast.ContractDefinition{Name: name.Lexeme}
	p.skipSeparators()
	for !p.check(token.RBrace) {
		if _, err := p.expect(token.KwInvariant, "contract body"); err != nil {
			return nil, err
		}
		inv, err := p.parseInvariantClause()
		if err != nil {
			return nil, err
		}
		def.Invariants = append(def.Invariants, inv)
		p.skipSeparators()
	}
	end := p.advance()
	def.Sp = ast.Span{Start: start.Pos, End: end.Pos}
	return def, nil
}

func (p *Parser) parseContext() (ast.Statement, error) {
	start := p.advance()
	name, err := p.expect(token.Identifier, "context name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace, "context body"); err != nil {
		return nil, err
	}
	def := ast.ContextDefinition{Name: name.Lexeme, Affects: map[string]ast.Expr{}}
	p.skipSeparators()
	for !p.check(token.RBrace) {
		field, err := p.expect(token.Identifier, "context field")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Arrow, "context affect"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		def.Affects[field.Lexeme] = val
		p.skipSeparators()
	}
	end := p.advance()
	def.Sp = ast.Span{Start: start.Pos, End: end.Pos}
	return def, nil
}

func (p *Parser) parseDistribution() (ast.Statement, error) {
	start := p.advance()
	name, err := p.expect(token.Identifier, "distribution name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace, "distribution body"); err != nil {
		return nil, err
	}
	def := ast.DistributionDefinition{Name: name.Lexeme, Weights: map[string]float64{}}
	p.skipSeparators()
	for !p.check(token.RBrace) {
		key, err := p.expect(token.Identifier, "distribution bucket")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon, "distribution bucket"); err != nil {
			return nil, err
		}
		n, err := p.parseLiteralNumber()
		if err != nil {
			return nil, err
		}
		lit := n.(ast.Literal)
		f, _ := value.AsFloat(lit.Value)
		def.Weights[key.Lexeme] = f
		p.skipSeparators()
	}
	end := p.advance()
	def.Sp = ast.Span{Start: start.Pos, End: end.Pos}
	return def, nil
}

func (p *Parser) parseDataset() (ast.Statement, error) {
	start := p.advance()
	name, err := p.expect(token.Identifier, "dataset name")
	if err != nil {
		return nil, err
	}
	def := ast.DatasetDefinition{Name: name.Lexeme}

	apps, err := p.parseContextApplications()
	if err != nil {
		return nil, err
	}
	def.Contexts = apps

	if p.match(token.KwViolating) {
		def.Violating = true
	}

	if _, err := p.expect(token.LBrace, "dataset body"); err != nil {
		return nil, err
	}
	p.skipSeparators()
	for !p.check(token.RBrace) {
		if p.check(token.Identifier) && p.cur().Lexeme == "validate" {
			p.advance()
			if _, err := p.expect(token.LBrace, "validate block"); err != nil {
				return nil, err
			}
			p.skipSeparators()
			for !p.check(token.RBrace) {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				def.Validation = append(def.Validation, e)
				p.skipSeparators()
			}
			if _, err := p.expect(token.RBrace, "validate block"); err != nil {
				return nil, err
			}
			p.skipSeparators()
			continue
		}
		spec, err := p.parseCollectionSpec()
		if err != nil {
			return nil, err
		}
		def.Collections = append(def.Collections, spec)
		p.skipSeparators()
	}
	end := p.advance()
	def.Sp = ast.Span{Start: start.Pos, End: end.Pos}
	return def, nil
}

func (p *Parser) parseCollectionSpec() (ast.CollectionSpec, error) {
	name, err := p.expect(token.Identifier, "collection name")
	if err != nil {
		return ast.CollectionSpec{}, err
	}
	if _, err := p.expect(token.Colon, "collection spec"); err != nil {
		return ast.CollectionSpec{}, err
	}
	card, ok, err := p.tryParseCardinality()
	if err != nil {
		return ast.CollectionSpec{}, err
	}
	if !ok {
		return ast.CollectionSpec{}, p.errUnexpected("collection cardinality")
	}
	if !p.match(token.Star) && !p.match(token.KwOf) {
		return ast.CollectionSpec{}, p.errUnexpected("collection spec ('*' or 'of')")
	}
	schemaRef, err := p.expect(token.Identifier, "collection schema reference")
	if err != nil {
		return ast.CollectionSpec{}, err
	}
	return ast.CollectionSpec{Name: name.Lexeme, Cardinality: card, SchemaRef: schemaRef.Lexeme}, nil
}

// ---- Expressions ----

// ParseExpr is the public entry point used by custom statement parsers.
func (p *Parser) ParseExpr() (ast.Expr, error) { return p.parseExpr() }

// parseExpr is the universal expression entry point. A superposition
// (`weight:value | weight:value | ...`) can appear anywhere an
// expression can, not only in a field's declared type, so it is
// checked here ahead of the ternary/logical precedence chain.
func (p *Parser) parseExpr() (ast.Expr, error) {
	start := p.cur()
	if p.isSuperpositionStart() {
		opts, err := p.parseSuperpositionOptions()
		if err != nil {
			return nil, err
		}
		return ast.Superposition{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Options: opts}, nil
	}
	return p.parseTernary()
}

func (p *Parser) parseTernary() (ast.Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.match(token.Question) {
		thenE, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon, "ternary"); err != nil {
			return nil, err
		}
		elseE, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.Ternary{Cond: cond, Then: thenE, Else: elseE}, nil
	}
	return cond, nil
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(token.KwOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.Logical{Op: ast.LogOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.match(token.KwAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = ast.Logical{Op: ast.LogAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if p.match(token.KwNot) {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return ast.Not{Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.Eq:
			op = ast.OpEq
		case token.NotEq:
			op = ast.OpNeq
		case token.Lt:
			op = ast.OpLt
		case token.Gt:
			op = ast.OpGt
		case token.LtEq:
			op = ast.OpLe
		case token.GtEq:
			op = ast.OpGe
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.Plus:
			op = ast.OpAdd
		case token.Minus:
			op = ast.OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.Star:
			op = ast.OpMul
		case token.Slash:
			op = ast.OpDiv
		case token.Percent:
			op = ast.OpMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.Plus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.Unary{Op: ast.UnaryPlus, Operand: operand}, nil
	case token.Minus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.Unary{Op: ast.UnaryMinus, Operand: operand}, nil
	case token.KwNot:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.Not{Operand: operand}, nil
	default:
		return p.parseRangeOrPostfix()
	}
}

// parseRangeOrPostfix parses a postfix expression and, if followed by
// `..`, promotes it to an ast.Range.
func (p *Parser) parseRangeOrPostfix() (ast.Expr, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.match(token.DotDot) {
		var right ast.Expr
		if !p.atStopToken() {
			right, err = p.parsePostfix()
			if err != nil {
				return nil, err
			}
		}
		return ast.Range{Min: left, Max: right}, nil
	}
	return left, nil
}

func (p *Parser) atStopToken() bool {
	switch p.cur().Kind {
	case token.Comma, token.RParen, token.RBracket, token.RBrace, token.Pipe, token.EOF, token.Colon:
		return true
	default:
		return false
	}
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case token.LParen:
			p.advance()
			var args []ast.Expr
			for !p.check(token.RParen) {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if !p.match(token.Comma) {
					break
				}
			}
			if _, err := p.expect(token.RParen, "call arguments"); err != nil {
				return nil, err
			}
			expr = ast.Call{Callee: expr, Args: args}
		case token.Dot:
			p.advance()
			name, err := p.expect(token.Identifier, "member access")
			if err != nil {
				return nil, err
			}
			switch e := expr.(type) {
			case ast.QualifiedName:
				expr = ast.QualifiedName{Meta: e.Meta, Parts: append(append([]string{}, e.Parts...), name.Lexeme)}
			case ast.Identifier:
				expr = ast.QualifiedName{Meta: e.Meta, Parts: []string{e.Name, name.Lexeme}}
			default:
				expr = ast.Binary{Op: ast.BinaryOp("."), Left: expr, Right: ast.Identifier{Name: name.Lexeme}}
			}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Int:
		p.advance()
		n, _ := strconv.ParseInt(t.Lexeme, 10, 64)
		return ast.Literal{Meta: ast.NewMeta(t.Pos, t.Pos), Value: n, Kind: token.Int}, nil
	case token.Decimal:
		p.advance()
		f, _ := strconv.ParseFloat(t.Lexeme, 64)
		return ast.Literal{Meta: ast.NewMeta(t.Pos, t.Pos), Value: f, Kind: token.Decimal}, nil
	case token.String:
		p.advance()
		return ast.Literal{Meta: ast.NewMeta(t.Pos, t.Pos), Value: t.Lexeme, Kind: token.String}, nil
	case token.KwTrue:
		p.advance()
		return ast.Literal{Meta: ast.NewMeta(t.Pos, t.Pos), Value: true, Kind: token.KwTrue}, nil
	case token.KwFalse:
		p.advance()
		return ast.Literal{Meta: ast.NewMeta(t.Pos, t.Pos), Value: false, Kind: token.KwFalse}, nil
	case token.KwNull:
		p.advance()
		return ast.Literal{Meta: ast.NewMeta(t.Pos, t.Pos), Value: nil, Kind: token.KwNull}, nil
	case token.LParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen, "parenthesized expression"); err != nil {
			return nil, err
		}
		return e, nil
	case token.Caret:
		p.advance()
		path, err := p.parseDottedPath()
		if err != nil {
			return nil, err
		}
		return ast.ParentRef{Meta: ast.NewMeta(t.Pos, t.Pos), Path: path}, nil
	case token.KwAny:
		return p.parseAnyOf()
	case token.KwMatch:
		return p.parseMatch()
	case token.Identifier:
		p.advance()
		return ast.Identifier{Meta: ast.NewMeta(t.Pos, t.Pos), Name: t.Lexeme}, nil
	default:
		return nil, p.errUnexpected("expression")
	}
}

func (p *Parser) parseAnyOf() (ast.Expr, error) {
	start := p.advance() // 'any'
	if _, err := p.expect(token.KwOf, "any of"); err != nil {
		return nil, err
	}
	coll, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	node := ast.AnyOf{Meta: ast.NewMeta(start.Pos, p.cur().Pos), Collection: coll}
	if p.check(token.Identifier) && p.cur().Lexeme == "where" {
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Condition = cond
	}
	return node, nil
}

func (p *Parser) parseMatch() (ast.Expr, error) {
	start := p.advance() // 'match'
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace, "match body"); err != nil {
		return nil, err
	}
	node := ast.Match{Value: value}
	p.skipSeparators()
	for !p.check(token.RBrace) {
		var pattern ast.Expr
		if p.check(token.KwElse) {
			p.advance()
		} else {
			pattern, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(token.Arrow, "match arm"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Arms = append(node.Arms, ast.MatchArm{Pattern: pattern, Result: result})
		p.skipSeparators()
	}
	end := p.advance()
	node.Sp = ast.Span{Start: start.Pos, End: end.Pos}
	return node, nil
}
