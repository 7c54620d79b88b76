// Package ast defines the tagged-variant intermediate representation
// produced by pkg/parser and consumed by pkg/eval, pkg/fieldgen,
// pkg/instancegen, and pkg/dataset (§4.E).
//
// Every node carries its source Span. Expressions are a closed sum type;
// dispatch is by type switch (structural dispatch), never by virtual
// method call, so adding a variant is a compile-time-checkable exercise
// at every switch site.
package ast

import "fabrik/pkg/token"

// Span is the source range a node was parsed from.
type Span struct {
	Start, End token.Position
}

// Node is implemented by every AST node.
type Node interface {
	span() Span
}

// Meta is embedded by every concrete node to carry its Span. It is
// exported so other packages (chiefly pkg/parser) can populate it in
// struct literals; span() stays unexported since only ast's own
// concrete types need to satisfy Node.
type Meta struct{ Sp Span }

func (m Meta) span() Span { return m.Sp }

// NewMeta builds a Meta spanning [start, end).
func NewMeta(start, end token.Position) Meta {
	return Meta{Sp: Span{Start: start, End: end}}
}

// ---- Expressions ----

// Expr is the sealed expression sum type.
type Expr interface {
	Node
	exprNode()
}

type Literal struct {
	Meta
	Value any // int64, float64, string, bool, or nil
	Kind  token.Kind
}

type Identifier struct {
	Meta
	Name string
}

type QualifiedName struct {
	Meta
	Parts []string
}

type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
	OpEq  BinaryOp = "=="
	OpNeq BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpGt  BinaryOp = ">"
	OpLe  BinaryOp = "<="
	OpGe  BinaryOp = ">="
)

type Binary struct {
	Meta
	Op          BinaryOp
	Left, Right Expr
}

type LogicalOp string

const (
	LogAnd LogicalOp = "and"
	LogOr  LogicalOp = "or"
)

type Logical struct {
	Meta
	Op          LogicalOp
	Left, Right Expr
}

type Not struct {
	Meta
	Operand Expr
}

type UnaryOp string

const (
	UnaryPlus  UnaryOp = "+"
	UnaryMinus UnaryOp = "-"
)

type Unary struct {
	Meta
	Op      UnaryOp
	Operand Expr
}

// Range is a `min..max` expression; either bound may be nil for an
// open-ended range (the parser still requires at least one bound).
type Range struct {
	Meta
	Min, Max Expr
}

// SuperpositionOption is one `weight:value` or bare `value` arm.
type SuperpositionOption struct {
	Weight Expr // nil when unweighted
	Value  Expr
}

type Superposition struct {
	Meta
	Options []SuperpositionOption
}

type Call struct {
	Meta
	Callee Expr
	Args   []Expr
}

type Ternary struct {
	Meta
	Cond, Then, Else Expr
}

// MatchArm is one `pattern => result` clause; Pattern nil denotes the
// final wildcard arm (`else => result`), if present.
type MatchArm struct {
	Pattern Expr
	Result  Expr
}

type Match struct {
	Meta
	Value Expr
	Arms  []MatchArm
}

// ParentRef is `^path.to.field`.
type ParentRef struct {
	Meta
	Path []string
}

// AnyOf is `any of collection [where condition]`.
type AnyOf struct {
	Meta
	Collection Expr
	Condition  Expr // nil when absent
}

type OrderedSequence struct {
	Meta
	Elements []Expr
}

func (Literal) exprNode()         {}
func (Identifier) exprNode()      {}
func (QualifiedName) exprNode()   {}
func (Binary) exprNode()          {}
func (Logical) exprNode()         {}
func (Not) exprNode()             {}
func (Unary) exprNode()           {}
func (Range) exprNode()           {}
func (Superposition) exprNode()   {}
func (Call) exprNode()            {}
func (Ternary) exprNode()         {}
func (Match) exprNode()           {}
func (ParentRef) exprNode()       {}
func (AnyOf) exprNode()           {}
func (OrderedSequence) exprNode() {}

// ---- Field types ----

// FieldType is the sealed field-type sum.
type FieldType interface {
	Node
	fieldTypeNode()
}

type PrimitiveKind string

const (
	PrimInt     PrimitiveKind = "int"
	PrimDecimal PrimitiveKind = "decimal"
	PrimString  PrimitiveKind = "string"
	PrimDate    PrimitiveKind = "date"
	PrimBoolean PrimitiveKind = "boolean"
)

type Primitive struct {
	Meta
	Kind      PrimitiveKind
	Precision *int // decimal precision override, nil = default
	Nullable  bool
}

// RangeType is `base in min..max`.
type RangeType struct {
	Meta
	Base     PrimitiveKind
	Min, Max Expr
}

type SuperpositionType struct {
	Meta
	Options []SuperpositionOption
}

// Cardinality is either a static {Min,Max} or a dynamic Expr.
type Cardinality struct {
	Static     bool
	Min, Max   int
	Expr       Expr
	PerParent  bool
	ParentName string // the collection named after `per`, e.g. "c" in "2..3 per c"
}

type CollectionType struct {
	Meta
	Cardinality Cardinality
	Element     FieldType
}

// ReferenceType is a bare qualified schema/binding reference used as a
// field type, e.g. `customer: Customer`.
type ReferenceType struct {
	Meta
	Path []string
}

type ExpressionType struct {
	Meta
	Expr Expr
}

type GeneratorType struct {
	Meta
	Name string
	Args []Expr
}

type OrderedSequenceType struct {
	Meta
	Elements []Expr
}

// NullableType is the desugaring target of trailing `T?` field-type
// syntax (§4.F: "nullable (`T?` rewrites to `T | null`)"). It behaves as
// an unweighted two-option superposition between Inner and null.
type NullableType struct {
	Meta
	Inner FieldType
}

func (Primitive) fieldTypeNode()           {}
func (RangeType) fieldTypeNode()           {}
func (SuperpositionType) fieldTypeNode()   {}
func (CollectionType) fieldTypeNode()      {}
func (ReferenceType) fieldTypeNode()       {}
func (ExpressionType) fieldTypeNode()      {}
func (GeneratorType) fieldTypeNode()       {}
func (OrderedSequenceType) fieldTypeNode() {}
func (NullableType) fieldTypeNode()        {}

// ---- Fields & schemas ----

type FieldDefinition struct {
	Meta
	Name       string
	Type       FieldType
	Optional   bool
	Unique     bool
	Private    bool
	Computed   bool
	Condition  Expr // nil when unconditional
	Distribution Expr // holds the computed-field expression when Computed
}

type AssumeClause struct {
	Condition   Expr // nil = unconditional guard
	Constraints []Expr
}

type InvariantClause struct {
	Condition   Expr
	Constraints []Expr
	Message     string
}

// Mutation is one `target = value` or `target += value` statement of a
// `then` block.
type MutationOp string

const (
	MutationSet MutationOp = "="
	MutationAdd MutationOp = "+="
)

type Mutation struct {
	Target []string
	Op     MutationOp
	Value  Expr
}

type RefineRule struct {
	Condition Expr
	Fields    []string
}

type ContextApplication struct {
	Name string
	Args []Expr
}

type SchemaDefinition struct {
	Meta
	Name      string
	Base      string // imported-schema base, "" when absent
	Fields    []FieldDefinition
	Assumes   []AssumeClause
	Invariants []InvariantClause
	Contracts []string
	Contexts  []ContextApplication
	Refine    []RefineRule
	Then      []Mutation
}

type ContractDefinition struct {
	Meta
	Name       string
	Invariants []InvariantClause
}

type ContextDefinition struct {
	Meta
	Name    string
	Affects map[string]Expr
}

type DistributionDefinition struct {
	Meta
	Name    string
	Weights map[string]float64
}

type CollectionSpec struct {
	Name        string
	Cardinality Cardinality
	SchemaRef   string
}

type DatasetDefinition struct {
	Meta
	Name        string
	Contexts    []ContextApplication
	Collections []CollectionSpec
	Validation  []Expr
	Violating   bool
}

type LetStatement struct {
	Meta
	Name  string
	Value Expr
}

type ImportStatement struct {
	Meta
	Name string
	Path string
}

// Statement is the sealed top-level statement sum.
type Statement interface {
	Node
	stmtNode()
}

func (LetStatement) stmtNode()            {}
func (ImportStatement) stmtNode()         {}
func (SchemaDefinition) stmtNode()        {}
func (ContractDefinition) stmtNode()      {}
func (ContextDefinition) stmtNode()       {}
func (DistributionDefinition) stmtNode()  {}
func (DatasetDefinition) stmtNode()       {}

// CustomStatement wraps a statement produced by a plugin-registered
// statement parser (§4.C); the core treats its payload opaquely.
type CustomStatement struct {
	Meta
	Kind    string
	Payload any
}

func (CustomStatement) stmtNode() {}

// Program is the parsed module: an ordered sequence of top-level
// statements.
type Program struct {
	Statements []Statement
}
