package generator

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabrik/pkg/ast"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/lexer"
	"fabrik/pkg/parser"
	"fabrik/pkg/value"
	"fabrik/pkg/warnings"
)

// parseSource runs the full lexer -> parser pipeline a hand-built
// ast.Program fixture never exercises, so the evaluator is proven to
// agree with the parser on literal source text.
func parseSource(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := parser.Parse(src, lexer.Hooks{}, parser.Hooks{})
	require.NoError(t, err)
	return prog
}

// TestGenerateIsDeterministicAcrossRunsForSameSeed exercises spec
// scenario S1 end to end: a simple range plus weighted-choice schema,
// generated twice from the same source and seed. The two collections
// must be deep-equal, proving the parser/evaluator pair is
// reproducible rather than merely order-stable.
func TestGenerateIsDeterministicAcrossRunsForSameSeed(t *testing.T) {
	src := `
schema Invoice {
	amount: decimal in 1..1000
	status: 0.7:"paid" | 0.3:"draft"
}
dataset T {
	invoices: 50 * Invoice
}`
	prog := parseSource(t, src)

	g1 := New(nil)
	res1, err := g1.Generate(context.Background(), prog, 42, gencontext.DefaultOptions())
	require.NoError(t, err)

	g2 := New(nil)
	res2, err := g2.Generate(context.Background(), prog, 42, gencontext.DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res1.Collections["invoices"], 50)
	if diff := cmp.Diff(res1.Collections, res2.Collections); diff != "" {
		t.Fatalf("same seed produced different collections (-first +second):\n%s", diff)
	}
	for _, rec := range res1.Collections["invoices"] {
		amount, ok := value.AsFloat(rec["amount"])
		require.True(t, ok)
		assert.GreaterOrEqual(t, amount, 1.0)
		assert.LessOrEqual(t, amount, 1000.0)
		assert.Contains(t, []any{"paid", "draft"}, rec["status"])
	}
}

// TestGenerateComputedFieldOrderMatchesScenarioS4 exercises spec
// scenario S4: a computed field must observe its dependencies'
// already-assigned values.
func TestGenerateComputedFieldOrderMatchesScenarioS4(t *testing.T) {
	src := `
schema O {
	q: int in 1..5
	p: int in 1..10
	total: = q * p
}
dataset T {
	orders: 20 * O
}`
	prog := parseSource(t, src)
	g := New(nil)
	res, err := g.Generate(context.Background(), prog, 7, gencontext.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Collections["orders"], 20)
	for _, rec := range res.Collections["orders"] {
		q, _ := value.AsFloat(rec["q"])
		p, _ := value.AsFloat(rec["p"])
		total, _ := value.AsFloat(rec["total"])
		assert.Equal(t, q*p, total)
	}
}

func lit(v any) ast.Expr { return ast.Literal{Value: v} }

func TestGenerateRunsEveryDatasetDefinition(t *testing.T) {
	prog := &ast.Program{
		Statements: []ast.Statement{
			ast.SchemaDefinition{
				Name:   "Customer",
				Fields: []ast.FieldDefinition{{Name: "id", Type: ast.Primitive{Kind: ast.PrimInt}}},
			},
			ast.DatasetDefinition{
				Name: "Demo",
				Collections: []ast.CollectionSpec{
					{Name: "customers", SchemaRef: "Customer", Cardinality: ast.Cardinality{Static: true, Min: 2, Max: 2}},
				},
			},
		},
	}
	g := New(nil)
	res, err := g.Generate(context.Background(), prog, 5, gencontext.DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Collections["customers"], 2)
}

func TestGenerateReturnsEmptyResultWhenNoDatasets(t *testing.T) {
	prog := &ast.Program{
		Statements: []ast.Statement{
			ast.LetStatement{Name: "x", Value: lit(int64(1))},
		},
	}
	g := New(nil)
	res, err := g.Generate(context.Background(), prog, 1, gencontext.DefaultOptions())
	require.NoError(t, err)
	assert.NotNil(t, res.Collections)
	assert.Empty(t, res.Collections)
}

func TestGenerateErrorsOnUnhandledStatement(t *testing.T) {
	prog := &ast.Program{
		Statements: []ast.Statement{unknownStatement{}},
	}
	g := New(nil)
	_, err := g.Generate(context.Background(), prog, 1, gencontext.DefaultOptions())
	require.Error(t, err)
}

// unknownStatement satisfies ast.Statement through the embedded
// CustomStatement but is a distinct type, so loadProgram does not handle it.
type unknownStatement struct{ ast.CustomStatement }

func TestValidateFlagsFailingAssume(t *testing.T) {
	ctx := gencontext.New(1, gencontext.DefaultOptions(), nil)
	schema := &ast.SchemaDefinition{
		Name: "Order",
		Assumes: []ast.AssumeClause{
			{Constraints: []ast.Expr{ast.Binary{Op: ast.OpGe, Left: ast.Identifier{Name: "total"}, Right: lit(int64(0))}}},
		},
	}
	ctx.Schemas["Order"] = schema
	g := New(nil)

	result, err := g.Validate(ctx, "Order", []value.Record{
		{"total": int64(5)},
		{"total": int64(-5)},
	})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Expr, "record[1]")
}

func TestValidateUnknownSchemaErrors(t *testing.T) {
	ctx := gencontext.New(1, gencontext.DefaultOptions(), nil)
	g := New(nil)
	_, err := g.Validate(ctx, "Nope", nil)
	require.Error(t, err)
}

func TestDrainWarningsClearsContextSink(t *testing.T) {
	ctx := gencontext.New(1, gencontext.DefaultOptions(), nil)
	ctx.Warnings.Recordf(warnings.PluginLoad, "Order", "", "something happened")
	got := DrainWarnings(ctx)
	require.Len(t, got, 1)
	assert.Empty(t, ctx.Warnings.Peek())
}
