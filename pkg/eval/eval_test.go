package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabrik/pkg/ast"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/value"
)

func lit(v any) ast.Expr { return ast.Literal{Value: v} }

func newCtx() *gencontext.Context {
	return gencontext.New(42, gencontext.DefaultOptions(), nil)
}

func TestEvaluateLiteral(t *testing.T) {
	v, err := Evaluate(newCtx(), lit(int64(5)))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestEvaluateBinaryArithmetic(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Binary{Op: ast.OpAdd, Left: lit(int64(2)), Right: lit(int64(3))})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestEvaluateDivisionByZero(t *testing.T) {
	ctx := newCtx()
	_, err := Evaluate(ctx, ast.Binary{Op: ast.OpDiv, Left: lit(int64(1)), Right: lit(int64(0))})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArithmetic)
}

func TestEvaluateModuloByZero(t *testing.T) {
	ctx := newCtx()
	_, err := Evaluate(ctx, ast.Binary{Op: ast.OpMod, Left: lit(int64(1)), Right: lit(int64(0))})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArithmetic)
}

func TestEvaluateStringConcatenationViaPlus(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Binary{Op: ast.OpAdd, Left: lit("a"), Right: lit("b")})
	require.NoError(t, err)
	assert.Equal(t, "ab", v)
}

func TestEvaluateEqualityAcrossNumericTypes(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Binary{Op: ast.OpEq, Left: lit(int64(3)), Right: lit(3.0)})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvaluateLogicalShortCircuitAnd(t *testing.T) {
	ctx := newCtx()
	// Right side would error if evaluated; and must short-circuit on a falsy left.
	badRight := ast.Binary{Op: ast.OpDiv, Left: lit(int64(1)), Right: lit(int64(0))}
	v, err := Evaluate(ctx, ast.Logical{Op: ast.LogAnd, Left: lit(false), Right: badRight})
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestEvaluateLogicalShortCircuitOr(t *testing.T) {
	ctx := newCtx()
	badRight := ast.Binary{Op: ast.OpDiv, Left: lit(int64(1)), Right: lit(int64(0))}
	v, err := Evaluate(ctx, ast.Logical{Op: ast.LogOr, Left: lit(true), Right: badRight})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvaluateNot(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Not{Operand: lit(false)})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvaluateUnaryMinus(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Unary{Op: ast.UnaryMinus, Operand: lit(int64(4))})
	require.NoError(t, err)
	assert.Equal(t, -4.0, v)
}

func TestEvaluateRangeBuildsValueRange(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Range{Min: lit(int64(1)), Max: lit(int64(5))})
	require.NoError(t, err)
	r, ok := v.(value.Range)
	require.True(t, ok)
	assert.Equal(t, 1.0, r.Min)
	assert.Equal(t, 5.0, r.Max)
}

func TestEvaluateTernary(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Ternary{Cond: lit(true), Then: lit("yes"), Else: lit("no")})
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
}

func TestEvaluateMatchFallsThroughToWildcard(t *testing.T) {
	ctx := newCtx()
	m := ast.Match{
		Value: lit("b"),
		Arms: []ast.MatchArm{
			{Pattern: lit("a"), Result: lit(1)},
			{Pattern: nil, Result: lit(99)},
		},
	}
	v, err := Evaluate(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestEvaluateMatchesExactArm(t *testing.T) {
	ctx := newCtx()
	m := ast.Match{
		Value: lit("a"),
		Arms: []ast.MatchArm{
			{Pattern: lit("a"), Result: lit(1)},
			{Pattern: nil, Result: lit(99)},
		},
	}
	v, err := Evaluate(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestEvaluateParentRefWithNoParent(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.ParentRef{Path: []string{"id"}})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEvaluateParentRefWalksPath(t *testing.T) {
	ctx := newCtx()
	ctx.Parent = value.Record{"id": int64(7)}
	v, err := Evaluate(ctx, ast.ParentRef{Path: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestEvaluateIdentifierResolvesBindingThenCurrent(t *testing.T) {
	ctx := newCtx()
	ctx.Bindings["X"] = lit(int64(10))
	v, err := Evaluate(ctx, ast.Identifier{Name: "X"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	ctx.Current = value.Record{"name": "ivy"}
	v, err = Evaluate(ctx, ast.Identifier{Name: "name"})
	require.NoError(t, err)
	assert.Equal(t, "ivy", v)
}

func TestEvaluateIdentifierPrimitiveTypeNameGenerates(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Identifier{Name: "boolean"})
	require.NoError(t, err)
	_, ok := v.(bool)
	assert.True(t, ok)
}

func TestEvaluateAnyOfFiltersAndPicks(t *testing.T) {
	ctx := newCtx()
	items := []any{
		value.Record{"tier": "gold"},
		value.Record{"tier": "silver"},
		value.Record{"tier": "gold"},
	}
	ctx.Bindings["items"] = ast.Literal{Value: items}
	cond := ast.Binary{Op: ast.OpEq, Left: ast.Identifier{Name: "tier"}, Right: lit("gold")}
	v, err := Evaluate(ctx, ast.AnyOf{Collection: ast.Identifier{Name: "items"}, Condition: cond})
	require.NoError(t, err)
	rec, ok := v.(value.Record)
	require.True(t, ok)
	assert.Equal(t, "gold", rec["tier"])
}

func TestEvaluateOrderedSequenceCollectsElements(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.OrderedSequence{Elements: []ast.Expr{lit(int64(1)), lit(int64(2))}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, v)
}

func TestEvalSuperpositionWeightedDistribution(t *testing.T) {
	ctx := newCtx()
	options := []ast.SuperpositionOption{
		{Weight: lit(1.0), Value: lit("always")},
	}
	counts := map[any]int{}
	for i := 0; i < 50; i++ {
		v, err := evalSuperposition(ctx, options)
		require.NoError(t, err)
		counts[v]++
	}
	assert.Equal(t, 50, counts["always"])
}

func TestEvalSuperpositionSplitsUnweightedRemainder(t *testing.T) {
	ctx := newCtx()
	options := []ast.SuperpositionOption{
		{Weight: nil, Value: lit("a")},
		{Weight: nil, Value: lit("b")},
	}
	seen := map[any]bool{}
	for i := 0; i < 200; i++ {
		v, err := evalSuperposition(ctx, options)
		require.NoError(t, err)
		seen[v] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestEvalSuperpositionDegenerateZeroWeightsFallsBackUniform(t *testing.T) {
	ctx := newCtx()
	options := []ast.SuperpositionOption{
		{Weight: lit(0.0), Value: lit("a")},
		{Weight: lit(0.0), Value: lit("b")},
	}
	v, err := evalSuperposition(ctx, options)
	require.NoError(t, err)
	assert.Contains(t, []any{"a", "b"}, v)
}

func TestEvalSuperpositionRangeValueDrawsUniformInt(t *testing.T) {
	ctx := newCtx()
	options := []ast.SuperpositionOption{
		{Weight: lit(1.0), Value: ast.Range{Min: lit(int64(1)), Max: lit(int64(3))}},
	}
	v, err := evalSuperposition(ctx, options)
	require.NoError(t, err)
	n, ok := v.(int64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, n, int64(1))
	assert.LessOrEqual(t, n, int64(3))
}

func TestIsPrimitiveTypeName(t *testing.T) {
	kind, ok := isPrimitiveTypeName("int")
	assert.True(t, ok)
	assert.Equal(t, ast.PrimInt, kind)

	_, ok = isPrimitiveTypeName("notatype")
	assert.False(t, ok)
}
