package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabrik/pkg/ast"
	"fabrik/pkg/value"
)

func call(name string, args ...ast.Expr) ast.Call {
	return ast.Call{Callee: ast.Identifier{Name: name}, Args: args}
}

func TestBuiltinAggregates(t *testing.T) {
	ctx := newCtx()
	nums := ast.Literal{Value: []any{1.0, 2.0, 3.0}}

	v, err := Evaluate(ctx, call("sum", nums))
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	v, err = Evaluate(ctx, call("count", nums))
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = Evaluate(ctx, call("min", nums))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = Evaluate(ctx, call("max", nums))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = Evaluate(ctx, call("avg", nums))
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = Evaluate(ctx, call("median", nums))
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = Evaluate(ctx, call("product", nums))
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	v, err = Evaluate(ctx, call("first", nums))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = Evaluate(ctx, call("last", nums))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestBuiltinMath(t *testing.T) {
	ctx := newCtx()

	v, err := Evaluate(ctx, call("round", ast.Literal{Value: 1.2345}, ast.Literal{Value: 2.0}))
	require.NoError(t, err)
	assert.Equal(t, 1.23, v)

	v, err = Evaluate(ctx, call("floor", ast.Literal{Value: 1.9}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = Evaluate(ctx, call("ceil", ast.Literal{Value: 1.1}))
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = Evaluate(ctx, call("abs", ast.Literal{Value: -4.0}))
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	v, err = Evaluate(ctx, call("pow", ast.Literal{Value: 2.0}, ast.Literal{Value: 3.0}))
	require.NoError(t, err)
	assert.Equal(t, 8.0, v)

	v, err = Evaluate(ctx, call("sqrt", ast.Literal{Value: 9.0}))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestBuiltinDateHelpers(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, call("daysBetween", ast.Literal{Value: "2026-01-01"}, ast.Literal{Value: "2026-01-11"}))
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)

	v, err = Evaluate(ctx, call("today"))
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", v)
}

func TestBuiltinStringHelpers(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, call("concat", ast.Literal{Value: "a"}, ast.Literal{Value: "b"}))
	require.NoError(t, err)
	assert.Equal(t, "ab", v)

	v, err = Evaluate(ctx, call("upper", ast.Literal{Value: "ab"}))
	require.NoError(t, err)
	assert.Equal(t, "AB", v)

	v, err = Evaluate(ctx, call("lower", ast.Literal{Value: "AB"}))
	require.NoError(t, err)
	assert.Equal(t, "ab", v)

	v, err = Evaluate(ctx, call("trim", ast.Literal{Value: "  ab  "}))
	require.NoError(t, err)
	assert.Equal(t, "ab", v)

	v, err = Evaluate(ctx, call("substring", ast.Literal{Value: "abcdef"}, ast.Literal{Value: 1.0}, ast.Literal{Value: 4.0}))
	require.NoError(t, err)
	assert.Equal(t, "bcd", v)
}

func TestCallSequenceAdvancesPerName(t *testing.T) {
	ctx := newCtx()
	v1, err := Evaluate(ctx, call("sequenceInt", ast.Literal{Value: "order"}))
	require.NoError(t, err)
	v2, err := Evaluate(ctx, call("sequenceInt", ast.Literal{Value: "order"}))
	require.NoError(t, err)
	assert.Equal(t, v1.(int)+1, v2.(int))
}

func TestCallSequenceStringForm(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, call("sequence", ast.Literal{Value: "order"}, ast.Literal{Value: 100.0}))
	require.NoError(t, err)
	assert.Equal(t, "order100", v)
}

func TestCallPreviousReturnsNilWhenUnset(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, call("previous"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCallPreviousReturnsFieldOfPriorRecord(t *testing.T) {
	ctx := newCtx()
	ctx.Previous = value.Record{"id": int64(3)}
	v, err := Evaluate(ctx, call("previous", ast.Literal{Value: "id"}))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestCallPredicateAllSomeNoneFilter(t *testing.T) {
	ctx := newCtx()
	items := []any{value.Record{"n": int64(1)}, value.Record{"n": int64(2)}, value.Record{"n": int64(3)}}
	ctx.Bindings["items"] = ast.Literal{Value: items}
	gt1 := ast.Binary{Op: ast.OpGt, Left: ast.Identifier{Name: "n"}, Right: ast.Literal{Value: int64(1)}}

	v, err := Evaluate(ctx, call("all", ast.Identifier{Name: "items"}, gt1))
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = Evaluate(ctx, call("some", ast.Identifier{Name: "items"}, gt1))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Evaluate(ctx, call("none", ast.Identifier{Name: "items"}, gt1))
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = Evaluate(ctx, call("filter", ast.Identifier{Name: "items"}, gt1))
	require.NoError(t, err)
	filtered, ok := v.([]any)
	require.True(t, ok)
	assert.Len(t, filtered, 2)
}

func TestCallUniqueRetriesUntilDistinct(t *testing.T) {
	ctx := newCtx()
	key := ast.Literal{Value: "k"}
	expr := ast.Literal{Value: int64(1)}

	v1, err := Evaluate(ctx, call("unique", key, expr))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	// Same constant value can never be unique a second time; exhaustion
	// is recorded and the last attempted value is returned.
	v2, err := Evaluate(ctx, call("unique", key, expr))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v2)
	assert.Equal(t, 1, ctx.Warnings.Len())
}

func TestUnhandledPluginCallSurfacesError(t *testing.T) {
	ctx := newCtx()
	_, err := Evaluate(ctx, call("notRegistered"))
	require.Error(t, err)
}

func TestCallDistributionPicksAKnownKey(t *testing.T) {
	ctx := newCtx()
	ctx.Distributions["Weekday"] = &ast.DistributionDefinition{
		Name:    "Weekday",
		Weights: map[string]float64{"monday": 5, "tuesday": 1},
	}
	v, err := Evaluate(ctx, call("Weekday"))
	require.NoError(t, err)
	assert.Contains(t, []any{"monday", "tuesday"}, v)
}

func TestCallAggregateTakesPrecedenceOverDistribution(t *testing.T) {
	ctx := newCtx()
	ctx.Distributions["sum"] = &ast.DistributionDefinition{
		Name:    "sum",
		Weights: map[string]float64{"only": 1},
	}
	v, err := Evaluate(ctx, call("sum", ast.Literal{Value: []any{1.0, 2.0}}))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestDateArithmeticWithDurationConstructors(t *testing.T) {
	ctx := newCtx()
	v, err := Evaluate(ctx, ast.Binary{
		Op:    ast.OpAdd,
		Left:  ast.Literal{Value: "2026-01-01"},
		Right: call("months", ast.Literal{Value: 2.0}),
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", v)

	v, err = Evaluate(ctx, ast.Binary{
		Op:    ast.OpSub,
		Left:  ast.Literal{Value: "2026-01-10"},
		Right: call("days", ast.Literal{Value: 3.0}),
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-01-07", v)
}
