package instancegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabrik/pkg/ast"
)

func computedField(name string, distribution ast.Expr) ast.FieldDefinition {
	return ast.FieldDefinition{Name: name, Computed: true, Distribution: distribution}
}

func TestTopoSortComputedOrdersByDependency(t *testing.T) {
	fields := []ast.FieldDefinition{
		computedField("total", ast.Binary{Op: ast.OpMul, Left: ast.Identifier{Name: "subtotal"}, Right: ast.Literal{Value: 1.1}}),
		computedField("subtotal", ast.Literal{Value: int64(10)}),
	}
	ordered, err := topoSortComputed(fields)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "subtotal", ordered[0].Name)
	assert.Equal(t, "total", ordered[1].Name)
}

func TestTopoSortComputedDetectsCycle(t *testing.T) {
	fields := []ast.FieldDefinition{
		computedField("a", ast.Identifier{Name: "b"}),
		computedField("b", ast.Identifier{Name: "a"}),
	}
	_, err := topoSortComputed(fields)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComputedCycle)
}

func TestTopoSortComputedIgnoresParentRef(t *testing.T) {
	fields := []ast.FieldDefinition{
		computedField("a", ast.ParentRef{Path: []string{"total"}}),
	}
	ordered, err := topoSortComputed(fields)
	require.NoError(t, err)
	assert.Len(t, ordered, 1)
}

func TestReferencedNamesWalksNestedExpressions(t *testing.T) {
	out := map[string]struct{}{}
	expr := ast.Ternary{
		Cond: ast.Binary{Op: ast.OpGt, Left: ast.Identifier{Name: "x"}, Right: ast.Literal{Value: int64(1)}},
		Then: ast.Identifier{Name: "y"},
		Else: ast.Call{Callee: ast.Identifier{Name: "sum"}, Args: []ast.Expr{ast.Identifier{Name: "z"}}},
	}
	referencedNames(expr, out)
	assert.Contains(t, out, "x")
	assert.Contains(t, out, "y")
	assert.Contains(t, out, "sum")
	assert.Contains(t, out, "z")
}
