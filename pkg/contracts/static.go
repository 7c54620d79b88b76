package contracts

import (
	"fmt"

	"fabrik/pkg/ast"
	"fabrik/pkg/warnings"
)

// StaticWarning records that a schema's assume clause was detected, by
// constant-folding, as never satisfiable. See SUPPLEMENTED FEATURES:
// this is an additive quality improvement (§9 design note) and never
// rejects the schema — it only surfaces a warning the first time a
// schema compiles.
type StaticWarning struct {
	Schema string
	Clause string
}

// StaticCheck constant-folds each assume clause of the shape
// `literal <op> literal` (after one level of binary evaluation on
// literal operands only) and records a StaticUnsatisfiable warning for
// any clause that folds to a constant false. It does not attempt
// interval analysis across field ranges; anything involving a field
// reference is left for runtime rejection sampling to catch.
func StaticCheck(sink *warnings.Sink, schema *ast.SchemaDefinition) {
	for _, a := range schema.Assumes {
		for _, constraint := range a.Constraints {
			if isConstantFalse(constraint) {
				sink.Recordf(warnings.StaticUnsatisfiable, schema.Name, "",
					"assume clause is never satisfiable: %s", describe(constraint))
			}
		}
	}
}

// isConstantFalse folds a binary comparison over two literals and
// reports whether it evaluates to a constant false. Anything else
// (field references, calls, non-comparison operators) is left alone.
func isConstantFalse(e ast.Expr) bool {
	b, ok := e.(ast.Binary)
	if !ok {
		return false
	}
	left, lok := asLiteralFloat(b.Left)
	right, rok := asLiteralFloat(b.Right)
	if !lok || !rok {
		return false
	}
	switch b.Op {
	case ast.OpLt:
		return !(left < right)
	case ast.OpGt:
		return !(left > right)
	case ast.OpLe:
		return !(left <= right)
	case ast.OpGe:
		return !(left >= right)
	case ast.OpEq:
		return left != right
	case ast.OpNeq:
		return left == right
	}
	return false
}

func asLiteralFloat(e ast.Expr) (float64, bool) {
	lit, ok := e.(ast.Literal)
	if !ok {
		return 0, false
	}
	switch v := lit.Value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func describe(e ast.Expr) string {
	b, ok := e.(ast.Binary)
	if !ok {
		return fmt.Sprintf("%v", e)
	}
	return fmt.Sprintf("%v %s %v", literalValue(b.Left), b.Op, literalValue(b.Right))
}

func literalValue(e ast.Expr) any {
	if lit, ok := e.(ast.Literal); ok {
		return lit.Value
	}
	return "?"
}
