// Package fieldgen implements the field generator of §4.I: given an
// ast.FieldType and a gencontext.Context, it produces one runtime
// value. Collection generation recurses into pkg/instancegen for each
// element that is a schema reference, via the GenerateInstance hook
// injected at construction — avoiding a direct import cycle between
// fieldgen and instancegen (instancegen is the caller, not a callee,
// of field generation for scalar fields; for Collection fields it is
// the one piece field generation must call back into).
package fieldgen

import (
	"errors"
	"fmt"
	"math"
	"time"

	"fabrik/pkg/ast"
	"fabrik/pkg/eval"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/primitives"
	"fabrik/pkg/value"
)

// Sentinel errors from the taxonomy §7 names.
var (
	ErrCardinality             = errors.New("cardinality-error")
	ErrDynamicCardinalityType = errors.New("dynamic-cardinality-type-error")
)

// InstanceFunc generates one instance of the named schema, with parent
// already bound in ctx by the caller. It is supplied by pkg/instancegen
// so pkg/fieldgen never imports it directly.
type InstanceFunc func(ctx *gencontext.Context, schemaName string, overrides value.Record) (value.Record, error)

// Generator evaluates FieldType nodes into values.
type Generator struct {
	GenerateInstance InstanceFunc
}

// New builds a Generator. genInstance may be nil for tests that never
// exercise Collection-of-schema-reference fields.
func New(genInstance InstanceFunc) *Generator {
	return &Generator{GenerateInstance: genInstance}
}

// Generate dispatches on ft's concrete type and produces a value for
// fieldName on schemaName (used by the name-heuristic string
// generator and by unique-key bookkeeping).
func (g *Generator) Generate(ctx *gencontext.Context, schemaName, fieldName string, ft ast.FieldType) (any, error) {
	switch t := ft.(type) {
	case ast.Primitive:
		return g.generatePrimitive(ctx, schemaName, fieldName, t)
	case ast.RangeType:
		return g.generateRange(ctx, t)
	case ast.SuperpositionType:
		return eval.Evaluate(ctx, ast.Superposition{Options: t.Options})
	case ast.NullableType:
		return g.generateNullable(ctx, schemaName, fieldName, t)
	case ast.CollectionType:
		return g.generateCollection(ctx, schemaName, fieldName, t)
	case ast.ReferenceType:
		return g.generateReference(ctx, t)
	case ast.ExpressionType:
		return eval.Evaluate(ctx, t.Expr)
	case ast.GeneratorType:
		return g.generateFromGenerator(ctx, t)
	case ast.OrderedSequenceType:
		return g.generateOrderedSequence(ctx, schemaName, fieldName, t)
	default:
		return nil, fmt.Errorf("fieldgen: unhandled field type %T", ft)
	}
}

func (g *Generator) generatePrimitive(ctx *gencontext.Context, schemaName, fieldName string, p ast.Primitive) (any, error) {
	if p.Nullable && ctx.RNG.Bool() {
		return nil, nil
	}
	precision := primitives.DefaultDecimalPrecision
	if p.Precision != nil {
		precision = *p.Precision
	}
	switch p.Kind {
	case ast.PrimInt:
		return primitives.Int(ctx.RNG), nil
	case ast.PrimDecimal:
		return primitives.Decimal(ctx.RNG, precision), nil
	case ast.PrimString:
		return primitives.String(ctx.RNG, fieldName, schemaName), nil
	case ast.PrimDate:
		return primitives.Date(ctx.RNG, time.Time{}), nil
	case ast.PrimBoolean:
		return primitives.Bool(ctx.RNG), nil
	}
	return nil, fmt.Errorf("fieldgen: unhandled primitive kind %s", p.Kind)
}

func (g *Generator) generateNullable(ctx *gencontext.Context, schemaName, fieldName string, n ast.NullableType) (any, error) {
	if ctx.RNG.Bool() {
		return nil, nil
	}
	return g.Generate(ctx, schemaName, fieldName, n.Inner)
}

func (g *Generator) generateRange(ctx *gencontext.Context, rt ast.RangeType) (any, error) {
	minV, err := eval.Evaluate(ctx, rt.Min)
	if err != nil {
		return nil, err
	}
	maxV, err := eval.Evaluate(ctx, rt.Max)
	if err != nil {
		return nil, err
	}
	minF, _ := value.AsFloat(minV)
	maxF, _ := value.AsFloat(maxV)

	switch rt.Base {
	case ast.PrimInt:
		return primitives.IntRange(ctx.RNG, int64(minF), int64(maxF)), nil
	case ast.PrimDecimal:
		return primitives.DecimalRange(ctx.RNG, minF, maxF, primitives.DefaultDecimalPrecision), nil
	case ast.PrimDate:
		return primitives.DateInYearSpan(ctx.RNG, int64(minF), int64(maxF)), nil
	default:
		return primitives.IntRange(ctx.RNG, int64(minF), int64(maxF)), nil
	}
}

func (g *Generator) generateReference(ctx *gencontext.Context, rt ast.ReferenceType) (any, error) {
	if len(rt.Path) == 0 {
		return nil, nil
	}
	head := rt.Path[0]
	if binding, ok := ctx.Bindings[head]; ok {
		return eval.Evaluate(ctx, binding)
	}
	if coll, ok := ctx.Collections[head]; ok && len(coll) > 0 {
		return coll[ctx.RNG.Choice(len(coll))], nil
	}
	if ctx.Current != nil {
		if v, ok := ctx.Current[head]; ok {
			return v, nil
		}
	}
	return nil, nil
}

func (g *Generator) generateFromGenerator(ctx *gencontext.Context, gt ast.GeneratorType) (any, error) {
	args := make([]any, len(gt.Args))
	for i, a := range gt.Args {
		v, err := eval.Evaluate(ctx, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return ctx.Plugins.Call(gt.Name, args, ctx)
}

func (g *Generator) generateOrderedSequence(ctx *gencontext.Context, schemaName, fieldName string, os ast.OrderedSequenceType) (any, error) {
	if len(os.Elements) == 0 {
		return nil, nil
	}
	key := gencontext.UniqueKey(schemaName, fieldName)
	idx := ctx.NextOrderedIndex(key, len(os.Elements))
	return eval.Evaluate(ctx, os.Elements[idx])
}

// ResolveCardinality implements §4.I's cardinality resolution: static
// picks uniformly, dynamic evaluates the expression (a number floors,
// a Range resolves to a uniform integer); any other value is a fatal
// dynamic-cardinality-type-error and a negative result a fatal
// cardinality-error.
func ResolveCardinality(ctx *gencontext.Context, c ast.Cardinality) (int, error) {
	var n int
	if c.Static {
		n = int(ctx.RNG.Int(int64(c.Min), int64(c.Max)))
	} else {
		v, err := eval.Evaluate(ctx, c.Expr)
		if err != nil {
			return 0, err
		}
		switch t := v.(type) {
		case value.Range:
			n = int(ctx.RNG.Int(int64(t.Min), int64(t.Max)))
		case int64:
			n = int(t)
		case float64:
			n = int(math.Floor(t))
		default:
			return 0, fmt.Errorf("%w: dynamic cardinality must be numeric or a range, got %T", ErrDynamicCardinalityType, v)
		}
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative cardinality %d", ErrCardinality, n)
	}
	return n, nil
}

func (g *Generator) generateCollection(ctx *gencontext.Context, schemaName, fieldName string, ct ast.CollectionType) (any, error) {
	n, err := ResolveCardinality(ctx, ct.Cardinality)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, n)
	if ref, ok := ct.Element.(ast.ReferenceType); ok && g.GenerateInstance != nil {
		schemaRef := ref.Path[len(ref.Path)-1]
		prevParent := ctx.Parent
		for i := 0; i < n; i++ {
			ctx.Parent = ctx.Current
			rec, err := g.GenerateInstance(ctx, schemaRef, nil)
			if err != nil {
				ctx.Parent = prevParent
				return nil, err
			}
			out = append(out, rec)
		}
		ctx.Parent = prevParent
		return out, nil
	}
	for i := 0; i < n; i++ {
		v, err := g.Generate(ctx, schemaName, fieldName, ct.Element)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
