// Package eval implements the expression evaluator of §4.H: a
// deterministic, structurally-dispatched interpreter over ast.Expr
// that reads and writes gencontext.Context. It never performs virtual
// dispatch; every node kind is a case in Evaluate's type switch, so a
// new Expr variant is a compile error here until handled.
package eval

import (
	"errors"
	"fmt"
	"time"

	"fabrik/pkg/ast"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/primitives"
	"fabrik/pkg/value"
)

// Sentinel errors for the taxonomy §7 names.
var (
	ErrUnknownGenerator = errors.New("unknown-generator")
	ErrArithmetic       = errors.New("arithmetic-error")
	ErrUnknownSchema    = errors.New("unknown-schema")
	ErrUnknownContext   = errors.New("unknown-context")
)

// Error wraps an evaluation failure.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Evaluate computes the runtime value of expr against ctx.
func Evaluate(ctx *gencontext.Context, expr ast.Expr) (any, error) {
	switch e := expr.(type) {
	case ast.Literal:
		return e.Value, nil
	case ast.Identifier:
		return evalIdentifier(ctx, e)
	case ast.QualifiedName:
		return evalQualifiedName(ctx, e)
	case ast.Binary:
		return evalBinary(ctx, e)
	case ast.Logical:
		return evalLogical(ctx, e)
	case ast.Not:
		v, err := Evaluate(ctx, e.Operand)
		if err != nil {
			return nil, err
		}
		return !value.Truthy(v), nil
	case ast.Unary:
		return evalUnary(ctx, e)
	case ast.Range:
		return evalRange(ctx, e)
	case ast.Superposition:
		return evalSuperposition(ctx, e.Options)
	case ast.Call:
		return evalCall(ctx, e)
	case ast.Ternary:
		cond, err := Evaluate(ctx, e.Cond)
		if err != nil {
			return nil, err
		}
		if value.Truthy(cond) {
			return Evaluate(ctx, e.Then)
		}
		return Evaluate(ctx, e.Else)
	case ast.Match:
		return evalMatch(ctx, e)
	case ast.ParentRef:
		return evalParentRef(ctx, e)
	case ast.AnyOf:
		return evalAnyOf(ctx, e)
	case ast.OrderedSequence:
		out := make([]any, 0, len(e.Elements))
		for _, el := range e.Elements {
			v, err := Evaluate(ctx, el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("eval: unhandled expression type %T", expr)
	}
}

func isPrimitiveTypeName(name string) (ast.PrimitiveKind, bool) {
	switch ast.PrimitiveKind(name) {
	case ast.PrimInt, ast.PrimDecimal, ast.PrimString, ast.PrimDate, ast.PrimBoolean:
		return ast.PrimitiveKind(name), true
	}
	return "", false
}

// generatePrimitive produces an unconstrained value of kind, used when
// an Identifier names a primitive type inline (e.g. `string` inside
// `string | null`), per §4.H.
func generatePrimitive(ctx *gencontext.Context, kind ast.PrimitiveKind) any {
	switch kind {
	case ast.PrimInt:
		return primitives.Int(ctx.RNG)
	case ast.PrimDecimal:
		return primitives.Decimal(ctx.RNG, primitives.DefaultDecimalPrecision)
	case ast.PrimString:
		return primitives.String(ctx.RNG, "value", ctx.CurrentSchemaName)
	case ast.PrimDate:
		return primitives.Date(ctx.RNG, time.Time{})
	case ast.PrimBoolean:
		return primitives.Bool(ctx.RNG)
	}
	return nil
}

func evalIdentifier(ctx *gencontext.Context, id ast.Identifier) (any, error) {
	if kind, ok := isPrimitiveTypeName(id.Name); ok {
		return generatePrimitive(ctx, kind), nil
	}
	if binding, ok := ctx.Bindings[id.Name]; ok {
		return Evaluate(ctx, binding)
	}
	if coll, ok := ctx.Collections[id.Name]; ok {
		return recordsToAny(coll), nil
	}
	if ctx.Current != nil {
		if v, ok := ctx.Current[id.Name]; ok {
			return v, nil
		}
	}
	return nil, nil
}

func recordsToAny(recs []value.Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out
}

func evalQualifiedName(ctx *gencontext.Context, qn ast.QualifiedName) (any, error) {
	if len(qn.Parts) == 0 {
		return nil, nil
	}
	head := qn.Parts[0]
	tail := qn.Parts[1:]

	if coll, ok := ctx.Collections[head]; ok {
		if len(tail) == 0 {
			return recordsToAny(coll), nil
		}
		out := make([]any, 0, len(coll))
		for _, rec := range coll {
			v, ok := walkPath(rec, tail)
			if ok && v != nil {
				out = append(out, v)
			}
		}
		return out, nil
	}

	if binding, ok := ctx.Bindings[head]; ok {
		v, err := Evaluate(ctx, binding)
		if err != nil {
			return nil, err
		}
		if len(tail) == 0 {
			return v, nil
		}
		if rec, ok := v.(value.Record); ok {
			res, _ := walkPath(rec, tail)
			return res, nil
		}
		return nil, nil
	}

	if ctx.Current != nil {
		if res, ok := walkPath(ctx.Current, append([]string{head}, tail...)); ok {
			return res, nil
		}
	}
	return nil, nil
}

func walkPath(rec value.Record, path []string) (any, bool) {
	var cur any = rec
	for _, part := range path {
		r, ok := cur.(value.Record)
		if !ok {
			return nil, false
		}
		v, ok := r[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func evalBinary(ctx *gencontext.Context, b ast.Binary) (any, error) {
	left, err := Evaluate(ctx, b.Left)
	if err != nil {
		return nil, err
	}
	right, err := Evaluate(ctx, b.Right)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case ast.OpEq:
		return value.Equal(left, right), nil
	case ast.OpNeq:
		return !value.Equal(left, right), nil
	}

	if ls, lok := left.(string); lok {
		if rs, rok := right.(string); rok {
			switch b.Op {
			case ast.OpLt:
				return ls < rs, nil
			case ast.OpGt:
				return ls > rs, nil
			case ast.OpLe:
				return ls <= rs, nil
			case ast.OpGe:
				return ls >= rs, nil
			case ast.OpAdd:
				return ls + rs, nil
			}
		}
	}

	if dateStr, dur, ok := dateDurationOperands(left, right); ok {
		switch b.Op {
		case ast.OpAdd:
			return applyDuration(dateStr, dur, 1)
		case ast.OpSub:
			return applyDuration(dateStr, dur, -1)
		}
	}

	lf, lok := value.AsFloat(left)
	rf, rok := value.AsFloat(right)
	if !lok || !rok {
		return nil, fail(ErrArithmetic, "non-numeric operand for %s", b.Op)
	}
	switch b.Op {
	case ast.OpAdd:
		return lf + rf, nil
	case ast.OpSub:
		return lf - rf, nil
	case ast.OpMul:
		return lf * rf, nil
	case ast.OpDiv:
		if rf == 0 {
			return nil, fail(ErrArithmetic, "division by zero")
		}
		return lf / rf, nil
	case ast.OpMod:
		if rf == 0 {
			return nil, fail(ErrArithmetic, "modulo by zero")
		}
		return float64(int64(lf) % int64(rf)), nil
	case ast.OpLt:
		return lf < rf, nil
	case ast.OpGt:
		return lf > rf, nil
	case ast.OpLe:
		return lf <= rf, nil
	case ast.OpGe:
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("eval: unhandled binary operator %s", b.Op)
}

func dateDurationOperands(left, right any) (string, value.Duration, bool) {
	if ds, ok := left.(string); ok {
		if dur, ok := right.(value.Duration); ok {
			return ds, dur, true
		}
	}
	return "", value.Duration{}, false
}

func applyDuration(dateStr string, dur value.Duration, sign int) (any, error) {
	return dateplus(dateStr, dur, sign)
}

func evalLogical(ctx *gencontext.Context, l ast.Logical) (any, error) {
	left, err := Evaluate(ctx, l.Left)
	if err != nil {
		return nil, err
	}
	switch l.Op {
	case ast.LogAnd:
		if !value.Truthy(left) {
			return false, nil
		}
		right, err := Evaluate(ctx, l.Right)
		if err != nil {
			return nil, err
		}
		return value.Truthy(right), nil
	case ast.LogOr:
		if value.Truthy(left) {
			return true, nil
		}
		right, err := Evaluate(ctx, l.Right)
		if err != nil {
			return nil, err
		}
		return value.Truthy(right), nil
	}
	return nil, fmt.Errorf("eval: unhandled logical operator %s", l.Op)
}

func evalUnary(ctx *gencontext.Context, u ast.Unary) (any, error) {
	v, err := Evaluate(ctx, u.Operand)
	if err != nil {
		return nil, err
	}
	f, ok := value.AsFloat(v)
	if !ok {
		return nil, fail(ErrArithmetic, "non-numeric operand for unary %s", u.Op)
	}
	if u.Op == ast.UnaryMinus {
		return -f, nil
	}
	return f, nil
}

func evalRange(ctx *gencontext.Context, r ast.Range) (any, error) {
	out := value.Range{IsInt: true}
	if r.Min != nil {
		v, err := Evaluate(ctx, r.Min)
		if err != nil {
			return nil, err
		}
		f, _ := value.AsFloat(v)
		out.Min = f
		if _, isFloat := v.(float64); isFloat {
			out.IsInt = out.IsInt && isWhole(f)
		}
	}
	if r.Max != nil {
		v, err := Evaluate(ctx, r.Max)
		if err != nil {
			return nil, err
		}
		f, _ := value.AsFloat(v)
		out.Max = f
		if _, isFloat := v.(float64); isFloat {
			out.IsInt = out.IsInt && isWhole(f)
		}
	}
	return out, nil
}

func isWhole(f float64) bool { return f == float64(int64(f)) }

// evalSuperposition performs the weighted pick rule §4.H describes:
// unweighted options split the unallocated remainder of 1 equally; if
// the picked value resolves to a Range, a uniform integer inside it is
// returned instead of the Range object itself.
func evalSuperposition(ctx *gencontext.Context, options []ast.SuperpositionOption) (any, error) {
	weights := make([]float64, len(options))
	var explicitTotal float64
	unweightedCount := 0
	for i, opt := range options {
		if opt.Weight == nil {
			unweightedCount++
			continue
		}
		w, err := Evaluate(ctx, opt.Weight)
		if err != nil {
			return nil, err
		}
		wf, _ := value.AsFloat(w)
		if wf < 0 {
			wf = 0
		}
		weights[i] = wf
		explicitTotal += wf
	}
	remainder := 1 - explicitTotal
	if remainder < 0 {
		remainder = 0
	}
	share := 0.0
	if unweightedCount > 0 {
		share = remainder / float64(unweightedCount)
	}
	total := explicitTotal
	for i, opt := range options {
		if opt.Weight == nil {
			weights[i] = share
			total += share
		}
	}
	if total <= 0 {
		// All weights zero (degenerate schema): fall back to a uniform pick.
		total = float64(len(options))
		for i := range weights {
			weights[i] = 1
		}
	}

	pick := ctx.RNG.Float64() * total
	var cursor float64
	chosen := options[len(options)-1].Value
	for i, w := range weights {
		cursor += w
		if pick < cursor {
			chosen = options[i].Value
			break
		}
	}

	v, err := Evaluate(ctx, chosen)
	if err != nil {
		return nil, err
	}
	if rg, ok := v.(value.Range); ok {
		return ctx.RNG.Int(int64(rg.Min), int64(rg.Max)), nil
	}
	return v, nil
}

func evalMatch(ctx *gencontext.Context, m ast.Match) (any, error) {
	subject, err := Evaluate(ctx, m.Value)
	if err != nil {
		return nil, err
	}
	for _, arm := range m.Arms {
		if arm.Pattern == nil {
			return Evaluate(ctx, arm.Result)
		}
		pv, err := Evaluate(ctx, arm.Pattern)
		if err != nil {
			return nil, err
		}
		if value.Equal(subject, pv) {
			return Evaluate(ctx, arm.Result)
		}
	}
	return nil, nil
}

func evalParentRef(ctx *gencontext.Context, p ast.ParentRef) (any, error) {
	if ctx.Parent == nil {
		return nil, nil
	}
	v, _ := walkPath(ctx.Parent, p.Path)
	return v, nil
}

func evalAnyOf(ctx *gencontext.Context, a ast.AnyOf) (any, error) {
	collVal, err := Evaluate(ctx, a.Collection)
	if err != nil {
		return nil, err
	}
	items := toSlice(collVal)
	if a.Condition != nil {
		filtered := make([]any, 0, len(items))
		prevCurrent := ctx.Current
		for _, item := range items {
			if rec, ok := item.(value.Record); ok {
				ctx.Current = rec
			}
			keep, err := Evaluate(ctx, a.Condition)
			ctx.Current = prevCurrent
			if err != nil {
				return nil, err
			}
			if value.Truthy(keep) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[ctx.RNG.Choice(len(items))], nil
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []value.Record:
		return recordsToAny(t)
	default:
		return nil
	}
}
