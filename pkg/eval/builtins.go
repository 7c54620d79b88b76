package eval

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"fabrik/pkg/ast"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/token"
	"fabrik/pkg/value"
)

// builtinFunc receives already-evaluated arguments. Functions needing
// unevaluated arguments (the predicates, which bind a scoped `current`
// per item) are special-cased in evalCall before this table is
// consulted.
type builtinFunc func(ctx *gencontext.Context, args []any) (any, error)

// dispatch order is fixed by §4.H: aggregates, math, distributions,
// date (including the duration constructors §9's date arithmetic
// consumes), string, sequence, predicates, unique, then the plugin
// registry. evalCall consults named distributions first unless the name
// is an aggregate or math builtin, then sequence, predicates and unique
// (they need unevaluated args or context mutation), then this flat map,
// then the plugins.
var builtins = map[string]builtinFunc{
	// aggregates
	"sum":    aggSum,
	"count":  aggCount,
	"min":    aggMin,
	"max":    aggMax,
	"avg":    aggAvg,
	"first":  aggFirst,
	"last":   aggLast,
	"median": aggMedian,
	"product": aggProduct,

	// math
	"round": mathRound,
	"floor": mathFloor,
	"ceil":  mathCeil,
	"abs":   mathAbs,
	"pow":   mathPow,
	"sqrt":  mathSqrt,

	// date
	"daysBetween": dateDaysBetween,
	"today":       dateToday,
	"days":        durDays,
	"weeks":       durWeeks,
	"months":      durMonths,
	"years":       durYears,

	// string
	"concat":    strConcat,
	"upper":     strUpper,
	"lower":     strLower,
	"trim":      strTrim,
	"substring": strSubstring,
}

func evalCall(ctx *gencontext.Context, c ast.Call) (any, error) {
	name, ok := calleeName(c.Callee)
	if !ok {
		return nil, fmt.Errorf("eval: call target must be a name")
	}

	switch name {
	case "sum", "count", "min", "max", "avg", "first", "last", "median", "product",
		"round", "floor", "ceil", "abs", "pow", "sqrt":
		// aggregates and math outrank distributions
	default:
		if dist, ok := ctx.Distributions[name]; ok {
			return callDistribution(ctx, dist)
		}
	}

	switch name {
	case "sequence":
		return callSequence(ctx, c.Args, false)
	case "sequenceInt":
		return callSequence(ctx, c.Args, true)
	case "previous":
		return callPrevious(ctx, c.Args)
	case "all", "some", "none", "filter":
		return callPredicate(ctx, name, c.Args)
	case "unique":
		return callUnique(ctx, c.Args)
	}

	if fn, ok := builtins[name]; ok {
		args, err := evaluateArgs(ctx, c.Args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}

	args, err := evaluateArgs(ctx, c.Args)
	if err != nil {
		return nil, err
	}
	v, err := ctx.Plugins.Call(name, args, ctx)
	if err != nil {
		return nil, fmt.Errorf("plugin-error %s: %w", name, err)
	}
	return v, nil
}

func calleeName(e ast.Expr) (string, bool) {
	switch t := e.(type) {
	case ast.Identifier:
		return t.Name, true
	case ast.QualifiedName:
		return strings.Join(t.Parts, "."), true
	}
	return "", false
}

func evaluateArgs(ctx *gencontext.Context, exprs []ast.Expr) ([]any, error) {
	out := make([]any, len(exprs))
	for i, e := range exprs {
		v, err := Evaluate(ctx, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ---- distributions ----

// callDistribution resolves a named `distribution` definition as a
// Call (§4.H): its weights become a superposition over the
// distribution's keys, reusing evalSuperposition's weighted-pick rule
// verbatim. Keys are sorted first so the pick is reproducible under a
// fixed seed despite Go's randomized map iteration order.
func callDistribution(ctx *gencontext.Context, dist *ast.DistributionDefinition) (any, error) {
	keys := make([]string, 0, len(dist.Weights))
	for k := range dist.Weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]ast.SuperpositionOption, len(keys))
	for i, k := range keys {
		opts[i] = ast.SuperpositionOption{
			Weight: ast.Literal{Value: dist.Weights[k], Kind: token.Decimal},
			Value:  ast.Literal{Value: k, Kind: token.String},
		}
	}
	return evalSuperposition(ctx, opts)
}

// ---- sequence / previous ----

func callSequence(ctx *gencontext.Context, args []ast.Expr, integer bool) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("sequence: requires a name argument")
	}
	nameVal, err := Evaluate(ctx, args[0])
	if err != nil {
		return nil, err
	}
	name, _ := nameVal.(string)
	start := 0
	if len(args) > 1 {
		sv, err := Evaluate(ctx, args[1])
		if err != nil {
			return nil, err
		}
		if f, ok := value.AsFloat(sv); ok {
			start = int(f)
		}
	}
	key := gencontext.UniqueKey("sequence", name)
	n := ctx.NextSequence(key, start)
	if integer {
		return n, nil
	}
	return fmt.Sprintf("%s%d", name, n), nil
}

func callPrevious(ctx *gencontext.Context, args []ast.Expr) (any, error) {
	if ctx.Previous == nil {
		return nil, nil
	}
	if len(args) == 0 {
		return ctx.Previous, nil
	}
	fieldVal, err := Evaluate(ctx, args[0])
	if err != nil {
		return nil, err
	}
	field, _ := fieldVal.(string)
	return ctx.Previous[field], nil
}

// ---- predicates: all/some/none/filter ----

// callPredicate implements §4.H's rule that predicates receive
// unevaluated argument expressions and evaluate them per item with a
// scoped `current`. The first argument is the collection expression;
// the second is the condition expression evaluated once per item.
func callPredicate(ctx *gencontext.Context, name string, args []ast.Expr) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s: requires exactly 2 arguments", name)
	}
	collVal, err := Evaluate(ctx, args[0])
	if err != nil {
		return nil, err
	}
	items := toSlice(collVal)
	prevCurrent := ctx.Current

	var matches []any
	matchCount := 0
	for _, item := range items {
		if rec, ok := item.(value.Record); ok {
			ctx.Current = rec
		}
		v, err := Evaluate(ctx, args[1])
		ctx.Current = prevCurrent
		if err != nil {
			return nil, err
		}
		if value.Truthy(v) {
			matchCount++
			matches = append(matches, item)
		}
	}

	switch name {
	case "all":
		return matchCount == len(items), nil
	case "some":
		return matchCount > 0, nil
	case "none":
		return matchCount == 0, nil
	case "filter":
		return matches, nil
	}
	return nil, fmt.Errorf("eval: unhandled predicate %s", name)
}

// ---- unique(key, expr) ----

// callUnique implements the §4.H contract: repeatedly evaluate expr
// until a value not already present for key is produced, record it,
// and return it; on retry exhaustion emit unique-exhaustion and return
// the last value produced.
func callUnique(ctx *gencontext.Context, args []ast.Expr) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("unique: requires exactly 2 arguments")
	}
	keyVal, err := Evaluate(ctx, args[0])
	if err != nil {
		return nil, err
	}
	key, _ := keyVal.(string)

	var last any
	limit := ctx.RetryLimits.Unique
	if limit <= 0 {
		limit = 1
	}
	for attempt := 0; attempt < limit; attempt++ {
		v, err := Evaluate(ctx, args[1])
		if err != nil {
			return nil, err
		}
		last = v
		if ctx.MarkUnique(key, v) {
			return v, nil
		}
	}
	ctx.Warnings.Recordf("unique-exhaustion", ctx.CurrentSchemaName, key,
		"exhausted %d attempts generating a unique value for %q", limit, key)
	return last, nil
}

// ---- aggregates ----

func numericSlice(v any) []float64 {
	items := toSlice(v)
	out := make([]float64, 0, len(items))
	for _, item := range items {
		if f, ok := value.AsFloat(item); ok {
			out = append(out, f)
		} else if rec, ok := item.(value.Record); ok && len(rec) == 1 {
			for _, f := range rec {
				if fv, ok := value.AsFloat(f); ok {
					out = append(out, fv)
				}
			}
		}
	}
	return out
}

func aggSum(_ *gencontext.Context, args []any) (any, error) {
	if len(args) == 0 {
		return 0.0, nil
	}
	var total float64
	for _, f := range numericSlice(args[0]) {
		total += f
	}
	return total, nil
}

func aggCount(_ *gencontext.Context, args []any) (any, error) {
	if len(args) == 0 {
		return 0, nil
	}
	return len(toSlice(args[0])), nil
}

func aggMin(_ *gencontext.Context, args []any) (any, error) {
	nums := numericSlice(args[0])
	if len(nums) == 0 {
		return nil, nil
	}
	m := nums[0]
	for _, f := range nums[1:] {
		if f < m {
			m = f
		}
	}
	return m, nil
}

func aggMax(_ *gencontext.Context, args []any) (any, error) {
	nums := numericSlice(args[0])
	if len(nums) == 0 {
		return nil, nil
	}
	m := nums[0]
	for _, f := range nums[1:] {
		if f > m {
			m = f
		}
	}
	return m, nil
}

func aggAvg(_ *gencontext.Context, args []any) (any, error) {
	nums := numericSlice(args[0])
	if len(nums) == 0 {
		return 0.0, nil
	}
	var total float64
	for _, f := range nums {
		total += f
	}
	return total / float64(len(nums)), nil
}

func aggProduct(_ *gencontext.Context, args []any) (any, error) {
	nums := numericSlice(args[0])
	total := 1.0
	for _, f := range nums {
		total *= f
	}
	return total, nil
}

func aggFirst(_ *gencontext.Context, args []any) (any, error) {
	items := toSlice(args[0])
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func aggLast(_ *gencontext.Context, args []any) (any, error) {
	items := toSlice(args[0])
	if len(items) == 0 {
		return nil, nil
	}
	return items[len(items)-1], nil
}

func aggMedian(_ *gencontext.Context, args []any) (any, error) {
	nums := append([]float64(nil), numericSlice(args[0])...)
	if len(nums) == 0 {
		return nil, nil
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return nums[mid], nil
	}
	return (nums[mid-1] + nums[mid]) / 2, nil
}

// ---- math ----

func arg0Float(args []any) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	return value.AsFloat(args[0])
}

func mathRound(_ *gencontext.Context, args []any) (any, error) {
	f, _ := arg0Float(args)
	precision := 0
	if len(args) > 1 {
		if p, ok := value.AsFloat(args[1]); ok {
			precision = int(p)
		}
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(f*scale) / scale, nil
}

func mathFloor(_ *gencontext.Context, args []any) (any, error) {
	f, _ := arg0Float(args)
	return math.Floor(f), nil
}

func mathCeil(_ *gencontext.Context, args []any) (any, error) {
	f, _ := arg0Float(args)
	return math.Ceil(f), nil
}

func mathAbs(_ *gencontext.Context, args []any) (any, error) {
	f, _ := arg0Float(args)
	return math.Abs(f), nil
}

func mathPow(_ *gencontext.Context, args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("pow: requires 2 arguments")
	}
	base, _ := value.AsFloat(args[0])
	exp, _ := value.AsFloat(args[1])
	return math.Pow(base, exp), nil
}

func mathSqrt(_ *gencontext.Context, args []any) (any, error) {
	f, _ := arg0Float(args)
	return math.Sqrt(f), nil
}

// ---- date ----

const isoDate = "2006-01-02"

func parseISODate(s string) (time.Time, bool) {
	t, err := time.Parse(isoDate, s)
	return t, err == nil
}

func dateplus(dateStr string, dur value.Duration, sign int) (any, error) {
	t, ok := parseISODate(dateStr)
	if !ok {
		return nil, fmt.Errorf("arithmetic-error: %q is not an ISO-8601 date", dateStr)
	}
	count := sign * dur.Count
	switch dur.Unit {
	case "day", "days":
		t = t.AddDate(0, 0, count)
	case "week", "weeks":
		t = t.AddDate(0, 0, count*7)
	case "month", "months":
		t = t.AddDate(0, count, 0)
	case "year", "years":
		t = t.AddDate(count, 0, 0)
	default:
		return nil, fmt.Errorf("arithmetic-error: unknown duration unit %q", dur.Unit)
	}
	return t.Format(isoDate), nil
}

func dateDaysBetween(_ *gencontext.Context, args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("daysBetween: requires 2 arguments")
	}
	a, aok := args[0].(string)
	b, bok := args[1].(string)
	if !aok || !bok {
		return nil, fmt.Errorf("daysBetween: arguments must be date strings")
	}
	ta, ok1 := parseISODate(a)
	tb, ok2 := parseISODate(b)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("daysBetween: arguments must be ISO-8601 dates")
	}
	return math.Round(tb.Sub(ta).Hours() / 24), nil
}

func dateToday(_ *gencontext.Context, _ []any) (any, error) {
	return "2026-01-01", nil
}

// durDays, durWeeks, durMonths, durYears are the duration constructors
// §9's "date ± duration" arithmetic needs a value.Duration to operate
// on; calling one of these from a computed field or `then` block is
// the DSL's only way to produce one (`expiry: issued + months(6)`).
func durCount(name string, args []any) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s: requires 1 argument", name)
	}
	n, ok := value.AsFloat(args[0])
	if !ok {
		return 0, fmt.Errorf("%s: argument must be numeric", name)
	}
	return int(n), nil
}

func durDays(_ *gencontext.Context, args []any) (any, error) {
	n, err := durCount("days", args)
	if err != nil {
		return nil, err
	}
	return value.Duration{Count: n, Unit: "days"}, nil
}

func durWeeks(_ *gencontext.Context, args []any) (any, error) {
	n, err := durCount("weeks", args)
	if err != nil {
		return nil, err
	}
	return value.Duration{Count: n, Unit: "weeks"}, nil
}

func durMonths(_ *gencontext.Context, args []any) (any, error) {
	n, err := durCount("months", args)
	if err != nil {
		return nil, err
	}
	return value.Duration{Count: n, Unit: "months"}, nil
}

func durYears(_ *gencontext.Context, args []any) (any, error) {
	n, err := durCount("years", args)
	if err != nil {
		return nil, err
	}
	return value.Duration{Count: n, Unit: "years"}, nil
}

// ---- string ----

// stringify renders v as a string, using its literal value when it
// already is one and a default formatting otherwise.
func stringify(v any) string {
	if s, ok := value.AsString(v); ok {
		return s
	}
	return fmt.Sprint(v)
}

func strConcat(_ *gencontext.Context, args []any) (any, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(stringify(a))
	}
	return sb.String(), nil
}

func strUpper(_ *gencontext.Context, args []any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	return strings.ToUpper(stringify(args[0])), nil
}

func strLower(_ *gencontext.Context, args []any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	return strings.ToLower(stringify(args[0])), nil
}

func strTrim(_ *gencontext.Context, args []any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	return strings.TrimSpace(stringify(args[0])), nil
}

func strSubstring(_ *gencontext.Context, args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("substring: requires at least 2 arguments")
	}
	s := stringify(args[0])
	start, _ := value.AsFloat(args[1])
	end := float64(len(s))
	if len(args) > 2 {
		end, _ = value.AsFloat(args[2])
	}
	si, ei := clampRange(int(start), int(end), len(s))
	return s[si:ei], nil
}

func clampRange(start, end, length int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	if end > length {
		end = length
	}
	if start > end {
		start = end
	}
	return start, end
}
