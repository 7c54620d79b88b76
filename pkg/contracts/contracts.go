// Package contracts enforces the two predicate families §4.J
// describes: assume clauses (bypassable in violating mode) and
// contract invariants (never bypassed, §3/§8 property 4). Both share
// the same evaluation shape — an optional guard plus a list of
// constraints that must all be truthy — so this package factors that
// shape into one Check helper and exposes typed wrappers so callers
// can't accidentally apply violating-mode bypass to an invariant.
package contracts

import (
	"fabrik/pkg/ast"
	"fabrik/pkg/eval"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/value"
)

// Result reports whether a predicate group held.
type Result struct {
	Satisfied bool
	Message   string
}

// check evaluates condition (nil = unconditional, always applies) and,
// if it holds, every constraint; it short-circuits on the first
// falsy/failing constraint.
func check(ctx *gencontext.Context, condition ast.Expr, constraints []ast.Expr, message string) (Result, error) {
	if condition != nil {
		cv, err := eval.Evaluate(ctx, condition)
		if err != nil {
			return Result{}, err
		}
		if !value.Truthy(cv) {
			return Result{Satisfied: true}, nil // guard didn't apply; vacuously fine
		}
	}
	for _, c := range constraints {
		v, err := eval.Evaluate(ctx, c)
		if err != nil {
			return Result{}, err
		}
		if !value.Truthy(v) {
			return Result{Satisfied: false, Message: message}, nil
		}
	}
	return Result{Satisfied: true}, nil
}

// CheckAssumes evaluates every assume clause of a schema against the
// in-progress instance bound in ctx.Current. All clauses must hold.
func CheckAssumes(ctx *gencontext.Context, assumes []ast.AssumeClause) (Result, error) {
	for _, a := range assumes {
		r, err := check(ctx, a.Condition, a.Constraints, "assume clause failed")
		if err != nil {
			return Result{}, err
		}
		if !r.Satisfied {
			return r, nil
		}
	}
	return Result{Satisfied: true}, nil
}

// CheckInvariants evaluates every contract invariant. Unlike
// CheckAssumes, the caller must never skip this call based on a
// violating flag — §8 property 4 requires invariants to hold even in
// violating mode.
func CheckInvariants(ctx *gencontext.Context, invariants []ast.InvariantClause) (Result, error) {
	for _, inv := range invariants {
		msg := inv.Message
		if msg == "" {
			msg = "invariant failed"
		}
		r, err := check(ctx, inv.Condition, inv.Constraints, msg)
		if err != nil {
			return Result{}, err
		}
		if !r.Satisfied {
			return r, nil
		}
	}
	return Result{Satisfied: true}, nil
}

// ResolveInvariants gathers a schema's own invariants plus those of
// every contract it implements, emitting a contract-missing warning
// for any name that isn't registered.
func ResolveInvariants(ctx *gencontext.Context, schema *ast.SchemaDefinition) []ast.InvariantClause {
	all := append([]ast.InvariantClause{}, schema.Invariants...)
	for _, name := range schema.Contracts {
		c, ok := ctx.Contracts[name]
		if !ok {
			ctx.Warnings.Recordf("contract-missing", schema.Name, "", "contract %q is not registered", name)
			continue
		}
		all = append(all, c.Invariants...)
	}
	return all
}
