// Package dataset implements the dataset driver of §4.K: given a
// dataset definition and a generation context, it materializes every
// declared collection in dependency order and runs the dataset-level
// validation block.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fabrik/pkg/ast"
	"fabrik/pkg/eval"
	"fabrik/pkg/fieldgen"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/instancegen"
	"fabrik/pkg/value"
)

// ErrCancelled is returned when the caller's context.Context is
// cancelled at one of the driver's checkpoints (§5 Cancellation).
var ErrCancelled = errors.New("cancelled")

// ValidationFailure is one dataset-level predicate that evaluated
// false, paired with its rendered source text.
type ValidationFailure struct {
	Expr   string
	Detail string
}

// ValidationResult is the outcome of a dataset's validate block.
type ValidationResult struct {
	Failures []ValidationFailure
}

// Passed reports whether every predicate held.
func (r ValidationResult) Passed() bool { return len(r.Failures) == 0 }

// Driver runs one dataset definition against a Context.
type Driver struct {
	Instances *instancegen.Generator

	// LastRunID is a correlation token for the most recently started
	// Run, surfaced for callers that want to tag logs or warnings by
	// run (no determinism property depends on it).
	LastRunID string
}

// NewDriver builds a Driver with a fresh instance generator.
func NewDriver() *Driver {
	return &Driver{Instances: instancegen.NewGenerator()}
}

// Run materializes every collection declared by ds into
// ctx.Collections and evaluates its validate block, if present. It
// checks ctx.Done() (via the stdlib context.Context) between
// collections and before each instance attempt; on cancellation it
// returns ErrCancelled with every collection generated so far left
// complete in ctx.Collections (§5).
func (d *Driver) Run(runCtx context.Context, ctx *gencontext.Context, ds *ast.DatasetDefinition) (map[string][]value.Record, *ValidationResult, error) {
	d.LastRunID = uuid.NewString()
	ctx.Violating = ds.Violating

	order, err := orderCollections(ds.Collections)
	if err != nil {
		return nil, nil, err
	}

	for _, spec := range order {
		if err := runCtx.Err(); err != nil {
			return snapshot(ctx), nil, ErrCancelled
		}
		if err := d.runCollection(runCtx, ctx, spec); err != nil {
			return snapshot(ctx), nil, err
		}
	}

	var result *ValidationResult
	if len(ds.Validation) > 0 {
		result = d.validate(ctx, ds.Validation)
	}
	return snapshot(ctx), result, nil
}

func snapshot(ctx *gencontext.Context) map[string][]value.Record {
	out := make(map[string][]value.Record, len(ctx.Collections))
	for k, v := range ctx.Collections {
		out[k] = v
	}
	return out
}

func (d *Driver) runCollection(runCtx context.Context, ctx *gencontext.Context, spec ast.CollectionSpec) error {
	if spec.Cardinality.PerParent {
		return d.runPerParent(runCtx, ctx, spec)
	}
	n, err := resolveTopLevelCardinality(ctx, spec.Cardinality)
	if err != nil {
		return err
	}
	ctx.Parent = nil
	for i := 0; i < n; i++ {
		if err := runCtx.Err(); err != nil {
			return ErrCancelled
		}
		if i > 0 {
			items := ctx.Collections[spec.Name]
			ctx.Previous = items[len(items)-1]
		} else {
			ctx.Previous = nil
		}
		rec, err := d.Instances.GenerateInstance(ctx, spec.SchemaRef, nil)
		if err != nil {
			return err
		}
		ctx.Collections[spec.Name] = append(ctx.Collections[spec.Name], rec)
	}
	ctx.Previous = nil
	return nil
}

func (d *Driver) runPerParent(runCtx context.Context, ctx *gencontext.Context, spec ast.CollectionSpec) error {
	parentName, err := parentCollectionName(spec)
	if err != nil {
		return err
	}
	parents := ctx.Collections[parentName]
	for _, parent := range parents {
		n, err := resolveChildCardinality(ctx, spec.Cardinality, parent)
		if err != nil {
			return err
		}
		ctx.Parent = parent
		for i := 0; i < n; i++ {
			if err := runCtx.Err(); err != nil {
				return ErrCancelled
			}
			if i > 0 {
				items := ctx.Collections[spec.Name]
				ctx.Previous = items[len(items)-1]
			} else {
				ctx.Previous = nil
			}
			rec, err := d.Instances.GenerateInstance(ctx, spec.SchemaRef, nil)
			if err != nil {
				ctx.Parent = nil
				return err
			}
			ctx.Collections[spec.Name] = append(ctx.Collections[spec.Name], rec)
		}
	}
	ctx.Parent = nil
	ctx.Previous = nil
	return nil
}

func parentCollectionName(spec ast.CollectionSpec) (string, error) {
	if spec.Cardinality.ParentName == "" {
		return "", fmt.Errorf("%s: per-parent collection has no named parent", spec.Name)
	}
	return spec.Cardinality.ParentName, nil
}

// orderCollections topologically orders collections by the perParent
// relation (a child must follow its parent), falling back to
// declaration order for independent collections (§4.K step 1).
func orderCollections(specs []ast.CollectionSpec) ([]ast.CollectionSpec, error) {
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		index[s.Name] = i
	}

	visited := make([]bool, len(specs))
	inStack := make([]bool, len(specs))
	var order []ast.CollectionSpec

	var visit func(i int) error
	visit = func(i int) error {
		if visited[i] {
			return nil
		}
		if inStack[i] {
			return fmt.Errorf("dataset: circular per-parent dependency at %q", specs[i].Name)
		}
		inStack[i] = true
		if specs[i].Cardinality.PerParent {
			if parentIdx, ok := index[specs[i].Cardinality.ParentName]; ok {
				if err := visit(parentIdx); err != nil {
					return err
				}
			}
		}
		inStack[i] = false
		visited[i] = true
		order = append(order, specs[i])
		return nil
	}

	for i := range specs {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func resolveTopLevelCardinality(ctx *gencontext.Context, c ast.Cardinality) (int, error) {
	return fieldgen.ResolveCardinality(ctx, c)
}

func resolveChildCardinality(ctx *gencontext.Context, c ast.Cardinality, parent value.Record) (int, error) {
	prevParent := ctx.Parent
	ctx.Parent = parent
	n, err := fieldgen.ResolveCardinality(ctx, c)
	ctx.Parent = prevParent
	return n, err
}

func (d *Driver) validate(ctx *gencontext.Context, preds []ast.Expr) *ValidationResult {
	result := &ValidationResult{}
	for _, p := range preds {
		v, err := eval.Evaluate(ctx, p)
		text := renderExpr(p)
		if err != nil {
			result.Failures = append(result.Failures, ValidationFailure{Expr: text, Detail: err.Error()})
			continue
		}
		if !value.Truthy(v) {
			result.Failures = append(result.Failures, ValidationFailure{Expr: text})
		}
	}
	return result
}

// renderExpr is a best-effort source-text rendering of a predicate for
// the validation failure report; it does not need to round-trip, only
// to be legible.
func renderExpr(e ast.Expr) string {
	switch t := e.(type) {
	case ast.Binary:
		return fmt.Sprintf("%s %s %s", renderExpr(t.Left), t.Op, renderExpr(t.Right))
	case ast.Logical:
		return fmt.Sprintf("%s %s %s", renderExpr(t.Left), t.Op, renderExpr(t.Right))
	case ast.Not:
		return "not " + renderExpr(t.Operand)
	case ast.Identifier:
		return t.Name
	case ast.QualifiedName:
		out := ""
		for i, p := range t.Parts {
			if i > 0 {
				out += "."
			}
			out += p
		}
		return out
	case ast.Literal:
		return fmt.Sprintf("%v", t.Value)
	default:
		return fmt.Sprintf("%T", e)
	}
}
