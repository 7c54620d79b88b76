// Package instancegen implements the instance generator of §4.J — "the
// heart" of the core. Generator.GenerateInstance runs the full
// field-categorization / generation-order / refine / backfill /
// constraint-enforcement / mutation / privacy pipeline for one schema
// and returns the finished record.
package instancegen

import (
	"errors"
	"fmt"

	"fabrik/pkg/ast"
	"fabrik/pkg/contracts"
	"fabrik/pkg/eval"
	"fabrik/pkg/fieldgen"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/value"
	"fabrik/pkg/warnings"
)

// Sentinel errors from the taxonomy §7 names.
var (
	ErrComputedCycle = errors.New("computed-cycle")
	ErrUnknownSchema = errors.New("unknown-schema")
)

// Generator owns one fieldgen.Generator, wired to call back into
// GenerateInstance for Collection fields whose element is a schema
// reference (§9: "replace mutual callbacks with a single owning
// Generator that embeds both and calls them in a fixed order").
type Generator struct {
	FieldGen *fieldgen.Generator

	// compiledStatic tracks which schemas have already had their
	// static-unsatisfiability pre-check run, so it fires once per
	// schema compile rather than once per instance (SUPPLEMENTED
	// FEATURES).
	compiledStatic map[string]bool
}

// NewGenerator builds an instance Generator with its field generator
// wired to call back here for nested schema-reference collections.
func NewGenerator() *Generator {
	g := &Generator{compiledStatic: make(map[string]bool)}
	g.FieldGen = fieldgen.New(g.GenerateInstance)
	return g
}

// GenerateInstance produces one instance of schemaName. overrides, if
// non-nil, supplies pre-set field values that bypass generation for
// those fields (§4.J step 1's "merge schema fields with overrides").
func (g *Generator) GenerateInstance(ctx *gencontext.Context, schemaName string, overrides value.Record) (value.Record, error) {
	schema, ok := ctx.Schemas[schemaName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, schemaName)
	}

	if !g.compiledStatic[schema.Name] {
		g.compiledStatic[schema.Name] = true
		contracts.StaticCheck(ctx.Warnings, schema)
	}

	limit := ctx.RetryLimits.Instance
	if limit <= 0 {
		limit = 1
	}

	var lastRecord value.Record
	for attempt := 0; attempt < limit; attempt++ {
		rec, err := g.attemptInstance(ctx, schema, overrides)
		if err != nil {
			return nil, err
		}
		lastRecord = rec

		prevCurrent, prevSchema := ctx.Current, ctx.CurrentSchemaName
		ctx.Current = rec
		ctx.CurrentSchemaName = schema.Name

		assumeResult, err := contracts.CheckAssumes(ctx, schema.Assumes)
		if err != nil {
			ctx.Current, ctx.CurrentSchemaName = prevCurrent, prevSchema
			return nil, err
		}
		invariants := contracts.ResolveInvariants(ctx, schema)
		invResult, err := contracts.CheckInvariants(ctx, invariants)
		ctx.Current, ctx.CurrentSchemaName = prevCurrent, prevSchema
		if err != nil {
			return nil, err
		}

		if !invResult.Satisfied {
			// Contract invariants are never bypassed by violating mode.
			g.releaseUnique(ctx, schema)
			continue
		}

		accept := assumeResult.Satisfied
		if ctx.Violating {
			accept = !assumeResult.Satisfied
		}
		if accept {
			return g.finalize(ctx, schema, rec)
		}
		g.releaseUnique(ctx, schema)
	}

	ctx.Warnings.Recordf(warnings.ConstraintRetryExhaustion, schema.Name, "",
		"exhausted %d instance attempts satisfying constraints", limit)
	return g.finalize(ctx, schema, lastRecord)
}

// releaseUnique clears the unique-tracking sets for this schema's
// unique fields, implementing the state-machine's "failed attempt in
// validated returns to empty with uniqueValues reset" rule (§4.J).
func (g *Generator) releaseUnique(ctx *gencontext.Context, schema *ast.SchemaDefinition) {
	for _, f := range schema.Fields {
		if f.Unique {
			ctx.ClearUnique(gencontext.UniqueKey(schema.Name, f.Name))
		}
	}
}

func isCollectionField(t ast.FieldType) bool {
	_, ok := t.(ast.CollectionType)
	return ok
}

func findField(schema *ast.SchemaDefinition, name string) (ast.FieldDefinition, bool) {
	for _, f := range schema.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ast.FieldDefinition{}, false
}

// attemptInstance runs steps 1-4 of §4.J: categorize and generate
// scalars, then collections, then computed fields in topological
// order; apply the refine block; backfill base-schema fields.
func (g *Generator) attemptInstance(ctx *gencontext.Context, schema *ast.SchemaDefinition, overrides value.Record) (value.Record, error) {
	rec := value.Record{}
	prevCurrent, prevSchema := ctx.Current, ctx.CurrentSchemaName
	ctx.Current = rec
	ctx.CurrentSchemaName = schema.Name
	defer func() {
		ctx.Current, ctx.CurrentSchemaName = prevCurrent, prevSchema
	}()

	var scalarFields, collectionFields, computedFields []ast.FieldDefinition
	for _, f := range schema.Fields {
		switch {
		case f.Computed:
			computedFields = append(computedFields, f)
		case isCollectionField(f.Type):
			collectionFields = append(collectionFields, f)
		default:
			scalarFields = append(scalarFields, f)
		}
	}

	for _, f := range scalarFields {
		if err := g.assignField(ctx, schema, rec, f, overrides); err != nil {
			return nil, err
		}
	}
	for _, f := range collectionFields {
		if err := g.assignField(ctx, schema, rec, f, overrides); err != nil {
			return nil, err
		}
	}

	ordered, err := topoSortComputed(computedFields)
	if err != nil {
		return nil, err
	}
	for _, f := range ordered {
		if err := g.assignComputed(ctx, schema, rec, f, overrides); err != nil {
			return nil, err
		}
	}

	for _, rule := range schema.Refine {
		apply := true
		if rule.Condition != nil {
			cv, err := eval.Evaluate(ctx, rule.Condition)
			if err != nil {
				return nil, err
			}
			apply = value.Truthy(cv)
		}
		if !apply {
			continue
		}
		for _, fname := range rule.Fields {
			fd, ok := findField(schema, fname)
			if !ok {
				continue
			}
			if fd.Unique {
				key := gencontext.UniqueKey(schema.Name, fname)
				if old, exists := rec[fname]; exists {
					ctx.RemoveUnique(key, old)
				}
			}
			if fd.Computed {
				if err := g.assignComputed(ctx, schema, rec, fd, nil); err != nil {
					return nil, err
				}
				continue
			}
			if err := g.assignField(ctx, schema, rec, fd, nil); err != nil {
				return nil, err
			}
		}
	}

	if schema.Base != "" {
		if baseSchema, ok := ctx.Schemas[schema.Base]; ok {
			for _, bf := range baseSchema.Fields {
				if _, present := rec[bf.Name]; present {
					continue
				}
				if err := g.assignField(ctx, schema, rec, bf, nil); err != nil {
					return nil, err
				}
			}
		}
	}

	return rec, nil
}

// assignField handles condition-drop, optional-inclusion, override,
// and uniqueness retry for one non-computed field, then generates and
// stores its value.
func (g *Generator) assignField(ctx *gencontext.Context, schema *ast.SchemaDefinition, rec value.Record, f ast.FieldDefinition, overrides value.Record) error {
	if f.Condition != nil {
		cv, err := eval.Evaluate(ctx, f.Condition)
		if err != nil {
			return err
		}
		if !value.Truthy(cv) {
			return nil
		}
	}
	if f.Optional && ctx.RNG.Float64() > ctx.Options.OptionalFieldProbability {
		return nil
	}
	if overrides != nil {
		if v, ok := overrides[f.Name]; ok {
			rec[f.Name] = v
			return nil
		}
	}

	if !f.Unique {
		v, err := g.FieldGen.Generate(ctx, schema.Name, f.Name, f.Type)
		if err != nil {
			return err
		}
		rec[f.Name] = v
		return nil
	}

	key := gencontext.UniqueKey(schema.Name, f.Name)
	limit := ctx.RetryLimits.Unique
	if limit <= 0 {
		limit = 1
	}
	var last any
	for attempt := 0; attempt < limit; attempt++ {
		v, err := g.FieldGen.Generate(ctx, schema.Name, f.Name, f.Type)
		if err != nil {
			return err
		}
		last = v
		if ctx.MarkUnique(key, v) {
			rec[f.Name] = v
			return nil
		}
	}
	ctx.Warnings.Recordf(warnings.UniqueExhaustion, schema.Name, f.Name,
		"exhausted %d attempts generating a unique value", limit)
	rec[f.Name] = last
	return nil
}

// assignComputed evaluates a computed field's expression (held in
// FieldDefinition.Distribution per the AST model, §3) and stores it.
func (g *Generator) assignComputed(ctx *gencontext.Context, schema *ast.SchemaDefinition, rec value.Record, f ast.FieldDefinition, overrides value.Record) error {
	if f.Condition != nil {
		cv, err := eval.Evaluate(ctx, f.Condition)
		if err != nil {
			return err
		}
		if !value.Truthy(cv) {
			return nil
		}
	}
	if overrides != nil {
		if v, ok := overrides[f.Name]; ok {
			rec[f.Name] = v
			return nil
		}
	}
	v, err := eval.Evaluate(ctx, f.Distribution)
	if err != nil {
		return err
	}
	rec[f.Name] = v
	return nil
}

// finalize applies the then-block mutations (§4.J step 6) and strips
// private fields (step 7).
func (g *Generator) finalize(ctx *gencontext.Context, schema *ast.SchemaDefinition, rec value.Record) (value.Record, error) {
	prevCurrent, prevSchema := ctx.Current, ctx.CurrentSchemaName
	ctx.Current = rec
	ctx.CurrentSchemaName = schema.Name
	for _, m := range schema.Then {
		if err := g.applyMutation(ctx, schema, rec, m); err != nil {
			ctx.Current, ctx.CurrentSchemaName = prevCurrent, prevSchema
			return nil, err
		}
	}
	ctx.Current, ctx.CurrentSchemaName = prevCurrent, prevSchema

	out := rec.Clone()
	for _, f := range schema.Fields {
		if f.Private {
			delete(out, f.Name)
		}
	}
	return out, nil
}

func (g *Generator) applyMutation(ctx *gencontext.Context, schema *ast.SchemaDefinition, rec value.Record, m ast.Mutation) error {
	v, err := eval.Evaluate(ctx, m.Value)
	if err != nil {
		return err
	}
	if !setPath(rec, m.Target, v, m.Op) {
		ctx.Warnings.Recordf(warnings.MutationTargetNotFound, schema.Name, joinPath(m.Target),
			"mutation target not found")
	}
	return nil
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

// setPath walks path through nested records and assigns (or adds) v at
// the leaf. It reports false if an intermediate segment doesn't
// resolve to a record.
func setPath(rec value.Record, path []string, v any, op ast.MutationOp) bool {
	if len(path) == 0 {
		return false
	}
	cur := rec
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg]
		if !ok {
			return false
		}
		nr, ok := next.(value.Record)
		if !ok {
			return false
		}
		cur = nr
	}
	leaf := path[len(path)-1]
	if op == ast.MutationAdd {
		cur[leaf] = addValues(cur[leaf], v)
	} else {
		cur[leaf] = v
	}
	return true
}

func addValues(existing, v any) any {
	if ef, ok := value.AsFloat(existing); ok {
		if vf, ok := value.AsFloat(v); ok {
			return ef + vf
		}
	}
	if es, ok := existing.(string); ok {
		if vs, ok := v.(string); ok {
			return es + vs
		}
	}
	return v
}
