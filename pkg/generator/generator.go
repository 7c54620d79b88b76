// Package generator implements the top-level Generator facade of §6:
// the sole entry point non-core collaborators call to turn a parsed
// program into data, or to validate external data against a schema's
// assume clauses.
package generator

import (
	"context"
	"fmt"

	"fabrik/pkg/ast"
	"fabrik/pkg/contracts"
	"fabrik/pkg/dataset"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/plugin"
	"fabrik/pkg/value"
	"fabrik/pkg/warnings"
)

// Generator owns one compilation's dataset driver and plugin registry.
// It is constructed fresh per caller; nothing here is process-global
// (§5, §9).
type Generator struct {
	Plugins *plugin.Registry
	driver  *dataset.Driver
}

// New builds a Generator. A nil plugins registry is replaced by an
// empty one.
func New(plugins *plugin.Registry) *Generator {
	if plugins == nil {
		plugins = plugin.New()
	}
	return &Generator{Plugins: plugins, driver: dataset.NewDriver()}
}

// Result is returned by Generate: the materialized collections plus
// the dataset's validation outcome, if it declared one.
type Result struct {
	Collections map[string][]value.Record
	Validation  *dataset.ValidationResult
	Warnings    []warnings.Warning
}

// Generate runs every dataset definition in prog's program against a
// fresh Context seeded by seed, per opts. It returns the first fatal
// error encountered, if any, alongside whatever partial result had
// accumulated.
func (g *Generator) Generate(runCtx context.Context, prog *ast.Program, seed int64, opts gencontext.Options) (*Result, error) {
	ctx := gencontext.New(seed, opts, g.Plugins)
	if err := loadProgram(ctx, prog); err != nil {
		return nil, err
	}

	var last *Result
	for _, stmt := range prog.Statements {
		ds, ok := stmt.(ast.DatasetDefinition)
		if !ok {
			continue
		}
		collections, validation, err := g.driver.Run(runCtx, ctx, &ds)
		last = &Result{Collections: collections, Validation: validation, Warnings: ctx.Warnings.Peek()}
		if err != nil {
			return last, err
		}
	}
	if last == nil {
		last = &Result{Collections: map[string][]value.Record{}, Warnings: ctx.Warnings.Peek()}
	}
	return last, nil
}

// loadProgram registers every let-binding, schema, contract, and
// import into ctx's persistent tables before any dataset runs, so
// forward references within a program resolve regardless of
// declaration order.
func loadProgram(ctx *gencontext.Context, prog *ast.Program) error {
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case ast.LetStatement:
			ctx.Bindings[s.Name] = s.Value
		case ast.ImportStatement:
			ctx.Imports[s.Name] = s.Path
		case ast.SchemaDefinition:
			def := s
			ctx.Schemas[s.Name] = &def
		case ast.ContractDefinition:
			def := s
			ctx.Contracts[s.Name] = &def
		case ast.DistributionDefinition:
			def := s
			ctx.Distributions[s.Name] = &def
		case ast.ContextDefinition, ast.DatasetDefinition, ast.CustomStatement:
			// Context is attached syntactic sugar (§GLOSSARY: "treated as
			// syntactic sugar for now"); datasets are driven in the main
			// Generate loop, not preloaded here.
		default:
			return fmt.Errorf("generator: unhandled top-level statement %T", stmt)
		}
	}
	return nil
}

// Validate implements §6's record-level assume-clause validation of
// external data: for each record in data, it evaluates schemaName's
// assume clauses and contract invariants with that record bound as
// ctx.Current.
func (g *Generator) Validate(ctx *gencontext.Context, schemaName string, data []value.Record) (*dataset.ValidationResult, error) {
	schema, ok := ctx.Schemas[schemaName]
	if !ok {
		return nil, fmt.Errorf("unknown-schema: %s", schemaName)
	}
	result := &dataset.ValidationResult{}
	invariants := contracts.ResolveInvariants(ctx, schema)
	for i, rec := range data {
		prevCurrent, prevSchema := ctx.Current, ctx.CurrentSchemaName
		ctx.Current = rec
		ctx.CurrentSchemaName = schema.Name

		assumeResult, err := contracts.CheckAssumes(ctx, schema.Assumes)
		if err != nil {
			ctx.Current, ctx.CurrentSchemaName = prevCurrent, prevSchema
			return nil, err
		}
		if !assumeResult.Satisfied {
			result.Failures = append(result.Failures, dataset.ValidationFailure{
				Expr: fmt.Sprintf("record[%d] assume", i), Detail: assumeResult.Message,
			})
		}
		invResult, err := contracts.CheckInvariants(ctx, invariants)
		if err != nil {
			ctx.Current, ctx.CurrentSchemaName = prevCurrent, prevSchema
			return nil, err
		}
		if !invResult.Satisfied {
			result.Failures = append(result.Failures, dataset.ValidationFailure{
				Expr: fmt.Sprintf("record[%d] invariant", i), Detail: invResult.Message,
			})
		}
		ctx.Current, ctx.CurrentSchemaName = prevCurrent, prevSchema
	}
	return result, nil
}

// DrainWarnings implements WarningSink::drain (§6): the caller reads
// and clears ctx's accumulated warnings.
func DrainWarnings(ctx *gencontext.Context) []warnings.Warning {
	return ctx.Warnings.Drain()
}
