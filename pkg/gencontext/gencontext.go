// Package gencontext implements the Generation Context of §3/§4.G: the
// single mutable record of state one dataset-driver invocation threads
// through the evaluator, field generator, and instance generator. A
// Context is owned by exactly one caller and is never shared across
// concurrent generation runs (§5) — every field that would tempt a
// package-level var in the teacher's internal/tools style lives here
// instead, constructed explicitly by New.
package gencontext

import (
	"fmt"

	"fabrik/pkg/ast"
	"fabrik/pkg/plugin"
	"fabrik/pkg/rng"
	"fabrik/pkg/value"
	"fabrik/pkg/warnings"
)

// RetryLimits bounds the two families of bounded retry §4.I/§4.J use.
type RetryLimits struct {
	Instance int
	Unique   int
}

// DefaultRetryLimits matches the teacher's convention of small,
// explicit defaults rather than unbounded retry.
var DefaultRetryLimits = RetryLimits{Instance: 50, Unique: 100}

// Options holds the construction-time policy knobs of §4.G.
type Options struct {
	Strict                 bool
	OptionalFieldProbability float64
	RetryLimits            RetryLimits
}

// DefaultOptions returns the documented default policy: optional
// fields are included 70% of the time, lenient (non-strict) failure
// handling, and DefaultRetryLimits.
func DefaultOptions() Options {
	return Options{
		Strict:                 false,
		OptionalFieldProbability: 0.7,
		RetryLimits:            DefaultRetryLimits,
	}
}

// Context is the Generation Context. Persistent fields (Schemas,
// Bindings, imports) survive a runtime-only Reset; runtime fields do
// not.
type Context struct {
	// Persistent.
	Schemas  map[string]*ast.SchemaDefinition
	Contracts map[string]*ast.ContractDefinition
	Bindings map[string]ast.Expr
	Imports  map[string]string // imported-schema name -> source path
	Distributions map[string]*ast.DistributionDefinition

	// Runtime.
	Collections            map[string][]value.Record
	Parent                 value.Record
	Current                value.Record
	Previous               value.Record
	CurrentSchemaName      string
	Violating              bool
	UniqueValues           map[string]map[any]struct{}
	Sequences              map[string]int
	OrderedSequenceIndices map[string]int

	RNG         *rng.Source
	Warnings    *warnings.Sink
	Plugins     *plugin.Registry
	RetryLimits RetryLimits
	Options     Options

	seed int64
}

// New constructs a Context seeded by seed with the given options. A
// nil plugins registry is replaced with an empty one so callers never
// need a nil check before Call.
func New(seed int64, opts Options, plugins *plugin.Registry) *Context {
	if plugins == nil {
		plugins = plugin.New()
	}
	c := &Context{
		Schemas:     make(map[string]*ast.SchemaDefinition),
		Contracts:   make(map[string]*ast.ContractDefinition),
		Bindings:    make(map[string]ast.Expr),
		Imports:     make(map[string]string),
		Distributions: make(map[string]*ast.DistributionDefinition),
		RetryLimits: opts.RetryLimits,
		Options:     opts,
		Plugins:     plugins,
		seed:        seed,
	}
	c.resetRuntime()
	return c
}

func (c *Context) resetRuntime() {
	c.Collections = make(map[string][]value.Record)
	c.Parent = nil
	c.Current = nil
	c.Previous = nil
	c.CurrentSchemaName = ""
	c.Violating = false
	c.UniqueValues = make(map[string]map[any]struct{})
	c.Sequences = make(map[string]int)
	c.OrderedSequenceIndices = make(map[string]int)
	c.RNG = rng.New(c.seed)
	c.Warnings = warnings.New()
}

// Reset clears runtime state (collections, bindings-derived caches,
// RNG, warnings, sequences) while preserving schemas, contracts,
// bindings, and imports — the "runtime-only" mode of §4.G.
func (c *Context) Reset() {
	c.resetRuntime()
}

// FullReset clears everything, including schemas, contracts, bindings,
// and imports.
func (c *Context) FullReset() {
	c.Schemas = make(map[string]*ast.SchemaDefinition)
	c.Contracts = make(map[string]*ast.ContractDefinition)
	c.Bindings = make(map[string]ast.Expr)
	c.Imports = make(map[string]string)
	c.Distributions = make(map[string]*ast.DistributionDefinition)
	c.resetRuntime()
}

// CurrentSchema satisfies plugin.Context.
func (c *Context) CurrentSchema() string { return c.CurrentSchemaName }

// Seed satisfies plugin.Context.
func (c *Context) Seed() int64 { return c.seed }

// Strict satisfies plugin.Context.
func (c *Context) Strict() bool { return c.Options.Strict }

// UniqueKey builds the "Schema.field" key §3 specifies for
// uniqueValues / sequence lookups.
func UniqueKey(schema, field string) string {
	return schema + "." + field
}

// MarkUnique records v as used for key, returning false if v was
// already present (the caller must then retry generation).
func (c *Context) MarkUnique(key string, v any) bool {
	k := uniqueMapKey(v)
	set, ok := c.UniqueValues[key]
	if !ok {
		set = make(map[any]struct{})
		c.UniqueValues[key] = set
	}
	if _, dup := set[k]; dup {
		return false
	}
	set[k] = struct{}{}
	return true
}

// uniqueMapKey returns a value safe to use as a Go map key. Scalars (the
// common case) pass through unchanged; a collection or Record — unhashable
// in Go — is rendered to its string form instead, so tracking uniqueness of
// a non-scalar unique field never panics.
func uniqueMapKey(v any) any {
	switch v.(type) {
	case value.Record, []any:
		return fmt.Sprintf("%v", v)
	default:
		return v
	}
}

// ClearUnique drops the unique-tracking set for key, used when a
// validation attempt is rolled back to "empty" (§4.J state machine)
// so earlier discarded values don't starve later retries.
func (c *Context) ClearUnique(key string) {
	delete(c.UniqueValues, key)
}

// RemoveUnique drops a single previously-recorded value for key,
// freeing it for reuse. Used by refine-block regeneration, which must
// release a unique field's old value before generating its
// replacement (§4.J step 3).
func (c *Context) RemoveUnique(key string, v any) {
	if set, ok := c.UniqueValues[key]; ok {
		delete(set, uniqueMapKey(v))
	}
}

// NextSequence advances and returns the integer sequence counter for
// key (`sequence`/`sequenceInt` builtins, §4.H).
func (c *Context) NextSequence(key string, start int) int {
	v, ok := c.Sequences[key]
	if !ok {
		v = start
	} else {
		v++
	}
	c.Sequences[key] = v
	return v
}

// NextOrderedIndex advances and returns the cyclic index for an
// OrderedSequenceType at key, wrapping modulo length.
func (c *Context) NextOrderedIndex(key string, length int) int {
	if length <= 0 {
		return 0
	}
	idx := c.OrderedSequenceIndices[key] % length
	c.OrderedSequenceIndices[key] = idx + 1
	return idx
}
