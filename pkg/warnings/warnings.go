// Package warnings implements the structured, call-scoped warning sink
// of §4.B. Warnings never escape to stderr on their own; a caller
// drains them explicitly (the generator facade's WarningSink::drain,
// §6). No package-level state is kept, matching the instance-owned
// design §9 requires throughout the runtime.
package warnings

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind tags a warning by cause. The set is closed: new kinds require a
// deliberate addition here, never an ad-hoc string at the call site.
type Kind string

const (
	UniqueExhaustion          Kind = "unique-exhaustion"
	ConstraintRetryExhaustion Kind = "constraint-retry-exhaustion"
	MutationTargetNotFound    Kind = "mutation-target-not-found"
	ContractMissing           Kind = "contract-missing"
	PluginLoad                Kind = "plugin-load"

	// StaticUnsatisfiable is emitted once per schema compile when a
	// constant-folded assume clause is detected as never satisfiable.
	// It is additive to the spec's closed set: a quality improvement
	// (§9 design note) that never blocks compilation.
	StaticUnsatisfiable Kind = "static-unsatisfiable"
)

// Warning is one recorded, non-fatal anomaly. ID lets a caller
// correlate a drained warning back to a specific occurrence across
// logs, independent of ordering or deduplication downstream.
type Warning struct {
	ID      string
	Kind    Kind
	Message string
	Schema  string // schema or collection name, "" when not applicable
	Field   string // field name, "" when not applicable
}

func (w Warning) String() string {
	loc := w.Schema
	if w.Field != "" {
		if loc != "" {
			loc += "."
		}
		loc += w.Field
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Kind, loc, w.Message)
}

// Sink accumulates warnings for one generation run. It is never shared
// across concurrent generation contexts; each gencontext.Context owns
// one.
type Sink struct {
	items []Warning
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Record appends w to the sink, stamping an ID if the caller left one
// unset. The ID is a correlation token only; §8 property 10's
// determinism claim is about the set of (Kind, Schema, Field, Message)
// tuples emitted, not about this identifier.
func (s *Sink) Record(w Warning) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	s.items = append(s.items, w)
}

// Recordf is a convenience constructor for Record.
func (s *Sink) Recordf(kind Kind, schema, field, format string, args ...any) {
	s.Record(Warning{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Schema:  schema,
		Field:   field,
	})
}

// Len reports how many warnings are currently queued.
func (s *Sink) Len() int { return len(s.items) }

// Drain returns all recorded warnings and clears the sink.
func (s *Sink) Drain() []Warning {
	out := s.items
	s.items = nil
	return out
}

// Peek returns the recorded warnings without clearing the sink.
func (s *Sink) Peek() []Warning {
	out := make([]Warning, len(s.items))
	copy(out, s.items)
	return out
}
