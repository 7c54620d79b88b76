package instancegen

import "fabrik/pkg/ast"

// referencedNames walks expr and collects every bare name a Binding,
// Identifier, or QualifiedName head could refer to. It is used only to
// build the computed-field dependency graph (§4.J step 2); names that
// don't match another computed field in the same schema are simply
// ignored by the topological sort.
func referencedNames(expr ast.Expr, out map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case ast.Identifier:
		out[e.Name] = struct{}{}
	case ast.QualifiedName:
		if len(e.Parts) > 0 {
			out[e.Parts[0]] = struct{}{}
		}
	case ast.Binary:
		referencedNames(e.Left, out)
		referencedNames(e.Right, out)
	case ast.Logical:
		referencedNames(e.Left, out)
		referencedNames(e.Right, out)
	case ast.Not:
		referencedNames(e.Operand, out)
	case ast.Unary:
		referencedNames(e.Operand, out)
	case ast.Range:
		referencedNames(e.Min, out)
		referencedNames(e.Max, out)
	case ast.Superposition:
		for _, opt := range e.Options {
			referencedNames(opt.Weight, out)
			referencedNames(opt.Value, out)
		}
	case ast.Call:
		referencedNames(e.Callee, out)
		for _, a := range e.Args {
			referencedNames(a, out)
		}
	case ast.Ternary:
		referencedNames(e.Cond, out)
		referencedNames(e.Then, out)
		referencedNames(e.Else, out)
	case ast.Match:
		referencedNames(e.Value, out)
		for _, arm := range e.Arms {
			referencedNames(arm.Pattern, out)
			referencedNames(arm.Result, out)
		}
	case ast.AnyOf:
		referencedNames(e.Collection, out)
		referencedNames(e.Condition, out)
	case ast.OrderedSequence:
		for _, el := range e.Elements {
			referencedNames(el, out)
		}
	case ast.Literal, ast.ParentRef:
		// No same-schema field dependency: ParentRef walks the parent
		// record, never the schema currently being built.
	}
}

// topoSortComputed orders computed fields so that every field appears
// after every other computed field it depends on (Kahn's algorithm). A
// remaining unresolved field after processing indicates a cycle.
func topoSortComputed(fields []ast.FieldDefinition) ([]ast.FieldDefinition, error) {
	names := make(map[string]int, len(fields))
	for i, f := range fields {
		names[f.Name] = i
	}

	deps := make([][]int, len(fields))
	indegree := make([]int, len(fields))
	dependents := make([][]int, len(fields))

	for i, f := range fields {
		refs := make(map[string]struct{})
		referencedNames(f.Distribution, refs)
		seen := make(map[int]struct{})
		for name := range refs {
			if name == f.Name {
				continue
			}
			if j, ok := names[name]; ok {
				if _, dup := seen[j]; !dup {
					seen[j] = struct{}{}
					deps[i] = append(deps[i], j)
					indegree[i]++
					dependents[j] = append(dependents[j], i)
				}
			}
		}
	}

	var queue []int
	for i := range fields {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	var order []int
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		order = append(order, idx)
		for _, dep := range dependents[idx] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(fields) {
		return nil, ErrComputedCycle
	}

	out := make([]ast.FieldDefinition, len(order))
	for i, idx := range order {
		out[i] = fields[idx]
	}
	return out, nil
}
