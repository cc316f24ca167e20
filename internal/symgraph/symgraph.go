// Package symgraph builds the whole-program symbol graph: one node per
// snippet, with forward edges (calls, references) discovered by walking
// each snippet's body and data sections, and inverse edges (called_by,
// referenced_by) computed in a second pass (spec.md §3.1, §4.2).
//
// The bidirectional-edge shape mirrors the teacher's knowledge-graph
// store (each link recorded once, inverse maps derived rather than
// duplicated on write) generalised from an LLM memory graph to a
// compile-time symbol graph.
package symgraph

import (
	"sort"

	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/parser"
	"covenant/internal/source"
)

// Node is one snippet's place in the whole-program graph.
type Node struct {
	ID      string
	Kind    ast.SnippetKind
	Snippet *ast.Snippet

	Calls      []string // snippet ids this fn/test calls, in first-seen order
	References []string // snippet ids this snippet references (tools, data relations, db targets)

	CalledBy      []string
	ReferencedBy  []string

	// UnresolvedCalls/UnresolvedReferences list edge targets that do not
	// name any snippet in the program. These are recorded, not treated
	// as parse or symbol errors — later phases (effects, types) decide
	// whether an unresolved edge is actually fatal in context (spec.md §4.2).
	UnresolvedCalls      []string
	UnresolvedReferences []string
}

// Graph is the whole-program symbol graph.
type Graph struct {
	Nodes map[string]*Node
	Order []string // snippet ids in source declaration order, for deterministic iteration
}

// Build constructs the symbol graph for prog, reporting id-format
// diagnostics into diags (a repeated edge target is merged into one edge
// without a diagnostic). prog is assumed to have
// already passed through internal/parser (so E-PARSE-DUP already rules
// out duplicate ids; this pass re-validates id *shape*, since a snippet
// can reach here from any AST construction path).
func Build(prog *ast.Program, diags *diag.Bag) *Graph {
	g := &Graph{Nodes: map[string]*Node{}}
	for _, snip := range prog.Snippets {
		if snip.ID == "" {
			continue // already reported missing-id at parse time
		}
		if !parser.ValidID(snip.ID) {
			diags.Errorf(diag.FamilySymbol, "E-SYM-002", snip.Span, "snippet id %q does not match the required dotted-identifier form", snip.ID)
		}
		if _, dup := g.Nodes[snip.ID]; dup {
			continue // duplicate already reported by the parser
		}
		g.Nodes[snip.ID] = &Node{ID: snip.ID, Kind: snip.Kind, Snippet: snip}
		g.Order = append(g.Order, snip.ID)
	}

	for _, id := range g.Order {
		n := g.Nodes[id]
		n.Calls = dedupe(collectCalls(n.Snippet))
		n.References = dedupe(collectReferences(n.Snippet))
	}

	// Second pass: derive inverse edges now that every forward edge list
	// is final, and split resolved from unresolved targets.
	for _, id := range g.Order {
		n := g.Nodes[id]
		for _, target := range n.Calls {
			if tn, ok := g.Nodes[target]; ok {
				tn.CalledBy = append(tn.CalledBy, n.ID)
			} else {
				n.UnresolvedCalls = append(n.UnresolvedCalls, target)
			}
		}
		for _, target := range n.References {
			if tn, ok := g.Nodes[target]; ok {
				tn.ReferencedBy = append(tn.ReferencedBy, n.ID)
			} else {
				n.UnresolvedReferences = append(n.UnresolvedReferences, target)
			}
		}
	}
	// CalledBy/ReferencedBy accumulate across Order iteration in
	// declaration order (Order is stable), but sort for callers that query a
	// single node in isolation and expect determinism regardless of how
	// it was reached.
	for _, id := range g.Order {
		n := g.Nodes[id]
		sort.Strings(n.CalledBy)
		sort.Strings(n.ReferencedBy)
	}
	return g
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// collectCalls returns every call target named by `call target="…"`
// steps anywhere in the snippet's body or test bodies, including inside
// nested if/match/for/parallel/race branches.
func collectCalls(snip *ast.Snippet) []string {
	var out []string
	var walk func(steps []*ast.Step)
	walk = func(steps []*ast.Step) {
		for _, s := range steps {
			if s.Kind == ast.StepCall {
				if t := s.Attrs["target"]; t != "" {
					out = append(out, t)
				}
			}
			for _, br := range s.Branches {
				walk(br.Steps)
			}
		}
	}
	walk(snip.Body)
	for _, tc := range snip.Tests {
		walk(tc.Steps)
	}
	return out
}

// referenceStepKinds names step kinds that address a database/extern
// snippet by id via a "target" attribute, rather than by calling it.
var referenceStepKinds = map[ast.StepKind]bool{
	ast.StepQuery: true, ast.StepInsert: true, ast.StepUpdate: true,
	ast.StepDelete: true, ast.StepTransaction: true, ast.StepTraverse: true,
}

// collectReferences returns every non-call edge a snippet carries: tool
// declarations, data-node relations, and the database/extern targets
// addressed by query/insert/update/delete/transaction/traverse steps.
func collectReferences(snip *ast.Snippet) []string {
	var out []string
	out = append(out, snip.Tools...)
	for _, rel := range snip.Relations {
		if rel.Target != "" {
			out = append(out, rel.Target)
		}
	}
	var walk func(steps []*ast.Step)
	walk = func(steps []*ast.Step) {
		for _, s := range steps {
			if referenceStepKinds[s.Kind] {
				if t := s.Attrs["target"]; t != "" {
					out = append(out, t)
				}
			}
			for _, br := range s.Branches {
				walk(br.Steps)
			}
		}
	}
	walk(snip.Body)
	for _, tc := range snip.Tests {
		walk(tc.Steps)
	}
	return out
}

// Lookup returns the node for id, or nil.
func (g *Graph) Lookup(id string) *Node { return g.Nodes[id] }

// Span returns the defining snippet's span for id, used by later phases
// that only carry an id and need to anchor a diagnostic.
func (g *Graph) Span(id string) source.Span {
	if n, ok := g.Nodes[id]; ok {
		return n.Snippet.Span
	}
	return source.Span{}
}
