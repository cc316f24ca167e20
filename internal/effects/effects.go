// Package effects computes each snippet's effect closure — the full set
// of effects it transitively requires by virtue of what it calls — and
// checks that against what the snippet actually declares (spec.md §3.1
// "effects" section, §4.3).
//
// The closure is a textbook Datalog least fixpoint over the call graph,
// so it is computed by handing the call graph to the teacher's
// google/mangle Engine wrapper as `calls`/`declares` facts and letting
// the engine's own recursive evaluation do the work, rather than
// hand-rolling a fixpoint loop. Strongly connected components (mutual
// recursion) are additionally computed directly (Tarjan, no library in
// the retrieval pack provides this) purely so diagnostics can name every
// co-responsible member of a cycle, not to drive the closure itself —
// Mangle's seminaive evaluation already handles cyclic `calls` edges
// correctly on its own.
package effects

import (
	"context"
	"fmt"
	"sort"

	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/mangle"
	"covenant/internal/symgraph"
)

const closureSchema = `
Decl calls(X, Y) bound [/string, /string].
Decl declares(X, E) bound [/string, /string].
Decl has_effect(X, E) bound [/string, /string].
has_effect(X, E) :- declares(X, E).
has_effect(X, E) :- calls(X, Y), has_effect(Y, E).
`

// Closure holds the computed effect requirements for every snippet.
type Closure struct {
	// Required maps snippet id -> sorted set of effects it transitively
	// requires (its own declared effects union everything its callees
	// require).
	Required map[string][]string
}

// Compute builds the effect closure for every fn/test snippet in g and
// reports E-EFFECT-MISSING / E-EFFECT-PURE diagnostics for any snippet
// whose declared `effects` section does not cover its computed closure.
func Compute(g *symgraph.Graph, diags *diag.Bag) *Closure {
	engine, err := mangle.NewEngine(mangle.DefaultConfig())
	if err != nil {
		// The in-memory engine only fails to construct on a nil-receiver
		// bug in the wrapper itself; there is no recoverable diagnostic to
		// give the user, so surface it as a single internal error.
		diags.Errorf(diag.FamilyEffect, "E-EFFECT-ENGINE", g.Span(firstID(g)), "effect engine initialisation failed: %v", err)
		return &Closure{Required: map[string][]string{}}
	}
	if err := engine.LoadSchemaString(closureSchema); err != nil {
		diags.Errorf(diag.FamilyEffect, "E-EFFECT-ENGINE", g.Span(firstID(g)), "effect closure schema failed to load: %v", err)
		return &Closure{Required: map[string][]string{}}
	}

	var facts []mangle.Fact
	for _, id := range g.Order {
		n := g.Nodes[id]
		for _, e := range n.Snippet.Effects {
			facts = append(facts, mangle.Fact{Predicate: "declares", Args: []interface{}{id, e}})
		}
		for _, target := range n.Calls {
			if _, ok := g.Nodes[target]; ok {
				facts = append(facts, mangle.Fact{Predicate: "calls", Args: []interface{}{id, target}})
			}
		}
	}
	if len(facts) > 0 {
		if err := engine.AddFacts(facts); err != nil {
			diags.Errorf(diag.FamilyEffect, "E-EFFECT-ENGINE", g.Span(firstID(g)), "effect closure evaluation failed: %v", err)
			return &Closure{Required: map[string][]string{}}
		}
	}

	result, err := engine.Query(context.Background(), "has_effect(X, E).")
	closure := &Closure{Required: map[string][]string{}}
	if err != nil {
		diags.Errorf(diag.FamilyEffect, "E-EFFECT-ENGINE", g.Span(firstID(g)), "effect closure query failed: %v", err)
		return closure
	}
	for _, row := range result.Bindings {
		id, _ := row["X"].(string)
		eff, _ := row["E"].(string)
		if id == "" || eff == "" {
			continue
		}
		closure.Required[id] = append(closure.Required[id], eff)
	}
	for id := range closure.Required {
		sort.Strings(closure.Required[id])
	}

	comps := tarjanSCC(g)
	compOf := componentIndex(comps)

	for _, id := range g.Order {
		n := g.Nodes[id]
		if n.Kind != ast.KindFn && n.Kind != ast.KindTest {
			continue
		}
		declared := map[string]bool{}
		for _, e := range n.Snippet.Effects {
			declared[e] = true
		}
		var missing []string
		for _, e := range closure.Required[id] {
			if !declared[e] {
				missing = append(missing, e)
			}
		}
		if len(missing) == 0 {
			continue
		}

		members := comps[compOf[id]]
		code := diag.Code("E-EFFECT-MISSING")
		verb := "requires undeclared effects"
		if len(n.Snippet.Effects) == 0 {
			code = "E-EFFECT-PURE"
			verb = "declares no effects but transitively requires"
		}
		msg := fmt.Sprintf("%s %s: %v", id, verb, missing)
		if len(members) > 1 {
			msg += fmt.Sprintf(" (via mutual recursion with %v)", otherMembers(members, id))
		}
		diags.Add(diag.Diagnostic{
			Code: code, Severity: diag.Error, Family: diag.FamilyEffect,
			Message: msg, Span: n.Snippet.Span,
		})
	}
	return closure
}

func otherMembers(members []string, self string) []string {
	out := make([]string, 0, len(members)-1)
	for _, m := range members {
		if m != self {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func firstID(g *symgraph.Graph) string {
	if len(g.Order) == 0 {
		return ""
	}
	return g.Order[0]
}
