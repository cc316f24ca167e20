package effects

import (
	"github.com/bits-and-blooms/bitset"

	"covenant/internal/symgraph"
)

// tarjanSCC computes strongly connected components of the calls graph
// (resolved call edges only). Returned components are listed in
// reverse topological order, matching Tarjan's algorithm's natural
// output; callers needing a specific traversal order should not rely on
// component order beyond "a component's callees appear no later".
func tarjanSCC(g *symgraph.Graph) [][]string {
	denseIdx := make(map[string]uint, len(g.Order))
	for i, id := range g.Order {
		denseIdx[id] = uint(i)
	}

	idx := map[string]int{}
	low := map[string]int{}
	onStack := bitset.New(uint(len(g.Order)))
	var stack []string
	counter := 0
	var comps [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		idx[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack.Set(denseIdx[v])

		for _, w := range g.Nodes[v].Calls {
			if _, ok := g.Nodes[w]; !ok {
				continue // unresolved target, not part of the graph
			}
			if _, seen := idx[w]; !seen {
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack.Test(denseIdx[w]) {
				if idx[w] < low[v] {
					low[v] = idx[w]
				}
			}
		}

		if low[v] == idx[v] {
			var comp []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack.Clear(denseIdx[w])
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			comps = append(comps, comp)
		}
	}

	for _, id := range g.Order {
		if _, seen := idx[id]; !seen {
			strongconnect(id)
		}
	}
	return comps
}

// componentIndex maps every node id to the index of its SCC within
// comps, for O(1) "which cycle is this node part of" lookups.
func componentIndex(comps [][]string) map[string]int {
	out := map[string]int{}
	for i, comp := range comps {
		for _, id := range comp {
			out[id] = i
		}
	}
	return out
}
