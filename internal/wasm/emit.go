// Package wasm lowers a type-checked, optimized internal/ir.Program into
// a single WASM binary module (spec.md §4.7, §6.2): the embedded data
// graph and symbol graph as linear-memory blobs, the fixed GAI export
// set, one effect-keyed import per required capability, and one WASM
// function per callable snippet.
package wasm

import (
	"sort"

	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/effects"
	"covenant/internal/ir"
	"covenant/internal/source"
	"covenant/internal/symgraph"
)

// pageSize is the WASM linear-memory page granularity.
const pageSize = 65536

// Emit assembles prog into a finished WASM binary, consulting g for the
// symbol/data graph and closure for the capability manifest driving
// which host imports get declared. Diagnostics (relation-type overflow,
// a broken symbol-graph serialisation) are added to diags; Emit itself
// never refuses to produce bytes, since this phase runs only after every
// earlier gate has already passed (spec.md §7 "emission only runs once
// every earlier phase is diagnostic-clean").
func Emit(prog *ir.Program, g *symgraph.Graph, closure *effects.Closure, diags *diag.Bag) []byte {
	layouts := BuildLayouts(prog)
	m := newModule()

	dg := buildDataGraph(g, prog, 0, diags)
	symbolJSON, err := buildSymbolGraphJSON(g)
	if err != nil {
		diags.Errorf(diag.FamilyEmit, "E-EMIT-SYMGRAPH", source.Span{}, "symbol graph serialisation failed: %v", err)
		symbolJSON = []byte("[]")
	}
	symbolBase := uint32(len(dg.Blob))
	symbolPtr := fatPtr(symbolBase, uint32(len(symbolJSON)))

	spBase := symbolBase + uint32(len(symbolJSON))
	sp := buildStringPool(prog, spBase)

	cpBase := spBase + uint32(len(sp.Bytes))
	cp := newConstPool(cpBase)

	// The bump allocator's initial value depends on the const pool's final
	// size, which is only known after every body is lowered (literal
	// aggregates grow it along the way); declare the global now so gai.go
	// and lower.go can reference its index, and patch its initial value
	// once lowering finishes.
	heapGlobal := m.addGlobalI32(0, true)

	gai := buildGAI(m, dg, heapGlobal, symbolPtr)
	imports := planImports(m, requiredEffects(closure.Required))

	type pending struct {
		idx uint32
		fn  *ir.Function
	}
	userFn := map[string]uint32{}
	var bodies []pending

	declare := func(id string, fn *ir.Function) {
		idx := m.declareFunc(funcType{params: paramValTypes(fn.Params), results: resultValTypes(fn.Result)})
		userFn[id] = idx
		bodies = append(bodies, pending{idx: idx, fn: fn})
	}

	for _, id := range prog.Order {
		fn, ok := prog.Functions[id]
		if !ok {
			continue
		}
		declare(id, fn)
		for _, tc := range fn.Tests {
			testID := id + ".test." + tc.ID
			declare(testID, &ir.Function{
				ID: testID, Kind: ast.KindTest,
				Body: tc.Steps, Effects: fn.Effects,
				StepTypes: fn.StepTypes, Locals: fn.Locals,
			})
		}
	}

	for _, p := range bodies {
		body := lowerFunction(m, prog, layouts, sp, cp, imports, userFn, gai, heapGlobal, p.fn)
		m.defineFunc(p.idx, body)
	}

	heapStart := alignUp(cp.offset(), 8)
	m.globals[heapGlobal].initI32 = int32(heapStart)

	if len(dg.Blob) > 0 {
		m.addData(0, dg.Blob)
	}
	if len(symbolJSON) > 0 {
		m.addData(int32(symbolBase), symbolJSON)
	}
	if len(sp.Bytes) > 0 {
		m.addData(int32(spBase), sp.Bytes)
	}
	if len(cp.bytes) > 0 {
		m.addData(int32(cpBase), cp.bytes)
	}

	totalBytes := heapStart + initialHeapSlack
	pages := (totalBytes + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	m.addMemory(pages)

	m.addExportMemory("memory", 0)
	addGAIExports(m, gai)

	if mainID, ok := findMain(prog); ok {
		m.addExportFunc("main", userFn[mainID])
	}

	for _, id := range reachablePublic(g, prog, mainIDOrEmpty(prog)) {
		if _, ok := prog.Externs[id]; ok {
			continue
		}
		idx, ok := userFn[id]
		if !ok {
			continue
		}
		m.addExportFunc(mangleExportName(id), idx)
	}

	return m.assemble()
}

// initialHeapSlack reserves extra room beyond the compile-time-known
// region for cov_alloc's bump allocation at runtime. cov_alloc never
// grows memory (the emitter issues no memory.grow, spec.md §1 "no
// garbage collector or runtime memory growth policy is specified"), so a
// bump allocation past the declared pages traps when accessed.
const initialHeapSlack = 65536

func paramValTypes(params []ir.Param) []ValType {
	out := make([]ValType, len(params))
	for i, p := range params {
		out[i] = valType(p.Type)
	}
	return out
}

func resultValTypes(t *ir.Type) []ValType {
	if t == nil || t.Kind == ir.TNone {
		return nil
	}
	return []ValType{valType(t)}
}

// addGAIExports declares the fixed export set spec.md §4.7.3 names.
func addGAIExports(m *module, g *gaiFuncs) {
	m.addExportFunc("cov_alloc", g.alloc)
	m.addExportFunc("cov_node_count", g.nodeCount)
	m.addExportFunc("cov_get_node_id", g.getNodeID)
	m.addExportFunc("cov_get_node_kind", g.getNodeKind)
	m.addExportFunc("cov_get_node_content", g.getNodeContent)
	m.addExportFunc("cov_get_outgoing_count", g.getOutgoingCount)
	m.addExportFunc("cov_get_outgoing_rel", g.getOutgoingRel)
	m.addExportFunc("cov_get_incoming_count", g.getIncomingCount)
	m.addExportFunc("cov_get_incoming_rel", g.getIncomingRel)
	m.addExportFunc("cov_find_by_id", g.findByID)
	m.addExportFunc("cov_content_contains", g.contentContains)
	m.addExportFunc("cov_get_rel_type_name", g.getRelTypeName)
	m.addExportFunc("_cov_get_symbol_metadata", g.getSymbolMetadata)
}

// findMain reports the `*.main` snippet with signature `() -> Unit`
// (spec.md §6.2 "main — present iff a snippet id *.main exists with
// signature () → Unit"), if any.
func findMain(prog *ir.Program) (string, bool) {
	for _, id := range prog.Order {
		if !hasMainSuffix(id) {
			continue
		}
		fn, ok := prog.Functions[id]
		if !ok {
			continue
		}
		if len(fn.Params) == 0 && (fn.Result == nil || fn.Result.Kind == ir.TNone) {
			return id, true
		}
	}
	return "", false
}

func mainIDOrEmpty(prog *ir.Program) string {
	id, ok := findMain(prog)
	if !ok {
		return ""
	}
	return id
}

func hasMainSuffix(id string) bool {
	const suffix = ".main"
	return len(id) > len(suffix) && id[len(id)-len(suffix):] == suffix
}

// reachablePublic returns every non-extern snippet id reachable (via
// Calls edges) from main, plus every snippet explicitly tagged public in
// its metadata (spec.md §6.2 "reachable from main or tagged public"),
// sorted for deterministic export ordering (spec.md §8).
func reachablePublic(g *symgraph.Graph, prog *ir.Program, mainID string) []string {
	visited := map[string]bool{}
	var queue []string
	seed := func(id string) {
		if id == "" || visited[id] {
			return
		}
		visited[id] = true
		queue = append(queue, id)
	}
	seed(mainID)
	for _, id := range g.Order {
		n := g.Nodes[id]
		if n.Snippet != nil && n.Snippet.Metadata["public"] == "true" {
			seed(id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, ok := g.Nodes[id]
		if !ok {
			continue
		}
		for _, target := range n.Calls {
			seed(target)
		}
	}
	out := make([]string, 0, len(visited))
	for id := range visited {
		if _, ok := prog.Functions[id]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// mangleExportName rewrites a dotted snippet id into the export-name form
// spec.md §6.2 requires ("named by its id with `.` rewritten as `_`").
func mangleExportName(id string) string {
	out := []byte(id)
	for i, c := range out {
		if c == '.' {
			out[i] = '_'
		}
	}
	return string(out)
}
