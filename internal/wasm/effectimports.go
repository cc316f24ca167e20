package wasm

import "sort"

// importSpec names one import function and the value-type signature the
// emitter gives it. Every import uses the fat-pointer convention for any
// string/bytes argument or result (spec.md §6.2 "All import functions
// use the fat-pointer convention for strings/bytes"), so string-shaped
// params/results are ValI64.
type importSpec struct {
	name   string
	params []ValType
	result []ValType
}

// effectImportTable is the canonical effect -> import mapping (spec.md
// §6.2). "mem" is always imported regardless of declared effects.
var effectImportTable = map[string][]importSpec{
	"console": {
		{name: "console.println", params: []ValType{ValI64}},
		{name: "console.print", params: []ValType{ValI64}},
		{name: "console.eprintln", params: []ValType{ValI64}},
		{name: "console.eprint", params: []ValType{ValI64}},
	},
	"filesystem": {
		{name: "fs.read", params: []ValType{ValI64}, result: []ValType{ValI64}},
		{name: "fs.write", params: []ValType{ValI64, ValI64}, result: []ValType{ValI32}},
		{name: "fs.delete", params: []ValType{ValI64}, result: []ValType{ValI32}},
		{name: "fs.exists", params: []ValType{ValI64}, result: []ValType{ValI32}},
		{name: "fs.read_dir", params: []ValType{ValI64}, result: []ValType{ValI64}},
		{name: "fs.create_dir", params: []ValType{ValI64}, result: []ValType{ValI32}},
		{name: "fs.remove_dir", params: []ValType{ValI64}, result: []ValType{ValI32}},
	},
	"network": {
		{name: "http.fetch", params: []ValType{ValI64}, result: []ValType{ValI64}},
	},
	"database": {
		{name: "db.execute_query", params: []ValType{ValI64, ValI64}, result: []ValType{ValI64}},
	},
	"std.storage": {
		{name: "std.storage.kv.get", params: []ValType{ValI64}, result: []ValType{ValI64}},
		{name: "std.storage.kv.set", params: []ValType{ValI64, ValI64}, result: []ValType{ValI32}},
		{name: "std.storage.doc.get", params: []ValType{ValI64}, result: []ValType{ValI64}},
		{name: "std.storage.doc.set", params: []ValType{ValI64, ValI64}, result: []ValType{ValI32}},
	},
	"std.time": {
		{name: "std.time.now", result: []ValType{ValI64}},
		{name: "std.time.sleep", params: []ValType{ValI64}},
	},
	"std.random": {
		{name: "std.random.int", params: []ValType{ValI64, ValI64}, result: []ValType{ValI64}},
		{name: "std.random.float", result: []ValType{ValF64}},
		{name: "std.random.bytes", params: []ValType{ValI32}, result: []ValType{ValI64}},
	},
	"std.crypto": {
		{name: "std.crypto.hash", params: []ValType{ValI64}, result: []ValType{ValI64}},
		{name: "std.crypto.sign", params: []ValType{ValI64, ValI64}, result: []ValType{ValI64}},
		{name: "std.crypto.verify", params: []ValType{ValI64, ValI64, ValI64}, result: []ValType{ValI32}},
	},
	"mem": {
		{name: "mem.alloc", params: []ValType{ValI32}, result: []ValType{ValI32}},
	},
}

// importDivider splits an import's "module.name" (or "module.sub.name")
// dotted form into the WASM (module, field) pair the import section
// wants, splitting on the first dot.
func importDivider(dotted string) (module, field string) {
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			return dotted[:i], dotted[i+1:]
		}
	}
	return dotted, dotted
}

// requiredEffects returns the module's aggregate capability manifest:
// the union of every reachable fn/test's effect closure, plus "mem"
// which is always imported (spec.md §6.2).
func requiredEffects(required map[string][]string) []string {
	set := map[string]bool{"mem": true}
	for _, effs := range required {
		for _, e := range effs {
			set[e] = true
		}
	}
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// importPlan is the resolved set of imports a module needs, with each
// import's assigned function index recorded for lower.go/gai.go to call
// against.
type importPlan struct {
	funcIndex map[string]uint32 // import name ("console.println") -> func index
}

// planImports declares one WASM import per import spec reachable from
// effs (sorted, so emission is deterministic per spec.md §8), returning
// the plan lower.go/gai.go consult when compiling effectful calls.
func planImports(m *module, effs []string) *importPlan {
	plan := &importPlan{funcIndex: map[string]uint32{}}
	for _, eff := range effs {
		specs, ok := effectImportTable[eff]
		if !ok {
			continue // unknown effect name; internal/effects already validated declared effects
		}
		for _, spec := range specs {
			mod, field := importDivider(spec.name)
			idx := m.addImport(mod, field, funcType{params: spec.params, results: spec.result})
			plan.funcIndex[spec.name] = idx
		}
	}
	return plan
}
