package wasm

import (
	"encoding/json"

	"covenant/internal/ast"
)

// internString appends s to cp unconditionally (unlike the literal
// aggregate cache, query descriptors are call-site unique, so there is
// nothing worth deduplicating by content).
func (cp *constPool) internString(s string) uint64 {
	off := cp.offset()
	cp.bytes = append(cp.bytes, s...)
	return fatPtr(off, uint32(len(s)))
}

// dataStepDescriptor renders a query/insert/update/delete/traverse
// step's static shape (everything known at compile time: its kind, its
// database target, and its declared attributes) as a small JSON
// document. The concrete meaning of a query — how a `where`/`returns`
// attribute turns into rows — is explicitly a standard-library
// *implementation* concern this core only threads through, never
// executes itself (spec.md §1's externs are "explicitly out of scope
// ... treated as external collaborators"); the emitted call only needs
// to carry enough information for that external collaborator to act on.
func dataStepDescriptor(s *ast.Step) string {
	doc := struct {
		Kind   string            `json:"kind"`
		Target string            `json:"target"`
		Attrs  map[string]string `json:"attrs,omitempty"`
	}{Kind: string(s.Kind), Target: s.Attrs["target"], Attrs: s.Attrs}
	b, err := json.Marshal(doc)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// lowerDataStep lowers query/insert/update/delete/traverse to a single
// call against the fixed `db.execute_query` import (spec.md §6.2): a
// descriptor fat pointer (this step's static shape) plus, when present,
// the step's first value-source argument reinterpreted as the raw i64
// argument slot. Multi-argument marshaling into a structured parameter
// blob is not attempted here, for the same out-of-scope reason the
// descriptor itself stays uninterpreted by this core.
func (fl *funcLower) lowerDataStep(s *ast.Step) {
	descPtr := fl.cp.internString(dataStepDescriptor(s))
	fl.a.i64Const(int64(descPtr))
	if len(s.Values) > 0 {
		fl.pushArgAsI64(s.Values[0])
	} else {
		fl.a.i64Const(0)
	}
	idx, ok := fl.imports.funcIndex["db.execute_query"]
	if !ok {
		fl.a.drop()
		fl.a.drop()
		fl.a.i64Const(0)
	} else {
		fl.a.call(idx)
	}
	fl.bindOutput(s, fl.stepType(s))
}

// pushArgAsI64 pushes v, widening an i32/f64 representation to the
// generic i64 argument slot db.execute_query expects for every query
// parameter (reinterpreting bits for Float rather than converting, since
// the receiving side is an opaque host argument slot, not an arithmetic
// context).
func (fl *funcLower) pushArgAsI64(v ast.Value) {
	fl.pushValue(v)
	switch valType(fl.resolveValueType(v)) {
	case ValI64:
		return
	case ValF64:
		fl.a.raw(opI64ReinterpretF64)
	default:
		fl.a.raw(opI64ExtendI32U)
	}
}
