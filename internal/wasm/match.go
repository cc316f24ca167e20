package wasm

import (
	"covenant/internal/ast"
	"covenant/internal/ir"
)

// lowerMatch lowers a match step to a chain of discriminant comparisons
// against the scrutinee's tag byte (spec.md §4.7.1 "a tagged variant
// carries a u8 discriminant"). internal/types.checkMatch already proved
// exhaustiveness (every variant covered, or a "_" wildcard present), so
// a scrutinee whose tag matches none of the compared cases can only
// happen if that invariant was violated upstream, and this emitter traps
// rather than silently falling through.
func (fl *funcLower) lowerMatch(s *ast.Step) {
	scrutType := fl.resolveValueType(s.Values[0])
	tagLocal := fl.scratch(ValI32)
	fl.pushValue(s.Values[0])
	fl.a.i32Load8U(0)
	fl.a.localSet(tagLocal)

	var variantTag map[string]uint8
	if scrutType != nil && scrutType.Kind == ir.TEnum {
		if def, ok := fl.prog.Enums[scrutType.Name]; ok {
			variantTag = map[string]uint8{}
			for i, v := range def.Variants {
				variantTag[v.Name] = uint8(i)
			}
		}
	}

	var wildcard *ast.Branch
	opened := 0
	for i := range s.Branches {
		br := s.Branches[i]
		if br.Label == "_" {
			w := br
			wildcard = &w
			continue
		}
		tag, ok := variantTag[br.Label]
		if !ok {
			continue
		}
		fl.a.localGet(tagLocal)
		fl.a.i32Const(int32(tag))
		fl.a.raw(opI32Eq)
		fl.a.ifEmpty()
		fl.lowerSteps(br.Steps)
		fl.a.els()
		opened++
	}
	if wildcard != nil {
		fl.lowerSteps(wildcard.Steps)
	} else if opened > 0 {
		fl.a.unreachable()
	}
	for i := 0; i < opened; i++ {
		fl.a.end()
	}
}
