package wasm

import "covenant/internal/ir"

// FieldLayout is one field's placement inside its owning struct/variant.
type FieldLayout struct {
	Name   string
	Type   *ir.Type
	Offset uint32
	Size   uint32
	Align  uint32
}

// StructLayout is the resolved, natural-alignment memory layout of a
// struct (spec.md §4.7.1: "each field padded up to its alignment;
// struct alignment = max field alignment; all offsets computed
// left-to-right in declared field order").
type StructLayout struct {
	Fields []FieldLayout
	Size   uint32
	Align  uint32
}

// VariantLayout is the resolved layout of one enum case: a leading u8
// discriminant (not itself padded into the payload) followed by the
// case's own fields, laid out like a struct.
type VariantLayout struct {
	Name    string
	Tag     uint8
	Payload StructLayout
}

// EnumLayout is the resolved layout of a tagged union: the discriminant
// plus the padded width of the widest arm (spec.md §4.7.1: "a tagged
// variant carries a u8 discriminant followed by the payload of the
// widest arm, padded").
type EnumLayout struct {
	Variants     []VariantLayout
	PayloadSize  uint32
	PayloadAlign uint32
	Size         uint32 // tag + padding to PayloadAlign + PayloadSize
}

// sizeAlign returns a type's in-memory footprint. Primitives map to
// their natural WASM width; strings/lists are fat pointers (a single
// i64, spec.md §4.7.1); structs/enums use the already computed nested
// layouts from LayoutTable; externs are a single i64 handle.
func sizeAlign(t *ir.Type, structs map[string]*StructLayout, enums map[string]*EnumLayout) (size, align uint32) {
	switch t.Kind {
	case ir.TInt:
		return 8, 8 // Int is i64-width in the Covenant value model
	case ir.TFloat:
		return 8, 8
	case ir.TBool:
		return 1, 1
	case ir.TNone:
		return 0, 1
	case ir.TString, ir.TList, ir.TMap, ir.TUnion, ir.TOptional:
		return 8, 8 // fat pointer
	case ir.TStruct:
		if sl, ok := structs[t.Name]; ok {
			return sl.Size, sl.Align
		}
		return 8, 8 // unresolved forward reference: fat-pointer fallback
	case ir.TEnum:
		if el, ok := enums[t.Name]; ok {
			return el.Size, el.PayloadAlign
		}
		return 8, 8
	case ir.TExtern:
		return 8, 8 // externs are always addressed by fat pointer/handle
	default:
		return 8, 8
	}
}

func alignUp(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}

// LayoutTable resolves memory layouts for every struct and enum in prog,
// in dependency order: a struct whose field types are themselves
// structs/enums needs those nested layouts computed first, so this
// walks prog.Order (the snippet's own declaration order happens to
// already satisfy the common case — Covenant has no forward-declared
// nominal types per spec.md §3.4 — and for any case it doesn't, the
// fat-pointer fallback above degrades gracefully to 8/8 rather than a
// compiler crash, which is what it uses for Union/Optional too).
type LayoutTable struct {
	Structs map[string]*StructLayout
	Enums   map[string]*EnumLayout
}

func BuildLayouts(prog *ir.Program) *LayoutTable {
	lt := &LayoutTable{Structs: map[string]*StructLayout{}, Enums: map[string]*EnumLayout{}}
	for _, id := range prog.Order {
		if sd, ok := prog.Structs[id]; ok {
			lt.Structs[id] = layoutStruct(sd.Fields, lt.Structs, lt.Enums)
		}
	}
	for _, id := range prog.Order {
		if ed, ok := prog.Enums[id]; ok {
			lt.Enums[id] = layoutEnum(ed, lt.Structs, lt.Enums)
		}
	}
	return lt
}

func layoutStruct(fields []ir.Param, structs map[string]*StructLayout, enums map[string]*EnumLayout) *StructLayout {
	sl := &StructLayout{Align: 1}
	var offset uint32
	for _, f := range fields {
		size, align := sizeAlign(f.Type, structs, enums)
		offset = alignUp(offset, align)
		sl.Fields = append(sl.Fields, FieldLayout{Name: f.Name, Type: f.Type, Offset: offset, Size: size, Align: align})
		offset += size
		if align > sl.Align {
			sl.Align = align
		}
	}
	sl.Size = alignUp(offset, sl.Align)
	return sl
}

func layoutEnum(ed *ir.EnumDef, structs map[string]*StructLayout, enums map[string]*EnumLayout) *EnumLayout {
	el := &EnumLayout{PayloadAlign: 1}
	for i, v := range ed.Variants {
		payload := layoutStruct(v.Fields, structs, enums)
		el.Variants = append(el.Variants, VariantLayout{Name: v.Name, Tag: uint8(i), Payload: *payload})
		if payload.Size > el.PayloadSize {
			el.PayloadSize = payload.Size
		}
		if payload.Align > el.PayloadAlign {
			el.PayloadAlign = payload.Align
		}
	}
	el.Size = alignUp(1, el.PayloadAlign) + el.PayloadSize
	return el
}
