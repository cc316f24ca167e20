package wasm

import (
	"encoding/binary"
	"math"

	"covenant/internal/ast"
	"covenant/internal/ir"
)

// constPool holds the compile-time-serialised bytes of every List/Struct
// literal reachable from a program's bodies. Because such a literal's
// entire shape is known at compile time (ast.Literal.List/.Struct are
// themselves literal, never a runtime value), its memory image can be
// written once into a data segment and referenced by embedding its
// address as an i32/i64 constant in the generated bytecode — the same
// strategy datagraph.go already uses for the data-graph's own dense
// tables, generalised here to user-authored aggregate literals.
type constPool struct {
	base  uint32
	bytes []byte
	cache map[*ast.Literal]uint64
}

func newConstPool(base uint32) *constPool {
	return &constPool{base: base, cache: map[*ast.Literal]uint64{}}
}

func (cp *constPool) offset() uint32 { return cp.base + uint32(len(cp.bytes)) }

func (cp *constPool) pad(align uint32) {
	for uint32(len(cp.bytes))%align != 0 {
		cp.bytes = append(cp.bytes, 0)
	}
}

// litStructLayout computes an ad hoc, natural-alignment layout for an
// anonymous struct literal's fields, in declared order — the same rule
// layoutStruct applies to a nominal struct.TypeExpr definition, applied
// instead to whatever shape the literal itself carries (spec.md §4.4
// leaves anonymous struct literal typing unresolved; this core chooses a
// declaration-order/natural-alignment rule rather than leaving it
// unrepresentable in memory).
func litStructLayout(fields []ast.StructField, layouts *LayoutTable) (offsets []uint32, fieldTypes []*ir.Type, size, align uint32) {
	align = 1
	var offset uint32
	for _, f := range fields {
		ft := literalType(f.Value)
		fs, fa := sizeAlign(ft, layouts.Structs, layouts.Enums)
		offset = alignUp(offset, fa)
		offsets = append(offsets, offset)
		fieldTypes = append(fieldTypes, ft)
		offset += fs
		if fa > align {
			align = fa
		}
	}
	size = alignUp(offset, align)
	return
}

// encodeAggregate serialises a List or Struct literal into cp, returning
// its runtime representation: a fat pointer (offset<<32|elementCount)
// for a list, or a bare i32 pointer (held in the low 32 bits) for a
// struct — matching the pointer-to-aggregate calling convention valType
// chooses for TStruct/TEnum.
func (fl *funcLower) encodeAggregate(lit *ast.Literal, cp *constPool) uint64 {
	if v, ok := cp.cache[lit]; ok {
		return v
	}
	var result uint64
	switch lit.Kind {
	case ast.LitList:
		var elemType *ir.Type
		if len(lit.List) > 0 {
			elemType = literalType(lit.List[0])
		} else {
			elemType = &ir.Type{Kind: ir.TUnknown}
		}
		elemSize, elemAlign := sizeAlign(elemType, fl.layouts.Structs, fl.layouts.Enums)
		cp.pad(4)
		headerOff := cp.offset()
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(lit.List)))
		cp.bytes = append(cp.bytes, hdr[:]...)
		cp.pad(elemAlign)
		for _, e := range lit.List {
			cp.pad(elemAlign)
			fl.writeLiteralBytes(cp, e, elemType)
			for uint32(len(cp.bytes))%elemSize != 0 && elemSize > 0 {
				cp.bytes = append(cp.bytes, 0)
			}
		}
		result = fatPtr(headerOff, uint32(len(lit.List)))
	case ast.LitStruct:
		_, fieldTypes, size, align := litStructLayout(lit.Struct, fl.layouts)
		cp.pad(align)
		start := cp.offset()
		cp.bytes = append(cp.bytes, make([]byte, size)...)
		var off uint32
		for i, f := range lit.Struct {
			ft := fieldTypes[i]
			_, fa := sizeAlign(ft, fl.layouts.Structs, fl.layouts.Enums)
			off = alignUp(off, fa)
			fl.overwriteLiteralBytes(cp, start+off, f.Value, ft)
			fs, _ := sizeAlign(ft, fl.layouts.Structs, fl.layouts.Enums)
			off += fs
		}
		result = uint64(start)
	}
	cp.cache[lit] = result
	return result
}

// writeLiteralBytes appends lit's in-memory representation to cp (used
// for list elements, which are appended sequentially).
func (fl *funcLower) writeLiteralBytes(cp *constPool, lit *ast.Literal, t *ir.Type) {
	start := uint32(len(cp.bytes))
	size, _ := sizeAlign(t, fl.layouts.Structs, fl.layouts.Enums)
	cp.bytes = append(cp.bytes, make([]byte, size)...)
	fl.overwriteLiteralBytes(cp, cp.base+start, lit, t)
}

// overwriteLiteralBytes writes lit's representation into cp.bytes at the
// already-reserved absolute offset at.
func (fl *funcLower) overwriteLiteralBytes(cp *constPool, at uint32, lit *ast.Literal, t *ir.Type) {
	rel := at - cp.base
	put := func(b []byte) { copy(cp.bytes[rel:], b) }
	switch lit.Kind {
	case ast.LitInt:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(lit.Int))
		put(b[:])
	case ast.LitFloat:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(lit.Float))
		put(b[:])
	case ast.LitBool:
		if lit.Bool {
			cp.bytes[rel] = 1
		}
	case ast.LitNone:
		// zero-size; nothing to write
	case ast.LitString:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], fl.sp.lookup(lit.Str))
		put(b[:])
	case ast.LitList, ast.LitStruct:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], fl.encodeAggregate(lit, cp))
		if lit.Kind == ast.LitStruct {
			binary.LittleEndian.PutUint32(b[:4], uint32(fl.encodeAggregate(lit, cp)))
			copy(cp.bytes[rel:], b[:4])
			return
		}
		put(b[:])
	}
}

// pushLiteral pushes a literal value's runtime representation onto the
// stack: scalars as immediates, strings via the shared string pool,
// lists/structs via the shared aggregate constant pool.
func (fl *funcLower) pushLiteral(lit *ast.Literal) {
	switch lit.Kind {
	case ast.LitInt:
		fl.a.i64Const(lit.Int)
	case ast.LitFloat:
		fl.a.f64Const(lit.Float)
	case ast.LitBool:
		if lit.Bool {
			fl.a.i32Const(1)
		} else {
			fl.a.i32Const(0)
		}
	case ast.LitNone:
		fl.a.i64Const(0)
	case ast.LitString:
		fl.a.i64Const(int64(fl.sp.lookup(lit.Str)))
	case ast.LitList:
		fl.a.i64Const(int64(fl.encodeAggregate(lit, fl.cp)))
	case ast.LitStruct:
		fl.a.i32Const(int32(uint32(fl.encodeAggregate(lit, fl.cp))))
	default:
		fl.a.i64Const(0)
	}
}
