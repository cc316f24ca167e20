package wasm

import (
	"encoding/binary"
	"math"
)

// ValType is a WASM value type byte.
type ValType byte

const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// sectionID identifies a top-level module section.
type sectionID byte

const (
	secType     sectionID = 1
	secImport   sectionID = 2
	secFunction sectionID = 3
	secMemory   sectionID = 5
	secGlobal   sectionID = 6
	secExport   sectionID = 7
	secCode     sectionID = 10
	secData     sectionID = 11
)

// Opcode bytes used by lower.go/gai.go. Named after the WASM spec's own
// mnemonics so the emitter code reads like the instruction list it
// produces.
const (
	opUnreachable = 0x00
	opNop         = 0x01
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opElse        = 0x05
	opEnd         = 0x0B
	opBr          = 0x0C
	opBrIf        = 0x0D
	opBrTable     = 0x0E
	opReturn      = 0x0F
	opCall        = 0x10
	opDrop        = 0x1A
	opSelect      = 0x1B

	opLocalGet  = 0x20
	opLocalSet  = 0x21
	opLocalTee  = 0x22
	opGlobalGet = 0x23
	opGlobalSet = 0x24

	opI32Load    = 0x28
	opI64Load    = 0x29
	opF64Load    = 0x2B
	opI32Load8U  = 0x2D
	opI32Store   = 0x36
	opI64Store   = 0x37
	opF64Store   = 0x39
	opI32Store8  = 0x3A
	opI32Const   = 0x41
	opI64Const   = 0x42
	opF32Const   = 0x43
	opF64Const   = 0x44

	opI32Eqz  = 0x45
	opI32Eq   = 0x46
	opI32Ne   = 0x47
	opI32LtS  = 0x48
	opI32LtU  = 0x49
	opI32GtS  = 0x4A
	opI32LeS  = 0x4C
	opI32GeS  = 0x4E

	opI64Eqz = 0x50
	opI64Eq  = 0x51
	opI64Ne  = 0x52
	opI64LtS = 0x53
	opI64GtS = 0x55
	opI64LeS = 0x57
	opI64GeS = 0x59

	opI32Add = 0x6A
	opI32Sub = 0x6B
	opI32Mul = 0x6C
	opI32DivS = 0x6D
	opI32RemS = 0x6F
	opI32And = 0x71
	opI32Or  = 0x72
	opI32Shl = 0x74
	opI32ShrU = 0x76

	opI64Add  = 0x7C
	opI64Sub  = 0x7D
	opI64Mul  = 0x7E
	opI64DivS = 0x7F
	opI64RemS = 0x81
	opI64And  = 0x83
	opI64Or   = 0x84
	opI64Shl = 0x86
	opI64ShrU = 0x88

	opF64Eq  = 0x61
	opF64Ne  = 0x62
	opF64Lt  = 0x63
	opF64Gt  = 0x64
	opF64Le  = 0x65
	opF64Ge  = 0x66

	opF64Add = 0xA0
	opF64Sub = 0xA1
	opF64Mul = 0xA2
	opF64Div = 0xA3

	opI32WrapI64     = 0xA7
	opI64ExtendI32U  = 0xAD
	opI64ExtendI32S  = 0xAC
	opF64ConvertI64S = 0xB9
	opI64ReinterpretF64 = 0xBD
	opF64ReinterpretI64 = 0xBF
)

// blockType encodes an empty (no result) or single-value block/if/loop
// signature — the only two shapes this emitter needs.
const blockTypeEmpty = 0x40

func blockTypeOf(v ValType) byte { return byte(v) }

// asm accumulates a function body's instruction bytes plus its locals
// declaration, in the shape the code section expects.
type asm struct {
	locals []ValType // additional locals beyond the function's own params
	code   []byte
}

func (a *asm) raw(b ...byte) *asm { a.code = append(a.code, b...); return a }

func (a *asm) i32Const(v int32) *asm {
	a.code = append(a.code, opI32Const)
	a.code = putSleb128(a.code, int64(v))
	return a
}

func (a *asm) i64Const(v int64) *asm {
	a.code = append(a.code, opI64Const)
	a.code = putSleb128(a.code, v)
	return a
}

func (a *asm) f64Const(v float64) *asm {
	a.code = append(a.code, opF64Const)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	a.code = append(a.code, tmp[:]...)
	return a
}

func (a *asm) localGet(idx uint32) *asm {
	a.code = append(a.code, opLocalGet)
	a.code = putUleb128(a.code, uint64(idx))
	return a
}

func (a *asm) localSet(idx uint32) *asm {
	a.code = append(a.code, opLocalSet)
	a.code = putUleb128(a.code, uint64(idx))
	return a
}

func (a *asm) localTee(idx uint32) *asm {
	a.code = append(a.code, opLocalTee)
	a.code = putUleb128(a.code, uint64(idx))
	return a
}

func (a *asm) globalGet(idx uint32) *asm {
	a.code = append(a.code, opGlobalGet)
	a.code = putUleb128(a.code, uint64(idx))
	return a
}

func (a *asm) globalSet(idx uint32) *asm {
	a.code = append(a.code, opGlobalSet)
	a.code = putUleb128(a.code, uint64(idx))
	return a
}

func (a *asm) call(fnIdx uint32) *asm {
	a.code = append(a.code, opCall)
	a.code = putUleb128(a.code, uint64(fnIdx))
	return a
}

// memArg appends the (align, offset) pair every load/store carries.
func (a *asm) memArg(align uint32, offset uint32) *asm {
	a.code = putUleb128(a.code, uint64(align))
	a.code = putUleb128(a.code, uint64(offset))
	return a
}

func (a *asm) i32Load(offset uint32) *asm  { a.raw(opI32Load); return a.memArg(2, offset) }
func (a *asm) i64Load(offset uint32) *asm  { a.raw(opI64Load); return a.memArg(3, offset) }
func (a *asm) i32Load8U(offset uint32) *asm { a.raw(opI32Load8U); return a.memArg(0, offset) }
func (a *asm) i32Store(offset uint32) *asm { a.raw(opI32Store); return a.memArg(2, offset) }
func (a *asm) i64Store(offset uint32) *asm { a.raw(opI64Store); return a.memArg(3, offset) }
func (a *asm) i32Store8(offset uint32) *asm { a.raw(opI32Store8); return a.memArg(0, offset) }
func (a *asm) f64Load(offset uint32) *asm  { a.raw(opF64Load); return a.memArg(3, offset) }
func (a *asm) f64Store(offset uint32) *asm { a.raw(opF64Store); return a.memArg(3, offset) }

func (a *asm) block() *asm   { return a.raw(opBlock, blockTypeEmpty) }
func (a *asm) blockT(v ValType) *asm { return a.raw(opBlock, blockTypeOf(v)) }
func (a *asm) loop() *asm    { return a.raw(opLoop, blockTypeEmpty) }
func (a *asm) ifEmpty() *asm { return a.raw(opIf, blockTypeEmpty) }
func (a *asm) ifT(v ValType) *asm { return a.raw(opIf, blockTypeOf(v)) }
func (a *asm) els() *asm     { return a.raw(opElse) }
func (a *asm) end() *asm     { return a.raw(opEnd) }

func (a *asm) br(depth uint32) *asm {
	a.code = append(a.code, opBr)
	a.code = putUleb128(a.code, uint64(depth))
	return a
}

func (a *asm) brIf(depth uint32) *asm {
	a.code = append(a.code, opBrIf)
	a.code = putUleb128(a.code, uint64(depth))
	return a
}

// brTable encodes br_table with targets and a default label.
func (a *asm) brTable(targets []uint32, def uint32) *asm {
	a.code = append(a.code, opBrTable)
	a.code = putUleb128(a.code, uint64(len(targets)))
	for _, t := range targets {
		a.code = putUleb128(a.code, uint64(t))
	}
	a.code = putUleb128(a.code, uint64(def))
	return a
}

func (a *asm) drop() *asm       { return a.raw(opDrop) }
func (a *asm) ret() *asm        { return a.raw(opReturn) }
func (a *asm) unreachable() *asm { return a.raw(opUnreachable) }

// i32WrapFromFatPtrOffset consumes the i64 fat pointer on top of the
// stack (offset in the upper 32 bits, length in the lower 32, spec.md
// §4.7.1) and leaves the i32 offset.
func (a *asm) i32WrapFromFatPtrOffset() *asm {
	a.i64Const(32)
	a.raw(opI64ShrU)
	return a.raw(opI32WrapI64)
}

// i32WrapFromFatPtrLen consumes the i64 fat pointer on top of the stack
// and leaves the i32 length (the low 32 bits truncate directly).
func (a *asm) i32WrapFromFatPtrLen() *asm {
	return a.raw(opI32WrapI64)
}

// finish renders the function body per the code section's func shape:
// a locals-declaration vector (grouped runs of identical type) followed
// by the instruction stream and a trailing `end`, all length-prefixed.
func (a *asm) finish() []byte {
	var localsVec []byte
	groups := groupLocals(a.locals)
	localsVec = putUleb128(localsVec, uint64(len(groups)))
	for _, g := range groups {
		localsVec = putUleb128(localsVec, uint64(g.count))
		localsVec = append(localsVec, byte(g.typ))
	}
	body := append(localsVec, a.code...)
	body = append(body, opEnd)
	return prefixedVec(body)
}

type localGroup struct {
	typ   ValType
	count uint32
}

func groupLocals(locals []ValType) []localGroup {
	var groups []localGroup
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].typ == t {
			groups[len(groups)-1].count++
			continue
		}
		groups = append(groups, localGroup{typ: t, count: 1})
	}
	return groups
}

// newLocal reserves an extra local of type t, returning its index given
// the function already has paramCount parameters.
func (a *asm) newLocal(paramCount int, t ValType) uint32 {
	idx := uint32(paramCount + len(a.locals))
	a.locals = append(a.locals, t)
	return idx
}
