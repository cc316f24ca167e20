package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutUleb128(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, uleb128(tt.v))
	}
}

func TestPutSleb128(t *testing.T) {
	cases := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-129, []byte{0xff, 0x7e}},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, putSleb128(nil, tt.v))
	}
}

func TestPrefixedVec(t *testing.T) {
	body := []byte{1, 2, 3}
	got := prefixedVec(body)
	assert.Equal(t, []byte{3, 1, 2, 3}, got)
}

func TestFuncTypeEncode(t *testing.T) {
	ft := funcType{params: []ValType{ValI32, ValI32}, results: []ValType{ValI64}}
	got := ft.encode()
	assert.Equal(t, []byte{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e}, got)
}

func TestFuncTypeKeyDeduplicates(t *testing.T) {
	a := funcType{params: []ValType{ValI32}, results: []ValType{ValI32}}
	b := funcType{params: []ValType{ValI32}, results: []ValType{ValI32}}
	c := funcType{params: []ValType{ValI64}, results: []ValType{ValI32}}
	assert.Equal(t, a.key(), b.key())
	assert.NotEqual(t, a.key(), c.key())
}

func TestModuleInternTypeDeduplicates(t *testing.T) {
	m := newModule()
	ft := funcType{params: []ValType{ValI32}, results: []ValType{ValI32}}
	i1 := m.internType(ft)
	i2 := m.internType(ft)
	assert.Equal(t, i1, i2)
	assert.Len(t, m.types, 1)
}

func TestModuleDeclareThenDefineFunc(t *testing.T) {
	m := newModule()
	idx := m.declareFunc(funcType{results: []ValType{ValI32}})
	m.defineFunc(idx, []byte{0x41, 0x00, 0x0b}) // i32.const 0; end
	assert.Equal(t, []byte{0x41, 0x00, 0x0b}, m.bodies[0])
}

func TestModuleAssembleHasMagicAndVersion(t *testing.T) {
	m := newModule()
	out := m.assemble()
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, out[:8])
}

func TestModuleAssembleExportsFunction(t *testing.T) {
	m := newModule()
	idx := m.declareFunc(funcType{results: []ValType{ValI32}})
	m.defineFunc(idx, []byte{0x41, 0x2a, 0x0b}) // i32.const 42; end
	m.addExportFunc("answer", idx)

	out := m.assemble()
	assert.Greater(t, len(out), 8)

	body := m.encodeExportSection()
	assert.NotEmpty(t, body)
}

func TestModuleAssembleEmptyModuleHasNoOptionalSections(t *testing.T) {
	m := newModule()
	out := m.assemble()
	// Just the 8-byte preamble: no types/imports/functions/etc. were added.
	assert.Equal(t, 8, len(out))
}

func TestFatPtrRoundTrip(t *testing.T) {
	offset, length := uint32(1024), uint32(17)
	p := fatPtr(offset, length)
	assert.Equal(t, offset, uint32(p>>32))
	assert.Equal(t, length, uint32(p))
}

func TestPackRelRoundTrip(t *testing.T) {
	p := packRel(500, 7)
	assert.Equal(t, uint8(7), uint8(p&0xff))
	assert.Equal(t, uint32(500), uint32(p>>8))
}
