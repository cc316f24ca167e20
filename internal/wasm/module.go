package wasm

// funcType is a WASM function signature: params then results.
type funcType struct {
	params  []ValType
	results []ValType
}

func (ft funcType) encode() []byte {
	body := []byte{0x60} // functype tag
	body = putUleb128(body, uint64(len(ft.params)))
	for _, p := range ft.params {
		body = append(body, byte(p))
	}
	body = putUleb128(body, uint64(len(ft.results)))
	for _, r := range ft.results {
		body = append(body, byte(r))
	}
	return body
}

func (ft funcType) key() string {
	b := make([]byte, 0, len(ft.params)+len(ft.results)+1)
	for _, p := range ft.params {
		b = append(b, byte(p))
	}
	b = append(b, '|')
	for _, r := range ft.results {
		b = append(b, byte(r))
	}
	return string(b)
}

type importFunc struct {
	module string
	name   string
	typ    uint32
}

type exportKind byte

const (
	exportFunc   exportKind = 0x00
	exportMemory exportKind = 0x02
)

type export struct {
	name string
	kind exportKind
	idx  uint32
}

// module is the in-progress WASM module being assembled (spec.md §4.7,
// §6.2). Functions are added in two halves, mirroring the binary
// format's own split: declareFunc reserves a function index (and its
// type), defineFunc later supplies its body — this lets lower.go look up
// call targets (including forward references) before every body exists.
type module struct {
	types    []funcType
	typeIdx  map[string]uint32
	imports  []importFunc
	funcSigs []uint32 // one type index per defined (non-imported) function, in order
	bodies   [][]byte
	memories []uint32 // minimum page counts; this emitter always emits exactly one
	globals  []global
	exports  []export
	data     []dataSegment
}

type global struct {
	typ     ValType
	mutable bool
	initI32 int32
}

type dataSegment struct {
	offset int32
	bytes  []byte
}

func newModule() *module {
	return &module{typeIdx: map[string]uint32{}}
}

// internType returns the type-section index for ft, adding it if new.
func (m *module) internType(ft funcType) uint32 {
	k := ft.key()
	if idx, ok := m.typeIdx[k]; ok {
		return idx
	}
	idx := uint32(len(m.types))
	m.types = append(m.types, ft)
	m.typeIdx[k] = idx
	return idx
}

// addImport registers an imported function and returns its function
// index (imports occupy the low indices, before any defined function).
func (m *module) addImport(mod, name string, ft funcType) uint32 {
	idx := uint32(len(m.imports))
	m.imports = append(m.imports, importFunc{module: mod, name: name, typ: m.internType(ft)})
	return idx
}

// declareFunc reserves a function index for a not-yet-bodied function.
func (m *module) declareFunc(ft funcType) uint32 {
	m.funcSigs = append(m.funcSigs, m.internType(ft))
	m.bodies = append(m.bodies, nil)
	return uint32(len(m.imports)) + uint32(len(m.funcSigs)) - 1
}

// defineFunc supplies the body for a function index previously returned
// by declareFunc.
func (m *module) defineFunc(idx uint32, body []byte) {
	local := int(idx) - len(m.imports)
	m.bodies[local] = body
}

func (m *module) addMemory(minPages uint32) {
	m.memories = append(m.memories, minPages)
}

func (m *module) addGlobalI32(initial int32, mutable bool) uint32 {
	idx := uint32(len(m.globals))
	m.globals = append(m.globals, global{typ: ValI32, mutable: mutable, initI32: initial})
	return idx
}

func (m *module) addExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: exportFunc, idx: idx})
}

func (m *module) addExportMemory(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: exportMemory, idx: idx})
}

func (m *module) addData(offset int32, bytes []byte) {
	m.data = append(m.data, dataSegment{offset: offset, bytes: bytes})
}

// assemble serialises the module to its final binary form: the 8-byte
// preamble (magic + version) followed by each present section, in the
// fixed order the format requires.
func (m *module) assemble() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	out = append(out, m.section(secType, m.encodeTypeSection())...)
	out = append(out, m.section(secImport, m.encodeImportSection())...)
	out = append(out, m.section(secFunction, m.encodeFunctionSection())...)
	out = append(out, m.section(secMemory, m.encodeMemorySection())...)
	out = append(out, m.section(secGlobal, m.encodeGlobalSection())...)
	out = append(out, m.section(secExport, m.encodeExportSection())...)
	out = append(out, m.section(secCode, m.encodeCodeSection())...)
	out = append(out, m.section(secData, m.encodeDataSection())...)
	return out
}

func (m *module) section(id sectionID, body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	out := []byte{byte(id)}
	return append(out, prefixedVec(body)...)
}

func (m *module) encodeTypeSection() []byte {
	if len(m.types) == 0 {
		return nil
	}
	var body []byte
	body = putUleb128(body, uint64(len(m.types)))
	for _, t := range m.types {
		body = append(body, t.encode()...)
	}
	return body
}

func (m *module) encodeImportSection() []byte {
	if len(m.imports) == 0 {
		return nil
	}
	var body []byte
	body = putUleb128(body, uint64(len(m.imports)))
	for _, im := range m.imports {
		body = append(body, encodeName(im.module)...)
		body = append(body, encodeName(im.name)...)
		body = append(body, 0x00) // import kind: function
		body = putUleb128(body, uint64(im.typ))
	}
	return body
}

func (m *module) encodeFunctionSection() []byte {
	if len(m.funcSigs) == 0 {
		return nil
	}
	var body []byte
	body = putUleb128(body, uint64(len(m.funcSigs)))
	for _, t := range m.funcSigs {
		body = putUleb128(body, uint64(t))
	}
	return body
}

func (m *module) encodeMemorySection() []byte {
	if len(m.memories) == 0 {
		return nil
	}
	var body []byte
	body = putUleb128(body, uint64(len(m.memories)))
	for _, min := range m.memories {
		body = append(body, 0x00) // limits: min only, no max
		body = putUleb128(body, uint64(min))
	}
	return body
}

func (m *module) encodeGlobalSection() []byte {
	if len(m.globals) == 0 {
		return nil
	}
	var body []byte
	body = putUleb128(body, uint64(len(m.globals)))
	for _, g := range m.globals {
		body = append(body, byte(g.typ))
		if g.mutable {
			body = append(body, 0x01)
		} else {
			body = append(body, 0x00)
		}
		body = append(body, opI32Const)
		body = putSleb128(body, int64(g.initI32))
		body = append(body, opEnd)
	}
	return body
}

func (m *module) encodeExportSection() []byte {
	if len(m.exports) == 0 {
		return nil
	}
	var body []byte
	body = putUleb128(body, uint64(len(m.exports)))
	for _, e := range m.exports {
		body = append(body, encodeName(e.name)...)
		body = append(body, byte(e.kind))
		body = putUleb128(body, uint64(e.idx))
	}
	return body
}

func (m *module) encodeCodeSection() []byte {
	if len(m.bodies) == 0 {
		return nil
	}
	var body []byte
	body = putUleb128(body, uint64(len(m.bodies)))
	for _, b := range m.bodies {
		if b == nil {
			// A declared but never-defined function is an emitter bug, not a
			// user error; emit a trivial unreachable body rather than panic,
			// so a caller mistake surfaces as a broken module, not a crash.
			b = (&asm{}).unreachable().finish()
		}
		body = append(body, b...)
	}
	return body
}

func (m *module) encodeDataSection() []byte {
	if len(m.data) == 0 {
		return nil
	}
	var body []byte
	body = putUleb128(body, uint64(len(m.data)))
	for _, d := range m.data {
		body = append(body, 0x00) // active segment, memory index 0
		body = append(body, opI32Const)
		body = putSleb128(body, int64(d.offset))
		body = append(body, opEnd)
		body = append(body, prefixedVec(d.bytes)...)
	}
	return body
}

func encodeName(s string) []byte {
	return prefixedVec([]byte(s))
}
