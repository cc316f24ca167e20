package wasm

// gaiFuncs holds the function indices of the fixed Graph Access
// Interface export set (spec.md §4.7.3) plus the two internal helpers
// (string compare / substring test) its bodies call.
type gaiFuncs struct {
	alloc              uint32
	nodeCount          uint32
	getNodeID          uint32
	getNodeKind        uint32
	getNodeContent     uint32
	getOutgoingCount   uint32
	getOutgoingRel     uint32
	getIncomingCount   uint32
	getIncomingRel     uint32
	findByID           uint32
	contentContains    uint32
	getRelTypeName     uint32
	getSymbolMetadata  uint32
	strcmp             uint32
	strfind            uint32
}

// heapPtrGlobalName names the mutable global cov_alloc bumps (spec.md §4.7.1
// "Allocation uses a bump allocator").
const heapPtrGlobalName = "__cov_heap_ptr"

// buildGAI declares and defines every GAI export (spec.md §4.7.3, §6.2)
// against the data graph dg and the symbol-graph JSON's fat pointer.
func buildGAI(m *module, dg *dataGraph, heapPtrGlobal uint32, symbolJSONPtr uint64) *gaiFuncs {
	g := &gaiFuncs{}

	g.strcmp = m.declareFunc(funcType{params: []ValType{ValI32, ValI32, ValI32, ValI32}, results: []ValType{ValI32}})
	m.defineFunc(g.strcmp, genStrcmp())

	g.strfind = m.declareFunc(funcType{params: []ValType{ValI32, ValI32, ValI32, ValI32}, results: []ValType{ValI32}})
	m.defineFunc(g.strfind, genStrfind(g.strcmp))

	g.alloc = m.declareFunc(funcType{params: []ValType{ValI32}, results: []ValType{ValI32}})
	m.defineFunc(g.alloc, genAlloc(heapPtrGlobal))

	g.nodeCount = m.declareFunc(funcType{results: []ValType{ValI32}})
	m.defineFunc(g.nodeCount, (&asm{}).i32Const(int32(dg.NodeCount)).finish())

	g.getNodeID = m.declareFunc(funcType{params: []ValType{ValI32}, results: []ValType{ValI64}})
	m.defineFunc(g.getNodeID, genIndexedI64Load(dg.NodeIDTableOffset))

	g.getNodeKind = m.declareFunc(funcType{params: []ValType{ValI32}, results: []ValType{ValI64}})
	m.defineFunc(g.getNodeKind, genIndexedI64Load(dg.NodeKindTableOffset))

	g.getNodeContent = m.declareFunc(funcType{params: []ValType{ValI32}, results: []ValType{ValI64}})
	m.defineFunc(g.getNodeContent, genIndexedI64Load(dg.NodeContentTableOffset))

	g.getOutgoingCount = m.declareFunc(funcType{params: []ValType{ValI32}, results: []ValType{ValI32}})
	m.defineFunc(g.getOutgoingCount, genAdjCount(dg.AdjIndexOffset, 4))

	g.getIncomingCount = m.declareFunc(funcType{params: []ValType{ValI32}, results: []ValType{ValI32}})
	m.defineFunc(g.getIncomingCount, genAdjCount(dg.AdjIndexOffset, 12))

	g.getOutgoingRel = m.declareFunc(funcType{params: []ValType{ValI32, ValI32}, results: []ValType{ValI64}})
	m.defineFunc(g.getOutgoingRel, genRel(dg.AdjIndexOffset, 0, dg.OutgoingTableOffset))

	g.getIncomingRel = m.declareFunc(funcType{params: []ValType{ValI32, ValI32}, results: []ValType{ValI64}})
	m.defineFunc(g.getIncomingRel, genRel(dg.AdjIndexOffset, 8, dg.IncomingTableOffset))

	g.findByID = m.declareFunc(funcType{params: []ValType{ValI32, ValI32}, results: []ValType{ValI32}})
	m.defineFunc(g.findByID, genFindByID(dg, g.strcmp))

	g.contentContains = m.declareFunc(funcType{params: []ValType{ValI32, ValI32, ValI32}, results: []ValType{ValI32}})
	m.defineFunc(g.contentContains, genContentContains(dg.NodeContentTableOffset, g.strfind))

	g.getRelTypeName = m.declareFunc(funcType{params: []ValType{ValI32}, results: []ValType{ValI64}})
	m.defineFunc(g.getRelTypeName, genIndexedI64Load(dg.RelTypeNameTableOffset))

	g.getSymbolMetadata = m.declareFunc(funcType{results: []ValType{ValI64}})
	m.defineFunc(g.getSymbolMetadata, (&asm{}).i64Const(int64(symbolJSONPtr)).finish())

	return g
}

// genAlloc is the bump allocator `cov_alloc(size) -> i32` (spec.md
// §4.7.1): return the current heap pointer, then advance it by size.
func genAlloc(heapPtrGlobal uint32) []byte {
	a := &asm{}
	a.globalGet(heapPtrGlobal)
	a.globalGet(heapPtrGlobal)
	a.localGet(0)
	a.raw(opI32Add)
	a.globalSet(heapPtrGlobal)
	return a.finish()
}

// genIndexedI64Load loads the i64 at tableBase + idx*8 — the shape
// shared by every dense per-node fat-pointer table (id/kind/content/
// rel-type-name lookups).
func genIndexedI64Load(tableBase uint32) []byte {
	a := &asm{}
	a.localGet(0)
	a.i32Const(3) // *8 via shl
	a.raw(opI32Shl)
	a.i32Const(int32(tableBase))
	a.raw(opI32Add)
	a.i64Load(0)
	return a.finish()
}

// genAdjCount reads the count field (outCount at +4 or inCount at +12)
// of the adjacency-index record for local 0 (spec.md §4.7.2 "adjacency
// index"; each record is 16 bytes: outStart,outCount,inStart,inCount).
func genAdjCount(adjBase uint32, fieldOffset uint32) []byte {
	a := &asm{}
	a.localGet(0)
	a.i32Const(4) // record size 16 == *16 via shl 4
	a.raw(opI32Shl)
	a.i32Const(int32(adjBase))
	a.raw(opI32Add)
	a.i32Load(fieldOffset)
	return a.finish()
}

// genRel returns the i-th outgoing/incoming relation of node (local 0),
// or -1 if i is out of range (spec.md §4.7.3 "-1 out of bounds").
// startFieldOffset selects which adjacency-record field holds the flat
// array start (0 for outgoing, 8 for incoming).
func genRel(adjBase uint32, startFieldOffset uint32, flatBase uint32) []byte {
	a := &asm{}
	nodeBase := a.newLocal(2, ValI32) // param1 = node idx, param2 = i-th relation
	flatIdx := a.newLocal(2, ValI32)

	a.localGet(0)
	a.i32Const(4)
	a.raw(opI32Shl)
	a.i32Const(int32(adjBase))
	a.raw(opI32Add)
	a.localTee(nodeBase)
	a.i32Load(startFieldOffset + 4) // count field directly follows start field
	a.localGet(1)
	a.raw(opI32LeS) // i >= count  <=>  !(i < count); use le_s on (count, i) flipped below
	a.ifT(ValI64)
	{
		a.i64Const(-1)
	}
	a.els()
	{
		a.localGet(nodeBase)
		a.i32Load(startFieldOffset)
		a.localGet(1)
		a.raw(opI32Add)
		a.localSet(flatIdx)
		a.localGet(flatIdx)
		a.i32Const(3)
		a.raw(opI32Shl)
		a.i32Const(int32(flatBase))
		a.raw(opI32Add)
		a.i64Load(0)
	}
	a.end() // if
	return a.finish()
}

// genFindByID performs a binary search for the string (local0 ptr,
// local1 len) over the id-sorted index table, calling strcmp against
// each candidate's id string (spec.md §4.7.3 "Binary search string
// against id table; -1 if absent").
func genFindByID(dg *dataGraph, strcmpFn uint32) []byte {
	a := &asm{}
	lo := a.newLocal(2, ValI32)
	hi := a.newLocal(2, ValI32)
	mid := a.newLocal(2, ValI32)
	midNodeIdx := a.newLocal(2, ValI32)
	midIDPtr := a.newLocal(2, ValI64)
	cmp := a.newLocal(2, ValI32)
	result := a.newLocal(2, ValI32)

	a.i32Const(0)
	a.localSet(lo)
	a.i32Const(int32(dg.NodeCount))
	a.localSet(hi)
	a.i32Const(-1)
	a.localSet(result)

	a.block() // outer: br 0 to exit with result set
	a.loop()  // search loop
	{
		a.localGet(lo)
		a.localGet(hi)
		a.raw(opI32GeS)
		a.brIf(1) // lo >= hi: exhausted, exit outer block

		a.localGet(lo)
		a.localGet(hi)
		a.raw(opI32Add)
		a.i32Const(1)
		a.raw(opI32ShrU)
		a.localSet(mid)

		a.localGet(mid)
		a.i32Const(2) // *4 for u32 table
		a.raw(opI32Shl)
		a.i32Const(int32(dg.SortedIDOrderOffset))
		a.raw(opI32Add)
		a.i32Load(0)
		a.localSet(midNodeIdx)

		a.localGet(midNodeIdx)
		a.i32Const(3)
		a.raw(opI32Shl)
		a.i32Const(int32(dg.NodeIDTableOffset))
		a.raw(opI32Add)
		a.i64Load(0)
		a.localSet(midIDPtr)

		// strcmp(candidatePtr, candidateLen, needlePtr, needleLen)
		a.localGet(midIDPtr)
		a.i32WrapFromFatPtrOffset()
		a.localGet(midIDPtr)
		a.i32WrapFromFatPtrLen()
		a.localGet(0)
		a.localGet(1)
		a.call(strcmpFn)
		a.localSet(cmp)

		a.localGet(cmp)
		a.raw(opI32Eqz)
		a.ifEmpty()
		{
			a.localGet(midNodeIdx)
			a.localSet(result)
			a.br(2) // exit the loop and the outer block
		}
		a.end()

		a.localGet(cmp)
		a.i32Const(0)
		a.raw(opI32LtS)
		a.ifEmpty()
		{
			a.localGet(mid)
			a.i32Const(1)
			a.raw(opI32Add)
			a.localSet(lo)
		}
		a.els()
		{
			a.localGet(mid)
			a.localSet(hi)
		}
		a.end()

		a.br(0) // continue loop
	}
	a.end() // loop
	a.end() // outer block

	a.localGet(result)
	return a.finish()
}

// genContentContains tests whether node (local0)'s content contains the
// needle (local1 ptr, local2 len), returning 0/1 (spec.md §4.7.3).
func genContentContains(contentTableBase uint32, strfindFn uint32) []byte {
	a := &asm{}
	contentPtr := a.newLocal(3, ValI64)

	a.localGet(0)
	a.i32Const(3)
	a.raw(opI32Shl)
	a.i32Const(int32(contentTableBase))
	a.raw(opI32Add)
	a.i64Load(0)
	a.localSet(contentPtr)

	a.localGet(contentPtr)
	a.i32WrapFromFatPtrOffset()
	a.localGet(contentPtr)
	a.i32WrapFromFatPtrLen()
	a.localGet(1)
	a.localGet(2)
	a.call(strfindFn)
	return a.finish()
}

// genStrcmp is a byte-wise three-way string comparison, the shared
// primitive cov_find_by_id's binary search is built on.
func genStrcmp() []byte {
	a := &asm{}
	// params: aPtr, aLen, bPtr, bLen
	i := a.newLocal(4, ValI32)
	minLen := a.newLocal(4, ValI32)
	ca := a.newLocal(4, ValI32)
	cb := a.newLocal(4, ValI32)

	a.localGet(1)
	a.localGet(3)
	a.raw(opI32LtS)
	a.ifT(ValI32)
	{
		a.localGet(1)
	}
	a.els()
	{
		a.localGet(3)
	}
	a.end()
	a.localSet(minLen)

	a.i32Const(0)
	a.localSet(i)

	a.block()
	a.loop()
	{
		a.localGet(i)
		a.localGet(minLen)
		a.raw(opI32GeS)
		a.brIf(1)

		a.localGet(0)
		a.localGet(i)
		a.raw(opI32Add)
		a.i32Load8U(0)
		a.localSet(ca)
		a.localGet(2)
		a.localGet(i)
		a.raw(opI32Add)
		a.i32Load8U(0)
		a.localSet(cb)

		a.localGet(ca)
		a.localGet(cb)
		a.raw(opI32Ne)
		a.ifEmpty()
		{
			a.localGet(ca)
			a.localGet(cb)
			a.raw(opI32LtS)
			a.ifT(ValI32)
			{
				a.i32Const(-1)
			}
			a.els()
			{
				a.i32Const(1)
			}
			a.end()
			a.ret()
		}
		a.end()

		a.localGet(i)
		a.i32Const(1)
		a.raw(opI32Add)
		a.localSet(i)
		a.br(0)
	}
	a.end()
	a.end()

	a.localGet(1)
	a.localGet(3)
	a.raw(opI32Sub)
	return a.finish()
}

// genStrfind is a naive O(n*m) substring search over raw byte ranges,
// calling strcmp's prefix-compare equivalent inline rather than via a
// call, since it needs a bounded-length compare strcmp doesn't offer.
func genStrfind(_ uint32) []byte {
	a := &asm{}
	// params: hayPtr, hayLen, needlePtr, needleLen
	i := a.newLocal(4, ValI32)
	j := a.newLocal(4, ValI32)
	limit := a.newLocal(4, ValI32)

	// empty needle always matches; `return` inside the arm makes the
	// block's own (empty) type trivially satisfied on the other path.
	a.localGet(3)
	a.raw(opI32Eqz)
	a.ifEmpty()
	{
		a.i32Const(1)
		a.ret()
	}
	a.end()

	a.localGet(1)
	a.localGet(3)
	a.raw(opI32Sub)
	a.localSet(limit)
	a.i32Const(0)
	a.localSet(i)

	a.block() // checkDone: reached when the outer loop runs out of room
	a.loop()  // outer: one iteration per candidate start index i
	{
		a.localGet(i)
		a.localGet(limit)
		a.raw(opI32GtS)
		a.brIf(1) // i > limit: no room left for a full match

		a.i32Const(0)
		a.localSet(j)

		a.block() // mismatch: falls through to i++ / continue outer
		a.loop()  // inner: one iteration per needle byte
		{
			a.localGet(j)
			a.localGet(3)
			a.raw(opI32GeS)
			a.ifEmpty()
			{
				// matched every needle byte against hay[i..i+needleLen)
				a.i32Const(1)
				a.ret()
			}
			a.end()

			a.localGet(0)
			a.localGet(i)
			a.raw(opI32Add)
			a.localGet(j)
			a.raw(opI32Add)
			a.i32Load8U(0)
			a.localGet(2)
			a.localGet(j)
			a.raw(opI32Add)
			a.i32Load8U(0)
			a.raw(opI32Ne)
			a.brIf(1) // mismatch: exit to "mismatch" block, i.e. advance i

			a.localGet(j)
			a.i32Const(1)
			a.raw(opI32Add)
			a.localSet(j)
			a.br(0) // continue inner
		}
		a.end() // inner loop
		a.end() // mismatch block

		a.localGet(i)
		a.i32Const(1)
		a.raw(opI32Add)
		a.localSet(i)
		a.br(0) // continue outer
	}
	a.end() // outer loop
	a.end() // checkDone block

	a.i32Const(0)
	return a.finish()
}
