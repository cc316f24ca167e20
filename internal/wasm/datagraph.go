package wasm

import (
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"covenant/internal/diag"
	"covenant/internal/ir"
	"covenant/internal/source"
	"covenant/internal/symgraph"
)

// maxRelationTypes is the packed encoding's capacity (spec.md §9 Open
// Question, resolved in SPEC_FULL.md §4: 8-bit relation-type index).
const maxRelationTypes = 256

// dataGraph is the fully assembled, relocatable-by-base-offset content
// of the embedded data-graph region (spec.md §4.7.2). Blob is placed as
// a single data segment; every pointer baked into it already assumes
// Base is added to every local offset, so Build must be called with the
// final base address known (the string pool always starts at Base).
type dataGraph struct {
	Blob         []byte
	NodeCount    int
	RelTypeNames []string
	// NodeIDTableOffset etc. are offsets (relative to Base) of each dense
	// table, recorded so gai.go can address them as linear-memory
	// constants once Base is added.
	NodeIDTableOffset      uint32
	NodeKindTableOffset    uint32
	NodeContentTableOffset uint32
	NodeNoteTableOffset    uint32
	OutgoingTableOffset    uint32
	OutgoingTableLen       uint32 // edge count
	IncomingTableOffset    uint32
	IncomingTableLen       uint32
	AdjIndexOffset         uint32
	RelTypeNameTableOffset uint32
	SortedIDOrderOffset    uint32 // []u32 node indices, sorted by id string
}

type edge struct {
	src, dst uint32
	relType  uint8
}

// buildDataGraph assembles the data-graph blob described in spec.md
// §4.7.2, relative to the eventual base address `base` in linear memory.
// Nodes are every symbol-graph node (so project-query and GAI lookups
// can address any snippet, not only `data` snippets); content is
// populated only for nodes backed by an ir.DataNode, matching the
// surface grammar where only `data` snippets carry a `content` section.
// "notes" are reserved by the layout (spec.md §4.7.2 lists a note table)
// but nothing in spec.md's DataNode type (§3.5) carries a per-node
// annotation, so every note cell is the empty string in this core.
func buildDataGraph(g *symgraph.Graph, prog *ir.Program, base uint32, diags *diag.Bag) *dataGraph {
	dg := &dataGraph{NodeCount: len(g.Order)}

	var pool []byte
	intern := func(s string) (offset, length uint32) {
		offset = base + uint32(len(pool))
		pool = append(pool, s...)
		return offset, uint32(len(s))
	}

	idPtr := make([]uint64, len(g.Order))
	kindPtr := make([]uint64, len(g.Order))
	contentPtr := make([]uint64, len(g.Order))
	notePtr := make([]uint64, len(g.Order))
	indexOf := make(map[string]uint32, len(g.Order))

	for i, id := range g.Order {
		indexOf[id] = uint32(i)
		n := g.Nodes[id]
		off, l := intern(id)
		idPtr[i] = fatPtr(off, l)
		koff, kl := intern(string(n.Kind))
		kindPtr[i] = fatPtr(koff, kl)
		content := ""
		if dn, ok := prog.DataNodes[id]; ok {
			content = dn.Content
		}
		coff, cl := intern(content)
		contentPtr[i] = fatPtr(coff, cl)
		noff, nl := intern("")
		notePtr[i] = fatPtr(noff, nl)
	}

	relTypeIdx := map[string]uint8{}
	var relTypeNames []string
	internRelType := func(name string) uint8 {
		if idx, ok := relTypeIdx[name]; ok {
			return idx
		}
		if len(relTypeNames) >= maxRelationTypes {
			diags.Errorf(diag.FamilyEmit, "E-EMIT-RELTYPE-OVERFLOW", source.Span{}, "module declares more than %d distinct relation types; the packed GAI encoding has an 8-bit relation-type index", maxRelationTypes)
			return uint8(len(relTypeNames) - 1)
		}
		idx := uint8(len(relTypeNames))
		relTypeNames = append(relTypeNames, name)
		relTypeIdx[name] = idx
		return idx
	}

	// Duplicate (src, dst) relation declarations (a snippet naming the
	// same target twice, possibly under different relation types) would
	// otherwise bloat the outgoing/incoming GAI tables with redundant
	// entries; seen is a compact src*n+dst membership set checked before
	// each edge is appended, one bitset rather than a map per source node.
	seen := bitset.New(uint(len(g.Order)) * uint(len(g.Order)))
	var edges []edge
	for i, id := range g.Order {
		if dn, ok := prog.DataNodes[id]; ok {
			for _, rel := range dn.Relations {
				tgt, ok := indexOf[rel.Target]
				if !ok {
					continue // unresolved relation target; internal/symgraph already tracks this as a non-fatal edge
				}
				key := uint(i)*uint(len(g.Order)) + uint(tgt)
				if seen.Test(key) {
					continue
				}
				seen.Set(key)
				edges = append(edges, edge{src: uint32(i), dst: tgt, relType: internRelType(rel.Type)})
			}
		}
	}

	outgoing := groupBy(edges, len(g.Order), func(e edge) uint32 { return e.src })
	incoming := groupBy(edges, len(g.Order), func(e edge) uint32 { return e.dst })

	// --- assemble the blob in the §4.7.2 layout order ---
	b := append([]byte(nil), pool...)

	dg.NodeIDTableOffset = base + uint32(len(b))
	for _, p := range idPtr {
		b = appendU64(b, p)
	}
	dg.NodeKindTableOffset = base + uint32(len(b))
	for _, p := range kindPtr {
		b = appendU64(b, p)
	}
	dg.NodeContentTableOffset = base + uint32(len(b))
	for _, p := range contentPtr {
		b = appendU64(b, p)
	}
	dg.NodeNoteTableOffset = base + uint32(len(b))
	for _, p := range notePtr {
		b = appendU64(b, p)
	}

	dg.OutgoingTableOffset = base + uint32(len(b))
	var outStart, outCount, inStart, inCount []uint32
	flatOffset := uint32(0)
	for _, es := range outgoing {
		outStart = append(outStart, flatOffset)
		outCount = append(outCount, uint32(len(es)))
		for _, e := range es {
			b = appendU64(b, packRel(e.dst, e.relType))
			flatOffset++
		}
	}
	dg.OutgoingTableLen = flatOffset

	dg.IncomingTableOffset = base + uint32(len(b))
	flatOffset = 0
	for _, es := range incoming {
		inStart = append(inStart, flatOffset)
		inCount = append(inCount, uint32(len(es)))
		for _, e := range es {
			b = appendU64(b, packRel(e.src, e.relType))
			flatOffset++
		}
	}
	dg.IncomingTableLen = flatOffset

	dg.AdjIndexOffset = base + uint32(len(b))
	for i := range g.Order {
		b = appendU32(b, outStart[i])
		b = appendU32(b, outCount[i])
		b = appendU32(b, inStart[i])
		b = appendU32(b, inCount[i])
	}

	// Relation-type names are only known once the edge walk completes, by
	// which point `pool` has already been copied into b, so their bytes
	// are appended directly to b rather than via the shared intern() pool.
	relNamePtr := make([]uint64, len(relTypeNames))
	for i, name := range relTypeNames {
		off := base + uint32(len(b))
		b = append(b, name...)
		relNamePtr[i] = fatPtr(off, uint32(len(name)))
	}
	relTypeTableStart := base + uint32(len(b))
	for _, p := range relNamePtr {
		b = appendU64(b, p)
	}
	dg.RelTypeNameTableOffset = relTypeTableStart

	sortedOrder := make([]uint32, len(g.Order))
	for i := range sortedOrder {
		sortedOrder[i] = uint32(i)
	}
	sort.Slice(sortedOrder, func(i, j int) bool { return g.Order[sortedOrder[i]] < g.Order[sortedOrder[j]] })
	dg.SortedIDOrderOffset = base + uint32(len(b))
	for _, idx := range sortedOrder {
		b = appendU32(b, idx)
	}

	dg.Blob = b
	dg.RelTypeNames = relTypeNames
	return dg
}

func groupBy(edges []edge, n int, key func(edge) uint32) [][]edge {
	out := make([][]edge, n)
	for _, e := range edges {
		k := key(e)
		out[k] = append(out[k], e)
	}
	return out
}

func fatPtr(offset, length uint32) uint64 {
	return (uint64(offset) << 32) | uint64(length)
}

func packRel(targetIdx uint32, relType uint8) uint64 {
	return (uint64(targetIdx) << 8) | uint64(relType)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// symbolGraphEntry is one node's serialised form: an element of the
// "nodes" array inside the symbol-graph JSON object (symbolGraphDoc).
type symbolGraphEntry struct {
	ID                   string   `json:"id"`
	Kind                 string   `json:"kind"`
	Calls                []string `json:"calls,omitempty"`
	CalledBy             []string `json:"called_by,omitempty"`
	References           []string `json:"references,omitempty"`
	ReferencedBy         []string `json:"referenced_by,omitempty"`
	UnresolvedCalls      []string `json:"unresolved_calls,omitempty"`
	UnresolvedReferences []string `json:"unresolved_references,omitempty"`
}

type symbolGraphDoc struct {
	RelTypeIndexBits int                 `json:"rel_type_index_bits"`
	Nodes            []symbolGraphEntry  `json:"nodes"`
}

// DumpSymbolGraph renders g the same way the embedded `_cov_get_symbol_metadata`
// export does, for out-of-process inspection (cmd/covenant's gai-dump) without
// requiring a full Emit.
func DumpSymbolGraph(g *symgraph.Graph) ([]byte, error) {
	return buildSymbolGraphJSON(g)
}

// buildSymbolGraphJSON renders the whole symbol graph as the JSON blob
// `_cov_get_symbol_metadata` returns a fat pointer to, carrying the
// chosen relation-type index width alongside it (SPEC_FULL.md §3/§4).
func buildSymbolGraphJSON(g *symgraph.Graph) ([]byte, error) {
	doc := symbolGraphDoc{RelTypeIndexBits: 8}
	for _, id := range g.Order {
		n := g.Nodes[id]
		doc.Nodes = append(doc.Nodes, symbolGraphEntry{
			ID: n.ID, Kind: string(n.Kind),
			Calls: n.Calls, CalledBy: n.CalledBy,
			References: n.References, ReferencedBy: n.ReferencedBy,
			UnresolvedCalls: n.UnresolvedCalls, UnresolvedReferences: n.UnresolvedReferences,
		})
	}
	return json.Marshal(doc)
}
