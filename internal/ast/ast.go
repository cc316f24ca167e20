// Package ast defines the canonical Covenant AST: snippets, their
// sections, and the SSA step sequence that makes up a body (spec.md §3).
package ast

import "covenant/internal/source"

// SnippetKind enumerates the kinds of top-level declaration (spec.md §3.1).
type SnippetKind string

const (
	KindFn       SnippetKind = "fn"
	KindStruct   SnippetKind = "struct"
	KindEnum     SnippetKind = "enum"
	KindModule   SnippetKind = "module"
	KindDatabase SnippetKind = "database"
	KindExtern   SnippetKind = "extern"
	KindTest     SnippetKind = "test"
	KindData     SnippetKind = "data"
)

// SectionKind enumerates the sections a snippet may carry, always in
// this canonical order (spec.md §3.1 and §4.1 E-PARSE-ORDER).
type SectionKind string

const (
	SectionEffects   SectionKind = "effects"
	SectionRequires  SectionKind = "requires"
	SectionTypes     SectionKind = "types"
	SectionTools     SectionKind = "tools"
	SectionSignature SectionKind = "signature"
	SectionBody      SectionKind = "body"
	SectionTests     SectionKind = "tests"
	SectionMetadata  SectionKind = "metadata"
	SectionRelations SectionKind = "relations"
	SectionContent   SectionKind = "content"
	SectionSchema    SectionKind = "schema"
)

// CanonicalOrder is the required section ordering within any snippet.
// A parsed snippet presenting sections out of this relative order is
// E-PARSE-ORDER (spec.md §4.1).
var CanonicalOrder = []SectionKind{
	SectionEffects, SectionRequires, SectionTypes, SectionTools,
	SectionSignature, SectionBody, SectionTests, SectionMetadata,
	SectionRelations, SectionContent, SectionSchema,
}

// OrderIndex returns the canonical position of a section kind, or -1.
func OrderIndex(k SectionKind) int {
	for i, s := range CanonicalOrder {
		if s == k {
			return i
		}
	}
	return -1
}

// AllowedSections lists which sections a SnippetKind may carry. The
// appearance of a disallowed section is a parse error (spec.md §3.1).
var AllowedSections = map[SnippetKind]map[SectionKind]bool{
	KindFn:       set(SectionEffects, SectionRequires, SectionTypes, SectionTools, SectionSignature, SectionBody, SectionTests, SectionMetadata),
	KindStruct:   set(SectionTypes, SectionMetadata),
	KindEnum:     set(SectionTypes, SectionMetadata),
	KindModule:   set(SectionMetadata),
	KindDatabase: set(SectionSchema, SectionMetadata),
	KindExtern:   set(SectionEffects, SectionSignature, SectionMetadata),
	KindTest:     set(SectionEffects, SectionRequires, SectionBody, SectionMetadata),
	KindData:     set(SectionContent, SectionRelations, SectionMetadata),
}

func set(kinds ...SectionKind) map[SectionKind]bool {
	m := make(map[SectionKind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// Value is a value reference site: exactly one of its fields is set
// (spec.md §3.2 "Value sources"). Implementations must collapse `var`
// and `from` into the same notion of binding lookup (spec.md §9).
type Value struct {
	Span source.Span

	VarName  string // var="…" / from="…" — binding lookup
	IsVar    bool
	Lit      *Literal // lit=…
	Field    string   // field="…"
	FieldOf  string   // of="…"
	IsField  bool
}

// LiteralKind enumerates recognised literal forms (spec.md §4.1).
type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitFloat
	LitString
	LitBool
	LitNone
	LitList
	LitStruct
)

// Literal is a parsed literal value.
type Literal struct {
	Span   source.Span
	Kind   LiteralKind
	Int    int64
	Float  float64
	Str    string
	Bool   bool
	List   []*Literal
	Struct []StructField
}

// StructField is one `"k": v` entry of a struct literal.
type StructField struct {
	Name  string
	Value *Literal
}

// Step is a single SSA instruction within a body (spec.md §3.2).
type StepKind string

const (
	StepCompute     StepKind = "compute"
	StepCall        StepKind = "call"
	StepBind        StepKind = "bind"
	StepReturn      StepKind = "return"
	StepIf          StepKind = "if"
	StepMatch       StepKind = "match"
	StepFor         StepKind = "for"
	StepQuery       StepKind = "query"
	StepInsert      StepKind = "insert"
	StepUpdate      StepKind = "update"
	StepDelete      StepKind = "delete"
	StepTransaction StepKind = "transaction"
	StepTraverse    StepKind = "traverse"
	StepParallel    StepKind = "parallel"
	StepRace        StepKind = "race"
)

// Step is one element of a body, in program order (spec.md §3.2).
type Step struct {
	Span source.Span
	ID   string // e.g. "s1", "s2a"; unique within the enclosing snippet
	Kind StepKind

	// Output is the binding this step assigns. "_" means discard. Mut
	// indicates the `mut` modifier permitting re-assignment.
	Output string
	Mut    bool

	// Attrs holds the raw attribute set for kinds without a dedicated
	// shape below (compute operator name, call target, query clauses, …).
	Attrs map[string]string
	// Values holds ordered value-source arguments (e.g. compute operands,
	// call arguments), keyed by attribute name where relevant.
	Values []Value

	// Branches holds the sub-body steps introduced by control-flow kinds
	// (if/match/for/parallel/race). Their bindings are scoped to the
	// sub-body, but step IDs remain unique across the whole snippet
	// (spec.md §3.2).
	Branches []Branch
}

// Branch is one labelled sub-body of a control-flow step: the "then"/
// "else" arm of an if, a match case, a loop body, or one arm of a
// parallel/race block.
type Branch struct {
	Label string // e.g. "then", "else", a match case tag, or a parallel arm name
	Steps []*Step

	// Timeout/OnTimeout/OnError apply to parallel/race blocks (spec.md §5).
	Timeout   string
	OnTimeout string
	OnError   string
}

// TypeExpr is a parsed, not-yet-resolved type expression (spec.md §3.4).
type TypeExprKind string

const (
	TypeName       TypeExprKind = "name"       // primitive or nominal struct/enum
	TypeOptional   TypeExprKind = "optional"   // T?
	TypeCollection TypeExprKind = "collection" // List<T>
	TypeMap        TypeExprKind = "map"        // Map<K,V>
	TypeUnion      TypeExprKind = "union"      // T1 | T2 | …
	TypeTuple      TypeExprKind = "tuple"
	TypeFunc       TypeExprKind = "function"
)

// TypeExpr mirrors the surface type grammar; internal/types resolves it
// into internal/ir.Type.
type TypeExpr struct {
	Span     source.Span
	Kind     TypeExprKind
	Name     string
	Elem     *TypeExpr   // optional/collection element
	Key      *TypeExpr   // map key
	Members  []*TypeExpr // union members, tuple elements
	Params   []*TypeExpr // function parameters
	Result   *TypeExpr   // function result
}

// Field is one struct field or enum variant field declaration.
type Field struct {
	Name string
	Type *TypeExpr
}

// Variant is one enum case.
type Variant struct {
	Name   string
	Fields []Field
}

// Requirement is a `requires` entry (spec.md §3.6).
type Requirement struct {
	Span     source.Span
	ID       string
	Text     string
	Priority string // critical|high|medium|low
	Status   string
}

// TestCase is a `tests` entry (spec.md §3.6).
type TestCase struct {
	Span   source.Span
	ID     string
	Kind   string // unit|property|integration
	Covers string // R-### or ""
	Steps  []*Step
}

// Relation is one `relations` entry of a data snippet (spec.md §3.5).
type Relation struct {
	Span   source.Span
	Type   string
	Target string
}

// Param is one signature parameter.
type Param struct {
	Name string
	Type *TypeExpr
}

// Signature is a callable's public contract (spec.md §3.3).
type Signature struct {
	Params []Param
	Result *TypeExpr
}

// Snippet is the atomic unit of compilation (spec.md §3.1).
type Snippet struct {
	Span source.Span
	ID   string
	Kind SnippetKind

	Effects   []string
	Requires  []Requirement
	Types     []Field // struct fields, in declared order
	Variants  []Variant
	Tools     []string
	Signature *Signature
	Body      []*Step
	Tests     []TestCase
	Metadata  map[string]string
	Relations []Relation
	Content   string
	Schema    string

	// SectionOrder records the order sections actually appeared in, for
	// canonical-order diagnostics and round-trip re-serialisation
	// (spec.md §8 property 1).
	SectionOrder []SectionKind
}

// Program is a whole parsed compilation unit set (spec.md §2: "the core
// is whole-program").
type Program struct {
	Snippets []*Snippet
}
