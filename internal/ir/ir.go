// Package ir defines the resolved, type-checked program representation
// that internal/types produces and internal/optimizer and internal/wasm
// consume (spec.md §3.4, §4.4, §4.6, §4.7).
//
// Bodies are kept as the already-SSA-shaped internal/ast.Step trees —
// type checking does not need a second instruction encoding, only a
// side table of resolved types alongside the AST it already validated.
// This mirrors the teacher's own preference for annotating an existing
// tree over building a parallel one (internal/mangle's ProgramInfo
// decorates ast.Clause rather than re-encoding it).
package ir

import (
	"fmt"
	"sort"
	"strings"

	"covenant/internal/ast"
)

// TypeKind classifies a resolved Type.
type TypeKind int

const (
	TInt TypeKind = iota
	TFloat
	TString
	TBool
	TNone
	TOptional
	TList
	TMap
	TStruct
	TEnum
	TExtern
	TUnion
	TUnknown // placeholder while inference is still running; never valid in final output
)

var primitiveNames = map[string]TypeKind{
	"Int": TInt, "Float": TFloat, "String": TString, "Bool": TBool, "None": TNone,
}

// Type is a fully resolved Covenant type. Struct/Enum/Extern carry their
// declaring snippet id in Name; every other kind is purely structural.
type Type struct {
	Kind    TypeKind
	Name    string
	Elem    *Type
	Key     *Type
	Members []*Type
}

func Primitive(name string) (*Type, bool) {
	k, ok := primitiveNames[name]
	if !ok {
		return nil, false
	}
	return &Type{Kind: k}, true
}

func Struct(name string) *Type  { return &Type{Kind: TStruct, Name: name} }
func Enum(name string) *Type    { return &Type{Kind: TEnum, Name: name} }
func ExternType(name string) *Type { return &Type{Kind: TExtern, Name: name} }
func Optional(elem *Type) *Type { return &Type{Kind: TOptional, Elem: elem} }
func List(elem *Type) *Type     { return &Type{Kind: TList, Elem: elem} }
func Map(key, val *Type) *Type  { return &Type{Kind: TMap, Key: key, Elem: val} }

// Union builds a canonical union type: duplicate members collapse and
// members are ordered by String() so two unions built from differently
// ordered member lists still compare Equal.
func Union(members ...*Type) *Type {
	flat := flattenUnion(members)
	sort.Slice(flat, func(i, j int) bool { return flat[i].String() < flat[j].String() })
	if len(flat) == 1 {
		return flat[0]
	}
	return &Type{Kind: TUnion, Members: flat}
}

func flattenUnion(members []*Type) []*Type {
	seen := map[string]*Type{}
	var out []*Type
	var add func(t *Type)
	add = func(t *Type) {
		if t.Kind == TUnion {
			for _, m := range t.Members {
				add(m)
			}
			return
		}
		key := t.String()
		if _, ok := seen[key]; !ok {
			seen[key] = t
			out = append(out, t)
		}
	}
	for _, m := range members {
		add(m)
	}
	return out
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case TInt:
		return "Int"
	case TFloat:
		return "Float"
	case TString:
		return "String"
	case TBool:
		return "Bool"
	case TNone:
		return "None"
	case TOptional:
		return t.Elem.String() + "?"
	case TList:
		return "List<" + t.Elem.String() + ">"
	case TMap:
		return "Map<" + t.Key.String() + "," + t.Elem.String() + ">"
	case TStruct, TEnum, TExtern:
		return t.Name
	case TUnion:
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			parts[i] = m.String()
		}
		return strings.Join(parts, " | ")
	default:
		return "?"
	}
}

// Equal reports structural equality (nominal for struct/enum/extern,
// by declared name).
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// AssignableTo reports whether a value of type from may be used where a
// value of type to is expected (spec.md §4.4 "union compatibility"):
// identical types are always assignable; a non-union type is assignable
// to a union that contains it; a union is assignable to another union
// that is a superset of its members; nothing is assignable to None
// except None itself, and every type is assignable to its own optional
// wrapper plus None.
func AssignableTo(from, to *Type) bool {
	if Equal(from, to) {
		return true
	}
	if to.Kind == TOptional {
		if from.Kind == TNone {
			return true
		}
		return AssignableTo(from, to.Elem)
	}
	if to.Kind == TUnion {
		if from.Kind == TUnion {
			for _, fm := range from.Members {
				if !containsMember(to.Members, fm) {
					return false
				}
			}
			return true
		}
		return containsMember(to.Members, from)
	}
	return false
}

func containsMember(members []*Type, t *Type) bool {
	for _, m := range members {
		if Equal(m, t) {
			return true
		}
	}
	return false
}

// Param is a named, typed parameter or struct/variant field.
type Param struct {
	Name string
	Type *Type
}

// StructDef is a resolved `struct` snippet.
type StructDef struct {
	ID     string
	Fields []Param
}

// Variant is one resolved enum case.
type Variant struct {
	Name   string
	Fields []Param
}

// EnumDef is a resolved `enum` snippet.
type EnumDef struct {
	ID       string
	Variants []Variant
}

// Function is a resolved `fn` or `test` snippet, ready for optimization
// and emission. Body is the original step tree; StepTypes gives the
// resolved output type of every step reachable from Body (keyed by
// Step.ID, falling back to the Step.Output binding name when ID is
// empty), including steps nested inside if/match/for/parallel/race
// branches.
type Function struct {
	ID        string
	Kind      ast.SnippetKind // KindFn or KindTest
	Params    []Param
	Result    *Type
	Effects   []string
	Body      []*ast.Step
	Tests     []ast.TestCase
	StepTypes map[string]*Type
	Locals    map[string]*Type
}

// Database is a resolved `database` snippet.
type Database struct {
	ID     string
	Schema string
}

// Extern is a resolved `extern` snippet: an external capability with a
// signature and the effects invoking it requires the caller to hold.
type Extern struct {
	ID      string
	Params  []Param
	Result  *Type
	Effects []string
}

// DataNode is a resolved `data` snippet.
type DataNode struct {
	ID        string
	Content   string
	Relations []ast.Relation
}

// Module is a resolved `module` snippet: purely a namespace/grouping
// marker, carrying no executable content of its own (spec.md §3.1).
type Module struct {
	ID string
}

// Program is the whole resolved compilation unit, ready for the
// optimizer and the WASM emitter.
type Program struct {
	Structs   map[string]*StructDef
	Enums     map[string]*EnumDef
	Functions map[string]*Function
	Databases map[string]*Database
	Externs   map[string]*Extern
	DataNodes map[string]*DataNode
	Modules   map[string]*Module

	// Order preserves original source declaration order, for
	// deterministic emission (spec.md §8 property: "emission is
	// deterministic given identical input").
	Order []string
}

func NewProgram() *Program {
	return &Program{
		Structs: map[string]*StructDef{}, Enums: map[string]*EnumDef{},
		Functions: map[string]*Function{}, Databases: map[string]*Database{},
		Externs: map[string]*Extern{}, DataNodes: map[string]*DataNode{},
		Modules: map[string]*Module{},
	}
}

// Lookup returns the resolved type a snippet id denotes when used as a
// value type (a struct or enum name), or nil if id does not name one.
func (p *Program) LookupNominal(id string) *Type {
	if _, ok := p.Structs[id]; ok {
		return Struct(id)
	}
	if _, ok := p.Enums[id]; ok {
		return Enum(id)
	}
	if _, ok := p.Externs[id]; ok {
		return ExternType(id)
	}
	return nil
}

// Signature describes a callable's params/result regardless of whether
// it is a Function or an Extern, for call-site checking.
type Signature struct {
	Params []Param
	Result *Type
}

func (p *Program) SignatureOf(id string) (Signature, bool) {
	if fn, ok := p.Functions[id]; ok {
		return Signature{Params: fn.Params, Result: fn.Result}, true
	}
	if ex, ok := p.Externs[id]; ok {
		return Signature{Params: ex.Params, Result: ex.Result}, true
	}
	return Signature{}, false
}

func (t *Type) GoString() string { return fmt.Sprintf("ir.Type(%s)", t.String()) }
