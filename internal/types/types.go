// Package types resolves the surface AST into internal/ir's typed
// program representation: nominal registration, signature resolution,
// and per-step type inference over every fn/test body (spec.md §3.4,
// §4.4).
//
// Checking runs in three passes, the same shape as the teacher's own
// two-pass schema analysis in internal/mangle (analysis.AnalyzeOneUnit
// separates declaration collection from rule analysis): first every
// nominal declaration (struct/enum/extern/database/data/module) is
// registered so forward references resolve regardless of declaration
// order, then every signature's field/param types are resolved against
// that registry, then every function body is walked and annotated.
package types

import (
	"sort"

	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/ir"
	"covenant/internal/source"
	"covenant/internal/symgraph"
)

// Checker accumulates the resolved ir.Program while walking g.
type Checker struct {
	g     *symgraph.Graph
	diags *diag.Bag
	prog  *ir.Program
}

// Check runs all three passes and returns the resolved program.
// Diagnostics are reported into diags in discovery order per snippet;
// callers should not invoke Check again on the same Bag concurrently.
func Check(g *symgraph.Graph, diags *diag.Bag) *ir.Program {
	c := &Checker{g: g, diags: diags, prog: ir.NewProgram()}
	c.registerNominals()
	c.resolveSignatures()
	c.checkBodies()
	return c.prog
}

func (c *Checker) registerNominals() {
	for _, id := range c.g.Order {
		snip := c.g.Nodes[id].Snippet
		c.prog.Order = append(c.prog.Order, id)
		switch snip.Kind {
		case ast.KindStruct:
			c.prog.Structs[id] = &ir.StructDef{ID: id}
		case ast.KindEnum:
			c.prog.Enums[id] = &ir.EnumDef{ID: id}
		case ast.KindExtern:
			c.prog.Externs[id] = &ir.Extern{ID: id, Effects: snip.Effects}
		case ast.KindDatabase:
			c.prog.Databases[id] = &ir.Database{ID: id, Schema: snip.Schema}
		case ast.KindData:
			c.prog.DataNodes[id] = &ir.DataNode{ID: id, Content: snip.Content, Relations: snip.Relations}
		case ast.KindModule:
			c.prog.Modules[id] = &ir.Module{ID: id}
		case ast.KindFn, ast.KindTest:
			c.prog.Functions[id] = &ir.Function{
				ID: id, Kind: snip.Kind, Effects: snip.Effects, Body: snip.Body, Tests: snip.Tests,
				StepTypes: map[string]*ir.Type{}, Locals: map[string]*ir.Type{},
			}
		}
	}
}

func (c *Checker) resolveSignatures() {
	for _, id := range c.g.Order {
		snip := c.g.Nodes[id].Snippet
		switch snip.Kind {
		case ast.KindStruct:
			c.prog.Structs[id].Fields = c.resolveFields(snip.Span, snip.Types)
		case ast.KindEnum:
			variants := make([]ir.Variant, len(snip.Variants))
			for i, v := range snip.Variants {
				variants[i] = ir.Variant{Name: v.Name, Fields: c.resolveFields(snip.Span, v.Fields)}
			}
			c.prog.Enums[id].Variants = variants
		case ast.KindExtern:
			ex := c.prog.Externs[id]
			if snip.Signature != nil {
				ex.Params = c.resolveParams(snip.Span, snip.Signature.Params)
				ex.Result = c.resolveOptionalTypeExpr(snip.Span, snip.Signature.Result)
			}
		case ast.KindFn, ast.KindTest:
			fn := c.prog.Functions[id]
			if snip.Signature != nil {
				fn.Params = c.resolveParams(snip.Span, snip.Signature.Params)
				fn.Result = c.resolveOptionalTypeExpr(snip.Span, snip.Signature.Result)
			}
			if fn.Result == nil {
				fn.Result = &ir.Type{Kind: ir.TNone}
			}
		}
	}
}

// resolveFields resolves a list of struct fields or enum variant fields.
// fallback is the owning snippet's span, used for diagnostics raised
// against a field whose own TypeExpr carries no span (composite type
// strings parsed from a quoted attribute do not track per-token spans).
func (c *Checker) resolveFields(fallback source.Span, fields []ast.Field) []ir.Param {
	out := make([]ir.Param, len(fields))
	for i, f := range fields {
		out[i] = ir.Param{Name: f.Name, Type: c.resolveTypeExpr(fallback, f.Type)}
	}
	return out
}

func (c *Checker) resolveParams(fallback source.Span, params []ast.Param) []ir.Param {
	out := make([]ir.Param, len(params))
	for i, p := range params {
		out[i] = ir.Param{Name: p.Name, Type: c.resolveTypeExpr(fallback, p.Type)}
	}
	return out
}

func (c *Checker) resolveOptionalTypeExpr(fallback source.Span, te *ast.TypeExpr) *ir.Type {
	if te == nil {
		return nil
	}
	return c.resolveTypeExpr(fallback, te)
}

// resolveTypeExpr resolves a surface TypeExpr into an ir.Type, reporting
// E-TYPE-UNKNOWN for a name that is neither a primitive nor a declared
// struct/enum/extern.
func (c *Checker) resolveTypeExpr(fallback source.Span, te *ast.TypeExpr) *ir.Type {
	if te == nil {
		return &ir.Type{Kind: ir.TUnknown}
	}
	span := te.Span
	if span.File == nil {
		span = fallback
	}
	switch te.Kind {
	case ast.TypeName:
		if prim, ok := ir.Primitive(te.Name); ok {
			return prim
		}
		if nom := c.prog.LookupNominal(te.Name); nom != nil {
			return nom
		}
		c.diags.Errorf(diag.FamilyType, "E-TYPE-UNKNOWN", span, "unknown type %q", te.Name)
		return &ir.Type{Kind: ir.TUnknown}
	case ast.TypeOptional:
		return ir.Optional(c.resolveTypeExpr(fallback, te.Elem))
	case ast.TypeCollection:
		return ir.List(c.resolveTypeExpr(fallback, te.Elem))
	case ast.TypeMap:
		return ir.Map(c.resolveTypeExpr(fallback, te.Key), c.resolveTypeExpr(fallback, te.Elem))
	case ast.TypeUnion:
		members := make([]*ir.Type, len(te.Members))
		for i, m := range te.Members {
			members[i] = c.resolveTypeExpr(fallback, m)
		}
		return ir.Union(members...)
	default:
		c.diags.Errorf(diag.FamilyType, "E-TYPE-UNKNOWN", span, "unsupported type expression")
		return &ir.Type{Kind: ir.TUnknown}
	}
}

// typeOfLiteral infers the type of a literal value (spec.md §3.2). List
// literals take their element type from the first element (mixed-type
// list literals are not exhaustively checked here — internal/types
// flags only the common authoring mistake of an empty list with no
// inferable element type).
func (c *Checker) typeOfLiteral(l *ast.Literal) *ir.Type {
	switch l.Kind {
	case ast.LitInt:
		return &ir.Type{Kind: ir.TInt}
	case ast.LitFloat:
		return &ir.Type{Kind: ir.TFloat}
	case ast.LitString:
		return &ir.Type{Kind: ir.TString}
	case ast.LitBool:
		return &ir.Type{Kind: ir.TBool}
	case ast.LitNone:
		return &ir.Type{Kind: ir.TNone}
	case ast.LitList:
		if len(l.List) == 0 {
			c.diags.Warnf(diag.FamilyType, "W-TYPE-EMPTY-LIST", l.Span, "empty list literal has no inferable element type")
			return &ir.Type{Kind: ir.TUnknown}
		}
		return &ir.Type{Kind: ir.TList, Elem: c.typeOfLiteral(l.List[0])}
	case ast.LitStruct:
		// Anonymous struct literals are not matched against a nominal
		// struct definition here; callers that need a nominal type attach
		// one via the enclosing step's "target"/"as" attribute instead.
		return &ir.Type{Kind: ir.TUnknown}
	default:
		return &ir.Type{Kind: ir.TUnknown}
	}
}

func dedupSorted(ss []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
