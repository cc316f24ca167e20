package types

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/ir"
)

// scope is a mutable binding table, copied (shallow) whenever a nested
// block must not leak its own bindings back into the parent (if/match
// arms, for/parallel/race branches).
type scope map[string]*ir.Type

func (s scope) clone() scope {
	out := make(scope, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (c *Checker) checkBodies() {
	for _, id := range c.g.Order {
		fn, ok := c.prog.Functions[id]
		if !ok {
			continue
		}
		sc := scope{}
		for _, p := range fn.Params {
			sc[p.Name] = p.Type
		}
		c.checkSteps(fn, fn.Body, sc, c.diags)
		for _, tc := range fn.Tests {
			c.checkSteps(fn, tc.Steps, scope{}, c.diags)
		}
	}
}

// checkSteps type-checks a flat step sequence in order, threading sc
// forward so later steps see earlier bindings. Resolved output types
// are recorded into fn.StepTypes keyed by Step.ID (falling back to the
// Output binding name when a step carries no explicit id).
func (c *Checker) checkSteps(fn *ir.Function, steps []*ast.Step, sc scope, diags *diag.Bag) {
	for _, s := range steps {
		outType := c.checkStep(fn, s, sc, diags)
		key := s.ID
		if key == "" {
			key = s.Output
		}
		if key != "" && key != "_" {
			fn.StepTypes[key] = outType
		}
		if s.Output != "" && s.Output != "_" {
			if _, exists := sc[s.Output]; exists && !s.Mut {
				diags.Errorf(diag.FamilyType, "E-TYPE-REASSIGN", s.Span, "binding %q already exists in this scope; use 'mut' to rebind", s.Output)
			}
			sc[s.Output] = outType
			fn.Locals[s.Output] = outType
		}
	}
}

var arithmeticOps = map[string]bool{"add": true, "sub": true, "mul": true, "div": true, "mod": true}
var comparisonOps = map[string]bool{"eq": true, "neq": true, "lt": true, "lte": true, "gt": true, "gte": true}
var logicalOps = map[string]bool{"and": true, "or": true, "not": true}

func (c *Checker) checkStep(fn *ir.Function, s *ast.Step, sc scope, diags *diag.Bag) *ir.Type {
	switch s.Kind {
	case ast.StepCompute:
		return c.checkCompute(s, sc, diags)
	case ast.StepBind:
		if len(s.Values) == 0 {
			diags.Errorf(diag.FamilyType, "E-TYPE-BIND-EMPTY", s.Span, "bind step has no value source")
			return &ir.Type{Kind: ir.TUnknown}
		}
		return c.checkValue(s.Values[0], sc, diags)
	case ast.StepCall:
		return c.checkCall(s, sc, diags)
	case ast.StepReturn:
		return c.checkReturn(fn, s, sc, diags)
	case ast.StepIf:
		for _, br := range s.Branches {
			c.checkSteps(fn, br.Steps, sc.clone(), diags)
		}
		return &ir.Type{Kind: ir.TNone}
	case ast.StepMatch:
		return c.checkMatch(fn, s, sc, diags)
	case ast.StepFor:
		return c.checkFor(fn, s, sc, diags)
	case ast.StepParallel, ast.StepRace:
		return c.checkConcurrent(fn, s, sc, diags)
	case ast.StepTransaction:
		for _, br := range s.Branches {
			c.checkSteps(fn, br.Steps, sc.clone(), diags)
		}
		return &ir.Type{Kind: ir.TNone}
	case ast.StepQuery, ast.StepInsert, ast.StepUpdate, ast.StepDelete, ast.StepTraverse:
		return c.checkDataStep(s, diags)
	default:
		diags.Errorf(diag.FamilyType, "E-TYPE-UNKNOWN-STEP", s.Span, "cannot type-check step kind %q", s.Kind)
		return &ir.Type{Kind: ir.TUnknown}
	}
}

func (c *Checker) checkCompute(s *ast.Step, sc scope, diags *diag.Bag) *ir.Type {
	op := s.Attrs["op"]
	var operandTypes []*ir.Type
	for _, v := range s.Values {
		operandTypes = append(operandTypes, c.checkValue(v, sc, diags))
	}
	switch {
	case arithmeticOps[op]:
		result := &ir.Type{Kind: ir.TInt}
		for _, t := range operandTypes {
			if t.Kind == ir.TFloat {
				result = &ir.Type{Kind: ir.TFloat}
			} else if t.Kind != ir.TInt && t.Kind != ir.TUnknown {
				diags.Errorf(diag.FamilyType, "E-TYPE-COMPUTE-OPERAND", s.Span, "operator %q requires numeric operands, found %s", op, t)
			}
		}
		return result
	case comparisonOps[op], logicalOps[op]:
		return &ir.Type{Kind: ir.TBool}
	case op == "concat":
		return &ir.Type{Kind: ir.TString}
	case op == "":
		diags.Errorf(diag.FamilyType, "E-TYPE-COMPUTE-OP", s.Span, "compute step missing required 'op' attribute")
		return &ir.Type{Kind: ir.TUnknown}
	default:
		diags.Errorf(diag.FamilyType, "E-TYPE-COMPUTE-OP", s.Span, "unknown compute operator %q", op)
		return &ir.Type{Kind: ir.TUnknown}
	}
}

func (c *Checker) checkCall(s *ast.Step, sc scope, diags *diag.Bag) *ir.Type {
	target := s.Attrs["target"]
	if target == "" {
		diags.Errorf(diag.FamilyType, "E-TYPE-CALL-TARGET", s.Span, "call step missing required 'target' attribute")
		return &ir.Type{Kind: ir.TUnknown}
	}
	sig, ok := c.prog.SignatureOf(target)
	if !ok {
		diags.Errorf(diag.FamilyType, "E-TYPE-CALL-UNKNOWN", s.Span, "call target %q is not a known fn or extern", target)
		return &ir.Type{Kind: ir.TUnknown}
	}
	argTypes := make([]*ir.Type, len(s.Values))
	for i, v := range s.Values {
		argTypes[i] = c.checkValue(v, sc, diags)
	}
	if len(argTypes) != len(sig.Params) {
		diags.Errorf(diag.FamilyType, "E-TYPE-CALL-ARITY", s.Span, "call to %q expects %d argument(s), found %d", target, len(sig.Params), len(argTypes))
	} else {
		for i, p := range sig.Params {
			if !ir.AssignableTo(argTypes[i], p.Type) {
				diags.Errorf(diag.FamilyType, "E-TYPE-CALL-ARG", s.Span, "call to %q argument %d: %s is not assignable to %s", target, i+1, argTypes[i], p.Type)
			}
		}
	}
	if sig.Result == nil {
		return &ir.Type{Kind: ir.TNone}
	}
	return sig.Result
}

func (c *Checker) checkReturn(fn *ir.Function, s *ast.Step, sc scope, diags *diag.Bag) *ir.Type {
	var retType *ir.Type = &ir.Type{Kind: ir.TNone}
	if len(s.Values) > 0 {
		retType = c.checkValue(s.Values[0], sc, diags)
	}
	if fn.Result != nil && !ir.AssignableTo(retType, fn.Result) {
		diags.Errorf(diag.FamilyType, "E-TYPE-RETURN-MISMATCH", s.Span, "return value of type %s is not assignable to declared result type %s", retType, fn.Result)
	}
	return retType
}

// checkMatch checks exhaustiveness (spec.md §4.4 E-TYPE-MATCH-EXH): every
// variant of the scrutinee's enum type must be covered by a branch
// labelled with that variant's name, or a single "_" wildcard branch
// must be present.
func (c *Checker) checkMatch(fn *ir.Function, s *ast.Step, sc scope, diags *diag.Bag) *ir.Type {
	var scrutinee *ir.Type
	if len(s.Values) > 0 {
		scrutinee = c.checkValue(s.Values[0], sc, diags)
	} else {
		scrutinee = &ir.Type{Kind: ir.TUnknown}
	}

	covered := map[string]bool{}
	hasWildcard := false
	for _, br := range s.Branches {
		if br.Label == "_" {
			hasWildcard = true
		} else {
			covered[br.Label] = true
		}
		c.checkSteps(fn, br.Steps, sc.clone(), diags)
	}

	if scrutinee.Kind == ir.TEnum && !hasWildcard {
		def, ok := c.prog.Enums[scrutinee.Name]
		if ok {
			var missing []string
			for _, v := range def.Variants {
				if !covered[v.Name] {
					missing = append(missing, v.Name)
				}
			}
			if len(missing) > 0 {
				sort.Strings(missing)
				diags.Errorf(diag.FamilyType, "E-TYPE-MATCH-EXH", s.Span, "match on %s is not exhaustive; missing variant(s): %v", scrutinee.Name, missing)
			}
		}
	}
	return &ir.Type{Kind: ir.TNone}
}

func (c *Checker) checkFor(fn *ir.Function, s *ast.Step, sc scope, diags *diag.Bag) *ir.Type {
	var elemType *ir.Type = &ir.Type{Kind: ir.TUnknown}
	if len(s.Values) > 0 {
		srcType := c.checkValue(s.Values[0], sc, diags)
		if srcType.Kind == ir.TList {
			elemType = srcType.Elem
		} else if srcType.Kind != ir.TUnknown {
			diags.Errorf(diag.FamilyType, "E-TYPE-FOR-SOURCE", s.Span, "for loop source must be a List, found %s", srcType)
		}
	}
	loopVar := s.Attrs["as"]
	for _, br := range s.Branches {
		inner := sc.clone()
		if loopVar != "" {
			inner[loopVar] = elemType
		}
		c.checkSteps(fn, br.Steps, inner, diags)
	}
	return &ir.Type{Kind: ir.TNone}
}

// checkConcurrent type-checks a parallel/race step's branches via
// golang.org/x/sync/errgroup limited to one active goroutine, so the
// branches are checked one at a time in declaration order (they all
// write fn.StepTypes and fn.Locals). Each branch reports into a private
// diag.Bag, and the merge back into the caller's diags happens in branch
// declaration order after errgroup.Wait, so diagnostic output is
// deterministic.
func (c *Checker) checkConcurrent(fn *ir.Function, s *ast.Step, sc scope, diags *diag.Bag) *ir.Type {
	var g errgroup.Group
	g.SetLimit(1)
	subBags := make([]*diag.Bag, len(s.Branches))
	for i, br := range s.Branches {
		i, br := i, br
		subBags[i] = &diag.Bag{}
		g.Go(func() error {
			c.checkSteps(fn, br.Steps, sc.clone(), subBags[i])
			return nil
		})
	}
	_ = g.Wait() // branch checks never return an error; only side-channel diagnostics matter
	for _, b := range subBags {
		diags.Merge(b)
	}
	return &ir.Type{Kind: ir.TNone}
}

// checkDataStep checks query/insert/update/delete/traverse steps: the
// target must name a database snippet, and an optional "returns"
// attribute names the struct whose shape the rows take. Query and
// traverse are set-returning (List<Struct>); insert/update/delete echo
// at most one affected row (Struct?).
func (c *Checker) checkDataStep(s *ast.Step, diags *diag.Bag) *ir.Type {
	target := s.Attrs["target"]
	if target == "" {
		diags.Errorf(diag.FamilyType, "E-TYPE-DB-TARGET", s.Span, "%s step missing required 'target' attribute", s.Kind)
		return &ir.Type{Kind: ir.TUnknown}
	}
	if _, ok := c.prog.Databases[target]; !ok {
		diags.Errorf(diag.FamilyType, "E-TYPE-DB-TARGET", s.Span, "%s target %q is not a declared database", s.Kind, target)
		return &ir.Type{Kind: ir.TUnknown}
	}
	returns := s.Attrs["returns"]
	if returns == "" {
		return &ir.Type{Kind: ir.TNone}
	}
	row := c.prog.LookupNominal(returns)
	if row == nil {
		diags.Errorf(diag.FamilyType, "E-TYPE-UNKNOWN", s.Span, "unknown return row type %q", returns)
		return &ir.Type{Kind: ir.TUnknown}
	}
	switch s.Kind {
	case ast.StepQuery, ast.StepTraverse:
		return ir.List(row)
	default:
		return ir.Optional(row)
	}
}

// checkValue resolves a Value reference site to a type (spec.md §3.2).
func (c *Checker) checkValue(v ast.Value, sc scope, diags *diag.Bag) *ir.Type {
	switch {
	case v.IsVar:
		if t, ok := sc[v.VarName]; ok {
			return t
		}
		diags.Errorf(diag.FamilyType, "E-TYPE-UNBOUND", v.Span, "reference to unbound name %q", v.VarName)
		return &ir.Type{Kind: ir.TUnknown}
	case v.Lit != nil:
		return c.typeOfLiteral(v.Lit)
	case v.IsField:
		baseType, ok := sc[v.FieldOf]
		if !ok {
			diags.Errorf(diag.FamilyType, "E-TYPE-UNBOUND", v.Span, "reference to unbound name %q", v.FieldOf)
			return &ir.Type{Kind: ir.TUnknown}
		}
		if baseType.Kind != ir.TStruct {
			diags.Errorf(diag.FamilyType, "E-TYPE-FIELD-BASE", v.Span, "%q is not a struct value, cannot access field %q", v.FieldOf, v.Field)
			return &ir.Type{Kind: ir.TUnknown}
		}
		def, ok := c.prog.Structs[baseType.Name]
		if !ok {
			return &ir.Type{Kind: ir.TUnknown}
		}
		for _, f := range def.Fields {
			if f.Name == v.Field {
				return f.Type
			}
		}
		diags.Errorf(diag.FamilyType, "E-TYPE-FIELD-UNKNOWN", v.Span, "struct %q has no field %q", baseType.Name, v.Field)
		return &ir.Type{Kind: ir.TUnknown}
	default:
		return &ir.Type{Kind: ir.TUnknown}
	}
}
