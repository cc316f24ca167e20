// Package optimizer runs a pluggable sequence of passes over type-checked
// IR (spec.md §4.6): constant folding, dead-code elimination, and unused
// binding diagnostics. The optimizer is pure — a program on which no pass
// fires is returned semantically unchanged (spec.md §4.6 "if no pass
// modifies IR, it is semantically identical to its input").
//
// Bindings are unique per snippet by construction (spec.md §3.2's SSA
// invariant), so "is this binding read anywhere" can be computed once
// over the whole flattened step tree rather than tracked per lexical
// scope — the same whole-program-closure shape internal/effects uses for
// its Datalog fixpoint, applied here as a plain reachability pass since
// use/def liveness has no natural Datalog encoding worth reaching for a
// query engine over.
package optimizer

import (
	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/effects"
	"covenant/internal/ir"
)

// Pass is one optimization pass over a single function's body. It
// reports whether it changed anything, so Run can iterate to a fixpoint.
type Pass func(fn *ir.Function, closure *effects.Closure, diags *diag.Bag) bool

// DefaultPasses is the pass pipeline run by Run, in order.
var DefaultPasses = []Pass{
	ConstantFold,
	DeadCodeEliminate,
}

// Run applies DefaultPasses to every function in prog to a fixpoint (each
// pass may enable another: folding a compute step to a literal can make
// its former operands dead), then reports unused-binding warnings over
// what remains.
func Run(prog *ir.Program, closure *effects.Closure, diags *diag.Bag) {
	for _, id := range prog.Order {
		fn, ok := prog.Functions[id]
		if !ok {
			continue
		}
		for iter := 0; iter < len(flatten(fn.Body))+1; iter++ {
			changed := false
			for _, pass := range DefaultPasses {
				if pass(fn, closure, diags) {
					changed = true
				}
			}
			if !changed {
				break
			}
		}
		warnUnusedBindings(fn, diags)
	}
}

// flatten returns every step reachable from steps, including nested
// branch steps, in pre-order.
func flatten(steps []*ast.Step) []*ast.Step {
	var out []*ast.Step
	var walk func([]*ast.Step)
	walk = func(ss []*ast.Step) {
		for _, s := range ss {
			out = append(out, s)
			for _, br := range s.Branches {
				walk(br.Steps)
			}
		}
	}
	walk(steps)
	return out
}

// usedVars collects every binding name read anywhere in the function
// (var/from lookups and field-of-base references), flattened across all
// nested branches — sound because step output names are unique across
// the whole snippet (spec.md §3.2).
func usedVars(fn *ir.Function) map[string]bool {
	used := map[string]bool{}
	for _, s := range flatten(fn.Body) {
		for _, v := range s.Values {
			if v.IsVar {
				used[v.VarName] = true
			}
			if v.IsField {
				used[v.FieldOf] = true
			}
		}
	}
	for _, tc := range fn.Tests {
		for _, s := range flatten(tc.Steps) {
			for _, v := range s.Values {
				if v.IsVar {
					used[v.VarName] = true
				}
				if v.IsField {
					used[v.FieldOf] = true
				}
			}
		}
	}
	return used
}

// ConstantFold rewrites a `compute` step whose operands are all literals
// into a `bind` of the literal result, in place, for every arithmetic,
// comparison, logical, and concat operator the type checker recognises
// (spec.md §4.6).
func ConstantFold(fn *ir.Function, closure *effects.Closure, diags *diag.Bag) bool {
	changed := false
	var walk func([]*ast.Step)
	walk = func(steps []*ast.Step) {
		for _, s := range steps {
			if s.Kind == ast.StepCompute {
				if folded, ok := tryFold(s); ok {
					s.Kind = ast.StepBind
					s.Values = []ast.Value{{Span: s.Span, Lit: folded}}
					delete(s.Attrs, "op")
					changed = true
				}
			}
			for _, br := range s.Branches {
				walk(br.Steps)
			}
		}
	}
	walk(fn.Body)
	for _, tc := range fn.Tests {
		walk(tc.Steps)
	}
	return changed
}

func tryFold(s *ast.Step) (*ast.Literal, bool) {
	lits := make([]*ast.Literal, 0, len(s.Values))
	for _, v := range s.Values {
		if v.Lit == nil {
			return nil, false
		}
		lits = append(lits, v.Lit)
	}
	if len(lits) == 0 {
		return nil, false
	}
	return evalOp(s.Attrs["op"], lits)
}

func evalOp(op string, args []*ast.Literal) (*ast.Literal, bool) {
	switch op {
	case "add", "sub", "mul", "div", "mod":
		return evalArith(op, args)
	case "eq", "neq", "lt", "lte", "gt", "gte":
		return evalCompare(op, args)
	case "and", "or":
		return evalLogical(op, args)
	case "not":
		if len(args) != 1 || args[0].Kind != ast.LitBool {
			return nil, false
		}
		return &ast.Literal{Kind: ast.LitBool, Bool: !args[0].Bool}, true
	case "concat":
		return evalConcat(args)
	default:
		return nil, false
	}
}

func evalArith(op string, args []*ast.Literal) (*ast.Literal, bool) {
	isFloat := false
	for _, a := range args {
		switch a.Kind {
		case ast.LitFloat:
			isFloat = true
		case ast.LitInt:
		default:
			return nil, false
		}
	}
	if isFloat {
		vals := make([]float64, len(args))
		for i, a := range args {
			if a.Kind == ast.LitFloat {
				vals[i] = a.Float
			} else {
				vals[i] = float64(a.Int)
			}
		}
		r := vals[0]
		for _, v := range vals[1:] {
			switch op {
			case "add":
				r += v
			case "sub":
				r -= v
			case "mul":
				r *= v
			case "div":
				if v == 0 {
					return nil, false
				}
				r /= v
			case "mod":
				return nil, false // fmod of floats is not a defined Covenant operator
			}
		}
		return &ast.Literal{Kind: ast.LitFloat, Float: r}, true
	}
	r := args[0].Int
	for _, a := range args[1:] {
		switch op {
		case "add":
			r += a.Int
		case "sub":
			r -= a.Int
		case "mul":
			r *= a.Int
		case "div":
			if a.Int == 0 {
				return nil, false
			}
			r /= a.Int
		case "mod":
			if a.Int == 0 {
				return nil, false
			}
			r %= a.Int
		}
	}
	return &ast.Literal{Kind: ast.LitInt, Int: r}, true
}

func evalCompare(op string, args []*ast.Literal) (*ast.Literal, bool) {
	if len(args) != 2 {
		return nil, false
	}
	a, b := args[0], args[1]
	var cmp int
	switch {
	case a.Kind == ast.LitInt && b.Kind == ast.LitInt:
		cmp = cmpInt(a.Int, b.Int)
	case (a.Kind == ast.LitInt || a.Kind == ast.LitFloat) && (b.Kind == ast.LitInt || b.Kind == ast.LitFloat):
		cmp = cmpFloat(asFloat(a), asFloat(b))
	case a.Kind == ast.LitString && b.Kind == ast.LitString:
		cmp = cmpString(a.Str, b.Str)
	default:
		return nil, false
	}
	var result bool
	switch op {
	case "eq":
		result = cmp == 0
	case "neq":
		result = cmp != 0
	case "lt":
		result = cmp < 0
	case "lte":
		result = cmp <= 0
	case "gt":
		result = cmp > 0
	case "gte":
		result = cmp >= 0
	}
	return &ast.Literal{Kind: ast.LitBool, Bool: result}, true
}

func asFloat(l *ast.Literal) float64 {
	if l.Kind == ast.LitFloat {
		return l.Float
	}
	return float64(l.Int)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func evalLogical(op string, args []*ast.Literal) (*ast.Literal, bool) {
	vals := make([]bool, len(args))
	for i, a := range args {
		if a.Kind != ast.LitBool {
			return nil, false
		}
		vals[i] = a.Bool
	}
	r := vals[0]
	for _, v := range vals[1:] {
		if op == "and" {
			r = r && v
		} else {
			r = r || v
		}
	}
	return &ast.Literal{Kind: ast.LitBool, Bool: r}, true
}

func evalConcat(args []*ast.Literal) (*ast.Literal, bool) {
	var out string
	for _, a := range args {
		if a.Kind != ast.LitString {
			return nil, false
		}
		out += a.Str
	}
	return &ast.Literal{Kind: ast.LitString, Str: out}, true
}

// DeadCodeEliminate removes pure, unread steps (spec.md §4.6: "steps
// whose output binding has no downstream use and whose kind is pure").
// Effectful steps — call to a symbol with a non-empty effect closure, or
// any I/O step kind — are kept regardless of whether their output is
// read, since removing them would change observable behaviour.
func DeadCodeEliminate(fn *ir.Function, closure *effects.Closure, diags *diag.Bag) bool {
	used := usedVars(fn)
	changed := false
	fn.Body, changed = filterDead(fn.Body, used, closure, changed)
	for i := range fn.Tests {
		fn.Tests[i].Steps, changed = filterDead(fn.Tests[i].Steps, used, closure, changed)
	}
	return changed
}

func filterDead(steps []*ast.Step, used map[string]bool, closure *effects.Closure, changed bool) ([]*ast.Step, bool) {
	out := make([]*ast.Step, 0, len(steps))
	for _, s := range steps {
		for i := range s.Branches {
			br := &s.Branches[i]
			var brChanged bool
			br.Steps, brChanged = filterDead(br.Steps, used, closure, false)
			if brChanged {
				changed = true
			}
		}
		if isRemovable(s, used, closure) {
			changed = true
			continue
		}
		out = append(out, s)
	}
	return out, changed
}

func isRemovable(s *ast.Step, used map[string]bool, closure *effects.Closure) bool {
	if s.Output != "_" && used[s.Output] {
		return false
	}
	return isPure(s, closure)
}

func isPure(s *ast.Step, closure *effects.Closure) bool {
	switch s.Kind {
	case ast.StepCompute, ast.StepBind:
		return true
	case ast.StepCall:
		target := s.Attrs["target"]
		return len(closure.Required[target]) == 0
	default:
		// return/if/match/for/query/insert/update/delete/transaction/
		// traverse/parallel/race: control-flow and I/O steps are never
		// eliminated as a whole unit, even when their own output is unused —
		// their nested bodies are still cleaned by the recursive pass above.
		return false
	}
}

// warnUnusedBindings reports W-DEAD-BINDING for every named binding with
// no readers that survived dead-code elimination — an effectful call or
// a control-flow/I/O step, which that pass never removes, whose result
// nobody reads (spec.md §4.6 "Unused binding").
func warnUnusedBindings(fn *ir.Function, diags *diag.Bag) {
	used := usedVars(fn)
	for _, s := range flatten(fn.Body) {
		if s.Output != "_" && s.Output != "" && !used[s.Output] {
			diags.Warnf(diag.FamilyOptimizer, "W-DEAD-BINDING", s.Span, "binding %q is never read", s.Output)
		}
	}
}
