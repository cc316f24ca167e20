package optimizer

import (
	"testing"

	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/effects"
	"covenant/internal/ir"
	"covenant/internal/parser"
	"covenant/internal/source"
	"covenant/internal/symgraph"
	"covenant/internal/types"
)

func compile(t *testing.T, src string) (*symgraph.Graph, *effects.Closure, *ir.Program, *diag.Bag) {
	t.Helper()
	diags := &diag.Bag{}
	file := source.NewFile("test.cov", []byte(src))
	prog := parser.Parse(file, diags)
	g := symgraph.Build(prog, diags)
	closure := effects.Compute(g, diags)
	typed := types.Check(g, diags)
	return g, closure, typed, diags
}

func TestConstantFoldsArithmetic(t *testing.T) {
	src := `
fn id="app.six"
  signature
    returns type="Int" end
  end
  body
    compute op="add" lit=2 lit=4 as="sum" end
    return var=sum end
  end
end
`
	_, closure, typed, diags := compile(t, src)
	fn := typed.Functions["app.six"]
	ConstantFold(fn, closure, diags)
	step := fn.Body[0]
	if step.Kind != ast.StepBind {
		t.Fatalf("expected compute to fold into bind, got kind %v", step.Kind)
	}
	if step.Values[0].Lit == nil || step.Values[0].Lit.Int != 6 {
		t.Fatalf("expected folded literal 6, got %+v", step.Values[0])
	}
}

func TestDeadCodeEliminationRemovesUnreadPureStep(t *testing.T) {
	src := `
fn id="app.dead"
  signature
    returns type="Int" end
  end
  body
    compute op="add" lit=1 lit=1 as="unused" end
    return lit=0 end
  end
end
`
	_, closure, typed, diags := compile(t, src)
	fn := typed.Functions["app.dead"]
	if len(fn.Body) != 2 {
		t.Fatalf("expected 2 steps before DCE, got %d", len(fn.Body))
	}
	DeadCodeEliminate(fn, closure, diags)
	if len(fn.Body) != 1 {
		t.Fatalf("expected dead compute step removed, got %d steps: %+v", len(fn.Body), fn.Body)
	}
	if fn.Body[0].Kind != ast.StepReturn {
		t.Fatalf("expected surviving step to be the return, got %v", fn.Body[0].Kind)
	}
}

func TestEffectfulCallIsNeverEliminated(t *testing.T) {
	src := `
fn id="app.logger"
  effects
    console
  end
  signature
    returns type="Int" end
  end
  body
    return lit=0 end
  end
end
fn id="app.caller"
  effects
    console
  end
  signature
    returns type="Int" end
  end
  body
    call target="app.logger" as="ignored" end
    return lit=1 end
  end
end
`
	_, closure, typed, diags := compile(t, src)
	fn := typed.Functions["app.caller"]
	DeadCodeEliminate(fn, closure, diags)
	if len(fn.Body) != 2 {
		t.Fatalf("expected effectful call to survive DCE even though unread, got %d steps: %+v", len(fn.Body), fn.Body)
	}
}

func TestUnusedBindingWarning(t *testing.T) {
	src := `
fn id="app.caller"
  effects
    console
  end
  signature
    returns type="Int" end
  end
  body
    call target="app.logger" as="ignored" end
    return lit=1 end
  end
end
fn id="app.logger"
  effects
    console
  end
  signature
    returns type="Int" end
  end
  body
    return lit=0 end
  end
end
`
	_, closure, typed, diags := compile(t, src)
	Run(typed, closure, diags)
	found := false
	for _, d := range diags.All() {
		if d.Code == "W-DEAD-BINDING" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected W-DEAD-BINDING for the unread 'ignored' call result, got %v", diags.All())
	}
}
