package parser

import (
	"testing"

	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/source"
)

func parse(t *testing.T, src string) (*ast.Program, *diag.Bag) {
	t.Helper()
	diags := &diag.Bag{}
	file := source.NewFile("test.cov", []byte(src))
	return Parse(file, diags), diags
}

func TestParseMinimalFn(t *testing.T) {
	src := `
fn id="app.greet"
  effects
  end
  signature
    param name="who" type="String" end
    returns type="String" end
  end
  body
    compute op="concat" var=who lit="!" as="greeting" end
    return var=greeting end
  end
end
`
	prog, diags := parse(t, src)
	for _, d := range diags.All() {
		t.Errorf("unexpected diagnostic: %s", d)
	}
	if len(prog.Snippets) != 1 {
		t.Fatalf("expected 1 snippet, got %d", len(prog.Snippets))
	}
	fn := prog.Snippets[0]
	if fn.ID != "app.greet" || fn.Kind != ast.KindFn {
		t.Fatalf("unexpected snippet: %+v", fn)
	}
	if len(fn.Body) != 2 {
		t.Fatalf("expected 2 body steps, got %d", len(fn.Body))
	}
	compute := fn.Body[0]
	if compute.Kind != ast.StepCompute || compute.Output != "greeting" {
		t.Fatalf("unexpected compute step: %+v", compute)
	}
	if len(compute.Values) != 2 {
		t.Fatalf("expected 2 compute operands, got %d: %+v", len(compute.Values), compute.Values)
	}
	if !compute.Values[0].IsVar || compute.Values[0].VarName != "who" {
		t.Fatalf("expected first operand to be var=who, got %+v", compute.Values[0])
	}
	if compute.Values[1].Lit == nil || compute.Values[1].Lit.Str != "!" {
		t.Fatalf("expected second operand to be lit=\"!\", got %+v", compute.Values[1])
	}
}

func TestParseDuplicateMultiValuedAttrsSurviveSeparately(t *testing.T) {
	// compute with two `var=` operands must not collapse into one.
	src := `
fn id="app.sum"
  signature
    param name="a" type="Int" end
    param name="b" type="Int" end
    returns type="Int" end
  end
  body
    compute op="add" var=a var=b as="total" end
    return var=total end
  end
end
`
	prog, diags := parse(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
	compute := prog.Snippets[0].Body[0]
	if len(compute.Values) != 2 {
		t.Fatalf("expected 2 operands preserved, got %d", len(compute.Values))
	}
	if compute.Values[0].VarName != "a" || compute.Values[1].VarName != "b" {
		t.Fatalf("expected operands a, b in order, got %+v", compute.Values)
	}
}

func TestParseSectionOrderViolation(t *testing.T) {
	src := `
fn id="app.bad"
  body
    return lit=1 end
  end
  effects
  end
end
`
	_, diags := parse(t, src)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-PARSE-ORDER" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-PARSE-ORDER, got %v", diags.All())
	}
}

func TestParseDuplicateSnippetID(t *testing.T) {
	src := `
fn id="app.x"
end
fn id="app.x"
end
`
	_, diags := parse(t, src)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-PARSE-DUP" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-PARSE-DUP, got %v", diags.All())
	}
}

func TestParseMissingID(t *testing.T) {
	src := `
fn
end
`
	_, diags := parse(t, src)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-PARSE-002" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-PARSE-002, got %v", diags.All())
	}
}

func TestParseTypeExprComposite(t *testing.T) {
	src := `
struct id="app.row"
  types
    field name="tags" type="List<String>" end
    field name="score" type="Float?" end
    field name="meta" type="Map<String,Int>" end
    field name="status" type="app.ok | app.err" end
  end
end
`
	prog, diags := parse(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
	fields := prog.Snippets[0].Types
	if fields[0].Type.Kind != ast.TypeCollection || fields[0].Type.Elem.Name != "String" {
		t.Fatalf("unexpected tags type: %+v", fields[0].Type)
	}
	if fields[1].Type.Kind != ast.TypeOptional || fields[1].Type.Elem.Name != "Float" {
		t.Fatalf("unexpected score type: %+v", fields[1].Type)
	}
	if fields[2].Type.Kind != ast.TypeMap || fields[2].Type.Key.Name != "String" || fields[2].Type.Elem.Name != "Int" {
		t.Fatalf("unexpected meta type: %+v", fields[2].Type)
	}
	if fields[3].Type.Kind != ast.TypeUnion || len(fields[3].Type.Members) != 2 {
		t.Fatalf("unexpected status type: %+v", fields[3].Type)
	}
}

func TestParseIfBranches(t *testing.T) {
	src := `
fn id="app.cond"
  body
    if var=flag
    then
      return lit=1 end
    else
      return lit=0 end
    end
    end
  end
end
`
	prog, diags := parse(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
	step := prog.Snippets[0].Body[0]
	if step.Kind != ast.StepIf || len(step.Branches) != 2 {
		t.Fatalf("unexpected if step: %+v", step)
	}
	if step.Branches[0].Label != "then" || step.Branches[1].Label != "else" {
		t.Fatalf("unexpected branch labels: %+v", step.Branches)
	}
}

func TestValidID(t *testing.T) {
	cases := map[string]bool{
		"app.greet":  true,
		"a.b.c":      true,
		"greet":      false,
		"1app.greet": false,
		"app..greet": false,
		"":           false,
	}
	for id, want := range cases {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}
