package types

import (
	"testing"

	"covenant/internal/diag"
	"covenant/internal/ir"
	"covenant/internal/parser"
	"covenant/internal/source"
	"covenant/internal/symgraph"
)

func check(t *testing.T, src string) (*ir.Program, *diag.Bag) {
	t.Helper()
	diags := &diag.Bag{}
	file := source.NewFile("test.cov", []byte(src))
	prog := parser.Parse(file, diags)
	g := symgraph.Build(prog, diags)
	return Check(g, diags), diags
}

func TestResolveStructFields(t *testing.T) {
	src := `
struct id="app.point"
  types
    field name="x" type="Int" end
    field name="y" type="Int" end
  end
end
`
	p, diags := check(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
	def := p.Structs["app.point"]
	if len(def.Fields) != 2 || def.Fields[0].Type.Kind != ir.TInt {
		t.Fatalf("unexpected struct fields: %+v", def.Fields)
	}
}

func TestCallArityAndArgTypeChecking(t *testing.T) {
	src := `
fn id="app.add"
  signature
    param name="a" type="Int" end
    param name="b" type="Int" end
    returns type="Int" end
  end
  body
    return var=a end
  end
end
fn id="app.main"
  signature
    returns type="Int" end
  end
  body
    call target="app.add" lit=1 as="r" end
    return var=r end
  end
end
`
	_, diags := check(t, src)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-TYPE-CALL-ARITY" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-TYPE-CALL-ARITY (1 arg given, 2 expected), got %v", diags.All())
	}
}

func TestUnknownTypeIsReported(t *testing.T) {
	src := `
struct id="app.thing"
  types
    field name="x" type="Bogus" end
  end
end
`
	_, diags := check(t, src)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-TYPE-UNKNOWN" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-TYPE-UNKNOWN for Bogus, got %v", diags.All())
	}
}

func TestMatchExhaustivenessMissingVariant(t *testing.T) {
	src := `
enum id="app.color"
  types
    variant name="red" end
    variant name="blue" end
  end
end
fn id="app.describe"
  signature
    param name="c" type="app.color" end
    returns type="String" end
  end
  body
    match var=c
    case variant="red"
      return lit="warm" end
    end
    end
    return lit="" end
  end
end
`
	_, diags := check(t, src)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-TYPE-MATCH-EXH" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-TYPE-MATCH-EXH for missing 'blue' case, got %v", diags.All())
	}
}

func TestMatchWildcardSatisfiesExhaustiveness(t *testing.T) {
	src := `
enum id="app.color"
  types
    variant name="red" end
    variant name="blue" end
  end
end
fn id="app.describe"
  signature
    param name="c" type="app.color" end
    returns type="String" end
  end
  body
    match var=c
    case variant="red"
      return lit="warm" end
    case wildcard="_"
      return lit="other" end
    end
    end
    return lit="" end
  end
end
`
	_, diags := check(t, src)
	for _, d := range diags.All() {
		if d.Code == "E-TYPE-MATCH-EXH" {
			t.Fatalf("wildcard case should satisfy exhaustiveness, got %v", diags.All())
		}
	}
}

func TestReturnTypeMismatch(t *testing.T) {
	src := `
fn id="app.bad"
  signature
    returns type="Int" end
  end
  body
    return lit="oops" end
  end
end
`
	_, diags := check(t, src)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-TYPE-RETURN-MISMATCH" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-TYPE-RETURN-MISMATCH, got %v", diags.All())
	}
}
