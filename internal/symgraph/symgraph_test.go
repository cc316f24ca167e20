package symgraph

import (
	"testing"

	"covenant/internal/diag"
	"covenant/internal/parser"
	"covenant/internal/source"
)

func build(t *testing.T, src string) (*Graph, *diag.Bag) {
	t.Helper()
	diags := &diag.Bag{}
	file := source.NewFile("test.cov", []byte(src))
	prog := parser.Parse(file, diags)
	return Build(prog, diags), diags
}

func TestBuildForwardAndInverseEdges(t *testing.T) {
	src := `
fn id="app.a"
  body
    call target="app.b" as="r" end
  end
end
fn id="app.b"
  body
    return lit=1 end
  end
end
`
	g, diags := build(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
	a, b := g.Lookup("app.a"), g.Lookup("app.b")
	if a == nil || b == nil {
		t.Fatalf("expected both nodes present, got a=%v b=%v", a, b)
	}
	if len(a.Calls) != 1 || a.Calls[0] != "app.b" {
		t.Fatalf("expected app.a to call app.b, got %v", a.Calls)
	}
	if len(b.CalledBy) != 1 || b.CalledBy[0] != "app.a" {
		t.Fatalf("expected app.b called_by app.a, got %v", b.CalledBy)
	}
	if len(a.UnresolvedCalls) != 0 {
		t.Fatalf("expected no unresolved calls, got %v", a.UnresolvedCalls)
	}
}

func TestBuildUnresolvedCallIsNotAnError(t *testing.T) {
	src := `
fn id="app.a"
  body
    call target="app.missing" as="r" end
  end
end
`
	g, diags := build(t, src)
	if diags.HasErrors() {
		t.Fatalf("unresolved calls must not be parse/symbol errors, got: %v", diags.All())
	}
	a := g.Lookup("app.a")
	if len(a.UnresolvedCalls) != 1 || a.UnresolvedCalls[0] != "app.missing" {
		t.Fatalf("expected app.missing recorded as unresolved, got %v", a.UnresolvedCalls)
	}
}

func TestBuildNestedCallsInsideBranches(t *testing.T) {
	src := `
fn id="app.a"
  body
    if var=flag
    then
      call target="app.b" as="r" end
    else
      call target="app.c" as="r" end
    end
    end
  end
end
fn id="app.b"
end
fn id="app.c"
end
`
	g, diags := build(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
	a := g.Lookup("app.a")
	if len(a.Calls) != 2 {
		t.Fatalf("expected 2 calls discovered across both branches, got %v", a.Calls)
	}
}

func TestBuildInvalidIDShape(t *testing.T) {
	src := `
fn id="nodothere"
end
`
	_, diags := build(t, src)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-SYM-002" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-SYM-002 for undotted id, got %v", diags.All())
	}
}

func TestDataRelationsBecomeReferences(t *testing.T) {
	src := `
data id="app.doc"
  relations
    relation type="describes" target="app.a" end
  end
  content
    "hello"
  end
end
fn id="app.a"
end
`
	g, diags := build(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
	doc := g.Lookup("app.doc")
	if len(doc.References) != 1 || doc.References[0] != "app.a" {
		t.Fatalf("expected app.doc to reference app.a, got %v", doc.References)
	}
	a := g.Lookup("app.a")
	if len(a.ReferencedBy) != 1 || a.ReferencedBy[0] != "app.doc" {
		t.Fatalf("expected app.a referenced_by app.doc, got %v", a.ReferencedBy)
	}
}
