package effects

import (
	"testing"

	"covenant/internal/diag"
	"covenant/internal/parser"
	"covenant/internal/source"
	"covenant/internal/symgraph"
)

func buildGraph(t *testing.T, src string) (*symgraph.Graph, *diag.Bag) {
	t.Helper()
	diags := &diag.Bag{}
	file := source.NewFile("test.cov", []byte(src))
	prog := parser.Parse(file, diags)
	return symgraph.Build(prog, diags), diags
}

func TestClosurePropagatesAcrossCalls(t *testing.T) {
	src := `
fn id="app.leaf"
  effects
    network
  end
  body
    return lit=1 end
  end
end
fn id="app.root"
  effects
    network
  end
  body
    call target="app.leaf" as="r" end
    return var=r end
  end
end
`
	g, diags := buildGraph(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", diags.All())
	}
	closure := Compute(g, diags)
	if diags.HasErrors() {
		t.Fatalf("expected no effect diagnostics, got: %v", diags.All())
	}
	if got := closure.Required["app.root"]; len(got) != 1 || got[0] != "network" {
		t.Fatalf("expected app.root closure [network], got %v", got)
	}
}

func TestMissingEffectIsReported(t *testing.T) {
	src := `
fn id="app.leaf"
  effects
    network
  end
  body
    return lit=1 end
  end
end
fn id="app.root"
  body
    call target="app.leaf" as="r" end
    return var=r end
  end
end
`
	g, diags := buildGraph(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", diags.All())
	}
	Compute(g, diags)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-EFFECT-PURE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-EFFECT-PURE for app.root, got %v", diags.All())
	}
}

func TestDeclaredSupersetOfClosureIsFine(t *testing.T) {
	src := `
fn id="app.leaf"
  effects
    network
  end
  body
    return lit=1 end
  end
end
fn id="app.root"
  effects
    network
    filesystem
  end
  body
    call target="app.leaf" as="r" end
    return var=r end
  end
end
`
	g, diags := buildGraph(t, src)
	Compute(g, diags)
	if diags.HasErrors() {
		t.Fatalf("declaring a superset of the closure should not error, got: %v", diags.All())
	}
}

func TestMutualRecursionClosureConverges(t *testing.T) {
	src := `
fn id="app.ping"
  effects
    network
  end
  body
    call target="app.pong" as="r" end
    return var=r end
  end
end
fn id="app.pong"
  effects
    network
  end
  body
    call target="app.ping" as="r" end
    return var=r end
  end
end
`
	g, diags := buildGraph(t, src)
	closure := Compute(g, diags)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.All())
	}
	for _, id := range []string{"app.ping", "app.pong"} {
		got := closure.Required[id]
		if len(got) != 1 || got[0] != "network" {
			t.Fatalf("expected %s closure [network], got %v", id, got)
		}
	}
}
