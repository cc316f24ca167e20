package requirements

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

func TestDanglingCoversIsReported(t *testing.T) {
	src := `
fn id="app.a"
  tests
    test id="T-001" kind="unit" covers="R-999"
      body
        return lit=1 end
      end
    end
  end
end
`
	g, diags := buildGraph(t, src)
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", diags.All())
	}
	Check(g, diags)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-REQ-DANGLING" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E-REQ-DANGLING, got %v", diags.All())
	}
}

func TestCriticalUncoveredIsError(t *testing.T) {
	src := `
fn id="app.a"
  requires
    requirement id="R-001" text="must not crash" priority="critical" end
  end
end
`
	g, diags := buildGraph(t, src)
	Check(g, diags)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-REQ-UNCOVERED" && d.Severity == diag.Error {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error-severity E-REQ-UNCOVERED for uncovered critical requirement, got %v", diags.All())
	}
}

func TestHighUncoveredIsWarning(t *testing.T) {
	src := `
fn id="app.a"
  requires
    requirement id="R-002" text="should be fast" priority="high" end
  end
end
`
	g, diags := buildGraph(t, src)
	Check(g, diags)
	found := false
	for _, d := range diags.All() {
		if d.Code == "E-REQ-UNCOVERED" && d.Severity == diag.Warning {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected warning-severity E-REQ-UNCOVERED for uncovered high requirement, got %v", diags.All())
	}
}

func TestCoveredRequirementProducesNoDiagnostic(t *testing.T) {
	src := `
fn id="app.a"
  requires
    requirement id="R-003" text="returns zero" priority="critical" end
  end
  tests
    test id="T-010" kind="unit" covers="R-003"
      body
        return lit=0 end
      end
    end
  end
end
`
	g, diags := buildGraph(t, src)
	rep := Check(g, diags)
	for _, d := range diags.All() {
		if d.Code == "E-REQ-UNCOVERED" || d.Code == "E-REQ-DANGLING" {
			t.Fatalf("unexpected diagnostic: %s", d)
		}
	}
	info := rep.Requirements["R-003"]
	if len(info.CoveredBy) != 1 || info.CoveredBy[0] != "T-010" {
		t.Fatalf("expected R-003 covered by T-010, got %+v", info)
	}
}
