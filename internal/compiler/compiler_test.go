package compiler

import (
	"bytes"
	"testing"

	"covenant/internal/compilerstore"
)

func TestCompileProducesModuleWithMainExport(t *testing.T) {
	src := `
fn id="app.main"
  signature
  end
  body
    compute op="add" lit=2 lit=4 as="sum" end
    return end
  end
end
`
	res := Compile("test.cov", []byte(src))
	if res.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %+v", res.Diags.All())
	}
	if len(res.Module) < 8 {
		t.Fatalf("expected a non-trivial module, got %d bytes", len(res.Module))
	}
	magic := []byte{0x00, 0x61, 0x73, 0x6D}
	if !bytes.Equal(res.Module[:4], magic) {
		t.Fatalf("module missing WASM magic bytes: %x", res.Module[:4])
	}
	if !bytes.Contains(res.Module, []byte("main")) {
		t.Fatalf("expected a main export name embedded in the module")
	}
}

func TestCompileStopsAtParseErrors(t *testing.T) {
	res := Compile("test.cov", []byte("fn id=\n"))
	if !res.Diags.HasErrors() {
		t.Fatalf("expected parse errors for malformed input")
	}
	if res.Module != nil {
		t.Fatalf("expected no module when parsing fails")
	}
}

func TestCompileRejectsUndeclaredEffects(t *testing.T) {
	src := `
extern id="console.println"
  effects console end
  signature
    param name="msg" type="String" end
  end
end

fn id="app.greet"
  signature
  end
  body
    call target="console.println" lit="hi" as="_" end
  end
end
`
	res := Compile("test.cov", []byte(src))
	if !res.Diags.HasErrors() {
		t.Fatalf("expected a missing-effect diagnostic")
	}
	if res.Module != nil {
		t.Fatalf("expected no module when effect checking fails")
	}
}

func TestCompileCachedHitsOnSecondCall(t *testing.T) {
	store, err := compilerstore.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open compile cache: %v", err)
	}
	defer store.Close()

	src := []byte(`
fn id="app.main"
  signature
  end
  body
    compute op="add" lit=1 lit=1 as="two" end
    return end
  end
end
`)

	first, err := CompileCached(store, "test.cov", src)
	if err != nil {
		t.Fatalf("CompileCached failed: %v", err)
	}
	if first.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %+v", first.Diags.All())
	}

	second, err := CompileCached(store, "test.cov", src)
	if err != nil {
		t.Fatalf("CompileCached failed on cache hit: %v", err)
	}
	if !bytes.Equal(first.Module, second.Module) {
		t.Fatalf("expected identical module bytes from cache hit")
	}
}
