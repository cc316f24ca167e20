// Package compiler wires the per-phase packages into the fixed pipeline
// spec.md §2/§7 describes: parse -> symbol graph -> effects -> types ->
// requirements -> optimize -> emit. Each phase gates the next on its
// diagnostic bag carrying no Error-severity entries, mirroring the
// teacher's own phase discipline of accumulating diagnostics into a bag
// rather than aborting on the first failure.
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"covenant/internal/ast"
	"covenant/internal/compilerstore"
	"covenant/internal/diag"
	"covenant/internal/effects"
	"covenant/internal/ir"
	"covenant/internal/logging"
	"covenant/internal/optimizer"
	"covenant/internal/parser"
	"covenant/internal/requirements"
	"covenant/internal/source"
	"covenant/internal/symgraph"
	"covenant/internal/types"
	"covenant/internal/wasm"
)

// Result is the outcome of a full pipeline run. Module is nil if any
// phase reported an Error-severity diagnostic.
type Result struct {
	Program      *ir.Program
	Graph        *symgraph.Graph
	Effects      *effects.Closure
	Requirements *requirements.Report
	Module       []byte
	Diags        *diag.Bag
}

// ContentHash returns the hex SHA-256 of src, used both as the compile
// cache's key (internal/compilerstore) and as the audit log's request
// correlation ID.
func ContentHash(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// Compile runs the full pipeline over src, named name for diagnostic
// spans. Each phase runs only if no earlier phase reported an
// Error-severity diagnostic; Compile returns as soon as one does, so the
// Result carries the diagnostics of the phases that ran.
func Compile(name string, src []byte) *Result {
	reqID := ContentHash(src)
	audit := logging.AuditWithRequest(reqID)

	diags := &diag.Bag{}
	file := source.NewFile(name, src)

	runPhase := func(phase string, fn func() bool) bool {
		timer := logging.StartTimer(logging.CategoryBoot, phase)
		audit.PhaseStart(phase)
		ok := fn()
		elapsed := timer.Stop()
		audit.PhaseComplete(phase, elapsed.Milliseconds(), ok)
		return ok
	}

	res := &Result{Diags: diags}

	var prog *ast.Program
	if !runPhase("parse", func() bool {
		prog = parser.Parse(file, diags)
		return !diags.HasErrors()
	}) {
		return res
	}

	var g *symgraph.Graph
	if !runPhase("symgraph", func() bool {
		g = symgraph.Build(prog, diags)
		res.Graph = g
		return !diags.HasErrors()
	}) {
		return res
	}

	var closure *effects.Closure
	if !runPhase("effects", func() bool {
		closure = effects.Compute(g, diags)
		res.Effects = closure
		return !diags.HasErrors()
	}) {
		return res
	}

	if !runPhase("types", func() bool {
		res.Program = types.Check(g, diags)
		return !diags.HasErrors()
	}) {
		return res
	}

	if !runPhase("requirements", func() bool {
		res.Requirements = requirements.Check(g, diags)
		return !diags.HasErrors()
	}) {
		return res
	}

	if !runPhase("optimizer", func() bool {
		optimizer.Run(res.Program, closure, diags)
		return !diags.HasErrors()
	}) {
		return res
	}

	runPhase("emit", func() bool {
		res.Module = wasm.Emit(res.Program, g, closure, diags)
		return !diags.HasErrors()
	})

	for _, d := range diags.All() {
		audit.Diagnostic(d.Severity.String(), string(d.Code), d.Message)
	}

	return res
}

// CompileFile reads path from disk via the given loader and runs
// Compile over its contents.
func CompileFile(path string, read func(string) ([]byte, error)) (*Result, error) {
	src, err := read(path)
	if err != nil {
		return nil, err
	}
	return Compile(path, src), nil
}

// CompileCached runs Compile only on a cache miss, keyed by the SHA-256 of
// src. A cache hit returns the previously emitted module directly, skipping
// every pipeline phase (spec.md's phase list is unchanged; this only adds
// memoization in front of it).
func CompileCached(store *compilerstore.Store, name string, src []byte) (*Result, error) {
	hash := ContentHash(src)

	if entry, ok, err := store.Get(hash); err != nil {
		return nil, fmt.Errorf("compile cache lookup failed: %w", err)
	} else if ok {
		logging.Get(logging.CategoryStore).Debug("compile cache hit for %s (run %s)", name, entry.RunID)
		res := &Result{Module: entry.Module, Diags: &diag.Bag{}}
		if entry.HasErrors {
			res.Module = nil
		}
		return res, nil
	}

	res := Compile(name, src)
	if _, err := store.Put(hash, res.Module, res.Diags.All(), res.Diags.HasErrors()); err != nil {
		return nil, fmt.Errorf("compile cache store failed: %w", err)
	}
	return res, nil
}
