// Package diag defines the diagnostic model shared by every compiler phase.
//
// A Diagnostic is a deterministic, serialisable record of a single finding:
// a stable Code, a Severity, a human message, the primary Span, and an
// optional Suggestion. Producers (lexer, parser, checkers, optimizer)
// accumulate diagnostics into a Bag without coupling to how they are
// eventually rendered or stored — that split mirrors the teacher's own
// "accumulate, don't panic" phase discipline (internal/mangle validation
// and internal/logging audit events never abort the caller).
package diag

import (
	"fmt"
	"sort"

	"covenant/internal/source"
)

// Severity ranks a Diagnostic. Only Error gates the next phase (spec.md §7).
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Family groups codes by the phase family that raises them (spec.md §7).
type Family string

const (
	FamilyParse        Family = "parse"
	FamilySymbol       Family = "symbol"
	FamilyEffect       Family = "effect"
	FamilyType         Family = "type"
	FamilyRequirement  Family = "requirement"
	FamilyOptimizer    Family = "optimizer"
	FamilyEmit         Family = "emit"
)

// Code is a stable diagnostic identifier, e.g. "E-PARSE-001", "W-DEAD-001".
type Code string

// Note is a secondary span/message attached to a Diagnostic for extra
// context ("value declared here"). Used sparingly per the pack's diag idiom.
type Note struct {
	Span    source.Span
	Message string
}

// Suggestion is a single proposed textual fix. The core never applies
// fixes itself (editor integration is out of scope per spec.md §1); it
// only records what a fix would look like.
type Suggestion struct {
	Title       string
	Replacement string
	Span        source.Span
}

// Diagnostic is the central record produced by every phase.
type Diagnostic struct {
	Code       Code
	Severity   Severity
	Family     Family
	Message    string
	Span       source.Span
	Notes      []Note
	Suggestion *Suggestion
}

func (d Diagnostic) String() string {
	pos := d.Span.Position()
	return fmt.Sprintf("%s: %s: %s (%s)", pos, d.Severity, d.Message, d.Code)
}

// Bag accumulates diagnostics in order of discovery, as spec.md §6.3
// requires ("Diagnostics are emitted in source order").
type Bag struct {
	items []Diagnostic
}

// Add appends a diagnostic, preserving discovery order.
func (b *Bag) Add(d Diagnostic) {
	b.items = append(b.items, d)
}

// Errorf is a convenience constructor for an Error-severity diagnostic.
func (b *Bag) Errorf(family Family, code Code, span source.Span, format string, args ...interface{}) {
	b.Add(Diagnostic{Code: code, Severity: Error, Family: family, Message: fmt.Sprintf(format, args...), Span: span})
}

// Warnf is a convenience constructor for a Warning-severity diagnostic.
func (b *Bag) Warnf(family Family, code Code, span source.Span, format string, args ...interface{}) {
	b.Add(Diagnostic{Code: code, Severity: Warning, Family: family, Message: fmt.Sprintf(format, args...), Span: span})
}

// Infof is a convenience constructor for an Info-severity diagnostic.
func (b *Bag) Infof(family Family, code Code, span source.Span, format string, args ...interface{}) {
	b.Add(Diagnostic{Code: code, Severity: Info, Family: family, Message: fmt.Sprintf(format, args...), Span: span})
}

// HasErrors reports whether any accumulated diagnostic is Error severity.
// compiler.Compile uses this to gate phases per spec.md §7.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// All returns the accumulated diagnostics in discovery order.
func (b *Bag) All() []Diagnostic {
	return b.items
}

// Merge appends another bag's diagnostics, preserving relative order:
// this bag's own diagnostics first (they were discovered first), then
// other's. Used when a phase fans a sub-computation out and must fold
// results back in declaration order (see internal/types §4 in SPEC_FULL.md).
func (b *Bag) Merge(other *Bag) {
	b.items = append(b.items, other.items...)
}

// SortBySpan orders diagnostics by file, then offset — used only for
// display; internal accumulation order is always discovery order.
func SortBySpan(ds []Diagnostic) []Diagnostic {
	out := make([]Diagnostic, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Span.Position(), out[j].Span.Position()
		if pi.File != pj.File {
			return pi.File < pj.File
		}
		return out[i].Span.Start < out[j].Span.Start
	})
	return out
}
