// Package requirements links `requires` declarations to the `tests` that
// claim to cover them and reports coverage gaps (spec.md §4.5).
//
// Like internal/effects, this phase builds a small bidirectional map over
// the whole program rather than checking each snippet in isolation — a
// requirement declared in one fn can legitimately be covered by a test
// declared in another, so the link can only be resolved once every
// snippet has been seen.
package requirements

import (
	"sort"

	"covenant/internal/diag"
	"covenant/internal/symgraph"
)

// RequirementInfo describes one `requires` declaration and the tests
// that cover it.
type RequirementInfo struct {
	ID           string
	Priority     string
	Status       string
	Owner        string   // snippet id the requirement was declared in
	CoveredBy    []string // test ids, sorted
}

// TestInfo describes one `tests` entry and what it covers.
type TestInfo struct {
	ID     string
	Covers string // requirement id, or "" if this test covers nothing
	Owner  string // snippet id the test is declared in
}

// Report is the bidirectional requirement <-> test link table
// (spec.md §4.5 invariant I3: every covers link is bidirectional).
type Report struct {
	Requirements map[string]*RequirementInfo
	Tests        map[string]*TestInfo
}

// Check builds the coverage report for every requirement/test in g and
// reports E-REQ-DANGLING / E-REQ-UNCOVERED diagnostics.
func Check(g *symgraph.Graph, diags *diag.Bag) *Report {
	rep := &Report{
		Requirements: map[string]*RequirementInfo{},
		Tests:        map[string]*TestInfo{},
	}

	for _, id := range g.Order {
		snip := g.Nodes[id].Snippet
		for _, r := range snip.Requires {
			if _, dup := rep.Requirements[r.ID]; dup {
				diags.Errorf(diag.FamilyRequirement, "E-REQ-DUPLICATE", r.Span, "requirement %q is declared more than once", r.ID)
				continue
			}
			rep.Requirements[r.ID] = &RequirementInfo{ID: r.ID, Priority: r.Priority, Status: r.Status, Owner: id}
		}
	}

	for _, id := range g.Order {
		snip := g.Nodes[id].Snippet
		for _, t := range snip.Tests {
			rep.Tests[t.ID] = &TestInfo{ID: t.ID, Covers: t.Covers, Owner: id}
			if t.Covers != "" {
				if info, ok := rep.Requirements[t.Covers]; ok {
					info.CoveredBy = append(info.CoveredBy, t.ID)
				} else {
					diags.Errorf(diag.FamilyRequirement, "E-REQ-DANGLING", t.Span, "test %q covers unknown requirement %q", t.ID, t.Covers)
				}
			}
		}
	}

	var reqIDs []string
	for id := range rep.Requirements {
		reqIDs = append(reqIDs, id)
	}
	sort.Strings(reqIDs)

	for _, id := range reqIDs {
		info := rep.Requirements[id]
		sort.Strings(info.CoveredBy)
		if len(info.CoveredBy) > 0 {
			continue
		}
		span := g.Span(info.Owner)
		switch info.Priority {
		case "critical":
			diags.Errorf(diag.FamilyRequirement, "E-REQ-UNCOVERED", span, "critical requirement %q has no covering test", id)
		case "high":
			diags.Warnf(diag.FamilyRequirement, "E-REQ-UNCOVERED", span, "high-priority requirement %q has no covering test", id)
		default:
			diags.Infof(diag.FamilyRequirement, "E-REQ-UNCOVERED", span, "requirement %q has no covering test", id)
		}
	}

	return rep
}
