package importer

import (
	"fmt"
	"strings"

	"planline/internal/store"
)

// Ref pairs a persisted identifier with its hierarchy code.
type Ref struct {
	ID          string `json:"id"`
	HierarchyID string `json:"hierarchy_id"`
}

// Warning records a locally absorbed problem: a skipped child requirement
// or a tolerated dangling link.
type Warning struct {
	Kind   string `json:"kind"`
	Entity string `json:"entity"`
	Index  int    `json:"index"`
	Ref    string `json:"ref,omitempty"`
}

// Summary accumulates created records as the pipeline progresses, so a
// mid-run abort still exposes everything written before the failure. The
// Created list doubles as the compensation log consumed by Cleanup.
type Summary struct {
	ClientRequirements     []Ref       `json:"clientRequirements"`
	FunctionalRequirements []Ref       `json:"functionalRequirements"`
	Epics                  []Ref       `json:"epics"`
	Tasks                  []Ref       `json:"tasks"`
	Warnings               []Warning   `json:"warnings,omitempty"`
	Created                []store.Key `json:"-"`
}

// NewSummary returns a summary with empty (non-nil) sequences.
func NewSummary() *Summary {
	return &Summary{
		ClientRequirements:     []Ref{},
		FunctionalRequirements: []Ref{},
		Epics:                  []Ref{},
		Tasks:                  []Ref{},
	}
}

func (s *Summary) warn(w Warning) {
	s.Warnings = append(s.Warnings, w)
}

// Counts reports how many records of each entity type were created.
func (s *Summary) Counts() map[string]int {
	return map[string]int{
		"clientRequirements":     len(s.ClientRequirements),
		"functionalRequirements": len(s.FunctionalRequirements),
		"epics":                  len(s.Epics),
		"tasks":                  len(s.Tasks),
	}
}

func (s *Summary) countsString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "created %d clientRequirements, %d functionalRequirements, %d epics, %d tasks",
		len(s.ClientRequirements), len(s.FunctionalRequirements), len(s.Epics), len(s.Tasks))
	return b.String()
}
