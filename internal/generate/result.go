// Package generate models the flat, index-linked payload produced by the
// external text-to-structure service and normalizes it for the importer.
package generate

import (
	"encoding/json"
	"errors"
	"fmt"

	"planline/internal/domain"
)

// ErrMalformedInput is returned when the top-level payload is not a JSON
// object. Nothing is repaired or persisted in that case.
var ErrMalformedInput = errors.New("malformed generation result")

// Result is a normalized generation result: every collection field is a
// non-nil ordered slice and analysis/timeline always carry a value.
type Result struct {
	Analysis               Analysis                     `json:"analysis"`
	ClientRequirements     []ClientRequirementInput     `json:"clientRequirements"`
	FunctionalRequirements []FunctionalRequirementInput `json:"functionalRequirements"`
	Epics                  []EpicInput                  `json:"epics"`
	Tasks                  []TaskInput                  `json:"tasks"`
	Timeline               Timeline                     `json:"timeline"`
}

type Analysis struct {
	Summary             string `json:"summary"`
	Complexity          string `json:"complexity"`
	EstimatedDuration   string `json:"estimatedDuration"`
	RecommendedTeamSize int    `json:"recommendedTeamSize"`
}

type Timeline struct {
	ProjectDuration string      `json:"projectDuration"`
	Milestones      []Milestone `json:"milestones"`
}

type Milestone struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
}

type ClientRequirementInput struct {
	Title       string `json:"title"`
	ClientName  string `json:"clientName"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// FunctionalRequirementInput may reference its parent by an index key such
// as "fr-3"; that key is a position in this run's array, not a persisted
// identifier.
type FunctionalRequirementInput struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Type                string   `json:"type"`
	Priority            string   `json:"priority"`
	Complexity          string   `json:"complexity"`
	AcceptanceCriteria  []string `json:"acceptanceCriteria"`
	BusinessRules       []string `json:"businessRules"`
	ParentID            string   `json:"parentId"`
	ClientRequirementID string   `json:"clientRequirementId"`
}

type EpicInput struct {
	Name                     string   `json:"name"`
	Description              string   `json:"description"`
	Color                    string   `json:"color"`
	StartDate                string   `json:"startDate"`
	EndDate                  string   `json:"endDate"`
	FunctionalRequirementIDs []string `json:"functionalRequirementIds"`
}

// TaskInput may reference an epic by a stringified array index ("5").
type TaskInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       string   `json:"priority"`
	EstimatedHours float64  `json:"estimatedHours"`
	EpicID         string   `json:"epicId"`
	Labels         []string `json:"labels"`
}

// Normalize parses a raw generation payload and backfills defaults so the
// importer can assume well-formed arrays. Entities are never dropped or
// reordered here.
func Normalize(raw []byte) (*Result, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: top-level payload is not an object", ErrMalformedInput)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	res.applyDefaults()
	return &res, nil
}

func (r *Result) applyDefaults() {
	if r.Analysis == (Analysis{}) {
		r.Analysis = Analysis{
			Summary:           "No analysis provided",
			Complexity:        domain.ComplexityMedium,
			EstimatedDuration: "unknown",
		}
	}
	if !domain.ValidComplexity(r.Analysis.Complexity) {
		r.Analysis.Complexity = domain.ComplexityMedium
	}
	if r.Analysis.EstimatedDuration == "" {
		r.Analysis.EstimatedDuration = "unknown"
	}
	if r.Timeline.ProjectDuration == "" {
		r.Timeline.ProjectDuration = "unknown"
	}
	if r.Timeline.Milestones == nil {
		r.Timeline.Milestones = []Milestone{}
	}
	if r.ClientRequirements == nil {
		r.ClientRequirements = []ClientRequirementInput{}
	}
	if r.FunctionalRequirements == nil {
		r.FunctionalRequirements = []FunctionalRequirementInput{}
	}
	if r.Epics == nil {
		r.Epics = []EpicInput{}
	}
	if r.Tasks == nil {
		r.Tasks = []TaskInput{}
	}
	for i := range r.ClientRequirements {
		if !domain.ValidPriority(r.ClientRequirements[i].Priority) {
			r.ClientRequirements[i].Priority = domain.PriorityMedium
		}
	}
	for i := range r.FunctionalRequirements {
		fr := &r.FunctionalRequirements[i]
		if fr.AcceptanceCriteria == nil {
			fr.AcceptanceCriteria = []string{}
		}
		if fr.BusinessRules == nil {
			fr.BusinessRules = []string{}
		}
		if !domain.ValidPriority(fr.Priority) {
			fr.Priority = domain.PriorityMedium
		}
		if !domain.ValidComplexity(fr.Complexity) {
			fr.Complexity = domain.ComplexityMedium
		}
	}
	for i := range r.Epics {
		if r.Epics[i].FunctionalRequirementIDs == nil {
			r.Epics[i].FunctionalRequirementIDs = []string{}
		}
	}
	for i := range r.Tasks {
		if r.Tasks[i].Labels == nil {
			r.Tasks[i].Labels = []string{}
		}
		if !domain.ValidPriority(r.Tasks[i].Priority) {
			r.Tasks[i].Priority = domain.PriorityMedium
		}
	}
}
