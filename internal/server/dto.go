package server

import (
	"planline/internal/domain"
	"planline/internal/importer"
)

type CreateProjectRequest struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	WorkspaceID string  `json:"workspace_id,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ProjectResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		WorkspaceID: p.WorkspaceID,
		Name:        p.Name,
		Code:        p.Code,
		Status:      p.Status,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

// ImportResponse is the structured summary returned by an import run:
// ordered {id, hierarchy_id} pairs per entity type plus any warnings.
type ImportResponse struct {
	ClientRequirements     []importer.Ref     `json:"clientRequirements"`
	FunctionalRequirements []importer.Ref     `json:"functionalRequirements"`
	Epics                  []importer.Ref     `json:"epics"`
	Tasks                  []importer.Ref     `json:"tasks"`
	Warnings               []importer.Warning `json:"warnings,omitempty"`
}

func importResponse(sum *importer.Summary) ImportResponse {
	return ImportResponse{
		ClientRequirements:     sum.ClientRequirements,
		FunctionalRequirements: sum.FunctionalRequirements,
		Epics:                  sum.Epics,
		Tasks:                  sum.Tasks,
		Warnings:               sum.Warnings,
	}
}

type CreateSprintRequest struct {
	Name      string `json:"name"`
	Goal      string `json:"goal,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}
