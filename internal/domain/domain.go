// Package domain holds the entity types stored in the document store and
// the enumerations shared across the import pipeline, API and CLI.
package domain

// Collection names in the document store.
const (
	CollectionProjects           = "projects"
	CollectionClientRequirements = "clientRequirements"
	CollectionRequirements       = "functionalRequirements"
	CollectionEpics              = "epics"
	CollectionTasks              = "tasks"
	CollectionSprints            = "sprints"
	CollectionEvents             = "events"
)

// Entity statuses. Imported records start in the draft/todo/planned state
// of their type; projects are active from creation.
const (
	StatusDraft   = "draft"
	StatusTodo    = "todo"
	StatusPlanned = "planned"
	StatusActive  = "active"
)

const (
	PriorityLow      = "LOW"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"
)

const (
	ComplexityLow      = "LOW"
	ComplexityMedium   = "MEDIUM"
	ComplexityHigh     = "HIGH"
	ComplexityVeryHigh = "VERY_HIGH"
)

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func ValidComplexity(c string) bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh, ComplexityVeryHigh:
		return true
	}
	return false
}

type Project struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type ClientRequirement struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	HierarchyID string `json:"hierarchy_id"`
	Title       string `json:"title"`
	ClientName  string `json:"client_name,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// FunctionalRequirement nodes form a forest: ParentID is nil for roots and
// points at the persisted parent id otherwise. The hierarchy code encodes
// the same ancestry (REQ-02.01 is the first child of REQ-02).
type FunctionalRequirement struct {
	ID                  string   `json:"id"`
	ProjectID           string   `json:"project_id"`
	HierarchyID         string   `json:"hierarchy_id"`
	Title               string   `json:"title"`
	Description         string   `json:"description,omitempty"`
	Type                string   `json:"type,omitempty"`
	Priority            string   `json:"priority"`
	Complexity          string   `json:"complexity"`
	Status              string   `json:"status"`
	ParentID            *string  `json:"parent_id,omitempty"`
	ClientRequirementID *string  `json:"client_requirement_id,omitempty"`
	AcceptanceCriteria  []string `json:"acceptance_criteria"`
	BusinessRules       []string `json:"business_rules"`
	CreatedAt           string   `json:"created_at"`
}

// Epic groups the functional requirements it was generated from; an epic
// may cover several requirements and requirements may stay uncovered.
type Epic struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	HierarchyID    string   `json:"hierarchy_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Color          string   `json:"color,omitempty"`
	Status         string   `json:"status"`
	StartDate      string   `json:"start_date,omitempty"`
	EndDate        string   `json:"end_date,omitempty"`
	RequirementIDs []string `json:"requirement_ids"`
	CreatedAt      string   `json:"created_at"`
}

type Task struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	HierarchyID    string   `json:"hierarchy_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority"`
	Status         string   `json:"status"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	EpicID         *string  `json:"epic_id,omitempty"`
	Labels         []string `json:"labels"`
	CreatedAt      string   `json:"created_at"`
}

type Sprint struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Goal      string `json:"goal,omitempty"`
	Status    string `json:"status"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Event is an append-only audit record.
type Event struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}
