package planlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Planline HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Ref pairs a persisted id with its hierarchy code.
type Ref struct {
	ID          string `json:"id"`
	HierarchyID string `json:"hierarchy_id"`
}

// ImportWarning reports a reference the import absorbed instead of failing.
type ImportWarning struct {
	Kind   string `json:"kind"`
	Entity string `json:"entity"`
	Index  int    `json:"index"`
	Ref    string `json:"ref,omitempty"`
}

// ImportResult is the summary returned by an import run.
type ImportResult struct {
	ClientRequirements     []Ref           `json:"clientRequirements"`
	FunctionalRequirements []Ref           `json:"functionalRequirements"`
	Epics                  []Ref           `json:"epics"`
	Tasks                  []Ref           `json:"tasks"`
	Warnings               []ImportWarning `json:"warnings,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	HierarchyID string  `json:"hierarchy_id"`
	Title       string  `json:"title"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	EpicID      *string `json:"epic_id,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// Sprint represents the API sprint model.
type Sprint struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project and remembers its id on the client.
func (c *Client) CreateProject(ctx context.Context, name string) (Project, error) {
	body := map[string]any{"name": name}
	var resp Project
	if err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp); err != nil {
		return Project{}, err
	}
	if c.ProjectID == "" {
		c.ProjectID = resp.ID
	}
	return resp, nil
}

// GetProject fetches the client's project.
func (c *Client) GetProject(ctx context.Context) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/projects/%s", url.PathEscape(c.ProjectID)), nil, &resp)
	return resp, err
}

// ImportGeneration submits a raw generation result for import. The payload
// is passed through as-is so callers can forward service output directly.
func (c *Client) ImportGeneration(ctx context.Context, payload json.RawMessage) (ImportResult, error) {
	var resp ImportResult
	err := c.doRaw(ctx, http.MethodPost, c.projectPath("imports"), payload, &resp)
	return resp, err
}

// ListTasks returns the project's tasks.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.projectPath("tasks"), nil, &resp)
	return resp.Items, err
}

// Events returns the project's event log.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.projectPath("events"), nil, &resp)
	return resp.Items, err
}

// CreateSprint creates a sprint; its code is assigned server-side.
func (c *Client) CreateSprint(ctx context.Context, name, goal string) (Sprint, error) {
	body := map[string]any{"name": name, "goal": goal}
	var resp Sprint
	err := c.do(ctx, http.MethodPost, c.projectPath("sprints"), body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		raw = b
	}
	return c.doRaw(ctx, method, endpoint, raw, out)
}

func (c *Client) doRaw(ctx context.Context, method, endpoint string, body json.RawMessage, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
