package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/generate"
	"planline/internal/hierarchy"
	"planline/internal/importer"
	"planline/internal/notify"
	"planline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	Importer importer.Importer
	Events   events.Writer
	Notifier notify.Notifier
	BasePath string
	Auth     AuthConfig
	Log      *logrus.Logger
	Now      func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"store_write_failed"`
	Message string         `json:"message" example:"store create tasks failed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the planline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Now))
	hcfg := huma.DefaultConfig("Planline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProjects(group, cfg)
	registerImports(group, cfg)
	registerEntities(group, cfg)
	registerSprints(group, cfg)
	registerDevAuth(group, cfg)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se *importer.StoreError
	if errors.As(err, &se) {
		// surface the underlying store error text plus partial counts so
		// operators can decide whether to re-run or clean up duplicates
		return newAPIError(http.StatusBadGateway, "store_write_failed", err.Error(), map[string]any{
			"created": se.Summary.Counts(),
		})
	}
	if errors.Is(err, generate.ErrMalformedInput) {
		return newAPIError(http.StatusBadRequest, "malformed_input", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "store_write_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		id := input.Body.ID
		if id == "" {
			id = uuid.NewString()
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p := domain.Project{
			ID:          id,
			WorkspaceID: input.Body.WorkspaceID,
			Name:        input.Body.Name,
			Code:        hierarchy.ProjectCode(input.Body.Name),
			Status:      domain.StatusActive,
			Description: desc,
			CreatedAt:   cfg.Now().UTC().Format(time.RFC3339),
		}
		if err := cfg.Repo.InsertProject(ctx, p); err != nil {
			return nil, handleError(err)
		}
		appendEvent(ctx, cfg, "project.created", p.ID, "project", p.ID, events.EventPayload{"name": p.Name})
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := cfg.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := cfg.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerImports(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "import-generation-result",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/imports",
		Summary:       "Import a generation result",
		Description:   "Assigns hierarchy codes and persists the generated entities in dependency order. Partial completion is reported, never rolled back automatically.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RawBody   []byte
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		res, err := generate.Normalize(input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		project, err := cfg.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		sum, runErr := cfg.Importer.Run(ctx, project, res)
		if runErr != nil {
			return nil, handleError(runErr)
		}
		appendEvent(ctx, cfg, "import.completed", project.ID, "import", "", events.EventPayload{
			"counts":   sum.Counts(),
			"warnings": len(sum.Warnings),
		})
		if err := cfg.Notifier.ImportCompleted(ctx, project, sum); err != nil {
			cfg.Log.WithError(err).Warn("import notification failed")
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: importResponse(sum)}, nil
	})
}

func registerEntities(api huma.API, cfg Config) {
	registerList(api, cfg, "client-requirements", "List client requirements", cfg.Repo.ListClientRequirements)
	registerList(api, cfg, "requirements", "List functional requirements", cfg.Repo.ListRequirements)
	registerList(api, cfg, "epics", "List epics", cfg.Repo.ListEpics)
	registerList(api, cfg, "tasks", "List tasks", cfg.Repo.ListTasks)
	registerList(api, cfg, "events", "List events", cfg.Repo.ListEvents)
}

func registerList[T any](api huma.API, cfg Config, segment, summary string, list func(context.Context, string) ([]T, error)) {
	huma.Register(api, huma.Operation{
		OperationID: "list-" + segment,
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/" + segment,
		Summary:     summary,
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body struct {
			Items []T `json:"items"`
		} `json:"body"`
	}, error) {
		if err := cfg.Repo.ProjectExists(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := list(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []T `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})
}

func registerSprints(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sprints",
		Summary:       "Create sprint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p, err := cfg.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		existing, err := cfg.Repo.ListSprints(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		s := domain.Sprint{
			ID:        uuid.NewString(),
			ProjectID: p.ID,
			Code:      hierarchy.SprintCode(p.Code, len(existing)+1),
			Name:      input.Body.Name,
			Goal:      input.Body.Goal,
			Status:    domain.StatusPlanned,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			CreatedAt: cfg.Now().UTC().Format(time.RFC3339),
		}
		if err := cfg.Repo.InsertSprint(ctx, s); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints",
		Summary:     "List sprints",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body struct {
			Items []domain.Sprint `json:"items"`
		} `json:"body"`
	}, error) {
		if err := cfg.Repo.ProjectExists(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := cfg.Repo.ListSprints(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Sprint `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})
}

func registerDevAuth(api huma.API, cfg Config) {
	if !cfg.Auth.AllowDevTokens {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-token",
		Method:      http.MethodPost,
		Path:        "/auth/dev-token",
		Summary:     "Issue a development token",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ActorID string `json:"actor_id"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := issueDevToken(cfg.Auth.JWTSecret, input.Body.ActorID, cfg.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": token}}, nil
	})
}

func appendEvent(ctx context.Context, cfg Config, evtType, projectID, entityKind, entityID string, payload events.EventPayload) {
	actor := actorIDFromContext(ctx)
	if err := cfg.Events.Append(ctx, evtType, projectID, entityKind, entityID, actor, payload); err != nil {
		cfg.Log.WithError(err).WithField("type", evtType).Warn("event append failed")
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, req *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
	r.Get("/docs", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Planline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}
