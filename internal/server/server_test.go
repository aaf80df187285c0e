package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/importer"
	"planline/internal/notify"
	"planline/internal/repo"
	"planline/internal/store"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	mem := store.NewMemory()
	log := logrus.New()
	log.SetOutput(io.Discard)
	clock := func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	imp := importer.New(mem, log)
	imp.Now = clock
	ev := events.Writer{Store: mem, Now: clock}

	handler, err := New(Config{
		Repo:     repo.Repo{Store: mem},
		Importer: imp,
		Events:   ev,
		Notifier: notify.Noop{},
		BasePath: "/v0",
		Auth:     auth,
		Log:      log,
		Now:      clock,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createProject(t *testing.T, srv *testServer, name string) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name": name,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

const importPayload = `{
  "clientRequirements": [
    {"title": "Customers sign in", "clientName": "Acme", "priority": "HIGH"}
  ],
  "functionalRequirements": [
    {"title": "Login", "type": "functional", "clientRequirementId": "0"},
    {"title": "Password reset", "type": "functional", "parentId": "fr-0"}
  ],
  "epics": [
    {"name": "Auth", "functionalRequirementIds": ["fr-0", "fr-1"]}
  ],
  "tasks": [
    {"title": "Build login form", "epicId": "0"},
    {"title": "Write docs"}
  ]
}`

func TestImportFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Test Project")
	if p.Code != "TE" {
		t.Fatalf("expected project code TE, got %q", p.Code)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/imports", bytes.NewReader([]byte(importPayload)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do import: %v", err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("import status %d: %s", res.StatusCode, string(data))
	}
	var out ImportResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal import response: %v", err)
	}
	if len(out.ClientRequirements) != 1 || out.ClientRequirements[0].HierarchyID != "CR-01" {
		t.Fatalf("client requirements: %+v", out.ClientRequirements)
	}
	if len(out.FunctionalRequirements) != 2 {
		t.Fatalf("functional requirements: %+v", out.FunctionalRequirements)
	}
	if out.FunctionalRequirements[0].HierarchyID != "REQ-01" || out.FunctionalRequirements[1].HierarchyID != "REQ-01.01" {
		t.Fatalf("requirement codes: %+v", out.FunctionalRequirements)
	}
	if len(out.Epics) != 1 || out.Epics[0].HierarchyID != "TE-EPIC-01" {
		t.Fatalf("epics: %+v", out.Epics)
	}
	if len(out.Tasks) != 2 || out.Tasks[0].HierarchyID != "TE-001" || out.Tasks[1].HierarchyID != "TE-002" {
		t.Fatalf("tasks: %+v", out.Tasks)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", out.Warnings)
	}

	listRes, listData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/tasks", nil, nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", listRes.StatusCode, string(listData))
	}
	var tasks struct {
		Items []domain.Task `json:"items"`
	}
	if err := json.Unmarshal(listData, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks.Items) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks.Items))
	}
	if tasks.Items[0].EpicID == nil {
		t.Fatalf("first task should be linked to an epic")
	}
	if tasks.Items[1].EpicID != nil {
		t.Fatalf("second task should be unlinked")
	}

	evRes, evData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/events", nil, nil)
	if evRes.StatusCode != http.StatusOK {
		t.Fatalf("list events status %d: %s", evRes.StatusCode, string(evData))
	}
	var evs struct {
		Items []domain.Event `json:"items"`
	}
	if err := json.Unmarshal(evData, &evs); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	var sawImport bool
	for _, e := range evs.Items {
		if e.Type == "import.completed" {
			sawImport = true
		}
	}
	if !sawImport {
		t.Fatalf("expected import.completed event, got %+v", evs.Items)
	}
}

func TestImportRejectsMalformedPayload(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	p := createProject(t, srv, "Demo")

	for _, payload := range []string{`[]`, `"text"`, `42`, `not json`} {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/imports", bytes.NewReader([]byte(payload)))
		req.Header.Set("Content-Type", "application/json")
		res, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("do import: %v", err)
		}
		data, _ := io.ReadAll(res.Body)
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %q: expected 400, got %d %s", payload, res.StatusCode, string(data))
		}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("unmarshal error envelope: %v", err)
		}
		if envelope.Error.Code != "malformed_input" {
			t.Fatalf("payload %q: expected malformed_input, got %q", payload, envelope.Error.Code)
		}
	}
}

func TestImportUnknownProject(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v0/projects/nope/imports", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do import: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestSprintCodesAreSequential(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	p := createProject(t, srv, "Test Project")

	for i, want := range []string{"TE-S01", "TE-S02"} {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/sprints", map[string]any{
			"name": "Sprint",
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("sprint %d status %d: %s", i, res.StatusCode, string(data))
		}
		var s domain.Sprint
		if err := json.Unmarshal(data, &s); err != nil {
			t.Fatalf("unmarshal sprint: %v", err)
		}
		if s.Code != want {
			t.Fatalf("sprint %d: expected code %s, got %s", i, want, s.Code)
		}
	}
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{APIKeys: []string{"secret-key"}})
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be exempt, got %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"X-Api-Key": "secret-key"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with api key, got %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", res.StatusCode)
	}
}

func TestDevTokenFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "test-secret", AllowDevTokens: true})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev-token", map[string]any{
		"actor_id": "dev",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev token status %d: %s", res.StatusCode, string(data))
	}
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if out["token"] == "" {
		t.Fatalf("empty token: %s", string(data))
	}

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"Authorization": "Bearer " + out["token"],
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d %s", res.StatusCode, string(body))
	}
}
