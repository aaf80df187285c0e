package config_test

import (
	"testing"

	"planline/internal/config"
)

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
project:
  id: proj-1
  name: Test Project
auth:
  api_keys: [k1, k2]
notify:
  mode: log
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Project.ID != "proj-1" || cfg.Project.Name != "Test Project" {
		t.Fatalf("unexpected project: %+v", cfg.Project)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("defaults not applied: %+v", cfg.Server)
	}
	if len(cfg.Auth.APIKeys) != 2 {
		t.Fatalf("api keys: %+v", cfg.Auth)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	if _, err := config.FromYAML([]byte(`project: {id: proj-1}`)); err == nil {
		t.Fatalf("expected missing name error")
	}
	if _, err := config.FromYAML([]byte("project: {id: p, name: n}\nnotify: {mode: carrier-pigeon}")); err == nil {
		t.Fatalf("expected notify mode error")
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default("proj-1", "Test Project")
	if err := cfg.Write(dir); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Project.ID != "proj-1" || loaded.Notify.Mode != "log" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}
