package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("https://localhost:9443")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Console.PageSize != 10 || cfg.SessionIdle() != 15*time.Minute || cfg.Timeout() != 30*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg.Console)
	}
	if r := cfg.Resource("groups"); r.Pagination != "scim" || r.Path != "scim2/Groups" {
		t.Fatalf("unexpected groups resource %+v", r)
	}
	if r := cfg.Resource("missing"); r != (Resource{}) {
		t.Fatalf("missing resource should be zero, got %+v", r)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"base url":       "server:\n  base_url: ftp://x\n",
		"auth exclusive": "server:\n  base_url: https://x\nauth:\n  token: t\n  client_id: c\n",
		"token url":      "server:\n  base_url: https://x\nauth:\n  client_id: c\n  client_secret: s\n",
		"delete policy":  "server:\n  base_url: https://x\nresources:\n  groups:\n    delete_policy: purge\n",
		"pagination":     "server:\n  base_url: https://x\nresources:\n  groups:\n    pagination: cursor\n",
		"session idle":   "server:\n  base_url: https://x\nconsole:\n  session_idle: soon\n",
		"webhook url":    "server:\n  base_url: https://x\nwebhooks:\n  - url: not-a-url\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if _, err := FromYAML([]byte("server: [")); err == nil || !strings.Contains(err.Error(), "invalid config yaml") {
		t.Fatalf("expected yaml error, got %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "idc config init") {
		t.Fatalf("expected hint, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "console.yml"), []byte(GenerateDefault("http://127.0.0.1:9763")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.BaseURL != "http://127.0.0.1:9763" {
		t.Fatalf("unexpected base url %s", cfg.Server.BaseURL)
	}
}
