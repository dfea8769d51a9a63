package app

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/config"
	"github.com/wso2/identity-apps-sub079/internal/events"
	"github.com/wso2/identity-apps-sub079/internal/repo"
)

func TestResolveConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	if _, err := ResolveConfig(dir, Overrides{}); err == nil || !strings.Contains(err.Error(), "idc config init") {
		t.Fatalf("expected missing config hint, got %v", err)
	}
	cfg, err := ResolveConfig(dir, Overrides{BaseURL: "https://iam.local:9443", Token: "tok"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Server.BaseURL != "https://iam.local:9443" || cfg.Auth.Token != "tok" {
		t.Fatalf("overrides not applied %+v", cfg.Server)
	}

	doc := config.GenerateDefault("https://file.local") + "\n"
	doc = strings.Replace(doc, "auth:\n  token: \"\"", "auth:\n  client_id: app\n  client_secret: s\n  token_url: https://file.local/oauth2/token", 1)
	if err := os.WriteFile(config.Path(dir), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = ResolveConfig(dir, Overrides{Token: "tok"})
	if err != nil {
		t.Fatalf("a token override must replace client credentials: %v", err)
	}
	if cfg.Server.BaseURL != "https://file.local" || cfg.Auth.ClientID != "" {
		t.Fatalf("unexpected config %+v", cfg.Auth)
	}
}

func TestOpenPersistsAlerts(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(context.Background(), dir, Overrides{BaseURL: "http://127.0.0.1:1"}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	if len(c.Registry.Names()) != 5 {
		t.Fatalf("unexpected features %v", c.Registry.Names())
	}
	c.Sink("cli").Add(alert.Alert{Level: alert.Error, Source: "groups", Message: "Something went wrong"})
	got, err := c.Repo.EventsAfter(context.Background(), 10, 0, repo.EventFilter{Type: events.TypeAlert, ActorID: "cli"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 1 || got[0].Resource != "groups" {
		t.Fatalf("unexpected events %+v", got)
	}
}
