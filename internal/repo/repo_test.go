package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/db"
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/events"
	"github.com/wso2/identity-apps-sub079/internal/migrate"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestAlertSinkPersistsEvents(t *testing.T) {
	conn := setupDB(t)
	ctx := context.Background()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := alert.WithSource(events.Sink{Writer: events.Writer{DB: conn, Now: func() time.Time { return clock }}, ActorID: "alice"}, "groups")

	sink.Add(alert.Alert{Level: alert.Error, Message: "Something went wrong", Description: "Could not retrieve the group list."})
	sink.Add(alert.Succeeded(alert.Text{Message: "Deleted", Description: "The group was deleted."}))

	r := Repo{DB: conn}
	got, err := r.EventsAfter(ctx, 10, 0, EventFilter{Type: events.TypeAlert})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Level != "error" || got[0].Resource != "groups" || got[0].ActorID != "alice" || got[0].Description != "Could not retrieve the group list." {
		t.Fatalf("unexpected first event %+v", got[0])
	}
	if got[0].Payload != "{}" {
		t.Fatalf("payload should default to {}, got %q", got[0].Payload)
	}

	errorsOnly, err := r.LatestEvents(ctx, 10, 0, EventFilter{Level: "error"})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(errorsOnly) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(errorsOnly))
	}

	last, err := r.LatestEventID(ctx)
	if err != nil {
		t.Fatalf("latest id: %v", err)
	}
	after, err := r.EventsAfter(ctx, 10, last, EventFilter{})
	if err != nil || len(after) != 0 {
		t.Fatalf("expected nothing after latest id, got %d (%v)", len(after), err)
	}
	older, err := r.LatestEvents(ctx, 10, last, EventFilter{})
	if err != nil || len(older) != 1 {
		t.Fatalf("expected one event before cursor, got %d (%v)", len(older), err)
	}
}

func TestMutationEventsInTx(t *testing.T) {
	conn := setupDB(t)
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	w := events.Writer{DB: conn}
	if err := w.Append(ctx, tx, events.Record{Type: events.TypeDeleted, Resource: "certificates", EntityID: "partner", Payload: events.EventPayload{"policy": "reload"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	r := Repo{DB: conn}
	if got, _ := r.LatestEvents(ctx, 10, 0, EventFilter{}); len(got) != 0 {
		t.Fatalf("rolled back event persisted")
	}
	if err := w.Append(ctx, nil, events.Record{Type: events.TypeDeleted, Resource: "certificates", EntityID: "partner", Payload: events.EventPayload{"policy": "reload"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := r.LatestEvents(ctx, 10, 0, EventFilter{Resource: "certificates", EntityID: "partner"})
	if err != nil || len(got) != 1 || got[0].Payload != `{"policy":"reload"}` {
		t.Fatalf("unexpected events %+v (%v)", got, err)
	}
}

func TestAPIKeys(t *testing.T) {
	conn := setupDB(t)
	ctx := context.Background()
	r := Repo{DB: conn}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := domain.APIKey{
		ID:          "k1",
		ActorID:     "alice",
		Name:        "ci",
		KeyHash:     HashAPIKey(" secret "),
		Permissions: []string{"console.write", "console.read", "console.write"},
	}
	if err := r.CreateAPIKey(ctx, nil, key); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := r.LookupAPIKey(ctx, "secret", now)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ActorID != "alice" || got.Name != "ci" || got.CreatedAt == "" {
		t.Fatalf("unexpected key %+v", got)
	}
	if len(got.Permissions) != 2 || got.Permissions[0] != "console.read" {
		t.Fatalf("permissions should be deduplicated and sorted: %v", got.Permissions)
	}
	keys, err := r.ListAPIKeys(ctx, "alice")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list: %v %d", err, len(keys))
	}
	if keys[0].LastUsedAt != now.Format(time.RFC3339) {
		t.Fatalf("lookup should stamp last_used_at, got %q", keys[0].LastUsedAt)
	}
	if _, err := r.LookupAPIKey(ctx, "other", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := r.RevokeAPIKey(ctx, nil, "k1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := r.RevokeAPIKey(ctx, nil, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second revoke should be not found, got %v", err)
	}
	if err := r.CreateAPIKey(ctx, nil, domain.APIKey{ID: "k2"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestAPIKeyExpiry(t *testing.T) {
	conn := setupDB(t)
	ctx := context.Background()
	r := Repo{DB: conn}
	raw, hash, err := NewAPIKeySecret()
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	if !strings.HasPrefix(raw, APIKeyPrefix) || hash != HashAPIKey(raw) {
		t.Fatalf("unexpected secret %q", raw)
	}
	expires := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := r.CreateAPIKey(ctx, nil, domain.APIKey{ID: "k", ActorID: "bot", KeyHash: hash, ExpiresAt: expires.Format(time.RFC3339)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.LookupAPIKey(ctx, raw, expires.Add(-time.Minute)); err != nil {
		t.Fatalf("key should be valid before expiry: %v", err)
	}
	if _, err := r.LookupAPIKey(ctx, raw, expires); !errors.Is(err, ErrKeyExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if err := r.CreateAPIKey(ctx, nil, domain.APIKey{ID: "bad", ActorID: "bot", KeyHash: "x", ExpiresAt: "tomorrow"}); err == nil {
		t.Fatalf("expected invalid expiry to be rejected")
	}
}
