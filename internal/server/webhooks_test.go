package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/wso2/identity-apps-sub079/internal/config"
	"github.com/wso2/identity-apps-sub079/internal/db"
	"github.com/wso2/identity-apps-sub079/internal/events"
	"github.com/wso2/identity-apps-sub079/internal/migrate"
	"github.com/wso2/identity-apps-sub079/internal/repo"
)

type delivery struct {
	event     webhookEvent
	kind      string
	signature string
	body      []byte
}

func TestWebhookDispatcherDeliversNewEvents(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	w := events.Writer{DB: conn}

	var mu sync.Mutex
	var got []delivery
	hookURL := serve(t, http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		got = append(got, delivery{event: evt, kind: req.Header.Get("X-Console-Event"), signature: req.Header.Get("X-Console-Signature"), body: body})
		mu.Unlock()
		rw.WriteHeader(http.StatusNoContent)
	}))

	if err := w.Append(ctx, nil, events.Record{Type: events.TypeDeleted, Resource: "groups", EntityID: "old"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	d := NewWebhookDispatcher(repo.Repo{DB: conn}, []config.WebhookConfig{{
		URL:    hookURL + "/hook",
		Events: []string{events.TypeDeleted},
		Secret: "shh",
	}}, nil)
	d.DispatchAll(ctx)
	if len(got) != 0 {
		t.Fatalf("events older than the first poll must not be sent, got %d", len(got))
	}

	if err := w.Append(ctx, nil, events.Record{Type: events.TypeAlert, Level: "error", Message: "Something went wrong"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(ctx, nil, events.Record{Type: events.TypeDeleted, Resource: "certificates", EntityID: "partner", ActorID: "alice", Payload: events.EventPayload{"policy": "reload"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(got))
	}
	first := got[0]
	if first.kind != events.TypeDeleted || first.event.EntityID != "partner" || first.event.ActorID != "alice" {
		t.Fatalf("unexpected delivery %+v", first.event)
	}
	if first.signature != signature("shh", first.body) {
		t.Fatalf("signature mismatch: %s", first.signature)
	}
	var payload map[string]string
	if err := json.Unmarshal(first.event.Payload, &payload); err != nil || payload["policy"] != "reload" {
		t.Fatalf("unexpected payload %s", string(first.event.Payload))
	}
}

func TestEventFilterMatchesAllWhenEmpty(t *testing.T) {
	if !newEventFilter(nil).match("anything") {
		t.Fatalf("empty filter should match every event")
	}
	f := newEventFilter([]string{" resource.created ", ""})
	if !f.match(events.TypeCreated) || f.match(events.TypeAlert) {
		t.Fatalf("filter should only match resource.created")
	}
}
