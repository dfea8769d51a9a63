package wizard

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/remote"
)

type storePayload struct {
	Name       string
	Type       string
	Properties Values
}

func staticFields(fields ...Field) func(Collected) []Field {
	return func(Collected) []Field { return fields }
}

// storeDefinition mimics a user store wizard: the connection step depends
// on the type chosen first, and an LDAP-only group step may disappear.
func storeDefinition(submit func(context.Context, storePayload) error) Definition[storePayload] {
	return Definition[storePayload]{
		Name: "userstore",
		Steps: []Step{
			{
				Name:   "general",
				Title:  "General",
				Fields: staticFields(Field{Name: "name", Required: true, Pattern: regexp.MustCompile(`^[A-Za-z0-9_-]+$`)}, Field{Name: "type", Required: true, Options: []string{"ldap", "jdbc"}}),
			},
			{
				Name:  "connection",
				Title: "Connection",
				Fields: func(c Collected) []Field {
					if c.Value("general", "type") == "ldap" {
						return []Field{{Name: "url", Required: true, URL: true}, {Name: "bindDN", Required: true}}
					}
					return []Field{{Name: "jdbcURL", Required: true}, {Name: "password", Secret: true}}
				},
			},
			{
				Name:   "groups",
				Title:  "Groups",
				Fields: staticFields(Field{Name: "groupBase", Default: "ou=Groups"}),
				When:   func(c Collected) bool { return c.Value("general", "type") == "ldap" },
			},
			{
				Name:   "summary",
				Title:  "Summary",
				Fields: staticFields(Field{Name: "description"}),
			},
		},
		Build: func(c Collected) (storePayload, error) {
			props := Values{}
			for _, step := range []string{"connection", "groups"} {
				v, _ := c.Get(step)
				for k, val := range v {
					props[k] = val
				}
			}
			return storePayload{Name: c.Value("general", "name"), Type: c.Value("general", "type"), Properties: props}, nil
		},
		Submit:  submit,
		Success: alert.Text{Message: "Created", Description: "User store created."},
		Failure: alert.Text{Message: "Something went wrong", Description: "Could not create the user store."},
	}
}

func TestNextInvalidLeavesStateUnchanged(t *testing.T) {
	rec := &alert.Recorder{}
	w := Open(storeDefinition(func(context.Context, storePayload) error { return nil }), rec)

	err := w.Next(context.Background(), Values{"name": "bad name", "type": "ldap"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Step != "general" || ve.Fields["name"] == "" {
		t.Fatalf("unexpected validation error %+v", ve)
	}
	if cur := w.Current(); cur.Index != 0 || cur.Name != "general" {
		t.Fatalf("index moved on invalid input: %+v", cur)
	}
	if w.Collected().Len() != 0 {
		t.Fatalf("invalid data recorded")
	}
	if len(rec.Alerts()) != 0 {
		t.Fatalf("validation errors must not alert")
	}

	if err := w.Next(context.Background(), Values{"name": "corp", "type": "nosql"}); err == nil {
		t.Fatalf("expected option error")
	}
}

func TestDynamicStepsFollowEarlierAnswers(t *testing.T) {
	var got storePayload
	w := Open(storeDefinition(func(_ context.Context, p storePayload) error { got = p; return nil }), nil)
	ctx := context.Background()

	if err := w.Next(ctx, Values{"name": "corp", "type": "ldap"}); err != nil {
		t.Fatalf("general: %v", err)
	}
	cur := w.Current()
	if cur.Count != 4 || cur.Fields[0].Name != "url" {
		t.Fatalf("ldap connection step expected, got %+v", cur)
	}
	if err := w.Next(ctx, Values{"url": "not a url", "bindDN": "cn=admin"}); err == nil {
		t.Fatalf("expected url validation")
	}
	if err := w.Next(ctx, Values{"url": "https://ldap.local", "bindDN": "cn=admin"}); err != nil {
		t.Fatalf("connection: %v", err)
	}
	if err := w.Next(ctx, Values{}); err != nil {
		t.Fatalf("groups: %v", err)
	}
	if v, _ := w.Collected().Get("groups"); v["groupBase"] != "ou=Groups" {
		t.Fatalf("default not applied: %v", v)
	}

	// Switch to jdbc: the groups step disappears and its data is dropped.
	w.Previous()
	w.Previous()
	w.Previous()
	if cur := w.Current(); cur.Index != 0 {
		t.Fatalf("expected first step, got %d", cur.Index)
	}
	w.Previous()
	if cur := w.Current(); cur.Index != 0 {
		t.Fatalf("previous must floor at zero")
	}
	if err := w.Next(ctx, Values{"name": "corp", "type": "jdbc"}); err != nil {
		t.Fatalf("general: %v", err)
	}
	if _, ok := w.Collected().Get("groups"); ok {
		t.Fatalf("inactive step data must be dropped")
	}
	if cur := w.Current(); cur.Count != 3 || cur.Fields[0].Name != "jdbcURL" {
		t.Fatalf("jdbc connection step expected, got %+v", cur)
	}
	if err := w.Next(ctx, Values{"jdbcURL": "jdbc:h2:mem", "password": "s3cret", "stray": "x"}); err != nil {
		t.Fatalf("connection: %v", err)
	}
	if err := w.Next(ctx, Values{}); !errors.Is(err, ErrLastStep) {
		t.Fatalf("expected ErrLastStep, got %v", err)
	}
	if err := w.Finish(ctx, Values{"description": "corp users"}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got.Type != "jdbc" || got.Properties["jdbcURL"] != "jdbc:h2:mem" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if _, ok := got.Properties["url"]; ok {
		t.Fatalf("stale ldap fields leaked into payload: %v", got.Properties)
	}
	if _, ok := got.Properties["stray"]; ok {
		t.Fatalf("undeclared fields must be dropped")
	}
	if w.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", w.State())
	}
}

func TestFinishOnlyAtLastStep(t *testing.T) {
	w := Open(storeDefinition(func(context.Context, storePayload) error { return nil }), nil)
	if err := w.Finish(context.Background(), Values{"name": "corp", "type": "ldap"}); !errors.Is(err, ErrNotLastStep) {
		t.Fatalf("expected ErrNotLastStep, got %v", err)
	}
}

func TestFinishFailureKeepsWizardOpen(t *testing.T) {
	rec := &alert.Recorder{}
	calls := 0
	def := storeDefinition(func(context.Context, storePayload) error {
		calls++
		if calls == 1 {
			return &remote.APIError{StatusCode: 409, Message: "Conflict", Description: "User store corp already exists"}
		}
		return nil
	})
	refreshed := false
	def.OnSuccess = func(storePayload) { refreshed = true }
	w := Open(def, rec)
	ctx := context.Background()
	_ = w.Next(ctx, Values{"name": "corp", "type": "jdbc"})
	_ = w.Next(ctx, Values{"jdbcURL": "jdbc:h2:mem"})

	if err := w.Finish(ctx, Values{}); err == nil {
		t.Fatalf("expected submit error")
	}
	alerts := rec.Alerts()
	if len(alerts) != 1 || alerts[0].Level != alert.Error || alerts[0].Description != "User store corp already exists" {
		t.Fatalf("expected one server-described alert, got %+v", alerts)
	}
	if w.State() != StateOpen || !w.Current().Last {
		t.Fatalf("wizard must stay open at the last step")
	}
	if refreshed {
		t.Fatalf("OnSuccess must not run on failure")
	}

	if err := w.Finish(ctx, Values{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !refreshed || rec.Count(alert.Success) != 1 {
		t.Fatalf("expected success alert and refresh")
	}
	if err := w.Next(ctx, Values{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("submitted wizard must reject input, got %v", err)
	}
}

func TestCancelDiscardsData(t *testing.T) {
	calls := 0
	def := storeDefinition(func(context.Context, storePayload) error { calls++; return nil })
	w := Open(def, nil)
	_ = w.Next(context.Background(), Values{"name": "corp", "type": "jdbc"})
	w.Cancel()
	if w.State() != StateClosed || w.Collected().Len() != 0 {
		t.Fatalf("cancel must close and discard data")
	}
	if calls != 0 {
		t.Fatalf("cancel must not submit")
	}
	again := Open(def, nil)
	if again.Collected().Len() != 0 || again.Current().Index != 0 {
		t.Fatalf("reopened wizard must start empty")
	}
}

func TestCancelAbortsSubmission(t *testing.T) {
	rec := &alert.Recorder{}
	started := make(chan struct{})
	w := Open(storeDefinition(func(ctx context.Context, _ storePayload) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}), rec)
	ctx := context.Background()
	_ = w.Next(ctx, Values{"name": "corp", "type": "jdbc"})
	_ = w.Next(ctx, Values{"jdbcURL": "jdbc:h2:mem"})

	done := make(chan error, 1)
	go func() { done <- w.Finish(ctx, Values{}) }()
	<-started
	w.Cancel()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("submission not cancelled")
	}
	if len(rec.Alerts()) != 0 {
		t.Fatalf("cancelled submission must not alert")
	}
}

func TestStepValidatorErrors(t *testing.T) {
	rec := &alert.Recorder{}
	taken := map[string]bool{"admins": true}
	lookupFails := false
	def := Definition[Values]{
		Name: "group",
		Steps: []Step{
			{
				Name:   "basic",
				Fields: staticFields(Field{Name: "displayName", Required: true}),
				Validate: func(_ context.Context, v Values, _ Collected) error {
					if lookupFails {
						return errors.New("connection refused")
					}
					if taken[v["displayName"]] {
						return Invalidf("displayName", "already exists")
					}
					return nil
				},
			},
			{Name: "members", Fields: staticFields(Field{Name: "users"})},
		},
		Build:   func(c Collected) (Values, error) { return Merge(c), nil },
		Submit:  func(context.Context, Values) error { return nil },
		Failure: alert.Text{Message: "Something went wrong", Description: "Could not check the group name."},
	}
	w := Open(def, rec)
	err := w.Next(context.Background(), Values{"displayName": "admins"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Step != "basic" || ve.Fields["displayName"] != "already exists" {
		t.Fatalf("expected inline duplicate error, got %v", err)
	}
	if len(rec.Alerts()) != 0 {
		t.Fatalf("inline errors must not alert")
	}
	lookupFails = true
	if err := w.Next(context.Background(), Values{"displayName": "devs"}); err == nil {
		t.Fatalf("expected lookup failure")
	}
	if rec.Count(alert.Error) != 1 {
		t.Fatalf("remote validator failure should alert once")
	}
	if w.Current().Index != 0 {
		t.Fatalf("failed validation must not advance")
	}
}

func TestMerge(t *testing.T) {
	var c Collected
	steps := []Step{{Name: "a"}, {Name: "b"}}
	c.set("b", Values{"x": "2", "y": "b"}, steps)
	c.set("a", Values{"x": "1"}, steps)
	got := Merge(c)
	if got["x"] != "2" || got["y"] != "b" {
		t.Fatalf("later steps should win, got %v", got)
	}
	if s := c.Steps(); len(s) != 2 || s[0] != "a" {
		t.Fatalf("steps must follow definition order, got %v", s)
	}
}
