package features

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/config"
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/remote"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

// fakeIAM is an in-memory identity server covering the endpoints the
// features use.
type fakeIAM struct {
	mu        sync.Mutex
	certs     []domain.Certificate
	stores    []domain.UserStore
	groups    []domain.Group
	created   []json.RawMessage
	lastQuery map[string]string
	approvals []domain.Approval
	statuses  []string
	actions   []string
}

func (f *fakeIAM) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/server/v1/keystores/certs", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.certs)
	})
	r.Delete("/api/server/v1/keystores/certs/{alias}", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		alias := chi.URLParam(req, "alias")
		if alias == "wso2carbon" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": "KSS-60005", "message": "Unable to delete", "description": "Tenant certificate cannot be deleted"})
			return
		}
		for i, c := range f.certs {
			if c.Alias == alias {
				f.certs = append(f.certs[:i], f.certs[i+1:]...)
				break
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/server/v1/userstores", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.stores)
	})
	r.Post("/api/server/v1/userstores", func(w http.ResponseWriter, req *http.Request) {
		f.record(req)
		writeJSON(w, http.StatusCreated, domain.UserStore{ID: "new", Name: "corp"})
	})
	r.Get("/api/server/v1/userstores/meta/types", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, []domain.UserStoreType{{TypeID: "ldap", TypeName: "ReadOnlyLDAP"}, {TypeID: "jdbc", TypeName: "JDBC"}})
	})
	r.Get("/api/server/v1/userstores/meta/types/{id}", func(w http.ResponseWriter, req *http.Request) {
		t := domain.UserStoreType{TypeID: chi.URLParam(req, "id")}
		switch t.TypeID {
		case "ldap":
			t.Properties = domain.TypeProperties{
				Connection: []domain.TypeProperty{{Name: "ConnectionURL", Required: true}, {Name: "ConnectionPassword", Secret: true}},
				User:       []domain.TypeProperty{{Name: "UserSearchBase", DefaultValue: "ou=Users,dc=corp"}},
				Group:      []domain.TypeProperty{{Name: "GroupSearchBase", DefaultValue: "ou=Groups,dc=corp"}},
			}
		default:
			t.Properties = domain.TypeProperties{
				Connection: []domain.TypeProperty{{Name: "url", Required: true}},
				User:       []domain.TypeProperty{{Name: "UserIDEnabled", DefaultValue: "true"}},
			}
		}
		writeJSON(w, http.StatusOK, t)
	})
	r.Get("/scim2/Groups", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastQuery = map[string]string{}
		for k := range req.URL.Query() {
			f.lastQuery[k] = req.URL.Query().Get(k)
		}
		out := f.groups
		if filt := req.URL.Query().Get("filter"); strings.HasPrefix(filt, "displayName eq ") {
			want := strings.TrimPrefix(filt, "displayName eq ")
			out = nil
			for _, g := range f.groups {
				if g.DisplayName == want {
					out = append(out, g)
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalResults": len(out), "Resources": out})
	})
	r.Post("/scim2/Groups", func(w http.ResponseWriter, req *http.Request) {
		f.record(req)
		writeJSON(w, http.StatusCreated, domain.Group{ID: "g-new"})
	})
	r.Get("/api/users/v1/me/approval-tasks", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.statuses = req.URL.Query()["status"]
		out := []domain.Approval{}
		for _, a := range f.approvals {
			if len(f.statuses) == 0 || slices.Contains(f.statuses, a.Status) {
				out = append(out, a)
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Put("/api/users/v1/me/approval-tasks/{id}/state", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Action string `json:"action"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, a := range f.approvals {
			if a.ID != chi.URLParam(req, "id") {
				continue
			}
			f.actions = append(f.actions, a.ID+":"+body.Action)
			switch body.Action {
			case "CLAIM":
				f.approvals[i].Status = "RESERVED"
			case "RELEASE":
				f.approvals[i].Status = "READY"
			default:
				f.approvals[i].Status = "COMPLETED"
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "WF-10001", "message": "Task not found", "description": "No approval task with that id"})
	})
	return r
}

func (f *fakeIAM) record(req *http.Request) {
	var raw json.RawMessage
	_ = json.NewDecoder(req.Body).Decode(&raw)
	f.mu.Lock()
	f.created = append(f.created, raw)
	f.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newRegistry(t *testing.T, iam *fakeIAM, cfg *config.Config) *Registry {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: iam.router()}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})
	client := remote.New(context.Background(), remote.Options{BaseURL: "http://" + ln.Addr().String()})
	reg, err := New(Options{Client: client, Config: cfg})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestRegistryNames(t *testing.T) {
	reg := newRegistry(t, &fakeIAM{}, nil)
	if got := strings.Join(reg.Names(), ","); got != "approvals,certificates,groups,userstores,workflows" {
		t.Fatalf("unexpected names %s", got)
	}
	if _, err := reg.Feature("roles"); !errors.Is(err, ErrUnknownFeature) {
		t.Fatalf("expected unknown feature, got %v", err)
	}
	if _, err := reg.OpenWizard(context.Background(), "certificates", nil, nil); !errors.Is(err, ErrNoWizard) {
		t.Fatalf("expected no wizard, got %v", err)
	}
}

func TestUnknownResourceOverride(t *testing.T) {
	cfg := config.Default("https://localhost:9443")
	cfg.Resources["roles"] = config.Resource{Path: "scim2/Roles"}
	client := remote.New(context.Background(), remote.Options{BaseURL: "http://127.0.0.1:1"})
	if _, err := New(Options{Client: client, Config: cfg}); !errors.Is(err, ErrUnknownFeature) {
		t.Fatalf("expected unknown feature error, got %v", err)
	}
}

func TestCertificateDeleteFailureAndReload(t *testing.T) {
	iam := &fakeIAM{certs: []domain.Certificate{{Alias: "wso2carbon"}, {Alias: "partner"}, {Alias: "legacy"}}}
	reg := newRegistry(t, iam, nil)
	rec := &alert.Recorder{}
	tbl, err := reg.OpenTable("certificates", rec, remote.ListParams{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tbl.Close()
	ctx := context.Background()
	if err := tbl.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := tbl.DeleteKey(ctx, "wso2carbon"); err == nil {
		t.Fatalf("expected delete failure")
	}
	alerts := rec.Alerts()
	if len(alerts) != 1 || alerts[0].Description != "Tenant certificate cannot be deleted" || alerts[0].Source != "certificates" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	if rows := tbl.Rows(); rows.Total != 3 {
		t.Fatalf("failed delete must keep the item, total=%d", rows.Total)
	}
	if err := tbl.DeleteKey(ctx, "partner"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rows := tbl.Rows(); strings.Join(rows.Keys, ",") != "wso2carbon,legacy" {
		t.Fatalf("reload should reflect the server, got %v", rows.Keys)
	}
}

func TestGroupsUseSCIMPaging(t *testing.T) {
	iam := &fakeIAM{groups: []domain.Group{{ID: "1", DisplayName: "admins"}, {ID: "2", DisplayName: "CORP/devs"}}}
	cfg := config.Default("https://localhost:9443")
	cfg.Console.PageSize = 1
	reg := newRegistry(t, iam, cfg)
	tbl, _ := reg.OpenTable("groups", nil, remote.ListParams{Domain: "CORP"})
	defer tbl.Close()
	if err := tbl.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if iam.lastQuery["domain"] != "CORP" {
		t.Fatalf("domain param not sent: %v", iam.lastQuery)
	}
	rows := tbl.Rows()
	if rows.Pages != 2 || len(rows.Rows) != 1 {
		t.Fatalf("page size from config not applied: %+v", rows)
	}
	tbl.Search("dev")
	rows = tbl.Rows()
	if rows.Total != 1 || rows.Keys[0] != "2" {
		t.Fatalf("search by name failed: %+v", rows)
	}
	if rows.Rows[0][1] != "CORP" {
		t.Fatalf("domain column expected CORP, got %v", rows.Rows[0])
	}
}

func TestGroupWizardRejectsDuplicateName(t *testing.T) {
	iam := &fakeIAM{
		groups: []domain.Group{{ID: "1", DisplayName: "CORP/devs"}},
		stores: []domain.UserStore{{ID: "s1", Name: "corp"}},
	}
	reg := newRegistry(t, iam, nil)
	rec := &alert.Recorder{}
	refreshed := false
	flow, err := reg.OpenWizard(context.Background(), "groups", rec, func() { refreshed = true })
	if err != nil {
		t.Fatalf("open wizard: %v", err)
	}
	ctx := context.Background()
	err = flow.Next(ctx, wizard.Values{"domain": "CORP", "groupName": "devs"})
	var ve *wizard.ValidationError
	if !errors.As(err, &ve) || ve.Fields["groupName"] == "" {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
	if err := flow.Next(ctx, wizard.Values{"domain": "CORP", "groupName": "ops"}); err != nil {
		t.Fatalf("basic: %v", err)
	}
	if err := flow.Finish(ctx, wizard.Values{"members": "u1, u2"}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !refreshed || rec.Count(alert.Success) != 1 {
		t.Fatalf("expected refresh and success alert")
	}
	var got domain.GroupCreate
	if err := json.Unmarshal(iam.created[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DisplayName != "CORP/ops" || len(got.Members) != 2 || got.Schemas[0] != GroupSchema {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestUserStoreWizardStepsFollowType(t *testing.T) {
	iam := &fakeIAM{stores: []domain.UserStore{{ID: "s1", Name: "existing"}}}
	reg := newRegistry(t, iam, nil)
	flow, err := reg.OpenWizard(context.Background(), "userstores", nil, nil)
	if err != nil {
		t.Fatalf("open wizard: %v", err)
	}
	ctx := context.Background()
	if err := flow.Next(ctx, wizard.Values{"name": "existing", "type": "jdbc"}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if err := flow.Next(ctx, wizard.Values{"name": "corp", "type": "jdbc"}); err != nil {
		t.Fatalf("general: %v", err)
	}
	cur := flow.Current()
	if cur.Count != 4 || cur.Fields[0].Name != "url" {
		t.Fatalf("jdbc has no group step, got %+v", cur)
	}

	flow.Previous()
	if err := flow.Next(ctx, wizard.Values{"name": "corp", "type": "ldap"}); err != nil {
		t.Fatalf("general: %v", err)
	}
	cur = flow.Current()
	if cur.Count != 5 || cur.Fields[0].Name != "ConnectionURL" {
		t.Fatalf("ldap adds a group step, got %+v", cur)
	}
	steps := []wizard.Values{
		{"ConnectionURL": "ldap://corp:389", "ConnectionPassword": "secret"},
		{},
		{},
	}
	for _, v := range steps {
		if err := flow.Next(ctx, v); err != nil {
			t.Fatalf("step %s: %v", flow.Current().Name, err)
		}
	}
	if err := flow.Finish(ctx, wizard.Values{}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	var got domain.UserStoreCreate
	if err := json.Unmarshal(iam.created[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TypeID != "ldap" || got.Name != "corp" {
		t.Fatalf("unexpected payload %+v", got)
	}
	names := make([]string, 0, len(got.Properties))
	for _, p := range got.Properties {
		names = append(names, p.Name)
	}
	if strings.Join(names, ",") != "ConnectionURL,ConnectionPassword,UserSearchBase,GroupSearchBase" {
		t.Fatalf("unexpected properties %v", names)
	}
}

func TestWorkflowApprovalFieldsFollowTemplate(t *testing.T) {
	reg := newRegistry(t, &fakeIAM{}, nil)
	flow, err := reg.OpenWizard(context.Background(), "workflows", nil, nil)
	if err != nil {
		t.Fatalf("open wizard: %v", err)
	}
	if err := flow.Next(context.Background(), wizard.Values{"name": "hire", "template": SimpleApproval}); err != nil {
		t.Fatalf("basic: %v", err)
	}
	if cur := flow.Current(); len(cur.Fields) != 1 || cur.Fields[0].Name != "ApproverRole" {
		t.Fatalf("simple template fields expected, got %+v", cur.Fields)
	}
	flow.Previous()
	if err := flow.Next(context.Background(), wizard.Values{"name": "hire"}); err != nil {
		t.Fatalf("basic: %v", err)
	}
	if cur := flow.Current(); cur.Fields[0].Name != "Step-1-roles" {
		t.Fatalf("default template should be multi step, got %+v", cur.Fields)
	}
}

func TestApprovalActions(t *testing.T) {
	iam := &fakeIAM{approvals: []domain.Approval{
		{ID: "t1", PresentationName: "Add user bob", Status: "READY"},
		{ID: "t2", PresentationName: "Add user eve", Status: "RESERVED"},
		{ID: "t3", PresentationName: "Old", Status: "COMPLETED"},
	}}
	reg := newRegistry(t, iam, nil)
	ctx := context.Background()
	f, err := reg.Feature("approvals")
	if err != nil {
		t.Fatalf("feature: %v", err)
	}
	if f.Deletable || len(f.Actions) != 4 {
		t.Fatalf("approvals should offer actions instead of delete: %+v", f)
	}

	q, err := f.StatusQuery([]string{"ready", "RESERVED"})
	if err != nil {
		t.Fatalf("status query: %v", err)
	}
	tbl, _ := reg.OpenTable("approvals", nil, remote.ListParams{Extra: q})
	defer tbl.Close()
	if err := tbl.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.Join(iam.statuses, ",") != "READY,RESERVED" {
		t.Fatalf("status params not sent: %v", iam.statuses)
	}
	if rows := tbl.Rows(); strings.Join(rows.Keys, ",") != "t1,t2" {
		t.Fatalf("unexpected pending tasks %v", rows.Keys)
	}
	if q, err := f.StatusQuery([]string{"READY", "ALL"}); err != nil || len(q) != 0 {
		t.Fatalf("ALL should select every status, got %v (%v)", q, err)
	}
	if _, err := f.StatusQuery([]string{"DONE"}); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected unknown status, got %v", err)
	}

	rec := &alert.Recorder{}
	if err := reg.Act(ctx, "approvals", rec, "t1", "approve"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := tbl.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if rows := tbl.Rows(); strings.Join(rows.Keys, ",") != "t2" {
		t.Fatalf("approved task should leave the pending list, got %v", rows.Keys)
	}
	if err := reg.Act(ctx, "approvals", rec, "t2", "delete"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected unknown action, got %v", err)
	}
	if err := reg.Act(ctx, "certificates", rec, "partner", "APPROVE"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("certificates have no actions, got %v", err)
	}
	if err := reg.Act(ctx, "approvals", rec, "missing", "CLAIM"); err == nil {
		t.Fatalf("expected failure for unknown task")
	}
	if strings.Join(iam.actions, ",") != "t1:APPROVE" {
		t.Fatalf("unexpected actions sent %v", iam.actions)
	}
	alerts := rec.Alerts()
	if len(alerts) != 2 || alerts[0].Level != alert.Success || alerts[1].Description != "No approval task with that id" || alerts[1].Source != "approvals" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
}
