package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/events"
	"github.com/wso2/identity-apps-sub079/internal/features"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
	"github.com/wso2/identity-apps-sub079/internal/remote"
	"github.com/wso2/identity-apps-sub079/internal/repo"
	"github.com/wso2/identity-apps-sub079/internal/session"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

const (
	timeLayout = time.RFC3339
	secretMask = "********"
	// PermWrite allows deletes and wizard submissions for JWT principals
	// that carry a permissions claim.
	PermWrite = "console.write"
)

// Config for the HTTP API handler.
type Config struct {
	Registry *features.Registry
	Sessions *session.Manager
	Repo     repo.Repo
	Events   events.Writer
	// Alerts receives every alert in addition to the event log.
	Alerts   alert.Sink
	BasePath string
	Auth     AuthConfig
	Logger   *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"unknown attribute \"owner\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"attribute\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type handlers struct {
	registry *features.Registry
	sessions *session.Manager
	repo     repo.Repo
	events   events.Writer
	alerts   alert.Sink
	logger   *log.Logger
}

// New returns an HTTP handler exposing the console API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("server: registry required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("server: session manager required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Identity Console API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := &handlers{
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		repo:     cfg.Repo,
		events:   cfg.Events,
		alerts:   cfg.Alerts,
		logger:   logger,
	}
	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group)
	registerFeatures(group, h)
	registerViews(group, h)
	registerWizards(group, h)
	registerSessions(group, h)
	registerEvents(group, h)
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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var we *wizard.ValidationError
	if errors.As(err, &we) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"step": we.Step, "fields": we.Fields})
	}
	var ve *filter.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	switch {
	case errors.Is(err, features.ErrUnknownFeature),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, listctl.ErrNotFound),
		errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, features.ErrNoWizard),
		errors.Is(err, listctl.ErrInvalidPage):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, features.ErrNotDeletable):
		return newAPIError(http.StatusMethodNotAllowed, "not_deletable", err.Error(), nil)
	case errors.Is(err, wizard.ErrLastStep),
		errors.Is(err, wizard.ErrNotLastStep),
		errors.Is(err, wizard.ErrBusy),
		errors.Is(err, wizard.ErrClosed),
		errors.Is(err, listctl.ErrClosed):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	f := remote.Classify(err)
	switch f.Kind {
	case remote.KindCanceled:
		return newAPIError(http.StatusConflict, "canceled", err.Error(), nil)
	case remote.KindRemote, remote.KindNetwork:
		details := map[string]any{"kind": f.Kind.String()}
		if f.Status != 0 {
			details["status"] = f.Status
		}
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), details)
	case remote.KindUnstructured:
		if f.Status != 0 {
			return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), map[string]any{"kind": f.Kind.String(), "status": f.Status})
		}
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func hasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// requirePermission checks perm for principals that carry permissions.
// Unscoped keys, tokens without the claim and legacy headers are trusted.
func requirePermission(ctx context.Context, perm string) (Principal, error) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return Principal{}, authErr
	}
	if len(principal.Permissions) == 0 || hasPermission(principal.Permissions, perm) {
		return principal, nil
	}
	return Principal{}, ForbiddenError{Permission: perm}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Identity Console API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
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

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Source      string   `json:"source"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			Source:      principal.Source,
			Roles:       nonNilSlice(principal.Roles),
			Permissions: nonNilSlice(principal.Permissions),
		}}, nil
	})
}

// sinkFor persists alerts under actor and forwards them to the configured
// sink.
func (h *handlers) sinkFor(actor string) alert.Sink {
	persist := events.Sink{Writer: h.events, ActorID: actor, Logger: h.logger}
	if h.events.DB == nil {
		if h.alerts == nil {
			return alert.Discard
		}
		return h.alerts
	}
	if h.alerts == nil {
		return persist
	}
	return alert.Multi{persist, h.alerts}
}

// record appends a mutation event. Failures are logged; the remote change
// already happened.
func (h *handlers) record(ctx context.Context, rec events.Record) {
	if h.events.DB == nil {
		return
	}
	if err := h.events.Append(ctx, nil, rec); err != nil {
		h.logger.Printf("events: record %s: %v", rec.Type, err)
	}
}

func (h *handlers) session(ctx context.Context, id string, kind session.Kind) (Principal, session.Session, error) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return Principal{}, session.Session{}, authErr
	}
	s, err := h.sessions.Get(principal.ActorID, id)
	if err != nil {
		return Principal{}, session.Session{}, err
	}
	if s.Kind != kind {
		return Principal{}, session.Session{}, fmt.Errorf("%s %s: %w", kind, id, session.ErrNotFound)
	}
	return principal, s, nil
}

// reloadTables refreshes the owner's open lists of feature.
func (h *handlers) reloadTables(owner, feature string) {
	for _, s := range h.sessions.List(owner) {
		if s.Kind != session.KindTable || s.Feature != feature {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.Table.Load(ctx); err != nil && !errors.Is(err, listctl.ErrClosed) {
			h.logger.Printf("session %s: reload after create: %v", s.ID, err)
		}
		cancel()
	}
}

func registerFeatures(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-features",
		Method:      http.MethodGet,
		Path:        "/features",
		Summary:     "List console features",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []FeatureResponse `json:"body"`
	}, error) {
		out := []FeatureResponse{}
		for _, name := range h.registry.Names() {
			f, err := h.registry.Feature(name)
			if err != nil {
				return nil, handleError(err)
			}
			out = append(out, featureResponse(f))
		}
		return &struct {
			Body []FeatureResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/features/{feature}/items/{key}",
		Summary:     "Fetch one item",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Feature string `path:"feature"`
		Key     string `path:"key"`
	}) (*struct {
		Body any `json:"body"`
	}, error) {
		item, err := h.registry.Fetch(ctx, input.Feature, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body any `json:"body"`
		}{Body: item}, nil
	})
}

type viewOutput struct {
	Body ViewResponse `json:"body"`
}

func viewResult(s session.Session, loadErr error) *viewOutput {
	out := &viewOutput{Body: viewResponse(s, s.Table.Rows())}
	if loadErr != nil {
		out.Body.LoadFail = loadErr.Error()
	}
	return out
}

// loadResult turns a load outcome into a response. Remote failures are
// already alerted and reported in the view; lifecycle errors are returned.
func loadResult(s session.Session, err error) (*viewOutput, error) {
	if err != nil {
		if errors.Is(err, listctl.ErrClosed) || errors.Is(err, context.Canceled) {
			return nil, handleError(err)
		}
		return viewResult(s, err), nil
	}
	return viewResult(s, nil), nil
}

func registerViews(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-view",
		Method:        http.MethodPost,
		Path:          "/views",
		Summary:       "Open a list view and load its first page",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body OpenViewRequest `json:"body"`
	}) (*viewOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := h.registry.Feature(input.Body.Feature)
		if err != nil {
			return nil, handleError(err)
		}
		statuses, err := f.StatusQuery(input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		params := remote.ListParams{
			Domain: strings.TrimSpace(input.Body.Domain),
			Filter: strings.TrimSpace(input.Body.Filter),
			Extra:  statuses,
		}
		table, err := h.registry.OpenTable(input.Body.Feature, h.sinkFor(principal.ActorID), params)
		if err != nil {
			return nil, handleError(err)
		}
		s := h.sessions.OpenTable(principal.ActorID, input.Body.Feature, table)
		return loadResult(s, table.Load(ctx))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-view",
		Method:      http.MethodGet,
		Path:        "/views/{id}",
		Summary:     "Render the current page of a view",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*viewOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		return viewResult(s, nil), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reload-view",
		Method:      http.MethodPost,
		Path:        "/views/{id}/reload",
		Summary:     "Fetch the list again",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*viewOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		return loadResult(s, s.Table.Load(ctx))
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-view",
		Method:      http.MethodPost,
		Path:        "/views/{id}/search",
		Summary:     "Search by the feature's default attribute",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body SearchRequest `json:"body"`
	}) (*viewOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		s.Table.Search(input.Body.Term)
		return viewResult(s, nil), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "filter-view",
		Method:      http.MethodPost,
		Path:        "/views/{id}/filter",
		Summary:     "Apply an advanced filter",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body FilterRequest `json:"body"`
	}) (*viewOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := s.Table.BuildFilter(input.Body.Attribute, input.Body.Operator, input.Body.Value)
		if err != nil {
			return nil, handleError(err)
		}
		if err := s.Table.ApplyFilter(p); err != nil {
			return nil, handleError(err)
		}
		return viewResult(s, nil), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-view-filter",
		Method:      http.MethodDelete,
		Path:        "/views/{id}/filter",
		Summary:     "Clear the filter",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*viewOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		s.Table.ClearFilter()
		return viewResult(s, nil), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sort-view",
		Method:      http.MethodPost,
		Path:        "/views/{id}/sort",
		Summary:     "Sort by an attribute",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body SortRequest `json:"body"`
	}) (*viewOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		if err := s.Table.ChangeSort(input.Body.Key, input.Body.Ascending); err != nil {
			return nil, handleError(err)
		}
		return viewResult(s, nil), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "page-view",
		Method:      http.MethodPost,
		Path:        "/views/{id}/page",
		Summary:     "Change page size and/or page number",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body PageRequest `json:"body"`
	}) (*viewOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Number == 0 && input.Body.Size == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "number or size required", nil)
		}
		if input.Body.Size != 0 {
			if err := s.Table.ChangePageSize(input.Body.Size); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Number != 0 {
			if err := s.Table.ChangePage(input.Body.Number); err != nil {
				return nil, handleError(err)
			}
		}
		return viewResult(s, nil), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-view-item",
		Method:      http.MethodDelete,
		Path:        "/views/{id}/items/{key}",
		Summary:     "Delete an item from the list",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusMethodNotAllowed,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		Key     string `path:"key"`
		Confirm string `query:"confirm" doc:"Must repeat the key for features that ask for confirmation"`
	}) (*viewOutput, error) {
		if _, err := requirePermission(ctx, PermWrite); err != nil {
			return nil, handleError(err)
		}
		principal, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		f, err := h.registry.Feature(s.Feature)
		if err != nil {
			return nil, handleError(err)
		}
		if !f.Deletable {
			return nil, handleError(fmt.Errorf("%s: %w", f.Name, features.ErrNotDeletable))
		}
		if f.ConfirmDelete && input.Confirm != input.Key {
			return nil, newAPIError(http.StatusBadRequest, "confirmation_required", "type the "+f.Key+" to confirm deletion", map[string]any{"key": input.Key})
		}
		if err := s.Table.DeleteKey(ctx, input.Key); err != nil {
			return nil, handleError(err)
		}
		h.record(ctx, events.Record{
			Type:     events.TypeDeleted,
			Resource: s.Feature,
			EntityID: input.Key,
			ActorID:  principal.ActorID,
		})
		return viewResult(s, nil), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "act-on-item",
		Method:      http.MethodPost,
		Path:        "/views/{id}/items/{key}/actions",
		Summary:     "Change the state of an item, e.g. approve a task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Key  string        `path:"key"`
		Body ActionRequest `json:"body"`
	}) (*viewOutput, error) {
		if _, err := requirePermission(ctx, PermWrite); err != nil {
			return nil, handleError(err)
		}
		principal, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		action := strings.ToUpper(strings.TrimSpace(input.Body.Action))
		if err := h.registry.Act(ctx, s.Feature, h.sinkFor(principal.ActorID), input.Key, action); err != nil {
			return nil, handleError(err)
		}
		h.record(ctx, events.Record{
			Type:     events.TypeUpdated,
			Resource: s.Feature,
			EntityID: input.Key,
			ActorID:  principal.ActorID,
			Payload:  events.EventPayload{"action": action},
		})
		return loadResult(s, s.Table.Load(ctx))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "close-view",
		Method:        http.MethodDelete,
		Path:          "/views/{id}",
		Summary:       "Close a view and cancel its requests",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		principal, s, err := h.session(ctx, input.ID, session.KindTable)
		if err != nil {
			return nil, handleError(err)
		}
		if err := h.sessions.Close(principal.ActorID, s.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type wizardOutput struct {
	Body WizardResponse `json:"body"`
}

func registerWizards(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-wizard",
		Method:        http.MethodPost,
		Path:          "/wizards",
		Summary:       "Start a create wizard",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body OpenWizardRequest `json:"body"`
	}) (*wizardOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		feature := input.Body.Feature
		owner := principal.ActorID
		flow, err := h.registry.OpenWizard(ctx, feature, h.sinkFor(owner), func() {
			h.reloadTables(owner, feature)
		})
		if err != nil {
			return nil, handleError(err)
		}
		s := h.sessions.OpenWizard(owner, feature, flow)
		return &wizardOutput{Body: wizardResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-wizard",
		Method:      http.MethodGet,
		Path:        "/wizards/{id}",
		Summary:     "Render the current step",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*wizardOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindWizard)
		if err != nil {
			return nil, handleError(err)
		}
		return &wizardOutput{Body: wizardResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-next",
		Method:      http.MethodPost,
		Path:        "/wizards/{id}/next",
		Summary:     "Validate the current step and advance",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body StepRequest `json:"body"`
	}) (*wizardOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindWizard)
		if err != nil {
			return nil, handleError(err)
		}
		if err := s.Flow.Next(ctx, wizard.Values(input.Body.Values)); err != nil {
			return nil, handleError(err)
		}
		return &wizardOutput{Body: wizardResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-previous",
		Method:      http.MethodPost,
		Path:        "/wizards/{id}/previous",
		Summary:     "Go back one step",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*wizardOutput, error) {
		_, s, err := h.session(ctx, input.ID, session.KindWizard)
		if err != nil {
			return nil, handleError(err)
		}
		s.Flow.Previous()
		return &wizardOutput{Body: wizardResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-finish",
		Method:      http.MethodPost,
		Path:        "/wizards/{id}/finish",
		Summary:     "Validate the last step and submit",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body StepRequest `json:"body"`
	}) (*wizardOutput, error) {
		if _, err := requirePermission(ctx, PermWrite); err != nil {
			return nil, handleError(err)
		}
		principal, s, err := h.session(ctx, input.ID, session.KindWizard)
		if err != nil {
			return nil, handleError(err)
		}
		if err := s.Flow.Finish(ctx, wizard.Values(input.Body.Values)); err != nil {
			return nil, handleError(err)
		}
		collected := s.Flow.Collected()
		h.record(ctx, events.Record{
			Type:     events.TypeCreated,
			Resource: s.Feature,
			EntityID: createdName(collected),
			ActorID:  principal.ActorID,
			Payload:  events.EventPayload{"steps": collected.Steps()},
		})
		return &wizardOutput{Body: wizardResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-wizard",
		Method:        http.MethodDelete,
		Path:          "/wizards/{id}",
		Summary:       "Cancel a wizard and discard its data",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		principal, s, err := h.session(ctx, input.ID, session.KindWizard)
		if err != nil {
			return nil, handleError(err)
		}
		if err := h.sessions.Close(principal.ActorID, s.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// createdName picks the name the user gave the new resource.
func createdName(c wizard.Collected) string {
	merged := wizard.Merge(c)
	for _, k := range []string{"name", "groupName", "displayName"} {
		if v := merged[k]; v != "" {
			return v
		}
	}
	return ""
}

func registerSessions(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List the caller's open views and wizards",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []SessionResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out := []SessionResponse{}
		for _, s := range h.sessions.List(principal.ActorID) {
			out = append(out, sessionResponse(s))
		}
		return &struct {
			Body []SessionResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type     string `query:"type"`
		Level    string `query:"level" enum:"info,success,warning,error"`
		Resource string `query:"resource"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		cursorID, cerr := parseCursor(input.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		limit := normalizeLimit(input.Limit)
		items, err := h.repo.LatestEvents(ctx, limit+1, cursorID, repo.EventFilter{
			Type:     input.Type,
			Level:    input.Level,
			Resource: input.Resource,
			EntityID: input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "Alerts raised for the caller after a cursor, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		After string `query:"after"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursorID, cerr := parseCursor(input.After)
		if cerr != nil {
			return nil, cerr
		}
		items, err := h.repo.EventsAfter(ctx, normalizeLimit(input.Limit), cursorID, repo.EventFilter{
			Type:    events.TypeAlert,
			ActorID: principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		if len(items) > 0 {
			resp.NextCursor = fmt.Sprintf("%d", items[len(items)-1].ID)
		} else {
			resp.NextCursor = input.After
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func parseCursor(cursor string) (int64, huma.StatusError) {
	if cursor == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || parsed < 0 {
		return 0, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": cursor})
	}
	return parsed, nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
