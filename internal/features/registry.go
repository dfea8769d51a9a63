// Package features configures the generic list and wizard controllers for
// the console's resources.
package features

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/config"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
	"github.com/wso2/identity-apps-sub079/internal/remote"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

var (
	ErrUnknownFeature = errors.New("unknown feature")
	ErrNoWizard       = errors.New("feature has no create wizard")
	ErrNotDeletable   = errors.New("feature items cannot be deleted")
	ErrUnknownAction  = errors.New("unknown action")
	ErrUnknownStatus  = errors.New("unknown status")
)

// AllStatuses selects every status of a feature's list.
const AllStatuses = "ALL"

// Feature is one console resource.
type Feature struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Key        string   `json:"key"`
	Attributes []string `json:"attributes"`
	Search     string   `json:"search"`
	// ConfirmDelete asks the user to type the key before deleting.
	ConfirmDelete bool `json:"confirm_delete"`
	Creatable     bool `json:"creatable"`
	Deletable     bool `json:"deletable"`
	// Actions are the state changes offered on items, e.g. APPROVE.
	Actions []string `json:"actions,omitempty"`
	// Statuses are the values accepted by the list's status parameter.
	Statuses []string `json:"statuses,omitempty"`

	table  func(sink alert.Sink, params remote.ListParams) listctl.Table
	wizard func(ctx context.Context, sink alert.Sink, onSuccess func()) (wizard.Flow, error)
	fetch  func(ctx context.Context, key string) (any, error)
	act    func(ctx context.Context, sink alert.Sink, key, action string) error
}

// StatusQuery returns the list parameters selecting statuses. An empty
// list or ALL selects every status.
func (f Feature) StatusQuery(statuses []string) (url.Values, error) {
	q := url.Values{}
	for _, st := range statuses {
		st = strings.ToUpper(strings.TrimSpace(st))
		switch {
		case st == "":
			continue
		case st == AllStatuses:
			return url.Values{}, nil
		case !slices.Contains(f.Statuses, st):
			return nil, &filter.ValidationError{Field: "status", Err: fmt.Errorf("%w %q for %s", ErrUnknownStatus, st, f.Name)}
		}
		q.Add("status", st)
	}
	return q, nil
}

// Options configures a Registry.
type Options struct {
	Client *remote.Client
	Config *config.Config
	Logger *log.Logger
}

// Registry holds every feature keyed by name.
type Registry struct {
	client   *remote.Client
	cfg      *config.Config
	logger   *log.Logger
	features map[string]Feature
}

// New builds the registry. Resource overrides in the config must name
// known features.
func New(opts Options) (*Registry, error) {
	if opts.Client == nil {
		return nil, errors.New("features: client required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{client: opts.Client, cfg: cfg, logger: logger, features: map[string]Feature{}}
	for _, f := range []Feature{
		r.certificates(),
		r.userStores(),
		r.groups(),
		r.approvals(),
		r.workflows(),
	} {
		f.Creatable = f.wizard != nil
		r.features[f.Name] = f
	}
	for name := range cfg.Resources {
		if _, ok := r.features[name]; !ok {
			return nil, fmt.Errorf("config.resources: %w %q", ErrUnknownFeature, name)
		}
	}
	return r, nil
}

// Names returns feature names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.features))
	for name := range r.features {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Feature returns the named feature.
func (r *Registry) Feature(name string) (Feature, error) {
	f, ok := r.features[name]
	if !ok {
		return Feature{}, fmt.Errorf("%w %q", ErrUnknownFeature, name)
	}
	return f, nil
}

// OpenTable creates a list controller for the feature. params are sent
// with every fetch.
func (r *Registry) OpenTable(name string, sink alert.Sink, params remote.ListParams) (listctl.Table, error) {
	f, err := r.Feature(name)
	if err != nil {
		return nil, err
	}
	return f.table(alert.WithSource(orDiscard(sink), name), params), nil
}

// OpenWizard starts the feature's create wizard. onSuccess runs after a
// successful submission.
func (r *Registry) OpenWizard(ctx context.Context, name string, sink alert.Sink, onSuccess func()) (wizard.Flow, error) {
	f, err := r.Feature(name)
	if err != nil {
		return nil, err
	}
	if f.wizard == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoWizard)
	}
	if onSuccess == nil {
		onSuccess = func() {}
	}
	return f.wizard(ctx, alert.WithSource(orDiscard(sink), name), onSuccess)
}

// Act applies a state change to one item, e.g. approving a task. The
// outcome is reported to sink.
func (r *Registry) Act(ctx context.Context, name string, sink alert.Sink, key, action string) error {
	f, err := r.Feature(name)
	if err != nil {
		return err
	}
	action = strings.ToUpper(strings.TrimSpace(action))
	if f.act == nil || !slices.Contains(f.Actions, action) {
		return &filter.ValidationError{Field: "action", Err: fmt.Errorf("%w %q for %s", ErrUnknownAction, action, name)}
	}
	return f.act(ctx, alert.WithSource(orDiscard(sink), name), key, action)
}

// Fetch reads one item of the feature by key.
func (r *Registry) Fetch(ctx context.Context, name, key string) (any, error) {
	f, err := r.Feature(name)
	if err != nil {
		return nil, err
	}
	return f.fetch(ctx, key)
}

func orDiscard(s alert.Sink) alert.Sink {
	if s == nil {
		return alert.Discard
	}
	return s
}

// defaults are a feature's built-in endpoint settings; console.yml may
// override path, pagination, delete policy and page size.
type defaults struct {
	path         string
	listKey      string
	pagination   remote.PaginationStyle
	updateMethod string
	updateSuffix string
	deletePolicy listctl.DeletePolicy
}

func endpointFor[T any](r *Registry, name string, d defaults) remote.Endpoint[T] {
	o := r.cfg.Resource(name)
	ep := remote.Endpoint[T]{
		Client:       r.client,
		Path:         d.path,
		ListKey:      d.listKey,
		Pagination:   d.pagination,
		UpdateMethod: d.updateMethod,
		UpdateSuffix: d.updateSuffix,
	}
	if o.Path != "" {
		ep.Path = o.Path
	}
	if o.Pagination != "" {
		ep.Pagination = remote.PaginationStyle(o.Pagination)
	}
	return ep
}

func pageSize(r *Registry, name string) int {
	if n := r.cfg.Resource(name).PageSize; n > 0 {
		return n
	}
	if n := r.cfg.Console.PageSize; n > 0 {
		return n
	}
	return listctl.DefaultPageSize
}

func deletePolicy(r *Registry, name string, d defaults) listctl.DeletePolicy {
	if p := r.cfg.Resource(name).DeletePolicy; p != "" {
		return listctl.DeletePolicy(p)
	}
	return d.deletePolicy
}

// tableFor returns the constructor of a feature's list controller.
func tableFor[T any](r *Registry, name string, d defaults, res remote.Resource[T], schema *filter.Schema[T], key func(T) string, msgs listctl.Messages) func(alert.Sink, remote.ListParams) listctl.Table {
	return func(sink alert.Sink, params remote.ListParams) listctl.Table {
		return listctl.AsTable(listctl.New(listctl.Options[T]{
			Resource:     res,
			Schema:       schema,
			Key:          key,
			Alerts:       sink,
			Messages:     msgs,
			PageSize:     pageSize(r, name),
			DeletePolicy: deletePolicy(r, name, d),
			Params:       params,
			Logger:       r.logger,
		}))
	}
}

func fetchFor[T any](res remote.Resource[T]) func(context.Context, string) (any, error) {
	return func(ctx context.Context, key string) (any, error) {
		return res.FetchOne(ctx, key)
	}
}

func listMessages(noun string) listctl.Messages {
	return listctl.Messages{
		LoadFailed:    alert.Text{Message: "Something went wrong", Description: "Could not retrieve the " + noun + " list."},
		DeleteFailed:  alert.Text{Message: "Something went wrong", Description: "Could not delete the " + noun + "."},
		DeleteSuccess: alert.Text{Message: "Deleted successfully", Description: "The " + noun + " was deleted."},
	}
}

func describe[T any](name, title, key string, schema *filter.Schema[T]) Feature {
	return Feature{
		Name:       name,
		Title:      title,
		Key:        key,
		Attributes: schema.Attributes(),
		Search:     schema.Default(),
		Deletable:  true,
	}
}

func openWizard[P any](def wizard.Definition[P], sink alert.Sink, onSuccess func()) wizard.Flow {
	def.OnSuccess = func(P) { onSuccess() }
	return wizard.Open(def, sink)
}
