package features

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
	"github.com/wso2/identity-apps-sub079/internal/remote"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

var userStoreSchema = filter.NewSchema("name",
	filter.Field[domain.UserStore]{Name: "name", Value: func(u domain.UserStore) string { return u.Name }},
	filter.Field[domain.UserStore]{Name: "description", Value: func(u domain.UserStore) string { return u.Description }},
	filter.Field[domain.UserStore]{Name: "type", Value: func(u domain.UserStore) string { return u.TypeName }},
	filter.Field[domain.UserStore]{Name: "id", Value: func(u domain.UserStore) string { return u.ID }},
)

var userStoreName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func (r *Registry) userStores() Feature {
	const name = "userstores"
	d := defaults{path: "api/server/v1/userstores", deletePolicy: listctl.RemoveLocal}
	ep := endpointFor[domain.UserStore](r, name, d)
	types := remote.Endpoint[domain.UserStoreType]{Client: r.client, Path: strings.TrimRight(ep.Path, "/") + "/meta/types"}

	f := describe(name, "User stores", "id", userStoreSchema)
	f.table = tableFor[domain.UserStore](r, name, d, ep, userStoreSchema, func(u domain.UserStore) string { return u.ID }, listMessages("user store"))
	f.fetch = fetchFor[domain.UserStore](ep)
	f.wizard = func(ctx context.Context, sink alert.Sink, onSuccess func()) (wizard.Flow, error) {
		def, err := userStoreWizard(ctx, ep, types, sink)
		if err != nil {
			return nil, err
		}
		return openWizard(def, sink, onSuccess), nil
	}
	return f
}

// typeCache remembers type metadata fetched while the wizard is open.
type typeCache struct {
	mu    sync.Mutex
	types map[string]domain.UserStoreType
}

func (c *typeCache) get(id string) domain.UserStoreType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.types[id]
}

func (c *typeCache) put(t domain.UserStoreType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[t.TypeID] = t
}

// userStoreWizard builds the create flow. The property steps are derived
// from the type picked in the first step; the group step only appears for
// types that declare group properties.
func userStoreWizard(ctx context.Context, stores remote.Resource[domain.UserStore], types remote.Endpoint[domain.UserStoreType], sink alert.Sink) (wizard.Definition[domain.UserStoreCreate], error) {
	failure := alert.Text{Message: "Something went wrong", Description: "Could not create the user store."}
	available, err := types.FetchList(ctx, remote.ListParams{})
	if err != nil {
		sink.Add(alert.FromError(err, alert.Text{Message: "Something went wrong", Description: "Could not retrieve the user store types."}))
		return wizard.Definition[domain.UserStoreCreate]{}, err
	}
	ids := make([]string, 0, len(available))
	for _, t := range available {
		ids = append(ids, t.TypeID)
	}
	cache := &typeCache{types: map[string]domain.UserStoreType{}}
	chosen := func(c wizard.Collected) domain.UserStoreType {
		return cache.get(c.Value("general", "type"))
	}

	return wizard.Definition[domain.UserStoreCreate]{
		Name: "userstore",
		Steps: []wizard.Step{
			{
				Name:  "general",
				Title: "General settings",
				Fields: func(wizard.Collected) []wizard.Field {
					return []wizard.Field{
						{Name: "name", Label: "Name", Required: true, Pattern: userStoreName},
						{Name: "description", Label: "Description"},
						{Name: "type", Label: "Type", Required: true, Options: ids},
					}
				},
				Validate: func(ctx context.Context, v wizard.Values, _ wizard.Collected) error {
					existing, err := stores.FetchList(ctx, remote.ListParams{})
					if err != nil {
						return err
					}
					for _, s := range existing {
						if strings.EqualFold(s.Name, v["name"]) {
							return wizard.Invalidf("name", "a user store named %s already exists", v["name"])
						}
					}
					if cache.get(v["type"]).TypeID != "" {
						return nil
					}
					t, err := types.FetchOne(ctx, v["type"])
					if err != nil {
						return err
					}
					if t.TypeID == "" {
						t.TypeID = v["type"]
					}
					cache.put(t)
					return nil
				},
			},
			{
				Name:   "connection",
				Title:  "Connection details",
				Fields: func(c wizard.Collected) []wizard.Field { return propertyFields(chosen(c).Properties.Connection) },
			},
			{
				Name:   "user",
				Title:  "User details",
				Fields: func(c wizard.Collected) []wizard.Field { return propertyFields(chosen(c).Properties.User) },
			},
			{
				Name:   "group",
				Title:  "Group details",
				Fields: func(c wizard.Collected) []wizard.Field { return propertyFields(chosen(c).Properties.Group) },
				When:   func(c wizard.Collected) bool { return len(chosen(c).Properties.Group) > 0 },
			},
			{
				Name:  "summary",
				Title: "Summary",
			},
		},
		Build: func(c wizard.Collected) (domain.UserStoreCreate, error) {
			t := chosen(c)
			if t.TypeID == "" {
				return domain.UserStoreCreate{}, fmt.Errorf("user store type %q not loaded", c.Value("general", "type"))
			}
			out := domain.UserStoreCreate{
				TypeID:      t.TypeID,
				Name:        c.Value("general", "name"),
				Description: c.Value("general", "description"),
				Properties:  []domain.Property{},
			}
			sections := []struct {
				step  string
				props []domain.TypeProperty
			}{
				{"connection", t.Properties.Connection},
				{"user", t.Properties.User},
				{"group", t.Properties.Group},
			}
			for _, s := range sections {
				values, ok := c.Get(s.step)
				if !ok {
					continue
				}
				for _, p := range s.props {
					if v, ok := values[p.Name]; ok {
						out.Properties = append(out.Properties, domain.Property{Name: p.Name, Value: v})
					}
				}
			}
			return out, nil
		},
		Submit: func(ctx context.Context, p domain.UserStoreCreate) error {
			_, err := stores.Create(ctx, p)
			return err
		},
		Success: alert.Text{Message: "Creation successful", Description: "The user store has been added. Changes may take a while to appear."},
		Failure: failure,
	}, nil
}

func propertyFields(props []domain.TypeProperty) []wizard.Field {
	out := make([]wizard.Field, 0, len(props))
	for _, p := range props {
		label := p.DisplayName
		if label == "" {
			label = p.Name
		}
		out = append(out, wizard.Field{
			Name:     p.Name,
			Label:    label,
			Help:     p.Description,
			Required: p.Required,
			Secret:   p.Secret,
			URL:      p.URL,
			Default:  p.DefaultValue,
		})
	}
	return out
}
