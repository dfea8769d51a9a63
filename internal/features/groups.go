package features

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
	"github.com/wso2/identity-apps-sub079/internal/remote"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

// GroupSchema is the SCIM core group schema URN.
const GroupSchema = "urn:ietf:params:scim:schemas:core:2.0:Group"

var groupSchema = filter.NewSchema("name",
	filter.Field[domain.Group]{Name: "name", Value: func(g domain.Group) string { return g.Name() }},
	filter.Field[domain.Group]{Name: "domain", Value: func(g domain.Group) string { return g.Domain() }},
	filter.Field[domain.Group]{Name: "displayName", Value: func(g domain.Group) string { return g.DisplayName }},
	filter.Field[domain.Group]{Name: "created", Value: func(g domain.Group) string { return g.Meta.Created }},
	filter.Field[domain.Group]{Name: "id", Value: func(g domain.Group) string { return g.ID }},
)

var groupName = regexp.MustCompile(`^[^/\s][^/]*$`)

func (r *Registry) groups() Feature {
	const name = "groups"
	d := defaults{
		path:         "scim2/Groups",
		listKey:      "Resources",
		pagination:   remote.SCIMStyle,
		updateMethod: http.MethodPatch,
		deletePolicy: listctl.Reload,
	}
	ep := endpointFor[domain.Group](r, name, d)
	stores := endpointFor[domain.UserStore](r, "userstores", defaults{path: "api/server/v1/userstores"})

	f := describe(name, "Groups", "id", groupSchema)
	f.table = tableFor[domain.Group](r, name, d, ep, groupSchema, func(g domain.Group) string { return g.ID }, listMessages("group"))
	f.fetch = fetchFor[domain.Group](ep)
	f.wizard = func(ctx context.Context, sink alert.Sink, onSuccess func()) (wizard.Flow, error) {
		def, err := groupWizard(ctx, ep, stores, sink)
		if err != nil {
			return nil, err
		}
		return openWizard(def, sink, onSuccess), nil
	}
	return f
}

// groupWizard creates a group in a chosen user store domain and assigns
// initial members.
func groupWizard(ctx context.Context, groups remote.Resource[domain.Group], stores remote.Resource[domain.UserStore], sink alert.Sink) (wizard.Definition[domain.GroupCreate], error) {
	domains := []string{domain.PrimaryDomain}
	list, err := stores.FetchList(ctx, remote.ListParams{})
	if err != nil {
		sink.Add(alert.FromError(err, alert.Text{Message: "Something went wrong", Description: "Could not retrieve the user store list."}))
		return wizard.Definition[domain.GroupCreate]{}, err
	}
	for _, s := range list {
		if !strings.EqualFold(s.Name, domain.PrimaryDomain) {
			domains = append(domains, strings.ToUpper(s.Name))
		}
	}

	return wizard.Definition[domain.GroupCreate]{
		Name: "group",
		Steps: []wizard.Step{
			{
				Name:  "basic",
				Title: "Basic details",
				Fields: func(wizard.Collected) []wizard.Field {
					return []wizard.Field{
						{Name: "domain", Label: "User store", Required: true, Default: domain.PrimaryDomain, Options: domains},
						{Name: "groupName", Label: "Group name", Required: true, Pattern: groupName},
					}
				},
				Validate: func(ctx context.Context, v wizard.Values, _ wizard.Collected) error {
					qualified := domain.QualifiedName(v["domain"], v["groupName"])
					p := filter.Predicate{Attribute: "displayName", Operator: filter.Equals, Value: qualified}
					found, err := groups.FetchList(ctx, remote.ListParams{Filter: p.String(), Domain: v["domain"]})
					if err != nil {
						return err
					}
					for _, g := range found {
						if strings.EqualFold(g.DisplayName, qualified) || (strings.EqualFold(g.Name(), v["groupName"]) && strings.EqualFold(g.Domain(), v["domain"])) {
							return wizard.Invalidf("groupName", "a group with the name %s already exists", v["groupName"])
						}
					}
					return nil
				},
			},
			{
				Name:  "users",
				Title: "Assign users",
				Fields: func(wizard.Collected) []wizard.Field {
					return []wizard.Field{{Name: "members", Label: "User IDs (comma separated)"}}
				},
			},
		},
		Build: func(c wizard.Collected) (domain.GroupCreate, error) {
			out := domain.GroupCreate{
				Schemas:     []string{GroupSchema},
				DisplayName: domain.QualifiedName(c.Value("basic", "domain"), c.Value("basic", "groupName")),
			}
			for _, id := range strings.Split(c.Value("users", "members"), ",") {
				if id = strings.TrimSpace(id); id != "" {
					out.Members = append(out.Members, domain.Member{Value: id})
				}
			}
			return out, nil
		},
		Submit: func(ctx context.Context, p domain.GroupCreate) error {
			_, err := groups.Create(ctx, p)
			return err
		},
		Success: alert.Text{Message: "Group created successfully", Description: "The group has been created."},
		Failure: alert.Text{Message: "Something went wrong", Description: "Could not create the group."},
	}, nil
}
