package features

import (
	"context"
	"regexp"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
	"github.com/wso2/identity-apps-sub079/internal/remote"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

// Workflow templates offered by the create wizard.
const (
	MultiStepApproval = "MultiStepApprovalTemplate"
	SimpleApproval    = "SimpleApprovalTemplate"
	DefaultEngine     = "WorkflowEngine"
)

var workflowSchema = filter.NewSchema("name",
	filter.Field[domain.WorkflowDefinition]{Name: "name", Value: func(w domain.WorkflowDefinition) string { return w.Name }},
	filter.Field[domain.WorkflowDefinition]{Name: "description", Value: func(w domain.WorkflowDefinition) string { return w.Description }},
	filter.Field[domain.WorkflowDefinition]{Name: "template", Value: func(w domain.WorkflowDefinition) string { return w.Template }},
	filter.Field[domain.WorkflowDefinition]{Name: "id", Value: func(w domain.WorkflowDefinition) string { return w.ID }},
)

var roleList = regexp.MustCompile(`^[^,\s]+(\s*,\s*[^,\s]+)*$`)

func (r *Registry) workflows() Feature {
	const name = "workflows"
	d := defaults{path: "api/server/v1/workflows", deletePolicy: listctl.Reload}
	ep := endpointFor[domain.WorkflowDefinition](r, name, d)
	f := describe(name, "Workflows", "id", workflowSchema)
	f.table = tableFor[domain.WorkflowDefinition](r, name, d, ep, workflowSchema, func(w domain.WorkflowDefinition) string { return w.ID }, listMessages("workflow"))
	f.fetch = fetchFor[domain.WorkflowDefinition](ep)
	f.wizard = func(_ context.Context, sink alert.Sink, onSuccess func()) (wizard.Flow, error) {
		return openWizard(workflowWizard(ep), sink, onSuccess), nil
	}
	return f
}

// approvalFields returns the approval step form for a template.
func approvalFields(template string) []wizard.Field {
	switch template {
	case SimpleApproval:
		return []wizard.Field{
			{Name: "ApproverRole", Label: "Approver role", Required: true},
		}
	default:
		return []wizard.Field{
			{Name: "Step-1-roles", Label: "Step 1 roles", Required: true, Pattern: roleList},
			{Name: "Step-1-users", Label: "Step 1 users", Pattern: roleList},
			{Name: "Step-2-roles", Label: "Step 2 roles", Pattern: roleList},
			{Name: "Step-2-users", Label: "Step 2 users", Pattern: roleList},
		}
	}
}

func workflowWizard(workflows remote.Resource[domain.WorkflowDefinition]) wizard.Definition[domain.WorkflowCreate] {
	return wizard.Definition[domain.WorkflowCreate]{
		Name: "workflow",
		Steps: []wizard.Step{
			{
				Name:  "basic",
				Title: "Basic details",
				Fields: func(wizard.Collected) []wizard.Field {
					return []wizard.Field{
						{Name: "name", Label: "Name", Required: true},
						{Name: "description", Label: "Description"},
						{Name: "template", Label: "Template", Required: true, Default: MultiStepApproval, Options: []string{MultiStepApproval, SimpleApproval}},
					}
				},
			},
			{
				Name:  "approval",
				Title: "Approval steps",
				Fields: func(c wizard.Collected) []wizard.Field {
					return approvalFields(c.Value("basic", "template"))
				},
			},
			{
				Name:  "engine",
				Title: "Workflow engine",
				Fields: func(wizard.Collected) []wizard.Field {
					return []wizard.Field{
						{Name: "engineId", Label: "Engine", Required: true, Default: DefaultEngine, Options: []string{DefaultEngine}},
						{Name: "HTSubject", Label: "Approval task subject"},
						{Name: "HTDescription", Label: "Approval task description"},
					}
				},
			},
		},
		Build: func(c wizard.Collected) (domain.WorkflowCreate, error) {
			out := domain.WorkflowCreate{
				Name:               c.Value("basic", "name"),
				Description:        c.Value("basic", "description"),
				TemplateID:         c.Value("basic", "template"),
				EngineID:           c.Value("engine", "engineId"),
				TemplateProperties: []domain.Property{},
			}
			for _, f := range approvalFields(out.TemplateID) {
				if v := c.Value("approval", f.Name); v != "" {
					out.TemplateProperties = append(out.TemplateProperties, domain.Property{Name: f.Name, Value: v})
				}
			}
			for _, n := range []string{"HTSubject", "HTDescription"} {
				if v := c.Value("engine", n); v != "" {
					out.EngineProperties = append(out.EngineProperties, domain.Property{Name: n, Value: v})
				}
			}
			return out, nil
		},
		Submit: func(ctx context.Context, p domain.WorkflowCreate) error {
			_, err := workflows.Create(ctx, p)
			return err
		},
		Success: alert.Text{Message: "Workflow created", Description: "The workflow has been added."},
		Failure: alert.Text{Message: "Something went wrong", Description: "Could not create the workflow."},
	}
}
