package features

import (
	"context"
	"strconv"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
)

var approvalSchema = filter.NewSchema("name",
	filter.Field[domain.Approval]{Name: "name", Value: func(a domain.Approval) string { return a.PresentationName }},
	filter.Field[domain.Approval]{Name: "subject", Value: func(a domain.Approval) string { return a.PresentationSub }},
	filter.Field[domain.Approval]{Name: "status", Value: func(a domain.Approval) string { return a.Status }},
	filter.Field[domain.Approval]{Name: "priority", Value: func(a domain.Approval) string { return strconv.Itoa(a.Priority) }},
	filter.Field[domain.Approval]{Name: "id", Value: func(a domain.Approval) string { return a.ID }},
)

// Approval task state changes, sent as {"action": ...} to the task's
// state endpoint.
const (
	ApprovalClaim   = "CLAIM"
	ApprovalRelease = "RELEASE"
	ApprovalApprove = "APPROVE"
	ApprovalReject  = "REJECT"
)

// approvals lists the caller's pending workflow tasks. Tasks are never
// deleted; they are claimed, released, approved or rejected.
func (r *Registry) approvals() Feature {
	const name = "approvals"
	d := defaults{path: "api/users/v1/me/approval-tasks", deletePolicy: listctl.Reload, updateSuffix: "state"}
	ep := endpointFor[domain.Approval](r, name, d)
	f := describe(name, "Approvals", "id", approvalSchema)
	f.Deletable = false
	f.Actions = []string{ApprovalClaim, ApprovalRelease, ApprovalApprove, ApprovalReject}
	f.Statuses = []string{"READY", "RESERVED", "COMPLETED"}
	f.table = tableFor[domain.Approval](r, name, d, ep, approvalSchema, func(a domain.Approval) string { return a.ID }, listMessages("approval"))
	f.fetch = fetchFor[domain.Approval](ep)
	f.act = func(ctx context.Context, sink alert.Sink, id, action string) error {
		_, err := ep.Update(ctx, id, map[string]string{"action": action})
		if err != nil {
			sink.Add(alert.FromError(err, alert.Text{
				Message:     "Something went wrong",
				Description: "Could not update the approval.",
			}))
			return err
		}
		sink.Add(alert.Succeeded(alert.Text{
			Message:     "Approval updated",
			Description: "The approval task was updated.",
		}))
		return nil
	}
	return f
}
