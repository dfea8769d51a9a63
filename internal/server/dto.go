package server

import (
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/features"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
	"github.com/wso2/identity-apps-sub079/internal/session"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

type FeatureResponse struct {
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Key           string   `json:"key"`
	Attributes    []string `json:"attributes"`
	Search        string   `json:"search"`
	Operators     []string `json:"operators"`
	ConfirmDelete bool     `json:"confirm_delete"`
	Creatable     bool     `json:"creatable"`
	Deletable     bool     `json:"deletable"`
	Actions       []string `json:"actions,omitempty"`
	Statuses      []string `json:"statuses,omitempty"`
}

type OpenViewRequest struct {
	Feature string   `json:"feature" minLength:"1"`
	Domain  string   `json:"domain,omitempty"`
	Filter  string   `json:"filter,omitempty" doc:"Server-side SCIM filter sent with every fetch"`
	Status  []string `json:"status,omitempty" doc:"Statuses to list for features that have them; ALL lists every status"`
}

type ActionRequest struct {
	Action string `json:"action" minLength:"1" example:"APPROVE"`
}

type ViewResponse struct {
	Session  string            `json:"session"`
	Feature  string            `json:"feature"`
	Columns  []string          `json:"columns"`
	Keys     []string          `json:"keys"`
	Rows     [][]string        `json:"rows"`
	Items    []any             `json:"items"`
	Total    int               `json:"total"`
	Fetched  int               `json:"fetched"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit"`
	Page     int               `json:"page"`
	Pages    int               `json:"pages"`
	Filter   *filter.Predicate `json:"filter,omitempty"`
	SortKey  string            `json:"sort_key,omitempty"`
	SortAsc  bool              `json:"sort_ascending"`
	State    string            `json:"state" enum:"loading,empty,ready,error"`
	LoadFail string            `json:"load_error,omitempty"`
}

type SearchRequest struct {
	Term string `json:"term"`
}

type FilterRequest struct {
	Attribute string `json:"attribute" minLength:"1"`
	Operator  string `json:"operator" minLength:"1"`
	Value     string `json:"value"`
}

type SortRequest struct {
	Key       string `json:"key"`
	Ascending bool   `json:"ascending"`
}

type PageRequest struct {
	Number int `json:"number,omitempty" minimum:"0" maximum:"1000000000" doc:"1-based page number; 0 keeps the current page"`
	Size   int `json:"size,omitempty" minimum:"0" doc:"Page size; 0 keeps the current size"`
}

type OpenWizardRequest struct {
	Feature string `json:"feature" minLength:"1"`
}

type StepRequest struct {
	Values map[string]string `json:"values,omitempty"`
}

type WizardResponse struct {
	Session string          `json:"session"`
	Feature string          `json:"feature"`
	State   string          `json:"state" enum:"open,submitted,closed"`
	Step    wizard.StepView `json:"step"`
	Steps   []string        `json:"completed_steps"`
}

type SessionResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Feature  string `json:"feature"`
	Created  string `json:"created" format:"date-time"`
	LastUsed string `json:"last_used" format:"date-time"`
}

type EventResponse struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	Level       string `json:"level,omitempty"`
	Resource    string `json:"resource,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
	Payload     string `json:"payload_json,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func featureResponse(f features.Feature) FeatureResponse {
	ops := make([]string, 0, len(filter.Operators()))
	for _, op := range filter.Operators() {
		ops = append(ops, string(op))
	}
	return FeatureResponse{
		Name:          f.Name,
		Title:         f.Title,
		Key:           f.Key,
		Attributes:    nonNilSlice(f.Attributes),
		Search:        f.Search,
		Operators:     ops,
		ConfirmDelete: f.ConfirmDelete,
		Creatable:     f.Creatable,
		Deletable:     f.Deletable,
		Actions:       f.Actions,
		Statuses:      f.Statuses,
	}
}

func viewResponse(s session.Session, rows listctl.Rows) ViewResponse {
	return ViewResponse{
		Session: s.ID,
		Feature: s.Feature,
		Columns: nonNilSlice(rows.Columns),
		Keys:    nonNilSlice(rows.Keys),
		Rows:    nonNilSlice(rows.Rows),
		Items:   nonNilSlice(rows.Items),
		Total:   rows.Total,
		Fetched: rows.Fetched,
		Offset:  rows.Page.Offset,
		Limit:   rows.Page.Limit,
		Page:    rows.Number,
		Pages:   rows.Pages,
		Filter:  rows.Filter,
		SortKey: rows.Sort.Key,
		SortAsc: rows.Sort.Ascending,
		State:   string(rows.State),
	}
}

func wizardResponse(s session.Session) WizardResponse {
	return WizardResponse{
		Session: s.ID,
		Feature: s.Feature,
		State:   string(s.Flow.State()),
		Step:    maskSecrets(s.Flow.Current()),
		Steps:   nonNilSlice(s.Flow.Collected().Steps()),
	}
}

// maskSecrets hides the recorded values of secret fields.
func maskSecrets(v wizard.StepView) wizard.StepView {
	v.Fields = nonNilSlice(v.Fields)
	for _, f := range v.Fields {
		if f.Secret && v.Values[f.Name] != "" {
			v.Values[f.Name] = secretMask
		}
	}
	return v
}

func sessionResponse(s session.Session) SessionResponse {
	return SessionResponse{
		ID:       s.ID,
		Kind:     string(s.Kind),
		Feature:  s.Feature,
		Created:  s.Created.Format(timeLayout),
		LastUsed: s.LastUsed.Format(timeLayout),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		TS:          e.TS,
		Type:        e.Type,
		Level:       e.Level,
		Resource:    e.Resource,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		Message:     e.Message,
		Description: e.Description,
		Payload:     e.Payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
