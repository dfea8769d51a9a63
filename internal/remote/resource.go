package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Resource is the narrow contract list and wizard controllers depend on.
type Resource[T any] interface {
	FetchList(ctx context.Context, params ListParams) ([]T, error)
	FetchOne(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, payload any) (T, error)
	Update(ctx context.Context, id string, payload any) (T, error)
	Delete(ctx context.Context, id string) error
}

// PaginationStyle selects how offsets are sent.
type PaginationStyle string

const (
	// OffsetStyle sends a zero-based "offset".
	OffsetStyle PaginationStyle = "offset"
	// SCIMStyle sends a one-based "startIndex".
	SCIMStyle PaginationStyle = "scim"
)

// ListParams are the server-side pagination/filter query parameters.
type ListParams struct {
	Limit      int
	Offset     int
	Filter     string
	Attributes []string
	Domain     string
	Extra      url.Values
}

// Query encodes p for the given pagination style.
func (p ListParams) Query(style PaginationStyle) url.Values {
	q := url.Values{}
	for k, vs := range p.Extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	switch style {
	case SCIMStyle:
		if p.Limit > 0 || p.Offset > 0 {
			q.Set("startIndex", strconv.Itoa(p.Offset+1))
		}
	default:
		if p.Offset > 0 {
			q.Set("offset", strconv.Itoa(p.Offset))
		}
	}
	if p.Filter != "" {
		q.Set("filter", p.Filter)
	}
	if len(p.Attributes) > 0 {
		q.Set("attributes", strings.Join(p.Attributes, ","))
	}
	if p.Domain != "" {
		q.Set("domain", p.Domain)
	}
	return q
}

// Endpoint is a REST collection at Path implementing Resource[T].
type Endpoint[T any] struct {
	Client *Client
	Path   string
	// ListKey names the envelope field holding list items (SCIM uses
	// "Resources"); empty means the body is a bare JSON array.
	ListKey string
	// UpdateMethod defaults to PUT.
	UpdateMethod string
	// UpdateSuffix is appended to the item path on updates, e.g. "state"
	// for PUT <path>/<id>/state.
	UpdateSuffix string
	Pagination   PaginationStyle
}

var _ Resource[struct{}] = Endpoint[struct{}]{}

func (e Endpoint[T]) FetchList(ctx context.Context, params ListParams) ([]T, error) {
	req := Request{Method: http.MethodGet, Path: e.Path, Params: params.Query(e.Pagination)}
	if e.ListKey == "" {
		var items []T
		if err := e.Client.Do(ctx, req, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var envelope map[string]json.RawMessage
	if err := e.Client.Do(ctx, req, &envelope); err != nil {
		return nil, err
	}
	raw, ok := envelope[e.ListKey]
	if !ok || string(raw) == "null" {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", e.Path, e.ListKey, err)
	}
	return items, nil
}

func (e Endpoint[T]) FetchOne(ctx context.Context, id string) (T, error) {
	var out T
	err := e.Client.Do(ctx, Request{Method: http.MethodGet, Path: e.itemPath(id)}, &out)
	return out, err
}

func (e Endpoint[T]) Create(ctx context.Context, payload any) (T, error) {
	var out T
	err := e.Client.Do(ctx, Request{Method: http.MethodPost, Path: e.Path, Data: payload}, &out)
	return out, err
}

func (e Endpoint[T]) Update(ctx context.Context, id string, payload any) (T, error) {
	method := e.UpdateMethod
	if method == "" {
		method = http.MethodPut
	}
	p := e.itemPath(id)
	if e.UpdateSuffix != "" {
		p += "/" + strings.Trim(e.UpdateSuffix, "/")
	}
	var out T
	err := e.Client.Do(ctx, Request{Method: method, Path: p, Data: payload}, &out)
	return out, err
}

func (e Endpoint[T]) Delete(ctx context.Context, id string) error {
	return e.Client.Do(ctx, Request{Method: http.MethodDelete, Path: e.itemPath(id)}, nil)
}

func (e Endpoint[T]) itemPath(id string) string {
	return strings.TrimRight(e.Path, "/") + "/" + Join(id)
}
