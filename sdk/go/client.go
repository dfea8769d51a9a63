package consolesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal identity console HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// View is one rendered page of a list view.
type View struct {
	Session string            `json:"session"`
	Feature string            `json:"feature"`
	Columns []string          `json:"columns"`
	Keys    []string          `json:"keys"`
	Rows    [][]string        `json:"rows"`
	Items   []json.RawMessage `json:"items"`
	Total   int               `json:"total"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
	Page    int               `json:"page"`
	Pages   int               `json:"pages"`
	State   string            `json:"state"`
	// LoadError is set when the last fetch failed; the previous items are
	// kept.
	LoadError string `json:"load_error"`
}

// Field is one input of a wizard step.
type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Secret   bool     `json:"secret"`
	Default  string   `json:"default"`
	Options  []string `json:"options"`
}

// Step is the current step of a wizard.
type Step struct {
	Name   string            `json:"name"`
	Title  string            `json:"title"`
	Index  int               `json:"index"`
	Count  int               `json:"count"`
	Last   bool              `json:"last"`
	Fields []Field           `json:"fields"`
	Values map[string]string `json:"values"`
}

// Wizard is an open create wizard.
type Wizard struct {
	Session string   `json:"session"`
	Feature string   `json:"feature"`
	State   string   `json:"state"`
	Step    Step     `json:"step"`
	Steps   []string `json:"completed_steps"`
}

// Event represents a log entry; alerts are events of type "alert".
type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	Level       string `json:"level"`
	Resource    string `json:"resource"`
	EntityID    string `json:"entity_id"`
	ActorID     string `json:"actor_id"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// OpenView opens a list view of feature and loads its first page.
func (c *Client) OpenView(ctx context.Context, feature, domain string) (View, error) {
	body := map[string]any{"feature": feature}
	if domain != "" {
		body["domain"] = domain
	}
	var resp View
	err := c.do(ctx, http.MethodPost, "views", body, &resp)
	return resp, err
}

// Search applies the feature's default search.
func (c *Client) Search(ctx context.Context, view, term string) (View, error) {
	var resp View
	err := c.do(ctx, http.MethodPost, c.viewPath(view, "search"), map[string]any{"term": term}, &resp)
	return resp, err
}

// Filter applies an advanced filter.
func (c *Client) Filter(ctx context.Context, view, attribute, operator, value string) (View, error) {
	body := map[string]any{"attribute": attribute, "operator": operator, "value": value}
	var resp View
	err := c.do(ctx, http.MethodPost, c.viewPath(view, "filter"), body, &resp)
	return resp, err
}

// Page changes page number and/or size; zero leaves a value unchanged.
func (c *Client) Page(ctx context.Context, view string, number, size int) (View, error) {
	body := map[string]any{}
	if number != 0 {
		body["number"] = number
	}
	if size != 0 {
		body["size"] = size
	}
	var resp View
	err := c.do(ctx, http.MethodPost, c.viewPath(view, "page"), body, &resp)
	return resp, err
}

// Delete removes key from the view. confirm must repeat key for features
// that ask for confirmation.
func (c *Client) Delete(ctx context.Context, view, key, confirm string) (View, error) {
	endpoint := c.viewPath(view, "items/"+url.PathEscape(key))
	if confirm != "" {
		endpoint += "?confirm=" + url.QueryEscape(confirm)
	}
	var resp View
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// Act changes the state of key, e.g. APPROVE on an approval task, and
// returns the reloaded view.
func (c *Client) Act(ctx context.Context, view, key, action string) (View, error) {
	var resp View
	err := c.do(ctx, http.MethodPost, c.viewPath(view, "items/"+url.PathEscape(key)+"/actions"), map[string]any{"action": action}, &resp)
	return resp, err
}

// CloseView closes a view.
func (c *Client) CloseView(ctx context.Context, view string) error {
	return c.do(ctx, http.MethodDelete, c.viewPath(view, ""), nil, nil)
}

// OpenWizard starts feature's create wizard.
func (c *Client) OpenWizard(ctx context.Context, feature string) (Wizard, error) {
	var resp Wizard
	err := c.do(ctx, http.MethodPost, "wizards", map[string]any{"feature": feature}, &resp)
	return resp, err
}

// Next submits the current step and advances.
func (c *Client) Next(ctx context.Context, wizard string, values map[string]string) (Wizard, error) {
	var resp Wizard
	err := c.do(ctx, http.MethodPost, "wizards/"+url.PathEscape(wizard)+"/next", map[string]any{"values": values}, &resp)
	return resp, err
}

// Finish submits the last step and creates the resource.
func (c *Client) Finish(ctx context.Context, wizard string, values map[string]string) (Wizard, error) {
	var resp Wizard
	err := c.do(ctx, http.MethodPost, "wizards/"+url.PathEscape(wizard)+"/finish", map[string]any{"values": values}, &resp)
	return resp, err
}

// Alerts returns the caller's alerts after cursor.
func (c *Client) Alerts(ctx context.Context, after string) (PaginatedEvents, error) {
	endpoint := "alerts"
	if after != "" {
		endpoint += "?after=" + url.QueryEscape(after)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, eventType string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("type", eventType)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) viewPath(view, p string) string {
	out := "views/" + url.PathEscape(view)
	if p != "" {
		out += "/" + p
	}
	return out
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
