package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Request describes one call against the IAM REST API.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Params url.Values
	Data   any
}

// OAuth holds client-credentials settings for the IAM token endpoint.
type OAuth struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

func (o OAuth) enabled() bool {
	return o.ClientID != "" && o.TokenURL != ""
}

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Origin      string
	BearerToken string
	OAuth       OAuth
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *log.Logger
}

// Client is the shared HTTP client every resource endpoint goes through.
type Client struct {
	BaseURL     string
	Origin      string
	BearerToken string
	HTTPClient  *http.Client
	Logger      *log.Logger
}

// New creates a client with sane defaults. When OAuth is configured the
// underlying transport fetches and refreshes client-credentials tokens.
func New(ctx context.Context, opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	if opts.OAuth.enabled() {
		cc := clientcredentials.Config{
			ClientID:     opts.OAuth.ClientID,
			ClientSecret: opts.OAuth.ClientSecret,
			TokenURL:     opts.OAuth.TokenURL,
			Scopes:       opts.OAuth.Scopes,
		}
		hc = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, hc))
		hc.Timeout = timeout
	}
	return &Client{
		BaseURL:     opts.BaseURL,
		Origin:      opts.Origin,
		BearerToken: opts.BearerToken,
		HTTPClient:  hc,
		Logger:      opts.Logger,
	}
}

func (c *Client) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// Do sends req and decodes a JSON response into out when out is non-nil.
// Non-2xx responses become *APIError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = defaultHTTPClient
	}
	endpoint := c.URL(req.Path)
	if len(req.Params) > 0 {
		endpoint += "?" + req.Params.Encode()
	}
	var buf bytes.Buffer
	if req.Data != nil {
		if err := json.NewEncoder(&buf).Encode(req.Data); err != nil {
			return fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.Origin != "" {
		httpReq.Header.Set("Access-Control-Allow-Origin", c.Origin)
	}
	if c.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		c.logger().Printf("remote: %s %s -> %d", req.Method, req.Path, resp.StatusCode)
		return newAPIError(resp.StatusCode, b)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

// URL composes base URL and path segments.
func (c *Client) URL(p string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

// Join escapes and joins path segments, e.g. Join("roles", id, "users").
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}
