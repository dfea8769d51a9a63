package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models console.yml.
type Config struct {
	Server struct {
		BaseURL string `yaml:"base_url"`
		Origin  string `yaml:"origin"`
		Tenant  string `yaml:"tenant"`
		Timeout string `yaml:"timeout"`
	} `yaml:"server"`
	Auth struct {
		Token        string   `yaml:"token"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		TokenURL     string   `yaml:"token_url"`
		Scopes       []string `yaml:"scopes"`
	} `yaml:"auth"`
	Console struct {
		PageSize    int    `yaml:"page_size"`
		SessionIdle string `yaml:"session_idle"`
	} `yaml:"console"`
	Resources map[string]Resource `yaml:"resources"`
	Webhooks  []WebhookConfig     `yaml:"webhooks"`
}

// WebhookConfig forwards persisted console events to an external URL.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Resource overrides how one console feature talks to its endpoint.
type Resource struct {
	Path         string `yaml:"path"`
	DeletePolicy string `yaml:"delete_policy"`
	Pagination   string `yaml:"pagination"`
	PageSize     int    `yaml:"page_size"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with idc config init --base-url <url>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("config.server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config.server.base_url must be an http(s) URL")
	}
	if c.Server.Timeout != "" {
		if _, err := time.ParseDuration(c.Server.Timeout); err != nil {
			return fmt.Errorf("config.server.timeout: %w", err)
		}
	}
	if c.Auth.Token != "" && c.Auth.ClientID != "" {
		return fmt.Errorf("config.auth: token and client_id are mutually exclusive")
	}
	if c.Auth.ClientID != "" {
		if c.Auth.ClientSecret == "" {
			return fmt.Errorf("config.auth.client_secret is required with client_id")
		}
		if c.Auth.TokenURL == "" {
			return fmt.Errorf("config.auth.token_url is required with client_id")
		}
	}
	if c.Console.PageSize < 0 {
		return fmt.Errorf("config.console.page_size must not be negative")
	}
	if c.Console.SessionIdle != "" {
		if _, err := time.ParseDuration(c.Console.SessionIdle); err != nil {
			return fmt.Errorf("config.console.session_idle: %w", err)
		}
	}
	for name, r := range c.Resources {
		if name == "" {
			return fmt.Errorf("config.resources contains empty name")
		}
		switch r.DeletePolicy {
		case "", "reload", "remove":
		default:
			return fmt.Errorf("resource %s: delete_policy must be reload or remove", name)
		}
		switch r.Pagination {
		case "", "offset", "scim":
		default:
			return fmt.Errorf("resource %s: pagination must be offset or scim", name)
		}
		if r.PageSize < 0 {
			return fmt.Errorf("resource %s: page_size must not be negative", name)
		}
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Timeout returns the HTTP timeout, zero when unset.
func (c *Config) Timeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.Timeout)
	return d
}

// SessionIdle returns the idle expiry for console sessions.
func (c *Config) SessionIdle() time.Duration {
	d, err := time.ParseDuration(c.Console.SessionIdle)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// Resource returns the overrides for name, zero when absent.
func (c *Config) Resource(name string) Resource {
	if c == nil || c.Resources == nil {
		return Resource{}
	}
	return c.Resources[name]
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "console.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(baseURL string) string {
	return fmt.Sprintf(defaultTemplate, baseURL)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config for a server.
func Default(baseURL string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(baseURL))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  base_url: %s
  origin: ""
  timeout: 30s

auth:
  token: ""

console:
  page_size: 10
  session_idle: 15m

resources:
  certificates:
    path: api/server/v1/keystores/certs
    delete_policy: reload
  userstores:
    path: api/server/v1/userstores
    delete_policy: remove
  groups:
    path: scim2/Groups
    pagination: scim
    delete_policy: reload
  approvals:
    path: api/users/v1/me/approval-tasks
  workflows:
    path: api/server/v1/workflows
    delete_policy: reload
`
