// Package app assembles the console from a workspace: config, event
// store, IAM client and feature registry.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/config"
	"github.com/wso2/identity-apps-sub079/internal/db"
	"github.com/wso2/identity-apps-sub079/internal/events"
	"github.com/wso2/identity-apps-sub079/internal/features"
	"github.com/wso2/identity-apps-sub079/internal/migrate"
	"github.com/wso2/identity-apps-sub079/internal/remote"
	"github.com/wso2/identity-apps-sub079/internal/repo"
)

// Overrides take precedence over console.yml, typically from flags or
// IDC_* environment variables.
type Overrides struct {
	BaseURL string
	Token   string
}

// Console is an opened workspace.
type Console struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Client    *remote.Client
	Registry  *features.Registry
	Logger    *log.Logger
}

// Open loads the workspace config, migrates the event store and builds the
// feature registry. A missing console.yml is an error unless BaseURL is
// overridden.
func Open(ctx context.Context, workspace string, o Overrides, logger *log.Logger) (*Console, error) {
	if logger == nil {
		logger = log.Default()
	}
	cfg, err := ResolveConfig(workspace, o)
	if err != nil {
		return nil, err
	}
	conn, err := OpenStore(workspace)
	if err != nil {
		return nil, err
	}
	client := remote.New(ctx, remote.Options{
		BaseURL:     cfg.Server.BaseURL,
		Origin:      cfg.Server.Origin,
		BearerToken: cfg.Auth.Token,
		OAuth: remote.OAuth{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
		},
		Timeout: cfg.Timeout(),
		Logger:  logger,
	})
	reg, err := features.New(features.Options{Client: client, Config: cfg, Logger: logger})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Console{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Events:    events.Writer{DB: conn},
		Client:    client,
		Registry:  reg,
		Logger:    logger,
	}, nil
}

// ResolveConfig reads console.yml and applies o. Without a config file the
// defaults for o.BaseURL are used.
func ResolveConfig(workspace string, o Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(o.BaseURL)
	if cfg == nil {
		if baseURL == "" {
			return config.Load(workspace)
		}
		cfg = config.Default(baseURL)
	}
	if baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}
	if token := strings.TrimSpace(o.Token); token != "" {
		cfg.Auth.Token = token
		cfg.Auth.ClientID = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", config.Path(workspace), err)
	}
	return cfg, nil
}

// OpenStore opens and migrates the workspace event store.
func OpenStore(workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Sink logs alerts and persists them under actor.
func (c *Console) Sink(actor string) alert.Sink {
	return alert.Multi{
		alert.LogSink{Logger: c.Logger},
		events.Sink{Writer: c.Events, ActorID: actor, Logger: c.Logger},
	}
}

func (c *Console) Close() error {
	return c.DB.Close()
}
