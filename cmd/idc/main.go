package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wso2/identity-apps-sub079/internal/alert"
	"github.com/wso2/identity-apps-sub079/internal/app"
	"github.com/wso2/identity-apps-sub079/internal/config"
	"github.com/wso2/identity-apps-sub079/internal/db"
	"github.com/wso2/identity-apps-sub079/internal/domain"
	"github.com/wso2/identity-apps-sub079/internal/events"
	"github.com/wso2/identity-apps-sub079/internal/features"
	"github.com/wso2/identity-apps-sub079/internal/filter"
	"github.com/wso2/identity-apps-sub079/internal/listctl"
	"github.com/wso2/identity-apps-sub079/internal/migrate"
	"github.com/wso2/identity-apps-sub079/internal/remote"
	"github.com/wso2/identity-apps-sub079/internal/repo"
	"github.com/wso2/identity-apps-sub079/internal/server"
	"github.com/wso2/identity-apps-sub079/internal/session"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

var rootCmd = &cobra.Command{
	Use:   "idc",
	Short: "Identity console CLI",
	Long: `idc manages an identity server's certificates, user stores, groups,
approvals and workflows from the terminal, or serves the same list views and
create wizards over HTTP.
- Workspace: holds console.yml and the .idc event store (alerts, deletes, creates).
- Features: one per resource; list, filter, sort and page them with 'idc list'.
- Wizards: multi-step create flows whose later steps depend on earlier answers ('idc create').
- Alerts: every failure is reported once and kept; view them with 'idc alerts tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureDir(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("IDC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor recorded with alerts and events")
	rootCmd.PersistentFlags().String("base-url", "", "identity server URL (overrides console.yml)")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the identity server (overrides console.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(featuresCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(actCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(tokenCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage console.yml",
		Long:  "console.yml names the identity server, how to authenticate against it, page sizes, per-resource endpoint overrides and webhooks.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default console.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := strings.TrimSpace(viper.GetString("base-url"))
			if baseURL == "" {
				return errors.New("--base-url is required")
			}
			if _, err := config.FromYAML([]byte(config.GenerateDefault(baseURL))); err != nil {
				return err
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(baseURL)), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), overrides())
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.Auth.Token != "" {
				redacted.Auth.Token = "********"
			}
			if redacted.Auth.ClientSecret != "" {
				redacted.Auth.ClientSecret = "********"
			}
			if viper.GetBool("json") {
				return printJSON(redacted)
			}
			out, err := yaml.Marshal(redacted)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate console.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.ResolveConfig(viper.GetString("workspace"), overrides())
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func featuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List console features",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd.Context(), func(ctx context.Context, c *app.Console) error {
				var all []any
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Title", "Key", "Search", "Attributes", "Create"})
				for _, name := range c.Registry.Names() {
					f, err := c.Registry.Feature(name)
					if err != nil {
						return err
					}
					all = append(all, f)
					tw.AppendRow(table.Row{f.Name, f.Title, f.Key, f.Search, strings.Join(f.Attributes, ","), f.Creatable})
				}
				if viper.GetBool("json") {
					return printJSON(all)
				}
				tw.Render()
				return nil
			})
		},
	}
}

type listFlags struct {
	search     string
	filter     string
	serverSide string
	domain     string
	sort       string
	desc       bool
	page       int
	pageSize   int
	status     []string
}

func listCmd() *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list <feature>",
		Short: "List a feature's items",
		Example: `  idc list groups --search admin
  idc list certificates --filter 'issuer co "Example CA"' --sort validTill --desc
  idc list groups --domain PRIMARY --page 2 --page-size 20
  idc list approvals --status READY --status RESERVED`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd.Context(), func(ctx context.Context, c *app.Console) error {
				tbl, err := openTable(ctx, c, args[0], f)
				if err != nil {
					return err
				}
				defer tbl.Close()
				rows := tbl.Rows()
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				printRows(rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.search, "search", "", "search by the feature's default attribute")
	cmd.Flags().StringVar(&f.filter, "filter", "", "advanced filter: '<attribute> <co|sw|ew|eq|ne> <value>'")
	cmd.Flags().StringVar(&f.serverSide, "server-filter", "", "filter sent to the identity server")
	cmd.Flags().StringVar(&f.domain, "domain", "", "user store domain")
	cmd.Flags().StringVar(&f.sort, "sort", "", "attribute to sort by")
	cmd.Flags().BoolVar(&f.desc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&f.page, "page", 1, "1-based page number")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "items per page (default from config)")
	cmd.Flags().StringSliceVar(&f.status, "status", nil, "statuses to list for features that have them (ALL for every status)")
	return cmd
}

func openTable(ctx context.Context, c *app.Console, name string, f listFlags) (listctl.Table, error) {
	feature, err := c.Registry.Feature(name)
	if err != nil {
		return nil, err
	}
	statuses, err := feature.StatusQuery(f.status)
	if err != nil {
		return nil, err
	}
	tbl, err := c.Registry.OpenTable(name, c.Sink(viper.GetString("actor-id")), remote.ListParams{
		Domain: f.domain,
		Filter: f.serverSide,
		Extra:  statuses,
	})
	if err != nil {
		return nil, err
	}
	if err := configureTable(ctx, tbl, f); err != nil {
		tbl.Close()
		return nil, err
	}
	return tbl, nil
}

func configureTable(ctx context.Context, tbl listctl.Table, f listFlags) error {
	if err := tbl.Load(ctx); err != nil {
		return err
	}
	if f.filter != "" {
		p, err := filter.Parse(f.filter)
		if err != nil {
			return err
		}
		if err := tbl.ApplyFilter(p); err != nil {
			return err
		}
	} else if f.search != "" {
		tbl.Search(f.search)
	}
	if f.sort != "" {
		if err := tbl.ChangeSort(f.sort, !f.desc); err != nil {
			return err
		}
	}
	if f.pageSize > 0 {
		if err := tbl.ChangePageSize(f.pageSize); err != nil {
			return err
		}
	}
	if f.page != 1 {
		return tbl.ChangePage(f.page)
	}
	return nil
}

func printRows(rows listctl.Rows) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	header := table.Row{}
	for _, col := range rows.Columns {
		header = append(header, col)
	}
	tw.AppendHeader(header)
	for _, r := range rows.Rows {
		row := table.Row{}
		for _, cell := range r {
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	caption := fmt.Sprintf("page %d/%d, %d of %d fetched", rows.Number, max(rows.Pages, 1), rows.Total, rows.Fetched)
	if rows.Filter != nil {
		caption += ", filter: " + rows.Filter.String()
	}
	tw.SetCaption(caption)
	tw.Render()
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <feature> <key>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd.Context(), func(ctx context.Context, c *app.Console) error {
				item, err := c.Registry.Fetch(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(item)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "delete <feature> <key>",
		Short: "Delete one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, key := args[0], args[1]
			return withConsole(cmd.Context(), func(ctx context.Context, c *app.Console) error {
				f, err := c.Registry.Feature(name)
				if err != nil {
					return err
				}
				if !f.Deletable {
					return fmt.Errorf("%s: %w; see 'idc act'", name, features.ErrNotDeletable)
				}
				if f.ConfirmDelete && confirm != key {
					return fmt.Errorf("deleting a %s requires --confirm %s", name, key)
				}
				actor := viper.GetString("actor-id")
				tbl, err := c.Registry.OpenTable(name, c.Sink(actor), remote.ListParams{})
				if err != nil {
					return err
				}
				defer tbl.Close()
				if err := tbl.Load(ctx); err != nil {
					return err
				}
				if err := tbl.DeleteKey(ctx, key); err != nil {
					return err
				}
				if err := c.Events.Append(ctx, nil, events.Record{Type: events.TypeDeleted, Resource: name, EntityID: key, ActorID: actor}); err != nil {
					return err
				}
				fmt.Printf("deleted %s %s\n", name, key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "repeat the key to confirm")
	return cmd
}

func actCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "act <feature> <key> <action>",
		Short: "Change an item's state, e.g. claim or approve an approval task",
		Example: `  idc act approvals 7f3c claim
  idc act approvals 7f3c approve`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, key := args[0], args[1]
			action := strings.ToUpper(args[2])
			return withConsole(cmd.Context(), func(ctx context.Context, c *app.Console) error {
				actor := viper.GetString("actor-id")
				if err := c.Registry.Act(ctx, name, c.Sink(actor), key, action); err != nil {
					return err
				}
				if err := c.Events.Append(ctx, nil, events.Record{Type: events.TypeUpdated, Resource: name, EntityID: key, ActorID: actor, Payload: events.EventPayload{"action": action}}); err != nil {
					return err
				}
				fmt.Printf("%s %s: %s\n", name, key, strings.ToLower(action))
				return nil
			})
		},
	}
}

func createCmd() *cobra.Command {
	var valuesPath string
	cmd := &cobra.Command{
		Use:   "create <feature>",
		Short: "Run a feature's create wizard",
		Long: `Without --values each step is prompted for interactively. A values file maps
step names to field values:

  general:
    name: corp
    type: ldap
  connection:
    ConnectionURL: ldap://corp:389`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var answers map[string]wizard.Values
			if valuesPath != "" {
				data, err := os.ReadFile(valuesPath)
				if err != nil {
					return err
				}
				if err := yaml.Unmarshal(data, &answers); err != nil {
					return fmt.Errorf("invalid values yaml: %w", err)
				}
			}
			return withConsole(cmd.Context(), func(ctx context.Context, c *app.Console) error {
				actor := viper.GetString("actor-id")
				flow, err := c.Registry.OpenWizard(ctx, args[0], c.Sink(actor), nil)
				if err != nil {
					return err
				}
				defer func() {
					if flow.State() == wizard.StateOpen {
						flow.Cancel()
					}
				}()
				var prompt *prompter
				if answers == nil {
					prompt = &prompter{in: bufio.NewReader(os.Stdin), out: os.Stdout}
				}
				if err := runWizard(ctx, flow, answers, prompt); err != nil {
					return err
				}
				merged := wizard.Merge(flow.Collected())
				name := merged["name"]
				if name == "" {
					name = merged["groupName"]
				}
				if err := c.Events.Append(ctx, nil, events.Record{
					Type:     events.TypeCreated,
					Resource: args[0],
					EntityID: name,
					ActorID:  actor,
					Payload:  events.EventPayload{"steps": flow.Collected().Steps()},
				}); err != nil {
					return err
				}
				fmt.Printf("created %s %s\n", args[0], name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&valuesPath, "values", "", "YAML file with answers per step")
	return cmd
}

// runWizard walks flow to submission. Answers come from answers when set,
// otherwise from prompt; prompted steps are asked again on validation
// errors.
func runWizard(ctx context.Context, flow wizard.Flow, answers map[string]wizard.Values, prompt *prompter) error {
	for {
		cur := flow.Current()
		var v wizard.Values
		if prompt != nil {
			v = prompt.ask(cur)
		} else {
			v = answers[cur.Name]
		}
		err := advance(ctx, flow, cur, v)
		if err == nil {
			if flow.State() == wizard.StateSubmitted {
				return nil
			}
			continue
		}
		var ve *wizard.ValidationError
		if prompt != nil && errors.As(err, &ve) {
			fmt.Fprintln(prompt.out, ve.Error())
			continue
		}
		return err
	}
}

// advance moves past cur. The set of steps may change with the answer, so
// a Next at the new last step becomes a Finish and vice versa.
func advance(ctx context.Context, flow wizard.Flow, cur wizard.StepView, v wizard.Values) error {
	if cur.Last {
		err := flow.Finish(ctx, v)
		if errors.Is(err, wizard.ErrNotLastStep) {
			return flow.Next(ctx, v)
		}
		return err
	}
	err := flow.Next(ctx, v)
	if errors.Is(err, wizard.ErrLastStep) {
		return flow.Finish(ctx, v)
	}
	return err
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *prompter) ask(step wizard.StepView) wizard.Values {
	fmt.Fprintf(p.out, "\n[%d/%d] %s\n", step.Index+1, step.Count, step.Title)
	v := wizard.Values{}
	for _, f := range step.Fields {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		hint := f.Default
		if prev, ok := step.Values[f.Name]; ok && !f.Secret {
			hint = prev
		}
		if len(f.Options) > 0 {
			label += " (" + strings.Join(f.Options, "|") + ")"
		}
		if hint != "" {
			label += " [" + hint + "]"
		}
		if f.Required {
			label += " *"
		}
		fmt.Fprintf(p.out, "%s: ", label)
		line, _ := p.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			line = hint
		}
		if line != "" {
			v[f.Name] = line
		}
	}
	return v
}

func alertsCmd() *cobra.Command {
	alerts := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect alerts",
	}
	var n int
	var level string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, n, 0, repo.EventFilter{Type: events.TypeAlert, Level: level})
				if err != nil {
					return err
				}
				return printEvents(items)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of alerts")
	tail.Flags().StringVar(&level, "level", "", "level filter (info, success, warning, error)")
	alerts.AddCommand(tail)
	return alerts
}

func eventsCmd() *cobra.Command {
	evts := &cobra.Command{
		Use:   "events",
		Short: "Inspect the event log",
	}
	var n int
	var f repo.EventFilter
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				return printEvents(items)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.Resource, "resource", "", "feature filter")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity filter")
	tail.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	evts.AddCommand(tail)
	return evts
}

func printEvents(items []domain.Event) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Time", "Type", "Level", "Resource", "Entity", "Actor", "Message"})
	for _, e := range items {
		msg := e.Message
		if e.Description != "" {
			msg += " - " + e.Description
		}
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.Level, e.Resource, e.EntityID, e.ActorID, msg})
	}
	tw.Render()
	return nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsole(cmd.Context(), func(ctx context.Context, c *app.Console) error {
				authCfg := server.AuthConfig{
					JWTSecret:              viper.GetString("jwt-secret"),
					AllowLegacyActorHeader: legacyActor,
					Logger:                 c.Logger,
				}
				if authCfg.JWTSecret == "" && !legacyActor {
					return fmt.Errorf("IDC_JWT_SECRET is required for bearer auth")
				}
				sessions := session.NewManager(c.Config.SessionIdle())
				sessions.Logger = c.Logger
				sessions.OnClose = func(s session.Session, reason string) {
					if err := c.Events.Append(context.Background(), nil, events.Record{
						Type:     events.TypeSession,
						Resource: s.Feature,
						EntityID: s.ID,
						ActorID:  s.Owner,
						Payload:  events.EventPayload{"kind": string(s.Kind), "reason": reason},
					}); err != nil {
						c.Logger.Printf("events: record session close: %v", err)
					}
				}
				handler, err := server.New(server.Config{
					Registry: c.Registry,
					Sessions: sessions,
					Repo:     c.Repo,
					Events:   c.Events,
					Alerts:   alert.LogSink{Logger: c.Logger},
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   c.Logger,
				})
				if err != nil {
					return err
				}
				go sessions.Run(ctx, time.Minute)
				go server.NewWebhookDispatcher(c.Repo, c.Config.Webhooks, c.Logger).Run(ctx)

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving identity console API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&legacyActor, "allow-actor-header", false, "accept an unauthenticated X-Actor-Id header (local use only)")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
	}
	var name string
	var perms []string
	var ttl time.Duration
	create := &cobra.Command{
		Use:   "create <actor>",
		Short: "Create an API key; the key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw, hash, err := repo.NewAPIKeySecret()
				if err != nil {
					return err
				}
				key := domain.APIKey{ID: uuid.NewString(), ActorID: args[0], Name: name, KeyHash: hash, Permissions: perms}
				if ttl > 0 {
					key.ExpiresAt = time.Now().UTC().Add(ttl).Format(time.RFC3339)
				}
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.CreateAPIKey(ctx, tx, key); err != nil {
					return err
				}
				w := events.Writer{DB: r.DB}
				payload := events.EventPayload{"owner": args[0], "name": name, "permissions": strings.Join(perms, ",")}
				if err := w.Append(ctx, tx, events.Record{Type: events.TypeAPIKey, EntityID: key.ID, ActorID: viper.GetString("actor-id"), Payload: payload}); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": raw, "expires_at": key.ExpiresAt})
				}
				fmt.Printf("id: %s\nkey: %s\n", key.ID, raw)
				if key.ExpiresAt != "" {
					fmt.Printf("expires: %s\n", key.ExpiresAt)
				}
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().StringSliceVar(&perms, "permission", nil, "permission granted to the key (repeatable); none means unrestricted")
	create.Flags().DurationVar(&ttl, "ttl", 0, "key lifetime; 0 never expires")
	var actor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Permissions", "Created", "Expires", "Last used"})
				for _, k := range items {
					perms := strings.Join(k.Permissions, ",")
					if perms == "" {
						perms = "*"
					}
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, perms, k.CreatedAt, k.ExpiresAt, k.LastUsedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&actor, "actor", "", "only keys of this actor")
	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.RevokeAPIKey(ctx, tx, args[0]); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("api key %s not found", args[0])
					}
					return err
				}
				w := events.Writer{DB: r.DB}
				if err := w.Append(ctx, tx, events.Record{Type: events.TypeAPIKeyRm, EntityID: args[0], ActorID: viper.GetString("actor-id")}); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
	keys.AddCommand(create, list, remove)
	return keys
}

func dbCmd() *cobra.Command {
	store := &cobra.Command{
		Use:   "db",
		Short: "Inspect the workspace event store",
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			statuses, err := migrate.StatusContext(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(statuses)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetCaption("store: %s", db.Path(workspace))
			tw.AppendHeader(table.Row{"Version", "Name", "Applied"})
			for _, s := range statuses {
				applied := s.AppliedAt
				if !s.Applied() {
					applied = "pending"
				}
				tw.AppendRow(table.Row{s.Version, s.Name, applied})
			}
			tw.Render()
			return nil
		},
	}
	store.AddCommand(status)
	return store
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{
		Use:   "token",
		Short: "Bearer tokens for the HTTP server",
	}
	var roles, perms []string
	var ttl time.Duration
	mint := &cobra.Command{
		Use:   "mint <subject>",
		Short: "Sign a token with IDC_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.SignToken(viper.GetString("jwt-secret"), args[0], roles, perms, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	mint.Flags().StringSliceVar(&roles, "role", nil, "role claim (repeatable)")
	mint.Flags().StringSliceVar(&perms, "permission", nil, "permission claim, e.g. "+server.PermWrite+" (repeatable)")
	mint.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime, 0 for no expiry")
	tok.AddCommand(mint)
	return tok
}

// --- helpers ---

func overrides() app.Overrides {
	return app.Overrides{
		BaseURL: viper.GetString("base-url"),
		Token:   viper.GetString("token"),
	}
}

func withConsole(ctx context.Context, fn func(context.Context, *app.Console) error) error {
	c, err := app.Open(ctx, viper.GetString("workspace"), overrides(), log.New(os.Stderr, "idc: ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := app.OpenStore(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
