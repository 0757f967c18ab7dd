package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskerco/complaintdesk/internal/adapters/authsession"
	"github.com/taskerco/complaintdesk/internal/adapters/connectivity"
	"github.com/taskerco/complaintdesk/internal/adapters/server"
	"github.com/taskerco/complaintdesk/internal/adapters/server/common"
	"github.com/taskerco/complaintdesk/internal/adapters/storage/sqlite"
	"github.com/taskerco/complaintdesk/internal/adapters/taskerapi"
	"github.com/taskerco/complaintdesk/internal/app"
	"github.com/taskerco/complaintdesk/internal/config"
	"github.com/taskerco/complaintdesk/internal/domain"
	"github.com/taskerco/complaintdesk/internal/formdef"
	"github.com/taskerco/complaintdesk/internal/platform"
	"github.com/taskerco/complaintdesk/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveFunc runs the HTTP and MCP surfaces; tests replace it.
var serveFunc = server.Run

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions holds persistent flag values shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	offline    bool
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{appName: platform.DefaultAppName}
	if envApp := strings.TrimSpace(os.Getenv("COMPLAINTDESK_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("COMPLAINTDESK_DEV_MODE"); ok {
		defaultDevMode = envDev
	}

	root := &cobra.Command{
		Use:   "complaintdesk",
		Short: "Edit Tasker CRM complaints with undo, auto-save, and an offline queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdit(cmd.Context(), opts, "", cmd.ErrOrStderr())
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.BoolVar(&opts.offline, "offline", false, "start offline and queue every save")

	root.AddCommand(
		newEditCommand(opts),
		newServeCommand(opts),
		newQueueCommand(opts),
		newPathsCommand(opts),
	)
	return root
}

func newEditCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [complaint-id]",
		Short: "Open the complaint editor; without an id a new complaint is started",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd.Context(), opts, firstArg(args), cmd.ErrOrStderr())
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var bind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve [complaint-id]",
		Short: "Expose one editing session over HTTP and MCP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, firstArg(args), serveOverrides{
				bind:        bind,
				apiEndpoint: apiEndpoint,
				mcpEndpoint: mcpEndpoint,
			}, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&bind, "http", "", "listen address (overrides serve.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST base path (overrides serve.api_endpoint)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP path (overrides serve.mcp_endpoint)")
	return cmd
}

func newQueueCommand(opts *rootOptions) *cobra.Command {
	var all, asJSON bool
	queue := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay saves queued while offline",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List queued changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQueueList(cmd.Context(), opts, all, asJSON, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	list.Flags().BoolVar(&all, "all", false, "list every queue key, not only the current user's")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	var syncAll bool
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes against the API in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQueueSync(cmd.Context(), opts, syncAll, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	sync.Flags().BoolVar(&syncAll, "all", false, "replay every queue key, not only the current user's")

	queue.AddCommand(list, sync)
	return queue
}

func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and log paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "form: %s\n", paths.FormPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func (o *rootOptions) paths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// runtimeEnv holds the resources every data command opens.
type runtimeEnv struct {
	opts       *rootOptions
	paths      platform.Paths
	configPath string
	cfg        config.Config
	logger     *runtimeLogger
	repo       *sqlite.Repository
}

// openRuntime resolves paths and config, then opens the logger and the queue database.
func openRuntime(opts *rootOptions, stderr io.Writer, command string) (*runtimeEnv, error) {
	paths, err := opts.paths()
	if err != nil {
		return nil, err
	}
	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("COMPLAINTDESK_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("COMPLAINTDESK_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path)
	return &runtimeEnv{
		opts:       opts,
		paths:      paths,
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		repo:       repo,
	}, nil
}

// Close releases the database and log file.
func (rt *runtimeEnv) Close() {
	if err := rt.repo.Close(); err != nil {
		rt.logger.Warn("sqlite close failed", "db_path", rt.cfg.Database.Path, "err", err)
	}
	_ = rt.logger.Close()
}

// authenticate loads the bearer token from the configured file or environment variable.
func (rt *runtimeEnv) authenticate() (*authsession.Provider, error) {
	provider, err := authsession.Load(authsession.LoadOptions{
		TokenFile: rt.cfg.Auth.TokenFile,
		TokenEnv:  rt.cfg.Auth.TokenEnv,
		UserID:    rt.cfg.Auth.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("load auth session: %w", err)
	}
	rt.logger.Debug("auth session loaded", "user_id", provider.UserID(), "role", provider.Role())
	return provider, nil
}

func (rt *runtimeEnv) apiClient(tokens taskerapi.TokenSource) (*taskerapi.Client, error) {
	client, err := taskerapi.NewClient(taskerapi.Options{
		BaseURL:   rt.cfg.API.BaseURL,
		Timeout:   rt.cfg.APITimeout(),
		Version:   version,
		Tokens:    tokens,
		RateLimit: rt.cfg.API.RateLimit,
		RateBurst: rt.cfg.API.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}
	return client, nil
}

// editor is one live editing session and everything it owns.
type editor struct {
	session *app.Session
	queue   *app.OfflineQueue
	conn    app.Connectivity
	stop    context.CancelFunc
}

// Close stops the session, the queue, and the connectivity prober.
func (e *editor) Close() {
	e.session.Close()
	e.queue.Close()
	e.stop()
}

// openEditor wires auth, the API client, connectivity, the offline queue, and the session.
func (rt *runtimeEnv) openEditor(ctx context.Context, complaintID string) (*editor, error) {
	provider, err := rt.authenticate()
	if err != nil {
		return nil, err
	}
	client, err := rt.apiClient(provider)
	if err != nil {
		return nil, err
	}

	probeCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	var conn app.Connectivity
	if rt.opts.offline {
		conn = connectivity.NewManual(false)
		rt.logger.Info("starting offline; saves will be queued")
	} else {
		prober := connectivity.NewProber(client, connectivity.ProberConfig{
			Interval:         rt.cfg.ProbeInterval(),
			FailureThreshold: rt.cfg.Offline.FailureThreshold,
			Logger:           rt.logger,
		})
		prober.Start(probeCtx)
		conn = prober
	}

	draftID := uuid.NewString()
	queueKey, err := queueKeyFor(rt.cfg.Offline.QueueScope, provider.UserID(), complaintID, draftID)
	if err != nil {
		stop()
		return nil, err
	}
	queue, err := app.NewOfflineQueue(ctx, rt.repo, client, conn, app.OfflineQueueConfig{
		QueueKey: queueKey,
		Logger:   rt.logger,
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("open offline queue: %w", err)
	}
	session, err := app.OpenSession(ctx, client, queue, complaintID, app.SessionConfig{
		DraftID:          draftID,
		AutoSaveInterval: rt.cfg.AutoSaveInterval(),
		AutoSaveEnabled:  rt.cfg.AutoSave.Enabled,
		HistoryDepth:     rt.cfg.History.MaxDepth,
		IDGen:            uuid.NewString,
		Logger:           rt.logger,
	})
	if err != nil {
		queue.Close()
		stop()
		return nil, err
	}
	rt.logger.Info("editing session opened", "complaint_id", complaintID, "draft_id", draftID, "queue_key", queueKey, "pending", queue.PendingCount())
	return &editor{session: session, queue: queue, conn: conn, stop: stop}, nil
}

// queueKeyFor derives the pending-change scope for one session.
func queueKeyFor(scope config.QueueScope, userID, complaintID, draftID string) (string, error) {
	switch scope {
	case config.QueueScopeComplaint:
		if strings.TrimSpace(complaintID) != "" {
			return domain.ComplaintQueueKey(complaintID), nil
		}
		return domain.DraftQueueKey(draftID), nil
	default:
		if strings.TrimSpace(userID) == "" {
			return "", errors.New("user-scoped queue needs a user id: use a token with a subject or set auth.user_id")
		}
		return domain.UserQueueKey(userID), nil
	}
}

// loadDefinition reads the form definition override, falling back to the embedded one.
func (rt *runtimeEnv) loadDefinition() (formdef.Definition, error) {
	path := strings.TrimSpace(rt.cfg.Form.DefinitionPath)
	if path == "" {
		path = rt.paths.FormOverride()
	}
	def, err := formdef.Load(path)
	if err != nil {
		return formdef.Definition{}, fmt.Errorf("load form definition %q: %w", path, err)
	}
	return def, nil
}

func toTUIKeyConfig(keys config.KeyConfig) tui.KeyConfig {
	return tui.KeyConfig{
		Undo:           keys.Undo,
		Redo:           keys.Redo,
		Save:           keys.Save,
		ToggleAutoSave: keys.ToggleAutoSave,
		Replay:         keys.Replay,
		Copy:           keys.Copy,
	}
}

// runEdit opens the terminal editor.
func runEdit(ctx context.Context, opts *rootOptions, complaintID string, stderr io.Writer) error {
	rt, err := openRuntime(opts, stderr, "edit")
	if err != nil {
		return err
	}
	defer rt.Close()
	// Keep the editor screen clean: runtime logs stay in the dev-file sink while it is active.
	rt.logger.SetConsoleEnabled(false)

	def, err := rt.loadDefinition()
	if err != nil {
		return err
	}
	ed, err := rt.openEditor(ctx, complaintID)
	if err != nil {
		rt.logger.Error("open editor failed", "complaint_id", complaintID, "err", err)
		return err
	}
	defer ed.Close()
	ed.session.Start()

	m := tui.NewModel(
		ed.session,
		tui.WithDefinition(def),
		tui.WithKeyConfig(toTUIKeyConfig(rt.cfg.Keys)),
		tui.WithPreviewStyle(rt.cfg.Form.PreviewStyle),
	)
	rt.logger.Info("starting tui program loop")
	if _, err := programFactory(m).Run(); err != nil {
		rt.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	if status := ed.session.Status(); status.HasUnsavedChanges {
		rt.logger.Warn("editor closed with unsaved changes", "complaint_id", status.Record.ID, "draft_id", status.DraftID)
	}
	rt.logger.Info("command flow complete", "command", "edit")
	return nil
}

// serveOverrides carries serve flag values that win over config.
type serveOverrides struct {
	bind        string
	apiEndpoint string
	mcpEndpoint string
}

// runServe exposes one editing session over the REST and MCP surfaces.
func runServe(ctx context.Context, opts *rootOptions, complaintID string, overrides serveOverrides, stderr io.Writer) error {
	rt, err := openRuntime(opts, stderr, "serve")
	if err != nil {
		return err
	}
	defer rt.Close()

	ed, err := rt.openEditor(ctx, complaintID)
	if err != nil {
		rt.logger.Error("open editor failed", "complaint_id", complaintID, "err", err)
		return err
	}
	defer ed.Close()
	ed.session.Start()

	cfg := server.Config{
		HTTPBind:      firstNonEmpty(overrides.bind, rt.cfg.Serve.HTTPBind),
		APIEndpoint:   firstNonEmpty(overrides.apiEndpoint, rt.cfg.Serve.APIEndpoint),
		MCPEndpoint:   firstNonEmpty(overrides.mcpEndpoint, rt.cfg.Serve.MCPEndpoint),
		ServerName:    opts.appName,
		ServerVersion: version,
	}
	rt.logger.Info("serving session", "http_bind", cfg.HTTPBind, "api_endpoint", cfg.APIEndpoint, "mcp_endpoint", cfg.MCPEndpoint)
	if err := serveFunc(ctx, cfg, server.Dependencies{
		Session: common.NewSessionAdapter(ed.session),
		Ready:   ed.conn.Online,
		Logger:  rt.logger,
	}); err != nil {
		rt.logger.Error("server stopped with error", "err", err)
		return fmt.Errorf("run server: %w", err)
	}
	rt.logger.Info("command flow complete", "command", "serve")
	return nil
}

// queueKeys selects which queue keys a queue command works on.
func (rt *runtimeEnv) queueKeys(ctx context.Context, all bool, provider *authsession.Provider) ([]string, error) {
	if all || rt.cfg.Offline.QueueScope == config.QueueScopeComplaint {
		keys, err := rt.repo.ListQueueKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("list queue keys: %w", err)
		}
		return keys, nil
	}
	if provider == nil {
		var err error
		if provider, err = rt.authenticate(); err != nil {
			return nil, err
		}
	}
	key, err := queueKeyFor(config.QueueScopeUser, provider.UserID(), "", "")
	if err != nil {
		return nil, err
	}
	return []string{key}, nil
}

// runQueueList prints queued changes as a table or JSON.
func runQueueList(ctx context.Context, opts *rootOptions, all, asJSON bool, stdout, stderr io.Writer) error {
	rt, err := openRuntime(opts, stderr, "queue list")
	if err != nil {
		return err
	}
	defer rt.Close()

	keys, err := rt.queueKeys(ctx, all, nil)
	if err != nil {
		return err
	}
	var changes []domain.PendingChange
	for _, key := range keys {
		listed, err := rt.repo.ListPendingChanges(ctx, key)
		if err != nil {
			return fmt.Errorf("list pending changes for %q: %w", key, err)
		}
		changes = append(changes, listed...)
	}

	if asJSON {
		items := make([]common.PendingChangeItem, 0, len(changes))
		for _, change := range changes {
			items = append(items, common.PendingChangeItemFrom(change))
		}
		encoded, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return fmt.Errorf("encode pending changes json: %w", err)
		}
		_, err = fmt.Fprintln(stdout, string(encoded))
		return err
	}
	if len(changes) == 0 {
		_, err = fmt.Fprintln(stdout, "no queued changes")
		return err
	}
	_, err = fmt.Fprintln(stdout, renderPendingTable(changes))
	return err
}

// renderPendingTable renders queued changes oldest first.
func renderPendingTable(changes []domain.PendingChange) string {
	rows := make([][]string, 0, len(changes))
	for _, change := range changes {
		complaint := change.Record.ComplaintNumber
		if complaint == "" {
			complaint = change.Record.ID
		}
		if complaint == "" {
			complaint = "(new)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(change.ID, 10),
			change.QueueKey,
			complaint,
			change.Record.CustomerName,
			string(change.Record.Status),
			change.QueuedAt.Local().Format(time.DateTime),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "QUEUE", "COMPLAINT", "CUSTOMER", "STATUS", "QUEUED AT").
		Rows(rows...).
		String()
}

// runQueueSync replays queued changes once and reports the outcome.
func runQueueSync(ctx context.Context, opts *rootOptions, all bool, stdout, stderr io.Writer) error {
	rt, err := openRuntime(opts, stderr, "queue sync")
	if err != nil {
		return err
	}
	defer rt.Close()

	provider, err := rt.authenticate()
	if err != nil {
		return err
	}
	client, err := rt.apiClient(provider)
	if err != nil {
		return err
	}
	if err := client.Health(ctx); err != nil {
		rt.logger.Warn("api unreachable; queue left intact", "err", err)
		return fmt.Errorf("api unreachable: %w", err)
	}
	keys, err := rt.queueKeys(ctx, all, provider)
	if err != nil {
		return err
	}

	var total app.ReplayReport
	for _, key := range keys {
		queue, err := app.NewOfflineQueue(ctx, rt.repo, client, nil, app.OfflineQueueConfig{
			QueueKey: key,
			Logger:   rt.logger,
		})
		if err != nil {
			return fmt.Errorf("open offline queue %q: %w", key, err)
		}
		report, err := queue.Replay(ctx)
		queue.Close()
		total.Attempted += report.Attempted
		total.Succeeded += report.Succeeded
		total.Failed += report.Failed
		total.Skipped += report.Skipped
		total.Results = append(total.Results, report.Results...)
		if err != nil {
			return fmt.Errorf("replay %q: %w", key, err)
		}
	}

	_, _ = fmt.Fprintf(stdout, "replayed %d queued changes: %d synced, %d failed\n", total.Attempted, total.Succeeded, total.Failed)
	if total.Skipped > 0 {
		_, _ = fmt.Fprintf(stdout, "held back %d changes behind a failed create\n", total.Skipped)
	}
	for _, result := range total.Results {
		if result.Err != nil {
			_, _ = fmt.Fprintf(stdout, "  #%d %s: %v\n", result.Change.ID, result.Change.QueueKey, result.Err)
		}
	}
	if total.Failed > 0 {
		return fmt.Errorf("%d queued changes failed to sync", total.Failed)
	}
	return nil
}

// firstArg handles first arg.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
