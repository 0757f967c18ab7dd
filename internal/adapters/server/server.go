// Package server mounts the session REST API and MCP tools on one listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskerco/complaintdesk/internal/adapters/server/common"
	"github.com/taskerco/complaintdesk/internal/adapters/server/httpapi"
	"github.com/taskerco/complaintdesk/internal/adapters/server/mcpapi"
	"github.com/taskerco/complaintdesk/internal/app"
)

const (
	defaultBindAddress     = "127.0.0.1:5437"
	defaultAPIEndpoint     = "/api/v1"
	defaultMCPEndpoint     = "/mcp"
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Config holds the serve-mode listener and endpoint settings.
type Config struct {
	HTTPBind      string
	APIEndpoint   string
	MCPEndpoint   string
	ServerName    string
	ServerVersion string
}

// Dependencies are the collaborators the transports need.
type Dependencies struct {
	Session common.SessionService
	// Ready reports whether the complaint API is reachable; nil means always ready.
	Ready func() bool
	// Logger receives one event per request; nil disables request logging.
	Logger app.Logger
}

// NewHandler builds the root router and returns the normalized config it used.
func NewHandler(cfg Config, deps Dependencies) (http.Handler, Config, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, Config{}, err
	}
	if deps.Session == nil {
		return nil, Config{}, errors.New("session dependency is required")
	}

	tools, err := mcpapi.NewHandler(mcpapi.Config{
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		EndpointPath:  cfg.MCPEndpoint,
	}, deps.Session)
	if err != nil {
		return nil, Config{}, fmt.Errorf("configure mcp handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	if deps.Logger != nil {
		r.Use(requestLogger(deps.Logger))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, probeBody{Status: "ok"})
	})
	r.Get("/readyz", readiness(deps))
	r.Handle(cfg.MCPEndpoint, tools)
	r.Mount(cfg.APIEndpoint, httpapi.NewHandler(deps.Session))
	return r, cfg, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	handler, cfg, err := NewHandler(cfg, deps)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	ln, err := net.Listen("tcp", cfg.HTTPBind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPBind, err)
	}
	if deps.Logger != nil {
		deps.Logger.Info("session server listening", "addr", ln.Addr().String())
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve after shutdown: %w", err)
	}
	return nil
}

func normalizeConfig(cfg Config) (Config, error) {
	cfg.HTTPBind = strings.TrimSpace(cfg.HTTPBind)
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = defaultBindAddress
	}
	cfg.APIEndpoint = normalizeEndpoint(cfg.APIEndpoint, defaultAPIEndpoint)
	cfg.MCPEndpoint = normalizeEndpoint(cfg.MCPEndpoint, defaultMCPEndpoint)
	if cfg.APIEndpoint == cfg.MCPEndpoint {
		return Config{}, errors.New("api and mcp endpoints must differ")
	}
	cfg.ServerName = firstNonBlank(cfg.ServerName, "complaintdesk")
	cfg.ServerVersion = firstNonBlank(cfg.ServerVersion, "dev")
	return cfg, nil
}

// normalizeEndpoint returns path as "/a/b", or fallback when path is blank or root.
func normalizeEndpoint(path, fallback string) string {
	path = "/" + strings.Trim(strings.TrimSpace(path), "/")
	if path == "/" {
		return fallback
	}
	return path
}

func firstNonBlank(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

type probeBody struct {
	Status  string `json:"status"`
	Pending *int   `json:"pending,omitempty"`
}

// readiness reports 503 while the complaint API is unreachable. The queue
// depth is included so operators can see what is waiting to sync.
func readiness(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := probeBody{Status: "ok"}
		if queue, err := deps.Session.PendingChanges(r.Context()); err == nil {
			pending := len(queue.Changes)
			body.Pending = &pending
		}
		if deps.Ready != nil && !deps.Ready() {
			body.Status = "offline"
			writeProbe(w, http.StatusServiceUnavailable, body)
			return
		}
		writeProbe(w, http.StatusOK, body)
	}
}

func writeProbe(w http.ResponseWriter, status int, body probeBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger emits one debug event per request with status and latency.
func requestLogger(logger app.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
