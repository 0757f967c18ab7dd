// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/taskerco/complaintdesk/internal/adapters/server/common"
	"github.com/taskerco/complaintdesk/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the editing session as tools.
func NewHandler(cfg Config, session common.SessionService) (*Handler, error) {
	if session == nil {
		return nil, fmt.Errorf("session service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerSessionTools(mcpSrv, session)
	registerQueueTools(mcpSrv, session)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "complaintdesk"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerSessionTools registers the editing tools.
func registerSessionTools(srv *mcpserver.MCPServer, session common.SessionService) {
	srv.AddTool(
		mcp.NewTool(
			"complaintdesk.session_status",
			mcp.WithDescription("Return the complaint being edited, field errors, history flags, and the sync status line."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(session.SessionStatus(ctx))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"complaintdesk.set_field",
			mcp.WithDescription("Set one complaint field from its text form. Each change is undoable."),
			mcp.WithString("field", mcp.Required(), mcp.Description("Field name"), mcp.Enum(domain.EditableFields()...)),
			mcp.WithString("value", mcp.Description("New value; empty clears optional fields")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			field, err := req.RequireString("field")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return jsonResult(session.SetField(ctx, common.SetFieldRequest{
				Field: field,
				Value: req.GetString("value", ""),
			}))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"complaintdesk.undo",
			mcp.WithDescription("Revert the most recent field change."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(session.Undo(ctx))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"complaintdesk.redo",
			mcp.WithDescription("Reapply the most recently undone change."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(session.Redo(ctx))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"complaintdesk.save",
			mcp.WithDescription("Save the complaint. While offline the change is queued for sync instead."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(session.Save(ctx))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"complaintdesk.toggle_autosave",
			mcp.WithDescription("Enable or disable periodic auto-save."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(session.ToggleAutoSave(ctx))
		},
	)
}

// registerQueueTools registers the offline queue tools.
func registerQueueTools(srv *mcpserver.MCPServer, session common.SessionService) {
	srv.AddTool(
		mcp.NewTool(
			"complaintdesk.pending_changes",
			mcp.WithDescription("List saves waiting for connectivity, oldest first."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(session.PendingChanges(ctx))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"complaintdesk.replay_queue",
			mcp.WithDescription("Replay queued saves now. Failed entries stay queued."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(session.ReplayQueue(ctx))
		},
	)
}

// jsonResult encodes one service result, mapping errors into tool errors.
func jsonResult[T any](payload T, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return toolResultFromError(err), nil
	}
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return result, nil
}

// toolResultFromError maps adapter errors into MCP tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	var validation *common.ValidationFailure
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.As(err, &validation):
		parts := make([]string, 0, len(validation.Fields))
		for _, field := range validation.Fields.Fields() {
			parts = append(parts, field+": "+validation.Fields[field])
		}
		return mcp.NewToolResultError("validation_failed: " + validation.Message + "; " + strings.Join(parts, "; "))
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNothingToApply):
		return mcp.NewToolResultError("nothing_to_apply: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("save_in_flight: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		return mcp.NewToolResultError("unauthorized: " + err.Error())
	case errors.Is(err, common.ErrUpstreamUnavailable):
		return mcp.NewToolResultError("upstream_unavailable: " + err.Error())
	case errors.Is(err, common.ErrSessionUnavailable):
		return mcp.NewToolResultError("service_unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
