package telemetry

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// NewHooks builds mcp-go server hooks that log sessions, tool calls and
// request errors with logger. Tool results flagged as errors are logged at
// warn level with their "CODE: message" text.
func NewHooks(logger zerolog.Logger) *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Info().Str("session_id", session.SessionID()).Msg("session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Info().Str("session_id", session.SessionID()).Msg("session unregistered")
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		logger.Debug().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		LogToolResult(logger, req.Params.Name, res)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})

	return hooks
}

// LogToolResult records the outcome of one tool call.
func LogToolResult(logger zerolog.Logger, tool string, res *mcp.CallToolResult) {
	if res == nil {
		logger.Warn().Str("tool", tool).Msg("tool call returned no result")
		return
	}
	if res.IsError {
		evt := logger.Warn().Str("tool", tool)
		if len(res.Content) > 0 {
			if tc, ok := mcp.AsTextContent(res.Content[0]); ok {
				evt = evt.Str("error", tc.Text)
			}
		}
		evt.Msg("tool call failed")
		return
	}
	logger.Info().Str("tool", tool).Msg("tool call served")
}
