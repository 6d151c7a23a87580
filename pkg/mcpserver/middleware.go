package mcpserver

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware logs all incoming requests and their results.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
			start := time.Now()
			resp := next(ctx, req)

			attrs := []any{"method", req.Method, "id", req.ID, "duration", time.Since(start)}
			if resp != nil {
				if result, ok := resp.Result.(*ToolCallResult); ok && result.IsError {
					attrs = append(attrs, "tool_error", true)
				}
			}
			logger.Debug("mcp request", attrs...)

			if resp != nil && resp.Error != nil {
				logger.Error("mcp error", "method", req.Method, "code", resp.Error.Code, "message", resp.Error.Message)
			}
			return resp
		}
	}
}

// RecoveryMiddleware catches panics and returns a JSON-RPC error.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *JSONRPCRequest) (resp *JSONRPCResponse) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in MCP handler", "method", req.Method, "panic", r)
					resp = errorResponse(req.ID, CodeInternalError, "Internal error")
				}
			}()
			return next(ctx, req)
		}
	}
}
