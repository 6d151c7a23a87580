package mcpserver

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolHandler is the interface for MCP tools.
type ToolHandler interface {
	// Name returns the unique tool name.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() *jsonschema.Schema

	// Execute runs the tool with the given arguments.
	// A returned error is rendered as an error envelope, never as a protocol fault.
	Execute(ctx context.Context, args map[string]any) (*ToolCallResult, error)
}

// BaseTool provides a base implementation for common tool fields.
// Embed this in your tool structs and implement Execute().
type BaseTool struct {
	ToolName        string
	ToolDescription string
	ToolSchema      *jsonschema.Schema
}

func (t *BaseTool) Name() string                    { return t.ToolName }
func (t *BaseTool) Description() string             { return t.ToolDescription }
func (t *BaseTool) InputSchema() *jsonschema.Schema { return t.ToolSchema }

// Middleware is a function that wraps a request handler.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is a function that handles a JSON-RPC request.
type HandlerFunc func(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse
