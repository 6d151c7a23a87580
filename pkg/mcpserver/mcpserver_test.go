package mcpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/RobinCoderZhao/paypls-mcp/pkg/mcpserver"
)

// EchoTool is a simple tool for testing that echoes back its input.
type EchoTool struct {
	mcpserver.BaseTool
}

func NewEchoTool() *EchoTool {
	return &EchoTool{
		BaseTool: mcpserver.BaseTool{
			ToolName:        "echo",
			ToolDescription: "Echoes back the input message",
			ToolSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"message": {Type: "string", Description: "Message to echo"},
				},
				Required: []string{"message"},
			},
		},
	}
}

func (t *EchoTool) Execute(_ context.Context, args map[string]any) (*mcpserver.ToolCallResult, error) {
	msg, _ := args["message"].(string)
	return mcpserver.TextResult("Echo: " + msg), nil
}

type failingTool struct {
	mcpserver.BaseTool
	err   error
	panic bool
}

func (t *failingTool) Execute(context.Context, map[string]any) (*mcpserver.ToolCallResult, error) {
	if t.panic {
		panic("boom")
	}
	return nil, t.err
}

func newTestServer() *mcpserver.Server {
	s := mcpserver.New("test-server", "1.0.0")
	s.RegisterTool(NewEchoTool())
	return s
}

func rpc(t *testing.T, s *mcpserver.Server, id any, method string, params any) *mcpserver.JSONRPCResponse {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
		raw = b
	}
	return s.HandleRequest(context.Background(), &mcpserver.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  raw,
	})
}

func decodeEnvelope(t *testing.T, result *mcpserver.ToolCallResult) mcpserver.ErrorEnvelope {
	t.Helper()
	var env mcpserver.ErrorEnvelope
	if err := json.Unmarshal([]byte(result.Text()), &env); err != nil {
		t.Fatalf("expected JSON error envelope, got %q: %v", result.Text(), err)
	}
	return env
}

func TestServer_Initialize(t *testing.T) {
	s := newTestServer()

	resp := rpc(t, s, 1, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "test-host", "version": "0.0.1"},
	})

	if resp == nil {
		t.Fatal("expected response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(*mcpserver.InitializeResult)
	if !ok {
		t.Fatal("expected InitializeResult")
	}
	if result.ServerInfo.Name != "test-server" {
		t.Fatalf("expected 'test-server', got '%s'", result.ServerInfo.Name)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Fatalf("expected negotiated 2024-11-05, got '%s'", result.ProtocolVersion)
	}
	if result.SessionID == "" {
		t.Fatal("expected non-empty session ID")
	}
}

func TestServer_InitializeUnknownVersion(t *testing.T) {
	s := newTestServer()
	resp := rpc(t, s, 1, "initialize", map[string]any{"protocolVersion": "1999-01-01"})
	result := resp.Result.(*mcpserver.InitializeResult)
	if result.ProtocolVersion != mcpserver.LatestProtocolVersion {
		t.Fatalf("expected %s, got %s", mcpserver.LatestProtocolVersion, result.ProtocolVersion)
	}
}

func TestServer_ToolsList(t *testing.T) {
	s := newTestServer()
	s.RegisterTool(&failingTool{BaseTool: mcpserver.BaseTool{ToolName: "b_second", ToolSchema: &jsonschema.Schema{Type: "object"}}})
	s.RegisterTool(&failingTool{BaseTool: mcpserver.BaseTool{ToolName: "a_third", ToolSchema: &jsonschema.Schema{Type: "object"}}})

	resp := rpc(t, s, 2, "tools/list", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(*mcpserver.ToolsListResult)
	if !ok {
		t.Fatal("expected ToolsListResult")
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	if strings.Join(names, ",") != "echo,b_second,a_third" {
		t.Fatalf("expected registration order, got %v", names)
	}
}

func TestServer_ToolCall(t *testing.T) {
	s := newTestServer()

	resp := rpc(t, s, 3, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"message": "hello world"},
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(*mcpserver.ToolCallResult)
	if !ok {
		t.Fatal("expected ToolCallResult")
	}
	if result.IsError {
		t.Fatal("expected no error")
	}
	if len(result.Content) != 1 || result.Content[0].Text != "Echo: hello world" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestServer_ToolNotFound(t *testing.T) {
	s := mcpserver.New("test-server", "1.0.0")

	for _, name := range []string{"nonexistent", "", "wallet_steal"} {
		result := s.CallTool(context.Background(), name, map[string]any{})
		if !result.IsError {
			t.Fatalf("expected error result for %q", name)
		}
		env := decodeEnvelope(t, result)
		if !env.Error || !strings.Contains(env.Message, "unknown tool") {
			t.Fatalf("expected unknown tool envelope, got %+v", env)
		}
	}
}

func TestServer_ToolErrorBecomesEnvelope(t *testing.T) {
	s := mcpserver.New("test-server", "1.0.0")
	s.RegisterTool(&failingTool{
		BaseTool: mcpserver.BaseTool{ToolName: "fails"},
		err:      errors.New("API error (500): upstream down"),
	})

	resp := rpc(t, s, 4, "tools/call", map[string]any{"name": "fails"})
	if resp.Error != nil {
		t.Fatalf("tool errors must not be protocol errors, got %v", resp.Error)
	}
	result := resp.Result.(*mcpserver.ToolCallResult)
	env := decodeEnvelope(t, result)
	if !result.IsError || !env.Error {
		t.Fatal("expected error flag on result and envelope")
	}
	if env.Message != "API error (500): upstream down" {
		t.Fatalf("unexpected message: %q", env.Message)
	}
}

func TestServer_ToolPanicBecomesEnvelope(t *testing.T) {
	s := mcpserver.New("test-server", "1.0.0")
	s.RegisterTool(&failingTool{BaseTool: mcpserver.BaseTool{ToolName: "panics"}, panic: true})

	result := s.CallTool(context.Background(), "panics", nil)
	if !result.IsError {
		t.Fatal("expected error result after panic")
	}
	if env := decodeEnvelope(t, result); !strings.Contains(env.Message, "panics") {
		t.Fatalf("expected tool name in message, got %q", env.Message)
	}
}

func TestServer_MethodNotFound(t *testing.T) {
	s := newTestServer()

	resp := rpc(t, s, 5, "unknown/method", nil)

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != mcpserver.CodeMethodNotFound {
		t.Fatalf("expected code -32601, got %d", resp.Error.Code)
	}
}

func TestServer_NotificationGetsNoResponse(t *testing.T) {
	s := newTestServer()
	if resp := rpc(t, s, nil, "notifications/initialized", nil); resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}
	if resp := rpc(t, s, nil, "notifications/cancelled", nil); resp != nil {
		t.Fatalf("expected nil response for unknown notification, got %+v", resp)
	}
}

func TestServer_Middleware(t *testing.T) {
	s := newTestServer()

	var order []string
	for _, name := range []string{"outer", "inner"} {
		name := name
		s.Use(func(next mcpserver.HandlerFunc) mcpserver.HandlerFunc {
			return func(ctx context.Context, req *mcpserver.JSONRPCRequest) *mcpserver.JSONRPCResponse {
				order = append(order, name)
				return next(ctx, req)
			}
		})
	}

	rpc(t, s, 6, "tools/list", nil)

	if strings.Join(order, ",") != "outer,inner" {
		t.Fatalf("expected middleware in registration order, got %v", order)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer()
	s.Use(mcpserver.RecoveryMiddleware(testLogger()))
	s.Use(func(next mcpserver.HandlerFunc) mcpserver.HandlerFunc {
		return func(ctx context.Context, req *mcpserver.JSONRPCRequest) *mcpserver.JSONRPCResponse {
			panic("middleware exploded")
		}
	})

	resp := rpc(t, s, 7, "tools/list", nil)
	if resp == nil || resp.Error == nil || resp.Error.Code != mcpserver.CodeInternalError {
		t.Fatalf("expected internal error response, got %+v", resp)
	}
}

func TestServer_Session(t *testing.T) {
	s := newTestServer()

	resp := rpc(t, s, 8, "initialize", nil)

	result := resp.Result.(*mcpserver.InitializeResult)
	if !s.CheckSession(result.SessionID) {
		t.Fatal("expected session to be valid")
	}
	if s.CheckSession("invalid-session") {
		t.Fatal("expected invalid session to fail")
	}
}

func TestServer_RunStdio(t *testing.T) {
	s := newTestServer()

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
	}, "\n"))
	var out bytes.Buffer

	if err := s.RunStdio(context.Background(), in, &out); err != nil {
		t.Fatalf("RunStdio() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 responses, got %d: %q", len(lines), out.String())
	}

	seen := map[string]bool{}
	for _, line := range lines {
		var resp struct {
			ID     any             `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *mcpserver.RPCError
		}
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", line, err)
		}
		switch {
		case resp.Error != nil && resp.Error.Code == mcpserver.CodeParseError:
			seen["parse"] = true
		case resp.ID == float64(1):
			seen["init"] = true
		case resp.ID == float64(2):
			if !strings.Contains(string(resp.Result), "Echo: hi") {
				t.Fatalf("unexpected call result: %s", resp.Result)
			}
			seen["call"] = true
		}
	}
	if !seen["parse"] || !seen["init"] || !seen["call"] {
		t.Fatalf("missing responses, saw %v", seen)
	}
}
