// Package mcpserver provides a reusable MCP (Model Context Protocol) server framework.
//
// It speaks JSON-RPC 2.0 over stdio or HTTP, keeps an ordered tool registry,
// and dispatches tools/call requests to ToolHandler implementations. Tool
// failures of any kind come back as an error envelope inside a normal result;
// the server never turns a tool failure into a protocol fault.
//
// Quick Start:
//
//	server := mcpserver.New("my-server", "1.0.0")
//	server.RegisterTool(&MyTool{})
//	server.RunStdio(ctx, os.Stdin, os.Stdout) // or server.RunHTTP(ctx, ":8080", token)
package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrUnknownTool is returned (inside an error envelope) for calls to unregistered tools.
var ErrUnknownTool = errors.New("unknown tool")

// LatestProtocolVersion is answered when the client asks for a version the server does not know.
const LatestProtocolVersion = "2025-06-18"

var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
}

// Server is the core MCP server that manages tools and handles JSON-RPC requests.
type Server struct {
	name         string
	version      string
	instructions string
	tools        map[string]ToolHandler
	order        []string
	sessions     map[string]time.Time
	sessionMu    sync.RWMutex
	middleware   []Middleware
	logger       *slog.Logger
}

// New creates a new MCP server with the given name and version.
func New(name, version string) *Server {
	return &Server{
		name:     name,
		version:  version,
		tools:    make(map[string]ToolHandler),
		sessions: make(map[string]time.Time),
		logger:   slog.Default(),
	}
}

// SetLogger replaces the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstructions sets the usage hint returned from initialize.
func (s *Server) SetInstructions(text string) { s.instructions = text }

// RegisterTool adds a tool to the server. Registering a name twice replaces
// the handler but keeps its original position in the listing.
// Tools must be registered before the server starts serving.
func (s *Server) RegisterTool(tool ToolHandler) {
	name := tool.Name()
	if _, exists := s.tools[name]; !exists {
		s.order = append(s.order, name)
	}
	s.tools[name] = tool
	s.logger.Debug("registered tool", "name", name)
}

// RegisterTools adds multiple tools to the server.
func (s *Server) RegisterTools(tools ...ToolHandler) {
	for _, tool := range tools {
		s.RegisterTool(tool)
	}
}

// Use adds middleware to the server's processing chain.
func (s *Server) Use(mw Middleware) {
	s.middleware = append(s.middleware, mw)
}

// RunStdio serves newline-delimited JSON-RPC from in and writes responses to out.
// Requests are handled concurrently and answered in completion order.
// It returns nil on EOF or when ctx is cancelled, after in-flight calls finish.
func (s *Server) RunStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("starting MCP server (stdio)", "name", s.name, "version", s.version, "tools", len(s.tools))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	encoder := json.NewEncoder(out)
	write := func(resp *JSONRPCResponse) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("encode response", "error", err)
		}
	}

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		reader := bufio.NewReaderSize(in, 64*1024)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.logger.Info("MCP server stopped", "reason", ctx.Err())
			return nil

		case err := <-readErr:
			wg.Wait()
			if errors.Is(err, io.EOF) {
				s.logger.Info("MCP server stopped", "reason", "stdin closed")
				return nil
			}
			return fmt.Errorf("read request: %w", err)

		case line := <-lines:
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var req JSONRPCRequest
			if err := json.Unmarshal(line, &req); err != nil {
				write(errorResponse(nil, CodeParseError, "Parse error"))
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp := s.HandleRequest(ctx, &req); resp != nil {
					write(resp)
				}
			}()
		}
	}
}

// HandleRequest processes a single JSON-RPC request and returns a response,
// or nil for notifications.
func (s *Server) HandleRequest(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	// Apply middleware chain
	handler := s.coreHandler
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	return handler(ctx, req)
}

func (s *Server) coreHandler(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request: jsonrpc must be \"2.0\"")
	}

	resp := &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	switch req.Method {
	case "initialize":
		resp.Result = s.handleInitialize(req.Params)
	case "notifications/initialized":
		s.logger.Info("client initialized")
		return nil
	case "ping":
		resp.Result = struct{}{}
	case "tools/list":
		resp.Result = s.ListTools()
	case "tools/call":
		resp.Result = s.handleToolCall(ctx, req.Params)
	default:
		if req.IsNotification() {
			return nil
		}
		resp.Error = &RPCError{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleInitialize(raw json.RawMessage) *InitializeResult {
	var params InitializeParams
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &params)
	}

	version := LatestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}
	if params.ClientInfo.Name != "" {
		s.logger.Info("client connected", "client", params.ClientInfo.Name, "client_version", params.ClientInfo.Version, "protocol", version)
	}

	return &InitializeResult{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools: ToolsCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
		Instructions: s.instructions,
		SessionID:    s.createSession(),
	}
}

// ListTools returns every registered tool in registration order.
func (s *Server) ListTools() *ToolsListResult {
	tools := make([]ToolDef, 0, len(s.order))
	for _, name := range s.order {
		h := s.tools[name]
		tools = append(tools, ToolDef{
			Name:        h.Name(),
			Description: h.Description(),
			InputSchema: h.InputSchema(),
		})
	}
	return &ToolsListResult{Tools: tools}
}

func (s *Server) handleToolCall(ctx context.Context, raw json.RawMessage) *ToolCallResult {
	var params CallToolParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return ErrorResult(fmt.Errorf("unmarshal params: %w", err))
		}
	}
	return s.CallTool(ctx, params.Name, params.Arguments)
}

// CallTool dispatches a call to the named tool. It always returns a result:
// unknown tools, handler errors and handler panics become error envelopes.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (result *ToolCallResult) {
	tool, ok := s.tools[name]
	if !ok {
		return ErrorResult(fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in tool handler", "tool", name, "panic", r, "stack", string(debug.Stack()))
			result = ErrorResult(fmt.Errorf("internal error in %s", name))
		}
	}()

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return ErrorResult(err)
	}
	if result == nil {
		return TextResult("")
	}
	return result
}

// Session management

func (s *Server) createSession() string {
	id := generateSessionID()
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.sessions[id] = time.Now()
	return id
}

// CheckSession verifies if a session ID is valid.
func (s *Server) CheckSession(id string) bool {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
