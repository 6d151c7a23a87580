package mcpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HTTPServer wraps the MCP Server to serve over HTTP with SSE support.
type HTTPServer struct {
	server    *Server
	addr      string
	authToken string
	logger    *slog.Logger
}

// NewHTTPServer creates an HTTP transport for s. A non-empty authToken is
// required as a Bearer token on every route except /health.
func NewHTTPServer(s *Server, addr, authToken string) *HTTPServer {
	return &HTTPServer{
		server:    s,
		addr:      addr,
		authToken: authToken,
		logger:    s.logger,
	}
}

// RunHTTP starts the MCP server on an HTTP endpoint and blocks until ctx is done.
func (s *Server) RunHTTP(ctx context.Context, addr, authToken string) error {
	return NewHTTPServer(s, addr, authToken).ListenAndServe(ctx)
}

// Handler returns the routed http.Handler.
func (hs *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hs.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(hs.corsMiddleware)

	// Health check
	r.Get("/health", hs.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(hs.auth)

		// MCP protocol endpoint (JSON-RPC 2.0)
		r.Post("/mcp", hs.handleMCPRequest)

		// RESTful endpoints
		r.Get("/api/tools", hs.handleToolsList)
		r.Post("/api/tools/{name}", hs.handleToolCall)
	})

	return r
}

// ListenAndServe starts the HTTP server and shuts it down gracefully when ctx is done.
func (hs *HTTPServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              hs.addr,
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		hs.logger.Info("starting HTTP server", "addr", hs.addr, "tools", len(hs.server.tools), "auth", hs.authToken != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		hs.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

func (hs *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hs.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte("Bearer "+hs.authToken)) != 1 {
			hs.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (hs *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		hs.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (hs *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
		w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (hs *HTTPServer) handleMCPRequest(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		hs.sendJSON(w, errorResponse(nil, CodeParseError, "Parse error"))
		return
	}

	// Validate session for non-initialize requests
	if req.Method != "initialize" {
		sessionID := r.Header.Get("Mcp-Session-Id")
		if sessionID == "" || !hs.server.CheckSession(sessionID) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
	}

	resp := hs.server.HandleRequest(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Set session ID header for initialize response
	if req.Method == "initialize" && resp.Error == nil {
		if result, ok := resp.Result.(*InitializeResult); ok && result.SessionID != "" {
			w.Header().Set("Mcp-Session-Id", result.SessionID)
		}
	}

	// Choose response format based on Accept header
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		hs.sendSSE(w, resp)
	} else {
		hs.sendJSON(w, resp)
	}
}

func (hs *HTTPServer) sendJSON(w http.ResponseWriter, resp any) {
	hs.respondJSON(w, http.StatusOK, resp)
}

func (hs *HTTPServer) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("write response", "error", err)
	}
}

func (hs *HTTPServer) sendSSE(w http.ResponseWriter, resp *JSONRPCResponse) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		hs.sendJSON(w, resp)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	respBytes, err := json.Marshal(resp)
	if err != nil {
		hs.logger.Error("marshal response", "error", err)
		return
	}
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", respBytes)
	flusher.Flush()
}

func (hs *HTTPServer) handleToolsList(w http.ResponseWriter, r *http.Request) {
	hs.sendJSON(w, hs.server.ListTools())
}

func (hs *HTTPServer) handleToolCall(w http.ResponseWriter, r *http.Request) {
	toolName := chi.URLParam(r, "name")

	args := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Route through HandleRequest so the middleware chain sees REST calls too.
	params, err := json.Marshal(CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	resp := hs.server.HandleRequest(r.Context(), &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      middleware.GetReqID(r.Context()),
		Method:  "tools/call",
		Params:  params,
	})
	if resp == nil || resp.Error != nil {
		hs.respondJSON(w, http.StatusInternalServerError, resp)
		return
	}
	hs.sendJSON(w, resp.Result)
}

func (hs *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	hs.sendJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"server":    hs.server.name,
		"version":   hs.server.version,
	})
}
