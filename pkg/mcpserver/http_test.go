package mcpserver_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RobinCoderZhao/paypls-mcp/pkg/mcpserver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHTTPTestServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	s := newTestServer()
	s.SetLogger(testLogger())
	ts := httptest.NewServer(mcpserver.NewHTTPServer(s, "", token).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, token, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTP_HealthIsPublic(t *testing.T) {
	ts := newHTTPTestServer(t, "secret")

	resp := doRequest(t, http.MethodGet, ts.URL+"/health", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHTTP_AuthRequired(t *testing.T) {
	ts := newHTTPTestServer(t, "secret")

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/tools", "", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/tools", "wrong", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", resp.StatusCode)
	}

	for _, header := range []string{"secret", "bearer secret", "Basic secret", "Bearer secret "} {
		resp = doRequest(t, http.MethodGet, ts.URL+"/api/tools", "", "", map[string]string{"Authorization": header})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for Authorization %q, got %d", header, resp.StatusCode)
		}
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/tools", "secret", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list mcpserver.ToolsListResult
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Tools) != 1 || list.Tools[0].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", list.Tools)
	}
}

func TestHTTP_RESTToolCall(t *testing.T) {
	ts := newHTTPTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/tools/echo", "", `{"message":"rest"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result mcpserver.ToolCallResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Text() != "Echo: rest" {
		t.Fatalf("unexpected result: %+v", result)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/tools/missing", "", ``, nil)
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown tool")
	}
}

func TestHTTP_MCPSessionFlow(t *testing.T) {
	ts := newHTTPTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/mcp", "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without session, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/mcp", "", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, nil)
	sessionID := resp.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		t.Fatal("expected Mcp-Session-Id header")
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/mcp", "",
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"sse"}}}`,
		map[string]string{"Mcp-Session-Id": sessionID, "Accept": "application/json, text/event-stream"})
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE response, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), "event: message\ndata: ") || !strings.Contains(string(body), "Echo: sse") {
		t.Fatalf("unexpected SSE body: %q", body)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/mcp", "", `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		map[string]string{"Mcp-Session-Id": sessionID})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for notification, got %d", resp.StatusCode)
	}
}
