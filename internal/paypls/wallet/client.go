// Package wallet is a minimal client for the PayPls agent wallet HTTP API.
//
// The client issues exactly one request per call: no retries, no caching.
// Writes that must be deduplicated carry a caller-supplied idempotency key
// in their body; the client forwards it untouched.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.paypls.io"

// maxErrorBody caps how much of a failed response is kept on APIError.
const maxErrorBody = 4096

// APIError is returned for any non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = http.StatusText(e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, body)
}

// Requester is the black-box request function the tools depend on.
// *Client implements it.
type Requester interface {
	Get(ctx context.Context, path string, query url.Values) (Payload, error)
	Post(ctx context.Context, path string, body any) (Payload, error)
}

// Config holds connection settings for the client.
type Config struct {
	BaseURL           string        `yaml:"base_url" env:"PAYPLS_API_URL"`
	Token             string        `yaml:"token" env:"PAYPLS_TOKEN"`
	Timeout           time.Duration `yaml:"timeout" env:"PAYPLS_API_TIMEOUT"`
	RequestsPerMinute float64       `yaml:"requests_per_minute" env:"PAYPLS_API_RPM"`
	UserAgent         string        `yaml:"-"`
}

// Client is an authenticated JSON client for the wallet API.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient returns a client for cfg. If httpClient is nil, one is built
// with cfg.Timeout (zero means no client-side timeout).
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "paypls-mcp"
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     cfg.Token,
		userAgent: userAgent,
		http:      httpClient,
		logger:    slog.Default(),
	}
	if cfg.RequestsPerMinute > 0 {
		perSecond := cfg.RequestsPerMinute / 60
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
	}
	return c
}

// Get issues a read request. query may be nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (Payload, error) {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a write request with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (Payload, error) {
	if body == nil {
		body = struct{}{}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, raw)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (Payload, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("wallet api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Status: resp.StatusCode, Body: string(errBody)}
	}

	payload, err := decodePayload(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return payload, nil
}

// decodePayload decodes a JSON body, keeping numbers as json.Number.
// An empty body yields an empty payload; a non-object root is kept under "data".
func decodePayload(r io.Reader) (Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var body any
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return Payload{}, nil
		}
		return nil, err
	}

	switch v := body.(type) {
	case map[string]any:
		return Payload(v), nil
	case nil:
		return Payload{}, nil
	default:
		return Payload{"data": v}, nil
	}
}
