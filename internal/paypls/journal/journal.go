// Package journal keeps a local audit trail of wallet tool calls.
//
// Entries record which tool ran, whether it failed, and the transaction the
// backend reported. Tool arguments are never stored.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RobinCoderZhao/paypls-mcp/pkg/mcpserver"
	"github.com/RobinCoderZhao/paypls-mcp/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS tool_calls (
	id             TEXT PRIMARY KEY,
	tool           TEXT NOT NULL,
	is_error       INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT '',
	transaction_id TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL DEFAULT '',
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at);
`

const writeTimeout = 2 * time.Second

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded tool call.
type Entry struct {
	ID            string
	Tool          string
	IsError       bool
	Status        string
	TransactionID string
	Message       string
	Duration      time.Duration
	CreatedAt     time.Time
}

// Store persists entries using the common storage layer.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewStore creates the journal table if needed.
func NewStore(ctx context.Context, db *storage.DB) (*Store, error) {
	if err := db.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Store{db: db, logger: slog.Default()}, nil
}

// Record inserts e, assigning an ID and timestamp when unset.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, tool, is_error, status, transaction_id, message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Tool, e.IsError, e.Status, e.TransactionID, e.Message,
		e.Duration.Milliseconds(), e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record tool call: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tool, is_error, status, transaction_id, message, duration_ms, created_at
		 FROM tool_calls ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.Tool, &e.IsError, &e.Status, &e.TransactionID, &e.Message, &durationMS, &createdAt); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Middleware records every tools/call handled by the server. Write failures
// are logged and never change the response.
func (s *Store) Middleware() mcpserver.Middleware {
	return func(next mcpserver.HandlerFunc) mcpserver.HandlerFunc {
		return func(ctx context.Context, req *mcpserver.JSONRPCRequest) *mcpserver.JSONRPCResponse {
			if req.Method != "tools/call" {
				return next(ctx, req)
			}

			start := time.Now()
			resp := next(ctx, req)

			entry := entryFor(req, resp)
			entry.CreatedAt = start
			entry.Duration = time.Since(start)

			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
			defer cancel()
			if err := s.Record(writeCtx, entry); err != nil {
				s.logger.Warn("journal write failed", "tool", entry.Tool, "error", err)
			}
			return resp
		}
	}
}

// entryFor extracts what is worth keeping from a tools/call exchange.
func entryFor(req *mcpserver.JSONRPCRequest, resp *mcpserver.JSONRPCResponse) Entry {
	var params mcpserver.CallToolParams
	_ = json.Unmarshal(req.Params, &params)
	e := Entry{Tool: params.Name}

	if resp == nil {
		return e
	}
	if resp.Error != nil {
		e.IsError = true
		e.Message = resp.Error.Message
		return e
	}
	result, ok := resp.Result.(*mcpserver.ToolCallResult)
	if !ok {
		return e
	}

	e.IsError = result.IsError
	var body struct {
		Message       string `json:"message"`
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
		ID            string `json:"id"`
	}
	if err := json.Unmarshal([]byte(result.Text()), &body); err != nil {
		return e
	}
	if result.IsError {
		e.Message = body.Message
		return e
	}
	e.Status = body.Status
	e.TransactionID = body.TransactionID
	if e.TransactionID == "" && body.Status != "" {
		e.TransactionID = body.ID
	}
	return e
}
