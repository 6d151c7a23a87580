package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// ErrInvalidInput is matched by every ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError reports the first constraint a tool's arguments violated.
// It is always returned before any backend request is made.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports ErrInvalidInput so callers can test for validation failures
// without caring which constraint failed.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// BalanceInput is the validated input of wallet_balance.
type BalanceInput struct {
	BucketID string `json:"bucket_id"`
	Token    string `json:"token"`
}

// ListBucketsInput is the validated input of wallet_list_buckets.
type ListBucketsInput struct{}

// SendBTCInput is the validated input of wallet_send_btc. Optional strings
// are pointers so a supplied empty value is still forwarded.
type SendBTCInput struct {
	BucketID       *string `json:"bucket_id"`
	Address        string  `json:"address"`
	AmountSats     int64   `json:"amount_sats"`
	Justification  string  `json:"justification"`
	IdempotencyKey *string `json:"idempotency_key"`
}

// SendUSDCInput is the validated input of wallet_send_usdc.
// AmountUSDC is in micro-USDC.
type SendUSDCInput struct {
	BucketID       *string `json:"bucket_id"`
	Address        string  `json:"address"`
	AmountUSDC     float64 `json:"amount_usdc"`
	Justification  string  `json:"justification"`
	IdempotencyKey *string `json:"idempotency_key"`
}

// ReceiveInput is the validated input of wallet_receive.
type ReceiveInput struct {
	BucketID *string `json:"bucket_id"`
}

// TxStatusInput is the validated input of wallet_tx_status.
type TxStatusInput struct {
	TransactionID string `json:"transaction_id"`
}

func (in TxStatusInput) check() error {
	if _, err := uuid.Parse(in.TransactionID); err != nil {
		return fmt.Errorf("transaction_id: %w", err)
	}
	return nil
}

// checker is implemented by inputs with constraints JSON Schema cannot express.
type checker interface {
	check() error
}

// validator checks raw arguments against one tool's schema and decodes them.
type validator struct {
	tool     string
	resolved *jsonschema.Resolved
}

func newValidator(tool string, schema *jsonschema.Schema) (*validator, error) {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s schema: %w", tool, err)
	}
	return &validator{tool: tool, resolved: resolved}, nil
}

func (v *validator) fail(err error) error {
	return &ValidationError{Tool: v.tool, Err: err}
}

// decodeInput validates args and decodes them into T. Keys the schema does not
// declare are dropped by the decode.
func decodeInput[T any](v *validator, args map[string]any) (T, error) {
	var in T
	if args == nil {
		args = map[string]any{}
	}
	if err := v.resolved.Validate(args); err != nil {
		return in, v.fail(cleanSchemaError(err))
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return in, v.fail(err)
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, v.fail(decodeError(err))
	}
	if c, ok := any(in).(checker); ok {
		if err := c.check(); err != nil {
			return in, v.fail(err)
		}
	}
	return in, nil
}

// decodeError reports a value the schema accepted but the input type cannot
// hold, such as an integer beyond int64.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Errorf("%s: out of range", typeErr.Field)
	}
	return err
}

// cleanSchemaError strips the validator's "validating root:" prefix.
func cleanSchemaError(err error) error {
	msg := strings.TrimPrefix(err.Error(), "validating root: ")
	return errors.New(msg)
}
