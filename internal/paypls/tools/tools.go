// Package tools implements the PayPls wallet tools served over MCP.
//
// Each tool validates its arguments against the same JSON Schema it
// advertises, calls the wallet API once, and returns the backend payload
// with derived display fields added.
package tools

import (
	"context"
	"net/url"

	"github.com/RobinCoderZhao/paypls-mcp/internal/paypls/wallet"
	"github.com/RobinCoderZhao/paypls-mcp/pkg/mcpserver"
)

// Tool names.
const (
	NameBalance     = "wallet_balance"
	NameListBuckets = "wallet_list_buckets"
	NameSendBTC     = "wallet_send_btc"
	NameSendUSDC    = "wallet_send_usdc"
	NameReceive     = "wallet_receive"
	NameTxStatus    = "wallet_tx_status"
)

// walletTool adapts a typed handler to mcpserver.ToolHandler.
type walletTool[T any] struct {
	mcpserver.BaseTool
	validator *validator
	run       func(ctx context.Context, in T) (wallet.Payload, error)
}

func (t *walletTool[T]) Execute(ctx context.Context, args map[string]any) (*mcpserver.ToolCallResult, error) {
	in, err := decodeInput[T](t.validator, args)
	if err != nil {
		return nil, err
	}
	payload, err := t.run(ctx, in)
	if err != nil {
		return nil, err
	}
	return mcpserver.SuccessResult(payload), nil
}

// sendRequest is the body of POST /agent/send. Exactly one amount is set.
// Nil optional fields are omitted; supplied ones are sent as given.
type sendRequest struct {
	BucketID       *string  `json:"bucket_id,omitempty"`
	Address        string   `json:"address"`
	AmountSats     *int64   `json:"amount_sats,omitempty"`
	AmountUSDC     *float64 `json:"amount_usdc,omitempty"`
	Justification  string   `json:"justification"`
	IdempotencyKey *string  `json:"idempotency_key,omitempty"`
}

type receiveRequest struct {
	BucketID *string `json:"bucket_id,omitempty"`
}

// handlers binds each tool to a wallet.Requester.
type handlers struct {
	api wallet.Requester
}

func (h handlers) balance(ctx context.Context, in BalanceInput) (wallet.Payload, error) {
	query := url.Values{}
	if in.BucketID != "" {
		query.Set("bucket_id", in.BucketID)
	}
	if in.Token != "" {
		query.Set("token", in.Token)
	}
	p, err := h.api.Get(ctx, "/agent/balance", query)
	if err != nil {
		return nil, err
	}
	return normalizeBalance(p), nil
}

func (h handlers) listBuckets(ctx context.Context, _ ListBucketsInput) (wallet.Payload, error) {
	p, err := h.api.Get(ctx, "/agent/buckets", nil)
	if err != nil {
		return nil, err
	}
	return normalizeBuckets(p), nil
}

func (h handlers) sendBTC(ctx context.Context, in SendBTCInput) (wallet.Payload, error) {
	p, err := h.api.Post(ctx, "/agent/send", sendRequest{
		BucketID:       in.BucketID,
		Address:        in.Address,
		AmountSats:     &in.AmountSats,
		Justification:  in.Justification,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return normalizeSendBTC(p, in), nil
}

func (h handlers) sendUSDC(ctx context.Context, in SendUSDCInput) (wallet.Payload, error) {
	p, err := h.api.Post(ctx, "/agent/send", sendRequest{
		BucketID:       in.BucketID,
		Address:        in.Address,
		AmountUSDC:     &in.AmountUSDC,
		Justification:  in.Justification,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return normalizeSendUSDC(p, in), nil
}

func (h handlers) receive(ctx context.Context, in ReceiveInput) (wallet.Payload, error) {
	p, err := h.api.Post(ctx, "/agent/receive", receiveRequest{BucketID: in.BucketID})
	if err != nil {
		return nil, err
	}
	return normalizeReceive(p), nil
}

func (h handlers) txStatus(ctx context.Context, in TxStatusInput) (wallet.Payload, error) {
	p, err := h.api.Get(ctx, "/agent/tx/"+url.PathEscape(in.TransactionID), nil)
	if err != nil {
		return nil, err
	}
	return normalizeTxStatus(p), nil
}
