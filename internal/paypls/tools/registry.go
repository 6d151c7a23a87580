package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/RobinCoderZhao/paypls-mcp/internal/paypls/wallet"
	"github.com/RobinCoderZhao/paypls-mcp/pkg/mcpserver"
)

func newWalletTool[T any](name, description string, schema *jsonschema.Schema,
	run func(context.Context, T) (wallet.Payload, error)) (mcpserver.ToolHandler, error) {
	v, err := newValidator(name, schema)
	if err != nil {
		return nil, err
	}
	return &walletTool[T]{
		BaseTool: mcpserver.BaseTool{
			ToolName:        name,
			ToolDescription: description,
			ToolSchema:      schema,
		},
		validator: v,
		run:       run,
	}, nil
}

// New builds the wallet tools in their listing order.
func New(api wallet.Requester) ([]mcpserver.ToolHandler, error) {
	h := handlers{api: api}

	builders := []func() (mcpserver.ToolHandler, error){
		func() (mcpserver.ToolHandler, error) {
			return newWalletTool(NameBalance,
				"Get the balance of your wallet. Returns balance in the native unit (sats for BTC, micro-units for USDC/EURC) plus formatted display values.",
				balanceSchema(), h.balance)
		},
		func() (mcpserver.ToolHandler, error) {
			return newWalletTool(NameListBuckets,
				"List the buckets (sub-wallets) available to this agent with their tokens and balances.",
				listBucketsSchema(), h.listBuckets)
		},
		func() (mcpserver.ToolHandler, error) {
			return newWalletTool(NameSendBTC,
				"Send Bitcoin to an address. May require human approval depending on amount and bucket settings. Always provide a clear justification.",
				sendBTCSchema(), h.sendBTC)
		},
		func() (mcpserver.ToolHandler, error) {
			return newWalletTool(NameSendUSDC,
				"Send USDC (stablecoin) to an EVM address. May require human approval depending on amount. USDC is ideal for stable-value payments.",
				sendUSDCSchema(), h.sendUSDC)
		},
		func() (mcpserver.ToolHandler, error) {
			return newWalletTool(NameReceive,
				"Get an address to receive funds into your wallet. Returns a deposit address for the specified bucket.",
				receiveSchema(), h.receive)
		},
		func() (mcpserver.ToolHandler, error) {
			return newWalletTool(NameTxStatus,
				"Check the status of a transaction by its ID. Use this to poll for approval status after a send that requires human approval.",
				txStatusSchema(), h.txStatus)
		},
	}

	out := make([]mcpserver.ToolHandler, 0, len(builders))
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Register adds every wallet tool to s, backed by api.
func Register(s *mcpserver.Server, api wallet.Requester) error {
	list, err := New(api)
	if err != nil {
		return err
	}
	s.RegisterTools(list...)
	return nil
}

// Descriptors returns the static tool list without a backend.
func Descriptors() ([]mcpserver.ToolDef, error) {
	list, err := New(nil)
	if err != nil {
		return nil, err
	}
	defs := make([]mcpserver.ToolDef, len(list))
	for i, h := range list {
		defs[i] = mcpserver.ToolDef{
			Name:        h.Name(),
			Description: h.Description(),
			InputSchema: h.InputSchema(),
		}
	}
	return defs, nil
}
