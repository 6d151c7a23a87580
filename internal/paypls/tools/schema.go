package tools

import "github.com/google/jsonschema-go/jsonschema"

const (
	minBTCAddress    = 26
	maxBTCAddress    = 62
	maxJustification = 500

	evmAddressPattern = `^0x[a-fA-F0-9]{40}$`
	uuidPattern       = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`
)

// Tokens are the balances the backend can report.
var Tokens = []string{"BTC", "USDC", "EURC"}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func bucketProperty(purpose string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "The bucket " + purpose + ". Defaults to primary bucket if not specified.",
	}
}

func justificationProperty() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Clear explanation of why this payment is needed. This is shown to the human for approval.",
		MinLength:   intPtr(1),
		MaxLength:   intPtr(maxJustification),
	}
}

func balanceSchema() *jsonschema.Schema {
	enum := make([]any, len(Tokens))
	for i, t := range Tokens {
		enum[i] = t
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"bucket_id": bucketProperty("ID to check"),
			"token": {
				Type:        "string",
				Enum:        enum,
				Description: "Which token balance to check. If not specified, uses the primary bucket.",
			},
		},
	}
}

func listBucketsSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func sendBTCSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"bucket_id": bucketProperty("to send from"),
			"address": {
				Type:        "string",
				Description: "The Bitcoin address to send to (bc1... for mainnet, tb1... for testnet).",
				MinLength:   intPtr(minBTCAddress),
				MaxLength:   intPtr(maxBTCAddress),
			},
			"amount_sats": {
				Type:             "integer",
				Description:      "Amount to send in satoshis (1 BTC = 100,000,000 sats). For example: 10000 sats ≈ $10 at $100k BTC.",
				ExclusiveMinimum: floatPtr(0),
			},
			"justification": justificationProperty(),
			"idempotency_key": {
				Type:        "string",
				Description: "Optional unique key to prevent duplicate transactions. If provided and a transaction with this key exists (within 24h), returns the existing transaction.",
			},
		},
		Required: []string{"address", "amount_sats", "justification"},
	}
}

func sendUSDCSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"bucket_id": bucketProperty("to send from"),
			"address": {
				Type:        "string",
				Description: "The EVM wallet address to send to (0x... format).",
				Pattern:     evmAddressPattern,
			},
			"amount_usdc": {
				Type:             "number",
				Description:      "Amount to send in micro-USDC (1 USDC = 1,000,000 micro-USDC). For example: 5000000 = $5.00 USDC.",
				ExclusiveMinimum: floatPtr(0),
			},
			"justification": justificationProperty(),
			"idempotency_key": {
				Type:        "string",
				Description: "Optional unique key to prevent duplicate transactions.",
			},
		},
		Required: []string{"address", "amount_usdc", "justification"},
	}
}

func receiveSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"bucket_id": bucketProperty("to receive into"),
		},
	}
}

func txStatusSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"transaction_id": {
				Type:        "string",
				Description: "The transaction ID returned from wallet_send_btc or wallet_send_usdc.",
				Pattern:     uuidPattern,
			},
		},
		Required: []string{"transaction_id"},
	}
}
