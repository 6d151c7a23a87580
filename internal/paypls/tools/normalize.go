package tools

import (
	"fmt"

	"github.com/RobinCoderZhao/paypls-mcp/internal/paypls/wallet"
)

// Transaction statuses reported by the backend.
const (
	StatusPendingApproval = "pending_approval"
	StatusCompleted       = "completed"
	StatusDenied          = "denied"
	StatusFailed          = "failed"
	StatusExpired         = "expired"
)

const (
	satsPerBTC  = 100_000_000
	microPerUSD = 1_000_000
)

const (
	volatileHint = "BTC price varies - check current rate for accurate USD value"

	btcPendingSteps  = "Transaction requires human approval. Poll wallet_tx_status to check status, or wait for approval notification."
	usdcPendingSteps = "Transaction requires human approval. Poll wallet_tx_status to check status."
	txPendingSteps   = "Still awaiting human approval. Poll wallet_tx_status again later."

	btcReceiveInstructions     = "Send Bitcoin to this address. Requires confirmations before available."
	genericReceiveInstructions = "Send funds to this address. Network fees apply."
)

var terminalNotes = map[string]string{
	StatusDenied:  "The transfer was denied by the wallet owner. No funds were sent.",
	StatusFailed:  "The transfer failed. No funds were sent.",
	StatusExpired: "The approval window expired. No funds were sent.",
}

// FormatSats renders a satoshi amount as BTC with 8 decimals.
func FormatSats(sats int64) string {
	sign := ""
	if sats < 0 {
		sign = "-"
		sats = -sats
	}
	return fmt.Sprintf("%s%d.%08d", sign, sats/satsPerBTC, sats%satsPerBTC)
}

// FormatMicroUSD renders a micro-unit stablecoin amount as dollars.
func FormatMicroUSD(micro float64) string {
	return fmt.Sprintf("$%.2f", micro/microPerUSD)
}

func isStablecoin(token string) bool {
	return token == "USDC" || token == "EURC"
}

func normalizeBalance(p wallet.Payload) wallet.Payload {
	token := p.FirstString("token", "currency")
	if isStablecoin(token) {
		p.SetDefault("hint", fmt.Sprintf("%s is a stablecoin - 1 %s ≈ $1 USD", token, token))
	} else {
		p.SetDefault("hint", volatileHint)
	}
	if sats, ok := p.Int("balance_sats"); ok {
		p.SetDefault("balance_btc", FormatSats(sats))
	}
	if sats, ok := p.Int("pending_sats"); ok {
		p.SetDefault("pending_btc", FormatSats(sats))
	}
	if micro, ok := p.Float("balance_micro"); ok {
		p.SetDefault("balance_usd", FormatMicroUSD(micro))
	}
	return p
}

func normalizeSendBTC(p wallet.Payload, in SendBTCInput) wallet.Payload {
	p.SetDefault("token", "BTC")
	p.SetDefault("amount_sats", in.AmountSats)
	p.SetDefault("amount_btc", FormatSats(in.AmountSats))
	if p.String("status") == StatusPendingApproval {
		p.SetDefault("next_steps", btcPendingSteps)
	}
	return p
}

func normalizeSendUSDC(p wallet.Payload, in SendUSDCInput) wallet.Payload {
	p.SetDefault("token", "USDC")
	p.SetDefault("amount_micro", in.AmountUSDC)
	p.SetDefault("amount_usd", FormatMicroUSD(in.AmountUSDC))
	if p.String("status") == StatusPendingApproval {
		p.SetDefault("next_steps", usdcPendingSteps)
	}
	return p
}

func normalizeReceive(p wallet.Payload) wallet.Payload {
	currency := p.FirstString("currency", "token")
	chain := p.String("chain")
	switch {
	case currency == "BTC":
		p.SetDefault("instructions", btcReceiveInstructions)
	case currency != "" && chain != "":
		p.SetDefault("instructions", fmt.Sprintf("Send %s on %s to this address. Network fees apply.", currency, chain))
	case currency != "":
		p.SetDefault("instructions", fmt.Sprintf("Send %s to this address. Network fees apply.", currency))
	default:
		p.SetDefault("instructions", genericReceiveInstructions)
	}
	return p
}

func normalizeTxStatus(p wallet.Payload) wallet.Payload {
	currency := p.String("currency")
	if sats, ok := p.Int("amount_sats"); ok && (currency == "" || currency == "BTC") {
		p.SetDefault("amount_btc", FormatSats(sats))
	}
	status := p.String("status")
	if status == StatusPendingApproval {
		p.SetDefault("next_steps", txPendingSteps)
	}
	if note, ok := terminalNotes[status]; ok {
		p.SetDefault("note", note)
	}
	return p
}

// normalizeBuckets mirrors an array under "data" as "buckets" and adds a
// count. The original keys are left in place.
func normalizeBuckets(p wallet.Payload) wallet.Payload {
	if data, ok := p["data"].([]any); ok {
		p.SetDefault("buckets", data)
	}
	if buckets, ok := p["buckets"].([]any); ok {
		p.SetDefault("count", len(buckets))
	}
	return p
}
