package domain

import (
	"context"
	"encoding/json"
)

// ActionName identifies one of the structured data actions the LLM may select.
type ActionName string

const (
	ActionGetBalance         ActionName = "get_balance"
	ActionGetTransaction     ActionName = "get_transaction"
	ActionGetPnL             ActionName = "get_pnl"
	ActionGetPnLDistribution ActionName = "get_pnl_distribution"
)

// Action is a structured action chosen by the classifier, with its arguments.
type Action struct {
	Name ActionName        `json:"name"`
	Args map[string]string `json:"args"`
}

// LLM is the language-model collaborator. All methods are plain
// request/response; the core never streams.
type LLM interface {
	// ChooseAction classifies the conversation into one of the structured
	// actions, or returns nil with direct free-form text, or (nil, "").
	ChooseAction(ctx context.Context, history []Message) (*Action, string, error)
	// GenerateQuery produces a single read-only SQL statement constrained
	// to the known relations. The caller must gate it before execution.
	GenerateQuery(ctx context.Context, history []Message) (string, error)
	// Assist produces a conversational reply to a single prompt.
	Assist(ctx context.Context, prompt string) (string, error)
	// SummarizePnL renders a PnL payload as prose for non-technical users.
	SummarizePnL(ctx context.Context, payload any) (string, error)
	// SummarizePnLDistribution renders distribution buckets as prose.
	SummarizePnLDistribution(ctx context.Context, payload any) (string, error)
}

// ChainTransaction is the finalized metadata fetched after confirmation.
type ChainTransaction struct {
	BlockTime int64
	Fee       int64
}

// ChainClient is the blockchain collaborator used to broadcast signed
// transactions and query chain state.
type ChainClient interface {
	// SendTransaction submits a raw signed transaction and returns its
	// signature. The blob is forwarded unmodified.
	SendTransaction(ctx context.Context, signed []byte) (string, error)
	// AwaitConfirmation blocks until the signature reaches the configured
	// commitment level or the context expires.
	AwaitConfirmation(ctx context.Context, signature string) error
	// GetTransaction fetches finalized metadata for a confirmed signature.
	GetTransaction(ctx context.Context, signature string) (*ChainTransaction, error)
	// ExplorerURL returns a human-readable explorer reference.
	ExplorerURL(signature string) string
}

// BalancePayload is a live wallet balance from the data provider. Source
// names the provider that produced it.
type BalancePayload struct {
	Address  string
	Lamports int64
	Token    string
	Source   string
	Raw      json.RawMessage
}

// TransactionPayload is a live transaction lookup from the data provider.
type TransactionPayload struct {
	Hash      string
	Status    string
	BlockTime int64
	Fee       int64
	Signer    string
	Source    string
	Raw       json.RawMessage
}

// PnLToken is one per-token leg of a PnL breakdown.
type PnLToken struct {
	Symbol  string          `json:"symbol"`
	Details json.RawMessage `json:"details"`
}

// PnLOptions are passthrough query options for the PnL provider.
type PnLOptions struct {
	ShowHistoricPnL string
	HoldingCheck    string
	HideDetails     string
}

// PnLPayload is a live PnL summary plus its per-token breakdown.
type PnLPayload struct {
	Summary json.RawMessage
	Tokens  []PnLToken
	Source  string
	Raw     json.RawMessage
}

// MarketData is the live data-provider collaborator backing the read-through
// cache.
type MarketData interface {
	Balance(ctx context.Context, address string) (*BalancePayload, error)
	Transaction(ctx context.Context, hash string) (*TransactionPayload, error)
	PnL(ctx context.Context, wallet string, opts PnLOptions) (*PnLPayload, error)
}
