// Package data is the read-through data access layer. Balances and PnL are
// always fetched live and mirrored to the store; transactions are served from
// the store first because they are immutable once confirmed.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"solgate/internal/domain"
	"solgate/internal/metrics"
	"solgate/internal/store"
)

// Source tags for cached and mocked payloads; live payloads carry their
// provider's name.
const (
	SourceCache = "cache"
	SourceMock  = "mock"
)

// Service owns all cache rows: nothing else reads from or writes to the
// mirror tables.
type Service struct {
	store  *store.Store
	market domain.MarketData
	llm    domain.LLM
	logger *slog.Logger
}

func NewService(st *store.Store, market domain.MarketData, llm domain.LLM, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, market: market, llm: llm, logger: logger}
}

// BalanceResult is the provider-shaped balance payload plus its source tag.
type BalanceResult struct {
	Address  string          `json:"address"`
	Balance  float64         `json:"balance"`
	Lamports int64           `json:"balanceLamports"`
	Token    string          `json:"token"`
	Source   string          `json:"source"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Balance fetches the live balance and mirrors it to the store. The store is
// a durable mirror here, not a staleness-bounded cache: every call refreshes.
func (s *Service) Balance(ctx context.Context, address string, mock bool) (*BalanceResult, error) {
	if address == "" {
		return nil, domain.ClientInputf("wallet address is required")
	}
	if mock {
		return &BalanceResult{Address: address, Balance: 42.42, Token: "SOL", Source: SourceMock}, nil
	}

	payload, err := s.market.Balance(ctx, address)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpsertBalance(ctx, address, payload.Lamports, payload.Token, payload.Source); err != nil {
		return nil, fmt.Errorf("persist balance for %s: %w", address, err)
	}
	s.logger.Info("balance refreshed", "address", address, "lamports", payload.Lamports)

	return &BalanceResult{
		Address:  address,
		Balance:  float64(payload.Lamports) / domain.LamportsPerSOL,
		Lamports: payload.Lamports,
		Token:    payload.Token,
		Source:   payload.Source,
		Data:     payload.Raw,
	}, nil
}

// TransactionResult is the provider-shaped transaction payload plus source.
type TransactionResult struct {
	Hash      string          `json:"transactionHash"`
	Status    string          `json:"status"`
	BlockTime int64           `json:"blockTime"`
	Fee       int64           `json:"fee"`
	Signer    string          `json:"signer"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// mockTransaction mirrors the fixture the original API served.
var mockTransaction = json.RawMessage(`{
	"status": "confirmed",
	"blockTime": 1710000000,
	"fee": 5000,
	"signer": "MockSender111",
	"instructions": [
		{"program": "system", "type": "transfer", "from": "MockSender111", "to": "MockReceiver222", "lamports": 1000000}
	]
}`)

// Transaction serves from the store when possible (a confirmed transaction
// never changes, so a hit skips the live call entirely) and falls back to
// the provider on miss, caching the result.
func (s *Service) Transaction(ctx context.Context, hash string, mock bool) (*TransactionResult, error) {
	if hash == "" {
		return nil, domain.ClientInputf("transactionHash is required")
	}
	if mock {
		return &TransactionResult{
			Hash:      hash,
			Status:    "confirmed",
			BlockTime: 1710000000,
			Fee:       5000,
			Signer:    "MockSender111",
			Source:    SourceMock,
			Data:      mockTransaction,
		}, nil
	}

	cached, err := s.store.GetTransaction(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("read transaction cache for %s: %w", hash, err)
	}
	if cached != nil {
		metrics.CacheHits.Inc()
		s.logger.Info("transaction cache hit", "hash", hash)
		return &TransactionResult{
			Hash:      cached.Hash,
			Status:    cached.Status,
			BlockTime: cached.BlockTime,
			Fee:       cached.Fee,
			Signer:    cached.Signer,
			Source:    SourceCache,
		}, nil
	}

	s.logger.Info("transaction cache miss", "hash", hash)
	payload, err := s.market.Transaction(ctx, hash)
	if err != nil {
		return nil, err
	}

	err = s.store.UpsertTransaction(ctx, &store.TransactionRow{
		Hash:      hash,
		Status:    payload.Status,
		BlockTime: payload.BlockTime,
		Fee:       payload.Fee,
		Signer:    payload.Signer,
		Source:    payload.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("persist transaction %s: %w", hash, err)
	}

	return &TransactionResult{
		Hash:      hash,
		Status:    payload.Status,
		BlockTime: payload.BlockTime,
		Fee:       payload.Fee,
		Signer:    payload.Signer,
		Source:    payload.Source,
		Data:      payload.Raw,
	}, nil
}

// PnLResult is the refreshed summary, its token breakdown, and a prose
// rendering for the conversation.
type PnLResult struct {
	Wallet  string            `json:"wallet"`
	Summary json.RawMessage   `json:"summary"`
	Tokens  []domain.PnLToken `json:"tokens"`
	Source  string            `json:"source"`
	Message string            `json:"message,omitempty"`
}

// refreshPnL fetches live PnL, replaces the summary row, and fully reinserts
// the token breakdown so it can never go stale relative to its parent.
func (s *Service) refreshPnL(ctx context.Context, wallet string, opts domain.PnLOptions) (*domain.PnLPayload, int64, error) {
	payload, err := s.market.PnL(ctx, wallet, opts)
	if err != nil {
		return nil, 0, err
	}

	summaryID, err := s.store.UpsertPnLSummary(ctx, wallet, string(payload.Summary), payload.Source)
	if err != nil {
		return nil, 0, fmt.Errorf("persist PnL summary for %s: %w", wallet, err)
	}
	if err := s.store.ReplacePnLTokens(ctx, summaryID, wallet, payload.Tokens); err != nil {
		return nil, 0, fmt.Errorf("persist PnL tokens for %s: %w", wallet, err)
	}

	s.logger.Info("PnL refreshed", "wallet", wallet, "tokens", len(payload.Tokens))
	return payload, summaryID, nil
}

// PnL refreshes and summarizes wallet profit and loss.
func (s *Service) PnL(ctx context.Context, wallet string, opts domain.PnLOptions) (*PnLResult, error) {
	if wallet == "" {
		return nil, domain.ClientInputf("wallet is required")
	}

	payload, _, err := s.refreshPnL(ctx, wallet, opts)
	if err != nil {
		return nil, err
	}

	message, err := s.llm.SummarizePnL(ctx, payload.Summary)
	if err != nil {
		return nil, domain.ProviderErr("failed to summarize PnL", err)
	}

	return &PnLResult{
		Wallet:  wallet,
		Summary: payload.Summary,
		Tokens:  payload.Tokens,
		Source:  payload.Source,
		Message: message,
	}, nil
}

// DistributionResult is the bucketed PnL distribution plus prose rendering.
type DistributionResult struct {
	Wallet       string                     `json:"wallet"`
	Distribution []store.DistributionBucket `json:"distribution"`
	Source       string                     `json:"source"`
	Message      string                     `json:"message,omitempty"`
}

// PnLDistribution refreshes PnL and aggregates the per-token ratios into
// fixed buckets.
func (s *Service) PnLDistribution(ctx context.Context, wallet string) (*DistributionResult, error) {
	if wallet == "" {
		return nil, domain.ClientInputf("wallet is required")
	}

	payload, summaryID, err := s.refreshPnL(ctx, wallet, domain.PnLOptions{})
	if err != nil {
		return nil, err
	}

	distribution, err := s.store.PnLDistribution(ctx, summaryID)
	if err != nil {
		return nil, fmt.Errorf("aggregate PnL distribution for %s: %w", wallet, err)
	}

	message, err := s.llm.SummarizePnLDistribution(ctx, map[string]any{
		"wallet":       wallet,
		"distribution": distribution,
	})
	if err != nil {
		return nil, domain.ProviderErr("failed to summarize PnL distribution", err)
	}

	return &DistributionResult{
		Wallet:       wallet,
		Distribution: distribution,
		Source:       payload.Source,
		Message:      message,
	}, nil
}
