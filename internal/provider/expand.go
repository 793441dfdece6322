package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"solgate/internal/domain"
)

// ExpandSource tags rows and payloads fetched from Expand.Network.
const ExpandSource = "expand-network"

// solanaChainID is Expand.Network's identifier for the Solana chain.
const solanaChainID = "900"

// Expand is the Expand.Network client serving balance and transaction
// lookups. It is one half of the domain.MarketData collaborator.
type Expand struct {
	apiKey  string
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

type ExpandConfig struct {
	APIKey  string
	APIBase string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewExpand(cfg ExpandConfig) *Expand {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.expand.network"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Expand{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (e *Expand) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	buildReq := func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet,
			e.apiBase+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", "application/json")
		r.Header.Set("X-API-Key", e.apiKey)
		return r, nil
	}

	resp, err := doWithRetry(ctx, e.client, buildReq, e.logger)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Balance fetches the live lamport balance for a wallet address.
func (e *Expand) Balance(ctx context.Context, address string) (*domain.BalancePayload, error) {
	q := url.Values{}
	q.Set("chainId", solanaChainID)
	q.Set("address", address)

	e.logger.Info("fetching live balance", "address", address, "provider", ExpandSource)
	body, status, err := e.get(ctx, "/chain/getbalance", q)
	if err != nil {
		return nil, domain.ProviderErr("failed to fetch balance", err)
	}

	// Provider responses vary in shape; the balance may live at data.balance
	// or at the top level.
	var parsed struct {
		Error json.RawMessage `json:"error"`
		Data  struct {
			Balance json.Number `json:"balance"`
		} `json:"data"`
		Balance json.Number `json:"balance"`
		Token   string      `json:"token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || status >= 400 {
		return nil, domain.ProviderErr("failed to fetch balance",
			fmt.Errorf("status %d: %s", status, string(body)))
	}
	if len(parsed.Error) > 0 && string(parsed.Error) != "null" {
		return nil, domain.ProviderErr("failed to fetch balance",
			fmt.Errorf("provider error: %s", string(parsed.Error)))
	}

	lamports, _ := parsed.Data.Balance.Int64()
	if lamports == 0 && parsed.Balance != "" {
		lamports, _ = parsed.Balance.Int64()
	}
	token := parsed.Token
	if token == "" {
		token = "SOL"
	}

	return &domain.BalancePayload{
		Address:  address,
		Lamports: lamports,
		Token:    token,
		Source:   ExpandSource,
		Raw:      json.RawMessage(body),
	}, nil
}

// Transaction fetches a transaction by signature.
func (e *Expand) Transaction(ctx context.Context, hash string) (*domain.TransactionPayload, error) {
	q := url.Values{}
	q.Set("chainId", solanaChainID)
	q.Set("transactionHash", hash)

	e.logger.Info("fetching live transaction", "hash", hash, "provider", ExpandSource)
	body, status, err := e.get(ctx, "/chain/gettransaction", q)
	if err != nil {
		return nil, domain.ProviderErr("failed to fetch transaction", err)
	}

	var parsed struct {
		Data *struct {
			TransactionStatus json.RawMessage `json:"transactionStatus"`
			Timestamp         json.Number     `json:"timestamp"`
			TransactionFees   json.Number     `json:"transactionFees"`
			From              string          `json:"from"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Data == nil || status >= 400 {
		return nil, domain.ProviderErr("failed to fetch transaction",
			fmt.Errorf("status %d: %s", status, string(body)))
	}

	blockTime, _ := parsed.Data.Timestamp.Int64()
	fee, _ := parsed.Data.TransactionFees.Int64()

	return &domain.TransactionPayload{
		Hash:      hash,
		Status:    string(parsed.Data.TransactionStatus),
		BlockTime: blockTime,
		Fee:       fee,
		Signer:    parsed.Data.From,
		Source:    ExpandSource,
		Raw:       json.RawMessage(body),
	}, nil
}
