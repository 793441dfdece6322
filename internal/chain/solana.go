// Package chain implements the Solana JSON-RPC collaborator: broadcasting
// signed transactions, awaiting commitment, and fetching finalized metadata.
package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"solgate/internal/domain"
)

// Client talks JSON-RPC 2.0 to a Solana node.
type Client struct {
	endpoint       string
	cluster        string
	commitment     string
	confirmTimeout time.Duration
	pollInterval   time.Duration
	client         *http.Client
	logger         *slog.Logger
}

type Config struct {
	RPCURL         string
	Cluster        string
	Commitment     string
	ConfirmTimeout time.Duration
	Client         *http.Client
	Logger         *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.RPCURL == "" {
		cfg.RPCURL = "https://api.devnet.solana.com"
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "devnet"
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		endpoint:       cfg.RPCURL,
		cluster:        cfg.Cluster,
		commitment:     cfg.Commitment,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   2 * time.Second,
		client:         cfg.Client,
		logger:         cfg.Logger,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s: %w", method, envelope.Error)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// SendTransaction submits a raw signed transaction, base64-encoded on the
// wire, and returns its signature. The blob is forwarded unmodified.
func (c *Client) SendTransaction(ctx context.Context, signed []byte) (string, error) {
	var signature string
	params := []any{
		base64.StdEncoding.EncodeToString(signed),
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": c.commitment,
		},
	}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	c.logger.Info("transaction submitted", "signature", signature)
	return signature, nil
}

// AwaitConfirmation polls signature status until the configured commitment
// level is reached. A transaction is never treated as successful before this
// returns nil.
func (c *Client) AwaitConfirmation(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.signatureStatus(ctx, signature)
		if err != nil {
			return err
		}
		if status != nil {
			if status.Err != nil && string(status.Err) != "null" {
				return fmt.Errorf("transaction %s failed on chain: %s", signature, string(status.Err))
			}
			if commitmentReached(status.ConfirmationStatus, c.commitment) {
				c.logger.Info("transaction confirmed",
					"signature", signature, "commitment", status.ConfirmationStatus)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation timed out for %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

type signatureStatus struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

func (c *Client) signatureStatus(ctx context.Context, signature string) (*signatureStatus, error) {
	var result struct {
		Value []*signatureStatus `json:"value"`
	}
	params := []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": true},
	}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// commitmentReached treats finalized as satisfying confirmed, and both as
// satisfying processed.
func commitmentReached(status, want string) bool {
	rank := map[string]int{"processed": 0, "confirmed": 1, "finalized": 2}
	got, ok := rank[status]
	if !ok {
		return false
	}
	return got >= rank[want]
}

// GetTransaction fetches block time and fee for a confirmed signature.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*domain.ChainTransaction, error) {
	var result struct {
		BlockTime int64 `json:"blockTime"`
		Meta      struct {
			Fee int64 `json:"fee"`
		} `json:"meta"`
	}
	params := []any{
		signature,
		map[string]any{
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return &domain.ChainTransaction{BlockTime: result.BlockTime, Fee: result.Meta.Fee}, nil
}

// ExplorerURL returns the human-readable explorer reference for a signature.
func (c *Client) ExplorerURL(signature string) string {
	url := "https://explorer.solana.com/tx/" + signature
	if c.cluster != "mainnet-beta" {
		url += "?cluster=" + c.cluster
	}
	return url
}
