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

// TrackerSource tags rows and payloads fetched from SolanaTracker.
const TrackerSource = "solana-tracker"

// Tracker is the SolanaTracker client serving wallet PnL data. It is the
// other half of the domain.MarketData collaborator.
type Tracker struct {
	apiKey  string
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

type TrackerConfig struct {
	APIKey  string
	APIBase string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://data.solanatracker.io"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tracker{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

// PnL fetches the live profit-and-loss data for a wallet.
func (t *Tracker) PnL(ctx context.Context, wallet string, opts domain.PnLOptions) (*domain.PnLPayload, error) {
	q := url.Values{}
	if opts.ShowHistoricPnL != "" {
		q.Set("showHistoricPnL", opts.ShowHistoricPnL)
	}
	if opts.HoldingCheck != "" {
		q.Set("holdingCheck", opts.HoldingCheck)
	}
	if opts.HideDetails != "" {
		q.Set("hideDetails", opts.HideDetails)
	}

	endpoint := t.apiBase + "/pnl/" + url.PathEscape(wallet)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	buildReq := func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", "application/json")
		r.Header.Set("X-API-Key", t.apiKey)
		return r, nil
	}

	t.logger.Info("fetching live PnL", "wallet", wallet, "provider", TrackerSource)
	resp, err := doWithRetry(ctx, t.client, buildReq, t.logger)
	if err != nil {
		return nil, domain.ProviderErr("failed to fetch PnL", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ProviderErr("failed to fetch PnL", err)
	}

	var parsed struct {
		Summary json.RawMessage `json:"summary"`
		Tokens  json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || resp.StatusCode >= 400 {
		return nil, domain.ProviderErr("failed to fetch PnL",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	summary := parsed.Summary
	if len(summary) == 0 {
		// Some responses omit the summary wrapper; mirror the whole body.
		summary = json.RawMessage(body)
	}

	tokens, err := normalizeTokens(parsed.Tokens)
	if err != nil {
		return nil, domain.ProviderErr("failed to parse PnL tokens", err)
	}

	return &domain.PnLPayload{
		Summary: summary,
		Tokens:  tokens,
		Source:  TrackerSource,
		Raw:     json.RawMessage(body),
	}, nil
}

// normalizeTokens accepts the provider's two token-breakdown shapes: a plain
// array of token objects, or an object keyed by token address.
func normalizeTokens(raw json.RawMessage) ([]domain.PnLToken, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		tokens := make([]domain.PnLToken, 0, len(asList))
		for _, item := range asList {
			tokens = append(tokens, domain.PnLToken{
				Symbol:  tokenSymbol(item, ""),
				Details: item,
			})
		}
		return tokens, nil
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("unrecognized tokens shape: %w", err)
	}
	tokens := make([]domain.PnLToken, 0, len(asMap))
	for addr, item := range asMap {
		tokens = append(tokens, domain.PnLToken{
			Symbol:  tokenSymbol(item, addr),
			Details: item,
		})
	}
	return tokens, nil
}

// tokenSymbol picks the best available symbol field, falling back to the map
// key (token address) when the object carries none.
func tokenSymbol(details json.RawMessage, fallback string) string {
	var fields struct {
		Symbol      string `json:"symbol"`
		TokenSymbol string `json:"tokenSymbol"`
		Token       string `json:"token"`
	}
	if err := json.Unmarshal(details, &fields); err == nil {
		switch {
		case fields.Symbol != "":
			return fields.Symbol
		case fields.TokenSymbol != "":
			return fields.TokenSymbol
		case fields.Token != "":
			return fields.Token
		}
	}
	return fallback
}
