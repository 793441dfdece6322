// Package provider implements the external collaborator clients: the
// language model, the chain data providers, and their shared HTTP plumbing.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"solgate/internal/domain"
	"solgate/internal/metrics"
)

// OpenAI implements domain.LLM against an OpenAI-compatible
// chat-completions API.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
	Tools    []oaiTool    `json:"tools,omitempty"`
	// "auto" when tools are present, absent otherwise.
	ToolChoice string `json:"tool_choice,omitempty"`
}

type oaiMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls []oaiToolCall `json:"tool_calls,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaiToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function oaiToolCallFn `json:"function"`
}

type oaiToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// actionTools describes the four structured data actions the classifier may
// select. Argument names match the gateway's query parameters.
var actionTools = []oaiTool{
	fnTool("get_balance", "Get the balance of a Solana wallet",
		"address", "wallet address"),
	fnTool("get_transaction", "Get details for a Solana transaction by hash",
		"transactionHash", "transaction signature"),
	fnTool("get_pnl", "Get profit and loss summary for a wallet",
		"wallet", "wallet address"),
	fnTool("get_pnl_distribution", "Get PnL distribution buckets for a wallet",
		"wallet", "wallet address"),
}

func fnTool(name, description, arg, argDescription string) oaiTool {
	return oaiTool{
		Type: "function",
		Function: oaiFunction{
			Name:        name,
			Description: description,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					arg: map[string]any{
						"type":        "string",
						"description": argDescription,
					},
				},
				"required": []string{arg},
			},
		},
	}
}

const sqlSystemPrompt = `You are a SQL assistant for a Solana blockchain database.
Only respond with a single SELECT statement based on this schema.
Do NOT explain. Do NOT use markdown or backticks. Just return a query.

Schema:

transactions(id, transaction_hash, status, block_time, fee, signer, source, inserted_at)
instructions(id, transaction_id, program, instruction_type, from_address, to_address, lamports)
wallet_balances(id, address, balance_lamports, balance_sol, token, source, retrieved_at)`

const assistSystemPrompt = "You are a helpful Solana blockchain assistant. " +
	"If the user request is unclear or invalid, politely explain how they can correct it."

const pnlSystemPrompt = "You explain Solana wallet profit and loss (PnL) data in plain English " +
	"for non-technical users. Present a comprehensive PnL summary for the wallet with all details " +
	"and analytics. Be professional and not very technical."

const pnlDistributionSystemPrompt = "You explain Solana wallet PnL distribution buckets in plain " +
	"English for non-technical users. Present a concise summary of the distribution."

func (o *OpenAI) complete(ctx context.Context, msgs []oaiMessage, tools []oaiTool) (*oaiResponse, error) {
	req := oaiRequest{
		Model:    o.model,
		Messages: msgs,
		Tools:    tools,
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	buildReq := func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost,
			o.apiBase+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Authorization", "Bearer "+o.apiKey)
		return r, nil
	}

	metrics.LLMRequestsTotal.Inc()
	start := time.Now()
	resp, err := doWithRetry(ctx, o.client, buildReq, o.logger)
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}

	var out oaiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned %d: %s", resp.StatusCode, string(body))
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return &out, nil
}

func toOAI(history []domain.Message) []oaiMessage {
	msgs := make([]oaiMessage, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, oaiMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// ChooseAction asks the model to pick a structured action via tool choice.
// Returns (nil, content) when the model answered with plain text instead.
func (o *OpenAI) ChooseAction(ctx context.Context, history []domain.Message) (*domain.Action, string, error) {
	resp, err := o.complete(ctx, toOAI(history), actionTools)
	if err != nil {
		return nil, "", err
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return nil, strings.TrimSpace(msg.Content), nil
	}

	call := msg.ToolCalls[0]
	args := map[string]string{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			o.logger.Error("failed to parse tool call arguments",
				"tool", call.Function.Name, "error", err)
			args = map[string]string{}
		}
	}

	action := &domain.Action{
		Name: domain.ActionName(call.Function.Name),
		Args: args,
	}
	return action, strings.TrimSpace(msg.Content), nil
}

// GenerateQuery asks the model for a single schema-constrained SELECT. The
// result is raw model output: callers must pass it through the read-only gate
// before execution.
func (o *OpenAI) GenerateQuery(ctx context.Context, history []domain.Message) (string, error) {
	msgs := append([]oaiMessage{{Role: domain.RoleSystem, Content: sqlSystemPrompt}}, toOAI(history)...)
	resp, err := o.complete(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	o.logger.Debug("generated query", "sql", raw)
	return raw, nil
}

// Assist produces a conversational reply to a single prompt.
func (o *OpenAI) Assist(ctx context.Context, prompt string) (string, error) {
	msgs := []oaiMessage{
		{Role: domain.RoleSystem, Content: assistSystemPrompt},
		{Role: domain.RoleUser, Content: prompt},
	}
	resp, err := o.complete(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAI) summarize(ctx context.Context, system, label string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", label, err)
	}
	msgs := []oaiMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Summarize this %s JSON:\n%s", label, data)},
	}
	resp, err := o.complete(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// SummarizePnL renders a PnL payload as prose.
func (o *OpenAI) SummarizePnL(ctx context.Context, payload any) (string, error) {
	return o.summarize(ctx, pnlSystemPrompt, "PnL", payload)
}

// SummarizePnLDistribution renders distribution buckets as prose.
func (o *OpenAI) SummarizePnLDistribution(ctx context.Context, payload any) (string, error) {
	return o.summarize(ctx, pnlDistributionSystemPrompt, "PnL distribution", payload)
}
