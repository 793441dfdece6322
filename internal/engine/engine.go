// Package engine runs the conversational turn pipeline: each user message is
// routed to exactly one of the transfer workflow, a structured data action, or
// the guarded free-form SQL path, and the reply is appended to the history.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"solgate/internal/data"
	"solgate/internal/domain"
	"solgate/internal/intent"
	"solgate/internal/metrics"
	"solgate/internal/session"
	"solgate/internal/store"
	"solgate/internal/transfer"
)

const (
	emptyPromptInstruction = "The user submitted an empty prompt. Ask them to provide a question about Solana."
	fallbackApology        = "Sorry, something went wrong while handling your request. Please try again."
)

// TurnResult is everything a channel needs to render one handled turn.
type TurnResult struct {
	ConversationID string                 `json:"conversationId"`
	Message        string                 `json:"message"`
	Action         string                 `json:"action,omitempty"`
	TransferIntent *domain.TransferIntent `json:"transferIntent,omitempty"`
	Payload        any                    `json:"data,omitempty"`
	Failed         bool                   `json:"-"`
}

// Engine wires the session store, data layer, transfer machine, and LLM into
// a single HandleTurn entry point shared by the HTTP gateway and channels.
type Engine struct {
	sessions session.Store
	dataSvc  *data.Service
	machine  *transfer.Machine
	llm      domain.LLM
	store    *store.Store
	logger   *slog.Logger
}

func New(sessions session.Store, dataSvc *data.Service, machine *transfer.Machine, llm domain.LLM, st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sessions: sessions,
		dataSvc:  dataSvc,
		machine:  machine,
		llm:      llm,
		store:    st,
		logger:   logger,
	}
}

// HandleTurn processes one user turn. A missing or unknown conversation id
// starts a fresh conversation; the returned id must be echoed by the client
// to continue it.
func (e *Engine) HandleTurn(ctx context.Context, conversationID, text string) *TurnResult {
	text = strings.TrimSpace(text)

	id := conversationID
	if id != "" {
		if _, ok := e.sessions.Get(id); !ok {
			id = ""
		}
	}
	if id == "" {
		id = e.sessions.Create(nil)
	}
	if text != "" {
		e.sessions.Append(id, domain.UserMessage(text))
	}

	metrics.TurnsTotal.Inc()
	result := e.route(ctx, id, text)
	if result.Failed {
		metrics.TurnFailures.Inc()
	}
	result.ConversationID = id
	return result
}

func (e *Engine) route(ctx context.Context, id, text string) *TurnResult {
	if text == "" {
		return e.reply(ctx, id, emptyPromptInstruction, "")
	}

	// A pending confirmation captures the whole turn before anything else
	// gets to interpret the text.
	if pending := e.sessions.Pending(id); pending != nil && pending.State == domain.StateAwaitingConfirmation {
		return e.confirmationTurn(ctx, id, text)
	}

	if it := intent.ParseTransferIntent(text); it != nil {
		return e.transferTurn(id, it)
	}

	action, content, err := e.llm.ChooseAction(ctx, e.history(id))
	if err != nil {
		return e.apologize(ctx, id, err)
	}
	if action != nil {
		return e.actionTurn(ctx, id, action)
	}
	if content != "" {
		e.sessions.Append(id, domain.AssistantMessage(content))
		return &TurnResult{Message: content}
	}

	return e.queryTurn(ctx, id, text)
}

func (e *Engine) confirmationTurn(ctx context.Context, id, text string) *TurnResult {
	res, err := e.machine.Reply(id, text)
	if err != nil {
		return e.apologize(ctx, id, err)
	}
	e.sessions.Append(id, domain.AssistantMessage(res.Message))

	out := &TurnResult{Message: res.Message, Action: "transfer"}
	if res.Prepared != nil {
		out.Payload = res.Prepared
	}
	return out
}

func (e *Engine) transferTurn(id string, it *domain.TransferIntent) *TurnResult {
	prompt, err := e.machine.Begin(id, it)
	if err == transfer.ErrTransferPending {
		e.logger.Info("transfer intent rejected while one pending", "conversation", id)
	} else if err != nil {
		return &TurnResult{Message: fallbackApology, Failed: true}
	}
	e.sessions.Append(id, domain.AssistantMessage(prompt))
	return &TurnResult{Message: prompt, Action: "transfer", TransferIntent: it}
}

func (e *Engine) actionTurn(ctx context.Context, id string, action *domain.Action) *TurnResult {
	metrics.ActionsTotal.Inc()
	switch action.Name {
	case domain.ActionGetBalance:
		res, err := e.dataSvc.Balance(ctx, action.Args["address"], false)
		if err != nil {
			return e.apologize(ctx, id, err)
		}
		return e.payloadTurn(id, string(action.Name), res, renderJSON(res))

	case domain.ActionGetTransaction:
		res, err := e.dataSvc.Transaction(ctx, action.Args["transactionHash"], false)
		if err != nil {
			return e.apologize(ctx, id, err)
		}
		return e.payloadTurn(id, string(action.Name), res, renderJSON(res))

	case domain.ActionGetPnL:
		res, err := e.dataSvc.PnL(ctx, action.Args["wallet"], domain.PnLOptions{})
		if err != nil {
			return e.apologize(ctx, id, err)
		}
		return e.payloadTurn(id, string(action.Name), res, res.Message)

	case domain.ActionGetPnLDistribution:
		res, err := e.dataSvc.PnLDistribution(ctx, action.Args["wallet"])
		if err != nil {
			return e.apologize(ctx, id, err)
		}
		return e.payloadTurn(id, string(action.Name), res, res.Message)

	default:
		return e.apologize(ctx, id, domain.ClientInputf("unknown action %q", action.Name))
	}
}

// queryTurn is the free-form path: ask the LLM for a read-only SQL statement,
// gate it, run it, and fall back to a live lookup on an empty result set.
func (e *Engine) queryTurn(ctx context.Context, id, text string) *TurnResult {
	query, err := e.llm.GenerateQuery(ctx, e.history(id))
	if err != nil {
		return e.apologize(ctx, id, err)
	}
	query = strings.TrimSpace(query)

	if !store.IsReadOnlyQuery(query) {
		prompt := fmt.Sprintf("I couldn't generate a valid query for: %q. Please rephrase your request.", text)
		return e.reply(ctx, id, prompt, "")
	}

	rows, err := e.store.RunReadOnly(ctx, query)
	if err != nil {
		return e.apologize(ctx, id, err)
	}

	if len(rows) == 0 {
		if res := e.liveFallback(ctx, id, query); res != nil {
			return res
		}
		msg := "I didn't find any matching data."
		e.sessions.Append(id, domain.AssistantMessage(msg))
		return &TurnResult{Message: msg, Action: "query"}
	}

	return e.payloadTurn(id, "query", rows, renderJSON(rows))
}

var (
	balanceQueryAddress = regexp.MustCompile(`(?is)wallet_balances.*address\s*=\s*'([^']+)'`)
	txQueryHash         = regexp.MustCompile(`(?is)\btransactions\b.*transaction_hash\s*=\s*'([^']+)'`)
)

// liveFallback recognizes single-entity lookups that missed the cache and
// fetches them live instead of answering with an empty result set. Best
// effort: any failure falls through to the generic empty reply.
func (e *Engine) liveFallback(ctx context.Context, id, query string) *TurnResult {
	if m := balanceQueryAddress.FindStringSubmatch(query); m != nil {
		res, err := e.dataSvc.Balance(ctx, m[1], false)
		if err != nil {
			e.logger.Warn("live balance fallback failed", "address", m[1], "error", err)
			return nil
		}
		return e.payloadTurn(id, string(domain.ActionGetBalance), res, renderJSON(res))
	}
	if m := txQueryHash.FindStringSubmatch(query); m != nil {
		res, err := e.dataSvc.Transaction(ctx, m[1], false)
		if err != nil {
			e.logger.Warn("live transaction fallback failed", "hash", m[1], "error", err)
			return nil
		}
		return e.payloadTurn(id, string(domain.ActionGetTransaction), res, renderJSON(res))
	}
	return nil
}

// reply runs a one-off prompt through the assistant and appends the answer.
func (e *Engine) reply(ctx context.Context, id, prompt, action string) *TurnResult {
	msg, err := e.llm.Assist(ctx, prompt)
	if err != nil || strings.TrimSpace(msg) == "" {
		msg = prompt
	}
	e.sessions.Append(id, domain.AssistantMessage(msg))
	return &TurnResult{Message: msg, Action: action}
}

func (e *Engine) payloadTurn(id, action string, payload any, message string) *TurnResult {
	e.sessions.Append(id, domain.AssistantMessage(message))
	return &TurnResult{Message: message, Action: action, Payload: payload}
}

// apologize turns any pipeline error into a conversational reply so channel
// users never see a bare stack of error strings. The turn is still marked
// failed for the HTTP surface to map onto a status code.
func (e *Engine) apologize(ctx context.Context, id string, cause error) *TurnResult {
	e.logger.Error("turn failed", "conversation", id, "kind", domain.KindOf(cause), "error", cause)

	msg, err := e.llm.Assist(ctx, "An error occurred: "+cause.Error()+". Apologize briefly and suggest what the user can try instead.")
	if err != nil || strings.TrimSpace(msg) == "" {
		msg = fallbackApology
	}
	e.sessions.Append(id, domain.AssistantMessage(msg))
	return &TurnResult{Message: msg, Failed: true}
}

func (e *Engine) history(id string) []domain.Message {
	msgs, _ := e.sessions.Get(id)
	return msgs
}

func renderJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return strconv.Quote(fmt.Sprint(v))
	}
	return string(b)
}
