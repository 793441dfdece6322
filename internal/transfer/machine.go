// Package transfer drives the guarded two-phase transfer workflow: an intent
// must be confirmed conversationally before it is prepared, and all monetary
// figures used for broadcast and persistence are derived server-side.
package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"solgate/internal/domain"
	"solgate/internal/intent"
	"solgate/internal/metrics"
	"solgate/internal/session"
	"solgate/internal/store"
)

// ErrTransferPending is returned when a new transfer intent arrives while the
// conversation already holds one awaiting confirmation.
var ErrTransferPending = errors.New("a transfer is already awaiting confirmation")

// ReplyKind classifies the outcome of a confirmation-phase reply.
type ReplyKind int

const (
	ReplyConfirmed ReplyKind = iota
	ReplyCancelled
	ReplyReprompt
)

// ReplyResult is the conversational outcome of handling a message while a
// transfer is awaiting confirmation.
type ReplyResult struct {
	Kind     ReplyKind
	Message  string
	Prepared *domain.PreparedTransfer
}

// SendResult reports a broadcast transfer after it has been recorded.
type SendResult struct {
	Signature   string
	ExplorerURL string
	Message     string
}

// Machine owns the transfer lifecycle for every conversation. The pending
// record lives in the session store keyed by conversation id; the chain
// client and ledger store are only touched once a transfer is confirmed.
type Machine struct {
	sessions     session.Store
	store        *store.Store
	chain        domain.ChainClient
	logger       *slog.Logger
	estimatedFee int64
}

func NewMachine(sessions session.Store, st *store.Store, chain domain.ChainClient, estimatedFee int64, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		sessions:     sessions,
		store:        st,
		chain:        chain,
		logger:       logger,
		estimatedFee: estimatedFee,
	}
}

// Begin registers a parsed intent and returns the confirmation prompt. A
// conversation holds at most one in-flight transfer: a new intent while one
// is still awaiting confirmation is rejected and the existing prompt
// re-issued so the user resolves it first.
func (m *Machine) Begin(conversationID string, it *domain.TransferIntent) (string, error) {
	if pending := m.sessions.Pending(conversationID); pending != nil && pending.State == domain.StateAwaitingConfirmation {
		return intent.ConfirmationMessage(&pending.Intent), ErrTransferPending
	}

	ok := m.sessions.SetPending(conversationID, &domain.PendingTransfer{
		Intent: *it,
		State:  domain.StateAwaitingConfirmation,
	})
	if !ok {
		return "", domain.ClientInputf("unknown conversation %q", conversationID)
	}
	metrics.PendingConfirmations.Inc()
	m.logger.Info("transfer intent captured",
		"conversation", conversationID,
		"amount", it.Amount,
		"recipient", it.RecipientAddress)
	return intent.ConfirmationMessage(it), nil
}

// Reply consumes a user message while a transfer is awaiting confirmation.
// "yes" confirms and prepares the transfer, "no" cancels it, anything else
// leaves the pending record untouched and re-asks.
func (m *Machine) Reply(conversationID, text string) (*ReplyResult, error) {
	pending := m.sessions.Pending(conversationID)
	if pending == nil || pending.State != domain.StateAwaitingConfirmation {
		return nil, domain.TransferErr("no transfer awaiting confirmation", nil)
	}

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes":
		metrics.PendingConfirmations.Dec()
		if err := m.validateIntent(&pending.Intent); err != nil {
			m.sessions.ClearPending(conversationID)
			return nil, err
		}
		if !pending.State.CanTransition(domain.StateConfirmed) {
			return nil, domain.TransferErr(fmt.Sprintf("illegal transition from %s", pending.State), nil)
		}
		pending.State = domain.StateConfirmed

		prepared := m.buildPrepared(pending.Intent.Amount, pending.Intent.RecipientAddress, "")
		pending.State = domain.StatePrepared
		pending.Prepared = prepared
		m.sessions.SetPending(conversationID, pending)

		m.logger.Info("transfer confirmed",
			"conversation", conversationID,
			"lamports", prepared.Lamports)
		return &ReplyResult{
			Kind: ReplyConfirmed,
			Message: fmt.Sprintf("Prepared transfer: %s SOL (%d lamports) to %s. Submit the signed transaction to complete it.",
				domain.FormatSOL(prepared.Amount), prepared.Lamports, prepared.To),
			Prepared: prepared,
		}, nil

	case "no":
		metrics.PendingConfirmations.Dec()
		pending.State = domain.StateCancelled
		m.sessions.ClearPending(conversationID)
		m.logger.Info("transfer cancelled", "conversation", conversationID)
		return &ReplyResult{
			Kind:    ReplyCancelled,
			Message: "Transfer cancelled.",
		}, nil

	default:
		return &ReplyResult{
			Kind:    ReplyReprompt,
			Message: intent.ConfirmationMessage(&pending.Intent),
		}, nil
	}
}

// Prepare derives the broadcast-ready payload directly, for clients that
// confirmed out of band. When the conversation is known the prepared record
// is attached to it so Send never has to trust client-echoed figures.
func (m *Machine) Prepare(conversationID string, amount float64, recipient, sender string) (*domain.PreparedTransfer, error) {
	if err := m.validateIntent(&domain.TransferIntent{Amount: amount, RecipientAddress: recipient}); err != nil {
		return nil, err
	}

	prepared := m.buildPrepared(amount, recipient, sender)
	if conversationID != "" {
		ok := m.sessions.SetPending(conversationID, &domain.PendingTransfer{
			Intent:   domain.TransferIntent{Amount: amount, RecipientAddress: recipient},
			State:    domain.StatePrepared,
			Prepared: prepared,
		})
		if !ok {
			return nil, domain.ClientInputf("unknown conversation %q", conversationID)
		}
	}
	return prepared, nil
}

// Send broadcasts a signed transaction, waits for on-chain confirmation, and
// records the transfer. Nothing is written to the ledger unless the chain
// accepted and confirmed the transaction.
func (m *Machine) Send(ctx context.Context, conversationID, signedBase64 string, amount float64, to, from string) (*SendResult, error) {
	if signedBase64 == "" {
		return nil, domain.ClientInputf("signedTransaction is required")
	}

	// Broadcast is only reachable from prepared. A conversation still
	// negotiating its transfer keeps the pending record and gets a hard
	// error; input-level failures below likewise leave it untouched.
	pending := m.sessions.Pending(conversationID)
	if pending != nil && !pending.State.CanTransition(domain.StateBroadcast) {
		return nil, domain.TransferErr(
			fmt.Sprintf("transfer is not ready to broadcast (state %s)", pending.State), nil)
	}

	signed, err := base64.StdEncoding.DecodeString(signedBase64)
	if err != nil {
		return nil, domain.TransferErr("signedTransaction is not valid base64", err)
	}

	// Server-held figures win over whatever the client echoed back.
	lamports := domain.SolToLamports(amount)
	if pending != nil && pending.Prepared != nil {
		amount = pending.Prepared.Amount
		lamports = pending.Prepared.Lamports
		if pending.Prepared.To != "" {
			to = pending.Prepared.To
		}
		if pending.Prepared.From != "" {
			from = pending.Prepared.From
		}
	}
	if to == "" {
		return nil, domain.ClientInputf("recipient address is required")
	}

	signature, err := m.chain.SendTransaction(ctx, signed)
	if err != nil {
		m.sessions.ClearPending(conversationID)
		return nil, domain.TransferErr("failed to broadcast transaction", err)
	}
	if pending != nil {
		pending.State = domain.StateBroadcast
		m.sessions.SetPending(conversationID, pending)
	}
	m.logger.Info("transaction broadcast", "conversation", conversationID, "signature", signature)

	if err := m.chain.AwaitConfirmation(ctx, signature); err != nil {
		m.sessions.ClearPending(conversationID)
		return nil, domain.TransferErr("transaction was not confirmed", err)
	}

	// Metadata fetch is best effort: the transfer already succeeded on
	// chain, so a lookup failure must not fail the request.
	var blockTime, fee int64
	if meta, err := m.chain.GetTransaction(ctx, signature); err != nil {
		m.logger.Warn("confirmed transaction metadata unavailable",
			"signature", signature, "error", err)
	} else {
		blockTime = meta.BlockTime
		fee = meta.Fee
	}

	err = m.store.RecordTransfer(ctx, &store.TransferRecord{
		Signature: signature,
		BlockTime: blockTime,
		Fee:       fee,
		From:      from,
		To:        to,
		Lamports:  lamports,
	})
	if err != nil {
		m.sessions.ClearPending(conversationID)
		return nil, domain.TransferErr("failed to record transfer", err)
	}

	m.sessions.ClearPending(conversationID)
	metrics.TransfersTotal.Inc()

	explorer := m.chain.ExplorerURL(signature)
	message := fmt.Sprintf("✅ Sent %s SOL to %s. Tx signature: %s. View it at %s",
		domain.FormatSOL(amount), to, signature, explorer)
	if ok := m.sessions.Append(conversationID, domain.AssistantMessage(message)); !ok {
		m.logger.Warn("conversation gone before transfer record", "conversation", conversationID)
	}

	m.logger.Info("transfer recorded",
		"conversation", conversationID,
		"signature", signature,
		"lamports", lamports)
	return &SendResult{Signature: signature, ExplorerURL: explorer, Message: message}, nil
}

func (m *Machine) validateIntent(it *domain.TransferIntent) error {
	if it.Amount <= 0 {
		return domain.ClientInputf("transfer amount must be greater than zero")
	}
	if it.RecipientAddress == "" {
		return domain.ClientInputf("recipient address is required")
	}
	return nil
}

func (m *Machine) buildPrepared(amount float64, recipient, sender string) *domain.PreparedTransfer {
	return &domain.PreparedTransfer{
		Type:         "sol_transfer",
		From:         sender,
		To:           recipient,
		Amount:       amount,
		Lamports:     domain.SolToLamports(amount),
		EstimatedFee: m.estimatedFee,
		Status:       "prepared",
	}
}
