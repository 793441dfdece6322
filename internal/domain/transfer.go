package domain

import (
	"math"
	"strconv"
)

// LamportsPerSOL is the number of indivisible base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// SolToLamports converts a decimal SOL amount to lamports, rounding down.
// The conversion always happens server-side; a client-echoed lamport figure
// is never trusted for ledger writes.
func SolToLamports(amount float64) int64 {
	return int64(math.Floor(amount * LamportsPerSOL))
}

// FormatSOL renders a SOL amount without trailing zeros ("0.5", "2").
func FormatSOL(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// TransferState tracks a conversation's transfer through its lifecycle.
type TransferState string

const (
	StateIdle                 TransferState = "idle"
	StateAwaitingConfirmation TransferState = "awaiting_confirmation"
	StateConfirmed            TransferState = "confirmed"
	StatePrepared             TransferState = "prepared"
	StateBroadcast            TransferState = "broadcast"
	StateRecorded             TransferState = "recorded"
	StateCancelled            TransferState = "cancelled"
)

// transitions is the exhaustive set of legal state changes. Broadcast is only
// reachable from prepared, recorded only from broadcast; everything else is a
// programming error surfaced at runtime.
var transitions = map[TransferState][]TransferState{
	StateIdle:                 {StateAwaitingConfirmation, StatePrepared},
	StateAwaitingConfirmation: {StateConfirmed, StateCancelled},
	StateConfirmed:            {StatePrepared, StateCancelled},
	StatePrepared:             {StateBroadcast, StateCancelled},
	StateBroadcast:            {StateRecorded, StateCancelled},
	StateRecorded:             {},
	StateCancelled:            {},
}

// CanTransition reports whether moving from s to next is legal.
func (s TransferState) CanTransition(next TransferState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s TransferState) Terminal() bool {
	return len(transitions[s]) == 0
}

// TransferIntent is a parsed, unconfirmed request to move SOL. It exists only
// while pending for a conversation and is never persisted before broadcast.
type TransferIntent struct {
	Amount           float64 `json:"amount"`
	RecipientAddress string  `json:"recipientAddress"`
}

// PreparedTransfer is the fully derived transfer payload handed to the
// external signing agent. Lamports and fee are computed server-side.
type PreparedTransfer struct {
	Type         string  `json:"type"`
	From         string  `json:"from,omitempty"`
	To           string  `json:"to"`
	Amount       float64 `json:"amount"`
	Lamports     int64   `json:"lamports"`
	EstimatedFee int64   `json:"estimatedFee"`
	Status       string  `json:"status"`
}

// PendingTransfer is the conversation-scoped lifecycle record for the single
// in-flight transfer a conversation may hold. Owned by the session store.
type PendingTransfer struct {
	Intent   TransferIntent
	State    TransferState
	Prepared *PreparedTransfer
}
