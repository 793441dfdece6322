package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the gateway boundary can map it to a transport
// status without inspecting error strings.
type Kind string

const (
	// KindClientInput marks a missing or invalid request parameter,
	// detected before any external call is made.
	KindClientInput Kind = "client_input"
	// KindProvider marks an external data source returning an empty or
	// error payload.
	KindProvider Kind = "provider"
	// KindValidationGate marks a generated query rejected by the read-only
	// gate; the query is never executed.
	KindValidationGate Kind = "validation_gate"
	// KindTransfer marks a broadcast or confirmation failure; the pending
	// intent is cleared and nothing is persisted.
	KindTransfer Kind = "transfer"
	// KindUnhandled is everything else, caught at the turn boundary.
	KindUnhandled Kind = "unhandled"
)

// Error is a classified failure. It wraps an underlying cause when one exists.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ClientInputf builds a client-input error.
func ClientInputf(format string, args ...any) *Error {
	return &Error{Kind: KindClientInput, Msg: fmt.Sprintf(format, args...)}
}

// ProviderErr wraps an upstream failure as a retrieval error.
func ProviderErr(msg string, err error) *Error {
	return &Error{Kind: KindProvider, Msg: msg, Err: err}
}

// GateFailuref builds a validation-gate rejection.
func GateFailuref(format string, args ...any) *Error {
	return &Error{Kind: KindValidationGate, Msg: fmt.Sprintf(format, args...)}
}

// TransferErr wraps a transfer-pipeline failure.
func TransferErr(msg string, err error) *Error {
	return &Error{Kind: KindTransfer, Msg: msg, Err: err}
}

// KindOf extracts the classification from an error chain, defaulting to
// KindUnhandled for raw faults.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnhandled
}
