package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindClientInput, KindOf(ClientInputf("missing address")))
	assert.Equal(t, KindProvider, KindOf(ProviderErr("upstream down", errors.New("boom"))))
	assert.Equal(t, KindValidationGate, KindOf(GateFailuref("not a select")))
	assert.Equal(t, KindTransfer, KindOf(TransferErr("broadcast failed", nil)))
	assert.Equal(t, KindUnhandled, KindOf(errors.New("raw")))
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("handling turn: %w", ClientInputf("bad input"))
	assert.Equal(t, KindClientInput, KindOf(err))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := ProviderErr("balance fetch failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "balance fetch failed")
	assert.Contains(t, err.Error(), "connection refused")
}
