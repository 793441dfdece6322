package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSolToLamports(t *testing.T) {
	assert.Equal(t, int64(500_000_000), SolToLamports(0.5))
	assert.Equal(t, int64(2_000_000_000), SolToLamports(2))
	assert.Equal(t, int64(0), SolToLamports(0))
	// rounds down, never up
	assert.Equal(t, int64(1), SolToLamports(0.0000000019))
}

func TestFormatSOL(t *testing.T) {
	assert.Equal(t, "0.5", FormatSOL(0.5))
	assert.Equal(t, "2", FormatSOL(2))
	assert.Equal(t, "1.25", FormatSOL(1.25))
}

func TestTransferStateTransitions(t *testing.T) {
	assert.True(t, StateIdle.CanTransition(StateAwaitingConfirmation))
	assert.True(t, StateAwaitingConfirmation.CanTransition(StateConfirmed))
	assert.True(t, StateAwaitingConfirmation.CanTransition(StateCancelled))
	assert.True(t, StateConfirmed.CanTransition(StatePrepared))
	assert.True(t, StatePrepared.CanTransition(StateBroadcast))
	assert.True(t, StateBroadcast.CanTransition(StateRecorded))

	// broadcast is only reachable from prepared
	assert.False(t, StateIdle.CanTransition(StateBroadcast))
	assert.False(t, StateAwaitingConfirmation.CanTransition(StateBroadcast))
	assert.False(t, StateConfirmed.CanTransition(StateBroadcast))

	// recorded is only reachable from broadcast
	assert.False(t, StatePrepared.CanTransition(StateRecorded))

	// terminal states admit nothing
	assert.False(t, StateRecorded.CanTransition(StateCancelled))
	assert.False(t, StateCancelled.CanTransition(StateAwaitingConfirmation))
}

func TestTransferStateTerminal(t *testing.T) {
	assert.True(t, StateRecorded.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateIdle.Terminal())
	assert.False(t, StateAwaitingConfirmation.Terminal())
	assert.False(t, StatePrepared.Terminal())
}
