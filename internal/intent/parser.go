// Package intent detects transfer requests in free text. Detection for the
// value-moving path is deterministic and reproducible: a fixed pattern match,
// never the language model.
package intent

import (
	"fmt"
	"regexp"
	"strconv"

	"solgate/internal/domain"
)

// transferPattern recognizes "send <amount> SOL to <address>" where amount is
// a decimal number and address is a single alphanumeric token.
var transferPattern = regexp.MustCompile(`(?i)send\s+([0-9]+(?:\.[0-9]+)?)\s*sol\s+to\s+([A-Za-z0-9]+)`)

// ParseTransferIntent extracts a transfer intent from free text, or returns
// nil when none is present. It never errors and makes no external calls.
func ParseTransferIntent(text string) *domain.TransferIntent {
	m := transferPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &domain.TransferIntent{Amount: amount, RecipientAddress: m[2]}
}

// ConfirmationMessage restates a detected intent and instructs the user how
// to confirm or cancel it.
func ConfirmationMessage(in *domain.TransferIntent) string {
	return fmt.Sprintf("Please confirm: send %s SOL to %s? Reply 'yes' to confirm or 'no' to cancel.",
		domain.FormatSOL(in.Amount), in.RecipientAddress)
}
