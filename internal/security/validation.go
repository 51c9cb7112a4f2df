// Package security validates user-supplied symbols and masks credentials
// before they reach logs or error messages.
package security

import (
	"regexp"
	"strings"

	apperrors "fairvalue-engine/internal/errors"
)

// symbolPattern accepts exchange tickers such as BRK.B, RELIANCE.NS, EURUSD=X and ^GSPC.
var symbolPattern = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.&=-]{0,19}$`)

// ValidateSymbol normalizes a ticker to upper case and rejects anything that
// is not a plausible exchange symbol.
func ValidateSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	if symbol == "" {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}
	if len(symbol) > 21 {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol too long (max 20 characters)")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", apperrors.NewValidationError("symbol", symbol, "invalid symbol format")
	}
	return symbol, nil
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
