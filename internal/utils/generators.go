package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateSessionID creates an identifier for a hosted payment-page session.
func GenerateSessionID() string {
	return fmt.Sprintf("ps_%s", uuid.New().String())
}

// GenerateEventID creates a fallback identifier for processor notifications
// that arrive without one. It is derived from the transaction and condition
// so that duplicate deliveries of the same notification collapse to the same
// identifier.
func GenerateEventID(transactionID, condition string) string {
	return fmt.Sprintf("%s_%s", transactionID, condition)
}

// FormatMoney renders an amount the way audit notes expect it.
func FormatMoney(amount float64, currency string) string {
	return fmt.Sprintf("%.2f %s", amount, currency)
}

// Timestamp returns the UTC wall clock, rounded to the second for stable
// storage across database round-trips.
func Timestamp() time.Time {
	return time.Now().UTC().Round(time.Second)
}
