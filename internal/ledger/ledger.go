package ledger

import (
	"context"
	"errors"
)

// ErrAlreadyRecorded is returned by Record when another caller has already
// recorded the same event identifier. The losing caller must not re-apply
// the transition.
var ErrAlreadyRecorded = errors.New("event already recorded")

// Ledger tracks which processor-issued event identifiers have been applied.
// Record is an atomic insert-if-absent: at most one caller wins per event
// identifier, system-wide.
type Ledger interface {
	HasBeenApplied(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string, orderID int64) error
}
