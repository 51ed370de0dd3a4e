package reconcile

import "errors"

var (
	// ErrAlreadyFinal means the order is Paid or Failed; late or duplicate
	// notifications are accepted as no-ops, not faults.
	ErrAlreadyFinal = errors.New("order payment status is already final")

	// ErrDuplicate means the event identifier was already applied.
	ErrDuplicate = errors.New("event already processed")

	// ErrIgnored means the notification carries no usable order reference.
	// The caller acknowledges it to stop processor retries.
	ErrIgnored = errors.New("notification ignored: no order reference")

	// ErrUnhandledStatus means the processor reported a settlement condition
	// outside the mapping table. Unlike the rejections above it is an
	// actionable error: an operator needs to extend the mapping.
	ErrUnhandledStatus = errors.New("unhandled webhook status")
)
