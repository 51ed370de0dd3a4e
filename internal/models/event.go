package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TransitionKind is the action vocabulary consumed by the order state
// machine. Every inbound channel is normalized to one of these.
type TransitionKind string

const (
	TransitionComplete   TransitionKind = "complete_payment"
	TransitionFail       TransitionKind = "fail_payment"
	TransitionSetPending TransitionKind = "add_pending_payment"
)

// ReconciliationEvent is a normalized description of an attempted payment
// state change. EventID is empty for synchronous charge responses, which
// carry no processor-issued notification identifier.
type ReconciliationEvent struct {
	EventID       string         `json:"event_id,omitempty"`
	OrderID       int64          `json:"order_id"`
	Kind          TransitionKind `json:"kind"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Amount        float64        `json:"amount"`
	Note          string         `json:"note,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ProcessedEventRecord marks a processor notification as applied. At most
// one record exists per event identifier; rows are never updated or deleted.
type ProcessedEventRecord struct {
	bun.BaseModel `bun:"table:processed_events"`

	EventID   string    `bun:"event_id,pk" json:"event_id"`
	OrderID   int64     `bun:"order_id" json:"order_id"`
	AppliedAt time.Time `bun:"applied_at" json:"applied_at"`
}

// PaymentEvent is the message published to Kafka after a committed
// transition.
type PaymentEvent struct {
	Type          string        `json:"type"`
	OrderID       int64         `json:"order_id"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Amount        float64       `json:"amount"`
	Timestamp     time.Time     `json:"timestamp"`
}
