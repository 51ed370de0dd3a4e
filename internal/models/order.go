package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusUnpaid     PaymentStatus = "Unpaid"
	StatusProcessing PaymentStatus = "Processing"
	StatusPending    PaymentStatus = "Pending"
	StatusPaid       PaymentStatus = "Paid"
	StatusFailed     PaymentStatus = "Failed"
)

// IsTerminal reports whether no further payment transitions are permitted.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID       int64         `bun:"order_id,pk" json:"order_id"`
	FormID        int64         `bun:"form_id" json:"form_id"`
	Email         string        `bun:"email" json:"email"`
	Amount        float64       `bun:"amount" json:"amount"`
	Currency      string        `bun:"currency" json:"currency"`
	PaymentStatus PaymentStatus `bun:"payment_status" json:"payment_status"`
	TransactionID string        `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`
	CardLast4     string        `bun:"card_last4,nullzero" json:"card_last4,omitempty"`
	IsFulfilled   bool          `bun:"is_fulfilled" json:"is_fulfilled"`
	PaymentDate   time.Time     `bun:"payment_date,nullzero" json:"payment_date,omitempty"`
	CreatedAt     time.Time     `bun:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// OrderMeta is a key/value side channel for request-scoped order data, e.g.
// the billing snapshot captured when a payment session is created.
type OrderMeta struct {
	bun.BaseModel `bun:"table:order_meta"`

	OrderID int64  `bun:"order_id" json:"order_id"`
	Key     string `bun:"meta_key" json:"key"`
	Value   string `bun:"meta_value" json:"value"`
}

// OrderNote is an append-only audit note attached to an order.
type OrderNote struct {
	bun.BaseModel `bun:"table:order_notes"`

	NoteID    string    `bun:"note_id,pk" json:"note_id"`
	OrderID   int64     `bun:"order_id" json:"order_id"`
	Text      string    `bun:"text" json:"text"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}
