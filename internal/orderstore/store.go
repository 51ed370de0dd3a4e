package orderstore

import (
	"context"
	"errors"
	"time"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadyFinal is returned by the guarded transition writes when the
	// order reached a terminal status between the caller's read and the
	// write. The write is skipped entirely.
	ErrAlreadyFinal = errors.New("order payment status is final")
)

// Store is the order persistence interface the reconciliation core consumes.
// The core never holds an Order across calls; every decision re-reads
// through GetOrder, and the three transition writes re-check the terminal
// guard inside a single conditional statement.
type Store interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error

	// UpdateStatus moves a non-terminal order to the given status without
	// any payment side effects. Used by checkout to mark Processing.
	UpdateStatus(ctx context.Context, orderID int64, status models.PaymentStatus) error

	// CompletePayment sets Paid, records the transaction, amount and payment
	// date, and flags the order ready to fulfill, all in one guarded write.
	CompletePayment(ctx context.Context, orderID int64, transactionID string, amount float64, paidAt time.Time) error

	// FailPayment sets Failed and records the transaction, guarded.
	FailPayment(ctx context.Context, orderID int64, transactionID string) error

	// SetPendingPayment sets Pending, guarded.
	SetPendingPayment(ctx context.Context, orderID int64, transactionID string) error

	SetMeta(ctx context.Context, orderID int64, key, value string) error
	GetMeta(ctx context.Context, orderID int64, key string) (string, error)
	AppendNote(ctx context.Context, orderID int64, text string) error
	SaveCardDigits(ctx context.Context, orderID int64, last4 string) error

	FindUnpaidByEmail(ctx context.Context, email string) ([]models.Order, error)
	ListNotes(ctx context.Context, orderID int64) ([]models.OrderNote, error)
}
