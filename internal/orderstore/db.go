package orderstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
)

var terminalStatuses = []models.PaymentStatus{models.StatusPaid, models.StatusFailed}

// DB implements Store over bun.
type DB struct {
	Bun *bun.DB
}

func (d *DB) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}
	return &order, nil
}

func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.StatusUnpaid
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create order %d: %w", order.OrderID, err)
	}
	return nil
}

func (d *DB) UpdateStatus(ctx context.Context, orderID int64, status models.PaymentStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Where("payment_status NOT IN (?)", bun.In(terminalStatuses)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update status for order %d: %w", orderID, err)
	}
	return d.guardResult(ctx, res, orderID)
}

// CompletePayment commits the Paid transition and its side effects in a
// single statement: the WHERE clause re-reads the terminal guard at write
// time, so a racing completion cannot be applied twice.
func (d *DB) CompletePayment(ctx context.Context, orderID int64, transactionID string, amount float64, paidAt time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", models.StatusPaid).
		Set("transaction_id = ?", transactionID).
		Set("amount = ?", amount).
		Set("payment_date = ?", paidAt).
		Set("is_fulfilled = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Where("payment_status NOT IN (?)", bun.In(terminalStatuses)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to complete payment for order %d: %w", orderID, err)
	}
	return d.guardResult(ctx, res, orderID)
}

func (d *DB) FailPayment(ctx context.Context, orderID int64, transactionID string) error {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", models.StatusFailed).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Where("payment_status NOT IN (?)", bun.In(terminalStatuses))
	if transactionID != "" {
		q = q.Set("transaction_id = ?", transactionID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to fail payment for order %d: %w", orderID, err)
	}
	return d.guardResult(ctx, res, orderID)
}

func (d *DB) SetPendingPayment(ctx context.Context, orderID int64, transactionID string) error {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", models.StatusPending).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Where("payment_status NOT IN (?)", bun.In(terminalStatuses))
	if transactionID != "" {
		q = q.Set("transaction_id = ?", transactionID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set pending payment for order %d: %w", orderID, err)
	}
	return d.guardResult(ctx, res, orderID)
}

// guardResult distinguishes "order missing" from "terminal guard blocked
// the write" when a conditional update touches no rows.
func (d *DB) guardResult(ctx context.Context, res sql.Result, orderID int64) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows > 0 {
		return nil
	}

	if _, err := d.GetOrder(ctx, orderID); err != nil {
		return err
	}
	return ErrAlreadyFinal
}

func (d *DB) SetMeta(ctx context.Context, orderID int64, key, value string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.OrderMeta)(nil)).
		Set("meta_value = ?", value).
		Where("order_id = ?", orderID).
		Where("meta_key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set meta %q for order %d: %w", key, orderID, err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		return nil
	}

	meta := &models.OrderMeta{OrderID: orderID, Key: key, Value: value}
	if _, err := d.Bun.NewInsert().Model(meta).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert meta %q for order %d: %w", key, orderID, err)
	}
	return nil
}

func (d *DB) GetMeta(ctx context.Context, orderID int64, key string) (string, error) {
	var meta models.OrderMeta
	err := d.Bun.NewSelect().
		Model(&meta).
		Where("order_id = ?", orderID).
		Where("meta_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %q for order %d: %w", key, orderID, err)
	}
	return meta.Value, nil
}

func (d *DB) AppendNote(ctx context.Context, orderID int64, text string) error {
	note := &models.OrderNote{
		NoteID:    uuid.New().String(),
		OrderID:   orderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := d.Bun.NewInsert().Model(note).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append note for order %d: %w", orderID, err)
	}
	return nil
}

func (d *DB) SaveCardDigits(ctx context.Context, orderID int64, last4 string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("card_last4 = ?", last4).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save card digits for order %d: %w", orderID, err)
	}
	return nil
}

func (d *DB) FindUnpaidByEmail(ctx context.Context, email string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("email = ?", email).
		Where("payment_status != ?", models.StatusPaid).
		Where("amount > 0").
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpaid orders for %s: %w", email, err)
	}
	return orders, nil
}

func (d *DB) ListNotes(ctx context.Context, orderID int64) ([]models.OrderNote, error) {
	var notes []models.OrderNote
	err := d.Bun.NewSelect().
		Model(&notes).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes for order %d: %w", orderID, err)
	}
	return notes, nil
}
