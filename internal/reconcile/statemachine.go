package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/config"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/kafka"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/ledger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
)

// StateMachine is the only component permitted to transition an order's
// payment status. It owns the terminal-state guard and the idempotency
// check; everything upstream just normalizes inputs into
// ReconciliationEvents.
type StateMachine struct {
	store    orderstore.Store
	ledger   ledger.Ledger
	producer kafka.Publisher
	topics   config.TopicConfig
	log      *logger.Logger
}

func NewStateMachine(store orderstore.Store, lg ledger.Ledger, producer kafka.Publisher, topics config.TopicConfig, log *logger.Logger) *StateMachine {
	return &StateMachine{
		store:    store,
		ledger:   lg,
		producer: producer,
		topics:   topics,
		log:      log,
	}
}

// Apply attempts one payment state transition. It returns the order's
// resulting status and one of:
//
//   - nil: the transition (or an idempotent Pending no-op) committed;
//   - ErrAlreadyFinal: the order was already Paid or Failed;
//   - ErrDuplicate: the event identifier was applied before;
//   - any other error: the decision could not be made and the caller may
//     retry.
//
// The order is re-read on every call and the guarded store writes re-check
// the terminal state at write time, so two racing completions resolve to
// exactly one applied transition.
func (m *StateMachine) Apply(ctx context.Context, event models.ReconciliationEvent) (models.PaymentStatus, error) {
	order, err := m.store.GetOrder(ctx, event.OrderID)
	if err != nil {
		return "", err
	}

	if order.PaymentStatus.IsTerminal() {
		m.log.LogReconcile(string(event.Kind), event.OrderID,
			fmt.Sprintf("Rejected: order already %s", order.PaymentStatus))
		return order.PaymentStatus, ErrAlreadyFinal
	}

	if event.EventID != "" {
		applied, err := m.ledger.HasBeenApplied(ctx, event.EventID)
		if err != nil {
			return "", err
		}
		if applied {
			m.log.LogReconcile(string(event.Kind), event.OrderID,
				fmt.Sprintf("Rejected duplicate event %s", event.EventID))
			return order.PaymentStatus, ErrDuplicate
		}
	}

	newStatus, applied, err := m.transition(ctx, order, event)
	if err != nil {
		if errors.Is(err, orderstore.ErrAlreadyFinal) {
			// A racing caller won between our read and our write. Once
			// terminal, always terminal, so this is the same outcome as the
			// step-one guard.
			return m.currentStatus(ctx, event.OrderID), ErrAlreadyFinal
		}
		return "", err
	}

	if !applied {
		// Pending on an order that is already underway: accepted, nothing
		// written, nothing recorded.
		return newStatus, nil
	}

	if event.Note != "" {
		if noteErr := m.store.AppendNote(ctx, event.OrderID, event.Note); noteErr != nil {
			m.log.Error("RECONCILE", fmt.Sprintf("Failed to append note for order %d: %v", event.OrderID, noteErr))
		}
	}

	if event.EventID != "" {
		if recErr := m.ledger.Record(ctx, event.EventID, event.OrderID); recErr != nil {
			// The transition already committed; a lost ledger race is a
			// processing-order anomaly, not a correctness violation.
			if errors.Is(recErr, ledger.ErrAlreadyRecorded) {
				m.log.Warn("RECONCILE", fmt.Sprintf("Ledger record for event %s lost a race after commit", event.EventID))
			} else {
				m.log.Error("RECONCILE", fmt.Sprintf("Failed to record event %s: %v", event.EventID, recErr))
			}
		}
	}

	m.publish(event, newStatus)

	m.log.LogReconcile(string(event.Kind), event.OrderID,
		fmt.Sprintf("Transitioned %s -> %s (transaction %s)", order.PaymentStatus, newStatus, event.TransactionID))
	return newStatus, nil
}

func (m *StateMachine) transition(ctx context.Context, order *models.Order, event models.ReconciliationEvent) (models.PaymentStatus, bool, error) {
	switch event.Kind {
	case models.TransitionComplete:
		paidAt := event.Timestamp
		if paidAt.IsZero() {
			paidAt = time.Now().UTC()
		}
		amount := event.Amount
		if amount <= 0 {
			amount = order.Amount
		}
		if err := m.store.CompletePayment(ctx, order.OrderID, event.TransactionID, amount, paidAt); err != nil {
			return "", false, err
		}
		return models.StatusPaid, true, nil

	case models.TransitionFail:
		if err := m.store.FailPayment(ctx, order.OrderID, event.TransactionID); err != nil {
			return "", false, err
		}
		return models.StatusFailed, true, nil

	case models.TransitionSetPending:
		if order.PaymentStatus == models.StatusPending || order.PaymentStatus == models.StatusProcessing {
			// Already underway; accept without writing.
			return order.PaymentStatus, false, nil
		}
		if err := m.store.SetPendingPayment(ctx, order.OrderID, event.TransactionID); err != nil {
			return "", false, err
		}
		return models.StatusPending, true, nil

	default:
		return "", false, fmt.Errorf("unknown transition kind: %q", event.Kind)
	}
}

func (m *StateMachine) currentStatus(ctx context.Context, orderID int64) models.PaymentStatus {
	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return ""
	}
	return order.PaymentStatus
}

// publish emits the committed transition to Kafka. Delivery is best-effort:
// the transition is already durable in the order store.
func (m *StateMachine) publish(event models.ReconciliationEvent, status models.PaymentStatus) {
	if m.producer == nil {
		return
	}

	var topic, eventType string
	switch status {
	case models.StatusPaid:
		topic, eventType = m.topics.PaymentCompleted, "payment.completed"
	case models.StatusFailed:
		topic, eventType = m.topics.PaymentFailed, "payment.failed"
	case models.StatusPending:
		topic, eventType = m.topics.PaymentPending, "payment.pending"
	default:
		return
	}

	payload := models.PaymentEvent{
		Type:          eventType,
		OrderID:       event.OrderID,
		Status:        status,
		TransactionID: event.TransactionID,
		Amount:        event.Amount,
		Timestamp:     time.Now().UTC(),
	}

	value, _ := json.Marshal(payload)
	if err := m.producer.Publish(topic, strconv.FormatInt(event.OrderID, 10), value); err != nil {
		m.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for order %d: %v", eventType, event.OrderID, err))
	}
}
