package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/utils"
)

// Dispatcher normalizes the three raw payment channels (processor
// webhook, synchronous charge response, return redirect) into
// ReconciliationEvents for the state machine. It never writes payment
// status itself.
type Dispatcher struct {
	store orderstore.Store
	log   *logger.Logger
}

func NewDispatcher(store orderstore.Store, log *logger.Logger) *Dispatcher {
	return &Dispatcher{store: store, log: log}
}

// NormalizeWebhook maps a verified processor notification onto a
// ReconciliationEvent. It returns ErrIgnored when the notification
// carries no usable order reference and ErrUnhandledStatus when the
// settlement condition is outside the known table.
func (d *Dispatcher) NormalizeWebhook(payload *models.WebhookPayload) (models.ReconciliationEvent, error) {
	var event models.ReconciliationEvent

	body := payload.EventBody
	if body == nil {
		return event, fmt.Errorf("webhook payload has no event body")
	}

	raw, ok := body.MerchantDefinedFields["1"]
	if !ok {
		d.log.LogWebhook("normalize", body.EventID, "Ignored: no order reference in merchant defined fields")
		return event, ErrIgnored
	}
	orderID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || orderID <= 0 {
		d.log.LogWebhook("normalize", body.EventID,
			fmt.Sprintf("Ignored: order reference %q is not a valid identifier", raw))
		return event, ErrIgnored
	}

	condition := strings.ToLower(body.Condition)
	amount, _ := body.RequestedAmount.Float64()

	eventID := body.EventID
	if eventID == "" {
		// Derived identifier keeps redelivered notifications deduplicable
		// even when the processor omits an event id.
		eventID = utils.GenerateEventID(body.TransactionID, condition)
	}

	event = models.ReconciliationEvent{
		EventID:       eventID,
		OrderID:       orderID,
		TransactionID: body.TransactionID,
		Amount:        amount,
		Timestamp:     utils.Timestamp(),
	}

	switch condition {
	case "pendingsettlement":
		event.Kind = models.TransitionComplete
		event.Note = "Payment completed via webhook. Transaction ID: " + body.TransactionID

	case "failed", "blocked", "cancelled", "refunded", "disputed":
		event.Kind = models.TransitionFail
		event.Note = fmt.Sprintf("Payment failed via webhook. Status: %s. Transaction ID: %s",
			titleCase(condition), body.TransactionID)

	case "pending":
		event.Kind = models.TransitionSetPending
		event.Note = "Payment is pending via webhook. Transaction ID: " + body.TransactionID

	default:
		d.log.LogWebhook("normalize", eventID,
			fmt.Sprintf("Unhandled settlement condition %q for order %d", body.Condition, orderID))
		return models.ReconciliationEvent{}, fmt.Errorf("%w: %q", ErrUnhandledStatus, body.Condition)
	}

	return event, nil
}

// NormalizeChargeResponse maps a synchronous charge result onto a
// ReconciliationEvent. Synchronous responses carry no event id; the
// terminal-state guard alone dedupes them against the racing webhook.
func (d *Dispatcher) NormalizeChargeResponse(order *models.Order, resp *models.ProcessorResponse) models.ReconciliationEvent {
	event := models.ReconciliationEvent{
		OrderID:   order.OrderID,
		Timestamp: utils.Timestamp(),
	}

	if resp.Approved() {
		amount := resp.ConfirmedAmount()
		if amount <= 0 {
			amount = order.Amount
		}
		event.Kind = models.TransitionComplete
		event.TransactionID = resp.TransactionID
		event.Amount = amount
		return event
	}

	transactionID := resp.TransactionID
	if transactionID == "" {
		transactionID = "N/A"
	}
	reason := resp.ResponseText
	if reason == "" {
		reason = "Payment was declined or an error occurred."
	}

	event.Kind = models.TransitionFail
	event.TransactionID = resp.TransactionID
	event.Amount = order.Amount
	event.Note = fmt.Sprintf("Payment failed. Amount: %s. Transaction ID: %s. Reason: %s",
		utils.FormatMoney(order.Amount, order.Currency), transactionID, reason)
	return event
}

// NormalizeChargeError maps a transport failure or timeout on the charge
// call onto a deterministic Fail event so the order is never left
// unresolved.
func (d *Dispatcher) NormalizeChargeError(order *models.Order, cause error) models.ReconciliationEvent {
	d.log.LogProcessor("charge", fmt.Sprintf("Charge for order %d did not complete: %v", order.OrderID, cause))

	return models.ReconciliationEvent{
		OrderID:   order.OrderID,
		Kind:      models.TransitionFail,
		Amount:    order.Amount,
		Timestamp: utils.Timestamp(),
		Note: fmt.Sprintf("Payment failed. Amount: %s. Transaction ID: N/A. Reason: Payment processing failed: %v",
			utils.FormatMoney(order.Amount, order.Currency), cause),
	}
}

// CaptureCardFingerprint stores the masked card digits carried by a
// webhook. It is best-effort: every failure is logged and swallowed so
// card capture can never affect the reconciliation outcome. For orders
// already in a terminal state the webhook's transaction id must match
// the one on record.
func (d *Dispatcher) CaptureCardFingerprint(ctx context.Context, orderID int64, body *models.WebhookEventBody) {
	if body == nil || body.Card == nil || body.Card.CCNumber == "" {
		return
	}

	last4 := lastFour(body.Card.CCNumber)
	if last4 == "" {
		return
	}

	order, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		d.log.LogWebhook("card", body.EventID,
			fmt.Sprintf("Card capture skipped, order %d not loadable: %v", orderID, err))
		return
	}

	if order.PaymentStatus.IsTerminal() {
		if body.TransactionID == "" || order.TransactionID == "" || body.TransactionID != order.TransactionID {
			d.log.LogWebhook("card", body.EventID,
				fmt.Sprintf("Transaction ID mismatch for order %d. Webhook: %s, Order: %s",
					orderID, body.TransactionID, order.TransactionID))
			return
		}
	}

	if err := d.store.SaveCardDigits(ctx, orderID, last4); err != nil {
		d.log.LogWebhook("card", body.EventID,
			fmt.Sprintf("Failed to save card digits for order %d: %v", orderID, err))
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// lastFour extracts the trailing digits of a masked card number like
// "4111xxxxxxxx1111".
func lastFour(masked string) string {
	digits := make([]rune, 0, len(masked))
	for _, r := range masked {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}
