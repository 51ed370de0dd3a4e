package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
)

func newTestDispatcher(store *fakeStore) *Dispatcher {
	return NewDispatcher(store, logger.NewLogger())
}

func webhookBody(condition string) *models.WebhookEventBody {
	return &models.WebhookEventBody{
		EventID:               "evt_1",
		TransactionID:         "txn_100",
		Condition:             condition,
		RequestedAmount:       json.Number("50.00"),
		Currency:              "USD",
		MerchantDefinedFields: map[string]string{"1": "42"},
	}
}

func TestNormalizeWebhookConditionTable(t *testing.T) {
	cases := []struct {
		condition string
		kind      models.TransitionKind
		note      string
	}{
		{"pendingsettlement", models.TransitionComplete, "Payment completed via webhook. Transaction ID: txn_100"},
		{"failed", models.TransitionFail, "Payment failed via webhook. Status: Failed. Transaction ID: txn_100"},
		{"blocked", models.TransitionFail, "Payment failed via webhook. Status: Blocked. Transaction ID: txn_100"},
		{"cancelled", models.TransitionFail, "Payment failed via webhook. Status: Cancelled. Transaction ID: txn_100"},
		{"refunded", models.TransitionFail, "Payment failed via webhook. Status: Refunded. Transaction ID: txn_100"},
		{"disputed", models.TransitionFail, "Payment failed via webhook. Status: Disputed. Transaction ID: txn_100"},
		{"pending", models.TransitionSetPending, "Payment is pending via webhook. Transaction ID: txn_100"},
	}

	d := newTestDispatcher(newFakeStore())
	for _, tc := range cases {
		t.Run(tc.condition, func(t *testing.T) {
			event, err := d.NormalizeWebhook(&models.WebhookPayload{
				EventType: "transaction.updated",
				EventBody: webhookBody(tc.condition),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.kind, event.Kind)
			assert.Equal(t, tc.note, event.Note)
			assert.Equal(t, int64(42), event.OrderID)
			assert.Equal(t, "txn_100", event.TransactionID)
			assert.Equal(t, 50.00, event.Amount)
			assert.Equal(t, "evt_1", event.EventID)
		})
	}
}

func TestNormalizeWebhookConditionIsCaseInsensitive(t *testing.T) {
	d := newTestDispatcher(newFakeStore())

	event, err := d.NormalizeWebhook(&models.WebhookPayload{
		EventBody: webhookBody("PendingSettlement"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransitionComplete, event.Kind)
}

func TestNormalizeWebhookUnhandledCondition(t *testing.T) {
	d := newTestDispatcher(newFakeStore())

	_, err := d.NormalizeWebhook(&models.WebhookPayload{
		EventBody: webhookBody("in_review"),
	})
	assert.ErrorIs(t, err, ErrUnhandledStatus)
}

func TestNormalizeWebhookIgnoresMissingOrderReference(t *testing.T) {
	d := newTestDispatcher(newFakeStore())

	for name, fields := range map[string]map[string]string{
		"absent":      nil,
		"empty":       {"1": ""},
		"non numeric": {"1": "abc"},
		"zero":        {"1": "0"},
		"negative":    {"1": "-5"},
	} {
		t.Run(name, func(t *testing.T) {
			body := webhookBody("pendingsettlement")
			body.MerchantDefinedFields = fields
			_, err := d.NormalizeWebhook(&models.WebhookPayload{EventBody: body})
			assert.ErrorIs(t, err, ErrIgnored)
		})
	}
}

func TestNormalizeWebhookMissingEventBody(t *testing.T) {
	d := newTestDispatcher(newFakeStore())

	_, err := d.NormalizeWebhook(&models.WebhookPayload{EventType: "transaction.updated"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrIgnored)
}

func TestNormalizeWebhookDerivesEventIDWhenAbsent(t *testing.T) {
	d := newTestDispatcher(newFakeStore())

	body := webhookBody("failed")
	body.EventID = ""
	event, err := d.NormalizeWebhook(&models.WebhookPayload{EventBody: body})
	require.NoError(t, err)

	// Redeliveries of the same notification must collapse to one id.
	assert.Equal(t, "txn_100_failed", event.EventID)
}

func TestNormalizeChargeResponseApproved(t *testing.T) {
	d := newTestDispatcher(newFakeStore())
	order := unpaidOrder(42)

	event := d.NormalizeChargeResponse(order, &models.ProcessorResponse{
		Code:          "1",
		TransactionID: "txn_100",
		Amount:        "49.50",
	})

	assert.Equal(t, models.TransitionComplete, event.Kind)
	assert.Equal(t, int64(42), event.OrderID)
	assert.Equal(t, "txn_100", event.TransactionID)
	assert.Equal(t, 49.50, event.Amount, "gateway-confirmed amount wins")
	assert.Empty(t, event.EventID, "synchronous responses carry no event id")
}

func TestNormalizeChargeResponseApprovedWithoutAmount(t *testing.T) {
	d := newTestDispatcher(newFakeStore())
	order := unpaidOrder(42)

	event := d.NormalizeChargeResponse(order, &models.ProcessorResponse{
		Code:          "1",
		TransactionID: "txn_100",
	})
	assert.Equal(t, 50.00, event.Amount, "falls back to the requested amount")
}

func TestNormalizeChargeResponseDeclined(t *testing.T) {
	d := newTestDispatcher(newFakeStore())
	order := unpaidOrder(42)

	event := d.NormalizeChargeResponse(order, &models.ProcessorResponse{
		Code:          "2",
		TransactionID: "txn_7",
		ResponseText:  "DECLINE",
	})

	assert.Equal(t, models.TransitionFail, event.Kind)
	assert.Equal(t, "txn_7", event.TransactionID)
	assert.Equal(t, "Payment failed. Amount: 50.00 USD. Transaction ID: txn_7. Reason: DECLINE", event.Note)
}

func TestNormalizeChargeResponseDeclinedWithEmptyFields(t *testing.T) {
	d := newTestDispatcher(newFakeStore())
	order := unpaidOrder(42)

	event := d.NormalizeChargeResponse(order, &models.ProcessorResponse{Code: "3"})

	assert.Equal(t, models.TransitionFail, event.Kind)
	assert.Equal(t,
		"Payment failed. Amount: 50.00 USD. Transaction ID: N/A. Reason: Payment was declined or an error occurred.",
		event.Note)
}

func TestNormalizeChargeErrorMapsToFail(t *testing.T) {
	d := newTestDispatcher(newFakeStore())
	order := unpaidOrder(42)

	event := d.NormalizeChargeError(order, context.DeadlineExceeded)

	assert.Equal(t, models.TransitionFail, event.Kind)
	assert.Empty(t, event.EventID)
	assert.Contains(t, event.Note, "Payment processing failed")
	assert.Contains(t, event.Note, "Transaction ID: N/A")
}

func TestCaptureCardFingerprint(t *testing.T) {
	store := newFakeStore(unpaidOrder(42))
	d := newTestDispatcher(store)
	ctx := context.Background()

	body := webhookBody("pendingsettlement")
	body.Card = &models.WebhookCard{CCNumber: "4111xxxxxxxx1111", CardType: "visa"}
	d.CaptureCardFingerprint(ctx, 42, body)

	order, _ := store.GetOrder(ctx, 42)
	assert.Equal(t, "1111", order.CardLast4)
}

func TestCaptureCardFingerprintValidatesTransactionOnSettledOrders(t *testing.T) {
	order := unpaidOrder(42)
	order.PaymentStatus = models.StatusPaid
	order.TransactionID = "txn_100"
	store := newFakeStore(order)
	d := newTestDispatcher(store)
	ctx := context.Background()

	mismatched := webhookBody("pendingsettlement")
	mismatched.TransactionID = "txn_other"
	mismatched.Card = &models.WebhookCard{CCNumber: "4111xxxxxxxx1111"}
	d.CaptureCardFingerprint(ctx, 42, mismatched)

	got, _ := store.GetOrder(ctx, 42)
	assert.Empty(t, got.CardLast4, "mismatched transaction must not overwrite card data")

	matching := webhookBody("pendingsettlement")
	matching.Card = &models.WebhookCard{CCNumber: "4111xxxxxxxx1111"}
	d.CaptureCardFingerprint(ctx, 42, matching)

	got, _ = store.GetOrder(ctx, 42)
	assert.Equal(t, "1111", got.CardLast4)
}

func TestCaptureCardFingerprintIsBestEffort(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(store)
	ctx := context.Background()

	// No card block, no order, malformed number: all silent no-ops.
	d.CaptureCardFingerprint(ctx, 42, webhookBody("pendingsettlement"))
	d.CaptureCardFingerprint(ctx, 42, nil)

	short := webhookBody("pendingsettlement")
	short.Card = &models.WebhookCard{CCNumber: "x1"}
	d.CaptureCardFingerprint(ctx, 42, short)
}
