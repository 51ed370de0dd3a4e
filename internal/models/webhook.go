package models

import "encoding/json"

// WebhookPayload is the top-level body of a TailoredPay webhook: an
// event-type discriminator plus the nested event body.
type WebhookPayload struct {
	EventType string            `json:"event_type"`
	EventBody *WebhookEventBody `json:"event_body"`
}

// WebhookEventBody carries the settlement outcome of a transaction. The
// merchant-defined fields echo back what we sent with the charge; field "1"
// holds the order identifier.
type WebhookEventBody struct {
	EventID               string            `json:"event_id"`
	TransactionID         string            `json:"transaction_id"`
	Condition             string            `json:"condition"`
	RequestedAmount       json.Number       `json:"requested_amount"`
	Currency              string            `json:"currency"`
	ResponseText          string            `json:"response_text,omitempty"`
	MerchantDefinedFields map[string]string `json:"merchant_defined_fields"`
	Card                  *WebhookCard      `json:"card,omitempty"`
}

// WebhookCard is the card metadata the processor attaches to settlement
// notifications. CCNumber arrives masked; only the last four digits are
// ever persisted.
type WebhookCard struct {
	CCNumber string `json:"cc_number"`
	CCExp    string `json:"cc_exp"`
	CardType string `json:"card_type"`
}
