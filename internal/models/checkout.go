package models

// ChargeRequest is the internal charge-submission body: a previously issued
// payment token plus the order it pays for.
type ChargeRequest struct {
	OrderID      int64  `json:"order_id" binding:"required"`
	PaymentToken string `json:"payment_token" binding:"required"`
	IPAddress    string `json:"ip_address,omitempty"`
}

// ChargeResponse is returned to the checkout frontend after a synchronous
// charge attempt.
type ChargeResponse struct {
	OrderID       int64         `json:"order_id"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// PaymentSession is the view data for the hosted payment page: everything
// the tokenization widget needs, plus the short-lived token that authorizes
// the subsequent charge submission.
type PaymentSession struct {
	SessionID       string  `json:"session_id"`
	OrderID         int64   `json:"order_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	TokenizationKey string  `json:"tokenization_key"`
	SessionToken    string  `json:"session_token"`
	ReturnURL       string  `json:"return_url"`
}

// BillingInfo is the billing snapshot forwarded to the processor with a
// charge.
type BillingInfo struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Address1  string `json:"address1,omitempty"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Country   string `json:"country,omitempty"`
	Email     string `json:"email,omitempty"`
}

// PaymentLink is one row of the pay-later retrieval result: an unpaid order
// with a signed URL (and QR rendering) that reopens its payment page.
type PaymentLink struct {
	OrderID    int64         `json:"order_id"`
	Amount     float64       `json:"amount"`
	Currency   string        `json:"currency"`
	Status     PaymentStatus `json:"status"`
	PaymentURL string        `json:"payment_url"`
	QRCodePNG  string        `json:"qr_code_png,omitempty"` // base64
}
