package models

import "strconv"

// ProcessorResponse holds the fields parsed from the gateway's
// query-string transaction response.
type ProcessorResponse struct {
	Code          string `json:"response"`
	ResponseText  string `json:"responsetext"`
	AuthCode      string `json:"authcode,omitempty"`
	TransactionID string `json:"transactionid"`
	AVSResponse   string `json:"avsresponse,omitempty"`
	CVVResponse   string `json:"cvvresponse,omitempty"`
	OrderID       string `json:"orderid,omitempty"`
	ResponseCode  string `json:"response_code,omitempty"`
	Amount        string `json:"amount,omitempty"`
}

// Approved reports whether the gateway accepted the transaction.
// "1" is approved; "2" declined; "3" error.
func (r *ProcessorResponse) Approved() bool {
	return r.Code == "1"
}

// ConfirmedAmount parses the gateway-confirmed amount, or 0 when the
// response omits it.
func (r *ProcessorResponse) ConfirmedAmount() float64 {
	amount, err := strconv.ParseFloat(r.Amount, 64)
	if err != nil {
		return 0
	}
	return amount
}
