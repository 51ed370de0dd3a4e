package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/config"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
)

// Client talks to the TailoredPay transact API. Requests are form-encoded
// POSTs; responses come back as a query string in the body.
type Client struct {
	endpoint    string
	securityKey string
	environment string
	httpClient  *http.Client
	log         *logger.Logger
}

func NewClient(cfg config.ProcessorConfig, log *logger.Logger) *Client {
	return &Client{
		endpoint:    cfg.Endpoint,
		securityKey: cfg.SecurityKey,
		environment: cfg.Environment,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		log:         log,
	}
}

// ChargeParams describes one sale transaction against a previously
// tokenized card.
type ChargeParams struct {
	OrderID      int64
	Amount       float64
	Currency     string
	PaymentToken string
	IPAddress    string
	Billing      models.BillingInfo
}

// Charge submits a sale and parses the gateway's decision. A transport
// error or timeout is returned as an error; a decline is not an error,
// callers inspect Approved() on the response.
func (c *Client) Charge(ctx context.Context, params ChargeParams) (*models.ProcessorResponse, error) {
	form := url.Values{}
	form.Set("security_key", c.securityKey)
	form.Set("type", "sale")
	form.Set("amount", fmt.Sprintf("%.2f", params.Amount))
	form.Set("currency", params.Currency)
	form.Set("payment_token", params.PaymentToken)
	form.Set("merchant_defined_field_1", strconv.FormatInt(params.OrderID, 10))
	if params.IPAddress != "" {
		form.Set("ipaddress", params.IPAddress)
	}
	setIfPresent(form, "first_name", params.Billing.FirstName)
	setIfPresent(form, "last_name", params.Billing.LastName)
	setIfPresent(form, "address1", params.Billing.Address1)
	setIfPresent(form, "address2", params.Billing.Address2)
	setIfPresent(form, "city", params.Billing.City)
	setIfPresent(form, "state", params.Billing.State)
	setIfPresent(form, "zip", params.Billing.Zip)
	setIfPresent(form, "country", params.Billing.Country)
	setIfPresent(form, "email", params.Billing.Email)
	if c.environment != "live" {
		form.Set("test_mode", "enabled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.log.LogProcessor("charge", fmt.Sprintf("Submitting sale for order %d, amount %.2f %s",
		params.OrderID, params.Amount, params.Currency))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read charge response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	result, err := parseResponse(string(body))
	if err != nil {
		return nil, err
	}

	c.log.LogProcessor("charge", fmt.Sprintf("Order %d: response=%s transaction=%s",
		params.OrderID, result.Code, result.TransactionID))
	return result, nil
}

// parseResponse decodes the query-string transaction response.
func parseResponse(body string) (*models.ProcessorResponse, error) {
	values, err := url.ParseQuery(strings.TrimSpace(body))
	if err != nil {
		return nil, fmt.Errorf("unparseable gateway response: %w", err)
	}
	if values.Get("response") == "" {
		return nil, fmt.Errorf("gateway response missing response code")
	}

	return &models.ProcessorResponse{
		Code:          values.Get("response"),
		ResponseText:  values.Get("responsetext"),
		AuthCode:      values.Get("authcode"),
		TransactionID: values.Get("transactionid"),
		AVSResponse:   values.Get("avsresponse"),
		CVVResponse:   values.Get("cvvresponse"),
		OrderID:       values.Get("orderid"),
		ResponseCode:  values.Get("response_code"),
		Amount:        values.Get("amount"),
	}, nil
}

func setIfPresent(form url.Values, key, value string) {
	if value != "" {
		form.Set(key, value)
	}
}
