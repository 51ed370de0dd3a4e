package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/config"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/processor"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/reconcile"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/returntoken"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/utils"
)

const billingMetaKey = "billing_info"

// Charger is the slice of the processor client the service depends on.
type Charger interface {
	Charge(ctx context.Context, params processor.ChargeParams) (*models.ProcessorResponse, error)
}

// SessionIssuer mints the short-lived token that authorizes a charge
// submission for one order.
type SessionIssuer interface {
	Issue(sessionID string, orderID int64) (string, error)
}

// Service drives the hosted payment page: it opens payment sessions and
// submits synchronous charges, feeding every outcome through the
// reconciliation core.
type Service struct {
	store      orderstore.Store
	charger    Charger
	dispatcher *reconcile.Dispatcher
	machine    *reconcile.StateMachine
	sessions   SessionIssuer
	returns    *returntoken.Codec
	cfg        *config.Config
	log        *logger.Logger
}

func NewService(
	store orderstore.Store,
	charger Charger,
	dispatcher *reconcile.Dispatcher,
	machine *reconcile.StateMachine,
	sessions SessionIssuer,
	returns *returntoken.Codec,
	cfg *config.Config,
	log *logger.Logger,
) *Service {
	return &Service{
		store:      store,
		charger:    charger,
		dispatcher: dispatcher,
		machine:    machine,
		sessions:   sessions,
		returns:    returns,
		cfg:        cfg,
		log:        log,
	}
}

// CreateSession opens a payment session for an unpaid order: marks it
// Processing, snapshots the billing info, and hands back everything the
// card-entry widget needs.
func (s *Service) CreateSession(ctx context.Context, orderID int64, billing models.BillingInfo) (*models.PaymentSession, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus.IsTerminal() {
		return nil, orderstore.ErrAlreadyFinal
	}

	if err := s.store.UpdateStatus(ctx, orderID, models.StatusProcessing); err != nil {
		return nil, err
	}

	if snapshot, err := json.Marshal(billing); err == nil {
		if metaErr := s.store.SetMeta(ctx, orderID, billingMetaKey, string(snapshot)); metaErr != nil {
			s.log.Error("CHECKOUT", fmt.Sprintf("Failed to snapshot billing for order %d: %v", orderID, metaErr))
		}
	}

	sessionID := utils.GenerateSessionID()
	sessionToken, err := s.sessions.Issue(sessionID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.log.Info("CHECKOUT", fmt.Sprintf("Opened payment session %s for order %d", sessionID, orderID))

	return &models.PaymentSession{
		SessionID:       sessionID,
		OrderID:         orderID,
		Amount:          order.Amount,
		Currency:        order.Currency,
		TokenizationKey: s.cfg.Processor.TokenizationKey,
		SessionToken:    sessionToken,
		ReturnURL:       s.ReturnURL(order.FormID, orderID),
	}, nil
}

// Charge submits a sale for a tokenized card and reconciles the outcome.
// A transport failure or timeout resolves the order to Failed rather than
// leaving it in limbo.
func (s *Service) Charge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResponse, error) {
	order, err := s.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus.IsTerminal() {
		return s.settledResponse(order), nil
	}

	billing := s.loadBilling(ctx, req.OrderID)

	// The timeout bounds only the processor call; the reconciliation writes
	// below must still run after a timeout to resolve the order.
	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.Processor.Timeout)
	defer cancel()

	resp, err := s.charger.Charge(chargeCtx, processor.ChargeParams{
		OrderID:      order.OrderID,
		Amount:       order.Amount,
		Currency:     order.Currency,
		PaymentToken: req.PaymentToken,
		IPAddress:    req.IPAddress,
		Billing:      billing,
	})
	if err != nil {
		event := s.dispatcher.NormalizeChargeError(order, err)
		return s.applyChargeEvent(ctx, order, event, "Payment processing failed. Please try again."), nil
	}

	event := s.dispatcher.NormalizeChargeResponse(order, resp)
	message := resp.ResponseText
	if message == "" {
		message = "Payment was declined or an error occurred."
	}
	return s.applyChargeEvent(ctx, order, event, message), nil
}

func (s *Service) applyChargeEvent(ctx context.Context, order *models.Order, event models.ReconciliationEvent, failureMessage string) *models.ChargeResponse {
	status, err := s.machine.Apply(ctx, event)
	if err != nil {
		if errors.Is(err, reconcile.ErrAlreadyFinal) {
			// The webhook won the race; report whatever it decided.
			if settled, readErr := s.store.GetOrder(ctx, order.OrderID); readErr == nil {
				return s.settledResponse(settled)
			}
		}
		s.log.Error("CHECKOUT", fmt.Sprintf("Failed to reconcile charge for order %d: %v", order.OrderID, err))
		return &models.ChargeResponse{
			OrderID:      order.OrderID,
			Status:       order.PaymentStatus,
			ErrorMessage: "Payment could not be confirmed. Please contact support.",
		}
	}

	response := &models.ChargeResponse{
		OrderID:       order.OrderID,
		Status:        status,
		TransactionID: event.TransactionID,
	}
	if status == models.StatusPaid {
		response.RedirectURL = s.ReturnURL(order.FormID, order.OrderID)
	} else {
		response.ErrorMessage = failureMessage
	}
	return response
}

func (s *Service) settledResponse(order *models.Order) *models.ChargeResponse {
	response := &models.ChargeResponse{
		OrderID:       order.OrderID,
		Status:        order.PaymentStatus,
		TransactionID: order.TransactionID,
	}
	if order.PaymentStatus == models.StatusPaid {
		response.RedirectURL = s.ReturnURL(order.FormID, order.OrderID)
	} else {
		response.ErrorMessage = "Payment already failed for this order."
	}
	return response
}

// ReturnURL builds the signed redirect URL that reopens the order's
// confirmation or payment page.
func (s *Service) ReturnURL(formID, orderID int64) string {
	token := s.returns.Issue(formID, orderID)
	return s.cfg.Return.BaseURL + "?token=" + url.QueryEscape(token)
}

func (s *Service) loadBilling(ctx context.Context, orderID int64) models.BillingInfo {
	var billing models.BillingInfo
	snapshot, err := s.store.GetMeta(ctx, orderID, billingMetaKey)
	if err != nil || snapshot == "" {
		return billing
	}
	if err := json.Unmarshal([]byte(snapshot), &billing); err != nil {
		s.log.Warn("CHECKOUT", fmt.Sprintf("Unreadable billing snapshot for order %d: %v", orderID, err))
	}
	return billing
}
