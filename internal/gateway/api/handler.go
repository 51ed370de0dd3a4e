package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/ledger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/paylater"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/reconcile"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/returntoken"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/signature"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/utils"
)

const signatureHeader = "Webhook-Signature"

const maxWebhookBody = 1 << 20

// Handler is the gateway-facing HTTP surface: the processor webhook, the
// browser return redirect, and the authenticated admin endpoints.
type Handler struct {
	verifier   *signature.Verifier
	dispatcher *reconcile.Dispatcher
	machine    *reconcile.StateMachine
	store      orderstore.Store
	returns    *returntoken.Codec
	paylinks   *paylater.Service
	events     *ledger.PostgreSQLLedger
	log        *logger.Logger
}

func NewHandler(
	verifier *signature.Verifier,
	dispatcher *reconcile.Dispatcher,
	machine *reconcile.StateMachine,
	store orderstore.Store,
	returns *returntoken.Codec,
	paylinks *paylater.Service,
	events *ledger.PostgreSQLLedger,
	log *logger.Logger,
) *Handler {
	return &Handler{
		verifier:   verifier,
		dispatcher: dispatcher,
		machine:    machine,
		store:      store,
		returns:    returns,
		paylinks:   paylinks,
		events:     events,
		log:        log,
	}
}

// Routes mounts the public endpoints and, when adminAuth is non-nil, the
// admin group behind it.
func (h *Handler) Routes(adminAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/webhook", h.HandleWebhook)
	r.Get("/return", h.HandleReturn)

	r.Route("/admin", func(r chi.Router) {
		if adminAuth != nil {
			r.Use(adminAuth)
		}
		r.Get("/orders/{orderID}", h.HandleGetOrder)
		r.Get("/orders/{orderID}/notes", h.HandleListNotes)
		r.Get("/orders/{orderID}/events", h.HandleListEvents)
		r.Get("/payment-links", h.HandlePaymentLinks)
	})

	return r
}

// HandleWebhook ingests a processor notification. Every outcome that
// should stop processor retries answers 200; only a missing signature, a
// malformed request, an unhandled status, or an internal failure does not.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Unreadable request body", err.Error()))
		return
	}

	if !h.verifier.Verify(rawBody, r.Header.Get(signatureHeader)) {
		writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Invalid webhook signature", "signature verification failed"))
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Malformed webhook payload", err.Error()))
		return
	}
	if payload.EventBody == nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing event body.", "event_body is required"))
		return
	}

	event, err := h.dispatcher.NormalizeWebhook(&payload)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrIgnored):
			writeJSON(w, http.StatusOK, utils.SuccessResponse("Webhook ignored: Entry ID not found.", nil))
		case errors.Is(err, reconcile.ErrUnhandledStatus):
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Unhandled webhook status", err.Error()))
		default:
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Malformed webhook payload", err.Error()))
		}
		return
	}

	// Card capture happens regardless of the reconciliation outcome so late
	// notifications can still backfill settled orders.
	h.dispatcher.CaptureCardFingerprint(r.Context(), event.OrderID, payload.EventBody)

	status, err := h.machine.Apply(r.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, orderstore.ErrOrderNotFound):
			writeJSON(w, http.StatusOK, utils.SuccessResponse("Entry not found.", nil))
		case errors.Is(err, reconcile.ErrAlreadyFinal):
			writeJSON(w, http.StatusOK, utils.SuccessResponse("Entry already processed.", nil))
		case errors.Is(err, reconcile.ErrDuplicate):
			writeJSON(w, http.StatusOK, utils.SuccessResponse(
				fmt.Sprintf("This callback has already been processed (Event Id: %s)", event.EventID), nil))
		default:
			h.log.Error("WEBHOOK", fmt.Sprintf("Failed to apply event %s: %v", event.EventID, err))
			writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to process webhook", err.Error()))
		}
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Webhook processed", map[string]interface{}{
		"order_id": event.OrderID,
		"status":   status,
	}))
}

// ReturnView tells the frontend which page to render after the browser
// comes back from checkout.
type ReturnView struct {
	View    string               `json:"view"`
	FormID  int64                `json:"form_id"`
	OrderID int64                `json:"order_id"`
	Status  models.PaymentStatus `json:"status"`
}

// HandleReturn resolves the signed return redirect. An invalid or missing
// token is a silent no-op; nothing about the failure is revealed.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	formID, orderID, err := h.returns.Verify(r.URL.Query().Get("token"))
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	view := ReturnView{
		View:    "payment_form",
		FormID:  formID,
		OrderID: orderID,
		Status:  order.PaymentStatus,
	}
	if order.PaymentStatus == models.StatusPaid {
		view.View = "confirmation"
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Return resolved", view))
}

func (h *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, orderstore.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load order", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order retrieved", order))
}

func (h *Handler) HandleListNotes(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderIDParam(w, r)
	if !ok {
		return
	}

	notes, err := h.store.ListNotes(r.Context(), orderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load notes", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Notes retrieved", notes))
}

func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderIDParam(w, r)
	if !ok {
		return
	}

	if h.events == nil {
		writeJSON(w, http.StatusNotImplemented, utils.ErrorResponse("Event history unavailable", "ledger backend does not keep per-order history"))
		return
	}

	events, err := h.events.ListByOrder(r.Context(), orderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load events", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Events retrieved", events))
}

func (h *Handler) HandlePaymentLinks(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing email", "email query parameter is required"))
		return
	}

	links, err := h.paylinks.LinksForEmail(r.Context(), email)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load payment links", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment links retrieved", links))
}

func (h *Handler) orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid order id", "orderID must be a positive integer"))
		return 0, false
	}
	return orderID, true
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
