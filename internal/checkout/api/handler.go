package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/auth"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/checkout"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/utils"
)

// Handler is the checkout-facing HTTP surface: opening payment sessions
// and submitting charges from the hosted payment page.
type Handler struct {
	service  *checkout.Service
	sessions *auth.SessionSigner
	log      *logger.Logger
}

func NewHandler(service *checkout.Service, sessions *auth.SessionSigner, log *logger.Logger) *Handler {
	return &Handler{service: service, sessions: sessions, log: log}
}

func (h *Handler) Register(r *gin.Engine) {
	r.POST("/sessions", h.CreateSession)
	r.POST("/charge", h.Charge)
}

type createSessionRequest struct {
	OrderID int64              `json:"order_id" binding:"required"`
	Billing models.BillingInfo `json:"billing"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), req.OrderID, req.Billing)
	if err != nil {
		switch {
		case errors.Is(err, orderstore.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found", err.Error()))
		case errors.Is(err, orderstore.ErrAlreadyFinal):
			c.JSON(http.StatusConflict, utils.ErrorResponse("Order is already settled", err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to create payment session", err.Error()))
		}
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("Payment session created", session))
}

func (h *Handler) Charge(c *gin.Context) {
	sessionOrderID, ok := h.authorizedOrder(c)
	if !ok {
		return
	}

	var req models.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	// The session token authorizes exactly one order.
	if req.OrderID != sessionOrderID {
		c.JSON(http.StatusForbidden, utils.ErrorResponse("Session does not match order", "session token was issued for a different order"))
		return
	}

	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	resp, err := h.service.Charge(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, orderstore.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to process charge", err.Error()))
		return
	}

	if resp.Status == models.StatusPaid {
		c.JSON(http.StatusOK, utils.SuccessResponse("Payment approved", resp))
		return
	}
	c.JSON(http.StatusOK, utils.ErrorResponse(resp.ErrorMessage, string(resp.Status)))
}

func (h *Handler) authorizedOrder(c *gin.Context) (int64, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Missing session token", "expected Authorization: Bearer <session token>"))
		return 0, false
	}

	orderID, err := h.sessions.Verify(parts[1])
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Invalid session token", err.Error()))
		return 0, false
	}
	return orderID, true
}
