package paylater

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/models"
	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/orderstore"
)

const qrSize = 256

// URLBuilder produces the signed URL that reopens an order's payment page.
type URLBuilder interface {
	ReturnURL(formID, orderID int64) string
}

// Service retrieves the open payment links for a customer: every order of
// theirs that is still payable, each with a signed URL and a QR rendering
// of it.
type Service struct {
	store orderstore.Store
	urls  URLBuilder
	log   *logger.Logger
}

func NewService(store orderstore.Store, urls URLBuilder, log *logger.Logger) *Service {
	return &Service{store: store, urls: urls, log: log}
}

// LinksForEmail lists the payable orders for an email address. QR encoding
// failures degrade to a link without an image rather than dropping the row.
func (s *Service) LinksForEmail(ctx context.Context, email string) ([]models.PaymentLink, error) {
	orders, err := s.store.FindUnpaidByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	links := make([]models.PaymentLink, 0, len(orders))
	for _, order := range orders {
		link := models.PaymentLink{
			OrderID:    order.OrderID,
			Amount:     order.Amount,
			Currency:   order.Currency,
			Status:     order.PaymentStatus,
			PaymentURL: s.urls.ReturnURL(order.FormID, order.OrderID),
		}

		png, err := qrcode.Encode(link.PaymentURL, qrcode.Medium, qrSize)
		if err != nil {
			s.log.Warn("PAYLATER", fmt.Sprintf("QR encoding failed for order %d: %v", order.OrderID, err))
		} else {
			link.QRCodePNG = base64.StdEncoding.EncodeToString(png)
		}

		links = append(links, link)
	}

	s.log.Info("PAYLATER", fmt.Sprintf("Found %d open payment links for %s", len(links), email))
	return links, nil
}
