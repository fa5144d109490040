package payment

import (
	"context"
	"errors"

	"github.com/fjod/cartql/internal/domain"
)

const ModePayment = "payment"

var ErrNotConfigured = errors.New("payment provider is not configured")

type ProductData struct {
	Name        string
	Description *string
	Images      []string
}

type LineItem struct {
	Quantity   int64
	UnitAmount int64
	Currency   string
	Product    ProductData
}

// SessionRequest is everything the provider needs to open a checkout session.
type SessionRequest struct {
	LineItems  []LineItem
	Mode       string
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

// Disabled rejects every request. Wired when no provider key is configured.
type Disabled struct{}

func (Disabled) CreateCheckoutSession(context.Context, SessionRequest) (*domain.CheckoutSession, error) {
	return nil, ErrNotConfigured
}
