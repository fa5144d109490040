package service

import (
	"context"
	"errors"
	"strings"

	"github.com/fjod/cartql/internal/domain"
	"github.com/fjod/cartql/internal/events"
	"github.com/fjod/cartql/internal/payment"
	"github.com/fjod/cartql/internal/pricing"
	"github.com/fjod/cartql/internal/repository"
	"github.com/fjod/cartql/pkg/circuitbreaker"
	"github.com/fjod/cartql/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const metadataCartID = "cartId"

type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*domain.CheckoutSession, error)
}

type CheckoutConfig struct {
	SuccessURL string
	CancelURL  string
	// Currency sent to the provider, lower-case ISO code.
	Currency string
}

type CheckoutService struct {
	carts     *CartService
	provider  PaymentProvider
	publisher events.Publisher
	cfg       CheckoutConfig
	log       *zap.Logger
}

func NewCheckoutService(carts *CartService, provider PaymentProvider, publisher events.Publisher, cfg CheckoutConfig, log *zap.Logger) *CheckoutService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &CheckoutService{
		carts:     carts,
		provider:  provider,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// CreateCheckoutSession opens a one-time payment session for the cart's
// current items. The cart must already exist; it is never created here.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, cartID string) (*domain.CheckoutSession, error) {
	ctx, span := s.carts.tracer.Start(ctx, "CheckoutService.CreateCheckoutSession",
		trace.WithAttributes(attribute.String("cart.id", cartID)))
	defer span.End()

	cartID, err := cleanCartID(cartID)
	if err != nil {
		return nil, s.carts.fail(span, err)
	}

	cart, err := s.carts.repo.FindCartByID(ctx, cartID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, s.carts.fail(span, domain.NewValidation(domain.MsgInvalidCart))
	}
	if err != nil {
		return nil, s.carts.fail(span, domain.StorageError("find cart", err))
	}

	items, err := s.carts.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, s.carts.fail(span, domain.StorageError("list items", err))
	}
	items = payable(items)
	if len(items) == 0 {
		return nil, s.carts.fail(span, domain.NewValidation(domain.MsgCartEmpty))
	}

	req := s.sessionRequest(cart.ID, items)
	session, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		log := logger.WithTrace(ctx, s.log).With(zap.String("cart_id", cart.ID), zap.Error(err))
		if circuitbreaker.IsOpen(err) {
			log.Warn("payment provider circuit open")
		} else {
			log.Error("create checkout session failed")
		}
		return nil, s.carts.fail(span, domain.PaymentProviderError(err))
	}

	evt := events.CheckoutSessionCreated{
		CartID:      cart.ID,
		SessionID:   session.ID,
		ItemCount:   pricing.TotalItems(items),
		AmountTotal: pricing.SubTotalAmount(items),
		Currency:    s.cfg.Currency,
	}
	if err := s.publisher.PublishCheckoutSessionCreated(ctx, evt); err != nil {
		logger.WithTrace(ctx, s.log).Warn("publish checkout event failed",
			zap.String("cart_id", cart.ID), zap.String("session_id", session.ID), zap.Error(err))
	}

	return session, nil
}

func (s *CheckoutService) sessionRequest(cartID string, items []domain.CartItem) payment.SessionRequest {
	lineItems := make([]payment.LineItem, 0, len(items))
	for _, item := range items {
		product := payment.ProductData{
			Name:        item.Name,
			Description: item.Description,
		}
		if item.Image != nil && *item.Image != "" {
			product.Images = []string{*item.Image}
		}
		lineItems = append(lineItems, payment.LineItem{
			Quantity:   item.Quantity,
			UnitAmount: pricing.UnitAmount(item),
			Currency:   s.cfg.Currency,
			Product:    product,
		})
	}

	return payment.SessionRequest{
		LineItems:  lineItems,
		Mode:       payment.ModePayment,
		Metadata:   map[string]string{metadataCartID: cartID},
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	}
}

// payable drops zero-quantity rows left behind by decrements; the provider
// rejects line items without a quantity.
func payable(items []domain.CartItem) []domain.CartItem {
	out := items[:0:0]
	for _, item := range items {
		if item.Quantity > 0 {
			out = append(out, item)
		}
	}
	return out
}
