package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/cartql/internal/domain"
	"github.com/fjod/cartql/pkg/circuitbreaker"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"go.uber.org/zap"
)

type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API base URL, used against stripe-mock.
	APIURL  string
	Timeout time.Duration
}

type StripeProvider struct {
	sessions session.Client
	breaker  *circuitbreaker.Breaker[*domain.CheckoutSession]
	timeout  time.Duration
}

func NewStripeProvider(cfg StripeConfig, log *zap.Logger) *StripeProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	return &StripeProvider{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		breaker: circuitbreaker.New[*domain.CheckoutSession](circuitbreaker.DefaultConfig("stripe-checkout"), log),
		timeout: cfg.Timeout,
	}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*domain.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := toStripeParams(req)
	params.Context = ctx

	return p.breaker.Execute(func() (*domain.CheckoutSession, error) {
		s, err := p.sessions.New(params)
		if err != nil {
			return nil, err
		}
		return &domain.CheckoutSession{ID: s.ID, URL: s.URL}, nil
	})
}

func toStripeParams(req SessionRequest) *stripe.CheckoutSessionParams {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:        stripe.String(li.Product.Name),
			Description: li.Product.Description,
		}
		if len(li.Product.Images) > 0 {
			product.Images = stripe.StringSlice(li.Product.Images)
		}

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(li.Currency),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: product,
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		LineItems:  lineItems,
		Mode:       stripe.String(req.Mode),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}
