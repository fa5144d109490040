package graphql

import (
	"context"
	"fmt"
	"math"

	"github.com/fjod/cartql/internal/domain"
	"github.com/fjod/cartql/internal/pricing"
	"github.com/fjod/cartql/internal/service"
)

type CartAPI interface {
	GetCart(ctx context.Context, id string) (*domain.Cart, error)
	AddItem(ctx context.Context, in service.AddItemInput) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error)
	IncreaseCartItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error)
	DecreaseCartItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error)
}

type CheckoutAPI interface {
	CreateCheckoutSession(ctx context.Context, cartID string) (*domain.CheckoutSession, error)
}

type Resolver struct {
	carts    CartAPI
	checkout CheckoutAPI
	money    pricing.MoneyFormatter
}

func NewResolver(carts CartAPI, checkout CheckoutAPI, money pricing.MoneyFormatter) *Resolver {
	return &Resolver{carts: carts, checkout: checkout, money: money}
}

func (r *Resolver) Query() QueryResolver       { return &queryResolver{r} }
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }
func (r *Resolver) Cart() CartResolver         { return &cartResolver{r} }
func (r *Resolver) CartItem() CartItemResolver { return &cartItemResolver{r} }
func (r *Resolver) Money() MoneyResolver       { return &moneyResolver{r} }

type queryResolver struct{ *Resolver }

func (r *queryResolver) Cart(ctx context.Context, id string) (*domain.Cart, error) {
	return r.carts.GetCart(ctx, id)
}

type mutationResolver struct{ *Resolver }

func (r *mutationResolver) AddItem(ctx context.Context, input AddToCartInput) (*domain.Cart, error) {
	in := service.AddItemInput{
		CartID:      input.CartID,
		ItemID:      input.ID,
		Name:        input.Name,
		Description: input.Description,
		Image:       input.Image,
		Price:       int64(input.Price),
	}
	// An explicit null quantity means the default of one.
	if input.Quantity != nil {
		in.Quantity = int64(*input.Quantity)
	}
	return r.carts.AddItem(ctx, in)
}

func (r *mutationResolver) RemoveItem(ctx context.Context, input RemoveFromCartInput) (*domain.Cart, error) {
	return r.carts.RemoveItem(ctx, input.CartID, input.ID)
}

func (r *mutationResolver) IncreaseCartItem(ctx context.Context, input IncreaseCartItemInput) (*domain.Cart, error) {
	return r.carts.IncreaseCartItem(ctx, input.CartID, input.ID)
}

func (r *mutationResolver) DecreaseCartItem(ctx context.Context, input DecreaseCartItemInput) (*domain.Cart, error) {
	return r.carts.DecreaseCartItem(ctx, input.CartID, input.ID)
}

func (r *mutationResolver) CreateCheckoutSession(ctx context.Context, input CreateCheckoutSessionInput) (*domain.CheckoutSession, error) {
	return r.checkout.CreateCheckoutSession(ctx, input.CartID)
}

type cartResolver struct{ *Resolver }

func (r *cartResolver) TotalItems(_ context.Context, obj *domain.Cart) (int32, error) {
	return toInt(pricing.TotalItems(obj.Items))
}

func (r *cartResolver) SubTotal(_ context.Context, obj *domain.Cart, currency *CurrencyCode) (*domain.Money, error) {
	m := pricing.SubTotal(r.money, obj.Items, currencyCode(currency))
	return &m, nil
}

type cartItemResolver struct{ *Resolver }

func (r *cartItemResolver) Quantity(_ context.Context, obj *domain.CartItem) (int32, error) {
	return toInt(obj.Quantity)
}

func (r *cartItemResolver) UnitTotal(_ context.Context, obj *domain.CartItem, currency *CurrencyCode) (*domain.Money, error) {
	m := pricing.UnitTotal(r.money, *obj, currencyCode(currency))
	return &m, nil
}

func (r *cartItemResolver) LineTotal(_ context.Context, obj *domain.CartItem, currency *CurrencyCode) (*domain.Money, error) {
	m := pricing.LineTotal(r.money, *obj, currencyCode(currency))
	return &m, nil
}

type moneyResolver struct{ *Resolver }

func (r *moneyResolver) Amount(_ context.Context, obj *domain.Money) (int32, error) {
	return toInt(obj.Amount)
}

// currencyCode maps an absent argument to "", which the formatter reads as
// its default currency.
func currencyCode(c *CurrencyCode) string {
	if c == nil {
		return ""
	}
	return c.String()
}

// toInt guards values headed for a GraphQL Int. Stored carts stay within
// pricing.MaxValue, so a failure here means the limits were bypassed.
func toInt(v int64) (int32, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("%w: %d", pricing.ErrOutOfRange, v)
	}
	return int32(v), nil
}
