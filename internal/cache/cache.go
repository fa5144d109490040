package cache

import (
	"context"
	"errors"

	"github.com/fjod/cartql/internal/domain"
)

// ItemCache holds a cart's item collection between mutations. Totals are
// never cached; they are derived from the items on every read.
//
// Every cart has a generation that Invalidate bumps. A reader takes the
// generation before loading items from storage and hands it back to Set,
// so a load that overlapped a mutation can never refill the cache.
type ItemCache interface {
	Get(ctx context.Context, cartID string) ([]domain.CartItem, error)
	Generation(ctx context.Context, cartID string) (int64, error)
	// Set stores items only while the cart is still at generation gen and
	// returns ErrStale otherwise.
	Set(ctx context.Context, cartID string, gen int64, items []domain.CartItem) error
	// Invalidate drops the cached items and bumps the generation.
	Invalidate(ctx context.Context, cartID string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrStale     = errors.New("cache generation changed")
)

// NoopCache always misses. Used when no Redis address is configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]domain.CartItem, error) { return nil, ErrCacheMiss }
func (NoopCache) Generation(context.Context, string) (int64, error)     { return 0, nil }
func (NoopCache) Set(context.Context, string, int64, []domain.CartItem) error {
	return nil
}
func (NoopCache) Invalidate(context.Context, string) error { return nil }
