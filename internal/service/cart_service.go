package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/fjod/cartql/internal/cache"
	"github.com/fjod/cartql/internal/domain"
	"github.com/fjod/cartql/internal/pricing"
	"github.com/fjod/cartql/internal/repository"
	"github.com/fjod/cartql/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/fjod/cartql/internal/service"

type CartService struct {
	repo  repository.CartRepository
	cache cache.ItemCache
	sfg   singleflight.Group // Prevents cache stampede
	// writes counts completed mutations; it is part of the singleflight key
	// so a read never joins a load that started before a mutation finished.
	writes atomic.Uint64
	log    *zap.Logger
	tracer trace.Tracer
}

func NewCartService(repo repository.CartRepository, itemCache cache.ItemCache, log *zap.Logger) *CartService {
	if itemCache == nil {
		itemCache = cache.NoopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{
		repo:   repo,
		cache:  itemCache,
		log:    log,
		tracer: otel.Tracer(tracerName),
	}
}

// AddItemInput describes one addItem call. Quantity 0 means "not supplied"
// and is treated as 1.
type AddItemInput struct {
	CartID      string
	ItemID      string
	Name        string
	Description *string
	Image       *string
	Price       int64
	Quantity    int64
}

// EnsureCart returns the cart with the given id, creating it empty on first
// reference. The returned cart has no items loaded.
func (s *CartService) EnsureCart(ctx context.Context, id string) (*domain.Cart, error) {
	id, err := cleanCartID(id)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.FindCartByID(ctx, id)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrCartNotFound) {
		return nil, domain.StorageError("find cart", err)
	}

	cart, err = s.repo.CreateCart(ctx, id)
	if errors.Is(err, repository.ErrCartExists) {
		// lost a creation race; the winner's cart is the cart
		cart, err = s.repo.FindCartByID(ctx, id)
	}
	if err != nil {
		return nil, domain.StorageError("create cart", err)
	}
	logger.WithTrace(ctx, s.log).Debug("cart created", zap.String("cart_id", id))
	return cart, nil
}

// GetCart ensures the cart exists and loads its items.
func (s *CartService) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.GetCart", trace.WithAttributes(attribute.String("cart.id", id)))
	defer span.End()

	cart, err := s.EnsureCart(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}

	items, err := s.cachedItems(ctx, cart.ID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	cart.Items = items
	return cart, nil
}

func (s *CartService) AddItem(ctx context.Context, in AddItemInput) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.AddItem", trace.WithAttributes(
		attribute.String("cart.id", in.CartID),
		attribute.String("item.id", in.ItemID),
	))
	defer span.End()

	if err := validateAddItem(&in); err != nil {
		return nil, s.fail(span, err)
	}
	cart, err := s.EnsureCart(ctx, in.CartID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	if err := s.checkProjected(ctx, cart.ID, in.ItemID, in.Price, in.Quantity); err != nil {
		return nil, s.fail(span, err)
	}

	item := domain.CartItem{
		ID:          in.ItemID,
		CartID:      cart.ID,
		Name:        in.Name,
		Description: in.Description,
		Image:       in.Image,
		Price:       in.Price,
	}
	saved, err := s.repo.UpsertItem(ctx, item, in.Quantity)
	if err != nil {
		logger.WithTrace(ctx, s.log).Error("repo upsert item failed", zap.String("cart_id", cart.ID), zap.Error(err))
		return nil, s.fail(span, mapRepoErr("upsert item", err))
	}

	return s.afterIncrement(ctx, span, cart, saved, in.Quantity)
}

func (s *CartService) RemoveItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error) {
	ctx, span := s.startItemSpan(ctx, "CartService.RemoveItem", cartID, itemID)
	defer span.End()

	cart, itemID, err := s.prepareItemMutation(ctx, cartID, itemID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.repo.DeleteItem(ctx, cart.ID, itemID); err != nil {
		return nil, s.fail(span, mapRepoErr("delete item", err))
	}

	return s.afterMutation(ctx, span, cart)
}

func (s *CartService) IncreaseCartItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error) {
	ctx, span := s.startItemSpan(ctx, "CartService.IncreaseCartItem", cartID, itemID)
	defer span.End()

	cart, itemID, err := s.prepareItemMutation(ctx, cartID, itemID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.checkProjected(ctx, cart.ID, itemID, 0, 1); err != nil {
		return nil, s.fail(span, err)
	}
	saved, err := s.repo.UpdateItemQuantity(ctx, cart.ID, itemID, 1)
	if err != nil {
		return nil, s.fail(span, mapRepoErr("increase item", err))
	}

	return s.afterIncrement(ctx, span, cart, saved, 1)
}

// DecreaseCartItem takes one off the item's quantity. The item is deleted
// only when the result is negative, so 1 -> 0 keeps a zero-quantity row.
func (s *CartService) DecreaseCartItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error) {
	ctx, span := s.startItemSpan(ctx, "CartService.DecreaseCartItem", cartID, itemID)
	defer span.End()

	cart, itemID, err := s.prepareItemMutation(ctx, cartID, itemID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if _, _, err := s.repo.DecrementItem(ctx, cart.ID, itemID); err != nil {
		return nil, s.fail(span, mapRepoErr("decrease item", err))
	}

	return s.afterMutation(ctx, span, cart)
}

func (s *CartService) prepareItemMutation(ctx context.Context, cartID, itemID string) (*domain.Cart, string, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, "", domain.NewValidation(domain.MsgInvalidItemID)
	}
	cart, err := s.EnsureCart(ctx, cartID)
	if err != nil {
		return nil, "", err
	}
	return cart, itemID, nil
}

// afterMutation drops the cached items and returns the cart re-read from
// storage so the caller observes its own write.
func (s *CartService) afterMutation(ctx context.Context, span trace.Span, cart *domain.Cart) (*domain.Cart, error) {
	s.invalidateCache(cart.ID)

	items, err := s.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, s.fail(span, domain.StorageError("list items", err))
	}
	cart.Items = items
	return cart, nil
}

// afterIncrement is afterMutation for writes that added delta to saved. When
// a concurrent write pushed the cart past the limits between the check and
// this write, the increment is taken back and the call is rejected.
func (s *CartService) afterIncrement(ctx context.Context, span trace.Span, cart *domain.Cart, saved domain.CartItem, delta int64) (*domain.Cart, error) {
	cart, err := s.afterMutation(ctx, span, cart)
	if err != nil {
		return nil, err
	}
	if pricing.CheckLimits(cart.Items) == nil {
		return cart, nil
	}

	var undoErr error
	if saved.Quantity == delta {
		undoErr = s.repo.DeleteItem(ctx, cart.ID, saved.ID)
	} else {
		_, undoErr = s.repo.UpdateItemQuantity(ctx, cart.ID, saved.ID, -delta)
	}
	s.invalidateCache(cart.ID)
	if undoErr != nil {
		logger.WithTrace(ctx, s.log).Error("undo over-limit increment failed",
			zap.String("cart_id", cart.ID), zap.String("item_id", saved.ID), zap.Error(undoErr))
		return nil, s.fail(span, domain.StorageError("undo increment", undoErr))
	}
	return nil, s.fail(span, domain.NewValidation(domain.MsgLimitExceeded))
}

// checkProjected rejects a write of delta to itemID when the resulting cart
// could not be reported by the API. price is used only for a new item.
func (s *CartService) checkProjected(ctx context.Context, cartID, itemID string, price, delta int64) error {
	items, err := s.repo.ListItems(ctx, cartID)
	if err != nil {
		return domain.StorageError("list items", err)
	}
	if err := pricing.CheckLimits(pricing.Project(items, itemID, price, delta)); err != nil {
		return domain.NewValidation(domain.MsgLimitExceeded)
	}
	return nil
}

// cachedItems reads through the item cache, coalescing concurrent misses.
// The cache generation is taken before storage is read, so a load that
// overlaps a mutation cannot write its stale result back.
func (s *CartService) cachedItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	key := cartID + "@" + strconv.FormatUint(s.writes.Load(), 10)
	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		items, err := s.cache.Get(ctx, cartID)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.WithTrace(ctx, s.log).Warn("cache get error", zap.String("cart_id", cartID), zap.Error(err))
		}

		gen, genErr := s.cache.Generation(ctx, cartID)
		if genErr != nil {
			logger.WithTrace(ctx, s.log).Warn("cache generation error", zap.String("cart_id", cartID), zap.Error(genErr))
		}

		items, err = s.repo.ListItems(ctx, cartID)
		if err != nil {
			return nil, domain.StorageError("list items", err)
		}
		if genErr != nil {
			return items, nil
		}

		errSet := s.cache.Set(ctx, cartID, gen, items)
		switch {
		case errors.Is(errSet, cache.ErrStale):
			logger.WithTrace(ctx, s.log).Debug("cart changed while loading, not cached", zap.String("cart_id", cartID))
		case errSet != nil:
			logger.WithTrace(ctx, s.log).Warn("cache set error", zap.String("cart_id", cartID), zap.Error(errSet))
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}

	items := v.([]domain.CartItem)
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	return out, nil
}

func (s *CartService) invalidateCache(cartID string) {
	s.writes.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, cartID); err != nil {
		s.log.Warn("cache invalidate error", zap.String("cart_id", cartID), zap.Error(err))
	}
}

func (s *CartService) startItemSpan(ctx context.Context, name, cartID, itemID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("cart.id", cartID),
		attribute.String("item.id", itemID),
	))
}

func (s *CartService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
