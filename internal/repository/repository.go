package repository

import (
	"context"
	"errors"

	"github.com/fjod/cartql/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrCartExists   = errors.New("cart already exists")
	ErrItemNotFound = errors.New("item not found in cart")
	ErrContention   = errors.New("item changed concurrently")
)

// maxDecrementAttempts bounds DecrementItem retries when the quantity keeps
// moving between its update and delete statements.
const maxDecrementAttempts = 5

// CartRepository is the storage boundary of the cart service.
// Quantity changes must be atomic per item: UpsertItem and UpdateItemQuantity
// apply their increments inside the store, never read-modify-write.
type CartRepository interface {
	FindCartByID(ctx context.Context, id string) (*domain.Cart, error)
	CreateCart(ctx context.Context, id string) (*domain.Cart, error)
	// UpsertItem inserts item with quantity incrementBy, or adds incrementBy
	// to the quantity of the existing (item.ID, item.CartID) row. The other
	// fields of an existing row are left untouched.
	UpsertItem(ctx context.Context, item domain.CartItem, incrementBy int64) (domain.CartItem, error)
	// UpdateItemQuantity adds delta (which may be negative) to the item's
	// quantity and returns the updated item.
	UpdateItemQuantity(ctx context.Context, cartID, itemID string, delta int64) (domain.CartItem, error)
	// DecrementItem takes one off the item's quantity, or deletes the row
	// when the result would be negative. Both are conditional single
	// statements, so no row is ever stored below zero.
	DecrementItem(ctx context.Context, cartID, itemID string) (item domain.CartItem, deleted bool, err error)
	DeleteItem(ctx context.Context, cartID, itemID string) error
	// ListItems returns the cart's items in insertion order.
	ListItems(ctx context.Context, cartID string) ([]domain.CartItem, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
