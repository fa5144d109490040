// Package pricing derives item and cart totals from the current item
// collection. Nothing here is cached; every call recomputes from the items.
//
// Quantities are used as stored. A zero-quantity item left behind by a
// decrement counts as zero in both the item count and the subtotal.
package pricing

import (
	"errors"
	"math"

	"github.com/fjod/cartql/internal/domain"
)

// MaxValue is the largest quantity or minor-unit amount the API reports.
// GraphQL Int is a signed 32-bit integer.
const MaxValue int64 = math.MaxInt32

var ErrOutOfRange = errors.New("value exceeds the supported range")

// MoneyFormatter is satisfied by *money.Formatter.
type MoneyFormatter interface {
	Money(amount int64, code string) domain.Money
}

func UnitAmount(item domain.CartItem) int64 {
	return item.Price
}

func LineAmount(item domain.CartItem) int64 {
	return item.Price * item.Quantity
}

func TotalItems(items []domain.CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func SubTotalAmount(items []domain.CartItem) int64 {
	var total int64
	for _, item := range items {
		total += LineAmount(item)
	}
	return total
}

func UnitTotal(f MoneyFormatter, item domain.CartItem, code string) domain.Money {
	return f.Money(UnitAmount(item), code)
}

func LineTotal(f MoneyFormatter, item domain.CartItem, code string) domain.Money {
	return f.Money(LineAmount(item), code)
}

func SubTotal(f MoneyFormatter, items []domain.CartItem, code string) domain.Money {
	return f.Money(SubTotalAmount(items), code)
}

// CheckLimits reports ErrOutOfRange when any price, quantity, line total,
// item count or subtotal of items would exceed MaxValue. It never
// multiplies past the bound, so it is safe on arbitrary stored values.
func CheckLimits(items []domain.CartItem) error {
	var count, sub int64
	for _, item := range items {
		if item.Price > MaxValue || item.Quantity > MaxValue {
			return ErrOutOfRange
		}
		if item.Price > 0 && item.Quantity > MaxValue/item.Price {
			return ErrOutOfRange
		}
		count += item.Quantity
		sub += LineAmount(item)
		if count > MaxValue || sub > MaxValue {
			return ErrOutOfRange
		}
	}
	return nil
}

// Project returns a copy of items with delta added to itemID's quantity,
// or with a new item at price appended when itemID is absent.
func Project(items []domain.CartItem, itemID string, price, delta int64) []domain.CartItem {
	out := make([]domain.CartItem, len(items), len(items)+1)
	copy(out, items)
	for i := range out {
		if out[i].ID == itemID {
			out[i].Quantity += delta
			return out
		}
	}
	return append(out, domain.CartItem{ID: itemID, Price: price, Quantity: delta})
}
