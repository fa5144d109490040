package service

import (
	"errors"
	"strings"
	"time"

	"github.com/fjod/cartql/internal/domain"
	"github.com/fjod/cartql/internal/pricing"
	"github.com/fjod/cartql/internal/repository"
)

const cacheTimeout = time.Second

func cleanCartID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.NewValidation(domain.MsgInvalidCartID)
	}
	return id, nil
}

func validateAddItem(in *AddItemInput) error {
	in.CartID = strings.TrimSpace(in.CartID)
	in.ItemID = strings.TrimSpace(in.ItemID)
	switch {
	case in.CartID == "":
		return domain.NewValidation(domain.MsgInvalidCartID)
	case in.ItemID == "":
		return domain.NewValidation(domain.MsgInvalidItemID)
	case strings.TrimSpace(in.Name) == "":
		return domain.NewValidation("Item name is required")
	case in.Price < 0 || in.Price > pricing.MaxValue:
		return domain.NewValidationf("Invalid price %d", in.Price)
	case in.Quantity < 0 || in.Quantity > pricing.MaxValue:
		return domain.NewValidationf("Invalid quantity %d", in.Quantity)
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	return nil
}

func mapRepoErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrItemNotFound):
		return domain.NewNotFound(domain.MsgItemNotFound)
	case errors.Is(err, repository.ErrCartNotFound):
		return domain.NewNotFound(domain.MsgInvalidCart)
	default:
		return domain.StorageError(op, err)
	}
}
