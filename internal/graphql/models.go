package graphql

import (
	"fmt"
	"io"
	"strconv"
)

type AddToCartInput struct {
	CartID      string  `json:"cartId"`
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
	Price       int32   `json:"price"`
	Quantity    *int32  `json:"quantity,omitempty"`
}

type CreateCheckoutSessionInput struct {
	CartID string `json:"cartId"`
}

type DecreaseCartItemInput struct {
	CartID string `json:"cartId"`
	ID     string `json:"id"`
}

type IncreaseCartItemInput struct {
	CartID string `json:"cartId"`
	ID     string `json:"id"`
}

type RemoveFromCartInput struct {
	CartID string `json:"cartId"`
	ID     string `json:"id"`
}

type CurrencyCode string

const (
	CurrencyCodeUsd CurrencyCode = "USD"
	CurrencyCodeInr CurrencyCode = "INR"
)

var AllCurrencyCode = []CurrencyCode{
	CurrencyCodeUsd,
	CurrencyCodeInr,
}

func (e CurrencyCode) IsValid() bool {
	switch e {
	case CurrencyCodeUsd, CurrencyCodeInr:
		return true
	}
	return false
}

func (e CurrencyCode) String() string {
	return string(e)
}

func (e *CurrencyCode) UnmarshalGQL(v any) error {
	str, ok := v.(string)
	if !ok {
		return fmt.Errorf("enums must be strings")
	}

	*e = CurrencyCode(str)
	if !e.IsValid() {
		return fmt.Errorf("%s is not a valid CurrencyCode", str)
	}
	return nil
}

func (e CurrencyCode) MarshalGQL(w io.Writer) {
	fmt.Fprint(w, strconv.Quote(e.String()))
}
