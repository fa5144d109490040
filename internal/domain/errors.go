package domain

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindStorage
	KindPaymentProvider
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION"
	case KindStorage:
		return "STORAGE"
	case KindPaymentProvider:
		return "PAYMENT_PROVIDER"
	default:
		return "UNKNOWN"
	}
}

// Error tags an underlying failure with one of the cart error kinds.
// Sentinels below carry only a kind, so errors.Is(err, ErrNotFound) matches
// any *Error of that kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrStorage         = &Error{Kind: KindStorage}
	ErrPaymentProvider = &Error{Kind: KindPaymentProvider}
)

// Messages surfaced to API clients verbatim.
const (
	MsgInvalidCart   = "Invalid cart"
	MsgCartEmpty     = "Cart is empty"
	MsgInvalidCartID = "Invalid cart id"
	MsgInvalidItemID = "Invalid item id"
	MsgItemNotFound  = "Item not found in cart"
	MsgLimitExceeded = "Cart quantity or total exceeds the supported limit"
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" && t.Message != e.Message {
		return false
	}
	return t.Kind == e.Kind
}

func NewNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewValidation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewValidationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a persistence failure. A nil err yields nil.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// PaymentProviderError wraps a payment collaborator failure. A nil err yields nil.
func PaymentProviderError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPaymentProvider, Message: "payment provider", Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
