package graphql

import (
	"context"
	"errors"

	"github.com/99designs/gqlgen/graphql"
	"github.com/fjod/cartql/internal/domain"
	"github.com/fjod/cartql/pkg/logger"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

// Error codes reported in extensions.code.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeBadUserInput    = "BAD_USER_INPUT"
	CodeStorage         = "STORAGE_ERROR"
	CodePaymentProvider = "PAYMENT_PROVIDER_ERROR"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

// presentError maps the domain taxonomy onto client-facing errors. Causes of
// storage and provider failures are logged and never shown to clients.
// Parse and validation errors from gqlgen carry no cause and pass through.
func presentError(log *zap.Logger) graphql.ErrorPresenterFunc {
	return func(ctx context.Context, err error) *gqlerror.Error {
		gqlErr := graphql.DefaultErrorPresenter(ctx, err)

		var de *domain.Error
		if !errors.As(err, &de) && gqlErr.Err == nil {
			return gqlErr
		}

		l := logger.WithTrace(ctx, log).With(zap.String("path", gqlErr.Path.String()), zap.Error(err))
		if isInternal(err) {
			l.Error("graphql field failed")
		} else {
			l.Debug("graphql field rejected")
		}

		code, msg := classify(de, err)
		return &gqlerror.Error{
			Err:        err,
			Message:    msg,
			Path:       gqlErr.Path,
			Locations:  fieldLocations(ctx, gqlErr),
			Extensions: map[string]interface{}{"code": code},
		}
	}
}

func classify(de *domain.Error, err error) (code, msg string) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return CodeNotFound, clientMessage(de, "Not found")
	case domain.KindValidation:
		return CodeBadUserInput, clientMessage(de, "Invalid input")
	case domain.KindStorage:
		return CodeStorage, "Cart storage is unavailable"
	case domain.KindPaymentProvider:
		return CodePaymentProvider, "Could not create checkout session"
	default:
		return CodeInternal, "Internal server error"
	}
}

func clientMessage(de *domain.Error, fallback string) string {
	if de == nil || de.Message == "" {
		return fallback
	}
	return de.Message
}

func isInternal(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindNotFound, domain.KindValidation:
		return false
	}
	return true
}

func fieldLocations(ctx context.Context, gqlErr *gqlerror.Error) []gqlerror.Location {
	if len(gqlErr.Locations) > 0 {
		return gqlErr.Locations
	}
	fc := graphql.GetFieldContext(ctx)
	if fc == nil || fc.Field.Field == nil || fc.Field.Position == nil {
		return nil
	}
	return []gqlerror.Location{{Line: fc.Field.Position.Line, Column: fc.Field.Position.Column}}
}

// recoverPanic reports a panicking resolver as an internal error.
func recoverPanic(log *zap.Logger) graphql.RecoverFunc {
	return func(ctx context.Context, p interface{}) error {
		logger.WithTrace(ctx, log).Error("graphql resolver panicked", zap.Any("panic", p), zap.Stack("stack"))
		return &gqlerror.Error{
			Message:    "Internal server error",
			Extensions: map[string]interface{}{"code": CodeInternal},
		}
	}
}
