// Package events announces checkout sessions to downstream consumers.
package events

import (
	"context"
	"time"
)

const (
	TypeCheckoutSessionCreated = "checkout.session.created"
	headerEventType            = "event_type"
)

type CheckoutSessionCreated struct {
	EventID     string    `json:"event_id"`
	CartID      string    `json:"cart_id"`
	SessionID   string    `json:"session_id"`
	ItemCount   int64     `json:"item_count"`
	AmountTotal int64     `json:"amount_total"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

type Publisher interface {
	PublishCheckoutSessionCreated(ctx context.Context, evt CheckoutSessionCreated) error
	Close() error
}

// NoopPublisher drops every event. Wired when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishCheckoutSessionCreated(context.Context, CheckoutSessionCreated) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
