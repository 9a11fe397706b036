// Package notify publishes user-facing purchase notifications over
// Redis pub/sub.
//
// The publisher is a hook: register it on a Ledger and every purchase
// progress, failure and balance restoration is pushed to a channel the
// front end subscribes to. Publishing is fire-and-forget from the
// core's perspective; a Redis outage never fails a settlement.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beneflow/ledger/hook"
)

// Compile-time interface checks.
var (
	_ hook.Hook               = (*Publisher)(nil)
	_ hook.OnPurchaseProgress = (*Publisher)(nil)
	_ hook.OnPaymentFailed    = (*Publisher)(nil)
	_ hook.OnBalanceRestored  = (*Publisher)(nil)
	_ hook.OnShutdown         = (*Publisher)(nil)
)

const defaultChannel = "ledger:purchases"

// Publisher pushes purchase notifications to a Redis channel.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithChannel overrides the pub/sub channel name.
func WithChannel(channel string) Option {
	return func(p *Publisher) {
		p.channel = channel
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a Publisher over an existing Redis client.
func New(client redis.UniversalClient, opts ...Option) *Publisher {
	p := &Publisher{
		client:  client,
		channel: defaultChannel,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements hook.Hook.
func (p *Publisher) Name() string { return "redis-notify" }

// message is the wire shape of a published notification.
type message struct {
	Kind          string    `json:"kind"`
	OrderID       string    `json:"order_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Owner         string    `json:"owner,omitempty"`
	Step          string    `json:"step,omitempty"`
	Method        string    `json:"method,omitempty"`
	Stage         string    `json:"stage,omitempty"`
	Error         string    `json:"error,omitempty"`
	BalanceAmount int64     `json:"balance_amount,omitempty"`
	CardAmount    int64     `json:"card_amount,omitempty"`
	// RemainingBalance is not omitempty: a purchase that empties the
	// balance must still tell the front end the new balance is zero.
	RemainingBalance int64     `json:"remaining_balance"`
	Amount           int64     `json:"amount,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	At               time.Time `json:"at"`
}

// OnPurchaseProgress implements hook.OnPurchaseProgress.
func (p *Publisher) OnPurchaseProgress(ctx context.Context, n hook.ProgressNotice) error {
	return p.publish(ctx, message{
		Kind:             "purchase_progress",
		OrderID:          n.OrderID,
		UserID:           n.UserID,
		Step:             n.Step,
		Method:           n.Method,
		BalanceAmount:    n.BalanceAmount.Amount,
		CardAmount:       n.CardAmount.Amount,
		RemainingBalance: n.RemainingBalance.Amount,
		Currency:         n.BalanceAmount.Currency,
		At:               n.At,
	})
}

// OnPaymentFailed implements hook.OnPaymentFailed.
func (p *Publisher) OnPaymentFailed(ctx context.Context, n hook.FailureNotice) error {
	msg := message{
		Kind:    "payment_failed",
		OrderID: n.OrderID,
		UserID:  n.UserID,
		Stage:   n.Stage,
		At:      n.At,
	}
	if n.Err != nil {
		msg.Error = n.Err.Error()
	}
	return p.publish(ctx, msg)
}

// OnBalanceRestored implements hook.OnBalanceRestored.
func (p *Publisher) OnBalanceRestored(ctx context.Context, n hook.RestoreNotice) error {
	return p.publish(ctx, message{
		Kind:     "balance_restored",
		OrderID:  n.OrderID,
		Owner:    n.Owner.String(),
		Amount:   n.Amount.Amount,
		Currency: n.Amount.Currency,
		At:       n.At,
	})
}

// OnShutdown implements hook.OnShutdown.
func (p *Publisher) OnShutdown(context.Context) error {
	return p.client.Close()
}

func (p *Publisher) publish(ctx context.Context, msg message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", msg.Kind, err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		// Fire-and-forget: a dead broker must not fail the settlement.
		p.logger.Warn("notify: publish failed",
			"kind", msg.Kind,
			"channel", p.channel,
			"error", err,
		)
	}
	return nil
}
