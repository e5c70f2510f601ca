// Package stripe adapts the Stripe API to payment.Gateway.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/payment"
)

var ErrClientInitFailed = errors.New("failed to initialize Stripe client")

type Gateway struct {
	client        *client.API
	webhookSecret string
	log           *logger.Logger
}

func New(secretKey, webhookSecret string, log *logger.Logger) (*Gateway, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrClientInitFailed
	}
	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &Gateway{client: sc, webhookSecret: webhookSecret, log: log}, nil
}

func providerErr(op string, err error) error {
	return fmt.Errorf("stripe %s: %v: %w", op, err, apperr.ErrPaymentProvider)
}

func toIntent(pi *stripe.PaymentIntent) *payment.Intent {
	if pi == nil {
		return nil
	}
	amount := pi.Amount
	if pi.AmountReceived > 0 {
		amount = pi.AmountReceived
	}
	return &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  amount,
		Currency:     strings.ToLower(string(pi.Currency)),
		Status:       payment.IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func (g *Gateway) CreateIntent(ctx context.Context, p payment.CreateIntentParams) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return nil, providerErr("create intent", err)
	}
	g.log.LogPayment("CREATE_INTENT", pi.ID, fmt.Sprintf("%d %s", p.AmountCents, p.Currency))
	return toIntent(pi), nil
}

func (g *Gateway) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, providerErr("get intent", err)
	}
	return toIntent(pi), nil
}

func (g *Gateway) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.client.PaymentIntents.Cancel(id, params); err != nil {
		return providerErr("cancel intent", err)
	}
	g.log.LogPayment("CANCEL_INTENT", id, "cancelled")
	return nil
}

func (g *Gateway) Refund(ctx context.Context, p payment.RefundParams) (*payment.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.IntentID),
		Amount:        stripe.Int64(p.AmountCents),
	}
	params.Context = ctx
	if p.Reason != "" {
		params.AddMetadata("reason", p.Reason)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	r, err := g.client.Refunds.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Refund of %d on %s failed: %v", p.AmountCents, p.IntentID, err))
		return nil, providerErr("refund", err)
	}
	g.log.LogPayment("REFUND", p.IntentID, fmt.Sprintf("refund %s for %d", r.ID, r.Amount))
	return &payment.Refund{ID: r.ID, AmountCents: r.Amount, Status: string(r.Status)}, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %v: %w", err, apperr.ErrValidation)
	}

	out := &payment.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && event.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %v: %w", err, apperr.ErrValidation)
		}
		out.Intent = toIntent(&pi)
	}
	return out, nil
}
