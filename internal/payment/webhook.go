package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-marketplace/internal/apperr"
)

// WebhookError carries what the HTTP layer should answer the provider.
type WebhookError struct {
	Category      string // "validation" or "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// HandleWebhook verifies and applies a provider notification. A nil return
// acknowledges the delivery; a processing error asks for a retry.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.Gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.Logger.LogSecurity("WEBHOOK_REJECTED", err.Error())
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Processing webhook event %s (%s)", event.ID, event.Type))

	switch event.Type {
	case EventIntentSucceeded:
		return s.onSucceeded(ctx, event)
	case EventIntentFailed, EventIntentCanceled:
		return s.onAbandoned(ctx, event)
	default:
		s.Logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring webhook event type %s", event.Type))
		return nil
	}
}

func (s *Service) onSucceeded(ctx context.Context, event *WebhookEvent) error {
	if event.Intent == nil {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("event %s has no payment intent", event.ID),
		}
	}
	pi := event.Intent

	res, err := s.ConfirmPayment(ctx, Confirmation{
		IntentID:    pi.ID,
		BookingID:   pi.Metadata["booking_id"],
		AmountCents: pi.AmountCents,
		Currency:    pi.Currency,
	})
	switch {
	case err == nil:
		s.Logger.LogPayment("WEBHOOK_"+string(res.Outcome), pi.ID, event.ID)
		return nil
	case errors.Is(err, apperr.ErrAmountMismatch), errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrValidation):
		// retrying cannot fix these
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Unprocessable payment %s: %v", pi.ID, err))
		return nil
	default:
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: fmt.Sprintf("confirm %s: %v", pi.ID, err),
			OriginalErr:   err,
		}
	}
}

func (s *Service) onAbandoned(ctx context.Context, event *WebhookEvent) error {
	if event.Intent == nil {
		return nil
	}
	b, err := s.Bookings.GetByIntent(ctx, event.Intent.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("No booking for intent %s", event.Intent.ID))
		return nil
	}
	if err != nil {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	}

	_, err = s.Canceller.CancelPending(ctx, b.ID, event.Type)
	if err != nil && !errors.Is(err, apperr.ErrInvalidState) {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: fmt.Sprintf("cancel %s: %v", b.ID, err),
			OriginalErr:   err,
		}
	}
	return nil
}
