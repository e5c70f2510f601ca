package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/payment"
	"ms-marketplace/internal/utils"
)

// CreateBooking holds seats for the caller. The Idempotency-Key header is
// used when the body carries no key.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.ReserveRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	req.UserID = auth.UserID(r.Context())
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	booking, err := h.Bookings.Reserve(r.Context(), req)
	if err != nil {
		h.fail(w, "CreateBooking", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: booking %s for user %s", booking.ID, req.UserID))
	utils.WriteSuccess(w, http.StatusCreated, "Seats held", booking)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.Bookings.GetForUser(r.Context(), chi.URLParam(r, "bookingId"), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "GetBooking", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Booking", booking)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "ListBookings", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Bookings", bookings)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.Bookings.Cancel(r.Context(), chi.URLParam(r, "bookingId"), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "CancelBooking", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Booking cancelled", booking)
}

type intentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

// CreateIntent returns the payment intent the client confirms with the
// processor.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	intent, err := h.Payments.CreateIntent(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "CreateIntent", err)
		return
	}
	h.Logger.LogPayment("INTENT", intent.ID, "issued for booking "+bookingID)
	utils.WriteSuccess(w, http.StatusOK, "Payment intent", intentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
	})
}

const maxWebhookBody = 65536

// PaymentWebhook receives processor notifications. Signature failures get a
// 400; processing failures get the status the service chose so the
// processor retries.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	err = h.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Warn("API", fmt.Sprintf("PaymentWebhook: %s error: %s", webhookErr.Category, webhookErr.InternalError))
			utils.WriteError(w, webhookErr.StatusCode, webhookErr.PublicError)
			return
		}
		h.fail(w, "PaymentWebhook", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
