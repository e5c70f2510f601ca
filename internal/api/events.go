package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/catalog"
	"ms-marketplace/internal/sse"
	"ms-marketplace/internal/utils"
)

// SeatMap lists every seat of an event with its effective state.
func (h *Handler) SeatMap(w http.ResponseWriter, r *http.Request) {
	seats, err := h.Seats.Availability(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, "SeatMap", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Seats", seats)
}

func (h *Handler) SeatStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("SSE", "Client subscribed to seat updates for event "+eventID)
	sse.Stream(w, r, "seat_status", h.Streams.SubscribeSeats(r.Context(), eventID), h.Logger)
}

// CheckoutStream pushes the caller's confirmed orders as they happen.
func (h *Handler) CheckoutStream(w http.ResponseWriter, r *http.Request) {
	sellerID := auth.UserID(r.Context())
	h.Logger.Info("SSE", "Seller "+sellerID+" subscribed to checkouts")
	sse.Stream(w, r, "checkout", h.Streams.SubscribeCheckouts(r.Context(), sellerID), h.Logger)
}

func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	eventID := chi.URLParam(r, "eventId")

	result, err := h.Refunds.CancelEvent(r.Context(), eventID, id.UserID, id.Privileged())
	if err != nil {
		h.fail(w, "CancelEvent", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CancelEvent: %s cancelled by %s, %d orders refunded", eventID, id.UserID, result.RefundedOrders))
	status := http.StatusOK
	if len(result.FailedOrders) > 0 {
		status = http.StatusMultiStatus
	}
	utils.WriteSuccess(w, status, "Event cancelled", result)
}

func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := h.Tickets.ListScans(r.Context(), chi.URLParam(r, "eventId"), queryInt(r, "limit", 100))
	if err != nil {
		h.fail(w, "ListScans", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Scans", scans)
}

func (h *Handler) EntryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Tickets.EntryStats(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, "EntryStats", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Entry stats", stats)
}

// CreateSellerEvent stores a draft event owned by the caller.
func (h *Handler) CreateSellerEvent(w http.ResponseWriter, r *http.Request) {
	var req catalog.NewEvent
	if !h.decode(w, r, &req, false) {
		return
	}
	req.SellerID = auth.UserID(r.Context())

	event, err := h.Catalog.CreateEvent(r.Context(), req)
	if err != nil {
		h.fail(w, "CreateSellerEvent", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Event created", event)
}

func (h *Handler) PublishSellerEvent(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	event, err := h.Catalog.PublishEvent(r.Context(), chi.URLParam(r, "eventId"), id.UserID, id.HasRole(auth.RoleAdmin))
	if err != nil {
		h.fail(w, "PublishSellerEvent", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Event published", event)
}

func (h *Handler) ListSellerEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Catalog.ListEvents(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "ListSellerEvents", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Events", events)
}
