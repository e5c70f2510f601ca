package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/refund"
	"ms-marketplace/internal/utils"
)

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Tickets.OrdersByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "ListOrders", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Orders", orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	order, err := h.Tickets.TicketsByOrder(r.Context(), chi.URLParam(r, "orderId"), id.UserID, id.Privileged())
	if err != nil {
		h.fail(w, "GetOrder", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Order", order)
}

func (h *Handler) OrderStatement(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	stmt, err := h.Refunds.Statement(r.Context(), chi.URLParam(r, "orderId"), id.UserID, id.Privileged())
	if err != nil {
		h.fail(w, "OrderStatement", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Order statement", stmt)
}

type cancelSeatsBody struct {
	SeatIDs []string `json:"seat_ids" validate:"dive,required"`
	Reason  string   `json:"reason" validate:"max=500"`
}

// CancelSeats refunds some or, with no seat_ids, all active seats of an
// order.
func (h *Handler) CancelSeats(w http.ResponseWriter, r *http.Request) {
	var body cancelSeatsBody
	if !h.decode(w, r, &body, true) {
		return
	}
	id := auth.FromContext(r.Context())
	orderID := chi.URLParam(r, "orderId")

	result, err := h.Refunds.CancelSeats(r.Context(), refund.CancelRequest{
		OrderID:     orderID,
		RequesterID: id.UserID,
		SeatIDs:     body.SeatIDs,
		Reason:      body.Reason,
		Privileged:  id.Privileged(),
	})
	if err != nil {
		h.fail(w, "CancelSeats", err)
		return
	}
	h.Logger.LogRefund("API_CANCEL", orderID, "requested by "+id.UserID)
	utils.WriteSuccess(w, http.StatusOK, "Seats cancelled", result)
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	size := queryInt(r, "size", 256)
	if size > 1024 {
		size = 1024
	}
	png, err := h.Tickets.TicketQR(r.Context(), chi.URLParam(r, "ticketId"), auth.UserID(r.Context()), size)
	if err != nil {
		h.fail(w, "TicketQR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
