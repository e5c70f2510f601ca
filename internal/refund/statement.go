package refund

import (
	"context"
	"fmt"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/models"
)

type SeatLine struct {
	TicketID       string              `json:"ticket_id"`
	SeatID         string              `json:"seat_id"`
	Status         models.TicketStatus `json:"status"`
	AllocatedCents int64               `json:"allocated_cents"`
	RefundedCents  int64               `json:"refunded_cents"`
}

type Statement struct {
	OrderID        string               `json:"order_id"`
	Status         models.OrderStatus   `json:"status"`
	Currency       string               `json:"currency"`
	ChargeCents    int64                `json:"charge_cents"`
	RefundedCents  int64                `json:"refunded_cents"`
	FeeCents       int64                `json:"fee_cents"`
	RemainingCents int64                `json:"remaining_cents"`
	Seats          []SeatLine           `json:"seats"`
	Ledger         []models.LedgerEntry `json:"ledger"`
}

// Statement summarises the money movements of an order. Non-privileged
// callers only see their own orders.
func (s *Service) Statement(ctx context.Context, orderID, requesterID string, privileged bool) (*Statement, error) {
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !privileged && order.UserID != requesterID {
		return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrForbidden)
	}

	tickets, err := s.Orders.GetTickets(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Orders.Ledger(ctx, orderID)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		OrderID:        order.ID,
		Status:         order.Status,
		Currency:       order.Currency,
		ChargeCents:    order.ChargeCents,
		RefundedCents:  order.RefundedCents,
		RemainingCents: order.ChargeCents - order.RefundedCents,
		Ledger:         ledger,
	}
	for _, t := range tickets {
		st.Seats = append(st.Seats, SeatLine{
			TicketID:       t.ID,
			SeatID:         t.SeatID,
			Status:         t.Status,
			AllocatedCents: t.AllocatedCents,
			RefundedCents:  t.RefundedCents,
		})
	}
	for _, e := range ledger {
		if e.Type == models.LedgerFee && e.Status == models.LedgerSucceeded {
			st.FeeCents += e.AmountCents
		}
	}
	return st, nil
}
