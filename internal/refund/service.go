package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	bookingdb "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	ordersdb "ms-marketplace/internal/orders/db"
	"ms-marketplace/internal/payment"
	seatsdb "ms-marketplace/internal/seats/db"
)

type Refunder interface {
	Refund(ctx context.Context, params payment.RefundParams) (*payment.Refund, error)
}

type SeatLocks interface {
	Release(ctx context.Context, eventID string, seatIDs []string, bookingID string) error
}

type BookingCanceller interface {
	CancelPending(ctx context.Context, bookingID, reason string) (*models.Booking, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

type CancelRequest struct {
	OrderID     string   `json:"-"`
	RequesterID string   `json:"-"`
	SeatIDs     []string `json:"seat_ids"`
	Reason      string   `json:"reason"`
	// Privileged callers (sellers, admins) skip ownership, deadline and fee.
	Privileged bool `json:"-"`
}

type TicketRefund struct {
	TicketID    string `json:"ticket_id"`
	SeatID      string `json:"seat_id"`
	RefundCents int64  `json:"refund_cents"`
	FeeCents    int64  `json:"fee_cents"`
}

type CancelResult struct {
	OrderID     string         `json:"order_id"`
	BatchID     string         `json:"batch_id"`
	RefundCents int64          `json:"refund_cents"`
	FeeCents    int64          `json:"fee_cents"`
	Reference   string         `json:"reference,omitempty"`
	Tickets     []TicketRefund `json:"tickets"`
	Order       *models.Order  `json:"order"`
}

type Service struct {
	DB        *bun.DB
	Orders    *ordersdb.DB
	Events    *seatsdb.DB
	Bookings  *bookingdb.DB
	Gateway   Refunder
	Seats     SeatLocks
	Canceller BookingCanceller
	Publisher Publisher
	Topics    config.TopicConfig
	Logger    *logger.Logger

	now   func() time.Time
	newID func() string
}

func NewService(db *bun.DB, gateway Refunder, seats SeatLocks, canceller BookingCanceller, pub Publisher, topics config.TopicConfig, log *logger.Logger) *Service {
	return &Service{
		DB:        db,
		Orders:    ordersdb.New(db),
		Events:    seatsdb.New(db),
		Bookings:  bookingdb.New(db),
		Gateway:   gateway,
		Seats:     seats,
		Canceller: canceller,
		Publisher: pub,
		Topics:    topics,
		Logger:    log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// selectTickets picks the active tickets a request names, or every active
// ticket when it names none.
func selectTickets(tickets []models.Ticket, seatIDs []string) ([]models.Ticket, error) {
	if len(seatIDs) == 0 {
		var out []models.Ticket
		for _, t := range tickets {
			if t.Status == models.TicketActive {
				out = append(out, t)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no active tickets to cancel: %w", apperr.ErrInvalidState)
		}
		return out, nil
	}

	bySeat := make(map[string]models.Ticket, len(tickets))
	for _, t := range tickets {
		bySeat[t.SeatID] = t
	}
	seen := make(map[string]bool, len(seatIDs))
	out := make([]models.Ticket, 0, len(seatIDs))
	for _, id := range seatIDs {
		if seen[id] {
			return nil, fmt.Errorf("seat %s listed twice: %w", id, apperr.ErrValidation)
		}
		seen[id] = true
		t, ok := bySeat[id]
		if !ok {
			return nil, fmt.Errorf("seat %s is not part of this order: %w", id, apperr.ErrValidation)
		}
		if t.Status != models.TicketActive {
			return nil, fmt.Errorf("ticket for seat %s is %s: %w", id, t.Status, apperr.ErrInvalidState)
		}
		out = append(out, t)
	}
	return out, nil
}

// CancelSeats refunds tickets of an order. Money moves between two
// transactions: the first parks tickets and ledger rows as pending, the
// second settles them once the processor accepted the refund.
func (s *Service) CancelSeats(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	order, err := s.Orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !req.Privileged && order.UserID != req.RequesterID {
		return nil, fmt.Errorf("order %s: %w", order.ID, apperr.ErrForbidden)
	}

	event, err := s.Events.GetEvent(ctx, order.EventID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !req.Privileged && !event.CancellationOpen(now) {
		return nil, fmt.Errorf("event %s closed cancellations %dh before start: %w", event.ID, event.DeadlineHours, apperr.ErrCancellationClosed)
	}

	all, err := s.Orders.GetTickets(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	chosen, err := selectTickets(all, req.SeatIDs)
	if err != nil {
		return nil, err
	}

	result := &CancelResult{OrderID: order.ID, BatchID: s.newID()}
	ids := make([]string, len(chosen))
	seatIDs := make([]string, len(chosen))
	var entries []models.LedgerEntry
	for i, t := range chosen {
		ids[i] = t.ID
		seatIDs[i] = t.SeatID

		refundable := t.AllocatedCents - t.RefundedCents
		var fee int64
		if !req.Privileged {
			fee = event.CancellationFee(refundable)
		}
		amount := refundable - fee

		result.Tickets = append(result.Tickets, TicketRefund{TicketID: t.ID, SeatID: t.SeatID, RefundCents: amount, FeeCents: fee})
		result.RefundCents += amount
		result.FeeCents += fee

		if amount > 0 {
			entries = append(entries, s.entry(order, result.BatchID, t, models.LedgerRefund, amount, req.Reason, now))
		}
		if fee > 0 {
			entries = append(entries, s.entry(order, result.BatchID, t, models.LedgerFee, fee, req.Reason, now))
		}
	}
	if order.RefundedCents+result.RefundCents > order.ChargeCents {
		return nil, fmt.Errorf("order %s: %w", order.ID, apperr.ErrRefundExceedsCharge)
	}

	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		orders := s.Orders.WithTx(tx)
		if err := orders.TransitionTickets(ctx, ids, models.TicketActive, models.TicketRefundPending); err != nil {
			return err
		}
		return orders.InsertLedger(ctx, entries...)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.LogRefund("PENDING", order.ID, fmt.Sprintf("batch %s: %d seats, refund %d, fee %d", result.BatchID, len(ids), result.RefundCents, result.FeeCents))

	if result.RefundCents > 0 {
		refund, err := s.Gateway.Refund(ctx, payment.RefundParams{
			IntentID:       order.PaymentIntentID,
			AmountCents:    result.RefundCents,
			IdempotencyKey: result.BatchID,
			Reason:         req.Reason,
			Metadata:       map[string]string{"order_id": order.ID, "batch_id": result.BatchID},
		})
		if err != nil {
			s.revert(ctx, order.ID, result.BatchID, ids)
			return nil, err
		}
		result.Reference = refund.ID
	}

	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.settle(ctx, tx, order, all, result, ids, seatIDs)
	})
	if err != nil {
		s.Logger.Error("REFUND", fmt.Sprintf("Batch %s refunded at processor (%s) but settling failed: %v", result.BatchID, result.Reference, err))
		return nil, err
	}

	if err := s.Seats.Release(ctx, order.EventID, seatIDs, order.BookingID); err != nil {
		s.Logger.Error("REFUND", fmt.Sprintf("Failed to release locks of %v: %v", seatIDs, err))
	}

	updated, err := s.Orders.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	result.Order = updated

	s.Logger.LogRefund("SETTLED", order.ID, fmt.Sprintf("batch %s refunded %d (%s)", result.BatchID, result.RefundCents, result.Reference))
	s.publish(ctx, order, result, seatIDs)
	return result, nil
}

func (s *Service) entry(order *models.Order, batchID string, t models.Ticket, typ models.LedgerType, amount int64, reason string, now time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		ID:          s.newID(),
		OrderID:     order.ID,
		BatchID:     batchID,
		TicketID:    t.ID,
		SeatID:      t.SeatID,
		Type:        typ,
		Status:      models.LedgerPending,
		AmountCents: amount,
		Currency:    order.Currency,
		Reason:      reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *Service) settle(ctx context.Context, tx bun.Tx, order *models.Order, all []models.Ticket, result *CancelResult, ids, seatIDs []string) error {
	orders := s.Orders.WithTx(tx)
	events := s.Events.WithTx(tx)

	if err := orders.TransitionTickets(ctx, ids, models.TicketRefundPending, models.TicketCancelled); err != nil {
		return err
	}
	for _, t := range result.Tickets {
		if t.RefundCents == 0 {
			continue
		}
		if err := orders.AddTicketRefund(ctx, t.TicketID, t.RefundCents); err != nil {
			return err
		}
	}
	if err := orders.UpdateLedgerStatus(ctx, result.BatchID, models.LedgerSucceeded, result.Reference); err != nil {
		return err
	}

	cancelled := make(map[string]bool, len(ids))
	for _, id := range ids {
		cancelled[id] = true
	}
	status := models.OrderRefunded
	for _, t := range all {
		if !cancelled[t.ID] && t.Status != models.TicketCancelled {
			status = models.OrderPartiallyRefunded
			break
		}
	}
	if err := orders.ApplyRefund(ctx, order.ID, result.RefundCents, status); err != nil {
		return err
	}

	if err := events.MarkAvailable(ctx, order.EventID, seatIDs, order.BookingID); err != nil {
		return err
	}
	return events.AdjustBooked(ctx, order.EventID, -len(seatIDs))
}

// revert puts tickets back in service after the processor refused a refund.
func (s *Service) revert(ctx context.Context, orderID, batchID string, ids []string) {
	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		orders := s.Orders.WithTx(tx)
		if err := orders.TransitionTickets(ctx, ids, models.TicketRefundPending, models.TicketActive); err != nil {
			return err
		}
		return orders.UpdateLedgerStatus(ctx, batchID, models.LedgerFailed, "")
	})
	if err != nil {
		s.Logger.Error("REFUND", fmt.Sprintf("Failed to revert batch %s of %s: %v", batchID, orderID, err))
		return
	}
	s.Logger.LogRefund("FAILED", orderID, "batch "+batchID+" reverted")
}

func (s *Service) publish(ctx context.Context, order *models.Order, result *CancelResult, seatIDs []string) {
	if s.Publisher == nil {
		return
	}
	ev := models.RefundEvent{
		OrderID:     order.ID,
		BatchID:     result.BatchID,
		UserID:      order.UserID,
		SeatIDs:     seatIDs,
		RefundCents: result.RefundCents,
		FeeCents:    result.FeeCents,
		Currency:    order.Currency,
		Reference:   result.Reference,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.Publisher.PublishJSON(ctx, s.Topics.OrderRefunded, order.ID, ev); err != nil {
		s.Logger.Warn("REFUND", fmt.Sprintf("Refund event for %s not published: %v", order.ID, err))
	}
}

type EventCancellation struct {
	EventID           string   `json:"event_id"`
	CancelledBookings int      `json:"cancelled_bookings"`
	RefundedOrders    int      `json:"refunded_orders"`
	RefundCents       int64    `json:"refund_cents"`
	FailedOrders      []string `json:"failed_orders,omitempty"`
}

// CancelEvent calls off an event: no new bookings, pending bookings are
// cancelled and every active ticket is refunded in full. Orders that fail
// to refund are reported and can be retried by calling again.
func (s *Service) CancelEvent(ctx context.Context, eventID, actorID string, admin bool) (*EventCancellation, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !admin && event.SellerID != actorID {
		return nil, fmt.Errorf("event %s: %w", eventID, apperr.ErrForbidden)
	}
	if event.Status != models.EventCancelled {
		if err := s.Events.SetEventStatus(ctx, eventID, models.EventCancelled); err != nil {
			return nil, err
		}
	}

	out := &EventCancellation{EventID: eventID}

	pending, err := s.Bookings.ListByEvent(ctx, eventID, models.BookingPending)
	if err != nil {
		return nil, err
	}
	for _, b := range pending {
		if _, err := s.Canceller.CancelPending(ctx, b.ID, "event cancelled"); err != nil {
			if !errors.Is(err, apperr.ErrInvalidState) {
				s.Logger.Error("REFUND", fmt.Sprintf("Failed to cancel booking %s: %v", b.ID, err))
			}
			continue
		}
		out.CancelledBookings++
	}

	orders, err := s.Orders.ListOrdersByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.Status == models.OrderRefunded {
			continue
		}
		res, err := s.CancelSeats(ctx, CancelRequest{OrderID: o.ID, Reason: "event cancelled", Privileged: true})
		if errors.Is(err, apperr.ErrInvalidState) {
			continue
		}
		if err != nil {
			s.Logger.Error("REFUND", fmt.Sprintf("Failed to refund order %s: %v", o.ID, err))
			out.FailedOrders = append(out.FailedOrders, o.ID)
			continue
		}
		out.RefundedOrders++
		out.RefundCents += res.RefundCents
	}

	s.Logger.Info("REFUND", fmt.Sprintf("Event %s cancelled: %d bookings, %d orders, %d refunded, %d failures",
		eventID, out.CancelledBookings, out.RefundedOrders, out.RefundCents, len(out.FailedOrders)))
	return out, nil
}
