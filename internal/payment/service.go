package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	bookingdb "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	ordersdb "ms-marketplace/internal/orders/db"
	"ms-marketplace/internal/promo"
	seatsdb "ms-marketplace/internal/seats/db"
	"ms-marketplace/internal/tickets/qr"
)

// SeatLocks is the Redis side of confirmation.
type SeatLocks interface {
	Confirm(ctx context.Context, eventID string, seatIDs []string, bookingID string, ttl time.Duration) error
	Release(ctx context.Context, eventID string, seatIDs []string, bookingID string) error
}

type BookingCanceller interface {
	CancelPending(ctx context.Context, bookingID, reason string) (*models.Booking, error)
}

type TokenSealer interface {
	Seal(claims qr.Claims) (string, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

type SeatNotifier interface {
	SeatsChanged(ctx context.Context, eventID string, seatIDs []string, status models.SeatStatus, bookingID string)
}

type CheckoutEmitter interface {
	EmitCheckout(sellerID string, ev models.OrderConfirmedEvent)
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeReplayed  Outcome = "replayed"
	OutcomeRefunded  Outcome = "refunded"
)

// Confirmation is a provider report that an intent was paid.
type Confirmation struct {
	IntentID    string
	BookingID   string
	AmountCents int64
	Currency    string
}

type ConfirmResult struct {
	Outcome Outcome                  `json:"outcome"`
	Order   *models.OrderWithTickets `json:"order,omitempty"`
	Reason  string                   `json:"reason,omitempty"`
}

type Service struct {
	DB        *bun.DB
	Bookings  *bookingdb.DB
	Orders    *ordersdb.DB
	Events    *seatsdb.DB
	Seats     SeatLocks
	Canceller BookingCanceller
	Gateway   Gateway
	Tokens    TokenSealer

	Publisher Publisher
	Notifier  SeatNotifier
	Checkouts CheckoutEmitter
	Topics    config.TopicConfig
	HoldTTL   time.Duration
	Logger    *logger.Logger

	intentLocks *keyedMutex
	now         func() time.Time
	newID       func() string
}

func NewService(db *bun.DB, seats SeatLocks, canceller BookingCanceller, gateway Gateway, tokens TokenSealer, topics config.TopicConfig, holdTTL time.Duration, log *logger.Logger) *Service {
	return &Service{
		DB:          db,
		Bookings:    bookingdb.New(db),
		Orders:      ordersdb.New(db),
		Events:      seatsdb.New(db),
		Seats:       seats,
		Canceller:   canceller,
		Gateway:     gateway,
		Tokens:      tokens,
		Topics:      topics,
		HoldTTL:     holdTTL,
		Logger:      log,
		intentLocks: newKeyedMutex(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// CreateIntent returns a payable intent for the user's pending booking,
// reusing the booking's current intent while it can still be paid.
func (s *Service) CreateIntent(ctx context.Context, bookingID, userID string) (*Intent, error) {
	unlock := s.intentLocks.Lock(bookingID)
	defer unlock()

	b, err := s.Bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, apperr.ErrForbidden)
	}
	if b.Status != models.BookingPending {
		return nil, fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, apperr.ErrInvalidState)
	}
	if !s.now().Before(b.ExpiresAt) {
		return nil, fmt.Errorf("booking %s hold has expired: %w", bookingID, apperr.ErrInvalidState)
	}
	if b.TotalCents <= 0 {
		return nil, fmt.Errorf("booking %s has nothing to charge: %w", bookingID, apperr.ErrValidation)
	}

	if b.PaymentIntentID != "" {
		existing, err := s.Gateway.GetIntent(ctx, b.PaymentIntentID)
		if err != nil {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Failed to retrieve intent %s of %s, creating a new one: %v", b.PaymentIntentID, bookingID, err))
		} else if existing.Status != IntentCanceled {
			s.Logger.LogPayment("REUSE_INTENT", existing.ID, fmt.Sprintf("booking %s, status %s", bookingID, existing.Status))
			return existing, nil
		}
	}

	intent, err := s.Gateway.CreateIntent(ctx, CreateIntentParams{
		AmountCents:    b.TotalCents,
		Currency:       b.Currency,
		IdempotencyKey: "intent-" + b.ID + "-" + b.PaymentIntentID,
		Metadata: map[string]string{
			"booking_id": b.ID,
			"event_id":   b.EventID,
			"user_id":    b.UserID,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.Bookings.AttachIntent(ctx, b.ID, intent.ID); err != nil {
		if cancelErr := s.Gateway.CancelIntent(ctx, intent.ID); cancelErr != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Orphaned intent %s for %s: %v", intent.ID, b.ID, cancelErr))
		}
		return nil, err
	}
	s.Logger.LogPayment("CREATE_INTENT", intent.ID, fmt.Sprintf("booking %s, %d %s", b.ID, b.TotalCents, b.Currency))
	return intent, nil
}

// ConfirmPayment turns a paid intent into an order with tickets. It is safe
// to call any number of times for the same intent.
func (s *Service) ConfirmPayment(ctx context.Context, c Confirmation) (*ConfirmResult, error) {
	if c.IntentID == "" {
		return nil, fmt.Errorf("intent id is required: %w", apperr.ErrValidation)
	}

	if res, err := s.replay(ctx, c.IntentID); res != nil || err != nil {
		return res, err
	}

	b, err := s.loadBooking(ctx, c)
	if err != nil {
		return nil, err
	}

	if b.TotalCents != c.AmountCents || !strings.EqualFold(b.Currency, c.Currency) {
		s.Logger.LogSecurity("AMOUNT_MISMATCH", fmt.Sprintf("intent %s paid %d %s, booking %s expects %d %s",
			c.IntentID, c.AmountCents, c.Currency, b.ID, b.TotalCents, b.Currency))
		return nil, fmt.Errorf("intent %s: %w", c.IntentID, apperr.ErrAmountMismatch)
	}

	prior, err := s.Orders.GetOrderByBooking(ctx, b.ID)
	switch {
	case err == nil && prior.PaymentIntentID == c.IntentID:
		return s.replay(ctx, c.IntentID)
	case err == nil:
		return s.refundUnfulfillable(ctx, b, c, fmt.Sprintf("booking already paid by %s", prior.PaymentIntentID))
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	switch b.Status {
	case models.BookingPending, models.BookingExpired:
	case models.BookingCancelled:
		return s.refundUnfulfillable(ctx, b, c, "booking was cancelled before payment completed")
	default:
		return nil, fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, apperr.ErrInvalidState)
	}

	if err := s.Seats.Confirm(ctx, b.EventID, b.SeatIDs, b.ID, s.HoldTTL); err != nil {
		if errors.Is(err, apperr.ErrSeatUnavailable) {
			return s.refundUnfulfillable(ctx, b, c, err.Error())
		}
		return nil, err
	}

	event, err := s.Events.GetEvent(ctx, b.EventID)
	if err != nil {
		s.releaseLocks(ctx, b)
		return nil, err
	}

	var result *models.OrderWithTickets
	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = s.fulfil(ctx, tx, b, event, c)
		return txErr
	})
	if err != nil {
		if res, rerr := s.replay(ctx, c.IntentID); res != nil || rerr != nil {
			return res, rerr
		}
		s.releaseLocks(ctx, b)
		if errors.Is(err, apperr.ErrSeatUnavailable) || errors.Is(err, apperr.ErrInvalidState) {
			return s.refundUnfulfillable(ctx, b, c, err.Error())
		}
		s.Logger.Error("PAYMENT", fmt.Sprintf("Confirmation of %s for %s failed: %v", c.IntentID, b.ID, err))
		return nil, err
	}

	s.Logger.LogPayment("CONFIRMED", c.IntentID, fmt.Sprintf("order %s for booking %s, %d tickets", result.Order.ID, b.ID, len(result.Tickets)))
	s.announce(ctx, event, b, result)
	return &ConfirmResult{Outcome: OutcomeConfirmed, Order: result}, nil
}

func (s *Service) replay(ctx context.Context, intentID string) (*ConfirmResult, error) {
	order, err := s.Orders.GetOrderByIntent(ctx, intentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tickets, err := s.Orders.GetTickets(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	s.Logger.LogPayment("REPLAY", intentID, "order "+order.ID+" already exists")
	return &ConfirmResult{Outcome: OutcomeReplayed, Order: &models.OrderWithTickets{Order: *order, Tickets: tickets}}, nil
}

func (s *Service) loadBooking(ctx context.Context, c Confirmation) (*models.Booking, error) {
	if c.BookingID != "" {
		b, err := s.Bookings.Get(ctx, c.BookingID)
		if err != nil {
			return nil, err
		}
		if b.PaymentIntentID != "" && b.PaymentIntentID != c.IntentID {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Intent %s paid booking %s whose current intent is %s", c.IntentID, b.ID, b.PaymentIntentID))
		}
		return b, nil
	}
	return s.Bookings.GetByIntent(ctx, c.IntentID)
}

// fulfil writes everything a confirmed payment implies. It must only touch
// tx.
func (s *Service) fulfil(ctx context.Context, tx bun.Tx, b *models.Booking, event *models.Event, c Confirmation) (*models.OrderWithTickets, error) {
	bookings := s.Bookings.WithTx(tx)
	events := s.Events.WithTx(tx)
	orders := s.Orders.WithTx(tx)
	now := s.now().UTC()

	if err := bookings.Transition(ctx, b.ID, []models.BookingStatus{models.BookingPending, models.BookingExpired}, models.BookingConfirmed); err != nil {
		return nil, err
	}
	if err := events.MarkBooked(ctx, b.EventID, b.SeatIDs, b.ID); err != nil {
		return nil, err
	}
	seats, err := events.GetSeats(ctx, b.EventID, b.SeatIDs)
	if err != nil {
		return nil, err
	}

	order := models.Order{
		ID:              s.newID(),
		BookingID:       b.ID,
		EventID:         b.EventID,
		UserID:          b.UserID,
		PaymentIntentID: c.IntentID,
		ChargeCents:     c.AmountCents,
		Currency:        strings.ToLower(b.Currency),
		Status:          models.OrderPaid,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := orders.InsertOrder(ctx, &order); err != nil {
		return nil, err
	}

	bases := make([]int64, len(seats))
	for i, seat := range seats {
		bases[i] = seat.PriceCents
	}
	allocations := Allocate(order.ChargeCents, bases)

	tickets := make([]models.Ticket, len(seats))
	for i, seat := range seats {
		t := models.Ticket{
			ID:             s.newID(),
			OrderID:        order.ID,
			EventID:        seat.EventID,
			SeatID:         seat.SeatID,
			SeatLabel:      seat.Label,
			Tier:           seat.Tier,
			BasePriceCents: seat.PriceCents,
			AllocatedCents: allocations[i],
			Status:         models.TicketActive,
			IssuedAt:       now,
		}
		token, err := s.Tokens.Seal(qr.Claims{
			TicketID: t.ID,
			OrderID:  order.ID,
			EventID:  t.EventID,
			SeatID:   t.SeatID,
			IssuedAt: now.Unix(),
		})
		if err != nil {
			return nil, fmt.Errorf("seal ticket token: %w", err)
		}
		t.QRToken = token
		tickets[i] = t
	}
	if err := orders.InsertTickets(ctx, tickets); err != nil {
		return nil, err
	}

	if err := orders.InsertLedger(ctx, models.LedgerEntry{
		ID:          s.newID(),
		OrderID:     order.ID,
		BatchID:     "charge-" + order.ID,
		Type:        models.LedgerCharge,
		Status:      models.LedgerSucceeded,
		AmountCents: order.ChargeCents,
		Currency:    order.Currency,
		Reference:   c.IntentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return nil, err
	}

	if err := events.AdjustBooked(ctx, b.EventID, len(seats)); err != nil {
		return nil, err
	}

	if b.CouponCode != "" {
		if err := promo.RedeemTx(ctx, tx, b.CouponCode); err != nil {
			if !errors.Is(err, apperr.ErrConflict) {
				return nil, err
			}
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Coupon %s over its limit when %s was paid: %v", b.CouponCode, b.ID, err))
		}
	}

	return &models.OrderWithTickets{Order: order, Tickets: tickets}, nil
}

// refundUnfulfillable returns the whole payment when the seats it paid for
// can no longer be issued.
func (s *Service) refundUnfulfillable(ctx context.Context, b *models.Booking, c Confirmation, reason string) (*ConfirmResult, error) {
	batchID := "refund-full-" + c.IntentID
	recorded, err := s.Orders.LedgerBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(recorded) > 0 {
		s.Logger.LogRefund("DUPLICATE", c.IntentID, "full refund already recorded")
		return &ConfirmResult{Outcome: OutcomeRefunded, Reason: reason}, nil
	}

	s.Logger.Warn("PAYMENT", fmt.Sprintf("Refunding %s for booking %s: %s", c.IntentID, b.ID, reason))

	refund, err := s.Gateway.Refund(ctx, RefundParams{
		IntentID:       c.IntentID,
		AmountCents:    c.AmountCents,
		IdempotencyKey: batchID,
		Reason:         "seats_unavailable",
		Metadata:       map[string]string{"booking_id": b.ID},
	})
	if err != nil {
		return nil, err
	}

	// Entry IDs derive from the intent so a concurrent delivery collides.
	now := s.now().UTC()
	currency := strings.ToLower(c.Currency)
	err = s.Orders.InsertLedger(ctx,
		models.LedgerEntry{
			ID:          "chg-" + c.IntentID,
			BatchID:     batchID,
			Type:        models.LedgerCharge,
			Status:      models.LedgerSucceeded,
			AmountCents: c.AmountCents,
			Currency:    currency,
			Reference:   c.IntentID,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		models.LedgerEntry{
			ID:          "rfd-" + c.IntentID,
			BatchID:     batchID,
			Type:        models.LedgerRefund,
			Status:      models.LedgerSucceeded,
			AmountCents: c.AmountCents,
			Currency:    currency,
			Reference:   refund.ID,
			Reason:      reason,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	)
	if database.IsUniqueViolation(err) {
		s.Logger.LogRefund("DUPLICATE", c.IntentID, "full refund recorded by a concurrent delivery")
		return &ConfirmResult{Outcome: OutcomeRefunded, Reason: reason}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record refund of %s: %w", c.IntentID, err)
	}
	s.Logger.LogRefund("FULL", c.IntentID, fmt.Sprintf("refunded %d for booking %s", c.AmountCents, b.ID))

	if b.Status == models.BookingPending {
		if err := s.Bookings.Transition(ctx, b.ID, []models.BookingStatus{models.BookingPending}, models.BookingExpired); err != nil {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Could not expire booking %s: %v", b.ID, err))
		}
	}
	if b.Status != models.BookingConfirmed {
		s.releaseLocks(ctx, b)
	}

	if s.Publisher != nil {
		ev := models.RefundEvent{
			BatchID:     batchID,
			UserID:      b.UserID,
			SeatIDs:     b.SeatIDs,
			RefundCents: c.AmountCents,
			Currency:    currency,
			Reference:   c.IntentID,
			OccurredAt:  now,
		}
		if err := s.Publisher.PublishJSON(ctx, s.Topics.OrderRefunded, b.ID, ev); err != nil {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Refund event for %s not published: %v", b.ID, err))
		}
	}
	return &ConfirmResult{Outcome: OutcomeRefunded, Reason: reason}, nil
}

func (s *Service) releaseLocks(ctx context.Context, b *models.Booking) {
	if err := s.Seats.Release(ctx, b.EventID, b.SeatIDs, b.ID); err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to release locks of %s: %v", b.ID, err))
	}
}

func (s *Service) announce(ctx context.Context, event *models.Event, b *models.Booking, result *models.OrderWithTickets) {
	summaries := make([]models.TicketSummary, len(result.Tickets))
	for i, t := range result.Tickets {
		summaries[i] = models.TicketSummary{
			TicketID:       t.ID,
			SeatID:         t.SeatID,
			SeatLabel:      t.SeatLabel,
			AllocatedCents: t.AllocatedCents,
		}
	}
	ev := models.OrderConfirmedEvent{
		OrderID:         result.Order.ID,
		BookingID:       b.ID,
		EventID:         b.EventID,
		UserID:          b.UserID,
		PaymentIntentID: result.Order.PaymentIntentID,
		ChargeCents:     result.Order.ChargeCents,
		Currency:        result.Order.Currency,
		Tickets:         summaries,
		OccurredAt:      s.now().UTC(),
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishJSON(ctx, s.Topics.OrderConfirmed, result.Order.ID, ev); err != nil {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Order %s confirmation not published: %v", result.Order.ID, err))
		}
	}
	if s.Notifier != nil {
		s.Notifier.SeatsChanged(ctx, b.EventID, b.SeatIDs, models.SeatBooked, b.ID)
	}
	if s.Checkouts != nil {
		s.Checkouts.EmitCheckout(event.SellerID, ev)
	}
}
