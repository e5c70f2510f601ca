package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ms-marketplace/internal/apperr"
	bookingdb "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/promo"
	seatsdb "ms-marketplace/internal/seats/db"
)

// Seats is the hold side of the seat inventory.
type Seats interface {
	Hold(ctx context.Context, eventID string, seatIDs []string, bookingID string, ttl time.Duration) ([]models.Seat, error)
	Release(ctx context.Context, eventID string, seatIDs []string, bookingID string) error
	ReleaseHeld(ctx context.Context, eventID string, seatIDs []string, bookingID string) error
}

type Pricer interface {
	Quote(ctx context.Context, code, eventID string, seats []models.Seat) (*promo.Quote, error)
}

type IntentCanceller interface {
	CancelIntent(ctx context.Context, intentID string) error
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

type Service struct {
	Bookings  *bookingdb.DB
	Events    *seatsdb.DB
	Seats     Seats
	Pricer    Pricer
	Intents   IntentCanceller
	Publisher Publisher
	Topics    config.TopicConfig
	Config    config.BookingConfig
	Logger    *logger.Logger

	validate *validator.Validate
	now      func() time.Time
	newID    func() string

	replayAttempts int
	replayWait     time.Duration
}

func NewService(bookings *bookingdb.DB, events *seatsdb.DB, seats Seats, pricer Pricer, pub Publisher, topics config.TopicConfig, cfg config.BookingConfig, log *logger.Logger) *Service {
	return &Service{
		Bookings:  bookings,
		Events:    events,
		Seats:     seats,
		Pricer:    pricer,
		Publisher: pub,
		Topics:    topics,
		Config:    cfg,
		Logger:    log,
		validate:  validator.New(),
		now:       time.Now,
		newID:     uuid.NewString,

		replayAttempts: 5,
		replayWait:     100 * time.Millisecond,
	}
}

func (s *Service) validateRequest(req *models.ReserveRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("user is required: %w", apperr.ErrValidation)
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	if s.Config.MaxSeats > 0 && len(req.SeatIDs) > s.Config.MaxSeats {
		return fmt.Errorf("at most %d seats per booking: %w", s.Config.MaxSeats, apperr.ErrValidation)
	}
	seen := make(map[string]struct{}, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("seat %s listed twice: %w", id, apperr.ErrValidation)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Reserve holds seats and records a pending booking that must be paid
// before ExpiresAt. A repeated idempotency key returns the first booking.
func (s *Service) Reserve(ctx context.Context, req models.ReserveRequest) (*models.Booking, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.Bookings.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err == nil {
			return replay(existing, req)
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}

	event, err := s.Events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if event.Status != models.EventPublished {
		return nil, fmt.Errorf("event %s is %s: %w", event.ID, event.Status, apperr.ErrInvalidState)
	}
	if !now.Before(event.StartsAt) {
		return nil, fmt.Errorf("event %s has started: %w", event.ID, apperr.ErrInvalidState)
	}

	bookingID := s.newID()
	seats, err := s.Seats.Hold(ctx, req.EventID, req.SeatIDs, bookingID, s.Config.HoldTTL)
	if err != nil {
		if req.IdempotencyKey != "" && errors.Is(err, apperr.ErrSeatUnavailable) {
			if existing := s.awaitKey(ctx, req); existing != nil {
				return replay(existing, req)
			}
		}
		return nil, err
	}

	booking, err := s.persist(ctx, req, event, seats, bookingID, now)
	if err != nil {
		if relErr := s.Seats.Release(ctx, req.EventID, req.SeatIDs, bookingID); relErr != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to release holds of %s: %v", bookingID, relErr))
		}
		if req.IdempotencyKey != "" && database.IsUniqueViolation(err) {
			existing, getErr := s.Bookings.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if getErr == nil {
				return replay(existing, req)
			}
		}
		return nil, err
	}

	s.Logger.LogBooking("RESERVE", booking.ID, fmt.Sprintf("user %s held %d seats of %s, total %d", booking.UserID, len(booking.SeatIDs), booking.EventID, booking.TotalCents))
	s.publish(ctx, s.Topics.BookingCreated, booking)
	return booking, nil
}

func (s *Service) persist(ctx context.Context, req models.ReserveRequest, event *models.Event, seats []models.Seat, bookingID string, now time.Time) (*models.Booking, error) {
	quote, err := s.Pricer.Quote(ctx, req.CouponCode, req.EventID, seats)
	if err != nil {
		return nil, err
	}
	if quote.TotalCents <= 0 || quote.TotalCents < s.Config.MinChargeCents {
		return nil, fmt.Errorf("total %d is below the minimum charge of %d: %w", quote.TotalCents, s.Config.MinChargeCents, apperr.ErrValidation)
	}

	booking := &models.Booking{
		ID:             bookingID,
		EventID:        req.EventID,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		SeatIDs:        req.SeatIDs,
		SubtotalCents:  quote.SubtotalCents,
		DiscountCents:  quote.DiscountCents,
		TotalCents:     quote.TotalCents,
		Currency:       event.Currency,
		CouponCode:     quote.Code,
		Status:         models.BookingPending,
		ExpiresAt:      now.Add(s.Config.HoldTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Bookings.Insert(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// awaitKey polls for a booking stored under the request's idempotency key.
// A retry that loses the seats to its own in-flight original finds the
// original's booking once that request commits.
func (s *Service) awaitKey(ctx context.Context, req models.ReserveRequest) *models.Booking {
	for i := 0; i < s.replayAttempts; i++ {
		existing, err := s.Bookings.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err == nil {
			s.Logger.LogBooking("REPLAY", existing.ID, "in-flight request with key "+req.IdempotencyKey+" committed")
			return existing
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Idempotency lookup for %s failed: %v", req.IdempotencyKey, err))
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.replayWait):
		}
	}
	return nil
}

// replay returns the stored booking when the retried request matches it.
func replay(existing *models.Booking, req models.ReserveRequest) (*models.Booking, error) {
	if existing.EventID != req.EventID || !sameSeats(existing.SeatIDs, req.SeatIDs) {
		return nil, fmt.Errorf("idempotency key %s already used for another booking: %w", req.IdempotencyKey, apperr.ErrConflict)
	}
	return existing, nil
}

func sameSeats(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func (s *Service) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.Bookings.Get(ctx, bookingID)
}

// GetForUser loads a booking and checks it belongs to userID.
func (s *Service) GetForUser(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	b, err := s.Bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, apperr.ErrForbidden)
	}
	return b, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	return s.Bookings.ListByUser(ctx, userID)
}

func (s *Service) AttachIntent(ctx context.Context, bookingID, intentID string) error {
	return s.Bookings.AttachIntent(ctx, bookingID, intentID)
}

// Cancel abandons a pending booking on behalf of its owner.
func (s *Service) Cancel(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	b, err := s.GetForUser(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, b, models.BookingCancelled, s.Topics.BookingCancelled, "cancelled by user")
}

// CancelPending cancels a pending booking without an ownership check. It
// serves payment failures and event cancellation.
func (s *Service) CancelPending(ctx context.Context, bookingID, reason string) (*models.Booking, error) {
	b, err := s.Bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, b, models.BookingCancelled, s.Topics.BookingCancelled, reason)
}

func (s *Service) cancel(ctx context.Context, b *models.Booking, to models.BookingStatus, topic, reason string) (*models.Booking, error) {
	if err := s.Bookings.Transition(ctx, b.ID, []models.BookingStatus{models.BookingPending}, to); err != nil {
		return nil, err
	}
	b.Status = to

	if err := s.Seats.ReleaseHeld(ctx, b.EventID, b.SeatIDs, b.ID); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to release holds of %s: %v", b.ID, err))
	}
	if b.PaymentIntentID != "" && s.Intents != nil {
		if err := s.Intents.CancelIntent(ctx, b.PaymentIntentID); err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Could not cancel intent %s of %s: %v", b.PaymentIntentID, b.ID, err))
		}
	}

	s.Logger.LogBooking(string(to), b.ID, reason)
	s.publish(ctx, topic, b)
	return b, nil
}

// ExpireStale expires up to limit pending bookings whose hold window has
// passed and returns how many it expired.
func (s *Service) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	stale, err := s.Bookings.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		b := &stale[i]
		_, err := s.cancel(ctx, b, models.BookingExpired, s.Topics.BookingExpired, "hold window elapsed")
		if errors.Is(err, apperr.ErrInvalidState) {
			// confirmed or cancelled since it was listed
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *Service) publish(ctx context.Context, topic string, b *models.Booking) {
	if s.Publisher == nil {
		return
	}
	ev := models.BookingEvent{
		BookingID:  b.ID,
		EventID:    b.EventID,
		UserID:     b.UserID,
		SeatIDs:    b.SeatIDs,
		Status:     b.Status,
		TotalCents: b.TotalCents,
		OccurredAt: s.now().UTC(),
	}
	if err := s.Publisher.PublishJSON(ctx, topic, b.ID, ev); err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("Event %s for %s not published: %v", topic, b.ID, err))
	}
}
