// Package catalog lets sellers put events and their seat maps on sale.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	seatsdb "ms-marketplace/internal/seats/db"
)

// SeatSpec is one seat of a new event's map.
type SeatSpec struct {
	SeatID     string `json:"seat_id" validate:"required,max=32,excludes=:"`
	Label      string `json:"label" validate:"required,max=64"`
	Tier       string `json:"tier" validate:"max=32"`
	PriceCents int64  `json:"price_cents" validate:"gt=0"`
}

// NewEvent is a seller's draft. Fee fields follow models.Event.
type NewEvent struct {
	SellerID      string                     `json:"-"`
	Title         string                     `json:"title" validate:"required,max=200"`
	Venue         string                     `json:"venue" validate:"max=200"`
	StartsAt      time.Time                  `json:"starts_at" validate:"required"`
	Currency      string                     `json:"currency" validate:"required,len=3,alpha"`
	FeeType       models.CancellationFeeType `json:"cancellation_fee_type"`
	FeeValue      int64                      `json:"cancellation_fee_value" validate:"gte=0"`
	DeadlineHours int                        `json:"cancellation_deadline_hours" validate:"gte=0"`
	Seats         []SeatSpec                 `json:"seats" validate:"required,min=1,dive"`
}

type Service struct {
	DB       *bun.DB
	Events   *seatsdb.DB
	Logger   *logger.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

func NewService(db *bun.DB, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Events:   seatsdb.New(db),
		Logger:   log,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateEvent stores a draft event with its seat map. Buyers cannot see or
// book it until it is published.
func (s *Service) CreateEvent(ctx context.Context, req NewEvent) (*models.Event, error) {
	if req.FeeType == "" {
		req.FeeType = models.FeeNone
	}
	if err := s.check(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	event := &models.Event{
		ID:            s.newID(),
		SellerID:      req.SellerID,
		Title:         strings.TrimSpace(req.Title),
		Venue:         strings.TrimSpace(req.Venue),
		StartsAt:      req.StartsAt.UTC(),
		Currency:      strings.ToLower(req.Currency),
		Status:        models.EventDraft,
		FeeType:       req.FeeType,
		FeeValue:      req.FeeValue,
		DeadlineHours: req.DeadlineHours,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	seats := make([]models.Seat, len(req.Seats))
	for i, spec := range req.Seats {
		seats[i] = models.Seat{
			EventID:    event.ID,
			SeatID:     spec.SeatID,
			Label:      spec.Label,
			Tier:       spec.Tier,
			PriceCents: spec.PriceCents,
			Status:     models.SeatAvailable,
			UpdatedAt:  now,
		}
	}

	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.Events.WithTx(tx).CreateEvent(ctx, event, seats)
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.Logger.LogSeats("CREATE_EVENT", event.ID, fmt.Sprintf("draft by %s with %d seats", event.SellerID, len(seats)))
	return event, nil
}

func (s *Service) check(req NewEvent) error {
	if req.SellerID == "" {
		return fmt.Errorf("seller is required: %w", apperr.ErrValidation)
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	if !req.StartsAt.After(s.now()) {
		return fmt.Errorf("starts_at must be in the future: %w", apperr.ErrValidation)
	}

	switch req.FeeType {
	case models.FeeNone:
		if req.FeeValue != 0 {
			return fmt.Errorf("NONE takes no cancellation_fee_value: %w", apperr.ErrValidation)
		}
	case models.FeeFixed:
		if req.FeeValue <= 0 {
			return fmt.Errorf("FIXED needs cancellation_fee_value: %w", apperr.ErrValidation)
		}
	case models.FeePercentage:
		if req.FeeValue <= 0 || req.FeeValue > 100 {
			return fmt.Errorf("PERCENTAGE needs cancellation_fee_value between 1 and 100: %w", apperr.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown cancellation_fee_type %q: %w", req.FeeType, apperr.ErrValidation)
	}

	seen := make(map[string]bool, len(req.Seats))
	for _, seat := range req.Seats {
		if seen[seat.SeatID] {
			return fmt.Errorf("seat %s listed twice: %w", seat.SeatID, apperr.ErrValidation)
		}
		seen[seat.SeatID] = true
	}
	return nil
}

// PublishEvent opens a draft for booking. Only its seller or an admin may
// publish it, and only before it starts.
func (s *Service) PublishEvent(ctx context.Context, eventID, actorID string, admin bool) (*models.Event, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.SellerID != actorID && !admin {
		return nil, fmt.Errorf("event %s: %w", eventID, apperr.ErrForbidden)
	}
	if event.Status != models.EventDraft {
		return nil, fmt.Errorf("event %s is %s: %w", eventID, event.Status, apperr.ErrInvalidState)
	}
	if !s.now().Before(event.StartsAt) {
		return nil, fmt.Errorf("event %s has already started: %w", eventID, apperr.ErrInvalidState)
	}

	if err := s.Events.SetEventStatus(ctx, eventID, models.EventPublished); err != nil {
		return nil, err
	}
	event.Status = models.EventPublished
	s.Logger.LogSeats("PUBLISH_EVENT", eventID, "published by "+actorID)
	return event, nil
}

func (s *Service) ListEvents(ctx context.Context, sellerID string) ([]models.Event, error) {
	return s.Events.ListEventsBySeller(ctx, sellerID)
}
