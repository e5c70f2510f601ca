package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/models"
)

// EventOption tweaks a seeded event before insert.
type EventOption func(*models.Event)

func WithPolicy(feeType models.CancellationFeeType, value int64, deadlineHours int) EventOption {
	return func(e *models.Event) {
		e.FeeType = feeType
		e.FeeValue = value
		e.DeadlineHours = deadlineHours
	}
}

func WithStart(at time.Time) EventOption {
	return func(e *models.Event) { e.StartsAt = at }
}

func WithStatus(s models.EventStatus) EventOption {
	return func(e *models.Event) { e.Status = s }
}

// SeedEvent inserts a published event with seats A1..An priced at the
// given minor-unit prices.
func SeedEvent(t testing.TB, db bun.IDB, eventID string, prices []int64, opts ...EventOption) *models.Event {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	event := &models.Event{
		ID:         eventID,
		SellerID:   "seller-1",
		Title:      "Test Event " + eventID,
		Venue:      "Main Hall",
		StartsAt:   now.Add(30 * 24 * time.Hour),
		Currency:   "usd",
		Status:     models.EventPublished,
		TotalSeats: len(prices),
		FeeType:    models.FeeNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, opt := range opts {
		opt(event)
	}
	if _, err := db.NewInsert().Model(event).Exec(ctx); err != nil {
		t.Fatalf("Failed to seed event: %v", err)
	}

	seats := make([]models.Seat, 0, len(prices))
	for i, price := range prices {
		seats = append(seats, models.Seat{
			EventID:    eventID,
			SeatID:     SeatID(i),
			Label:      SeatID(i),
			Tier:       "standard",
			PriceCents: price,
			Status:     models.SeatAvailable,
			UpdatedAt:  now,
		})
	}
	if len(seats) > 0 {
		if _, err := db.NewInsert().Model(&seats).Exec(ctx); err != nil {
			t.Fatalf("Failed to seed seats: %v", err)
		}
	}
	return event
}

// SeatID returns the seeded seat name for index i (A1, A2, ...).
func SeatID(i int) string {
	return fmt.Sprintf("A%d", i+1)
}
