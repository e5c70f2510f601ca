package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
)

type CancellationFeeType string

const (
	FeeNone       CancellationFeeType = "NONE"
	FeeFixed      CancellationFeeType = "FIXED"
	FeePercentage CancellationFeeType = "PERCENTAGE"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string      `bun:"id,pk" json:"id"`
	SellerID    string      `bun:"seller_id,notnull" json:"seller_id"`
	Title       string      `bun:"title,notnull" json:"title"`
	Venue       string      `bun:"venue" json:"venue"`
	StartsAt    time.Time   `bun:"starts_at,notnull" json:"starts_at"`
	Currency    string      `bun:"currency,notnull" json:"currency"`
	Status      EventStatus `bun:"status,notnull" json:"status"`
	TotalSeats  int         `bun:"total_seats,notnull" json:"total_seats"`
	BookedSeats int         `bun:"booked_seats,notnull" json:"booked_seats"`

	// FeeValue is minor units per seat for FIXED and whole percent for PERCENTAGE.
	FeeType       CancellationFeeType `bun:"cancellation_fee_type,notnull" json:"cancellation_fee_type"`
	FeeValue      int64               `bun:"cancellation_fee_value,notnull" json:"cancellation_fee_value"`
	DeadlineHours int                 `bun:"cancellation_deadline_hours,notnull" json:"cancellation_deadline_hours"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// AvailableSeats is the durable count; transient holds are not subtracted.
func (e *Event) AvailableSeats() int {
	return e.TotalSeats - e.BookedSeats
}

// CancellationFee returns the fee for cancelling one seat whose paid
// allocation is allocated, capped at allocated.
func (e *Event) CancellationFee(allocated int64) int64 {
	var fee int64
	switch e.FeeType {
	case FeeFixed:
		fee = e.FeeValue
	case FeePercentage:
		fee = allocated * e.FeeValue / 100
	}
	if fee < 0 {
		return 0
	}
	if fee > allocated {
		return allocated
	}
	return fee
}

// CancellationOpen reports whether buyers may still cancel at now.
func (e *Event) CancellationOpen(now time.Time) bool {
	deadline := e.StartsAt.Add(-time.Duration(e.DeadlineHours) * time.Hour)
	return now.Before(deadline)
}

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatBooked    SeatStatus = "booked"
)

// Seat rows only ever store available or booked; held lives in Redis.
type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	EventID    string     `bun:"event_id,pk" json:"event_id"`
	SeatID     string     `bun:"seat_id,pk" json:"seat_id"`
	Label      string     `bun:"label,notnull" json:"label"`
	Tier       string     `bun:"tier" json:"tier"`
	PriceCents int64      `bun:"price_cents,notnull" json:"price_cents"`
	Status     SeatStatus `bun:"status,notnull" json:"status"`
	BookingID  string     `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	Version    int64      `bun:"version,notnull" json:"version"`
	UpdatedAt  time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// SeatView is a seat with its effective state across store and locks.
type SeatView struct {
	Seat
	State SeatStatus `json:"state"`
}
