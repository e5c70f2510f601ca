package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID              string        `bun:"id,pk" json:"id"`
	EventID         string        `bun:"event_id,notnull" json:"event_id"`
	UserID          string        `bun:"user_id,notnull,unique:bookings_user_idempotency" json:"user_id"`
	IdempotencyKey  string        `bun:"idempotency_key,nullzero,unique:bookings_user_idempotency" json:"idempotency_key,omitempty"`
	SeatIDs         []string      `bun:"seat_ids,type:jsonb" json:"seat_ids"`
	SubtotalCents   int64         `bun:"subtotal_cents,notnull" json:"subtotal_cents"`
	DiscountCents   int64         `bun:"discount_cents,notnull" json:"discount_cents"`
	TotalCents      int64         `bun:"total_cents,notnull" json:"total_cents"`
	Currency        string        `bun:"currency,notnull" json:"currency"`
	CouponCode      string        `bun:"coupon_code,nullzero" json:"coupon_code,omitempty"`
	PaymentIntentID string        `bun:"payment_intent_id,nullzero,unique" json:"payment_intent_id,omitempty"`
	Status          BookingStatus `bun:"status,notnull" json:"status"`
	ExpiresAt       time.Time     `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt       time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// ReserveRequest is what a buyer submits to hold seats.
type ReserveRequest struct {
	UserID         string   `json:"-"`
	EventID        string   `json:"event_id" validate:"required"`
	SeatIDs        []string `json:"seat_ids" validate:"required,min=1,dive,required"`
	CouponCode     string   `json:"coupon_code,omitempty"`
	IdempotencyKey string   `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}
