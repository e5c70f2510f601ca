package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPaid              OrderStatus = "paid"
	OrderPartiallyRefunded OrderStatus = "partially_refunded"
	OrderRefunded          OrderStatus = "refunded"
)

// Order is the durable paid record. One per payment intent.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string      `bun:"id,pk" json:"id"`
	BookingID       string      `bun:"booking_id,notnull,unique" json:"booking_id"`
	EventID         string      `bun:"event_id,notnull" json:"event_id"`
	UserID          string      `bun:"user_id,notnull" json:"user_id"`
	PaymentIntentID string      `bun:"payment_intent_id,notnull,unique" json:"payment_intent_id"`
	ChargeCents     int64       `bun:"charge_cents,notnull" json:"charge_cents"`
	RefundedCents   int64       `bun:"refunded_cents,notnull" json:"refunded_cents"`
	Currency        string      `bun:"currency,notnull" json:"currency"`
	Status          OrderStatus `bun:"status,notnull" json:"status"`
	CreatedAt       time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

type TicketStatus string

const (
	TicketActive        TicketStatus = "active"
	TicketRefundPending TicketStatus = "refund_pending"
	TicketCancelled     TicketStatus = "cancelled"
	TicketScanned       TicketStatus = "scanned"
)

// Ticket is one seat of an order. AllocatedCents is the seat's share of
// the order charge; allocations of an order sum to its charge.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID             string       `bun:"id,pk" json:"id"`
	OrderID        string       `bun:"order_id,nullzero" json:"order_id,omitempty"`
	EventID        string       `bun:"event_id,notnull" json:"event_id"`
	SeatID         string       `bun:"seat_id,notnull" json:"seat_id"`
	SeatLabel      string       `bun:"seat_label" json:"seat_label"`
	Tier           string       `bun:"tier" json:"tier"`
	BasePriceCents int64        `bun:"base_price_cents,notnull" json:"base_price_cents"`
	AllocatedCents int64        `bun:"allocated_cents,notnull" json:"allocated_cents"`
	RefundedCents  int64        `bun:"refunded_cents,notnull" json:"refunded_cents"`
	Status         TicketStatus `bun:"status,notnull" json:"status"`
	QRToken        string       `bun:"qr_token" json:"-"`
	IssuedAt       time.Time    `bun:"issued_at,notnull" json:"issued_at"`
	ScannedAt      time.Time    `bun:"scanned_at,nullzero" json:"scanned_at,omitempty"`
	CancelledAt    time.Time    `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
}

type LedgerType string

const (
	LedgerCharge LedgerType = "charge"
	LedgerRefund LedgerType = "refund"
	LedgerFee    LedgerType = "fee"
)

type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerSucceeded LedgerStatus = "succeeded"
	LedgerFailed    LedgerStatus = "failed"
)

// LedgerEntry records one money movement against an order. Refund and fee
// entries of a single cancellation share a BatchID. Payments refunded before
// an order existed carry no OrderID.
type LedgerEntry struct {
	bun.BaseModel `bun:"table:ledger_entries"`

	ID          string       `bun:"id,pk" json:"id"`
	OrderID     string       `bun:"order_id,nullzero" json:"order_id,omitempty"`
	BatchID     string       `bun:"batch_id,notnull" json:"batch_id"`
	TicketID    string       `bun:"ticket_id,nullzero" json:"ticket_id,omitempty"`
	SeatID      string       `bun:"seat_id,nullzero" json:"seat_id,omitempty"`
	Type        LedgerType   `bun:"type,notnull" json:"type"`
	Status      LedgerStatus `bun:"status,notnull" json:"status"`
	AmountCents int64        `bun:"amount_cents,notnull" json:"amount_cents"`
	Currency    string       `bun:"currency,notnull" json:"currency"`
	Reference   string       `bun:"reference,nullzero" json:"reference,omitempty"`
	Reason      string       `bun:"reason,nullzero" json:"reason,omitempty"`
	CreatedAt   time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}

type OrderWithTickets struct {
	Order   Order    `json:"order"`
	Tickets []Ticket `json:"tickets"`
}
