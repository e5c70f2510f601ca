package models

import "time"

// Payloads published to Kafka.

type SeatStatusEvent struct {
	EventID    string     `json:"event_id"`
	SeatIDs    []string   `json:"seat_ids"`
	Status     SeatStatus `json:"status"`
	BookingID  string     `json:"booking_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

type BookingEvent struct {
	BookingID  string        `json:"booking_id"`
	EventID    string        `json:"event_id"`
	UserID     string        `json:"user_id"`
	SeatIDs    []string      `json:"seat_ids"`
	Status     BookingStatus `json:"status"`
	TotalCents int64         `json:"total_cents"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type TicketSummary struct {
	TicketID       string `json:"ticket_id"`
	SeatID         string `json:"seat_id"`
	SeatLabel      string `json:"seat_label"`
	AllocatedCents int64  `json:"allocated_cents"`
}

type OrderConfirmedEvent struct {
	OrderID         string          `json:"order_id"`
	BookingID       string          `json:"booking_id"`
	EventID         string          `json:"event_id"`
	UserID          string          `json:"user_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	ChargeCents     int64           `json:"charge_cents"`
	Currency        string          `json:"currency"`
	Tickets         []TicketSummary `json:"tickets"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

type RefundEvent struct {
	OrderID     string    `json:"order_id"`
	BatchID     string    `json:"batch_id"`
	UserID      string    `json:"user_id"`
	SeatIDs     []string  `json:"seat_ids"`
	RefundCents int64     `json:"refund_cents"`
	FeeCents    int64     `json:"fee_cents"`
	Currency    string    `json:"currency"`
	Reference   string    `json:"reference,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type ScanEvent struct {
	TicketID  string    `json:"ticket_id"`
	OrderID   string    `json:"order_id"`
	EventID   string    `json:"event_id"`
	SeatID    string    `json:"seat_id"`
	ScannerID string    `json:"scanner_id"`
	ScannedAt time.Time `json:"scanned_at"`
}
