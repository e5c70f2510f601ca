package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/models"
)

// DB is the event and seat store. Bun is either the root database or a
// transaction.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

// ---------------- EVENTS ----------------

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateEvent inserts an event and its seat map.
func (d *DB) CreateEvent(ctx context.Context, event *models.Event, seats []models.Seat) error {
	event.TotalSeats = len(seats)
	if _, err := d.Bun.NewInsert().Model(event).Exec(ctx); err != nil {
		return err
	}
	if len(seats) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&seats).Exec(ctx)
	return err
}

func (d *DB) SetEventStatus(ctx context.Context, id string, status models.EventStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, 1, fmt.Errorf("event %s: %w", id, apperr.ErrNotFound))
}

func (d *DB) ListEventsBySeller(ctx context.Context, sellerID string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("seller_id = ?", sellerID).
		Order("starts_at ASC").
		Scan(ctx)
	return events, err
}

// AdjustBooked moves the durable booked counter by delta.
func (d *DB) AdjustBooked(ctx context.Context, eventID string, delta int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("booked_seats = booked_seats + ?", delta).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", eventID).
		Exec(ctx)
	return err
}

// ---------------- SEATS ----------------

func (d *DB) ListSeats(ctx context.Context, eventID string) ([]models.Seat, error) {
	var seats []models.Seat
	err := d.Bun.NewSelect().
		Model(&seats).
		Where("event_id = ?", eventID).
		Order("seat_id ASC").
		Scan(ctx)
	return seats, err
}

func (d *DB) GetSeats(ctx context.Context, eventID string, seatIDs []string) ([]models.Seat, error) {
	var seats []models.Seat
	if len(seatIDs) == 0 {
		return seats, nil
	}
	err := d.Bun.NewSelect().
		Model(&seats).
		Where("event_id = ?", eventID).
		Where("seat_id IN (?)", bun.In(seatIDs)).
		Order("seat_id ASC").
		Scan(ctx)
	return seats, err
}

// MarkBooked flips available seats to booked for bookingID. Either every
// seat moves or none does; callers run it inside a transaction.
func (d *DB) MarkBooked(ctx context.Context, eventID string, seatIDs []string, bookingID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Seat)(nil)).
		Set("status = ?", models.SeatBooked).
		Set("booking_id = ?", bookingID).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_id = ?", eventID).
		Where("seat_id IN (?)", bun.In(seatIDs)).
		Where("status = ?", models.SeatAvailable).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, len(seatIDs), apperr.Seats(eventID, seatIDs))
}

// MarkAvailable returns seats booked by bookingID to the pool.
func (d *DB) MarkAvailable(ctx context.Context, eventID string, seatIDs []string, bookingID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Seat)(nil)).
		Set("status = ?", models.SeatAvailable).
		Set("booking_id = NULL").
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_id = ?", eventID).
		Where("seat_id IN (?)", bun.In(seatIDs)).
		Where("status = ?", models.SeatBooked).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, len(seatIDs),
		fmt.Errorf("seats %v not booked by %s: %w", seatIDs, bookingID, apperr.ErrInvalidState))
}

func expectRows(res sql.Result, want int, mismatch error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != want {
		return mismatch
	}
	return nil
}
