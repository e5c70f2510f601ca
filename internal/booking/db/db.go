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

type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

func (d *DB) Insert(ctx context.Context, b *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	return err
}

func (d *DB) get(ctx context.Context, what string, where string, args ...interface{}) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().Model(&b).Where(where, args...).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", what, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (d *DB) Get(ctx context.Context, id string) (*models.Booking, error) {
	return d.get(ctx, id, "id = ?", id)
}

func (d *DB) GetByIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	return d.get(ctx, "for intent "+intentID, "payment_intent_id = ?", intentID)
}

func (d *DB) GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("user_id = ?", userID).
		Where("idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking with key %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return bookings, err
}

func (d *DB) ListByEvent(ctx context.Context, eventID string, status models.BookingStatus) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("event_id = ?", eventID).
		Where("status = ?", status).
		Order("created_at ASC").
		Scan(ctx)
	return bookings, err
}

// ListExpired returns pending bookings whose hold window ended before now,
// oldest first.
func (d *DB) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.BookingPending).
		Where("expires_at < ?", now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	return bookings, err
}

// Transition moves a booking to status `to` if it is currently in one of
// `from`.
func (d *DB) Transition(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("booking %s cannot move to %s: %w", id, to, apperr.ErrInvalidState)
	}
	return nil
}

// AttachIntent records the payment intent on a booking that is still pending.
func (d *DB) AttachIntent(ctx context.Context, id, intentID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_intent_id = ?", intentID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.BookingPending).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("booking %s is not pending: %w", id, apperr.ErrInvalidState)
	}
	return nil
}
