package seats

import (
	"context"
	"fmt"
	"time"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	seatsdb "ms-marketplace/internal/seats/db"
	seatsredis "ms-marketplace/internal/seats/redis"
)

// Inventory joins the durable seat map with the Redis hold layer. Booked
// is owned by the database; held only ever exists as a Redis lock.
type Inventory struct {
	Store    *seatsdb.DB
	Locker   *seatsredis.Locker
	Notifier *Notifier
	Logger   *logger.Logger
}

func NewInventory(store *seatsdb.DB, locker *seatsredis.Locker, notifier *Notifier, log *logger.Logger) *Inventory {
	return &Inventory{Store: store, Locker: locker, Notifier: notifier, Logger: log}
}

// Availability lists every seat of an event with its effective state.
func (inv *Inventory) Availability(ctx context.Context, eventID string) ([]models.SeatView, error) {
	if _, err := inv.Store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	seats, err := inv.Store.ListSeats(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(seats))
	for i, s := range seats {
		ids[i] = s.SeatID
	}
	locks, err := inv.Locker.States(ctx, eventID, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.SeatView, len(seats))
	for i, s := range seats {
		state := models.SeatAvailable
		if s.Status == models.SeatBooked {
			state = models.SeatBooked
		} else if lock, ok := locks[s.SeatID]; ok {
			state = lock.Status
		}
		views[i] = models.SeatView{Seat: s, State: state}
	}
	return views, nil
}

// Hold checks the seats exist and are not booked, then takes Redis holds
// for bookingID. It returns the seat rows in request order.
func (inv *Inventory) Hold(ctx context.Context, eventID string, seatIDs []string, bookingID string, ttl time.Duration) ([]models.Seat, error) {
	rows, err := inv.Store.GetSeats(ctx, eventID, seatIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Seat, len(rows))
	for _, s := range rows {
		byID[s.SeatID] = s
	}

	ordered := make([]models.Seat, 0, len(seatIDs))
	var missing, taken []string
	for _, id := range seatIDs {
		s, ok := byID[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case s.Status != models.SeatAvailable:
			taken = append(taken, id)
		default:
			ordered = append(ordered, s)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown seats %v for event %s: %w", missing, eventID, apperr.ErrValidation)
	}
	if len(taken) > 0 {
		return nil, apperr.Seats(eventID, taken)
	}

	conflicts, err := inv.Locker.Hold(ctx, eventID, seatIDs, bookingID, ttl)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, apperr.Seats(eventID, conflicts)
	}

	inv.Notifier.SeatsChanged(ctx, eventID, seatIDs, models.SeatHeld, bookingID)
	return ordered, nil
}

// Confirm turns the booking's holds into booked locks. Holds that lapsed
// are taken again if nobody else got them first.
func (inv *Inventory) Confirm(ctx context.Context, eventID string, seatIDs []string, bookingID string, ttl time.Duration) error {
	lost, err := inv.Locker.Confirm(ctx, eventID, seatIDs, bookingID)
	if err != nil {
		return err
	}
	if len(lost) == 0 {
		return nil
	}

	inv.Logger.Warn("SEATS", fmt.Sprintf("Booking %s lost holds on %v, re-holding", bookingID, lost))
	conflicts, err := inv.Locker.Hold(ctx, eventID, lost, bookingID, ttl)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return apperr.Seats(eventID, conflicts)
	}

	lost, err = inv.Locker.Confirm(ctx, eventID, seatIDs, bookingID)
	if err != nil {
		return err
	}
	if len(lost) > 0 {
		return apperr.Seats(eventID, lost)
	}
	return nil
}

// Release drops every lock of the booking, held or booked.
func (inv *Inventory) Release(ctx context.Context, eventID string, seatIDs []string, bookingID string) error {
	n, err := inv.Locker.Release(ctx, eventID, seatIDs, bookingID)
	if err != nil {
		return err
	}
	if n > 0 {
		inv.Notifier.SeatsChanged(ctx, eventID, seatIDs, models.SeatAvailable, bookingID)
	}
	return nil
}

// ReleaseHeld drops only locks still in the held state, leaving seats that
// a concurrent confirmation already booked.
func (inv *Inventory) ReleaseHeld(ctx context.Context, eventID string, seatIDs []string, bookingID string) error {
	n, err := inv.Locker.ReleaseHeld(ctx, eventID, seatIDs, bookingID)
	if err != nil {
		return err
	}
	if n > 0 {
		inv.Notifier.SeatsChanged(ctx, eventID, seatIDs, models.SeatAvailable, bookingID)
	}
	return nil
}
