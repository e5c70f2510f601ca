package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/seats/db"
	"ms-marketplace/internal/testutil"
)

func TestGetEvent(t *testing.T) {
	bunDB := testutil.NewDB(t)
	store := db.New(bunDB)
	testutil.SeedEvent(t, bunDB, "ev-1", []int64{1000, 2000})

	event, err := store.GetEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, event.TotalSeats)
	assert.Equal(t, models.EventPublished, event.Status)

	_, err = store.GetEvent(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCreateEventWithSeats(t *testing.T) {
	bunDB := testutil.NewDB(t)
	store := db.New(bunDB)
	ctx := context.Background()
	now := time.Now().UTC()

	event := &models.Event{
		ID: "ev-new", SellerID: "seller-9", Title: "Jazz Night", StartsAt: now.Add(48 * time.Hour),
		Currency: "usd", Status: models.EventDraft, FeeType: models.FeeNone, CreatedAt: now, UpdatedAt: now,
	}
	seats := []models.Seat{
		{EventID: "ev-new", SeatID: "B1", Label: "B1", PriceCents: 500, Status: models.SeatAvailable, UpdatedAt: now},
		{EventID: "ev-new", SeatID: "B2", Label: "B2", PriceCents: 500, Status: models.SeatAvailable, UpdatedAt: now},
	}
	require.NoError(t, store.CreateEvent(ctx, event, seats))
	require.NoError(t, store.SetEventStatus(ctx, "ev-new", models.EventPublished))

	got, err := store.GetEvent(ctx, "ev-new")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalSeats)
	assert.Equal(t, models.EventPublished, got.Status)

	listed, err := store.ListSeats(ctx, "ev-new")
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	byseller, err := store.ListEventsBySeller(ctx, "seller-9")
	require.NoError(t, err)
	assert.Len(t, byseller, 1)
}

func TestMarkBookedIsAllOrNothing(t *testing.T) {
	bunDB := testutil.NewDB(t)
	store := db.New(bunDB)
	ctx := context.Background()
	testutil.SeedEvent(t, bunDB, "ev-1", []int64{1000, 1000, 1000})

	require.NoError(t, store.MarkBooked(ctx, "ev-1", []string{"A1"}, "bk-1"))

	err := store.MarkBooked(ctx, "ev-1", []string{"A1", "A2"}, "bk-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrSeatUnavailable))

	// inside a transaction the partial update rolls back
	err = bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return store.WithTx(tx).MarkBooked(ctx, "ev-1", []string{"A3", "A1"}, "bk-3")
	})
	require.Error(t, err)

	seats, err := store.GetSeats(ctx, "ev-1", []string{"A3"})
	require.NoError(t, err)
	require.Len(t, seats, 1)
	assert.Equal(t, models.SeatAvailable, seats[0].Status)
}

func TestMarkAvailableOnlyForOwner(t *testing.T) {
	bunDB := testutil.NewDB(t)
	store := db.New(bunDB)
	ctx := context.Background()
	testutil.SeedEvent(t, bunDB, "ev-1", []int64{1000, 1000})

	require.NoError(t, store.MarkBooked(ctx, "ev-1", []string{"A1", "A2"}, "bk-1"))

	err := store.MarkAvailable(ctx, "ev-1", []string{"A1"}, "bk-other")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	require.NoError(t, store.MarkAvailable(ctx, "ev-1", []string{"A1"}, "bk-1"))

	seats, err := store.GetSeats(ctx, "ev-1", []string{"A1", "A2"})
	require.NoError(t, err)
	assert.Equal(t, models.SeatAvailable, seats[0].Status)
	assert.Empty(t, seats[0].BookingID)
	assert.Equal(t, int64(2), seats[0].Version)
	assert.Equal(t, models.SeatBooked, seats[1].Status)
}

func TestAdjustBooked(t *testing.T) {
	bunDB := testutil.NewDB(t)
	store := db.New(bunDB)
	ctx := context.Background()
	testutil.SeedEvent(t, bunDB, "ev-1", []int64{1000, 1000, 1000})

	require.NoError(t, store.AdjustBooked(ctx, "ev-1", 2))
	require.NoError(t, store.AdjustBooked(ctx, "ev-1", -1))

	event, err := store.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.BookedSeats)
	assert.Equal(t, 2, event.AvailableSeats())
}
