package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	bookingdb "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/promo"
	"ms-marketplace/internal/seats"
	seatsdb "ms-marketplace/internal/seats/db"
	seatsredis "ms-marketplace/internal/seats/redis"
	"ms-marketplace/internal/testutil"
)

type MockIntents struct {
	mock.Mock
}

func (m *MockIntents) CancelIntent(ctx context.Context, intentID string) error {
	args := m.Called(ctx, intentID)
	return args.Error(0)
}

type harness struct {
	svc     *Service
	db      *bun.DB
	inv     *seats.Inventory
	pub     *testutil.Publisher
	mr      *miniredis.Miniredis
	intents *MockIntents
	topics  config.TopicConfig
}

func newHarness(t *testing.T) *harness {
	db := testutil.NewDB(t)
	client, mr := testutil.NewRedis(t)
	testutil.SeedEvent(t, db, "evt-1", []int64{1000, 2000, 3000, 4000})

	log := logger.NewNop()
	cfg := config.Load()
	pub := &testutil.Publisher{}
	events := seatsdb.New(db)
	inv := seats.NewInventory(events, seatsredis.NewLocker(client, log), nil, log)

	bookingCfg := cfg.Booking
	bookingCfg.HoldTTL = time.Minute
	bookingCfg.MaxSeats = 3

	svc := NewService(bookingdb.New(db), events, inv, promo.NewService(db, log), pub, cfg.Kafka.Topics, bookingCfg, log)
	intents := &MockIntents{}
	svc.Intents = intents

	return &harness{svc: svc, db: db, inv: inv, pub: pub, mr: mr, intents: intents, topics: cfg.Kafka.Topics}
}

func (h *harness) seatState(t *testing.T, seatID string) models.SeatStatus {
	views, err := h.inv.Availability(context.Background(), "evt-1")
	require.NoError(t, err)
	for _, v := range views {
		if v.SeatID == seatID {
			return v.State
		}
	}
	t.Fatalf("seat %s not found", seatID)
	return ""
}

func request(seatIDs ...string) models.ReserveRequest {
	return models.ReserveRequest{UserID: "user-1", EventID: "evt-1", SeatIDs: seatIDs}
}

func TestReserveHoldsSeatsAndPrices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	b, err := h.svc.Reserve(ctx, request("A1", "A3"))
	require.NoError(t, err)

	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, int64(4000), b.SubtotalCents)
	assert.Equal(t, int64(4000), b.TotalCents)
	assert.Equal(t, "usd", b.Currency)
	assert.WithinDuration(t, time.Now().Add(time.Minute), b.ExpiresAt, 5*time.Second)

	assert.Equal(t, models.SeatHeld, h.seatState(t, "A1"))
	assert.Equal(t, models.SeatAvailable, h.seatState(t, "A2"))

	stored, err := h.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A3"}, stored.SeatIDs)

	require.Len(t, h.pub.On(h.topics.BookingCreated), 1)
}

func TestReserveValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Reserve(ctx, request())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.Reserve(ctx, request("A1", "A1"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.Reserve(ctx, request("A1", "A2", "A3", "A4"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.Reserve(ctx, models.ReserveRequest{EventID: "evt-1", SeatIDs: []string{"A1"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.Reserve(ctx, models.ReserveRequest{UserID: "user-1", EventID: "nope", SeatIDs: []string{"A1"}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReserveRejectsUnpublishedAndStartedEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.SeedEvent(t, h.db, "draft", []int64{1000}, testutil.WithStatus(models.EventDraft))
	testutil.SeedEvent(t, h.db, "past", []int64{1000}, testutil.WithStart(time.Now().Add(-time.Hour)))

	_, err := h.svc.Reserve(ctx, models.ReserveRequest{UserID: "u", EventID: "draft", SeatIDs: []string{"A1"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = h.svc.Reserve(ctx, models.ReserveRequest{UserID: "u", EventID: "past", SeatIDs: []string{"A1"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestReserveConflictingSeats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Reserve(ctx, request("A1", "A2"))
	require.NoError(t, err)

	other := request("A2", "A3")
	other.UserID = "user-2"
	_, err = h.svc.Reserve(ctx, other)

	var seatErr *apperr.SeatError
	require.True(t, errors.As(err, &seatErr))
	assert.Equal(t, []string{"A2"}, seatErr.SeatIDs)
	assert.Equal(t, models.SeatAvailable, h.seatState(t, "A3"))
}

func TestReserveIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := request("A1")
	req.IdempotencyKey = "retry-1"
	first, err := h.svc.Reserve(ctx, req)
	require.NoError(t, err)

	again, err := h.svc.Reserve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, h.pub.On(h.topics.BookingCreated), 1)

	req.SeatIDs = []string{"A2"}
	_, err = h.svc.Reserve(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

// gatedPricer stalls the first quote until release is closed, which keeps
// that request between its seat hold and its insert.
type gatedPricer struct {
	inner   Pricer
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedPricer) Quote(ctx context.Context, code, eventID string, seats []models.Seat) (*promo.Quote, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.inner.Quote(ctx, code, eventID, seats)
}

// conflictSignal reports each hold that failed on a taken seat.
type conflictSignal struct {
	Seats
	conflicts chan struct{}
}

func (c *conflictSignal) Hold(ctx context.Context, eventID string, seatIDs []string, bookingID string, ttl time.Duration) ([]models.Seat, error) {
	seats, err := c.Seats.Hold(ctx, eventID, seatIDs, bookingID, ttl)
	if errors.Is(err, apperr.ErrSeatUnavailable) {
		select {
		case c.conflicts <- struct{}{}:
		default:
		}
	}
	return seats, err
}

func TestReserveRetryDuringOriginalReplays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pricer := &gatedPricer{inner: h.svc.Pricer, entered: make(chan struct{}), release: make(chan struct{})}
	seatsSig := &conflictSignal{Seats: h.svc.Seats, conflicts: make(chan struct{}, 1)}
	h.svc.Pricer = pricer
	h.svc.Seats = seatsSig
	h.svc.replayAttempts = 100
	h.svc.replayWait = 5 * time.Millisecond

	req := request("A1", "A2")
	req.IdempotencyKey = "double-click"

	type outcome struct {
		b   *models.Booking
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		b, err := h.svc.Reserve(ctx, req)
		first <- outcome{b, err}
	}()
	<-pricer.entered

	second := make(chan outcome, 1)
	go func() {
		b, err := h.svc.Reserve(ctx, req)
		second <- outcome{b, err}
	}()
	<-seatsSig.conflicts
	close(pricer.release)

	r1 := <-first
	r2 := <-second
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	assert.Equal(t, r1.b.ID, r2.b.ID)
	assert.Len(t, h.pub.On(h.topics.BookingCreated), 1)
	assert.Equal(t, models.SeatHeld, h.seatState(t, "A1"))
}

func TestReserveKeyOfAnotherUserDoesNotReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.replayWait = time.Millisecond

	req := request("A1")
	req.IdempotencyKey = "first"
	_, err := h.svc.Reserve(ctx, req)
	require.NoError(t, err)

	other := request("A1")
	other.UserID = "user-2"
	other.IdempotencyKey = "first"
	_, err = h.svc.Reserve(ctx, other)
	assert.ErrorIs(t, err, apperr.ErrSeatUnavailable)
}

func TestReserveRejectsTotalBelowMinimumCharge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, promo.NewService(h.db, logger.NewNop()).CreateCoupon(ctx, &models.Coupon{
		Code: "ALLFREE", SellerID: "seller-1", Type: models.PERCENTAGE, Percent: 100,
		ActiveFrom: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	}))

	req := request("A1")
	req.CouponCode = "ALLFREE"
	_, err := h.svc.Reserve(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.SeatAvailable, h.seatState(t, "A1"))

	list, err := h.svc.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReserveBadCouponReleasesHolds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := request("A1")
	req.CouponCode = "NOSUCH"
	_, err := h.svc.Reserve(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.SeatAvailable, h.seatState(t, "A1"))
}

func TestReserveAppliesCoupon(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, promo.NewService(h.db, logger.NewNop()).CreateCoupon(ctx, &models.Coupon{
		Code: "TAKE10", SellerID: "seller-1", Type: models.PERCENTAGE, Percent: 10,
		ActiveFrom: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	}))

	req := request("A2", "A3")
	req.CouponCode = "take10"
	b, err := h.svc.Reserve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), b.SubtotalCents)
	assert.Equal(t, int64(500), b.DiscountCents)
	assert.Equal(t, int64(4500), b.TotalCents)
	assert.Equal(t, "TAKE10", b.CouponCode)
}

func TestCancelReleasesAndCancelsIntent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	b, err := h.svc.Reserve(ctx, request("A1"))
	require.NoError(t, err)
	require.NoError(t, h.svc.AttachIntent(ctx, b.ID, "pi_1"))
	h.intents.On("CancelIntent", mock.Anything, "pi_1").Return(nil).Once()

	_, err = h.svc.Cancel(ctx, b.ID, "someone-else")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	cancelled, err := h.svc.Cancel(ctx, b.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, models.SeatAvailable, h.seatState(t, "A1"))
	h.intents.AssertExpectations(t)

	_, err = h.svc.Cancel(ctx, b.ID, "user-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Len(t, h.pub.On(h.topics.BookingCancelled), 1)
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old, err := h.svc.Reserve(ctx, request("A1"))
	require.NoError(t, err)
	h.svc.now = func() time.Time { return time.Now().Add(30 * time.Second) }
	fresh, err := h.svc.Reserve(ctx, request("A2"))
	require.NoError(t, err)

	n, err := h.svc.ExpireStale(ctx, time.Now().Add(75*time.Second), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingExpired, got.Status)
	assert.Equal(t, models.SeatAvailable, h.seatState(t, "A1"))

	got, err = h.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, got.Status)

	n, err = h.svc.ExpireStale(ctx, time.Now().Add(75*time.Second), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, h.pub.On(h.topics.BookingExpired), 1)
}

func TestExpireKeepsSeatsAConfirmationAlreadyBooked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	b, err := h.svc.Reserve(ctx, request("A1"))
	require.NoError(t, err)
	require.NoError(t, h.inv.Confirm(ctx, "evt-1", b.SeatIDs, b.ID, time.Minute))

	n, err := h.svc.ExpireStale(ctx, time.Now().Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.SeatBooked, h.seatState(t, "A1"))
}

func TestListByUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Reserve(ctx, request("A1"))
	require.NoError(t, err)
	_, err = h.svc.Reserve(ctx, request("A2"))
	require.NoError(t, err)

	list, err := h.svc.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
