package refund

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/booking"
	bookingdb "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/payment"
	"ms-marketplace/internal/promo"
	"ms-marketplace/internal/seats"
	seatsdb "ms-marketplace/internal/seats/db"
	seatsredis "ms-marketplace/internal/seats/redis"
	"ms-marketplace/internal/testutil"
	"ms-marketplace/internal/tickets/qr"
)

type MockRefunder struct {
	mock.Mock
}

func (m *MockRefunder) Refund(ctx context.Context, p payment.RefundParams) (*payment.Refund, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Refund), args.Error(1)
}

type harness struct {
	svc      *Service
	payments *payment.Service
	bookings *booking.Service
	inv      *seats.Inventory
	db       *bun.DB
	mr       *miniredis.Miniredis
	refunder *MockRefunder
	pub      *testutil.Publisher
	topics   config.TopicConfig
}

func newHarness(t *testing.T, opts ...testutil.EventOption) *harness {
	db := testutil.NewDB(t)
	client, mr := testutil.NewRedis(t)
	testutil.SeedEvent(t, db, "evt-1", []int64{1000, 2000, 3000, 4000}, opts...)

	log := logger.NewNop()
	cfg := config.Load()
	pub := &testutil.Publisher{}

	events := seatsdb.New(db)
	inv := seats.NewInventory(events, seatsredis.NewLocker(client, log), nil, log)
	bookings := booking.NewService(bookingdb.New(db), events, inv, promo.NewService(db, log), pub, cfg.Kafka.Topics, cfg.Booking, log)

	codec, err := qr.NewCodec("test-secret")
	require.NoError(t, err)
	payments := payment.NewService(db, inv, bookings, nil, codec, cfg.Kafka.Topics, cfg.Booking.HoldTTL, log)

	refunder := &MockRefunder{}
	svc := NewService(db, refunder, inv, bookings, pub, cfg.Kafka.Topics, log)

	return &harness{svc: svc, payments: payments, bookings: bookings, inv: inv, db: db, mr: mr, refunder: refunder, pub: pub, topics: cfg.Kafka.Topics}
}

// buy reserves and pays for seats, returning the issued order.
func (h *harness) buy(t *testing.T, user, intent string, seatIDs ...string) *models.Order {
	ctx := context.Background()
	b, err := h.bookings.Reserve(ctx, models.ReserveRequest{UserID: user, EventID: "evt-1", SeatIDs: seatIDs})
	require.NoError(t, err)
	res, err := h.payments.ConfirmPayment(ctx, payment.Confirmation{IntentID: intent, BookingID: b.ID, AmountCents: b.TotalCents, Currency: "usd"})
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeConfirmed, res.Outcome)
	return &res.Order.Order
}

func (h *harness) expectRefund(intent string, amount int64, ref string) *mock.Call {
	return h.refunder.On("Refund", mock.Anything, mock.MatchedBy(func(p payment.RefundParams) bool {
		return p.IntentID == intent && p.AmountCents == amount && p.IdempotencyKey != ""
	})).Return(&payment.Refund{ID: ref, AmountCents: amount, Status: "succeeded"}, nil)
}

func TestCancelSeatsPartialRefund(t *testing.T) {
	h := newHarness(t, testutil.WithPolicy(models.FeeFixed, 150, 24))
	ctx := context.Background()
	order := h.buy(t, "user-1", "pi_1", "A1", "A2")
	h.expectRefund("pi_1", 850, "re_1").Once()

	res, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1", SeatIDs: []string{"A1"}, Reason: "can't make it"})
	require.NoError(t, err)

	assert.Equal(t, int64(850), res.RefundCents)
	assert.Equal(t, int64(150), res.FeeCents)
	assert.Equal(t, "re_1", res.Reference)
	assert.Equal(t, models.OrderPartiallyRefunded, res.Order.Status)
	assert.Equal(t, int64(850), res.Order.RefundedCents)

	tickets, err := h.svc.Orders.GetTickets(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketCancelled, tickets[0].Status)
	assert.Equal(t, int64(850), tickets[0].RefundedCents)
	assert.Equal(t, models.TicketActive, tickets[1].Status)

	ledger, err := h.svc.Orders.Ledger(ctx, order.ID)
	require.NoError(t, err)
	var refunds, fees int
	for _, e := range ledger {
		switch e.Type {
		case models.LedgerRefund:
			refunds++
			assert.Equal(t, models.LedgerSucceeded, e.Status)
			assert.Equal(t, "re_1", e.Reference)
			assert.Equal(t, res.BatchID, e.BatchID)
		case models.LedgerFee:
			fees++
			assert.Equal(t, int64(150), e.AmountCents)
		}
	}
	assert.Equal(t, 1, refunds)
	assert.Equal(t, 1, fees)

	views, err := h.inv.Availability(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.SeatAvailable, views[0].State)
	assert.Equal(t, models.SeatBooked, views[1].State)

	event, err := h.svc.Events.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.BookedSeats)

	assert.Len(t, h.pub.On(h.topics.OrderRefunded), 1)
	h.refunder.AssertExpectations(t)
}

func TestCancelRemainingSeatsCompletesRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.buy(t, "user-1", "pi_1", "A1", "A2")
	h.expectRefund("pi_1", 1000, "re_1").Once()
	h.expectRefund("pi_1", 2000, "re_2").Once()

	_, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1", SeatIDs: []string{"A1"}})
	require.NoError(t, err)
	res, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, models.OrderRefunded, res.Order.Status)
	assert.Equal(t, order.ChargeCents, res.Order.RefundedCents)

	_, err = h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCancelSeatsValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.buy(t, "user-1", "pi_1", "A1", "A2")

	_, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-2"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1", SeatIDs: []string{"A4"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1", SeatIDs: []string{"A1", "A1"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.CancelSeats(ctx, CancelRequest{OrderID: "missing", RequesterID: "user-1"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	h.refunder.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestCancelSeatsAfterDeadline(t *testing.T) {
	h := newHarness(t, testutil.WithStart(time.Now().Add(2*time.Hour)), testutil.WithPolicy(models.FeePercentage, 10, 24))
	ctx := context.Background()
	order := h.buy(t, "user-1", "pi_1", "A3")

	_, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1"})
	assert.ErrorIs(t, err, apperr.ErrCancellationClosed)

	// Sellers may still refund in full after the window.
	h.expectRefund("pi_1", 3000, "re_1").Once()
	res, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, Privileged: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.FeeCents)
	assert.Equal(t, models.OrderRefunded, res.Order.Status)
}

func TestFullFeeSkipsProcessor(t *testing.T) {
	h := newHarness(t, testutil.WithPolicy(models.FeePercentage, 100, 0))
	ctx := context.Background()
	order := h.buy(t, "user-1", "pi_1", "A1")

	res, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RefundCents)
	assert.Equal(t, int64(1000), res.FeeCents)
	assert.Equal(t, models.OrderRefunded, res.Order.Status)
	h.refunder.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestProcessorFailureRevertsTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.buy(t, "user-1", "pi_1", "A1", "A2")
	h.refunder.On("Refund", mock.Anything, mock.Anything).
		Return(nil, errors.New("card_declined")).Once()

	_, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1", SeatIDs: []string{"A2"}})
	require.Error(t, err)

	tickets, err := h.svc.Orders.GetTickets(ctx, order.ID)
	require.NoError(t, err)
	for _, tk := range tickets {
		assert.Equal(t, models.TicketActive, tk.Status)
		assert.Equal(t, int64(0), tk.RefundedCents)
	}

	ledger, err := h.svc.Orders.Ledger(ctx, order.ID)
	require.NoError(t, err)
	for _, e := range ledger {
		if e.Type == models.LedgerRefund {
			assert.Equal(t, models.LedgerFailed, e.Status)
		}
	}

	stored, err := h.svc.Orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, stored.Status)
	assert.Equal(t, int64(0), stored.RefundedCents)

	views, err := h.inv.Availability(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.SeatBooked, views[1].State)
	assert.Empty(t, h.pub.On(h.topics.OrderRefunded))
}

func TestStatement(t *testing.T) {
	h := newHarness(t, testutil.WithPolicy(models.FeeFixed, 100, 0))
	ctx := context.Background()
	order := h.buy(t, "user-1", "pi_1", "A1", "A2")
	h.expectRefund("pi_1", 1900, "re_1").Once()

	_, err := h.svc.CancelSeats(ctx, CancelRequest{OrderID: order.ID, RequesterID: "user-1", SeatIDs: []string{"A2"}})
	require.NoError(t, err)

	st, err := h.svc.Statement(ctx, order.ID, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), st.ChargeCents)
	assert.Equal(t, int64(1900), st.RefundedCents)
	assert.Equal(t, int64(100), st.FeeCents)
	assert.Equal(t, int64(1100), st.RemainingCents)
	require.Len(t, st.Seats, 2)
	assert.Equal(t, models.TicketCancelled, st.Seats[1].Status)
	assert.Len(t, st.Ledger, 3)

	_, err = h.svc.Statement(ctx, order.ID, "user-2", false)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCancelEvent(t *testing.T) {
	h := newHarness(t, testutil.WithPolicy(models.FeeFixed, 500, 0))
	ctx := context.Background()
	first := h.buy(t, "user-1", "pi_1", "A1", "A2")
	second := h.buy(t, "user-2", "pi_2", "A3")
	pending, err := h.bookings.Reserve(ctx, models.ReserveRequest{UserID: "user-3", EventID: "evt-1", SeatIDs: []string{"A4"}})
	require.NoError(t, err)

	h.expectRefund("pi_1", 3000, "re_1").Once()
	h.expectRefund("pi_2", 3000, "re_2").Once()

	_, err = h.svc.CancelEvent(ctx, "evt-1", "seller-2", false)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	out, err := h.svc.CancelEvent(ctx, "evt-1", "seller-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, out.CancelledBookings)
	assert.Equal(t, 2, out.RefundedOrders)
	assert.Equal(t, int64(6000), out.RefundCents)
	assert.Empty(t, out.FailedOrders)

	event, err := h.svc.Events.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.EventCancelled, event.Status)
	assert.Equal(t, 0, event.BookedSeats)

	for _, id := range []string{first.ID, second.ID} {
		o, err := h.svc.Orders.GetOrder(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.OrderRefunded, o.Status)
	}
	b, err := h.bookings.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.Status)

	// A second call finds nothing left to refund.
	again, err := h.svc.CancelEvent(ctx, "evt-1", "", true)
	require.NoError(t, err)
	assert.Equal(t, 0, again.RefundedOrders)
	h.refunder.AssertExpectations(t)
}
