package tickets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/testutil"
	"ms-marketplace/internal/tickets/qr"
)

type fixture struct {
	svc    *Service
	db     *bun.DB
	codec  *qr.Codec
	pub    *testutil.Publisher
	topics config.TopicConfig
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	testutil.SeedEvent(t, db, "evt-1", []int64{1000, 2000})
	testutil.SeedEvent(t, db, "evt-2", []int64{500})

	codec, err := qr.NewCodec("gate-secret")
	require.NoError(t, err)
	cfg := config.Load()
	pub := &testutil.Publisher{}
	svc := NewService(db, codec, pub, cfg.Kafka.Topics, logger.NewNop())
	return &fixture{svc: svc, db: db, codec: codec, pub: pub, topics: cfg.Kafka.Topics}
}

// issue stores a paid order for user with one active ticket per seat and
// returns the tickets with their codes.
func (f *fixture) issue(t *testing.T, orderID, user, eventID string, seatIDs ...string) []models.Ticket {
	ctx := context.Background()
	now := time.Now().UTC()
	order := &models.Order{
		ID: orderID, BookingID: "bk-" + orderID, EventID: eventID, UserID: user,
		PaymentIntentID: "pi-" + orderID, ChargeCents: int64(1000 * len(seatIDs)),
		Currency: "usd", Status: models.OrderPaid, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.svc.Orders.InsertOrder(ctx, order))

	var tickets []models.Ticket
	for _, seat := range seatIDs {
		id := orderID + "-" + seat
		token, err := f.codec.Seal(qr.Claims{TicketID: id, OrderID: orderID, EventID: eventID, SeatID: seat, IssuedAt: now.Unix()})
		require.NoError(t, err)
		tickets = append(tickets, models.Ticket{
			ID: id, OrderID: orderID, EventID: eventID, SeatID: seat, SeatLabel: seat,
			BasePriceCents: 1000, AllocatedCents: 1000, Status: models.TicketActive,
			QRToken: token, IssuedAt: now,
		})
	}
	require.NoError(t, f.svc.Orders.InsertTickets(ctx, tickets))
	return tickets
}

func (f *fixture) scan(token, eventID string) (*ScanResult, error) {
	return f.svc.Scan(context.Background(), ScanRequest{Token: token, EventID: eventID, ScannerID: "gate-1"})
}

func TestScanAdmitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.issue(t, "ord-1", "user-1", "evt-1", "A1")[0]

	res, err := f.scan(tk.QRToken, "evt-1")
	require.NoError(t, err)
	assert.True(t, res.Admitted())
	assert.Equal(t, models.TicketScanned, res.Ticket.Status)
	assert.Len(t, f.pub.On(f.topics.TicketScanned), 1)

	again, err := f.scan(tk.QRToken, "evt-1")
	assert.ErrorIs(t, err, apperr.ErrAlreadyScanned)
	require.NotNil(t, again)
	assert.Equal(t, models.ScanAlreadyScanned, again.Outcome)

	scans, err := f.svc.ListScans(ctx, "evt-1", 0)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	outcomes := []models.ScanOutcome{scans[0].Outcome, scans[1].Outcome}
	assert.ElementsMatch(t, []models.ScanOutcome{models.ScanAdmitted, models.ScanAlreadyScanned}, outcomes)
	assert.Len(t, f.pub.On(f.topics.TicketScanned), 1)
}

func TestScanRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tickets := f.issue(t, "ord-1", "user-1", "evt-1", "A1", "A2")

	require.NoError(t, f.svc.Orders.TransitionTickets(ctx, []string{tickets[1].ID}, models.TicketActive, models.TicketCancelled))

	res, err := f.scan("garbage", "evt-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.ScanInvalid, res.Outcome)

	res, err = f.scan(tickets[0].QRToken, "evt-2")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.ScanWrongEvent, res.Outcome)

	res, err = f.scan(tickets[1].QRToken, "evt-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, models.ScanCancelled, res.Outcome)

	forged, err := f.codec.Seal(qr.Claims{TicketID: tickets[0].ID, OrderID: "ord-1", EventID: "evt-1", SeatID: "A2"})
	require.NoError(t, err)
	res, err = f.scan(forged, "evt-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.ScanInvalid, res.Outcome)

	// None of the rejections consumed the valid ticket.
	res, err = f.scan(tickets[0].QRToken, "evt-1")
	require.NoError(t, err)
	assert.True(t, res.Admitted())

	_, err = f.svc.Scan(ctx, ScanRequest{Token: tickets[0].QRToken, EventID: "evt-1"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	stats, err := f.svc.EntryStats(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Admitted)
	assert.Equal(t, 0, stats.Expected)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 2, stats.Rejections[models.ScanInvalid])
	assert.Equal(t, 1, stats.Rejections[models.ScanCancelled])

	// The wrong-event attempt is logged against the gate's event.
	other, err := f.svc.EntryStats(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, 1, other.Rejections[models.ScanWrongEvent])
}

func TestConcurrentScansAdmitOne(t *testing.T) {
	f := newFixture(t)
	tk := f.issue(t, "ord-1", "user-1", "evt-1", "A1")[0]

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, rejected := 0, 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.scan(tk.QRToken, "evt-1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil && res.Admitted() {
				admitted++
			} else if res != nil && res.Outcome == models.ScanAlreadyScanned {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, 5, rejected)
}

func TestTicketsByOrderAndQR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tickets := f.issue(t, "ord-1", "user-1", "evt-1", "A1", "A2")

	got, err := f.svc.TicketsByOrder(ctx, "ord-1", "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", got.Order.ID)
	assert.Len(t, got.Tickets, 2)

	_, err = f.svc.TicketsByOrder(ctx, "ord-1", "user-2", false)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.TicketsByOrder(ctx, "ord-1", "admin", true)
	assert.NoError(t, err)

	mine, err := f.svc.OrdersByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Tickets, 2)

	png, err := f.svc.TicketQR(ctx, tickets[0].ID, "user-1", 128)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	_, err = f.svc.TicketQR(ctx, tickets[0].ID, "user-2", 128)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.scan(tickets[0].QRToken, "evt-1")
	require.NoError(t, err)
	_, err = f.svc.TicketQR(ctx, tickets[0].ID, "user-1", 128)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}
