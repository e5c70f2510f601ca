package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/models"
	"ms-marketplace/internal/testutil"
)

func seedOrder(t *testing.T, db bun.IDB, id, eventID string, created time.Time, tickets []models.Ticket, ledger ...models.LedgerEntry) {
	ctx := context.Background()
	var charge int64
	for i := range tickets {
		tickets[i].OrderID = id
		tickets[i].EventID = eventID
		tickets[i].IssuedAt = created
		charge += tickets[i].AllocatedCents
	}
	order := &models.Order{
		ID: id, BookingID: "bk-" + id, EventID: eventID, UserID: "user-1", PaymentIntentID: "pi-" + id,
		ChargeCents: charge, Currency: "usd", Status: models.OrderPaid, CreatedAt: created, UpdatedAt: created,
	}
	_, err := db.NewInsert().Model(order).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&tickets).Exec(ctx)
	require.NoError(t, err)

	ledger = append(ledger, models.LedgerEntry{ID: "charge-" + id, BatchID: "charge-" + id, Type: models.LedgerCharge, Status: models.LedgerSucceeded, AmountCents: charge})
	for i := range ledger {
		ledger[i].OrderID = id
		ledger[i].Currency = "usd"
		ledger[i].CreatedAt = created
		ledger[i].UpdatedAt = created
	}
	_, err = db.NewInsert().Model(&ledger).Exec(ctx)
	require.NoError(t, err)
}

func seedSales(t *testing.T, db bun.IDB) {
	testutil.SeedEvent(t, db, "evt-1", []int64{1000, 2000, 3000})
	testutil.SeedEvent(t, db, "evt-2", []int64{5000})

	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	seedOrder(t, db, "ord-1", "evt-1", day1, []models.Ticket{
		{ID: "t1", SeatID: "A1", Tier: "standard", AllocatedCents: 1000, RefundedCents: 900, Status: models.TicketCancelled},
		{ID: "t2", SeatID: "A2", Tier: "vip", AllocatedCents: 2000, Status: models.TicketScanned},
	},
		models.LedgerEntry{ID: "r1", BatchID: "b1", Type: models.LedgerRefund, Status: models.LedgerSucceeded, AmountCents: 900},
		models.LedgerEntry{ID: "f1", BatchID: "b1", Type: models.LedgerFee, Status: models.LedgerSucceeded, AmountCents: 100},
		models.LedgerEntry{ID: "r2", BatchID: "b2", Type: models.LedgerRefund, Status: models.LedgerFailed, AmountCents: 2000},
	)
	seedOrder(t, db, "ord-2", "evt-1", day2, []models.Ticket{
		{ID: "t3", SeatID: "A3", Tier: "vip", AllocatedCents: 2700, Status: models.TicketActive},
	})
	seedOrder(t, db, "ord-3", "evt-2", day2, []models.Ticket{
		{ID: "t4", SeatID: "A1", Tier: "standard", AllocatedCents: 5000, Status: models.TicketActive},
	})

	bookings := []models.Booking{
		{ID: "bk-ord-2", EventID: "evt-1", UserID: "user-1", SeatIDs: []string{"A3"}, SubtotalCents: 3000, DiscountCents: 300, TotalCents: 2700, Currency: "usd", CouponCode: "SPRING10", Status: models.BookingConfirmed, ExpiresAt: day2, CreatedAt: day2, UpdatedAt: day2},
		{ID: "bk-ord-1", EventID: "evt-1", UserID: "user-1", SeatIDs: []string{"A1", "A2"}, SubtotalCents: 3000, TotalCents: 3000, Currency: "usd", Status: models.BookingConfirmed, ExpiresAt: day1, CreatedAt: day1, UpdatedAt: day1},
	}
	_, err := db.NewInsert().Model(&bookings).Exec(context.Background())
	require.NoError(t, err)
}

func TestEventSales(t *testing.T) {
	db := testutil.NewDB(t)
	seedSales(t, db)

	sales, err := New(db).EventSales(context.Background(), "evt-1")
	require.NoError(t, err)

	assert.Equal(t, 2, sales.Orders)
	assert.Equal(t, 3, sales.TicketsSold)
	assert.Equal(t, 1, sales.TicketsActive)
	assert.Equal(t, 1, sales.TicketsScanned)
	assert.Equal(t, 1, sales.TicketsCancelled)
	assert.Equal(t, int64(5700), sales.GrossCents)
	assert.Equal(t, int64(900), sales.RefundedCents)
	assert.Equal(t, int64(100), sales.FeeCents)
	assert.Equal(t, int64(4800), sales.NetCents)

	assert.Equal(t, []DailySales{
		{Date: "2026-03-01", RevenueCents: 3000, TicketsSold: 2},
		{Date: "2026-03-02", RevenueCents: 2700, TicketsSold: 1},
	}, sales.Daily)
	assert.Equal(t, []TierSales{
		{Tier: "standard", TicketsSold: 0, RevenueCents: 100},
		{Tier: "vip", TicketsSold: 2, RevenueCents: 4700},
	}, sales.ByTier)
	assert.Equal(t, []CouponUsage{{Code: "SPRING10", Uses: 1, DiscountCents: 300}}, sales.Coupons)
}

func TestEventSalesEmpty(t *testing.T) {
	sales, err := New(testutil.NewDB(t)).EventSales(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, sales.Orders)
	assert.Empty(t, sales.Daily)
}

func TestSellerBalance(t *testing.T) {
	db := testutil.NewDB(t)
	seedSales(t, db)
	ctx := context.Background()
	now := time.Now().UTC()

	withdrawals := []models.Withdrawal{
		{ID: "w1", SellerID: "seller-1", AmountCents: 1000, Currency: "usd", Status: models.WithdrawalPaid, CreatedAt: now},
		{ID: "w2", SellerID: "seller-1", AmountCents: 500, Currency: "usd", Status: models.WithdrawalRequested, CreatedAt: now},
		{ID: "w3", SellerID: "seller-1", AmountCents: 9999, Currency: "usd", Status: models.WithdrawalRejected, CreatedAt: now},
	}
	_, err := db.NewInsert().Model(&withdrawals).Exec(ctx)
	require.NoError(t, err)

	bal, err := New(db).SellerBalance(ctx, "seller-1")
	require.NoError(t, err)

	// Both seeded events belong to seller-1: 5700 + 5000 charged, 900 refunded.
	assert.Equal(t, int64(10700), bal.GrossCents)
	assert.Equal(t, int64(900), bal.RefundedCents)
	assert.Equal(t, int64(9800), bal.NetSalesCents)
	assert.Equal(t, int64(1000), bal.PaidOutCents)
	assert.Equal(t, int64(500), bal.PendingCents)
	assert.Equal(t, int64(8300), bal.AvailableCents)

	none, err := New(db).SellerBalance(ctx, "seller-9")
	require.NoError(t, err)
	assert.Equal(t, int64(0), none.AvailableCents)
}
