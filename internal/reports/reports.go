// Package reports aggregates sales and balances from the order ledger.
package reports

import (
	"context"
	"sort"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/models"
	ordersdb "ms-marketplace/internal/orders/db"
)

type Service struct {
	DB bun.IDB
}

func New(idb bun.IDB) *Service {
	return &Service{DB: idb}
}

type DailySales struct {
	Date         string `json:"date"`
	RevenueCents int64  `json:"revenue_cents"`
	TicketsSold  int    `json:"tickets_sold"`
}

type TierSales struct {
	Tier         string `json:"tier"`
	TicketsSold  int    `json:"tickets_sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type CouponUsage struct {
	Code          string `json:"code"`
	Uses          int    `json:"uses"`
	DiscountCents int64  `json:"discount_cents"`
}

// EventSales is an event's money and ticket summary. Revenue figures come
// from succeeded ledger entries; net is gross minus refunds.
type EventSales struct {
	EventID          string        `json:"event_id"`
	Orders           int           `json:"orders"`
	TicketsSold      int           `json:"tickets_sold"`
	TicketsActive    int           `json:"tickets_active"`
	TicketsScanned   int           `json:"tickets_scanned"`
	TicketsCancelled int           `json:"tickets_cancelled"`
	GrossCents       int64         `json:"gross_cents"`
	RefundedCents    int64         `json:"refunded_cents"`
	FeeCents         int64         `json:"fee_cents"`
	NetCents         int64         `json:"net_cents"`
	Daily            []DailySales  `json:"daily"`
	ByTier           []TierSales   `json:"by_tier"`
	Coupons          []CouponUsage `json:"coupons"`
}

func (s *Service) EventSales(ctx context.Context, eventID string) (*EventSales, error) {
	var orders []models.Order
	if err := s.DB.NewSelect().Model(&orders).Where("event_id = ?", eventID).Order("created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	var tickets []models.Ticket
	if err := s.DB.NewSelect().Model(&tickets).Where("event_id = ?", eventID).Scan(ctx); err != nil {
		return nil, err
	}
	var bookings []models.Booking
	err := s.DB.NewSelect().
		Model(&bookings).
		Where("event_id = ?", eventID).
		Where("status = ?", models.BookingConfirmed).
		Where("coupon_code IS NOT NULL").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	orderIDs := make([]string, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
	}
	totals, err := ordersdb.New(s.DB).LedgerTotals(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	out := &EventSales{
		EventID:       eventID,
		Orders:        len(orders),
		TicketsSold:   len(tickets),
		GrossCents:    totals[models.LedgerCharge],
		RefundedCents: totals[models.LedgerRefund],
		FeeCents:      totals[models.LedgerFee],
		Daily:         []DailySales{},
		ByTier:        []TierSales{},
		Coupons:       []CouponUsage{},
	}
	out.NetCents = out.GrossCents - out.RefundedCents

	perOrder := map[string]int{}
	tiers := map[string]*TierSales{}
	for _, t := range tickets {
		switch t.Status {
		case models.TicketActive:
			out.TicketsActive++
		case models.TicketScanned:
			out.TicketsScanned++
		default:
			out.TicketsCancelled++
		}
		perOrder[t.OrderID]++

		tier, ok := tiers[t.Tier]
		if !ok {
			tier = &TierSales{Tier: t.Tier}
			tiers[t.Tier] = tier
		}
		if t.Status == models.TicketActive || t.Status == models.TicketScanned {
			tier.TicketsSold++
		}
		tier.RevenueCents += t.AllocatedCents - t.RefundedCents
	}
	for _, tier := range tiers {
		out.ByTier = append(out.ByTier, *tier)
	}
	sort.Slice(out.ByTier, func(i, j int) bool { return out.ByTier[i].Tier < out.ByTier[j].Tier })

	var day *DailySales
	for _, o := range orders {
		date := o.CreatedAt.UTC().Format("2006-01-02")
		if day == nil || day.Date != date {
			out.Daily = append(out.Daily, DailySales{Date: date})
			day = &out.Daily[len(out.Daily)-1]
		}
		day.RevenueCents += o.ChargeCents
		day.TicketsSold += perOrder[o.ID]
	}

	coupons := map[string]*CouponUsage{}
	for _, b := range bookings {
		if b.CouponCode == "" {
			continue
		}
		c, ok := coupons[b.CouponCode]
		if !ok {
			c = &CouponUsage{Code: b.CouponCode}
			coupons[b.CouponCode] = c
		}
		c.Uses++
		c.DiscountCents += b.DiscountCents
	}
	for _, c := range coupons {
		out.Coupons = append(out.Coupons, *c)
	}
	sort.Slice(out.Coupons, func(i, j int) bool { return out.Coupons[i].Code < out.Coupons[j].Code })

	return out, nil
}

// SellerBalance is what a seller has earned and may still withdraw.
type SellerBalance struct {
	SellerID       string `json:"seller_id"`
	GrossCents     int64  `json:"gross_cents"`
	RefundedCents  int64  `json:"refunded_cents"`
	NetSalesCents  int64  `json:"net_sales_cents"`
	PaidOutCents   int64  `json:"paid_out_cents"`
	PendingCents   int64  `json:"pending_cents"`
	AvailableCents int64  `json:"available_cents"`
}

func (s *Service) SellerBalance(ctx context.Context, sellerID string) (*SellerBalance, error) {
	var orderIDs []string
	err := s.DB.NewSelect().
		Model((*models.Order)(nil)).
		Column("id").
		Where("event_id IN (?)", s.DB.NewSelect().Model((*models.Event)(nil)).Column("id").Where("seller_id = ?", sellerID)).
		Scan(ctx, &orderIDs)
	if err != nil {
		return nil, err
	}
	totals, err := ordersdb.New(s.DB).LedgerTotals(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	var withdrawals []models.Withdrawal
	err = s.DB.NewSelect().
		Model(&withdrawals).
		Where("seller_id = ?", sellerID).
		Where("status != ?", models.WithdrawalRejected).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := &SellerBalance{
		SellerID:      sellerID,
		GrossCents:    totals[models.LedgerCharge],
		RefundedCents: totals[models.LedgerRefund],
	}
	out.NetSalesCents = out.GrossCents - out.RefundedCents
	for _, w := range withdrawals {
		if w.Status == models.WithdrawalPaid {
			out.PaidOutCents += w.AmountCents
		} else {
			out.PendingCents += w.AmountCents
		}
	}
	out.AvailableCents = out.NetSalesCents - out.PaidOutCents - out.PendingCents
	return out, nil
}
