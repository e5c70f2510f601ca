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

// DB stores orders, tickets and the money ledger.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return err
}

// ---------------- ORDERS ----------------

func (d *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().Model(&order).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order "+id)
	}
	return &order, nil
}

func (d *DB) GetOrderByIntent(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().Model(&order).Where("payment_intent_id = ?", intentID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order for intent "+intentID)
	}
	return &order, nil
}

func (d *DB) GetOrderByBooking(ctx context.Context, bookingID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().Model(&order).Where("booking_id = ?", bookingID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order for booking "+bookingID)
	}
	return &order, nil
}

func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return orders, err
}

func (d *DB) ListOrdersByEvent(ctx context.Context, eventID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	return orders, err
}

func (d *DB) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

// ApplyRefund adds amount to the order's refunded total and sets status.
// The update is refused when it would refund more than was charged.
func (d *DB) ApplyRefund(ctx context.Context, orderID string, amount int64, status models.OrderStatus) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("refunded_cents = refunded_cents + ?", amount).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Where("refunded_cents + ? <= charge_cents", amount).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("order %s refund of %d: %w", orderID, amount, apperr.ErrRefundExceedsCharge)
	}
	return nil
}

// ---------------- TICKETS ----------------

func (d *DB) InsertTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&tickets).Exec(ctx)
	return err
}

func (d *DB) GetTickets(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("seat_id ASC").
		Scan(ctx)
	return tickets, err
}

func (d *DB) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().Model(&ticket).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "ticket "+id)
	}
	return &ticket, nil
}

// TransitionTickets moves every ticket from one status to another, or
// none of them. Callers run it inside a transaction.
func (d *DB) TransitionTickets(ctx context.Context, ids []string, from, to models.TicketStatus) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Where("id IN (?)", bun.In(ids)).
		Where("status = ?", from)
	switch to {
	case models.TicketCancelled:
		q = q.Set("cancelled_at = ?", now)
	case models.TicketScanned:
		q = q.Set("scanned_at = ?", now)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		return fmt.Errorf("tickets %v not all %s: %w", ids, from, apperr.ErrInvalidState)
	}
	return nil
}

// AddTicketRefund records a refund against one ticket, bounded by its
// allocation.
func (d *DB) AddTicketRefund(ctx context.Context, ticketID string, amount int64) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("refunded_cents = refunded_cents + ?", amount).
		Where("id = ?", ticketID).
		Where("refunded_cents + ? <= allocated_cents", amount).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("ticket %s refund of %d: %w", ticketID, amount, apperr.ErrRefundExceedsCharge)
	}
	return nil
}

// ---------------- LEDGER ----------------

func (d *DB) InsertLedger(ctx context.Context, entries ...models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&entries).Exec(ctx)
	return err
}

// UpdateLedgerStatus settles every pending entry of a batch.
func (d *DB) UpdateLedgerStatus(ctx context.Context, batchID string, status models.LedgerStatus, reference string) error {
	q := d.Bun.NewUpdate().
		Model((*models.LedgerEntry)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("batch_id = ?", batchID).
		Where("status = ?", models.LedgerPending)
	if reference != "" {
		q = q.Set("reference = ?", reference)
	}
	_, err := q.Exec(ctx)
	return err
}

func (d *DB) Ledger(ctx context.Context, orderID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Scan(ctx)
	return entries, err
}

// LedgerBatch returns the entries recorded under batchID.
func (d *DB) LedgerBatch(ctx context.Context, batchID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Scan(ctx)
	return entries, err
}

// LedgerTotals sums succeeded entries of the given orders by type.
func (d *DB) LedgerTotals(ctx context.Context, orderIDs []string) (map[models.LedgerType]int64, error) {
	out := map[models.LedgerType]int64{}
	if len(orderIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		Type  models.LedgerType `bun:"type"`
		Total int64             `bun:"total"`
	}
	err := d.Bun.NewSelect().
		Model((*models.LedgerEntry)(nil)).
		Column("type").
		ColumnExpr("SUM(amount_cents) AS total").
		Where("order_id IN (?)", bun.In(orderIDs)).
		Where("status = ?", models.LedgerSucceeded).
		Group("type").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Type] = r.Total
	}
	return out, nil
}
