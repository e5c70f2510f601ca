package db

import (
	"context"

	"ms-marketplace/internal/models"
)

// CountOutcomes tallies scan attempts of an event by outcome.
func (d *DB) CountOutcomes(ctx context.Context, eventID string) (map[models.ScanOutcome]int, error) {
	var rows []struct {
		Outcome models.ScanOutcome `bun:"outcome"`
		N       int                `bun:"n"`
	}
	err := d.Bun.NewSelect().
		Model((*models.ScanLog)(nil)).
		Column("outcome").
		ColumnExpr("COUNT(*) AS n").
		Where("event_id = ?", eventID).
		Group("outcome").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make(map[models.ScanOutcome]int, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.N
	}
	return out, nil
}

// CountTickets tallies an event's tickets by status.
func (d *DB) CountTickets(ctx context.Context, eventID string) (map[models.TicketStatus]int, error) {
	var rows []struct {
		Status models.TicketStatus `bun:"status"`
		N      int                 `bun:"n"`
	}
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS n").
		Where("event_id = ?", eventID).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make(map[models.TicketStatus]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
