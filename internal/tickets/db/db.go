package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/models"
)

// DB stores the gate's scan log and the per-event entry counters.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

func (d *DB) InsertScan(ctx context.Context, scan *models.ScanLog) error {
	_, err := d.Bun.NewInsert().Model(scan).Exec(ctx)
	return err
}

// ListScans returns the newest scans of an event first. limit <= 0 means all.
func (d *DB) ListScans(ctx context.Context, eventID string, limit int) ([]models.ScanLog, error) {
	var scans []models.ScanLog
	q := d.Bun.NewSelect().
		Model(&scans).
		Where("event_id = ?", eventID).
		Order("scanned_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(ctx)
	return scans, err
}

func (d *DB) ListScansForTicket(ctx context.Context, ticketID string) ([]models.ScanLog, error) {
	var scans []models.ScanLog
	err := d.Bun.NewSelect().
		Model(&scans).
		Where("ticket_id = ?", ticketID).
		Order("scanned_at ASC").
		Scan(ctx)
	return scans, err
}
