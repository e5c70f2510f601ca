package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ScanOutcome string

const (
	ScanAdmitted       ScanOutcome = "admitted"
	ScanAlreadyScanned ScanOutcome = "rejected_already_scanned"
	ScanCancelled      ScanOutcome = "rejected_cancelled"
	ScanWrongEvent     ScanOutcome = "rejected_wrong_event"
	ScanInvalid        ScanOutcome = "rejected_invalid"
)

type ScanLog struct {
	bun.BaseModel `bun:"table:scan_logs"`

	ID        string      `bun:"id,pk" json:"id"`
	TicketID  string      `bun:"ticket_id,nullzero" json:"ticket_id,omitempty"`
	OrderID   string      `bun:"order_id,nullzero" json:"order_id,omitempty"`
	EventID   string      `bun:"event_id,notnull" json:"event_id"`
	ScannerID string      `bun:"scanner_id,notnull" json:"scanner_id"`
	Outcome   ScanOutcome `bun:"outcome,notnull" json:"outcome"`
	Detail    string      `bun:"detail,nullzero" json:"detail,omitempty"`
	ScannedAt time.Time   `bun:"scanned_at,notnull" json:"scanned_at"`
}
