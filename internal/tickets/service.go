// Package tickets admits ticket holders at the gate and serves their codes.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	ordersdb "ms-marketplace/internal/orders/db"
	ticketsdb "ms-marketplace/internal/tickets/db"
	"ms-marketplace/internal/tickets/qr"
)

type TokenCodec interface {
	Open(token string) (*qr.Claims, error)
	PNG(token string, size int) ([]byte, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

type ScanRequest struct {
	Token     string `json:"token" validate:"required"`
	EventID   string `json:"event_id" validate:"required"`
	ScannerID string `json:"-" validate:"required"`
}

type ScanResult struct {
	Outcome models.ScanOutcome `json:"outcome"`
	Ticket  *models.Ticket     `json:"ticket,omitempty"`
	Scan    *models.ScanLog    `json:"scan"`
}

func (r *ScanResult) Admitted() bool {
	return r != nil && r.Outcome == models.ScanAdmitted
}

type Service struct {
	DB        *bun.DB
	Orders    *ordersdb.DB
	Scans     *ticketsdb.DB
	Codec     TokenCodec
	Publisher Publisher
	Topics    config.TopicConfig
	Logger    *logger.Logger

	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

func NewService(db *bun.DB, codec TokenCodec, pub Publisher, topics config.TopicConfig, log *logger.Logger) *Service {
	return &Service{
		DB:        db,
		Orders:    ordersdb.New(db),
		Scans:     ticketsdb.New(db),
		Codec:     codec,
		Publisher: pub,
		Topics:    topics,
		Logger:    log,
		validate:  validator.New(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Scan admits the holder of a ticket code once. Every attempt is logged; a
// rejected attempt returns the logged result together with an error naming
// the reason.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}

	scan := &models.ScanLog{
		ID:        s.newID(),
		EventID:   req.EventID,
		ScannerID: req.ScannerID,
		ScannedAt: s.now().UTC(),
	}

	ticket, outcome, reason := s.classify(ctx, req)
	if ticket != nil {
		scan.TicketID = ticket.ID
		scan.OrderID = ticket.OrderID
	}

	if outcome == models.ScanAdmitted {
		err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := s.Orders.WithTx(tx).TransitionTickets(ctx, []string{ticket.ID}, models.TicketActive, models.TicketScanned); err != nil {
				return err
			}
			scan.Outcome = models.ScanAdmitted
			return s.Scans.WithTx(tx).InsertScan(ctx, scan)
		})
		switch {
		case err == nil:
			ticket.Status = models.TicketScanned
			ticket.ScannedAt = scan.ScannedAt
			s.Logger.Info("SCAN", fmt.Sprintf("Admitted ticket %s seat %s at event %s by %s", ticket.ID, ticket.SeatID, req.EventID, req.ScannerID))
			s.publish(ctx, ticket, scan)
			return &ScanResult{Outcome: models.ScanAdmitted, Ticket: ticket, Scan: scan}, nil
		case errors.Is(err, apperr.ErrInvalidState):
			// Another gate got there first, or the ticket was cancelled meanwhile.
			fresh, getErr := s.Orders.GetTicket(ctx, ticket.ID)
			if getErr != nil {
				return nil, getErr
			}
			ticket = fresh
			outcome, reason = statusOutcome(fresh)
		default:
			return nil, err
		}
	}

	scan.Outcome = outcome
	scan.Detail = reason.Error()
	if err := s.Scans.InsertScan(ctx, scan); err != nil {
		return nil, err
	}
	s.Logger.LogSecurity("SCAN_REJECTED", fmt.Sprintf("event %s scanner %s ticket %s: %s", req.EventID, req.ScannerID, scan.TicketID, outcome))
	return &ScanResult{Outcome: outcome, Ticket: ticket, Scan: scan}, reason
}

// classify decides the outcome of a scan before any state changes. A nil
// reason means the ticket may be admitted.
func (s *Service) classify(ctx context.Context, req ScanRequest) (*models.Ticket, models.ScanOutcome, error) {
	claims, err := s.Codec.Open(req.Token)
	if err != nil {
		return nil, models.ScanInvalid, fmt.Errorf("unreadable ticket code: %w", apperr.ErrValidation)
	}

	ticket, err := s.Orders.GetTicket(ctx, claims.TicketID)
	if err != nil {
		return nil, models.ScanInvalid, fmt.Errorf("unknown ticket %s: %w", claims.TicketID, apperr.ErrValidation)
	}
	if ticket.OrderID != claims.OrderID || ticket.EventID != claims.EventID || ticket.SeatID != claims.SeatID {
		return ticket, models.ScanInvalid, fmt.Errorf("ticket code does not match ticket %s: %w", ticket.ID, apperr.ErrValidation)
	}
	if ticket.EventID != req.EventID {
		return ticket, models.ScanWrongEvent, fmt.Errorf("ticket is for event %s: %w", ticket.EventID, apperr.ErrValidation)
	}

	outcome, reason := statusOutcome(ticket)
	return ticket, outcome, reason
}

func statusOutcome(t *models.Ticket) (models.ScanOutcome, error) {
	switch t.Status {
	case models.TicketActive:
		return models.ScanAdmitted, nil
	case models.TicketScanned:
		return models.ScanAlreadyScanned, fmt.Errorf("ticket %s scanned at %s: %w", t.ID, t.ScannedAt.Format(time.RFC3339), apperr.ErrAlreadyScanned)
	default:
		return models.ScanCancelled, fmt.Errorf("ticket %s is %s: %w", t.ID, t.Status, apperr.ErrInvalidState)
	}
}

func (s *Service) publish(ctx context.Context, t *models.Ticket, scan *models.ScanLog) {
	if s.Publisher == nil {
		return
	}
	ev := models.ScanEvent{
		TicketID:  t.ID,
		OrderID:   t.OrderID,
		EventID:   t.EventID,
		SeatID:    t.SeatID,
		ScannerID: scan.ScannerID,
		ScannedAt: scan.ScannedAt,
	}
	if err := s.Publisher.PublishJSON(ctx, s.Topics.TicketScanned, t.EventID, ev); err != nil {
		s.Logger.Warn("SCAN", fmt.Sprintf("Scan event for %s not published: %v", t.ID, err))
	}
}

func (s *Service) ListScans(ctx context.Context, eventID string, limit int) ([]models.ScanLog, error) {
	return s.Scans.ListScans(ctx, eventID, limit)
}

// TicketsByOrder returns an order with its tickets. Only the buyer or a
// privileged caller may read it.
func (s *Service) TicketsByOrder(ctx context.Context, orderID, requesterID string, privileged bool) (*models.OrderWithTickets, error) {
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !privileged && order.UserID != requesterID {
		return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrForbidden)
	}
	tickets, err := s.Orders.GetTickets(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithTickets{Order: *order, Tickets: tickets}, nil
}

// OrdersByUser lists a buyer's orders newest first, each with its tickets.
func (s *Service) OrdersByUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error) {
	orders, err := s.Orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.OrderWithTickets, 0, len(orders))
	for _, o := range orders {
		tickets, err := s.Orders.GetTickets(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.OrderWithTickets{Order: o, Tickets: tickets})
	}
	return out, nil
}

// TicketQR renders the entry code of an active ticket as a PNG.
func (s *Service) TicketQR(ctx context.Context, ticketID, requesterID string, size int) ([]byte, error) {
	ticket, err := s.Orders.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	order, err := s.Orders.GetOrder(ctx, ticket.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requesterID {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, apperr.ErrForbidden)
	}
	if ticket.Status != models.TicketActive {
		return nil, fmt.Errorf("ticket %s is %s: %w", ticketID, ticket.Status, apperr.ErrInvalidState)
	}
	return s.Codec.PNG(ticket.QRToken, size)
}

type EntryStats struct {
	EventID    string                     `json:"event_id"`
	Admitted   int                        `json:"admitted"`
	Expected   int                        `json:"expected"`
	Cancelled  int                        `json:"cancelled"`
	Rejections map[models.ScanOutcome]int `json:"rejections"`
}

// EntryStats summarises admissions for an event's gate staff.
func (s *Service) EntryStats(ctx context.Context, eventID string) (*EntryStats, error) {
	tickets, err := s.Scans.CountTickets(ctx, eventID)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.Scans.CountOutcomes(ctx, eventID)
	if err != nil {
		return nil, err
	}
	stats := &EntryStats{
		EventID:    eventID,
		Admitted:   tickets[models.TicketScanned],
		Expected:   tickets[models.TicketActive],
		Cancelled:  tickets[models.TicketCancelled] + tickets[models.TicketRefundPending],
		Rejections: map[models.ScanOutcome]int{},
	}
	for outcome, n := range outcomes {
		if outcome != models.ScanAdmitted {
			stats.Rejections[outcome] = n
		}
	}
	return stats, nil
}
