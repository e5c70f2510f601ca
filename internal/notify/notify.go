// Package notify turns marketplace events into buyer notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

// Message is a rendered-later notification; delivery and templating live
// with the Mailer.
type Message struct {
	UserID   string
	To       string
	Template string
	Subject  string
	Data     map[string]interface{}
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// LogMailer writes notifications to the log instead of sending them.
type LogMailer struct {
	Logger *logger.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	to := msg.To
	if to == "" {
		to = "user " + msg.UserID
	}
	m.Logger.Info("NOTIFY", fmt.Sprintf("[%s] to %s: %s", msg.Template, to, msg.Subject))
	return nil
}

type Dispatcher struct {
	Mailer Mailer
	Users  UserDirectory
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewDispatcher(mailer Mailer, users UserDirectory, topics config.TopicConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{Mailer: mailer, Users: users, Topics: topics, Logger: log}
}

// Subscriptions lists the topics the dispatcher consumes.
func (d *Dispatcher) Subscriptions() []string {
	return []string{d.Topics.OrderConfirmed, d.Topics.OrderRefunded, d.Topics.BookingExpired}
}

// Handle is a kafka.Handler. Unknown topics are ignored.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	var out *Message
	var err error
	switch msg.Topic {
	case d.Topics.OrderConfirmed:
		out, err = orderConfirmed(msg.Value)
	case d.Topics.OrderRefunded:
		out, err = orderRefunded(msg.Value)
	case d.Topics.BookingExpired:
		out, err = bookingExpired(msg.Value)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", msg.Topic, err)
	}

	if d.Users != nil {
		user, err := d.Users.GetUser(ctx, out.UserID)
		switch {
		case err == nil:
			out.To = user.Email
			out.Data["name"] = user.Name
		case errors.Is(err, apperr.ErrNotFound):
			d.Logger.Warn("NOTIFY", fmt.Sprintf("No profile for user %s, sending without address", out.UserID))
		default:
			return err
		}
	}

	if err := d.Mailer.Send(ctx, *out); err != nil {
		return fmt.Errorf("send %s to %s: %w", out.Template, out.UserID, err)
	}
	return nil
}

func formatMoney(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}

func orderConfirmed(raw []byte) (*Message, error) {
	var ev models.OrderConfirmedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	seats := make([]string, 0, len(ev.Tickets))
	for _, t := range ev.Tickets {
		seats = append(seats, t.SeatLabel)
	}
	return &Message{
		UserID:   ev.UserID,
		Template: "order_confirmed",
		Subject:  fmt.Sprintf("Your tickets for order %s", ev.OrderID),
		Data: map[string]interface{}{
			"order_id": ev.OrderID,
			"event_id": ev.EventID,
			"seats":    seats,
			"total":    formatMoney(ev.ChargeCents, ev.Currency),
		},
	}, nil
}

func orderRefunded(raw []byte) (*Message, error) {
	var ev models.RefundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &Message{
		UserID:   ev.UserID,
		Template: "order_refunded",
		Subject:  fmt.Sprintf("Refund of %s for order %s", formatMoney(ev.RefundCents, ev.Currency), ev.OrderID),
		Data: map[string]interface{}{
			"order_id":  ev.OrderID,
			"seats":     ev.SeatIDs,
			"refund":    formatMoney(ev.RefundCents, ev.Currency),
			"fee":       formatMoney(ev.FeeCents, ev.Currency),
			"reference": ev.Reference,
		},
	}, nil
}

func bookingExpired(raw []byte) (*Message, error) {
	var ev models.BookingEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &Message{
		UserID:   ev.UserID,
		Template: "booking_expired",
		Subject:  "Your seat hold has expired",
		Data: map[string]interface{}{
			"booking_id": ev.BookingID,
			"event_id":   ev.EventID,
			"seats":      ev.SeatIDs,
		},
	}, nil
}
