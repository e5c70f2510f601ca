package seats

import (
	"context"
	"fmt"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

// Publisher is the slice of the Kafka producer the seat notifier needs.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

type SeatBroadcaster interface {
	EmitSeatStatus(ev models.SeatStatusEvent)
}

// Notifier fans seat status changes out to Kafka and live SSE clients.
// Either sink may be nil. Delivery failures are logged, never returned.
type Notifier struct {
	Publisher Publisher
	Emitter   SeatBroadcaster
	Topic     string
	Logger    *logger.Logger
}

func (n *Notifier) SeatsChanged(ctx context.Context, eventID string, seatIDs []string, status models.SeatStatus, bookingID string) {
	if n == nil || len(seatIDs) == 0 {
		return
	}
	ev := models.SeatStatusEvent{
		EventID:    eventID,
		SeatIDs:    seatIDs,
		Status:     status,
		BookingID:  bookingID,
		OccurredAt: time.Now().UTC(),
	}
	if n.Emitter != nil {
		n.Emitter.EmitSeatStatus(ev)
	}
	if n.Publisher != nil {
		if err := n.Publisher.PublishJSON(ctx, n.Topic, eventID, ev); err != nil {
			n.Logger.Warn("SEATS", fmt.Sprintf("Seat status %s for %s not published: %v", status, eventID, err))
		}
	}
}
