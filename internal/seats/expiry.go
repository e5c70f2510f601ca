package seats

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	seatsredis "ms-marketplace/internal/seats/redis"
)

// expiredChannel is where Redis announces expired keys of database db.
func expiredChannel(db int) string {
	return fmt.Sprintf("__keyevent@%d__:expired", db)
}

// Trigger asks the cleanup job for an early pass.
type Trigger interface {
	Trigger()
}

// ExpiryListener turns expired hold keys into seat-available updates.
type ExpiryListener struct {
	Client   *redis.Client
	Notifier *Notifier
	Cleanup  Trigger
	Logger   *logger.Logger
}

// Run blocks until ctx is cancelled.
func (l *ExpiryListener) Run(ctx context.Context) error {
	l.checkConfig(ctx)

	db := l.Client.Options().DB
	channel := expiredChannel(db)
	pubsub := l.Client.PSubscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	l.Logger.Info("REDIS", fmt.Sprintf("Subscribed to expired key notifications (DB %d)", db))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

func (l *ExpiryListener) handle(ctx context.Context, key string) {
	eventID, seatID, ok := seatsredis.ParseSeatKey(key)
	if !ok {
		return
	}
	l.Logger.LogSeats("HOLD_EXPIRED", eventID, fmt.Sprintf("hold on %s lapsed", seatID))
	l.Notifier.SeatsChanged(ctx, eventID, []string{seatID}, models.SeatAvailable, "")
	if l.Cleanup != nil {
		l.Cleanup.Trigger()
	}
}

func (l *ExpiryListener) checkConfig(ctx context.Context) {
	val, err := l.Client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		l.Logger.Warn("REDIS", fmt.Sprintf("Failed to read keyspace config: %v", err))
		return
	}
	if len(val) < 2 {
		return
	}
	flags, _ := val[1].(string)
	if !strings.Contains(flags, "x") || !(strings.Contains(flags, "E") || strings.Contains(flags, "A")) {
		l.Logger.Warn("REDIS", fmt.Sprintf("notify-keyspace-events is %q; hold expiry events will not arrive (need Ex)", flags))
	}
}
