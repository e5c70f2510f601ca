package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.Booking.HoldTTL)
	assert.Equal(t, time.Minute, cfg.Booking.CleanupInterval)
	assert.Equal(t, 10, cfg.Booking.MaxSeats)
	assert.Equal(t, "usd", cfg.Booking.Currency)
	assert.Equal(t, int64(50), cfg.Booking.MinChargeCents)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Len(t, cfg.Kafka.Topics.All(), 7)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SEAT_HOLD_TTL", "90s")
	t.Setenv("CLEANUP_INTERVAL", "30")
	t.Setenv("MAX_SEATS_PER_BOOKING", "4")
	t.Setenv("CURRENCY", "LKR")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("AUTO_SCHEMA", "true")

	cfg := Load()

	assert.Equal(t, 90*time.Second, cfg.Booking.HoldTTL)
	assert.Equal(t, 30*time.Second, cfg.Booking.CleanupInterval)
	assert.Equal(t, 4, cfg.Booking.MaxSeats)
	assert.Equal(t, "lkr", cfg.Booking.Currency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Database.AutoSchema)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SEAT_HOLD_TTL", "soon")
	t.Setenv("MAX_SEATS_PER_BOOKING", "many")

	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.Booking.HoldTTL)
	assert.Equal(t, 10, cfg.Booking.MaxSeats)
}
