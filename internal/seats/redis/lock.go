package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

const keyPrefix = "seat_lock:"

// Lock values are "held:<bookingID>" (with a TTL) or "booked:<bookingID>"
// (persistent). A missing key means the seat is free as far as Redis knows.
const (
	heldPrefix   = "held:"
	bookedPrefix = "booked:"
)

// holdScript takes every seat or none. Seats already held by the same
// booking are refreshed. Returns 1-based indexes of conflicting keys.
var holdScript = redis.NewScript(`
local held = 'held:' .. ARGV[1]
local conflicts = {}
for i, key in ipairs(KEYS) do
	local v = redis.call('GET', key)
	if v and v ~= held then
		table.insert(conflicts, i)
	end
end
if #conflicts > 0 then
	return conflicts
end
for _, key in ipairs(KEYS) do
	redis.call('SET', key, held, 'PX', ARGV[2])
end
return {}
`)

// confirmScript turns held:<id> into booked:<id> and drops the TTL.
var confirmScript = redis.NewScript(`
local held = 'held:' .. ARGV[1]
local booked = 'booked:' .. ARGV[1]
local missing = {}
for i, key in ipairs(KEYS) do
	local v = redis.call('GET', key)
	if v ~= held and v ~= booked then
		table.insert(missing, i)
	end
end
if #missing > 0 then
	return missing
end
for _, key in ipairs(KEYS) do
	redis.call('SET', key, booked)
end
return {}
`)

// releaseScript deletes keys owned by the booking. ARGV[2] == "held" limits
// it to unconfirmed holds.
var releaseScript = redis.NewScript(`
local held = 'held:' .. ARGV[1]
local booked = 'booked:' .. ARGV[1]
local n = 0
for _, key in ipairs(KEYS) do
	local v = redis.call('GET', key)
	if v == held or (ARGV[2] ~= 'held' and v == booked) then
		redis.call('DEL', key)
		n = n + 1
	end
end
return n
`)

type Locker struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewLocker(client *redis.Client, log *logger.Logger) *Locker {
	return &Locker{Client: client, Logger: log}
}

// LockState is what Redis currently says about one seat.
type LockState struct {
	Status    models.SeatStatus
	BookingID string
}

func SeatKey(eventID, seatID string) string {
	return keyPrefix + eventID + ":" + seatID
}

// ParseSeatKey splits a seat_lock key. Event IDs never contain ':'.
func ParseSeatKey(key string) (eventID, seatID string, ok bool) {
	if !strings.HasPrefix(key, keyPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(key, keyPrefix)
	idx := strings.Index(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func seatKeys(eventID string, seatIDs []string) []string {
	keys := make([]string, len(seatIDs))
	for i, id := range seatIDs {
		keys[i] = SeatKey(eventID, id)
	}
	return keys
}

// Hold places TTL holds on every seat for bookingID, or on none. It returns
// the seats that blocked the hold.
func (l *Locker) Hold(ctx context.Context, eventID string, seatIDs []string, bookingID string, ttl time.Duration) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	res, err := holdScript.Run(ctx, l.Client, seatKeys(eventID, seatIDs), bookingID, ttl.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("hold seats: %w", err)
	}
	conflicts, err := pickSeats(res, seatIDs)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		l.Logger.LogSeats("HOLD_CONFLICT", eventID, fmt.Sprintf("booking %s blocked by %v", bookingID, conflicts))
		return conflicts, nil
	}
	l.Logger.LogSeats("HOLD", eventID, fmt.Sprintf("booking %s holds %v for %s", bookingID, seatIDs, ttl))
	return nil, nil
}

// Confirm promotes the booking's holds to persistent booked locks. It
// returns the seats the booking no longer holds; nothing changes then.
func (l *Locker) Confirm(ctx context.Context, eventID string, seatIDs []string, bookingID string) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	res, err := confirmScript.Run(ctx, l.Client, seatKeys(eventID, seatIDs), bookingID).Result()
	if err != nil {
		return nil, fmt.Errorf("confirm seats: %w", err)
	}
	lost, err := pickSeats(res, seatIDs)
	if err != nil {
		return nil, err
	}
	if len(lost) == 0 {
		l.Logger.LogSeats("CONFIRM", eventID, fmt.Sprintf("booking %s booked %v", bookingID, seatIDs))
	}
	return lost, nil
}

// Release drops every lock the booking owns, held or booked.
func (l *Locker) Release(ctx context.Context, eventID string, seatIDs []string, bookingID string) (int, error) {
	return l.release(ctx, eventID, seatIDs, bookingID, "any")
}

// ReleaseHeld drops only unconfirmed holds of the booking.
func (l *Locker) ReleaseHeld(ctx context.Context, eventID string, seatIDs []string, bookingID string) (int, error) {
	return l.release(ctx, eventID, seatIDs, bookingID, "held")
}

func (l *Locker) release(ctx context.Context, eventID string, seatIDs []string, bookingID, mode string) (int, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	n, err := releaseScript.Run(ctx, l.Client, seatKeys(eventID, seatIDs), bookingID, mode).Int()
	if err != nil {
		return 0, fmt.Errorf("release seats: %w", err)
	}
	l.Logger.LogSeats("RELEASE", eventID, fmt.Sprintf("booking %s released %d/%d seats (%s)", bookingID, n, len(seatIDs), mode))
	return n, nil
}

// States reads the lock of each seat. Seats without a lock are omitted.
func (l *Locker) States(ctx context.Context, eventID string, seatIDs []string) (map[string]LockState, error) {
	out := make(map[string]LockState, len(seatIDs))
	if len(seatIDs) == 0 {
		return out, nil
	}
	vals, err := l.Client.MGet(ctx, seatKeys(eventID, seatIDs)...).Result()
	if err != nil {
		return nil, fmt.Errorf("read seat locks: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(s, heldPrefix):
			out[seatIDs[i]] = LockState{Status: models.SeatHeld, BookingID: strings.TrimPrefix(s, heldPrefix)}
		case strings.HasPrefix(s, bookedPrefix):
			out[seatIDs[i]] = LockState{Status: models.SeatBooked, BookingID: strings.TrimPrefix(s, bookedPrefix)}
		}
	}
	return out, nil
}

func pickSeats(res interface{}, seatIDs []string) ([]string, error) {
	idxs, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script result %T", res)
	}
	var out []string
	for _, raw := range idxs {
		i, ok := raw.(int64)
		if !ok || i < 1 || int(i) > len(seatIDs) {
			return nil, fmt.Errorf("unexpected script index %v", raw)
		}
		out = append(out, seatIDs[i-1])
	}
	return out, nil
}
