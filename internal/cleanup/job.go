// Package cleanup expires unpaid bookings on a schedule and on demand.
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-marketplace/internal/logger"
)

type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

// Job runs the expiry sweep every Interval. Trigger asks for an extra sweep,
// used when Redis reports a hold expiring before the next tick.
type Job struct {
	Expirer   Expirer
	Interval  time.Duration
	BatchSize int
	Logger    *logger.Logger

	mu      sync.Mutex
	started bool
	trigger chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	now     func() time.Time
}

func NewJob(expirer Expirer, interval time.Duration, batchSize int, log *logger.Logger) *Job {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Job{
		Expirer:   expirer,
		Interval:  interval,
		BatchSize: batchSize,
		Logger:    log,
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		now:       time.Now,
	}
}

// Start runs the loop in a goroutine until ctx is cancelled or Stop is called.
func (j *Job) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true

	j.Logger.Info("CLEANUP", fmt.Sprintf("Started booking cleanup every %v (batch %d)", j.Interval, j.BatchSize))
	go j.loop(ctx)
}

func (j *Job) loop(ctx context.Context) {
	defer close(j.stopped)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.trigger:
			j.RunOnce(ctx)
		case <-j.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop and waits for an in-flight sweep to finish. It is safe
// to call more than once.
func (j *Job) Stop() {
	j.once.Do(func() { close(j.done) })

	j.mu.Lock()
	started := j.started
	j.mu.Unlock()
	if !started {
		return
	}

	select {
	case <-j.stopped:
	case <-time.After(j.Interval + 30*time.Second):
		j.Logger.Warn("CLEANUP", "Timed out waiting for cleanup loop to stop")
	}
	j.Logger.Info("CLEANUP", "Booking cleanup stopped")
}

// Trigger requests a sweep without blocking. Requests made while one is
// already queued collapse into it.
func (j *Job) Trigger() {
	select {
	case j.trigger <- struct{}{}:
	default:
	}
}

// RunOnce expires stale bookings in batches until a batch comes back short
// and returns the total expired.
func (j *Job) RunOnce(ctx context.Context) int {
	total := 0
	for {
		if ctx.Err() != nil {
			return total
		}
		n, err := j.Expirer.ExpireStale(ctx, j.now().UTC(), j.BatchSize)
		total += n
		if err != nil {
			j.Logger.Error("CLEANUP", fmt.Sprintf("Expiry sweep failed after %d bookings: %v", total, err))
			return total
		}
		if n < j.BatchSize {
			break
		}
	}
	if total > 0 {
		j.Logger.Info("CLEANUP", fmt.Sprintf("Expired %d stale bookings", total))
	} else {
		j.Logger.Debug("CLEANUP", "No stale bookings")
	}
	return total
}
