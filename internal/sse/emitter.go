package sse

import (
	"context"
	"sync"

	"ms-marketplace/internal/models"
)

const clientBuffer = 16

// topicClients fans values out to subscribers grouped by key.
type topicClients[T any] struct {
	mu      sync.RWMutex
	clients map[string][]chan T
}

func newTopicClients[T any]() *topicClients[T] {
	return &topicClients[T]{clients: make(map[string][]chan T)}
}

func (t *topicClients[T]) subscribe(ctx context.Context, key string) <-chan T {
	ch := make(chan T, clientBuffer)

	t.mu.Lock()
	t.clients[key] = append(t.clients[key], ch)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.remove(key, ch)
	}()

	return ch
}

// emit never blocks; a subscriber with a full buffer misses the value.
func (t *topicClients[T]) emit(key string, v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, ch := range t.clients[key] {
		select {
		case ch <- v:
		default:
		}
	}
}

func (t *topicClients[T]) remove(key string, ch chan T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	clients := t.clients[key]
	for i, c := range clients {
		if c == ch {
			t.clients[key] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(t.clients[key]) == 0 {
		delete(t.clients, key)
	}
}

func (t *topicClients[T]) count(key string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients[key])
}

// Emitter broadcasts seat changes per event and confirmed orders per seller.
type Emitter struct {
	seats     *topicClients[models.SeatStatusEvent]
	checkouts *topicClients[models.OrderConfirmedEvent]
}

func NewEmitter() *Emitter {
	return &Emitter{
		seats:     newTopicClients[models.SeatStatusEvent](),
		checkouts: newTopicClients[models.OrderConfirmedEvent](),
	}
}

// SubscribeSeats streams seat status changes of one event until ctx ends.
func (e *Emitter) SubscribeSeats(ctx context.Context, eventID string) <-chan models.SeatStatusEvent {
	return e.seats.subscribe(ctx, eventID)
}

func (e *Emitter) EmitSeatStatus(ev models.SeatStatusEvent) {
	e.seats.emit(ev.EventID, ev)
}

// SubscribeCheckouts streams confirmed orders for a seller's events.
func (e *Emitter) SubscribeCheckouts(ctx context.Context, sellerID string) <-chan models.OrderConfirmedEvent {
	return e.checkouts.subscribe(ctx, sellerID)
}

func (e *Emitter) EmitCheckout(sellerID string, ev models.OrderConfirmedEvent) {
	e.checkouts.emit(sellerID, ev)
}

func (e *Emitter) SeatClientCount(eventID string) int {
	return e.seats.count(eventID)
}

func (e *Emitter) CheckoutClientCount(sellerID string) int {
	return e.checkouts.count(sellerID)
}
