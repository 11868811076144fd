package application

import (
	"context"
	"errors"
	"sync"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// ErrNoSubscribers is returned by Publish when nothing is listening, so the
// event would be lost.
var ErrNoSubscribers = errors.New("no event subscribers")

// subscriberBuffer is the per-subscriber channel capacity. Publish blocks
// when a subscriber falls this far behind.
const subscriberBuffer = 64

// EventBus fans out host UI lifecycle events to in-process subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan model.ApprovalRendered
	nextID      int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[int]chan model.ApprovalRendered)}
}

// Subscribe returns a channel receiving every event published after the
// call. The channel is closed when ctx is canceled.
func (b *EventBus) Subscribe(ctx context.Context) <-chan model.ApprovalRendered {
	ch := make(chan model.ApprovalRendered, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to every subscriber. It blocks while a subscriber's
// buffer is full and gives up when ctx is canceled.
func (b *EventBus) Publish(ctx context.Context, evt model.ApprovalRendered) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subscribers) == 0 {
		return ErrNoSubscribers
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
