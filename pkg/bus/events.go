package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventReplySent        EventType = "reply_sent"
	EventMessageForwarded EventType = "message_forwarded"
	EventMessageBroadcast EventType = "message_broadcast"
	EventLockSet          EventType = "lock_set"
	EventEventDropped     EventType = "event_dropped"
	EventDispatchFailed   EventType = "dispatch_failed"
)

type Event struct {
	Type     EventType `json:"type"`
	At       time.Time `json:"at"`
	Channel  string    `json:"channel,omitempty"`
	EventID  string    `json:"event_id,omitempty"`
	SenderID string    `json:"sender_id,omitempty"`
	Decision string    `json:"decision,omitempty"`
	Status   string    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// PublishEvent delivers event to every subscriber without blocking.
// It is safe to call on a nil bus.
func (b *EventBus) PublishEvent(ctx context.Context, event Event) bool {
	if b == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	// The read lock is held across the sends so unsubscribe and Close cannot
	// close a channel mid-send. Sends never block, so the hold is short.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.eventSubscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

func (b *EventBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextEventSubscriberID
	b.nextEventSubscriberID++
	b.eventSubscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.eventSubscribers[id]; ok {
				delete(b.eventSubscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
