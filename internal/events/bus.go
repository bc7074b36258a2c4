// Package events provides an in-process publish/subscribe bus used to push
// generation lifecycle updates to connected clients.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Event describes a generation lifecycle change.
type Event struct {
	GenerationID string `json:"generationId"`
	RequestID    string `json:"requestId,omitempty"`
	Status       string `json:"status"`
	ResultURL    string `json:"resultUrl,omitempty"`
	Error        string `json:"error,omitempty"`
}

// subscriber is one live client connection.
type subscriber struct {
	id string
	ch chan Event
}

// Bus fans events out to live subscribers, keyed by owner. Publishing never
// blocks: a subscriber whose buffer is full misses the event, and a failed
// delivery to one subscriber does not affect the others.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]subscriber),
	}
}

// Subscribe registers a new subscriber for the owner's events.
// It returns the subscriber ID (needed for Unsubscribe) and the channel
// events are delivered on.
func (b *Bus) Subscribe(ownerID string) (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, 16),
	}
	b.subscribers[ownerID] = append(b.subscribers[ownerID], sub)
	return sub.id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ownerID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[ownerID]
	for i, sub := range subs {
		if sub.id == subID {
			b.subscribers[ownerID] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			break
		}
	}

	if len(b.subscribers[ownerID]) == 0 {
		delete(b.subscribers, ownerID)
	}
}

// Publish delivers the event to every live subscriber of the owner.
func (b *Bus) Publish(ownerID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[ownerID] {
		select {
		case sub.ch <- event:
		default:
			// Drop event if subscriber is slow
		}
	}
}

// SubscriberCount returns the number of live subscribers for an owner.
func (b *Bus) SubscriberCount(ownerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[ownerID])
}
