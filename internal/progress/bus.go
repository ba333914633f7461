package progress

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultQueueSize is the per-subscriber buffer used when Subscribe is
// called with size <= 0.
const DefaultQueueSize = 64

// Subscription is one subscriber's view of an investigation's events.
type Subscription struct {
	ID              string
	InvestigationID string
	C               <-chan Event

	ch chan Event
}

// Bus fans one investigation's events out to N subscribers. Safe for
// concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[string]*Subscription)}
}

// Subscribe registers a subscriber for the investigation's events.
func (b *Bus) Subscribe(investigationID string, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ch := make(chan Event, queueSize)
	sub := &Subscription{
		ID:              uuid.New().String(),
		InvestigationID: investigationID,
		C:               ch,
		ch:              ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[investigationID] == nil {
		b.subs[investigationID] = make(map[string]*Subscription)
	}
	b.subs[investigationID][sub.ID] = sub
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	group, ok := b.subs[sub.InvestigationID]
	if !ok {
		return
	}
	if _, ok := group[sub.ID]; !ok {
		return
	}
	delete(group, sub.ID)
	if len(group) == 0 {
		delete(b.subs, sub.InvestigationID)
	}
	close(sub.ch)
}

// Publish delivers the event to every subscriber of the investigation.
// A full subscriber queue drops its oldest non-terminal event in favor
// of the newest; terminal events are never dropped. Publish never
// blocks on a slow subscriber.
func (b *Bus) Publish(investigationID string, ev Event) {
	// Delivery happens under the read lock so Unsubscribe cannot close
	// a channel mid-send. deliver never blocks, so the lock is held
	// only briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[investigationID] {
		deliver(sub.ch, ev)
	}
}

// SubscriberCount returns the number of subscribers for the
// investigation.
func (b *Bus) SubscriberCount(investigationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[investigationID])
}

// deliver pushes ev into ch, evicting the oldest queued event when the
// buffer is full. The stream carries at most one terminal event and it
// is always the newest, so eviction only ever discards non-terminal
// events.
func deliver(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
			// evicted the oldest queued event
		default:
		}
	}
}
