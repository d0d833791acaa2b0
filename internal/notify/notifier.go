package notify

import (
	"log"
	"sync"
)

// EntityType identifies the record class an event refers to.
const (
	EntityTicket = "ticket"
	EntityPart   = "part"
)

// ChangeKind values carried by events. Consumers treat any of them as
// "refetch the affected query class", not as a patch to apply.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
	// KindReady is published in addition to KindUpdated when a ticket
	// transitions into the ready state; the web push bridge keys on it.
	KindReady = "ready"
)

// Event is the transient cache-invalidation payload broadcast to all
// connected surfaces. Delivery is at-most-once; a missed event is
// recovered by the next full pull.
type Event struct {
	EntityType string `json:"entityType"`
	EntityID   int64  `json:"entityId"`
	ChangeKind string `json:"changeKind"`
}

// Notifier fans events out to all current subscribers. Publish never
// blocks: a subscriber whose buffer is full loses the event.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener with the given channel buffer and
// returns its event channel plus a cancel function. Cancel closes the
// channel; it is safe to call more than once.
func (n *Notifier) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking the
// caller. Slow subscribers drop events and recover on their next pull.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("notify: subscriber %d is slow, dropping %s/%d %s", id, ev.EntityType, ev.EntityID, ev.ChangeKind)
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
