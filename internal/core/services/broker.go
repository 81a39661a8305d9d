package services

import (
	"sync"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// subscriberBuffer is the number of undelivered events kept per subscriber.
// When it is full the oldest event is dropped; terminal events always fit.
const subscriberBuffer = 16

// Broker fans document state events out to in-process subscribers.
// Publish never blocks on a slow subscriber.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

type subscriber struct {
	documentID string
	ch         chan domain.DocumentEvent
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscriber)}
}

// Subscribe registers for events of one document, or of every document
// when documentID is empty. The channel is closed by cancel or Close.
func (b *Broker) Subscribe(documentID string) (<-chan domain.DocumentEvent, func()) {
	ch := make(chan domain.DocumentEvent, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{documentID: documentID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Publish delivers ev to every matching subscriber.
func (b *Broker) Publish(ev domain.DocumentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.documentID != "" && sub.documentID != ev.DocumentID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Full: drop the oldest event to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Later subscriptions are closed immediately.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
