package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of event.Kind.
// A zero Timestamp is stamped with the current time. Publish never blocks: when a
// subscriber's buffer is full its oldest event is evicted and a KindResync
// marker takes the freed slot.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				sub.overflow(evt.Timestamp)
			}
		}
	}
}

func (s *subscription) overflow(ts time.Time) {
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- Event{Kind: KindResync, Timestamp: ts}:
	default:
	}
}

// Emit publishes an event of the given kind. A nil bus is a no-op.
func (b *Bus) Emit(kind string, payload any) {
	if b == nil {
		return
	}
	b.Publish(Event{Kind: kind, Payload: payload})
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
