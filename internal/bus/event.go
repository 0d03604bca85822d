package bus

import "time"

// Event kinds. Subscribers filter on the prefix before the dot.
const (
	KindStatusChanged   = "session.status_changed"
	KindChannelsChanged = "chat.channels_changed"
	KindMessagesChanged = "chat.messages_changed"
	KindPollCompleted   = "sync.poll_completed"
	KindPollFailed      = "sync.poll_failed"

	// KindResync is delivered to a subscriber whose buffer overflowed. It
	// matches every namespace; the receiver must re-read its full view.
	KindResync = "bus.resync"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
