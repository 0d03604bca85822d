package chat

import "github.com/matheus3301/admiral/internal/bus"

// ChangeKind says which part of the local view changed.
type ChangeKind string

const (
	ChangeChannels ChangeKind = "channels"
	ChangeMessages ChangeKind = "messages"
	// ChangeResync means notifications were lost and every view is stale.
	ChangeResync ChangeKind = "resync"
)

// Change is published on the bus whenever the local view of a channel or its
// messages is modified.
type Change struct {
	Kind      ChangeKind
	ChannelID string
	MessageID string
	// ReplacedID is the temporary id a reconciled message superseded.
	ReplacedID string
}

func emitChannels(b *bus.Bus, channelID string) {
	b.Emit(bus.KindChannelsChanged, Change{Kind: ChangeChannels, ChannelID: channelID})
}

func emitMessages(b *bus.Bus, channelID, messageID, replacedID string) {
	b.Emit(bus.KindMessagesChanged, Change{
		Kind:       ChangeMessages,
		ChannelID:  channelID,
		MessageID:  messageID,
		ReplacedID: replacedID,
	})
}
