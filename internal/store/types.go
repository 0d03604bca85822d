package store

import "strings"

// ChannelType classifies a channel.
type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
	ChannelDirect  ChannelType = "dm"
)

// MessageKind is the kind of content a message carries.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindSystem      MessageKind = "system"
	KindSMSInbound  MessageKind = "sms_inbound"
	KindSMSOutbound MessageKind = "sms_outbound"
	KindSequence    MessageKind = "sequence"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
)

// Confirmed reports whether the server has acknowledged a message in this state.
func (s MessageStatus) Confirmed() bool {
	return s == StatusSent || s == StatusDelivered
}

// TempIDPrefix marks locally generated message ids. Server ids never carry it.
const TempIDPrefix = "tmp-"

// IsTempID reports whether id was generated locally for an unconfirmed send.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Channel represents a cached channel.
type Channel struct {
	ID                 string
	Type               ChannelType
	Name               string
	Slug               string
	Description        string
	Participants       []string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
	CachedAt           int64
}

// DisplayName returns the best label for the channel.
func (c *Channel) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Slug != "":
		return c.Slug
	default:
		return c.ID
	}
}

// Message represents a cached message.
type Message struct {
	ID         string
	ChannelID  string
	SenderID   string
	SenderName string
	Body       string
	Kind       MessageKind
	ReplyTo    string
	Status     MessageStatus
	LocalOnly  bool
	CreatedAt  int64
}

// OpKind identifies a deferred operation in the pending queue.
type OpKind string

const (
	OpSend          OpKind = "send"
	OpMarkRead      OpKind = "mark_read"
	OpCreateChannel OpKind = "create_channel"
)

// MaxOpAttempts bounds how many times a pending operation is tried.
const MaxOpAttempts = 3

// PendingOp is an operation kept for a later retry.
type PendingOp struct {
	ID        int64
	Kind      OpKind
	Payload   map[string]any
	CreatedAt int64
	Attempts  int
}

// Member is a workspace member that can be messaged directly.
type Member struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
