package gateway

import (
	"time"

	"github.com/matheus3301/admiral/internal/store"
)

// Identity is the workspace member the client acts as.
type Identity struct {
	MemberID   string
	MemberName string
}

// Channel is a channel as returned by the server.
type Channel struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	Name               string    `json:"name,omitempty"`
	Slug               string    `json:"slug,omitempty"`
	Description        string    `json:"description,omitempty"`
	Participants       []string  `json:"participants,omitempty"`
	UnreadCount        *int      `json:"unreadCount,omitempty"`
	LastMessagePreview string    `json:"lastMessagePreview,omitempty"`
	LastMessageAt      time.Time `json:"lastMessageAt,omitzero"`
}

// ToStore converts the wire record to a cache record. A missing unread count
// becomes 0; callers that need to preserve local state check UnreadCount.
func (c Channel) ToStore() store.Channel {
	ch := store.Channel{
		ID:                 c.ID,
		Type:               store.ChannelType(c.Type),
		Name:               c.Name,
		Slug:               c.Slug,
		Description:        c.Description,
		Participants:       c.Participants,
		LastMessageAt:      millis(c.LastMessageAt),
		LastMessagePreview: store.Preview(c.LastMessagePreview),
	}
	if ch.Type == "" {
		ch.Type = store.ChannelPublic
	}
	if c.UnreadCount != nil {
		ch.UnreadCount = max(*c.UnreadCount, 0)
	}
	return ch
}

// Message is a message as returned by the server.
type Message struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName,omitempty"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType,omitempty"`
	ReplyTo     string    `json:"replyTo,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ToStore converts the wire record to a cache record with the given status.
func (m Message) ToStore(status store.MessageStatus) store.Message {
	kind := store.MessageKind(m.MessageType)
	if kind == "" {
		kind = store.KindText
	}
	return store.Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Content,
		Kind:       kind,
		ReplyTo:    m.ReplyTo,
		Status:     status,
		LocalOnly:  !status.Confirmed(),
		CreatedAt:  millis(m.CreatedAt),
	}
}

// Member is a workspace member.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ToStore converts the wire record to a cache record.
func (m Member) ToStore() store.Member {
	return store.Member{ID: m.ID, Name: m.Name, Email: m.Email, AvatarURL: m.AvatarURL}
}

// ChannelDelta is the per-channel part of a poll response.
type ChannelDelta struct {
	ChannelID     string    `json:"id"`
	NewCount      int       `json:"newCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// PollResult is the response of a poll.
type PollResult struct {
	HasNew   bool           `json:"hasNew"`
	Channels []ChannelDelta `json:"channels"`
}

// FetchOptions page through a channel's history.
type FetchOptions struct {
	// Before bounds the page to messages created strictly earlier (unix ms).
	// Zero means the newest page.
	Before int64
	Limit  int
}

// SendOptions carry optional send parameters.
type SendOptions struct {
	ReplyTo string
}

// CreateChannelRequest is the body of POST /channels.
type CreateChannelRequest struct {
	Type           string   `json:"type"`
	Name           string   `json:"name,omitempty"`
	ParticipantIDs []string `json:"participantIds,omitempty"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
