package rpc

import "github.com/matheus3301/admiral/internal/store"

// Channel is the wire form of a cached channel.
type Channel struct {
	ID                 string   `json:"id"`
	Type               string   `json:"type"`
	Name               string   `json:"name"`
	Slug               string   `json:"slug,omitempty"`
	Description        string   `json:"description,omitempty"`
	Participants       []string `json:"participants,omitempty"`
	UnreadCount        int      `json:"unreadCount"`
	LastMessageAt      int64    `json:"lastMessageAt"`
	LastMessagePreview string   `json:"lastMessagePreview,omitempty"`
}

// Message is the wire form of a cached message.
type Message struct {
	ID         string `json:"id"`
	ChannelID  string `json:"channelId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	Body       string `json:"body"`
	Kind       string `json:"kind"`
	ReplyTo    string `json:"replyTo,omitempty"`
	Status     string `json:"status"`
	LocalOnly  bool   `json:"localOnly,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type SearchResult struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}

func ChannelFromStore(c store.Channel) Channel {
	return Channel{
		ID:                 c.ID,
		Type:               string(c.Type),
		Name:               c.DisplayName(),
		Slug:               c.Slug,
		Description:        c.Description,
		Participants:       c.Participants,
		UnreadCount:        c.UnreadCount,
		LastMessageAt:      c.LastMessageAt,
		LastMessagePreview: c.LastMessagePreview,
	}
}

func MessageFromStore(m store.Message) Message {
	return Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Body,
		Kind:       string(m.Kind),
		ReplyTo:    m.ReplyTo,
		Status:     string(m.Status),
		LocalOnly:  m.LocalOnly,
		CreatedAt:  m.CreatedAt,
	}
}

func MessagesFromStore(msgs []store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageFromStore(m))
	}
	return out
}

func MemberFromStore(m store.Member) Member {
	return Member{ID: m.ID, Name: m.Name, Email: m.Email, AvatarURL: m.AvatarURL}
}

// SessionService messages.

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Session         string `json:"session"`
	Status          string `json:"status"`
	Polling         bool   `json:"polling"`
	MemberID        string `json:"memberId"`
	MemberName      string `json:"memberName,omitempty"`
	ActiveChannelID string `json:"activeChannelId,omitempty"`
	UnreadTotal     int    `json:"unreadTotal"`
	ChannelCount    int64  `json:"channelCount"`
	MessageCount    int64  `json:"messageCount"`
	PendingOps      int64  `json:"pendingOps"`
	PollFailures    int    `json:"pollFailures"`
	PollCursor      string `json:"pollCursor,omitempty"`
	UptimeMs        int64  `json:"uptimeMs"`
}

type SetPollingRequest struct {
	Enabled bool `json:"enabled"`
}

type SetPollingResponse struct {
	Polling bool   `json:"polling"`
	Status  string `json:"status"`
}

type PollNowRequest struct{}

type PollNowResponse struct {
	// Polled is false when a poll was already in flight.
	Polled bool   `json:"polled"`
	Error  string `json:"error,omitempty"`
}

// ChatService messages.

type ListChannelsRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

type ListChannelsResponse struct {
	Channels        []Channel `json:"channels"`
	ActiveChannelID string    `json:"activeChannelId,omitempty"`
	UnreadTotal     int       `json:"unreadTotal"`
}

type ListMessagesRequest struct {
	ChannelID string `json:"channelId,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	// Before pages to messages older than this unix ms timestamp.
	Before int64 `json:"before,omitempty"`
	// Fetch asks the server before reading the cache.
	Fetch bool `json:"fetch,omitempty"`
}

type ListMessagesResponse struct {
	ChannelID string    `json:"channelId"`
	Messages  []Message `json:"messages"`
	// Error carries a fetch failure; Messages then holds the cached view.
	Error string `json:"error,omitempty"`
}

type SendRequest struct {
	ChannelID string `json:"channelId,omitempty"`
	Content   string `json:"content"`
	ReplyTo   string `json:"replyTo,omitempty"`
}

type SendResponse struct {
	Message Message `json:"message"`
}

type RetryRequest struct {
	MessageID string `json:"messageId"`
}

type RetryResponse struct {
	Message Message `json:"message"`
}

type SetActiveChannelRequest struct {
	ChannelID string `json:"channelId"`
}

type SetActiveChannelResponse struct {
	ChannelID string    `json:"channelId"`
	Messages  []Message `json:"messages"`
	Error     string    `json:"error,omitempty"`
}

type LoadOlderRequest struct{}

type LoadOlderResponse struct {
	ChannelID string    `json:"channelId"`
	Messages  []Message `json:"messages"`
}

type MarkAsReadRequest struct {
	ChannelID string `json:"channelId,omitempty"`
}

type MarkAsReadResponse struct{}

type StartDirectRequest struct {
	MemberID string `json:"memberId"`
}

type StartDirectResponse struct {
	Channel Channel `json:"channel"`
}

type ListMembersRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

type ListMembersResponse struct {
	Members []Member `json:"members"`
}

type SearchRequest struct {
	Query     string `json:"query"`
	ChannelID string `json:"channelId,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

type WatchRequest struct{}

// Event kinds sent on the Watch stream.
const (
	EventChannels = "channels"
	EventMessages = "messages"
	EventStatus   = "status"
	EventPoll     = "poll"
	EventResync   = "resync"
)

// Event is a change notification. Watchers re-read the parts they display.
type Event struct {
	Kind       string `json:"kind"`
	ChannelID  string `json:"channelId,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	ReplacedID string `json:"replacedId,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}
