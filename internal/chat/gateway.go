package chat

import (
	"context"
	"time"

	"github.com/matheus3301/admiral/internal/gateway"
)

// Gateway is the remote chat service as seen by the sync engine.
// *gateway.Client satisfies it.
type Gateway interface {
	ListChannels(ctx context.Context) ([]gateway.Channel, error)
	FindOrCreateDM(ctx context.Context, memberID string) (*gateway.Channel, error)
	FetchMessages(ctx context.Context, channelID string, opts gateway.FetchOptions) ([]gateway.Message, error)
	SendMessage(ctx context.Context, channelID, content string, opts gateway.SendOptions) (*gateway.Message, error)
	MarkChannelAsRead(ctx context.Context, channelID string) error
	PollForUpdates(ctx context.Context, since time.Time) (*gateway.PollResult, error)
	ListMembers(ctx context.Context) ([]gateway.Member, error)
}

var _ Gateway = (*gateway.Client)(nil)

// ActivityProvider reports whether the host is in the foreground.
type ActivityProvider interface {
	Active() bool
}

// ActivityFunc adapts a function to ActivityProvider.
type ActivityFunc func() bool

func (f ActivityFunc) Active() bool { return f() }

// AlwaysActive treats the host as permanently in the foreground.
var AlwaysActive ActivityProvider = ActivityFunc(func() bool { return true })
