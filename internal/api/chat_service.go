package api

import (
	"context"
	"errors"
	"strings"

	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/chat"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const defaultSearchLimit = 20

// ChatService implements the ChatService gRPC service.
type ChatService struct {
	session  *chat.Session
	db       *store.DB
	bus      *bus.Bus
	machine  *status.Machine
	watchers *Watchers
	logger   *zap.Logger
}

var _ rpc.ChatServiceServer = (*ChatService)(nil)

// NewChatService creates a new chat service.
func NewChatService(session *chat.Session, db *store.DB, b *bus.Bus, machine *status.Machine, watchers *Watchers, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		session:  session,
		db:       db,
		bus:      b,
		machine:  machine,
		watchers: watchers,
		logger:   logger,
	}
}

func (s *ChatService) ListChannels(ctx context.Context, req *rpc.ListChannelsRequest) (*rpc.ListChannelsResponse, error) {
	if req.Refresh {
		if err := s.session.Directory.Refresh(ctx); err != nil {
			s.logger.Warn("channel refresh failed, serving cache", zap.Error(err))
		}
	}
	channels, err := s.session.Directory.List()
	if err != nil {
		return nil, toStatus("list channels", err)
	}
	total, err := s.session.Directory.UnreadTotal()
	if err != nil {
		return nil, toStatus("unread total", err)
	}

	resp := &rpc.ListChannelsResponse{
		Channels:        make([]rpc.Channel, 0, len(channels)),
		ActiveChannelID: s.session.ActiveChannel(),
		UnreadTotal:     total,
	}
	for _, c := range channels {
		resp.Channels = append(resp.Channels, rpc.ChannelFromStore(c))
	}
	return resp, nil
}

func (s *ChatService) ListMessages(ctx context.Context, req *rpc.ListMessagesRequest) (*rpc.ListMessagesResponse, error) {
	channelID := req.ChannelID
	if channelID == "" {
		channelID = s.session.ActiveChannel()
	}
	if channelID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "channel_id is required when no channel is active")
	}

	resp := &rpc.ListMessagesResponse{ChannelID: channelID}
	if req.Fetch {
		_, err := s.session.Messages.Fetch(ctx, channelID, gateway.FetchOptions{Before: req.Before, Limit: req.Limit})
		var nf *gateway.NotFoundError
		if errors.As(err, &nf) {
			return nil, toStatus("fetch messages", err)
		}
		if err != nil {
			resp.Error = err.Error()
		}
	}

	resp.Messages = []rpc.Message{}
	for m, err := range s.session.Messages.Query(channelID, req.Limit, req.Before) {
		if err != nil {
			return nil, toStatus("list messages", err)
		}
		resp.Messages = append(resp.Messages, rpc.MessageFromStore(m))
	}
	return resp, nil
}

func (s *ChatService) Send(ctx context.Context, req *rpc.SendRequest) (*rpc.SendResponse, error) {
	msg, err := s.session.SendTo(ctx, req.ChannelID, req.Content, chat.SendOptions{ReplyTo: req.ReplyTo})
	if err != nil {
		return nil, toStatus("send", err)
	}
	return &rpc.SendResponse{Message: rpc.MessageFromStore(msg)}, nil
}

func (s *ChatService) Retry(ctx context.Context, req *rpc.RetryRequest) (*rpc.RetryResponse, error) {
	msg, err := s.session.Retry(ctx, req.MessageID)
	if err != nil {
		return nil, toStatus("retry", err)
	}
	return &rpc.RetryResponse{Message: rpc.MessageFromStore(msg)}, nil
}

// SetActiveChannel reports fetch failures in the response alongside the
// cached messages. Unknown and deleted channels are errors.
func (s *ChatService) SetActiveChannel(ctx context.Context, req *rpc.SetActiveChannelRequest) (*rpc.SetActiveChannelResponse, error) {
	if req.ChannelID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "channel_id is required")
	}
	resp := &rpc.SetActiveChannelResponse{ChannelID: req.ChannelID}

	err := s.session.SetActiveChannel(ctx, req.ChannelID)
	var nf *gateway.NotFoundError
	if errors.Is(err, store.ErrNotFound) || errors.As(err, &nf) {
		return nil, toStatus("set active channel", err)
	}
	if err != nil {
		resp.Error = err.Error()
	}

	msgs, err := s.session.Messages.List(req.ChannelID, 0)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	resp.Messages = rpc.MessagesFromStore(msgs)
	return resp, nil
}

func (s *ChatService) LoadOlder(ctx context.Context, _ *rpc.LoadOlderRequest) (*rpc.LoadOlderResponse, error) {
	msgs, err := s.session.LoadOlder(ctx)
	if err != nil {
		return nil, toStatus("load older", err)
	}
	return &rpc.LoadOlderResponse{
		ChannelID: s.session.ActiveChannel(),
		Messages:  rpc.MessagesFromStore(msgs),
	}, nil
}

func (s *ChatService) MarkAsRead(ctx context.Context, req *rpc.MarkAsReadRequest) (*rpc.MarkAsReadResponse, error) {
	var err error
	if req.ChannelID == "" {
		err = s.session.MarkAsRead(ctx)
	} else {
		err = s.session.Directory.MarkAsRead(ctx, req.ChannelID)
	}
	if err != nil {
		return nil, toStatus("mark as read", err)
	}
	return &rpc.MarkAsReadResponse{}, nil
}

func (s *ChatService) StartDirect(ctx context.Context, req *rpc.StartDirectRequest) (*rpc.StartDirectResponse, error) {
	ch, err := s.session.StartDM(ctx, req.MemberID)
	if err != nil {
		return nil, toStatus("start direct", err)
	}
	return &rpc.StartDirectResponse{Channel: rpc.ChannelFromStore(*ch)}, nil
}

func (s *ChatService) ListMembers(ctx context.Context, req *rpc.ListMembersRequest) (*rpc.ListMembersResponse, error) {
	if req.Refresh {
		if err := s.session.RefreshMembers(ctx); err != nil {
			s.logger.Warn("member refresh failed, serving cache", zap.Error(err))
		}
	}
	members, err := s.session.Members()
	if err != nil {
		return nil, toStatus("list members", err)
	}
	resp := &rpc.ListMembersResponse{Members: make([]rpc.Member, 0, len(members))}
	for _, m := range members {
		resp.Members = append(resp.Members, rpc.MemberFromStore(m))
	}
	return resp, nil
}

func (s *ChatService) Search(_ context.Context, req *rpc.SearchRequest) (*rpc.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	results, err := s.db.SearchMessages(query, req.ChannelID, limit)
	if err != nil {
		return nil, toStatus("search", err)
	}
	resp := &rpc.SearchResponse{Results: make([]rpc.SearchResult, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, rpc.SearchResult{
			Message: rpc.MessageFromStore(r.Message),
			Snippet: r.Snippet,
		})
	}
	return resp, nil
}

// Watch streams change notifications until the client disconnects. The
// current status is sent first.
func (s *ChatService) Watch(_ *rpc.WatchRequest, stream grpc.ServerStreamingServer[rpc.Event]) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()
	s.watchers.add(1)
	defer s.watchers.add(-1)

	if err := stream.Send(&rpc.Event{Kind: rpc.EventStatus, Status: string(s.machine.Current())}); err != nil {
		return err
	}

	for {
		select {
		case evt := <-ch:
			out, ok := toEvent(evt)
			if !ok {
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func toEvent(evt bus.Event) (*rpc.Event, bool) {
	out := &rpc.Event{Timestamp: evt.Timestamp.UnixMilli()}
	switch p := evt.Payload.(type) {
	case chat.Change:
		out.Kind = string(p.Kind)
		out.ChannelID = p.ChannelID
		out.MessageID = p.MessageID
		out.ReplacedID = p.ReplacedID
	case status.StatusChange:
		out.Kind = rpc.EventStatus
		out.Status = string(p.To)
	default:
		switch evt.Kind {
		case bus.KindPollCompleted:
			out.Kind = rpc.EventPoll
		case bus.KindPollFailed:
			out.Kind = rpc.EventPoll
			out.Error, _ = evt.Payload.(string)
		case bus.KindResync:
			out.Kind = rpc.EventResync
		default:
			return nil, false
		}
	}
	return out, true
}
