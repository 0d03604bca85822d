package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// unary builds a method descriptor whose handler decodes Req and dispatches
// to call on the registered server.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

const SessionServiceName = "admiral.v1.SessionService"

// SessionServiceServer controls the daemon's connectivity.
type SessionServiceServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	SetPolling(context.Context, *SetPollingRequest) (*SetPollingResponse, error)
	PollNow(context.Context, *PollNowRequest) (*PollNowResponse, error)
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServiceServer.GetStatus),
		unary(SessionServiceName, "SetPolling", SessionServiceServer.SetPolling),
		unary(SessionServiceName, "PollNow", SessionServiceServer.PollNow),
	},
	Metadata: "admiral/v1/session",
}

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

// SessionServiceClient is the client side of SessionService.
type SessionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionServiceClient(cc grpc.ClientConnInterface) *SessionServiceClient {
	return &SessionServiceClient{cc: cc}
}

func (c *SessionServiceClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c.cc, "/"+SessionServiceName+"/GetStatus", in, opts...)
}

func (c *SessionServiceClient) SetPolling(ctx context.Context, in *SetPollingRequest, opts ...grpc.CallOption) (*SetPollingResponse, error) {
	return invoke[SetPollingResponse](ctx, c.cc, "/"+SessionServiceName+"/SetPolling", in, opts...)
}

func (c *SessionServiceClient) PollNow(ctx context.Context, in *PollNowRequest, opts ...grpc.CallOption) (*PollNowResponse, error) {
	return invoke[PollNowResponse](ctx, c.cc, "/"+SessionServiceName+"/PollNow", in, opts...)
}

const ChatServiceName = "admiral.v1.ChatService"

// ChatServiceServer exposes the chat session to UIs.
type ChatServiceServer interface {
	ListChannels(context.Context, *ListChannelsRequest) (*ListChannelsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	Send(context.Context, *SendRequest) (*SendResponse, error)
	Retry(context.Context, *RetryRequest) (*RetryResponse, error)
	SetActiveChannel(context.Context, *SetActiveChannelRequest) (*SetActiveChannelResponse, error)
	LoadOlder(context.Context, *LoadOlderRequest) (*LoadOlderResponse, error)
	MarkAsRead(context.Context, *MarkAsReadRequest) (*MarkAsReadResponse, error)
	StartDirect(context.Context, *StartDirectRequest) (*StartDirectResponse, error)
	ListMembers(context.Context, *ListMembersRequest) (*ListMembersResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	Watch(*WatchRequest, grpc.ServerStreamingServer[Event]) error
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListChannels", ChatServiceServer.ListChannels),
		unary(ChatServiceName, "ListMessages", ChatServiceServer.ListMessages),
		unary(ChatServiceName, "Send", ChatServiceServer.Send),
		unary(ChatServiceName, "Retry", ChatServiceServer.Retry),
		unary(ChatServiceName, "SetActiveChannel", ChatServiceServer.SetActiveChannel),
		unary(ChatServiceName, "LoadOlder", ChatServiceServer.LoadOlder),
		unary(ChatServiceName, "MarkAsRead", ChatServiceServer.MarkAsRead),
		unary(ChatServiceName, "StartDirect", ChatServiceServer.StartDirect),
		unary(ChatServiceName, "ListMembers", ChatServiceServer.ListMembers),
		unary(ChatServiceName, "Search", ChatServiceServer.Search),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "admiral/v1/chat",
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).Watch(in, &grpc.GenericServerStream[WatchRequest, Event]{ServerStream: stream})
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

// ChatServiceClient is the client side of ChatService.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func (c *ChatServiceClient) ListChannels(ctx context.Context, in *ListChannelsRequest, opts ...grpc.CallOption) (*ListChannelsResponse, error) {
	return invoke[ListChannelsResponse](ctx, c.cc, "/"+ChatServiceName+"/ListChannels", in, opts...)
}

func (c *ChatServiceClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, "/"+ChatServiceName+"/ListMessages", in, opts...)
}

func (c *ChatServiceClient) Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, "/"+ChatServiceName+"/Send", in, opts...)
}

func (c *ChatServiceClient) Retry(ctx context.Context, in *RetryRequest, opts ...grpc.CallOption) (*RetryResponse, error) {
	return invoke[RetryResponse](ctx, c.cc, "/"+ChatServiceName+"/Retry", in, opts...)
}

func (c *ChatServiceClient) SetActiveChannel(ctx context.Context, in *SetActiveChannelRequest, opts ...grpc.CallOption) (*SetActiveChannelResponse, error) {
	return invoke[SetActiveChannelResponse](ctx, c.cc, "/"+ChatServiceName+"/SetActiveChannel", in, opts...)
}

func (c *ChatServiceClient) LoadOlder(ctx context.Context, in *LoadOlderRequest, opts ...grpc.CallOption) (*LoadOlderResponse, error) {
	return invoke[LoadOlderResponse](ctx, c.cc, "/"+ChatServiceName+"/LoadOlder", in, opts...)
}

func (c *ChatServiceClient) MarkAsRead(ctx context.Context, in *MarkAsReadRequest, opts ...grpc.CallOption) (*MarkAsReadResponse, error) {
	return invoke[MarkAsReadResponse](ctx, c.cc, "/"+ChatServiceName+"/MarkAsRead", in, opts...)
}

func (c *ChatServiceClient) StartDirect(ctx context.Context, in *StartDirectRequest, opts ...grpc.CallOption) (*StartDirectResponse, error) {
	return invoke[StartDirectResponse](ctx, c.cc, "/"+ChatServiceName+"/StartDirect", in, opts...)
}

func (c *ChatServiceClient) ListMembers(ctx context.Context, in *ListMembersRequest, opts ...grpc.CallOption) (*ListMembersResponse, error) {
	return invoke[ListMembersResponse](ctx, c.cc, "/"+ChatServiceName+"/ListMembers", in, opts...)
}

func (c *ChatServiceClient) Search(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*SearchResponse, error) {
	return invoke[SearchResponse](ctx, c.cc, "/"+ChatServiceName+"/Search", in, opts...)
}

// Watch opens the change stream. Receive until the context ends.
func (c *ChatServiceClient) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Event], error) {
	stream, err := c.cc.NewStream(ctx, &ChatServiceDesc.Streams[0], "/"+ChatServiceName+"/Watch", opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchRequest, Event]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
