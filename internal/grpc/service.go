package grpc

import (
	"context"

	"google.golang.org/grpc"

	"socialhub/pkg/models"
)

const ServiceName = "socialhub.Messenger"

type SendMessageRequest struct {
	ReceiverID string             `json:"receiverId"`
	Content    string             `json:"content"`
	Type       models.MessageType `json:"type,omitempty"`
}

type SendMessageResponse struct {
	Message models.MessageView `json:"message"`
}

type ListConversationsRequest struct{}

type ListConversationsResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
}

type UnreadCountRequest struct{}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

type PresenceRequest struct {
	UserIDs []string `json:"userIds"`
}

type PresenceResponse struct {
	Online map[string]bool `json:"online"`
}

// MessengerServer is the server API of socialhub.Messenger.
type MessengerServer interface {
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	UnreadCount(context.Context, *UnreadCountRequest) (*UnreadCountResponse, error)
	Presence(context.Context, *PresenceRequest) (*PresenceResponse, error)
}

func unary[Req, Resp any](method string, call func(MessengerServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MessengerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MessengerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var MessengerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessengerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: unary("SendMessage", MessengerServer.SendMessage)},
		{MethodName: "ListConversations", Handler: unary("ListConversations", MessengerServer.ListConversations)},
		{MethodName: "UnreadCount", Handler: unary("UnreadCount", MessengerServer.UnreadCount)},
		{MethodName: "Presence", Handler: unary("Presence", MessengerServer.Presence)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "socialhub/messenger",
}

func RegisterMessengerServer(s grpc.ServiceRegistrar, srv MessengerServer) {
	s.RegisterService(&MessengerServiceDesc, srv)
}

// MessengerClient calls socialhub.Messenger with the JSON codec.
type MessengerClient struct {
	cc grpc.ClientConnInterface
}

func NewMessengerClient(cc grpc.ClientConnInterface) *MessengerClient {
	return &MessengerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MessengerClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, "SendMessage", in, opts)
}

func (c *MessengerClient) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c.cc, "ListConversations", in, opts)
}

func (c *MessengerClient) UnreadCount(ctx context.Context, in *UnreadCountRequest, opts ...grpc.CallOption) (*UnreadCountResponse, error) {
	return invoke[UnreadCountResponse](ctx, c.cc, "UnreadCount", in, opts)
}

func (c *MessengerClient) Presence(ctx context.Context, in *PresenceRequest, opts ...grpc.CallOption) (*PresenceResponse, error) {
	return invoke[PresenceResponse](ctx, c.cc, "Presence", in, opts)
}
