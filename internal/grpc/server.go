// Package grpc serves the internal Messenger API for trusted back-office
// callers, plus the standard health and reflection services.
package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"socialhub/internal/common"
	"socialhub/internal/log"
	"socialhub/internal/messages"
	"socialhub/pkg/models"
)

type Messenger interface {
	Send(ctx context.Context, in messages.SendInput) (*models.MessageView, error)
	Conversations(ctx context.Context, me string) ([]models.ConversationSummary, error)
	UnreadCount(ctx context.Context, me string) (int, error)
}

// PresenceSource reports which users have a live realtime connection.
type PresenceSource interface {
	Online(userID string) bool
	OnlineUsers() []string
}

type Server struct {
	address   string
	msgs      Messenger
	presence  PresenceSource
	jwtSecret []byte
	logger    zerolog.Logger
}

func NewServer(address string, msgs Messenger, presence PresenceSource, jwtSecret []byte) *Server {
	return &Server{
		address:   address,
		msgs:      msgs,
		presence:  presence,
		jwtSecret: jwtSecret,
		logger:    log.WithComponent("grpc"),
	}
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis and stops gracefully when ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))

	RegisterMessengerServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("stopping gRPC server")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info().Str("address", lis.Addr().String()).Msg("gRPC server listening")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	m, err := s.msgs.Send(ctx, messages.SendInput{
		SenderID:   userIDFrom(ctx),
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Type:       req.Type,
		Transport:  messages.TransportGRPC,
	})
	if err != nil {
		return nil, s.toStatus("send message", err)
	}
	return &SendMessageResponse{Message: *m}, nil
}

func (s *Server) ListConversations(ctx context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error) {
	convs, err := s.msgs.Conversations(ctx, userIDFrom(ctx))
	if err != nil {
		return nil, s.toStatus("list conversations", err)
	}
	return &ListConversationsResponse{Conversations: convs}, nil
}

func (s *Server) UnreadCount(ctx context.Context, req *UnreadCountRequest) (*UnreadCountResponse, error) {
	n, err := s.msgs.UnreadCount(ctx, userIDFrom(ctx))
	if err != nil {
		return nil, s.toStatus("unread count", err)
	}
	return &UnreadCountResponse{Count: n}, nil
}

func (s *Server) Presence(ctx context.Context, req *PresenceRequest) (*PresenceResponse, error) {
	if len(req.UserIDs) == 0 {
		online := s.presence.OnlineUsers()
		out := make(map[string]bool, len(online))
		for _, id := range online {
			out[id] = true
		}
		return &PresenceResponse{Online: out}, nil
	}
	out := make(map[string]bool, len(req.UserIDs))
	for _, id := range req.UserIDs {
		out[id] = s.presence.Online(id)
	}
	return &PresenceResponse{Online: out}, nil
}

func (s *Server) toStatus(op string, err error) error {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, common.ErrorSelfTarget):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, common.ErrorNotFriends), errors.Is(err, common.ErrorForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		s.logger.Error().Err(err).Str("op", op).Msg("grpc call failed")
		return status.Errorf(codes.Internal, "failed to %s", op)
	}
}
