package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"socialhub/internal/auth"
	"socialhub/internal/friends"
	"socialhub/internal/messages"
	"socialhub/internal/users"
	"socialhub/pkg/database/databasetest"
)

var secret = []byte("grpc-test-secret")

type staticPresence map[string]bool

func (p staticPresence) Online(id string) bool { return p[id] }

func (p staticPresence) OnlineUsers() []string {
	var ids []string
	for id, on := range p {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

type env struct {
	client  *MessengerClient
	health  healthpb.HealthClient
	users   *users.Service
	friends *friends.Service
}

func newEnv(t *testing.T, presence staticPresence) *env {
	t.Helper()
	store := databasetest.New(t)
	us := users.NewService(store, users.WithHashCost(bcrypt.MinCost))
	fs := friends.NewService(store, us)
	ms := messages.NewService(store, us, fs, nil, nil)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer("bufnet", ms, presence, secret)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, lis)
	}()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		cc.Close()
		cancel()
		<-done
	})
	return &env{client: NewMessengerClient(cc), health: healthpb.NewHealthClient(cc), users: us, friends: fs}
}

func (e *env) user(t *testing.T, name string) (string, context.Context) {
	t.Helper()
	u, err := e.users.Register(context.Background(), users.RegisterInput{Username: name, Password: "secret1"})
	require.NoError(t, err)
	tok, err := auth.SignJWT(secret, u.ID, u.Username, time.Hour)
	require.NoError(t, err)
	return u.ID, metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func TestHealthIsOpen(t *testing.T) {
	e := newEnv(t, nil)
	resp, err := e.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestRequiresToken(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.client.UnreadCount(context.Background(), &UnreadCountRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer junk")
	_, err = e.client.UnreadCount(bad, &UnreadCountRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestSendAndList(t *testing.T) {
	e := newEnv(t, nil)
	a, actx := e.user(t, "alice")
	b, bctx := e.user(t, "bob")

	_, err := e.client.SendMessage(actx, &SendMessageRequest{ReceiverID: b, Content: "hi"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = e.friends.SendRequest(context.Background(), a, b)
	require.NoError(t, err)
	_, err = e.friends.Accept(context.Background(), b, a)
	require.NoError(t, err)

	_, err = e.client.SendMessage(actx, &SendMessageRequest{ReceiverID: b})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = e.client.SendMessage(actx, &SendMessageRequest{ReceiverID: "ghost", Content: "hi"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	sent, err := e.client.SendMessage(actx, &SendMessageRequest{ReceiverID: b, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, a, sent.Message.SenderID)
	assert.Equal(t, "alice", sent.Message.Sender.Username)

	unread, err := e.client.UnreadCount(bctx, &UnreadCountRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, unread.Count)

	convs, err := e.client.ListConversations(bctx, &ListConversationsRequest{})
	require.NoError(t, err)
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, a, convs.Conversations[0].User.ID)
	assert.Equal(t, sent.Message.ID, convs.Conversations[0].LastMessage.ID)
	assert.Equal(t, 1, convs.Conversations[0].UnreadCount)
}

func TestPresence(t *testing.T) {
	e := newEnv(t, staticPresence{"u1": true})
	_, ctx := e.user(t, "alice")

	resp, err := e.client.Presence(ctx, &PresenceRequest{UserIDs: []string{"u1", "u2"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"u1": true, "u2": false}, resp.Online)

	all, err := e.client.Presence(ctx, &PresenceRequest{})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"u1": true}, all.Online)
}
