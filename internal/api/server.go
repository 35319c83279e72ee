// Package api is the REST surface: gin routes under /api, the WebSocket
// endpoint, health probes and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"socialhub/internal/auth"
	"socialhub/internal/friends"
	"socialhub/internal/log"
	"socialhub/internal/media"
	"socialhub/internal/messages"
	"socialhub/internal/metrics"
	"socialhub/internal/posts"
	"socialhub/internal/users"
	"socialhub/internal/websocket"
	"socialhub/pkg/database"
)

type Config struct {
	JWTSecret      []byte
	JWTExpiresIn   time.Duration
	AllowedOrigins []string
	AuthRateLimit  float64
	AuthRateBurst  int
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For
	// header is honoured. Empty means the peer address is the client.
	TrustedProxies []string
	// MediaDir is served under MediaBaseURL when media is stored locally.
	MediaDir     string
	MediaBaseURL string
}

type Deps struct {
	Store    database.Store
	Users    *users.Service
	Friends  *friends.Service
	Posts    *posts.Service
	Messages *messages.Service
	Uploader *media.Uploader
	Hub      *websocket.Hub
}

type Server struct {
	cfg     Config
	deps    Deps
	limiter *ipLimiter
	router  *gin.Engine
	logger  zerolog.Logger
}

func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newIPLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst),
		logger:  log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	if err := r.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		s.logger.Warn().Err(err).Msg("invalid trusted proxies, using the peer address")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), requestLogger(), cors(s.cfg.AllowedOrigins))

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", websocket.HandleWebSocket(s.deps.Hub, s.deps.Messages, s.cfg.JWTSecret,
		websocket.OriginChecker(s.cfg.AllowedOrigins)))
	if s.cfg.MediaDir != "" && s.cfg.MediaBaseURL != "" {
		r.Static(s.cfg.MediaBaseURL, s.cfg.MediaDir)
	}

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.limiter.middleware(), s.handleRegister)
	authGroup.POST("/login", s.limiter.middleware(), s.handleLogin)

	protected := api.Group("")
	protected.Use(auth.RequireJWT(s.cfg.JWTSecret))

	protected.GET("/auth/me", s.handleMe)

	protected.GET("/users/search", s.handleSearchUsers)
	protected.PUT("/users/me", s.handleUpdateProfile)
	protected.PUT("/users/me/avatar", s.handleUploadAvatar)
	protected.GET("/users/:id", s.handleGetUser)

	protected.GET("/friends", s.handleFriends)
	protected.POST("/friends/requests/:userId", s.handleSendFriendRequest)
	protected.POST("/friends/requests/:userId/accept", s.handleAcceptFriendRequest)
	protected.POST("/friends/requests/:userId/decline", s.handleDeclineFriendRequest)
	protected.DELETE("/friends/requests/:userId", s.handleCancelFriendRequest)
	protected.DELETE("/friends/:userId", s.handleUnfriend)

	protected.GET("/posts", s.handleFeed)
	protected.POST("/posts", s.handleCreatePost)
	protected.GET("/posts/user/:userId", s.handleUserPosts)
	protected.GET("/posts/:id", s.handleGetPost)
	protected.DELETE("/posts/:id", s.handleDeletePost)
	protected.POST("/posts/:id/like", s.handleToggleLike)
	protected.POST("/posts/:id/comments", s.handleAddComment)

	protected.GET("/messages/conversations", s.handleConversations)
	protected.GET("/messages/unread-count", s.handleUnreadCount)
	protected.GET("/messages/:userId", s.handleConversation)
	protected.POST("/messages/:userId", s.handleSendMessage)
	protected.PUT("/messages/:userId/read", s.handleMarkRead)
	protected.DELETE("/messages/:id", s.handleDeleteMessage)

	return r
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.sweep(time.Hour)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	respond(c, http.StatusOK, "", gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("readiness check failed")
		abort(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respond(c, http.StatusOK, "", gin.H{"status": "ready"})
}
