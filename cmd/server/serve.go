package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"socialhub/internal/api"
	"socialhub/internal/config"
	"socialhub/internal/friends"
	"socialhub/internal/grpc"
	"socialhub/internal/log"
	"socialhub/internal/media"
	"socialhub/internal/messages"
	"socialhub/internal/posts"
	"socialhub/internal/seed"
	"socialhub/internal/users"
	"socialhub/internal/websocket"
	"socialhub/pkg/database"
)

// app is the wired service graph shared by serve and seed.
type app struct {
	store    database.Store
	storage  media.Storage
	uploader *media.Uploader
	users    *users.Service
	friends  *friends.Service
	posts    *posts.Service
	messages *messages.Service
	hub      *websocket.Hub
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{store: store, storage: storage}
	a.uploader = media.NewUploader(storage, media.DefaultLimits())
	a.users = users.NewService(store)
	a.friends = friends.NewService(store, a.users)
	a.posts = posts.NewService(store, a.users, a.friends, a.uploader)
	a.hub = websocket.NewHub(a.users)
	a.messages = messages.NewService(store, a.users, a.friends, a.hub, a.uploader)
	return a, nil
}

func newStorage(ctx context.Context, cfg *config.Config) (media.Storage, error) {
	switch strings.ToLower(cfg.MediaDriver) {
	case "", "local":
		return media.NewLocal(cfg.MediaDir, cfg.MediaBaseURL)
	case "s3":
		return media.NewS3(ctx, media.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return nil, fmt.Errorf("unknown media driver %q", cfg.MediaDriver)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.store.Close()

	gin.SetMode(gin.ReleaseMode)
	apiCfg := api.Config{
		JWTSecret:      []byte(cfg.JWTSecret),
		JWTExpiresIn:   cfg.JWTExpiresIn,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateBurst:  cfg.AuthRateBurst,
		TrustedProxies: cfg.TrustedProxies,
	}
	if _, local := a.storage.(*media.Local); local {
		apiCfg.MediaDir = cfg.MediaDir
		apiCfg.MediaBaseURL = cfg.MediaBaseURL
	}
	httpServer := api.NewServer(apiCfg, api.Deps{
		Store:    a.store,
		Users:    a.users,
		Friends:  a.friends,
		Posts:    a.posts,
		Messages: a.messages,
		Uploader: a.uploader,
		Hub:      a.hub,
	})
	grpcServer := grpc.NewServer(cfg.GRPCAddr, a.messages, a.hub, []byte(cfg.JWTSecret))

	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(ctx)
		close(hubDone)
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- grpcServer.Run(ctx) }()
	go func() { errCh <- httpServer.Run(ctx, cfg.HTTPAddr) }()

	log.Logger.Info().
		Str("version", Version).
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Str("db", cfg.DBDriver).
		Str("media", cfg.MediaDriver).
		Msg("socialhub started")

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	<-hubDone
	log.Info("socialhub stopped")
	return firstErr
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	file, _ := cmd.Flags().GetString("file")
	data, err := seed.Load(file)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.store.Close()

	s := &seed.Seeder{Users: a.users, Friends: a.friends, Posts: a.posts, Messages: a.messages}
	res, err := s.Apply(ctx, data)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d users, %d friendships, %d posts, %d messages from %s\n",
		res.Users, res.Friendships, res.Posts, res.Messages, file)
	return nil
}
