package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"socialhub/internal/config"
	"socialhub/internal/log"
	"socialhub/pkg/database"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "socialhub",
	Short: "SocialHub - social network backend",
	Long: `SocialHub serves the REST API, the realtime WebSocket channel and the
internal gRPC Messenger API for a small social network: profiles,
friends, posts and direct messages.

Running without a subcommand is the same as "socialhub serve".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and gRPC servers",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info(fmt.Sprintf("migrations applied (%s)", cfg.DBDriver))
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo users, friendships, posts and messages from JSON",
	RunE:  runSeed,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"SocialHub version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flags.String("grpc-addr", "", "gRPC listen address (overrides GRPC_ADDR)")
	flags.String("db-driver", "", "Database driver: sqlite, bolt, postgres or mongo")
	flags.String("database-url", "", "Database path, DSN or URI")
	flags.String("log-level", "", "Log level: debug, info, warn, error")

	seedCmd.Flags().String("file", "./data/seed.json", "Seed data file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

// loadConfig reads the config file and environment, applies flag overrides
// and initialises logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	overrides := map[string]*string{
		"http-addr":    &cfg.HTTPAddr,
		"grpc-addr":    &cfg.GRPCAddr,
		"db-driver":    &cfg.DBDriver,
		"database-url": &cfg.DatabaseURL,
		"log-level":    &cfg.LogLevel,
	}
	for name, dst := range overrides {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore opens the configured document store and migrates it.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	store, err := database.Open(ctx, database.Options{
		Driver:        cfg.DBDriver,
		URL:           cfg.DatabaseURL,
		MongoDatabase: cfg.MongoDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
