// Package config handles configuration for the server: defaults, an
// optional YAML file, a .env file and environment variables, applied in
// that order. Command-line flags are bound on top by cmd/server.
package config

import (
	"time"
)

// Config holds runtime settings for the SocialHub server.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	// DBDriver is one of sqlite, bolt, postgres, mongo.
	DBDriver      string `yaml:"db_driver"`
	DatabaseURL   string `yaml:"database_url"`
	MongoDatabase string `yaml:"mongo_database"`

	JWTSecret    string        `yaml:"jwt_secret"`
	JWTExpiresIn time.Duration `yaml:"jwt_expires_in"`

	// AllowedOrigins lists the client origins accepted by CORS and the
	// WebSocket upgrader. "*" accepts any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MediaDriver is local or s3.
	MediaDriver  string `yaml:"media_driver"`
	MediaDir     string `yaml:"media_dir"`
	MediaBaseURL string `yaml:"media_base_url"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	S3Region     string `yaml:"s3_region"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3AccessKey  string `yaml:"s3_access_key"`
	S3SecretKey  string `yaml:"s3_secret_key"`
	S3PublicURL  string `yaml:"s3_public_url"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// AuthRateLimit is the sustained requests per second allowed per client
	// IP on register/login, AuthRateBurst the bucket size.
	AuthRateLimit float64 `yaml:"auth_rate_limit"`
	AuthRateBurst int     `yaml:"auth_rate_burst"`

	// TrustedProxies lists the reverse proxies (IPs or CIDRs) allowed to
	// set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// LoadDefaults populates Config with development defaults.
// NOTE: the JWT secret must be overridden in production.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.DBDriver = "sqlite"
	c.DatabaseURL = "./data/socialhub.db"
	c.MongoDatabase = "socialhub"
	c.JWTSecret = "dev-secret-change-me"
	c.JWTExpiresIn = 7 * 24 * time.Hour
	c.AllowedOrigins = []string{"http://localhost:5173"}
	c.MediaDriver = "local"
	c.MediaDir = "./data/media"
	c.MediaBaseURL = "/media"
	c.S3Region = "us-east-1"
	c.S3Bucket = "socialhub"
	c.LogLevel = "info"
	c.AuthRateLimit = 1
	c.AuthRateBurst = 10
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), a .env file in the working directory and the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path != "" {
		if err := parseYAML(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
