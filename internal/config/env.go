package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv loads .env (variables already set win) and then reads the
// environment.
func parseEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("GRPC_ADDR", &cfg.GRPCAddr)
	str("DB_DRIVER", &cfg.DBDriver)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("MONGO_DATABASE", &cfg.MongoDatabase)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("MEDIA_DRIVER", &cfg.MediaDriver)
	str("MEDIA_DIR", &cfg.MediaDir)
	str("MEDIA_BASE_URL", &cfg.MediaBaseURL)
	str("S3_ENDPOINT", &cfg.S3Endpoint)
	str("S3_REGION", &cfg.S3Region)
	str("S3_BUCKET", &cfg.S3Bucket)
	str("S3_ACCESS_KEY", &cfg.S3AccessKey)
	str("S3_SECRET_KEY", &cfg.S3SecretKey)
	str("S3_PUBLIC_URL", &cfg.S3PublicURL)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v, ok := os.LookupEnv("CLIENT_URL"); ok {
		cfg.AllowedOrigins = SplitList(v)
	}
	if v, ok := os.LookupEnv("TRUSTED_PROXIES"); ok {
		cfg.TrustedProxies = SplitList(v)
	}
	if v, ok := os.LookupEnv("JWT_EXPIRES_IN"); ok {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWT_EXPIRES_IN: %w", err)
		}
		cfg.JWTExpiresIn = d
	}
	if v, ok := os.LookupEnv("LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_JSON: %w", err)
		}
		cfg.LogJSON = b
	}
	if v, ok := os.LookupEnv("AUTH_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AUTH_RATE_LIMIT: %w", err)
		}
		cfg.AuthRateLimit = f
	}
	if v, ok := os.LookupEnv("AUTH_RATE_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTH_RATE_BURST: %w", err)
		}
		cfg.AuthRateBurst = n
	}
	return nil
}

// ParseDuration accepts Go durations plus a day suffix ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// SplitList splits a comma-separated list and drops empty items.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
