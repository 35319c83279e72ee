package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so a developer's .env does not leak in.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, "local", cfg.MediaDriver)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "socialhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
db_driver: bolt
database_url: /tmp/x.bolt
jwt_expires_in: 2h
allowed_origins: ["https://a.example", "https://b.example"]
trusted_proxies: ["10.0.0.0/8"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "bolt", cfg.DBDriver)
	assert.Equal(t, "/tmp/x.bolt", cfg.DatabaseURL)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiresIn)
	assert.Len(t, cfg.AllowedOrigins, 2)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.TrustedProxies)
	// untouched keys keep defaults
	assert.Equal(t, ":50051", cfg.GRPCAddr)
}

func TestLoad_EnvWinsOverYAML(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "socialhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":9000\"\n"), 0o600))

	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("JWT_EXPIRES_IN", "3d")
	t.Setenv("CLIENT_URL", "https://one.example, https://two.example,")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("AUTH_RATE_BURST", "3")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 172.16.0.0/12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, 72*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, []string{"https://one.example", "https://two.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 3, cfg.AuthRateBurst)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.TrustedProxies)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("S3_BUCKET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("S3_BUCKET") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.S3Bucket)
}

func TestLoad_BadValues(t *testing.T) {
	chdir(t)

	t.Setenv("JWT_EXPIRES_IN", "soon")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	chdir(t)
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "90m", want: 90 * time.Minute},
		{in: "1d", want: 24 * time.Hour},
		{in: " 2d ", want: 48 * time.Hour},
		{in: "xd", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
