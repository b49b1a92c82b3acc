// Package config resolves the gateway's process configuration from flags
// and environment variables. There is no persisted state: every value is
// re-derived at startup (spec.md §1 Non-goals — the pool is volatile).
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds the gateway's process-wide settings.
type Config struct {
	Port             string
	UpstreamBaseURL  string
	RefreshURL       string
	CredentialCount  int
	CredentialRPS    float64
	LogLevel         string
	LogFormat        string
}

// Load resolves configuration from command-line flags, falling back to
// environment variables, then to hard-coded defaults. Flags take
// precedence when explicitly set.
func Load(args []string) *Config {
	fs := flag.NewFlagSet("geminigate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	port := fs.String("port", envOr("PORT", "8080"), "listening port")
	upstream := fs.String("upstream", envOr("UPSTREAM_BASE_URL", "http://localhost:9090"), "upstream base URL")
	refresh := fs.String("refresh-url", envOr("REFRESH_URL", ""), "credential refresh endpoint (defaults to <upstream>/oauth2/token)")
	credCount := fs.Int("credentials", envOrInt("CREDENTIAL_COUNT", 4), "size of the credential pool")
	credRPS := fs.Float64("credential-rps", envOrFloat("CREDENTIAL_RPS", 5), "per-credential outbound request rate limit")
	logLevel := fs.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
	logFormat := fs.String("log-format", envOr("LOG_FORMAT", "json"), "log format: json or text")

	_ = fs.Parse(args)

	cfg := &Config{
		Port:            *port,
		UpstreamBaseURL: *upstream,
		RefreshURL:      *refresh,
		CredentialCount: *credCount,
		CredentialRPS:   *credRPS,
		LogLevel:        *logLevel,
		LogFormat:       *logFormat,
	}
	if cfg.RefreshURL == "" {
		cfg.RefreshURL = cfg.UpstreamBaseURL + "/oauth2/token"
	}
	if cfg.CredentialCount <= 0 {
		cfg.CredentialCount = 4
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
