// Package config provides environment-driven configuration for killthenoise.
package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// OAuthApp holds the OAuth client credentials for one external provider.
type OAuthApp struct {
	ClientID     string
	ClientSecret Secret
	RedirectURI  string
}

// Configured reports whether the provider's OAuth app credentials are set.
func (a OAuthApp) Configured() bool {
	return a.ClientID != "" && a.ClientSecret.Value() != ""
}

// Config holds all application configuration values.
type Config struct {
	DatabaseURL Secret
	Port        string
	ListenHost  string
	CORSOrigins []string
	LogLevel    string

	HubSpot OAuthApp
	Jira    OAuthApp
	Slack   OAuthApp

	AIAPIKey Secret
	AIModel  string
	AIURL    string

	EncryptionProvider string
	EncryptionKey      Secret
	VaultAddr          string
	VaultToken         Secret

	SyncWorkers      int
	SchedulerEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        Secret(envOrDefault("DATABASE_URL", "")),
		Port:               envOrDefault("PORT", "8080"),
		ListenHost:         envOrDefault("LISTEN_HOST", "0.0.0.0"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		HubSpot:            loadOAuthApp("HUBSPOT"),
		Jira:               loadOAuthApp("JIRA"),
		Slack:              loadOAuthApp("SLACK"),
		AIAPIKey:           Secret(envOrDefault("AI_API_KEY", "")),
		AIModel:            envOrDefault("AI_MODEL", "claude-3-haiku-20240307"),
		AIURL:              envOrDefault("AI_URL", "https://api.anthropic.com"),
		EncryptionProvider: envOrDefault("ENCRYPTION_PROVIDER", "static"),
		EncryptionKey:      Secret(envOrDefault("ENCRYPTION_KEY", "")),
		VaultAddr:          envOrDefault("VAULT_ADDR", "http://127.0.0.1:8200"),
		VaultToken:         Secret(envOrDefault("VAULT_TOKEN", "")),
	}

	syncWorkers, err := strconv.Atoi(envOrDefault("SYNC_WORKERS", "4"))
	if err != nil || syncWorkers < 1 || syncWorkers > 16 {
		return nil, fmt.Errorf("SYNC_WORKERS must be an integer between 1 and 16")
	}
	cfg.SyncWorkers = syncWorkers

	schedulerEnabled, err := strconv.ParseBool(envOrDefault("SYNC_SCHEDULER_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("SYNC_SCHEDULER_ENABLED must be a boolean")
	}
	cfg.SchedulerEnabled = schedulerEnabled

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3000")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// AIEnabled reports whether AI-assisted analysis is configured.
func (c *Config) AIEnabled() bool {
	return c.AIAPIKey.Value() != ""
}

func loadOAuthApp(prefix string) OAuthApp {
	return OAuthApp{
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: Secret(os.Getenv(prefix + "_CLIENT_SECRET")),
		RedirectURI:  os.Getenv(prefix + "_REDIRECT_URI"),
	}
}

func (c *Config) validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateNetwork(); err != nil {
		return err
	}

	if err := c.validateCORS(); err != nil {
		return err
	}

	if err := c.validateProviders(); err != nil {
		return err
	}

	return c.validateEncryption()
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	dbHost := dbURL.Hostname()
	if dbHost != "localhost" && dbHost != "127.0.0.1" && dbHost != "::1" {
		if dbURL.Query().Get("sslmode") == "disable" {
			return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbHost)
		}
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid integer: %w", err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

// validateProviders checks that any partially configured OAuth app is complete.
// A provider with no credentials at all is fine; it just cannot be connected.
func (c *Config) validateProviders() error {
	for _, p := range []struct {
		name string
		app  OAuthApp
	}{
		{"HUBSPOT", c.HubSpot},
		{"JIRA", c.Jira},
		{"SLACK", c.Slack},
	} {
		set := 0
		if p.app.ClientID != "" {
			set++
		}
		if p.app.ClientSecret.Value() != "" {
			set++
		}
		if p.app.RedirectURI != "" {
			set++
		}

		if set != 0 && set != 3 {
			return fmt.Errorf("%s OAuth app is partially configured: set all of %s_CLIENT_ID, %s_CLIENT_SECRET and %s_REDIRECT_URI or none",
				p.name, p.name, p.name, p.name)
		}

		if p.app.RedirectURI != "" {
			u, err := url.Parse(p.app.RedirectURI)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("%s_REDIRECT_URI is not a valid URL", p.name)
			}
		}
	}

	return nil
}

func (c *Config) validateEncryption() error {
	switch c.EncryptionProvider {
	case "static":
		if c.EncryptionKey.Value() == "" {
			return fmt.Errorf("ENCRYPTION_KEY is required when ENCRYPTION_PROVIDER is static")
		}

		keyBytes, err := hex.DecodeString(c.EncryptionKey.Value())
		if err != nil {
			return fmt.Errorf("ENCRYPTION_KEY must be valid hex: %w", err)
		}

		if len(keyBytes) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (32 bytes), got %d chars", len(c.EncryptionKey.Value()))
		}
	case "vault":
		if c.VaultToken.Value() == "" {
			return fmt.Errorf("VAULT_TOKEN is required when ENCRYPTION_PROVIDER is vault")
		}

		if !isLocalhost(c.VaultAddr) && !strings.HasPrefix(c.VaultAddr, "https://") {
			return fmt.Errorf("VAULT_ADDR must use HTTPS for non-localhost connections")
		}
	default:
		return fmt.Errorf("ENCRYPTION_PROVIDER must be 'static' or 'vault', got %q", c.EncryptionProvider)
	}

	return nil
}

// isLocalhost returns true if the given address points to a loopback address.
func isLocalhost(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
