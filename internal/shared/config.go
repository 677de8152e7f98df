package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API         APIConfig         `toml:"api"`
	Credentials CredentialsConfig `toml:"credentials"`
	Auth        AuthConfig        `toml:"auth"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Analysis    AnalysisConfig    `toml:"analysis"`
}

// APIConfig contains settings used by the CLI when talking to the backend.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CallbackPort   int    `toml:"callback_port"`
}

// Timeout returns the per-request timeout, defaulting to 10 seconds.
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Map returns the credentials in the key format accepted by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// AuthConfig contains session token settings for the backend.
type AuthConfig struct {
	JWTSecret          string `toml:"jwt_secret"`
	SessionTTLHours    int    `toml:"session_ttl_hours"`
	RefreshWindowHours int    `toml:"refresh_window_hours"`
}

// SessionTTL is the lifetime of an issued session token.
func (a AuthConfig) SessionTTL() time.Duration {
	if a.SessionTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.SessionTTLHours) * time.Hour
}

// RefreshWindow is how long after issue an expired session token may still be refreshed.
func (a AuthConfig) RefreshWindow() time.Duration {
	if a.RefreshWindowHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(a.RefreshWindowHours) * time.Hour
}

// DatabaseConfig contains database connection settings.
//
// Path is the backend database; ClientPath holds the CLI's persisted tokens.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	ClientPath   string `toml:"client_path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	Prefix      string `toml:"prefix"`
	FrontendURL string `toml:"frontend_url"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AnalysisConfig tunes the playlist analytics engine and its Spotify usage.
type AnalysisConfig struct {
	CacheTTLHours            int     `toml:"cache_ttl_hours"`
	SampleSize               int     `toml:"sample_size"`
	MaxGenreClusters         int     `toml:"max_genre_clusters"`
	MaxMLClusters            int     `toml:"max_ml_clusters"`
	SpotifyRequestsPerSecond float64 `toml:"spotify_requests_per_second"`
	SpotifyMaxRetries        int     `toml:"spotify_max_retries"`
	SpotifyRetryBackoffMS    int     `toml:"spotify_retry_backoff_ms"`
}

// CacheTTL is the maximum age of a cached advanced analysis.
func (a AnalysisConfig) CacheTTL() time.Duration {
	if a.CacheTTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(a.CacheTTLHours) * time.Hour
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the configuration to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files into the process environment.
//
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values with environment variables when they are set.
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	setString("SPOTIFY_CLIENT_ID", &c.Credentials.Spotify.ClientID)
	setString("SPOTIFY_CLIENT_SECRET", &c.Credentials.Spotify.ClientSecret)
	setString("SPOTIFY_REDIRECT_URI", &c.Credentials.Spotify.RedirectURI)
	setString("JWT_SECRET_KEY", &c.Auth.JWTSecret)
	setString("FRONTEND_URL", &c.Server.FrontendURL)
	setString("DATABASE_PATH", &c.Database.Path)
	setString("TUNESCOPE_API_URL", &c.API.BaseURL)
	setInt("SPOTIFY_MAX_RETRIES", &c.Analysis.SpotifyMaxRetries)
	setInt("SPOTIFY_RETRY_BACKOFF_MS", &c.Analysis.SpotifyRetryBackoffMS)
}

// Validate checks the settings the backend cannot run without.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret are required", ErrMissingCredentials)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: auth.jwt_secret is required", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("%w: server.port must be positive", ErrInvalidConfig)
	}
	return nil
}
