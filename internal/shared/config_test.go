package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./tunescope.db" {
			t.Errorf("expected database path ./tunescope.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 5000 {
			t.Errorf("expected server port 5000, got %d", config.Server.Port)
		}

		if config.Server.Prefix != "/api" {
			t.Errorf("expected prefix /api, got %s", config.Server.Prefix)
		}

		if config.API.BaseURL != "http://localhost:5000/api" {
			t.Errorf("expected api base url http://localhost:5000/api, got %s", config.API.BaseURL)
		}

		if config.Credentials.Spotify.ClientID != "your_spotify_client_id" {
			t.Errorf("expected spotify client_id your_spotify_client_id, got %s", config.Credentials.Spotify.ClientID)
		}

		if config.API.Timeout() != 10*time.Second {
			t.Errorf("expected 10s timeout, got %v", config.API.Timeout())
		}

		if config.Analysis.CacheTTL() != 7*24*time.Hour {
			t.Errorf("expected 7 day cache ttl, got %v", config.Analysis.CacheTTL())
		}
	})

	t.Run("Duration Defaults", func(t *testing.T) {
		var config Config

		if config.API.Timeout() != 10*time.Second {
			t.Errorf("expected default timeout 10s, got %v", config.API.Timeout())
		}
		if config.Auth.SessionTTL() != 24*time.Hour {
			t.Errorf("expected default session ttl 24h, got %v", config.Auth.SessionTTL())
		}
		if config.Auth.RefreshWindow() != 168*time.Hour {
			t.Errorf("expected default refresh window 168h, got %v", config.Auth.RefreshWindow())
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected spotify client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}

		if config.Server.Prefix != "/api" {
			t.Errorf("expected missing keys to keep defaults, got prefix %q", config.Server.Prefix)
		}
	})

	t.Run("LoadConfig Invalid", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[server\nport ="), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}

		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("SaveConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Auth.JWTSecret = "saved-secret"

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}
		if loaded.Auth.JWTSecret != "saved-secret" {
			t.Errorf("expected saved secret, got %s", loaded.Auth.JWTSecret)
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "env-client")
		t.Setenv("JWT_SECRET_KEY", "env-secret")
		t.Setenv("FRONTEND_URL", "http://example.com")
		t.Setenv("SPOTIFY_MAX_RETRIES", "7")
		t.Setenv("SPOTIFY_RETRY_BACKOFF_MS", "not-a-number")

		config := DefaultConfig()
		config.ApplyEnv()

		if config.Credentials.Spotify.ClientID != "env-client" {
			t.Errorf("expected env client id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Auth.JWTSecret != "env-secret" {
			t.Errorf("expected env secret, got %s", config.Auth.JWTSecret)
		}
		if config.Server.FrontendURL != "http://example.com" {
			t.Errorf("expected env frontend url, got %s", config.Server.FrontendURL)
		}
		if config.Analysis.SpotifyMaxRetries != 7 {
			t.Errorf("expected 7 retries, got %d", config.Analysis.SpotifyMaxRetries)
		}
		if config.Analysis.SpotifyRetryBackoffMS != 500 {
			t.Errorf("expected invalid backoff to be ignored, got %d", config.Analysis.SpotifyRetryBackoffMS)
		}
	})

	t.Run("LoadDotEnv", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(envPath, []byte("TUNESCOPE_DOTENV_TEST=loaded\n"), 0644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Cleanup(func() { os.Unsetenv("TUNESCOPE_DOTENV_TEST") })

		if err := LoadDotEnv(envPath, filepath.Join(t.TempDir(), "missing.env")); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := os.Getenv("TUNESCOPE_DOTENV_TEST"); got != "loaded" {
			t.Errorf("expected loaded, got %q", got)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := DefaultConfig()
		config.Credentials.Spotify.ClientSecret = ""
		if err := config.Validate(); !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}

		config = DefaultConfig()
		config.Auth.JWTSecret = ""
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}

		if err := DefaultConfig().Validate(); err != nil {
			t.Errorf("expected default config to validate, got %v", err)
		}
	})

	t.Run("SpotifyConfig Map", func(t *testing.T) {
		m := SpotifyConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "uri"}.Map()
		if m["client_id"] != "id" || m["client_secret"] != "secret" || m["redirect_uri"] != "uri" {
			t.Errorf("unexpected map %v", m)
		}
	})
}
