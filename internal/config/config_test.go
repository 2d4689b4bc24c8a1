package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
client:
  url: wss://relay.example.com/connection/websocket
  token: conn-token
  codec: msgpack
  channels: [lobby, arena]
connection:
  ping_interval: 20s
token:
  mode: jwt
  jwt:
    subject: archiver
    secret: s3cret
archive:
  enabled: true
  database:
    host: localhost
    port: 5432
    name: wire
    user: wire
    password: wirepass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Client.URL != "wss://relay.example.com/connection/websocket" {
		t.Errorf("Client.URL = %q", cfg.Client.URL)
	}
	if cfg.Client.Codec != "msgpack" {
		t.Errorf("Client.Codec = %q, want %q", cfg.Client.Codec, "msgpack")
	}
	if len(cfg.Client.Channels) != 2 || cfg.Client.Channels[1] != "arena" {
		t.Errorf("Client.Channels = %v", cfg.Client.Channels)
	}
	if cfg.Connection.PingInterval != 20*time.Second {
		t.Errorf("Connection.PingInterval = %v, want 20s", cfg.Connection.PingInterval)
	}
	if cfg.Token.JWT.Subject != "archiver" {
		t.Errorf("Token.JWT.Subject = %q, want %q", cfg.Token.JWT.Subject, "archiver")
	}
	if !cfg.Archive.Enabled || cfg.Archive.Database.Host != "localhost" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
client:
  url: ws://localhost:8000/connection/websocket
archive:
  database:
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Archive.Database.Password != "secret123" {
		t.Errorf("Archive.Database.Password = %q, want %q", cfg.Archive.Database.Password, "secret123")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("WIRE_URL", "wss://override.example.com/ws")
	t.Setenv("WIRE_TOKEN", "env-token")
	t.Setenv("WIRE_CHANNELS", "news,sports")
	t.Setenv("WIRE_LOG_LEVEL", "debug")

	yaml := `
client:
  url: ws://localhost:8000/connection/websocket
  token: file-token
  name: from-file
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Client.URL != "wss://override.example.com/ws" {
		t.Errorf("Client.URL = %q, want env override", cfg.Client.URL)
	}
	if cfg.Client.Token != "env-token" {
		t.Errorf("Client.Token = %q, want %q", cfg.Client.Token, "env-token")
	}
	if cfg.Client.Name != "from-file" {
		t.Errorf("Client.Name = %q, fields without env vars must keep file values", cfg.Client.Name)
	}
	if len(cfg.Client.Channels) != 2 || cfg.Client.Channels[0] != "news" {
		t.Errorf("Client.Channels = %v, want [news sports]", cfg.Client.Channels)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
client:
  url: ws://localhost:8000/connection/websocket
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Client.Codec != DefaultCodec {
		t.Errorf("Client.Codec = %q, want default %q", cfg.Client.Codec, DefaultCodec)
	}
	if cfg.Connection.PingInterval != DefaultPingInterval {
		t.Errorf("Connection.PingInterval = %v, want default %v", cfg.Connection.PingInterval, DefaultPingInterval)
	}
	if cfg.Connection.TokenVerificationDelay != DefaultTokenVerificationDelay {
		t.Errorf("Connection.TokenVerificationDelay = %v, want default %v",
			cfg.Connection.TokenVerificationDelay, DefaultTokenVerificationDelay)
	}
	if cfg.Connection.ReconnectMultiplier != DefaultReconnectMultiplier {
		t.Errorf("Connection.ReconnectMultiplier = %v, want default %v",
			cfg.Connection.ReconnectMultiplier, DefaultReconnectMultiplier)
	}
	if cfg.Token.Mode != DefaultTokenMode {
		t.Errorf("Token.Mode = %q, want default %q", cfg.Token.Mode, DefaultTokenMode)
	}
	if cfg.Archive.Database.Port != DefaultDBPort {
		t.Errorf("Archive.Database.Port = %d, want default %d", cfg.Archive.Database.Port, DefaultDBPort)
	}
	if cfg.Archive.BatchSize != DefaultBatchSize {
		t.Errorf("Archive.BatchSize = %d, want default %d", cfg.Archive.BatchSize, DefaultBatchSize)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func validConfig() Config {
	cfg := Config{
		Client: ClientConfig{URL: "wss://relay.example.com/ws", Channels: []string{"lobby"}},
		Token:  TokenConfig{ChannelToken: "tok"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing url",
			mutate:  func(c *Config) { c.Client.URL = "" },
			wantErr: "client.url is required",
		},
		{
			name:    "http url",
			mutate:  func(c *Config) { c.Client.URL = "https://relay.example.com" },
			wantErr: `client.url must use ws or wss, got "https"`,
		},
		{
			name:    "unknown codec",
			mutate:  func(c *Config) { c.Client.Codec = "protobuf" },
			wantErr: `client.codec must be json or msgpack, got "protobuf"`,
		},
		{
			name:    "empty channel",
			mutate:  func(c *Config) { c.Client.Channels = []string{"lobby", ""} },
			wantErr: "client.channels[1] is empty",
		},
		{
			name:    "bad multiplier",
			mutate:  func(c *Config) { c.Connection.ReconnectMultiplier = 0.5 },
			wantErr: "connection.reconnect_multiplier must be >= 1, got 0.5",
		},
		{
			name: "base exceeds max",
			mutate: func(c *Config) {
				c.Connection.ReconnectBaseDelay = time.Minute
				c.Connection.ReconnectMaxDelay = time.Second
			},
			wantErr: "connection.reconnect_base_delay (1m0s) cannot exceed reconnect_max_delay (1s)",
		},
		{
			name:    "static without token",
			mutate:  func(c *Config) { c.Token.ChannelToken = "" },
			wantErr: "token.channel_token is required in static mode",
		},
		{
			name: "jwt without key",
			mutate: func(c *Config) {
				c.Token.Mode = TokenModeJWT
				c.Token.JWT.Subject = "svc"
			},
			wantErr: "token.jwt requires secret or private_key_path",
		},
		{
			name:    "http without url",
			mutate:  func(c *Config) { c.Token.Mode = TokenModeHTTP },
			wantErr: "token.http.url is required in http mode",
		},
		{
			name:    "unknown token mode",
			mutate:  func(c *Config) { c.Token.Mode = "oauth" },
			wantErr: `token.mode must be static, jwt or http, got "oauth"`,
		},
		{
			name:    "archive missing host",
			mutate:  func(c *Config) { c.Archive.Enabled = true },
			wantErr: "archive.database.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "archive.database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := LogConfig{Level: tt.level}.SlogLevel()
			if (err != nil) != tt.wantErr {
				t.Fatalf("SlogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("WIRE_TOKEN", "conn")
	t.Setenv("WIRE_CHANNEL_TOKEN", "sub")
	t.Setenv("WIRE_DB_PASSWORD", "dbpass")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "archiver.example.yaml"))
	if err != nil {
		t.Fatalf("example config does not validate: %v", err)
	}
	if cfg.Client.Token != "conn" || cfg.Token.ChannelToken != "sub" {
		t.Errorf("tokens not expanded: client=%q channel=%q", cfg.Client.Token, cfg.Token.ChannelToken)
	}
	if cfg.Archive.Database.Password != "dbpass" {
		t.Errorf("Archive.Database.Password = %q, want dbpass", cfg.Archive.Database.Password)
	}
}
