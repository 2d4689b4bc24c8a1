package config

import "time"

// Config is the root configuration for a relay client process.
type Config struct {
	Client     ClientConfig     `yaml:"client"`
	Connection ConnectionConfig `yaml:"connection"`
	Token      TokenConfig      `yaml:"token"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// ClientConfig identifies the relay and the channels to follow.
type ClientConfig struct {
	URL      string   `yaml:"url"      env:"WIRE_URL"`
	Token    string   `yaml:"token"    env:"WIRE_TOKEN"` // Connection token sent in CONNECT
	Name     string   `yaml:"name"`
	Codec    string   `yaml:"codec"    env:"WIRE_CODEC"` // json or msgpack
	Direct   bool     `yaml:"direct"`
	Channels []string `yaml:"channels" env:"WIRE_CHANNELS" envSeparator:","`
}

// ConnectionConfig holds transport and controller timing.
type ConnectionConfig struct {
	PingInterval           time.Duration `yaml:"ping_interval"`
	HandshakeTimeout       time.Duration `yaml:"handshake_timeout"`
	CommandTimeout         time.Duration `yaml:"command_timeout"`
	WriteTimeout           time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay     time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay      time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMultiplier    float64       `yaml:"reconnect_multiplier"`
	TokenVerificationDelay time.Duration `yaml:"token_verification_delay"`
}

// Token modes.
const (
	TokenModeStatic = "static"
	TokenModeJWT    = "jwt"
	TokenModeHTTP   = "http"
)

// TokenConfig selects how channel subscription tokens are obtained.
type TokenConfig struct {
	Mode string `yaml:"mode" env:"WIRE_TOKEN_MODE"`

	// static
	ChannelToken string `yaml:"channel_token" env:"WIRE_CHANNEL_TOKEN"`

	JWT  JWTConfig       `yaml:"jwt"`
	HTTP TokenHTTPConfig `yaml:"http"`
}

// JWTConfig holds self-issued token settings.
type JWTConfig struct {
	Issuer         string        `yaml:"issuer"`
	Subject        string        `yaml:"subject"`
	Secret         string        `yaml:"secret"           env:"WIRE_JWT_SECRET"`
	PrivateKeyPath string        `yaml:"private_key_path"` // Path to RSA private key PEM file
	TTL            time.Duration `yaml:"ttl"`
}

// TokenHTTPConfig holds token issuer service settings.
type TokenHTTPConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key" env:"WIRE_TOKEN_API_KEY"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ArchiveConfig holds the publication archive pipeline settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password" env:"WIRE_DB_PASSWORD"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port" env:"WIRE_METRICS_PORT"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"WIRE_LOG_LEVEL"`
}
