package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultCodec                  = "json"
	DefaultTokenMode              = TokenModeStatic
	DefaultPingInterval           = 25 * time.Second
	DefaultHandshakeTimeout       = 10 * time.Second
	DefaultCommandTimeout         = 10 * time.Second
	DefaultWriteTimeout           = 5 * time.Second
	DefaultReconnectBaseDelay     = 1 * time.Second
	DefaultReconnectMaxDelay      = 60 * time.Second
	DefaultReconnectMultiplier    = 2.0
	DefaultTokenVerificationDelay = 10 * time.Second
	DefaultJWTTTL                 = 1 * time.Hour
	DefaultTokenTimeout           = 10 * time.Second
	DefaultTokenMaxRetries        = 3
	DefaultDBPort                 = 5432
	DefaultDBSSLMode              = "prefer"
	DefaultMaxConns               = 10
	DefaultMinConns               = 2
	DefaultBatchSize              = 1000
	DefaultFlushInterval          = 1 * time.Second
	DefaultBufferSize             = 10000
	DefaultMetricsPort            = 9090
	DefaultMetricsPath            = "/metrics"
	DefaultLogLevel               = "info"
)

func (c *Config) applyDefaults() {
	// Client defaults
	if c.Client.Codec == "" {
		c.Client.Codec = DefaultCodec
	}

	// Connection defaults
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.CommandTimeout == 0 {
		c.Connection.CommandTimeout = DefaultCommandTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.ReconnectMultiplier == 0 {
		c.Connection.ReconnectMultiplier = DefaultReconnectMultiplier
	}
	if c.Connection.TokenVerificationDelay == 0 {
		c.Connection.TokenVerificationDelay = DefaultTokenVerificationDelay
	}

	// Token defaults
	if c.Token.Mode == "" {
		c.Token.Mode = DefaultTokenMode
	}
	if c.Token.JWT.TTL == 0 {
		c.Token.JWT.TTL = DefaultJWTTTL
	}
	if c.Token.HTTP.Timeout == 0 {
		c.Token.HTTP.Timeout = DefaultTokenTimeout
	}
	if c.Token.HTTP.MaxRetries == 0 {
		c.Token.HTTP.MaxRetries = DefaultTokenMaxRetries
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
