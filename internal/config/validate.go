package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Client.validate(); err != nil {
		return err
	}

	if c.Connection.ReconnectMultiplier < 1 {
		return fmt.Errorf("connection.reconnect_multiplier must be >= 1, got %v", c.Connection.ReconnectMultiplier)
	}
	if c.Connection.ReconnectBaseDelay > c.Connection.ReconnectMaxDelay {
		return fmt.Errorf("connection.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Connection.ReconnectBaseDelay, c.Connection.ReconnectMaxDelay)
	}
	if c.Connection.PingInterval < 0 {
		return errors.New("connection.ping_interval must be >= 0")
	}

	if err := c.Token.validate(); err != nil {
		return err
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

func (c *ClientConfig) validate() error {
	if c.URL == "" {
		return errors.New("client.url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("client.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("client.url must use ws or wss, got %q", u.Scheme)
	}
	if !slices.Contains([]string{"json", "msgpack"}, c.Codec) {
		return fmt.Errorf("client.codec must be json or msgpack, got %q", c.Codec)
	}
	for i, ch := range c.Channels {
		if ch == "" {
			return fmt.Errorf("client.channels[%d] is empty", i)
		}
	}
	return nil
}

func (t *TokenConfig) validate() error {
	switch t.Mode {
	case TokenModeStatic:
		if t.ChannelToken == "" {
			return errors.New("token.channel_token is required in static mode")
		}
	case TokenModeJWT:
		if t.JWT.Subject == "" {
			return errors.New("token.jwt.subject is required in jwt mode")
		}
		if t.JWT.Secret == "" && t.JWT.PrivateKeyPath == "" {
			return errors.New("token.jwt requires secret or private_key_path")
		}
	case TokenModeHTTP:
		if t.HTTP.URL == "" {
			return errors.New("token.http.url is required in http mode")
		}
		if t.HTTP.MaxRetries < 0 {
			return errors.New("token.http.max_retries must be >= 0")
		}
	default:
		return fmt.Errorf("token.mode must be static, jwt or http, got %q", t.Mode)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
