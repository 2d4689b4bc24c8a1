package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/wire/internal/api"
	"github.com/rickgao/wire/internal/auth"
	"github.com/rickgao/wire/internal/config"
	"github.com/rickgao/wire/internal/token"
)

// tokenSource issues connection and channel tokens for the configured token mode.
type tokenSource struct {
	// connection is nil in static mode, where ClientConfig.Token is sent as is.
	connection func(ctx context.Context) (string, error)
	channel    func(channel string) token.Provider
}

func newTokenSource(cfg config.TokenConfig, logger *slog.Logger) (*tokenSource, error) {
	switch cfg.Mode {
	case config.TokenModeStatic, "":
		return &tokenSource{
			channel: func(channel string) token.Provider {
				return token.NewStatic(channel, cfg.ChannelToken)
			},
		}, nil

	case config.TokenModeJWT:
		creds, err := auth.LoadCredentials(cfg.JWT.Issuer, cfg.JWT.Subject, cfg.JWT.Secret, cfg.JWT.PrivateKeyPath, cfg.JWT.TTL)
		if err != nil {
			return nil, fmt.Errorf("load jwt credentials: %w", err)
		}
		return &tokenSource{
			connection: func(context.Context) (string, error) {
				return creds.SignConnectionToken()
			},
			channel: func(channel string) token.Provider {
				return token.NewJWTProvider(creds, channel)
			},
		}, nil

	case config.TokenModeHTTP:
		client := api.NewClient(
			cfg.HTTP.URL,
			cfg.HTTP.APIKey,
			api.WithLogger(logger),
			api.WithTimeout(cfg.HTTP.Timeout),
			api.WithRetries(cfg.HTTP.MaxRetries, time.Second),
		)
		return &tokenSource{
			connection: func(ctx context.Context) (string, error) {
				resp, err := client.ConnectionToken(ctx)
				if err != nil {
					return "", err
				}
				return resp.Token, nil
			},
			channel: func(channel string) token.Provider {
				return token.NewHTTPProvider(client, channel)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown token mode %q", cfg.Mode)
	}
}
