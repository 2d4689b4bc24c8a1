package token

import (
	"context"
	"fmt"

	"github.com/rickgao/wire/internal/auth"
)

// JWTProvider mints a fresh channel token on every request.
type JWTProvider struct {
	creds   *auth.Credentials
	channel string
}

// NewJWTProvider creates a provider for channel. An empty channel uses the caller's hint.
func NewJWTProvider(creds *auth.Credentials, channel string) *JWTProvider {
	return &JWTProvider{creds: creds, channel: channel}
}

func (p *JWTProvider) Token(ctx context.Context, channelHint string) (ChannelToken, error) {
	if err := ctx.Err(); err != nil {
		return ChannelToken{}, err
	}

	channel, err := pickChannel(p.channel, channelHint)
	if err != nil {
		return ChannelToken{}, err
	}

	tok, err := p.creds.SignChannelToken(channel)
	if err != nil {
		return ChannelToken{}, fmt.Errorf("mint token for %s: %w", channel, err)
	}
	return ChannelToken{Channel: channel, Token: tok}, nil
}
