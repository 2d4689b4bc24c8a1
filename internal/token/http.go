package token

import (
	"context"

	"github.com/rickgao/wire/internal/api"
)

// HTTPProvider fetches channel tokens from a token issuer.
type HTTPProvider struct {
	client  *api.Client
	channel string
}

// NewHTTPProvider creates a provider for channel. An empty channel uses the caller's hint,
// and when that is empty too the issuer assigns one.
func NewHTTPProvider(client *api.Client, channel string) *HTTPProvider {
	return &HTTPProvider{client: client, channel: channel}
}

func (p *HTTPProvider) Token(ctx context.Context, channelHint string) (ChannelToken, error) {
	channel := p.channel
	if channel == "" {
		channel = channelHint
	}

	resp, err := p.client.ChannelToken(ctx, channel)
	if err != nil {
		return ChannelToken{}, err
	}
	return ChannelToken{Channel: resp.Channel, Token: resp.Token}, nil
}
