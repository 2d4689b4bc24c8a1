package token

import (
	"context"
	"errors"
)

// ErrNoChannel is returned when neither the provider nor the caller names a channel.
var ErrNoChannel = errors.New("no channel to issue a token for")

// ChannelToken pairs a channel with the token that authorizes subscribing to it.
type ChannelToken struct {
	Channel string
	Token   string
}

// Provider returns the channel and token for a subscription. channelHint is the channel
// the subscription already holds, or "" on the first request.
type Provider interface {
	Token(ctx context.Context, channelHint string) (ChannelToken, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, channelHint string) (ChannelToken, error)

func (f ProviderFunc) Token(ctx context.Context, channelHint string) (ChannelToken, error) {
	return f(ctx, channelHint)
}

// Static always returns the same channel and token.
type Static struct {
	ct ChannelToken
}

// NewStatic creates a static provider.
func NewStatic(channel, token string) Static {
	return Static{ct: ChannelToken{Channel: channel, Token: token}}
}

func (s Static) Token(ctx context.Context, _ string) (ChannelToken, error) {
	if err := ctx.Err(); err != nil {
		return ChannelToken{}, err
	}
	return s.ct, nil
}

func pickChannel(fixed, hint string) (string, error) {
	if fixed != "" {
		return fixed, nil
	}
	if hint != "" {
		return hint, nil
	}
	return "", ErrNoChannel
}
