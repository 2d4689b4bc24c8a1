package api

import (
	"context"
	"fmt"
	"net/url"
)

// ConnectionToken requests a connection token.
func (c *Client) ConnectionToken(ctx context.Context) (*ConnectionTokenResponse, error) {
	var resp ConnectionTokenResponse
	if err := c.getJSON(ctx, "/token/connection", nil, &resp); err != nil {
		return nil, fmt.Errorf("get connection token: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("get connection token: empty token in response")
	}
	return &resp, nil
}

// ChannelToken requests a subscription token. An empty channel lets the issuer pick one.
func (c *Client) ChannelToken(ctx context.Context, channel string) (*ChannelTokenResponse, error) {
	var query url.Values
	if channel != "" {
		query = url.Values{"channel": []string{channel}}
	}

	var resp ChannelTokenResponse
	if err := c.getJSON(ctx, "/token/subscription", query, &resp); err != nil {
		return nil, fmt.Errorf("get channel token: %w", err)
	}
	if resp.Channel == "" {
		resp.Channel = channel
	}
	return &resp, nil
}
