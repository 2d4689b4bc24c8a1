package api

// ConnectionTokenResponse from GET /token/connection
type ConnectionTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix seconds
}

// ChannelTokenResponse from GET /token/subscription
type ChannelTokenResponse struct {
	Channel   string `json:"channel"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix seconds
}
