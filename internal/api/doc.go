// Package api is the HTTP client for a relay token issuer.
//
// Endpoints:
//   - GET /token/connection            connection token for the CONNECT handshake
//   - GET /token/subscription?channel= subscription token for one channel
//
// When the channel query is omitted the issuer assigns the channel and returns it
// alongside the token.
//
// 5xx and 429 answers are retried with jittered exponential backoff, honoring Retry-After.
// Error bodies of the form {"error": "..."} or {"message": "..."} surface as APIError.Message.
package api
