// Package token supplies the channel name and subscription token a Subscription presents
// to the relay.
//
// Providers:
//   - Static: a fixed channel/token pair
//   - JWTProvider: tokens minted locally from auth.Credentials
//   - HTTPProvider: tokens fetched from a token issuer through api.Client
package token
