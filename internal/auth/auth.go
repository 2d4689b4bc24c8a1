// Package auth mints and verifies relay JWTs for connections and channel subscriptions.
package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token lifetime when Credentials.TTL is zero.
const DefaultTTL = time.Hour

// ErrNoSigningKey is returned when neither a secret nor a private key is configured.
var ErrNoSigningKey = errors.New("no signing key configured")

// Credentials signs relay tokens with either an HMAC secret (HS256) or an RSA key (RS256).
type Credentials struct {
	Issuer     string          // iss claim
	Subject    string          // sub claim, the relay user id
	Secret     []byte          // HS256 secret
	PrivateKey *rsa.PrivateKey // RS256 key, preferred over Secret
	TTL        time.Duration

	now func() time.Time
}

// Claims are the relay token claims. Channel is empty for connection tokens.
type Claims struct {
	jwt.RegisteredClaims
	Channel string `json:"channel,omitempty"`
}

// LoadCredentials builds credentials from a secret or a PEM private key path.
func LoadCredentials(issuer, subject, secret, privateKeyPath string, ttl time.Duration) (*Credentials, error) {
	if subject == "" {
		return nil, fmt.Errorf("token subject is required")
	}

	creds := &Credentials{
		Issuer:  issuer,
		Subject: subject,
		TTL:     ttl,
	}

	switch {
	case privateKeyPath != "":
		key, err := LoadPrivateKey(privateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		creds.PrivateKey = key
	case secret != "":
		creds.Secret = []byte(secret)
	default:
		return nil, ErrNoSigningKey
	}

	return creds, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes a PKCS#8 or PKCS#1 PEM block.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// Try PKCS#8 first (newer format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}

// SignConnectionToken mints the token sent with the CONNECT handshake.
func (c *Credentials) SignConnectionToken() (string, error) {
	return c.sign("")
}

// SignChannelToken mints a subscription token bound to channel.
func (c *Credentials) SignChannelToken(channel string) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("channel is required")
	}
	return c.sign(channel)
}

func (c *Credentials) sign(channel string) (string, error) {
	now := c.clock()
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Channel: channel,
	}

	var (
		token *jwt.Token
		key   any
	)
	switch {
	case c.PrivateKey != nil:
		token = jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		key = c.PrivateKey
	case len(c.Secret) > 0:
		token = jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		key = c.Secret
	default:
		return "", ErrNoSigningKey
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token minted by these credentials and returns its claims.
func (c *Credentials) Verify(tokenString string) (*Claims, error) {
	var claims Claims
	opts := []jwt.ParserOption{jwt.WithTimeFunc(c.clock)}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA:
			if c.PrivateKey == nil {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return &c.PrivateKey.PublicKey, nil
		case *jwt.SigningMethodHMAC:
			if len(c.Secret) == 0 {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return c.Secret, nil
		default:
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return &claims, nil
}

func (c *Credentials) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
