// Package token issues and redeems signed, expiring claim sets.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned for malformed, tampered, expired or mismatched tokens.
var ErrInvalid = errors.New("invalid token")

// Claims is the payload carried by a token.
type Claims map[string]any

// String returns the claim value as a string, or "" when absent or not a string.
func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Codec signs claims with a process-wide secret using HS256.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a codec for the given secret.
func NewCodec(secret []byte, opts ...Option) *Codec {
	c := &Codec{secret: secret, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Issue signs claims valid for ttl from now.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(now.Add(ttl))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Redeem verifies the signature and expiry and requires claim key to be present.
// Any failure collapses into ErrInvalid.
func (c *Codec) Redeem(tok, key string) (Claims, error) {
	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, mc, func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalid
	}
	v, ok := mc[key]
	if !ok || v == nil || v == "" {
		return nil, ErrInvalid
	}
	return Claims(mc), nil
}
