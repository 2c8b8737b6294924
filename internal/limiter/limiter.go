// Package limiter throttles repeated failed password logins.
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"time"
)

// Limiter tracks failed logins per (email, client) pair and applies temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may proceed and, if not, when to retry.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets the counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it triggered a lockout.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Policy configures a limiter: MaxFails failures within Window block for BlockFor.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows five failures per quarter hour.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}

// HashIP hashes the host part of a remote address so raw addresses are not stored.
func HashIP(remoteAddr string) []byte {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	h := sha256.Sum256([]byte(host))
	return h[:]
}
