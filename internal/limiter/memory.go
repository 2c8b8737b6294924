package limiter

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is an in-process Limiter for single-instance deployments.
type Memory struct {
	mu     sync.Mutex
	policy Policy
	state  map[string]*attempts
	swept  time.Time
	now    func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{policy: p, state: map[string]*attempts{}, now: time.Now}
}

func key(email string, ipHash []byte) string { return email + "\x00" + string(ipHash) }

// Allow implements Limiter.
func (l *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.state[key(email, ipHash)]
	if now := l.now(); ok && a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success implements Limiter.
func (l *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.state, key(email, ipHash))
	return nil
}

// Failure implements Limiter.
func (l *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)
	k := key(email, ipHash)
	a, ok := l.state[k]
	if !ok || now.Sub(a.updatedAt) > l.policy.Window {
		a = &attempts{}
		l.state[k] = a
	}
	a.fails++
	a.updatedAt = now
	if a.fails < l.policy.MaxFails {
		return false, 0, nil
	}
	a.blockedUntil = now.Add(l.policy.BlockFor)
	return true, l.policy.BlockFor, nil
}

// sweep drops expired entries at most once per window. Caller holds mu.
func (l *Memory) sweep(now time.Time) {
	if now.Sub(l.swept) < l.policy.Window {
		return
	}
	l.swept = now
	for k, a := range l.state {
		if now.Sub(a.updatedAt) > l.policy.Window && !a.blockedUntil.After(now) {
			delete(l.state, k)
		}
	}
}
