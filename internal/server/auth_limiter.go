package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	authMaxFailures   = 10
	authFailureWindow = 5 * time.Minute
	authBlockDuration = 5 * time.Minute
	authSweepEvery    = 64
)

// authFailureLimiter blocks a client address after repeated bad tokens.
type authFailureLimiter struct {
	mu          sync.Mutex
	clients     map[string]authFailures
	maxFailures int
	window      time.Duration
	blockFor    time.Duration
	ops         int
}

type authFailures struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

func newAuthFailureLimiter(maxFailures int, window, blockFor time.Duration) *authFailureLimiter {
	if maxFailures <= 0 || window <= 0 || blockFor <= 0 {
		return nil
	}
	return &authFailureLimiter{
		clients:     make(map[string]authFailures),
		maxFailures: maxFailures,
		window:      window,
		blockFor:    blockFor,
	}
}

// Blocked reports whether key is currently locked out.
func (l *authFailureLimiter) Blocked(key string, now time.Time) bool {
	if l == nil || key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[key]
	if !ok {
		return false
	}
	entry.lastSeen = now
	l.clients[key] = entry
	return now.Before(entry.blockedUntil)
}

// Fail counts one bad credential for key.
func (l *authFailureLimiter) Fail(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.clients[key]
	if entry.windowStart.IsZero() || now.Sub(entry.windowStart) > l.window {
		entry.count = 0
		entry.windowStart = now
	}
	entry.count++
	if entry.count >= l.maxFailures {
		entry.blockedUntil = now.Add(l.blockFor)
		entry.count = 0
		entry.windowStart = time.Time{}
	}
	entry.lastSeen = now
	l.clients[key] = entry
	l.sweepLocked(now)
}

// Succeed forgets earlier failures for key.
func (l *authFailureLimiter) Succeed(key string) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, key)
}

func (l *authFailureLimiter) sweepLocked(now time.Time) {
	l.ops++
	if l.ops%authSweepEvery != 0 {
		return
	}
	staleAfter := 2 * max(l.window, l.blockFor)
	for key, entry := range l.clients {
		if now.Sub(entry.lastSeen) > staleAfter {
			delete(l.clients, key)
		}
	}
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
