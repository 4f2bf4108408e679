// Package limiter throttles failed resource logins per (username, client) pair.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter tracks failed logins and places temporary lockouts.
type Limiter interface {
	// Allow reports whether a login may be attempted now, and if not, for how long to wait.
	Allow(ctx context.Context, username string, client []byte) (bool, time.Duration, error)
	// Success clears the failure history after a good login.
	Success(ctx context.Context, username string, client []byte) error
	// Failure records a bad login and reports whether it triggered a lockout.
	Failure(ctx context.Context, username string, client []byte) (bool, time.Duration, error)
}

// Policy configures the failure window and lockout.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows five failures per fifteen minutes.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}

// HashClient hashes a remote address so raw addresses are never stored.
func HashClient(addr string) []byte {
	h := sha256.Sum256([]byte(addr))
	return h[:]
}
