// Package memory implementa repository.Store en memoria de proceso.
// Útil para desarrollo y testing; no sobrevive reinicios.
package memory

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store keeps every collection in a TTL cache so expired codes and
// tokens age out without a reaper goroutine. All mutating operations
// take the store mutex; the one-shot semantics of Consume rely on it.
type Store struct {
	mu sync.Mutex

	clients  *gocache.Cache
	codes    *gocache.Cache
	tokens   *gocache.Cache
	devices  *gocache.Cache
	consents *gocache.Cache

	// children maps a refresh token ID to the ID that rotated it out,
	// so RevokeFamily can walk the chain forward.
	children map[string]string

	now func() time.Time
}

// New crea un Store en memoria vacío.
func New() *Store {
	const sweep = 5 * time.Minute
	return &Store{
		clients:  gocache.New(gocache.NoExpiration, 0),
		codes:    gocache.New(gocache.NoExpiration, sweep),
		tokens:   gocache.New(gocache.NoExpiration, sweep),
		devices:  gocache.New(gocache.NoExpiration, sweep),
		consents: gocache.New(gocache.NoExpiration, 0),
		children: make(map[string]string),
		now:      time.Now,
	}
}

// ttlUntil converts an absolute expiry into a go-cache TTL. Records that
// are already past expiry get a minimal positive TTL so a Save never
// stores an immortal entry.
func (s *Store) ttlUntil(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(s.now())
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
