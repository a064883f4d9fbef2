package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryMarkerRepository is the in-process fallback marker store. Used when
// Redis is unavailable; markers do not survive a restart, which degrades to
// the best-effort dedup the design allows.
type MemoryMarkerRepository struct {
	mu      sync.Mutex
	markers map[string]time.Time
	ttl     time.Duration
}

func NewMemoryMarkerRepository(ttl time.Duration) *MemoryMarkerRepository {
	return &MemoryMarkerRepository{
		markers: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Register holds the lock across check and set, giving the same atomic
// semantics as SET NX.
func (r *MemoryMarkerRepository) Register(ctx context.Context, accountID, chatID int64, messageID int) (bool, error) {
	key := markerKey(accountID, chatID, messageID)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if seen, ok := r.markers[key]; ok {
		if r.ttl <= 0 || now.Sub(seen) < r.ttl {
			return false, nil
		}
		// expired marker, treat as new
	}
	r.markers[key] = now
	return true, nil
}

// Cleanup removes markers older than maxAge.
func (r *MemoryMarkerRepository) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, seen := range r.markers {
		if seen.Before(cutoff) {
			delete(r.markers, key)
		}
	}
	return nil
}

// Len returns the number of live markers, for tests and stats.
func (r *MemoryMarkerRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markers)
}
