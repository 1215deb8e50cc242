package lock

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
)

// MemoryLocker is a process-local EncounterLocker used when Redis is not configured
type MemoryLocker struct {
	mu    sync.Mutex
	ttl   time.Duration
	held  map[string]memoryLease
	now   func() time.Time
	token uint64
}

type memoryLease struct {
	token   uint64
	expires time.Time
}

// NewMemoryLocker creates an in-memory locker
func NewMemoryLocker(ttl time.Duration) providers.EncounterLocker {
	return &MemoryLocker{
		ttl:  ttl,
		held: make(map[string]memoryLease),
		now:  time.Now,
	}
}

// TryLock acquires key without waiting; expired leases are taken over
func (l *MemoryLocker) TryLock(ctx context.Context, key string) (providers.Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expires) {
		return nil, providers.ErrLockHeld
	}

	l.token++
	token := l.token
	l.held[key] = memoryLease{token: token, expires: now.Add(l.ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.held[key]; ok && lease.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
