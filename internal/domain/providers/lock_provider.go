package providers

import (
	"context"
	"errors"
)

// ErrLockHeld is returned by TryLock when another holder owns the key
var ErrLockHeld = errors.New("lock is held by another request")

// Unlock releases a lock obtained from EncounterLocker
type Unlock func(ctx context.Context) error

// EncounterLocker serializes meeting creation per encounter
type EncounterLocker interface {
	// TryLock acquires the lock for key without waiting, or returns ErrLockHeld
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// EncounterLockKey returns the lock key for an encounter
func EncounterLockKey(encounterID string) string {
	return "telehealth-meet:lock:encounter:" + encounterID
}
