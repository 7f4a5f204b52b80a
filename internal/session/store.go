package session

import (
	"context"
	"time"
)

// Store is the session state interface. All per-session reads and writes
// go through here. Implementations must be safe for concurrent use and
// swappable without the callers branching on which backend is active.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// SetNX writes the value only when the key is absent. Used for lock
	// acquisition; the bool reports whether the write won.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CompareAndDelete removes the key only while it still holds value.
	// Used for lock release so an expired-and-reacquired lock is never
	// deleted by the previous holder.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)
	// PushCapped prepends value to the list at key, trims the list to at
	// most maxLen entries (newest first), and refreshes the TTL.
	PushCapped(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error
	// Range returns list entries from start to stop inclusive, newest first.
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	Ping(ctx context.Context) error
}
