package counter

import (
	"context"
	"sync"
	"time"

	requesttime "lockgate/pkg/platform/middleware/requesttime"
)

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryCounter is a mutex-guarded in-memory counter suitable for tests and
// single-instance deployments. For multi-instance deployments use the redis
// counter.
type MemoryCounter struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*memoryEntry
}

// NewMemory constructs an in-memory counter with the given decay window.
func NewMemory(decayWindow time.Duration) *MemoryCounter {
	return &MemoryCounter{
		ttl:     decayWindow,
		entries: make(map[string]*memoryEntry),
	}
}

func (c *MemoryCounter) Increment(ctx context.Context, identifier string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := requesttime.Now(ctx)
	key := throttleKey(identifier)

	entry, ok := c.entries[key]
	if !ok || !entry.expiresAt.After(now) {
		// Fresh window: expired entries are replaced, not extended.
		c.entries[key] = &memoryEntry{count: 1, expiresAt: now.Add(c.ttl)}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

func (c *MemoryCounter) Get(ctx context.Context, identifier string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[throttleKey(identifier)]
	if !ok || !entry.expiresAt.After(requesttime.Now(ctx)) {
		return 0, nil
	}
	return entry.count, nil
}

func (c *MemoryCounter) Clear(_ context.Context, identifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, throttleKey(identifier))
	return nil
}
