// Package counter tracks failed-attempt counts per identifier with a decay
// window. An absent key is equivalent to a count of zero; the threshold
// comparison belongs to the engine.
package counter

import "context"

// throttleKeyPrefix matches the cache key layout used for attempt counters.
const throttleKeyPrefix = "login-attempts:"

// Counter is the attempt counter contract. Increment must be atomic under
// concurrent callers for the same identifier; Clear is idempotent and callers
// treat its failures as best-effort.
type Counter interface {
	Increment(ctx context.Context, identifier string) (int, error)
	Get(ctx context.Context, identifier string) (int, error)
	Clear(ctx context.Context, identifier string) error
}

func throttleKey(identifier string) string {
	return throttleKeyPrefix + identifier
}
