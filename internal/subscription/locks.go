package subscription

import (
	"sync"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// subscriptionLocks serializes concurrent webhook deliveries for the same
// gateway subscription id inside this process. Entries are reference-counted
// and removed once the last holder releases, so the map does not grow with
// the subscription population.
type subscriptionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func newSubscriptionLocks() *subscriptionLocks {
	return &subscriptionLocks{entries: make(map[string]*lockEntry)}
}

// Lock blocks until the per-key mutex is held and returns the release func.
func (l *subscriptionLocks) Lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
