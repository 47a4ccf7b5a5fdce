package api

import "sync"

// sessionQueue serializes work per session. Entries are dropped once no
// caller holds or waits on them.
type sessionQueue struct {
	mu      sync.Mutex
	entries map[string]*queueEntry
}

type queueEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionQueue() *sessionQueue {
	return &sessionQueue{entries: make(map[string]*queueEntry)}
}

// acquire blocks until key is free and returns its release func.
func (q *sessionQueue) acquire(key string) func() {
	q.mu.Lock()
	e, ok := q.entries[key]
	if !ok {
		e = &queueEntry{}
		q.entries[key] = e
	}
	e.refs++
	q.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		q.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(q.entries, key)
		}
		q.mu.Unlock()
	}
}

func (q *sessionQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
