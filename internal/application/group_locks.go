package application

import "sync"

// groupLocks serializes fan-out updates on one recurrence group within this
// process. Other processes are not coordinated; the last writer wins there.
type groupLocks struct {
	mu    sync.Mutex
	locks map[string]*groupLock
}

type groupLock struct {
	sync.Mutex
	refs int
}

func newGroupLocks() *groupLocks {
	return &groupLocks{locks: make(map[string]*groupLock)}
}

// lock blocks until key is free and returns the matching unlock func.
// An empty key is not locked.
func (g *groupLocks) lock(key string) func() {
	if key == "" {
		return func() {}
	}

	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &groupLock{}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, key)
		}
		g.mu.Unlock()
	}
}
