package ingestion

import (
	"sync"

	"github.com/skewballfox/papermill/core"
)

// documentLocks serializes work on one document id. Entries are dropped
// when the last holder releases them.
type documentLocks struct {
	mu    sync.Mutex
	locks map[core.DocumentID]*documentLock
}

type documentLock struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{locks: make(map[core.DocumentID]*documentLock)}
}

// lock blocks until id is free and returns the release function.
func (d *documentLocks) lock(id core.DocumentID) func() {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &documentLock{}
		d.locks[id] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, id)
		}
		d.mu.Unlock()
	}
}
