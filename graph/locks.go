package graph

import (
	"slices"
	"strconv"
	"sync"
)

// keyedMutex hands out one mutex per key. Entries are dropped when the last
// holder releases them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// lockAll locks every key in sorted order and returns the function that
// releases them.
func (k *keyedMutex) lockAll(keys []string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	entries := make([]*keyedEntry, len(keys))
	for i, key := range keys {
		k.mu.Lock()
		e, ok := k.locks[key]
		if !ok {
			e = &keyedEntry{}
			k.locks[key] = e
		}
		e.refs++
		k.mu.Unlock()

		e.mu.Lock()
		entries[i] = e
	}

	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
			k.mu.Lock()
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

// lockSet collects the keys an operation needs.
type lockSet map[string]struct{}

func (s lockSet) alias(key string) { s["alias:"+key] = struct{}{} }

// node ids are zero padded so lexical order matches numeric order.
func (s lockSet) node(id uint64) { s["node:"+padID(id)] = struct{}{} }

func (s lockSet) has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s lockSet) hasNode(id uint64) bool { return s.has("node:" + padID(id)) }

func (s lockSet) keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func padID(id uint64) string {
	s := strconv.FormatUint(id, 10)
	const width = 20
	if len(s) < width {
		s = "00000000000000000000"[:width-len(s)] + s
	}
	return s
}
