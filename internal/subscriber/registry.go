// Package subscriber holds the in-memory set of chats that receive the daily
// reminder.
//
// The registry lives for the process lifetime only. It is shared between the
// command workers (join/leave) and the cron goroutine (broadcast), so every
// operation takes the lock.
package subscriber

import (
	"slices"
	"sync"
)

// ID is the chat identifier assigned by Telegram.
type ID int64

type Registry struct {
	mu  sync.RWMutex
	ids map[ID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{ids: map[ID]struct{}{}}
}

// Add inserts id. It reports whether id was newly added; adding an existing
// id is a no-op.
func (r *Registry) Add(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Remove deletes id. It reports whether id was present; removing an absent
// id is a no-op.
func (r *Registry) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}

func (r *Registry) Contains(id ID) bool {
	r.mu.RLock()
	_, ok := r.ids[id]
	r.mu.RUnlock()
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// All returns a snapshot of the current members in ascending order.
// Later mutations don't affect the returned slice.
func (r *Registry) All() []ID {
	r.mu.RLock()
	out := make([]ID, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}
