package session

import (
	"sort"
	"sync"
	"time"
)

// Info is an immutable snapshot of a live session, for inspection only.
type Info struct {
	Slot        int       `json:"slot"`
	TraceID     string    `json:"trace_id"`
	Remote      string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry indexes live sessions by slot.
// Sessions add themselves on start and remove themselves before their slot
// is released, so a slot never maps to a stale entry once reused.
type Registry struct {
	mu    sync.RWMutex
	infos map[int]Info
}

func NewRegistry() *Registry {
	return &Registry{infos: make(map[int]Info)}
}

func (r *Registry) add(info Info) {
	r.mu.Lock()
	r.infos[info.Slot] = info
	r.mu.Unlock()
}

func (r *Registry) remove(slot int) {
	r.mu.Lock()
	delete(r.infos, slot)
	r.mu.Unlock()
}

// Get returns the session bound to slot.
func (r *Registry) Get(slot int) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[slot]
	return info, ok
}

// List returns all live sessions ordered by slot.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.infos)
}
