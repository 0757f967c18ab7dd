package connectivity

import (
	"maps"
	"slices"
	"sync"
)

// hub keeps the online flag and notifies subscribers on transitions only.
type hub struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	next   int
}

func newHub(online bool) *hub {
	return &hub{online: online, subs: map[int]func(bool){}}
}

// Online reports the current connectivity.
func (h *hub) Online() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

// Subscribe registers fn for transitions and returns its unsubscribe func.
func (h *hub) Subscribe(fn func(online bool)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// set stores online and, when it changed, calls subscribers outside the lock.
func (h *hub) set(online bool) bool {
	h.mu.Lock()
	if h.online == online {
		h.mu.Unlock()
		return false
	}
	h.online = online
	ids := slices.Sorted(maps.Keys(h.subs))
	subs := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
	return true
}

// Manual is a connectivity source driven by explicit calls.
type Manual struct {
	*hub
}

// NewManual constructs a manual source.
func NewManual(online bool) *Manual {
	return &Manual{hub: newHub(online)}
}

// Set changes connectivity and reports whether it was a transition.
func (m *Manual) Set(online bool) bool {
	return m.set(online)
}
