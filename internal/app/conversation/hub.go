package conversation

import (
	"sync"

	"github.com/PabloGalante/symposium/internal/animation"
	"github.com/PabloGalante/symposium/internal/domain"
)

const subscriberBuffer = 256

// Hub fans animation frames out to the subscribers of each session. A
// subscriber that falls behind loses frames; every frame carries the full
// visible text, so the next one it receives is still correct.
type Hub struct {
	mu   sync.RWMutex
	subs map[domain.SessionID]map[chan animation.Frame]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[domain.SessionID]map[chan animation.Frame]struct{})}
}

func (h *Hub) Publish(f animation.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[f.SessionID] {
		select {
		case ch <- f:
		default:
		}
	}
}

// Subscribe returns a channel of frames for sessionID and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(sessionID domain.SessionID) (<-chan animation.Frame, func()) {
	ch := make(chan animation.Frame, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan animation.Frame]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
		})
	}
}

// closeSession closes every subscription of sessionID.
func (h *Hub) closeSession(sessionID domain.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, id)
	}
}
