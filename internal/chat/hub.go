package chat

import "sync"

// session is a live connection's outbound side. enqueue must not block;
// it reports whether the payload was accepted.
type session interface {
	enqueue(payload []byte) bool
}

// Hub is the per-process registry of live WebSocket sessions, keyed by
// user id. It is mutated only by this instance's own connection
// lifecycle; cross-process fanout goes through the pub/sub relay, never
// through direct lookup.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[int64]session)}
}

func (h *Hub) register(userID int64, s session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[userID] = s
}

// unregister drops the user's session only if it is still s: a
// reconnect may already have replaced it.
func (h *Hub) unregister(userID int64, s session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[userID]; ok && cur == s {
		delete(h.sessions, userID)
	}
}

// SendToUser delivers a payload to the user's local connection, if any.
// It reports whether a delivery was attempted.
func (h *Hub) SendToUser(userID int64, payload []byte) bool {
	h.mu.RLock()
	s, ok := h.sessions[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return s.enqueue(payload)
}

// Connected reports whether the user holds a live connection on this
// instance.
func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[userID]
	return ok
}
