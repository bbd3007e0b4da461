package hub

import "sync"

// Conn is the slice of a websocket connection the hub needs. Satisfied by
// *websocket.Conn (gorilla) and by test fakes.
type Conn interface {
	WriteJSON(v interface{}) error
}

// Hub maps group names to live subscriber connections. Group names are
// opaque; callers use "staff" and "table:<token>". One Hub is constructed at
// startup and shared by everything that accepts connections or publishes
// events.
type Hub struct {
	mu     sync.Mutex
	groups map[string]map[Conn]struct{}
}

func New() *Hub {
	return &Hub{groups: make(map[string]map[Conn]struct{})}
}

func (h *Hub) Join(group string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.groups[group]
	if !ok {
		set = make(map[Conn]struct{})
		h.groups[group] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Leave(group string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(group, c)
}

// Publish sends event to every current member of group. The member set is
// snapshotted under the lock; sends happen outside it so a slow socket never
// blocks membership changes. Connections that fail to accept the write are
// dropped from the group after the pass.
func (h *Hub) Publish(group string, event interface{}) {
	h.mu.Lock()
	targets := make([]Conn, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var dead []Conn
	for _, c := range targets {
		if err := c.WriteJSON(event); err != nil {
			dead = append(dead, c)
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, c := range dead {
			h.removeLocked(group, c)
		}
		h.mu.Unlock()
	}
}

// PublishToAll fans out sequentially per group; group count is small and
// per-group delivery already walks every member.
func (h *Hub) PublishToAll(groups []string, event interface{}) {
	for _, g := range groups {
		h.Publish(g, event)
	}
}

// GroupSize reports current membership, mainly for tests and debugging.
func (h *Hub) GroupSize(group string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[group])
}

func (h *Hub) removeLocked(group string, c Conn) {
	set, ok := h.groups[group]
	if !ok {
		return
	}
	delete(set, c)
	// prune empty groups so ephemeral table sessions don't accumulate
	if len(set) == 0 {
		delete(h.groups, group)
	}
}
