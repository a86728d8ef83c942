package chat

import (
	"log/slog"
	"sync"
)

// Room is the single chat room's connection registry and broadcast fanout.
//
// Concurrency guarantees:
// - Register/Unregister are safe under concurrent Broadcast.
// - At most one registered connection exists per client id; registering a
//   second closes the first before the insert completes.
// - Broadcast never blocks (drops under backpressure); a failure to deliver to
//   one connection never affects the others.
type Room struct {
	log *slog.Logger

	mu      sync.RWMutex
	members map[string]*Conn
}

// NewRoom constructs an empty room.
func NewRoom(log *slog.Logger) *Room {
	if log == nil {
		log = slog.Default()
	}
	return &Room{
		log:     log,
		members: make(map[string]*Conn),
	}
}

// Register inserts a connection under its client id. An existing connection
// for the same identity is closed first so two live sockets never share one
// identity.
func (r *Room) Register(c *Conn) {
	if r == nil || c == nil || c.ClientID == "" {
		return
	}

	r.mu.Lock()
	if prev := r.members[c.ClientID]; prev != nil && prev != c {
		prev.Close()
		r.log.Info("room.member.supersede", "client_id", c.ClientID)
	}
	r.members[c.ClientID] = c
	r.mu.Unlock()

	r.log.Info("room.member.join", "client_id", c.ClientID, "username", c.Username)
}

// Unregister removes a connection if it is still the registered one for its
// identity. A stale close from a superseded connection is a no-op, so the
// replacement entry survives.
func (r *Room) Unregister(c *Conn) {
	if r == nil || c == nil || c.ClientID == "" {
		return
	}

	r.mu.Lock()
	cur, ok := r.members[c.ClientID]
	if ok && cur == c {
		delete(r.members, c.ClientID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.log.Info("room.member.leave", "client_id", c.ClientID)
	}
}

// Len reports the number of registered connections.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast fanouts a serialized frame to every registered connection,
// including the sender. Non-blocking: a connection whose queue is full or that
// is shutting down is skipped, and the number of such drops is returned.
func (r *Room) Broadcast(frame []byte) (dropped int) {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.members {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			// Shutting down; skip.
			continue
		default:
		}

		select {
		case m.Send <- frame:
		default:
			dropped++
			r.log.Warn("room.broadcast.drop", "client_id", m.ClientID)
		}
	}
	return dropped
}
