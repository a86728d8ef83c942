package chat

import (
	"context"
	"crypto/rand"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const memMaxMessages = 10_000

// MemoryStore is a dev/test fallback when no database is configured.
type MemoryStore struct {
	mu   sync.Mutex
	msgs []Message
}

// NewMemoryStore constructs an in-memory MessageStore implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{msgs: make([]Message, 0, 256)}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// Append persists a message, assigning an id when absent.
func (s *MemoryStore) Append(ctx context.Context, m Message) error {
	if m.Username == "" || m.Content == "" {
		return errors.New("chat: invalid message")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	if m.ID == "" {
		m.ID = newMessageID(m.SentAt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs, m)

	// Bound memory to avoid unbounded growth in dev.
	if len(s.msgs) > memMaxMessages {
		s.msgs = s.msgs[len(s.msgs)-memMaxMessages:]
	}
	return nil
}

// ReadPage returns messages ordered ascending by timestamp with offset paging.
func (s *MemoryStore) ReadPage(ctx context.Context, page, pageSize int) ([]Message, error) {
	if page < 0 || pageSize <= 0 {
		return nil, errors.New("chat: invalid page window")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	snap := append([]Message(nil), s.msgs...)
	s.mu.Unlock()

	// Ensure ordering defensively; appends may interleave out of clock order.
	sort.SliceStable(snap, func(i, j int) bool { return snap[i].SentAt.Before(snap[j].SentAt) })

	start := page * pageSize
	if start >= len(snap) {
		return []Message{}, nil
	}
	end := start + pageSize
	if end > len(snap) {
		end = len(snap)
	}
	return snap[start:end], nil
}

// newMessageID returns a ULID; lexicographically sortable and unique enough
// for a message log.
func newMessageID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}
