package chat

import (
	"context"
	"time"
)

// Message is the canonical persisted chat message. Immutable once created;
// this subsystem never updates or deletes rows.
type Message struct {
	ID       string
	Username string
	Content  string
	SentAt   time.Time
}

// MessageStore is the durable append-only log of chat messages.
//
// Requirements:
//   - Append is a single-row insert; failures are returned, never thrown.
//   - ReadPage returns messages ordered ascending by timestamp with
//     OFFSET page*pageSize semantics, and an empty slice past the end
//     (that signals "no more messages", not an error).
//
// Offset pagination is not stable under concurrent inserts; that is an
// accepted limitation, not a bug to fix silently.
type MessageStore interface {
	Append(ctx context.Context, m Message) error
	ReadPage(ctx context.Context, page, pageSize int) ([]Message, error)
	Close() error
}
