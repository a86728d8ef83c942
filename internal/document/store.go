// Package document serves the read side of the document library:
// paginated listings and the admin upload-activity summary.
package document

import (
	"context"
	"time"
)

// Document is one row of the document library.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	FileName  string    `json:"file_name"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DayCount is the number of documents uploaded on a single day.
type DayCount struct {
	Day   time.Time
	Count int
}

// Store reads documents from persistent storage.
type Store interface {
	// List returns documents newest first. page is 1-based.
	List(ctx context.Context, page, pageSize int) ([]Document, error)

	// CountSince returns per-day upload counts for days with at least one
	// upload at or after since, ordered by day ascending. Days with zero
	// uploads are absent; callers fill the gaps.
	CountSince(ctx context.Context, since time.Time) ([]DayCount, error)
}
