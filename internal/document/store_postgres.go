package document

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// The pgx pool is owned by the caller, not the store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "webdoc").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("document: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("document: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed document Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "webdoc",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("document: nil pool")
	}
	return st, nil
}

// List returns documents newest first, LIMIT pageSize OFFSET (page-1)*pageSize.
func (s *PostgresStore) List(ctx context.Context, page, pageSize int) ([]Document, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("document: nil store")
	}
	if page < 1 || pageSize <= 0 {
		return nil, errors.New("document: invalid page window")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	documents := pgIdent(s.schema, "documents")

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, summary, file_name, author_id, created_at, updated_at
		   FROM `+documents+`
		  ORDER BY created_at DESC
		  LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0, pageSize)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Summary, &d.FileName, &d.AuthorID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountSince returns per-day upload counts since the cutoff, ascending by day.
func (s *PostgresStore) CountSince(ctx context.Context, since time.Time) ([]DayCount, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("document: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	documents := pgIdent(s.schema, "documents")

	rows, err := s.pool.Query(ctx,
		`SELECT date_trunc('day', created_at)::date AS day, COUNT(*) AS n
		   FROM `+documents+`
		  WHERE created_at >= $1
		  GROUP BY day
		  ORDER BY day ASC`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}
