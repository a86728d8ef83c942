package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "webdoc").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
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
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Append inserts a single message row.
func (s *PostgresStore) Append(ctx context.Context, m Message) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
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

	messages := pgIdent(s.schema, "messages")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (id, username, content, sent_at) VALUES ($1, $2, $3, $4)`,
		m.ID, m.Username, m.Content, m.SentAt,
	)
	return err
}

// ReadPage returns messages ordered ascending by timestamp,
// LIMIT pageSize OFFSET page*pageSize. Past the end it returns an empty slice.
func (s *PostgresStore) ReadPage(ctx context.Context, page, pageSize int) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if page < 0 || pageSize <= 0 {
		return nil, errors.New("chat: invalid page window")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, username, content, sent_at
		   FROM `+messages+`
		  ORDER BY sent_at ASC
		  LIMIT $1 OFFSET $2`,
		pageSize, page*pageSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, pageSize)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Username, &m.Content, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
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

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
