// Package contextstore persists per-session conversation contexts: a
// Postgres table as the source of truth, a Redis cache in front of it, and a
// relational turn log for auditing.
package contextstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trialscout/trialchat/internal/conversation"
)

// ErrNotFound is returned when no active context exists for a session.
var ErrNotFound = errors.New("contextstore: context not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable context store. Rows are soft-deactivated on
// reset rather than deleted.
type PostgresStore struct {
	db querier
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("contextstore: nil pool")
	}
	return &PostgresStore{db: pool}
}

// newPostgresStoreWithDB is used by tests to inject a mock connection.
func newPostgresStoreWithDB(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get loads the active context for a session.
func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*conversation.Context, error) {
	var blob []byte
	err := s.db.QueryRow(ctx,
		`SELECT context FROM conversation_contexts
		 WHERE session_id = $1 AND active = TRUE`,
		sessionID,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contextstore: get context: %w", err)
	}

	c, err := conversation.UnmarshalContext(blob)
	if err != nil {
		return nil, fmt.Errorf("contextstore: decode context: %w", err)
	}
	return c, nil
}

// Save upserts the context, reactivating the row if it was reset earlier.
// The focus columns are denormalized copies of the jsonb fields so trial
// matching queries can filter sessions without unpacking the blob. If the
// full upsert fails, a narrower update of just the blob is attempted so a
// schema drift on the denormalized columns cannot lose the turn.
func (s *PostgresStore) Save(ctx context.Context, c *conversation.Context) error {
	blob, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("contextstore: encode context: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO conversation_contexts (session_id, user_id, context, focus_condition, focus_location, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
		 ON CONFLICT (session_id)
		 DO UPDATE SET context = EXCLUDED.context, user_id = EXCLUDED.user_id,
		               focus_condition = EXCLUDED.focus_condition,
		               focus_location = EXCLUDED.focus_location,
		               active = TRUE, updated_at = NOW()`,
		c.SessionID, c.UserID, blob, c.FocusCondition, c.FocusLocation,
	)
	if err == nil {
		return nil
	}

	tag, updateErr := s.db.Exec(ctx,
		`UPDATE conversation_contexts SET context = $2, active = TRUE, updated_at = NOW()
		 WHERE session_id = $1`,
		c.SessionID, blob,
	)
	if updateErr != nil || tag.RowsAffected() == 0 {
		return fmt.Errorf("contextstore: save context: %w", err)
	}
	return nil
}

// Deactivate soft-deletes the session's context.
func (s *PostgresStore) Deactivate(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE conversation_contexts SET active = FALSE, updated_at = NOW()
		 WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("contextstore: deactivate context: %w", err)
	}
	return nil
}
