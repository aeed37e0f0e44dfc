package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trialscout/trialchat/internal/conversation"
)

// TurnRecord is one completed pipeline turn as written to the audit log.
// ContextSnapshot holds the post-turn context as JSON, so any turn can be
// replayed from the log alone.
type TurnRecord struct {
	SessionID       string                  `json:"session_id"`
	UserMessage     string                  `json:"user_message"`
	BotResponse     string                  `json:"bot_response"`
	Intent          conversation.IntentType `json:"intent"`
	Confidence      float64                 `json:"confidence"`
	State           conversation.State      `json:"state"`
	LatencyMS       int64                   `json:"latency_ms"`
	ContextSnapshot json.RawMessage         `json:"context_snapshot,omitempty"`
	CreatedAt       time.Time               `json:"created_at,omitempty"`
}

// TurnLogger appends turns to the chat_logs table through database/sql.
type TurnLogger struct {
	db *sql.DB
}

// NewTurnLogger wraps an open connection.
func NewTurnLogger(db *sql.DB) *TurnLogger {
	return &TurnLogger{db: db}
}

// Log writes one turn. Callers treat failures as non-fatal.
func (l *TurnLogger) Log(ctx context.Context, rec TurnRecord) error {
	snapshot := []byte(rec.ContextSnapshot)
	if len(snapshot) == 0 {
		snapshot = []byte("{}")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO chat_logs (session_id, user_message, bot_response, intent, confidence, state, latency_ms, context_snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		rec.SessionID, rec.UserMessage, rec.BotResponse,
		string(rec.Intent), rec.Confidence, string(rec.State), rec.LatencyMS, snapshot,
	)
	if err != nil {
		return fmt.Errorf("contextstore: log turn: %w", err)
	}
	return nil
}

// Recent returns the session's last turns in chronological order.
func (l *TurnLogger) Recent(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT session_id, user_message, bot_response, intent, confidence, state, latency_ms, context_snapshot, created_at
		 FROM chat_logs
		 WHERE session_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("contextstore: recent turns: %w", err)
	}
	defer rows.Close()

	var records []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var intent, state string
		var snapshot []byte
		if err := rows.Scan(&rec.SessionID, &rec.UserMessage, &rec.BotResponse,
			&intent, &rec.Confidence, &state, &rec.LatencyMS, &snapshot, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("contextstore: scan turn: %w", err)
		}
		rec.Intent = conversation.IntentType(intent)
		rec.State = conversation.ParseState(state)
		rec.ContextSnapshot = json.RawMessage(snapshot)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contextstore: recent turns: %w", err)
	}

	// Newest-first from the index, oldest-first for the caller.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
