package contextstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/trialscout/trialchat/internal/conversation"
)

func TestLogTurnInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	snapshot := []byte(`{"session_id":"sess-1","focus_condition":"gout"}`)
	mock.ExpectExec("INSERT INTO chat_logs").
		WithArgs("sess-1", "find gout trials in tulsa", "I found 1 gout trial in tulsa",
			"trial_search", 0.95, "trials_shown", int64(120), snapshot).
		WillReturnResult(sqlmock.NewResult(1, 1))

	l := NewTurnLogger(db)
	err = l.Log(context.Background(), TurnRecord{
		SessionID:       "sess-1",
		UserMessage:     "find gout trials in tulsa",
		BotResponse:     "I found 1 gout trial in tulsa",
		Intent:          conversation.IntentTrialSearch,
		Confidence:      0.95,
		State:           conversation.StateTrialsShown,
		LatencyMS:       120,
		ContextSnapshot: json.RawMessage(snapshot),
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRecentReturnsChronologicalOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	newer := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	older := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cols := []string{"session_id", "user_message", "bot_response", "intent", "confidence", "state", "latency_ms", "context_snapshot", "created_at"}
	mock.ExpectQuery("SELECT session_id, user_message, bot_response").
		WithArgs("sess-1", 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("sess-1", "Tulsa", "I found 1 gout trial in Tulsa", "location_answer", 0.98, "trials_shown", int64(80), []byte(`{"state":"trials_shown"}`), newer).
			AddRow("sess-1", "I have gout", "What city are you in?", "personal_condition", 0.95, "awaiting_location", int64(95), []byte(`{}`), older))

	l := NewTurnLogger(db)
	got, err := l.Recent(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].UserMessage != "I have gout" || got[1].UserMessage != "Tulsa" {
		t.Errorf("order = %q then %q, want oldest first", got[0].UserMessage, got[1].UserMessage)
	}
	if got[1].Intent != conversation.IntentLocationAnswer {
		t.Errorf("intent = %s", got[1].Intent)
	}
	if string(got[1].ContextSnapshot) != `{"state":"trials_shown"}` {
		t.Errorf("context_snapshot = %s", got[1].ContextSnapshot)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
