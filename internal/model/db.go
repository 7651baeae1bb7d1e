package model

import (
	"time"
)

// DBToolCall represents one journaled tool invocation
type DBToolCall struct {
	ID         int64     `db:"id" json:"id"`
	CallID     string    `db:"call_id" json:"call_id"`
	SessionID  string    `db:"session_id" json:"session_id"`
	Tool       string    `db:"tool" json:"tool"`
	Outcome    string    `db:"outcome" json:"outcome"`       // ok, error
	ErrorKind  string    `db:"error_kind" json:"error_kind"` // see errors.Kind
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// DBIndexEvent records how the local index initialization ended for a process
type DBIndexEvent struct {
	ID        int64     `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	State     string    `db:"state" json:"state"`
	Path      string    `db:"path" json:"path"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DBToolStat aggregates journaled calls per tool
type DBToolStat struct {
	Tool     string `db:"tool" json:"tool"`
	Calls    int64  `db:"calls" json:"calls"`
	Failures int64  `db:"failures" json:"failures"`
}

// Schema contains the SQL schema for the database
const Schema = `
CREATE TABLE IF NOT EXISTS tool_calls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    call_id TEXT NOT NULL UNIQUE,
    session_id TEXT NOT NULL,
    tool TEXT NOT NULL,
    outcome TEXT NOT NULL,
    error_kind TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS index_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    state TEXT NOT NULL,
    path TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool);
CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id);
`
