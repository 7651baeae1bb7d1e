package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ippclub/crates-mcp/internal/model"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DBFile is the journal database file inside the storage directory.
const DBFile = "crates-mcp.db"

// SQLiteStore keeps the call journal and index history in SQLite. It holds
// bookkeeping only; no upstream payload is ever stored.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dataPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataPath, DBFile)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(model.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("opened journal", zap.String("path", dbPath))
	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordToolCall appends one tool invocation to the journal
func (s *SQLiteStore) RecordToolCall(call *model.DBToolCall) error {
	query := `
		INSERT INTO tool_calls (call_id, session_id, tool, outcome, error_kind, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRow(
		query,
		call.CallID,
		call.SessionID,
		call.Tool,
		call.Outcome,
		call.ErrorKind,
		call.DurationMS,
		call.CreatedAt,
	).Scan(&call.ID)

	if err != nil {
		return fmt.Errorf("failed to record tool call: %w", err)
	}

	return nil
}

// RecentToolCalls returns the newest calls first. A limit of zero or less
// returns every call.
func (s *SQLiteStore) RecentToolCalls(limit int) ([]*model.DBToolCall, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.Query(`SELECT id, call_id, session_id, tool, outcome, error_kind, duration_ms, created_at
		FROM tool_calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*model.DBToolCall
	for rows.Next() {
		call := &model.DBToolCall{}
		err := rows.Scan(
			&call.ID,
			&call.CallID,
			&call.SessionID,
			&call.Tool,
			&call.Outcome,
			&call.ErrorKind,
			&call.DurationMS,
			&call.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, rows.Err()
}

// ToolCallStats counts calls and failures per tool
func (s *SQLiteStore) ToolCallStats() ([]*model.DBToolStat, error) {
	query := `
		SELECT tool, COUNT(*), SUM(CASE WHEN outcome = 'ok' THEN 0 ELSE 1 END)
		FROM tool_calls
		GROUP BY tool
		ORDER BY tool
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool stats: %w", err)
	}
	defer rows.Close()

	var stats []*model.DBToolStat
	for rows.Next() {
		stat := &model.DBToolStat{}
		if err := rows.Scan(&stat.Tool, &stat.Calls, &stat.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan tool stat: %w", err)
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

// RecordIndexEvent stores how index initialization ended
func (s *SQLiteStore) RecordIndexEvent(event *model.DBIndexEvent) error {
	query := `
		INSERT INTO index_events (session_id, state, path, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRow(
		query,
		event.SessionID,
		event.State,
		event.Path,
		event.Detail,
		event.CreatedAt,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to record index event: %w", err)
	}

	return nil
}

// LatestIndexEvent returns the most recent index event, or nil when none
// has been recorded
func (s *SQLiteStore) LatestIndexEvent() (*model.DBIndexEvent, error) {
	query := `SELECT id, session_id, state, path, detail, created_at
		FROM index_events ORDER BY id DESC LIMIT 1`
	event := &model.DBIndexEvent{}
	err := s.db.QueryRow(query).Scan(
		&event.ID,
		&event.SessionID,
		&event.State,
		&event.Path,
		&event.Detail,
		&event.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest index event: %w", err)
	}
	return event, nil
}
