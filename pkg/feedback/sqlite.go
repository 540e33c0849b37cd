package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore is a durable SQLite implementation of the Store
// interface. The (session_id, record_id) primary key enforces the
// one-active-entry-per-pair invariant at the schema level.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if needed bootstraps) the feedback table
// in the given database file
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback (
			session_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			sender TEXT NOT NULL DEFAULT '',
			decision TEXT NOT NULL,
			base_score REAL NOT NULL,
			features TEXT NOT NULL,
			decided_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, record_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create feedback table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// RecordDecision inserts or replaces the entry for its pair
func (s *SQLiteStore) RecordDecision(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	if entry.DecidedAt.IsZero() {
		entry.DecidedAt = time.Now().UTC()
	}

	featureJSON, err := json.Marshal(entry.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	// decided_at is stored as Unix nanos so ORDER BY compares
	// numerically instead of lexicographically
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO feedback (session_id, record_id, sender, decision, base_score, features, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.SessionID, entry.RecordID, entry.Sender, string(entry.Decision), entry.BaseScore,
		string(featureJSON), entry.DecidedAt.UnixNano())

	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	s.logger.Debug("Recorded analyst decision",
		zap.String("session", entry.SessionID),
		zap.String("record", entry.RecordID),
		zap.String("decision", string(entry.Decision)))

	return nil
}

// Count returns the active entry count for the scope
func (s *SQLiteStore) Count(ctx context.Context, sessionID string) (int, error) {
	var count int
	var err error

	if sessionID == AllSessions {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM feedback`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM feedback WHERE session_id = ?`, sessionID).Scan(&count)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// Entries returns the active entries for the scope, ordered by
// decision time
func (s *SQLiteStore) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	query := `
		SELECT session_id, record_id, sender, decision, base_score, features, decided_at
		FROM feedback ORDER BY decided_at`
	args := []interface{}{}

	if sessionID != AllSessions {
		query = `
			SELECT session_id, record_id, sender, decision, base_score, features, decided_at
			FROM feedback WHERE session_id = ? ORDER BY decided_at`
		args = append(args, sessionID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var decision, featureJSON string
		var decidedAt int64

		if err := rows.Scan(&entry.SessionID, &entry.RecordID, &entry.Sender, &decision,
			&entry.BaseScore, &featureJSON, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}

		entry.Decision = Decision(decision)

		if err := json.Unmarshal([]byte(featureJSON), &entry.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features: %w", err)
		}

		entry.DecidedAt = time.Unix(0, decidedAt).UTC()

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
