// Package archive provides a durable audit trail of runs the sweeper has
// removed from the live registry. Rows are keyed by run_id; appending a
// run_id that is already present replaces that row's outcome, retry,
// verification and archived-at fields.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chloemays/openclaw/internal/orchestrator"
)

// Store is a SQLite-backed ledger of archived runs, adapted from the
// teacher's session.SQLiteStore (schema-in-init, upsert, sql.NullString
// scanning).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the archive database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS archived_runs (
		run_id TEXT PRIMARY KEY,
		child_session_key TEXT NOT NULL,
		requester_session_key TEXT NOT NULL,
		task TEXT,
		outcome_status TEXT,
		outcome_error TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		verification_result TEXT,
		created_at INTEGER NOT NULL,
		archived_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_archived_runs_requester ON archived_runs(requester_session_key);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Append inserts (or replaces) an archived-run row. It implements
// orchestrator.ArchiveWriter, so the sweeper can call it directly.
func (s *Store) Append(rec *orchestrator.RunRecord) error {
	var outcomeStatus, outcomeError sql.NullString
	if rec.Outcome != nil {
		outcomeStatus = sql.NullString{String: string(rec.Outcome.Status), Valid: true}
		if rec.Outcome.Error != "" {
			outcomeError = sql.NullString{String: rec.Outcome.Error, Valid: true}
		}
	}
	var verification sql.NullString
	if rec.VerificationResult != "" {
		verification = sql.NullString{String: string(rec.VerificationResult), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO archived_runs (
			run_id, child_session_key, requester_session_key, task,
			outcome_status, outcome_error, retry_count, verification_result,
			created_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			outcome_status = excluded.outcome_status,
			outcome_error = excluded.outcome_error,
			retry_count = excluded.retry_count,
			verification_result = excluded.verification_result,
			archived_at = excluded.archived_at
	`, rec.RunID, rec.ChildSessionKey, rec.RequesterSessionKey, rec.Task,
		outcomeStatus, outcomeError, rec.RetryCount, verification,
		rec.CreatedAt, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append archived run: %w", err)
	}
	return nil
}

// Record is a row read back from the archive.
type Record struct {
	RunID                string
	ChildSessionKey      string
	RequesterSessionKey  string
	Task                 string
	OutcomeStatus        string
	OutcomeError         string
	RetryCount           int
	VerificationResult   string
	CreatedAt            int64
	ArchivedAt           int64
}

// ListForRequester returns archived runs for a requester session key,
// most recently archived first.
func (s *Store) ListForRequester(requesterSessionKey string) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT run_id, child_session_key, requester_session_key, task,
			outcome_status, outcome_error, retry_count, verification_result,
			created_at, archived_at
		FROM archived_runs
		WHERE requester_session_key = ?
		ORDER BY archived_at DESC
	`, requesterSessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var outcomeStatus, outcomeError, verification sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.ChildSessionKey, &rec.RequesterSessionKey,
			&rec.Task, &outcomeStatus, &outcomeError, &rec.RetryCount, &verification,
			&rec.CreatedAt, &rec.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived run: %w", err)
		}
		if outcomeStatus.Valid {
			rec.OutcomeStatus = outcomeStatus.String
		}
		if outcomeError.Valid {
			rec.OutcomeError = outcomeError.String
		}
		if verification.Valid {
			rec.VerificationResult = verification.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
