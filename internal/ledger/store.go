// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists the append-only record of stage attempts that
// backs idempotent resume and run auditing. Entries are never updated or
// deleted; accepted stage outputs are stored alongside them keyed by
// content hash so a resumed run can rehydrate artifacts without
// re-invoking agents.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

const dbFile = "runs.db"

// ErrDuplicateSucceeded reports an attempted second Succeeded entry for
// the same (run, stage, attempt). Succeeded is terminal for an attempt.
var ErrDuplicateSucceeded = fmt.Errorf("ledger: attempt already succeeded")

// Store manages the run ledger SQLite database. Appends are serialized
// per run ID; runs are independent of one another.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

// Open opens or creates the ledger database under cfg.Dir, creating the
// schema if it does not exist.
func Open(cfg types.LedgerConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	s := &Store{
		db:       db,
		runLocks: make(map[string]*sync.Mutex),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			input_hash TEXT NOT NULL,
			output_hash TEXT,
			status TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			UNIQUE(run_id, stage, attempt, status)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_lookup ON attempts(run_id, stage, input_hash, status)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			hash TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// lockFor returns the append lock for a run, creating it on first use.
func (s *Store) lockFor(runID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.runLocks[runID]
	if !ok {
		l = &sync.Mutex{}
		s.runLocks[runID] = l
	}
	return l
}

// Append records one stage attempt. For Succeeded entries payload holds
// the accepted artifact's serialized form and is stored under the entry's
// output hash. Appending a second Succeeded entry for the same
// (run, stage, attempt) returns ErrDuplicateSucceeded.
func (s *Store) Append(ctx context.Context, entry types.LedgerEntry, payload []byte) error {
	lock := s.lockFor(entry.RunID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if entry.Status == types.StatusSucceeded {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM attempts WHERE run_id = ? AND stage = ? AND attempt = ? AND status = ?`,
			entry.RunID, string(entry.Stage), entry.Attempt, string(types.StatusSucceeded),
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("checking for duplicate success: %w", err)
		}
		if n > 0 {
			return ErrDuplicateSucceeded
		}
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO attempts (run_id, stage, attempt, input_hash, output_hash, status, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, string(entry.Stage), entry.Attempt,
		entry.InputHash, entry.OutputHash, string(entry.Status),
		ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting ledger entry: %w", err)
	}

	if entry.Status == types.StatusSucceeded && len(payload) > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO artifacts (hash, payload) VALUES (?, ?)`,
			entry.OutputHash, payload,
		)
		if err != nil {
			return fmt.Errorf("storing artifact payload: %w", err)
		}
	}

	return tx.Commit()
}

// Lookup returns the most recent Succeeded entry for (runID, stage,
// inputHash), or nil when none exists.
func (s *Store) Lookup(ctx context.Context, runID string, stage types.Stage, inputHash string) (*types.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, stage, attempt, input_hash, output_hash, status, timestamp
		 FROM attempts
		 WHERE run_id = ? AND stage = ? AND input_hash = ? AND status = ?
		 ORDER BY attempt DESC LIMIT 1`,
		runID, string(stage), inputHash, string(types.StatusSucceeded),
	)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	return entry, nil
}

// Payload returns the stored artifact bytes for a content hash, or nil
// when the hash is unknown.
func (s *Store) Payload(ctx context.Context, hash string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM artifacts WHERE hash = ?`, hash,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact payload: %w", err)
	}
	return payload, nil
}

// NextAttempt returns the next attempt number for (runID, stage),
// starting at 1.
func (s *Store) NextAttempt(ctx context.Context, runID string, stage types.Stage) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(attempt) FROM attempts WHERE run_id = ? AND stage = ?`,
		runID, string(stage),
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying attempt count: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// Entries returns a run's full ledger stream in append order.
func (s *Store) Entries(ctx context.Context, runID string) ([]types.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, attempt, input_hash, output_hash, status, timestamp
		 FROM attempts WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []types.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*types.LedgerEntry, error) {
	var entry types.LedgerEntry
	var stage, status, ts string
	var outputHash sql.NullString
	if err := row.Scan(&entry.RunID, &stage, &entry.Attempt, &entry.InputHash, &outputHash, &status, &ts); err != nil {
		return nil, err
	}
	entry.Stage = types.Stage(stage)
	entry.Status = types.StageStatus(status)
	entry.OutputHash = outputHash.String
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		entry.Timestamp = parsed
	}
	return &entry, nil
}
