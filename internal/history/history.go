// Package history persists test outcomes to a local sqlite database, one
// row per attempt, so runs can be compared after the fact. Recording is
// best-effort: storage failures are logged and never affect the run.
package history

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	planrunner "github.com/mpy-hil/planrunner"
)

const schema = `CREATE TABLE IF NOT EXISTS test_outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	pass_number INTEGER NOT NULL,
	test_name TEXT NOT NULL,
	outcome TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	dut_port TEXT,
	stub_port TEXT,
	recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_test_outcomes_run ON test_outcomes (run_id, test_name);`

const insertOutcome = `INSERT INTO test_outcomes
	(run_id, pass_number, test_name, outcome, exit_code, dut_port, stub_port, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Store implements planrunner.Recorder over a sqlite file.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
}

// Open creates or opens the history database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open history db %q failed", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ensure history schema failed")
	}
	stmt, err := db.Prepare(insertOutcome)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "prepare history insert failed")
	}
	return &Store{db: db, insert: stmt}, nil
}

// RecordOutcome appends one attempt row.
func (s *Store) RecordOutcome(ctx context.Context, rec planrunner.OutcomeRecord) error {
	_, err := s.insert.ExecContext(ctx,
		rec.RunID, rec.Pass, rec.TestName, string(rec.Outcome),
		rec.ExitCode, rec.DUTPort, rec.StubPort, rec.At)
	return errors.Wrap(err, "insert test outcome failed")
}

// RunSummary aggregates the stored outcomes of one run.
type RunSummary struct {
	RunID   string
	Passed  int
	Failed  int
	Skipped int
}

// Summarize counts the final outcome per test of the given run: the last
// recorded attempt of a test decides its bucket.
func (s *Store) Summarize(ctx context.Context, runID string) (RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome FROM test_outcomes t
		WHERE run_id = ? AND recorded_at = (
			SELECT MAX(recorded_at) FROM test_outcomes
			WHERE run_id = t.run_id AND test_name = t.test_name
		)`, runID)
	if err != nil {
		return RunSummary{}, errors.Wrap(err, "query run summary failed")
	}
	defer rows.Close()

	summary := RunSummary{RunID: runID}
	for rows.Next() {
		var outcome string
		if err := rows.Scan(&outcome); err != nil {
			return summary, errors.Wrap(err, "scan run summary failed")
		}
		switch planrunner.Outcome(outcome) {
		case planrunner.OutcomePass:
			summary.Passed++
		case planrunner.OutcomeFail:
			summary.Failed++
		case planrunner.OutcomeSkip:
			summary.Skipped++
		}
	}
	return summary, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	return s.db.Close()
}
