package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
)

// ErrRunNotFound is returned by LoadRun for an unknown run id.
var ErrRunNotFound = errors.New("store: run not found")

// Run is one recorded report build.
type Run struct {
	ID        string
	CreatedAt time.Time
	Source    string
	Summary   audit.Summary
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Store persists judged units per run in SQLite so batches can be compared after the CSV artifacts are gone.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("verdict store initialized", zap.String("path", path))
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		source TEXT,
		summary TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS verdicts (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		conversation_id TEXT NOT NULL,
		unit INTEGER NOT NULL,
		status TEXT NOT NULL,
		policy_violated INTEGER NOT NULL DEFAULT 0,
		output TEXT NOT NULL,
		PRIMARY KEY (run_id, conversation_id, unit)
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_conversation ON verdicts(conversation_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun records a run and its judged units in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, judged []audit.JudgedUnit) error {
	if run.ID == "" {
		return errors.New("SaveRun: run id is empty")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("SaveRun: marshal summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SaveRun: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, source, summary) VALUES (?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Unix(), run.Source, string(summary),
	); err != nil {
		return fmt.Errorf("SaveRun: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO verdicts (run_id, conversation_id, unit, status, policy_violated, output) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("SaveRun: prepare: %w", err)
	}
	defer stmt.Close()

	for _, j := range judged {
		status, violated := classify(j.Output)
		if _, err := stmt.ExecContext(ctx, run.ID, j.ConversationID, j.UnitNumber, status, violated, string(j.Output)); err != nil {
			return fmt.Errorf("SaveRun: insert verdict %s#%d: %w", j.ConversationID, j.UnitNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SaveRun: commit: %w", err)
	}
	s.logger.Debug("run saved", zap.String("run_id", run.ID), zap.Int("verdicts", len(judged)))
	return nil
}

func classify(output json.RawMessage) (status string, violated bool) {
	v, failure, err := audit.DecodeJudgedOutput(output)
	switch {
	case err != nil:
		return string(audit.ErrorJudgeParseFailure), false
	case failure != nil:
		if failure.Kind == "" {
			return "ERROR", false
		}
		return string(failure.Kind), false
	default:
		return audit.OutcomeOK, v.PolicyViolated
	}
}

// LoadRun returns a recorded run and its judged units ordered by conversation id and unit.
func (s *Store) LoadRun(ctx context.Context, id string) (Run, []audit.JudgedUnit, error) {
	var (
		run       Run
		createdAt int64
		source    sql.NullString
		summary   string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, created_at, source, summary FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &createdAt, &source, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, ErrRunNotFound
	}
	if err != nil {
		return Run{}, nil, fmt.Errorf("LoadRun: %w", err)
	}
	run.CreatedAt = time.Unix(createdAt, 0)
	run.Source = source.String
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return Run{}, nil, fmt.Errorf("LoadRun: decode summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, unit, output FROM verdicts WHERE run_id = ? ORDER BY conversation_id, unit`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("LoadRun: query verdicts: %w", err)
	}
	defer rows.Close()

	var judged []audit.JudgedUnit
	for rows.Next() {
		var (
			j      audit.JudgedUnit
			output string
		)
		if err := rows.Scan(&j.ConversationID, &j.UnitNumber, &output); err != nil {
			return Run{}, nil, fmt.Errorf("LoadRun: scan verdict: %w", err)
		}
		j.Output = json.RawMessage(output)
		judged = append(judged, j)
	}
	if err := rows.Err(); err != nil {
		return Run{}, nil, fmt.Errorf("LoadRun: %w", err)
	}
	return run, judged, nil
}

// ViolationCounts returns the number of violating units per run, newest run first.
func (s *Store) ViolationCounts(ctx context.Context, limit int) (map[string]int, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, COALESCE(SUM(v.policy_violated), 0)
		FROM runs r LEFT JOIN verdicts v ON v.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ViolationCounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("ViolationCounts: scan: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}
