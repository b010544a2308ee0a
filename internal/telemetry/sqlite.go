package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink appends rows to a local SQLite table.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS risk_rows (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		kind            TEXT NOT NULL,
		ts              TEXT NOT NULL,
		correlation_id  TEXT,
		user_id         TEXT,
		grade           TEXT,
		query           TEXT,
		reasons         TEXT,
		restricted_hits INTEGER DEFAULT 0,
		top_restricted  TEXT,
		risk_score      INTEGER DEFAULT 0,
		event_id        TEXT,
		role            TEXT,
		dept            TEXT,
		signals         TEXT,
		policy_id       TEXT,
		clause_id       TEXT,
		answer_hash     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_risk_rows_kind_ts ON risk_rows(kind, ts);
	CREATE INDEX IF NOT EXISTS idx_risk_rows_corr ON risk_rows(correlation_id);`)
	return err
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Write(ctx context.Context, r Row) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO risk_rows (kind, ts, correlation_id, user_id, grade, query, reasons,
		restricted_hits, top_restricted, risk_score, event_id, role, dept, signals,
		policy_id, clause_id, answer_hash)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.Kind), r.Timestamp.UTC().Format(time.RFC3339Nano), r.CorrelationID, r.UserID, r.Grade,
		r.Query, r.Reasons, r.RestrictedHits, r.TopRestricted, r.RiskScore, r.EventID, r.Role,
		r.Dept, r.Signals, r.PolicyID, r.ClauseID, r.AnswerHash,
	)
	if err != nil {
		return fmt.Errorf("insert telemetry row: %w", err)
	}
	return nil
}

// Recent returns up to limit rows of kind, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, kind Kind, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT kind, ts, correlation_id, user_id, grade, query, reasons, restricted_hits,
		top_restricted, risk_score, event_id, role, dept, signals, policy_id, clause_id, answer_hash
	FROM risk_rows WHERE kind = ? ORDER BY id DESC LIMIT ?`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("query telemetry rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r    Row
			k    string
			ts   string
			text [15]sql.NullString
		)
		if err := rows.Scan(&k, &ts, &text[0], &text[1], &text[2], &text[3], &text[4], &r.RestrictedHits,
			&text[5], &r.RiskScore, &text[6], &text[7], &text[8], &text[9], &text[10], &text[11], &text[12]); err != nil {
			return nil, fmt.Errorf("scan telemetry row: %w", err)
		}
		r.Kind = Kind(k)
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.CorrelationID, r.UserID, r.Grade = text[0].String, text[1].String, text[2].String
		r.Query, r.Reasons, r.TopRestricted = text[3].String, text[4].String, text[5].String
		r.EventID, r.Role, r.Dept, r.Signals = text[6].String, text[7].String, text[8].String, text[9].String
		r.PolicyID, r.ClauseID, r.AnswerHash = text[10].String, text[11].String, text[12].String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error { return s.db.Close() }
