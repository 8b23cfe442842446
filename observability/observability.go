// Package observability records pipeline stage events and HTTP request logs
// in a SQLite database, with retention cleanup.
//
// Recording is non-blocking by contract: a failing observability store logs
// a warning via slog and never propagates an error into the pipeline.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/veritract/veritract/idgen"
)

// Schema contains the DDL for the observability tables.
const Schema = `
CREATE TABLE IF NOT EXISTS stage_events (
    event_id     TEXT PRIMARY KEY,
    agreement_id TEXT NOT NULL,
    stage        TEXT NOT NULL,
    status       TEXT NOT NULL,
    detail       TEXT,
    duration_ms  INTEGER,
    created_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_stage_events_agreement
    ON stage_events(agreement_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_stage_events_stage
    ON stage_events(stage, created_at DESC);

CREATE TABLE IF NOT EXISTS http_request_logs (
    log_id      TEXT PRIMARY KEY DEFAULT ('hrl_' || hex(randomblob(16))),
    method      TEXT NOT NULL,
    path        TEXT NOT NULL,
    status_code INTEGER,
    duration_ms INTEGER,
    created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_http_logs_time ON http_request_logs(created_at DESC);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// StageEvent is one pipeline stage outcome for an agreement.
type StageEvent struct {
	AgreementID string
	Stage       string
	Status      string // started, completed, failed
	Detail      string // optional JSON
	Duration    time.Duration
}

// EventLogger writes stage events and HTTP request logs.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the given observability database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogStage records a stage event. Errors are logged via slog but do not
// propagate, so a failing observability store never blocks the pipeline.
func (l *EventLogger) LogStage(ctx context.Context, event StageEvent) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO stage_events (
			event_id, agreement_id, stage, status, detail, duration_ms, created_at
		) VALUES (?,?,?,?,?,?,?)`,
		l.newID(), event.AgreementID, event.Stage, event.Status, event.Detail,
		event.Duration.Milliseconds(), time.Now().Unix())
	if err != nil {
		slog.Warn("stage event log failed",
			"error", err, "agreement_id", event.AgreementID, "stage", event.Stage)
	}
}

// LogRequest records one HTTP request.
func (l *EventLogger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO http_request_logs (method, path, status_code, duration_ms)
		VALUES (?,?,?,?)`,
		method, path, statusCode, duration.Milliseconds())
	if err != nil {
		slog.Warn("http request log failed", "error", err, "path", path)
	}
}

// StageHistory returns an agreement's stage events, newest first.
func (l *EventLogger) StageHistory(ctx context.Context, agreementID string) ([]StageEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT stage, status, COALESCE(detail, ''), COALESCE(duration_ms, 0)
		FROM stage_events WHERE agreement_id = ? ORDER BY created_at DESC, rowid DESC`,
		agreementID)
	if err != nil {
		return nil, fmt.Errorf("stage history %s: %w", agreementID, err)
	}
	defer rows.Close()

	var out []StageEvent
	for rows.Next() {
		e := StageEvent{AgreementID: agreementID}
		var ms int64
		if err := rows.Scan(&e.Stage, &e.Status, &e.Detail, &ms); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	StageEventsDays int
	HTTPLogsDays    int
	RunVacuumAfter  bool
}

// Cleanup deletes records exceeding the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()

	type cleanupTarget struct {
		table string
		days  int
	}
	targets := []cleanupTarget{
		{"stage_events", cfg.StageEventsDays},
		{"http_request_logs", cfg.HTTPLogsDays},
	}

	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		cutoff := now - int64(t.days*86400)
		q := fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", t.table)
		if _, err := db.ExecContext(ctx, q, cutoff); err != nil {
			return fmt.Errorf("cleanup %s: %w", t.table, err)
		}
	}

	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
