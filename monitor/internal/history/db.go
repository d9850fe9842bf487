package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/obsidianstack/pulsewatch/monitor/internal/outcome"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	check_id TEXT NOT NULL,
	checked_at INTEGER NOT NULL,
	state TEXT NOT NULL,
	previous_state TEXT NOT NULL,
	errored INTEGER NOT NULL,
	error_kind TEXT,
	response_code INTEGER,
	duration_ms INTEGER,
	alert INTEGER NOT NULL,
	alert_id TEXT,
	notified INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_check_time ON results(check_id, checked_at);
CREATE INDEX IF NOT EXISTS idx_results_checked_at ON results(checked_at);
`

// Record is one stored result row.
type Record struct {
	CheckID      string          `json:"check_id"`
	CheckedAt    time.Time       `json:"checked_at"`
	State        types.State     `json:"state"`
	Previous     types.State     `json:"previous_state"`
	Errored      bool            `json:"errored"`
	ErrorKind    types.ErrorKind `json:"error_kind,omitempty"`
	ResponseCode int             `json:"response_code,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	Alert        bool            `json:"alert"`
	AlertID      string          `json:"alert_id,omitempty"`
	Notified     bool            `json:"notified"`
}

// DB wraps the SQLite connection.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	// One writer at a time; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Observe stores r. Errors are logged.
func (d *DB) Observe(ctx context.Context, r outcome.Result) {
	if err := d.Insert(ctx, r); err != nil {
		slog.Error("history: insert failed", "check", r.Check.ID, "err", err)
	}
}

// Insert stores one result.
func (d *DB) Insert(ctx context.Context, r outcome.Result) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO results (check_id, checked_at, state, previous_state, errored, error_kind,
			response_code, duration_ms, alert, alert_id, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Check.ID,
		r.Time.UnixMilli(),
		string(r.Check.State),
		string(r.Previous),
		r.Outcome.Errored,
		string(r.Outcome.ErrorKind),
		r.Outcome.ResponseCode,
		r.Outcome.DurationMS,
		r.Alert,
		r.AlertID,
		r.Notified,
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit results for checkID, newest first.
func (d *DB) Recent(ctx context.Context, checkID string, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT check_id, checked_at, state, previous_state, errored, error_kind,
			response_code, duration_ms, alert, alert_id, notified
		FROM results
		WHERE check_id = ?
		ORDER BY checked_at DESC, id DESC
		LIMIT ?
	`, checkID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec                      Record
			at                       int64
			state, prev              string
			kind, alertID            sql.NullString
			code, dur                sql.NullInt64
			errored, alert, notified bool
		)
		if err := rows.Scan(&rec.CheckID, &at, &state, &prev, &errored, &kind,
			&code, &dur, &alert, &alertID, &notified); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		rec.CheckedAt = time.UnixMilli(at).UTC()
		rec.State = types.State(state)
		rec.Previous = types.State(prev)
		rec.Errored = errored
		rec.ErrorKind = types.ErrorKind(kind.String)
		rec.ResponseCode = int(code.Int64)
		rec.DurationMS = dur.Int64
		rec.Alert = alert
		rec.AlertID = alertID.String
		rec.Notified = notified
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Uptime returns the percentage of up results for checkID since the given
// time, and how many results that covers. With no results it returns 0, 0.
func (d *DB) Uptime(ctx context.Context, checkID string, since time.Time) (float64, int, error) {
	var total, up int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN state = 'up' THEN 1 ELSE 0 END), 0)
		FROM results
		WHERE check_id = ? AND checked_at >= ?
	`, checkID, since.UnixMilli()).Scan(&total, &up)
	if err != nil {
		return 0, 0, fmt.Errorf("history: uptime: %w", err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(up) / float64(total) * 100, total, nil
}

// Prune deletes results older than before and returns how many went.
func (d *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM results WHERE checked_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}
