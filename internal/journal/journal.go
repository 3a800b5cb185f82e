// Package journal records handled requests and stream cursors in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Request statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when no record exists for a request id.
var ErrNotFound = errors.New("journal: record not found")

const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT UNIQUE NOT NULL,
	stream_id TEXT,
	event TEXT NOT NULL DEFAULT '',
	channel_id TEXT,
	message_id TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	result_text TEXT,
	error_text TEXT,
	deliveries INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);

CREATE TABLE IF NOT EXISTS stream_cursors (
	stream TEXT PRIMARY KEY,
	last_id TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Record is one handled request.
type Record struct {
	ID          int64
	RequestID   string
	StreamID    string
	Event       string
	ChannelID   string
	MessageID   string
	Status      string
	ResultText  string
	ErrorText   string
	Deliveries  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Done reports whether the record reached a terminal status.
func (r *Record) Done() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Journal is safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path, creating its directory.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Begin inserts a pending record, or counts a redelivery of an existing one.
func (j *Journal) Begin(ctx context.Context, rec *Record) error {
	if rec.RequestID == "" {
		return fmt.Errorf("begin: empty request id")
	}
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO requests (request_id, stream_id, event, channel_id, message_id, status, deliveries)
	VALUES (?, ?, ?, ?, ?, ?, 1)
	ON CONFLICT(request_id) DO UPDATE SET
		stream_id = excluded.stream_id,
		deliveries = requests.deliveries + 1,
		updated_at = CURRENT_TIMESTAMP
	`, rec.RequestID, rec.StreamID, rec.Event, rec.ChannelID, rec.MessageID, StatusPending)
	if err != nil {
		return fmt.Errorf("begin %s: %w", rec.RequestID, err)
	}
	return nil
}

// Finish stores the terminal status of a request.
func (j *Journal) Finish(ctx context.Context, requestID, status, resultText, errorText string) error {
	res, err := j.db.ExecContext(ctx, `
	UPDATE requests
	SET status = ?, result_text = ?, error_text = ?, updated_at = CURRENT_TIMESTAMP, completed_at = CURRENT_TIMESTAMP
	WHERE request_id = ?
	`, status, resultText, errorText, requestID)
	if err != nil {
		return fmt.Errorf("finish %s: %w", requestID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish %s: %w", requestID, ErrNotFound)
	}
	return nil
}

// Get returns the record for requestID.
func (j *Journal) Get(ctx context.Context, requestID string) (*Record, error) {
	row := j.db.QueryRowContext(ctx, `
	SELECT id, request_id, COALESCE(stream_id, ''), event, COALESCE(channel_id, ''), COALESCE(message_id, ''),
		status, COALESCE(result_text, ''), COALESCE(error_text, ''), deliveries, created_at, updated_at, completed_at
	FROM requests WHERE request_id = ?
	`, requestID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", requestID, err)
	}
	return rec, nil
}

// Done reports whether requestID already reached a terminal status.
func (j *Journal) Done(ctx context.Context, requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}
	rec, err := j.Get(ctx, requestID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Done(), nil
}

// List returns the most recent records, optionally filtered by status.
func (j *Journal) List(ctx context.Context, status string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
	SELECT id, request_id, COALESCE(stream_id, ''), event, COALESCE(channel_id, ''), COALESCE(message_id, ''),
		status, COALESCE(result_text, ''), COALESCE(error_text, ''), deliveries, created_at, updated_at, completed_at
	FROM requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Cursor returns the last committed id of stream, or "" when none was saved.
func (j *Journal) Cursor(ctx context.Context, stream string) (string, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `SELECT last_id FROM stream_cursors WHERE stream = ?`, stream).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cursor %s: %w", stream, err)
	}
	return id, nil
}

// SaveCursor stores id as the last committed id of stream.
func (j *Journal) SaveCursor(ctx context.Context, stream, id string) error {
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO stream_cursors (stream, last_id, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(stream) DO UPDATE SET last_id = excluded.last_id, updated_at = CURRENT_TIMESTAMP
	`, stream, id)
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", stream, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec       Record
		completed sql.NullTime
	)
	err := s.Scan(&rec.ID, &rec.RequestID, &rec.StreamID, &rec.Event, &rec.ChannelID, &rec.MessageID,
		&rec.Status, &rec.ResultText, &rec.ErrorText, &rec.Deliveries, &rec.CreatedAt, &rec.UpdatedAt, &completed)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}
