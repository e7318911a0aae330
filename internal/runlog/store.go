// Package runlog persists one row per agent invocation in SQLite so operators
// can review what was submitted, how the agent exited and what it printed on
// stderr after the workspace itself is gone.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	maxStderrBytes = 64 * 1024

	// DefaultListLimit is used when List is called with a non-positive limit.
	DefaultListLimit = 50
	maxListLimit     = 500
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Start inserts a running row and returns its ID. An empty req.ID gets a
// fresh UUID.
func (s *Store) Start(ctx context.Context, req StartRequest) (string, error) {
	if req.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO invocation_log(
  id, kind, status, company, sector, slug, request_id, link_count, dry_run, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, req.Kind, StatusRunning, req.Company, req.Sector, req.Slug, req.RequestID, req.LinkCount, req.DryRun,
		s.timestamp())
	if err != nil {
		return "", fmt.Errorf("insert invocation: %w", err)
	}
	return id, nil
}

// Complete marks a running invocation terminal.
func (s *Store) Complete(ctx context.Context, id string, c Completion) error {
	if id == "" {
		return fmt.Errorf("invocation id is empty")
	}
	if !c.Status.Terminal() {
		return fmt.Errorf("invalid terminal status: %q", c.Status)
	}

	docs := c.Documents
	if docs == nil {
		docs = []Document{}
	}
	docsJSON, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}

	var stderrVal any
	if c.Stderr != nil {
		stderr := *c.Stderr
		if len(stderr) > maxStderrBytes {
			stderr = stderr[:maxStderrBytes]
		}
		stderrVal = stderr
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE invocation_log
SET status = ?, completed_at = ?, exit_code = ?, duration_ms = ?, published_url = ?,
    last_error = ?, stderr = ?, documents = ?
WHERE id = ? AND status = ?;
`, c.Status, s.timestamp(), c.ExitCode, c.Duration.Milliseconds(), c.PublishedURL,
		c.LastError, stderrVal, string(docsJSON), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("update invocation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("complete %q: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns one invocation by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?;`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invocation: %w", err)
	}
	return rec, nil
}

// List returns the most recent invocations, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	out := make([]*Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes terminal invocations created before now-retention.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := s.now().Add(-retention).UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `
DELETE FROM invocation_log
WHERE status != ? AND created_at < ?;
`, StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	return res.RowsAffected()
}

// MarkAbandoned flags rows still running from a previous process. Call it
// once at startup, before serving.
func (s *Store) MarkAbandoned(ctx context.Context) (int64, error) {
	msg := "gateway restarted while the agent was running"
	res, err := s.db.ExecContext(ctx, `
UPDATE invocation_log
SET status = ?, completed_at = ?, last_error = ?
WHERE status = ?;
`, StatusAbandoned, s.timestamp(), msg, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned invocations: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

const selectColumns = `
SELECT id, kind, status, company, sector, slug, request_id, documents, link_count, dry_run,
  created_at, completed_at, exit_code, duration_ms, published_url, last_error, stderr
FROM invocation_log`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r            Record
		status       string
		docs         string
		createdAtS   string
		completedAtS sql.NullString
		exitCode     sql.NullInt64
		durationMS   sql.NullInt64
		url          sql.NullString
		lastError    sql.NullString
		stderr       sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.Kind, &status, &r.Company, &r.Sector, &r.Slug, &r.RequestID, &docs, &r.LinkCount, &r.DryRun,
		&createdAtS, &completedAtS, &exitCode, &durationMS, &url, &lastError, &stderr,
	); err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.Documents = []Document{}
	if docs != "" {
		if err := json.Unmarshal([]byte(docs), &r.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		r.CreatedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			r.CompletedAt = &t
		}
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		r.ExitCode = &v
	}
	if durationMS.Valid {
		r.DurationMS = &durationMS.Int64
	}
	if url.Valid {
		r.PublishedURL = &url.String
	}
	if lastError.Valid {
		r.LastError = &lastError.String
	}
	if stderr.Valid {
		r.Stderr = &stderr.String
	}
	return &r, nil
}
