package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"treasury/internal/export"
	"treasury/internal/session"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores sessions and export jobs.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// the web server and the worker share the file; one writer per process
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) SaveSession(ctx context.Context, s *session.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, token, user_id, username, role, company_id, company_name, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			company_id = excluded.company_id,
			company_name = excluded.company_name,
			expires_at = excluded.expires_at`,
		s.ID, s.Token, s.UserID, s.Username, s.Role, s.CompanyID, s.CompanyName,
		s.CreatedAt.Unix(), s.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var (
		s                  session.Session
		created, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, token, user_id, username, role, company_id, company_name, created_at, expires_at
		FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.Token, &s.UserID, &s.Username, &s.Role, &s.CompanyID, &s.CompanyName, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.CreatedAt = time.Unix(created, 0)
	s.ExpiresAt = time.Unix(expiresAt, 0)
	return &s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *export.Job) error {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = j.CreatedAt
	if j.Status == "" {
		j.Status = export.JobQueued
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO export_jobs (id, session_id, kind, report_date, target, status, ref, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.SessionID, j.Kind, j.Date, j.Target, string(j.Status), j.Ref, j.Error,
		j.CreatedAt.Unix(), j.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

const jobColumns = `id, session_id, kind, report_date, target, status, ref, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*export.Job, error) {
	var (
		j                export.Job
		status           string
		created, updated int64
	)
	if err := row.Scan(&j.ID, &j.SessionID, &j.Kind, &j.Date, &j.Target, &status, &j.Ref, &j.Error, &created, &updated); err != nil {
		return nil, err
	}
	j.Status = export.JobStatus(status)
	j.CreatedAt = time.Unix(created, 0)
	j.UpdatedAt = time.Unix(updated, 0)
	return &j, nil
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*export.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, sessionID string, limit int) ([]export.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM export_jobs
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []export.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ListJobsByStatus returns the oldest jobs in status first.
func (r *SQLiteRepository) ListJobsByStatus(ctx context.Context, status export.JobStatus, limit int) ([]export.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM export_jobs
		WHERE status = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list export jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []export.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJob(ctx context.Context, id string, status export.JobStatus, ref, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET status = ?, ref = ?, error = ?, updated_at = ?
		WHERE id = ?`, string(status), ref, errMsg, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return export.ErrJobNotFound
	}
	return nil
}
