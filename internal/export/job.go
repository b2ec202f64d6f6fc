package export

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrJobNotFound is returned when an export job does not exist.
var ErrJobNotFound = errors.New("export job not found")

// JobStatus is the lifecycle state of an export job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Export targets.
const (
	TargetXLSX   = "xlsx"
	TargetSheets = "sheets"
)

// Terminal reports whether the job will not change again.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job is an asynchronous export request.
type Job struct {
	ID        string
	SessionID string
	Kind      string
	Date      string
	Target    string
	Status    JobStatus
	Ref       string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileName is the xlsx file name written for the job.
func (j *Job) FileName() string {
	return FileName(strings.TrimSuffix(FileName(j.Kind, j.Date), ".xlsx"), j.ID)
}

// JobStore persists export jobs.
type JobStore interface {
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, sessionID string, limit int) ([]Job, error)
	ListJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]Job, error)
	UpdateJob(ctx context.Context, id string, status JobStatus, ref, errMsg string) error
}
