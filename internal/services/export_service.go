package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"treasury/internal/amqp"
	"treasury/internal/export"
	"treasury/internal/log"
	"treasury/internal/report"
	"treasury/internal/session"
)

// ErrExportsDisabled is returned when no queue is configured.
var ErrExportsDisabled = errors.New("asynchronous exports are not configured")

// ExportPublisher queues export requests.
type ExportPublisher interface {
	PublishExportRequested(ctx context.Context, msg *amqp.ExportRequested) error
}

// ExportService records export jobs and hands them to the worker queue.
type ExportService struct {
	jobs      export.JobStore
	publisher ExportPublisher
	target    string
	logger    *log.Logger
}

func NewExportService(jobs export.JobStore, publisher ExportPublisher, target string, logger *log.Logger) *ExportService {
	if logger == nil {
		logger = log.Discard()
	}
	if target == "" {
		target = export.TargetXLSX
	}
	return &ExportService{
		jobs:      jobs,
		publisher: publisher,
		target:    target,
		logger:    logger.WithComponent(log.ComponentExport),
	}
}

// Enabled reports whether jobs can be queued.
func (s *ExportService) Enabled() bool {
	return s != nil && s.jobs != nil && s.publisher != nil
}

// Queue saves a job and publishes it. A job whose message cannot be
// published is marked failed and returned with the error.
func (s *ExportService) Queue(ctx context.Context, sess *session.Session, kind, date string) (*export.Job, error) {
	if !s.Enabled() {
		return nil, ErrExportsDisabled
	}
	if _, err := report.Lookup(kind); err != nil {
		return nil, err
	}
	if date == "" {
		return nil, ErrMissingDate
	}

	job := &export.Job{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Kind:      kind,
		Date:      date,
		Target:    s.target,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save export job: %w", err)
	}

	msg := amqp.NewExportRequested(job.ID, kind, date, job.Target)
	if err := s.publisher.PublishExportRequested(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish export request",
			log.FieldJobID, job.ID, log.FieldError, err)
		if uerr := s.jobs.UpdateJob(ctx, job.ID, export.JobFailed, "", "could not queue export"); uerr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark export job failed", log.FieldJobID, job.ID, log.FieldError, uerr)
		}
		job.Status = export.JobFailed
		return job, fmt.Errorf("queue export: %w", err)
	}

	s.logger.InfoContext(ctx, "Export job queued",
		log.FieldJobID, job.ID,
		log.FieldReportKind, kind,
		log.FieldReportDate, date,
		log.FieldExportTarget, job.Target)
	return job, nil
}

// Jobs lists the session's most recent jobs.
func (s *ExportService) Jobs(ctx context.Context, sess *session.Session, limit int) ([]export.Job, error) {
	if !s.Enabled() {
		return nil, ErrExportsDisabled
	}
	return s.jobs.ListJobs(ctx, sess.ID, limit)
}

// Job returns one of the session's jobs. Jobs of other sessions are
// reported as not found.
func (s *ExportService) Job(ctx context.Context, sess *session.Session, id string) (*export.Job, error) {
	if !s.Enabled() {
		return nil, ErrExportsDisabled
	}
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.SessionID != sess.ID {
		return nil, export.ErrJobNotFound
	}
	return job, nil
}
