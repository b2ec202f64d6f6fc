package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"treasury/internal/amqp"
	"treasury/internal/export"
	"treasury/internal/log"
	"treasury/internal/report"
	"treasury/internal/session"
	"treasury/internal/sheets"
)

// ReportFetcher fetches the raw body of a report.
type ReportFetcher interface {
	FetchReport(ctx context.Context, def report.Definition, date, token string) ([]byte, error)
}

// SessionReader loads the session that queued a job.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*session.Session, error)
}

type Config struct {
	Jobs      export.JobStore
	Sessions  SessionReader
	Fetcher   ReportFetcher
	Publisher sheets.TablePublisher // nil disables the sheets target
	ExportDir string
	Logger    *log.Logger
}

// ExportWorker runs queued export jobs.
type ExportWorker struct {
	jobs      export.JobStore
	sessions  SessionReader
	fetcher   ReportFetcher
	publisher sheets.TablePublisher
	exportDir string
	logger    *log.Logger
	now       func() time.Time
}

func NewExportWorker(cfg Config) *ExportWorker {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		jobs:      cfg.Jobs,
		sessions:  cfg.Sessions,
		fetcher:   cfg.Fetcher,
		publisher: cfg.Publisher,
		exportDir: cfg.ExportDir,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// HandleExportRequested runs one job. Failures of the export itself are
// recorded on the job and not returned; an error is returned only when the
// job could not be loaded or updated, so the message is retried.
func (w *ExportWorker) HandleExportRequested(ctx context.Context, msg *amqp.ExportRequested) error {
	w.logger.InfoContext(ctx, "Processing export request",
		log.FieldJobID, msg.JobID,
		log.FieldReportKind, msg.Kind,
		log.FieldReportDate, msg.Date)

	job, err := w.jobs.GetJob(ctx, msg.JobID)
	if errors.Is(err, export.ErrJobNotFound) {
		w.logger.WarnContext(ctx, "Dropping export request for unknown job", log.FieldJobID, msg.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get export job: %w", err)
	}
	if job.Status.Terminal() {
		w.logger.DebugContext(ctx, "Export job already finished", log.FieldJobID, job.ID, "status", job.Status)
		return nil
	}

	if err := w.jobs.UpdateJob(ctx, job.ID, export.JobRunning, "", ""); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	ref, runErr := w.run(ctx, job)
	if runErr != nil {
		w.logger.ErrorContext(ctx, "Export job failed",
			log.FieldJobID, job.ID,
			log.FieldReportKind, job.Kind,
			log.FieldError, runErr)
		if err := w.jobs.UpdateJob(ctx, job.ID, export.JobFailed, "", runErr.Error()); err != nil {
			return fmt.Errorf("mark job failed: %w", err)
		}
		return nil
	}

	if err := w.jobs.UpdateJob(ctx, job.ID, export.JobDone, ref, ""); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	w.logger.InfoContext(ctx, "Export job completed",
		log.FieldJobID, job.ID,
		log.FieldExportTarget, job.Target,
		log.FieldExportRef, ref)
	return nil
}

func (w *ExportWorker) run(ctx context.Context, job *export.Job) (string, error) {
	def, err := report.Lookup(job.Kind)
	if err != nil {
		return "", err
	}

	sess, err := w.sessions.GetSession(ctx, job.SessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(w.now()) {
		return "", session.ErrExpired
	}

	raw, err := w.fetcher.FetchReport(ctx, def, job.Date, sess.Token)
	if err != nil {
		return "", fmt.Errorf("fetch report: %w", err)
	}
	table := export.ForReport(def, report.Decode(def, raw))
	for _, warning := range table.Warnings {
		w.logger.WarnContext(ctx, "Export cell left empty",
			log.FieldJobID, job.ID, log.FieldReportKind, job.Kind, "warning", warning)
	}

	switch job.Target {
	case export.TargetSheets:
		if w.publisher == nil {
			return "", errors.New("sheets export is not configured")
		}
		return w.publisher.PublishTable(ctx, job.Kind+"-"+job.Date, table)
	case export.TargetXLSX, "":
		return w.writeFile(def, job, table)
	default:
		return "", fmt.Errorf("unknown export target %q", job.Target)
	}
}

// JobFilePath returns where the xlsx for job is written under dir.
func JobFilePath(dir string, job *export.Job) string {
	return filepath.Join(dir, job.FileName())
}

func (w *ExportWorker) writeFile(def report.Definition, job *export.Job, table export.Table) (string, error) {
	if err := os.MkdirAll(w.exportDir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := JobFilePath(w.exportDir, job)

	// write to a temp file so a partial workbook is never downloadable
	tmp, err := os.CreateTemp(w.exportDir, ".export-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := export.WriteXLSX(tmp, export.SheetFor(def), table); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move export file: %w", err)
	}
	return path, nil
}

// StartupCheck fails jobs left running by a previous worker process.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	stuck, err := w.jobs.ListJobsByStatus(ctx, export.JobRunning, 0)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	if len(stuck) == 0 {
		w.logger.InfoContext(ctx, "No interrupted export jobs found on startup")
		return nil
	}

	failed := 0
	for _, job := range stuck {
		if err := w.jobs.UpdateJob(ctx, job.ID, export.JobFailed, "", "interrupted by worker restart"); err != nil {
			w.logger.ErrorContext(ctx, "Failed to mark interrupted job", log.FieldJobID, job.ID, log.FieldError, err)
			continue
		}
		failed++
	}
	w.logger.InfoContext(ctx, "Startup check completed", "interrupted", len(stuck), "marked_failed", failed)
	return nil
}
