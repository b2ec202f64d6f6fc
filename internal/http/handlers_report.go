package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"treasury/internal/api"
	"treasury/internal/export"
	"treasury/internal/log"
	"treasury/internal/report"
	"treasury/internal/services"
)

type overviewPage struct {
	*page
	Date  string
	Cards []services.Card
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	data := overviewPage{page: s.basePage(r, "Overview")}

	date, err := parseReportDate(r)
	if err != nil {
		data.Error = err.Error()
		s.render(w, r, http.StatusBadRequest, "overview.html", data)
		return
	}
	data.Date = date
	if date == "" {
		s.render(w, r, http.StatusOK, "overview.html", data)
		return
	}

	cards, err := s.reports.Overview(r.Context(), sess, date)
	if errors.Is(err, api.ErrUnauthorized) {
		s.unauthorized(w, r, sess)
		return
	}
	if err != nil {
		s.logger.LogError(r.Context(), "Overview failed", err, log.OpFetch,
			log.NewFields().WithReport("overview", date))
		data.Error = services.NoticeUnavailable
		s.render(w, r, http.StatusOK, "overview.html", data)
		return
	}
	data.Cards = cards
	s.render(w, r, http.StatusOK, "overview.html", data)
}

// reportBody is the data of the report_body partial.
type reportBody struct {
	Kind    report.Definition
	Date    string
	View    *report.View
	Error   string
	Exports bool
}

// Rows counts the data rows of the loaded view.
func (b reportBody) Rows() int {
	if b.View == nil {
		return 0
	}
	return b.View.Payload.Len()
}

type reportPage struct {
	*page
	Body reportBody
}

func (s *Server) lookupKind(w http.ResponseWriter, r *http.Request) (report.Definition, bool) {
	def, err := report.Lookup(chi.URLParam(r, "kind"))
	if err != nil {
		if isHTMX(r) {
			NotFoundError("Unknown report").Write(w)
		} else {
			s.render(w, r, http.StatusNotFound, "error.html",
				s.basePage(r, "Not found").withMessage("There is no such report."))
		}
		return def, false
	}
	return def, true
}

// handleReportPage renders the page shell. The table is loaded through the
// partial once a date is picked; a date in the query is loaded right away.
func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request) {
	def, ok := s.lookupKind(w, r)
	if !ok {
		return
	}
	sess := currentSession(r)
	data := reportPage{page: s.basePage(r, def.Title)}
	data.Body = reportBody{Kind: def, Exports: data.ExportsEnabled}

	date, err := parseReportDate(r)
	if err != nil {
		data.Body.Error = err.Error()
		s.render(w, r, http.StatusBadRequest, "report.html", data)
		return
	}
	data.Body.Date = date
	if date == "" {
		s.render(w, r, http.StatusOK, "report.html", data)
		return
	}

	view, err := s.reports.Load(r.Context(), sess, def.Slug, date)
	s.countReport(err)
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		s.unauthorized(w, r, sess)
		return
	case err != nil:
		data.Body.Error = services.NoticeUnavailable
	default:
		data.Body.View = view
	}
	s.render(w, r, http.StatusOK, "report.html", data)
}

// handleReportPartial serves the report_body fragment for HTMX. A response
// overtaken by a newer request for the same report is dropped with 204 so
// HTMX leaves the page alone.
func (s *Server) handleReportPartial(w http.ResponseWriter, r *http.Request) {
	def, ok := s.lookupKind(w, r)
	if !ok {
		return
	}
	sess := currentSession(r)
	body := reportBody{Kind: def, Exports: s.exports != nil && s.exports.Enabled()}

	date, err := parseReportDate(r)
	if err != nil {
		body.Error = err.Error()
		s.renderPartial(w, r, http.StatusBadRequest, body)
		return
	}
	body.Date = date

	view, err := s.reports.Load(r.Context(), sess, def.Slug, date)
	if !errors.Is(err, services.ErrMissingDate) {
		s.countReport(err)
	}
	switch {
	case errors.Is(err, services.ErrMissingDate):
		// nothing picked yet; the prompt is rendered
	case errors.Is(err, report.ErrStale):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, api.ErrUnauthorized):
		s.unauthorized(w, r, sess)
		return
	case err != nil:
		body.Error = services.NoticeUnavailable
	default:
		body.View = view
	}
	s.renderPartial(w, r, http.StatusOK, body)
}

func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, status int, body reportBody) {
	buf, err := s.execute("report_body", body)
	if err != nil {
		s.logger.LogError(r.Context(), "Template execution failed", err, log.OpRender,
			log.NewFields().WithReport(body.Kind.Slug, body.Date))
		InternalServerError("Could not render the report").Write(w)
		return
	}

	resp := NewHTMXResponse().Status(status).Body(buf)
	if body.View != nil {
		resp.TriggerReportLoaded(body.Kind.Slug, body.Date, body.Rows())
		if body.View.Notice != "" {
			resp.TriggerNotification(NotificationWarning, body.View.Notice, 5000)
		}
	}
	resp.Write(w)
}

// handleExportDownload streams the report as an xlsx workbook.
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	def, ok := s.lookupKind(w, r)
	if !ok {
		return
	}
	sess := currentSession(r)

	date, err := parseReportDate(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	_, table, err := s.reports.ExportTable(r.Context(), sess, def.Slug, date)
	switch {
	case errors.Is(err, services.ErrMissingDate):
		BadRequestError("Pick a report date first").Write(w)
		return
	case errors.Is(err, services.ErrLoading):
		ConflictError("The report is still loading").Write(w)
		return
	case errors.Is(err, api.ErrUnauthorized):
		s.unauthorized(w, r, sess)
		return
	case err != nil:
		s.logger.LogError(r.Context(), "Export failed", err, log.OpExport,
			log.NewFields().WithReport(def.Slug, date))
		ErrorResponse(http.StatusBadGateway, "The report could not be exported").Write(w)
		return
	}

	for _, warning := range table.Warnings {
		s.logger.WarnContext(r.Context(), "Export cell left empty",
			log.FieldReportKind, def.Slug, log.FieldReportDate, date, "warning", warning)
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, export.SheetFor(def), table); err != nil {
		s.logger.LogError(r.Context(), "Writing workbook failed", err, log.OpExport,
			log.NewFields().WithReport(def.Slug, date))
		InternalServerError("The report could not be exported").Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.exportsStreamed, 1)
	s.logger.InfoContext(r.Context(), "Report exported",
		log.FieldReportKind, def.Slug, log.FieldReportDate, date, log.FieldItemCount, len(table.Rows))

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(def.Slug, date)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// handleQueueExport queues an asynchronous export of the report.
func (s *Server) handleQueueExport(w http.ResponseWriter, r *http.Request) {
	def, ok := s.lookupKind(w, r)
	if !ok {
		return
	}
	if s.exports == nil {
		UnavailableError("Background exports are not configured").Write(w)
		return
	}
	sess := currentSession(r)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request").Write(w)
		return
	}
	date := p.Get("date")

	job, err := s.exports.Queue(r.Context(), sess, def.Slug, date)
	switch {
	case errors.Is(err, services.ErrExportsDisabled):
		UnavailableError("Background exports are not configured").Write(w)
		return
	case errors.Is(err, services.ErrMissingDate):
		BadRequestError("Pick a report date first").Write(w)
		return
	case err != nil:
		s.logger.LogError(r.Context(), "Queue export failed", err, log.OpExport,
			log.NewFields().WithReport(def.Slug, date))
		ErrorResponse(http.StatusBadGateway, "The export could not be queued").Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.exportsQueued, 1)
	if !isHTMX(r) {
		http.Redirect(w, r, "/exports", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		Status(http.StatusAccepted).
		TriggerExportQueued(job.ID).
		TriggerSuccessNotification(def.Title + " export queued").
		Write(w)
}

type exportsPage struct {
	*page
	Jobs []export.Job
}

func (s *Server) handleExportJobs(w http.ResponseWriter, r *http.Request) {
	data := exportsPage{page: s.basePage(r, "Exports")}
	if !data.ExportsEnabled || s.exports == nil {
		data.Message = "Background exports are not configured. Use the Export button on a report to download it directly."
		s.render(w, r, http.StatusOK, "exports.html", data)
		return
	}

	jobs, err := s.exports.Jobs(r.Context(), currentSession(r), 50)
	if err != nil {
		s.logger.LogError(r.Context(), "Listing export jobs failed", err, log.OpList, nil)
		data.Error = "Export jobs could not be listed"
	}
	data.Jobs = jobs
	s.render(w, r, http.StatusOK, "exports.html", data)
}

// handleExportJobDownload serves the workbook written by the export worker.
// The path is derived from the job, never taken from the stored reference.
func (s *Server) handleExportJobDownload(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil || !s.exports.Enabled() {
		NotFoundError("Export not found").Write(w)
		return
	}
	job, err := s.exports.Job(r.Context(), currentSession(r), chi.URLParam(r, "id"))
	if errors.Is(err, export.ErrJobNotFound) {
		NotFoundError("Export not found").Write(w)
		return
	}
	if err != nil {
		s.logger.LogError(r.Context(), "Loading export job failed", err, log.OpExport, nil)
		InternalServerError("Export could not be loaded").Write(w)
		return
	}
	if job.Status != export.JobDone || (job.Target != export.TargetXLSX && job.Target != "") {
		ConflictError("This export has no file to download").Write(w)
		return
	}

	f, err := os.Open(filepath.Join(s.exportDir, job.FileName()))
	if err != nil {
		s.logger.WarnContext(r.Context(), "Export file missing", log.FieldJobID, job.ID, log.FieldError, err)
		NotFoundError("Export file is no longer available").Write(w)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(job.Kind, job.Date)))
	http.ServeContent(w, r, job.FileName(), job.UpdatedAt, f)
}
