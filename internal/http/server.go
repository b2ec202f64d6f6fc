package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"treasury/internal/api"
	"treasury/internal/export"
	"treasury/internal/format"
	"treasury/internal/log"
	"treasury/internal/middleware/ratelimit"
	"treasury/internal/middleware/security"
	"treasury/internal/middleware/trace"
	"treasury/internal/report"
	"treasury/internal/services"
	"treasury/internal/session"
	appweb "treasury/web"
)

// Reports loads report views for the signed-in session.
type Reports interface {
	Load(ctx context.Context, sess *session.Session, kind, date string) (*report.View, error)
	ExportTable(ctx context.Context, sess *session.Session, kind, date string) (report.Definition, export.Table, error)
	Overview(ctx context.Context, sess *session.Session, date string) ([]services.Card, error)
	Slot(sessionID, kind string) *report.Slot
}

// Exports queues and lists asynchronous export jobs.
type Exports interface {
	Enabled() bool
	Queue(ctx context.Context, sess *session.Session, kind, date string) (*export.Job, error)
	Jobs(ctx context.Context, sess *session.Session, limit int) ([]export.Job, error)
	Job(ctx context.Context, sess *session.Session, id string) (*export.Job, error)
}

// Setup backs the bank account, transaction and company screens.
type Setup interface {
	Banks(ctx context.Context, sess *session.Session) ([]api.Bank, error)
	Companies(ctx context.Context, sess *session.Session) ([]api.Company, error)
	BankAccounts(ctx context.Context, sess *session.Session) ([]api.BankAccount, error)
	Transactions(ctx context.Context, sess *session.Session) ([]api.Transaction, error)
	CreateBankAccount(ctx context.Context, sess *session.Session, acct api.NewBankAccount) error
	CreateTransaction(ctx context.Context, sess *session.Session, tx api.NewTransaction) error
	CreateCompany(ctx context.Context, sess *session.Session, c api.Company) error
}

// Authenticator exchanges credentials for an API token.
type Authenticator interface {
	SignIn(ctx context.Context, username, password string) (*api.SignInResponse, error)
}

// Check is a named readiness check.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config wires the server's dependencies.
type Config struct {
	Addr         string
	Reports      Reports
	Exports      Exports
	Setup        Setup
	Auth         Authenticator
	Sessions     *session.Manager
	Currency     *format.Currency
	ExportDir    string
	CookieSecure bool
	RateLimit    ratelimit.Config
	Checks       []Check
	Logger       *log.Logger
}

type appMetrics struct {
	uptime          time.Time
	reportsLoaded   int64
	reportsFailed   int64
	reportsStale    int64
	exportsStreamed int64
	exportsQueued   int64
	signIns         int64
	signInFailures  int64
}

// Server is the dashboard's HTTP server.
type Server struct {
	http.Server
	templates *template.Template
	logger    *log.Logger

	reports  Reports
	exports  Exports
	setup    Setup
	auth     Authenticator
	sessions *session.Manager
	currency *format.Currency

	exportDir    string
	cookieSecure bool
	checks       []Check

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics
}

// NewServer parses the embedded templates and configures routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Reports == nil || cfg.Setup == nil || cfg.Sessions == nil || cfg.Auth == nil {
		return nil, errors.New("http server needs reports, setup, sessions and auth")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	cur := cfg.Currency
	if cur == nil {
		cur = format.MustCurrency("en-BD", "BDT")
	}

	tmpl, err := parseTemplates(cur)
	if err != nil {
		return nil, err
	}

	s := &Server{
		templates:        tmpl,
		logger:           logger,
		reports:          cfg.Reports,
		exports:          cfg.Exports,
		setup:            cfg.Setup,
		auth:             cfg.Auth,
		sessions:         cfg.Sessions,
		currency:         cur,
		exportDir:        cfg.ExportDir,
		cookieSecure:     cfg.CookieSecure,
		checks:           cfg.Checks,
		rateLimiter:      ratelimit.NewLimiter(cfg.RateLimit),
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)
	s.rateLimiter.Start()

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// exports of large reports stream for a while
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware.Middleware)
	r.Use(s.securityDetector.Middleware(true))
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, http.MethodPost))
	r.Use(s.sessions.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err == nil {
		r.With(security.StaticCache(3600)).
			Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}

	r.Get("/signin", s.handleSignInPage)
	r.Post("/signin", s.handleSignIn)
	r.Get("/unauthorized-access", s.handleUnauthorizedPage)

	r.Group(func(r chi.Router) {
		r.Use(session.Require("/signin"))
		r.Use(security.NoStore)

		r.Post("/signout", s.handleSignOut)
		r.Get("/", s.handleOverview)

		r.Get("/reports/{kind}", s.handleReportPage)
		r.Get("/ui/reports/{kind}", s.handleReportPartial)
		r.Get("/reports/{kind}/export", s.handleExportDownload)
		r.Post("/reports/{kind}/export-jobs", s.handleQueueExport)

		r.Get("/exports", s.handleExportJobs)
		r.Get("/exports/{id}/download", s.handleExportJobDownload)

		r.Get("/setup/bank-accounts", s.handleBankAccounts)
		r.Post("/setup/bank-accounts", s.handleCreateBankAccount)
		r.Get("/setup/transactions", s.handleTransactions)
		r.Post("/setup/transactions", s.handleCreateTransaction)
		r.Post("/setup/companies", s.handleCreateCompany)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if isHTMX(r) {
			NotFoundError("Page not found").Write(w)
			return
		}
		s.render(w, r, http.StatusNotFound, "error.html", s.basePage(r, "Not found").withMessage("The page you asked for does not exist."))
	})
	return r
}

// Shutdown stops background goroutines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	s.logger.InfoContext(ctx, "HTTP server shutting down", log.FieldOperation, log.OpShutdown)
	return s.Server.Shutdown(ctx)
}

// render executes a page template into a buffer first so a template error
// never produces a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	buf, err := s.execute(name, data)
	if err != nil {
		s.logger.LogError(r.Context(), "Template execution failed", err, log.OpRender,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func (s *Server) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// unauthorized ends the session whose token the API rejected and sends the
// user to the unauthorized landing page.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.logger.WarnContext(r.Context(), "API rejected session token",
		log.FieldSessionID, sess.ID, log.FieldPath, r.URL.Path)
	if err := s.sessions.End(r.Context(), sess.ID); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to end session", log.FieldError, err)
	}
	session.ClearCookie(w, s.cookieSecure)
	redirect(w, r, "/unauthorized-access")
}

// currentSession returns the session placed on the context by the session
// middleware. Routes behind Require always have one.
func currentSession(r *http.Request) *session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}

func (s *Server) countReport(err error) {
	switch {
	case err == nil:
		atomic.AddInt64(&s.appMetrics.reportsLoaded, 1)
	case errors.Is(err, report.ErrStale):
		atomic.AddInt64(&s.appMetrics.reportsStale, 1)
	default:
		atomic.AddInt64(&s.appMetrics.reportsFailed, 1)
	}
}
