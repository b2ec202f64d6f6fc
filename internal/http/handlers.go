package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"treasury/internal/api"
	"treasury/internal/log"
	"treasury/internal/session"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady runs every configured dependency check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any, len(s.checks)+1)

	for _, c := range s.checks {
		if err := c.Run(ctx); err != nil {
			checks[c.Name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	response := map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	m := s.appMetrics

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors)
	gauge("http_response_time_avg_microseconds", "Average response time", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP reports_total Report loads by outcome\n")
	fmt.Fprintf(w, "# TYPE reports_total counter\n")
	fmt.Fprintf(w, "reports_total{outcome=\"loaded\"} %d\n", atomic.LoadInt64(&m.reportsLoaded))
	fmt.Fprintf(w, "reports_total{outcome=\"failed\"} %d\n", atomic.LoadInt64(&m.reportsFailed))
	fmt.Fprintf(w, "reports_total{outcome=\"stale\"} %d\n\n", atomic.LoadInt64(&m.reportsStale))

	fmt.Fprintf(w, "# HELP exports_total Exports by kind\n")
	fmt.Fprintf(w, "# TYPE exports_total counter\n")
	fmt.Fprintf(w, "exports_total{mode=\"download\"} %d\n", atomic.LoadInt64(&m.exportsStreamed))
	fmt.Fprintf(w, "exports_total{mode=\"queued\"} %d\n\n", atomic.LoadInt64(&m.exportsQueued))

	counter("sign_ins_total", "Successful sign-ins", atomic.LoadInt64(&m.signIns))
	counter("sign_in_failures_total", "Rejected sign-ins", atomic.LoadInt64(&m.signInFailures))
	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter("blocked_requests_total", "Suspicious requests answered with 404", securityMetrics.BlockedRequests)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(m.uptime).Seconds())
}

type signInPage struct {
	*page
	Username string
}

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.FromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "signin.html", signInPage{page: s.basePage(r, "Sign in")})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.render(w, r, http.StatusBadRequest, "signin.html",
			signInPage{page: s.basePage(r, "Sign in").withError("Invalid request")})
		return
	}

	username, password := p.Get("username"), p.Get("password")
	data := signInPage{page: s.basePage(r, "Sign in"), Username: username}
	if username == "" || password == "" {
		s.render(w, r, http.StatusUnprocessableEntity, "signin.html", data.withErrorPage("Enter your username and password"))
		return
	}

	res, err := s.auth.SignIn(r.Context(), username, password)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.signInFailures, 1)
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			s.logger.InfoContext(r.Context(), "Sign-in rejected",
				log.FieldUsername, username, log.FieldUpstreamState, apiErr.Status)
			s.render(w, r, http.StatusUnauthorized, "signin.html", data.withErrorPage("Invalid username or password"))
			return
		}
		s.logger.LogError(r.Context(), "Sign-in request failed", err, log.OpSignIn,
			log.NewFields().WithClientIP(s.securityDetector.ExtractClientIP(r)))
		s.render(w, r, http.StatusBadGateway, "signin.html", data.withErrorPage("The sign-in service is unavailable. Please try again."))
		return
	}

	sess, err := s.sessions.Start(r.Context(), res)
	if err != nil {
		s.logger.LogError(r.Context(), "Failed to start session", err, log.OpSignIn, nil)
		s.render(w, r, http.StatusInternalServerError, "signin.html", data.withErrorPage("Could not start a session"))
		return
	}

	atomic.AddInt64(&s.appMetrics.signIns, 1)
	s.logger.InfoContext(r.Context(), "User signed in",
		log.FieldUsername, sess.Username, log.FieldSessionID, sess.ID)
	session.SetCookie(w, sess, s.cookieSecure)
	redirect(w, r, "/")
}

func (d signInPage) withErrorPage(msg string) signInPage {
	d.page.withError(msg)
	return d
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		if err := s.sessions.End(r.Context(), sess.ID); err != nil {
			s.logger.ErrorContext(r.Context(), "Failed to end session",
				log.FieldSessionID, sess.ID, log.FieldError, err)
		}
		s.logger.InfoContext(r.Context(), "User signed out", log.FieldUsername, sess.Username)
	}
	session.ClearCookie(w, s.cookieSecure)
	redirect(w, r, "/signin")
}

func (s *Server) handleUnauthorizedPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusUnauthorized, "unauthorized.html", s.basePage(r, "Unauthorized"))
}
