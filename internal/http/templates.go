package http

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"treasury/internal/format"
	"treasury/internal/report"
	"treasury/internal/session"
	appweb "treasury/web"
)

func parseTemplates(cur *format.Currency) (*template.Template, error) {
	funcs := template.FuncMap{
		"money": func(v float64) string {
			s, err := cur.Format(v)
			if err != nil {
				return "—"
			}
			return s
		},
		"moneyInt": func(v int64) string {
			s, err := cur.Format(float64(v))
			if err != nil {
				return "—"
			}
			return s
		},
		"percent": func(v float64) string {
			s, err := format.Percent(v)
			if err != nil {
				return "—"
			}
			return s
		},
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("2006-01-02 15:04")
		},
	}

	t, err := template.New("").Funcs(funcs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// page carries what the layout needs on every screen.
type page struct {
	Title          string
	Path           string
	Session        *session.Session
	Reports        []report.Definition
	ExportsEnabled bool
	Message        string
	Error          string
}

func (s *Server) basePage(r *http.Request, title string) *page {
	sess, _ := session.FromContext(r.Context())
	return &page{
		Title:          title,
		Path:           r.URL.Path,
		Session:        sess,
		Reports:        report.Definitions(),
		ExportsEnabled: s.exports != nil && s.exports.Enabled(),
	}
}

func (p *page) withMessage(msg string) *page {
	p.Message = msg
	return p
}

func (p *page) withError(msg string) *page {
	p.Error = msg
	return p
}
