package http

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var errInvalidDate = errors.New("date must be YYYY-MM-DD")

// parseReportDate returns the trimmed date query value. An empty value is
// valid and means no date was picked yet.
func parseReportDate(r *http.Request) (string, error) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		return "", nil
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", errInvalidDate
	}
	return date, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends HTMX clients an HX-Redirect and browsers a 303.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", to)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
