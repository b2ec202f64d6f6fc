package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/internal/api"
)

func signIn() *api.SignInResponse {
	return &api.SignInResponse{
		Token: "tok",
		User: api.User{
			UserID:   7,
			Username: "ops",
			Role:     api.Role{RoleName: "admin"},
			UserCompanies: []api.UserCompany{
				{CompanyID: 3, Company: api.Company{CompanyID: 3, CompanyName: "Acme"}},
			},
		},
	}
}

func newTestManager(ttl time.Duration) (*Manager, *time.Time) {
	now := time.Date(2024, 6, 30, 9, 0, 0, 0, time.UTC)
	m := NewManager(NewMemoryStore(), ttl)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m, now := newTestManager(time.Hour)

	var ended []string
	m.OnEnd(func(id string) { ended = append(ended, id) })

	s, err := m.Start(ctx, signIn())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, 3, s.CompanyID)
	assert.Equal(t, "Acme", s.CompanyName)
	assert.Equal(t, "admin", s.Role)

	got, err := m.Resolve(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Token, got.Token)

	*now = now.Add(2 * time.Hour)
	_, err = m.Resolve(ctx, s.ID)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, []string{s.ID}, ended)

	_, err = m.Resolve(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_StartRequiresToken(t *testing.T) {
	m, _ := newTestManager(time.Hour)
	_, err := m.Start(context.Background(), &api.SignInResponse{})
	assert.Error(t, err)
}

func TestManager_Sweep(t *testing.T) {
	ctx := context.Background()
	m, now := newTestManager(time.Minute)
	_, err := m.Start(ctx, signIn())
	require.NoError(t, err)
	_, err = m.Start(ctx, signIn())
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(time.Hour)
	s, err := m.Start(ctx, signIn())
	require.NoError(t, err)

	var seen *Session
	h := m.Middleware(Require("/signin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("no cookie redirects", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/bank-utilization", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/signin", rec.Header().Get("Location"))
	})

	t.Run("htmx request gets HX-Redirect", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ui/reports/bank-utilization", nil)
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "/signin", rec.Header().Get("HX-Redirect"))
	})

	t.Run("unknown cookie is cleared", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "nope"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), CookieName+"=;")
	})

	t.Run("valid cookie attaches session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: s.ID})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, s.ID, seen.ID)
	})
}

func TestSetCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCookie(rec, &Session{ID: "abc", ExpiresAt: time.Now().Add(time.Hour)}, true)
	c := rec.Result().Cookies()
	require.Len(t, c, 1)
	assert.Equal(t, "abc", c[0].Value)
	assert.True(t, c[0].HttpOnly)
	assert.True(t, c[0].Secure)
}
