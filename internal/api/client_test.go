package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/internal/report"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestFetchReport(t *testing.T) {
	def, err := report.Lookup(report.BankUtilization)
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/report/getUtilzationbyBank", r.URL.Path)
		assert.Equal(t, "2024-06-30", r.URL.Query().Get("reportDate"))
		assert.Equal(t, "tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`[{"bankName":"A"}]`))
	})

	raw, err := c.FetchReport(context.Background(), def, "2024-06-30", "tok-123")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"bankName":"A"}]`, string(raw))
}

func TestFetchReport_CashFlowUsesDateParam(t *testing.T) {
	def, err := report.Lookup(report.CashFlowLoanAccount)
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-01-31", r.URL.Query().Get("date"))
		_, _ = w.Write([]byte(`{}`))
	})
	_, err = c.FetchReport(context.Background(), def, "2024-01-31", "t")
	require.NoError(t, err)
}

func TestFetchReport_MissingDateSkipsRequest(t *testing.T) {
	def, _ := report.Lookup(report.InterestRate)
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.FetchReport(context.Background(), def, "  ", "t")
	assert.ErrorIs(t, err, ErrMissingDate)
	assert.False(t, called)
}

func TestFetchReport_Errors(t *testing.T) {
	def, _ := report.Lookup(report.InterestRateFlat)

	tests := []struct {
		name         string
		status       int
		unauthorized bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := c.FetchReport(context.Background(), def, "2024-06-30", "t")
			require.Error(t, err)

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.unauthorized, errors.Is(err, ErrUnauthorized))
		})
	}
}

func TestFetchReport_BodyOverLimit(t *testing.T) {
	def, err := report.Lookup(report.BankUtilization)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"bankName":"Alpha"},{"bankName":"Beta"}]`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, MaxBodyBytes: 16})
	require.NoError(t, err)
	_, err = c.FetchReport(context.Background(), def, "2024-06-30", "t")
	require.ErrorIs(t, err, ErrResponseTooLarge)

	c, err = NewClient(Config{BaseURL: srv.URL, MaxBodyBytes: 42})
	require.NoError(t, err)
	raw, err := c.FetchReport(context.Background(), def, "2024-06-30", "t")
	require.NoError(t, err)
	assert.Len(t, raw, 42)
}

func TestSignIn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req SignInRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "ops", req.Username)
		assert.Empty(t, r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"token":"abc","user":{"userId":3,"username":"ops",
			"role":{"roleId":1,"roleName":"admin"},
			"userCompanies":[{"userId":3,"companyId":9,"company":{"companyId":9,"companyName":"Acme"}}]}}`))
	})

	res, err := c.SignIn(context.Background(), "ops", "secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Token)
	company, ok := res.User.DefaultCompany()
	require.True(t, ok)
	assert.Equal(t, 9, company.CompanyID)
	assert.Equal(t, "Acme", company.CompanyName)
}

func TestSetupEndpoints(t *testing.T) {
	var created NewTransaction
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/banks/get-all-banks":
			_, _ = w.Write([]byte(`[{"id":1,"bankName":"Sonali"}]`))
		case "/api/account-main/get-all-account-mains":
			_, _ = w.Write([]byte(`[{"id":4,"bankName":"Sonali","accountType":5,"accountNo":12345,"balance":10.5,"companyName":"Acme"}]`))
		case "/api/transaction/create-transaction":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusCreated)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	banks, err := c.ListBanks(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []Bank{{ID: 1, BankName: "Sonali"}}, banks)

	accts, err := c.ListBankAccounts(ctx, "t")
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, "Term Deposit", accts[0].AccountType.String())

	err = c.CreateTransaction(ctx, "t", NewTransaction{AccountID: 4, TransactionDate: "2024-06-30", TransactionType: Withdraw, Details: "demo", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, Withdraw, created.TransactionType)
	assert.Equal(t, int64(50), created.Amount)

	_, err = c.ListCompanies(ctx, "t")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestTransactionSigned(t *testing.T) {
	assert.Equal(t, int64(-20), Transaction{TransactionType: Withdraw, Amount: 20}.Signed())
	assert.Equal(t, int64(20), Transaction{TransactionType: Deposit, Amount: 20}.Signed())
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
